package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is a per-key token bucket kept in process memory.
type MemoryLimiter struct {
	mu    sync.Mutex
	keys  map[string]*limiterEntry
	rate  rate.Limit
	burst int
	ttl   time.Duration
	stop  chan struct{}
}

// NewMemoryLimiter allows limit requests per window per key with the given burst.
// Idle keys are evicted after ttl.
func NewMemoryLimiter(limit int, window time.Duration, burst int, ttl time.Duration) *MemoryLimiter {
	if burst <= 0 {
		burst = limit
	}
	rl := &MemoryLimiter{
		keys:  make(map[string]*limiterEntry),
		rate:  rate.Every(window / time.Duration(limit)),
		burst: burst,
		ttl:   ttl,
		stop:  make(chan struct{}),
	}

	if ttl > 0 {
		go rl.cleanup()
	}
	return rl
}

func (rl *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(rl.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for key, entry := range rl.keys {
				if now.Sub(entry.lastSeen) > rl.ttl {
					delete(rl.keys, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stop:
			return
		}
	}
}

// Close stops the eviction loop.
func (rl *MemoryLimiter) Close() {
	select {
	case <-rl.stop:
	default:
		close(rl.stop)
	}
}

func (rl *MemoryLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.keys[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.keys[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// Allow consumes one token from key's bucket.
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	lim := rl.get(key)
	r := lim.Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return Result{Allowed: false, RetryAfter: delay}, nil
	}
	return Result{Allowed: true}, nil
}
