package gateways

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/aarthurxk/calibrasil-sub001/common/errors"
	"github.com/aarthurxk/calibrasil-sub001/models"
	awspkg "github.com/aarthurxk/calibrasil-sub001/pkg/aws"
	"github.com/aarthurxk/calibrasil-sub001/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// OrderFinder resolves an order reference.
type OrderFinder interface {
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// Verifier confirms events against the provider before anything acts on them.
type Verifier struct {
	orders        OrderFinder
	timeout       time.Duration
	maxConcurrent int64
	logger        *zap.Logger
	metrics       awspkg.MetricsRecorder

	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

// NewVerifier creates a Verifier allowing maxConcurrent in-flight fetches per provider.
func NewVerifier(orders OrderFinder, timeout time.Duration, maxConcurrent int, logger *zap.Logger, metrics awspkg.MetricsRecorder) *Verifier {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if metrics == nil {
		metrics = awspkg.NopMetrics{}
	}
	return &Verifier{
		orders:        orders,
		timeout:       timeout,
		maxConcurrent: int64(maxConcurrent),
		logger:        logger,
		metrics:       metrics,
		sems:          make(map[string]*semaphore.Weighted),
	}
}

func (v *Verifier) semaphore(provider string) *semaphore.Weighted {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.sems[provider]
	if !ok {
		s = semaphore.NewWeighted(v.maxConcurrent)
		v.sems[provider] = s
	}
	return s
}

// Verify re-fetches the event's charge, replaces the claimed values with the
// provider's, and resolves the order. The returned order is a read snapshot;
// the gateway check is repeated under the order lock when the event is applied.
func (v *Verifier) Verify(ctx context.Context, p Provider, ev *PaymentEvent) (*models.Order, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	snap, err := v.fetch(fetchCtx, p, ev)
	dims := map[string]string{"Gateway": p.Name()}
	_ = v.metrics.RecordLatency(ctx, awspkg.MetricVerificationLatency, time.Since(start), dims)
	if err != nil {
		_ = v.metrics.RecordCount(ctx, awspkg.MetricVerificationFailed, dims)
		if errors.Is(err, ErrChargeNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrUnknownCharge, err)
		}
		return nil, apperrors.Wrap(apperrors.ErrVerification, err)
	}

	if ev.OrderRef != "" && snap.OrderRef != "" && ev.OrderRef != snap.OrderRef {
		v.logger.Warn("Notification order reference differs from provider record",
			zap.String("gateway", ev.Gateway),
			zap.String("claimed_order", ev.OrderRef),
			zap.String("verified_order", snap.OrderRef),
		)
	}
	if snap.OrderRef != "" {
		ev.OrderRef = snap.OrderRef
	}
	if snap.ChargeID != "" {
		ev.ExternalChargeID = snap.ChargeID
	}
	if ev.ClaimedStatus != "" && ev.ClaimedStatus != snap.Status {
		v.logger.Info("Provider status overrides notification",
			zap.String("gateway", ev.Gateway),
			zap.String("charge_id", ev.ExternalChargeID),
			zap.String("claimed", string(ev.ClaimedStatus)),
			zap.String("verified", string(snap.Status)),
		)
	}
	ev.VerifiedStatus = snap.Status
	ev.Amount = snap.Amount
	ev.Verified = true

	orderID, err := uuid.Parse(ev.OrderRef)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "order reference %q", ev.OrderRef)
	}
	order, err := v.orders.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Wrapf(apperrors.ErrNotFound, "order %s", orderID)
		}
		return nil, apperrors.Wrap(apperrors.ErrDatabaseQuery, err)
	}

	if gw := order.Gateway(); gw != "" && gw != ev.Gateway {
		return order, apperrors.Wrapf(apperrors.ErrGatewayMismatch, "order %s belongs to %s, event from %s", orderID, gw, ev.Gateway)
	}
	return order, nil
}

func (v *Verifier) fetch(ctx context.Context, p Provider, ev *PaymentEvent) (*ChargeSnapshot, error) {
	sem := v.semaphore(p.Name())
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer sem.Release(1)

	return p.Fetch(ctx, ev)
}
