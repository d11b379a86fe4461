package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/aarthurxk/calibrasil-sub001/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAuditRepository implements AuditRepository using GORM.
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository.
func NewGormAuditRepository(db *gorm.DB) AuditRepository {
	return &GormAuditRepository{db: db}
}

// Create appends one audit entry.
func (r *GormAuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// List returns entries newest first.
func (r *GormAuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := r.db.WithContext(ctx).Model(&models.AuditLog{})
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.
		Order("created_at DESC").
		Offset(filter.Offset).
		Limit(limitOrDefault(filter.Limit)).
		Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// MemoryAuditRepository keeps the audit trail in process memory.
type MemoryAuditRepository struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

// NewMemoryAuditRepository creates an empty MemoryAuditRepository.
func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Create(_ context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}
	r.logs = append(r.logs, *entry)
	return nil
}

func (r *MemoryAuditRepository) List(_ context.Context, filter models.AuditFilter) ([]models.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []models.AuditLog
	for _, l := range r.logs {
		if filter.OrderID != nil && (l.OrderID == nil || *l.OrderID != *filter.OrderID) {
			continue
		}
		if filter.Action != "" && l.Action != filter.Action {
			continue
		}
		matched = append(matched, l)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []models.AuditLog{}, total, nil
	}
	matched = matched[filter.Offset:]
	if limit := limitOrDefault(filter.Limit); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
