package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aarthurxk/calibrasil-sub001/common/logger"
	"github.com/aarthurxk/calibrasil-sub001/models"
	"github.com/aarthurxk/calibrasil-sub001/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditRecord is one reconciliation attempt to be written to the audit trail.
type AuditRecord struct {
	Action   string
	OrderID  *uuid.UUID
	Outcome  string
	Actor    string
	Metadata map[string]any
}

// AuditService writes the append-only audit trail. Writes are best-effort.
type AuditService struct {
	repo   repository.AuditRepository
	logger *zap.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo repository.AuditRepository, logger *zap.Logger) *AuditService {
	return &AuditService{repo: repo, logger: logger}
}

// Record appends rec. Failures are logged and never returned to the caller.
func (s *AuditService) Record(ctx context.Context, rec AuditRecord) {
	if s == nil || s.repo == nil {
		return
	}

	meta := rec.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	if rid := logger.RequestID(ctx); rid != "unknown" {
		meta["request_id"] = rid
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		s.logger.Warn("Audit metadata not serializable", zap.String("action", rec.Action), zap.Error(err))
		raw = nil
	}

	entry := &models.AuditLog{
		Action:   rec.Action,
		OrderID:  rec.OrderID,
		Outcome:  rec.Outcome,
		Actor:    rec.Actor,
		Metadata: raw,
	}

	// the caller's request may already be cancelled once the response is written
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.repo.Create(writeCtx, entry); err != nil {
		s.logger.Error("Audit log append failed",
			zap.String("action", rec.Action),
			zap.String("outcome", rec.Outcome),
			zap.Error(err),
		)
	}
}

// List returns audit entries for post-mortems.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int64, error) {
	return s.repo.List(ctx, filter)
}
