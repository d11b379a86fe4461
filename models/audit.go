package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit actions.
const (
	AuditPaymentEvent      = "payment_event"
	AuditAdminStatusChange = "admin_status_change"
	AuditTokenValidation   = "token_validation"
	AuditTokenIssued       = "token_issued"
)

// Audit outcomes.
const (
	OutcomeApplied            = "applied"
	OutcomeDuplicate          = "duplicate"
	OutcomeRejected           = "rejected"
	OutcomeGatewayMismatch    = "gateway_mismatch"
	OutcomeInvalidTransition  = "invalid_transition"
	OutcomeVerificationFailed = "verification_failed"
	OutcomeNotFound           = "not_found"
)

// AuditLog is one append-only reconciliation record.
type AuditLog struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Action    string          `gorm:"type:varchar(64);not null;index" json:"action"`
	OrderID   *uuid.UUID      `gorm:"type:uuid;index" json:"order_id,omitempty"`
	Outcome   string          `gorm:"type:varchar(32);not null" json:"outcome"`
	Actor     string          `gorm:"type:varchar(128)" json:"actor"`
	Metadata  json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

// AuditFilter narrows an audit listing.
type AuditFilter struct {
	OrderID *uuid.UUID
	Action  string
	Limit   int
	Offset  int
}
