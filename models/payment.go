package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedCharge is the dedupe ledger of applied payment events.
type ProcessedCharge struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Gateway          string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_charge_key" json:"gateway"`
	ExternalChargeID string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_charge_key" json:"external_charge_id"`
	VerifiedStatus   string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_charge_key" json:"verified_status"`
	OrderID          uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	PayloadDigest    string    `gorm:"type:char(64)" json:"payload_digest"`
	Outcome          string    `gorm:"type:varchar(32)" json:"outcome"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ConfirmationToken is the usage record of an order's receipt-confirmation token.
// The token itself is derived, never stored.
type ConfirmationToken struct {
	OrderID   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"order_id"`
	Used      bool       `gorm:"not null;default:false" json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Expired reports whether the token can no longer be consumed at now.
func (t *ConfirmationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
