package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Coupon is a percentage discount with usage accounting.
type Coupon struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code            string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	DiscountPercent int        `gorm:"not null" json:"discount_percent"`
	UsedCount       int        `gorm:"not null;default:0" json:"used_count"`
	MaxUses         *int       `json:"max_uses,omitempty"` // nil = unlimited
	MinPurchase     int64      `gorm:"not null;default:0" json:"min_purchase"`
	ValidFrom       *time.Time `json:"valid_from,omitempty"`
	ValidUntil      *time.Time `json:"valid_until,omitempty"`
	Active          bool       `gorm:"not null;default:true" json:"active"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CouponUsage records that an order consumed a coupon. One row per order.
type CouponUsage struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"order_id"`
	CouponCode string    `gorm:"type:varchar(64);not null;index" json:"coupon_code"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// NormalizeCouponCode is the canonical comparison form of a code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
