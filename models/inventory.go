package models

import (
	"time"

	"github.com/google/uuid"
)

// StoreStock is the stock of one product variant at one store location.
type StoreStock struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VariantID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_variant_store" json:"variant_id"`
	StoreID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_variant_store" json:"store_id"`
	Quantity         int       `gorm:"not null;default:0" json:"quantity"`
	ReservedQuantity int       `gorm:"not null;default:0" json:"reserved_quantity"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Available is quantity minus reservations.
func (s *StoreStock) Available() int {
	return s.Quantity - s.ReservedQuantity
}

// InventoryApplication marks that an order's sale was already taken out of stock.
type InventoryApplication struct {
	OrderID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"order_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// LowStockSignal is raised when a sale takes a variant to or below the threshold.
type LowStockSignal struct {
	VariantID uuid.UUID `json:"variant_id"`
	StoreID   uuid.UUID `json:"store_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Remaining int       `json:"remaining"`
	Threshold int       `json:"threshold"`
}
