package repository

import (
	"context"
	"errors"

	"github.com/aarthurxk/calibrasil-sub001/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// Tx is the set of operations available inside one store transaction.
// Every mutation of an order aggregate happens through a Tx that holds the order lock.
type Tx interface {
	// LockOrder loads the order and holds its row lock until the transaction ends.
	LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	OrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	// UpdateOrder persists the mutable order fields (statuses, gateway, received_at, tracking code).
	UpdateOrder(ctx context.Context, order *models.Order) error

	// RecordCharge inserts into the charge ledger; false means the key was already present.
	RecordCharge(ctx context.Context, charge *models.ProcessedCharge) (bool, error)

	// ClaimInventory marks the order's sale as taken out of stock; false if already claimed.
	ClaimInventory(ctx context.Context, orderID uuid.UUID) (bool, error)
	// LockStock loads a stock row for update. With no store the best-stocked location is used.
	LockStock(ctx context.Context, variantID uuid.UUID, storeID *uuid.UUID) (*models.StoreStock, error)
	SetStockQuantity(ctx context.Context, stockID uuid.UUID, quantity int) error

	// ClaimCouponUsage records the order's coupon usage; false if already recorded.
	ClaimCouponUsage(ctx context.Context, orderID uuid.UUID, code string) (bool, error)
	// IncrementCouponUsage bumps used_count by one; false if no coupon has that code.
	IncrementCouponUsage(ctx context.Context, code string) (bool, error)

	Token(ctx context.Context, orderID uuid.UUID) (*models.ConfirmationToken, error)
	SaveToken(ctx context.Context, token *models.ConfirmationToken) error

	// Savepoint runs fn in a nested scope whose writes are discarded if fn fails.
	Savepoint(ctx context.Context, fn func(tx Tx) error) error
}

// Store owns order aggregates and the ledgers that make their side effects idempotent.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// AuditRepository is the append-only audit trail.
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int64, error)
}

// Models lists every table owned by this service, in migration order.
func Models() []any {
	return []any{
		&models.Order{},
		&models.OrderItem{},
		&models.Coupon{},
		&models.CouponUsage{},
		&models.StoreStock{},
		&models.InventoryApplication{},
		&models.ProcessedCharge{},
		&models.ConfirmationToken{},
		&models.AuditLog{},
	}
}
