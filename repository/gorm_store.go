package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aarthurxk/calibrasil-sub001/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on Postgres using row locks.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Transaction runs fn inside one database transaction.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
}

// FindOrder loads an order with its items, without locking.
func (s *GormStore) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (t *gormTx) OrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := t.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("variant_id").
		Find(&items).Error
	return items, err
}

func (t *gormTx) UpdateOrder(ctx context.Context, order *models.Order) error {
	order.UpdatedAt = time.Now()
	return t.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status":          order.Status,
			"payment_status":  order.PaymentStatus,
			"payment_gateway": order.PaymentGateway,
			"received_at":     order.ReceivedAt,
			"tracking_code":   order.TrackingCode,
			"updated_at":      order.UpdatedAt,
		}).Error
}

func (t *gormTx) RecordCharge(ctx context.Context, charge *models.ProcessedCharge) (bool, error) {
	res := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(charge)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *gormTx) ClaimInventory(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.InventoryApplication{OrderID: orderID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *gormTx) LockStock(ctx context.Context, variantID uuid.UUID, storeID *uuid.UUID) (*models.StoreStock, error) {
	var stock models.StoreStock
	q := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("variant_id = ?", variantID)
	if storeID != nil {
		q = q.Where("store_id = ?", *storeID)
	} else {
		q = q.Order("quantity DESC")
	}
	if err := q.First(&stock).Error; err != nil {
		return nil, notFound(err)
	}
	return &stock, nil
}

func (t *gormTx) SetStockQuantity(ctx context.Context, stockID uuid.UUID, quantity int) error {
	return t.db.WithContext(ctx).
		Model(&models.StoreStock{}).
		Where("id = ?", stockID).
		Update("quantity", quantity).Error
}

func (t *gormTx) ClaimCouponUsage(ctx context.Context, orderID uuid.UUID, code string) (bool, error) {
	res := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CouponUsage{ID: uuid.New(), OrderID: orderID, CouponCode: models.NormalizeCouponCode(code)})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *gormTx) IncrementCouponUsage(ctx context.Context, code string) (bool, error) {
	res := t.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("UPPER(code) = ?", models.NormalizeCouponCode(code)).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (t *gormTx) Token(ctx context.Context, orderID uuid.UUID) (*models.ConfirmationToken, error) {
	var token models.ConfirmationToken
	if err := t.db.WithContext(ctx).First(&token, "order_id = ?", orderID).Error; err != nil {
		return nil, notFound(err)
	}
	return &token, nil
}

func (t *gormTx) SaveToken(ctx context.Context, token *models.ConfirmationToken) error {
	return t.db.WithContext(ctx).Save(token).Error
}

func (t *gormTx) Savepoint(ctx context.Context, fn func(tx Tx) error) error {
	return t.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
