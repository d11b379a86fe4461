package services

import (
	"context"
	"fmt"

	"github.com/aarthurxk/calibrasil-sub001/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CouponAccountant counts coupon usage once per order. Usage is never decremented.
type CouponAccountant struct {
	logger *zap.Logger
}

// NewCouponAccountant creates a new CouponAccountant.
func NewCouponAccountant(logger *zap.Logger) *CouponAccountant {
	return &CouponAccountant{logger: logger}
}

// RecordUsage increments the coupon's used_count unless this order was already counted.
func (a *CouponAccountant) RecordUsage(ctx context.Context, tx repository.Tx, code string, orderID uuid.UUID) (bool, error) {
	claimed, err := tx.ClaimCouponUsage(ctx, orderID, code)
	if err != nil {
		return false, fmt.Errorf("claim coupon usage: %w", err)
	}
	if !claimed {
		a.logger.Info("Coupon usage already recorded",
			zap.String("order_id", orderID.String()),
			zap.String("coupon", code),
		)
		return false, nil
	}

	found, err := tx.IncrementCouponUsage(ctx, code)
	if err != nil {
		return false, fmt.Errorf("increment coupon usage: %w", err)
	}
	if !found {
		a.logger.Warn("Coupon referenced by order does not exist",
			zap.String("order_id", orderID.String()),
			zap.String("coupon", code),
		)
		return false, nil
	}
	return true, nil
}
