package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aarthurxk/calibrasil-sub001/models"
	"github.com/aarthurxk/calibrasil-sub001/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InventoryLedger takes confirmed sales out of store stock.
type InventoryLedger struct {
	threshold int
	logger    *zap.Logger
}

// NewInventoryLedger creates a ledger that signals when stock falls to threshold or below.
func NewInventoryLedger(threshold int, logger *zap.Logger) *InventoryLedger {
	return &InventoryLedger{threshold: threshold, logger: logger}
}

// ApplyConfirmedSale decrements stock for every line of the order, at most once
// per order. Stock is floored at zero. Missing variants are logged and skipped;
// any other store error aborts so the whole event can be redelivered.
func (l *InventoryLedger) ApplyConfirmedSale(ctx context.Context, tx repository.Tx, orderID uuid.UUID) ([]models.LowStockSignal, error) {
	claimed, err := tx.ClaimInventory(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("claim inventory: %w", err)
	}
	if !claimed {
		l.logger.Info("Inventory already applied for order", zap.String("order_id", orderID.String()))
		return nil, nil
	}

	items, err := tx.OrderItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}

	var signals []models.LowStockSignal
	for _, item := range items {
		if item.VariantID == nil {
			l.logger.Warn("Order item without variant, skipping stock decrement",
				zap.String("order_id", orderID.String()),
				zap.String("item_id", item.ID.String()),
			)
			continue
		}

		var signal *models.LowStockSignal
		err := tx.Savepoint(ctx, func(sp repository.Tx) error {
			stock, err := sp.LockStock(ctx, *item.VariantID, item.StoreID)
			if err != nil {
				return err
			}

			before := stock.Quantity
			availableBefore := stock.Available()
			after := before - item.Quantity
			if after < 0 {
				l.logger.Warn("Oversell: stock floored at zero",
					zap.String("order_id", orderID.String()),
					zap.String("variant_id", item.VariantID.String()),
					zap.Int("stock", before),
					zap.Int("ordered", item.Quantity),
				)
				after = 0
			}
			if err := sp.SetStockQuantity(ctx, stock.ID, after); err != nil {
				return err
			}

			// reservations held by unpaid carts are not sellable
			stock.Quantity = after
			remaining := stock.Available()
			if availableBefore > l.threshold && remaining <= l.threshold {
				signal = &models.LowStockSignal{
					VariantID: stock.VariantID,
					StoreID:   stock.StoreID,
					OrderID:   orderID,
					Remaining: remaining,
					Threshold: l.threshold,
				}
			}
			return nil
		})

		switch {
		case errors.Is(err, repository.ErrNotFound):
			l.logger.Warn("Variant stock not found, skipping",
				zap.String("order_id", orderID.String()),
				zap.String("variant_id", item.VariantID.String()),
			)
			continue
		case err != nil:
			return nil, fmt.Errorf("decrement variant %s: %w", item.VariantID, err)
		}

		if signal != nil {
			signals = append(signals, *signal)
		}
	}
	return signals, nil
}
