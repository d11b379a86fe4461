package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aarthurxk/calibrasil-sub001/models"
	"github.com/google/uuid"
)

var now = time.Now

// memState is one snapshot of everything the memory store holds.
type memState struct {
	orders      map[uuid.UUID]models.Order
	charges     map[string]models.ProcessedCharge
	inventory   map[uuid.UUID]time.Time
	stock       map[uuid.UUID]models.StoreStock
	coupons     map[string]models.Coupon
	couponUsage map[uuid.UUID]models.CouponUsage
	tokens      map[uuid.UUID]models.ConfirmationToken
}

func newMemState() *memState {
	return &memState{
		orders:      make(map[uuid.UUID]models.Order),
		charges:     make(map[string]models.ProcessedCharge),
		inventory:   make(map[uuid.UUID]time.Time),
		stock:       make(map[uuid.UUID]models.StoreStock),
		coupons:     make(map[string]models.Coupon),
		couponUsage: make(map[uuid.UUID]models.CouponUsage),
		tokens:      make(map[uuid.UUID]models.ConfirmationToken),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.orders {
		v.Items = append([]models.OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.charges {
		c.charges[k] = v
	}
	for k, v := range s.inventory {
		c.inventory[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, v := range s.coupons {
		c.coupons[k] = v
	}
	for k, v := range s.couponUsage {
		c.couponUsage[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

// MemoryStore is an in-process Store. Transactions are serialized and run on a
// copy of the state that replaces it only on success, so a failed transaction
// leaves nothing behind.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) FindOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return &o, nil
}

// PutOrder inserts or replaces an order with its items.
func (s *MemoryStore) PutOrder(order models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now()
	}
	s.state.orders[order.ID] = order
}

// PutStock inserts or replaces a stock row.
func (s *MemoryStore) PutStock(stock models.StoreStock) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stock.ID == uuid.Nil {
		stock.ID = uuid.New()
	}
	s.state.stock[stock.ID] = stock
	return stock.ID
}

// Stock returns a copy of a stock row.
func (s *MemoryStore) Stock(id uuid.UUID) (models.StoreStock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state.stock[id]
	return st, ok
}

// PutCoupon inserts or replaces a coupon.
func (s *MemoryStore) PutCoupon(coupon models.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	s.state.coupons[models.NormalizeCouponCode(coupon.Code)] = coupon
}

// Coupon returns a copy of a coupon by code.
func (s *MemoryStore) Coupon(code string) (models.Coupon, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.coupons[models.NormalizeCouponCode(code)]
	return c, ok
}

// Charges returns the number of ledger entries.
func (s *MemoryStore) Charges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.charges)
}

// TokenRecord returns a copy of an order's token usage record.
func (s *MemoryStore) TokenRecord(orderID uuid.UUID) (models.ConfirmationToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.tokens[orderID]
	return t, ok
}

type memTx struct {
	st *memState
}

func (t *memTx) LockOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Items = nil
	return &o, nil
}

func (t *memTx) OrderItems(_ context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	o, ok := t.st.orders[orderID]
	if !ok {
		return nil, nil
	}
	items := append([]models.OrderItem(nil), o.Items...)
	sort.SliceStable(items, func(i, j int) bool {
		return variantKey(items[i]) < variantKey(items[j])
	})
	return items, nil
}

func (t *memTx) UpdateOrder(_ context.Context, order *models.Order) error {
	cur, ok := t.st.orders[order.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = order.Status
	cur.PaymentStatus = order.PaymentStatus
	cur.PaymentGateway = order.PaymentGateway
	cur.ReceivedAt = order.ReceivedAt
	cur.TrackingCode = order.TrackingCode
	cur.UpdatedAt = now()
	t.st.orders[order.ID] = cur
	return nil
}

func (t *memTx) RecordCharge(_ context.Context, charge *models.ProcessedCharge) (bool, error) {
	key := fmt.Sprintf("%s|%s|%s", charge.Gateway, charge.ExternalChargeID, charge.VerifiedStatus)
	if _, ok := t.st.charges[key]; ok {
		return false, nil
	}
	if charge.ID == uuid.Nil {
		charge.ID = uuid.New()
	}
	charge.CreatedAt = now()
	t.st.charges[key] = *charge
	return true, nil
}

func (t *memTx) ClaimInventory(_ context.Context, orderID uuid.UUID) (bool, error) {
	if _, ok := t.st.inventory[orderID]; ok {
		return false, nil
	}
	t.st.inventory[orderID] = now()
	return true, nil
}

func (t *memTx) LockStock(_ context.Context, variantID uuid.UUID, storeID *uuid.UUID) (*models.StoreStock, error) {
	var best *models.StoreStock
	for _, st := range t.st.stock {
		if st.VariantID != variantID {
			continue
		}
		if storeID != nil {
			if st.StoreID == *storeID {
				s := st
				return &s, nil
			}
			continue
		}
		if best == nil || st.Quantity > best.Quantity {
			s := st
			best = &s
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (t *memTx) SetStockQuantity(_ context.Context, stockID uuid.UUID, quantity int) error {
	st, ok := t.st.stock[stockID]
	if !ok {
		return ErrNotFound
	}
	st.Quantity = quantity
	st.UpdatedAt = now()
	t.st.stock[stockID] = st
	return nil
}

func (t *memTx) ClaimCouponUsage(_ context.Context, orderID uuid.UUID, code string) (bool, error) {
	if _, ok := t.st.couponUsage[orderID]; ok {
		return false, nil
	}
	t.st.couponUsage[orderID] = models.CouponUsage{
		ID:         uuid.New(),
		OrderID:    orderID,
		CouponCode: models.NormalizeCouponCode(code),
		CreatedAt:  now(),
	}
	return true, nil
}

func (t *memTx) IncrementCouponUsage(_ context.Context, code string) (bool, error) {
	key := models.NormalizeCouponCode(code)
	c, ok := t.st.coupons[key]
	if !ok {
		return false, nil
	}
	c.UsedCount++
	t.st.coupons[key] = c
	return true, nil
}

func (t *memTx) Token(_ context.Context, orderID uuid.UUID) (*models.ConfirmationToken, error) {
	tok, ok := t.st.tokens[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return &tok, nil
}

func (t *memTx) SaveToken(_ context.Context, token *models.ConfirmationToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now()
	}
	t.st.tokens[token.OrderID] = *token
	return nil
}

func (t *memTx) Savepoint(_ context.Context, fn func(tx Tx) error) error {
	sub := t.st.clone()
	if err := fn(&memTx{st: sub}); err != nil {
		return err
	}
	*t.st = *sub
	return nil
}

func variantKey(it models.OrderItem) string {
	if it.VariantID == nil {
		return ""
	}
	return it.VariantID.String()
}
