package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the business lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusAwaitingPayment, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentStatus is the financial lifecycle of an order.
type PaymentStatus string

const (
	PaymentStatusAwaiting  PaymentStatus = "awaiting_payment"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Order is the aggregate root reconciled by payment events.
type Order struct {
	ID             uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Status         OrderStatus   `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	PaymentStatus  PaymentStatus `gorm:"type:varchar(32);not null;default:'awaiting_payment'" json:"payment_status"`
	PaymentGateway *string       `gorm:"type:varchar(32)" json:"payment_gateway,omitempty"`
	Total          int64         `gorm:"not null" json:"total"` // minor units
	CouponCode     *string       `gorm:"type:varchar(64)" json:"coupon_code,omitempty"`
	ReceivedAt     *time.Time    `json:"received_at,omitempty"`
	GuestEmail     *string       `gorm:"type:varchar(255);index" json:"guest_email,omitempty"`
	UserID         *uuid.UUID    `gorm:"type:uuid;index" json:"user_id,omitempty"`
	CustomerName   string        `gorm:"type:varchar(255)" json:"customer_name"`
	CustomerEmail  string        `gorm:"type:varchar(255)" json:"customer_email"`
	TrackingCode   *string       `gorm:"type:varchar(64)" json:"tracking_code,omitempty"`
	Items          []OrderItem   `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderItem is a line of an order. Price is the snapshot taken at checkout.
type OrderItem struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID *uuid.UUID `gorm:"type:uuid" json:"product_id,omitempty"`
	VariantID *uuid.UUID `gorm:"type:uuid" json:"variant_id,omitempty"`
	StoreID   *uuid.UUID `gorm:"type:uuid" json:"store_id,omitempty"`
	Quantity  int        `gorm:"not null" json:"quantity"`
	Price     int64      `gorm:"not null" json:"price"`
}

// Gateway returns the owning gateway or "" when none is recorded yet.
func (o *Order) Gateway() string {
	if o.PaymentGateway == nil {
		return ""
	}
	return *o.PaymentGateway
}

// Coupon returns the coupon code used at checkout or "".
func (o *Order) Coupon() string {
	if o.CouponCode == nil {
		return ""
	}
	return *o.CouponCode
}

// Confirmed reports whether the customer already confirmed receipt.
func (o *Order) Confirmed() bool {
	return o.Status == OrderStatusDelivered && o.ReceivedAt != nil
}
