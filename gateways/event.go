package gateways

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
)

// Gateway identifiers as recorded on orders.
const (
	GatewayStripe    = "stripe"
	GatewayPagSeguro = "pagseguro"
)

// Status is the normalized payment status of a charge.
type Status string

const (
	StatusPaid      Status = "paid"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
)

// Lookup kinds tell a provider which object to re-fetch.
const (
	LookupPaymentIntent   = "payment_intent"
	LookupCharge          = "charge"
	LookupCheckoutSession = "checkout_session"
	LookupNotification    = "notification"
	LookupOrder           = "order"
)

var (
	// ErrIgnoredEvent marks a well-formed notification this service does not act on.
	ErrIgnoredEvent = errors.New("event type not handled")
	// ErrChargeNotFound means the provider has no record of the referenced charge.
	ErrChargeNotFound = errors.New("charge not found at provider")
)

// PaymentEvent is one normalized notification. Claimed fields come from the
// payload; Verified fields are only set after an authoritative re-fetch.
type PaymentEvent struct {
	Gateway   string
	EventID   string
	EventType string

	ExternalChargeID string
	OrderRef         string

	ClaimedStatus Status
	ClaimedAmount int64

	VerifiedStatus Status
	Amount         int64
	Verified       bool

	LookupKind string
	LookupID   string

	RawPayloadDigest string
}

// ChargeSnapshot is the provider's own view of a charge.
type ChargeSnapshot struct {
	ChargeID  string
	OrderRef  string
	Status    Status
	RawStatus string
	Amount    int64
}

// Provider adapts one payment provider's notifications.
type Provider interface {
	// Name is the gateway id recorded on orders.
	Name() string
	// Parse turns a raw notification into an unverified event. It does no I/O.
	Parse(header http.Header, body []byte) (*PaymentEvent, error)
	// Fetch asks the provider for the authoritative state of the event's charge.
	Fetch(ctx context.Context, ev *PaymentEvent) (*ChargeSnapshot, error)
}

// Digest is the hex SHA-256 of a raw payload.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
