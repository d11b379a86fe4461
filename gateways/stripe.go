package gateways

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/aarthurxk/calibrasil-sub001/common/errors"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/charge"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/webhook"
)

// StripeProvider verifies Stripe webhook signatures and re-fetches charges
// through the Stripe API.
type StripeProvider struct {
	webhookSecret  string
	paymentIntents *paymentintent.Client
	charges        *charge.Client
	sessions       *session.Client
}

// NewStripeProvider creates a StripeProvider. A nil backend uses the live API.
func NewStripeProvider(apiKey, webhookSecret string, backend stripe.Backend) *StripeProvider {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &StripeProvider{
		webhookSecret:  webhookSecret,
		paymentIntents: &paymentintent.Client{B: backend, Key: apiKey},
		charges:        &charge.Client{B: backend, Key: apiKey},
		sessions:       &session.Client{B: backend, Key: apiKey},
	}
}

func (p *StripeProvider) Name() string { return GatewayStripe }

// Parse checks the Stripe-Signature header and maps the event object.
func (p *StripeProvider) Parse(header http.Header, body []byte) (*PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(body, header.Get("Stripe-Signature"), p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrParse, "stripe signature: %v", err)
	}
	if event.Data == nil {
		return nil, apperrors.Wrapf(apperrors.ErrParse, "stripe event %s has no data", event.ID)
	}

	ev := &PaymentEvent{
		Gateway:          GatewayStripe,
		EventID:          event.ID,
		EventType:        string(event.Type),
		RawPayloadDigest: Digest(body),
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.processing",
		"payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrParse, "payment intent: %v", err)
		}
		ev.ExternalChargeID = pi.ID
		ev.OrderRef = pi.Metadata["order_id"]
		ev.ClaimedStatus = paymentIntentStatus(pi.Status)
		ev.ClaimedAmount = pi.Amount
		ev.LookupKind, ev.LookupID = LookupPaymentIntent, pi.ID

	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrParse, "checkout session: %v", err)
		}
		ev.OrderRef = sessionOrderRef(&sess)
		ev.ClaimedStatus = checkoutSessionStatus(sess.PaymentStatus)
		ev.ClaimedAmount = sess.AmountTotal
		if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
			ev.ExternalChargeID = sess.PaymentIntent.ID
			ev.LookupKind, ev.LookupID = LookupPaymentIntent, sess.PaymentIntent.ID
		} else {
			ev.ExternalChargeID = sess.ID
			ev.LookupKind, ev.LookupID = LookupCheckoutSession, sess.ID
		}

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrParse, "charge: %v", err)
		}
		ev.ExternalChargeID = chargeKey(&ch)
		ev.OrderRef = ch.Metadata["order_id"]
		ev.ClaimedStatus = StatusCancelled
		ev.ClaimedAmount = ch.Amount
		ev.LookupKind, ev.LookupID = LookupCharge, ch.ID

	case "charge.dispute.created":
		var d stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &d); err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrParse, "dispute: %v", err)
		}
		if d.Charge == nil || d.Charge.ID == "" {
			return nil, apperrors.Wrapf(apperrors.ErrParse, "dispute %s has no charge", d.ID)
		}
		ev.ExternalChargeID = d.Charge.ID
		if d.PaymentIntent != nil && d.PaymentIntent.ID != "" {
			ev.ExternalChargeID = d.PaymentIntent.ID
		}
		ev.ClaimedStatus = StatusCancelled
		ev.ClaimedAmount = d.Amount
		ev.LookupKind, ev.LookupID = LookupCharge, d.Charge.ID

	default:
		return nil, ErrIgnoredEvent
	}

	if ev.LookupID == "" {
		return nil, apperrors.Wrapf(apperrors.ErrParse, "stripe %s event without object id", event.Type)
	}
	return ev, nil
}

// Fetch re-reads the object behind the event from the Stripe API.
func (p *StripeProvider) Fetch(ctx context.Context, ev *PaymentEvent) (*ChargeSnapshot, error) {
	switch ev.LookupKind {
	case LookupPaymentIntent:
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		pi, err := p.paymentIntents.Get(ev.LookupID, params)
		if err != nil {
			return nil, stripeError("payment intent", ev.LookupID, err)
		}
		amount := pi.AmountReceived
		if amount == 0 {
			amount = pi.Amount
		}
		return &ChargeSnapshot{
			ChargeID:  pi.ID,
			OrderRef:  pi.Metadata["order_id"],
			Status:    paymentIntentStatus(pi.Status),
			RawStatus: string(pi.Status),
			Amount:    amount,
		}, nil

	case LookupCharge:
		params := &stripe.ChargeParams{}
		params.Context = ctx
		params.AddExpand("payment_intent")
		ch, err := p.charges.Get(ev.LookupID, params)
		if err != nil {
			return nil, stripeError("charge", ev.LookupID, err)
		}
		orderRef := ch.Metadata["order_id"]
		if orderRef == "" && ch.PaymentIntent != nil {
			orderRef = ch.PaymentIntent.Metadata["order_id"]
		}
		return &ChargeSnapshot{
			ChargeID:  chargeKey(ch),
			OrderRef:  orderRef,
			Status:    chargeStatus(ch),
			RawStatus: string(ch.Status),
			Amount:    ch.Amount,
		}, nil

	case LookupCheckoutSession:
		params := &stripe.CheckoutSessionParams{}
		params.Context = ctx
		sess, err := p.sessions.Get(ev.LookupID, params)
		if err != nil {
			return nil, stripeError("checkout session", ev.LookupID, err)
		}
		return &ChargeSnapshot{
			ChargeID:  sess.ID,
			OrderRef:  sessionOrderRef(sess),
			Status:    checkoutSessionStatus(sess.PaymentStatus),
			RawStatus: string(sess.PaymentStatus),
			Amount:    sess.AmountTotal,
		}, nil
	}
	return nil, fmt.Errorf("stripe: unsupported lookup %q", ev.LookupKind)
}

func paymentIntentStatus(s stripe.PaymentIntentStatus) Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusPaid
	case stripe.PaymentIntentStatusCanceled:
		return StatusCancelled
	default:
		// processing, requires_* and failed attempts leave the customer able to retry
		return StatusPending
	}
}

func checkoutSessionStatus(s stripe.CheckoutSessionPaymentStatus) Status {
	switch s {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return StatusPaid
	default:
		return StatusPending
	}
}

func chargeStatus(ch *stripe.Charge) Status {
	switch {
	case ch.Refunded || ch.Disputed:
		return StatusCancelled
	case ch.Paid && ch.Status == stripe.ChargeStatusSucceeded:
		return StatusPaid
	default:
		return StatusPending
	}
}

// chargeKey prefers the payment intent id so every event of one payment shares a key.
func chargeKey(ch *stripe.Charge) string {
	if ch.PaymentIntent != nil && ch.PaymentIntent.ID != "" {
		return ch.PaymentIntent.ID
	}
	return ch.ID
}

func sessionOrderRef(sess *stripe.CheckoutSession) string {
	if ref := sess.Metadata["order_id"]; ref != "" {
		return ref
	}
	return sess.ClientReferenceID
}

func stripeError(kind, id string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("stripe %s %s: %w", kind, id, ErrChargeNotFound)
	}
	return fmt.Errorf("stripe %s %s: %w", kind, id, err)
}
