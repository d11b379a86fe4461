package services

import (
	apperrors "github.com/aarthurxk/calibrasil-sub001/common/errors"
	"github.com/aarthurxk/calibrasil-sub001/gateways"
	"github.com/aarthurxk/calibrasil-sub001/models"
)

// EventKind identifies what is asking the order to move.
type EventKind string

const (
	EventPaymentPaid       EventKind = "payment_paid"
	EventPaymentPending    EventKind = "payment_pending"
	EventPaymentCancelled  EventKind = "payment_cancelled"
	EventAdmin             EventKind = "admin"
	EventCustomerConfirmed EventKind = "customer_confirmed"
)

// Event is the input of Next. Target is only read for admin events.
type Event struct {
	Kind   EventKind
	Target models.OrderStatus
}

// Effect is a side effect the caller must run when a transition is applied.
type Effect string

const (
	EffectDecrementInventory     Effect = "decrement_inventory"
	EffectIncrementCoupon        Effect = "increment_coupon"
	EffectSendConfirmationEmail  Effect = "send_confirmation_email"
	EffectSendStatusEmail        Effect = "send_status_email"
	EffectGenerateShippingLabel  Effect = "generate_shipping_label"
	EffectIssueConfirmationToken Effect = "issue_confirmation_token"
	EffectScheduleReviewRequest  Effect = "schedule_review_request"
)

// Transition is the decision taken by Next.
type Transition struct {
	From        models.OrderStatus
	To          models.OrderStatus
	FromPayment models.PaymentStatus
	ToPayment   models.PaymentStatus
	Effects     []Effect
	// NoOp is set when the event is valid but changes nothing.
	NoOp bool
}

// Has reports whether the transition schedules e.
func (t Transition) Has(e Effect) bool {
	for _, x := range t.Effects {
		if x == e {
			return true
		}
	}
	return false
}

// PaidEdge reports whether this transition is the moment payment first becomes paid.
func (t Transition) PaidEdge() bool {
	return !t.NoOp && t.FromPayment != models.PaymentStatusPaid && t.ToPayment == models.PaymentStatusPaid
}

// adminEdges is the manual status graph. Payment requirements are checked separately.
var adminEdges = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:         {models.OrderStatusAwaitingPayment, models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusAwaitingPayment: {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing:      {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:         {models.OrderStatusDelivered, models.OrderStatusCancelled},
}

// Next decides how an order in (status, payment) reacts to ev. It never
// coerces: a move it does not allow comes back as ErrInvalidTransition.
func Next(status models.OrderStatus, payment models.PaymentStatus, ev Event) (Transition, error) {
	t := Transition{From: status, To: status, FromPayment: payment, ToPayment: payment}

	switch ev.Kind {
	case EventPaymentPaid:
		if payment == models.PaymentStatusPaid {
			t.NoOp = true
			return t, nil
		}
		if status == models.OrderStatusCancelled || payment == models.PaymentStatusCancelled {
			return t, apperrors.Wrapf(apperrors.ErrInvalidTransition, "payment confirmed for cancelled order")
		}
		if status == models.OrderStatusPending || status == models.OrderStatusAwaitingPayment {
			t.To = models.OrderStatusProcessing
		}
		t.ToPayment = models.PaymentStatusPaid
		t.Effects = []Effect{EffectDecrementInventory, EffectIncrementCoupon, EffectSendConfirmationEmail}
		return t, nil

	case EventPaymentPending:
		// pending never downgrades a settled payment
		if payment == models.PaymentStatusAwaiting && status == models.OrderStatusPending {
			t.To = models.OrderStatusAwaitingPayment
			return t, nil
		}
		t.NoOp = true
		return t, nil

	case EventPaymentCancelled:
		if status == models.OrderStatusCancelled && payment == models.PaymentStatusCancelled {
			t.NoOp = true
			return t, nil
		}
		t.To = models.OrderStatusCancelled
		t.ToPayment = models.PaymentStatusCancelled
		if status != models.OrderStatusCancelled {
			t.Effects = []Effect{EffectSendStatusEmail}
		}
		return t, nil

	case EventAdmin:
		return nextAdmin(t, ev.Target)

	case EventCustomerConfirmed:
		switch status {
		case models.OrderStatusProcessing, models.OrderStatusShipped:
			t.To = models.OrderStatusDelivered
			t.Effects = []Effect{EffectSendStatusEmail, EffectScheduleReviewRequest}
			return t, nil
		case models.OrderStatusDelivered:
			t.Effects = []Effect{EffectScheduleReviewRequest}
			return t, nil
		}
		return t, apperrors.Wrapf(apperrors.ErrInvalidTransition, "cannot confirm receipt of %s order", status)
	}

	return t, apperrors.Wrapf(apperrors.ErrInvalidTransition, "unknown event %q", ev.Kind)
}

func nextAdmin(t Transition, target models.OrderStatus) (Transition, error) {
	if !target.Valid() {
		return t, apperrors.Wrapf(apperrors.ErrInvalidTransition, "unknown status %q", target)
	}
	if target == t.From {
		return t, apperrors.Wrapf(apperrors.ErrInvalidTransition, "order already %s", target)
	}
	if t.From.Terminal() {
		return t, apperrors.Wrapf(apperrors.ErrInvalidTransition, "%s is final", t.From)
	}

	allowed := false
	for _, s := range adminEdges[t.From] {
		if s == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return t, apperrors.Wrapf(apperrors.ErrInvalidTransition, "%s -> %s", t.From, target)
	}
	if target == models.OrderStatusProcessing && t.FromPayment != models.PaymentStatusPaid {
		return t, apperrors.Wrapf(apperrors.ErrInvalidTransition, "%s -> %s requires a paid order", t.From, target)
	}

	t.To = target
	t.Effects = []Effect{EffectSendStatusEmail}
	switch target {
	case models.OrderStatusShipped:
		t.Effects = append(t.Effects, EffectGenerateShippingLabel, EffectIssueConfirmationToken)
	case models.OrderStatusCancelled:
		if t.FromPayment != models.PaymentStatusPaid {
			t.ToPayment = models.PaymentStatusCancelled
		}
	}
	return t, nil
}

// eventForStatus turns a verified gateway status into a state machine event.
func eventForStatus(s gateways.Status) Event {
	switch s {
	case gateways.StatusPaid:
		return Event{Kind: EventPaymentPaid}
	case gateways.StatusCancelled:
		return Event{Kind: EventPaymentCancelled}
	default:
		return Event{Kind: EventPaymentPending}
	}
}
