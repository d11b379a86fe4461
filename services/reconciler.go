package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/aarthurxk/calibrasil-sub001/common/errors"
	"github.com/aarthurxk/calibrasil-sub001/gateways"
	"github.com/aarthurxk/calibrasil-sub001/models"
	awspkg "github.com/aarthurxk/calibrasil-sub001/pkg/aws"
	"github.com/aarthurxk/calibrasil-sub001/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcomes beyond the audit constants.
const (
	OutcomeIgnored  = "ignored"
	OutcomeNoChange = "no_change"
)

// ApplyResult describes what a payment event or admin change did.
type ApplyResult struct {
	OrderID    uuid.UUID
	Outcome    string
	Transition Transition
	LowStock   []models.LowStockSignal
}

// AdminStatusChange is a manual status change requested from the dashboard.
type AdminStatusChange struct {
	OrderID      uuid.UUID
	NewStatus    models.OrderStatus
	Actor        string
	TrackingCode string
	ServiceType  string
}

// ReconcilerDeps bundles constructor inputs for the Reconciler.
type ReconcilerDeps struct {
	Store         repository.Store
	Verifier      *gateways.Verifier
	Inventory     *InventoryLedger
	Coupons       *CouponAccountant
	Confirmations *ConfirmationService
	Audit         *AuditService
	Notifier      Notifier
	Labels        LabelGenerator
	LowStock      *LowStockPublisher
	Archive       *PayloadArchive
	Metrics       awspkg.MetricsRecorder
	Logger        *zap.Logger
}

// Reconciler turns verified payment events and admin changes into order state.
type Reconciler struct {
	store         repository.Store
	verifier      *gateways.Verifier
	inventory     *InventoryLedger
	coupons       *CouponAccountant
	confirmations *ConfirmationService
	audit         *AuditService
	notifier      Notifier
	labels        LabelGenerator
	lowStock      *LowStockPublisher
	archive       *PayloadArchive
	metrics       awspkg.MetricsRecorder
	logger        *zap.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler(deps ReconcilerDeps) *Reconciler {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = awspkg.NopMetrics{}
	}
	return &Reconciler{
		store:         deps.Store,
		verifier:      deps.Verifier,
		inventory:     deps.Inventory,
		coupons:       deps.Coupons,
		confirmations: deps.Confirmations,
		audit:         deps.Audit,
		notifier:      deps.Notifier,
		labels:        deps.Labels,
		lowStock:      deps.LowStock,
		archive:       deps.Archive,
		metrics:       metrics,
		logger:        deps.Logger,
	}
}

// HandleNotification runs one inbound webhook through parse, verification and
// apply. Exactly one audit entry is written per notification that names an event.
func (r *Reconciler) HandleNotification(ctx context.Context, p gateways.Provider, header http.Header, body []byte) (*ApplyResult, error) {
	ev, err := p.Parse(header, body)
	if errors.Is(err, gateways.ErrIgnoredEvent) {
		r.logger.Info("Ignoring webhook event", zap.String("gateway", p.Name()))
		return &ApplyResult{Outcome: OutcomeIgnored}, nil
	}
	if err != nil {
		r.logger.Warn("Malformed webhook", zap.String("gateway", p.Name()), zap.Error(err))
		return nil, err
	}

	r.archive.Store(ctx, ev.Gateway, ev.RawPayloadDigest, header.Get("Content-Type"), body)

	if _, err := r.verifier.Verify(ctx, p, ev); err != nil {
		outcome := rejectionOutcome(err)
		r.logger.Warn("Payment event rejected",
			zap.String("gateway", ev.Gateway),
			zap.String("event_id", ev.EventID),
			zap.String("order_ref", ev.OrderRef),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		r.recordEvent(ctx, ev, nil, outcome, err)
		r.count(ctx, awspkg.MetricPaymentEventRejected, ev.Gateway)
		return nil, err
	}

	res, err := r.Apply(ctx, ev)
	if err != nil {
		outcome := rejectionOutcome(err)
		orderID := orderIDFromRef(ev.OrderRef)
		r.recordEvent(ctx, ev, orderID, outcome, err)
		r.count(ctx, awspkg.MetricPaymentEventRejected, ev.Gateway)
		return nil, err
	}

	r.recordEvent(ctx, ev, &res.OrderID, res.Outcome, nil)
	return res, nil
}

// Apply applies a verified event under the order lock. The charge ledger makes
// redelivery of the same charge and status a no-op; the paid edge gates the
// inventory and coupon side effects.
func (r *Reconciler) Apply(ctx context.Context, ev *gateways.PaymentEvent) (*ApplyResult, error) {
	if !ev.Verified {
		return nil, apperrors.Wrapf(apperrors.ErrVerification, "event %s was not verified", ev.EventID)
	}
	orderID, err := uuid.Parse(ev.OrderRef)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "order reference %q", ev.OrderRef)
	}

	res := &ApplyResult{OrderID: orderID}
	var order *models.Order

	err = r.store.Transaction(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.Wrapf(apperrors.ErrNotFound, "order %s", orderID)
		}
		if err != nil {
			return err
		}
		if gw := o.Gateway(); gw != "" && gw != ev.Gateway {
			return apperrors.Wrapf(apperrors.ErrGatewayMismatch, "order %s belongs to %s", orderID, gw)
		}

		inserted, err := tx.RecordCharge(ctx, &models.ProcessedCharge{
			Gateway:          ev.Gateway,
			ExternalChargeID: ev.ExternalChargeID,
			VerifiedStatus:   string(ev.VerifiedStatus),
			OrderID:          orderID,
			PayloadDigest:    ev.RawPayloadDigest,
			Outcome:          models.OutcomeApplied,
		})
		if err != nil {
			return err
		}
		if !inserted {
			res.Outcome = models.OutcomeDuplicate
			return nil
		}

		tr, err := Next(o.Status, o.PaymentStatus, eventForStatus(ev.VerifiedStatus))
		if err != nil {
			return err
		}
		res.Transition = tr
		if tr.NoOp {
			res.Outcome = OutcomeNoChange
			if ev.VerifiedStatus == gateways.StatusPaid {
				res.Outcome = models.OutcomeDuplicate
			}
			return nil
		}

		o.Status = tr.To
		o.PaymentStatus = tr.ToPayment
		if tr.PaidEdge() && o.PaymentGateway == nil {
			gw := ev.Gateway
			o.PaymentGateway = &gw
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}

		if tr.Has(EffectDecrementInventory) {
			signals, err := r.inventory.ApplyConfirmedSale(ctx, tx, orderID)
			if err != nil {
				return err
			}
			res.LowStock = signals
		}
		if code := o.Coupon(); code != "" && tr.Has(EffectIncrementCoupon) {
			if _, err := r.coupons.RecordUsage(ctx, tx, code, orderID); err != nil {
				return err
			}
		}

		order = o
		res.Outcome = models.OutcomeApplied
		return nil
	})
	if err != nil {
		if _, ok := asAppError(err); !ok {
			err = apperrors.Wrap(apperrors.ErrDatabaseTransaction, err)
		}
		return nil, err
	}

	r.logger.Info("Payment event reconciled",
		zap.String("order_id", orderID.String()),
		zap.String("gateway", ev.Gateway),
		zap.String("charge_id", ev.ExternalChargeID),
		zap.String("verified_status", string(ev.VerifiedStatus)),
		zap.String("outcome", res.Outcome),
	)

	switch res.Outcome {
	case models.OutcomeApplied:
		r.count(ctx, awspkg.MetricPaymentEventApplied, ev.Gateway)
	case models.OutcomeDuplicate:
		r.count(ctx, awspkg.MetricPaymentEventDuplicate, ev.Gateway)
	}
	if order == nil {
		return res, nil
	}

	tr := res.Transition
	switch {
	case tr.Has(EffectSendConfirmationEmail):
		r.notifier.Notify(ctx, StatusNotification{Type: NotificationOrderConfirmed, Order: order, OldStatus: tr.From, NewStatus: tr.To})
	case tr.Has(EffectSendStatusEmail):
		r.notifier.Notify(ctx, StatusNotification{Type: NotificationStatusChanged, Order: order, OldStatus: tr.From, NewStatus: tr.To})
	}
	r.lowStock.Publish(ctx, res.LowStock)
	return res, nil
}

// ChangeStatus applies an admin status change. It skips payment verification
// but goes through the same state machine.
func (r *Reconciler) ChangeStatus(ctx context.Context, req AdminStatusChange) (*ApplyResult, error) {
	trackingCode := strings.TrimSpace(req.TrackingCode)

	// Labels are generated before taking the lock so the row is not held across the call.
	if req.NewStatus == models.OrderStatusShipped && trackingCode == "" && r.labels != nil {
		if current, err := r.store.FindOrder(ctx, req.OrderID); err == nil {
			if tr, err := Next(current.Status, current.PaymentStatus, Event{Kind: EventAdmin, Target: req.NewStatus}); err == nil && tr.Has(EffectGenerateShippingLabel) {
				code, err := r.labels.GenerateLabel(ctx, req.OrderID, req.ServiceType)
				if err != nil {
					r.logger.Error("Shipping label generation failed, shipping without tracking code",
						zap.String("order_id", req.OrderID.String()),
						zap.Error(err),
					)
				} else {
					trackingCode = code
				}
			}
		}
	}

	res := &ApplyResult{OrderID: req.OrderID}
	var (
		order           *models.Order
		confirmationURL string
	)
	err := r.store.Transaction(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, req.OrderID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.Wrapf(apperrors.ErrNotFound, "order %s", req.OrderID)
		}
		if err != nil {
			return err
		}

		tr, err := Next(o.Status, o.PaymentStatus, Event{Kind: EventAdmin, Target: req.NewStatus})
		if err != nil {
			return err
		}
		res.Transition = tr

		o.Status = tr.To
		o.PaymentStatus = tr.ToPayment
		if trackingCode != "" {
			o.TrackingCode = &trackingCode
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if tr.Has(EffectIssueConfirmationToken) {
			confirmationURL, err = r.confirmations.Issue(ctx, tx, o.ID)
			if err != nil {
				return fmt.Errorf("issue confirmation token: %w", err)
			}
		}
		order = o
		res.Outcome = models.OutcomeApplied
		return nil
	})

	meta := map[string]any{"requested_status": string(req.NewStatus)}
	if err != nil {
		if _, ok := asAppError(err); !ok {
			err = apperrors.Wrap(apperrors.ErrDatabaseTransaction, err)
		}
		meta["error"] = err.Error()
		orderID := req.OrderID
		r.audit.Record(ctx, AuditRecord{
			Action:   models.AuditAdminStatusChange,
			OrderID:  &orderID,
			Outcome:  rejectionOutcome(err),
			Actor:    req.Actor,
			Metadata: meta,
		})
		return nil, err
	}

	tr := res.Transition
	meta["from"] = string(tr.From)
	meta["to"] = string(tr.To)
	if trackingCode != "" {
		meta["tracking_code"] = trackingCode
	}
	r.audit.Record(ctx, AuditRecord{
		Action:   models.AuditAdminStatusChange,
		OrderID:  &order.ID,
		Outcome:  models.OutcomeApplied,
		Actor:    req.Actor,
		Metadata: meta,
	})
	if confirmationURL != "" {
		r.audit.Record(ctx, AuditRecord{
			Action:  models.AuditTokenIssued,
			OrderID: &order.ID,
			Outcome: models.OutcomeApplied,
			Actor:   req.Actor,
		})
	}

	r.logger.Info("Order status changed by admin",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.String("actor", req.Actor),
	)

	r.notifier.Notify(ctx, StatusNotification{
		Type:            NotificationStatusChanged,
		Order:           order,
		OldStatus:       tr.From,
		NewStatus:       tr.To,
		ConfirmationURL: confirmationURL,
	})
	return res, nil
}

// GetOrder returns an order with its items.
func (r *Reconciler) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := r.store.FindOrder(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "order %s", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabaseQuery, err)
	}
	return order, nil
}

func (r *Reconciler) recordEvent(ctx context.Context, ev *gateways.PaymentEvent, orderID *uuid.UUID, outcome string, err error) {
	meta := map[string]any{
		"event_id":        ev.EventID,
		"event_type":      ev.EventType,
		"charge_id":       ev.ExternalChargeID,
		"claimed_status":  string(ev.ClaimedStatus),
		"verified_status": string(ev.VerifiedStatus),
		"amount":          ev.Amount,
		"payload_digest":  ev.RawPayloadDigest,
	}
	if err != nil {
		meta["error"] = err.Error()
	}
	r.audit.Record(ctx, AuditRecord{
		Action:   models.AuditPaymentEvent,
		OrderID:  orderID,
		Outcome:  outcome,
		Actor:    ev.Gateway,
		Metadata: meta,
	})
}

func (r *Reconciler) count(ctx context.Context, metric, gateway string) {
	_ = r.metrics.RecordCount(ctx, metric, map[string]string{"Gateway": gateway})
}

func rejectionOutcome(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrGatewayMismatch):
		return models.OutcomeGatewayMismatch
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return models.OutcomeInvalidTransition
	case errors.Is(err, apperrors.ErrNotFound):
		return models.OutcomeNotFound
	case errors.Is(err, apperrors.ErrVerification), errors.Is(err, apperrors.ErrUnknownCharge):
		return models.OutcomeVerificationFailed
	default:
		return models.OutcomeRejected
	}
}

func orderIDFromRef(ref string) *uuid.UUID {
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil
	}
	return &id
}

func asAppError(err error) (*apperrors.Error, bool) {
	var appErr *apperrors.Error
	ok := apperrors.As(err, &appErr)
	return appErr, ok
}
