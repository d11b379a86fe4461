package services

import (
	"context"
	"errors"
	"net/url"
	"time"

	apperrors "github.com/aarthurxk/calibrasil-sub001/common/errors"
	"github.com/aarthurxk/calibrasil-sub001/models"
	awspkg "github.com/aarthurxk/calibrasil-sub001/pkg/aws"
	"github.com/aarthurxk/calibrasil-sub001/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConfirmationStatus is the enumerated outcome of a receipt confirmation.
type ConfirmationStatus string

const (
	ConfirmationConfirmed        ConfirmationStatus = "confirmed"
	ConfirmationAlreadyConfirmed ConfirmationStatus = "already_confirmed"
	ConfirmationUsed             ConfirmationStatus = "used"
	ConfirmationInvalidToken     ConfirmationStatus = "invalid_token"
	ConfirmationExpired          ConfirmationStatus = "expired"
	ConfirmationNotFound         ConfirmationStatus = "not_found"
	ConfirmationError            ConfirmationStatus = "error"
)

// OK reports whether the customer should see a success page.
func (s ConfirmationStatus) OK() bool {
	return s == ConfirmationConfirmed || s == ConfirmationAlreadyConfirmed || s == ConfirmationUsed
}

// Err maps the outcome onto the error taxonomy; nil for confirmed and already_confirmed.
func (s ConfirmationStatus) Err() error {
	switch s {
	case ConfirmationUsed:
		return apperrors.ErrTokenUsed
	case ConfirmationInvalidToken:
		return apperrors.ErrTokenInvalid
	case ConfirmationExpired:
		return apperrors.ErrTokenExpired
	case ConfirmationNotFound:
		return apperrors.ErrNotFound
	case ConfirmationError:
		return apperrors.ErrInvalidTransition
	}
	return nil
}

var confirmationMessages = map[ConfirmationStatus]string{
	ConfirmationConfirmed:        "Receipt confirmed. Thank you!",
	ConfirmationAlreadyConfirmed: "This order was already confirmed as received.",
	ConfirmationUsed:             "This link was already used to confirm the order.",
	ConfirmationInvalidToken:     "This confirmation link is not valid.",
	ConfirmationExpired:          "This confirmation link has expired.",
	ConfirmationNotFound:         "Order not found.",
	ConfirmationError:            "The order cannot be confirmed right now.",
}

// Message is the customer-facing text for s.
func (s ConfirmationStatus) Message() string {
	return confirmationMessages[s]
}

// ConfirmationService issues and redeems receipt-confirmation links.
type ConfirmationService struct {
	store    repository.Store
	signer   *TokenSigner
	ttl      time.Duration
	baseURL  string
	audit    *AuditService
	notifier Notifier
	metrics  awspkg.MetricsRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewConfirmationService creates a new ConfirmationService.
func NewConfirmationService(store repository.Store, signer *TokenSigner, ttl time.Duration, baseURL string,
	audit *AuditService, notifier Notifier, metrics awspkg.MetricsRecorder, logger *zap.Logger) *ConfirmationService {
	if metrics == nil {
		metrics = awspkg.NopMetrics{}
	}
	return &ConfirmationService{
		store:    store,
		signer:   signer,
		ttl:      ttl,
		baseURL:  baseURL,
		audit:    audit,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// URL builds the customer link for orderID.
func (s *ConfirmationService) URL(orderID uuid.UUID) string {
	q := url.Values{}
	q.Set("orderId", orderID.String())
	q.Set("token", s.signer.Token(orderID))
	return s.baseURL + "?" + q.Encode()
}

// Issue creates or refreshes the order's usage record inside tx and returns the link.
// A consumed record is left untouched.
func (s *ConfirmationService) Issue(ctx context.Context, tx repository.Tx, orderID uuid.UUID) (string, error) {
	rec, err := tx.Token(ctx, orderID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		rec = &models.ConfirmationToken{OrderID: orderID}
	case err != nil:
		return "", err
	}
	if !rec.Used {
		rec.ExpiresAt = s.now().Add(s.ttl)
		if err := tx.SaveToken(ctx, rec); err != nil {
			return "", err
		}
	}
	return s.URL(orderID), nil
}

// Confirm validates the link for orderRef and, when valid, marks the order
// delivered. The whole check-and-set runs under the order lock. The error is
// non-nil only when the store failed; the status is then ConfirmationError and
// the customer may retry.
func (s *ConfirmationService) Confirm(ctx context.Context, orderRef, token string) (ConfirmationStatus, error) {
	orderID, err := uuid.Parse(orderRef)
	if err != nil {
		s.record(ctx, nil, ConfirmationNotFound, nil)
		return ConfirmationNotFound, nil
	}

	var (
		status ConfirmationStatus
		before models.OrderStatus
		order  *models.Order
		tr     Transition
	)
	err = s.store.Transaction(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			status = ConfirmationNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if o.Confirmed() {
			status = ConfirmationAlreadyConfirmed
			return nil
		}
		if !s.signer.Valid(orderID, token) {
			status = ConfirmationInvalidToken
			return nil
		}

		rec, err := tx.Token(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			// no link was ever issued for this order
			status = ConfirmationInvalidToken
			return nil
		}
		if err != nil {
			return err
		}
		now := s.now()
		if rec.Used {
			status = ConfirmationUsed
			return nil
		}
		if rec.Expired(now) {
			status = ConfirmationExpired
			return nil
		}

		tr, err = Next(o.Status, o.PaymentStatus, Event{Kind: EventCustomerConfirmed})
		if err != nil {
			status = ConfirmationError
			return nil
		}

		before = o.Status
		o.Status = tr.To
		o.ReceivedAt = &now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		rec.Used = true
		rec.UsedAt = &now
		if err := tx.SaveToken(ctx, rec); err != nil {
			return err
		}
		order = o
		status = ConfirmationConfirmed
		return nil
	})
	if err != nil {
		s.logger.Error("Receipt confirmation failed", zap.String("order_id", orderID.String()), zap.Error(err))
		s.record(ctx, &orderID, ConfirmationError, err)
		return ConfirmationError, apperrors.Wrap(apperrors.ErrServiceUnavailable, err)
	}

	s.record(ctx, &orderID, status, nil)
	if status != ConfirmationConfirmed {
		return status, nil
	}

	_ = s.metrics.RecordCount(ctx, awspkg.MetricOrdersConfirmed, nil)
	if tr.Has(EffectSendStatusEmail) {
		s.notifier.Notify(ctx, StatusNotification{
			Type:      NotificationStatusChanged,
			Order:     order,
			OldStatus: before,
			NewStatus: order.Status,
		})
	}
	if tr.Has(EffectScheduleReviewRequest) {
		s.notifier.Notify(ctx, StatusNotification{
			Type:      NotificationReviewRequested,
			Order:     order,
			OldStatus: before,
			NewStatus: order.Status,
		})
	}
	return status, nil
}

func (s *ConfirmationService) record(ctx context.Context, orderID *uuid.UUID, status ConfirmationStatus, err error) {
	meta := map[string]any{}
	if err != nil {
		meta["error"] = err.Error()
	}
	s.audit.Record(ctx, AuditRecord{
		Action:   models.AuditTokenValidation,
		OrderID:  orderID,
		Outcome:  string(status),
		Actor:    "customer",
		Metadata: meta,
	})
}
