package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aarthurxk/calibrasil-sub001/models"
	awspkg "github.com/aarthurxk/calibrasil-sub001/pkg/aws"
	"go.uber.org/zap"
)

// Notification event types consumed by the notification service.
const (
	NotificationOrderConfirmed  = "order_confirmed"
	NotificationStatusChanged   = "order_status_changed"
	NotificationReviewRequested = "review_requested"
)

// StatusNotification is a customer-facing status update.
type StatusNotification struct {
	Type            string
	Order           *models.Order
	OldStatus       models.OrderStatus
	NewStatus       models.OrderStatus
	ConfirmationURL string
}

// Notifier sends customer notifications. Implementations must not fail the caller.
type Notifier interface {
	Notify(ctx context.Context, n StatusNotification)
}

// SNSNotifier publishes notifications to the notification service topic.
type SNSNotifier struct {
	publisher awspkg.SNSPublisher
	topicArn  string
	logger    *zap.Logger
	timeout   time.Duration
}

// NewSNSNotifier creates a new SNSNotifier.
func NewSNSNotifier(publisher awspkg.SNSPublisher, topicArn string, logger *zap.Logger) *SNSNotifier {
	return &SNSNotifier{publisher: publisher, topicArn: topicArn, logger: logger, timeout: 5 * time.Second}
}

// Notify publishes n. Errors are logged only.
func (s *SNSNotifier) Notify(ctx context.Context, n StatusNotification) {
	if s.publisher == nil || s.topicArn == "" {
		s.logger.Debug("Notification topic not configured, skipping", zap.String("type", n.Type))
		return
	}

	event := models.StatusChangedEvent{
		EventType:       n.Type,
		OrderID:         n.Order.ID.String(),
		CustomerEmail:   n.Order.CustomerEmail,
		CustomerName:    n.Order.CustomerName,
		OldStatus:       string(n.OldStatus),
		NewStatus:       string(n.NewStatus),
		ConfirmationURL: n.ConfirmationURL,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	if event.CustomerEmail == "" && n.Order.GuestEmail != nil {
		event.CustomerEmail = *n.Order.GuestEmail
	}
	if n.Order.TrackingCode != nil {
		event.TrackingCode = *n.Order.TrackingCode
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal notification", zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, s.topicArn, payload, map[string]string{"event_type": n.Type}); err != nil {
		s.logger.Error("Failed to publish notification",
			zap.String("type", n.Type),
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("Notification published",
		zap.String("type", n.Type),
		zap.String("order_id", event.OrderID),
		zap.String("new_status", event.NewStatus),
	)
}
