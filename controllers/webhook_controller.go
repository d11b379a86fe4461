package controllers

import (
	"context"
	"io"
	"net/http"

	apperrors "github.com/aarthurxk/calibrasil-sub001/common/errors"
	"github.com/aarthurxk/calibrasil-sub001/gateways"
	"github.com/aarthurxk/calibrasil-sub001/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBody matches the Stripe SDK's own limit.
const maxWebhookBody = 65536

// NotificationHandler runs an inbound notification through reconciliation.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, p gateways.Provider, header http.Header, body []byte) (*services.ApplyResult, error)
}

// WebhookController receives payment provider notifications.
type WebhookController struct {
	handler   NotificationHandler
	providers map[string]gateways.Provider
	logger    *zap.Logger
}

// NewWebhookController creates a WebhookController serving the given providers,
// keyed by route name.
func NewWebhookController(handler NotificationHandler, providers map[string]gateways.Provider, logger *zap.Logger) *WebhookController {
	return &WebhookController{handler: handler, providers: providers, logger: logger}
}

// Handle returns the handler for the provider registered under name.
func (wc *WebhookController) Handle(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := wc.providers[name]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown gateway"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			wc.logger.Warn("Failed to read webhook body", zap.String("gateway", name), zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}

		res, err := wc.handler.HandleNotification(c.Request.Context(), p, c.Request.Header, body)
		if err != nil {
			status := webhookStatus(err)
			if status >= 500 {
				wc.logger.Error("Webhook processing failed, provider will retry",
					zap.String("gateway", name), zap.Error(err))
			}
			c.JSON(status, gin.H{"status": "rejected", "error": errorMessage(err)})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "received", "outcome": res.Outcome})
	}
}

// webhookStatus decides what the provider sees. Rejections that redelivery can
// never fix are acknowledged so the provider stops retrying.
func webhookStatus(err error) int {
	switch {
	case apperrors.Is(err, apperrors.ErrGatewayMismatch),
		apperrors.Is(err, apperrors.ErrInvalidTransition),
		apperrors.Is(err, apperrors.ErrNotFound):
		return http.StatusOK
	}
	return apperrors.StatusCode(err)
}

func errorMessage(err error) string {
	var appErr *apperrors.Error
	if apperrors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
