package routes

import (
	"net/http"

	"github.com/aarthurxk/calibrasil-sub001/common/middleware"
	"github.com/aarthurxk/calibrasil-sub001/common/ratelimit"
	"github.com/aarthurxk/calibrasil-sub001/controllers"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Provider route names accepted by the webhook controller.
const (
	WebhookStripe          = "stripe"
	WebhookPagSeguroLegacy = "pagseguro"
	WebhookPagSeguro       = "pagseguro-v4"
)

// Options carries what route registration needs besides the controllers.
type Options struct {
	Limiter        ratelimit.Limiter
	JWTSecret      string
	AllowedOrigins string
	Logger         *zap.Logger
}

// RegisterRoutes sets up all reconciliation routes.
func RegisterRoutes(r *gin.Engine, wc *controllers.WebhookController, cc *controllers.ConfirmationController, ac *controllers.AdminController, opts Options) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": "order-reconciliation"})
	})

	// Provider webhooks (no auth, authenticated by signature or re-fetch)
	webhooks := r.Group("/webhooks")
	webhooks.POST("/stripe", wc.Handle(WebhookStripe))
	webhooks.POST("/pagseguro", wc.Handle(WebhookPagSeguroLegacy))
	webhooks.POST("/pagseguro/v4", wc.Handle(WebhookPagSeguro))

	// Customer link from the shipping email
	confirm := r.Group("/orders")
	confirm.Use(middleware.CORS(opts.AllowedOrigins))
	if opts.Limiter != nil {
		confirm.Use(middleware.RateLimit(opts.Limiter, "confirm-receipt", opts.Logger))
	}
	confirm.GET("/confirm-receipt", cc.ConfirmReceipt)
	confirm.POST("/confirm-receipt", cc.ConfirmReceipt)
	confirm.OPTIONS("/confirm-receipt", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	// Admin dashboard
	admin := r.Group("/admin")
	admin.Use(middleware.AdminAuth(opts.JWTSecret))
	admin.POST("/orders/:id/status", ac.UpdateStatus)
	admin.GET("/orders/:id", ac.GetOrder)
	admin.GET("/audit-logs", ac.ListAuditLogs)
}
