package controllers

import (
	"context"
	"net/http"
	"strconv"

	apperrors "github.com/aarthurxk/calibrasil-sub001/common/errors"
	"github.com/aarthurxk/calibrasil-sub001/common/middleware"
	"github.com/aarthurxk/calibrasil-sub001/models"
	"github.com/aarthurxk/calibrasil-sub001/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderAdmin is what the dashboard can do with orders.
type OrderAdmin interface {
	ChangeStatus(ctx context.Context, req services.AdminStatusChange) (*services.ApplyResult, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// AuditLister lists audit entries.
type AuditLister interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int64, error)
}

// AdminController handles the admin dashboard endpoints.
type AdminController struct {
	orders OrderAdmin
	audit  AuditLister
}

// NewAdminController creates a new AdminController.
func NewAdminController(orders OrderAdmin, audit AuditLister) *AdminController {
	return &AdminController{orders: orders, audit: audit}
}

// UpdateStatus handles POST /admin/orders/:id/status.
func (ac *AdminController) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req models.AdminStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	res, err := ac.orders.ChangeStatus(c.Request.Context(), services.AdminStatusChange{
		OrderID:      id,
		NewStatus:    req.Status,
		Actor:        middleware.GetActor(c),
		TrackingCode: req.TrackingCode,
		ServiceType:  req.ServiceType,
	})
	if err != nil {
		code := apperrors.StatusCode(err)
		resp := gin.H{"error": errorMessage(err)}
		if code < http.StatusInternalServerError {
			resp["details"] = err.Error()
		}
		c.JSON(code, resp)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":       res.OrderID,
		"status":         res.Transition.To,
		"payment_status": res.Transition.ToPayment,
		"previous":       res.Transition.From,
	})
}

// GetOrder handles GET /admin/orders/:id.
func (ac *AdminController) GetOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, err := ac.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperrors.StatusCode(err), gin.H{"error": errorMessage(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// ListAuditLogs handles GET /admin/audit-logs.
func (ac *AdminController) ListAuditLogs(c *gin.Context) {
	filter := models.AuditFilter{Action: c.Query("action")}
	if v := c.Query("order_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
			return
		}
		filter.OrderID = &id
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	logs, total, err := ac.audit.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"audit_logs": logs,
		"meta": gin.H{
			"limit":  filter.Limit,
			"offset": filter.Offset,
			"total":  total,
		},
	})
}
