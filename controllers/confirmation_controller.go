package controllers

import (
	"context"
	"net/http"

	apperrors "github.com/aarthurxk/calibrasil-sub001/common/errors"
	"github.com/aarthurxk/calibrasil-sub001/models"
	"github.com/aarthurxk/calibrasil-sub001/services"
	"github.com/gin-gonic/gin"
)

// Confirmer redeems receipt-confirmation links.
type Confirmer interface {
	Confirm(ctx context.Context, orderRef, token string) (services.ConfirmationStatus, error)
}

// ConfirmationController serves the customer "I received my order" link.
type ConfirmationController struct {
	confirmer Confirmer
}

// NewConfirmationController creates a new ConfirmationController.
func NewConfirmationController(confirmer Confirmer) *ConfirmationController {
	return &ConfirmationController{confirmer: confirmer}
}

// ConfirmReceipt handles GET and POST /orders/confirm-receipt.
func (cc *ConfirmationController) ConfirmReceipt(c *gin.Context) {
	var req models.ConfirmReceiptRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBind(&req)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ConfirmReceiptResponse{
			OK:      false,
			Status:  string(services.ConfirmationInvalidToken),
			Message: "orderId and token are required",
		})
		return
	}

	status, err := cc.confirmer.Confirm(c.Request.Context(), req.OrderID, req.Token)
	if err != nil {
		_ = c.Error(err)
		c.JSON(apperrors.StatusCode(err), models.ConfirmReceiptResponse{
			OK:      false,
			Status:  string(status),
			Message: "Confirmation is temporarily unavailable. Please try again in a few minutes.",
		})
		return
	}

	code := http.StatusOK
	if err := status.Err(); err != nil {
		code = apperrors.StatusCode(err)
	}
	c.JSON(code, models.ConfirmReceiptResponse{
		OK:      status.OK(),
		Status:  string(status),
		Message: status.Message(),
	})
}
