package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/pkg/response"
)

type paymentRecorder interface {
	RecordPayment(ctx context.Context, note dto.PaymentNotification) (*models.AdmissionRequest, error)
}

// PaymentHandler receives payment status signals.
type PaymentHandler struct {
	payments paymentRecorder
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments paymentRecorder) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Notify godoc
// @Summary Record a payment status signal
// @Tags Payments
// @Accept json
// @Produce json
// @Param X-Notification-Token header string false "Shared callback secret"
// @Param payload body dto.PaymentNotification true "Payment signal"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /payments/notifications [post]
func (h *PaymentHandler) Notify(c *gin.Context) {
	var note dto.PaymentNotification
	if err := c.ShouldBindJSON(&note); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	request, err := h.payments.RecordPayment(c.Request.Context(), note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"requestId": request.ID, "paymentStatus": request.PaymentStatus}, nil)
}
