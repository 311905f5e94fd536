// README: Payment handlers: admin payment operations and the provider webhook.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"twende/internal/modules/payment"
	"twende/internal/types"
)

// maxWebhookBody caps what is read from an inbound callback.
const maxWebhookBody = 1 << 20

type PaymentService interface {
	StartPayment(ctx context.Context, rideID types.ID) (*payment.Payment, error)
	CheckStatus(ctx context.Context, paymentID types.ID) (*payment.Payment, error)
	CheckRequestStatus(ctx context.Context, paymentID types.ID) (*payment.Payment, error)
	Simulate(ctx context.Context, paymentID types.ID) (*payment.Payment, error)
	Get(ctx context.Context, id types.ID) (*payment.Payment, error)
	GetByRide(ctx context.Context, rideID types.ID) (*payment.Payment, error)
	Responses(ctx context.Context, paymentID types.ID) ([]payment.Response, error)
	HandleCallback(ctx context.Context, raw []byte) string
	HandleOversizedCallback(ctx context.Context, head []byte, limit int64) string
}

type PaymentHandler struct {
	payments PaymentService
}

func NewPaymentHandler(svc PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: svc}
}

// Start creates the ride's payment if needed and initiates the STK push.
func (h *PaymentHandler) Start(c *gin.Context) {
	rideID, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.payments.StartPayment(c.Request.Context(), rideID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (h *PaymentHandler) ForRide(c *gin.Context) {
	rideID, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.payments.GetByRide(c.Request.Context(), rideID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.payments.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (h *PaymentHandler) Responses(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rs, err := h.payments.Responses(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if rs == nil {
		rs = []payment.Response{}
	}
	writeJSON(c, http.StatusOK, gin.H{"responses": rs})
}

func (h *PaymentHandler) Check(c *gin.Context) {
	h.poll(c, h.payments.CheckStatus)
}

func (h *PaymentHandler) CheckRequest(c *gin.Context) {
	h.poll(c, h.payments.CheckRequestStatus)
}

func (h *PaymentHandler) Simulate(c *gin.Context) {
	h.poll(c, h.payments.Simulate)
}

func (h *PaymentHandler) poll(c *gin.Context, op func(context.Context, types.ID) (*payment.Payment, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := op(c.Request.Context(), id)
	if err != nil {
		var perr *payment.ProviderError
		if errors.As(err, &perr) {
			_ = c.Error(err)
			writeJSON(c, statusFor(err), gin.H{
				"error":     perr.Error(),
				"retryable": perr.Retryable(),
				"payment":   p,
			})
			return
		}
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

// Webhook receives provider callbacks, JSON or form encoded. The raw body is
// handed over verbatim and the reply is always the fixed acknowledgement.
// Bodies over maxWebhookBody are recorded as truncated and not reconciled.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		_ = c.Error(err)
		c.String(http.StatusOK, h.payments.HandleOversizedCallback(c.Request.Context(), raw, tooLarge.Limit))
		return
	case err != nil:
		_ = c.Error(err)
	}
	ack := h.payments.HandleCallback(c.Request.Context(), raw)
	c.String(http.StatusOK, ack)
}
