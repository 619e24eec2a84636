package handlers

import (
	"net/http"

	"ticket-checkout/internal/services"
	"ticket-checkout/internal/status"
	"ticket-checkout/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type PaymentHandler struct {
	paymentService     *services.PaymentService
	checkoutService    *services.CheckoutService
	reservationService *services.ReservationService
}

func NewPaymentHandler(paymentService *services.PaymentService, checkoutService *services.CheckoutService, reservationService *services.ReservationService) *PaymentHandler {
	return &PaymentHandler{
		paymentService:     paymentService,
		checkoutService:    checkoutService,
		reservationService: reservationService,
	}
}

// CreatePayment - open a gateway transaction for a pending checkout or a
// pending reservation. Guest sessions need no auth; everything else only
// accepts its owner.
func (h *PaymentHandler) CreatePayment(e *core.RequestEvent) error {
	var req services.CreateTransactionRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ctx := e.Request.Context()
	if req.CheckoutID != "" {
		sess, err := h.checkoutService.Get(ctx, req.CheckoutID)
		if err != nil {
			return fail(e, err)
		}
		if !sess.IsGuest() && (e.Auth == nil || e.Auth.Id != sess.UserID) {
			return fail(e, status.ErrCheckoutNotFound)
		}
	}
	if req.ReservationID != "" {
		r, err := h.reservationService.Get(ctx, req.ReservationID)
		if err != nil {
			return fail(e, err)
		}
		if e.Auth == nil || e.Auth.Id != r.Holder {
			return fail(e, status.NotFound("reservation", req.ReservationID))
		}
	}

	payment, err := h.paymentService.CreateTransaction(ctx, req)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusCreated, payment)
}

func (h *PaymentHandler) GetPayment(e *core.RequestEvent) error {
	payment, err := h.paymentService.GetTransaction(e.Request.Context(), e.Request.PathValue("reference"))
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, payment)
}

// Webhook - provider callback. A payment held for review answers 202 so the
// provider stops retrying while the checkout stays pending.
func (h *PaymentHandler) Webhook(e *core.RequestEvent) error {
	var n models.PaymentNotification
	if err := e.BindBody(&n); err != nil {
		return apis.NewBadRequestError("Invalid notification", err)
	}

	result, err := h.paymentService.HandleWebhook(e.Request.Context(), n)
	if err != nil {
		return fail(e, err)
	}

	code := http.StatusOK
	if result.ReviewRequired {
		code = http.StatusAccepted
	}
	return e.JSON(code, result)
}

// SimulatePayment - development only, registered when ENVIRONMENT=development
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	result, err := h.paymentService.SimulatePayment(e.Request.Context(), e.Request.PathValue("reference"), req.Status)
	if err != nil {
		return fail(e, err)
	}

	code := http.StatusOK
	if result.ReviewRequired {
		code = http.StatusAccepted
	}
	return e.JSON(code, result)
}
