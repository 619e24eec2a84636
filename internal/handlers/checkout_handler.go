package handlers

import (
	"net/http"

	"ticket-checkout/internal/services"
	"ticket-checkout/internal/status"
	"ticket-checkout/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type CheckoutHandler struct {
	checkoutService *services.CheckoutService
}

func NewCheckoutHandler(checkoutService *services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: checkoutService}
}

type completeRequest struct {
	PaymentRef string `json:"payment_ref"`
}

// Initiate - snapshot the caller's cart into a pending checkout
func (h *CheckoutHandler) Initiate(e *core.RequestEvent) error {
	uid, err := userID(e)
	if err != nil {
		return err
	}

	body, err := decodeCheckoutBody(e.Request.Body)
	if err != nil {
		return fail(e, err)
	}
	if body.Guest != nil {
		return fail(e, status.Invalid("guest contact is only accepted on guest checkout"))
	}

	sess, err := h.checkoutService.Initiate(e.Request.Context(), services.InitiateRequest{
		CartID:        body.CartID,
		UserID:        uid,
		Billing:       body.Billing,
		PaymentMethod: body.PaymentMethod,
	})
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusCreated, sess)
}

func (h *CheckoutHandler) Get(e *core.RequestEvent) error {
	uid, err := userID(e)
	if err != nil {
		return err
	}

	sess, err := h.owned(e, func(s *models.CheckoutSession) bool { return s.UserID == uid })
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, sess)
}

func (h *CheckoutHandler) Complete(e *core.RequestEvent) error {
	uid, err := userID(e)
	if err != nil {
		return err
	}

	var req completeRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	sess, err := h.owned(e, func(s *models.CheckoutSession) bool { return s.UserID == uid })
	if err != nil {
		return fail(e, err)
	}

	result, err := h.checkoutService.Complete(e.Request.Context(), sess.ID, req.PaymentRef)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, result)
}

func (h *CheckoutHandler) Cancel(e *core.RequestEvent) error {
	uid, err := userID(e)
	if err != nil {
		return err
	}

	sess, err := h.owned(e, func(s *models.CheckoutSession) bool { return s.UserID == uid })
	if err != nil {
		return fail(e, err)
	}
	if err := h.checkoutService.Cancel(e.Request.Context(), sess.ID); err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"checkout_id": sess.ID,
		"status":      models.CheckoutCancelled,
	})
}

// InitiateGuest - checkout for an anonymous cart bound to a contact
func (h *CheckoutHandler) InitiateGuest(e *core.RequestEvent) error {
	body, err := decodeCheckoutBody(e.Request.Body)
	if err != nil {
		return fail(e, err)
	}
	if body.Guest == nil {
		return fail(e, status.Invalid("guest contact is required"))
	}

	sess, err := h.checkoutService.InitiateGuestCheckout(e.Request.Context(),
		body.CartID, *body.Guest, body.Billing, body.PaymentMethod)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusCreated, sess)
}

func (h *CheckoutHandler) GetGuest(e *core.RequestEvent) error {
	sess, err := h.owned(e, (*models.CheckoutSession).IsGuest)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, sess)
}

func (h *CheckoutHandler) CompleteGuest(e *core.RequestEvent) error {
	var req completeRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	result, err := h.checkoutService.CompleteGuestCheckout(e.Request.Context(),
		e.Request.PathValue("checkoutId"), req.PaymentRef)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, result)
}

func (h *CheckoutHandler) CancelGuest(e *core.RequestEvent) error {
	sess, err := h.owned(e, (*models.CheckoutSession).IsGuest)
	if err != nil {
		return fail(e, err)
	}
	if err := h.checkoutService.Cancel(e.Request.Context(), sess.ID); err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"checkout_id": sess.ID,
		"status":      models.CheckoutCancelled,
	})
}

// GuestTickets - order lookup by email and confirmation code
func (h *CheckoutHandler) GuestTickets(e *core.RequestEvent) error {
	query := e.Request.URL.Query()

	order, err := h.checkoutService.GetTicketsByEmailAndCode(e.Request.Context(),
		query.Get("email"), query.Get("code"))
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, order)
}

// owned loads the checkout in the path; sessions the caller may not see
// read as missing.
func (h *CheckoutHandler) owned(e *core.RequestEvent, visible func(*models.CheckoutSession) bool) (*models.CheckoutSession, error) {
	id := e.Request.PathValue("checkoutId")
	sess, err := h.checkoutService.Get(e.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if !visible(sess) {
		return nil, status.ErrCheckoutNotFound
	}
	return sess, nil
}
