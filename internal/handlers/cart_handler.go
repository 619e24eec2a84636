package handlers

import (
	"net/http"

	"ticket-checkout/internal/services"
	"ticket-checkout/internal/status"
	"ticket-checkout/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type CartHandler struct {
	cartService *services.CartService
}

func NewCartHandler(cartService *services.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

// GetCart - the caller's active cart, created on first use
func (h *CartHandler) GetCart(e *core.RequestEvent) error {
	uid, err := userID(e)
	if err != nil {
		return err
	}

	cart, err := h.cartService.GetOrCreateActiveCart(e.Request.Context(), uid)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, cart)
}

func (h *CartHandler) AddItem(e *core.RequestEvent) error {
	uid, err := userID(e)
	if err != nil {
		return err
	}

	var in services.AddItemInput
	if err := e.BindBody(&in); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ctx := e.Request.Context()
	cart, err := h.cartService.GetOrCreateActiveCart(ctx, uid)
	if err != nil {
		return fail(e, err)
	}
	cart, err = h.cartService.AddItem(ctx, cart.ID, in)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(e *core.RequestEvent) error {
	uid, err := userID(e)
	if err != nil {
		return err
	}

	ctx := e.Request.Context()
	cart, err := h.cartService.GetOrCreateActiveCart(ctx, uid)
	if err != nil {
		return fail(e, err)
	}
	cart, err = h.cartService.RemoveItem(ctx, cart.ID, e.Request.PathValue("itemId"))
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, cart)
}

func (h *CartHandler) ApplyDiscount(e *core.RequestEvent) error {
	uid, err := userID(e)
	if err != nil {
		return err
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ctx := e.Request.Context()
	cart, err := h.cartService.GetOrCreateActiveCart(ctx, uid)
	if err != nil {
		return fail(e, err)
	}
	cart, err = h.cartService.ApplyDiscount(ctx, cart.ID, req.Amount)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, cart)
}

// CreateGuestCart - anonymous cart; its id is the guest's only handle
func (h *CartHandler) CreateGuestCart(e *core.RequestEvent) error {
	cart, err := h.cartService.CreateGuestCart(e.Request.Context())
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusCreated, cart)
}

func (h *CartHandler) GetGuestCart(e *core.RequestEvent) error {
	cart, err := h.guestCart(e)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, cart)
}

func (h *CartHandler) AddGuestItem(e *core.RequestEvent) error {
	var in services.AddItemInput
	if err := e.BindBody(&in); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	cart, err := h.guestCart(e)
	if err != nil {
		return fail(e, err)
	}
	cart, err = h.cartService.AddItem(e.Request.Context(), cart.ID, in)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, cart)
}

func (h *CartHandler) RemoveGuestItem(e *core.RequestEvent) error {
	cart, err := h.guestCart(e)
	if err != nil {
		return fail(e, err)
	}
	cart, err = h.cartService.RemoveItem(e.Request.Context(), cart.ID, e.Request.PathValue("itemId"))
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, cart)
}

// guestCart loads the cart named in the path. A user cart reads as missing
// so its id cannot be driven anonymously.
func (h *CartHandler) guestCart(e *core.RequestEvent) (*models.Cart, error) {
	id := e.Request.PathValue("cartId")
	cart, err := h.cartService.GetCart(e.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if !cart.IsGuest() {
		return nil, status.NotFound("guest cart", id)
	}
	return cart, nil
}
