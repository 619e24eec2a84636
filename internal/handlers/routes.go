package handlers

import (
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type Routes struct {
	Seats    *SeatHandler
	Carts    *CartHandler
	Checkout *CheckoutHandler
	Payments *PaymentHandler
	Admin    *AdminHandler

	// WebhookGuard runs in front of the provider callback.
	WebhookGuard func(e *core.RequestEvent) error
	// DevRoutes enables payment simulation.
	DevRoutes bool
}

func (r *Routes) Register(se *core.ServeEvent) {
	api := se.Router.Group("/api/v1")

	api.GET("/events/{eventId}/seats", r.Seats.GetSeats)

	reservations := api.Group("/reservations")
	reservations.Bind(apis.RequireAuth())
	reservations.POST("", r.Seats.Reserve)
	reservations.GET("/{reservationId}", r.Seats.GetReservation)
	reservations.POST("/{reservationId}/release", r.Seats.Release)
	reservations.POST("/{reservationId}/confirm", r.Seats.Confirm)

	cart := api.Group("/cart")
	cart.Bind(apis.RequireAuth())
	cart.GET("", r.Carts.GetCart)
	cart.POST("/items", r.Carts.AddItem)
	cart.DELETE("/items/{itemId}", r.Carts.RemoveItem)
	cart.POST("/discount", r.Carts.ApplyDiscount)

	checkout := api.Group("/checkout")
	checkout.Bind(apis.RequireAuth())
	checkout.POST("", r.Checkout.Initiate)
	checkout.GET("/{checkoutId}", r.Checkout.Get)
	checkout.POST("/{checkoutId}/complete", r.Checkout.Complete)
	checkout.POST("/{checkoutId}/cancel", r.Checkout.Cancel)

	guest := api.Group("/guest")
	guest.POST("/cart", r.Carts.CreateGuestCart)
	guest.GET("/cart/{cartId}", r.Carts.GetGuestCart)
	guest.POST("/cart/{cartId}/items", r.Carts.AddGuestItem)
	guest.DELETE("/cart/{cartId}/items/{itemId}", r.Carts.RemoveGuestItem)
	guest.POST("/checkout", r.Checkout.InitiateGuest)
	guest.GET("/checkout/{checkoutId}", r.Checkout.GetGuest)
	guest.POST("/checkout/{checkoutId}/complete", r.Checkout.CompleteGuest)
	guest.POST("/checkout/{checkoutId}/cancel", r.Checkout.CancelGuest)
	guest.GET("/tickets", r.Checkout.GuestTickets)

	api.POST("/payments", r.Payments.CreatePayment)
	api.GET("/payments/{reference}", r.Payments.GetPayment)

	webhook := api.POST("/payments/webhook", r.Payments.Webhook)
	if r.WebhookGuard != nil {
		webhook.BindFunc(r.WebhookGuard)
	}

	if r.DevRoutes {
		api.POST("/dev/payments/{reference}/simulate", r.Payments.SimulatePayment)
	}

	admin := api.Group("/admin")
	admin.Bind(apis.RequireSuperuserAuth())
	admin.POST("/events", r.Admin.CreateEvent)
	admin.GET("/events/{eventId}/inventory", r.Admin.GetInventory)
	admin.POST("/reaper/sweep", r.Admin.SweepNow)
}
