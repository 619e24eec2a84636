package services

import (
	"context"

	"github.com/shopspring/decimal"
)

// EventRevenue is the gross amount one checkout earned one event.
type EventRevenue struct {
	EventID     string          `json:"event_id"`
	OrganizerID string          `json:"organizer_id"`
	Amount      decimal.Decimal `json:"amount"`
}

// CheckoutCompleted describes a fulfilled checkout for the side effects
// that follow it.
type CheckoutCompleted struct {
	CheckoutID       string          `json:"checkout_id"`
	OrderID          string          `json:"order_id"`
	UserID           string          `json:"user_id,omitempty"`
	GuestEmail       string          `json:"guest_email,omitempty"`
	ConfirmationCode string          `json:"confirmation_code,omitempty"`
	TicketCount      int             `json:"ticket_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Revenue          []EventRevenue  `json:"revenue"`
}

// Dispatcher hands post-checkout work (buyer notification, organizer
// earnings) to a background queue. Its errors never fail a checkout.
type Dispatcher interface {
	CheckoutCompleted(ctx context.Context, ev CheckoutCompleted) error
}

type noopDispatcher struct{}

func (noopDispatcher) CheckoutCompleted(context.Context, CheckoutCompleted) error { return nil }
