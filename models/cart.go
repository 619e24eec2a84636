package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CartActive    = "active"
	CartCompleted = "completed"
	CartExpired   = "expired"

	OwnerUser  = "user"
	OwnerGuest = "guest"
)

type Cart struct {
	ID             string          `json:"id"`
	OwnerType      string          `json:"owner_type"`
	OwnerID        string          `json:"owner_id,omitempty"`
	Status         string          `json:"status"`
	Items          []CartItem      `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Holder is the reference reservations are taken under: the user id for
// registered buyers, the cart id for guests.
func (c *Cart) Holder() string {
	if c.OwnerType == OwnerGuest {
		return c.ID
	}
	return c.OwnerID
}

func (c *Cart) IsGuest() bool {
	return c.OwnerType == OwnerGuest
}

type CartItem struct {
	ID            string          `json:"id"`
	CartID        string          `json:"cart_id"`
	EventID       string          `json:"event_id"`
	TicketType    string          `json:"ticket_type"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	SeatIDs       []string        `json:"seat_ids,omitempty"`
	ReservationID string          `json:"reservation_id,omitempty"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	CreatedAt     time.Time       `json:"created_at"`
}
