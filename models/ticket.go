package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SeatAvailable = "available"
	SeatReserved  = "reserved"
	SeatSold      = "sold"
)

// Seat is one row of the inventory ledger. ReservationID and SoldVia are
// empty unless the seat is reserved or sold.
type Seat struct {
	ID            string          `json:"id"`
	EventID       string          `json:"event_id"`
	Section       string          `json:"section"`
	Row           string          `json:"row"`
	Number        int             `json:"number"`
	Price         decimal.Decimal `json:"price"`
	Status        string          `json:"status"`
	ReservationID string          `json:"reservation_id,omitempty"`
	SoldVia       string          `json:"sold_via,omitempty"`
}

const (
	OrderConfirmed = "confirmed"
	OrderArchived  = "archived"

	TicketConfirmed = "confirmed"
)

type Order struct {
	ID               string          `json:"id"`
	CheckoutID       string          `json:"checkout_id"`
	CartID           string          `json:"cart_id"`
	UserID           string          `json:"user_id,omitempty"`
	GuestEmail       string          `json:"guest_email,omitempty"`
	ConfirmationCode string          `json:"confirmation_code,omitempty"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	Tickets          []Ticket        `json:"tickets,omitempty"`
}

type Ticket struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	EventID    string          `json:"event_id"`
	TicketType string          `json:"ticket_type"`
	SeatID     string          `json:"seat_id,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}
