package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReservationPending   = "pending"
	ReservationReleased  = "released"
	ReservationConfirmed = "confirmed"
	ReservationExpired   = "expired"
)

// Reservation is a time-bounded hold on a seat set. Rows are never deleted;
// the status field records how the hold ended.
type Reservation struct {
	ID         string          `json:"reservation_id"`
	EventID    string          `json:"event_id"`
	Holder     string          `json:"holder"`
	SeatIDs    []string        `json:"seat_ids"`
	Status     string          `json:"status"`
	PaymentRef string          `json:"payment_ref,omitempty"`
	TotalPrice decimal.Decimal `json:"total_price"`
	ExpiresAt  time.Time       `json:"expires_at"`
	CreatedAt  time.Time       `json:"created_at"`
	Seats      []Seat          `json:"seats,omitempty"`
}
