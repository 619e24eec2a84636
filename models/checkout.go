package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CheckoutPending   = "pending"
	CheckoutCompleted = "completed"
	CheckoutCancelled = "cancelled"
	CheckoutExpired   = "expired"
)

// BillingInfo is the canonical billing shape every request body is
// normalized into before it reaches the checkout controller.
type BillingInfo struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

func (b *BillingInfo) IsZero() bool {
	return b == nil || (b.FirstName == "" && b.LastName == "" && b.Email == "")
}

// GuestContact binds a guest checkout to a person instead of a user id.
type GuestContact struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

type CheckoutSession struct {
	ID             string          `json:"checkout_id"`
	CartID         string          `json:"cart_id"`
	UserID         string          `json:"user_id,omitempty"`
	Guest          *GuestContact   `json:"guest,omitempty"`
	Billing        BillingInfo     `json:"billing"`
	Region         string          `json:"region,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaymentMethod  string          `json:"payment_method"`
	Status         string          `json:"status"`
	OrderID        string          `json:"order_id,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []CartItem      `json:"items,omitempty"`
}

func (s *CheckoutSession) IsGuest() bool {
	return s.Guest != nil
}

// CheckoutResult is what completion returns, identical on every replay.
type CheckoutResult struct {
	CheckoutID       string          `json:"checkout_id"`
	OrderID          string          `json:"order_id"`
	TicketsCreated   int             `json:"tickets_created"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	ConfirmationCode string          `json:"confirmation_code,omitempty"`
}
