package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentPending    = "pending"
	PaymentProcessing = "processing"
	PaymentCompleted  = "completed"
	PaymentFailed     = "failed"
	PaymentRefunded   = "refunded"
)

// PaymentTransaction pays for exactly one checkout or one reservation.
// FraudCheckID is set in the same write that completes the payment, and
// SpentBy records what the payment was redeemed for.
type PaymentTransaction struct {
	ID             string          `json:"id"`
	Reference      string          `json:"reference"`
	CheckoutID     string          `json:"checkout_id,omitempty"`
	ReservationID  string          `json:"reservation_id,omitempty"`
	Holder         string          `json:"holder"`
	Amount         decimal.Decimal `json:"amount"`
	Fee            decimal.Decimal `json:"fee"`
	Total          decimal.Decimal `json:"total"`
	Method         string          `json:"method"`
	Phone          string          `json:"phone,omitempty"`
	Status         string          `json:"status"`
	ProviderRef    string          `json:"provider_ref,omitempty"`
	ReviewRequired bool            `json:"review_required"`
	FraudCheckID   string          `json:"fraud_check_id,omitempty"`
	SpentBy        string          `json:"spent_by,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// PaymentNotification is the provider callback body, delivered over HTTP or
// the bank notification channel.
type PaymentNotification struct {
	Reference   string          `json:"reference"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phone_number,omitempty"`
	ProviderRef string          `json:"transaction_id,omitempty"`
}

// FraudCheck is the persisted record of one scoring call.
type FraudCheck struct {
	ID          string          `json:"id"`
	PaymentID   string          `json:"payment_id"`
	Holder      string          `json:"holder"`
	Method      string          `json:"method"`
	Amount      decimal.Decimal `json:"amount"`
	OutOfBand   bool            `json:"out_of_band"`
	RecentCount int             `json:"recent_count"`
	HighValue   bool            `json:"high_value"`
	DeviceOK    bool            `json:"device_ok"`
	GeoOK       bool            `json:"geo_ok"`
	Score       int             `json:"score"`
	Legitimate  bool            `json:"legitimate"`
	CreatedAt   time.Time       `json:"created_at"`
}
