package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

const (
	TypeCheckoutNotify = "checkout:notify"
	TypeEarningsAdd    = "earnings:add"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Task payloads
type CheckoutNotifyPayload struct {
	CheckoutID       string          `json:"checkout_id"`
	OrderID          string          `json:"order_id"`
	UserID           string          `json:"user_id,omitempty"`
	GuestEmail       string          `json:"guest_email,omitempty"`
	ConfirmationCode string          `json:"confirmation_code,omitempty"`
	TicketCount      int             `json:"ticket_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}

// Channel is the PubNub channel the buyer listens on.
func (p CheckoutNotifyPayload) Channel() string {
	if p.UserID != "" {
		return "user-" + p.UserID
	}
	return "guest-" + p.CheckoutID
}

type EarningsAddPayload struct {
	CheckoutID  string          `json:"checkout_id"`
	EventID     string          `json:"event_id"`
	OrganizerID string          `json:"organizer_id"`
	Amount      decimal.Decimal `json:"amount"`
}

// Reference keys the ledger entry so retries credit the organizer once.
func (p EarningsAddPayload) Reference() string {
	return p.CheckoutID + ":" + p.EventID
}

func NewCheckoutNotifyTask(p CheckoutNotifyPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCheckoutNotify, payload), nil
}

func NewEarningsAddTask(p EarningsAddPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEarningsAdd, payload), nil
}
