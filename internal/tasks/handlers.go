package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ticket-checkout/internal/realtime"
	"ticket-checkout/internal/store"
	"ticket-checkout/utils"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// Notification is what the buyer's client receives once tickets exist.
type Notification struct {
	Type             string          `json:"type"`
	CheckoutID       string          `json:"checkout_id"`
	OrderID          string          `json:"order_id"`
	ConfirmationCode string          `json:"confirmation_code,omitempty"`
	TicketCount      int             `json:"ticket_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}

type Handlers struct {
	store     *store.Store
	publisher realtime.Publisher
	pubnub    *utils.CircuitBreaker
	earnings  *utils.CircuitBreaker
	now       func() time.Time
}

func NewHandlers(st *store.Store, publisher realtime.Publisher) *Handlers {
	return &Handlers{
		store:     st,
		publisher: publisher,
		pubnub:    utils.NewCircuitBreaker("pubnub"),
		earnings:  utils.NewCircuitBreaker("earnings"),
		now:       time.Now,
	}
}

// Task handlers
func (h *Handlers) HandleCheckoutNotify(ctx context.Context, t *asynq.Task) error {
	var payload CheckoutNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	msg := Notification{
		Type:             "checkout_completed",
		CheckoutID:       payload.CheckoutID,
		OrderID:          payload.OrderID,
		ConfirmationCode: payload.ConfirmationCode,
		TicketCount:      payload.TicketCount,
		TotalAmount:      payload.TotalAmount,
	}
	channel := payload.Channel()

	err := h.pubnub.Execute(ctx, func(ctx context.Context) error {
		return h.publisher.Publish(ctx, channel, msg)
	})
	if err != nil {
		slog.Error("notify buyer", "checkout_id", payload.CheckoutID, "channel", channel, "error", err)
		return err
	}

	slog.Info("buyer notified", "checkout_id", payload.CheckoutID, "channel", channel)
	return nil
}

func (h *Handlers) HandleEarningsAdd(ctx context.Context, t *asynq.Task) error {
	var payload EarningsAddPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if payload.OrganizerID == "" {
		slog.Warn("earnings without organizer", "checkout_id", payload.CheckoutID, "event_id", payload.EventID)
		return nil
	}

	var added bool
	err := h.earnings.Execute(ctx, func(ctx context.Context) error {
		var err error
		added, err = h.store.Queries().AddEarnings(ctx,
			uuid.NewString(),
			payload.OrganizerID,
			payload.Reference(),
			"checkout "+payload.CheckoutID,
			payload.Amount,
			h.now(),
		)
		return err
	})
	if err != nil {
		slog.Error("add organizer earnings", "reference", payload.Reference(), "error", err)
		return err
	}

	if added {
		slog.Info("organizer earnings added", "organizer_id", payload.OrganizerID, "reference", payload.Reference(), "amount", payload.Amount.String())
	}
	return nil
}
