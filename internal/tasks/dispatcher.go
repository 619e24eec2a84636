package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ticket-checkout/internal/services"

	"github.com/hibiken/asynq"
)

const maxRetry = 5

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher turns completed checkouts into background tasks: one buyer
// notification and one earnings credit per event.
type Dispatcher struct {
	client Enqueuer
}

var _ services.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(client Enqueuer) *Dispatcher {
	return &Dispatcher{client: client}
}

func (d *Dispatcher) CheckoutCompleted(ctx context.Context, ev services.CheckoutCompleted) error {
	var errs []error

	notify, err := NewCheckoutNotifyTask(CheckoutNotifyPayload{
		CheckoutID:       ev.CheckoutID,
		OrderID:          ev.OrderID,
		UserID:           ev.UserID,
		GuestEmail:       ev.GuestEmail,
		ConfirmationCode: ev.ConfirmationCode,
		TicketCount:      ev.TicketCount,
		TotalAmount:      ev.TotalAmount,
	})
	if err != nil {
		errs = append(errs, err)
	} else {
		errs = append(errs, d.enqueue(ctx, notify, ev.CheckoutID+":notify", QueueLow))
	}

	for _, rev := range ev.Revenue {
		p := EarningsAddPayload{
			CheckoutID:  ev.CheckoutID,
			EventID:     rev.EventID,
			OrganizerID: rev.OrganizerID,
			Amount:      rev.Amount,
		}
		task, err := NewEarningsAddTask(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, d.enqueue(ctx, task, "earnings:"+p.Reference(), QueueDefault))
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) enqueue(ctx context.Context, task *asynq.Task, id, queue string) error {
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.TaskID(id),
		asynq.Queue(queue),
		asynq.MaxRetry(maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Debug("task already enqueued", "type", task.Type(), "task_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	slog.Info("task enqueued", "type", task.Type(), "task_id", info.ID, "queue", info.Queue)
	return nil
}
