package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ticket-checkout/internal/services"
	"ticket-checkout/internal/store"
	"ticket-checkout/utils"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type enqueued struct {
	task *asynq.Task
	opts []asynq.Option
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []enqueued
	seen  map[string]bool
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	info := &asynq.TaskInfo{Type: task.Type()}
	for _, o := range opts {
		switch o.Type() {
		case asynq.TaskIDOpt:
			info.ID = o.Value().(string)
		case asynq.QueueOpt:
			info.Queue = o.Value().(string)
		}
	}
	if f.seen[info.ID] {
		return nil, asynq.ErrTaskIDConflict
	}
	f.seen[info.ID] = true
	f.tasks = append(f.tasks, enqueued{task: task, opts: opts})
	return info, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	payloads []any
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload)
	return p.err
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func completedEvent() services.CheckoutCompleted {
	return services.CheckoutCompleted{
		CheckoutID:  "co-1",
		OrderID:     "order-1",
		UserID:      "user-1",
		TicketCount: 3,
		TotalAmount: decimal.RequireFromString("45"),
		Revenue: []services.EventRevenue{
			{EventID: "ev1", OrganizerID: "org-1", Amount: decimal.RequireFromString("30")},
			{EventID: "ev2", OrganizerID: "org-2", Amount: decimal.RequireFromString("15")},
		},
	}
}

func TestDispatcher_EnqueuesNotifyAndEarnings(t *testing.T) {
	client := &fakeEnqueuer{}
	d := NewDispatcher(client)

	require.NoError(t, d.CheckoutCompleted(context.Background(), completedEvent()))
	require.Len(t, client.tasks, 3)

	assert.Equal(t, TypeCheckoutNotify, client.tasks[0].task.Type())
	assert.Equal(t, TypeEarningsAdd, client.tasks[1].task.Type())
	assert.Equal(t, TypeEarningsAdd, client.tasks[2].task.Type())

	var retry int
	for _, o := range client.tasks[0].opts {
		if o.Type() == asynq.MaxRetryOpt {
			retry = o.Value().(int)
		}
	}
	assert.Equal(t, 5, retry)

	var earnings EarningsAddPayload
	require.NoError(t, json.Unmarshal(client.tasks[2].task.Payload(), &earnings))
	assert.Equal(t, "org-2", earnings.OrganizerID)
	assert.Equal(t, "co-1:ev2", earnings.Reference())
	assert.True(t, earnings.Amount.Equal(decimal.RequireFromString("15")))
}

func TestDispatcher_ReplayIsIgnored(t *testing.T) {
	client := &fakeEnqueuer{}
	d := NewDispatcher(client)

	require.NoError(t, d.CheckoutCompleted(context.Background(), completedEvent()))
	require.NoError(t, d.CheckoutCompleted(context.Background(), completedEvent()))
	assert.Len(t, client.tasks, 3)
}

func TestDispatcher_EnqueueFailure(t *testing.T) {
	d := NewDispatcher(&fakeEnqueuer{err: errors.New("redis down")})

	err := d.CheckoutCompleted(context.Background(), completedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestPayloadChannel(t *testing.T) {
	assert.Equal(t, "user-u1", CheckoutNotifyPayload{CheckoutID: "c1", UserID: "u1"}.Channel())
	assert.Equal(t, "guest-c1", CheckoutNotifyPayload{CheckoutID: "c1", GuestEmail: "a@b.c"}.Channel())
}

func TestHandleCheckoutNotify(t *testing.T) {
	pub := &fakePublisher{}
	h := NewHandlers(nil, pub)

	task, err := NewCheckoutNotifyTask(CheckoutNotifyPayload{
		CheckoutID:       "co-1",
		OrderID:          "order-1",
		GuestEmail:       "guest@example.com",
		ConfirmationCode: "ABCDEF123456",
		TicketCount:      2,
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleCheckoutNotify(context.Background(), task))
	require.Equal(t, []string{"guest-co-1"}, pub.channels)

	msg, ok := pub.payloads[0].(Notification)
	require.True(t, ok)
	assert.Equal(t, "checkout_completed", msg.Type)
	assert.Equal(t, "ABCDEF123456", msg.ConfirmationCode)
}

func TestHandleCheckoutNotify_BadPayloadSkipsRetry(t *testing.T) {
	h := NewHandlers(nil, &fakePublisher{})

	err := h.HandleCheckoutNotify(context.Background(), asynq.NewTask(TypeCheckoutNotify, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleCheckoutNotify_BreakerOpens(t *testing.T) {
	pub := &fakePublisher{err: errors.New("pubnub unavailable")}
	h := NewHandlers(nil, pub)
	h.pubnub = utils.NewCircuitBreaker("pubnub", utils.WithThresholds(3, 0.5), utils.WithTimeout(time.Hour))

	task, err := NewCheckoutNotifyTask(CheckoutNotifyPayload{CheckoutID: "co-1", UserID: "u1"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Error(t, h.HandleCheckoutNotify(context.Background(), task))
	}
	err = h.HandleCheckoutNotify(context.Background(), task)
	assert.ErrorIs(t, err, utils.ErrOpenState)
	assert.Len(t, pub.channels, 3)
}

func TestHandleEarningsAdd_CreditsOnce(t *testing.T) {
	st := openStore(t)
	h := NewHandlers(st, &fakePublisher{})

	task, err := NewEarningsAddTask(EarningsAddPayload{
		CheckoutID:  "co-1",
		EventID:     "ev1",
		OrganizerID: "org-1",
		Amount:      decimal.RequireFromString("30"),
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleEarningsAdd(context.Background(), task))
	require.NoError(t, h.HandleEarningsAdd(context.Background(), task))

	total, err := st.Queries().OrganizerEarnings(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("30")), "got %s", total)
}

func TestHandleEarningsAdd_MissingOrganizer(t *testing.T) {
	h := NewHandlers(nil, &fakePublisher{})

	task, err := NewEarningsAddTask(EarningsAddPayload{CheckoutID: "co-1", EventID: "ev1"})
	require.NoError(t, err)
	assert.NoError(t, h.HandleEarningsAdd(context.Background(), task))
}

func TestMux_RoutesTaskTypes(t *testing.T) {
	pub := &fakePublisher{}
	h := NewHandlers(nil, pub)

	task, err := NewCheckoutNotifyTask(CheckoutNotifyPayload{CheckoutID: "co-1", UserID: "u1"})
	require.NoError(t, err)

	require.NoError(t, h.Mux().ProcessTask(context.Background(), task))
	assert.Equal(t, []string{"user-u1"}, pub.channels)
}
