package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ticket-checkout/config"
	"ticket-checkout/internal/store"
	"ticket-checkout/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []CheckoutCompleted
	err    error
}

func (d *recordingDispatcher) CheckoutCompleted(_ context.Context, ev CheckoutCompleted) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return d.err
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

type testEnv struct {
	store        *store.Store
	clock        *testClock
	seats        *SeatService
	reservations *ReservationService
	carts        *CartService
	checkout     *CheckoutService
	fraud        *FraudService
	payments     *PaymentService
	reaper       *Reaper
	dispatcher   *recordingDispatcher
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "checkout.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { st.Close() })

	clock := &testClock{t: time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)}
	dispatcher := &recordingDispatcher{}

	seats := NewSeatService(st)
	reservations := NewReservationService(st, seats, nil, 15*time.Minute)
	reservations.now = clock.Now

	carts := NewCartService(st, reservations)
	carts.now = clock.Now

	checkout := NewCheckoutService(st, reservations, NewFulfillmentService(reservations),
		NewRegionalTaxPolicy(map[string]decimal.Decimal{"US": dec("0.08"), "LA": decimal.Zero}),
		dispatcher, nil,
		CheckoutConfig{TTL: 30 * time.Minute, TaxRegion: "LA", GuestTaxRegion: "US"},
	)
	checkout.now = clock.Now

	fraud := NewFraudService(st, FraudConfig{
		MethodBands:     map[string]config.Band{"card": {Min: dec("1"), Max: dec("10000")}},
		HighValue:       dec("5000"),
		FrequencyLimit:  5,
		FrequencyWindow: time.Hour,
	}, nil)
	fraud.now = clock.Now

	payments := NewPaymentService(st, fraud, checkout, PaymentConfig{
		FeeRates: map[string]decimal.Decimal{"card": decimal.Zero, "mobile_money": dec("0.015")},
		Timeout:  10 * time.Minute,
	})
	payments.now = clock.Now

	reaper := NewReaper(st, seats, nil, nil, ReaperConfig{
		Interval:        time.Minute,
		BatchSize:       2,
		CartIdleTTL:     24 * time.Hour,
		OrderArchiveAge: 90 * 24 * time.Hour,
	})
	reaper.now = clock.Now

	env := &testEnv{
		store:        st,
		clock:        clock,
		seats:        seats,
		reservations: reservations,
		carts:        carts,
		checkout:     checkout,
		fraud:        fraud,
		payments:     payments,
		reaper:       reaper,
		dispatcher:   dispatcher,
	}
	env.seedEvent(t, "ev1", 6, 100)
	return env
}

// seedEvent creates an event with seats s1..sN priced at 10.
func (e *testEnv) seedEvent(t *testing.T, eventID string, seats, generalTickets int) {
	t.Helper()
	ctx := context.Background()
	q := e.store.Queries()

	require.NoError(t, q.InsertEvent(ctx, models.Event{
		ID:               eventID,
		OrganizerID:      "org-" + eventID,
		Name:             "Concert " + eventID,
		StartTime:        e.clock.Now().Add(30 * 24 * time.Hour),
		TotalSeats:       seats,
		AvailableSeats:   seats,
		AvailableTickets: generalTickets,
		Status:           "published",
	}))
	for i := 1; i <= seats; i++ {
		require.NoError(t, q.InsertSeat(ctx, models.Seat{
			ID:      fmt.Sprintf("s%d", i),
			EventID: eventID,
			Section: "A",
			Row:     "1",
			Number:  i,
			Price:   dec("10"),
		}))
	}
}

func (e *testEnv) seatStatus(t *testing.T, ids ...string) map[string]string {
	t.Helper()
	seats, err := e.store.Queries().FindSeats(context.Background(), "ev1", ids)
	require.NoError(t, err)
	out := make(map[string]string, len(seats))
	for _, s := range seats {
		out[s.ID] = s.Status
	}
	return out
}

var testBilling = &models.BillingInfo{
	FirstName: "Noy",
	LastName:  "Vong",
	Email:     "noy@example.com",
	Country:   "US",
}

// paidPayment opens a payment for the checkout and settles it without
// going through the webhook, so the checkout stays pending.
func (e *testEnv) paidPayment(t *testing.T, checkoutID string) *models.PaymentTransaction {
	t.Helper()

	p, err := e.payments.CreateTransaction(context.Background(), CreateTransactionRequest{CheckoutID: checkoutID, Method: "card"})
	require.NoError(t, err)
	return e.settle(t, p)
}

// paidReservation opens a payment for a reservation and settles it.
func (e *testEnv) paidReservation(t *testing.T, reservationID string) *models.PaymentTransaction {
	t.Helper()

	p, err := e.payments.CreateTransaction(context.Background(), CreateTransactionRequest{ReservationID: reservationID, Method: "card"})
	require.NoError(t, err)
	return e.settle(t, p)
}

// settle completes p with a real fraud verdict, as a provider notification
// would.
func (e *testEnv) settle(t *testing.T, p *models.PaymentTransaction) *models.PaymentTransaction {
	t.Helper()
	ctx := context.Background()

	fc, err := e.fraud.Score(ctx, p)
	require.NoError(t, err)
	return e.settleWith(t, p, fc)
}

// settleHeld completes p with a failing verdict.
func (e *testEnv) settleHeld(t *testing.T, p *models.PaymentTransaction) *models.PaymentTransaction {
	t.Helper()

	fc := &models.FraudCheck{
		ID:        "fc-" + p.ID,
		PaymentID: p.ID,
		Holder:    p.Holder,
		Method:    p.Method,
		Amount:    p.Amount,
		Score:     60,
		CreatedAt: e.clock.Now(),
	}
	require.NoError(t, e.store.Queries().InsertFraudCheck(context.Background(), fc))
	return e.settleWith(t, p, fc)
}

func (e *testEnv) settleWith(t *testing.T, p *models.PaymentTransaction, fc *models.FraudCheck) *models.PaymentTransaction {
	t.Helper()
	ctx := context.Background()
	q := e.store.Queries()

	n, err := q.SettlePayment(ctx, p.ID, []string{models.PaymentPending}, "bank-"+p.Reference, fc, e.clock.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	settled, err := q.FindPayment(ctx, p.ID)
	require.NoError(t, err)
	return settled
}

// userCheckout builds a user cart with the given general admission lines
// and initiates a checkout for it.
func (e *testEnv) userCheckout(t *testing.T, userID string, lines ...AddItemInput) *models.CheckoutSession {
	t.Helper()
	ctx := context.Background()

	cart, err := e.carts.GetOrCreateActiveCart(ctx, userID)
	require.NoError(t, err)
	for _, line := range lines {
		_, err = e.carts.AddItem(ctx, cart.ID, line)
		require.NoError(t, err)
	}

	sess, err := e.checkout.Initiate(ctx, InitiateRequest{
		CartID:        cart.ID,
		UserID:        userID,
		Billing:       testBilling,
		PaymentMethod: "card",
	})
	require.NoError(t, err)
	return sess
}
