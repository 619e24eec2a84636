package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiate_SnapshotsCart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cart, err := env.carts.GetOrCreateActiveCart(ctx, "user-1")
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, cart.ID, AddItemInput{EventID: "ev1", Quantity: 2, UnitPrice: dec("25")})
	require.NoError(t, err)
	_, err = env.carts.ApplyDiscount(ctx, cart.ID, dec("10"))
	require.NoError(t, err)

	env.checkout.cfg.TaxRegion = "us"
	sess, err := env.checkout.Initiate(ctx, InitiateRequest{
		CartID:        cart.ID,
		UserID:        "user-1",
		Billing:       testBilling,
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	assert.Equal(t, models.CheckoutPending, sess.Status)
	assert.Equal(t, env.clock.Now().Add(30*time.Minute), sess.ExpiresAt)
	assert.True(t, sess.Subtotal.Equal(dec("50")))
	assert.True(t, sess.DiscountAmount.Equal(dec("10")))
	assert.True(t, sess.TaxAmount.Equal(dec("3.2")))
	assert.True(t, sess.TotalAmount.Equal(dec("43.2")))

	stored, err := env.checkout.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(dec("43.2")))
	assert.Equal(t, "noy@example.com", stored.Billing.Email)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 2, stored.Items[0].Quantity)
}

func TestInitiate_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cart, err := env.carts.GetOrCreateActiveCart(ctx, "user-1")
	require.NoError(t, err)

	_, err = env.checkout.Initiate(ctx, InitiateRequest{CartID: cart.ID, UserID: "user-1", Billing: testBilling, PaymentMethod: "card"})
	assert.ErrorIs(t, err, status.ErrEmptyCart)

	_, err = env.checkout.Initiate(ctx, InitiateRequest{CartID: cart.ID, UserID: "user-1", PaymentMethod: "card"})
	assert.ErrorIs(t, err, status.ErrMissingBillingInfo)

	_, err = env.checkout.Initiate(ctx, InitiateRequest{CartID: cart.ID, UserID: "user-1", Billing: &models.BillingInfo{FirstName: "Noy"}, PaymentMethod: "card"})
	assert.ErrorIs(t, err, status.ErrValidation)

	_, err = env.checkout.Initiate(ctx, InitiateRequest{CartID: cart.ID, UserID: "user-1", Billing: testBilling})
	assert.ErrorIs(t, err, status.ErrValidation)

	_, err = env.checkout.Initiate(ctx, InitiateRequest{CartID: cart.ID, UserID: "user-2", Billing: testBilling, PaymentMethod: "card"})
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = env.checkout.Initiate(ctx, InitiateRequest{CartID: "missing", UserID: "user-1", Billing: testBilling, PaymentMethod: "card"})
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestComplete_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.userCheckout(t, "user-1", AddItemInput{EventID: "ev1", Quantity: 3, UnitPrice: dec("12")})
	p := env.paidPayment(t, sess.ID)

	first, err := env.checkout.Complete(ctx, sess.ID, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, 3, first.TicketsCreated)
	assert.True(t, first.TotalAmount.Equal(dec("36")))

	second, err := env.checkout.Complete(ctx, sess.ID, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.TicketsCreated, second.TicketsCreated)
	assert.True(t, first.TotalAmount.Equal(second.TotalAmount))
	assert.Equal(t, 1, env.dispatcher.count())

	cart, err := env.carts.GetCart(ctx, sess.CartID)
	require.NoError(t, err)
	assert.Equal(t, models.CartCompleted, cart.Status)

	event, err := env.store.Queries().FindEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, 97, event.AvailableTickets)

	ev := env.dispatcher.events[0]
	assert.Equal(t, first.OrderID, ev.OrderID)
	assert.Equal(t, "user-1", ev.UserID)
	require.Len(t, ev.Revenue, 1)
	assert.Equal(t, "org-ev1", ev.Revenue[0].OrganizerID)
	assert.True(t, ev.Revenue[0].Amount.Equal(dec("36")))
}

func TestComplete_ConcurrentCallsCreateOneOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.userCheckout(t, "user-1", AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10")})
	p := env.paidPayment(t, sess.ID)

	const callers = 8
	results := make([]*models.CheckoutResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.checkout.Complete(ctx, sess.ID, p.Reference)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].OrderID, results[i].OrderID)
	}
	assert.Equal(t, 1, env.dispatcher.count())

	order, err := env.store.Queries().FindOrderByCheckout(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, order.Tickets, 1)
}

func TestComplete_SeatedCheckoutSellsSeats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.userCheckout(t, "user-1", AddItemInput{EventID: "ev1", Quantity: 2, UnitPrice: dec("10"), SeatIDs: []string{"s5", "s6"}})
	p := env.paidPayment(t, sess.ID)

	// The checkout keeps its seats past the plain reservation TTL.
	env.clock.Advance(20 * time.Minute)
	stats, err := env.reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Reservations)

	res, err := env.checkout.Complete(ctx, sess.ID, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TicketsCreated)

	seats, err := env.store.Queries().FindSeats(ctx, "ev1", []string{"s5", "s6"})
	require.NoError(t, err)
	for _, s := range seats {
		assert.Equal(t, models.SeatSold, s.Status)
		assert.Equal(t, res.OrderID, s.SoldVia)
	}

	r, err := env.reservations.Get(ctx, sess.Items[0].ReservationID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationConfirmed, r.Status)
	assert.Equal(t, p.Reference, r.PaymentRef)

	order, err := env.store.Queries().FindOrder(ctx, res.OrderID)
	require.NoError(t, err)
	require.Len(t, order.Tickets, 2)
	assert.Equal(t, "s5", order.Tickets[0].SeatID)
	assert.Equal(t, "s6", order.Tickets[1].SeatID)

	event, err := env.store.Queries().FindEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, 4, event.AvailableSeats)
	assert.Equal(t, 100, event.AvailableTickets)
}

func TestComplete_PaymentChecks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.userCheckout(t, "user-1", AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10")})

	_, err := env.checkout.Complete(ctx, sess.ID, "PAY-MISSING")
	assert.ErrorIs(t, err, status.ErrPaymentNotCompleted)

	pending, err := env.payments.CreateTransaction(ctx, CreateTransactionRequest{CheckoutID: sess.ID})
	require.NoError(t, err)
	_, err = env.checkout.Complete(ctx, sess.ID, pending.Reference)
	assert.ErrorIs(t, err, status.ErrPaymentNotCompleted)

	unscored, err := env.payments.CreateTransaction(ctx, CreateTransactionRequest{CheckoutID: sess.ID})
	require.NoError(t, err)
	_, err = env.store.Queries().UpdatePaymentStatus(ctx, unscored.ID, []string{models.PaymentPending}, models.PaymentCompleted, "", env.clock.Now())
	require.NoError(t, err)
	_, err = env.checkout.Complete(ctx, sess.ID, unscored.Reference)
	assert.ErrorIs(t, err, status.ErrPaymentNotCompleted, "completed payments need a fraud verdict")

	held, err := env.payments.CreateTransaction(ctx, CreateTransactionRequest{CheckoutID: sess.ID})
	require.NoError(t, err)
	p := env.settleHeld(t, held)
	_, err = env.checkout.Complete(ctx, sess.ID, p.Reference)
	assert.ErrorIs(t, err, status.ErrPaymentUnderReview)

	other := env.userCheckout(t, "user-2", AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10")})
	otherPayment := env.paidPayment(t, other.ID)
	_, err = env.checkout.Complete(ctx, sess.ID, otherPayment.Reference)
	assert.ErrorIs(t, err, status.ErrValidation)

	_, err = env.checkout.Complete(ctx, "missing", p.Reference)
	assert.ErrorIs(t, err, status.ErrCheckoutNotFound)

	assert.Zero(t, env.dispatcher.count())
}

func TestInitiate_UnconfiguredTaxRegion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cart, err := env.carts.GetOrCreateActiveCart(ctx, "user-1")
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, cart.ID, AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10")})
	require.NoError(t, err)

	env.checkout.cfg.TaxRegion = "ZZ"
	_, err = env.checkout.Initiate(ctx, InitiateRequest{CartID: cart.ID, UserID: "user-1", Billing: testBilling, PaymentMethod: "card"})
	assert.ErrorIs(t, err, status.ErrValidation)
	assert.Contains(t, err.Error(), "ZZ")

	n, err := env.store.Queries().CountPendingCheckoutsForCart(ctx, cart.ID, env.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestComplete_ExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.userCheckout(t, "user-1", AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10")})
	p := env.paidPayment(t, sess.ID)

	env.clock.Advance(31 * time.Minute)

	_, err := env.checkout.Complete(ctx, sess.ID, p.Reference)
	var invalid *status.InvalidStateError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, models.CheckoutExpired, invalid.Current)

	_, err = env.store.Queries().FindOrderByCheckout(ctx, sess.ID)
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestComplete_DispatchFailureDoesNotFailCheckout(t *testing.T) {
	env := newTestEnv(t)
	env.dispatcher.err = errors.New("queue down")
	ctx := context.Background()

	sess := env.userCheckout(t, "user-1", AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10")})
	p := env.paidPayment(t, sess.ID)

	res, err := env.checkout.Complete(ctx, sess.ID, p.Reference)
	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderID)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.userCheckout(t, "user-1", AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10")})

	require.NoError(t, env.checkout.Cancel(ctx, sess.ID))

	err := env.checkout.Cancel(ctx, sess.ID)
	var invalid *status.InvalidStateError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, models.CheckoutCancelled, invalid.Current)

	assert.ErrorIs(t, env.checkout.Cancel(ctx, "missing"), status.ErrCheckoutNotFound)

	_, err = env.payments.CreateTransaction(ctx, CreateTransactionRequest{CheckoutID: sess.ID, Method: "card"})
	assert.ErrorIs(t, err, status.ErrInvalidState)
}

func TestGuestCheckout_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cart, err := env.carts.CreateGuestCart(ctx)
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, cart.ID, AddItemInput{EventID: "ev1", Quantity: 2, UnitPrice: dec("15")})
	require.NoError(t, err)

	contact := models.GuestContact{Email: " Guest@Example.com ", FirstName: "Kham", LastName: "Lee"}
	sess, err := env.checkout.InitiateGuestCheckout(ctx, cart.ID, contact, testBilling, "card")
	require.NoError(t, err)
	assert.Equal(t, "guest@example.com", sess.Guest.Email)
	assert.True(t, sess.TaxAmount.Equal(dec("2.4")))
	assert.True(t, sess.TotalAmount.Equal(dec("32.4")))

	p, err := env.payments.CreateTransaction(ctx, CreateTransactionRequest{CheckoutID: sess.ID})
	require.NoError(t, err)
	assert.Equal(t, "guest:guest@example.com", p.Holder)

	res, err := env.payments.HandleWebhook(ctx, models.PaymentNotification{
		Reference: p.Reference,
		Status:    "success",
		Amount:    dec("32.40"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Checkout)
	assert.Empty(t, res.CheckoutError)

	code := res.Checkout.ConfirmationCode
	assert.Len(t, code, 12)

	order, err := env.checkout.GetTicketsByEmailAndCode(ctx, "GUEST@example.com", code)
	require.NoError(t, err)
	assert.Len(t, order.Tickets, 2)
	assert.Equal(t, res.Checkout.OrderID, order.ID)

	_, err = env.checkout.GetTicketsByEmailAndCode(ctx, "guest@example.com", "WRONGCODE000")
	assert.ErrorIs(t, err, status.ErrRefCodeNotFound)

	_, err = env.checkout.GetTicketsByEmailAndCode(ctx, "", code)
	assert.ErrorIs(t, err, status.ErrValidation)

	again, err := env.checkout.CompleteGuestCheckout(ctx, sess.ID, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, code, again.ConfirmationCode)
}

func TestGuestCheckout_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	guest, err := env.carts.CreateGuestCart(ctx)
	require.NoError(t, err)

	_, err = env.checkout.InitiateGuestCheckout(ctx, guest.ID, models.GuestContact{Email: "not-an-email"}, testBilling, "card")
	assert.ErrorIs(t, err, status.ErrValidation)

	user, err := env.carts.GetOrCreateActiveCart(ctx, "user-1")
	require.NoError(t, err)
	_, err = env.checkout.InitiateGuestCheckout(ctx, user.ID, models.GuestContact{Email: "a@example.com"}, testBilling, "card")
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = env.checkout.Initiate(ctx, InitiateRequest{CartID: guest.ID, UserID: guest.ID, Billing: testBilling, PaymentMethod: "card"})
	assert.ErrorIs(t, err, status.ErrNotFound)

	sess := env.userCheckout(t, "user-2", AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10")})
	p := env.paidPayment(t, sess.ID)
	_, err = env.checkout.CompleteGuestCheckout(ctx, sess.ID, p.Reference)
	assert.ErrorIs(t, err, status.ErrCheckoutNotFound)
}
