package services

import (
	"context"
	"testing"

	"ticket-checkout/internal/status"
	"ticket-checkout/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateActiveCart_ReturnsSameCart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.carts.GetOrCreateActiveCart(ctx, "user-1")
	require.NoError(t, err)
	second, err := env.carts.GetOrCreateActiveCart(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.OwnerUser, second.OwnerType)

	_, err = env.carts.GetOrCreateActiveCart(ctx, "")
	assert.ErrorIs(t, err, status.ErrValidation)
}

func TestCart_TotalsFollowLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cart, err := env.carts.GetOrCreateActiveCart(ctx, "user-1")
	require.NoError(t, err)

	_, err = env.carts.AddItem(ctx, cart.ID, AddItemInput{EventID: "ev1", Quantity: 2, UnitPrice: dec("10")})
	require.NoError(t, err)
	cart, err = env.carts.AddItem(ctx, cart.ID, AddItemInput{EventID: "ev1", TicketType: "vip", Quantity: 1, UnitPrice: dec("5")})
	require.NoError(t, err)

	require.Len(t, cart.Items, 2)
	assert.True(t, cart.Subtotal.Equal(dec("25")))
	assert.True(t, cart.TotalAmount.Equal(dec("25")))
	assert.Equal(t, "general", cart.Items[0].TicketType)

	var vip string
	for _, it := range cart.Items {
		if it.TicketType == "vip" {
			vip = it.ID
		}
	}
	require.NotEmpty(t, vip)

	cart, err = env.carts.RemoveItem(ctx, cart.ID, vip)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	assert.True(t, cart.Subtotal.Equal(dec("20")))

	stored, err := env.carts.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(dec("20")))
}

func TestCart_DiscountNeverBelowZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cart, err := env.carts.GetOrCreateActiveCart(ctx, "user-1")
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, cart.ID, AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10")})
	require.NoError(t, err)

	cart, err = env.carts.ApplyDiscount(ctx, cart.ID, dec("4"))
	require.NoError(t, err)
	assert.True(t, cart.TotalAmount.Equal(dec("6")))

	cart, err = env.carts.ApplyDiscount(ctx, cart.ID, dec("15"))
	require.NoError(t, err)
	assert.True(t, cart.TotalAmount.IsZero())

	_, err = env.carts.ApplyDiscount(ctx, cart.ID, dec("-1"))
	assert.ErrorIs(t, err, status.ErrValidation)
}

func TestAddItem_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cart, err := env.carts.GetOrCreateActiveCart(ctx, "user-1")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   AddItemInput
		want error
	}{
		{"missing event", AddItemInput{Quantity: 1, UnitPrice: dec("1")}, status.ErrValidation},
		{"zero quantity", AddItemInput{EventID: "ev1", UnitPrice: dec("1")}, status.ErrValidation},
		{"negative price", AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("-1")}, status.ErrValidation},
		{"unknown event", AddItemInput{EventID: "nope", Quantity: 1, UnitPrice: dec("1")}, status.ErrNotFound},
		{"seat count mismatch", AddItemInput{EventID: "ev1", Quantity: 3, UnitPrice: dec("10"), SeatIDs: []string{"s1", "s2"}}, status.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.carts.AddItem(ctx, cart.ID, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	got := env.seatStatus(t, "s1", "s2")
	assert.Equal(t, models.SeatAvailable, got["s1"])
	assert.Equal(t, models.SeatAvailable, got["s2"])
}

func TestAddItem_SeatedLineReservesUnderHolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	guest, err := env.carts.CreateGuestCart(ctx)
	require.NoError(t, err)

	guest, err = env.carts.AddItem(ctx, guest.ID, AddItemInput{EventID: "ev1", Quantity: 2, UnitPrice: dec("10"), SeatIDs: []string{"s1", "s2"}})
	require.NoError(t, err)
	require.Len(t, guest.Items, 1)

	r, err := env.reservations.Get(ctx, guest.Items[0].ReservationID)
	require.NoError(t, err)
	assert.Equal(t, guest.ID, r.Holder)
	assert.Equal(t, []string{"s1", "s2"}, guest.Items[0].SeatIDs)

	user, err := env.carts.GetOrCreateActiveCart(ctx, "user-1")
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, user.ID, AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10"), SeatIDs: []string{"s2"}})
	assert.ErrorIs(t, err, status.ErrSeatUnavailable)
}

func TestRemoveItem_ReleasesSeats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cart, err := env.carts.GetOrCreateActiveCart(ctx, "user-1")
	require.NoError(t, err)
	cart, err = env.carts.AddItem(ctx, cart.ID, AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10"), SeatIDs: []string{"s4"}})
	require.NoError(t, err)
	assert.Equal(t, models.SeatReserved, env.seatStatus(t, "s4")["s4"])

	_, err = env.carts.RemoveItem(ctx, cart.ID, cart.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeatAvailable, env.seatStatus(t, "s4")["s4"])

	_, err = env.carts.RemoveItem(ctx, cart.ID, "missing")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestRemoveItem_BlockedDuringCheckout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.userCheckout(t, "user-1", AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10")})

	_, err := env.carts.RemoveItem(ctx, sess.CartID, sess.Items[0].ID)
	assert.ErrorIs(t, err, status.ErrInvalidState)
	assert.Contains(t, err.Error(), "in checkout")

	require.NoError(t, env.checkout.Cancel(ctx, sess.ID))
	_, err = env.carts.RemoveItem(ctx, sess.CartID, sess.Items[0].ID)
	assert.NoError(t, err)
}

func TestAddItem_BlockedDuringCheckout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := env.userCheckout(t, "user-1", AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10")})

	_, err := env.carts.AddItem(ctx, sess.CartID, AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10"), SeatIDs: []string{"s1"}})
	assert.ErrorIs(t, err, status.ErrInvalidState)
	assert.Contains(t, err.Error(), "in checkout")
	assert.Equal(t, models.SeatAvailable, env.seatStatus(t, "s1")["s1"], "no seats are claimed for a refused line")

	require.NoError(t, env.checkout.Cancel(ctx, sess.ID))
	cart, err := env.carts.AddItem(ctx, sess.CartID, AddItemInput{EventID: "ev1", Quantity: 1, UnitPrice: dec("10"), SeatIDs: []string{"s1"}})
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
}
