package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/internal/store"
	"ticket-checkout/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CartService struct {
	store        *store.Store
	reservations *ReservationService
	now          func() time.Time
}

func NewCartService(st *store.Store, reservations *ReservationService) *CartService {
	return &CartService{store: st, reservations: reservations, now: time.Now}
}

// AddItemInput describes one line to add. SeatIDs is set for seated
// tickets and left empty for general admission.
type AddItemInput struct {
	EventID    string          `json:"event_id"`
	TicketType string          `json:"ticket_type"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	SeatIDs    []string        `json:"seat_ids,omitempty"`
}

// GetOrCreateActiveCart returns the user's active cart, creating it on
// first use.
func (s *CartService) GetOrCreateActiveCart(ctx context.Context, userID string) (*models.Cart, error) {
	if userID == "" {
		return nil, status.Invalid("user id is required")
	}

	q := s.store.Queries()
	cart, err := q.FindActiveCart(ctx, models.OwnerUser, userID)
	if err == nil {
		return s.withItems(ctx, q, cart)
	}
	if !errors.Is(err, status.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	cart = &models.Cart{
		ID:        uuid.NewString(),
		OwnerType: models.OwnerUser,
		OwnerID:   userID,
		Status:    models.CartActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.InsertCart(ctx, cart); err != nil {
		if errors.Is(err, status.ErrConflict) {
			// A concurrent request created it first.
			existing, err := q.FindActiveCart(ctx, models.OwnerUser, userID)
			if err != nil {
				return nil, err
			}
			return s.withItems(ctx, q, existing)
		}
		return nil, err
	}

	cart.Items = []models.CartItem{}
	return cart, nil
}

// CreateGuestCart creates a cart that belongs to itself: its id is both
// the guest's handle and the holder of the guest's reservations.
func (s *CartService) CreateGuestCart(ctx context.Context) (*models.Cart, error) {
	now := s.now()
	id := uuid.NewString()
	cart := &models.Cart{
		ID:        id,
		OwnerType: models.OwnerGuest,
		OwnerID:   id,
		Status:    models.CartActive,
		Items:     []models.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Queries().InsertCart(ctx, cart); err != nil {
		return nil, err
	}
	slog.Info("guest cart created", "cart_id", id)
	return cart, nil
}

func (s *CartService) GetCart(ctx context.Context, cartID string) (*models.Cart, error) {
	q := s.store.Queries()
	cart, err := q.FindCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return s.withItems(ctx, q, cart)
}

// AddItem adds a line to an active cart. Seated lines reserve their seats
// under the cart holder before the line is written.
func (s *CartService) AddItem(ctx context.Context, cartID string, in AddItemInput) (*models.Cart, error) {
	if in.EventID == "" {
		return nil, status.Invalid("event id is required")
	}
	if in.Quantity <= 0 {
		return nil, status.Invalid("quantity must be positive")
	}
	if in.UnitPrice.IsNegative() {
		return nil, status.Invalid("unit price must not be negative")
	}

	cart, err := s.activeCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	item := &models.CartItem{
		ID:         uuid.NewString(),
		CartID:     cart.ID,
		EventID:    in.EventID,
		TicketType: in.TicketType,
		Quantity:   in.Quantity,
		UnitPrice:  in.UnitPrice,
		TotalPrice: in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity))),
		CreatedAt:  s.now(),
	}
	if item.TicketType == "" {
		item.TicketType = "general"
	}

	// Fail before claiming seats; the check is repeated with the insert.
	if err := notInCheckout(ctx, s.store.Queries(), cart.ID, item.CreatedAt); err != nil {
		return nil, err
	}

	if len(in.SeatIDs) > 0 {
		seatIDs := uniqueIDs(in.SeatIDs)
		if len(seatIDs) != in.Quantity {
			return nil, status.Invalid("quantity %d does not match %d seats", in.Quantity, len(seatIDs))
		}
		r, err := s.reservations.Reserve(ctx, in.EventID, cart.Holder(), seatIDs)
		if err != nil {
			return nil, err
		}
		item.SeatIDs = seatIDs
		item.ReservationID = r.ID
	} else if _, err := s.store.Queries().FindEvent(ctx, in.EventID); err != nil {
		return nil, err
	}

	err = s.store.Tx(ctx, func(q *store.Queries) error {
		if err := notInCheckout(ctx, q, cart.ID, item.CreatedAt); err != nil {
			return err
		}
		if err := q.InsertCartItem(ctx, item); err != nil {
			return err
		}
		return s.recompute(ctx, q, cart)
	})
	if err != nil {
		if item.ReservationID != "" {
			s.releaseQuietly(ctx, item.ReservationID, cart.Holder())
		}
		return nil, err
	}

	slog.Info("cart item added", "cart_id", cart.ID, "item_id", item.ID, "quantity", item.Quantity)
	return cart, nil
}

// RemoveItem drops a line and releases its seats.
func (s *CartService) RemoveItem(ctx context.Context, cartID, itemID string) (*models.Cart, error) {
	cart, err := s.activeCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var item *models.CartItem
	err = s.store.Tx(ctx, func(q *store.Queries) error {
		if err := notInCheckout(ctx, q, cart.ID, now); err != nil {
			return err
		}

		var err error
		if item, err = q.FindCartItem(ctx, cart.ID, itemID); err != nil {
			return err
		}
		if _, err := q.DeleteCartItem(ctx, cart.ID, itemID); err != nil {
			return fmt.Errorf("delete cart item %s: %w", itemID, err)
		}
		return s.recompute(ctx, q, cart)
	})
	if err != nil {
		return nil, err
	}

	if item.ReservationID != "" {
		s.releaseQuietly(ctx, item.ReservationID, cart.Holder())
	}
	return cart, nil
}

// notInCheckout refuses line changes while a checkout of the cart is
// pending; the session's snapshot would no longer match the cart.
func notInCheckout(ctx context.Context, q *store.Queries, cartID string, now time.Time) error {
	pending, err := q.CountPendingCheckoutsForCart(ctx, cartID, now)
	if err != nil {
		return err
	}
	if pending > 0 {
		return &status.InvalidStateError{Entity: "cart", ID: cartID, Current: "in checkout"}
	}
	return nil
}

// ApplyDiscount sets the cart's discount. The total never drops below zero.
func (s *CartService) ApplyDiscount(ctx context.Context, cartID string, amount decimal.Decimal) (*models.Cart, error) {
	if amount.IsNegative() {
		return nil, status.Invalid("discount must not be negative")
	}

	cart, err := s.activeCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	cart.DiscountAmount = amount
	err = s.store.Tx(ctx, func(q *store.Queries) error {
		return s.recompute(ctx, q, cart)
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) activeCart(ctx context.Context, cartID string) (*models.Cart, error) {
	cart, err := s.store.Queries().FindCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.Status != models.CartActive {
		return nil, &status.InvalidStateError{Entity: "cart", ID: cartID, Current: cart.Status}
	}
	return cart, nil
}

// recompute derives the totals from the stored lines and writes them back.
func (s *CartService) recompute(ctx context.Context, q *store.Queries, cart *models.Cart) error {
	items, err := q.ListCartItems(ctx, cart.ID)
	if err != nil {
		return err
	}

	cart.Items = items
	cart.Subtotal, cart.TotalAmount = cartTotals(items, cart.DiscountAmount)
	cart.UpdatedAt = s.now()
	return q.UpdateCartTotals(ctx, cart, cart.UpdatedAt)
}

func (s *CartService) withItems(ctx context.Context, q *store.Queries, cart *models.Cart) (*models.Cart, error) {
	items, err := q.ListCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return cart, nil
}

func (s *CartService) releaseQuietly(ctx context.Context, reservationID, holder string) {
	if _, err := s.reservations.Release(ctx, reservationID, holder); err != nil && !errors.Is(err, status.ErrInvalidState) {
		slog.Error("release cart item reservation", "reservation_id", reservationID, "error", err)
	}
}

func cartTotals(items []models.CartItem, discount decimal.Decimal) (subtotal, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.TotalPrice)
	}
	total = subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return subtotal, total
}
