package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/models"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"
)

type checkoutRow struct {
	ID             string          `db:"id"`
	CartID         string          `db:"cart_id"`
	UserID         string          `db:"user_id"`
	GuestEmail     string          `db:"guest_email"`
	GuestFirstName string          `db:"guest_first_name"`
	GuestLastName  string          `db:"guest_last_name"`
	GuestPhone     string          `db:"guest_phone"`
	Billing        string          `db:"billing"`
	Region         string          `db:"region"`
	Subtotal       decimal.Decimal `db:"subtotal"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	TaxAmount      decimal.Decimal `db:"tax_amount"`
	TotalAmount    decimal.Decimal `db:"total_amount"`
	PaymentMethod  string          `db:"payment_method"`
	Status         string          `db:"status"`
	OrderID        string          `db:"order_id"`
	ExpiresAt      int64           `db:"expires_at"`
	Created        int64           `db:"created"`
}

func (r checkoutRow) model() (*models.CheckoutSession, error) {
	s := &models.CheckoutSession{
		ID:             r.ID,
		CartID:         r.CartID,
		UserID:         r.UserID,
		Region:         r.Region,
		Subtotal:       r.Subtotal,
		DiscountAmount: r.DiscountAmount,
		TaxAmount:      r.TaxAmount,
		TotalAmount:    r.TotalAmount,
		PaymentMethod:  r.PaymentMethod,
		Status:         r.Status,
		OrderID:        r.OrderID,
		ExpiresAt:      fromMS(r.ExpiresAt),
		CreatedAt:      fromMS(r.Created),
	}
	if err := json.Unmarshal([]byte(r.Billing), &s.Billing); err != nil {
		return nil, fmt.Errorf("decode billing of checkout %s: %w", r.ID, err)
	}
	if r.GuestEmail != "" {
		s.Guest = &models.GuestContact{
			Email:     r.GuestEmail,
			FirstName: r.GuestFirstName,
			LastName:  r.GuestLastName,
			Phone:     r.GuestPhone,
		}
	}
	return s, nil
}

type checkoutItemRow struct {
	ID            string          `db:"id"`
	CheckoutID    string          `db:"checkout_id"`
	CartItemID    string          `db:"cart_item_id"`
	EventID       string          `db:"event_id"`
	TicketType    string          `db:"ticket_type"`
	Quantity      int             `db:"quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price"`
	SeatIDs       string          `db:"seat_ids"`
	ReservationID string          `db:"reservation_id"`
	TotalPrice    decimal.Decimal `db:"total_price"`
}

// InsertCheckout stores the session together with the snapshot of its
// items. Call it inside Tx so the snapshot is never partial.
func (q *Queries) InsertCheckout(ctx context.Context, s *models.CheckoutSession) error {
	billing, err := json.Marshal(s.Billing)
	if err != nil {
		return fmt.Errorf("encode billing: %w", err)
	}

	params := dbx.Params{
		"id":              s.ID,
		"cart_id":         s.CartID,
		"user_id":         s.UserID,
		"billing":         string(billing),
		"region":          s.Region,
		"subtotal":        s.Subtotal,
		"discount_amount": s.DiscountAmount,
		"tax_amount":      s.TaxAmount,
		"total_amount":    s.TotalAmount,
		"payment_method":  s.PaymentMethod,
		"status":          s.Status,
		"order_id":        s.OrderID,
		"expires_at":      ms(s.ExpiresAt),
		"created":         ms(s.CreatedAt),
		"updated":         ms(s.CreatedAt),
	}
	if s.Guest != nil {
		params["guest_email"] = s.Guest.Email
		params["guest_first_name"] = s.Guest.FirstName
		params["guest_last_name"] = s.Guest.LastName
		params["guest_phone"] = s.Guest.Phone
	}
	if _, err := q.b.Insert("checkout_sessions", params).WithContext(ctx).Execute(); err != nil {
		return fmt.Errorf("insert checkout %s: %w", s.ID, err)
	}

	for i, it := range s.Items {
		_, err := q.b.Insert("checkout_items", dbx.Params{
			"id":             fmt.Sprintf("%s-%d", s.ID, i),
			"checkout_id":    s.ID,
			"cart_item_id":   it.ID,
			"event_id":       it.EventID,
			"ticket_type":    it.TicketType,
			"quantity":       it.Quantity,
			"unit_price":     it.UnitPrice,
			"seat_ids":       encodeIDs(it.SeatIDs),
			"reservation_id": it.ReservationID,
			"total_price":    it.TotalPrice,
			"position":       i,
		}).WithContext(ctx).Execute()
		if err != nil {
			return fmt.Errorf("insert checkout item %d of %s: %w", i, s.ID, err)
		}
	}
	return nil
}

// FindCheckout loads a session with its item snapshot.
func (q *Queries) FindCheckout(ctx context.Context, id string) (*models.CheckoutSession, error) {
	var row checkoutRow
	err := q.b.Select("*").From("checkout_sessions").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&row)
	if isNoRows(err) {
		return nil, status.ErrCheckoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find checkout %s: %w", id, err)
	}

	s, err := row.model()
	if err != nil {
		return nil, err
	}
	if s.Items, err = q.ListCheckoutItems(ctx, id); err != nil {
		return nil, err
	}
	return s, nil
}

func (q *Queries) ListCheckoutItems(ctx context.Context, checkoutID string) ([]models.CartItem, error) {
	var rows []checkoutItemRow
	err := q.b.Select("*").From("checkout_items").
		Where(dbx.HashExp{"checkout_id": checkoutID}).
		OrderBy("position ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("list checkout items of %s: %w", checkoutID, err)
	}

	items := make([]models.CartItem, 0, len(rows))
	for _, r := range rows {
		var seatIDs []string
		if err := json.Unmarshal([]byte(r.SeatIDs), &seatIDs); err != nil {
			return nil, fmt.Errorf("decode seat ids of checkout item %s: %w", r.ID, err)
		}
		items = append(items, models.CartItem{
			ID:            r.CartItemID,
			EventID:       r.EventID,
			TicketType:    r.TicketType,
			Quantity:      r.Quantity,
			UnitPrice:     r.UnitPrice,
			SeatIDs:       seatIDs,
			ReservationID: r.ReservationID,
			TotalPrice:    r.TotalPrice,
		})
	}
	return items, nil
}

// CompleteCheckout is the single gate for order creation: only one caller
// can move a pending, unexpired session to completed.
func (q *Queries) CompleteCheckout(ctx context.Context, id, orderID string, now time.Time) (int64, error) {
	return affected(q.b.Update("checkout_sessions",
		dbx.Params{"status": models.CheckoutCompleted, "order_id": orderID, "updated": ms(now)},
		dbx.And(
			dbx.HashExp{"id": id, "status": models.CheckoutPending},
			dbx.NewExp("expires_at > {:now}", dbx.Params{"now": ms(now)}),
		),
	).WithContext(ctx).Execute())
}

func (q *Queries) CancelCheckout(ctx context.Context, id string, now time.Time) (int64, error) {
	return affected(q.b.Update("checkout_sessions",
		dbx.Params{"status": models.CheckoutCancelled, "updated": ms(now)},
		dbx.HashExp{"id": id, "status": models.CheckoutPending},
	).WithContext(ctx).Execute())
}

// ExpireCheckouts moves every pending session whose TTL has passed to expired.
func (q *Queries) ExpireCheckouts(ctx context.Context, now time.Time) (int64, error) {
	return affected(q.b.Update("checkout_sessions",
		dbx.Params{"status": models.CheckoutExpired, "updated": ms(now)},
		dbx.And(
			dbx.HashExp{"status": models.CheckoutPending},
			dbx.NewExp("expires_at <= {:now}", dbx.Params{"now": ms(now)}),
		),
	).WithContext(ctx).Execute())
}

// CountPendingCheckoutsForCart counts live sessions of a cart.
func (q *Queries) CountPendingCheckoutsForCart(ctx context.Context, cartID string, now time.Time) (int, error) {
	var n int
	err := q.b.Select("COUNT(*)").From("checkout_sessions").
		Where(dbx.HashExp{"cart_id": cartID, "status": models.CheckoutPending}).
		AndWhere(dbx.NewExp("expires_at > {:now}", dbx.Params{"now": ms(now)})).
		WithContext(ctx).
		Row(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending checkouts of cart %s: %w", cartID, err)
	}
	return n, nil
}

func (q *Queries) CountPendingCheckouts(ctx context.Context) (int, error) {
	var n int
	err := q.b.Select("COUNT(*)").From("checkout_sessions").
		Where(dbx.HashExp{"status": models.CheckoutPending}).
		WithContext(ctx).
		Row(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending checkouts: %w", err)
	}
	return n, nil
}
