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

type cartRow struct {
	ID             string          `db:"id"`
	OwnerType      string          `db:"owner_type"`
	OwnerID        string          `db:"owner_id"`
	Status         string          `db:"status"`
	Subtotal       decimal.Decimal `db:"subtotal"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	TotalAmount    decimal.Decimal `db:"total_amount"`
	Created        int64           `db:"created"`
	Updated        int64           `db:"updated"`
}

func (r cartRow) model() *models.Cart {
	return &models.Cart{
		ID:             r.ID,
		OwnerType:      r.OwnerType,
		OwnerID:        r.OwnerID,
		Status:         r.Status,
		Subtotal:       r.Subtotal,
		DiscountAmount: r.DiscountAmount,
		TotalAmount:    r.TotalAmount,
		CreatedAt:      fromMS(r.Created),
		UpdatedAt:      fromMS(r.Updated),
	}
}

type cartItemRow struct {
	ID            string          `db:"id"`
	CartID        string          `db:"cart_id"`
	EventID       string          `db:"event_id"`
	TicketType    string          `db:"ticket_type"`
	Quantity      int             `db:"quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price"`
	SeatIDs       string          `db:"seat_ids"`
	ReservationID string          `db:"reservation_id"`
	TotalPrice    decimal.Decimal `db:"total_price"`
	Created       int64           `db:"created"`
}

func (r cartItemRow) model() (models.CartItem, error) {
	var seatIDs []string
	if err := json.Unmarshal([]byte(r.SeatIDs), &seatIDs); err != nil {
		return models.CartItem{}, fmt.Errorf("decode seat ids of cart item %s: %w", r.ID, err)
	}
	return models.CartItem{
		ID:            r.ID,
		CartID:        r.CartID,
		EventID:       r.EventID,
		TicketType:    r.TicketType,
		Quantity:      r.Quantity,
		UnitPrice:     r.UnitPrice,
		SeatIDs:       seatIDs,
		ReservationID: r.ReservationID,
		TotalPrice:    r.TotalPrice,
		CreatedAt:     fromMS(r.Created),
	}, nil
}

// InsertCart creates a cart. A second active cart for the same owner
// violates the partial unique index and is reported as a conflict.
func (q *Queries) InsertCart(ctx context.Context, c *models.Cart) error {
	_, err := q.b.Insert("carts", dbx.Params{
		"id":              c.ID,
		"owner_type":      c.OwnerType,
		"owner_id":        c.OwnerID,
		"status":          c.Status,
		"subtotal":        c.Subtotal,
		"discount_amount": c.DiscountAmount,
		"total_amount":    c.TotalAmount,
		"created":         ms(c.CreatedAt),
		"updated":         ms(c.UpdatedAt),
	}).WithContext(ctx).Execute()
	if isUniqueViolation(err) {
		return status.Conflict("owner %s already has an active cart", c.OwnerID)
	}
	if err != nil {
		return fmt.Errorf("insert cart %s: %w", c.ID, err)
	}
	return nil
}

func (q *Queries) FindCart(ctx context.Context, id string) (*models.Cart, error) {
	var row cartRow
	err := q.b.Select("*").From("carts").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&row)
	if isNoRows(err) {
		return nil, status.NotFound("cart", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find cart %s: %w", id, err)
	}
	return row.model(), nil
}

func (q *Queries) FindActiveCart(ctx context.Context, ownerType, ownerID string) (*models.Cart, error) {
	var row cartRow
	err := q.b.Select("*").From("carts").
		Where(dbx.HashExp{"owner_type": ownerType, "owner_id": ownerID, "status": models.CartActive}).
		WithContext(ctx).
		One(&row)
	if isNoRows(err) {
		return nil, status.NotFound("active cart for", ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("find active cart of %s: %w", ownerID, err)
	}
	return row.model(), nil
}

func (q *Queries) UpdateCartTotals(ctx context.Context, c *models.Cart, now time.Time) error {
	_, err := q.b.Update("carts",
		dbx.Params{
			"subtotal":        c.Subtotal,
			"discount_amount": c.DiscountAmount,
			"total_amount":    c.TotalAmount,
			"updated":         ms(now),
		},
		dbx.HashExp{"id": c.ID},
	).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("update cart totals %s: %w", c.ID, err)
	}
	return nil
}

// SetCartStatus moves a cart from one status to another.
func (q *Queries) SetCartStatus(ctx context.Context, id, from, to string, now time.Time) (int64, error) {
	return affected(q.b.Update("carts",
		dbx.Params{"status": to, "updated": ms(now)},
		dbx.HashExp{"id": id, "status": from},
	).WithContext(ctx).Execute())
}

// ExpireIdleCarts expires active carts untouched since before.
func (q *Queries) ExpireIdleCarts(ctx context.Context, before, now time.Time) (int64, error) {
	return affected(q.b.Update("carts",
		dbx.Params{"status": models.CartExpired, "updated": ms(now)},
		dbx.And(
			dbx.HashExp{"status": models.CartActive},
			dbx.NewExp("updated < {:before}", dbx.Params{"before": ms(before)}),
		),
	).WithContext(ctx).Execute())
}

func (q *Queries) InsertCartItem(ctx context.Context, it *models.CartItem) error {
	_, err := q.b.Insert("cart_items", dbx.Params{
		"id":             it.ID,
		"cart_id":        it.CartID,
		"event_id":       it.EventID,
		"ticket_type":    it.TicketType,
		"quantity":       it.Quantity,
		"unit_price":     it.UnitPrice,
		"seat_ids":       encodeIDs(it.SeatIDs),
		"reservation_id": it.ReservationID,
		"total_price":    it.TotalPrice,
		"created":        ms(it.CreatedAt),
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("insert cart item %s: %w", it.ID, err)
	}
	return nil
}

func (q *Queries) ListCartItems(ctx context.Context, cartID string) ([]models.CartItem, error) {
	var rows []cartItemRow
	err := q.b.Select("*").From("cart_items").
		Where(dbx.HashExp{"cart_id": cartID}).
		OrderBy("created ASC", "id ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("list cart items of %s: %w", cartID, err)
	}

	items := make([]models.CartItem, 0, len(rows))
	for _, row := range rows {
		it, err := row.model()
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (q *Queries) FindCartItem(ctx context.Context, cartID, itemID string) (*models.CartItem, error) {
	var row cartItemRow
	err := q.b.Select("*").From("cart_items").
		Where(dbx.HashExp{"id": itemID, "cart_id": cartID}).
		WithContext(ctx).
		One(&row)
	if isNoRows(err) {
		return nil, status.NotFound("cart item", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("find cart item %s: %w", itemID, err)
	}
	it, err := row.model()
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (q *Queries) DeleteCartItem(ctx context.Context, cartID, itemID string) (int64, error) {
	return affected(q.b.Delete("cart_items",
		dbx.HashExp{"id": itemID, "cart_id": cartID},
	).WithContext(ctx).Execute())
}
