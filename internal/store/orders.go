package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/models"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"
)

type orderRow struct {
	ID               string          `db:"id"`
	CheckoutID       string          `db:"checkout_id"`
	CartID           string          `db:"cart_id"`
	UserID           string          `db:"user_id"`
	GuestEmail       string          `db:"guest_email"`
	ConfirmationCode string          `db:"confirmation_code"`
	TotalAmount      decimal.Decimal `db:"total_amount"`
	Status           string          `db:"status"`
	Created          int64           `db:"created"`
}

func (r orderRow) model() *models.Order {
	return &models.Order{
		ID:               r.ID,
		CheckoutID:       r.CheckoutID,
		CartID:           r.CartID,
		UserID:           r.UserID,
		GuestEmail:       r.GuestEmail,
		ConfirmationCode: r.ConfirmationCode,
		TotalAmount:      r.TotalAmount,
		Status:           r.Status,
		CreatedAt:        fromMS(r.Created),
	}
}

type ticketRow struct {
	ID         string          `db:"id"`
	OrderID    string          `db:"order_id"`
	EventID    string          `db:"event_id"`
	TicketType string          `db:"ticket_type"`
	SeatID     string          `db:"seat_id"`
	Price      decimal.Decimal `db:"price"`
	Status     string          `db:"status"`
	Created    int64           `db:"created"`
}

// InsertOrder writes the order row. The checkout_id uniqueness makes a
// second order for the same checkout fail as a conflict.
func (q *Queries) InsertOrder(ctx context.Context, o *models.Order) error {
	_, err := q.b.Insert("orders", dbx.Params{
		"id":                o.ID,
		"checkout_id":       o.CheckoutID,
		"cart_id":           o.CartID,
		"user_id":           o.UserID,
		"guest_email":       strings.ToLower(o.GuestEmail),
		"confirmation_code": o.ConfirmationCode,
		"total_amount":      o.TotalAmount,
		"status":            o.Status,
		"created":           ms(o.CreatedAt),
		"updated":           ms(o.CreatedAt),
	}).WithContext(ctx).Execute()
	if isUniqueViolation(err) {
		return status.Conflict("checkout %s already has an order", o.CheckoutID)
	}
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func (q *Queries) InsertTickets(ctx context.Context, tickets []models.Ticket) error {
	for i, t := range tickets {
		_, err := q.b.Insert("tickets", dbx.Params{
			"id":          t.ID,
			"order_id":    t.OrderID,
			"event_id":    t.EventID,
			"ticket_type": t.TicketType,
			"seat_id":     t.SeatID,
			"price":       t.Price,
			"status":      t.Status,
			"position":    i,
			"created":     ms(t.CreatedAt),
		}).WithContext(ctx).Execute()
		if err != nil {
			return fmt.Errorf("insert ticket %s: %w", t.ID, err)
		}
	}
	return nil
}

func (q *Queries) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	return q.findOrder(ctx, dbx.HashExp{"id": id}, id)
}

func (q *Queries) FindOrderByCheckout(ctx context.Context, checkoutID string) (*models.Order, error) {
	return q.findOrder(ctx, dbx.HashExp{"checkout_id": checkoutID}, checkoutID)
}

// FindGuestOrder looks an order up by the guest's email and confirmation
// code. Both must match; the email comparison ignores case.
func (q *Queries) FindGuestOrder(ctx context.Context, email, code string) (*models.Order, error) {
	o, err := q.findOrder(ctx, dbx.HashExp{
		"guest_email":       strings.ToLower(strings.TrimSpace(email)),
		"confirmation_code": strings.ToUpper(strings.TrimSpace(code)),
	}, code)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return nil, status.ErrRefCodeNotFound
		}
		return nil, err
	}
	return o, nil
}

func (q *Queries) findOrder(ctx context.Context, where dbx.Expression, key string) (*models.Order, error) {
	var row orderRow
	err := q.b.Select("*").From("orders").
		Where(where).
		WithContext(ctx).
		One(&row)
	if isNoRows(err) {
		return nil, status.NotFound("order", key)
	}
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", key, err)
	}

	o := row.model()
	if o.Tickets, err = q.ListTickets(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (q *Queries) ListTickets(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var rows []ticketRow
	err := q.b.Select("*").From("tickets").
		Where(dbx.HashExp{"order_id": orderID}).
		OrderBy("position ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("list tickets of %s: %w", orderID, err)
	}

	tickets := make([]models.Ticket, 0, len(rows))
	for _, r := range rows {
		tickets = append(tickets, models.Ticket{
			ID:         r.ID,
			OrderID:    r.OrderID,
			EventID:    r.EventID,
			TicketType: r.TicketType,
			SeatID:     r.SeatID,
			Price:      r.Price,
			Status:     r.Status,
			CreatedAt:  fromMS(r.Created),
		})
	}
	return tickets, nil
}

// ArchiveOrders marks confirmed orders created before the cutoff archived.
func (q *Queries) ArchiveOrders(ctx context.Context, before, now time.Time) (int64, error) {
	return affected(q.b.Update("orders",
		dbx.Params{"status": models.OrderArchived, "updated": ms(now)},
		dbx.And(
			dbx.HashExp{"status": models.OrderConfirmed},
			dbx.NewExp("created < {:before}", dbx.Params{"before": ms(before)}),
		),
	).WithContext(ctx).Execute())
}
