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

type reservationRow struct {
	ID         string          `db:"id"`
	EventID    string          `db:"event_id"`
	Holder     string          `db:"holder"`
	SeatIDs    string          `db:"seat_ids"`
	Status     string          `db:"status"`
	PaymentRef string          `db:"payment_ref"`
	TotalPrice decimal.Decimal `db:"total_price"`
	ExpiresAt  int64           `db:"expires_at"`
	Created    int64           `db:"created"`
}

func (r reservationRow) model() (*models.Reservation, error) {
	var seatIDs []string
	if err := json.Unmarshal([]byte(r.SeatIDs), &seatIDs); err != nil {
		return nil, fmt.Errorf("decode seat ids of reservation %s: %w", r.ID, err)
	}
	return &models.Reservation{
		ID:         r.ID,
		EventID:    r.EventID,
		Holder:     r.Holder,
		SeatIDs:    seatIDs,
		Status:     r.Status,
		PaymentRef: r.PaymentRef,
		TotalPrice: r.TotalPrice,
		ExpiresAt:  fromMS(r.ExpiresAt),
		CreatedAt:  fromMS(r.Created),
	}, nil
}

func encodeIDs(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(ids)
	return string(data)
}

func (q *Queries) InsertReservation(ctx context.Context, r *models.Reservation) error {
	_, err := q.b.Insert("reservations", dbx.Params{
		"id":          r.ID,
		"event_id":    r.EventID,
		"holder":      r.Holder,
		"seat_ids":    encodeIDs(r.SeatIDs),
		"status":      r.Status,
		"payment_ref": r.PaymentRef,
		"total_price": r.TotalPrice,
		"expires_at":  ms(r.ExpiresAt),
		"created":     ms(r.CreatedAt),
		"updated":     ms(r.CreatedAt),
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("insert reservation %s: %w", r.ID, err)
	}
	return nil
}

func (q *Queries) FindReservation(ctx context.Context, id string) (*models.Reservation, error) {
	var row reservationRow
	err := q.b.Select("*").From("reservations").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&row)
	if isNoRows(err) {
		return nil, status.NotFound("reservation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find reservation %s: %w", id, err)
	}
	return row.model()
}

// ReleaseReservation moves a pending reservation to released.
func (q *Queries) ReleaseReservation(ctx context.Context, id string, now time.Time) (int64, error) {
	return affected(q.b.Update("reservations",
		dbx.Params{"status": models.ReservationReleased, "updated": ms(now)},
		dbx.HashExp{"id": id, "status": models.ReservationPending},
	).WithContext(ctx).Execute())
}

// ConfirmReservation moves a pending, unexpired reservation to confirmed.
func (q *Queries) ConfirmReservation(ctx context.Context, id, paymentRef string, now time.Time) (int64, error) {
	return affected(q.b.Update("reservations",
		dbx.Params{
			"status":      models.ReservationConfirmed,
			"payment_ref": paymentRef,
			"updated":     ms(now),
		},
		dbx.And(
			dbx.HashExp{"id": id, "status": models.ReservationPending},
			dbx.NewExp("expires_at > {:now}", dbx.Params{"now": ms(now)}),
		),
	).WithContext(ctx).Execute())
}

// ExtendReservation pushes the deadline of a live pending reservation out to
// until. Deadlines already past until are left alone.
func (q *Queries) ExtendReservation(ctx context.Context, id string, until, now time.Time) (int64, error) {
	return affected(q.b.Update("reservations",
		dbx.Params{"expires_at": ms(until), "updated": ms(now)},
		dbx.And(
			dbx.HashExp{"id": id, "status": models.ReservationPending},
			dbx.NewExp("expires_at > {:now} AND expires_at < {:until}", dbx.Params{"now": ms(now), "until": ms(until)}),
		),
	).WithContext(ctx).Execute())
}

// ExpireReservation moves a pending reservation whose deadline has passed
// to expired.
func (q *Queries) ExpireReservation(ctx context.Context, id string, now time.Time) (int64, error) {
	return affected(q.b.Update("reservations",
		dbx.Params{"status": models.ReservationExpired, "updated": ms(now)},
		dbx.And(
			dbx.HashExp{"id": id, "status": models.ReservationPending},
			dbx.NewExp("expires_at < {:now}", dbx.Params{"now": ms(now)}),
		),
	).WithContext(ctx).Execute())
}

func (q *Queries) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*models.Reservation, error) {
	var rows []reservationRow
	err := q.b.Select("*").From("reservations").
		Where(dbx.HashExp{"status": models.ReservationPending}).
		AndWhere(dbx.NewExp("expires_at < {:now}", dbx.Params{"now": ms(now)})).
		OrderBy("expires_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}

	out := make([]*models.Reservation, 0, len(rows))
	for _, row := range rows {
		r, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (q *Queries) CountPendingReservations(ctx context.Context) (int, error) {
	var n int
	err := q.b.Select("COUNT(*)").From("reservations").
		Where(dbx.HashExp{"status": models.ReservationPending}).
		WithContext(ctx).
		Row(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending reservations: %w", err)
	}
	return n, nil
}
