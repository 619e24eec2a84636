package store

import (
	"context"
	"fmt"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/models"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"
)

type seatRow struct {
	ID            string          `db:"id"`
	EventID       string          `db:"event_id"`
	Section       string          `db:"section"`
	RowLabel      string          `db:"row_label"`
	Number        int             `db:"number"`
	Price         decimal.Decimal `db:"price"`
	Status        string          `db:"status"`
	ReservationID string          `db:"reservation_id"`
	SoldVia       string          `db:"sold_via"`
}

func (r seatRow) model() models.Seat {
	return models.Seat{
		ID:            r.ID,
		EventID:       r.EventID,
		Section:       r.Section,
		Row:           r.RowLabel,
		Number:        r.Number,
		Price:         r.Price,
		Status:        r.Status,
		ReservationID: r.ReservationID,
		SoldVia:       r.SoldVia,
	}
}

func seatModels(rows []seatRow) []models.Seat {
	seats := make([]models.Seat, len(rows))
	for i, r := range rows {
		seats[i] = r.model()
	}
	return seats
}

func (q *Queries) InsertSeat(ctx context.Context, s models.Seat) error {
	if s.Status == "" {
		s.Status = models.SeatAvailable
	}
	_, err := q.b.Insert("seats", dbx.Params{
		"id":             s.ID,
		"event_id":       s.EventID,
		"section":        s.Section,
		"row_label":      s.Row,
		"number":         s.Number,
		"price":          s.Price,
		"status":         s.Status,
		"reservation_id": s.ReservationID,
		"sold_via":       s.SoldVia,
		"updated":        ms(time.Now()),
	}).WithContext(ctx).Execute()
	if isUniqueViolation(err) {
		return status.Conflict("seat %s already exists", s.ID)
	}
	if err != nil {
		return fmt.Errorf("insert seat %s: %w", s.ID, err)
	}
	return nil
}

// FindSeats returns the seats of eventID among ids. Missing ids are simply
// absent from the result.
func (q *Queries) FindSeats(ctx context.Context, eventID string, ids []string) ([]models.Seat, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []seatRow
	err := q.b.Select("*").From("seats").
		Where(dbx.HashExp{"event_id": eventID}).
		AndWhere(dbx.In("id", toAny(ids)...)).
		OrderBy("section ASC", "row_label ASC", "number ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("find seats for event %s: %w", eventID, err)
	}
	return seatModels(rows), nil
}

func (q *Queries) ListSeats(ctx context.Context, eventID string) ([]models.Seat, error) {
	var rows []seatRow
	err := q.b.Select("*").From("seats").
		Where(dbx.HashExp{"event_id": eventID}).
		OrderBy("section ASC", "row_label ASC", "number ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("list seats for event %s: %w", eventID, err)
	}
	return seatModels(rows), nil
}

// ClaimSeats moves ids from available to reserved under reservationID. Only
// seats that are currently available are touched.
func (q *Queries) ClaimSeats(ctx context.Context, eventID, reservationID string, ids []string, now time.Time) (int64, error) {
	return affected(q.b.Update("seats",
		dbx.Params{
			"status":         models.SeatReserved,
			"reservation_id": reservationID,
			"updated":        ms(now),
		},
		dbx.And(
			dbx.HashExp{"event_id": eventID, "status": models.SeatAvailable},
			dbx.In("id", toAny(ids)...),
		),
	).WithContext(ctx).Execute())
}

// ReleaseSeats returns seats held by reservationID to available.
func (q *Queries) ReleaseSeats(ctx context.Context, reservationID string, ids []string, now time.Time) (int64, error) {
	return affected(q.b.Update("seats",
		dbx.Params{
			"status":         models.SeatAvailable,
			"reservation_id": "",
			"updated":        ms(now),
		},
		dbx.And(
			dbx.HashExp{"status": models.SeatReserved, "reservation_id": reservationID},
			dbx.In("id", toAny(ids)...),
		),
	).WithContext(ctx).Execute())
}

// FinalizeSeats marks seats held by reservationID as sold via orderRef.
func (q *Queries) FinalizeSeats(ctx context.Context, reservationID string, ids []string, orderRef string, now time.Time) (int64, error) {
	return affected(q.b.Update("seats",
		dbx.Params{
			"status":   models.SeatSold,
			"sold_via": orderRef,
			"updated":  ms(now),
		},
		dbx.And(
			dbx.HashExp{"status": models.SeatReserved, "reservation_id": reservationID},
			dbx.In("id", toAny(ids)...),
		),
	).WithContext(ctx).Execute())
}

// CountSeatsByStatus returns the seat count per status for an event.
func (q *Queries) CountSeatsByStatus(ctx context.Context, eventID string) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	err := q.b.NewQuery("SELECT status, COUNT(*) AS n FROM seats WHERE event_id = {:event} GROUP BY status").
		Bind(dbx.Params{"event": eventID}).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("count seats for event %s: %w", eventID, err)
	}
	counts := map[string]int{
		models.SeatAvailable: 0,
		models.SeatReserved:  0,
		models.SeatSold:      0,
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
