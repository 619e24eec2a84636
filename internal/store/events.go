package store

import (
	"context"
	"fmt"

	"ticket-checkout/internal/status"
	"ticket-checkout/models"

	"github.com/pocketbase/dbx"
)

type eventRow struct {
	ID               string `db:"id"`
	OrganizerID      string `db:"organizer_id"`
	Name             string `db:"name"`
	Venue            string `db:"venue"`
	StartTime        int64  `db:"start_time"`
	TotalSeats       int    `db:"total_seats"`
	AvailableSeats   int    `db:"available_seats"`
	AvailableTickets int    `db:"available_tickets"`
	Status           string `db:"status"`
}

func (r eventRow) model() *models.Event {
	return &models.Event{
		ID:               r.ID,
		OrganizerID:      r.OrganizerID,
		Name:             r.Name,
		Venue:            r.Venue,
		StartTime:        fromMS(r.StartTime),
		TotalSeats:       r.TotalSeats,
		AvailableSeats:   r.AvailableSeats,
		AvailableTickets: r.AvailableTickets,
		Status:           r.Status,
	}
}

func (q *Queries) InsertEvent(ctx context.Context, e models.Event) error {
	_, err := q.b.Insert("events", dbx.Params{
		"id":                e.ID,
		"organizer_id":      e.OrganizerID,
		"name":              e.Name,
		"venue":             e.Venue,
		"start_time":        ms(e.StartTime),
		"total_seats":       e.TotalSeats,
		"available_seats":   e.AvailableSeats,
		"available_tickets": e.AvailableTickets,
		"status":            e.Status,
	}).WithContext(ctx).Execute()
	if isUniqueViolation(err) {
		return status.Conflict("event %s already exists", e.ID)
	}
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return nil
}

func (q *Queries) FindEvent(ctx context.Context, id string) (*models.Event, error) {
	var row eventRow
	err := q.b.Select("*").From("events").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&row)
	if isNoRows(err) {
		return nil, status.NotFound("event", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find event %s: %w", id, err)
	}
	return row.model(), nil
}

// DecrementEventInventory takes sold units off the event counters. General
// admission units are guarded so the counter never goes negative; the
// returned count is zero when the guard rejects the update.
func (q *Queries) DecrementEventInventory(ctx context.Context, eventID string, seated, general int) (int64, error) {
	return affected(q.b.NewQuery(`UPDATE events
		SET available_seats = available_seats - {:seated},
			available_tickets = available_tickets - {:general}
		WHERE id = {:id} AND available_tickets >= {:general}`).
		Bind(dbx.Params{"id": eventID, "seated": seated, "general": general}).
		WithContext(ctx).
		Execute())
}
