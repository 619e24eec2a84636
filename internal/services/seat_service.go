package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/internal/store"
	"ticket-checkout/models"

	"github.com/shopspring/decimal"
)

// SeatService is the seat inventory ledger. It owns every seat status
// transition; callers pass the transaction-scoped queries they run in.
type SeatService struct {
	store *store.Store
}

func NewSeatService(st *store.Store) *SeatService {
	return &SeatService{store: st}
}

// Claim moves every seat in seatIDs from available to reserved under
// reservationID, or none of them. Duplicate ids count once. The caller
// must run it inside a transaction so a short claim rolls back.
func (s *SeatService) Claim(ctx context.Context, q *store.Queries, eventID, reservationID string, seatIDs []string, now time.Time) ([]models.Seat, error) {
	ids := uniqueIDs(seatIDs)
	if len(ids) == 0 {
		return nil, status.Invalid("at least one seat is required")
	}

	seats, err := q.FindSeats(ctx, eventID, ids)
	if err != nil {
		return nil, err
	}

	found := make(map[string]models.Seat, len(seats))
	for _, seat := range seats {
		found[seat.ID] = seat
	}

	var unavailable []string
	for _, id := range ids {
		if seat, ok := found[id]; !ok || seat.Status != models.SeatAvailable {
			unavailable = append(unavailable, id)
		}
	}
	if len(unavailable) > 0 {
		return nil, &status.SeatUnavailableError{
			Requested:   len(ids),
			Available:   len(ids) - len(unavailable),
			Unavailable: unavailable,
		}
	}

	n, err := q.ClaimSeats(ctx, eventID, reservationID, ids, now)
	if err != nil {
		return nil, fmt.Errorf("claim seats: %w", err)
	}
	if int(n) != len(ids) {
		// Lost a race between the read and the conditional update.
		slog.Warn("seat claim lost race", "event_id", eventID, "requested", len(ids), "claimed", n)
		return nil, &status.SeatUnavailableError{Requested: len(ids), Available: int(n)}
	}

	claimed := make([]models.Seat, 0, len(ids))
	for _, id := range ids {
		seat := found[id]
		seat.Status = models.SeatReserved
		seat.ReservationID = reservationID
		claimed = append(claimed, seat)
	}
	return claimed, nil
}

// Release returns the seats still held by reservationID to available.
func (s *SeatService) Release(ctx context.Context, q *store.Queries, reservationID string, seatIDs []string, now time.Time) (int, error) {
	ids := uniqueIDs(seatIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := q.ReleaseSeats(ctx, reservationID, ids, now)
	if err != nil {
		return 0, fmt.Errorf("release seats: %w", err)
	}
	return int(n), nil
}

// Finalize marks the seats held by reservationID as sold via orderRef. Every
// seat must still be held, otherwise nothing is sold.
func (s *SeatService) Finalize(ctx context.Context, q *store.Queries, reservationID string, seatIDs []string, orderRef string, now time.Time) (int, error) {
	ids := uniqueIDs(seatIDs)
	n, err := q.FinalizeSeats(ctx, reservationID, ids, orderRef, now)
	if err != nil {
		return 0, fmt.Errorf("finalize seats: %w", err)
	}
	if int(n) != len(ids) {
		return 0, status.Conflict("%d of %d seats of reservation %s are no longer held", len(ids)-int(n), len(ids), reservationID)
	}
	return int(n), nil
}

// CreateEvent stores an event together with its seat map. Seat counters
// are derived from the seats given.
func (s *SeatService) CreateEvent(ctx context.Context, event models.Event, seats []models.Seat) (*models.Event, error) {
	if event.ID == "" || event.Name == "" {
		return nil, status.Invalid("event id and name are required")
	}
	if event.AvailableTickets < 0 {
		return nil, status.Invalid("available tickets must not be negative")
	}
	if event.Status == "" {
		event.Status = "published"
	}
	event.TotalSeats = len(seats)
	event.AvailableSeats = len(seats)

	seen := make(map[string]struct{}, len(seats))
	for i := range seats {
		if seats[i].ID == "" {
			return nil, status.Invalid("seat %d has no id", i)
		}
		if _, dup := seen[seats[i].ID]; dup {
			return nil, status.Invalid("seat %s listed twice", seats[i].ID)
		}
		if seats[i].Price.IsNegative() {
			return nil, status.Invalid("seat %s has a negative price", seats[i].ID)
		}
		seen[seats[i].ID] = struct{}{}
		seats[i].EventID = event.ID
		seats[i].Status = models.SeatAvailable
	}

	err := s.store.Tx(ctx, func(q *store.Queries) error {
		if err := q.InsertEvent(ctx, event); err != nil {
			return err
		}
		for _, seat := range seats {
			if err := q.InsertSeat(ctx, seat); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("event created", "event_id", event.ID, "seats", len(seats), "general_tickets", event.AvailableTickets)
	return &event, nil
}

// SeatAvailability is a read-only snapshot of an event's seat map.
type SeatAvailability struct {
	EventID string         `json:"event_id"`
	Seats   []models.Seat  `json:"seats"`
	Counts  map[string]int `json:"counts"`
}

func (s *SeatService) GetSeatAvailability(ctx context.Context, eventID string) (*SeatAvailability, error) {
	q := s.store.Queries()
	if _, err := q.FindEvent(ctx, eventID); err != nil {
		return nil, err
	}

	seats, err := q.ListSeats(ctx, eventID)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{
		models.SeatAvailable: 0,
		models.SeatReserved:  0,
		models.SeatSold:      0,
	}
	for _, seat := range seats {
		counts[seat.Status]++
	}
	return &SeatAvailability{EventID: eventID, Seats: seats, Counts: counts}, nil
}

// Inventory is the organizer view of an event: counters, the seat ledger
// by status, and earnings credited so far.
type Inventory struct {
	Event      *models.Event   `json:"event"`
	SeatCounts map[string]int  `json:"seat_counts"`
	Earnings   decimal.Decimal `json:"earnings"`
}

func (s *SeatService) Inventory(ctx context.Context, eventID string) (*Inventory, error) {
	q := s.store.Queries()
	event, err := q.FindEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	counts, err := q.CountSeatsByStatus(ctx, eventID)
	if err != nil {
		return nil, err
	}

	earnings, err := q.OrganizerEarnings(ctx, event.OrganizerID)
	if err != nil {
		return nil, err
	}
	return &Inventory{Event: event, SeatCounts: counts, Earnings: earnings}, nil
}

// uniqueIDs drops empty and repeated ids, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
