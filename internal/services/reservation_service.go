package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/internal/store"
	"ticket-checkout/models"
	"ticket-checkout/monitoring"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReservationService struct {
	store   *store.Store
	seats   *SeatService
	monitor *monitoring.Monitor
	ttl     time.Duration
	now     func() time.Time
}

func NewReservationService(st *store.Store, seats *SeatService, monitor *monitoring.Monitor, ttl time.Duration) *ReservationService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ReservationService{store: st, seats: seats, monitor: monitor, ttl: ttl, now: time.Now}
}

// Reserve claims seatIDs for holder and records a pending reservation that
// lapses after the reservation TTL.
func (s *ReservationService) Reserve(ctx context.Context, eventID, holder string, seatIDs []string) (*models.Reservation, error) {
	if holder == "" {
		return nil, status.Invalid("holder is required")
	}
	ids := uniqueIDs(seatIDs)
	if len(ids) == 0 {
		return nil, status.Invalid("at least one seat is required")
	}

	now := s.now()
	r := &models.Reservation{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Holder:    holder,
		SeatIDs:   ids,
		Status:    models.ReservationPending,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	err := s.store.Tx(ctx, func(q *store.Queries) error {
		if _, err := q.FindEvent(ctx, eventID); err != nil {
			return err
		}

		claimed, err := s.seats.Claim(ctx, q, eventID, r.ID, ids, now)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, seat := range claimed {
			total = total.Add(seat.Price)
		}
		r.TotalPrice = total
		r.Seats = claimed

		return q.InsertReservation(ctx, r)
	})
	if err != nil {
		s.monitor.TrackReservation("reserve", "rejected")
		return nil, err
	}

	s.monitor.TrackReservation("reserve", "ok")
	slog.Info("seats reserved", "reservation_id", r.ID, "event_id", eventID, "seats", len(ids), "expires_at", r.ExpiresAt)
	return r, nil
}

func (s *ReservationService) Get(ctx context.Context, id string) (*models.Reservation, error) {
	return s.store.Queries().FindReservation(ctx, id)
}

// Release gives the seats of a pending reservation back. Only the holder
// may release; other callers see the reservation as missing.
func (s *ReservationService) Release(ctx context.Context, id, holder string) (int, error) {
	var released int
	err := s.store.Tx(ctx, func(q *store.Queries) error {
		var err error
		released, err = s.release(ctx, q, id, holder, s.now())
		return err
	})
	if err != nil {
		s.monitor.TrackReservation("release", "rejected")
		return 0, err
	}

	s.monitor.TrackReservation("release", "ok")
	slog.Info("reservation released", "reservation_id", id, "seats", released)
	return released, nil
}

func (s *ReservationService) release(ctx context.Context, q *store.Queries, id, holder string, now time.Time) (int, error) {
	r, err := q.FindReservation(ctx, id)
	if err != nil {
		return 0, err
	}
	if holder != "" && r.Holder != holder {
		return 0, status.NotFound("reservation", id)
	}

	n, err := q.ReleaseReservation(ctx, id, now)
	if err != nil {
		return 0, fmt.Errorf("release reservation %s: %w", id, err)
	}
	if n == 0 {
		return 0, s.stateError(ctx, q, id, now)
	}
	return s.seats.Release(ctx, q, id, r.SeatIDs, now)
}

// Confirm sells the seats of a pending reservation against a cleared
// payment opened for that reservation. The payment is spent in the same
// transaction, so it can never pay for anything else.
func (s *ReservationService) Confirm(ctx context.Context, id, paymentRef string) (int, error) {
	spentBy := "reservation:" + id
	payment, err := clearedPayment(ctx, s.store.Queries(), paymentRef, spentBy)
	if err != nil {
		return 0, err
	}
	if payment.ReservationID != id {
		return 0, status.Invalid("payment %s belongs to another purchase", paymentRef)
	}

	var confirmed int
	err = s.store.Tx(ctx, func(q *store.Queries) error {
		r, err := q.FindReservation(ctx, id)
		if err != nil {
			return err
		}
		if payment.Amount.LessThan(r.TotalPrice) {
			return status.Invalid("payment %s of %s does not cover %s", paymentRef, payment.Amount, r.TotalPrice)
		}

		now := s.now()
		if confirmed, err = s.confirmHeld(ctx, q, r, paymentRef, paymentRef, now); err != nil {
			return err
		}
		if err := spendPayment(ctx, q, payment, spentBy, now); err != nil {
			return err
		}
		if _, err := q.DecrementEventInventory(ctx, r.EventID, confirmed, 0); err != nil {
			return fmt.Errorf("decrement inventory of %s: %w", r.EventID, err)
		}
		return nil
	})
	if err != nil {
		s.monitor.TrackReservation("confirm", "rejected")
		return 0, err
	}

	s.monitor.TrackReservation("confirm", "ok")
	slog.Info("reservation confirmed", "reservation_id", id, "payment_ref", paymentRef, "seats", confirmed)
	return confirmed, nil
}

// confirmHeld runs inside a transaction: it wins the pending to confirmed
// transition and sells the seats via soldVia.
func (s *ReservationService) confirmHeld(ctx context.Context, q *store.Queries, r *models.Reservation, paymentRef, soldVia string, now time.Time) (int, error) {
	n, err := q.ConfirmReservation(ctx, r.ID, paymentRef, now)
	if err != nil {
		return 0, fmt.Errorf("confirm reservation %s: %w", r.ID, err)
	}
	if n == 0 {
		return 0, s.stateError(ctx, q, r.ID, now)
	}

	sold, err := s.seats.Finalize(ctx, q, r.ID, r.SeatIDs, soldVia, now)
	if err != nil {
		return 0, err
	}
	s.monitor.TrackSeatHold(r.EventID, now.Sub(r.CreatedAt))
	return sold, nil
}

// holdUntil makes sure a pending reservation lives at least until deadline.
func (s *ReservationService) holdUntil(ctx context.Context, q *store.Queries, id, holder string, deadline, now time.Time) error {
	r, err := q.FindReservation(ctx, id)
	if err != nil {
		return err
	}
	if r.Holder != holder {
		return status.Conflict("reservation %s belongs to another holder", id)
	}
	if r.Status != models.ReservationPending || !now.Before(r.ExpiresAt) {
		return status.Conflict("reservation %s is no longer held", id)
	}
	if _, err := q.ExtendReservation(ctx, id, deadline, now); err != nil {
		return fmt.Errorf("extend reservation %s: %w", id, err)
	}
	return nil
}

// stateError reports why a status transition on reservation id was refused.
func (s *ReservationService) stateError(ctx context.Context, q *store.Queries, id string, now time.Time) error {
	r, err := q.FindReservation(ctx, id)
	if err != nil {
		return err
	}
	current := r.Status
	if current == models.ReservationPending && !now.Before(r.ExpiresAt) {
		current = models.ReservationExpired
	}
	return &status.InvalidStateError{Entity: "reservation", ID: id, Current: current}
}
