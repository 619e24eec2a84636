package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-checkout/internal/store"
	"ticket-checkout/models"
	"ticket-checkout/monitoring"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const reaperLockKey = "lock:reaper"

// releaseLockScript deletes the lock only if this instance still owns it.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type ReaperConfig struct {
	Interval        time.Duration
	BatchSize       int
	CartIdleTTL     time.Duration
	OrderArchiveAge time.Duration
}

// SweepStats counts what one sweep transitioned.
type SweepStats struct {
	Reservations  int64 `json:"reservations"`
	SeatsReleased int64 `json:"seats_released"`
	Checkouts     int64 `json:"checkouts"`
	Carts         int64 `json:"carts"`
	Orders        int64 `json:"orders"`
}

// Reaper expires stale reservations, checkout sessions and carts on an
// interval. With a redis client only one instance sweeps per interval.
type Reaper struct {
	store   *store.Store
	seats   *SeatService
	redis   redis.Cmdable
	monitor *monitoring.Monitor
	cfg     ReaperConfig
	token   string
	now     func() time.Time

	// beforeCommit runs inside each expiry transaction; an error rolls it back.
	beforeCommit func(reservationID string) error
}

func NewReaper(st *store.Store, seats *SeatService, rdb redis.Cmdable, monitor *monitoring.Monitor, cfg ReaperConfig) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Reaper{
		store:   st,
		seats:   seats,
		redis:   rdb,
		monitor: monitor,
		cfg:     cfg,
		token:   uuid.NewString(),
		now:     time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.Info("expiry reaper started", "interval", r.cfg.Interval)
	for {
		r.tick(ctx)
		select {
		case <-ctx.Done():
			slog.Info("expiry reaper stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	ok, err := r.acquire(ctx)
	if err != nil {
		slog.Error("reaper lock", "error", err)
		return
	}
	if !ok {
		return
	}
	defer r.release(ctx)

	stats, err := r.Sweep(ctx)
	if err != nil && ctx.Err() == nil {
		slog.Error("reaper sweep", "error", err)
	}
	if stats.Reservations+stats.Checkouts+stats.Carts+stats.Orders > 0 {
		slog.Info("reaper sweep done",
			"reservations", stats.Reservations,
			"seats_released", stats.SeatsReleased,
			"checkouts", stats.Checkouts,
			"carts", stats.Carts,
			"orders_archived", stats.Orders,
		)
	}
}

func (r *Reaper) acquire(ctx context.Context) (bool, error) {
	if r.redis == nil {
		return true, nil
	}
	return r.redis.SetNX(ctx, reaperLockKey, r.token, r.cfg.Interval).Result()
}

func (r *Reaper) release(ctx context.Context) {
	if r.redis == nil {
		return
	}
	if err := releaseLockScript.Run(ctx, r.redis, []string{reaperLockKey}, r.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("reaper unlock", "error", err)
	}
}

// Sweep runs every housekeeping pass once. A failing pass does not stop
// the others; the first error is returned.
func (r *Reaper) Sweep(ctx context.Context) (SweepStats, error) {
	var (
		stats    SweepStats
		firstErr error
	)
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(r.sweepReservations(ctx, &stats))

	now := r.now()
	q := r.store.Queries()

	n, err := q.ExpireCheckouts(ctx, now)
	keep(err)
	stats.Checkouts = n

	if r.cfg.CartIdleTTL > 0 {
		n, err = q.ExpireIdleCarts(ctx, now.Add(-r.cfg.CartIdleTTL), now)
		keep(err)
		stats.Carts = n
	}

	if r.cfg.OrderArchiveAge > 0 {
		n, err = q.ArchiveOrders(ctx, now.Add(-r.cfg.OrderArchiveAge), now)
		keep(err)
		stats.Orders = n
	}

	r.monitor.TrackReaperSweep("reservations", stats.Reservations)
	r.monitor.TrackReaperSweep("checkouts", stats.Checkouts)
	r.monitor.TrackReaperSweep("carts", stats.Carts)
	r.monitor.TrackReaperSweep("orders", stats.Orders)
	return stats, firstErr
}

// sweepReservations expires lapsed reservations in batches. Each one is
// marked expired and has its seats released in the same transaction.
func (r *Reaper) sweepReservations(ctx context.Context, stats *SweepStats) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		now := r.now()
		expired, err := r.store.Queries().ListExpiredReservations(ctx, now, r.cfg.BatchSize)
		if err != nil {
			return err
		}

		for _, res := range expired {
			released, err := r.expireReservation(ctx, res, now)
			if err != nil {
				return fmt.Errorf("expire reservation %s: %w", res.ID, err)
			}
			// Counted only once the transaction has committed.
			if released >= 0 {
				stats.Reservations++
				stats.SeatsReleased += released
			}
		}

		if len(expired) < r.cfg.BatchSize {
			return nil
		}
	}
}

// expireReservation marks one reservation expired and releases its seats.
// It returns -1 when the reservation left pending since it was listed.
func (r *Reaper) expireReservation(ctx context.Context, res *models.Reservation, now time.Time) (int64, error) {
	released := int64(-1)
	err := r.store.Tx(ctx, func(q *store.Queries) error {
		n, err := q.ExpireReservation(ctx, res.ID, now)
		if err != nil {
			return err
		}
		if n == 0 {
			// Confirmed or released since it was listed.
			return nil
		}
		seats, err := r.seats.Release(ctx, q, res.ID, res.SeatIDs, now)
		if err != nil {
			return err
		}
		if r.beforeCommit != nil {
			if err := r.beforeCommit(res.ID); err != nil {
				return err
			}
		}
		released = int64(seats)
		return nil
	})
	if err != nil {
		return -1, err
	}
	return released, nil
}
