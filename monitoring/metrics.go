package monitoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_operations_total",
			Help: "Reservation operations by kind and result",
		},
		[]string{"operation", "result"},
	)

	checkoutCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_completions_total",
			Help: "Checkout completion attempts by result",
		},
		[]string{"result"},
	)

	reaperSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_swept_total",
			Help: "Rows transitioned by the expiry reaper",
		},
		[]string{"kind"},
	)

	fraudVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraud_verdicts_total",
			Help: "Fraud gate verdicts",
		},
		[]string{"verdict"},
	)

	fraudScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fraud_score",
			Help:    "Distribution of fraud scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	seatHoldDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seat_hold_duration_seconds",
			Help:    "Time between seat claim and confirmation",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"event_id"},
	)

	pendingReservations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_reservations",
			Help: "Reservations currently holding seats",
		},
	)

	pendingCheckouts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_checkout_sessions",
			Help: "Checkout sessions awaiting payment",
		},
	)
)

// StatsSource reports the live counts the Monitor samples.
type StatsSource interface {
	CountPendingReservations(ctx context.Context) (int, error)
	CountPendingCheckouts(ctx context.Context) (int, error)
}

// Monitor records domain metrics. A nil *Monitor is valid and still
// records counters, it just never samples gauges.
type Monitor struct {
	source   StatsSource
	interval time.Duration
}

func NewMonitor(source StatsSource, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{source: source, interval: interval}
}

// Run samples gauges until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m == nil || m.source == nil {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.collect(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) collect(ctx context.Context) {
	if n, err := m.source.CountPendingReservations(ctx); err == nil {
		pendingReservations.Set(float64(n))
	} else if ctx.Err() == nil {
		slog.Warn("sample pending reservations", "error", err)
	}
	if n, err := m.source.CountPendingCheckouts(ctx); err == nil {
		pendingCheckouts.Set(float64(n))
	} else if ctx.Err() == nil {
		slog.Warn("sample pending checkouts", "error", err)
	}
}

func (m *Monitor) TrackReservation(operation, result string) {
	reservationOperations.WithLabelValues(operation, result).Inc()
}

func (m *Monitor) TrackCheckoutCompletion(result string) {
	checkoutCompletions.WithLabelValues(result).Inc()
}

func (m *Monitor) TrackReaperSweep(kind string, n int64) {
	if n > 0 {
		reaperSwept.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Monitor) TrackFraudVerdict(score int, legitimate bool) {
	verdict := "legitimate"
	if !legitimate {
		verdict = "review_required"
	}
	fraudVerdicts.WithLabelValues(verdict).Inc()
	fraudScore.Observe(float64(score))
}

// TrackSeatHold records how long seats were held before confirmation.
func (m *Monitor) TrackSeatHold(eventID string, held time.Duration) {
	seatHoldDuration.WithLabelValues(eventID).Observe(held.Seconds())
}
