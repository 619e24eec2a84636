package services

import (
	"context"
	"log/slog"
	"time"

	"ticket-checkout/config"
	"ticket-checkout/internal/store"
	"ticket-checkout/models"
	"ticket-checkout/monitoring"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	outOfBandWeight    = 20
	frequencyWeight    = 0
	highValueWeight    = 10
	deviceWeight       = 15
	geoWeight          = 15
	reviewScoreCeiling = 50
)

// RiskSignal reports whether a payment passes one consistency check.
type RiskSignal func(ctx context.Context, p *models.PaymentTransaction) bool

func alwaysPass(context.Context, *models.PaymentTransaction) bool { return true }

type FraudConfig struct {
	MethodBands     map[string]config.Band
	HighValue       decimal.Decimal
	FrequencyLimit  int
	FrequencyWindow time.Duration
}

// FraudService scores payments before they may fulfil a checkout. It only
// reads payments; flagging is left to the caller.
type FraudService struct {
	store   *store.Store
	cfg     FraudConfig
	device  RiskSignal
	geo     RiskSignal
	monitor *monitoring.Monitor
	now     func() time.Time
}

func NewFraudService(st *store.Store, cfg FraudConfig, monitor *monitoring.Monitor) *FraudService {
	if cfg.FrequencyWindow <= 0 {
		cfg.FrequencyWindow = time.Hour
	}
	return &FraudService{
		store:   st,
		cfg:     cfg,
		device:  alwaysPass,
		geo:     alwaysPass,
		monitor: monitor,
		now:     time.Now,
	}
}

// WithSignals replaces the device and geo consistency checks. Nil keeps
// the current check.
func (s *FraudService) WithSignals(device, geo RiskSignal) *FraudService {
	if device != nil {
		s.device = device
	}
	if geo != nil {
		s.geo = geo
	}
	return s
}

// Score evaluates p and persists the inputs and verdict, whatever it is.
func (s *FraudService) Score(ctx context.Context, p *models.PaymentTransaction) (*models.FraudCheck, error) {
	q := s.store.Queries()
	now := s.now()

	fc := &models.FraudCheck{
		ID:        uuid.NewString(),
		PaymentID: p.ID,
		Holder:    p.Holder,
		Method:    p.Method,
		Amount:    p.Amount,
		CreatedAt: now,
	}

	if band, ok := s.cfg.MethodBands[p.Method]; ok {
		fc.OutOfBand = p.Amount.LessThan(band.Min) || p.Amount.GreaterThan(band.Max)
	}

	recent, err := q.CountCompletedPayments(ctx, p.Holder, p.ID, now.Add(-s.cfg.FrequencyWindow))
	if err != nil {
		return nil, err
	}
	fc.RecentCount = recent

	fc.HighValue = s.cfg.HighValue.IsPositive() && p.Amount.GreaterThan(s.cfg.HighValue)
	fc.DeviceOK = s.device(ctx, p)
	fc.GeoOK = s.geo(ctx, p)

	fc.Score = score(fc, s.cfg.FrequencyLimit)
	fc.Legitimate = fc.Score < reviewScoreCeiling

	if err := q.InsertFraudCheck(ctx, fc); err != nil {
		return nil, err
	}

	s.monitor.TrackFraudVerdict(fc.Score, fc.Legitimate)
	if !fc.Legitimate {
		slog.Warn("payment held for review", "payment_id", p.ID, "reference", p.Reference, "score", fc.Score)
	}
	return fc, nil
}

func score(fc *models.FraudCheck, frequencyLimit int) int {
	total := 0
	if fc.OutOfBand {
		total += outOfBandWeight
	}
	if frequencyLimit > 0 && fc.RecentCount > frequencyLimit {
		total += frequencyWeight
	}
	if fc.HighValue {
		total += highValueWeight
	}
	if !fc.DeviceOK {
		total += deviceWeight
	}
	if !fc.GeoOK {
		total += geoWeight
	}
	if total > 100 {
		total = 100
	}
	return total
}
