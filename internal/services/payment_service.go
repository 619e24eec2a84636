package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/internal/store"
	"ticket-checkout/models"
	"ticket-checkout/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NotificationSource delivers raw provider notifications, e.g. the bank's
// PubNub channel.
type NotificationSource interface {
	Subscribe(ctx context.Context, channel string, handle func(ctx context.Context, body []byte))
}

type PaymentConfig struct {
	FeeRates map[string]decimal.Decimal
	Timeout  time.Duration
}

// PaymentService creates gateway transactions and reconciles provider
// callbacks against them.
type PaymentService struct {
	store    *store.Store
	fraud    *FraudService
	checkout *CheckoutService
	cfg      PaymentConfig
	now      func() time.Time
}

func NewPaymentService(st *store.Store, fraud *FraudService, checkout *CheckoutService, cfg PaymentConfig) *PaymentService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &PaymentService{store: st, fraud: fraud, checkout: checkout, cfg: cfg, now: time.Now}
}

// CreateTransactionRequest names exactly one of a pending checkout or a
// pending reservation to pay for.
type CreateTransactionRequest struct {
	CheckoutID    string `json:"checkout_id,omitempty"`
	ReservationID string `json:"reservation_id,omitempty"`
	Method        string `json:"method"`
	Phone         string `json:"phone,omitempty"`
}

// CreateTransaction opens a payment for the full amount of a pending
// checkout or reservation. The payment can only ever be redeemed for it.
func (s *PaymentService) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*models.PaymentTransaction, error) {
	q := s.store.Queries()
	now := s.now()

	p := &models.PaymentTransaction{
		ID:        uuid.NewString(),
		Method:    req.Method,
		Phone:     req.Phone,
		Status:    models.PaymentPending,
		ExpiresAt: now.Add(s.cfg.Timeout),
		CreatedAt: now,
	}

	switch {
	case req.CheckoutID != "" && req.ReservationID != "":
		return nil, status.Invalid("a payment is for a checkout or a reservation, not both")
	case req.CheckoutID != "":
		sess, err := q.FindCheckout(ctx, req.CheckoutID)
		if err != nil {
			return nil, err
		}
		if err := checkPending(sess, now); err != nil {
			return nil, err
		}
		p.CheckoutID = sess.ID
		p.Holder = paymentHolder(sess)
		p.Amount = sess.TotalAmount
		if p.Method == "" {
			p.Method = sess.PaymentMethod
		}
	case req.ReservationID != "":
		r, err := q.FindReservation(ctx, req.ReservationID)
		if err != nil {
			return nil, err
		}
		current := r.Status
		if current == models.ReservationPending && !now.Before(r.ExpiresAt) {
			current = models.ReservationExpired
		}
		if current != models.ReservationPending {
			return nil, &status.InvalidStateError{Entity: "reservation", ID: r.ID, Current: current}
		}
		p.ReservationID = r.ID
		p.Holder = r.Holder
		p.Amount = r.TotalPrice
	default:
		return nil, status.Invalid("checkout_id or reservation_id is required")
	}

	rate, ok := s.cfg.FeeRates[p.Method]
	if !ok {
		return nil, status.Invalid("unsupported payment method %q", p.Method)
	}

	ref, err := utils.PaymentReference()
	if err != nil {
		return nil, fmt.Errorf("payment reference: %w", err)
	}
	p.Reference = ref
	p.Fee = p.Amount.Mul(rate).Round(2)
	p.Total = p.Amount.Add(p.Fee)

	if err := q.InsertPayment(ctx, p); err != nil {
		return nil, err
	}

	slog.Info("payment created",
		"reference", ref,
		"checkout_id", p.CheckoutID,
		"reservation_id", p.ReservationID,
		"method", p.Method,
		"total", p.Total.String(),
	)
	return p, nil
}

func (s *PaymentService) GetTransaction(ctx context.Context, reference string) (*models.PaymentTransaction, error) {
	return s.store.Queries().FindPaymentByReference(ctx, reference)
}

// WebhookResult tells the provider (and logs) what a delivery changed.
type WebhookResult struct {
	Reference      string                 `json:"reference"`
	Status         string                 `json:"status"`
	Duplicate      bool                   `json:"duplicate"`
	ReviewRequired bool                   `json:"review_required"`
	Checkout       *models.CheckoutResult `json:"checkout,omitempty"`
	CheckoutError  string                 `json:"checkout_error,omitempty"`
	FraudCheck     *models.FraudCheck     `json:"-"`
}

// HandleWebhook applies one provider notification. Deliveries for payments
// already in a terminal status change nothing, so retries are safe.
func (s *PaymentService) HandleWebhook(ctx context.Context, n models.PaymentNotification) (*WebhookResult, error) {
	if strings.TrimSpace(n.Reference) == "" {
		return nil, status.Invalid("reference is required")
	}

	q := s.store.Queries()
	p, err := q.FindPaymentByReference(ctx, n.Reference)
	if err != nil {
		return nil, err
	}

	next := NormalizePaymentStatus(n.Status)
	res := &WebhookResult{Reference: p.Reference}

	if isTerminalPayment(p.Status) {
		res.Status = p.Status
		res.Duplicate = true
		res.ReviewRequired = p.ReviewRequired
		if p.Status == models.PaymentCompleted && !p.ReviewRequired {
			// A retry after a failed completion gets another go; a completed
			// checkout just replays its order.
			s.completeCheckout(ctx, p, res)
		}
		return res, nil
	}

	if next == models.PaymentCompleted && !n.Amount.IsZero() && !n.Amount.Equal(p.Total) && !n.Amount.Equal(p.Amount) {
		return nil, status.Invalid("amount %s does not match payment %s of %s", n.Amount, p.Reference, p.Total)
	}

	now := s.now()
	from := []string{models.PaymentPending, models.PaymentProcessing}

	var changed int64
	if next == models.PaymentCompleted {
		// The verdict is written with the status: a completed payment is
		// never visible without it.
		fc, err := s.fraud.Score(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("score payment %s: %w", p.Reference, err)
		}
		res.FraudCheck = fc
		changed, err = q.SettlePayment(ctx, p.ID, from, n.ProviderRef, fc, now)
		if err != nil {
			return nil, fmt.Errorf("settle payment %s: %w", p.Reference, err)
		}
	} else {
		changed, err = q.UpdatePaymentStatus(ctx, p.ID, from, next, n.ProviderRef, now)
		if err != nil {
			return nil, fmt.Errorf("update payment %s: %w", p.Reference, err)
		}
	}
	if changed == 0 {
		// Another delivery won; report what it left behind.
		current, err := q.FindPayment(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		res.Status = current.Status
		res.Duplicate = true
		res.ReviewRequired = current.ReviewRequired
		return res, nil
	}

	p.Status = next
	res.Status = next
	slog.Info("payment status updated", "reference", p.Reference, "status", next, "raw_status", n.Status)

	if next != models.PaymentCompleted {
		return res, nil
	}
	if !res.FraudCheck.Legitimate {
		res.ReviewRequired = true
		return res, nil
	}

	s.completeCheckout(ctx, p, res)
	return res, nil
}

func (s *PaymentService) completeCheckout(ctx context.Context, p *models.PaymentTransaction, res *WebhookResult) {
	if p.CheckoutID == "" || s.checkout == nil {
		return
	}
	result, err := s.checkout.Complete(ctx, p.CheckoutID, p.Reference)
	if err != nil {
		slog.Error("complete checkout from payment", "reference", p.Reference, "checkout_id", p.CheckoutID, "error", err)
		res.CheckoutError = err.Error()
		return
	}
	res.Checkout = result
}

// SimulatePayment feeds a synthetic provider notification for the full
// amount. Development only.
func (s *PaymentService) SimulatePayment(ctx context.Context, reference, providerStatus string) (*WebhookResult, error) {
	p, err := s.store.Queries().FindPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if providerStatus == "" {
		providerStatus = "success"
	}
	return s.HandleWebhook(ctx, models.PaymentNotification{
		Reference:   reference,
		Status:      providerStatus,
		Amount:      p.Total,
		PhoneNumber: p.Phone,
		ProviderRef: "SIM-" + reference,
	})
}

// SubscribeToPaymentNotifications consumes the bank notification channel
// until ctx is done. Bad messages are logged and skipped.
func (s *PaymentService) SubscribeToPaymentNotifications(ctx context.Context, src NotificationSource, channel string) {
	src.Subscribe(ctx, channel, func(ctx context.Context, body []byte) {
		var n models.PaymentNotification
		if err := json.Unmarshal(body, &n); err != nil {
			slog.Warn("invalid payment notification", "channel", channel, "error", err)
			return
		}
		if _, err := s.HandleWebhook(ctx, n); err != nil {
			level := slog.LevelError
			if errors.Is(err, status.ErrNotFound) || errors.Is(err, status.ErrValidation) {
				level = slog.LevelWarn
			}
			slog.Log(ctx, level, "payment notification rejected", "reference", n.Reference, "error", err)
		}
	})
}

// NormalizePaymentStatus maps provider status strings onto payment statuses.
func NormalizePaymentStatus(raw string) string {
	switch strings.TrimSpace(raw) {
	case "success", "completed", "SUCCESS":
		return models.PaymentCompleted
	case "pending", "processing":
		return models.PaymentProcessing
	default:
		return models.PaymentFailed
	}
}

// clearedPayment loads the payment behind ref and checks that it may be
// redeemed for spentBy: completed, passed by the fraud gate, not held for
// review and not already spent.
func clearedPayment(ctx context.Context, q *store.Queries, ref, spentBy string) (*models.PaymentTransaction, error) {
	p, err := q.FindPaymentByReference(ctx, ref)
	if errors.Is(err, status.ErrNotFound) {
		return nil, status.ErrPaymentNotCompleted
	}
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentCompleted {
		return nil, fmt.Errorf("payment %s is %s: %w", ref, p.Status, status.ErrPaymentNotCompleted)
	}
	if p.ReviewRequired {
		return nil, status.ErrPaymentUnderReview
	}
	if p.FraudCheckID == "" {
		return nil, fmt.Errorf("payment %s has not been scored: %w", ref, status.ErrPaymentNotCompleted)
	}
	fc, err := q.FindFraudCheck(ctx, p.FraudCheckID)
	if err != nil {
		return nil, err
	}
	if fc.PaymentID != p.ID || !fc.Legitimate {
		return nil, status.ErrPaymentUnderReview
	}
	if p.SpentBy != "" && p.SpentBy != spentBy {
		return nil, status.Conflict("payment %s was already used", ref)
	}
	return p, nil
}

// spendPayment redeems p for spentBy inside the caller's transaction.
func spendPayment(ctx context.Context, q *store.Queries, p *models.PaymentTransaction, spentBy string, now time.Time) error {
	n, err := q.SpendPayment(ctx, p.ID, spentBy, now)
	if err != nil {
		return fmt.Errorf("spend payment %s: %w", p.Reference, err)
	}
	if n == 0 {
		return status.Conflict("payment %s was already used", p.Reference)
	}
	return nil
}

func isTerminalPayment(st string) bool {
	switch st {
	case models.PaymentCompleted, models.PaymentFailed, models.PaymentRefunded:
		return true
	}
	return false
}

func paymentHolder(sess *models.CheckoutSession) string {
	if sess.Guest != nil {
		return "guest:" + sess.Guest.Email
	}
	return sess.UserID
}
