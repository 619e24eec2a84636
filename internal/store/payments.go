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

type paymentRow struct {
	ID             string          `db:"id"`
	Reference      string          `db:"reference"`
	CheckoutID     string          `db:"checkout_id"`
	ReservationID  string          `db:"reservation_id"`
	Holder         string          `db:"holder"`
	Amount         decimal.Decimal `db:"amount"`
	Fee            decimal.Decimal `db:"fee"`
	Total          decimal.Decimal `db:"total"`
	Method         string          `db:"method"`
	Phone          string          `db:"phone"`
	Status         string          `db:"status"`
	ProviderRef    string          `db:"provider_ref"`
	ReviewRequired int64           `db:"review_required"`
	FraudCheckID   string          `db:"fraud_check_id"`
	SpentBy        string          `db:"spent_by"`
	ExpiresAt      int64           `db:"expires_at"`
	CompletedAt    int64           `db:"completed_at"`
	Created        int64           `db:"created"`
}

func (r paymentRow) model() *models.PaymentTransaction {
	p := &models.PaymentTransaction{
		ID:             r.ID,
		Reference:      r.Reference,
		CheckoutID:     r.CheckoutID,
		ReservationID:  r.ReservationID,
		Holder:         r.Holder,
		Amount:         r.Amount,
		Fee:            r.Fee,
		Total:          r.Total,
		Method:         r.Method,
		Phone:          r.Phone,
		Status:         r.Status,
		ProviderRef:    r.ProviderRef,
		ReviewRequired: r.ReviewRequired != 0,
		FraudCheckID:   r.FraudCheckID,
		SpentBy:        r.SpentBy,
		ExpiresAt:      fromMS(r.ExpiresAt),
		CreatedAt:      fromMS(r.Created),
	}
	if r.CompletedAt != 0 {
		t := fromMS(r.CompletedAt)
		p.CompletedAt = &t
	}
	return p
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (q *Queries) InsertPayment(ctx context.Context, p *models.PaymentTransaction) error {
	_, err := q.b.Insert("payment_transactions", dbx.Params{
		"id":              p.ID,
		"reference":       p.Reference,
		"checkout_id":     p.CheckoutID,
		"reservation_id":  p.ReservationID,
		"holder":          p.Holder,
		"amount":          p.Amount,
		"fee":             p.Fee,
		"total":           p.Total,
		"method":          p.Method,
		"phone":           p.Phone,
		"status":          p.Status,
		"provider_ref":    p.ProviderRef,
		"review_required": boolInt(p.ReviewRequired),
		"fraud_check_id":  p.FraudCheckID,
		"spent_by":        p.SpentBy,
		"expires_at":      ms(p.ExpiresAt),
		"created":         ms(p.CreatedAt),
		"updated":         ms(p.CreatedAt),
	}).WithContext(ctx).Execute()
	if isUniqueViolation(err) {
		return status.Conflict("payment reference %s already exists", p.Reference)
	}
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", p.Reference, err)
	}
	return nil
}

func (q *Queries) FindPaymentByReference(ctx context.Context, ref string) (*models.PaymentTransaction, error) {
	return q.findPayment(ctx, dbx.HashExp{"reference": ref}, ref)
}

func (q *Queries) FindPayment(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	return q.findPayment(ctx, dbx.HashExp{"id": id}, id)
}

func (q *Queries) findPayment(ctx context.Context, where dbx.Expression, key string) (*models.PaymentTransaction, error) {
	var row paymentRow
	err := q.b.Select("*").From("payment_transactions").
		Where(where).
		WithContext(ctx).
		One(&row)
	if isNoRows(err) {
		return nil, status.NotFound("payment", key)
	}
	if err != nil {
		return nil, fmt.Errorf("find payment %s: %w", key, err)
	}
	return row.model(), nil
}

// UpdatePaymentStatus moves a payment out of one of the from statuses.
// Completed payments get completed_at stamped.
func (q *Queries) UpdatePaymentStatus(ctx context.Context, id string, from []string, to, providerRef string, now time.Time) (int64, error) {
	params := dbx.Params{"status": to, "updated": ms(now)}
	if providerRef != "" {
		params["provider_ref"] = providerRef
	}
	if to == models.PaymentCompleted {
		params["completed_at"] = ms(now)
	}
	return affected(q.b.Update("payment_transactions", params,
		dbx.And(
			dbx.HashExp{"id": id},
			dbx.In("status", toAny(from)...),
		),
	).WithContext(ctx).Execute())
}

// SettlePayment completes a payment together with the verdict of the
// fraud check that scored it, so no reader sees a completed payment
// without its verdict.
func (q *Queries) SettlePayment(ctx context.Context, id string, from []string, providerRef string, fc *models.FraudCheck, now time.Time) (int64, error) {
	params := dbx.Params{
		"status":          models.PaymentCompleted,
		"review_required": boolInt(!fc.Legitimate),
		"fraud_check_id":  fc.ID,
		"completed_at":    ms(now),
		"updated":         ms(now),
	}
	if providerRef != "" {
		params["provider_ref"] = providerRef
	}
	return affected(q.b.Update("payment_transactions", params,
		dbx.And(
			dbx.HashExp{"id": id},
			dbx.In("status", toAny(from)...),
		),
	).WithContext(ctx).Execute())
}

// SpendPayment redeems a cleared payment for spentBy. It matches only a
// completed, scored, unflagged payment that has not been spent yet.
func (q *Queries) SpendPayment(ctx context.Context, id, spentBy string, now time.Time) (int64, error) {
	return affected(q.b.Update("payment_transactions",
		dbx.Params{"spent_by": spentBy, "updated": ms(now)},
		dbx.And(
			dbx.HashExp{
				"id":              id,
				"status":          models.PaymentCompleted,
				"review_required": 0,
				"spent_by":        "",
			},
			dbx.Not(dbx.HashExp{"fraud_check_id": ""}),
		),
	).WithContext(ctx).Execute())
}

// CountCompletedPayments counts the holder's payments completed since the
// given instant, excluding the payment being scored.
func (q *Queries) CountCompletedPayments(ctx context.Context, holder, excludeID string, since time.Time) (int, error) {
	var n int
	err := q.b.Select("COUNT(*)").From("payment_transactions").
		Where(dbx.HashExp{"holder": holder, "status": models.PaymentCompleted}).
		AndWhere(dbx.NewExp("completed_at >= {:since}", dbx.Params{"since": ms(since)})).
		AndWhere(dbx.Not(dbx.HashExp{"id": excludeID})).
		WithContext(ctx).
		Row(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed payments of %s: %w", holder, err)
	}
	return n, nil
}

type fraudRow struct {
	ID          string          `db:"id"`
	PaymentID   string          `db:"payment_id"`
	Holder      string          `db:"holder"`
	Method      string          `db:"method"`
	Amount      decimal.Decimal `db:"amount"`
	OutOfBand   int64           `db:"out_of_band"`
	RecentCount int             `db:"recent_count"`
	HighValue   int64           `db:"high_value"`
	DeviceOK    int64           `db:"device_ok"`
	GeoOK       int64           `db:"geo_ok"`
	Score       int             `db:"score"`
	Legitimate  int64           `db:"legitimate"`
	Created     int64           `db:"created"`
}

func (q *Queries) InsertFraudCheck(ctx context.Context, fc *models.FraudCheck) error {
	_, err := q.b.Insert("fraud_checks", dbx.Params{
		"id":           fc.ID,
		"payment_id":   fc.PaymentID,
		"holder":       fc.Holder,
		"method":       fc.Method,
		"amount":       fc.Amount,
		"out_of_band":  boolInt(fc.OutOfBand),
		"recent_count": fc.RecentCount,
		"high_value":   boolInt(fc.HighValue),
		"device_ok":    boolInt(fc.DeviceOK),
		"geo_ok":       boolInt(fc.GeoOK),
		"score":        fc.Score,
		"legitimate":   boolInt(fc.Legitimate),
		"created":      ms(fc.CreatedAt),
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("insert fraud check for %s: %w", fc.PaymentID, err)
	}
	return nil
}

func (q *Queries) FindFraudCheck(ctx context.Context, id string) (*models.FraudCheck, error) {
	var row fraudRow
	err := q.b.Select("*").From("fraud_checks").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&row)
	if isNoRows(err) {
		return nil, status.NotFound("fraud check", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find fraud check %s: %w", id, err)
	}
	fc := row.model()
	return &fc, nil
}

func (q *Queries) ListFraudChecks(ctx context.Context, paymentID string) ([]models.FraudCheck, error) {
	var rows []fraudRow
	err := q.b.Select("*").From("fraud_checks").
		Where(dbx.HashExp{"payment_id": paymentID}).
		OrderBy("created ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("list fraud checks of %s: %w", paymentID, err)
	}

	out := make([]models.FraudCheck, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (r fraudRow) model() models.FraudCheck {
	return models.FraudCheck{
		ID:          r.ID,
		PaymentID:   r.PaymentID,
		Holder:      r.Holder,
		Method:      r.Method,
		Amount:      r.Amount,
		OutOfBand:   r.OutOfBand != 0,
		RecentCount: r.RecentCount,
		HighValue:   r.HighValue != 0,
		DeviceOK:    r.DeviceOK != 0,
		GeoOK:       r.GeoOK != 0,
		Score:       r.Score,
		Legitimate:  r.Legitimate != 0,
		CreatedAt:   fromMS(r.Created),
	}
}
