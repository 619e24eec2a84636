package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"
)

// AddEarnings credits an organizer once per reference. Replays of the same
// reference are ignored and report false.
func (q *Queries) AddEarnings(ctx context.Context, id, organizerID, reference, reason string, amount decimal.Decimal, now time.Time) (bool, error) {
	n, err := affected(q.b.NewQuery(`INSERT INTO organizer_earnings (id, organizer_id, reference, amount, reason, created)
		VALUES ({:id}, {:organizer}, {:reference}, {:amount}, {:reason}, {:created})
		ON CONFLICT (reference) DO NOTHING`).
		Bind(dbx.Params{
			"id":        id,
			"organizer": organizerID,
			"reference": reference,
			"amount":    amount.String(),
			"reason":    reason,
			"created":   ms(now),
		}).
		WithContext(ctx).
		Execute())
	if err != nil {
		return false, fmt.Errorf("add earnings %s: %w", reference, err)
	}
	return n > 0, nil
}

// OrganizerEarnings sums the organizer's credited amounts. Amounts are
// stored as decimal text, so the sum happens here rather than in SQL.
func (q *Queries) OrganizerEarnings(ctx context.Context, organizerID string) (decimal.Decimal, error) {
	var amounts []string
	err := q.b.Select("amount").From("organizer_earnings").
		Where(dbx.HashExp{"organizer_id": organizerID}).
		WithContext(ctx).
		Column(&amounts)
	if err != nil {
		return decimal.Zero, fmt.Errorf("organizer earnings %s: %w", organizerID, err)
	}

	total := decimal.Zero
	for _, a := range amounts {
		d, err := decimal.NewFromString(a)
		if err != nil {
			return decimal.Zero, fmt.Errorf("organizer earnings %s: bad amount %q: %w", organizerID, a, err)
		}
		total = total.Add(d)
	}
	return total, nil
}
