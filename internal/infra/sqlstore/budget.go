package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/port"
)

// ============================================================
// Envelope budgets & rules
// ============================================================

// ListEnvelopeMonths joins active envelopes with their budget row for month.
// Envelopes without a row are not returned.
func (s *Store) ListEnvelopeMonths(ctx context.Context, profileID, month string) ([]domain.EnvelopeMonth, error) {
	ctx, span := tracer.Start(ctx, "Store.ListEnvelopeMonths")
	defer span.End()

	rows, err := s.q.query(ctx,
		`SELECT e.id, e.name, b.month, b.planned_cents, b.actual_cents
		   FROM envelopes e
		   JOIN envelope_budgets b ON b.envelope_id = e.id
		  WHERE e.profile_id = ? AND e.is_active = ? AND b.month = ?
		  ORDER BY e.name ASC, e.id ASC`,
		profileID, true, month)
	if err != nil {
		return nil, fmt.Errorf("query envelopes: %w", err)
	}
	defer rows.Close()

	out := []domain.EnvelopeMonth{}
	for rows.Next() {
		var em domain.EnvelopeMonth
		if err := rows.Scan(&em.ID, &em.Name, &em.Month, &em.PlannedCents, &em.ActualCents); err != nil {
			return nil, fmt.Errorf("scan envelope: %w", err)
		}
		out = append(out, em)
	}
	return out, rows.Err()
}

// UpsertEnvelopeBudget inserts the (envelope, month) row, or overwrites its
// amounts when the row already exists.
func (q *queries) UpsertEnvelopeBudget(ctx context.Context, b domain.EnvelopeBudget) error {
	err := q.guardedExec(ctx,
		`INSERT INTO envelope_budgets (envelope_id, month, planned_cents, actual_cents)
		 VALUES (?, ?, ?, ?)`,
		b.EnvelopeID, b.Month, b.PlannedCents, b.ActualCents)
	if !errors.Is(err, port.ErrUniqueViolation) {
		return err
	}

	_, err = q.exec(ctx,
		`UPDATE envelope_budgets SET planned_cents = ?, actual_cents = ?
		  WHERE envelope_id = ? AND month = ?`,
		b.PlannedCents, b.ActualCents, b.EnvelopeID, b.Month)
	if err != nil {
		return fmt.Errorf("update envelope budget: %w", err)
	}
	return nil
}

// InsertRule stores tests and actions verbatim.
func (q *queries) InsertRule(ctx context.Context, r *domain.Rule) error {
	_, err := q.exec(ctx,
		`INSERT INTO rules (id, profile_id, priority, tests, actions, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProfileID, r.Priority, string(r.Tests), string(r.Actions), r.IsActive, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}
