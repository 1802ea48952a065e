package sqlstore

import (
	"context"
	"fmt"

	"github.com/boddenberg/envelope-ledger/internal/domain"
)

// ============================================================
// Merchants & tags
// ============================================================

func (q *queries) FindMerchantByNormalizedName(ctx context.Context, profileID, normalized string) (*domain.Merchant, error) {
	var (
		m       domain.Merchant
		created string
	)
	err := q.queryRow(ctx,
		`SELECT id, profile_id, display_name, normalized_name, created_at
		   FROM merchants WHERE profile_id = ? AND normalized_name = ?`,
		profileID, normalized).Scan(&m.ID, &m.ProfileID, &m.DisplayName, &m.NormalizedName, &created)
	if err != nil {
		return nil, translate(err)
	}
	m.CreatedAt = parseTime(created)
	return &m, nil
}

// InsertMerchant returns port.ErrUniqueViolation when (profile, normalized
// name) is taken; the transaction remains usable.
func (q *queries) InsertMerchant(ctx context.Context, m *domain.Merchant) error {
	return q.guardedExec(ctx,
		`INSERT INTO merchants (id, profile_id, display_name, normalized_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ProfileID, m.DisplayName, m.NormalizedName, formatTime(m.CreatedAt))
}

func (q *queries) FindTagsByName(ctx context.Context, profileID string, names []string) ([]domain.Tag, error) {
	if len(names) == 0 {
		return []domain.Tag{}, nil
	}

	args := make([]any, 0, len(names)+1)
	args = append(args, profileID)
	for _, n := range names {
		args = append(args, n)
	}

	rows, err := q.query(ctx,
		`SELECT id, profile_id, name FROM tags
		  WHERE profile_id = ? AND name IN (`+placeholders(len(names))+`)
		  ORDER BY name ASC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	out := []domain.Tag{}
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.ProfileID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertTag returns port.ErrUniqueViolation when (profile, name) is taken;
// the transaction remains usable.
func (q *queries) InsertTag(ctx context.Context, t *domain.Tag) error {
	return q.guardedExec(ctx,
		`INSERT INTO tags (id, profile_id, name) VALUES (?, ?, ?)`,
		t.ID, t.ProfileID, t.Name)
}

// AttachTags is idempotent: associations that already exist are kept.
func (q *queries) AttachTags(ctx context.Context, transactionID string, tagIDs []string) error {
	for _, id := range tagIDs {
		_, err := q.exec(ctx,
			`INSERT INTO transaction_tags (transaction_id, tag_id) VALUES (?, ?)
			 ON CONFLICT (transaction_id, tag_id) DO NOTHING`,
			transactionID, id)
		if err != nil {
			return fmt.Errorf("attach tag %s: %w", id, err)
		}
	}
	return nil
}

func (q *queries) DetachAllTags(ctx context.Context, transactionID string) error {
	if _, err := q.exec(ctx, `DELETE FROM transaction_tags WHERE transaction_id = ?`, transactionID); err != nil {
		return fmt.Errorf("detach tags: %w", err)
	}
	return nil
}
