package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/boddenberg/envelope-ledger/internal/domain"
)

// ============================================================
// Transactions & splits
// ============================================================

func (q *queries) GetTransaction(ctx context.Context, profileID, transactionID string) (*domain.Transaction, error) {
	var (
		t                 domain.Transaction
		merchantID, catID sql.NullString
		posted            string
		created, updated  string
		status            string
	)
	err := q.queryRow(ctx,
		`SELECT id, profile_id, account_id, merchant_id, category_id, posted_at, amount_cents,
		        status, memo, is_reviewed, created_at, updated_at
		   FROM transactions WHERE profile_id = ? AND id = ?`,
		profileID, transactionID).Scan(
		&t.ID, &t.ProfileID, &t.AccountID, &merchantID, &catID, &posted, &t.AmountCents,
		&status, &t.Memo, &t.IsReviewed, &created, &updated,
	)
	if err != nil {
		return nil, translate(err)
	}

	t.MerchantID = nullableString(merchantID)
	t.CategoryID = nullableString(catID)
	t.Status = domain.TransactionStatus(status)
	if t.PostedAt, err = time.Parse(domain.DateLayout, posted); err != nil {
		return nil, fmt.Errorf("transaction %s: malformed posted_at %q: %w", t.ID, posted, err)
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return &t, nil
}

func (q *queries) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	err := q.guardedExec(ctx,
		`INSERT INTO transactions (id, profile_id, account_id, merchant_id, category_id, posted_at,
		                           amount_cents, status, memo, is_reviewed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProfileID, t.AccountID, nullString(t.MerchantID), nullString(t.CategoryID),
		t.PostedAt.Format(domain.DateLayout), t.AmountCents, string(t.Status), t.Memo, t.IsReviewed,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// UpdateTransaction writes the mutable columns of t.
func (q *queries) UpdateTransaction(ctx context.Context, t *domain.Transaction) error {
	err := q.guardedExec(ctx,
		`UPDATE transactions
		    SET category_id = ?, memo = ?, is_reviewed = ?, updated_at = ?
		  WHERE profile_id = ? AND id = ?`,
		nullString(t.CategoryID), t.Memo, t.IsReviewed, formatTime(t.UpdatedAt),
		t.ProfileID, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

// InsertSplits stores splits in slice order.
func (q *queries) InsertSplits(ctx context.Context, splits []domain.Split) error {
	for i, s := range splits {
		err := q.guardedExec(ctx,
			`INSERT INTO splits (id, transaction_id, position, category_id, amount_cents, memo)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			s.ID, s.TransactionID, i, s.CategoryID, s.AmountCents, s.Memo)
		if err != nil {
			return fmt.Errorf("insert split %d: %w", i, err)
		}
	}
	return nil
}

func (q *queries) DeleteSplits(ctx context.Context, transactionID string) error {
	if _, err := q.exec(ctx, `DELETE FROM splits WHERE transaction_id = ?`, transactionID); err != nil {
		return fmt.Errorf("delete splits: %w", err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
