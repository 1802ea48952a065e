package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/port"
)

// ============================================================
// Hydrated transaction projections
// ============================================================

const viewSelect = `
SELECT t.id, t.posted_at, t.amount_cents, t.status, t.memo, t.is_reviewed, t.created_at, t.updated_at,
       a.id, a.name, a.institution, a.type,
       m.id, m.display_name, m.normalized_name,
       c.id, c.name
  FROM transactions t
  JOIN accounts a ON a.id = t.account_id
  LEFT JOIN merchants m ON m.id = t.merchant_id
  LEFT JOIN categories c ON c.id = t.category_id`

func (s *Store) GetTransactionView(ctx context.Context, profileID, transactionID string) (*domain.TransactionView, error) {
	ctx, span := tracer.Start(ctx, "Store.GetTransactionView")
	defer span.End()

	return s.q.GetTransactionView(ctx, profileID, transactionID)
}

func (q *queries) GetTransactionView(ctx context.Context, profileID, transactionID string) (*domain.TransactionView, error) {
	views, err := q.listViews(ctx, viewSelect+` WHERE t.profile_id = ? AND t.id = ?`, profileID, transactionID)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, port.ErrNoRows
	}
	return &views[0], nil
}

// ListTransactionViews returns one page of filter, newest posted date first
// with id as tie-breaker.
func (s *Store) ListTransactionViews(ctx context.Context, profileID string, filter domain.TransactionFilter) ([]domain.TransactionView, error) {
	ctx, span := tracer.Start(ctx, "Store.ListTransactionViews")
	defer span.End()

	where, args := s.q.d.buildFilter(profileID, filter)
	query := viewSelect + where + ` ORDER BY t.posted_at DESC, t.id DESC`
	if filter.PageSize > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.PageSize, filter.Offset())
	}
	return s.q.listViews(ctx, query, args...)
}

// CountTransactions counts matches of filter, ignoring pagination.
func (s *Store) CountTransactions(ctx context.Context, profileID string, filter domain.TransactionFilter) (int, error) {
	ctx, span := tracer.Start(ctx, "Store.CountTransactions")
	defer span.End()

	where, args := s.q.d.buildFilter(profileID, filter)
	var n int
	err := s.q.queryRow(ctx,
		`SELECT COUNT(*) FROM transactions t LEFT JOIN merchants m ON m.id = t.merchant_id`+where,
		args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", translate(err))
	}
	return n, nil
}

// buildFilter ANDs every set field; q matches memo OR merchant display name.
func (d dialect) buildFilter(profileID string, f domain.TransactionFilter) (string, []any) {
	conds := []string{"t.profile_id = ?"}
	args := []any{profileID}

	if f.From != nil {
		conds = append(conds, "t.posted_at >= ?")
		args = append(args, f.From.Format(domain.DateLayout))
	}
	if f.To != nil {
		conds = append(conds, "t.posted_at <= ?")
		args = append(args, f.To.Format(domain.DateLayout))
	}
	if f.Status != "" {
		conds = append(conds, "t.status = ?")
		args = append(args, string(f.Status))
	}
	if f.AccountID != "" {
		conds = append(conds, "t.account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.CategoryID != "" {
		conds = append(conds, "(t.category_id = ? OR EXISTS (SELECT 1 FROM splits sp WHERE sp.transaction_id = t.id AND sp.category_id = ?))")
		args = append(args, f.CategoryID, f.CategoryID)
	}
	if f.Merchant != "" {
		conds = append(conds, `m.normalized_name LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(f.Merchant))
	}
	if f.Q != "" {
		pattern := containsPattern(strings.ToLower(f.Q))
		conds = append(conds, "("+d.lower("t.memo")+` LIKE ? ESCAPE '\' OR `+d.lower("m.display_name")+` LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

// containsPattern builds a LIKE pattern matching s anywhere, with LIKE
// wildcards in s taken literally.
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func (q *queries) listViews(ctx context.Context, query string, args ...any) ([]domain.TransactionView, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	views := []domain.TransactionView{}
	for rows.Next() {
		var (
			v                            domain.TransactionView
			status, created, updated     string
			acct                         domain.AccountSummary
			merchID, merchName, merchKey sql.NullString
			catID, catName               sql.NullString
		)
		if err := rows.Scan(
			&v.ID, &v.PostedAt, &v.AmountCents, &status, &v.Memo, &v.IsReviewed, &created, &updated,
			&acct.ID, &acct.Name, &acct.Institution, &acct.Type,
			&merchID, &merchName, &merchKey,
			&catID, &catName,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		v.Status = domain.TransactionStatus(status)
		v.CreatedAt = parseTime(created)
		v.UpdatedAt = parseTime(updated)
		v.Account = &acct
		if merchID.Valid {
			v.Merchant = &domain.MerchantSummary{ID: merchID.String, DisplayName: merchName.String, NormalizedName: merchKey.String}
		}
		if catID.Valid {
			v.Category = &domain.CategorySummary{ID: catID.String, Name: catName.String}
		}
		v.Splits = []domain.SplitView{}
		v.Tags = []domain.TagView{}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	rows.Close()

	if err := q.hydrate(ctx, views); err != nil {
		return nil, err
	}
	return views, nil
}

// hydrate loads splits and tags for every view in two batched queries.
func (q *queries) hydrate(ctx context.Context, views []domain.TransactionView) error {
	if len(views) == 0 {
		return nil
	}

	index := make(map[string]int, len(views))
	ids := make([]any, len(views))
	for i, v := range views {
		index[v.ID] = i
		ids[i] = v.ID
	}
	in := placeholders(len(ids))

	splitRows, err := q.query(ctx,
		`SELECT s.id, s.transaction_id, s.category_id, c.name, s.amount_cents, s.memo
		   FROM splits s
		   LEFT JOIN categories c ON c.id = s.category_id
		  WHERE s.transaction_id IN (`+in+`)
		  ORDER BY s.transaction_id, s.position`,
		ids...)
	if err != nil {
		return fmt.Errorf("query splits: %w", err)
	}
	defer splitRows.Close()
	for splitRows.Next() {
		var (
			sv      domain.SplitView
			txID    string
			catName sql.NullString
		)
		if err := splitRows.Scan(&sv.ID, &txID, &sv.CategoryID, &catName, &sv.AmountCents, &sv.Memo); err != nil {
			return fmt.Errorf("scan split: %w", err)
		}
		if catName.Valid {
			sv.Category = &domain.CategorySummary{ID: sv.CategoryID, Name: catName.String}
		}
		i := index[txID]
		views[i].Splits = append(views[i].Splits, sv)
	}
	if err := splitRows.Err(); err != nil {
		return fmt.Errorf("iterate splits: %w", err)
	}
	splitRows.Close()

	tagRows, err := q.query(ctx,
		`SELECT tt.transaction_id, tg.id, tg.name
		   FROM transaction_tags tt
		   JOIN tags tg ON tg.id = tt.tag_id
		  WHERE tt.transaction_id IN (`+in+`)
		  ORDER BY tg.name ASC`,
		ids...)
	if err != nil {
		return fmt.Errorf("query tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var (
			tv   domain.TagView
			txID string
		)
		if err := tagRows.Scan(&txID, &tv.ID, &tv.Name); err != nil {
			return fmt.Errorf("scan tag: %w", err)
		}
		i := index[txID]
		views[i].Tags = append(views[i].Tags, tv)
	}
	return tagRows.Err()
}
