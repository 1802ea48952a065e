package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/boddenberg/envelope-ledger/internal/domain"
)

// ============================================================
// Profiles, accounts, categories, envelopes
// ============================================================

func (s *Store) FirstProfile(ctx context.Context) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Store.FirstProfile")
	defer span.End()

	return scanProfile(s.q.queryRow(ctx,
		`SELECT id, name, created_at FROM profiles ORDER BY created_at ASC, id ASC LIMIT 1`))
}

func (s *Store) GetProfile(ctx context.Context, profileID string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Store.GetProfile")
	defer span.End()

	return scanProfile(s.q.queryRow(ctx,
		`SELECT id, name, created_at FROM profiles WHERE id = ?`, profileID))
}

func scanProfile(row *sql.Row) (*domain.Profile, error) {
	var (
		p       domain.Profile
		created string
	)
	if err := row.Scan(&p.ID, &p.Name, &created); err != nil {
		return nil, translate(err)
	}
	p.CreatedAt = parseTime(created)
	return &p, nil
}

func (q *queries) InsertProfile(ctx context.Context, p *domain.Profile) error {
	_, err := q.exec(ctx,
		`INSERT INTO profiles (id, name, created_at) VALUES (?, ?, ?)`,
		p.ID, p.Name, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// ListAccounts returns non-archived accounts ordered by institution, name.
func (s *Store) ListAccounts(ctx context.Context, profileID string) ([]domain.AccountSummary, error) {
	ctx, span := tracer.Start(ctx, "Store.ListAccounts")
	defer span.End()

	rows, err := s.q.query(ctx,
		`SELECT id, name, institution, type
		   FROM accounts
		  WHERE profile_id = ? AND is_archived = ?
		  ORDER BY institution ASC, name ASC, id ASC`,
		profileID, false)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	out := []domain.AccountSummary{}
	for rows.Next() {
		var a domain.AccountSummary
		if err := rows.Scan(&a.ID, &a.Name, &a.Institution, &a.Type); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const accountColumns = `id, profile_id, institution, name, type, is_archived, created_at`

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var (
		a       domain.Account
		created string
	)
	if err := row.Scan(&a.ID, &a.ProfileID, &a.Institution, &a.Name, &a.Type, &a.IsArchived, &created); err != nil {
		return nil, translate(err)
	}
	a.CreatedAt = parseTime(created)
	return &a, nil
}

func (q *queries) GetAccount(ctx context.Context, profileID, accountID string) (*domain.Account, error) {
	return scanAccount(q.queryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE profile_id = ? AND id = ?`,
		profileID, accountID))
}

func (q *queries) FindAccountByName(ctx context.Context, profileID, institution, name string) (*domain.Account, error) {
	return scanAccount(q.queryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts
		  WHERE profile_id = ? AND institution = ? AND name = ?
		  ORDER BY created_at ASC, id ASC LIMIT 1`,
		profileID, institution, name))
}

func (q *queries) InsertAccount(ctx context.Context, a *domain.Account) error {
	_, err := q.exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProfileID, a.Institution, a.Name, string(a.Type), a.IsArchived, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (q *queries) FindCategoryGroupByName(ctx context.Context, profileID, name string) (*domain.CategoryGroup, error) {
	var g domain.CategoryGroup
	err := q.queryRow(ctx,
		`SELECT id, profile_id, name FROM category_groups WHERE profile_id = ? AND name = ?`,
		profileID, name).Scan(&g.ID, &g.ProfileID, &g.Name)
	if err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func (q *queries) InsertCategoryGroup(ctx context.Context, g *domain.CategoryGroup) error {
	_, err := q.exec(ctx,
		`INSERT INTO category_groups (id, profile_id, name) VALUES (?, ?, ?)`,
		g.ID, g.ProfileID, g.Name)
	if err != nil {
		return fmt.Errorf("insert category group: %w", err)
	}
	return nil
}

func (q *queries) FindCategoryByName(ctx context.Context, profileID, name string) (*domain.Category, error) {
	var c domain.Category
	err := q.queryRow(ctx,
		`SELECT id, profile_id, group_id, name FROM categories WHERE profile_id = ? AND name = ?`,
		profileID, name).Scan(&c.ID, &c.ProfileID, &c.GroupID, &c.Name)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (q *queries) InsertCategory(ctx context.Context, c *domain.Category) error {
	_, err := q.exec(ctx,
		`INSERT INTO categories (id, profile_id, group_id, name) VALUES (?, ?, ?, ?)`,
		c.ID, c.ProfileID, c.GroupID, c.Name)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (q *queries) FindEnvelopeByName(ctx context.Context, profileID, name string) (*domain.Envelope, error) {
	var e domain.Envelope
	err := q.queryRow(ctx,
		`SELECT id, profile_id, category_id, name, is_active
		   FROM envelopes WHERE profile_id = ? AND name = ?
		  ORDER BY id ASC LIMIT 1`,
		profileID, name).Scan(&e.ID, &e.ProfileID, &e.CategoryID, &e.Name, &e.IsActive)
	if err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (q *queries) InsertEnvelope(ctx context.Context, e *domain.Envelope) error {
	_, err := q.exec(ctx,
		`INSERT INTO envelopes (id, profile_id, category_id, name, is_active) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.ProfileID, e.CategoryID, e.Name, e.IsActive)
	if err != nil {
		return fmt.Errorf("insert envelope: %w", err)
	}
	return nil
}
