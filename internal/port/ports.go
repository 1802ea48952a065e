// Package port defines the interfaces (ports) the ledger core consumes.
// Following hexagonal architecture, these ports decouple the service
// layer from the relational store and the message broker.
package port

import (
	"context"
	"errors"

	"github.com/boddenberg/envelope-ledger/internal/domain"
)

// Storage sentinels. Adapters wrap driver errors so that errors.Is works
// regardless of the underlying engine.
var (
	ErrNoRows              = errors.New("no rows in result set")
	ErrUniqueViolation     = errors.New("unique constraint violation")
	ErrForeignKeyViolation = errors.New("foreign key violation")
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Store is the transactional relational store behind the ledger.
type Store interface {
	HealthChecker
	Reader

	// WithTx runs fn inside a single storage transaction. The transaction
	// is committed when fn returns nil and rolled back on any error or panic.
	// fn may be invoked more than once when the engine reports a transient
	// lock conflict, so it must not have side effects outside tx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Reader holds the read-only queries. They need no transaction.
type Reader interface {
	FirstProfile(ctx context.Context) (*domain.Profile, error)
	GetProfile(ctx context.Context, profileID string) (*domain.Profile, error)

	ListAccounts(ctx context.Context, profileID string) ([]domain.AccountSummary, error)

	GetTransactionView(ctx context.Context, profileID, transactionID string) (*domain.TransactionView, error)
	ListTransactionViews(ctx context.Context, profileID string, filter domain.TransactionFilter) ([]domain.TransactionView, error)
	CountTransactions(ctx context.Context, profileID string, filter domain.TransactionFilter) (int, error)

	ListEnvelopeMonths(ctx context.Context, profileID, month string) ([]domain.EnvelopeMonth, error)
}

// Tx is the write surface available inside Store.WithTx.
type Tx interface {
	// Profiles & setup entities
	InsertProfile(ctx context.Context, p *domain.Profile) error
	GetAccount(ctx context.Context, profileID, accountID string) (*domain.Account, error)
	FindAccountByName(ctx context.Context, profileID, institution, name string) (*domain.Account, error)
	InsertAccount(ctx context.Context, a *domain.Account) error
	FindCategoryGroupByName(ctx context.Context, profileID, name string) (*domain.CategoryGroup, error)
	InsertCategoryGroup(ctx context.Context, g *domain.CategoryGroup) error
	FindCategoryByName(ctx context.Context, profileID, name string) (*domain.Category, error)
	InsertCategory(ctx context.Context, c *domain.Category) error
	FindEnvelopeByName(ctx context.Context, profileID, name string) (*domain.Envelope, error)
	InsertEnvelope(ctx context.Context, e *domain.Envelope) error

	// Merchants. InsertMerchant returns ErrUniqueViolation when another
	// writer already owns (profile, normalized name); tx stays usable.
	FindMerchantByNormalizedName(ctx context.Context, profileID, normalized string) (*domain.Merchant, error)
	InsertMerchant(ctx context.Context, m *domain.Merchant) error

	// Tags. InsertTag returns ErrUniqueViolation on (profile, name); tx stays usable.
	FindTagsByName(ctx context.Context, profileID string, names []string) ([]domain.Tag, error)
	InsertTag(ctx context.Context, t *domain.Tag) error
	AttachTags(ctx context.Context, transactionID string, tagIDs []string) error
	DetachAllTags(ctx context.Context, transactionID string) error

	// Transactions & splits
	GetTransaction(ctx context.Context, profileID, transactionID string) (*domain.Transaction, error)
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	UpdateTransaction(ctx context.Context, t *domain.Transaction) error
	InsertSplits(ctx context.Context, splits []domain.Split) error
	DeleteSplits(ctx context.Context, transactionID string) error
	GetTransactionView(ctx context.Context, profileID, transactionID string) (*domain.TransactionView, error)

	// Budgets & rules
	UpsertEnvelopeBudget(ctx context.Context, b domain.EnvelopeBudget) error
	InsertRule(ctx context.Context, r *domain.Rule) error
}

// EventPublisher announces committed ledger writes to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.LedgerEvent) error
}
