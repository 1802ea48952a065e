package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/infra/observability"
	"github.com/boddenberg/envelope-ledger/internal/infra/sqlstore"
	"github.com/boddenberg/envelope-ledger/internal/port"
	"github.com/boddenberg/envelope-ledger/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, evt domain.LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, evt)
	return nil
}

// racingTx hides an existing merchant from the first lookup, reproducing a
// concurrent writer that inserted the same key between lookup and insert.
type racingTx struct {
	port.Tx
	hidden bool
}

func (r *racingTx) FindMerchantByNormalizedName(ctx context.Context, profileID, normalized string) (*domain.Merchant, error) {
	if !r.hidden {
		r.hidden = true
		return nil, port.ErrNoRows
	}
	return r.Tx.FindMerchantByNormalizedName(ctx, profileID, normalized)
}

// racingTagTx hides existing tags from the first batch lookup, so the
// directory tries to insert a tag another writer already created.
type racingTagTx struct {
	port.Tx
	hidden bool
}

func (r *racingTagTx) FindTagsByName(ctx context.Context, profileID string, names []string) ([]domain.Tag, error) {
	if !r.hidden {
		r.hidden = true
		return nil, nil
	}
	return r.Tx.FindTagsByName(ctx, profileID, names)
}

// --- Environment ---

type testEnv struct {
	store     *sqlstore.Store
	metrics   *observability.Metrics
	events    *mockPublisher
	ledger    *service.Ledger
	budget    *service.BudgetService
	seed      *service.SeedResult
	household string
}

func openStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(context.Background(), sqlstore.Config{
		Driver:         sqlstore.DriverSQLite,
		DSN:            filepath.Join(t.TempDir(), "ledger.db"),
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxWriters:     4,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := openStore(t)

	seed, err := service.Seed(ctx, store, service.DefaultSeedOptions("2025-09"), zap.NewNop())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	household := &domain.Category{ID: "household", ProfileID: seed.Profile.ID, GroupID: seed.Category.GroupID, Name: "Household"}
	err = store.WithTx(ctx, func(tx port.Tx) error { return tx.InsertCategory(ctx, household) })
	if err != nil {
		t.Fatalf("insert category: %v", err)
	}

	metrics := observability.NewMetrics()
	events := &mockPublisher{}
	return &testEnv{
		store:     store,
		metrics:   metrics,
		events:    events,
		ledger:    service.NewLedger(store, events, seed.Profile.ID, metrics, zap.NewNop()),
		budget:    service.NewBudgetService(store, seed.Profile.ID, zap.NewNop()),
		seed:      seed,
		household: household.ID,
	}
}

func (e *testEnv) create(t *testing.T, in domain.CreateTransactionInput) *domain.TransactionView {
	t.Helper()
	if in.AccountID == "" {
		in.AccountID = e.seed.Account.ID
	}
	if in.PostedAt.IsZero() {
		in.PostedAt = date("2025-09-01")
	}
	v, err := e.ledger.CreateTransaction(context.Background(), in)
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return v
}

func date(s string) time.Time {
	d, err := domain.ParseISODate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func tagNames(v *domain.TransactionView) []string {
	out := make([]string, len(v.Tags))
	for i, tg := range v.Tags {
		out[i] = tg.Name
	}
	return out
}

func isValidation(err error) bool {
	var ve *domain.ErrValidation
	return errors.As(err, &ve)
}
