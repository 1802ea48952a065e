package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/service"

	"go.uber.org/zap"
)

func TestSeed_Idempotent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first, err := service.Seed(ctx, store, service.DefaultSeedOptions("2025-09"), zap.NewNop())
	if err != nil {
		t.Fatalf("first seed: %v", err)
	}

	opts := service.DefaultSeedOptions("2025-09-30")
	opts.PlannedCents = 55000
	second, err := service.Seed(ctx, store, opts, zap.NewNop())
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}

	if first.Profile.ID != second.Profile.ID || first.Account.ID != second.Account.ID ||
		first.Category.ID != second.Category.ID || first.Envelope.ID != second.Envelope.ID {
		t.Errorf("seed must reuse existing rows: %+v vs %+v", first, second)
	}
	if second.Budget.Month != "2025-09" {
		t.Errorf("expected month key 2025-09, got %q", second.Budget.Month)
	}

	rows, err := service.NewBudgetService(store, second.Profile.ID, zap.NewNop()).ListEnvelopes(ctx, "2025-09")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].PlannedCents != 55000 || rows[0].ActualCents != 12345 {
		t.Errorf("expected updated budget, got %+v", rows)
	}
}

func TestSeed_RejectsBadOptions(t *testing.T) {
	store := openStore(t)

	opts := service.DefaultSeedOptions("2025-13")
	if _, err := service.Seed(context.Background(), store, opts, zap.NewNop()); !isValidation(err) {
		t.Errorf("expected ErrValidation for bad month, got %v", err)
	}

	opts = service.DefaultSeedOptions("2025-09")
	opts.AccountType = "piggybank"
	if _, err := service.Seed(context.Background(), store, opts, zap.NewNop()); !isValidation(err) {
		t.Errorf("expected ErrValidation for bad account type, got %v", err)
	}
}

func TestResolveProfile(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	var se *domain.ErrSetup
	if _, err := service.ResolveProfile(ctx, store, ""); !errors.As(err, &se) {
		t.Fatalf("expected ErrSetup on empty store, got %v", err)
	}

	seed, err := service.Seed(ctx, store, service.DefaultSeedOptions("2025-09"), zap.NewNop())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	p, err := service.ResolveProfile(ctx, store, "")
	if err != nil || p.ID != seed.Profile.ID {
		t.Errorf("expected first profile, got %+v (%v)", p, err)
	}
	p, err = service.ResolveProfile(ctx, store, seed.Profile.ID)
	if err != nil || p.Name != "Ben (Personal)" {
		t.Errorf("expected configured profile, got %+v (%v)", p, err)
	}
	if _, err := service.ResolveProfile(ctx, store, "ghost"); !errors.As(err, &se) {
		t.Errorf("expected ErrSetup for unknown configured profile, got %v", err)
	}
}
