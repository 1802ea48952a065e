package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/port"
	"github.com/boddenberg/envelope-ledger/internal/service"

	"go.uber.org/zap"
)

func TestListEnvelopes_MonthScoped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sept, err := env.budget.ListEnvelopes(ctx, "2025-09")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sept) != 1 {
		t.Fatalf("expected Food for 2025-09, got %+v", sept)
	}
	food := sept[0]
	if food.Name != "Food" || food.Month != "2025-09" || food.PlannedCents != 40000 || food.ActualCents != 12345 {
		t.Errorf("unexpected envelope %+v", food)
	}
	if food.ID != env.seed.Envelope.ID {
		t.Errorf("expected envelope id %s, got %s", env.seed.Envelope.ID, food.ID)
	}

	oct, err := env.budget.ListEnvelopes(ctx, "2025-10")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(oct) != 0 {
		t.Errorf("envelopes without a budget row must be absent, got %+v", oct)
	}

	// an ISO date selects its month
	byDate, err := env.budget.ListEnvelopes(ctx, "2025-09-15")
	if err != nil || len(byDate) != 1 {
		t.Errorf("expected ISO date to select 2025-09, got %+v (%v)", byDate, err)
	}
}

func TestListEnvelopes_DefaultsToCurrentMonth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	month := domain.CurrentMonth(time.Now())

	err := env.budget.UpsertEnvelopeBudget(ctx, domain.EnvelopeBudget{
		EnvelopeID: env.seed.Envelope.ID, Month: month, PlannedCents: 1, ActualCents: 2,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, err := env.budget.ListEnvelopes(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].Month != month {
		t.Errorf("expected current month row, got %+v", rows)
	}
}

func TestListEnvelopes_InactiveExcluded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inactive := &domain.Envelope{ID: "env-household", ProfileID: env.seed.Profile.ID, CategoryID: env.household, Name: "Household", IsActive: false}
	err := env.store.WithTx(ctx, func(tx port.Tx) error {
		if err := tx.InsertEnvelope(ctx, inactive); err != nil {
			return err
		}
		return tx.UpsertEnvelopeBudget(ctx, domain.EnvelopeBudget{EnvelopeID: inactive.ID, Month: "2025-09", PlannedCents: 5})
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	rows, err := env.budget.ListEnvelopes(ctx, "2025-09")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "Food" {
		t.Errorf("expected only the active envelope, got %+v", rows)
	}
}

func TestListEnvelopes_InvalidMonth(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.budget.ListEnvelopes(context.Background(), "September"); !isValidation(err) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestUpsertEnvelopeBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.budget.UpsertEnvelopeBudget(ctx, domain.EnvelopeBudget{
		EnvelopeID: env.seed.Envelope.ID, Month: "2025-09", PlannedCents: 50000, ActualCents: 0,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rows, _ := env.budget.ListEnvelopes(ctx, "2025-09")
	if len(rows) != 1 || rows[0].PlannedCents != 50000 || rows[0].ActualCents != 0 {
		t.Errorf("expected overwritten row, got %+v", rows)
	}

	err = env.budget.UpsertEnvelopeBudget(ctx, domain.EnvelopeBudget{EnvelopeID: "ghost", Month: "2025-09"})
	if !isValidation(err) {
		t.Errorf("expected ErrValidation for unknown envelope, got %v", err)
	}
	err = env.budget.UpsertEnvelopeBudget(ctx, domain.EnvelopeBudget{EnvelopeID: env.seed.Envelope.ID, Month: "bad"})
	if !isValidation(err) {
		t.Errorf("expected ErrValidation for bad month, got %v", err)
	}
}

func TestListAccounts(t *testing.T) {
	env := newTestEnv(t)

	accounts, err := env.budget.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %+v", accounts)
	}
	a := accounts[0]
	if a.Name != "Checking" || a.Institution != "Demo Bank" || a.Type != domain.AccountChecking {
		t.Errorf("unexpected account %+v", a)
	}
}

func TestCreateRule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := json.RawMessage(`{"merchant": {"contains": "joe"}}`)
	actions := json.RawMessage(`{"setCategory": "food"}`)
	rule, err := env.budget.CreateRule(ctx, domain.CreateRuleInput{Priority: 1, Tests: tests, Actions: actions, IsActive: true})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if rule.ID == "" || rule.CreatedAt.IsZero() {
		t.Errorf("expected generated id and createdAt, got %+v", rule)
	}
	if string(rule.Tests) != string(tests) || string(rule.Actions) != string(actions) {
		t.Errorf("documents must be echoed verbatim, got %s / %s", rule.Tests, rule.Actions)
	}

	invalid := []domain.CreateRuleInput{
		{Priority: 0, Tests: tests, Actions: actions},
		{Priority: 1, Tests: json.RawMessage(`[]`), Actions: actions},
		{Priority: 1, Tests: tests, Actions: json.RawMessage(`"x"`)},
		{Priority: 1, Actions: actions},
	}
	for i, in := range invalid {
		if _, err := env.budget.CreateRule(ctx, in); !isValidation(err) {
			t.Errorf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
}

func TestBudgetService_NoProfile(t *testing.T) {
	svc := service.NewBudgetService(openStore(t), "", zap.NewNop())

	var se *domain.ErrSetup
	if _, err := svc.ListEnvelopes(context.Background(), ""); !errors.As(err, &se) {
		t.Errorf("expected ErrSetup, got %v", err)
	}
	if _, err := svc.ListAccounts(context.Background()); !errors.As(err, &se) {
		t.Errorf("expected ErrSetup, got %v", err)
	}
}
