package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var budgetTracer = otel.Tracer("service/budget")

// ============================================================
// Envelope rollup, accounts and rules
// ============================================================

// BudgetService serves the read side of envelopes and accounts and stores
// rules verbatim.
type BudgetService struct {
	store     port.Store
	profileID string
	logger    *zap.Logger
	now       func() time.Time
}

// NewBudgetService creates a BudgetService bound to one profile.
func NewBudgetService(store port.Store, profileID string, logger *zap.Logger) *BudgetService {
	return &BudgetService{store: store, profileID: profileID, logger: logger, now: time.Now}
}

func (s *BudgetService) profile() (string, error) {
	if s.profileID == "" {
		return "", &domain.ErrSetup{Message: "no profile found; run the seed command first"}
	}
	return s.profileID, nil
}

// ListEnvelopes returns planned/actual cents of every active envelope that
// has a budget row for month. An empty month means the current month.
// Envelopes without a row for that month are left out.
func (s *BudgetService) ListEnvelopes(ctx context.Context, month string) ([]domain.EnvelopeMonth, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.ListEnvelopes")
	defer span.End()

	profileID, err := s.profile()
	if err != nil {
		return nil, err
	}

	if month == "" {
		month = domain.CurrentMonth(s.now())
	} else if month, err = domain.ParseMonth(month); err != nil {
		return nil, &domain.ErrValidation{Field: "month", Message: err.Error()}
	}
	span.SetAttributes(attribute.String("month", month))

	rows, err := s.store.ListEnvelopeMonths(ctx, profileID, month)
	if err != nil {
		return nil, fmt.Errorf("listing envelopes: %w", err)
	}
	if rows == nil {
		rows = []domain.EnvelopeMonth{}
	}
	return rows, nil
}

// UpsertEnvelopeBudget creates the (envelope, month) row or overwrites its
// planned and actual cents.
func (s *BudgetService) UpsertEnvelopeBudget(ctx context.Context, b domain.EnvelopeBudget) error {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.UpsertEnvelopeBudget")
	defer span.End()

	if strings.TrimSpace(b.EnvelopeID) == "" {
		return &domain.ErrValidation{Field: "envelopeId", Message: "envelopeId is required"}
	}
	month, err := domain.ParseMonth(b.Month)
	if err != nil {
		return &domain.ErrValidation{Field: "month", Message: err.Error()}
	}
	b.Month = month

	return s.store.WithTx(ctx, func(tx port.Tx) error {
		if err := tx.UpsertEnvelopeBudget(ctx, b); err != nil {
			if errors.Is(err, port.ErrForeignKeyViolation) {
				return &domain.ErrValidation{Field: "envelopeId", Message: "envelope not found"}
			}
			return fmt.Errorf("upserting envelope budget: %w", err)
		}
		return nil
	})
}

// ListAccounts returns the profile's non-archived accounts ordered by
// institution, then name.
func (s *BudgetService) ListAccounts(ctx context.Context) ([]domain.AccountSummary, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.ListAccounts")
	defer span.End()

	profileID, err := s.profile()
	if err != nil {
		return nil, err
	}

	accounts, err := s.store.ListAccounts(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	if accounts == nil {
		accounts = []domain.AccountSummary{}
	}
	return accounts, nil
}

// CreateRule stores a rule as given. Tests and actions are kept as opaque
// JSON objects; nothing evaluates them.
func (s *BudgetService) CreateRule(ctx context.Context, in domain.CreateRuleInput) (*domain.Rule, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.CreateRule")
	defer span.End()

	profileID, err := s.profile()
	if err != nil {
		return nil, err
	}

	if in.Priority < 1 {
		return nil, &domain.ErrValidation{Field: "priority", Message: "priority must be greater than or equal to 1"}
	}
	if !isJSONObject(in.Tests) {
		return nil, &domain.ErrValidation{Field: "tests", Message: "tests must be an object"}
	}
	if !isJSONObject(in.Actions) {
		return nil, &domain.ErrValidation{Field: "actions", Message: "actions must be an object"}
	}

	rule := &domain.Rule{
		ID:        uuid.New().String(),
		ProfileID: profileID,
		Priority:  in.Priority,
		Tests:     in.Tests,
		Actions:   in.Actions,
		IsActive:  in.IsActive,
		CreatedAt: s.now().UTC(),
	}
	err = s.store.WithTx(ctx, func(tx port.Tx) error {
		return tx.InsertRule(ctx, rule)
	})
	if err != nil {
		return nil, fmt.Errorf("inserting rule: %w", err)
	}

	s.logger.Info("rule created", zap.String("rule_id", rule.ID), zap.Int("priority", rule.Priority))
	return rule, nil
}

func isJSONObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) >= 2 && raw[0] == '{' && raw[len(raw)-1] == '}'
}
