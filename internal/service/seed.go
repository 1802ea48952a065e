package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SeedOptions describes the demo data created by Seed.
type SeedOptions struct {
	ProfileName  string
	Institution  string
	AccountName  string
	AccountType  domain.AccountType
	GroupName    string
	CategoryName string
	EnvelopeName string
	Month        string
	PlannedCents int64
	ActualCents  int64
}

// DefaultSeedOptions returns the stock demo data for month.
func DefaultSeedOptions(month string) SeedOptions {
	return SeedOptions{
		ProfileName:  "Ben (Personal)",
		Institution:  "Demo Bank",
		AccountName:  "Checking",
		AccountType:  domain.AccountChecking,
		GroupName:    "Everyday",
		CategoryName: "Food",
		EnvelopeName: "Food",
		Month:        month,
		PlannedCents: 40000,
		ActualCents:  12345,
	}
}

// SeedResult reports what Seed resolved or created.
type SeedResult struct {
	Profile  domain.Profile
	Account  domain.Account
	Category domain.Category
	Envelope domain.Envelope
	Budget   domain.EnvelopeBudget
}

// Seed makes sure the demo profile, account, category, envelope and the
// envelope's budget for opts.Month exist. Running it twice changes nothing
// but the budget amounts.
func Seed(ctx context.Context, store port.Store, opts SeedOptions, logger *zap.Logger) (*SeedResult, error) {
	month, err := domain.ParseMonth(opts.Month)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "month", Message: err.Error()}
	}
	if !opts.AccountType.Valid() {
		return nil, &domain.ErrValidation{Field: "accountType", Message: fmt.Sprintf("unknown account type %q", opts.AccountType)}
	}

	profile, err := store.FirstProfile(ctx)
	if err != nil && !errors.Is(err, port.ErrNoRows) {
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	res := &SeedResult{}
	err = store.WithTx(ctx, func(tx port.Tx) error {
		now := time.Now().UTC()

		if profile == nil {
			p := &domain.Profile{ID: uuid.New().String(), Name: opts.ProfileName, CreatedAt: now}
			if err := tx.InsertProfile(ctx, p); err != nil {
				return fmt.Errorf("inserting profile: %w", err)
			}
			logger.Info("profile created", zap.String("profile_id", p.ID))
			res.Profile = *p
		} else {
			res.Profile = *profile
		}
		pid := res.Profile.ID

		account, err := tx.FindAccountByName(ctx, pid, opts.Institution, opts.AccountName)
		if errors.Is(err, port.ErrNoRows) {
			account = &domain.Account{
				ID:          uuid.New().String(),
				ProfileID:   pid,
				Institution: opts.Institution,
				Name:        opts.AccountName,
				Type:        opts.AccountType,
				CreatedAt:   now,
			}
			err = tx.InsertAccount(ctx, account)
		}
		if err != nil {
			return fmt.Errorf("seeding account: %w", err)
		}
		res.Account = *account

		group, err := tx.FindCategoryGroupByName(ctx, pid, opts.GroupName)
		if errors.Is(err, port.ErrNoRows) {
			group = &domain.CategoryGroup{ID: uuid.New().String(), ProfileID: pid, Name: opts.GroupName}
			err = tx.InsertCategoryGroup(ctx, group)
		}
		if err != nil {
			return fmt.Errorf("seeding category group: %w", err)
		}

		category, err := tx.FindCategoryByName(ctx, pid, opts.CategoryName)
		if errors.Is(err, port.ErrNoRows) {
			category = &domain.Category{ID: uuid.New().String(), ProfileID: pid, GroupID: group.ID, Name: opts.CategoryName}
			err = tx.InsertCategory(ctx, category)
		}
		if err != nil {
			return fmt.Errorf("seeding category: %w", err)
		}
		res.Category = *category

		envelope, err := tx.FindEnvelopeByName(ctx, pid, opts.EnvelopeName)
		if errors.Is(err, port.ErrNoRows) {
			envelope = &domain.Envelope{
				ID:         uuid.New().String(),
				ProfileID:  pid,
				CategoryID: category.ID,
				Name:       opts.EnvelopeName,
				IsActive:   true,
			}
			err = tx.InsertEnvelope(ctx, envelope)
		}
		if err != nil {
			return fmt.Errorf("seeding envelope: %w", err)
		}
		res.Envelope = *envelope

		res.Budget = domain.EnvelopeBudget{
			EnvelopeID:   envelope.ID,
			Month:        month,
			PlannedCents: opts.PlannedCents,
			ActualCents:  opts.ActualCents,
		}
		if err := tx.UpsertEnvelopeBudget(ctx, res.Budget); err != nil {
			return fmt.Errorf("upserting envelope budget: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("seed complete",
		zap.String("profile_id", res.Profile.ID),
		zap.String("account_id", res.Account.ID),
		zap.String("envelope_id", res.Envelope.ID),
		zap.String("month", month),
	)
	return res, nil
}
