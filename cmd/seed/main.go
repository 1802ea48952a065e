// Command seed creates the demo profile, account, category, envelope and a
// monthly envelope budget. Running it again reuses what already exists and
// overwrites the budget amounts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/boddenberg/envelope-ledger/internal/config"
	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/infra/observability"
	"github.com/boddenberg/envelope-ledger/internal/infra/sqlstore"
	"github.com/boddenberg/envelope-ledger/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	_ = config.LoadDotEnv(".env")
	cfg := config.Load()

	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	opts, err := parseFlags(os.Args[1:], time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:         cfg.DBDriver,
		DSN:            cfg.DatabaseURL,
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxWriters:     1,
	}, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	res, err := service.Seed(ctx, store, opts, logger)
	if err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}

	logger.Info("seed complete",
		zap.String("profile_id", res.Profile.ID),
		zap.String("account_id", res.Account.ID),
		zap.String("category_id", res.Category.ID),
		zap.String("envelope_id", res.Envelope.ID),
		zap.String("month", res.Budget.Month),
		zap.Int64("planned_cents", res.Budget.PlannedCents),
		zap.Int64("actual_cents", res.Budget.ActualCents),
	)
}

func parseFlags(args []string, now time.Time) (service.SeedOptions, error) {
	opts := service.DefaultSeedOptions(domain.CurrentMonth(now))

	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.StringVar(&opts.ProfileName, "profile", opts.ProfileName, "profile name, used only when no profile exists")
	fs.StringVar(&opts.Institution, "institution", opts.Institution, "account institution")
	fs.StringVar(&opts.AccountName, "account", opts.AccountName, "account name")
	accountType := fs.String("type", string(opts.AccountType), "account type")
	fs.StringVar(&opts.GroupName, "group", opts.GroupName, "category group name")
	fs.StringVar(&opts.CategoryName, "category", opts.CategoryName, "category name")
	fs.StringVar(&opts.EnvelopeName, "envelope", opts.EnvelopeName, "envelope name")
	fs.StringVar(&opts.Month, "month", opts.Month, "budget month (YYYY-MM)")
	planned := fs.String("planned", centsToAmount(opts.PlannedCents), "planned amount, e.g. 400.00")
	actual := fs.String("actual", centsToAmount(opts.ActualCents), "actual amount, e.g. 123.45")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.AccountType = domain.AccountType(*accountType)

	var err error
	if opts.PlannedCents, err = amountToCents(*planned); err != nil {
		return opts, fmt.Errorf("-planned: %w", err)
	}
	if opts.ActualCents, err = amountToCents(*actual); err != nil {
		return opts, fmt.Errorf("-actual: %w", err)
	}
	return opts, nil
}

var errSubCent = errors.New("amount has more than two decimal places")

// amountToCents converts a decimal currency amount to integer cents
// without going through float64.
func amountToCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, errSubCent
	}
	return cents.IntPart(), nil
}

func centsToAmount(c int64) string {
	return decimal.New(c, -2).StringFixed(2)
}
