package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/port"

	"github.com/google/uuid"
)

// SplitLedger validates and stores the category breakdown of a transaction.
type SplitLedger struct{}

// NewSplitLedger creates a SplitLedger.
func NewSplitLedger() *SplitLedger {
	return &SplitLedger{}
}

// Validate checks that the absolute split amounts add up to the absolute
// transaction amount. An empty split set is always valid.
func (l *SplitLedger) Validate(amountCents int64, splits []domain.SplitInput) error {
	if len(splits) == 0 {
		return nil
	}

	var sum int64
	for i, s := range splits {
		if strings.TrimSpace(s.CategoryID) == "" {
			return &domain.ErrValidation{
				Field:   fmt.Sprintf("splits[%d].categoryId", i),
				Message: "categoryId is required",
			}
		}
		sum += abs(s.AmountCents)
	}

	if want := abs(amountCents); sum != want {
		return &domain.ErrValidation{
			Field:   "splits",
			Message: fmt.Sprintf("split amounts must sum to %d, got %d", want, sum),
		}
	}
	return nil
}

// Write stores splits for the transaction. With replace set, existing splits
// are deleted first, so an empty set clears them.
func (l *SplitLedger) Write(ctx context.Context, tx port.Tx, transactionID string, splits []domain.SplitInput, replace bool) error {
	if replace {
		if err := tx.DeleteSplits(ctx, transactionID); err != nil {
			return fmt.Errorf("deleting splits: %w", err)
		}
	}
	if len(splits) == 0 {
		return nil
	}

	rows := make([]domain.Split, len(splits))
	for i, s := range splits {
		rows[i] = domain.Split{
			ID:            uuid.New().String(),
			TransactionID: transactionID,
			CategoryID:    strings.TrimSpace(s.CategoryID),
			AmountCents:   s.AmountCents,
			Memo:          s.Memo,
		}
	}

	if err := tx.InsertSplits(ctx, rows); err != nil {
		if errors.Is(err, port.ErrForeignKeyViolation) {
			return &domain.ErrValidation{Field: "splits", Message: "unknown categoryId"}
		}
		return fmt.Errorf("inserting splits: %w", err)
	}
	return nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
