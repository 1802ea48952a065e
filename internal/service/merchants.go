package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/infra/observability"
	"github.com/boddenberg/envelope-ledger/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var merchantTracer = otel.Tracer("service/merchants")

// MerchantDirectory keeps one merchant per (profile, normalized name).
type MerchantDirectory struct {
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewMerchantDirectory creates a MerchantDirectory.
func NewMerchantDirectory(metrics *observability.Metrics, logger *zap.Logger) *MerchantDirectory {
	return &MerchantDirectory{metrics: metrics, logger: logger, now: time.Now}
}

// ResolveOrCreate returns the merchant for rawName inside tx, creating it on
// first use. A name that normalizes to nothing yields (nil, nil).
// An existing merchant is returned unchanged; its display name is the one it
// was created with.
func (d *MerchantDirectory) ResolveOrCreate(ctx context.Context, tx port.Tx, profileID, rawName string) (*domain.Merchant, error) {
	ctx, span := merchantTracer.Start(ctx, "MerchantDirectory.ResolveOrCreate")
	defer span.End()

	display := strings.TrimSpace(rawName)
	key := Normalize(display)
	if key == "" {
		return nil, nil
	}
	span.SetAttributes(attribute.String("merchant.normalized", key))

	existing, err := tx.FindMerchantByNormalizedName(ctx, profileID, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, port.ErrNoRows) {
		return nil, fmt.Errorf("finding merchant: %w", err)
	}

	m := &domain.Merchant{
		ID:             uuid.New().String(),
		ProfileID:      profileID,
		DisplayName:    display,
		NormalizedName: key,
		CreatedAt:      d.now().UTC(),
	}
	err = tx.InsertMerchant(ctx, m)
	switch {
	case err == nil:
		d.metrics.IncrDirectoryInsert("merchant")
		return m, nil
	case errors.Is(err, port.ErrUniqueViolation):
		// Another writer created the same key first.
		winner, rerr := tx.FindMerchantByNormalizedName(ctx, profileID, key)
		if rerr != nil {
			return nil, fmt.Errorf("re-reading merchant after conflict: %w", rerr)
		}
		d.metrics.IncrConflictRecovered("merchant")
		d.logger.Debug("merchant insert lost race, using existing row",
			zap.String("normalized", key),
			zap.String("merchant_id", winner.ID),
		)
		return winner, nil
	default:
		return nil, fmt.Errorf("inserting merchant: %w", err)
	}
}
