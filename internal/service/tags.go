package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/infra/observability"
	"github.com/boddenberg/envelope-ledger/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tagTracer = otel.Tracer("service/tags")

// TagMode selects how Attach treats a transaction's existing tags.
type TagMode int

const (
	// TagsAdditive attaches the resolved tags and keeps existing ones.
	TagsAdditive TagMode = iota
	// TagsReplace drops every existing association first.
	TagsReplace
)

// TagDirectory keeps one tag per (profile, name).
type TagDirectory struct {
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewTagDirectory creates a TagDirectory.
func NewTagDirectory(metrics *observability.Metrics, logger *zap.Logger) *TagDirectory {
	return &TagDirectory{metrics: metrics, logger: logger}
}

// ResolveOrCreate returns one tag per distinct non-blank name, creating the
// missing ones. Existing tags are read in a single batch.
func (d *TagDirectory) ResolveOrCreate(ctx context.Context, tx port.Tx, profileID string, names []string) ([]domain.Tag, error) {
	ctx, span := tagTracer.Start(ctx, "TagDirectory.ResolveOrCreate")
	defer span.End()

	names = cleanTagNames(names)
	span.SetAttributes(attribute.Int("tags.count", len(names)))
	if len(names) == 0 {
		return []domain.Tag{}, nil
	}

	existing, err := tx.FindTagsByName(ctx, profileID, names)
	if err != nil {
		return nil, fmt.Errorf("finding tags: %w", err)
	}
	byName := make(map[string]domain.Tag, len(names))
	for _, t := range existing {
		byName[t.Name] = t
	}

	result := make([]domain.Tag, 0, len(names))
	for _, name := range names {
		if t, ok := byName[name]; ok {
			result = append(result, t)
			continue
		}

		t := domain.Tag{ID: uuid.New().String(), ProfileID: profileID, Name: name}
		err := tx.InsertTag(ctx, &t)
		switch {
		case err == nil:
			d.metrics.IncrDirectoryInsert("tag")
		case errors.Is(err, port.ErrUniqueViolation):
			winners, rerr := tx.FindTagsByName(ctx, profileID, []string{name})
			if rerr != nil {
				return nil, fmt.Errorf("re-reading tag after conflict: %w", rerr)
			}
			if len(winners) == 0 {
				return nil, fmt.Errorf("tag %q vanished after conflict", name)
			}
			t = winners[0]
			d.metrics.IncrConflictRecovered("tag")
			d.logger.Debug("tag insert lost race, using existing row", zap.String("tag", name))
		default:
			return nil, fmt.Errorf("inserting tag: %w", err)
		}
		result = append(result, t)
	}
	return result, nil
}

// Attach resolves names and associates them with the transaction.
// In TagsReplace mode an empty names list leaves the transaction untagged.
func (d *TagDirectory) Attach(ctx context.Context, tx port.Tx, profileID, transactionID string, names []string, mode TagMode) error {
	ctx, span := tagTracer.Start(ctx, "TagDirectory.Attach")
	defer span.End()

	if mode == TagsReplace {
		if err := tx.DetachAllTags(ctx, transactionID); err != nil {
			return fmt.Errorf("detaching tags: %w", err)
		}
	}

	tags, err := d.ResolveOrCreate(ctx, tx, profileID, names)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}

	ids := make([]string, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	if err := tx.AttachTags(ctx, transactionID, ids); err != nil {
		return fmt.Errorf("attaching tags: %w", err)
	}
	return nil
}

// cleanTagNames trims names, drops blanks and duplicates, keeps order.
// Tag names are case-sensitive.
func cleanTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
