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
	"golang.org/x/sync/errgroup"
)

var ledgerTracer = otel.Tracer("service/ledger")

// Ledger is the transaction store: it writes transactions together with
// their merchant, splits and tags in one storage transaction, and answers
// filtered, paginated queries.
type Ledger struct {
	store     port.Store
	merchants *MerchantDirectory
	tags      *TagDirectory
	splits    *SplitLedger
	events    port.EventPublisher // nil: events disabled
	profileID string
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewLedger creates a Ledger bound to one profile. An empty profileID is
// allowed; every operation then fails with domain.ErrSetup.
func NewLedger(
	store port.Store,
	events port.EventPublisher,
	profileID string,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Ledger {
	return &Ledger{
		store:     store,
		merchants: NewMerchantDirectory(metrics, logger),
		tags:      NewTagDirectory(metrics, logger),
		splits:    NewSplitLedger(),
		events:    events,
		profileID: profileID,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (l *Ledger) profile() (string, error) {
	if l.profileID == "" {
		return "", &domain.ErrSetup{Message: "no profile found; run the seed command first"}
	}
	return l.profileID, nil
}

// CreateTransaction stores a new transaction and returns its hydrated view.
func (l *Ledger) CreateTransaction(ctx context.Context, in domain.CreateTransactionInput) (*domain.TransactionView, error) {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.CreateTransaction")
	defer span.End()
	start := time.Now()
	defer func() { l.metrics.RecordOperationDuration("create_transaction", time.Since(start)) }()

	profileID, err := l.profile()
	if err != nil {
		return nil, err
	}

	in.AccountID = strings.TrimSpace(in.AccountID)
	if in.AccountID == "" {
		return nil, &domain.ErrValidation{Field: "accountId", Message: "accountId is required"}
	}
	if in.PostedAt.IsZero() {
		return nil, &domain.ErrValidation{Field: "postedAt", Message: "postedAt is required"}
	}
	if in.Status == "" {
		in.Status = domain.StatusPosted
	}
	if !in.Status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "status must be one of [pending posted]"}
	}
	if err := l.splits.Validate(in.AmountCents, in.Splits); err != nil {
		l.metrics.IncrSplitViolation("create")
		return nil, err
	}

	var view *domain.TransactionView
	err = l.store.WithTx(ctx, func(tx port.Tx) error {
		if _, err := tx.GetAccount(ctx, profileID, in.AccountID); err != nil {
			if errors.Is(err, port.ErrNoRows) {
				return &domain.ErrValidation{Field: "accountId", Message: "account not found"}
			}
			return fmt.Errorf("loading account: %w", err)
		}

		merchant, err := l.merchants.ResolveOrCreate(ctx, tx, profileID, in.MerchantName)
		if err != nil {
			return err
		}

		now := l.now().UTC()
		t := &domain.Transaction{
			ID:          uuid.New().String(),
			ProfileID:   profileID,
			AccountID:   in.AccountID,
			PostedAt:    in.PostedAt,
			AmountCents: in.AmountCents,
			Status:      in.Status,
			Memo:        in.Memo,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if merchant != nil {
			t.MerchantID = &merchant.ID
		}
		if c := strings.TrimSpace(in.CategoryID); c != "" {
			t.CategoryID = &c
		}

		if err := tx.InsertTransaction(ctx, t); err != nil {
			if errors.Is(err, port.ErrForeignKeyViolation) {
				return &domain.ErrValidation{Field: "categoryId", Message: "unknown categoryId"}
			}
			return fmt.Errorf("inserting transaction: %w", err)
		}
		if err := l.splits.Write(ctx, tx, t.ID, in.Splits, false); err != nil {
			return err
		}
		if err := l.tags.Attach(ctx, tx, profileID, t.ID, in.Tags, TagsAdditive); err != nil {
			return err
		}

		view, err = tx.GetTransactionView(ctx, profileID, t.ID)
		if err != nil {
			return fmt.Errorf("loading transaction view: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("transaction.id", view.ID))
	l.metrics.IncrTransaction("create")
	l.publish(ctx, domain.EventTransactionCreated, profileID, view.ID)
	return view, nil
}

// UpdateTransaction applies a partial update. Only fields present in the
// input are touched; splits and tags are replaced wholesale when present.
func (l *Ledger) UpdateTransaction(ctx context.Context, id string, in domain.UpdateTransactionInput) (*domain.TransactionView, error) {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.UpdateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))
	start := time.Now()
	defer func() { l.metrics.RecordOperationDuration("update_transaction", time.Since(start)) }()

	profileID, err := l.profile()
	if err != nil {
		return nil, err
	}
	if err := validateUpdate(in); err != nil {
		return nil, err
	}

	var view *domain.TransactionView
	err = l.store.WithTx(ctx, func(tx port.Tx) error {
		t, err := tx.GetTransaction(ctx, profileID, id)
		if err != nil {
			if errors.Is(err, port.ErrNoRows) {
				return &domain.ErrNotFound{Resource: "transaction", ID: id}
			}
			return fmt.Errorf("loading transaction: %w", err)
		}

		if in.CategoryID.Set {
			if in.CategoryID.Null {
				t.CategoryID = nil
			} else {
				c := strings.TrimSpace(in.CategoryID.Value)
				t.CategoryID = &c
			}
		}
		if in.Memo.HasValue() {
			t.Memo = in.Memo.Value
		}
		if in.IsReviewed.HasValue() {
			t.IsReviewed = in.IsReviewed.Value
		}
		t.UpdatedAt = l.now().UTC()

		if err := tx.UpdateTransaction(ctx, t); err != nil {
			if errors.Is(err, port.ErrForeignKeyViolation) {
				return &domain.ErrValidation{Field: "categoryId", Message: "unknown categoryId"}
			}
			return fmt.Errorf("updating transaction: %w", err)
		}

		if in.Splits.Set {
			if err := l.splits.Validate(t.AmountCents, in.Splits.Value); err != nil {
				l.metrics.IncrSplitViolation("update")
				return err
			}
			if err := l.splits.Write(ctx, tx, t.ID, in.Splits.Value, true); err != nil {
				return err
			}
		}
		if in.Tags.Set {
			if err := l.tags.Attach(ctx, tx, profileID, t.ID, in.Tags.Value, TagsReplace); err != nil {
				return err
			}
		}

		view, err = tx.GetTransactionView(ctx, profileID, t.ID)
		if err != nil {
			return fmt.Errorf("loading transaction view: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.IncrTransaction("update")
	l.publish(ctx, domain.EventTransactionUpdated, profileID, view.ID)
	return view, nil
}

// validateUpdate rejects nulls on fields that cannot be cleared.
func validateUpdate(in domain.UpdateTransactionInput) error {
	if in.CategoryID.HasValue() && strings.TrimSpace(in.CategoryID.Value) == "" {
		return &domain.ErrValidation{Field: "categoryId", Message: "categoryId must be a non-empty string or null"}
	}
	if in.Memo.Set && in.Memo.Null {
		return &domain.ErrValidation{Field: "memo", Message: "memo must be a string"}
	}
	if in.IsReviewed.Set && in.IsReviewed.Null {
		return &domain.ErrValidation{Field: "isReviewed", Message: "isReviewed must be a boolean"}
	}
	if in.Splits.Set && in.Splits.Null {
		return &domain.ErrValidation{Field: "splits", Message: "splits must be an array"}
	}
	if in.Tags.Set && in.Tags.Null {
		return &domain.ErrValidation{Field: "tags", Message: "tags must be an array"}
	}
	return nil
}

// GetTransaction returns the hydrated view of one transaction.
func (l *Ledger) GetTransaction(ctx context.Context, id string) (*domain.TransactionView, error) {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.GetTransaction")
	defer span.End()

	profileID, err := l.profile()
	if err != nil {
		return nil, err
	}

	view, err := l.store.GetTransactionView(ctx, profileID, id)
	if err != nil {
		if errors.Is(err, port.ErrNoRows) {
			return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
		}
		return nil, err
	}
	return view, nil
}

// ListTransactions returns one page of transactions matching filter, newest
// first, along with the unpaginated total.
func (l *Ledger) ListTransactions(ctx context.Context, filter domain.TransactionFilter) (*domain.TransactionPage, error) {
	ctx, span := ledgerTracer.Start(ctx, "Ledger.ListTransactions")
	defer span.End()
	start := time.Now()
	defer func() { l.metrics.RecordOperationDuration("list_transactions", time.Since(start)) }()

	profileID, err := l.profile()
	if err != nil {
		return nil, err
	}

	if filter.Page < 1 {
		filter.Page = domain.DefaultPage
	}
	if filter.PageSize < 1 {
		filter.PageSize = domain.DefaultPageSize
	}
	if filter.PageSize > domain.MaxPageSize {
		filter.PageSize = domain.MaxPageSize
	}
	// Merchant filter is compared against normalized names.
	filter.Merchant = Normalize(filter.Merchant)
	filter.Q = strings.TrimSpace(filter.Q)

	span.SetAttributes(
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	)

	var (
		total int
		rows  []domain.TransactionView
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := l.store.CountTransactions(gctx, profileID, filter)
		if err != nil {
			return fmt.Errorf("counting transactions: %w", err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		v, err := l.store.ListTransactionViews(gctx, profileID, filter)
		if err != nil {
			return fmt.Errorf("listing transactions: %w", err)
		}
		rows = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if rows == nil {
		rows = []domain.TransactionView{}
	}
	return &domain.TransactionPage{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Total:    total,
		Data:     rows,
	}, nil
}

// publish announces a committed write. Failures are logged and counted.
func (l *Ledger) publish(ctx context.Context, eventType, profileID, transactionID string) {
	if l.events == nil {
		return
	}
	evt := domain.LedgerEvent{
		Type:          eventType,
		TransactionID: transactionID,
		ProfileID:     profileID,
		OccurredAt:    l.now().UTC().Format(time.RFC3339Nano),
	}
	if err := l.events.Publish(context.WithoutCancel(ctx), evt); err != nil {
		l.metrics.IncrExternalError("amqp")
		l.logger.Warn("failed to publish ledger event",
			zap.String("type", eventType),
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
	}
}
