package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Transactions Handlers
// ============================================================

type splitRequest struct {
	CategoryID  *string `json:"categoryId"`
	AmountCents *int64  `json:"amountCents"`
	Memo        *string `json:"memo"`
}

type createTransactionRequest struct {
	AccountID    *string        `json:"accountId"`
	PostedAt     *string        `json:"postedAt"`
	AmountCents  *int64         `json:"amountCents"`
	Status       *string        `json:"status"`
	MerchantName *string        `json:"merchantName"`
	Memo         *string        `json:"memo"`
	CategoryID   *string        `json:"categoryId"`
	Splits       []splitRequest `json:"splits"`
	Tags         []string       `json:"tags"`
}

type updateTransactionRequest struct {
	CategoryID domain.Optional[string]         `json:"categoryId"`
	Memo       domain.Optional[string]         `json:"memo"`
	IsReviewed domain.Optional[bool]           `json:"isReviewed"`
	Splits     domain.Optional[[]splitRequest] `json:"splits"`
	Tags       domain.Optional[[]string]       `json:"tags"`
}

func listTransactionsHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/budget/transactions")
		defer span.End()

		filter, err := parseTransactionFilter(r.URL.Query())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		page, err := ledger.ListTransactions(ctx, filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("transactions.total", page.Total))
		writeJSON(w, http.StatusOK, page)
	}
}

func getTransactionHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/budget/transactions/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("transaction.id", id))

		view, err := ledger.GetTransaction(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func createTransactionHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/budget/transactions")
		defer span.End()

		var req createTransactionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		in, err := req.toInput()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		view, err := ledger.CreateTransaction(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

func updateTransactionHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /api/budget/transactions/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("transaction.id", id))

		var req updateTransactionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		in, err := req.toInput()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		view, err := ledger.UpdateTransaction(ctx, id, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// ============================================================
// Request validation
// ============================================================

func parseTransactionFilter(q url.Values) (domain.TransactionFilter, error) {
	var p problems
	f := domain.TransactionFilter{
		Page:       domain.DefaultPage,
		PageSize:   domain.DefaultPageSize,
		Status:     domain.TransactionStatus(q.Get("status")),
		AccountID:  q.Get("accountId"),
		CategoryID: q.Get("categoryId"),
		Merchant:   q.Get("merchant"),
		Q:          q.Get("q"),
	}

	for _, key := range []string{"from", "to"} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		d, err := domain.ParseISODate(v)
		if err != nil {
			p.add(key, "must be in ISO 8601 date format")
			continue
		}
		if key == "from" {
			f.From = &d
		} else {
			f.To = &d
		}
	}

	if f.Status != "" && !f.Status.Valid() {
		p.add("status", "must be one of [pending, posted]")
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			p.add("page", "must be an integer")
		case n < 1:
			p.add("page", "must be greater than or equal to 1")
		default:
			f.Page = n
		}
	}
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			p.add("pageSize", "must be an integer")
		case n < 1:
			p.add("pageSize", "must be greater than or equal to 1")
		case n > domain.MaxPageSize:
			p.add("pageSize", "must be less than or equal to %d", domain.MaxPageSize)
		default:
			f.PageSize = n
		}
	}

	return f, p.err()
}

func (req createTransactionRequest) toInput() (domain.CreateTransactionInput, error) {
	var p problems
	in := domain.CreateTransactionInput{Tags: req.Tags}

	if req.AccountID == nil {
		p.add("accountId", "is required")
	} else if strings.TrimSpace(*req.AccountID) == "" {
		p.add("accountId", "is not allowed to be empty")
	} else {
		in.AccountID = *req.AccountID
	}

	if req.PostedAt == nil {
		p.add("postedAt", "is required")
	} else if d, err := domain.ParseISODate(*req.PostedAt); err != nil {
		p.add("postedAt", "must be in ISO 8601 date format")
	} else {
		in.PostedAt = d
	}

	if req.AmountCents == nil {
		p.add("amountCents", "is required")
	} else {
		in.AmountCents = *req.AmountCents
	}

	in.Status = domain.StatusPosted
	if req.Status != nil {
		in.Status = domain.TransactionStatus(*req.Status)
		if !in.Status.Valid() {
			p.add("status", "must be one of [pending, posted]")
		}
	}

	if req.MerchantName != nil {
		if *req.MerchantName == "" {
			p.add("merchantName", "is not allowed to be empty")
		}
		in.MerchantName = *req.MerchantName
	}
	if req.Memo != nil {
		in.Memo = *req.Memo
	}
	if req.CategoryID != nil {
		if strings.TrimSpace(*req.CategoryID) == "" {
			p.add("categoryId", "is not allowed to be empty")
		}
		in.CategoryID = *req.CategoryID
	}

	in.Splits = splitInputs(&p, req.Splits)
	return in, p.err()
}

func (req updateTransactionRequest) toInput() (domain.UpdateTransactionInput, error) {
	var p problems
	in := domain.UpdateTransactionInput{
		CategoryID: req.CategoryID,
		Memo:       req.Memo,
		IsReviewed: req.IsReviewed,
		Tags:       req.Tags,
	}

	if req.CategoryID.HasValue() && strings.TrimSpace(req.CategoryID.Value) == "" {
		p.add("categoryId", "is not allowed to be empty")
	}
	if req.Memo.Set && req.Memo.Null {
		p.add("memo", "must be a string")
	}
	if req.IsReviewed.Set && req.IsReviewed.Null {
		p.add("isReviewed", "must be a boolean")
	}
	if req.Tags.Set && req.Tags.Null {
		p.add("tags", "must be an array")
	}

	switch {
	case !req.Splits.Set:
	case req.Splits.Null:
		p.add("splits", "must be an array")
	default:
		in.Splits = domain.Some(splitInputs(&p, req.Splits.Value))
	}

	return in, p.err()
}

func splitInputs(p *problems, reqs []splitRequest) []domain.SplitInput {
	if reqs == nil {
		return nil
	}
	out := make([]domain.SplitInput, 0, len(reqs))
	for i, s := range reqs {
		var in domain.SplitInput
		switch {
		case s.CategoryID == nil:
			p.add("splits["+strconv.Itoa(i)+"].categoryId", "is required")
		case strings.TrimSpace(*s.CategoryID) == "":
			p.add("splits["+strconv.Itoa(i)+"].categoryId", "is not allowed to be empty")
		default:
			in.CategoryID = *s.CategoryID
		}
		if s.AmountCents == nil {
			p.add("splits["+strconv.Itoa(i)+"].amountCents", "is required")
		} else {
			in.AmountCents = *s.AmountCents
		}
		if s.Memo != nil {
			in.Memo = *s.Memo
		}
		out = append(out, in)
	}
	return out
}
