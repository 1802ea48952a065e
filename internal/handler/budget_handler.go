package handler

import (
	"encoding/json"
	"net/http"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Envelopes, Accounts and Rules Handlers
// ============================================================

type createRuleRequest struct {
	Priority *int            `json:"priority"`
	Tests    json.RawMessage `json:"tests"`
	Actions  json.RawMessage `json:"actions"`
	IsActive *bool           `json:"isActive"`
}

func listEnvelopesHandler(budget *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/budget/envelopes")
		defer span.End()

		month := r.URL.Query().Get("month")
		if month != "" {
			m, err := domain.ParseMonth(month)
			if err != nil {
				writeError(w, http.StatusBadRequest, `"month" must be in ISO 8601 date format`)
				return
			}
			month = m
		}
		span.SetAttributes(attribute.String("budget.month", month))

		envelopes, err := budget.ListEnvelopes(ctx, month)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, envelopes)
	}
}

func listAccountsHandler(budget *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/budget/accounts")
		defer span.End()

		accounts, err := budget.ListAccounts(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

func createRuleHandler(budget *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/budget/rules")
		defer span.End()

		var req createRuleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		in, err := req.toInput()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		rule, err := budget.CreateRule(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, rule)
	}
}

func (req createRuleRequest) toInput() (domain.CreateRuleInput, error) {
	var p problems
	in := domain.CreateRuleInput{Tests: req.Tests, Actions: req.Actions, IsActive: true}

	if req.Priority == nil {
		p.add("priority", "is required")
	} else if *req.Priority < 1 {
		p.add("priority", "must be greater than or equal to 1")
	} else {
		in.Priority = *req.Priority
	}
	for _, f := range []struct {
		name string
		raw  json.RawMessage
	}{{"tests", req.Tests}, {"actions", req.Actions}} {
		switch {
		case len(f.raw) == 0:
			p.add(f.name, "is required")
		case !isObject(f.raw):
			p.add(f.name, "must be of type object")
		}
	}
	if req.IsActive != nil {
		in.IsActive = *req.IsActive
	}
	return in, p.err()
}

func isObject(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal(raw, &m) == nil && m != nil
}
