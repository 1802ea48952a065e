package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/handler"
	"github.com/boddenberg/envelope-ledger/internal/infra/observability"
	"github.com/boddenberg/envelope-ledger/internal/infra/sqlstore"
	"github.com/boddenberg/envelope-ledger/internal/service"

	"go.uber.org/zap"
)

type testAPI struct {
	router http.Handler
	seed   *service.SeedResult
}

func newTestAPI(t *testing.T, withProfile bool) *testAPI {
	t.Helper()
	ctx := context.Background()

	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:         sqlstore.DriverSQLite,
		DSN:            filepath.Join(t.TempDir(), "ledger.db"),
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxWriters:     4,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	api := &testAPI{}
	profileID := ""
	if withProfile {
		api.seed, err = service.Seed(ctx, store, service.DefaultSeedOptions("2025-09"), zap.NewNop())
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		profileID = api.seed.Profile.ID
	}

	metrics := observability.NewMetrics()
	api.router = handler.NewRouter(handler.RouterDeps{
		Ledger:     service.NewLedger(store, nil, profileID, metrics, zap.NewNop()),
		Budget:     service.NewBudgetService(store, profileID, zap.NewNop()),
		Store:      store,
		Metrics:    metrics,
		CORSOrigin: "*",
		Logger:     zap.NewNop(),
	})
	return api
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) createTransaction(t *testing.T, body string) domain.TransactionView {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/budget/transactions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var view domain.TransactionView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return view
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestCreateAndGetTransaction(t *testing.T) {
	api := newTestAPI(t, true)

	body := `{
		"accountId": "` + api.seed.Account.ID + `",
		"postedAt": "2025-09-14",
		"amountCents": -4200,
		"merchantName": "  Café   Blue ",
		"memo": "lunch",
		"splits": [{"categoryId": "` + api.seed.Category.ID + `", "amountCents": -4200}],
		"tags": ["work", "work", "food"],
		"unknownField": true
	}`
	view := api.createTransaction(t, body)

	if view.Status != domain.StatusPosted {
		t.Errorf("expected default status posted, got %q", view.Status)
	}
	if view.Merchant == nil || view.Merchant.NormalizedName != "cafe blue" {
		t.Fatalf("unexpected merchant: %+v", view.Merchant)
	}
	if len(view.Splits) != 1 || view.Splits[0].AmountCents != -4200 {
		t.Errorf("unexpected splits: %+v", view.Splits)
	}
	if len(view.Tags) != 2 {
		t.Errorf("expected 2 distinct tags, got %+v", view.Tags)
	}

	rec := api.do(t, http.MethodGet, "/api/budget/transactions/"+view.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got domain.TransactionView
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != view.ID || got.PostedAt != "2025-09-14" {
		t.Errorf("unexpected view: %+v", got)
	}
}

func TestCreateTransaction_Validation(t *testing.T) {
	api := newTestAPI(t, true)
	account := api.seed.Account.ID
	food := api.seed.Category.ID

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "missing required fields are all reported",
			body:    `{"amountCents": 100}`,
			wantMsg: `"accountId" is required, "postedAt" is required`,
		},
		{
			name:    "fractional cents",
			body:    `{"accountId": "` + account + `", "postedAt": "2025-09-01", "amountCents": 12.5}`,
			wantMsg: `"amountCents" must be an integer`,
		},
		{
			name:    "unknown status",
			body:    `{"accountId": "` + account + `", "postedAt": "2025-09-01", "amountCents": 1, "status": "void"}`,
			wantMsg: `"status" must be one of [pending, posted]`,
		},
		{
			name:    "bad date",
			body:    `{"accountId": "` + account + `", "postedAt": "14/09/2025", "amountCents": 1}`,
			wantMsg: `"postedAt" must be in ISO 8601 date format`,
		},
		{
			name:    "split without category",
			body:    `{"accountId": "` + account + `", "postedAt": "2025-09-01", "amountCents": -10, "splits": [{"amountCents": -10}]}`,
			wantMsg: `"splits[0].categoryId" is required`,
		},
		{
			name:    "splits do not cover amount",
			body:    `{"accountId": "` + account + `", "postedAt": "2025-09-01", "amountCents": -5000, "splits": [{"categoryId": "` + food + `", "amountCents": -4999}]}`,
			wantMsg: "split",
		},
		{
			name:    "unknown account",
			body:    `{"accountId": "nope", "postedAt": "2025-09-01", "amountCents": 1}`,
			wantMsg: "account not found",
		},
		{
			name:    "malformed json",
			body:    `{"accountId":`,
			wantMsg: "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/budget/transactions", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if msg := errorMessage(t, rec); !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("expected error containing %q, got %q", tt.wantMsg, msg)
			}
		})
	}

	rec := api.do(t, http.MethodGet, "/api/budget/transactions", "")
	var page domain.TransactionPage
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("rejected requests must not persist anything, found %d", page.Total)
	}
}

func TestPatchTransaction(t *testing.T) {
	api := newTestAPI(t, true)
	view := api.createTransaction(t, `{
		"accountId": "`+api.seed.Account.ID+`",
		"postedAt": "2025-09-02",
		"amountCents": -1500,
		"categoryId": "`+api.seed.Category.ID+`",
		"tags": ["a", "b"]
	}`)
	path := "/api/budget/transactions/" + view.ID

	rec := api.do(t, http.MethodPatch, path, `{"categoryId": null, "tags": [], "isReviewed": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got domain.TransactionView
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Category != nil {
		t.Errorf("expected category cleared, got %+v", got.Category)
	}
	if len(got.Tags) != 0 {
		t.Errorf("expected tags cleared, got %+v", got.Tags)
	}
	if !got.IsReviewed {
		t.Error("expected isReviewed=true")
	}

	// Absent fields are left untouched.
	rec = api.do(t, http.MethodPatch, path, `{"memo": "groceries"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Memo != "groceries" || !got.IsReviewed {
		t.Errorf("unexpected view after memo patch: %+v", got)
	}

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"null memo", path, `{"memo": null}`, http.StatusBadRequest},
		{"null splits", path, `{"splits": null}`, http.StatusBadRequest},
		{"empty categoryId", path, `{"categoryId": ""}`, http.StatusBadRequest},
		{"isReviewed wrong type", path, `{"isReviewed": "yes"}`, http.StatusBadRequest},
		{"unknown category", path, `{"categoryId": "missing"}`, http.StatusBadRequest},
		{"unknown transaction", "/api/budget/transactions/missing", `{"memo": "x"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPatch, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListTransactions_Query(t *testing.T) {
	api := newTestAPI(t, true)
	for _, d := range []string{"2025-09-01", "2025-09-02", "2025-09-03"} {
		api.createTransaction(t, `{"accountId": "`+api.seed.Account.ID+`", "postedAt": "`+d+`", "amountCents": -100, "merchantName": "Corner Shop"}`)
	}

	rec := api.do(t, http.MethodGet, "/api/budget/transactions?merchant=CORNER&pageSize=2&page=2&from=2025-09-01&to=2025-09-03", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var page domain.TransactionPage
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 3 || page.Page != 2 || page.PageSize != 2 || len(page.Data) != 1 {
		t.Errorf("unexpected page: total=%d page=%d size=%d rows=%d", page.Total, page.Page, page.PageSize, len(page.Data))
	}
	if page.Data[0].PostedAt != "2025-09-01" {
		t.Errorf("expected oldest row on last page, got %s", page.Data[0].PostedAt)
	}

	bad := []struct {
		query   string
		wantMsg string
	}{
		{"pageSize=201", `"pageSize" must be less than or equal to 200`},
		{"pageSize=0", `"pageSize" must be greater than or equal to 1`},
		{"page=0", `"page" must be greater than or equal to 1`},
		{"page=abc", `"page" must be an integer`},
		{"from=yesterday", `"from" must be in ISO 8601 date format`},
		{"status=void&to=nope", `"to" must be in ISO 8601 date format, "status" must be one of [pending, posted]`},
	}
	for _, tt := range bad {
		t.Run(tt.query, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, "/api/budget/transactions?"+tt.query, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if msg := errorMessage(t, rec); msg != tt.wantMsg {
				t.Errorf("expected %q, got %q", tt.wantMsg, msg)
			}
		})
	}
}

func TestEnvelopesAndAccounts(t *testing.T) {
	api := newTestAPI(t, true)

	rec := api.do(t, http.MethodGet, "/api/budget/envelopes?month=2025-09", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var envelopes []domain.EnvelopeMonth
	if err := json.NewDecoder(rec.Body).Decode(&envelopes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(envelopes) != 1 || envelopes[0].Name != "Food" || envelopes[0].PlannedCents != 40000 || envelopes[0].ActualCents != 12345 {
		t.Errorf("unexpected envelopes: %+v", envelopes)
	}

	rec = api.do(t, http.MethodGet, "/api/budget/envelopes?month=2025-10-01", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty list for a month without budgets, got %d %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/api/budget/envelopes?month=september", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodGet, "/api/budget/accounts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var accounts []domain.AccountSummary
	if err := json.NewDecoder(rec.Body).Decode(&accounts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Name != "Checking" || accounts[0].Institution != "Demo Bank" {
		t.Errorf("unexpected accounts: %+v", accounts)
	}
}

func TestCreateRule(t *testing.T) {
	api := newTestAPI(t, true)

	rec := api.do(t, http.MethodPost, "/api/budget/rules", `{"priority": 1, "tests": {"merchant": "cafe"}, "actions": {"categoryId": "x"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var rule domain.Rule
	if err := json.NewDecoder(rec.Body).Decode(&rule); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rule.IsActive || rule.Priority != 1 || string(rule.Tests) != `{"merchant":"cafe"}` {
		t.Errorf("unexpected rule: %+v (tests %s)", rule, rule.Tests)
	}

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"priority zero", `{"priority": 0, "tests": {}, "actions": {}}`, `"priority" must be greater than or equal to 1`},
		{"tests not an object", `{"priority": 1, "tests": [], "actions": {}}`, `"tests" must be of type object`},
		{"everything missing", `{}`, `"priority" is required, "tests" is required, "actions" is required`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/budget/rules", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if msg := errorMessage(t, rec); msg != tt.wantMsg {
				t.Errorf("expected %q, got %q", tt.wantMsg, msg)
			}
		})
	}
}

func TestNoProfileIsSetupError(t *testing.T) {
	api := newTestAPI(t, false)

	for _, path := range []string{"/api/budget/transactions", "/api/budget/accounts", "/api/budget/envelopes"} {
		rec := api.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s: expected 500, got %d", path, rec.Code)
			continue
		}
		if msg := errorMessage(t, rec); !strings.Contains(msg, "no profile") {
			t.Errorf("%s: expected setup message, got %q", path, msg)
		}
	}
}

func TestStatsAfterWrite(t *testing.T) {
	api := newTestAPI(t, true)
	api.createTransaction(t, `{"accountId": "`+api.seed.Account.ID+`", "postedAt": "2025-09-05", "amountCents": 900, "merchantName": "Refund Co"}`)

	rec := api.do(t, http.MethodGet, "/v1/stats", "")
	var stats domain.LedgerStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TransactionsCreated != 1 || stats.MerchantsCreated != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	rec = api.do(t, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), `ledger_transactions_total{op="create"} 1`) {
		t.Errorf("metrics output missing transaction counter:\n%s", rec.Body.String())
	}
}
