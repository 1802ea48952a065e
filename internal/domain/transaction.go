package domain

import (
	"fmt"
	"time"
)

// DateLayout is the storage and wire format of a posted date.
const DateLayout = "2006-01-02"

// ============================================================
// Transactions
// ============================================================

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	StatusPosted  TransactionStatus = "posted"
)

// Valid reports whether s is pending or posted.
func (s TransactionStatus) Valid() bool {
	return s == StatusPending || s == StatusPosted
}

// Transaction is the aggregate root of the ledger. AmountCents is signed:
// negative is an outflow, positive an inflow or refund.
type Transaction struct {
	ID          string            `json:"id"`
	ProfileID   string            `json:"profileId"`
	AccountID   string            `json:"accountId"`
	MerchantID  *string           `json:"merchantId"`
	CategoryID  *string           `json:"categoryId"`
	PostedAt    time.Time         `json:"postedAt"`
	AmountCents int64             `json:"amountCents"`
	Status      TransactionStatus `json:"status"`
	Memo        string            `json:"memo"`
	IsReviewed  bool              `json:"isReviewed"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Split allocates part of a transaction's amount to a category.
type Split struct {
	ID            string `json:"id"`
	TransactionID string `json:"transactionId"`
	CategoryID    string `json:"categoryId"`
	AmountCents   int64  `json:"amountCents"`
	Memo          string `json:"memo"`
}

// SplitInput is one element of the splits array in create/update payloads.
type SplitInput struct {
	CategoryID  string `json:"categoryId"`
	AmountCents int64  `json:"amountCents"`
	Memo        string `json:"memo,omitempty"`
}

// CreateTransactionInput is the validated body of POST /transactions.
type CreateTransactionInput struct {
	AccountID    string
	PostedAt     time.Time
	AmountCents  int64
	Status       TransactionStatus
	MerchantName string
	Memo         string
	CategoryID   string
	Splits       []SplitInput
	Tags         []string
}

// UpdateTransactionInput is the validated body of PATCH /transactions/{id}.
// Each field distinguishes absent, null and value; Splits and Tags replace
// the whole relation set whenever they are present, even when empty.
type UpdateTransactionInput struct {
	CategoryID Optional[string]       `json:"categoryId"`
	Memo       Optional[string]       `json:"memo"`
	IsReviewed Optional[bool]         `json:"isReviewed"`
	Splits     Optional[[]SplitInput] `json:"splits"`
	Tags       Optional[[]string]     `json:"tags"`
}

// TransactionFilter narrows GET /transactions. Zero values mean "no filter".
type TransactionFilter struct {
	From       *time.Time
	To         *time.Time
	Status     TransactionStatus
	AccountID  string
	CategoryID string
	Merchant   string
	Q          string
	Page       int
	PageSize   int
}

// Pagination defaults and bounds.
const (
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Offset returns the row offset of the filter's page.
func (f TransactionFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// ============================================================
// Projections
// ============================================================

// SplitView is a split as rendered in a transaction view.
type SplitView struct {
	ID          string           `json:"id"`
	CategoryID  string           `json:"categoryId"`
	Category    *CategorySummary `json:"category,omitempty"`
	AmountCents int64            `json:"amountCents"`
	Memo        string           `json:"memo"`
}

// TransactionView is the fully hydrated transaction projection.
type TransactionView struct {
	ID          string            `json:"id"`
	PostedAt    string            `json:"postedAt"`
	AmountCents int64             `json:"amountCents"`
	Status      TransactionStatus `json:"status"`
	Memo        string            `json:"memo"`
	IsReviewed  bool              `json:"isReviewed"`
	Account     *AccountSummary   `json:"account"`
	Merchant    *MerchantSummary  `json:"merchant"`
	Category    *CategorySummary  `json:"category"`
	Splits      []SplitView       `json:"splits"`
	Tags        []TagView         `json:"tags"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// TransactionPage is the paginated response of GET /transactions.
type TransactionPage struct {
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Total    int               `json:"total"`
	Data     []TransactionView `json:"data"`
}

// ParseISODate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the
// calendar date at UTC midnight.
func ParseISODate(s string) (time.Time, error) {
	for _, layout := range []string{DateLayout, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO date: %q", s)
}
