package domain

import (
	"fmt"
	"time"
)

// MonthLayout is the canonical month key format (YYYY-MM).
const MonthLayout = "2006-01"

// Envelope is a budgeting bucket bound 1:1 to a category.
type Envelope struct {
	ID         string `json:"id"`
	ProfileID  string `json:"profileId"`
	CategoryID string `json:"categoryId"`
	Name       string `json:"name"`
	IsActive   bool   `json:"isActive"`
}

// EnvelopeBudget holds the planned and actual cents of an envelope for one
// calendar month. Unique on (EnvelopeID, Month).
type EnvelopeBudget struct {
	EnvelopeID   string `json:"envelopeId"`
	Month        string `json:"month"`
	PlannedCents int64  `json:"plannedCents"`
	ActualCents  int64  `json:"actualCents"`
}

// EnvelopeMonth is one row of the monthly rollup returned by GET /envelopes.
type EnvelopeMonth struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Month        string `json:"month"`
	PlannedCents int64  `json:"plannedCents"`
	ActualCents  int64  `json:"actualCents"`
}

// CurrentMonth returns the month key of t.
func CurrentMonth(t time.Time) string {
	return t.Format(MonthLayout)
}

// ParseMonth accepts either YYYY-MM or an ISO date/datetime and returns the
// canonical YYYY-MM key.
func ParseMonth(s string) (string, error) {
	if t, err := time.Parse(MonthLayout, s); err == nil {
		return t.Format(MonthLayout), nil
	}
	t, err := ParseISODate(s)
	if err != nil {
		return "", fmt.Errorf("month must be YYYY-MM or an ISO date: %q", s)
	}
	return t.Format(MonthLayout), nil
}
