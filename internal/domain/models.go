package domain

import (
	"encoding/json"
	"time"
)

// ============================================================
// Classification
// ============================================================

// CategoryGroup groups categories for display.
type CategoryGroup struct {
	ID        string `json:"id"`
	ProfileID string `json:"profileId"`
	Name      string `json:"name"`
}

// Category classifies transactions and splits. Belongs to exactly one group.
type Category struct {
	ID        string `json:"id"`
	ProfileID string `json:"profileId"`
	GroupID   string `json:"groupId"`
	Name      string `json:"name"`
}

// CategorySummary is embedded in transaction and split views.
type CategorySummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ============================================================
// Merchants & Tags
// ============================================================

// Merchant is unique per (profile, normalized name). DisplayName keeps the
// spelling of the first transaction that introduced it.
type Merchant struct {
	ID             string    `json:"id"`
	ProfileID      string    `json:"profileId"`
	DisplayName    string    `json:"displayName"`
	NormalizedName string    `json:"normalizedName"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MerchantSummary is embedded in transaction views.
type MerchantSummary struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	NormalizedName string `json:"normalizedName"`
}

// Tag is unique per (profile, name).
type Tag struct {
	ID        string `json:"id"`
	ProfileID string `json:"profileId"`
	Name      string `json:"name"`
}

// TagView is embedded in transaction views.
type TagView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ============================================================
// Rules
// ============================================================

// Rule is persisted verbatim. Tests and Actions are opaque JSON documents;
// nothing in the ledger evaluates them.
type Rule struct {
	ID        string          `json:"id"`
	ProfileID string          `json:"-"`
	Priority  int             `json:"priority"`
	Tests     json.RawMessage `json:"tests"`
	Actions   json.RawMessage `json:"actions"`
	IsActive  bool            `json:"isActive"`
	CreatedAt time.Time       `json:"createdAt"`
}

// CreateRuleInput is the validated body of POST /rules.
type CreateRuleInput struct {
	Priority int
	Tests    json.RawMessage
	Actions  json.RawMessage
	IsActive bool
}
