package domain

import "time"

// ============================================================
// Profiles & Accounts
// ============================================================

// Profile is the tenancy boundary every ledger entity is scoped to.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// AccountType enumerates the kinds of accounts a profile can hold.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCredit     AccountType = "credit"
	AccountCash       AccountType = "cash"
	AccountInvestment AccountType = "investment"
	AccountLoan       AccountType = "loan"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCredit, AccountCash, AccountInvestment, AccountLoan:
		return true
	}
	return false
}

// Account is a profile-owned money container. Archived accounts are
// hidden from listings but never hard-deleted.
type Account struct {
	ID          string      `json:"id"`
	ProfileID   string      `json:"profileId"`
	Institution string      `json:"institution"`
	Name        string      `json:"name"`
	Type        AccountType `json:"type"`
	IsArchived  bool        `json:"isArchived"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// AccountSummary is the projection returned by GET /accounts and embedded
// in transaction views.
type AccountSummary struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Institution string      `json:"institution"`
	Type        AccountType `json:"type"`
}

// Summary projects the account into its listing shape.
func (a Account) Summary() AccountSummary {
	return AccountSummary{ID: a.ID, Name: a.Name, Institution: a.Institution, Type: a.Type}
}
