package domain

// ============================================================
// Health & Stats API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// LedgerStats is returned by GET /v1/stats.
type LedgerStats struct {
	TransactionsCreated float64 `json:"transactionsCreated"`
	TransactionsUpdated float64 `json:"transactionsUpdated"`
	MerchantsCreated    float64 `json:"merchantsCreated"`
	TagsCreated         float64 `json:"tagsCreated"`
	ConflictsRecovered  float64 `json:"conflictsRecovered"`
	SplitViolations     float64 `json:"splitViolations"`
	Period              string  `json:"period"`
}

// LedgerEvent is published to the broker after a transaction write commits.
type LedgerEvent struct {
	Type          string `json:"type"`
	TransactionID string `json:"transactionId"`
	ProfileID     string `json:"profileId"`
	OccurredAt    string `json:"occurredAt"`
}

// Ledger event types.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionUpdated = "transaction.updated"
)
