// Package domain defines the entities shared across the linkhealth service.
package domain

import "time"

// TrackedLink is an affiliate link monitored on behalf of an owner.
// Mutated only by the audit orchestrator after a trace.
type TrackedLink struct {
	ID            string  `json:"id"`
	OwnerID       string  `json:"owner_id"`
	OriginalURL   string  `json:"original_url"`
	FinalURL      string  `json:"final_url,omitempty"`
	ProductName   string  `json:"product_name,omitempty"`
	Retailer      string  `json:"retailer,omitempty"`
	Network       string  `json:"network,omitempty"`
	ExpectedHost  string  `json:"expected_host,omitempty"`
	Monetized     bool    `json:"monetized"`
	CommissionPct float64 `json:"commission_pct,omitempty"`
	MonthlyClicks int     `json:"monthly_clicks"`
	// DeclaredInStock is the externally supplied stock signal.
	// nil means unknown; the detector only reacts to an explicit false.
	DeclaredInStock *bool      `json:"declared_in_stock,omitempty"`
	Price           float64    `json:"price,omitempty"`
	LastCheckedAt   *time.Time `json:"last_checked_at,omitempty"`
	Stale           bool       `json:"stale"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
