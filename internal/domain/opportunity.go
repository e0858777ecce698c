package domain

import "time"

// CommissionOpportunity records a case where switching affiliate programs
// would pay a higher rate. Superseded by re-evaluation, not mutated.
type CommissionOpportunity struct {
	ID                string    `json:"id"`
	LinkID            string    `json:"link_id"`
	OwnerID           string    `json:"owner_id"`
	CurrentRetailer   string    `json:"current_retailer"`
	CurrentRate       float64   `json:"current_rate"`
	SuggestedRetailer string    `json:"suggested_retailer"`
	SuggestedRate     float64   `json:"suggested_rate"`
	Category          string    `json:"category"`
	MonthlyGain       float64   `json:"monthly_gain"`
	Reasoning         string    `json:"reasoning"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
}

// RetailerRate is one row of the externally refreshed commission rate table.
type RetailerRate struct {
	Retailer string  `json:"retailer"`
	Category string  `json:"category"`
	Rate     float64 `json:"rate"`
}
