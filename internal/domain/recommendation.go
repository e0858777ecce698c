package domain

import "time"

// ActionStatus is the disposition state of a recommendation.
type ActionStatus string

// Recommendation statuses. pending is the only non-terminal state.
const (
	ActionPending   ActionStatus = "pending"
	ActionSaved     ActionStatus = "saved"
	ActionApplied   ActionStatus = "applied"
	ActionDismissed ActionStatus = "dismissed"
)

// Terminal reports whether the status is a one-way end state.
func (s ActionStatus) Terminal() bool {
	return s == ActionSaved || s == ActionApplied || s == ActionDismissed
}

// Recommendation surfaces an issue or commission opportunity as an
// actionable card. Status transitions are one-way.
type Recommendation struct {
	ID      string       `json:"id"`
	OwnerID string       `json:"owner_id"`
	LinkID  string       `json:"link_id"`
	Status  ActionStatus `json:"status"`
	// Exactly one of IssueID and OpportunityID is set.
	IssueID       *string `json:"issue_id,omitempty"`
	OpportunityID *string `json:"opportunity_id,omitempty"`
	Title         string  `json:"title"`
	// SwitchedTo records the program the user moved to on apply.
	SwitchedTo *string    `json:"switched_to,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	DisposedAt *time.Time `json:"disposed_at,omitempty"`
}
