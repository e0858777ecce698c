package domain

import "time"

// IssueType identifies the class of problem detected on a link.
type IssueType string

// Known issue types.
const (
	IssueBrokenLink       IssueType = "broken_link"
	IssueStockOut         IssueType = "stock_out"
	IssueUntagged         IssueType = "untagged"
	IssueDestinationDrift IssueType = "destination_drift"
	IssueLowCommission    IssueType = "low_commission"
)

// Severity ranks how urgently an issue needs attention.
type Severity string

// Severity levels, ordered critical > warning > info.
const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank returns a sortable weight for the severity (higher is worse).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// IssueStatus is the lifecycle state of an issue.
type IssueStatus string

// Issue statuses.
const (
	IssueOpen          IssueStatus = "open"
	IssueAcknowledged  IssueStatus = "acknowledged"
	IssueResolved      IssueStatus = "resolved"
	IssueFalsePositive IssueStatus = "false_positive"
	IssueWontFix       IssueStatus = "wont_fix"
)

// Issue is a detected problem on a tracked link.
// Invariant: at most one open issue of a given type per link.
type Issue struct {
	ID          string      `json:"id"`
	LinkID      string      `json:"link_id"`
	OwnerID     string      `json:"owner_id"`
	Type        IssueType   `json:"type"`
	Severity    Severity    `json:"severity"`
	Status      IssueStatus `json:"status"`
	Description string      `json:"description,omitempty"`
	// RevenueImpact is the estimated monthly revenue at risk, when
	// derivable. nil means no estimate was declared.
	RevenueImpact *float64   `json:"revenue_impact,omitempty"`
	DetectedAt    time.Time  `json:"detected_at"`
	LastSeenAt    time.Time  `json:"last_seen_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// IssueDraft is a detector output that has not been persisted yet.
type IssueDraft struct {
	Type          IssueType
	Severity      Severity
	Description   string
	RevenueImpact *float64
}
