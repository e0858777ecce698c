package domain

import "time"

// Trend labels the direction a composite score is moving.
type Trend string

// Trend labels.
const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// LossBasis identifies how a revenue-loss figure was produced.
type LossBasis string

const (
	// LossReported means the figure is the sum of per-issue declared impacts.
	LossReported LossBasis = "reported"
	// LossHeuristic means the figure came from the flat per-issue-count fallback.
	LossHeuristic LossBasis = "heuristic"
)

// HealthScoreSnapshot is one point in the append-only score time series.
// Never mutated after creation; it is the canonical audit trail.
type HealthScoreSnapshot struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	// Score is the composite 0-100 health score.
	Score           float64 `json:"score"`
	HealthySubScore float64 `json:"healthy_sub_score"`
	CriticalPenalty float64 `json:"critical_penalty"`
	BrokenPenalty   float64 `json:"broken_penalty"`

	TotalLinks    int `json:"total_links"`
	HealthyLinks  int `json:"healthy_links"`
	BrokenLinks   int `json:"broken_links"`
	StockOutLinks int `json:"stock_out_links"`
	UntaggedLinks int `json:"untagged_links"`

	CriticalIssues int `json:"critical_issues"`
	WarningIssues  int `json:"warning_issues"`
	InfoIssues     int `json:"info_issues"`

	Trend      Trend   `json:"trend"`
	ScoreDelta float64 `json:"score_delta"`

	MonthlyLoss      float64   `json:"monthly_loss"`
	MonthlyLossBasis LossBasis `json:"monthly_loss_basis"`

	CreatedAt time.Time `json:"created_at"`
}

// Forecast is a linear extrapolation of the score series.
type Forecast struct {
	Current        float64 `json:"current"`
	WeeklyVelocity float64 `json:"weekly_velocity"`
	ThirtyDay      float64 `json:"thirty_day"`
	// Points is the number of snapshots the extrapolation used.
	Points int `json:"points"`
}
