// Package scorer aggregates a link population's issues into the
// composite 0-100 health score. Weights are fixed by design so scores
// stay comparable over time; only the inputs vary.
package scorer

import (
	"time"

	"github.com/jonesrussell/linkhealth/internal/domain"
)

// Fixed scoring weights.
const (
	healthySubScoreWeight = 50.0
	criticalPenaltyCap    = 30.0
	criticalPenaltyStep   = 10.0
	brokenPenaltyCap      = 20.0
	brokenPenaltyStep     = 5.0

	healthyLinkThreshold = 80.0

	stockOutScoreCap = 20.0

	longChainHops     = 5
	longChainPenalty  = 20.0
	midChainHops      = 3
	midChainPenalty   = 10.0
	slowResponse      = 5 * time.Second
	slowPenalty       = 15.0
	sluggishResponse  = 3 * time.Second
	sluggishPenalty   = 5.0
	driftPenalty      = 15.0
	lowCommissionCost = 10.0

	trendThreshold = 5.0

	brokenLossPerMonth   = 50.0
	stockOutLossPerMonth = 30.0
)

// LinkState is the trace-derived condition of one link at scoring time.
type LinkState struct {
	Broken        bool
	StockOut      bool
	Untagged      bool
	Drift         bool
	LowCommission bool
	Hops          int
	ResponseTime  time.Duration
}

// Inputs is everything the scorer needs for one aggregation pass.
type Inputs struct {
	OwnerID    string
	Links      []LinkState
	OpenIssues []domain.Issue
	// Previous is the prior snapshot for trend computation. nil for the
	// first audit.
	Previous *domain.HealthScoreSnapshot
}

// PerLink scores a single link on the fixed 0-100 scale.
func PerLink(s LinkState) float64 {
	if s.Broken {
		return 0
	}

	score := 100.0

	switch {
	case s.Hops > longChainHops:
		score -= longChainPenalty
	case s.Hops > midChainHops:
		score -= midChainPenalty
	}

	switch {
	case s.ResponseTime > slowResponse:
		score -= slowPenalty
	case s.ResponseTime > sluggishResponse:
		score -= sluggishPenalty
	}

	if s.Drift {
		score -= driftPenalty
	}
	if s.LowCommission {
		score -= lowCommissionCost
	}

	if s.StockOut && score > stockOutScoreCap {
		score = stockOutScoreCap
	}

	return clamp(score, 0, 100)
}

// Score aggregates the population into a new snapshot. Zero links yields
// the neutral snapshot (100, stable) rather than dividing by zero.
func Score(in Inputs) domain.HealthScoreSnapshot {
	snap := domain.HealthScoreSnapshot{
		OwnerID:   in.OwnerID,
		CreatedAt: time.Now().UTC(),
		Trend:     domain.TrendStable,
	}

	countIssues(&snap, in.OpenIssues)
	countLinks(&snap, in.Links)

	if snap.TotalLinks == 0 {
		snap.Score = 100
		snap.HealthySubScore = healthySubScoreWeight
		snap.MonthlyLossBasis = domain.LossHeuristic
		applyTrend(&snap, in.Previous)
		return snap
	}

	healthyRatio := float64(snap.HealthyLinks) / float64(snap.TotalLinks)
	snap.HealthySubScore = healthyRatio * healthySubScoreWeight

	snap.CriticalPenalty = min(criticalPenaltyCap, float64(snap.CriticalIssues)*criticalPenaltyStep)
	snap.BrokenPenalty = min(brokenPenaltyCap, float64(snap.BrokenLinks)*brokenPenaltyStep)

	composite := snap.HealthySubScore +
		(criticalPenaltyCap - snap.CriticalPenalty) +
		(brokenPenaltyCap - snap.BrokenPenalty)
	snap.Score = clamp(composite, 0, 100)

	snap.MonthlyLoss, snap.MonthlyLossBasis = revenueLoss(in.OpenIssues, snap.BrokenLinks, snap.StockOutLinks)

	applyTrend(&snap, in.Previous)
	return snap
}

// countLinks fills the per-link counters and the healthy tally.
// A link is healthy iff it is not broken, not stocked out, and its own
// score clears the healthy threshold.
func countLinks(snap *domain.HealthScoreSnapshot, links []LinkState) {
	snap.TotalLinks = len(links)
	for _, link := range links {
		if link.Broken {
			snap.BrokenLinks++
		}
		if link.StockOut {
			snap.StockOutLinks++
		}
		if link.Untagged {
			snap.UntaggedLinks++
		}
		if !link.Broken && !link.StockOut && PerLink(link) >= healthyLinkThreshold {
			snap.HealthyLinks++
		}
	}
}

// countIssues fills the severity counters from open issues.
func countIssues(snap *domain.HealthScoreSnapshot, issues []domain.Issue) {
	for _, issue := range issues {
		switch issue.Severity {
		case domain.SeverityCritical:
			snap.CriticalIssues++
		case domain.SeverityWarning:
			snap.WarningIssues++
		case domain.SeverityInfo:
			snap.InfoIssues++
		}
	}
}

// revenueLoss sums declared per-issue impacts when any exist; otherwise it
// falls back to the flat per-count heuristic. The basis tells callers
// which mode produced the number.
func revenueLoss(issues []domain.Issue, brokenCount, stockOutCount int) (float64, domain.LossBasis) {
	var total float64
	declared := false
	for _, issue := range issues {
		if issue.RevenueImpact != nil {
			total += *issue.RevenueImpact
			declared = true
		}
	}
	if declared {
		return total, domain.LossReported
	}

	heuristic := float64(brokenCount)*brokenLossPerMonth +
		float64(stockOutCount)*stockOutLossPerMonth
	return heuristic, domain.LossHeuristic
}

// applyTrend computes the delta against the previous snapshot.
// The thresholds are exclusive: a delta of exactly ±5 stays stable.
func applyTrend(snap *domain.HealthScoreSnapshot, previous *domain.HealthScoreSnapshot) {
	if previous == nil {
		snap.Trend = domain.TrendStable
		return
	}

	snap.ScoreDelta = snap.Score - previous.Score
	switch {
	case snap.ScoreDelta > trendThreshold:
		snap.Trend = domain.TrendImproving
	case snap.ScoreDelta < -trendThreshold:
		snap.Trend = domain.TrendDeclining
	default:
		snap.Trend = domain.TrendStable
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
