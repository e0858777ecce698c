package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/linkhealth/internal/domain"
)

func TestPerLink(t *testing.T) {
	tests := []struct {
		name  string
		state LinkState
		want  float64
	}{
		{"clean link", LinkState{}, 100},
		{"broken is zero regardless", LinkState{Broken: true, Hops: 8, Drift: true}, 0},
		{"mid chain", LinkState{Hops: 4}, 90},
		{"long chain", LinkState{Hops: 6}, 80},
		{"sluggish", LinkState{ResponseTime: 4 * time.Second}, 95},
		{"slow", LinkState{ResponseTime: 6 * time.Second}, 85},
		{"drift", LinkState{Drift: true}, 85},
		{"low commission", LinkState{LowCommission: true}, 90},
		{"stock out caps the score", LinkState{StockOut: true}, 20},
		{"stock out with other penalties stays capped", LinkState{StockOut: true, Hops: 6, Drift: true}, 20},
		{"stacked penalties", LinkState{Hops: 6, ResponseTime: 6 * time.Second, Drift: true, LowCommission: true}, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PerLink(tt.state), 0.001)
		})
	}
}

func TestScore_EmptyPopulation(t *testing.T) {
	snap := Score(Inputs{OwnerID: "o1"})

	assert.InDelta(t, 100.0, snap.Score, 0.001)
	assert.Equal(t, domain.TrendStable, snap.Trend)
	assert.Zero(t, snap.MonthlyLoss)
	assert.Equal(t, domain.LossHeuristic, snap.MonthlyLossBasis)
}

func TestScore_AllHealthy(t *testing.T) {
	snap := Score(Inputs{
		OwnerID: "o1",
		Links:   []LinkState{{}, {}, {}, {}},
	})

	// 1.0*50 + 30 + 20
	assert.InDelta(t, 100.0, snap.Score, 0.001)
	assert.Equal(t, 4, snap.HealthyLinks)
}

func TestScore_Composite(t *testing.T) {
	impact := 75.0
	snap := Score(Inputs{
		OwnerID: "o1",
		Links: []LinkState{
			{},             // healthy
			{},             // healthy
			{},             // healthy
			{Broken: true}, // broken
		},
		OpenIssues: []domain.Issue{
			{Severity: domain.SeverityCritical, RevenueImpact: &impact},
			{Severity: domain.SeverityWarning},
		},
	})

	// ratio 3/4 -> 37.5; critical penalty 10; broken penalty 5
	// 37.5 + (30-10) + (20-5) = 72.5
	assert.InDelta(t, 72.5, snap.Score, 0.001)
	assert.Equal(t, 1, snap.CriticalIssues)
	assert.Equal(t, 1, snap.WarningIssues)
	assert.Equal(t, 1, snap.BrokenLinks)
	assert.InDelta(t, 75.0, snap.MonthlyLoss, 0.001)
	assert.Equal(t, domain.LossReported, snap.MonthlyLossBasis)
}

func TestScore_PenaltyCaps(t *testing.T) {
	links := make([]LinkState, 10)
	for i := range links {
		links[i].Broken = true
	}
	issues := make([]domain.Issue, 6)
	for i := range issues {
		issues[i].Severity = domain.SeverityCritical
	}

	snap := Score(Inputs{OwnerID: "o1", Links: links, OpenIssues: issues})

	assert.InDelta(t, criticalPenaltyCap, snap.CriticalPenalty, 0.001)
	assert.InDelta(t, brokenPenaltyCap, snap.BrokenPenalty, 0.001)
	// ratio 0 -> 0 + 0 + 0
	assert.InDelta(t, 0.0, snap.Score, 0.001)
}

func TestScore_HeuristicLoss(t *testing.T) {
	snap := Score(Inputs{
		OwnerID: "o1",
		Links: []LinkState{
			{Broken: true},
			{Broken: true},
			{StockOut: true},
		},
		OpenIssues: []domain.Issue{
			{Severity: domain.SeverityCritical},
			{Severity: domain.SeverityCritical},
			{Severity: domain.SeverityWarning},
		},
	})

	// 2*$50 + 1*$30, no declared impacts anywhere
	assert.InDelta(t, 130.0, snap.MonthlyLoss, 0.001)
	assert.Equal(t, domain.LossHeuristic, snap.MonthlyLossBasis)
}

func TestScore_TrendThresholdsExclusive(t *testing.T) {
	tests := []struct {
		name      string
		prevScore float64
		want      domain.Trend
	}{
		{"big drop declines", 90, domain.TrendDeclining},
		{"exactly minus five is stable", 77.5, domain.TrendStable},
		{"exactly plus five is stable", 67.5, domain.TrendStable},
		{"big rise improves", 50, domain.TrendImproving},
		{"small move is stable", 70, domain.TrendStable},
	}

	// This population scores 72.5 (see TestScore_Composite).
	links := []LinkState{{}, {}, {}, {Broken: true}}
	issues := []domain.Issue{{Severity: domain.SeverityCritical}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Score(Inputs{
				OwnerID:    "o1",
				Links:      links,
				OpenIssues: issues,
				Previous:   &domain.HealthScoreSnapshot{Score: tt.prevScore},
			})
			assert.Equal(t, tt.want, snap.Trend, "delta %.1f", snap.ScoreDelta)
		})
	}
}

func TestScore_UnhealthyButNotBrokenLink(t *testing.T) {
	snap := Score(Inputs{
		OwnerID: "o1",
		Links: []LinkState{
			// PerLink 40, below the healthy threshold.
			{Hops: 6, ResponseTime: 6 * time.Second, Drift: true, LowCommission: true},
			{},
		},
	})

	assert.Equal(t, 1, snap.HealthyLinks)
	assert.Equal(t, 2, snap.TotalLinks)
	// ratio 0.5 -> 25 + 30 + 20 = 75
	assert.InDelta(t, 75.0, snap.Score, 0.001)
}

func TestForecast(t *testing.T) {
	now := time.Now().UTC()

	t.Run("no history", func(t *testing.T) {
		f := Forecast(nil)
		assert.InDelta(t, 100.0, f.Current, 0.001)
		assert.InDelta(t, 100.0, f.ThirtyDay, 0.001)
		assert.Zero(t, f.Points)
	})

	t.Run("single point", func(t *testing.T) {
		f := Forecast([]domain.HealthScoreSnapshot{
			{Score: 80, CreatedAt: now},
		})
		assert.InDelta(t, 80.0, f.Current, 0.001)
		assert.InDelta(t, 80.0, f.ThirtyDay, 0.001)
		assert.Zero(t, f.WeeklyVelocity)
	})

	t.Run("declining velocity", func(t *testing.T) {
		f := Forecast([]domain.HealthScoreSnapshot{
			{Score: 90, CreatedAt: now.Add(-48 * time.Hour)},
			{Score: 84, CreatedAt: now},
		})
		// -3 per day
		assert.InDelta(t, -21.0, f.WeeklyVelocity, 0.001)
		// 84 + (-3 * 30) clamps at 0
		assert.InDelta(t, 0.0, f.ThirtyDay, 0.001)
	})

	t.Run("improving velocity clamps at 100", func(t *testing.T) {
		f := Forecast([]domain.HealthScoreSnapshot{
			{Score: 80, CreatedAt: now.Add(-24 * time.Hour)},
			{Score: 90, CreatedAt: now},
		})
		assert.InDelta(t, 70.0, f.WeeklyVelocity, 0.001)
		assert.InDelta(t, 100.0, f.ThirtyDay, 0.001)
	})

	t.Run("unordered input is sorted", func(t *testing.T) {
		f := Forecast([]domain.HealthScoreSnapshot{
			{Score: 84, CreatedAt: now},
			{Score: 90, CreatedAt: now.Add(-48 * time.Hour)},
		})
		assert.InDelta(t, 84.0, f.Current, 0.001)
		assert.InDelta(t, -21.0, f.WeeklyVelocity, 0.001)
	})
}
