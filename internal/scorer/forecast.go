package scorer

import (
	"sort"

	"github.com/jonesrussell/linkhealth/internal/domain"
)

// Forecast horizon constants.
const (
	weeklyHorizonDays    = 7.0
	thirtyDayHorizonDays = 30.0
	hoursPerDay          = 24.0
)

// Forecast linearly extrapolates the trailing score velocity. With fewer
// than two snapshots the forecast equals the latest score (or the neutral
// 100 with none at all).
func Forecast(history []domain.HealthScoreSnapshot) domain.Forecast {
	if len(history) == 0 {
		return domain.Forecast{Current: 100, ThirtyDay: 100}
	}

	ordered := make([]domain.HealthScoreSnapshot, len(history))
	copy(ordered, history)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	last := ordered[len(ordered)-1]
	if len(ordered) < 2 {
		return domain.Forecast{
			Current:   last.Score,
			ThirtyDay: last.Score,
			Points:    1,
		}
	}

	prev := ordered[len(ordered)-2]
	days := last.CreatedAt.Sub(prev.CreatedAt).Hours() / hoursPerDay

	var deltaPerDay float64
	if days > 0 {
		deltaPerDay = (last.Score - prev.Score) / days
	}

	return domain.Forecast{
		Current:        last.Score,
		WeeklyVelocity: deltaPerDay * weeklyHorizonDays,
		ThirtyDay:      clamp(last.Score+deltaPerDay*thirtyDayHorizonDays, 0, 100),
		Points:         len(ordered),
	}
}
