// Package optimizer searches the commission rate table for materially
// better-paying programs. Evaluation is pure; persistence and alerting
// belong to the orchestrator.
package optimizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jonesrussell/linkhealth/internal/domain"
)

const percentDivisor = 100.0

// Config holds the gain-estimate heuristics. All values are tunable
// estimates rather than measured constants.
type Config struct {
	// ConversionRate is the assumed click-to-sale rate (e.g. 0.03).
	ConversionRate float64
	// AverageOrderValue is the assumed order value in dollars.
	AverageOrderValue float64
	// MinMonthlyClicks floors the click count so new links with no
	// history do not zero out the estimate.
	MinMonthlyClicks int
	// MinMonthlyGain suppresses recommendations below this many dollars
	// per month. The comparison is inclusive.
	MinMonthlyGain float64
}

// Input describes the link under evaluation.
type Input struct {
	LinkID        string
	OwnerID       string
	Retailer      string
	ProductName   string
	CurrentRate   float64
	MonthlyClicks int
}

// Optimizer evaluates links against a commission rate table.
type Optimizer struct {
	cfg           Config
	categories    map[string][]string
	categoryOrder []string
}

// New creates an Optimizer with the given heuristics and category
// keyword sets.
func New(cfg Config, categories map[string][]string) *Optimizer {
	order := make([]string, 0, len(categories))
	for name := range categories {
		order = append(order, name)
	}
	sort.Strings(order)

	return &Optimizer{
		cfg:           cfg,
		categories:    categories,
		categoryOrder: order,
	}
}

// Evaluate searches the rate table for a program that strictly out-pays
// the link's current rate in its category. Returns nil when no candidate
// clears the materiality threshold.
func (o *Optimizer) Evaluate(in Input, rates []domain.RetailerRate) *domain.CommissionOpportunity {
	category := o.Categorize(in.ProductName)

	best, ok := o.bestAlternative(in.Retailer, category, in.CurrentRate, rates)
	if !ok {
		return nil
	}

	gain := o.estimateGain(in.MonthlyClicks, best.Rate, in.CurrentRate)
	if gain < o.cfg.MinMonthlyGain {
		return nil
	}

	return &domain.CommissionOpportunity{
		LinkID:            in.LinkID,
		OwnerID:           in.OwnerID,
		CurrentRetailer:   in.Retailer,
		CurrentRate:       in.CurrentRate,
		SuggestedRetailer: best.Retailer,
		SuggestedRate:     best.Rate,
		Category:          category,
		MonthlyGain:       gain,
		Active:            true,
		Reasoning: fmt.Sprintf(
			"%s pays %.1f%% for %s vs %.1f%% on %s; estimated +$%.2f/month",
			best.Retailer, best.Rate, category, in.CurrentRate, in.Retailer, gain),
	}
}

// bestAlternative returns the highest-paying retailer for the category
// that strictly exceeds the current rate. Category-specific rates win
// over a retailer's default rate.
func (o *Optimizer) bestAlternative(currentRetailer, category string, currentRate float64, rates []domain.RetailerRate) (domain.RetailerRate, bool) {
	effective := make(map[string]float64)
	for _, r := range rates {
		if strings.EqualFold(r.Retailer, currentRetailer) {
			continue
		}
		switch r.Category {
		case category:
			effective[r.Retailer] = r.Rate
		case DefaultCategory:
			if _, exists := effective[r.Retailer]; !exists {
				effective[r.Retailer] = r.Rate
			}
		}
	}

	candidates := make([]domain.RetailerRate, 0, len(effective))
	for retailer, rate := range effective {
		if rate > currentRate {
			candidates = append(candidates, domain.RetailerRate{
				Retailer: retailer,
				Category: category,
				Rate:     rate,
			})
		}
	}
	if len(candidates) == 0 {
		return domain.RetailerRate{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Rate != candidates[j].Rate {
			return candidates[i].Rate > candidates[j].Rate
		}
		return candidates[i].Retailer < candidates[j].Retailer
	})
	return candidates[0], true
}

// EstimateRevenue projects a link's monthly earnings at its current
// commission rate, using the same heuristics as the gain estimate.
func (o *Optimizer) EstimateRevenue(monthlyClicks int, commissionPct float64) float64 {
	clicks := monthlyClicks
	if clicks < o.cfg.MinMonthlyClicks {
		clicks = o.cfg.MinMonthlyClicks
	}

	return float64(clicks) *
		o.cfg.ConversionRate *
		o.cfg.AverageOrderValue *
		commissionPct / percentDivisor
}

// estimateGain projects the monthly dollar difference of switching rates.
func (o *Optimizer) estimateGain(monthlyClicks int, bestRate, currentRate float64) float64 {
	clicks := monthlyClicks
	if clicks < o.cfg.MinMonthlyClicks {
		clicks = o.cfg.MinMonthlyClicks
	}

	return float64(clicks) *
		o.cfg.ConversionRate *
		o.cfg.AverageOrderValue *
		(bestRate - currentRate) / percentDivisor
}
