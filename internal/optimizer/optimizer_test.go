package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/linkhealth/internal/domain"
)

func testOptimizer() *Optimizer {
	return New(Config{
		ConversionRate:    0.03,
		AverageOrderValue: 50.0,
		MinMonthlyClicks:  10,
		MinMonthlyGain:    10.0,
	}, DefaultCategories())
}

func testRates() []domain.RetailerRate {
	return []domain.RetailerRate{
		{Retailer: "amazon", Category: "default", Rate: 3.0},
		{Retailer: "amazon", Category: "fashion", Rate: 4.0},
		{Retailer: "target", Category: "default", Rate: 5.0},
		{Retailer: "target", Category: "fashion", Rate: 8.0},
		{Retailer: "walmart", Category: "default", Rate: 4.0},
	}
}

func TestEvaluate_FashionSwitchFromAmazon(t *testing.T) {
	opt := testOptimizer()

	opp := opt.Evaluate(Input{
		LinkID:        "l1",
		OwnerID:       "o1",
		Retailer:      "amazon",
		ProductName:   "Summer Dress",
		CurrentRate:   4.0,
		MonthlyClicks: 500,
	}, testRates())

	require.NotNil(t, opp)
	assert.Equal(t, "target", opp.SuggestedRetailer)
	assert.Equal(t, "fashion", opp.Category)
	assert.InDelta(t, 8.0, opp.SuggestedRate, 0.001)
	// 500 * 0.03 * $50 * (8-4)/100
	assert.InDelta(t, 30.0, opp.MonthlyGain, 0.001)
}

func TestEvaluate_GainMath(t *testing.T) {
	opt := testOptimizer()

	// 300 clicks * 0.03 * $50 * (8-4)/100 = $18.00
	opp := opt.Evaluate(Input{
		Retailer:      "amazon",
		ProductName:   "leather handbag",
		CurrentRate:   4.0,
		MonthlyClicks: 300,
	}, testRates())

	require.NotNil(t, opp)
	assert.InDelta(t, 18.0, opp.MonthlyGain, 0.001)
	assert.Contains(t, opp.Reasoning, "target")
	assert.Contains(t, opp.Reasoning, "amazon")
}

func TestEvaluate_MaterialityThresholdInclusive(t *testing.T) {
	opt := testOptimizer()
	rates := []domain.RetailerRate{
		{Retailer: "other", Category: "default", Rate: 5.0},
	}

	tests := []struct {
		name        string
		currentRate float64
		clicks      int
		wantOpp     bool
	}{
		{
			// 167 * 0.03 * 50 * 4/100 = $10.02 clears the $10 threshold.
			name:        "just above threshold",
			currentRate: 1.0,
			clicks:      167,
			wantOpp:     true,
		},
		{
			// 166 * 0.03 * 50 * 4/100 = $9.96 is suppressed.
			name:        "just below threshold",
			currentRate: 1.0,
			clicks:      166,
			wantOpp:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := opt.Evaluate(Input{
				Retailer:      "current",
				ProductName:   "widget",
				CurrentRate:   tt.currentRate,
				MonthlyClicks: tt.clicks,
			}, rates)
			if tt.wantOpp {
				assert.NotNil(t, opp)
			} else {
				assert.Nil(t, opp)
			}
		})
	}
}

func TestEvaluate_ExactlyAtThresholdPasses(t *testing.T) {
	// 100 * 0.05 * $40 * (8-3)/100 = $10.00, the inclusive boundary.
	opt := New(Config{
		ConversionRate:    0.05,
		AverageOrderValue: 40.0,
		MinMonthlyClicks:  10,
		MinMonthlyGain:    10.0,
	}, DefaultCategories())

	opp := opt.Evaluate(Input{
		Retailer:      "current",
		ProductName:   "widget",
		CurrentRate:   3.0,
		MonthlyClicks: 100,
	}, []domain.RetailerRate{
		{Retailer: "other", Category: "default", Rate: 8.0},
	})

	require.NotNil(t, opp, "a gain of exactly the threshold must pass")
	assert.InDelta(t, 10.0, opp.MonthlyGain, 0.001)
}

func TestEvaluate_ClickFloor(t *testing.T) {
	opt := testOptimizer()
	rates := []domain.RetailerRate{
		// Huge delta so even the floored click count clears the threshold.
		{Retailer: "other", Category: "default", Rate: 70.0},
	}

	opp := opt.Evaluate(Input{
		Retailer:      "current",
		ProductName:   "widget",
		CurrentRate:   2.0,
		MonthlyClicks: 0,
	}, rates)

	require.NotNil(t, opp)
	// Floored to 10 clicks: 10 * 0.03 * 50 * 68/100 = $10.20
	assert.InDelta(t, 10.2, opp.MonthlyGain, 0.001)
}

func TestEvaluate_NoStrictlyBetterRate(t *testing.T) {
	opt := testOptimizer()
	rates := []domain.RetailerRate{
		{Retailer: "other", Category: "default", Rate: 4.0},
	}

	opp := opt.Evaluate(Input{
		Retailer:      "current",
		ProductName:   "widget",
		CurrentRate:   4.0,
		MonthlyClicks: 1000,
	}, rates)

	assert.Nil(t, opp, "an equal rate must not produce an opportunity")
}

func TestEvaluate_SkipsCurrentRetailer(t *testing.T) {
	opt := testOptimizer()
	rates := []domain.RetailerRate{
		{Retailer: "Amazon", Category: "default", Rate: 50.0},
	}

	opp := opt.Evaluate(Input{
		Retailer:      "amazon",
		ProductName:   "widget",
		CurrentRate:   3.0,
		MonthlyClicks: 1000,
	}, rates)

	assert.Nil(t, opp, "the current retailer must be excluded, case-insensitively")
}

func TestEvaluate_CategoryRateBeatsDefault(t *testing.T) {
	opt := testOptimizer()

	opp := opt.Evaluate(Input{
		Retailer:      "walmart",
		ProductName:   "running sneaker",
		CurrentRate:   4.0,
		MonthlyClicks: 1000,
	}, testRates())

	require.NotNil(t, opp)
	assert.Equal(t, "target", opp.SuggestedRetailer)
	assert.InDelta(t, 8.0, opp.SuggestedRate, 0.001, "the fashion rate should win over target's default")
}

func TestCategorize(t *testing.T) {
	opt := testOptimizer()

	tests := []struct {
		product string
		want    string
	}{
		{"Wireless Headphones", "electronics"},
		{"Leather Handbag", "fashion"},
		{"Vitamin C Serum", "beauty"},
		{"Memory Foam Mattress", "home"},
		{"Garden Hose", DefaultCategory},
		{"", DefaultCategory},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, opt.Categorize(tt.product), "product %q", tt.product)
	}
}

func TestEstimateRevenue(t *testing.T) {
	opt := testOptimizer()

	// 200 * 0.03 * 50 * 4/100 = $12
	assert.InDelta(t, 12.0, opt.EstimateRevenue(200, 4.0), 0.001)
	// Floor applies: 10 * 0.03 * 50 * 4/100 = $0.60
	assert.InDelta(t, 0.6, opt.EstimateRevenue(0, 4.0), 0.001)
}
