// Package detector classifies a traced link into typed issues.
// Detection is pure: input signals in, issue drafts out. Persistence and
// deduplication belong to the orchestrator and storage layer.
package detector

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jonesrussell/linkhealth/internal/domain"
)

// Signals are the out-of-band inputs that accompany a trace.
type Signals struct {
	// InStock is the declared stock status. nil means unknown.
	InStock *bool
	// ExpectedHost is the destination host the link was configured for.
	// Empty disables drift detection.
	ExpectedHost string
	// Opportunity is the optimizer's verdict for the same link, when one
	// exists with positive gain.
	Opportunity *domain.CommissionOpportunity
	// MonthlyRevenue is the link's estimated monthly earnings, used to
	// size the revenue impact of losing it. Zero leaves the impact
	// undeclared; the scorer then applies its per-count fallback.
	MonthlyRevenue float64
}

// Detect evaluates all issue rules independently against one trace.
// A link can carry multiple open issues simultaneously.
func Detect(trace *domain.Trace, signals Signals) []domain.IssueDraft {
	var drafts []domain.IssueDraft

	broken := trace.Broken()
	stockOut := signals.InStock != nil && !*signals.InStock && !broken

	if broken {
		drafts = append(drafts, brokenDraft(trace, signals))
	}

	if stockOut {
		drafts = append(drafts, domain.IssueDraft{
			Type:          domain.IssueStockOut,
			Severity:      domain.SeverityWarning,
			Description:   "product is declared out of stock; clicks cannot convert",
			RevenueImpact: declaredImpact(signals.MonthlyRevenue),
		})
	}

	if !broken && !stockOut && !trace.AffiliateTagPresent {
		drafts = append(drafts, domain.IssueDraft{
			Type:        domain.IssueUntagged,
			Severity:    domain.SeverityWarning,
			Description: "no affiliate parameter survives to the final URL; sales are unattributed",
		})
	}

	if draft, ok := driftDraft(trace, signals.ExpectedHost); ok {
		drafts = append(drafts, draft)
	}

	if opp := signals.Opportunity; opp != nil && opp.MonthlyGain > 0 {
		gain := opp.MonthlyGain
		drafts = append(drafts, domain.IssueDraft{
			Type:     domain.IssueLowCommission,
			Severity: domain.SeverityInfo,
			Description: fmt.Sprintf("%s pays %.1f%% in %s vs current %.1f%%",
				opp.SuggestedRetailer, opp.SuggestedRate, opp.Category, opp.CurrentRate),
			RevenueImpact: &gain,
		})
	}

	return drafts
}

// brokenDraft builds the broken_link issue with a cause-specific message.
func brokenDraft(trace *domain.Trace, signals Signals) domain.IssueDraft {
	description := "link destination is unreachable"
	if !trace.Unreachable {
		description = fmt.Sprintf("link destination returned HTTP %d", trace.FinalStatus)
	}

	return domain.IssueDraft{
		Type:          domain.IssueBrokenLink,
		Severity:      domain.SeverityCritical,
		Description:   description,
		RevenueImpact: declaredImpact(signals.MonthlyRevenue),
	}
}

// driftDraft checks whether the final host wandered from the expected
// destination. Same registrable domain (e.g. www vs bare) is informational;
// a different domain is a warning.
func driftDraft(trace *domain.Trace, expectedHost string) (domain.IssueDraft, bool) {
	if expectedHost == "" || trace.FinalURL == "" || trace.Broken() {
		return domain.IssueDraft{}, false
	}

	finalURL, err := url.Parse(trace.FinalURL)
	if err != nil {
		return domain.IssueDraft{}, false
	}

	finalHost := strings.ToLower(finalURL.Hostname())
	expected := strings.ToLower(expectedHost)
	if finalHost == expected {
		return domain.IssueDraft{}, false
	}

	severity := domain.SeverityWarning
	if sameRegistrableDomain(finalHost, expected) {
		severity = domain.SeverityInfo
	}

	return domain.IssueDraft{
		Type:     domain.IssueDestinationDrift,
		Severity: severity,
		Description: fmt.Sprintf("final destination %s no longer matches expected host %s",
			finalHost, expected),
	}, true
}

// sameRegistrableDomain reports whether two hosts share a registrable
// suffix, e.g. "www.example.com" and "example.com".
func sameRegistrableDomain(a, b string) bool {
	return a == b ||
		strings.HasSuffix(a, "."+b) ||
		strings.HasSuffix(b, "."+a)
}

// declaredImpact wraps a measured monthly revenue figure, or returns nil
// when none was derivable so the revenue-loss basis stays honest.
func declaredImpact(measured float64) *float64 {
	if measured <= 0 {
		return nil
	}
	return &measured
}
