package domain

import "time"

// Confidence is the tracer's confidence tier in the affiliate-tag verdict.
type Confidence string

const (
	// ConfidenceHigh means the tag survived a short chain.
	ConfidenceHigh Confidence = "high"
	// ConfidenceMedium means the tag survived a long chain or a known redirector.
	ConfidenceMedium Confidence = "medium"
	// ConfidenceLow means no affiliate tag was found in the chain.
	ConfidenceLow Confidence = "low"
)

// RedirectStep is one observed hop in a redirect chain.
// Immutable once created; owned exclusively by the trace that produced it.
type RedirectStep struct {
	Index           int           `json:"index"`
	URL             string        `json:"url"`
	Status          int           `json:"status"`
	HasAffiliateTag bool          `json:"has_affiliate_tag"`
	AffiliateParams []string      `json:"affiliate_params,omitempty"`
	ResponseTime    time.Duration `json:"response_time"`
}

// Trace is the full recorded redirect chain for one link-check.
// Superseded (not mutated) by the next audit pass; prior traces remain
// addressable by CheckedAt.
type Trace struct {
	ID                  string         `json:"id"`
	LinkID              string         `json:"link_id"`
	Steps               []RedirectStep `json:"steps"`
	FinalURL            string         `json:"final_url"`
	FinalStatus         int            `json:"final_status"`
	AffiliateTagPresent bool           `json:"affiliate_tag_present"`
	Confidence          Confidence     `json:"confidence"`
	// Unreachable is set when the chain ended in a network failure.
	// Tracing failures are data, not errors.
	Unreachable bool `json:"unreachable"`
	// RedirectLoop is set when the hop cap was exhausted.
	RedirectLoop bool `json:"redirect_loop"`
	// Notes are human-readable observations gathered while tracing.
	Notes []string `json:"notes,omitempty"`
	// CookieWindow is the attribution window for the detected network,
	// when known.
	CookieWindow *time.Duration `json:"cookie_window,omitempty"`
	TotalTime    time.Duration  `json:"total_time"`
	CheckedAt    time.Time      `json:"checked_at"`
}

// HopCount returns the number of redirect hops (steps minus the final
// landing request).
func (t *Trace) HopCount() int {
	if len(t.Steps) == 0 {
		return 0
	}
	return len(t.Steps) - 1
}

// Broken reports whether the trace ended in an HTTP error or was
// unreachable.
func (t *Trace) Broken() bool {
	return t.Unreachable || t.FinalStatus >= 400
}
