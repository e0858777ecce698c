// Package tracer follows a URL through its HTTP redirect chain and
// records whether affiliate parameters survive to the final destination.
package tracer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jonesrussell/linkhealth/internal/domain"
	"github.com/jonesrussell/linkhealth/internal/logger"
	"github.com/jonesrussell/linkhealth/internal/retry"
)

// Transport tuning for tracing third-party sites.
const (
	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
)

// ErrMalformedURL is returned when the candidate URL cannot be parsed.
// This is the only error Trace returns; network failures are recorded on
// the trace itself.
var ErrMalformedURL = errors.New("malformed url")

// errRateLimited marks a 429 response so the hop retry treats it as
// transient up to the retry budget.
var errRateLimited = errors.New("rate limited by target")

// Config configures the tracer.
type Config struct {
	// MaxHops caps the redirect chain to prevent loops.
	MaxHops int
	// SoftHopCap is the chain length above which confidence drops to medium.
	SoftHopCap int
	// RequestTimeout bounds each individual hop request.
	RequestTimeout time.Duration
	// MaxRetries bounds per-hop retries for transient errors.
	MaxRetries int
	// RetryBaseDelay is the initial backoff delay between hop retries.
	RetryBaseDelay time.Duration
	// UserAgent is sent on every hop request.
	UserAgent string
}

// Tracer follows redirect chains manually so every hop is observable.
// Stateless with respect to persisted data; the caller owns the trace.
type Tracer struct {
	client *http.Client
	cfg    Config
	params Params
	logger logger.Logger
}

// New creates a Tracer. The client never auto-follows redirects.
func New(cfg Config, params Params, log logger.Logger) *Tracer {
	client := &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        maxIdleConns,
			MaxIdleConnsPerHost: maxIdleConnsPerHost,
			IdleConnTimeout:     idleConnTimeout,
			TLSHandshakeTimeout: tlsHandshakeTimeout,
		},
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Tracer{
		client: client,
		cfg:    cfg,
		params: params,
		logger: log,
	}
}

// Trace follows rawURL through its redirect chain. Network failures are
// data: the returned trace carries the Unreachable flag instead of an
// error. Only a malformed URL yields an error.
func (t *Tracer) Trace(ctx context.Context, rawURL string) (*domain.Trace, error) {
	current, err := url.Parse(rawURL)
	if err != nil || current.Scheme == "" || current.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedURL, rawURL)
	}

	trace := &domain.Trace{
		CheckedAt: time.Now().UTC(),
	}
	start := time.Now()
	sawRedirector := false

	for hop := 0; ; hop++ {
		if hop >= t.cfg.MaxHops {
			trace.RedirectLoop = true
			trace.Notes = append(trace.Notes,
				fmt.Sprintf("redirect_loop_or_excessive: chain exceeded %d hops", t.cfg.MaxHops))
			break
		}

		if t.params.IsRedirector(current.Hostname()) {
			sawRedirector = true
		}

		status, location, elapsed, hopErr := t.fetchHop(ctx, current)
		if hopErr != nil {
			trace.Unreachable = true
			trace.Notes = append(trace.Notes,
				fmt.Sprintf("unreachable: %s (%v)", current.Hostname(), hopErr))
			t.logger.Debug("Hop unreachable",
				logger.String("url", current.String()),
				logger.Error(hopErr),
			)
			break
		}

		names := t.params.DetectParams(current)
		trace.Steps = append(trace.Steps, domain.RedirectStep{
			Index:           hop,
			URL:             current.String(),
			Status:          status,
			HasAffiliateTag: len(names) > 0,
			AffiliateParams: names,
			ResponseTime:    elapsed,
		})

		if !isRedirect(status) {
			trace.FinalURL = current.String()
			trace.FinalStatus = status
			break
		}

		next, parseErr := current.Parse(location)
		if parseErr != nil || location == "" {
			trace.FinalURL = current.String()
			trace.FinalStatus = status
			trace.Notes = append(trace.Notes, "redirect with missing or invalid Location header")
			break
		}
		current = next
	}

	trace.TotalTime = time.Since(start)
	t.finalize(trace, sawRedirector)
	return trace, nil
}

// fetchHop performs one GET with bounded retries for transient failures.
// 4xx/5xx statuses are terminal results, not errors, except 429 which is
// retried and then treated as unreachable when the budget is exhausted.
func (t *Tracer) fetchHop(ctx context.Context, u *url.URL) (status int, location string, elapsed time.Duration, err error) {
	retryCfg := retry.Config{
		MaxAttempts:  t.cfg.MaxRetries,
		InitialDelay: t.cfg.RetryBaseDelay,
		MaxDelay:     5 * time.Second,
		IsRetryable: func(e error) bool {
			return errors.Is(e, errRateLimited) || retry.IsTransient(e)
		},
	}

	err = retry.Do(ctx, retryCfg, func() error {
		hopStart := time.Now()

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("User-Agent", t.cfg.UserAgent)

		resp, doErr := t.client.Do(req)
		if doErr != nil {
			return doErr
		}
		defer func() { _ = resp.Body.Close() }()

		elapsed = time.Since(hopStart)

		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", errRateLimited, u.Hostname())
		}

		status = resp.StatusCode
		location = resp.Header.Get("Location")
		return nil
	})

	return status, location, elapsed, err
}

// finalize derives the tag verdict, confidence tier, and cookie window.
func (t *Tracer) finalize(trace *domain.Trace, sawRedirector bool) {
	finalNames := t.finalStepParams(trace)
	trace.AffiliateTagPresent = len(finalNames) > 0

	switch {
	case !trace.AffiliateTagPresent:
		trace.Confidence = domain.ConfidenceLow
		if !trace.Broken() && !trace.RedirectLoop {
			trace.Notes = append(trace.Notes, "no affiliate parameter in final URL")
		}
	case trace.HopCount() <= t.cfg.SoftHopCap && !sawRedirector:
		trace.Confidence = domain.ConfidenceHigh
	default:
		trace.Confidence = domain.ConfidenceMedium
	}

	if network := t.params.NetworkFor(finalNames); network != "" {
		if window, ok := t.params.CookieWindows[network]; ok {
			w := window
			trace.CookieWindow = &w
		}
	}
}

// finalStepParams returns the affiliate params detected on the final step.
func (t *Tracer) finalStepParams(trace *domain.Trace) []string {
	if len(trace.Steps) == 0 || trace.FinalURL == "" {
		return nil
	}
	last := trace.Steps[len(trace.Steps)-1]
	return last.AffiliateParams
}

// isRedirect reports whether the status code continues the chain.
func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}
