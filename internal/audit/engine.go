// Package audit orchestrates full link audits: tracing, detection,
// optimization, persistence, and scoring for one owner's link set.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/linkhealth/internal/actions"
	"github.com/jonesrussell/linkhealth/internal/config"
	"github.com/jonesrussell/linkhealth/internal/detector"
	"github.com/jonesrussell/linkhealth/internal/domain"
	"github.com/jonesrussell/linkhealth/internal/logger"
	"github.com/jonesrussell/linkhealth/internal/metrics"
	"github.com/jonesrussell/linkhealth/internal/optimizer"
	"github.com/jonesrussell/linkhealth/internal/scorer"
	"github.com/jonesrussell/linkhealth/internal/storage"
	"github.com/jonesrussell/linkhealth/internal/tracer"
)

// perLinkTimeout bounds one link's trace plus persistence so a single slow
// destination cannot stall the whole run.
const perLinkTimeout = 2 * time.Minute

// Orchestration errors returned from Start.
var (
	// ErrRunActive means another audit currently holds the owner's lock.
	ErrRunActive = errors.New("audit already running for owner")
	// ErrInvalidRunType means the requested run type is unknown.
	ErrInvalidRunType = errors.New("invalid run type")
)

// Engine runs audits. Starts are synchronous; execution is asynchronous
// and survives the originating request.
type Engine struct {
	cfg       config.AuditConfig
	store     *storage.Store
	rates     *storage.RateCache
	tracer    *tracer.Tracer
	optimizer *optimizer.Optimizer
	actions   *actions.Manager
	metrics   *metrics.Metrics
	lock      locker
	logger    logger.Logger

	runCtx   context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine wires the audit engine.
func NewEngine(
	cfg config.AuditConfig,
	store *storage.Store,
	rates *storage.RateCache,
	tr *tracer.Tracer,
	opt *optimizer.Optimizer,
	manager *actions.Manager,
	m *metrics.Metrics,
	redisClient *redis.Client,
	log logger.Logger,
) *Engine {
	runCtx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:       cfg,
		store:     store,
		rates:     rates,
		tracer:    tr,
		optimizer: opt,
		actions:   manager,
		metrics:   m,
		lock:      newOwnerLock(redisClient, cfg.LockTTL, log),
		logger:    log,
		runCtx:    runCtx,
		cancel:    cancel,
		stop:      make(chan struct{}),
	}
}

// Start begins an audit for an owner. It returns the created run and true,
// or, when a recent completed run still satisfies the minimum interval and
// force is not set, that previous run and false. A concurrent run yields
// ErrRunActive.
func (e *Engine) Start(ctx context.Context, ownerID string, runType domain.RunType, force bool) (*domain.AuditRun, bool, error) {
	if !runType.Valid() {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidRunType, runType)
	}

	lease, acquired, err := e.lock.acquire(ctx, ownerID)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, ErrRunActive
	}

	if !force {
		previous, guardErr := e.store.LastCompletedRun(ctx, ownerID)
		if guardErr != nil && !errors.Is(guardErr, storage.ErrNotFound) {
			lease.release()
			return nil, false, guardErr
		}
		if previous != nil && previous.CompletedAt != nil &&
			time.Since(*previous.CompletedAt) < e.cfg.MinInterval {
			lease.release()
			return previous, false, nil
		}
	}

	run := &domain.AuditRun{
		OwnerID: ownerID,
		Type:    runType,
		Force:   force,
	}
	if err = e.store.CreateRun(ctx, run); err != nil {
		lease.release()
		return nil, false, err
	}

	e.wg.Add(1)
	go e.execute(run, lease)

	return run, true, nil
}

// Shutdown stops dispatching new link work, lets in-flight traces finish
// within their per-link timeout, and waits for runs to reach a terminal
// state.
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
	e.cancel()
}

// stopping reports whether Shutdown has been requested.
func (e *Engine) stopping() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}

// runResults accumulates per-link outcomes across workers.
type runResults struct {
	mu            sync.Mutex
	summary       domain.RunSummary
	states        []scorer.LinkState
	createdIssues []domain.Issue
	opportunities []domain.CommissionOpportunity
}

// skip counts a link as skipped. A non-nil state keeps the link in the
// scored population even though it was not re-traced this pass.
func (r *runResults) skip(state *scorer.LinkState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.LinksSkipped++
	if state != nil {
		r.states = append(r.states, *state)
	}
}

func (r *runResults) fail() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.LinksFailed++
}

func (r *runResults) record(state scorer.LinkState, outcome *storage.LinkOutcome, opp *domain.CommissionOpportunity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.LinksAudited++
	r.summary.IssuesOpened += outcome.IssuesOpened
	r.summary.IssuesResolved += outcome.IssuesResolved
	r.states = append(r.states, state)
	r.createdIssues = append(r.createdIssues, outcome.CreatedIssues...)
	if opp != nil {
		r.summary.Opportunities++
		r.opportunities = append(r.opportunities, *opp)
	}
}

// execute drives one run to a terminal state. Runs under the engine's
// lifecycle context, not the originating request's.
func (e *Engine) execute(run *domain.AuditRun, lease auditLease) {
	defer e.wg.Done()
	defer lease.release()

	ctx := e.runCtx
	start := time.Now()

	keepaliveCtx, stopKeepalive := context.WithCancel(ctx)
	defer stopKeepalive()
	go e.keepLockAlive(keepaliveCtx, lease)

	links, err := e.store.ListLinksByOwner(ctx, run.OwnerID)
	if err != nil {
		e.finishFailed(run, fmt.Sprintf("load links: %v", err), start)
		return
	}
	if len(links) == 0 {
		e.finishFailed(run, "owner has no tracked links", start)
		return
	}

	// Incremental runs skip fresh links but still score them, so the
	// snapshot covers the same population a full run would.
	var openFlags map[string]scorer.LinkState
	if run.Type == domain.RunIncremental {
		openIssues, issuesErr := e.store.ListOpenIssuesByOwner(ctx, run.OwnerID)
		if issuesErr != nil {
			e.finishFailed(run, fmt.Sprintf("load open issues: %v", issuesErr), start)
			return
		}
		openFlags = flagsByLink(openIssues)
	}

	rates, err := e.rates.Rates(ctx)
	if err != nil {
		// Degrade to an audit without commission evaluation.
		e.logger.Warn("rate table unavailable, skipping optimization",
			logger.String("run_id", run.ID), logger.Error(err))
		rates = nil
	}

	results := &runResults{}
	sem := make(chan struct{}, e.cfg.Workers)
	var wg sync.WaitGroup

	for i := range links {
		if e.stopping() || ctx.Err() != nil {
			break
		}
		link := links[i]

		if run.Type == domain.RunIncremental && e.freshEnough(&link) {
			e.carryFresh(ctx, &link, openFlags, results)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			e.auditLink(ctx, &link, rates, results)
		}()
	}
	wg.Wait()

	run.Summary = results.summary

	if e.stopping() || ctx.Err() != nil {
		e.finishFailed(run, "cancelled: engine shutting down", start)
		return
	}

	if err = e.scoreAndFinish(ctx, run, results, start); err != nil {
		e.finishFailed(run, err.Error(), start)
	}
}

// carryFresh records a skipped link's condition from its latest persisted
// trace and its open issues, so incremental snapshots are not biased toward
// the stale subset that was actually re-traced.
func (e *Engine) carryFresh(ctx context.Context, link *domain.TrackedLink, openFlags map[string]scorer.LinkState, results *runResults) {
	trace, err := e.store.LatestTrace(ctx, link.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("loading latest trace for fresh link failed",
				logger.String("link_id", link.ID), logger.Error(err))
		}
		results.skip(nil)
		return
	}

	state := scorer.LinkState{
		Broken:       trace.Broken(),
		Hops:         trace.HopCount(),
		ResponseTime: trace.TotalTime,
	}
	flags := openFlags[link.ID]
	state.StockOut = flags.StockOut
	state.Untagged = flags.Untagged
	state.Drift = flags.Drift
	state.LowCommission = flags.LowCommission
	results.skip(&state)
}

// flagsByLink folds open issues into per-link condition flags.
func flagsByLink(issues []domain.Issue) map[string]scorer.LinkState {
	flags := make(map[string]scorer.LinkState, len(issues))
	for _, issue := range issues {
		state := flags[issue.LinkID]
		switch issue.Type {
		case domain.IssueStockOut:
			state.StockOut = true
		case domain.IssueUntagged:
			state.Untagged = true
		case domain.IssueDestinationDrift:
			state.Drift = true
		case domain.IssueLowCommission:
			state.LowCommission = true
		}
		flags[issue.LinkID] = state
	}
	return flags
}

// keepLockAlive extends the owner lock while the run is in flight so a
// long link set cannot outlive the lock TTL and admit a second audit.
func (e *Engine) keepLockAlive(ctx context.Context, lease auditLease) {
	interval := e.cfg.LockTTL / 3
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lease.refresh(ctx); err != nil {
				e.logger.Warn("audit lock refresh failed", logger.Error(err))
			}
		}
	}
}

// auditLink traces, detects, optimizes, and persists one link.
func (e *Engine) auditLink(ctx context.Context, link *domain.TrackedLink, rates []domain.RetailerRate, results *runResults) {
	linkCtx, cancel := context.WithTimeout(ctx, perLinkTimeout)
	defer cancel()

	trace, err := e.tracer.Trace(linkCtx, link.OriginalURL)
	if err != nil {
		// Malformed URLs are skipped, not fatal to the run.
		e.logger.Warn("skipping unparseable link",
			logger.String("link_id", link.ID), logger.Error(err))
		results.skip(nil)
		return
	}

	e.metrics.TracesTotal.WithLabelValues(
		metrics.TraceOutcome(trace.Unreachable, trace.RedirectLoop, trace.FinalStatus)).Inc()
	e.metrics.TraceDuration.Observe(trace.TotalTime.Seconds())

	trace.LinkID = link.ID

	var opp *domain.CommissionOpportunity
	if len(rates) > 0 && link.Monetized {
		opp = e.optimizer.Evaluate(optimizer.Input{
			LinkID:        link.ID,
			OwnerID:       link.OwnerID,
			Retailer:      link.Retailer,
			ProductName:   link.ProductName,
			CurrentRate:   link.CommissionPct,
			MonthlyClicks: link.MonthlyClicks,
		}, rates)
	}

	drafts := detector.Detect(trace, detector.Signals{
		InStock:        link.DeclaredInStock,
		ExpectedHost:   link.ExpectedHost,
		Opportunity:    opp,
		MonthlyRevenue: e.optimizer.EstimateRevenue(link.MonthlyClicks, link.CommissionPct),
	})

	outcome, err := e.store.ApplyLinkResult(linkCtx, &storage.LinkResult{
		Link:        link,
		Trace:       trace,
		Drafts:      drafts,
		Opportunity: opp,
	})
	if err != nil {
		e.logger.Error("persisting link audit failed",
			logger.String("link_id", link.ID), logger.Error(err))
		if staleErr := e.store.MarkLinkStale(linkCtx, link.ID); staleErr != nil {
			e.logger.Error("marking link stale failed",
				logger.String("link_id", link.ID), logger.Error(staleErr))
		}
		results.fail()
		return
	}

	if opp != nil {
		e.metrics.Opportunities.Inc()
	}
	results.record(stateFrom(trace, drafts), outcome, opp)
}

// scoreAndFinish runs the scorer strictly after all per-link writes, fans
// out recommendation cards, and completes the run.
func (e *Engine) scoreAndFinish(ctx context.Context, run *domain.AuditRun, results *runResults, start time.Time) error {
	previous, err := e.store.LatestSnapshot(ctx, run.OwnerID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load previous snapshot: %w", err)
	}

	openIssues, err := e.store.ListOpenIssuesByOwner(ctx, run.OwnerID)
	if err != nil {
		return fmt.Errorf("load open issues: %w", err)
	}

	snap := scorer.Score(scorer.Inputs{
		OwnerID:    run.OwnerID,
		Links:      results.states,
		OpenIssues: openIssues,
		Previous:   previous,
	})
	if err = e.store.InsertSnapshot(ctx, &snap); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	e.metrics.OpenIssues.WithLabelValues(string(domain.SeverityCritical)).Set(float64(snap.CriticalIssues))
	e.metrics.OpenIssues.WithLabelValues(string(domain.SeverityWarning)).Set(float64(snap.WarningIssues))
	e.metrics.OpenIssues.WithLabelValues(string(domain.SeverityInfo)).Set(float64(snap.InfoIssues))

	e.fanOutRecommendations(ctx, results)

	next := time.Now().UTC().Add(e.nextInterval(run.Type))
	run.NextScheduledAt = &next

	if err = e.store.CompleteRun(ctx, run); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}

	e.metrics.AuditRunsTotal.WithLabelValues(string(run.Type), string(domain.RunCompleted)).Inc()
	e.metrics.AuditRunDuration.Observe(time.Since(start).Seconds())

	e.logger.Info("audit run completed",
		logger.String("run_id", run.ID),
		logger.String("owner_id", run.OwnerID),
		logger.Int("links_audited", run.Summary.LinksAudited),
		logger.Int("issues_opened", run.Summary.IssuesOpened),
		logger.Int("issues_resolved", run.Summary.IssuesResolved),
		logger.Float64("score", snap.Score),
		logger.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// fanOutRecommendations creates pending cards for new issues and
// opportunities. Card failures are logged, not fatal; the next run can
// re-surface them.
func (e *Engine) fanOutRecommendations(ctx context.Context, results *runResults) {
	for i := range results.createdIssues {
		issue := &results.createdIssues[i]
		// low_commission issues are carded via their opportunity instead.
		if issue.Type == domain.IssueLowCommission {
			continue
		}
		if _, err := e.actions.FromIssue(ctx, issue); err != nil {
			e.logger.Warn("issue recommendation failed",
				logger.String("issue_id", issue.ID), logger.Error(err))
		}
	}
	for i := range results.opportunities {
		opp := &results.opportunities[i]
		if _, err := e.actions.FromOpportunity(ctx, opp); err != nil {
			e.logger.Warn("opportunity recommendation failed",
				logger.String("opportunity_id", opp.ID), logger.Error(err))
		}
	}
}

// finishFailed marks the run failed with whatever partial summary it has.
func (e *Engine) finishFailed(run *domain.AuditRun, reason string, start time.Time) {
	// Use a fresh context so a cancelled run can still be finalized.
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.store.FailRun(finishCtx, run, reason); err != nil {
		e.logger.Error("failing run failed",
			logger.String("run_id", run.ID), logger.Error(err))
	}

	e.metrics.AuditRunsTotal.WithLabelValues(string(run.Type), string(domain.RunFailed)).Inc()
	e.metrics.AuditRunDuration.Observe(time.Since(start).Seconds())

	e.logger.Warn("audit run failed",
		logger.String("run_id", run.ID),
		logger.String("owner_id", run.OwnerID),
		logger.String("reason", reason),
	)
}

// freshEnough reports whether an incremental run can skip the link.
func (e *Engine) freshEnough(link *domain.TrackedLink) bool {
	if link.Stale || link.LastCheckedAt == nil {
		return false
	}
	return time.Since(*link.LastCheckedAt) < e.cfg.NextIncremental
}

// nextInterval maps a run type to its re-audit horizon.
func (e *Engine) nextInterval(runType domain.RunType) time.Duration {
	switch runType {
	case domain.RunIncremental:
		return e.cfg.NextIncremental
	case domain.RunEmergency:
		return e.cfg.NextEmergency
	default:
		return e.cfg.NextFull
	}
}

// stateFrom derives the scorer's link state from the trace and drafts.
func stateFrom(trace *domain.Trace, drafts []domain.IssueDraft) scorer.LinkState {
	state := scorer.LinkState{
		Broken:       trace.Broken(),
		Hops:         trace.HopCount(),
		ResponseTime: trace.TotalTime,
	}
	for _, draft := range drafts {
		switch draft.Type {
		case domain.IssueStockOut:
			state.StockOut = true
		case domain.IssueUntagged:
			state.Untagged = true
		case domain.IssueDestinationDrift:
			state.Drift = true
		case domain.IssueLowCommission:
			state.LowCommission = true
		}
	}
	return state
}
