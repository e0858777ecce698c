package audit

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/linkhealth/internal/config"
	"github.com/jonesrussell/linkhealth/internal/domain"
	"github.com/jonesrussell/linkhealth/internal/logger"
	"github.com/jonesrussell/linkhealth/internal/metrics"
	"github.com/jonesrussell/linkhealth/internal/scorer"
	"github.com/jonesrussell/linkhealth/internal/storage"
)

func testEngine() *Engine {
	return &Engine{
		cfg: config.AuditConfig{
			NextFull:        7 * 24 * time.Hour,
			NextIncremental: 24 * time.Hour,
			NextEmergency:   time.Hour,
		},
		logger: logger.NewNop(),
	}
}

type fakeLease struct {
	mu        sync.Mutex
	released  bool
	refreshes int
}

func (f *fakeLease) refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeLease) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
}

func (f *fakeLease) wasReleased() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func (f *fakeLease) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

// fakeLocker hands out a canned lease, or reports contention when held.
type fakeLocker struct {
	lease *fakeLease
	held  bool
}

func (f *fakeLocker) acquire(context.Context, string) (auditLease, bool, error) {
	if f.held {
		return nil, false, nil
	}
	return f.lease, true, nil
}

// newStartTestEngine builds an engine over a mocked database so the Start
// path can run without postgres or redis.
func newStartTestEngine(t *testing.T, lock locker) (*Engine, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewStore(db, logger.NewNop())
	// An unreachable redis address forces the rate cache onto its
	// database fallback.
	deadRedis := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})

	runCtx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg: config.AuditConfig{
			Workers:         2,
			MinInterval:     time.Hour,
			NextFull:        7 * 24 * time.Hour,
			NextIncremental: 24 * time.Hour,
			NextEmergency:   time.Hour,
		},
		store:   store,
		rates:   storage.NewRateCache(store, deadRedis, time.Minute, logger.NewNop()),
		metrics: metrics.New(prometheus.NewRegistry()),
		lock:    lock,
		logger:  logger.NewNop(),
		runCtx:  runCtx,
		cancel:  cancel,
		stop:    make(chan struct{}),
	}, mock
}

func linkColumns() []string {
	return []string{
		"id", "owner_id", "original_url", "final_url", "product_name",
		"retailer", "network", "expected_host", "monetized", "commission_pct",
		"monthly_clicks", "declared_in_stock", "price", "last_checked_at",
		"stale", "created_at", "updated_at",
	}
}

func TestNextInterval(t *testing.T) {
	e := testEngine()

	tests := []struct {
		runType domain.RunType
		want    time.Duration
	}{
		{domain.RunFull, 7 * 24 * time.Hour},
		{domain.RunIncremental, 24 * time.Hour},
		{domain.RunEmergency, time.Hour},
		{domain.RunType("unknown"), 7 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(string(tt.runType), func(t *testing.T) {
			assert.Equal(t, tt.want, e.nextInterval(tt.runType))
		})
	}
}

func TestFreshEnough(t *testing.T) {
	e := testEngine()
	recent := time.Now().UTC().Add(-time.Hour)
	old := time.Now().UTC().Add(-48 * time.Hour)

	tests := []struct {
		name string
		link domain.TrackedLink
		want bool
	}{
		{"never checked", domain.TrackedLink{}, false},
		{"checked recently", domain.TrackedLink{LastCheckedAt: &recent}, true},
		{"checked too long ago", domain.TrackedLink{LastCheckedAt: &old}, false},
		{"stale overrides recency", domain.TrackedLink{LastCheckedAt: &recent, Stale: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.freshEnough(&tt.link))
		})
	}
}

func TestStateFrom(t *testing.T) {
	trace := &domain.Trace{
		FinalStatus: 200,
		Steps: []domain.RedirectStep{
			{Status: 302}, {Status: 200},
		},
		TotalTime:           1200 * time.Millisecond,
		AffiliateTagPresent: true,
	}
	drafts := []domain.IssueDraft{
		{Type: domain.IssueStockOut},
		{Type: domain.IssueDestinationDrift},
		{Type: domain.IssueLowCommission},
	}

	state := stateFrom(trace, drafts)

	assert.False(t, state.Broken)
	assert.Equal(t, 1, state.Hops)
	assert.Equal(t, 1200*time.Millisecond, state.ResponseTime)
	assert.True(t, state.StockOut)
	assert.True(t, state.Drift)
	assert.True(t, state.LowCommission)
	assert.False(t, state.Untagged)
}

func TestStateFrom_BrokenTrace(t *testing.T) {
	trace := &domain.Trace{Unreachable: true}

	state := stateFrom(trace, []domain.IssueDraft{{Type: domain.IssueBrokenLink}})

	assert.True(t, state.Broken)
	assert.Zero(t, state.Hops)
}

func TestRunResults_Record(t *testing.T) {
	results := &runResults{}

	results.skip(nil)
	results.fail()
	results.record(
		stateFrom(&domain.Trace{FinalStatus: 200, AffiliateTagPresent: true}, nil),
		&storage.LinkOutcome{IssuesOpened: 2, IssuesResolved: 1},
		&domain.CommissionOpportunity{ID: "opp-1"},
	)
	results.record(
		stateFrom(&domain.Trace{FinalStatus: 404}, nil),
		&storage.LinkOutcome{IssuesOpened: 1},
		nil,
	)

	assert.Equal(t, 1, results.summary.LinksSkipped)
	assert.Equal(t, 1, results.summary.LinksFailed)
	assert.Equal(t, 2, results.summary.LinksAudited)
	assert.Equal(t, 3, results.summary.IssuesOpened)
	assert.Equal(t, 1, results.summary.IssuesResolved)
	assert.Equal(t, 1, results.summary.Opportunities)
	assert.Len(t, results.states, 2)
	assert.Len(t, results.opportunities, 1)
}

func TestRunResults_SkipWithStateKeepsLinkScored(t *testing.T) {
	results := &runResults{}

	results.skip(&scorer.LinkState{StockOut: true})

	assert.Equal(t, 1, results.summary.LinksSkipped)
	assert.Zero(t, results.summary.LinksAudited)
	require.Len(t, results.states, 1)
	assert.True(t, results.states[0].StockOut)
}

func TestIncrementalRunScoresWholePopulation(t *testing.T) {
	results := &runResults{}

	// Eight fresh links carried over, two re-traced, one of those broken.
	for i := 0; i < 8; i++ {
		results.skip(&scorer.LinkState{})
	}
	results.record(scorer.LinkState{}, &storage.LinkOutcome{}, nil)
	results.record(scorer.LinkState{Broken: true}, &storage.LinkOutcome{IssuesOpened: 1}, nil)

	snap := scorer.Score(scorer.Inputs{OwnerID: "owner-1", Links: results.states})

	assert.Equal(t, 10, snap.TotalLinks)
	assert.Equal(t, 9, snap.HealthyLinks)
	assert.Equal(t, 1, snap.BrokenLinks)
}

func TestCarryFresh(t *testing.T) {
	e, mock := newStartTestEngine(t, &fakeLocker{lease: &fakeLease{}})

	steps := []byte(`[{"index":0,"url":"https://go.example.com/a","status":302},` +
		`{"index":1,"url":"https://shop.example.com/p","status":200}]`)
	rows := sqlmock.NewRows([]string{
		"id", "link_id", "steps", "final_url", "final_status", "tag_present",
		"confidence", "unreachable", "redirect_loop", "notes",
		"cookie_window_seconds", "total_time_ms", "checked_at",
	}).AddRow(
		"trace-1", "link-1", steps, "https://shop.example.com/p", 200, true,
		"high", false, false, []byte(`[]`), nil, 850, time.Now().UTC(),
	)
	mock.ExpectQuery("SELECT (.+) FROM traces WHERE link_id").
		WithArgs("link-1").
		WillReturnRows(rows)

	results := &runResults{}
	openFlags := map[string]scorer.LinkState{"link-1": {StockOut: true}}
	e.carryFresh(context.Background(), &domain.TrackedLink{ID: "link-1"}, openFlags, results)

	assert.Equal(t, 1, results.summary.LinksSkipped)
	assert.Zero(t, results.summary.LinksAudited)
	require.Len(t, results.states, 1)
	state := results.states[0]
	assert.False(t, state.Broken)
	assert.True(t, state.StockOut)
	assert.Equal(t, 1, state.Hops)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCarryFresh_NeverTracedLinkIsOnlySkipped(t *testing.T) {
	e, mock := newStartTestEngine(t, &fakeLocker{lease: &fakeLease{}})

	mock.ExpectQuery("SELECT (.+) FROM traces WHERE link_id").
		WithArgs("link-1").
		WillReturnError(sql.ErrNoRows)

	results := &runResults{}
	e.carryFresh(context.Background(), &domain.TrackedLink{ID: "link-1"}, nil, results)

	assert.Equal(t, 1, results.summary.LinksSkipped)
	assert.Empty(t, results.states)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagsByLink(t *testing.T) {
	flags := flagsByLink([]domain.Issue{
		{LinkID: "a", Type: domain.IssueStockOut},
		{LinkID: "a", Type: domain.IssueLowCommission},
		{LinkID: "b", Type: domain.IssueUntagged},
		{LinkID: "c", Type: domain.IssueDestinationDrift},
		{LinkID: "d", Type: domain.IssueBrokenLink},
	})

	assert.True(t, flags["a"].StockOut)
	assert.True(t, flags["a"].LowCommission)
	assert.True(t, flags["b"].Untagged)
	assert.True(t, flags["c"].Drift)
	// broken comes from the trace, not the issue list
	assert.Equal(t, scorer.LinkState{}, flags["d"])
}

func TestStart_InvalidRunType(t *testing.T) {
	e, _ := newStartTestEngine(t, &fakeLocker{lease: &fakeLease{}})

	_, started, err := e.Start(context.Background(), "owner-1", domain.RunType("hourly"), false)

	assert.ErrorIs(t, err, ErrInvalidRunType)
	assert.False(t, started)
}

func TestStart_ConcurrentRunRejected(t *testing.T) {
	e, _ := newStartTestEngine(t, &fakeLocker{held: true})

	_, started, err := e.Start(context.Background(), "owner-1", domain.RunFull, false)

	assert.ErrorIs(t, err, ErrRunActive)
	assert.False(t, started)
}

func TestStart_MinIntervalReturnsPreviousRun(t *testing.T) {
	lease := &fakeLease{}
	e, mock := newStartTestEngine(t, &fakeLocker{lease: lease})

	completed := time.Now().UTC().Add(-10 * time.Minute)
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "type", "status", "force_run", "started_at",
		"completed_at", "summary", "fail_reason", "next_scheduled_at",
	}).AddRow(
		"run-1", "owner-1", "full", "completed", false,
		completed.Add(-time.Minute), completed, []byte(`{}`), "", nil,
	)
	mock.ExpectQuery("SELECT (.+) FROM audit_runs WHERE owner_id = (.+) AND status = 'completed'").
		WithArgs("owner-1").
		WillReturnRows(rows)

	run, started, err := e.Start(context.Background(), "owner-1", domain.RunFull, false)

	assert.NoError(t, err)
	assert.False(t, started)
	require.NotNil(t, run)
	assert.Equal(t, "run-1", run.ID)
	assert.True(t, lease.wasReleased())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStart_OwnerWithoutLinksFailsRun(t *testing.T) {
	lease := &fakeLease{}
	e, mock := newStartTestEngine(t, &fakeLocker{lease: lease})

	mock.ExpectExec("INSERT INTO audit_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM tracked_links WHERE owner_id").
		WithArgs("owner-1").
		WillReturnRows(sqlmock.NewRows(linkColumns()))
	mock.ExpectExec("UPDATE audit_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	run, started, err := e.Start(context.Background(), "owner-1", domain.RunFull, true)
	assert.NoError(t, err)
	assert.True(t, started)

	e.Shutdown()

	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, "owner has no tracked links", run.FailReason)
	assert.True(t, lease.wasReleased())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShutdownStopsDispatchAndFailsRun(t *testing.T) {
	lease := &fakeLease{}
	e, mock := newStartTestEngine(t, &fakeLocker{lease: lease})

	// Shutting down first means the run must drain without dispatching
	// any link work; the nil tracer would panic otherwise.
	e.Shutdown()

	mock.ExpectExec("INSERT INTO audit_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	now := time.Now().UTC()
	rows := sqlmock.NewRows(linkColumns()).AddRow(
		"link-1", "owner-1", "https://go.example.com/a", nil, "", "", "", "",
		true, 3.0, 100, nil, 0.0, nil, false, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM tracked_links WHERE owner_id").
		WithArgs("owner-1").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT retailer, category, rate FROM retailer_rates").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectExec("UPDATE audit_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	run, started, err := e.Start(context.Background(), "owner-1", domain.RunFull, true)
	assert.NoError(t, err)
	assert.True(t, started)

	e.Shutdown()

	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Contains(t, run.FailReason, "cancelled")
	assert.True(t, lease.wasReleased())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeepLockAlive(t *testing.T) {
	lease := &fakeLease{}
	e := testEngine()
	e.cfg.LockTTL = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.keepLockAlive(ctx, lease)
		close(done)
	}()

	time.Sleep(120 * time.Millisecond)
	cancel()
	<-done

	assert.GreaterOrEqual(t, lease.refreshCount(), 1)
}

func TestKeepLockAlive_NoTTLIsANoOp(t *testing.T) {
	e := testEngine()
	e.cfg.LockTTL = 0

	done := make(chan struct{})
	go func() {
		e.keepLockAlive(context.Background(), &fakeLease{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepLockAlive should return immediately without a TTL")
	}
}
