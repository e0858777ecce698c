// Package scheduler triggers periodic audits for every owner with
// tracked links.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/linkhealth/internal/audit"
	"github.com/jonesrussell/linkhealth/internal/config"
	"github.com/jonesrussell/linkhealth/internal/domain"
	"github.com/jonesrussell/linkhealth/internal/logger"
	"github.com/jonesrussell/linkhealth/internal/storage"
)

// sweepTimeout bounds one scheduled fan-out over all owners. Individual
// runs keep executing past it; only the dispatch loop is bounded.
const sweepTimeout = 5 * time.Minute

// Scheduler runs cron-driven audits.
type Scheduler struct {
	cfg    config.SchedulerConfig
	engine *audit.Engine
	store  *storage.Store
	cron   *cron.Cron
	logger logger.Logger
}

// New creates a Scheduler. It does nothing until Start is called.
func New(cfg config.SchedulerConfig, engine *audit.Engine, store *storage.Store, log logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		engine: engine,
		store:  store,
		cron:   cron.New(),
		logger: log,
	}
}

// Start registers the cron entries and launches the scheduler loop.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("audit scheduler disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.FullAuditCron, func() {
		s.sweep(domain.RunFull)
	}); err != nil {
		return fmt.Errorf("register full audit cron: %w", err)
	}

	if _, err := s.cron.AddFunc(s.cfg.IncrementalCron, func() {
		s.sweep(domain.RunIncremental)
	}); err != nil {
		return fmt.Errorf("register incremental audit cron: %w", err)
	}

	s.cron.Start()
	s.logger.Info("audit scheduler started",
		logger.String("full_cron", s.cfg.FullAuditCron),
		logger.String("incremental_cron", s.cfg.IncrementalCron),
	)
	return nil
}

// Stop halts the cron loop and waits for jobs already dispatched.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// sweep starts one audit per owner. Owners already running or still
// inside the minimum interval are passed over without error.
func (s *Scheduler) sweep(runType domain.RunType) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	owners, err := s.store.ListOwners(ctx)
	if err != nil {
		s.logger.Error("scheduled sweep aborted", logger.Error(err))
		return
	}

	started := 0
	for _, owner := range owners {
		_, fresh, startErr := s.engine.Start(ctx, owner, runType, false)
		switch {
		case errors.Is(startErr, audit.ErrRunActive):
			continue
		case startErr != nil:
			s.logger.Warn("scheduled audit start failed",
				logger.String("owner_id", owner), logger.Error(startErr))
		case fresh:
			started++
		}
	}

	s.logger.Info("scheduled sweep dispatched",
		logger.String("type", string(runType)),
		logger.Int("owners", len(owners)),
		logger.Int("started", started),
	)
}
