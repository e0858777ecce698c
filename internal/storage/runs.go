package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonesrussell/linkhealth/internal/domain"
)

const runColumns = `
	id, owner_id, type, status, force_run, started_at, completed_at,
	summary, fail_reason, next_scheduled_at
`

// CreateRun records the start of an audit run.
func (s *Store) CreateRun(ctx context.Context, run *domain.AuditRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.Status = domain.RunRunning
	run.StartedAt = time.Now().UTC()

	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	query := `
		INSERT INTO audit_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, $7, '', NULL)
	`
	_, err = s.db.ExecContext(ctx, query,
		run.ID, run.OwnerID, string(run.Type), string(run.Status),
		run.Force, run.StartedAt, summaryJSON,
	)
	if err != nil {
		return fmt.Errorf("insert audit run: %w", err)
	}
	return nil
}

// CompleteRun marks a running audit completed with its final summary.
func (s *Store) CompleteRun(ctx context.Context, run *domain.AuditRun) error {
	return s.finishRun(ctx, run, domain.RunCompleted, "")
}

// FailRun marks a running audit failed, keeping the partial summary.
func (s *Store) FailRun(ctx context.Context, run *domain.AuditRun, reason string) error {
	return s.finishRun(ctx, run, domain.RunFailed, reason)
}

// finishRun completes a run exactly once; the status guard makes the
// terminal write idempotent against a racing cancellation.
func (s *Store) finishRun(ctx context.Context, run *domain.AuditRun, status domain.RunStatus, reason string) error {
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE audit_runs
		SET status = $2, completed_at = $3, summary = $4, fail_reason = $5,
			next_scheduled_at = $6
		WHERE id = $1 AND status = 'running'
	`, run.ID, string(status), now, summaryJSON, reason,
		nullTime(run.NextScheduledAt))
	if err != nil {
		return fmt.Errorf("finish audit run: %w", err)
	}

	run.Status = status
	run.CompletedAt = &now
	run.FailReason = reason
	return nil
}

// GetRun fetches one audit run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*domain.AuditRun, error) {
	query := `SELECT ` + runColumns + ` FROM audit_runs WHERE id = $1`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRunsByOwner returns an owner's audit runs, newest first.
func (s *Store) ListRunsByOwner(ctx context.Context, ownerID string, limit int) ([]domain.AuditRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM audit_runs
		WHERE owner_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.AuditRun
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, *run)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate audit runs: %w", rowsErr)
	}
	return runs, nil
}

// LastCompletedRun returns an owner's most recent completed run, or
// ErrNotFound if they have none. The orchestrator uses this for the
// minimum-interval guard.
func (s *Store) LastCompletedRun(ctx context.Context, ownerID string) (*domain.AuditRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM audit_runs
		WHERE owner_id = $1 AND status = 'completed'
		ORDER BY completed_at DESC
		LIMIT 1
	`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, ownerID))
	if err != nil {
		return nil, err
	}
	return run, nil
}

func scanRun(row rowScanner) (*domain.AuditRun, error) {
	var run domain.AuditRun
	var runType, status string
	var completedAt, nextScheduledAt sql.NullTime
	var summaryJSON []byte

	err := row.Scan(
		&run.ID, &run.OwnerID, &runType, &status, &run.Force,
		&run.StartedAt, &completedAt, &summaryJSON,
		&run.FailReason, &nextScheduledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit run: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan audit run: %w", err)
	}

	run.Type = domain.RunType(runType)
	run.Status = domain.RunStatus(status)
	if len(summaryJSON) > 0 {
		if unmarshalErr := json.Unmarshal(summaryJSON, &run.Summary); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal run summary: %w", unmarshalErr)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if nextScheduledAt.Valid {
		t := nextScheduledAt.Time
		run.NextScheduledAt = &t
	}
	return &run, nil
}
