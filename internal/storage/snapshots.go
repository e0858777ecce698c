package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonesrussell/linkhealth/internal/domain"
)

const snapshotColumns = `
	id, owner_id, score, healthy_sub_score, critical_penalty, broken_penalty,
	total_links, healthy_links, broken_links, stock_out_links, untagged_links,
	critical_issues, warning_issues, info_issues,
	trend, score_delta, monthly_loss, monthly_loss_basis, created_at
`

// InsertSnapshot appends a score snapshot. Snapshots are never updated;
// the series is the audit trail.
func (s *Store) InsertSnapshot(ctx context.Context, snap *domain.HealthScoreSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO score_snapshots (` + snapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := s.db.ExecContext(ctx, query,
		snap.ID, snap.OwnerID, snap.Score,
		snap.HealthySubScore, snap.CriticalPenalty, snap.BrokenPenalty,
		snap.TotalLinks, snap.HealthyLinks, snap.BrokenLinks,
		snap.StockOutLinks, snap.UntaggedLinks,
		snap.CriticalIssues, snap.WarningIssues, snap.InfoIssues,
		string(snap.Trend), snap.ScoreDelta,
		snap.MonthlyLoss, string(snap.MonthlyLossBasis), snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert score snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot for an owner.
func (s *Store) LatestSnapshot(ctx context.Context, ownerID string) (*domain.HealthScoreSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM score_snapshots
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, query, ownerID))
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// SnapshotHistory returns an owner's snapshots, oldest first, capped at limit.
func (s *Store) SnapshotHistory(ctx context.Context, ownerID string, limit int) ([]domain.HealthScoreSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + ` FROM (
			SELECT ` + snapshotColumns + `
			FROM score_snapshots
			WHERE owner_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query score snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.HealthScoreSnapshot
	for rows.Next() {
		snap, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snaps = append(snaps, *snap)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate score snapshots: %w", rowsErr)
	}
	return snaps, nil
}

func scanSnapshot(row rowScanner) (*domain.HealthScoreSnapshot, error) {
	var snap domain.HealthScoreSnapshot
	var trend, basis string

	err := row.Scan(
		&snap.ID, &snap.OwnerID, &snap.Score,
		&snap.HealthySubScore, &snap.CriticalPenalty, &snap.BrokenPenalty,
		&snap.TotalLinks, &snap.HealthyLinks, &snap.BrokenLinks,
		&snap.StockOutLinks, &snap.UntaggedLinks,
		&snap.CriticalIssues, &snap.WarningIssues, &snap.InfoIssues,
		&trend, &snap.ScoreDelta,
		&snap.MonthlyLoss, &basis, &snap.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("score snapshot: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan score snapshot: %w", err)
	}

	snap.Trend = domain.Trend(trend)
	snap.MonthlyLossBasis = domain.LossBasis(basis)
	return &snap, nil
}
