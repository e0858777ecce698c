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

const recommendationColumns = `
	id, owner_id, link_id, status, issue_id, opportunity_id,
	title, switched_to, created_at, disposed_at
`

// CreateRecommendation inserts a pending recommendation card.
func (s *Store) CreateRecommendation(ctx context.Context, rec *domain.Recommendation) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.Status = domain.ActionPending
	rec.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO recommendations (` + recommendationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.LinkID, string(rec.Status),
		nullStringPtr(rec.IssueID), nullStringPtr(rec.OpportunityID),
		rec.Title, nullStringPtr(rec.SwitchedTo), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

// GetRecommendation fetches one recommendation by id.
func (s *Store) GetRecommendation(ctx context.Context, id string) (*domain.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + ` FROM recommendations WHERE id = $1`
	rec, err := scanRecommendation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecommendations returns an owner's recommendations, newest first,
// optionally restricted to one status.
func (s *Store) ListRecommendations(ctx context.Context, ownerID string, status domain.ActionStatus) ([]domain.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + ` FROM recommendations WHERE owner_id = $1`
	args := []any{ownerID}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []domain.Recommendation
	for rows.Next() {
		rec, scanErr := scanRecommendation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		recs = append(recs, *rec)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate recommendations: %w", rowsErr)
	}
	return recs, nil
}

// DisposeRecommendation records a terminal disposition. The guard on the
// current status makes the write safe under concurrent dispositions; zero
// rows affected means another disposition won.
func (s *Store) DisposeRecommendation(ctx context.Context, id string, status domain.ActionStatus, switchedTo *string) (bool, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE recommendations
		SET status = $2, switched_to = COALESCE($3, switched_to), disposed_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, string(status), nullStringPtr(switchedTo), now)
	if err != nil {
		return false, fmt.Errorf("dispose recommendation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dispose recommendation rows: %w", err)
	}
	return affected > 0, nil
}

func scanRecommendation(row rowScanner) (*domain.Recommendation, error) {
	var rec domain.Recommendation
	var status string
	var issueID, opportunityID, switchedTo sql.NullString
	var disposedAt sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.LinkID, &status,
		&issueID, &opportunityID, &rec.Title, &switchedTo,
		&rec.CreatedAt, &disposedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recommendation: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan recommendation: %w", err)
	}

	rec.Status = domain.ActionStatus(status)
	if issueID.Valid {
		v := issueID.String
		rec.IssueID = &v
	}
	if opportunityID.Valid {
		v := opportunityID.String
		rec.OpportunityID = &v
	}
	if switchedTo.Valid {
		v := switchedTo.String
		rec.SwitchedTo = &v
	}
	if disposedAt.Valid {
		t := disposedAt.Time
		rec.DisposedAt = &t
	}
	return &rec, nil
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
