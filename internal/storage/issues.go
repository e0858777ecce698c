package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonesrussell/linkhealth/internal/domain"
)

// ErrInvalidTransition is returned for a disallowed issue status change.
var ErrInvalidTransition = errors.New("invalid issue status transition")

const issueColumns = `
	id, link_id, owner_id, type, severity, status, description,
	revenue_impact, detected_at, last_seen_at, resolved_at
`

// upsertOpenIssue enforces the deduplication invariant inside a
// transaction: re-detection of an unchanged condition updates the single
// open issue for (link, type) instead of creating a duplicate.
func upsertOpenIssue(ctx context.Context, tx *sql.Tx, issue *domain.Issue) (created bool, err error) {
	now := time.Now().UTC()

	result, err := tx.ExecContext(ctx, `
		UPDATE issues
		SET severity = $3, description = $4, revenue_impact = $5, last_seen_at = $6
		WHERE link_id = $1 AND type = $2 AND status = 'open'
	`, issue.LinkID, string(issue.Type), string(issue.Severity),
		issue.Description, nullFloat(issue.RevenueImpact), now)
	if err != nil {
		return false, fmt.Errorf("refresh open issue: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("refresh open issue rows: %w", err)
	}
	if affected > 0 {
		return false, nil
	}

	issue.ID = uuid.New().String()
	issue.Status = domain.IssueOpen
	issue.DetectedAt = now
	issue.LastSeenAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO issues (`+issueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL)
	`, issue.ID, issue.LinkID, issue.OwnerID, string(issue.Type),
		string(issue.Severity), string(issue.Status), issue.Description,
		nullFloat(issue.RevenueImpact), issue.DetectedAt, issue.LastSeenAt)
	if err != nil {
		return false, fmt.Errorf("insert issue: %w", err)
	}
	return true, nil
}

// resolveAbsentIssues closes open issues on a link whose condition was not
// re-detected in the latest pass.
func resolveAbsentIssues(ctx context.Context, tx *sql.Tx, linkID string, presentTypes []domain.IssueType) (int, error) {
	types := make([]string, len(presentTypes))
	for i, t := range presentTypes {
		types[i] = string(t)
	}

	now := time.Now().UTC()
	query := `
		UPDATE issues
		SET status = 'resolved', resolved_at = $2
		WHERE link_id = $1 AND status = 'open'
	`
	args := []any{linkID, now}
	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = fmt.Sprintf("$%d", i+3)
			args = append(args, t)
		}
		query += ` AND type NOT IN (` + strings.Join(placeholders, ", ") + `)`
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("resolve absent issues: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("resolve absent issues rows: %w", err)
	}
	return int(affected), nil
}

// IssueFilter narrows and orders ListIssues results.
type IssueFilter struct {
	Severity domain.Severity
	Status   domain.IssueStatus
	// SortBy is one of severity, impact, detected_at (default).
	SortBy string
}

// ListIssues returns an owner's issues, filtered and sorted for display.
func (s *Store) ListIssues(ctx context.Context, ownerID string, filter IssueFilter) ([]domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE owner_id = $1`
	args := []any{ownerID}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}

	// Sort columns are whitelisted; nothing user-supplied is spliced in.
	switch filter.SortBy {
	case "severity":
		query += ` ORDER BY CASE severity
			WHEN 'critical' THEN 3 WHEN 'warning' THEN 2 ELSE 1 END DESC,
			detected_at DESC`
	case "impact":
		query += ` ORDER BY revenue_impact DESC NULLS LAST, detected_at DESC`
	default:
		query += ` ORDER BY detected_at DESC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var issues []domain.Issue
	for rows.Next() {
		issue, scanErr := scanIssue(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		issues = append(issues, *issue)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate issues: %w", rowsErr)
	}
	return issues, nil
}

// ListOpenIssuesByOwner returns all open issues for scoring.
func (s *Store) ListOpenIssuesByOwner(ctx context.Context, ownerID string) ([]domain.Issue, error) {
	return s.ListIssues(ctx, ownerID, IssueFilter{Status: domain.IssueOpen})
}

// GetIssue fetches one issue by id.
func (s *Store) GetIssue(ctx context.Context, id string) (*domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = $1`
	issue, err := scanIssue(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// issueTransitions lists the allowed one-way status moves.
var issueTransitions = map[domain.IssueStatus][]domain.IssueStatus{
	domain.IssueOpen: {
		domain.IssueAcknowledged, domain.IssueResolved,
		domain.IssueFalsePositive, domain.IssueWontFix,
	},
	domain.IssueAcknowledged: {
		domain.IssueResolved, domain.IssueFalsePositive, domain.IssueWontFix,
	},
}

// UpdateIssueStatus applies a user disposition to an issue. Repeating the
// current status is a no-op; any other disallowed move is rejected.
func (s *Store) UpdateIssueStatus(ctx context.Context, id string, status domain.IssueStatus) (*domain.Issue, error) {
	issue, err := s.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}

	if issue.Status == status {
		return issue, nil
	}
	if !transitionAllowed(issue.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, issue.Status, status)
	}

	now := time.Now().UTC()
	var resolvedAt sql.NullTime
	if status == domain.IssueResolved || status == domain.IssueFalsePositive || status == domain.IssueWontFix {
		resolvedAt = sql.NullTime{Time: now, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE issues SET status = $2, resolved_at = COALESCE($3, resolved_at) WHERE id = $1
	`, id, string(status), resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("update issue status: %w", err)
	}

	issue.Status = status
	if resolvedAt.Valid {
		issue.ResolvedAt = &now
	}
	return issue, nil
}

func transitionAllowed(from, to domain.IssueStatus) bool {
	for _, allowed := range issueTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func scanIssue(row rowScanner) (*domain.Issue, error) {
	var issue domain.Issue
	var issueType, severity, status string
	var impact sql.NullFloat64
	var resolvedAt sql.NullTime

	err := row.Scan(
		&issue.ID, &issue.LinkID, &issue.OwnerID, &issueType,
		&severity, &status, &issue.Description, &impact,
		&issue.DetectedAt, &issue.LastSeenAt, &resolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan issue: %w", err)
	}

	issue.Type = domain.IssueType(issueType)
	issue.Severity = domain.Severity(severity)
	issue.Status = domain.IssueStatus(status)
	if impact.Valid {
		v := impact.Float64
		issue.RevenueImpact = &v
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		issue.ResolvedAt = &t
	}
	return &issue, nil
}
