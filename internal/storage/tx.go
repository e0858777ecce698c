package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/linkhealth/internal/domain"
	"github.com/jonesrussell/linkhealth/internal/logger"
)

// LinkResult bundles everything one audit pass produced for a single link.
type LinkResult struct {
	Link        *domain.TrackedLink
	Trace       *domain.Trace
	Drafts      []domain.IssueDraft
	Opportunity *domain.CommissionOpportunity
}

// LinkOutcome reports what ApplyLinkResult changed.
type LinkOutcome struct {
	IssuesOpened     int
	IssuesResolved   int
	OpportunityFound bool
	// CreatedIssues are the issues newly opened by this pass, for
	// recommendation fan-out.
	CreatedIssues []domain.Issue
}

// ApplyLinkResult writes one link's audit outcome in a single transaction:
// trace append, link refresh, issue upserts and resolutions, opportunity
// replacement. Either the whole write lands or the link stays untouched
// and is retried on the next run.
func (s *Store) ApplyLinkResult(ctx context.Context, result *LinkResult) (*LinkOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin link result tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback link result tx", logger.Error(rbErr))
		}
	}()

	if err = insertTrace(ctx, tx, result.Trace); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE tracked_links
		SET final_url = $2, last_checked_at = $3, stale = FALSE, updated_at = $3
		WHERE id = $1
	`, result.Link.ID, nullString(result.Trace.FinalURL), now)
	if err != nil {
		return nil, fmt.Errorf("refresh tracked link: %w", err)
	}

	outcome := &LinkOutcome{}
	presentTypes := make([]domain.IssueType, 0, len(result.Drafts))
	for _, draft := range result.Drafts {
		issue := &domain.Issue{
			LinkID:        result.Link.ID,
			OwnerID:       result.Link.OwnerID,
			Type:          draft.Type,
			Severity:      draft.Severity,
			Description:   draft.Description,
			RevenueImpact: draft.RevenueImpact,
		}
		created, upsertErr := upsertOpenIssue(ctx, tx, issue)
		if upsertErr != nil {
			return nil, upsertErr
		}
		if created {
			outcome.IssuesOpened++
			outcome.CreatedIssues = append(outcome.CreatedIssues, *issue)
		}
		presentTypes = append(presentTypes, draft.Type)
	}

	resolved, err := resolveAbsentIssues(ctx, tx, result.Link.ID, presentTypes)
	if err != nil {
		return nil, err
	}
	outcome.IssuesResolved = resolved

	if err = replaceOpportunity(ctx, tx, result.Link.ID, result.Opportunity); err != nil {
		return nil, err
	}
	outcome.OpportunityFound = result.Opportunity != nil

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit link result tx: %w", err)
	}

	result.Link.FinalURL = result.Trace.FinalURL
	result.Link.LastCheckedAt = &now
	result.Link.Stale = false
	return outcome, nil
}

// MarkLinkStale flags a link whose audit pass could not be persisted so the
// next run picks it up again.
func (s *Store) MarkLinkStale(ctx context.Context, linkID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stale tx: %w", err)
	}
	if err = markLinkStale(ctx, tx, linkID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit stale tx: %w", err)
	}
	return nil
}
