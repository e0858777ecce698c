// Package actions manages the recommendation lifecycle: pending cards
// surfaced from issues and commission opportunities, disposed exactly once
// as saved, applied, or dismissed.
package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/linkhealth/internal/domain"
	"github.com/jonesrussell/linkhealth/internal/logger"
	"github.com/jonesrussell/linkhealth/internal/storage"
)

// ErrConflict is returned when a recommendation already holds a different
// terminal status than the one requested.
var ErrConflict = errors.New("recommendation already disposed")

// Manager coordinates recommendation creation and disposition.
type Manager struct {
	store  *storage.Store
	logger logger.Logger
}

// NewManager creates a Manager.
func NewManager(store *storage.Store, log logger.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: log,
	}
}

// FromIssue creates a pending recommendation card for an open issue.
func (m *Manager) FromIssue(ctx context.Context, issue *domain.Issue) (*domain.Recommendation, error) {
	rec := &domain.Recommendation{
		OwnerID: issue.OwnerID,
		LinkID:  issue.LinkID,
		IssueID: &issue.ID,
		Title:   issueTitle(issue),
	}
	if err := m.store.CreateRecommendation(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FromOpportunity creates a pending recommendation card for an active
// commission opportunity.
func (m *Manager) FromOpportunity(ctx context.Context, opp *domain.CommissionOpportunity) (*domain.Recommendation, error) {
	rec := &domain.Recommendation{
		OwnerID:       opp.OwnerID,
		LinkID:        opp.LinkID,
		OpportunityID: &opp.ID,
		Title: fmt.Sprintf("Switch %s to %s (%.1f%% vs %.1f%%)",
			opp.CurrentRetailer, opp.SuggestedRetailer,
			opp.SuggestedRate, opp.CurrentRate),
	}
	if err := m.store.CreateRecommendation(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Save marks a recommendation saved for later.
func (m *Manager) Save(ctx context.Context, id string) (*domain.Recommendation, error) {
	return m.dispose(ctx, id, domain.ActionSaved, nil)
}

// Apply marks a recommendation applied. For opportunity cards switchedTo
// records the program the user moved to; when empty it defaults to the
// opportunity's suggested retailer.
func (m *Manager) Apply(ctx context.Context, id, switchedTo string) (*domain.Recommendation, error) {
	if switchedTo == "" {
		rec, err := m.store.GetRecommendation(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec.OpportunityID != nil {
			opp, oppErr := m.store.GetOpportunity(ctx, *rec.OpportunityID)
			if oppErr != nil {
				return nil, oppErr
			}
			switchedTo = opp.SuggestedRetailer
		}
	}

	var switched *string
	if switchedTo != "" {
		switched = &switchedTo
	}
	return m.dispose(ctx, id, domain.ActionApplied, switched)
}

// Dismiss marks a recommendation dismissed.
func (m *Manager) Dismiss(ctx context.Context, id string) (*domain.Recommendation, error) {
	return m.dispose(ctx, id, domain.ActionDismissed, nil)
}

// Get fetches one recommendation.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Recommendation, error) {
	return m.store.GetRecommendation(ctx, id)
}

// List returns an owner's recommendations, optionally filtered by status.
func (m *Manager) List(ctx context.Context, ownerID string, status domain.ActionStatus) ([]domain.Recommendation, error) {
	return m.store.ListRecommendations(ctx, ownerID, status)
}

// dispose applies a terminal status. Repeating the status already held is
// a no-op; requesting a different terminal status is a conflict.
func (m *Manager) dispose(ctx context.Context, id string, status domain.ActionStatus, switchedTo *string) (*domain.Recommendation, error) {
	moved, err := m.store.DisposeRecommendation(ctx, id, status, switchedTo)
	if err != nil {
		return nil, err
	}

	rec, err := m.store.GetRecommendation(ctx, id)
	if err != nil {
		return nil, err
	}

	if !moved && rec.Status != status {
		return nil, fmt.Errorf("%w: already %s", ErrConflict, rec.Status)
	}
	if moved {
		m.logger.Info("recommendation disposed",
			logger.String("recommendation_id", id),
			logger.String("status", string(status)))
	}
	return rec, nil
}

func issueTitle(issue *domain.Issue) string {
	switch issue.Type {
	case domain.IssueBrokenLink:
		return "Fix broken link"
	case domain.IssueStockOut:
		return "Replace out-of-stock product"
	case domain.IssueUntagged:
		return "Restore missing affiliate tag"
	case domain.IssueDestinationDrift:
		return "Review redirected destination"
	case domain.IssueLowCommission:
		return "Review low commission rate"
	default:
		return "Review link issue"
	}
}
