package actions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/linkhealth/internal/domain"
	"github.com/jonesrussell/linkhealth/internal/logger"
	"github.com/jonesrussell/linkhealth/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := storage.NewStore(db, logger.NewNop())
	return NewManager(store, logger.NewNop()), mock
}

func recommendationRow(status string, switchedTo any) *sqlmock.Rows {
	var disposedAt any
	if status != "pending" {
		disposedAt = time.Now().UTC()
	}
	return sqlmock.NewRows([]string{
		"id", "owner_id", "link_id", "status", "issue_id", "opportunity_id",
		"title", "switched_to", "created_at", "disposed_at",
	}).AddRow(
		"rec-1", "owner-1", "link-1", status, "issue-1", nil,
		"Fix broken link", switchedTo, time.Now().UTC(), disposedAt,
	)
}

func TestFromIssue_TitlesByType(t *testing.T) {
	tests := []struct {
		issueType domain.IssueType
		want      string
	}{
		{domain.IssueBrokenLink, "Fix broken link"},
		{domain.IssueStockOut, "Replace out-of-stock product"},
		{domain.IssueUntagged, "Restore missing affiliate tag"},
		{domain.IssueDestinationDrift, "Review redirected destination"},
		{domain.IssueType("mystery"), "Review link issue"},
	}

	for _, tt := range tests {
		t.Run(string(tt.issueType), func(t *testing.T) {
			mgr, mock := newTestManager(t)
			mock.ExpectExec("INSERT INTO recommendations").
				WillReturnResult(sqlmock.NewResult(0, 1))

			rec, err := mgr.FromIssue(context.Background(), &domain.Issue{
				ID:      "issue-1",
				OwnerID: "owner-1",
				LinkID:  "link-1",
				Type:    tt.issueType,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Title)
			assert.Equal(t, domain.ActionPending, rec.Status)
			require.NotNil(t, rec.IssueID)
			assert.Equal(t, "issue-1", *rec.IssueID)
		})
	}
}

func TestFromOpportunity_Title(t *testing.T) {
	mgr, mock := newTestManager(t)
	mock.ExpectExec("INSERT INTO recommendations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := mgr.FromOpportunity(context.Background(), &domain.CommissionOpportunity{
		ID:                "opp-1",
		OwnerID:           "owner-1",
		LinkID:            "link-1",
		CurrentRetailer:   "amazon",
		SuggestedRetailer: "target",
		CurrentRate:       3.0,
		SuggestedRate:     8.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "Switch amazon to target (8.0% vs 3.0%)", rec.Title)
}

func TestDismiss_PendingRecommendation(t *testing.T) {
	mgr, mock := newTestManager(t)

	mock.ExpectExec("UPDATE recommendations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM recommendations WHERE id").
		WillReturnRows(recommendationRow("dismissed", nil))

	rec, err := mgr.Dismiss(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionDismissed, rec.Status)
	assert.NotNil(t, rec.DisposedAt)
}

func TestDispose_RepeatIsIdempotent(t *testing.T) {
	mgr, mock := newTestManager(t)

	// The guarded UPDATE matches nothing because the card is no longer
	// pending, but the card already holds the requested status.
	mock.ExpectExec("UPDATE recommendations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM recommendations WHERE id").
		WillReturnRows(recommendationRow("saved", nil))

	rec, err := mgr.Save(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSaved, rec.Status)
}

func TestDispose_CrossTerminalConflict(t *testing.T) {
	mgr, mock := newTestManager(t)

	mock.ExpectExec("UPDATE recommendations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM recommendations WHERE id").
		WillReturnRows(recommendationRow("applied", "target"))

	_, err := mgr.Dismiss(context.Background(), "rec-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Contains(t, err.Error(), "already applied")
}

func TestApply_ExplicitSwitchedTo(t *testing.T) {
	mgr, mock := newTestManager(t)

	mock.ExpectExec("UPDATE recommendations").
		WithArgs("rec-1", "applied", sql.NullString{String: "walmart", Valid: true}, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM recommendations WHERE id").
		WillReturnRows(recommendationRow("applied", "walmart"))

	rec, err := mgr.Apply(context.Background(), "rec-1", "walmart")
	require.NoError(t, err)
	require.NotNil(t, rec.SwitchedTo)
	assert.Equal(t, "walmart", *rec.SwitchedTo)
}

func TestApply_DefaultsToSuggestedRetailer(t *testing.T) {
	mgr, mock := newTestManager(t)
	now := time.Now().UTC()

	// Card lookup resolves the linked opportunity before disposing.
	mock.ExpectQuery("SELECT (.+) FROM recommendations WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "owner_id", "link_id", "status", "issue_id", "opportunity_id",
			"title", "switched_to", "created_at", "disposed_at",
		}).AddRow(
			"rec-1", "owner-1", "link-1", "pending", nil, "opp-1",
			"Switch amazon to target (8.0% vs 3.0%)", nil, now, nil,
		))
	mock.ExpectQuery("SELECT (.+) FROM commission_opportunities WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "link_id", "owner_id", "current_retailer", "current_rate",
			"suggested_retailer", "suggested_rate", "category", "monthly_gain",
			"reasoning", "active", "created_at",
		}).AddRow(
			"opp-1", "link-1", "owner-1", "amazon", 3.0,
			"target", 8.0, "fashion", 30.0, "", true, now,
		))
	mock.ExpectExec("UPDATE recommendations").
		WithArgs("rec-1", "applied", sql.NullString{String: "target", Valid: true}, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM recommendations WHERE id").
		WillReturnRows(recommendationRow("applied", "target"))

	rec, err := mgr.Apply(context.Background(), "rec-1", "")
	require.NoError(t, err)
	require.NotNil(t, rec.SwitchedTo)
	assert.Equal(t, "target", *rec.SwitchedTo)
}
