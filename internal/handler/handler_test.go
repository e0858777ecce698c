package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/linkhealth/internal/actions"
	"github.com/jonesrussell/linkhealth/internal/logger"
	"github.com/jonesrussell/linkhealth/internal/storage"
)

func newTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.NewNop()
	store := storage.NewStore(db, log)
	h := New(nil, store, actions.NewManager(store, log), nil, log)

	router := gin.New()
	h.Register(router, nil)
	return router, mock
}

func doRequest(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListIssues_RequiresOwner(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/v1/issues", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "owner_id is required")
}

func TestListIssues_OK(t *testing.T) {
	router, mock := newTestRouter(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM issues WHERE owner_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "link_id", "owner_id", "type", "severity", "status",
			"description", "revenue_impact", "detected_at", "last_seen_at",
			"resolved_at",
		}).AddRow(
			"issue-1", "link-1", "owner-1", "broken_link", "critical",
			"open", "final status 404", 120.0, now, now, nil,
		))

	rec := doRequest(router, http.MethodGet, "/api/v1/issues?owner_id=owner-1&severity=critical", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "broken_link")
	assert.Contains(t, rec.Body.String(), "final status 404")
}

func TestCreateLink_MissingURL(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/api/v1/links", `{"owner_id":"owner-1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateIssue_InvalidTransition(t *testing.T) {
	router, mock := newTestRouter(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM issues WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "link_id", "owner_id", "type", "severity", "status",
			"description", "revenue_impact", "detected_at", "last_seen_at",
			"resolved_at",
		}).AddRow(
			"issue-1", "link-1", "owner-1", "broken_link", "critical",
			"resolved", "", nil, now, now, now,
		))

	rec := doRequest(router, http.MethodPatch, "/api/v1/issues/issue-1", `{"status":"open"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateIssue_NotFound(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM issues WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "link_id", "owner_id", "type", "severity", "status",
			"description", "revenue_impact", "detected_at", "last_seen_at",
			"resolved_at",
		}))

	rec := doRequest(router, http.MethodPatch, "/api/v1/issues/missing", `{"status":"resolved"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetScore_NoSnapshotYet(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM score_snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := doRequest(router, http.MethodGet, "/api/v1/score?owner_id=owner-1", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no audit has produced a score yet")
}

func TestListLinkTraces_UnknownLink(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM tracked_links WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := doRequest(router, http.MethodGet, "/api/v1/links/missing/traces", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDismissRecommendation_Conflict(t *testing.T) {
	router, mock := newTestRouter(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE recommendations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM recommendations WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "owner_id", "link_id", "status", "issue_id", "opportunity_id",
			"title", "switched_to", "created_at", "disposed_at",
		}).AddRow(
			"rec-1", "owner-1", "link-1", "applied", nil, "opp-1",
			"Switch amazon to target (8.0% vs 3.0%)", "target", now, now,
		))

	rec := doRequest(router, http.MethodPost, "/api/v1/recommendations/rec-1/dismiss", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
}
