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

const traceColumns = `
	id, link_id, steps, final_url, final_status, tag_present, confidence,
	unreachable, redirect_loop, notes, cookie_window_seconds, total_time_ms,
	checked_at
`

// insertTrace appends a trace inside an existing transaction. Traces are
// append-only; the newest row supersedes prior passes without mutating them.
func insertTrace(ctx context.Context, tx *sql.Tx, trace *domain.Trace) error {
	if trace.ID == "" {
		trace.ID = uuid.New().String()
	}

	stepsJSON, err := json.Marshal(trace.Steps)
	if err != nil {
		return fmt.Errorf("marshal trace steps: %w", err)
	}
	notesJSON, err := json.Marshal(trace.Notes)
	if err != nil {
		return fmt.Errorf("marshal trace notes: %w", err)
	}

	var cookieSeconds sql.NullInt64
	if trace.CookieWindow != nil {
		cookieSeconds = sql.NullInt64{Int64: int64(trace.CookieWindow.Seconds()), Valid: true}
	}

	query := `
		INSERT INTO traces (` + traceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = tx.ExecContext(ctx, query,
		trace.ID, trace.LinkID, stepsJSON,
		nullString(trace.FinalURL), trace.FinalStatus,
		trace.AffiliateTagPresent, string(trace.Confidence),
		trace.Unreachable, trace.RedirectLoop, notesJSON,
		cookieSeconds, trace.TotalTime.Milliseconds(), trace.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}
	return nil
}

// LatestTrace returns the most recent trace for a link.
func (s *Store) LatestTrace(ctx context.Context, linkID string) (*domain.Trace, error) {
	query := `
		SELECT ` + traceColumns + `
		FROM traces
		WHERE link_id = $1
		ORDER BY checked_at DESC
		LIMIT 1
	`
	trace, err := scanTrace(s.db.QueryRowContext(ctx, query, linkID))
	if err != nil {
		return nil, err
	}
	return trace, nil
}

// ListTraces returns a link's trace history, newest first. Prior passes
// stay addressable by their checked_at timestamp.
func (s *Store) ListTraces(ctx context.Context, linkID string, limit int) ([]domain.Trace, error) {
	query := `
		SELECT ` + traceColumns + `
		FROM traces
		WHERE link_id = $1
		ORDER BY checked_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, linkID, limit)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	var traces []domain.Trace
	for rows.Next() {
		trace, scanErr := scanTrace(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		traces = append(traces, *trace)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate traces: %w", rowsErr)
	}
	return traces, nil
}

func scanTrace(row rowScanner) (*domain.Trace, error) {
	var trace domain.Trace
	var stepsJSON, notesJSON []byte
	var finalURL sql.NullString
	var confidence string
	var cookieSeconds sql.NullInt64
	var totalTimeMs int64

	err := row.Scan(
		&trace.ID, &trace.LinkID, &stepsJSON, &finalURL,
		&trace.FinalStatus, &trace.AffiliateTagPresent, &confidence,
		&trace.Unreachable, &trace.RedirectLoop, &notesJSON,
		&cookieSeconds, &totalTimeMs, &trace.CheckedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trace: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan trace: %w", err)
	}

	if unmarshalErr := json.Unmarshal(stepsJSON, &trace.Steps); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal trace steps: %w", unmarshalErr)
	}
	if len(notesJSON) > 0 {
		if unmarshalErr := json.Unmarshal(notesJSON, &trace.Notes); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal trace notes: %w", unmarshalErr)
		}
	}

	if finalURL.Valid {
		trace.FinalURL = finalURL.String
	}
	trace.Confidence = domain.Confidence(confidence)
	if cookieSeconds.Valid {
		window := time.Duration(cookieSeconds.Int64) * time.Second
		trace.CookieWindow = &window
	}
	trace.TotalTime = time.Duration(totalTimeMs) * time.Millisecond
	return &trace, nil
}
