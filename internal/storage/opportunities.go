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

const opportunityColumns = `
	id, link_id, owner_id, current_retailer, current_rate,
	suggested_retailer, suggested_rate, category, monthly_gain,
	reasoning, active, created_at
`

// replaceOpportunity deactivates a link's prior opportunity and, when a new
// one was found, inserts it. Old rows stay for history; only one row per
// link is active at a time.
func replaceOpportunity(ctx context.Context, tx *sql.Tx, linkID string, opp *domain.CommissionOpportunity) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE commission_opportunities SET active = FALSE WHERE link_id = $1 AND active`,
		linkID,
	)
	if err != nil {
		return fmt.Errorf("supersede opportunity: %w", err)
	}

	if opp == nil {
		return nil
	}

	if opp.ID == "" {
		opp.ID = uuid.New().String()
	}
	opp.Active = true
	opp.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO commission_opportunities (` + opportunityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.ExecContext(ctx, query,
		opp.ID, opp.LinkID, opp.OwnerID,
		opp.CurrentRetailer, opp.CurrentRate,
		opp.SuggestedRetailer, opp.SuggestedRate,
		opp.Category, opp.MonthlyGain, opp.Reasoning,
		opp.Active, opp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}
	return nil
}

// ListActiveOpportunities returns an owner's live opportunities, highest
// estimated gain first.
func (s *Store) ListActiveOpportunities(ctx context.Context, ownerID string) ([]domain.CommissionOpportunity, error) {
	query := `
		SELECT ` + opportunityColumns + `
		FROM commission_opportunities
		WHERE owner_id = $1 AND active
		ORDER BY monthly_gain DESC, created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.CommissionOpportunity
	for rows.Next() {
		opp, scanErr := scanOpportunity(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		opps = append(opps, *opp)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate opportunities: %w", rowsErr)
	}
	return opps, nil
}

// GetOpportunity fetches one opportunity by id.
func (s *Store) GetOpportunity(ctx context.Context, id string) (*domain.CommissionOpportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM commission_opportunities WHERE id = $1`
	opp, err := scanOpportunity(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return opp, nil
}

func scanOpportunity(row rowScanner) (*domain.CommissionOpportunity, error) {
	var opp domain.CommissionOpportunity

	err := row.Scan(
		&opp.ID, &opp.LinkID, &opp.OwnerID,
		&opp.CurrentRetailer, &opp.CurrentRate,
		&opp.SuggestedRetailer, &opp.SuggestedRate,
		&opp.Category, &opp.MonthlyGain, &opp.Reasoning,
		&opp.Active, &opp.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("opportunity: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan opportunity: %w", err)
	}
	return &opp, nil
}
