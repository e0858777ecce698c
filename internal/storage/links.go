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

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const linkColumns = `
	id, owner_id, original_url, final_url, product_name, retailer,
	network, expected_host, monetized, commission_pct, monthly_clicks,
	declared_in_stock, price, last_checked_at, stale, created_at, updated_at
`

// CreateLink inserts a new tracked link.
func (s *Store) CreateLink(ctx context.Context, link *domain.TrackedLink) error {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	link.CreatedAt = now
	link.UpdatedAt = now

	query := `
		INSERT INTO tracked_links (` + linkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := s.db.ExecContext(ctx, query,
		link.ID, link.OwnerID, link.OriginalURL,
		nullString(link.FinalURL), link.ProductName, link.Retailer,
		link.Network, link.ExpectedHost, link.Monetized,
		link.CommissionPct, link.MonthlyClicks,
		nullBool(link.DeclaredInStock), link.Price,
		nullTime(link.LastCheckedAt), link.Stale,
		link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tracked link: %w", err)
	}
	return nil
}

// GetLink fetches one tracked link by id.
func (s *Store) GetLink(ctx context.Context, id string) (*domain.TrackedLink, error) {
	query := `SELECT ` + linkColumns + ` FROM tracked_links WHERE id = $1`
	link, err := scanLink(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return link, nil
}

// ListLinksByOwner returns all tracked links for one owner.
func (s *Store) ListLinksByOwner(ctx context.Context, ownerID string) ([]domain.TrackedLink, error) {
	query := `SELECT ` + linkColumns + ` FROM tracked_links WHERE owner_id = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query tracked links: %w", err)
	}
	defer rows.Close()

	var links []domain.TrackedLink
	for rows.Next() {
		link, scanErr := scanLink(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		links = append(links, *link)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate tracked links: %w", rowsErr)
	}
	return links, nil
}

// ListOwners returns the distinct owner ids with at least one tracked link.
// The scheduler fans scheduled audits out across this set.
func (s *Store) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM tracked_links ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if scanErr := rows.Scan(&owner); scanErr != nil {
			return nil, fmt.Errorf("scan owner: %w", scanErr)
		}
		owners = append(owners, owner)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate owners: %w", rowsErr)
	}
	return owners, nil
}

// markLinkStale flags a link whose audit pass failed without advancing
// last_checked_at, so the next run retries it.
func markLinkStale(ctx context.Context, tx *sql.Tx, linkID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE tracked_links SET stale = TRUE, updated_at = $2 WHERE id = $1`,
		linkID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark link stale: %w", err)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*domain.TrackedLink, error) {
	var link domain.TrackedLink
	var finalURL sql.NullString
	var declaredInStock sql.NullBool
	var lastCheckedAt sql.NullTime

	err := row.Scan(
		&link.ID, &link.OwnerID, &link.OriginalURL, &finalURL,
		&link.ProductName, &link.Retailer, &link.Network,
		&link.ExpectedHost, &link.Monetized, &link.CommissionPct,
		&link.MonthlyClicks, &declaredInStock, &link.Price,
		&lastCheckedAt, &link.Stale, &link.CreatedAt, &link.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tracked link: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan tracked link: %w", err)
	}

	if finalURL.Valid {
		link.FinalURL = finalURL.String
	}
	if declaredInStock.Valid {
		v := declaredInStock.Bool
		link.DeclaredInStock = &v
	}
	if lastCheckedAt.Valid {
		t := lastCheckedAt.Time
		link.LastCheckedAt = &t
	}
	return &link, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
