// Package storage implements the PostgreSQL link registry behind the
// audit engine: tracked links, traces, issues, score snapshots,
// opportunities, recommendations, and audit runs.
package storage

import (
	"database/sql"

	"github.com/jonesrussell/linkhealth/internal/logger"
)

// Store bundles all registry repositories over one database handle.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// NewStore creates a Store over an open database connection.
func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log,
	}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}
