package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/linkhealth/internal/domain"
	"github.com/jonesrussell/linkhealth/internal/logger"
)

const rateCacheKey = "linkhealth:rates"

// ListRates returns the full commission rate table from the database.
func (s *Store) ListRates(ctx context.Context) ([]domain.RetailerRate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT retailer, category, rate FROM retailer_rates ORDER BY retailer, category`)
	if err != nil {
		return nil, fmt.Errorf("query retailer rates: %w", err)
	}
	defer rows.Close()

	var rates []domain.RetailerRate
	for rows.Next() {
		var rate domain.RetailerRate
		if scanErr := rows.Scan(&rate.Retailer, &rate.Category, &rate.Rate); scanErr != nil {
			return nil, fmt.Errorf("scan retailer rate: %w", scanErr)
		}
		rates = append(rates, rate)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate retailer rates: %w", rowsErr)
	}
	return rates, nil
}

// ReplaceRates swaps the whole rate table in one transaction. Called by
// the refresh endpoint when a new table is ingested.
func (s *Store) ReplaceRates(ctx context.Context, rates []domain.RetailerRate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rates tx: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM retailer_rates`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear retailer rates: %w", err)
	}

	for _, rate := range rates {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO retailer_rates (retailer, category, rate) VALUES ($1, $2, $3)`,
			rate.Retailer, rate.Category, rate.Rate,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert retailer rate: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit rates tx: %w", err)
	}
	return nil
}

// RateCache fronts the rate table with a Redis TTL cache so audit runs do
// not hit the database per link. Cache failures degrade to the database.
type RateCache struct {
	store  *Store
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewRateCache creates a RateCache over a store and a Redis client.
func NewRateCache(store *Store, client *redis.Client, ttl time.Duration, log logger.Logger) *RateCache {
	return &RateCache{
		store:  store,
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

// Rates returns the rate table, served from cache when fresh.
func (c *RateCache) Rates(ctx context.Context) ([]domain.RetailerRate, error) {
	cached, err := c.client.Get(ctx, rateCacheKey).Bytes()
	if err == nil {
		var rates []domain.RetailerRate
		if unmarshalErr := json.Unmarshal(cached, &rates); unmarshalErr == nil {
			return rates, nil
		}
		c.logger.Warn("discarding malformed rate cache entry")
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("rate cache read failed", logger.Error(err))
	}

	rates, err := c.store.ListRates(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(rates)
	if err != nil {
		return nil, fmt.Errorf("marshal rate cache entry: %w", err)
	}
	if setErr := c.client.Set(ctx, rateCacheKey, payload, c.ttl).Err(); setErr != nil {
		c.logger.Warn("rate cache write failed", logger.Error(setErr))
	}
	return rates, nil
}

// Invalidate drops the cached table after a refresh.
func (c *RateCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, rateCacheKey).Err(); err != nil {
		return fmt.Errorf("invalidate rate cache: %w", err)
	}
	return nil
}
