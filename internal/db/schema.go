package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/hrp-allocator/internal/logger"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS prices (
		date      DATE             NOT NULL,
		ticker    TEXT             NOT NULL,
		adj_close DOUBLE PRECISION NOT NULL CHECK (adj_close > 0),
		PRIMARY KEY (date, ticker)
	)`,
	`CREATE INDEX IF NOT EXISTS prices_ticker_idx ON prices (ticker, date)`,
	`CREATE TABLE IF NOT EXISTS allocations (
		date         DATE        PRIMARY KEY,
		weights_json JSONB       NOT NULL,
		metrics_json JSONB       NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the prices and allocations tables when they do not exist.
func Migrate(ctx context.Context, p *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := p.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	logger.Info("[DB] Schema up to date (%d statements)", len(schema))
	return nil
}
