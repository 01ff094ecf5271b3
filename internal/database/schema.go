package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TableName is the price table.
const TableName = "stock_data"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS stock_data (
		id          BIGSERIAL PRIMARY KEY,
		symbol      VARCHAR(10) NOT NULL,
		timestamp   TIMESTAMPTZ NOT NULL,
		open_price  NUMERIC(10,4),
		high_price  NUMERIC(10,4),
		low_price   NUMERIC(10,4),
		close_price NUMERIC(10,4),
		volume      BIGINT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (symbol, timestamp)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_data_symbol ON stock_data (symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_data_timestamp ON stock_data (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_data_created_at ON stock_data (created_at)`,
}

// EnsureSchema creates the price table and its indexes if missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
