package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// candleChunkInterval is one day in microseconds.
const candleChunkInterval int64 = 86_400_000_000

// SchemaStatements creates the candles hypertable. Every statement is idempotent.
var SchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS candles (
		active_id   INTEGER NOT NULL,
		size        INTEGER NOT NULL,
		from_ts     BIGINT  NOT NULL,
		to_ts       BIGINT  NOT NULL,
		candle_id   BIGINT  NOT NULL,
		open        NUMERIC NOT NULL,
		close       NUMERIC NOT NULL,
		min         NUMERIC NOT NULL,
		max         NUMERIC NOT NULL,
		volume      NUMERIC NOT NULL,
		received_at BIGINT  NOT NULL,
		PRIMARY KEY (active_id, size, from_ts)
	)`,
	fmt.Sprintf(`SELECT create_hypertable('candles', 'from_ts',
		chunk_time_interval => %d, if_not_exists => TRUE)`, candleChunkInterval),
}

// EnsureSchema applies SchemaStatements in one transaction.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, stmt := range SchemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		return nil
	})
}
