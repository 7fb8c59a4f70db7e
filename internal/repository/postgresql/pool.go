package postgresql

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS podcasts (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	url TEXT UNIQUE NOT NULL,
	title TEXT,
	audio_filename TEXT,
	status TEXT NOT NULL DEFAULT 'queued',
	created_at TIMESTAMP DEFAULT NOW(),
	started_at TIMESTAMP,
	completed_at TIMESTAMP,
	duration INTEGER,
	error_message TEXT,
	retry_count INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_podcasts_url ON podcasts (url);
CREATE INDEX IF NOT EXISTS idx_podcasts_status ON podcasts (status);
CREATE INDEX IF NOT EXISTS idx_podcasts_created_at ON podcasts (created_at DESC);
`

// Migrate creates the podcasts table and its indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
