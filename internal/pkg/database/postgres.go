package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Database is the time-series store. Every field of a point is one row.
type Database struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Database, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	db := &Database{pool: pool}
	if err := db.initialise(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

func (db *Database) initialise(ctx context.Context) error {
	const createTablesSQL = `
CREATE TABLE IF NOT EXISTS device (
    tag_id TEXT PRIMARY KEY,
    name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS measurement_point (
    id BIGSERIAL PRIMARY KEY,
    time_stamp TIMESTAMP WITH TIME ZONE NOT NULL,
    measurement TEXT NOT NULL,
    tag_id TEXT NOT NULL,
    tag_name TEXT NOT NULL,
    field TEXT NOT NULL,
    value DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_measurement_point_tag_field ON measurement_point (tag_id, field);
CREATE INDEX IF NOT EXISTS idx_measurement_point_time_stamp ON measurement_point (time_stamp);
`
	_, err := db.pool.Exec(ctx, createTablesSQL)
	return err
}

func (db *Database) Close() error {
	if db.pool == nil {
		return nil
	}
	db.pool.Close()
	return nil
}
