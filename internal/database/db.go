package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type Database struct {
	db  *sql.DB
	log *zap.Logger
}

func NewDatabase(ctx context.Context, connStr string, log *zap.Logger) (*Database, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}
	return &Database{db: db, log: log.Named("db")}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	pool_id       NUMERIC(78, 0) PRIMARY KEY,
	total_players NUMERIC(78, 0) NOT NULL,
	base_amount   NUMERIC(78, 0) NOT NULL,
	start_time    BIGINT NOT NULL,
	end_time      BIGINT NOT NULL,
	result        SMALLINT,
	created_tx    TEXT NOT NULL,
	result_tx     TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	resolved_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS bets (
	pool_id      NUMERIC(78, 0) NOT NULL,
	user_address TEXT NOT NULL,
	amount       NUMERIC(78, 0) NOT NULL,
	target       SMALLINT NOT NULL,
	tx_hash      TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (pool_id, user_address)
);

CREATE TABLE IF NOT EXISTS claims (
	pool_id      NUMERIC(78, 0) NOT NULL,
	user_address TEXT NOT NULL,
	reward       NUMERIC(78, 0) NOT NULL,
	points       BIGINT NOT NULL,
	tx_hash      TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (pool_id, user_address)
);

CREATE INDEX IF NOT EXISTS bets_user_created_idx ON bets (user_address, created_at DESC);
CREATE INDEX IF NOT EXISTS claims_user_created_idx ON claims (user_address, created_at DESC);
`

// Migrate creates the tables if they do not exist.
func (d *Database) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	d.log.Info("schema up to date")
	return nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.db.Close()
}
