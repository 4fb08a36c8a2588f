package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/takapay/takapay/internal/domain"
)

func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS holders (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	phone TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL DEFAULT 'USER',
	approved BOOLEAN NOT NULL DEFAULT FALSE,
	commission_rate NUMERIC(8,4) NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS wallets (
	holder_id UUID PRIMARY KEY REFERENCES holders(id),
	balance BIGINT NOT NULL DEFAULT 0,
	blocked BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS entries (
	id UUID PRIMARY KEY,
	account_id UUID NOT NULL REFERENCES wallets(holder_id),
	from_id UUID NOT NULL,
	to_id UUID NOT NULL,
	amount BIGINT NOT NULL CHECK (amount > 0),
	fee BIGINT NOT NULL DEFAULT 0,
	commission BIGINT NOT NULL DEFAULT 0,
	type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'COMPLETED',
	balance_before BIGINT NOT NULL,
	balance_after BIGINT NOT NULL,
	initiated_by UUID NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_entries_account_created ON entries (account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_entries_from ON entries (from_id);
CREATE INDEX IF NOT EXISTS idx_entries_to ON entries (to_id);
CREATE INDEX IF NOT EXISTS idx_entries_type_to ON entries (type, to_id);

CREATE TABLE IF NOT EXISTS payments (
	transaction_id TEXT PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES holders(id),
	amount BIGINT NOT NULL CHECK (amount > 0),
	status TEXT NOT NULL DEFAULT 'PENDING',
	gateway_data JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_payments_user_created ON payments (user_id, created_at DESC);

CREATE OR REPLACE FUNCTION reject_entry_mutation() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'ledger entries are append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS entries_append_only ON entries;
CREATE TRIGGER entries_append_only
	BEFORE UPDATE OR DELETE ON entries
	FOR EACH ROW EXECUTE FUNCTION reject_entry_mutation();
`

// Migrate creates the schema and seeds the platform float wallet. The entry
// log gets a trigger rejecting UPDATE and DELETE so append-only holds at the
// database too, not just in the Store API.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	seed := `
		INSERT INTO holders (id, name, phone, role, approved, commission_rate)
		VALUES ($1, 'platform float', 'system', 'ADMIN', TRUE, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := pool.Exec(ctx, seed, domain.SystemHolder()); err != nil {
		return fmt.Errorf("seed system holder: %w", err)
	}
	seedWallet := `
		INSERT INTO wallets (holder_id, balance, blocked)
		VALUES ($1, 0, FALSE)
		ON CONFLICT (holder_id) DO NOTHING;
	`
	if _, err := pool.Exec(ctx, seedWallet, domain.SystemHolder()); err != nil {
		return fmt.Errorf("seed system wallet: %w", err)
	}
	return nil
}
