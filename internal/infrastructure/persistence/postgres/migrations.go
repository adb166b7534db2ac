package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Rule records are stored exactly as the merchant configured them, one JSONB
// document per record, grouped by rule kind. Normalization happens on read so
// legacy alias fields survive round-trips untouched.
const migration001Up = `
CREATE TABLE IF NOT EXISTS rule_records (
    id          BIGSERIAL PRIMARY KEY,
    shop        TEXT        NOT NULL,
    kind        TEXT        NOT NULL,
    position    INT         NOT NULL DEFAULT 0,
    record      JSONB       NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_rule_records_shop_kind
    ON rule_records (shop, kind, position);

CREATE TABLE IF NOT EXISTS fallback_messages (
    id          BIGSERIAL PRIMARY KEY,
    shop        TEXT        NOT NULL,
    position    INT         NOT NULL DEFAULT 0,
    message     TEXT        NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_fallback_messages_shop
    ON fallback_messages (shop, position);
`

// Migrate applies all migrations in order.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{migration001Up}
	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("%w: migration %d: %v", ErrMigrationFailed, i+1, err)
		}
	}
	return nil
}
