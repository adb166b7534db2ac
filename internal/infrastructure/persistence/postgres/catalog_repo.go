package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepo reads merchant rule catalogs from PostgreSQL. Records are
// stored as raw JSONB exactly as configured; the engine normalizes on read,
// same as any other catalog source.
type CatalogRepo struct {
	pool   *pgxpool.Pool
	shop   string
	logger *slog.Logger
}

// NewCatalogRepo creates a catalog repository scoped to a single shop.
func NewCatalogRepo(pool *pgxpool.Pool, shop string, logger *slog.Logger) *CatalogRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogRepo{pool: pool, shop: shop, logger: logger}
}

// Fetch implements rule.CatalogSource.
func (r *CatalogRepo) Fetch(ctx context.Context, _ shared.SessionToken) (*rule.RawCatalog, error) {
	start := time.Now()

	raw := &rule.RawCatalog{}
	rows, err := r.pool.Query(ctx,
		`SELECT kind, record FROM rule_records WHERE shop = $1 ORDER BY kind, position`,
		r.shop)
	if err != nil {
		return nil, fmt.Errorf("%w: query rule records: %v", shared.ErrCatalogUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var record rule.Record
		if err := rows.Scan(&kind, &record); err != nil {
			return nil, fmt.Errorf("%w: scan rule record: %v", shared.ErrCatalogUnavailable, err)
		}
		switch rule.Kind(kind) {
		case rule.KindShipping:
			raw.Shipping = append(raw.Shipping, record)
		case rule.KindDiscount:
			raw.Discount = append(raw.Discount, record)
		case rule.KindFreeGift:
			raw.FreeGift = append(raw.FreeGift, record)
		case rule.KindBXGY:
			raw.BXGY = append(raw.BXGY, record)
		case rule.KindBuyXGetY:
			raw.BuyXGetY = append(raw.BuyXGetY, record)
		default:
			r.logger.Warn("skipping rule record with unknown kind",
				slog.String("shop", r.shop),
				slog.String("kind", kind))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate rule records: %v", shared.ErrCatalogUnavailable, err)
	}

	fallback, err := r.fetchFallback(ctx)
	if err != nil {
		return nil, err
	}
	raw.Fallback = fallback

	r.logger.Debug("catalog fetched",
		slog.String("shop", r.shop),
		slog.Duration("latency", time.Since(start)))
	return raw, nil
}

func (r *CatalogRepo) fetchFallback(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT message FROM fallback_messages WHERE shop = $1 ORDER BY position`,
		r.shop)
	if err != nil {
		return nil, fmt.Errorf("%w: query fallback messages: %v", shared.ErrCatalogUnavailable, err)
	}
	defer rows.Close()

	var messages []string
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, fmt.Errorf("%w: scan fallback message: %v", shared.ErrCatalogUnavailable, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate fallback messages: %v", shared.ErrCatalogUnavailable, err)
	}
	return messages, nil
}

// Replace swaps the shop's stored catalog for the given raw catalog inside a
// single transaction. Used by the catalog sync path when a merchant saves
// their rule configuration.
func (r *CatalogRepo) Replace(ctx context.Context, raw *rule.RawCatalog) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin catalog replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM rule_records WHERE shop = $1`, r.shop); err != nil {
		return fmt.Errorf("postgres: clear rule records: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM fallback_messages WHERE shop = $1`, r.shop); err != nil {
		return fmt.Errorf("postgres: clear fallback messages: %w", err)
	}

	insert := func(kind rule.Kind, records []rule.Record) error {
		for i, record := range records {
			_, err := tx.Exec(ctx,
				`INSERT INTO rule_records (shop, kind, position, record) VALUES ($1, $2, $3, $4)`,
				r.shop, string(kind), i, record)
			if err != nil {
				return fmt.Errorf("postgres: insert %s record %d: %w", kind, i, err)
			}
		}
		return nil
	}
	if err := insert(rule.KindShipping, raw.Shipping); err != nil {
		return err
	}
	if err := insert(rule.KindDiscount, raw.Discount); err != nil {
		return err
	}
	if err := insert(rule.KindFreeGift, raw.FreeGift); err != nil {
		return err
	}
	if err := insert(rule.KindBXGY, raw.BXGY); err != nil {
		return err
	}
	if err := insert(rule.KindBuyXGetY, raw.BuyXGetY); err != nil {
		return err
	}

	for i, msg := range raw.Fallback {
		_, err := tx.Exec(ctx,
			`INSERT INTO fallback_messages (shop, position, message) VALUES ($1, $2, $3)`,
			r.shop, i, msg)
		if err != nil {
			return fmt.Errorf("postgres: insert fallback message %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit catalog replace: %w", err)
	}

	r.logger.Info("catalog replaced",
		slog.String("shop", r.shop),
		slog.Int("records", len(raw.Shipping)+len(raw.Discount)+len(raw.FreeGift)+len(raw.BXGY)+len(raw.BuyXGetY)))
	return nil
}
