package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/datatype-introspection/pkg/bootstrap"
)

const seedLogPrefix = "db:seed_catalog"

// SeedFromCatalog stores every entry of cat in one transaction. Idempotent:
// existing (kind, id) rows are updated in place.
func SeedFromCatalog(ctx context.Context, pool *pgxpool.Pool, cat *bootstrap.Catalog) (int, error) {
	slog.Info(fmt.Sprintf("%s - Seeding %d types from %s@%s", seedLogPrefix, len(cat.Types), cat.Name, cat.Version))

	descs, err := cat.Descriptors(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s - invalid catalog: %w", seedLogPrefix, err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s - begin tx: %w", seedLogPrefix, err)
	}
	defer tx.Rollback(ctx)

	for i, d := range descs {
		var definition *string
		if def := cat.Types[i].Definition; def != "" {
			definition = &def
		}
		if _, err := upsertDataType(ctx, tx, d, definition); err != nil {
			return 0, fmt.Errorf("%s - insert %s: %w", seedLogPrefix, d.FullName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s - commit: %w", seedLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Seeded %d types", seedLogPrefix, len(descs)))
	return len(descs), nil
}
