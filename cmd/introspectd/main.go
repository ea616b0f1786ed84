// Package main is the entrypoint for introspectd, the data type introspection node.
package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/datatype-introspection/internal/config"
	"github.com/morezero/datatype-introspection/internal/server"
	"github.com/morezero/datatype-introspection/pkg/bootstrap"
	"github.com/morezero/datatype-introspection/pkg/db"
)

const usage = `Usage: introspectd [command]
       introspectd serve              Start the node (COMMS, HTTP, introspection services).
       introspectd migrate up          Create the data_types table.
       introspectd migrate down        Drop the data_types table.
       introspectd migrate status      Show migration status.
       introspectd ensure-db [name]    Create database if missing (default name: introspection_test). Uses DATABASE_URL host/user.
       introspectd clear               Truncate the stored catalog; schema is preserved.
       introspectd seed [file]         Store a catalog file (default: CATALOG_FILE, config/catalog.json, built-in).

Commands:
  serve           (default) Start the node.
  migrate up      Run database migrations only.
  migrate down    Roll back the schema.
  migrate status  Show current migration status.
  ensure-db [name] Create database (e.g. introspection_test) on same host as DATABASE_URL.
  clear           Truncate stored data types.
  seed [file]     Upsert every type of a catalog file into the database.

Environment: COMMS_URL, SERVICE_NAME, CATALOG_SOURCE (file|database), CATALOG_FILE,
DATABASE_URL (database commands), MIGRATION_PATH, INTROSPECTION_HTTP_ADDR (default 0.0.0.0:8080).
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("introspectd migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		var err error
		switch sub {
		case "up":
			err = withPool(runMigrateUp)
		case "down":
			err = withPool(runMigrateDown)
		case "status":
			err = withPool(runMigrateStatus)
		default:
			log.Fatalf("introspectd migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		if err != nil {
			log.Fatalf("introspectd migrate %s: %v", sub, err)
		}
		return
	case "clear":
		if err := withPool(runClear); err != nil {
			log.Fatalf("introspectd clear: %v", err)
		}
		return
	case "seed":
		catalogFile := ""
		if len(args) > 1 {
			catalogFile = args[1]
		}
		if err := withPool(seedFrom(catalogFile)); err != nil {
			log.Fatalf("introspectd seed: %v", err)
		}
		return
	case "ensure-db":
		dbName := "introspection_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("introspectd ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("introspectd: %v", err)
	}
}

// withPool loads config, opens the database and runs fn against it.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

func runMigrateUp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateDown(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
	return db.MigrationDown(ctx, pool)
}

func runMigrateStatus(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	_, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
	return err
}

func runClear(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
	if err := db.ClearCatalog(ctx, pool); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}
	return nil
}

func seedFrom(catalogFile string) func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	return func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		cat, err := bootstrap.LoadCatalog(catalogFile)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		if err := cat.CheckVersion(cfg.CatalogVersionConstraint); err != nil {
			return err
		}
		n, err := db.SeedFromCatalog(ctx, pool, cat)
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		fmt.Printf("Seeded %d data types from %s@%s.\n", n, cat.Name, cat.Version)
		return nil
	}
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	targetURL, err := targetDatabaseURL(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

// targetDatabaseURL swaps the database name in databaseURL; the query (e.g. sslmode) is kept.
func targetDatabaseURL(databaseURL, dbName string) (string, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is required")
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}
