package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ShaoKhan/finder-sub000/internal/adapters/sqlite"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/config"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding NNN_name.{up,down}.sql files")
	flag.Parse()
	if flag.NArg() < 1 {
		log.Fatal("usage: migrate [-dir migrations] <up|down>")
	}

	cfg, err := config.Load("finder-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	if cfg.Store.Driver == "sqlite" {
		// The SQLite store applies its schema when opened.
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		db.Close()
		log.Printf("sqlite schema ready at %s", cfg.Store.SQLitePath)
		return
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		log.Fatalf("schema_migrations: %v", err)
	}

	switch flag.Arg(0) {
	case "up":
		runMigrations(ctx, pool, *dir)
	case "down":
		rollbackLast(ctx, pool, *dir)
	default:
		log.Fatalf("unknown command: %s", flag.Arg(0))
	}
}

// runMigrations applies every pending up migration in version order.
func runMigrations(ctx context.Context, pool *pgxpool.Pool, dir string) {
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}
	sort.Strings(files)

	applied := 0
	for _, f := range files {
		version := versionOf(f)
		var exists bool
		if err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&exists); err != nil {
			log.Fatalf("check %s: %v", version, err)
		}
		if exists {
			continue
		}

		if err := apply(ctx, pool, f, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		}); err != nil {
			log.Fatalf("apply %s: %v", f, err)
		}
		fmt.Printf("OK  %s\n", f)
		applied++
	}

	log.Printf("%d migrations applied", applied)
}

// rollbackLast reverts the most recently applied migration.
func rollbackLast(ctx context.Context, pool *pgxpool.Pool, dir string) {
	var version string
	err := pool.QueryRow(ctx,
		`SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1`,
	).Scan(&version)
	if err == pgx.ErrNoRows {
		log.Println("nothing to roll back")
		return
	}
	if err != nil {
		log.Fatalf("find last migration: %v", err)
	}

	f := filepath.Join(dir, version+".down.sql")
	if err := apply(ctx, pool, f, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, version)
		return err
	}); err != nil {
		log.Fatalf("revert %s: %v", f, err)
	}
	fmt.Printf("OK  %s\n", f)
}

// apply runs a migration file and the bookkeeping step in one transaction.
func apply(ctx context.Context, pool *pgxpool.Pool, file string, record func(pgx.Tx) error) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(data)); err != nil {
		return err
	}
	if err := record(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// versionOf returns "001_survey_sessions" for ".../001_survey_sessions.up.sql".
func versionOf(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".up.sql")
}
