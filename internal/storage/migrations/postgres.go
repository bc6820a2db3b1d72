package migrations

import (
	"context"
	"fmt"
	"strings"

	"autotrade-coordinator/internal/storage/postgres"
)

// RunPostgresMigrations applies embedded SQL files in lexical order, skipping
// files already recorded in schema_migrations.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	_, err := ApplyPostgresMigrations(ctx, pool)
	return err
}

// ApplyPostgresMigrations is RunPostgresMigrations returning the applied file names.
func ApplyPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := load(postgresFS, "postgres")
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range files {
		var done bool
		if err := pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name = $1)`, m.name,
		).Scan(&done); err != nil {
			return applied, fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if done {
			continue
		}

		if strings.TrimSpace(m.sql) != "" {
			if _, err := pool.Exec(ctx, m.sql); err != nil {
				return applied, fmt.Errorf("apply migration %s: %w", m.name, err)
			}
		}
		if _, err := pool.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.name); err != nil {
			return applied, fmt.Errorf("record migration %s: %w", m.name, err)
		}
		applied = append(applied, m.name)
	}

	return applied, nil
}
