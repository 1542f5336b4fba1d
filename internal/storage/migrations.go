package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// schemaMigration is one embedded SQL file. Files are applied in name order,
// so names carry a numeric prefix such as 001_init.sql.
type schemaMigration struct {
	name string
	sql  string
}

// RunMigrations applies every embedded migration not yet recorded in the
// _migrations table and returns how many ran. Each file commits together
// with its bookkeeping row.
func RunMigrations(ctx context.Context, db *DB) (int, error) {
	// Tracking table first, so a fresh database can be asked what it has
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			name TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return 0, fmt.Errorf("creating migrations table: %w", err)
	}

	// Names already applied
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("listing applied migrations: %w", err)
	}

	// Embedded files, oldest first
	pending, err := embeddedMigrations()
	if err != nil {
		return 0, fmt.Errorf("reading migration files: %w", err)
	}

	ran := 0
	for _, m := range pending {
		if applied[m.name] {
			continue
		}

		slog.Info("applying migration", "name", m.name)
		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			// Schema change
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("executing SQL: %w", err)
			}
			// Bookkeeping row in the same transaction
			if _, err := tx.ExecContext(ctx, `INSERT INTO _migrations (name) VALUES (?)`, m.name); err != nil {
				return fmt.Errorf("recording migration: %w", err)
			}
			return nil
		})
		if err != nil {
			return ran, fmt.Errorf("applying migration %s: %w", m.name, err)
		}
		ran++
	}
	return ran, nil
}

func appliedMigrations(ctx context.Context, db *DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM _migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func embeddedMigrations() ([]schemaMigration, error) {
	paths, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	// Numeric prefixes make lexical order the apply order
	sort.Strings(paths)

	out := make([]schemaMigration, 0, len(paths))
	for _, p := range paths {
		content, err := migrationsFS.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		out = append(out, schemaMigration{name: path.Base(p), sql: string(content)})
	}
	return out, nil
}
