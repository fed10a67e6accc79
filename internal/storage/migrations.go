package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
	"path"
	"sort"
)

// Schema files are named NNN_description.sql and run in name order:
// 001 creates events, reminders and settings; 002 adds feed subscriptions.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	name string
	sql  string
}

// RunMigrations applies the schema files not yet recorded in _migrations
// and returns their names. Each file runs in its own transaction together
// with its _migrations row, so a failed file leaves no trace.
func RunMigrations(ctx context.Context, db *DB) ([]string, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			name TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, db.DB)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	all, err := schemaFiles()
	if err != nil {
		return nil, fmt.Errorf("reading schema files: %w", err)
	}

	var ran []string
	for _, m := range all {
		if applied[m.name] {
			continue
		}
		log.Printf("Applying migration: %s", m.name)
		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO _migrations (name) VALUES (?)", m.name)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("applying migration %s: %w", m.name, err)
		}
		ran = append(ran, m.name)
	}
	return ran, nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM _migrations")
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

// schemaFiles returns the embedded schema files sorted by name.
func schemaFiles() ([]migration, error) {
	// embed.FS always uses forward slashes, hence path rather than filepath.
	names, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}

	var out []migration
	for _, entry := range names {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		content, err := migrationsFS.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		out = append(out, migration{name: entry.Name(), sql: string(content)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}
