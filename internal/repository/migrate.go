package repository

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Migration is one versioned schema step.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// LoadMigrations reads NNNNNN_name.up.sql / .down.sql pairs from fsys, ordered by version.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := map[string]*Migration{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		base := strings.TrimSuffix(name, ".sql")
		direction := ""
		switch {
		case strings.HasSuffix(base, ".up"):
			direction, base = "up", strings.TrimSuffix(base, ".up")
		case strings.HasSuffix(base, ".down"):
			direction, base = "down", strings.TrimSuffix(base, ".down")
		default:
			return nil, fmt.Errorf("migration %s: missing .up or .down suffix", name)
		}
		version, label, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: expected NNNNNN_name", name)
		}

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: label}
			byVersion[version] = m
		}
		if direction == "up" {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %s_%s: missing up file", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

func (r *Repository) appliedVersions(ctx context.Context) (map[string]bool, error) {
	if _, err := r.pool.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// MigrateUp applies every pending migration, each in its own transaction.
// Returns the number applied.
func (r *Repository) MigrateUp(ctx context.Context, migrations []Migration, logger *slog.Logger) (int, error) {
	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		err := r.WithTx(ctx, func(tx *Repository) error {
			if _, err := tx.db.Exec(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.db.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return n, fmt.Errorf("apply %s_%s: %w", m.Version, m.Name, err)
		}
		logger.Info("migration_applied", "version", m.Version, "name", m.Name)
		n++
	}
	return n, nil
}

// MigrateDown rolls back the newest steps applied migrations.
func (r *Repository) MigrateDown(ctx context.Context, migrations []Migration, steps int, logger *slog.Logger) (int, error) {
	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for i := len(migrations) - 1; i >= 0 && n < steps; i-- {
		m := migrations[i]
		if !applied[m.Version] {
			continue
		}
		if m.Down == "" {
			return n, fmt.Errorf("migration %s_%s has no down file", m.Version, m.Name)
		}
		err := r.WithTx(ctx, func(tx *Repository) error {
			if _, err := tx.db.Exec(ctx, m.Down); err != nil {
				return err
			}
			_, err := tx.db.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
			return err
		})
		if err != nil {
			return n, fmt.Errorf("revert %s_%s: %w", m.Version, m.Name, err)
		}
		logger.Info("migration_reverted", "version", m.Version, "name", m.Name)
		n++
	}
	return n, nil
}
