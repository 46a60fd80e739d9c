// Package migrations holds the PostgreSQL schema and applies it. The
// schema_migrations table uses the golang-migrate layout (bigint version plus
// dirty flag) so either tool can manage the database.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed *.up.sql
var files embed.FS

// Migration is one embedded schema step.
type Migration struct {
	Version int64
	Name    string
	SQL     string
}

// List returns the embedded migrations ordered by version.
func List() ([]Migration, error) {
	names, err := fs.Glob(files, "*.up.sql")
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(names))
	for _, n := range names {
		ver, err := versionFromFile(n)
		if err != nil {
			return nil, fmt.Errorf("parse version from %s: %w", n, err)
		}
		raw, err := files.ReadFile(n)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", n, err)
		}
		out = append(out, Migration{Version: ver, Name: n, SQL: string(raw)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d", out[i].Version)
		}
	}
	return out, nil
}

// Apply runs every migration not yet recorded as clean and returns the names
// of those it applied. Each migration runs in its own transaction.
func Apply(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger) ([]string, error) {
	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version bigint NOT NULL,
			dirty   boolean NOT NULL,
			PRIMARY KEY (version)
		)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	all, err := List()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range all {
		var done bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1 AND dirty = false)`,
			m.Version,
		).Scan(&done); err != nil {
			return applied, fmt.Errorf("check %s: %w", m.Name, err)
		}
		if done {
			logger.Debug("migration already applied", zap.String("file", m.Name))
			continue
		}

		err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, dirty) VALUES ($1, false)
				 ON CONFLICT (version) DO UPDATE SET dirty = false`, m.Version,
			)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", m.Name, err)
		}
		logger.Info("migration applied", zap.String("file", m.Name))
		applied = append(applied, m.Name)
	}
	return applied, nil
}

// versionFromFile extracts the leading integer from a migration filename:
// "001_init.up.sql" → 1.
func versionFromFile(filename string) (int64, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("unexpected filename format")
	}
	return strconv.ParseInt(prefix, 10, 64)
}
