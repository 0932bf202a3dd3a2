package warehouse

import (
	"context"
	"embed"
	"path"
	"sort"
	"strings"

	"github.com/teranos/civicload/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate runs all pending bookkeeping migrations on the warehouse.
// Statements are portable across the supported drivers.
func (w *Warehouse) Migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	// 000_create_schema_migrations.sql runs first
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, filename := range files {
		version := strings.Split(filename, "_")[0]

		done, err := w.migrationApplied(ctx, version)
		if err != nil {
			if version != "000" {
				return errors.Wrapf(err, "schema_migrations table missing, but migration is not 000: %s", filename)
			}
		} else if done {
			w.log.Debugw("Skipping migration (already applied)", "migration", filename, "version", version)
			continue
		}

		body, err := migrations.ReadFile(path.Join("migrations", filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}

		w.log.Infow("Applying migration", "migration", filename, "version", version)

		tx, err := w.Begin(ctx)
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}
		for _, stmt := range splitStatements(string(body)) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return errors.Wrapf(err, "execute %s", filename)
			}
		}
		if _, err := tx.ExecContext(ctx, w.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record %s", filename)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
		applied++
	}

	w.log.Infow("Migrations complete", "total_migrations", len(files), "applied", applied)
	return nil
}

func (w *Warehouse) migrationApplied(ctx context.Context, version string) (bool, error) {
	var n int
	err := w.conn.GetContext(ctx, &n, w.Rebind("SELECT COUNT(*) FROM schema_migrations WHERE version = ?"), version)
	return n > 0, err
}

// splitStatements splits a migration file on semicolons, dropping comment
// lines and empty statements. Migrations must not put semicolons in literals.
func splitStatements(body string) []string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}

	var stmts []string
	for _, stmt := range strings.Split(strings.Join(lines, "\n"), ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
