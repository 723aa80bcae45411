package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/overbyte/assets"
)

const migrationsDir = "migrations"

type migration struct {
	name     string
	body     string
	checksum uint64
}

// runMigrations applies embedded SQL files in name order. Applied files are
// recorded with a checksum; an edited file is reported but never re-run.
func runMigrations(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		checksum   TEXT NOT NULL DEFAULT '',
		applied_at DATETIME
	);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		var recorded string
		err := db.QueryRow("SELECT checksum FROM schema_migrations WHERE version = ?", m.name).Scan(&recorded)
		switch {
		case err == nil:
			if recorded != "" && recorded != m.sum() {
				log.Warn().Str("file", m.name).Msg("Applied migration has changed since it ran")
			}
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check migration status: %w", err)
		}

		if err := applyMigration(db, m); err != nil {
			return err
		}
	}

	return nil
}

func (m migration) sum() string {
	return fmt.Sprintf("%016x", m.checksum)
}

func loadMigrations() ([]migration, error) {
	entries, err := assets.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations dir: %w", err)
	}

	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		body, err := assets.ReadFile(path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}
		out = append(out, migration{name: entry.Name(), body: string(body), checksum: xxhash.Sum64(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func applyMigration(db *sql.DB, m migration) error {
	log.Info().Str("file", m.name).Msg("Applying database migration...")

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(m.body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to exec migration %s: %w", m.name, err)
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, checksum, applied_at) VALUES (?, ?, ?)",
		m.name, m.sum(), time.Now().UTC(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration %s: %w", m.name, err)
	}

	return tx.Commit()
}
