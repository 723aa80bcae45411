// Package storage persists game server history for the balancer using SQLite.
package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/woozymasta/overbyte/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes a new SQLite connection, sets connection pool parameters, and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// RecordRegister inserts a server or revives an evicted one. first_seen is kept
// across re-registrations.
func (r *Repository) RecordRegister(s models.ServerRecord) error {
	query := `
	INSERT INTO servers (id, host, port, status, version, players, heartbeats, first_seen, last_seen)
	VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		host       = excluded.host,
		port       = excluded.port,
		status     = excluded.status,
		version    = CASE WHEN excluded.version != '' THEN excluded.version ELSE servers.version END,
		players    = 0,
		last_seen  = excluded.last_seen,
		evicted_at = NULL;
	`

	seen := s.LastSeen.UTC()
	_, err := r.db.Exec(query, s.ID, s.Host, s.Port, s.Status, s.Version, seen, seen)
	return err
}

// RecordHeartbeat updates load and liveness and bumps the heartbeat counter.
func (r *Repository) RecordHeartbeat(id string, players int, status string, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE servers
		SET players = ?, status = ?, last_seen = ?, heartbeats = heartbeats + 1
		WHERE id = ?
	`, players, status, at.UTC(), id)
	return err
}

// MarkEvicted stamps the eviction time of a server.
func (r *Repository) MarkEvicted(id string, at time.Time) error {
	_, err := r.db.Exec(`UPDATE servers SET evicted_at = ?, status = 'evicted' WHERE id = ?`, at.UTC(), id)
	return err
}

// GetServers retrieves server history sorted by last seen, newest first.
// A limit of zero or less returns every row.
func (r *Repository) GetServers(limit int) ([]models.ServerRecord, error) {
	query := selectServers + ` ORDER BY last_seen DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.ServerRecord
	for rows.Next() {
		rec, err := scanServer(rows)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// GetServer retrieves one server by id; nil when unknown.
func (r *Repository) GetServer(id string) (*models.ServerRecord, error) {
	rec, err := scanServer(r.db.QueryRow(selectServers+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PruneEvicted deletes servers evicted before cutoff.
func (r *Repository) PruneEvicted(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM servers WHERE evicted_at IS NOT NULL AND evicted_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectServers = `
	SELECT id, host, port, status, version, players, heartbeats, first_seen, last_seen, evicted_at
	FROM servers`

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (models.ServerRecord, error) {
	var (
		rec     models.ServerRecord
		evicted sql.NullTime
	)
	if err := row.Scan(
		&rec.ID, &rec.Host, &rec.Port, &rec.Status, &rec.Version,
		&rec.Players, &rec.Heartbeats, &rec.FirstSeen, &rec.LastSeen, &evicted,
	); err != nil {
		return rec, err
	}
	if evicted.Valid {
		t := evicted.Time
		rec.EvictedAt = &t
	}
	return rec, nil
}
