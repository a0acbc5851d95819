package registry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore keeps registrations in a SQLite database
type SQLiteStore struct {
	db   *sql.DB
	path string
	log  *zap.Logger
}

// NewSQLiteStore creates or opens a registry database
func NewSQLiteStore(path string, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path, log: log}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// initSchema creates the registrations table if it doesn't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS registrations (
		ordinal INTEGER NOT NULL,
		id TEXT NOT NULL,
		port INTEGER NOT NULL,
		agent TEXT NOT NULL,
		reason TEXT NOT NULL,
		registered_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		last_heartbeat TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_ordinal ON registrations(ordinal);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Load returns all registrations in saved order. Rows that cannot be decoded
// make the whole set unusable, so an empty set is returned instead.
func (s *SQLiteStore) Load() ([]Registration, error) {
	rows, err := s.db.Query(`
		SELECT id, port, agent, reason, registered_at, expires_at, COALESCE(last_heartbeat, '')
		FROM registrations
		ORDER BY ordinal ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	registrations := []Registration{}
	for rows.Next() {
		var r Registration
		var registeredAt, expiresAt, lastHeartbeat string

		if err := rows.Scan(
			&r.ID, &r.Port, &r.Agent, &r.Reason,
			&registeredAt, &expiresAt, &lastHeartbeat,
		); err != nil {
			return s.corrupted(err)
		}

		if r.RegisteredAt, err = time.Parse(time.RFC3339Nano, registeredAt); err != nil {
			return s.corrupted(err)
		}
		if r.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
			return s.corrupted(err)
		}
		if lastHeartbeat != "" {
			hb, err := time.Parse(time.RFC3339Nano, lastHeartbeat)
			if err != nil {
				return s.corrupted(err)
			}
			r.LastHeartbeat = &hb
		}

		registrations = append(registrations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read registrations: %w", err)
	}

	return registrations, nil
}

func (s *SQLiteStore) corrupted(err error) ([]Registration, error) {
	s.log.Warn("registry database holds unreadable rows, starting empty",
		zap.String("path", s.path), zap.Error(err))
	return []Registration{}, nil
}

// Save replaces every row in a single transaction
func (s *SQLiteStore) Save(registrations []Registration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM registrations"); err != nil {
		return fmt.Errorf("failed to clear registrations: %w", err)
	}

	for i, r := range registrations {
		var lastHeartbeat any
		if r.LastHeartbeat != nil {
			lastHeartbeat = r.LastHeartbeat.UTC().Format(time.RFC3339Nano)
		}
		_, err := tx.Exec(`
			INSERT INTO registrations (ordinal, id, port, agent, reason, registered_at, expires_at, last_heartbeat)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, i, r.ID, r.Port, r.Agent, r.Reason,
			r.RegisteredAt.UTC().Format(time.RFC3339Nano),
			r.ExpiresAt.UTC().Format(time.RFC3339Nano),
			lastHeartbeat)
		if err != nil {
			return fmt.Errorf("failed to insert registration: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registrations: %w", err)
	}
	return nil
}

// Lock takes the advisory lock next to the database
func (s *SQLiteStore) Lock() (func() error, error) {
	return lockFile(s.path + ".lock")
}
