// Package store persists the active session descriptor in a local SQLite
// database so a restarted client can resume an agent conversation instead of
// opening a new one.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/careguide/careguide-go/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	slot        INTEGER PRIMARY KEY CHECK (slot = 1),
	session_id  TEXT NOT NULL,
	agent_id    TEXT NOT NULL,
	profile     TEXT NOT NULL,
	last_offset INTEGER NOT NULL,
	saved_at    INTEGER NOT NULL
);
`

// Store is a single-slot session cache backed by SQLite. Only the most
// recent descriptor is kept; saving overwrites the previous one.
type Store struct {
	db *sql.DB
}

// Open creates or opens the cache database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session cache: %w", err)
	}
	// SQLite allows one writer; the cache is tiny, so a single connection
	// keeps locking trivial.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure session cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init session cache schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Save stores desc as the current session, replacing any previous one.
func (s *Store) Save(desc models.SessionDescriptor, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (slot, session_id, agent_id, profile, last_offset, saved_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			session_id  = excluded.session_id,
			agent_id    = excluded.agent_id,
			profile     = excluded.profile,
			last_offset = excluded.last_offset,
			saved_at    = excluded.saved_at
	`, desc.SessionID, desc.AgentID, string(desc.Profile), desc.LastOffset, at.Unix())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the cached descriptor when one exists and was saved no longer
// than maxAge ago. An absent or expired entry reports ok=false, not an error.
func (s *Store) Load(maxAge time.Duration) (models.SessionDescriptor, bool, error) {
	var (
		desc    models.SessionDescriptor
		profile string
		savedAt int64
	)
	err := s.db.QueryRow(`
		SELECT session_id, agent_id, profile, last_offset, saved_at
		FROM sessions WHERE slot = 1
	`).Scan(&desc.SessionID, &desc.AgentID, &profile, &desc.LastOffset, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SessionDescriptor{}, false, nil
	}
	if err != nil {
		return models.SessionDescriptor{}, false, fmt.Errorf("load session: %w", err)
	}

	if time.Since(time.Unix(savedAt, 0)) > maxAge {
		return models.SessionDescriptor{}, false, nil
	}

	p, err := models.ParseProfile(profile)
	if err != nil {
		// A cache written by an incompatible version; treat as a miss.
		return models.SessionDescriptor{}, false, nil
	}
	desc.Profile = p
	return desc, true, nil
}

// Clear removes the cached session.
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM sessions WHERE slot = 1"); err != nil {
		return fmt.Errorf("clear session cache: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
