// Package store persists the coal catalog and blend records in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shahjoyal/view-bunker/internal/logging"
)

// ErrNotFound is returned when a coal or blend id does not exist.
var ErrNotFound = errors.New("not found")

// Store manages the bunker database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	now    func() time.Time
}

// Stats summarises what the store holds.
type Stats struct {
	Coals     int       `json:"coals"`
	Blends    int       `json:"blends"`
	LastBlend time.Time `json:"last_blend,omitempty"`
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:     db,
		dbPath: path,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Store("opened %s", path)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS coals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		name_key TEXT NOT NULL UNIQUE,
		data_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_coals_name ON coals(name_key);

	CREATE TABLE IF NOT EXISTS blends (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL,
		generation_mw REAL NOT NULL,
		total_flow REAL NOT NULL,
		gcv REAL NOT NULL,
		aft REAL NOT NULL,
		heat_rate REAL NOT NULL,
		cost_rate REAL NOT NULL,
		input_json TEXT NOT NULL,
		metrics_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_blends_created ON blends(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return runMigrations(s.db)
}

// Stats returns row counts and the newest blend time.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM coals`).Scan(&st.Coals); err != nil {
		return st, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM blends`).Scan(&st.Blends); err != nil {
		return st, err
	}
	if st.Blends > 0 {
		var last time.Time
		err := s.db.QueryRow(`SELECT created_at FROM blends ORDER BY created_at DESC, seq DESC LIMIT 1`).Scan(&last)
		if err != nil {
			return st, err
		}
		st.LastBlend = last
	}
	return st, nil
}

// Checkpoint folds the WAL back into the main database file.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
	return err
}
