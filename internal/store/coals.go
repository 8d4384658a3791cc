package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shahjoyal/view-bunker/internal/blend"
)

// ErrConflict is returned when a coal name is already taken by another id.
var ErrConflict = errors.New("conflict")

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SaveCoal inserts or updates a coal. An empty id gets a new uuid.
func (s *Store) SaveCoal(c *blend.Coal) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing string
	err := s.db.QueryRow(`SELECT id FROM coals WHERE name_key = ?`, nameKey(c.Name)).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("failed to check coal name: %w", err)
	case c.ID == "":
		c.ID = existing
	case existing != c.ID:
		return fmt.Errorf("coal name %q already used by %s: %w", c.Name, existing, ErrConflict)
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.UpdatedAt = s.now()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode coal: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO coals (id, name, name_key, data_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			name_key = excluded.name_key,
			data_json = excluded.data_json,
			updated_at = excluded.updated_at
	`, c.ID, c.Name, nameKey(c.Name), string(data), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save coal: %w", err)
	}
	return nil
}

// GetCoal loads a coal by id.
func (s *Store) GetCoal(id string) (*blend.Coal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanCoal(s.db.QueryRow(`SELECT data_json FROM coals WHERE id = ?`, id))
}

// FindCoalByName loads a coal by case-insensitive name.
func (s *Store) FindCoalByName(name string) (*blend.Coal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanCoal(s.db.QueryRow(`SELECT data_json FROM coals WHERE name_key = ?`, nameKey(name)))
}

func (s *Store) scanCoal(row *sql.Row) (*blend.Coal, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load coal: %w", err)
	}
	var c blend.Coal
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("failed to decode coal: %w", err)
	}
	return &c, nil
}

// ListCoals returns the catalog ordered by name.
func (s *Store) ListCoals() ([]blend.Coal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT data_json FROM coals ORDER BY name_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	coals := make([]blend.Coal, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var c blend.Coal
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("failed to decode coal: %w", err)
		}
		coals = append(coals, c)
	}
	return coals, rows.Err()
}

// Catalog builds a lookup catalog from the stored coals.
func (s *Store) Catalog() (*blend.Catalog, error) {
	coals, err := s.ListCoals()
	if err != nil {
		return nil, err
	}
	return blend.NewCatalog(coals), nil
}

// DeleteCoal removes a coal. Blends keep their own snapshots.
func (s *Store) DeleteCoal(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM coals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete coal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
