package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shahjoyal/view-bunker/internal/blend"
)

// SaveBlend persists a computed blend, assigning id and creation time when unset.
func (s *Store) SaveBlend(b *blend.Blend) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}

	inputJSON, err := json.Marshal(b.Input)
	if err != nil {
		return fmt.Errorf("failed to encode blend input: %w", err)
	}
	metricsJSON, err := json.Marshal(b.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode blend metrics: %w", err)
	}

	m := b.Metrics
	_, err = s.db.Exec(`
		INSERT INTO blends (id, created_at, generation_mw, total_flow, gcv, aft,
			heat_rate, cost_rate, cost_per_kwh, active_mills, input_json, metrics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.CreatedAt.UTC(), b.Input.GenerationMW, m.TotalFlow, m.GCV, m.AFT,
		m.HeatRate, m.CostRate, m.CostPerKWh, activeMills(m), string(inputJSON), string(metricsJSON))
	if err != nil {
		return fmt.Errorf("failed to save blend: %w", err)
	}
	return nil
}

func activeMills(m blend.Metrics) int {
	n := 0
	for _, mm := range m.Mills {
		if mm.Active {
			n++
		}
	}
	return n
}

const blendColumns = `id, created_at, input_json, metrics_json`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBlend(row rowScanner) (*blend.Blend, error) {
	var b blend.Blend
	var inputJSON, metricsJSON string
	if err := row.Scan(&b.ID, &b.CreatedAt, &inputJSON, &metricsJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(inputJSON), &b.Input); err != nil {
		return nil, fmt.Errorf("failed to decode blend %s input: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &b.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode blend %s metrics: %w", b.ID, err)
	}
	return &b, nil
}

// GetBlend loads a blend by id.
func (s *Store) GetBlend(id string) (*blend.Blend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := scanBlend(s.db.QueryRow(`SELECT `+blendColumns+` FROM blends WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return b, err
}

// LatestBlend returns the newest blend.
func (s *Store) LatestBlend() (*blend.Blend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := scanBlend(s.db.QueryRow(`SELECT ` + blendColumns + ` FROM blends ORDER BY created_at DESC, seq DESC LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return b, err
}

// ListBlends returns up to limit blends, newest first.
func (s *Store) ListBlends(limit int) ([]blend.Blend, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryBlends(`SELECT `+blendColumns+` FROM blends ORDER BY created_at DESC, seq DESC LIMIT ?`, limit)
}

// RecentBlends returns the newest n blends oldest first, the order layers
// stack in a bunker.
func (s *Store) RecentBlends(n int) ([]blend.Blend, error) {
	blends, err := s.ListBlends(n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(blends)-1; i < j; i, j = i+1, j-1 {
		blends[i], blends[j] = blends[j], blends[i]
	}
	return blends, nil
}

func (s *Store) queryBlends(query string, args ...interface{}) ([]blend.Blend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blends := make([]blend.Blend, 0)
	for rows.Next() {
		b, err := scanBlend(rows)
		if err != nil {
			return nil, err
		}
		blends = append(blends, *b)
	}
	return blends, rows.Err()
}

// DeleteBlend removes a blend by id.
func (s *Store) DeleteBlend(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM blends WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete blend: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneBlends deletes blends created before cutoff and reports how many went.
func (s *Store) PruneBlends(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM blends WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune blends: %w", err)
	}
	return res.RowsAffected()
}
