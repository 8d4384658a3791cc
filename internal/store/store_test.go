package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shahjoyal/view-bunker/internal/blend"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "bunker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCoal(name string, gcv float64) *blend.Coal {
	return &blend.Coal{
		Name: name, GCV: gcv, Cost: 5000,
		Proximate: blend.Proximate{Ash: 20, Moisture: 10, VolatileMatter: 30, FixedCarbon: 40},
		Oxides:    blend.AshOxides{SiO2: 55, Al2O3: 25, Fe2O3: 6, CaO: 3},
	}
}

func testBlend(t *testing.T, coal *blend.Coal, gen float64) *blend.Blend {
	t.Helper()
	in := blend.Input{
		Rows:         []blend.Row{{CoalID: coal.ID, Coal: coal, Percent: [blend.MillCount]float64{100, 100}}},
		Flows:        [blend.MillCount]float64{40, 35},
		GenerationMW: gen,
	}
	m, err := blend.Compute(in)
	require.NoError(t, err)
	return &blend.Blend{Input: in, Metrics: m}
}

// =============================================================================
// STORE LIFECYCLE
// =============================================================================

func TestOpen(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	assert.NotEmpty(t, s.Path())

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.Coals)
	assert.Zero(t, st.Blends)
	assert.True(t, st.LastBlend.IsZero())
	assert.NoError(t, s.Checkpoint())
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bunker.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveCoal(testCoal("Indo", 4200)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	coals, err := s.ListCoals()
	require.NoError(t, err)
	assert.Len(t, coals, 1)
}

// =============================================================================
// COAL OPERATIONS
// =============================================================================

func TestStore_CoalRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	c := testCoal("Indo 4200", 4200)
	require.NoError(t, s.SaveCoal(c))
	require.NotEmpty(t, c.ID)
	assert.False(t, c.UpdatedAt.IsZero())

	loaded, err := s.GetCoal(c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Name, loaded.Name)
	assert.Equal(t, c.Oxides, loaded.Oxides)

	byName, err := s.FindCoalByName("INDO 4200 ")
	require.NoError(t, err)
	assert.Equal(t, c.ID, byName.ID)
}

func TestStore_SaveCoal_UpsertByName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	first := testCoal("Aus", 6000)
	require.NoError(t, s.SaveCoal(first))

	again := testCoal("aus", 6100)
	require.NoError(t, s.SaveCoal(again))
	assert.Equal(t, first.ID, again.ID, "same name without id updates the existing coal")

	loaded, err := s.GetCoal(first.ID)
	require.NoError(t, err)
	assert.Equal(t, 6100.0, loaded.GCV)
}

func TestStore_SaveCoal_Conflict(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.SaveCoal(testCoal("Aus", 6000)))
	other := testCoal("SA", 5500)
	require.NoError(t, s.SaveCoal(other))

	other.Name = "Aus"
	err := s.SaveCoal(other)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestStore_SaveCoal_Invalid(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	err := s.SaveCoal(&blend.Coal{GCV: -5})
	assert.True(t, errors.Is(err, blend.ErrInvalidInput))
}

func TestStore_ListAndDeleteCoals(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, n := range []string{"b-coal", "A-coal", "c-coal"} {
		require.NoError(t, s.SaveCoal(testCoal(n, 5000)))
	}

	coals, err := s.ListCoals()
	require.NoError(t, err)
	require.Len(t, coals, 3)
	assert.Equal(t, "A-coal", coals[0].Name)

	catalog, err := s.Catalog()
	require.NoError(t, err)
	assert.Equal(t, 3, catalog.Len())

	require.NoError(t, s.DeleteCoal(coals[0].ID))
	assert.True(t, errors.Is(s.DeleteCoal(coals[0].ID), ErrNotFound))

	_, err = s.GetCoal(coals[0].ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// =============================================================================
// BLEND OPERATIONS
// =============================================================================

func TestStore_BlendRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	c := testCoal("Indo", 4200)
	require.NoError(t, s.SaveCoal(c))

	b := testBlend(t, c, 200)
	require.NoError(t, s.SaveBlend(b))
	require.NotEmpty(t, b.ID)

	loaded, err := s.GetBlend(b.ID)
	require.NoError(t, err)
	assert.True(t, b.CreatedAt.Equal(loaded.CreatedAt))
	assert.Equal(t, b.Input.Flows, loaded.Input.Flows)
	require.NotNil(t, loaded.Input.Rows[0].Coal)
	assert.Equal(t, "Indo", loaded.Input.Rows[0].Coal.Name)
	assert.InDelta(t, b.Metrics.HeatRate, loaded.Metrics.HeatRate, 1e-9)
	assert.InDelta(t, b.Metrics.Mills[1].AFT, loaded.Metrics.Mills[1].AFT, 1e-9)

	// The blend keeps its coal snapshot after the catalog entry goes.
	require.NoError(t, s.DeleteCoal(c.ID))
	loaded, err = s.GetBlend(b.ID)
	require.NoError(t, err)
	assert.Equal(t, 4200.0, loaded.Input.Rows[0].Coal.GCV)
}

func TestStore_BlendOrdering(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	c := testCoal("Indo", 4200)

	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 4; i++ {
		b := testBlend(t, c, float64(100+i))
		b.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.SaveBlend(b))
		ids = append(ids, b.ID)
	}

	latest, err := s.LatestBlend()
	require.NoError(t, err)
	assert.Equal(t, ids[3], latest.ID)

	list, err := s.ListBlends(2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[3], list[0].ID)
	assert.Equal(t, ids[2], list[1].ID)

	recent, err := s.RecentBlends(3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{ids[1], ids[2], ids[3]}, []string{recent[0].ID, recent[1].ID, recent[2].ID})

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 4, st.Blends)
	assert.True(t, st.LastBlend.Equal(base.Add(3*time.Hour)))
}

func TestStore_LatestBlend_Empty(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.LatestBlend()
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.GetBlend("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	recent, err := s.RecentBlends(5)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestStore_DeleteAndPruneBlends(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	c := testCoal("Indo", 4200)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		b := testBlend(t, c, 150)
		b.CreatedAt = base.AddDate(0, 0, i)
		require.NoError(t, s.SaveBlend(b))
		ids = append(ids, b.ID)
	}

	require.NoError(t, s.DeleteBlend(ids[4]))
	assert.True(t, errors.Is(s.DeleteBlend(ids[4]), ErrNotFound))

	n, err := s.PruneBlends(base.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	list, err := s.ListBlends(0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[3], list[0].ID)
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func TestOpen_MigratesOldBlendsTable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE blends (
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
		)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, col := range []string{"cost_per_kwh", "active_mills"} {
		ok, err := columnExists(s.db, "blends", col)
		require.NoError(t, err)
		assert.True(t, ok, col)
	}

	coal := testCoal("Indo", 4200)
	require.NoError(t, s.SaveCoal(coal))
	b := testBlend(t, coal, 150)
	require.NoError(t, s.SaveBlend(b))

	var active int
	require.NoError(t, s.db.QueryRow(`SELECT active_mills FROM blends WHERE id = ?`, b.ID).Scan(&active))
	assert.Equal(t, 2, active)
}
