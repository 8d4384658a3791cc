// Package monitor ties the blend store to the layer countdown engine: it
// stacks recent blends into bunker layers, records new blends on top, and
// keeps a live summary that is re-derived after every tick.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/shahjoyal/view-bunker/internal/binder"
	"github.com/shahjoyal/view-bunker/internal/blend"
	"github.com/shahjoyal/view-bunker/internal/logging"
)

// Store is the persistence the monitor needs.
type Store interface {
	RecentBlends(n int) ([]blend.Blend, error)
	SaveBlend(b *blend.Blend) error
	DeleteBlend(id string) error
	Catalog() (*blend.Catalog, error)
}

// Options configures layer construction.
type Options struct {
	MaxLayers          int
	DefaultLayerTonnes float64
	EventBuffer        int
}

// Summary is the unit-level picture derived from the layers being drawn now.
type Summary struct {
	Seq           uint64        `json:"seq"`
	At            time.Time     `json:"at"`
	LatestBlendID string        `json:"latest_blend_id,omitempty"`
	Metrics       blend.Metrics `json:"metrics"`
}

// Update is what live subscribers receive after every tick.
type Update struct {
	Snapshot binder.Snapshot `json:"snapshot"`
	Summary  Summary         `json:"summary"`
	Advanced []int           `json:"advanced,omitempty"`
}

// Monitor owns the live state.
type Monitor struct {
	store  Store
	binder *binder.Binder

	mu         sync.RWMutex
	opts       Options
	generation float64
	latestID   string
	summary    Summary
	subs       map[int]chan Update
	nextSub    int
	started    bool
}

// New creates a monitor. Call Start before use.
func New(st Store, b *binder.Binder, opts Options) *Monitor {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 16
	}
	return &Monitor{
		store:  st,
		binder: b,
		opts:   opts,
		subs:   make(map[int]chan Update),
	}
}

// Start loads the newest blends into the binder and begins following its events.
func (m *Monitor) Start() error {
	if err := m.Reload(); err != nil {
		return err
	}

	m.mu.Lock()
	first := !m.started
	m.started = true
	m.mu.Unlock()

	if first {
		m.binder.OnEvent(m.onEvent)
	}
	return nil
}

// Reload rebuilds every bunker from the store, dropping countdown progress.
func (m *Monitor) Reload() error {
	m.mu.RLock()
	opts := m.opts
	m.mu.RUnlock()

	blends, err := m.store.RecentBlends(opts.MaxLayers)
	if err != nil {
		return fmt.Errorf("failed to load recent blends: %w", err)
	}

	var layers [blend.MillCount][]binder.Layer
	var flows [blend.MillCount]float64
	var generation float64
	var latestID string
	for i := range blends {
		b := &blends[i]
		for mill := 0; mill < blend.MillCount; mill++ {
			if l, ok := layerFor(b, mill, opts.DefaultLayerTonnes); ok {
				layers[mill] = append(layers[mill], l)
			}
		}
		flows = b.Input.Flows
		generation = b.Input.GenerationMW
		latestID = b.ID
	}

	m.binder.Load(layers, flows)

	m.mu.Lock()
	m.generation = generation
	m.latestID = latestID
	m.mu.Unlock()
	m.refresh()

	logging.Blend("stacked %d blends into bunkers", len(blends))
	return nil
}

// layerFor builds the layer blend b puts into a bunker, if that mill got coal.
func layerFor(b *blend.Blend, mill int, defaultTonnes float64) (binder.Layer, bool) {
	mm := b.Metrics.Mills[mill]
	if !mm.Composed() {
		return binder.Layer{}, false
	}
	tonnes := b.Input.LayerTonnes[mill]
	if tonnes <= 0 {
		tonnes = defaultTonnes
	}
	return binder.Layer{
		BlendID: b.ID,
		Label:   mm.Label(),
		Tonnes:  tonnes,
		Timer:   b.Input.Timers[mill],
		Metrics: &mm,
	}, true
}

// Preview resolves coals and computes metrics without persisting anything.
func (m *Monitor) Preview(in blend.Input) (*blend.Blend, error) {
	catalog, err := m.store.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load coal catalog: %w", err)
	}
	if err := catalog.Resolve(&in); err != nil {
		return nil, err
	}
	metrics, err := blend.Compute(in)
	if err != nil {
		return nil, err
	}
	return &blend.Blend{Input: in, Metrics: metrics}, nil
}

// Record computes and persists a blend, then stacks it on top of every
// bunker it feeds and adopts its flows and load.
func (m *Monitor) Record(in blend.Input) (*blend.Blend, error) {
	b, err := m.Preview(in)
	if err != nil {
		return nil, err
	}
	if err := m.store.SaveBlend(b); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defaultTonnes := m.opts.DefaultLayerTonnes
	m.mu.RUnlock()

	for mill := 0; mill < blend.MillCount; mill++ {
		if l, ok := layerFor(b, mill, defaultTonnes); ok {
			if err := m.binder.Push(mill, l); err != nil {
				return nil, err
			}
		}
	}
	m.binder.SetFlows(b.Input.Flows)

	m.mu.Lock()
	m.generation = b.Input.GenerationMW
	m.latestID = b.ID
	m.mu.Unlock()
	m.refresh()

	logging.Get(logging.CategoryBlend).With("blend_id", b.ID).Info(
		"recorded blend: gcv=%.0f aft=%.0f heat_rate=%.0f cost_rate=%.0f",
		b.Metrics.GCV, b.Metrics.AFT, b.Metrics.HeatRate, b.Metrics.CostRate)
	return b, nil
}

// DeleteBlend removes a blend record and takes its layers out of the live
// bunkers. Remaining layers keep their progress.
func (m *Monitor) DeleteBlend(id string) error {
	if err := m.store.DeleteBlend(id); err != nil {
		return err
	}
	bunkers := m.binder.RemoveBlend(id)

	m.mu.Lock()
	if m.latestID == id {
		m.latestID = ""
	}
	m.mu.Unlock()
	m.refresh()

	logging.Get(logging.CategoryBlend).With("blend_id", id).Info("deleted blend, %d bunker(s) updated", len(bunkers))
	return nil
}

// SetDefaultLayerTonnes changes the tonnage assumed for layers recorded
// without one.
func (m *Monitor) SetDefaultLayerTonnes(t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.DefaultLayerTonnes = t
}

// Summary returns the latest live summary.
func (m *Monitor) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summary
}

// Snapshot returns the current bunker state.
func (m *Monitor) Snapshot() binder.Snapshot {
	return m.binder.Snapshot()
}

// refresh recomputes the summary from the binder's current state.
func (m *Monitor) refresh() {
	snap := m.binder.Snapshot()
	active := m.binder.ActiveMetrics()
	m.updateSummary(snap, active)
}

func (m *Monitor) updateSummary(snap binder.Snapshot, active [blend.MillCount]*blend.MillMetrics) Summary {
	var flows [blend.MillCount]float64
	for i, bk := range snap.Bunkers {
		flows[i] = bk.Flow
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// A refresh racing a tick may hold an older snapshot; keep the newer one.
	if snap.Seq < m.summary.Seq {
		return m.summary
	}
	m.summary = Summary{
		Seq:           snap.Seq,
		At:            snap.At,
		LatestBlendID: m.latestID,
		Metrics:       blend.Summarize(active, flows, m.generation),
	}
	return m.summary
}

func (m *Monitor) onEvent(ev binder.Event) {
	summary := m.updateSummary(ev.Snapshot, ev.Active)
	u := Update{Snapshot: ev.Snapshot, Summary: summary, Advanced: ev.Advanced}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Subscribe returns a channel of live updates and a cancel function that
// closes it. Slow subscribers miss updates rather than block the engine.
func (m *Monitor) Subscribe() (<-chan Update, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Update, m.opts.EventBuffer)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

// Current returns the snapshot and summary together, for a client that
// has just connected.
func (m *Monitor) Current() Update {
	return Update{Snapshot: m.binder.Snapshot(), Summary: m.Summary()}
}
