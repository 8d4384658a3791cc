// Package binder simulates which coal layer each bunker is currently
// drawing from. Every bunker holds a bottom-to-top sequence of layers; the
// bottom undrained layer is active and counts down. When it runs out the
// next layer up becomes active, and every tick is published as an Event so
// summary metrics can be re-derived.
//
// A layer's duration is either a timer supplied with the blend or an
// estimate from its tonnage and the mill flow. Progress is held as the
// fraction of the layer left, so a flow change rescales the countdown
// without losing what has already drained.
package binder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shahjoyal/view-bunker/internal/blend"
	"github.com/shahjoyal/view-bunker/internal/logging"
)

// ErrUnknownBunker is returned for a bunker index outside 0..MillCount-1.
var ErrUnknownBunker = errors.New("unknown bunker")

// depletedEpsilon absorbs float drift when a layer is within a hair of empty.
const depletedEpsilon = 1e-9

// Layer is one fill of coal in a bunker.
type Layer struct {
	BlendID string             `json:"blend_id"`
	Label   string             `json:"label"`
	Tonnes  float64            `json:"tonnes"`
	Timer   float64            `json:"timer"` // seconds; 0 = estimate from flow
	Metrics *blend.MillMetrics `json:"metrics,omitempty"`
}

// holdsCoal reports whether the layer can ever be drawn from.
func (l Layer) holdsCoal() bool {
	return l.Timer > 0 || l.Tonnes > 0
}

// duration returns the layer's full drain time at flow, and whether it is
// an estimate. Zero means the layer does not drain at this flow.
func (l Layer) duration(flow float64) (float64, bool) {
	if l.Timer > 0 {
		return l.Timer, false
	}
	return blend.EstimateSeconds(l.Tonnes, flow), true
}

type layerState struct {
	Layer
	left float64 // fraction of the layer not yet drained, 1..0
}

type bunker struct {
	layers []layerState
	active int
	flow   float64
}

func (bk *bunker) empty() bool {
	return bk.active >= len(bk.layers)
}

// advance drains dt seconds from the bunker, carrying any surplus into the
// layers above. It reports whether the active layer changed.
func (bk *bunker) advance(dt float64) bool {
	advanced := false
	for dt > 0 && !bk.empty() {
		l := &bk.layers[bk.active]
		total, _ := l.duration(bk.flow)
		if total <= 0 {
			break // stalled: nothing drains without flow
		}
		remaining := l.left * total
		if remaining-dt > depletedEpsilon {
			l.left -= dt / total
			return advanced
		}
		dt -= remaining
		l.left = 0
		bk.active++
		advanced = true
	}
	return advanced
}

// Option configures a Binder.
type Option func(*Binder)

// WithMaxLayers caps how many layers a bunker keeps. Drained layers are
// dropped from the bottom first; undrained coal is never dropped.
func WithMaxLayers(n int) Option {
	return func(b *Binder) { b.maxLayers = n }
}

// WithEventBuffer sets the channel buffer of each subscriber.
func WithEventBuffer(n int) Option {
	return func(b *Binder) { b.bufSize = n }
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Binder) { b.now = now }
}

// Binder is the per-bunker countdown engine.
type Binder struct {
	mu        sync.Mutex
	bunkers   [blend.MillCount]bunker
	seq       uint64
	now       func() time.Time
	maxLayers int
	bufSize   int

	subs      map[int]chan Event
	nextSub   int
	listeners []func(Event)
	dropped   uint64
}

// New creates an empty binder.
func New(opts ...Option) *Binder {
	b := &Binder{
		now:       time.Now,
		maxLayers: 16,
		bufSize:   16,
		subs:      make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func checkBunker(i int) error {
	if i < 0 || i >= blend.MillCount {
		return fmt.Errorf("bunker %d: %w", i, ErrUnknownBunker)
	}
	return nil
}

// Load replaces every bunker's layers (bottom-to-top) and flows. Layers with
// neither a timer nor tonnes are skipped.
func (b *Binder) Load(layers [blend.MillCount][]Layer, flows [blend.MillCount]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.bunkers {
		bk := bunker{flow: flows[i]}
		for _, l := range layers[i] {
			if l.holdsCoal() {
				bk.layers = append(bk.layers, layerState{Layer: l, left: 1})
			}
		}
		b.bunkers[i] = bk
		b.trimLocked(i)
	}
	logging.Binder("loaded layers for %d bunkers", blend.MillCount)
}

// Push adds a layer on top of a bunker without disturbing its progress.
func (b *Binder) Push(i int, l Layer) error {
	if err := checkBunker(i); err != nil {
		return err
	}
	if !l.holdsCoal() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.bunkers[i].layers = append(b.bunkers[i].layers, layerState{Layer: l, left: 1})
	b.trimLocked(i)
	return nil
}

func (b *Binder) trimLocked(i int) {
	bk := &b.bunkers[i]
	if b.maxLayers <= 0 {
		return
	}
	drop := len(bk.layers) - b.maxLayers
	if drop > bk.active {
		drop = bk.active
	}
	if drop <= 0 {
		return
	}
	bk.layers = append([]layerState(nil), bk.layers[drop:]...)
	bk.active -= drop
}

// RemoveBlend drops every layer recorded for blendID and returns the bunkers
// that held one. Progress of the remaining layers is kept; removing the
// active layer makes the next one up active.
func (b *Binder) RemoveBlend(blendID string) []int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var changed []int
	for i := range b.bunkers {
		bk := &b.bunkers[i]
		kept := make([]layerState, 0, len(bk.layers))
		active := bk.active
		for j, l := range bk.layers {
			if l.BlendID != blendID {
				kept = append(kept, l)
				continue
			}
			if j < bk.active {
				active--
			}
		}
		if len(kept) != len(bk.layers) {
			bk.layers = kept
			bk.active = active
			changed = append(changed, i)
		}
	}
	if len(changed) > 0 {
		logging.Binder("removed blend %s from bunkers %v", blendID, changed)
	}
	return changed
}

// SetFlows updates mill flows. Estimated layer durations follow the new
// flow; the drained fraction of every layer is kept.
func (b *Binder) SetFlows(flows [blend.MillCount]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.bunkers {
		b.bunkers[i].flow = flows[i]
	}
}

// Flows returns the current mill flows.
func (b *Binder) Flows() [blend.MillCount]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var flows [blend.MillCount]float64
	for i := range b.bunkers {
		flows[i] = b.bunkers[i].flow
	}
	return flows
}

// Advance drains dt from every bunker and returns the bunkers whose active
// layer changed. It does not publish an event; Tick does.
func (b *Binder) Advance(dt time.Duration) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.advanceLocked(dt)
}

func (b *Binder) advanceLocked(dt time.Duration) []int {
	if dt <= 0 {
		return nil
	}
	var advanced []int
	for i := range b.bunkers {
		if b.bunkers[i].advance(dt.Seconds()) {
			advanced = append(advanced, i)
		}
	}
	return advanced
}

// Tick advances by dt and publishes the resulting event.
func (b *Binder) Tick(dt time.Duration) Event {
	b.mu.Lock()
	advanced := b.advanceLocked(dt)
	b.seq++
	ev := Event{
		Snapshot: b.snapshotLocked(),
		Advanced: advanced,
		Active:   b.activeLocked(),
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
		}
	}
	listeners := slices.Clone(b.listeners)
	b.mu.Unlock()

	for _, idx := range advanced {
		logging.BinderDebug("bunker %d advanced to next layer", idx)
	}
	for _, fn := range listeners {
		callListener(fn, ev)
	}
	return ev
}

func callListener(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryBinder).Error("event listener panicked: %v", r)
		}
	}()
	fn(ev)
}

// Run ticks every interval until ctx is done. The elapsed wall time between
// ticks is what drains, so a late tick catches up.
func (b *Binder) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Binder("running with %s tick", interval)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			b.Tick(t.Sub(last))
			last = t
		}
	}
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes it. Events are dropped for a subscriber whose buffer is full.
func (b *Binder) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	ch := make(chan Event, b.bufSize)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// OnEvent registers a callback run synchronously after every tick. A
// panicking callback is logged and does not stop the engine.
func (b *Binder) OnEvent(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Dropped returns how many subscriber deliveries were skipped.
func (b *Binder) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// ActiveMetrics returns the mill blend each bunker is drawing from, nil for
// empty bunkers.
func (b *Binder) ActiveMetrics() [blend.MillCount]*blend.MillMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeLocked()
}

func (b *Binder) activeLocked() [blend.MillCount]*blend.MillMetrics {
	var out [blend.MillCount]*blend.MillMetrics
	for i := range b.bunkers {
		bk := &b.bunkers[i]
		if !bk.empty() {
			out[i] = bk.layers[bk.active].Metrics
		}
	}
	return out
}
