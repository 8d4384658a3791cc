package binder

import (
	"time"

	"github.com/shahjoyal/view-bunker/internal/blend"
)

// LayerStatus is where a layer is in its life.
type LayerStatus string

const (
	StatusDrained LayerStatus = "drained"
	StatusActive  LayerStatus = "active"
	StatusQueued  LayerStatus = "queued"
)

// LayerView is a read-only view of one layer.
type LayerView struct {
	BlendID          string             `json:"blend_id"`
	Label            string             `json:"label"`
	Status           LayerStatus        `json:"status"`
	Tonnes           float64            `json:"tonnes"`
	RemainingTonnes  float64            `json:"remaining_tonnes"`
	TotalSeconds     float64            `json:"total_seconds"`
	RemainingSeconds float64            `json:"remaining_seconds"`
	Left             float64            `json:"left"` // fraction not yet drained
	Estimated        bool               `json:"estimated"`
	Stalled          bool               `json:"stalled"`
	Metrics          *blend.MillMetrics `json:"metrics,omitempty"`
}

// BunkerView is a read-only view of one bunker.
type BunkerView struct {
	Bunker          int         `json:"bunker"`
	Flow            float64     `json:"flow"`
	Active          int         `json:"active"`
	Empty           bool        `json:"empty"`
	Stalled         bool        `json:"stalled"`
	RemainingTonnes float64     `json:"remaining_tonnes"`
	SecondsToEmpty  float64     `json:"seconds_to_empty"` // 0 when stalled or empty
	Layers          []LayerView `json:"layers"`
}

// ActiveLayer returns the draining layer, or nil when the bunker is empty.
func (v BunkerView) ActiveLayer() *LayerView {
	if v.Empty || v.Active >= len(v.Layers) {
		return nil
	}
	return &v.Layers[v.Active]
}

// Snapshot is the state of every bunker at one instant.
type Snapshot struct {
	Seq     uint64                      `json:"seq"`
	At      time.Time                   `json:"at"`
	Bunkers [blend.MillCount]BunkerView `json:"bunkers"`
}

// Event is published after every tick.
type Event struct {
	Snapshot
	// Bunkers whose active layer changed on this tick.
	Advanced []int `json:"advanced,omitempty"`
	// Mill blend each bunker is drawing from; nil when empty.
	Active [blend.MillCount]*blend.MillMetrics `json:"-"`
}

// Snapshot returns the current state without advancing.
func (b *Binder) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Binder) snapshotLocked() Snapshot {
	snap := Snapshot{Seq: b.seq, At: b.now()}
	for i := range b.bunkers {
		snap.Bunkers[i] = viewBunker(i, &b.bunkers[i])
	}
	return snap
}

func viewBunker(i int, bk *bunker) BunkerView {
	v := BunkerView{
		Bunker: i,
		Flow:   bk.flow,
		Active: bk.active,
		Empty:  bk.empty(),
		Layers: make([]LayerView, len(bk.layers)),
	}
	for j, l := range bk.layers {
		total, estimated := l.duration(bk.flow)
		lv := LayerView{
			BlendID:          l.BlendID,
			Label:            l.Label,
			Tonnes:           l.Tonnes,
			RemainingTonnes:  l.left * l.Tonnes,
			TotalSeconds:     total,
			RemainingSeconds: l.left * total,
			Left:             l.left,
			Estimated:        estimated,
			Stalled:          total <= 0 && l.left > 0,
			Metrics:          l.Metrics,
		}
		switch {
		case j < bk.active:
			lv.Status = StatusDrained
		case j == bk.active:
			lv.Status = StatusActive
		default:
			lv.Status = StatusQueued
		}
		if j >= bk.active {
			v.RemainingTonnes += lv.RemainingTonnes
			v.SecondsToEmpty += lv.RemainingSeconds
			if lv.Stalled {
				v.Stalled = true
			}
		}
		v.Layers[j] = lv
	}
	if v.Stalled {
		v.SecondsToEmpty = 0
	}
	return v
}
