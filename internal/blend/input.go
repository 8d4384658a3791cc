package blend

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// percentTolerance is how far a mill's row percentages may stray from 100.
const percentTolerance = 0.5

// ErrInvalidInput is matched by every ValidationError.
var ErrInvalidInput = errors.New("invalid blend input")

// ValidationError lists every problem found in an input.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return ErrInvalidInput.Error() + ": " + strings.Join(e.Problems, "; ")
}

// Is lets errors.Is(err, ErrInvalidInput) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Row is one coal line of the operator's blend sheet: which coal, and what
// share of each mill's feed it makes up.
type Row struct {
	CoalID  string             `json:"coal_id" yaml:"coal_id"`
	Coal    *Coal              `json:"coal,omitempty" yaml:"coal,omitempty"`
	Percent [MillCount]float64 `json:"percent" yaml:"percent"`
}

// Input is what the operator submits for one blend.
type Input struct {
	Rows         []Row              `json:"rows" yaml:"rows"`
	Flows        [MillCount]float64 `json:"flows" yaml:"flows"` // t/h per mill
	GenerationMW float64            `json:"generation_mw" yaml:"generation_mw"`

	// Seconds the new layer in each bunker lasts. Zero means estimate it
	// from LayerTonnes and the mill flow.
	Timers [MillCount]float64 `json:"timers" yaml:"timers"`

	// Tonnes loaded into each bunker for this blend. Zero means the plant default.
	LayerTonnes [MillCount]float64 `json:"layer_tonnes" yaml:"layer_tonnes"`
}

// Blend is the persisted record: the submitted input (with coal snapshots)
// and the metrics computed from it.
type Blend struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Input     Input     `json:"input"`
	Metrics   Metrics   `json:"metrics"`
}

// validAmount reports whether v is usable as a flow, timer, tonnage or load.
func validAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

// MillSum returns the total row percentage for mill m.
func (in *Input) MillSum(m int) float64 {
	var sum float64
	for _, r := range in.Rows {
		sum += r.Percent[m]
	}
	return sum
}

// Validate checks the input. Rows must already be resolved to coals.
func (in *Input) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(in.Rows) == 0 {
		add("at least one coal row is required")
	}
	for i, r := range in.Rows {
		if r.Coal == nil {
			add("row %d: coal %q is not resolved", i+1, r.CoalID)
		}
		for m, p := range r.Percent {
			if p < 0 || p > 100 || math.IsNaN(p) {
				add("row %d mill %d: percentage %.2f out of range", i+1, m+1, p)
			}
		}
	}
	for m := 0; m < MillCount; m++ {
		sum := in.MillSum(m)
		if sum != 0 && math.Abs(sum-100) > percentTolerance {
			add("mill %d: percentages sum to %.2f, want 100", m+1, sum)
		}
		if !validAmount(in.Flows[m]) {
			add("mill %d: flow must be a finite non-negative number", m+1)
		}
		if in.Flows[m] > 0 && sum == 0 {
			add("mill %d: has flow but no coal composition", m+1)
		}
		if !validAmount(in.Timers[m]) {
			add("mill %d: timer must be a finite non-negative number", m+1)
		}
		if !validAmount(in.LayerTonnes[m]) {
			add("mill %d: layer tonnes must be a finite non-negative number", m+1)
		}
	}
	if !validAmount(in.GenerationMW) {
		add("generation must be a finite non-negative number")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
