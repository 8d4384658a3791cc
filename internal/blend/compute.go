package blend

import (
	"fmt"
	"math"
	"strings"
)

// AFT bounds in °C. Regression results outside this window are clamped.
const (
	MinAFT = 1000.0
	MaxAFT = 1600.0
)

// Component is one coal's share of a mill blend.
type Component struct {
	Coal     string  `json:"coal"`
	Color    string  `json:"color,omitempty"`
	Fraction float64 `json:"fraction"`
}

// MillMetrics is the blend chemistry of one mill.
type MillMetrics struct {
	Mill        int         `json:"mill"`
	Active      bool        `json:"active"`
	Flow        float64     `json:"flow"`
	Composition []Component `json:"composition,omitempty"`
	GCV         float64     `json:"gcv"`
	Cost        float64     `json:"cost"`
	Proximate   Proximate   `json:"proximate"`
	Oxides      AshOxides   `json:"oxides"`
	AFT         float64     `json:"aft"`
}

// Composed reports whether the mill has any coal in it.
func (m MillMetrics) Composed() bool {
	return len(m.Composition) > 0
}

// Label describes the composition, e.g. "Indo 60% / Aus 40%".
func (m MillMetrics) Label() string {
	parts := make([]string, len(m.Composition))
	for i, c := range m.Composition {
		parts[i] = fmt.Sprintf("%s %.0f%%", c.Coal, c.Fraction*100)
	}
	return strings.Join(parts, " / ")
}

// Metrics is the per-mill and unit-level chemistry of a blend.
type Metrics struct {
	Mills        [MillCount]MillMetrics `json:"mills"`
	GCV          float64                `json:"gcv"`
	AFT          float64                `json:"aft"`
	Proximate    Proximate              `json:"proximate"`
	Oxides       AshOxides              `json:"oxides"`
	TotalFlow    float64                `json:"total_flow"`
	GenerationMW float64                `json:"generation_mw"`
	HeatRate     float64                `json:"heat_rate"`    // kcal/kWh
	CostRate     float64                `json:"cost_rate"`    // currency/h
	CostPerKWh   float64                `json:"cost_per_kwh"` // currency/kWh
}

// Compute validates in and derives its metrics.
func Compute(in Input) (Metrics, error) {
	if err := in.Validate(); err != nil {
		return Metrics{}, err
	}

	var mills [MillCount]MillMetrics
	for m := 0; m < MillCount; m++ {
		mills[m] = computeMill(in, m)
	}
	return aggregate(mills, in.GenerationMW), nil
}

func computeMill(in Input, m int) MillMetrics {
	mm := MillMetrics{Mill: m, Flow: in.Flows[m]}
	sum := in.MillSum(m)
	if sum <= 0 {
		return mm
	}

	var ashWeight float64
	var ashOxides, plainOxides AshOxides
	for _, r := range in.Rows {
		p := r.Percent[m]
		if p <= 0 || r.Coal == nil {
			continue
		}
		f := p / sum
		c := r.Coal
		mm.Composition = append(mm.Composition, Component{Coal: c.Name, Color: c.Color, Fraction: f})
		mm.GCV += f * c.GCV
		mm.Cost += f * c.Cost
		mm.Proximate = mm.Proximate.addScaled(f, c.Proximate)

		// Oxides are fractions of ash, so they blend by ash mass.
		w := f * c.Proximate.Ash
		ashWeight += w
		ashOxides = ashOxides.addScaled(w, c.Oxides)
		plainOxides = plainOxides.addScaled(f, c.Oxides)
	}

	if ashWeight > 0 {
		mm.Oxides = ashOxides.scale(1 / ashWeight)
	} else {
		mm.Oxides = plainOxides
	}
	mm.AFT = AFT(mm.Oxides)
	mm.Active = mm.Flow > 0
	return mm
}

// aggregate derives unit-level metrics from per-mill metrics. Mills are
// weighted by flow; when no mill has flow every composed mill counts equally
// so a preview still shows chemistry.
func aggregate(mills [MillCount]MillMetrics, generationMW float64) Metrics {
	out := Metrics{Mills: mills, GenerationMW: generationMW}

	var weightSum, ashWeight float64
	var ashOxides, plainOxides AshOxides
	weights := millWeights(mills)
	for m, mm := range mills {
		w := weights[m]
		if w == 0 {
			continue
		}
		weightSum += w
		out.GCV += w * mm.GCV
		out.Proximate = out.Proximate.addScaled(w, mm.Proximate)
		aw := w * mm.Proximate.Ash
		ashWeight += aw
		ashOxides = ashOxides.addScaled(aw, mm.Oxides)
		plainOxides = plainOxides.addScaled(w, mm.Oxides)

		if mm.Active {
			out.TotalFlow += mm.Flow
			out.CostRate += mm.Flow * mm.Cost
		}
	}
	if weightSum == 0 {
		return out
	}

	out.GCV /= weightSum
	out.Proximate = out.Proximate.scale(1 / weightSum)
	if ashWeight > 0 {
		out.Oxides = ashOxides.scale(1 / ashWeight)
	} else {
		out.Oxides = plainOxides.scale(1 / weightSum)
	}
	out.AFT = AFT(out.Oxides)
	out.HeatRate = HeatRate(out.TotalFlow, out.GCV, generationMW)
	if generationMW > 0 {
		out.CostPerKWh = out.CostRate / (generationMW * 1000)
	}
	return out
}

func millWeights(mills [MillCount]MillMetrics) [MillCount]float64 {
	var w [MillCount]float64
	anyFlow := false
	for m, mm := range mills {
		if mm.Active && mm.Composed() {
			w[m] = mm.Flow
			anyFlow = true
		}
	}
	if anyFlow {
		return w
	}
	for m, mm := range mills {
		if mm.Composed() {
			w[m] = 1
		}
	}
	return w
}

// AFT estimates the ash initial deformation temperature (°C) from the ash
// oxide analysis using a two-regime linear regression on the
// SiO2+Al2O3+TiO2 total. An empty analysis yields 0.
func AFT(o AshOxides) float64 {
	if o.IsZero() {
		return 0
	}
	s := o.SiO2 + o.Al2O3 + o.TiO2
	a := 100 - (o.SiO2 + o.Al2O3 + o.Fe2O3 + o.CaO + o.MgO)

	var t float64
	if s <= 60 {
		t = 69.94*o.SiO2 + 71.01*o.Al2O3 + 65.23*o.Fe2O3 + 12.16*o.CaO + 68.31*o.MgO + 67.19*a - 5485.7
	} else {
		t = 92.55*o.SiO2 + 97.83*o.Al2O3 + 84.52*o.Fe2O3 + 83.67*o.CaO + 81.04*o.MgO + 91.92*a - 7891
	}
	return math.Min(MaxAFT, math.Max(MinAFT, t))
}

// HeatRate returns kcal/kWh for a coal flow (t/h) of the given GCV (kcal/kg)
// at a generation load (MW). Zero load gives zero.
func HeatRate(flow, gcv, generationMW float64) float64 {
	if generationMW <= 0 {
		return 0
	}
	return flow * 1000 * gcv / (generationMW * 1000)
}

// EstimateSeconds is how long tonnes of coal last at flow t/h. Zero flow
// gives zero, which callers treat as "does not drain".
func EstimateSeconds(tonnes, flow float64) float64 {
	if flow <= 0 || tonnes <= 0 {
		return 0
	}
	return tonnes / flow * 3600
}

// Summarize re-derives unit metrics from the mill blends currently being
// drawn from each bunker. A nil entry means the bunker is empty. Current
// flows replace the flows the layers were recorded with.
func Summarize(active [MillCount]*MillMetrics, flows [MillCount]float64, generationMW float64) Metrics {
	var mills [MillCount]MillMetrics
	for m := 0; m < MillCount; m++ {
		if active[m] == nil {
			mills[m] = MillMetrics{Mill: m, Flow: flows[m]}
			continue
		}
		mm := *active[m]
		mm.Mill = m
		mm.Flow = flows[m]
		mm.Active = mm.Flow > 0 && mm.Composed()
		mills[m] = mm
	}
	return aggregate(mills, generationMW)
}
