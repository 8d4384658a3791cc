package blend

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coalA() *Coal {
	return &Coal{
		ID: "a", Name: "Indo 4000", GCV: 4000, Cost: 3000, Color: "#aa0000",
		Proximate: Proximate{Ash: 30, Moisture: 10, VolatileMatter: 25, FixedCarbon: 35, Sulphur: 0.5},
		Oxides:    AshOxides{SiO2: 60, Al2O3: 25, Fe2O3: 5, CaO: 2, MgO: 1, TiO2: 1.5},
	}
}

func coalB() *Coal {
	return &Coal{
		ID: "b", Name: "Aus 6000", GCV: 6000, Cost: 9000, Color: "#0000aa",
		Proximate: Proximate{Ash: 10, Moisture: 15, VolatileMatter: 35, FixedCarbon: 40, Sulphur: 0.8},
		Oxides:    AshOxides{SiO2: 40, Al2O3: 20, Fe2O3: 15, CaO: 10, MgO: 3, TiO2: 1},
	}
}

func sampleInput() Input {
	return Input{
		Rows: []Row{
			{CoalID: "a", Coal: coalA(), Percent: [MillCount]float64{50, 100}},
			{CoalID: "b", Coal: coalB(), Percent: [MillCount]float64{50, 0}},
		},
		Flows:        [MillCount]float64{40, 20},
		GenerationMW: 250,
	}
}

func TestCompute_PerMill(t *testing.T) {
	m, err := Compute(sampleInput())
	require.NoError(t, err)

	m0 := m.Mills[0]
	assert.True(t, m0.Active)
	assert.InDelta(t, 5000, m0.GCV, 1e-9)
	assert.InDelta(t, 6000, m0.Cost, 1e-9)
	assert.InDelta(t, 20, m0.Proximate.Ash, 1e-9)
	assert.InDelta(t, 12.5, m0.Proximate.Moisture, 1e-9)
	// ash-mass weighting: (15*60 + 5*40) / 20
	assert.InDelta(t, 55, m0.Oxides.SiO2, 1e-9)
	assert.InDelta(t, 23.75, m0.Oxides.Al2O3, 1e-9)
	require.Len(t, m0.Composition, 2)
	assert.Equal(t, "Indo 4000", m0.Composition[0].Coal)
	assert.InDelta(t, 0.5, m0.Composition[1].Fraction, 1e-9)

	m1 := m.Mills[1]
	assert.InDelta(t, 4000, m1.GCV, 1e-9)
	assert.Equal(t, coalA().Oxides, m1.Oxides)

	m2 := m.Mills[2]
	assert.False(t, m2.Active)
	assert.False(t, m2.Composed())
	assert.Zero(t, m2.AFT)
}

func TestCompute_Overall(t *testing.T) {
	m, err := Compute(sampleInput())
	require.NoError(t, err)

	assert.InDelta(t, 60, m.TotalFlow, 1e-9)
	assert.InDelta(t, 14000.0/3, m.GCV, 1e-9)
	assert.InDelta(t, 70.0/3, m.Proximate.Ash, 1e-9)
	assert.InDelta(t, 80000.0/1400, m.Oxides.SiO2, 1e-9)
	assert.InDelta(t, 300000, m.CostRate, 1e-9)
	assert.InDelta(t, 1.2, m.CostPerKWh, 1e-9)
	assert.InDelta(t, 1120, m.HeatRate, 1e-6)
	assert.Equal(t, AFT(m.Oxides), m.AFT)
}

func TestCompute_NoFlowWeightsMillsEqually(t *testing.T) {
	in := sampleInput()
	in.Flows = [MillCount]float64{}
	in.GenerationMW = 0

	m, err := Compute(in)
	require.NoError(t, err)

	assert.InDelta(t, 4500, m.GCV, 1e-9)
	assert.Zero(t, m.TotalFlow)
	assert.Zero(t, m.HeatRate)
	assert.Zero(t, m.CostRate)
	assert.Zero(t, m.CostPerKWh)
}

func TestCompute_ZeroAshFallsBackToFractions(t *testing.T) {
	a, b := coalA(), coalB()
	a.Proximate.Ash, b.Proximate.Ash = 0, 0
	in := Input{
		Rows: []Row{
			{Coal: a, Percent: [MillCount]float64{25}},
			{Coal: b, Percent: [MillCount]float64{75}},
		},
		Flows: [MillCount]float64{10},
	}

	m, err := Compute(in)
	require.NoError(t, err)
	assert.InDelta(t, 0.25*60+0.75*40, m.Mills[0].Oxides.SiO2, 1e-9)
	assert.InDelta(t, 0.25*60+0.75*40, m.Oxides.SiO2, 1e-9)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
		want   string
	}{
		{"no rows", func(in *Input) { in.Rows = nil }, "at least one coal row"},
		{"bad sum", func(in *Input) { in.Rows[0].Percent[0] = 40 }, "mill 1: percentages sum to 90.00"},
		{"negative pct", func(in *Input) { in.Rows[1].Percent[2] = -5; in.Rows[0].Percent[2] = 105 }, "out of range"},
		{"flow without coal", func(in *Input) { in.Flows[3] = 10 }, "mill 4: has flow but no coal"},
		{"negative flow", func(in *Input) { in.Flows[0] = -1 }, "mill 1: flow must be a finite non-negative number"},
		{"infinite flow", func(in *Input) { in.Flows[0] = math.Inf(1) }, "mill 1: flow"},
		{"NaN flow", func(in *Input) { in.Flows[1] = math.NaN() }, "mill 2: flow"},
		{"negative generation", func(in *Input) { in.GenerationMW = -1 }, "generation"},
		{"infinite generation", func(in *Input) { in.GenerationMW = math.Inf(1) }, "generation"},
		{"NaN generation", func(in *Input) { in.GenerationMW = math.NaN() }, "generation"},
		{"negative timer", func(in *Input) { in.Timers[1] = -3 }, "mill 2: timer"},
		{"NaN timer", func(in *Input) { in.Timers[0] = math.NaN() }, "mill 1: timer"},
		{"infinite timer", func(in *Input) { in.Timers[0] = math.Inf(1) }, "mill 1: timer"},
		{"infinite layer tonnes", func(in *Input) { in.LayerTonnes[0] = math.Inf(1) }, "mill 1: layer tonnes"},
		{"NaN layer tonnes", func(in *Input) { in.LayerTonnes[1] = math.NaN() }, "mill 2: layer tonnes"},
		{"unresolved", func(in *Input) { in.Rows[0].Coal = nil }, "not resolved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sampleInput()
			tt.mutate(&in)

			err := in.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
			assert.Contains(t, err.Error(), tt.want)

			_, err = Compute(in)
			assert.Error(t, err)
		})
	}
}

func TestValidate_ToleratesRounding(t *testing.T) {
	in := sampleInput()
	in.Rows[0].Percent[0] = 33.4
	in.Rows[1].Percent[0] = 66.3
	assert.NoError(t, in.Validate())
}

func TestValidationError_CollectsAll(t *testing.T) {
	in := sampleInput()
	in.Flows[0] = -1
	in.GenerationMW = -1

	var verr *ValidationError
	require.True(t, errors.As(in.Validate(), &verr))
	assert.Len(t, verr.Problems, 2)
}

func TestAFT(t *testing.T) {
	t.Run("high silica-alumina regime", func(t *testing.T) {
		assert.InDelta(t, 1422.17, AFT(coalA().Oxides), 1e-6)
		assert.InDelta(t, 1218.26, AFT(coalB().Oxides), 1e-6)
	})
	t.Run("low regime at boundary", func(t *testing.T) {
		o := AshOxides{SiO2: 45, Al2O3: 14, TiO2: 1, Fe2O3: 8, CaO: 5, MgO: 2}
		assert.InDelta(t, 1121.94, AFT(o), 1e-6)
	})
	t.Run("clamped", func(t *testing.T) {
		o := AshOxides{SiO2: 30, Al2O3: 20, TiO2: 1, Fe2O3: 20, CaO: 15, MgO: 5}
		assert.Equal(t, MinAFT, AFT(o))
		assert.Equal(t, MaxAFT, AFT(AshOxides{SiO2: 40, Al2O3: 59, TiO2: 1}))
	})
	t.Run("unknown", func(t *testing.T) {
		assert.Zero(t, AFT(AshOxides{}))
	})
}

func TestHeatRateAndEstimate(t *testing.T) {
	assert.InDelta(t, 2000, HeatRate(100, 5000, 250), 1e-9)
	assert.Zero(t, HeatRate(100, 5000, 0))

	assert.InDelta(t, 7200, EstimateSeconds(80, 40), 1e-9)
	assert.Zero(t, EstimateSeconds(80, 0))
	assert.Zero(t, EstimateSeconds(0, 40))
}

func TestSummarize(t *testing.T) {
	m, err := Compute(sampleInput())
	require.NoError(t, err)

	var active [MillCount]*MillMetrics
	active[0] = &m.Mills[0]
	flows := [MillCount]float64{40, 20}

	s := Summarize(active, flows, 250)
	assert.InDelta(t, 40, s.TotalFlow, 1e-9)
	assert.InDelta(t, 5000, s.GCV, 1e-9)
	assert.InDelta(t, 800, s.HeatRate, 1e-9)
	assert.False(t, s.Mills[1].Active, "empty bunker must not count")
	assert.InDelta(t, 20, s.Mills[1].Flow, 1e-9)

	// Current flow replaces the recorded one.
	flows[0] = 10
	s = Summarize(active, flows, 250)
	assert.InDelta(t, 10, s.Mills[0].Flow, 1e-9)
	assert.InDelta(t, 60000, s.CostRate, 1e-9)
}

func TestCoalValidate(t *testing.T) {
	assert.NoError(t, coalA().Validate())

	bad := coalA()
	bad.Name = " "
	bad.GCV = -1
	bad.Proximate.Moisture = 60
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "gcv")
	assert.Contains(t, err.Error(), "proximate analysis sums to")
}

func TestMillMetrics_Label(t *testing.T) {
	m, err := Compute(sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "Indo 4000 50% / Aus 6000 50%", m.Mills[0].Label())
	assert.Equal(t, "Indo 4000 100%", m.Mills[1].Label())
	assert.Empty(t, m.Mills[2].Label())
}
