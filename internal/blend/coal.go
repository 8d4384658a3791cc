// Package blend computes weighted coal-blend chemistry for the six mills of
// a unit: per-mill and overall GCV, ash-fusion temperature, proximate
// analysis, heat rate and cost rate.
package blend

import (
	"fmt"
	"strings"
	"time"
)

// MillCount is the number of mills (and bunkers) on the unit.
const MillCount = 6

// Proximate is the proximate analysis of a coal, all values in percent.
type Proximate struct {
	Ash            float64 `json:"ash" yaml:"ash"`
	Moisture       float64 `json:"moisture" yaml:"moisture"`
	VolatileMatter float64 `json:"volatile_matter" yaml:"volatile_matter"`
	FixedCarbon    float64 `json:"fixed_carbon" yaml:"fixed_carbon"`
	Sulphur        float64 `json:"sulphur" yaml:"sulphur"`
}

// AshOxides is the oxide analysis of a coal's ash, in percent of ash.
type AshOxides struct {
	SiO2  float64 `json:"sio2" yaml:"sio2"`
	Al2O3 float64 `json:"al2o3" yaml:"al2o3"`
	Fe2O3 float64 `json:"fe2o3" yaml:"fe2o3"`
	CaO   float64 `json:"cao" yaml:"cao"`
	MgO   float64 `json:"mgo" yaml:"mgo"`
	Na2O  float64 `json:"na2o" yaml:"na2o"`
	K2O   float64 `json:"k2o" yaml:"k2o"`
	TiO2  float64 `json:"tio2" yaml:"tio2"`
	SO3   float64 `json:"so3" yaml:"so3"`
}

// Coal is one entry of the coal catalog.
type Coal struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Source    string    `json:"source,omitempty" yaml:"source,omitempty"`
	GCV       float64   `json:"gcv" yaml:"gcv"`   // kcal/kg
	Cost      float64   `json:"cost" yaml:"cost"` // currency per tonne
	Proximate Proximate `json:"proximate" yaml:"proximate"`
	Oxides    AshOxides `json:"oxides" yaml:"oxides"`
	Color     string    `json:"color,omitempty" yaml:"color,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// Validate checks the catalog entry for impossible values.
func (c Coal) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Name) == "" {
		problems = append(problems, "name is required")
	}
	if c.GCV < 0 {
		problems = append(problems, "gcv must not be negative")
	}
	if c.Cost < 0 {
		problems = append(problems, "cost must not be negative")
	}
	p := c.Proximate
	for _, v := range []float64{p.Ash, p.Moisture, p.VolatileMatter, p.FixedCarbon, p.Sulphur} {
		if v < 0 || v > 100 {
			problems = append(problems, "proximate values must be within 0..100")
			break
		}
	}
	if sum := p.Ash + p.Moisture + p.VolatileMatter + p.FixedCarbon; sum > 100+percentTolerance {
		problems = append(problems, fmt.Sprintf("proximate analysis sums to %.2f%%", sum))
	}
	if c.Oxides.total() > 100+percentTolerance {
		problems = append(problems, fmt.Sprintf("ash oxides sum to %.2f%%", c.Oxides.total()))
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (o AshOxides) total() float64 {
	return o.SiO2 + o.Al2O3 + o.Fe2O3 + o.CaO + o.MgO + o.Na2O + o.K2O + o.TiO2 + o.SO3
}

// IsZero reports whether no oxide analysis is present.
func (o AshOxides) IsZero() bool {
	return o == AshOxides{}
}

// addScaled returns o + w*x.
func (o AshOxides) addScaled(w float64, x AshOxides) AshOxides {
	return AshOxides{
		SiO2:  o.SiO2 + w*x.SiO2,
		Al2O3: o.Al2O3 + w*x.Al2O3,
		Fe2O3: o.Fe2O3 + w*x.Fe2O3,
		CaO:   o.CaO + w*x.CaO,
		MgO:   o.MgO + w*x.MgO,
		Na2O:  o.Na2O + w*x.Na2O,
		K2O:   o.K2O + w*x.K2O,
		TiO2:  o.TiO2 + w*x.TiO2,
		SO3:   o.SO3 + w*x.SO3,
	}
}

func (o AshOxides) scale(f float64) AshOxides {
	return AshOxides{}.addScaled(f, o)
}

func (p Proximate) addScaled(w float64, x Proximate) Proximate {
	return Proximate{
		Ash:            p.Ash + w*x.Ash,
		Moisture:       p.Moisture + w*x.Moisture,
		VolatileMatter: p.VolatileMatter + w*x.VolatileMatter,
		FixedCarbon:    p.FixedCarbon + w*x.FixedCarbon,
		Sulphur:        p.Sulphur + w*x.Sulphur,
	}
}

func (p Proximate) scale(f float64) Proximate {
	return Proximate{}.addScaled(f, p)
}
