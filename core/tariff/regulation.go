package tariff

// regulationEpsilon is the magnitude below which capacity counts as zero.
const regulationEpsilon = 1e-4

// RegulationAccumulator sums available regulation capacity. Up is never
// negative and Down never positive.
type RegulationAccumulator struct {
	Up   float64 `json:"up"`
	Down float64 `json:"down"`
}

// NewRegulationAccumulator builds an accumulator, zeroing wrong-signed or
// negligible values.
func NewRegulationAccumulator(up, down float64) RegulationAccumulator {
	var a RegulationAccumulator
	a.AddUp(up)
	a.AddDown(down)
	return a
}

// Add combines o into a.
func (a *RegulationAccumulator) Add(o RegulationAccumulator) {
	a.Up = clampUp(a.Up + o.Up)
	a.Down = clampDown(a.Down + o.Down)
}

// AddUp adds up-regulation capacity. Negative amounts are refused.
func (a *RegulationAccumulator) AddUp(v float64) bool {
	if v < 0 {
		return false
	}
	a.Up = clampUp(a.Up + v)
	return true
}

// AddDown adds down-regulation capacity. Positive amounts are refused.
func (a *RegulationAccumulator) AddDown(v float64) bool {
	if v > 0 {
		return false
	}
	a.Down = clampDown(a.Down + v)
	return true
}

// IsZero reports whether no capacity remains in either direction.
func (a RegulationAccumulator) IsZero() bool { return a.Up == 0 && a.Down == 0 }

func clampUp(v float64) float64 {
	if v < regulationEpsilon {
		return 0
	}
	return v
}

func clampDown(v float64) float64 {
	if v > -regulationEpsilon {
		return 0
	}
	return v
}
