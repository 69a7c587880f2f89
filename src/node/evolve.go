package node

// DecideSwitch is true iff feedback is strictly below threshold.
func DecideSwitch(feedback, threshold float64) bool {
	return feedback < threshold
}

// RandSource is the part of *rand.Rand the Mutator needs.
type RandSource interface {
	Float64() float64
}

// Mutator randomly rescales the feedback threshold, independently of the
// switch decision.
type Mutator struct {
	Probability float64
	Min         float64
	Max         float64
	Rand        RandSource
}

// Evolve draws once to decide whether to mutate, and once more for the
// factor in [Min, Max). It returns the new threshold and whether it changed.
func (m *Mutator) Evolve(threshold float64) (float64, bool) {
	if m.Rand.Float64() >= m.Probability {
		return threshold, false
	}
	factor := m.Min + m.Rand.Float64()*(m.Max-m.Min)
	return threshold * factor, true
}
