package common

// RollingWindow keeps the last size values pushed into it. It backs the
// feedback smoothing, where only the most recent epochs matter.
type RollingWindow struct {
	size  int
	items []float64
}

// NewRollingWindow ...
func NewRollingWindow(size int) *RollingWindow {
	if size < 1 {
		size = 1
	}
	return &RollingWindow{
		size:  size,
		items: make([]float64, 0, 2*size),
	}
}

// Push appends v, dropping the oldest value once the window is full.
func (r *RollingWindow) Push(v float64) {
	if len(r.items) >= 2*r.size {
		r.Roll()
	}
	r.items = append(r.items, v)
}

// Values returns a copy of the values currently inside the window, oldest
// first.
func (r *RollingWindow) Values() []float64 {
	start := 0
	if len(r.items) > r.size {
		start = len(r.items) - r.size
	}
	out := make([]float64, len(r.items)-start)
	copy(out, r.items[start:])
	return out
}

// Len ...
func (r *RollingWindow) Len() int {
	if len(r.items) > r.size {
		return r.size
	}
	return len(r.items)
}

// Mean of the values inside the window, 0 when empty.
func (r *RollingWindow) Mean() float64 {
	return Mean(r.Values())
}

// Roll discards everything but the last size items.
func (r *RollingWindow) Roll() {
	newList := make([]float64, 0, 2*r.size)
	newList = append(newList, r.items[len(r.items)-r.size:]...)
	r.items = newList
}
