package engine

import "math"

// Window is a fixed-capacity FIFO of the most recent samples for one key.
// Statistics iterate the buffer on demand; the two-pass variance avoids the
// catastrophic cancellation a running sum-of-squares suffers when values sit
// far from zero.
type Window struct {
	capacity int
	values   []float64
	position int
	samples  int
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		values:   make([]float64, capacity),
	}
}

// Push appends v, evicting the oldest sample once the window is at capacity.
func (w *Window) Push(v float64) {
	w.values[w.position] = v
	w.position = (w.position + 1) % w.capacity
	if w.samples < w.capacity {
		w.samples++
	}
}

func (w *Window) Size() int {
	return w.samples
}

func (w *Window) Full() bool {
	return w.samples == w.capacity
}

func (w *Window) Average() float64 {
	if w.samples == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.values[:w.samples] {
		sum += v
	}
	return sum / float64(w.samples)
}

// StdDev returns the population standard deviation (denominator = sample
// count) of the current contents.
func (w *Window) StdDev() float64 {
	if w.samples == 0 {
		return 0
	}
	mean := w.Average()
	var sq float64
	for _, v := range w.values[:w.samples] {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(w.samples))
}

// Latest returns the most recently pushed value.
func (w *Window) Latest() (float64, bool) {
	if w.samples == 0 {
		return 0, false
	}
	idx := (w.position - 1 + w.capacity) % w.capacity
	return w.values[idx], true
}

// Values returns the window contents in arrival order, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, 0, w.samples)
	start := 0
	if w.samples == w.capacity {
		start = w.position
	}
	for i := 0; i < w.samples; i++ {
		out = append(out, w.values[(start+i)%w.capacity])
	}
	return out
}
