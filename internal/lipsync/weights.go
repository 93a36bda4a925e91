package lipsync

import (
	"sort"

	"github.com/normanking/cortexlipsync/internal/rig"
)

// Weights accumulates blendshape weights for one tick, keyed by rig channel index.
// Values are not clamped; rigs display over-articulation as-is.
type Weights map[int]float32

// NewWeights returns an empty accumulator sized for n channels.
func NewWeights(n int) Weights {
	return make(Weights, n)
}

// Set overwrites a channel.
func (w Weights) Set(idx int, value float32) {
	w[idx] = value
}

// Add reads the channel's running total and adds value to it.
func (w Weights) Add(idx int, value float32) {
	w[idx] = w[idx] + value
}

// Get returns the accumulated value, 0 for untouched channels.
func (w Weights) Get(idx int) float32 {
	return w[idx]
}

// Has reports whether the channel was written this tick.
func (w Weights) Has(idx int) bool {
	_, ok := w[idx]
	return ok
}

// Scale multiplies every channel in place.
func (w Weights) Scale(factor float32) {
	for idx, v := range w {
		w[idx] = v * factor
	}
}

// Indices returns the written channel indices, ascending.
func (w Weights) Indices() []int {
	out := make([]int, 0, len(w))
	for idx := range w {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Flush writes every channel to the sink once, in ascending index order.
func (w Weights) Flush(sink rig.Sink) {
	for _, idx := range w.Indices() {
		sink.SetChannelWeight(idx, w[idx])
	}
}
