package separation

import "math/rand"

// ProgressSource yields the per-tick progress increment. Injectable so
// tests can substitute a deterministic sequence.
type ProgressSource interface {
	Next() float64
}

// randomSource yields increments in (0, 10], simulating variable backend
// latency while keeping the number of ticks to completion bounded.
type randomSource struct{}

// NewRandomSource returns the default bounded-random progress source.
func NewRandomSource() ProgressSource {
	return randomSource{}
}

func (randomSource) Next() float64 {
	// rand.Float64 is in [0,1); invert so the increment is in (0,10].
	return (1 - rand.Float64()) * 10
}
