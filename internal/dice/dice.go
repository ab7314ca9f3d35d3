// Package dice provides the random source used for every game roll.
package dice

import "math/rand/v2"

// Roller is the random source the game consumes.
type Roller interface {
	// IntN returns a value in [0, n). n must be positive.
	IntN(n int) int
	// Float64 returns a value in [0, 1).
	Float64() float64
}

// New returns a deterministic roller for seed.
func New(seed uint64) Roller {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Between returns a uniform value in [lo, hi]. Reversed bounds are swapped.
func Between(r Roller, lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + r.IntN(hi-lo+1)
}

// Chance reports true with probability p.
func Chance(r Roller, p float64) bool {
	return r.Float64() < p
}

// Script replays fixed values, then repeats the last one. Tests use it to force
// specific rolls.
type Script struct {
	Ints   []int
	Floats []float64
	i, f   int
}

func (s *Script) IntN(n int) int {
	if len(s.Ints) == 0 {
		return 0
	}
	v := s.Ints[min(s.i, len(s.Ints)-1)]
	s.i++
	if v >= n {
		v = n - 1
	}
	if v < 0 {
		v = 0
	}
	return v
}

func (s *Script) Float64() float64 {
	if len(s.Floats) == 0 {
		return 0
	}
	v := s.Floats[min(s.f, len(s.Floats)-1)]
	s.f++
	return v
}
