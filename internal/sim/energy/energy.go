// Package energy is the catalog of intensity, interaction and regeneration
// functions that define the item field's energy model.
//
// Each function is a tagged value: a stable numeric tag plus its float
// arguments. The tag alone decides how the function evaluates and which
// classification flags it carries, so functions can be compared, cached and
// serialized without looking at code identity.
package energy

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownFunction = errors.New("unknown energy function")
	ErrArgCount        = errors.New("wrong energy function argument count")
	ErrBadArgs         = errors.New("invalid energy function arguments")
)

// Flags classify a function for the cache.
//
// Stationary: the value depends only on relative position (or not on
// position at all). Constant: the function is identically one value.
// TimeIndependent: regeneration only; the value ignores the time step.
type Flags struct {
	Stationary      bool
	Constant        bool
	TimeIndependent bool
}

type arity struct {
	min int
	max int // -1: unbounded
}

func exactly(n int) arity { return arity{min: n, max: n} }
func atLeast(n int) arity { return arity{min: n, max: -1} }

func (a arity) accepts(n int) bool {
	if n < a.min {
		return false
	}
	return a.max < 0 || n <= a.max
}

func (a arity) String() string {
	switch {
	case a.max < 0:
		return fmt.Sprintf("at least %d", a.min)
	default:
		return fmt.Sprintf("exactly %d", a.min)
	}
}

type funcSpec struct {
	name  string
	arity arity
	flags Flags
}

func checkArity(kind string, s funcSpec, args []float64) error {
	if !s.arity.accepts(len(args)) {
		return fmt.Errorf("%s %s: %w: want %s, got %d", kind, s.name, ErrArgCount, s.arity, len(args))
	}
	return nil
}

func cloneArgs(args []float64) []float64 {
	if len(args) == 0 {
		return nil
	}
	out := make([]float64, len(args))
	copy(out, args)
	return out
}

func equalArgs(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
