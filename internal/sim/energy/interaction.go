package energy

import (
	"fmt"
	"math"

	"gibbsworld.ai/internal/sim/geom"
)

type InteractionTag uint64

const (
	InteractionZero InteractionTag = iota
	InteractionPiecewiseBox
	InteractionCross
	InteractionCrossHash
	InteractionMoore
	InteractionGaussian
	InteractionFour
)

var interactionSpecs = map[InteractionTag]funcSpec{
	InteractionZero:         {name: "ZERO", arity: exactly(0), flags: Flags{Stationary: true, Constant: true}},
	InteractionPiecewiseBox: {name: "PIECEWISE_BOX", arity: exactly(4), flags: Flags{Stationary: true}},
	InteractionCross:        {name: "CROSS", arity: exactly(6), flags: Flags{Stationary: true}},
	InteractionCrossHash:    {name: "CROSS_HASH", arity: exactly(8)},
	InteractionMoore:        {name: "MOORE", arity: exactly(0), flags: Flags{Stationary: true}},
	InteractionGaussian:     {name: "GAUSSIAN", arity: exactly(2), flags: Flags{Stationary: true}},
	InteractionFour:         {name: "FOUR", arity: exactly(0), flags: Flags{Stationary: true}},
}

// Values used by the MOORE and FOUR neighbourhood functions.
const (
	neighbourAttraction = 1.0
	farRepulsion        = -200.0
)

func (t InteractionTag) String() string {
	if s, ok := interactionSpecs[t]; ok {
		return s.name
	}
	return fmt.Sprintf("INTERACTION(%d)", uint64(t))
}

func ParseInteractionTag(name string) (InteractionTag, error) {
	for tag, s := range interactionSpecs {
		if s.name == name {
			return tag, nil
		}
	}
	return 0, fmt.Errorf("interaction %q: %w", name, ErrUnknownFunction)
}

// Interaction is the pairwise log-energy between an item at a and an item
// at b. It is not assumed symmetric. The zero value is the ZERO function.
type Interaction struct {
	tag  InteractionTag
	args []float64
}

// NewInteraction validates tag and arguments. Arguments are copied.
//
//	PIECEWISE_BOX [l1, l2, c1, c2]: c1 if |a-b|^2 < l1, c2 if < l2, else 0
//	CROSS [d1, d2, a1, a2, b1, b2]: by Chebyshev distance; a* on the axes, b* off them
//	CROSS_HASH [s, c, k, delta, a1, a2, b1, b2]: CROSS with d1 = c + k*M'(a.x/s), d2 = d1 + delta
//	GAUSSIAN [sigma, amplitude]
func NewInteraction(tag InteractionTag, args []float64) (Interaction, error) {
	s, ok := interactionSpecs[tag]
	if !ok {
		return Interaction{}, fmt.Errorf("interaction tag %d: %w", uint64(tag), ErrUnknownFunction)
	}
	if err := checkArity("interaction", s, args); err != nil {
		return Interaction{}, err
	}
	switch tag {
	case InteractionCrossHash:
		if args[0] < 1 {
			return Interaction{}, fmt.Errorf("interaction CROSS_HASH: %w: scale must be >= 1", ErrBadArgs)
		}
	case InteractionGaussian:
		if args[0] == 0 {
			return Interaction{}, fmt.Errorf("interaction GAUSSIAN: %w: sigma must be non-zero", ErrBadArgs)
		}
	}
	return Interaction{tag: tag, args: cloneArgs(args)}, nil
}

func MustInteraction(tag InteractionTag, args ...float64) Interaction {
	f, err := NewInteraction(tag, args)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Interaction) Tag() InteractionTag { return f.tag }
func (f Interaction) Args() []float64     { return cloneArgs(f.args) }
func (f Interaction) Flags() Flags        { return interactionSpecs[f.tag].flags }
func (f Interaction) Stationary() bool    { return f.Flags().Stationary }
func (f Interaction) Constant() bool      { return f.Flags().Constant }
func (f Interaction) String() string      { return fmt.Sprintf("%s%v", f.tag, f.args) }

func (f Interaction) Equal(g Interaction) bool {
	return f.tag == g.tag && equalArgs(f.args, g.args)
}

// Eval is exactly 0 when a == b: an item never interacts with itself.
func (f Interaction) Eval(a, b geom.Position) float64 {
	if a == b {
		return 0
	}
	diff := a.Sub(b)
	switch f.tag {
	case InteractionPiecewiseBox:
		d2 := float64(diff.SquaredLength())
		switch {
		case d2 < f.args[0]:
			return f.args[2]
		case d2 < f.args[1]:
			return f.args[3]
		}
		return 0
	case InteractionCross:
		return cross(diff, f.args[0], f.args[1], f.args[2:6])
	case InteractionCrossHash:
		scale := uint32(f.args[0])
		d1 := f.args[2]*smoothHash(uint32(a.X), 0, scale) + f.args[1]
		return cross(diff, d1, d1+f.args[3], f.args[4:8])
	case InteractionMoore:
		if geom.AbsInt64(diff.X) < 2 && geom.AbsInt64(diff.Y) < 2 {
			return neighbourAttraction
		}
		return farRepulsion
	case InteractionFour:
		dx, dy := geom.AbsInt64(diff.X), geom.AbsInt64(diff.Y)
		if (dx < 1 && dy < 2) || (dy < 1 && dx < 2) {
			return neighbourAttraction
		}
		return farRepulsion
	case InteractionGaussian:
		sigma2 := 2 * f.args[0] * f.args[0]
		dx, dy := float64(diff.X), float64(diff.Y)
		return f.args[1] * math.Exp(-dx*dx/sigma2-dy*dy/sigma2)
	default:
		return 0
	}
}

// cross evaluates the two-ring cross shape; v is [a1, a2, b1, b2].
func cross(diff geom.Position, d1, d2 float64, v []float64) float64 {
	dist := float64(diff.ChebyshevLength())
	onAxis := diff.X == 0 || diff.Y == 0
	switch {
	case dist <= d1:
		if onAxis {
			return v[0]
		}
		return v[2]
	case dist <= d2:
		if onAxis {
			return v[1]
		}
		return v[3]
	}
	return 0
}

// Reach is the largest Chebyshev offset at which f can be non-zero. bounded
// is false for MOORE, FOUR and GAUSSIAN, which are non-zero at every
// distance and are cut off by the neighborhood instead.
func (f Interaction) Reach() (reach int64, bounded bool) {
	switch f.tag {
	case InteractionZero:
		return 0, true
	case InteractionPiecewiseBox:
		var limit float64
		if f.args[2] != 0 {
			limit = f.args[0]
		}
		if f.args[3] != 0 {
			limit = math.Max(limit, f.args[1])
		}
		if limit <= 0 {
			return 0, true
		}
		// d^2 < limit holds up to d = ceil(sqrt(limit)) - 1.
		return int64(math.Ceil(math.Sqrt(limit))) - 1, true
	case InteractionCross:
		return crossReach(f.args[0], f.args[1], f.args[2:6]), true
	case InteractionCrossHash:
		// smoothHash lies in [0, 1].
		d1 := f.args[1] + math.Max(f.args[2], 0)
		return crossReach(d1, d1+f.args[3], f.args[4:8]), true
	}
	return 0, false
}

func crossReach(d1, d2 float64, v []float64) int64 {
	var d float64
	if v[0] != 0 || v[2] != 0 {
		d = d1
	}
	if v[1] != 0 || v[3] != 0 {
		d = math.Max(d, d2)
	}
	if d <= 0 {
		return 0
	}
	return int64(math.Floor(d))
}
