package energy

import (
	"fmt"
	"math"

	"github.com/aquilax/go-perlin"

	"gibbsworld.ai/internal/sim/geom"
)

type IntensityTag uint64

const (
	IntensityZero IntensityTag = iota
	IntensityConstant
	IntensityRadialHash
	IntensityPerlin
)

var intensitySpecs = map[IntensityTag]funcSpec{
	IntensityZero:       {name: "ZERO", arity: exactly(0), flags: Flags{Stationary: true, Constant: true}},
	IntensityConstant:   {name: "CONSTANT", arity: atLeast(1), flags: Flags{Stationary: true, Constant: true}},
	IntensityRadialHash: {name: "RADIAL_HASH", arity: exactly(4)},
	IntensityPerlin:     {name: "PERLIN", arity: exactly(4)},
}

func (t IntensityTag) String() string {
	if s, ok := intensitySpecs[t]; ok {
		return s.name
	}
	return fmt.Sprintf("INTENSITY(%d)", uint64(t))
}

func ParseIntensityTag(name string) (IntensityTag, error) {
	for tag, s := range intensitySpecs {
		if s.name == name {
			return tag, nil
		}
	}
	return 0, fmt.Errorf("intensity %q: %w", name, ErrUnknownFunction)
}

// Intensity is the base log-energy of placing an item at a position,
// ignoring every other item. The zero value is the ZERO function.
type Intensity struct {
	tag   IntensityTag
	args  []float64
	noise *perlin.Perlin
}

// NewIntensity validates tag and arguments. Arguments are copied.
//
// RADIAL_HASH args: [shift, scale, c, k]; value c - k*M'(|x| + shift).
// PERLIN args: [scale, amplitude, offset, seed]; value offset + amplitude*P(x/scale).
func NewIntensity(tag IntensityTag, args []float64) (Intensity, error) {
	s, ok := intensitySpecs[tag]
	if !ok {
		return Intensity{}, fmt.Errorf("intensity tag %d: %w", uint64(tag), ErrUnknownFunction)
	}
	if err := checkArity("intensity", s, args); err != nil {
		return Intensity{}, err
	}
	f := Intensity{tag: tag, args: cloneArgs(args)}
	switch tag {
	case IntensityRadialHash:
		if args[1] < 1 || args[0] < 0 {
			return Intensity{}, fmt.Errorf("intensity RADIAL_HASH: %w: shift must be >= 0 and scale >= 1", ErrBadArgs)
		}
	case IntensityPerlin:
		if args[0] <= 0 {
			return Intensity{}, fmt.Errorf("intensity PERLIN: %w: scale must be > 0", ErrBadArgs)
		}
		f.noise = perlin.NewPerlin(2, 2, 3, int64(args[3]))
	}
	return f, nil
}

// MustIntensity is NewIntensity for static tables and tests.
func MustIntensity(tag IntensityTag, args ...float64) Intensity {
	f, err := NewIntensity(tag, args)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Intensity) Tag() IntensityTag { return f.tag }
func (f Intensity) Args() []float64   { return cloneArgs(f.args) }
func (f Intensity) Flags() Flags      { return intensitySpecs[f.tag].flags }
func (f Intensity) Stationary() bool  { return f.Flags().Stationary }
func (f Intensity) Constant() bool    { return f.Flags().Constant }
func (f Intensity) String() string    { return fmt.Sprintf("%s%v", f.tag, f.args) }

// Equal reports whether both functions have the same tag and arguments.
func (f Intensity) Equal(g Intensity) bool {
	return f.tag == g.tag && equalArgs(f.args, g.args)
}

func (f Intensity) Eval(p geom.Position) float64 {
	switch f.tag {
	case IntensityConstant:
		return f.args[0]
	case IntensityRadialHash:
		shift := uint32(f.args[0])
		scale := uint32(f.args[1])
		s := uint32(math.Sqrt(float64(p.SquaredLength()))) + shift
		return f.args[2] - smoothHash(s, shift, scale)*f.args[3]
	case IntensityPerlin:
		x := float64(p.X) / f.args[0]
		y := float64(p.Y) / f.args[0]
		return f.args[2] + f.args[1]*f.noise.Noise2D(x, y)
	default:
		return 0
	}
}
