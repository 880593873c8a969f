package energy

import (
	"fmt"
	"math"

	"github.com/aquilax/go-perlin"

	"gibbsworld.ai/internal/sim/geom"
)

type RegenerationTag uint64

const (
	RegenerationZero RegenerationTag = iota
	RegenerationConstant
	RegenerationCustom
	RegenerationCrenel
)

var regenerationSpecs = map[RegenerationTag]funcSpec{
	RegenerationZero:     {name: "ZERO", arity: exactly(0), flags: Flags{Stationary: true, Constant: true, TimeIndependent: true}},
	RegenerationConstant: {name: "CONSTANT", arity: atLeast(1), flags: Flags{Stationary: true, Constant: true, TimeIndependent: true}},
	RegenerationCustom:   {name: "CUSTOM", arity: atLeast(1), flags: Flags{Stationary: true}},
	RegenerationCrenel:   {name: "CRENEL", arity: exactly(4), flags: Flags{Stationary: true}},
}

// crenelNoiseSeed fixes the noise stream so every CRENEL function with the
// same arguments produces the same climate signal.
const crenelNoiseSeed = 1

func (t RegenerationTag) String() string {
	if s, ok := regenerationSpecs[t]; ok {
		return s.name
	}
	return fmt.Sprintf("REGENERATION(%d)", uint64(t))
}

func ParseRegenerationTag(name string) (RegenerationTag, error) {
	for tag, s := range regenerationSpecs {
		if s.name == name {
			return tag, nil
		}
	}
	return 0, fmt.Errorf("regeneration %q: %w", name, ErrUnknownFunction)
}

// Regeneration is a rate contribution that may vary with the simulated time
// step. The zero value is the ZERO function.
type Regeneration struct {
	tag   RegenerationTag
	args  []float64
	noise *perlin.Perlin
}

// NewRegeneration validates tag and arguments. Arguments are copied.
//
//	CUSTOM [v0, v1, ...]: v[t mod len]
//	CRENEL [amplitude, period, harmonics, noise]: smoothed square wave plus 1D Perlin noise
func NewRegeneration(tag RegenerationTag, args []float64) (Regeneration, error) {
	s, ok := regenerationSpecs[tag]
	if !ok {
		return Regeneration{}, fmt.Errorf("regeneration tag %d: %w", uint64(tag), ErrUnknownFunction)
	}
	if err := checkArity("regeneration", s, args); err != nil {
		return Regeneration{}, err
	}
	f := Regeneration{tag: tag, args: cloneArgs(args)}
	if tag == RegenerationCrenel {
		if args[1] <= 0 || args[2] < 1 {
			return Regeneration{}, fmt.Errorf("regeneration CRENEL: %w: period must be > 0 and harmonics >= 1", ErrBadArgs)
		}
		f.noise = perlin.NewPerlin(2, 2, 3, crenelNoiseSeed)
	}
	return f, nil
}

func MustRegeneration(tag RegenerationTag, args ...float64) Regeneration {
	f, err := NewRegeneration(tag, args)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Regeneration) Tag() RegenerationTag  { return f.tag }
func (f Regeneration) Args() []float64       { return cloneArgs(f.args) }
func (f Regeneration) Flags() Flags          { return regenerationSpecs[f.tag].flags }
func (f Regeneration) Stationary() bool      { return f.Flags().Stationary }
func (f Regeneration) Constant() bool        { return f.Flags().Constant }
func (f Regeneration) TimeIndependent() bool { return f.Flags().TimeIndependent }
func (f Regeneration) String() string        { return fmt.Sprintf("%s%v", f.tag, f.args) }

func (f Regeneration) Equal(g Regeneration) bool {
	return f.tag == g.tag && equalArgs(f.args, g.args)
}

func (f Regeneration) Eval(p geom.Position, time uint64) float64 {
	switch f.tag {
	case RegenerationConstant:
		return f.args[0]
	case RegenerationCustom:
		return f.args[time%uint64(len(f.args))]
	case RegenerationCrenel:
		return f.crenel(float64(time))
	default:
		return 0
	}
}

func (f Regeneration) crenel(t float64) float64 {
	amplitude, period, noiseAmp := f.args[0], f.args[1], f.args[3]
	harmonics := int(f.args[2])
	omega := 2 * math.Pi / period
	var sum float64
	for k := 0; k < harmonics; k++ {
		m := float64(2*k + 1)
		sum += math.Sin(m*omega*t) / m
	}
	return 4*amplitude/math.Pi*sum + noiseAmp*f.noise.Noise1D(t/period)
}
