package field

import (
	"errors"
	"fmt"
	"log"
	"os"

	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/geom"
)

var (
	ErrEmptyCatalog     = errors.New("field: no item types")
	ErrBadPatchSize     = errors.New("field: invalid patch size")
	ErrInteractionCount = errors.New("field: interaction list does not match item type count")
	ErrTableAlloc       = errors.New("field: interaction table allocation failed")
)

// MaxPatchSize bounds n so a 4n x 4n table index fits comfortably in an int.
const MaxPatchSize = 1 << 12

var logger = log.New(os.Stderr, "[field] ", log.LstdFlags|log.Lmicroseconds)

// SetLogger replaces the package logger used for debug diagnostics.
func SetLogger(l *log.Logger) {
	if l != nil {
		logger = l
	}
}

// allocTable is swapped in tests to exercise the failure path.
var allocTable = func(size int) (t []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, fmt.Errorf("%w: %v", ErrTableAlloc, r)
		}
	}()
	return make([]float64, size), nil
}

// Cache memoizes energy values for one (item types, patch size) pair.
// After construction it is read-only and safe for concurrent use.
type Cache struct {
	types []catalogs.ItemType
	n     int64
	twoN  int64
	fourN int64

	intensities     []float64
	intensityCached []bool
	regens          []float64
	regenCached     []bool
	// tables[i*T+j] is nil unless the (i, j) interaction is stationary and
	// not constant.
	tables [][]float64
}

func NewCache(types []catalogs.ItemType, n int) (*Cache, error) {
	if len(types) == 0 {
		return nil, ErrEmptyCatalog
	}
	if n < 1 || n > MaxPatchSize {
		return nil, fmt.Errorf("%w: %d", ErrBadPatchSize, n)
	}
	count := len(types)
	c := &Cache{
		types:           types,
		n:               int64(n),
		twoN:            2 * int64(n),
		fourN:           4 * int64(n),
		intensities:     make([]float64, count),
		intensityCached: make([]bool, count),
		regens:          make([]float64, count),
		regenCached:     make([]bool, count),
		tables:          make([][]float64, count*count),
	}
	origin := geom.Position{}
	for i, t := range types {
		if len(t.Interactions) != count {
			return nil, fmt.Errorf("%w: type %s has %d, want %d", ErrInteractionCount, t.Name, len(t.Interactions), count)
		}
		if t.Intensity.Stationary() {
			c.intensities[i] = t.Intensity.Eval(origin)
			c.intensityCached[i] = true
		}
		if t.Regeneration.Stationary() && t.Regeneration.TimeIndependent() {
			c.regens[i] = t.Regeneration.Eval(origin, 0)
			c.regenCached[i] = true
		}
	}
	center := geom.Pos(c.twoN, c.twoN)
	for i := range types {
		for j := range types {
			f := types[i].Interactions[j]
			if !f.Stationary() || f.Constant() {
				continue
			}
			table, err := allocTable(int(c.fourN * c.fourN))
			if err != nil {
				c.Close()
				return nil, fmt.Errorf("types %s/%s: %w", types[i].Name, types[j].Name, err)
			}
			for x := int64(0); x < c.fourN; x++ {
				for y := int64(0); y < c.fourN; y++ {
					table[x*c.fourN+y] = f.Eval(center, geom.Pos(x, y))
				}
			}
			c.tables[i*count+j] = table
		}
	}
	return c, nil
}

// Close releases the interaction tables. Lookups after Close evaluate the
// interaction functions directly.
func (c *Cache) Close() {
	for i := range c.tables {
		c.tables[i] = nil
	}
}

func (c *Cache) N() int                { return int(c.n) }
func (c *Cache) TypeCount() int        { return len(c.types) }
func (c *Cache) Name(t int) string     { return c.types[t].Name }
func (c *Cache) Lifetime(t int) uint64 { return c.types[t].Lifetime }

// Tables reports how many interaction tables are held.
func (c *Cache) Tables() int {
	k := 0
	for _, t := range c.tables {
		if t != nil {
			k++
		}
	}
	return k
}

func (c *Cache) Intensity(p Position, t int) float64 {
	if c.intensityCached[t] {
		return c.intensities[t]
	}
	return c.types[t].Intensity.Eval(p)
}

func (c *Cache) Regeneration(p Position, time uint64, t int) float64 {
	if c.regenCached[t] {
		return c.regens[t]
	}
	return c.types[t].Regeneration.Eval(p, time)
}

// Interaction returns the energy between an item of type ta at a and one of
// type tb at b. Tabulated pairs must lie within 2n of each other on both
// axes; neighborhoods built by NeighborhoodOf guarantee that.
func (c *Cache) Interaction(a, b Position, ta, tb int) float64 {
	table := c.tables[ta*len(c.types)+tb]
	if table == nil {
		return c.types[ta].Interactions[tb].Eval(a, b)
	}
	dx := b.X - a.X + c.twoN
	dy := b.Y - a.Y + c.twoN
	if debugChecks && (dx < 0 || dx >= c.fourN || dy < 0 || dy >= c.fourN) {
		logger.Printf("interaction lookup out of range: %v -> %v (types %d/%d)", a, b, ta, tb)
		return 0
	}
	return table[dx*c.fourN+dy]
}
