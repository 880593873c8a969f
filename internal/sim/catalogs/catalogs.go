package catalogs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"gibbsworld.ai/internal/sim/energy"
)

var (
	ErrEmptyCatalog  = errors.New("item catalog is empty")
	ErrDuplicateName = errors.New("duplicate item type name")
	ErrVectorLength  = errors.New("per-type vector length does not match item type count")
	ErrUnknownItem   = errors.New("unknown item type")
	ErrReach         = errors.New("interaction reaches beyond half a patch")
)

// ItemType describes one kind of item. It is immutable once the catalog is
// built and is shared read-only by every sampler.
type ItemType struct {
	Name            string
	Scent           []float64
	Color           []float64
	RequiredCounts  []int
	RequiredCosts   []int
	BlocksMovement  bool
	VisualOcclusion float64
	// Lifetime is the number of time steps after which a regenerated item
	// expires. 0 means forever.
	Lifetime uint64

	Intensity energy.Intensity
	// Interactions[j] is the energy between an item of this type and an
	// item of type j.
	Interactions []energy.Interaction
	Regeneration energy.Regeneration
}

type ItemCatalog struct {
	Types  []ItemType
	Index  map[string]int
	Digest string
}

// NewItemCatalog validates types and indexes them by name. Types are used as
// given; callers must not mutate them afterwards.
func NewItemCatalog(types []ItemType) (*ItemCatalog, error) {
	if len(types) == 0 {
		return nil, ErrEmptyCatalog
	}
	c := &ItemCatalog{Types: types, Index: make(map[string]int, len(types))}
	for i, t := range types {
		if t.Name == "" {
			return nil, fmt.Errorf("item type %d: empty name", i)
		}
		if _, dup := c.Index[t.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, t.Name)
		}
		c.Index[t.Name] = i
		if len(t.Interactions) != len(types) {
			return nil, fmt.Errorf("item type %s: interactions: %w (got %d, want %d)", t.Name, ErrVectorLength, len(t.Interactions), len(types))
		}
		if t.RequiredCounts != nil && len(t.RequiredCounts) != len(types) {
			return nil, fmt.Errorf("item type %s: required_item_counts: %w", t.Name, ErrVectorLength)
		}
		if t.RequiredCosts != nil && len(t.RequiredCosts) != len(types) {
			return nil, fmt.Errorf("item type %s: required_item_costs: %w", t.Name, ErrVectorLength)
		}
	}
	c.Digest = digestTypes(types)
	return c, nil
}

// CheckReach reports an error when a bounded interaction between two types
// can be non-zero further than patchSize/2 cells away. Quadrant sampling
// only sees the three neighbor patches around a quadrant, so a longer reach
// would silently drop terms. Unbounded shapes are truncated by the
// neighborhood and are accepted.
func CheckReach(types []ItemType, patchSize int) error {
	half := int64(patchSize / 2)
	for _, t := range types {
		for j, f := range t.Interactions {
			r, bounded := f.Reach()
			if bounded && r > half {
				return fmt.Errorf("item type %s: interaction with %s: %w (reach %d, patch size %d)",
					t.Name, types[j].Name, ErrReach, r, patchSize)
			}
		}
	}
	return nil
}

func (c *ItemCatalog) Len() int { return len(c.Types) }

func (c *ItemCatalog) Lookup(name string) (int, bool) {
	i, ok := c.Index[name]
	return i, ok
}

// Load reads an item catalog from a .yaml/.yml or .json file.
func Load(path string) (*ItemCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	c, err := Parse(raw, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return c, nil
}

// Parse decodes a catalog document in the given format ("yaml", "yml" or
// "json"), validates it against the catalog schema and builds every energy
// function. Any bad function name or argument list fails the whole load.
func Parse(raw []byte, format string) (*ItemCatalog, error) {
	doc, err := normalizeJSON(raw, format)
	if err != nil {
		return nil, err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	schema, err := catalogSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	var file catalogFile
	if err := json.Unmarshal(doc, &file); err != nil {
		return nil, err
	}
	return file.build()
}

func normalizeJSON(raw []byte, format string) ([]byte, error) {
	switch format {
	case "json":
		return raw, nil
	case "yaml", "yml":
		var v any
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
}

//go:embed items.schema.json
var catalogSchemaJSON string

var (
	schemaOnce sync.Once
	schemaVal  *jsonschema.Schema
	schemaErr  error
)

func catalogSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schemaVal, schemaErr = jsonschema.CompileString("items.schema.json", catalogSchemaJSON)
	})
	return schemaVal, schemaErr
}

type catalogFile struct {
	Items []itemDef `json:"items"`
}

type functionDef struct {
	Fn   string    `json:"fn"`
	Args []float64 `json:"args,omitempty"`
}

type itemDef struct {
	Name            string                 `json:"name"`
	Scent           []float64              `json:"scent"`
	Color           []float64              `json:"color"`
	RequiredCounts  []int                  `json:"required_item_counts,omitempty"`
	RequiredCosts   []int                  `json:"required_item_costs,omitempty"`
	BlocksMovement  bool                   `json:"blocks_movement,omitempty"`
	VisualOcclusion float64                `json:"visual_occlusion,omitempty"`
	Lifetime        uint64                 `json:"lifetime,omitempty"`
	Intensity       functionDef            `json:"intensity"`
	Interactions    map[string]functionDef `json:"interactions,omitempty"`
	Regeneration    *functionDef           `json:"regeneration,omitempty"`
}

func (f catalogFile) build() (*ItemCatalog, error) {
	if len(f.Items) == 0 {
		return nil, ErrEmptyCatalog
	}
	index := make(map[string]int, len(f.Items))
	for i, d := range f.Items {
		if _, dup := index[d.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, d.Name)
		}
		index[d.Name] = i
	}

	types := make([]ItemType, len(f.Items))
	for i, d := range f.Items {
		t := ItemType{
			Name:            d.Name,
			Scent:           d.Scent,
			Color:           d.Color,
			RequiredCounts:  d.RequiredCounts,
			RequiredCosts:   d.RequiredCosts,
			BlocksMovement:  d.BlocksMovement,
			VisualOcclusion: d.VisualOcclusion,
			Lifetime:        d.Lifetime,
			Interactions:    make([]energy.Interaction, len(f.Items)),
		}
		var err error
		if t.Intensity, err = buildIntensity(d.Intensity); err != nil {
			return nil, fmt.Errorf("item %s: %w", d.Name, err)
		}
		if d.Regeneration != nil {
			if t.Regeneration, err = buildRegeneration(*d.Regeneration); err != nil {
				return nil, fmt.Errorf("item %s: %w", d.Name, err)
			}
		}
		for other, fd := range d.Interactions {
			j, ok := index[other]
			if !ok {
				return nil, fmt.Errorf("item %s: interaction with %q: %w", d.Name, other, ErrUnknownItem)
			}
			if t.Interactions[j], err = buildInteraction(fd); err != nil {
				return nil, fmt.Errorf("item %s: interaction with %s: %w", d.Name, other, err)
			}
		}
		types[i] = t
	}
	return NewItemCatalog(types)
}

func buildIntensity(d functionDef) (energy.Intensity, error) {
	tag, err := energy.ParseIntensityTag(d.Fn)
	if err != nil {
		return energy.Intensity{}, err
	}
	return energy.NewIntensity(tag, d.Args)
}

func buildInteraction(d functionDef) (energy.Interaction, error) {
	tag, err := energy.ParseInteractionTag(d.Fn)
	if err != nil {
		return energy.Interaction{}, err
	}
	return energy.NewInteraction(tag, d.Args)
}

func buildRegeneration(d functionDef) (energy.Regeneration, error) {
	tag, err := energy.ParseRegenerationTag(d.Fn)
	if err != nil {
		return energy.Regeneration{}, err
	}
	return energy.NewRegeneration(tag, d.Args)
}

// digestTypes hashes a canonical binary form of the catalog, so the same
// catalog written as YAML or JSON has the same digest.
func digestTypes(types []ItemType) string {
	h := sha256.New()
	var buf []byte
	putFloats := func(fs []float64) {
		buf = binary.LittleEndian.AppendUint64(buf[:0], uint64(len(fs)))
		for _, f := range fs {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
		}
		h.Write(buf)
	}
	putInts := func(is []int) {
		buf = binary.LittleEndian.AppendUint64(buf[:0], uint64(len(is)))
		for _, v := range is {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(v)))
		}
		h.Write(buf)
	}
	for _, t := range types {
		buf = binary.LittleEndian.AppendUint64(buf[:0], uint64(len(t.Name)))
		h.Write(buf)
		h.Write([]byte(t.Name))
		putFloats(t.Scent)
		putFloats(t.Color)
		putInts(t.RequiredCounts)
		putInts(t.RequiredCosts)
		var blocks uint64
		if t.BlocksMovement {
			blocks = 1
		}
		putFloats([]float64{float64(blocks), t.VisualOcclusion, float64(t.Lifetime)})
		b, _ := t.Intensity.MarshalBinary()
		h.Write(b)
		for _, f := range t.Interactions {
			b, _ = f.MarshalBinary()
			h.Write(b)
		}
		b, _ = t.Regeneration.MarshalBinary()
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}
