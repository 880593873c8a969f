package store

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"log"

	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/field"
)

var (
	ErrOutOfBounds = errors.New("patch outside world boundary")
	ErrBadPatch    = errors.New("invalid patch data")
)

type PatchKey struct {
	PX int64
	PY int64
}

func (k PatchKey) Pos() field.Position { return field.Position{X: k.PX, Y: k.PY} }

// WorldGen holds everything that decides what a generated patch contains.
type WorldGen struct {
	Seed      int64
	PatchSize int
	// BoundaryR limits patch coordinates to [-BoundaryR, BoundaryR]; 0 means
	// unbounded.
	BoundaryR      int64
	MCMCIterations int
	Strategy       field.Strategy
	Workers        int
}

// PatchStore owns every materialized patch. Fixed patches were requested and
// fully sampled; the rest are margin patches sampled only as context and
// resampled when they are requested later. A PatchStore is not safe for
// concurrent use.
type PatchStore struct {
	Gen     WorldGen
	Types   []catalogs.ItemType
	Patches map[PatchKey]*field.Patch

	cache  *field.Cache
	logger *log.Logger
}

func NewPatchStore(gen WorldGen, types []catalogs.ItemType) (*PatchStore, error) {
	if err := catalogs.CheckReach(types, gen.PatchSize); err != nil {
		return nil, err
	}
	cache, err := field.NewCache(types, gen.PatchSize)
	if err != nil {
		return nil, err
	}
	if gen.MCMCIterations <= 0 {
		gen.MCMCIterations = 1
	}
	if gen.Workers <= 0 {
		gen.Workers = 1
	}
	return &PatchStore{
		Gen:     gen,
		Types:   types,
		Patches: map[PatchKey]*field.Patch{},
		cache:   cache,
		logger:  log.New(io.Discard, "", 0),
	}, nil
}

func (s *PatchStore) SetLogger(l *log.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Close releases the energy tables. The store must not generate afterwards.
func (s *PatchStore) Close() { s.cache.Close() }

// PatchDigest hashes a patch's items in position order so equal contents
// give equal digests regardless of item order.
func PatchDigest(p *field.Patch) [32]byte {
	items := sortedItems(p.Items)
	h := sha256.New()
	var tmp [8 * 4]byte
	for _, it := range items {
		binary.LittleEndian.PutUint64(tmp[0:], uint64(it.Pos.X))
		binary.LittleEndian.PutUint64(tmp[8:], uint64(it.Pos.Y))
		binary.LittleEndian.PutUint64(tmp[16:], uint64(it.Type))
		binary.LittleEndian.PutUint64(tmp[24:], it.CreationTime)
		h.Write(tmp[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Tables reports how many pairwise interaction tables the store holds.
func (s *PatchStore) Tables() int { return s.cache.Tables() }
