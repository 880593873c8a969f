package field

import "gibbsworld.ai/internal/sim/geom"

type Position = geom.Position

// Item is one placed item. CreationTime and DeletionTime are bookkeeping
// counters; the sampler sets CreationTime on births and never reads
// DeletionTime.
type Item struct {
	Type         int
	Pos          Position
	CreationTime uint64
	DeletionTime uint64
}

// Patch is an n x n block of cells. Pos is in patch coordinates; the patch
// covers world cells [Pos*n, Pos*n + n). Item order carries no meaning.
type Patch struct {
	Pos   Position
	Items []Item
	Fixed bool
}

// IndexAt returns the index of the item at pos, or -1.
func (p *Patch) IndexAt(pos Position) int {
	for i := range p.Items {
		if p.Items[i].Pos == pos {
			return i
		}
	}
	return -1
}

func (p *Patch) removeAt(i int) {
	last := len(p.Items) - 1
	p.Items[i] = p.Items[last]
	p.Items = p.Items[:last]
}

// PatchID addresses a patch in an Arena. IDs stay valid for the life of the
// arena.
type PatchID int32

type Arena struct {
	patches []*Patch
}

func NewArena(capacity int) *Arena {
	return &Arena{patches: make([]*Patch, 0, capacity)}
}

func (a *Arena) Add(p *Patch) PatchID {
	a.patches = append(a.patches, p)
	return PatchID(len(a.patches) - 1)
}

func (a *Arena) Get(id PatchID) *Patch { return a.patches[id] }
func (a *Arena) Len() int              { return len(a.patches) }

type Quadrant uint8

const (
	BottomLeft Quadrant = iota
	TopLeft
	BottomRight
	TopRight
)

// Phases is the order in which a parallel scheduler must complete quadrants:
// every patch's BottomLeft before any TopLeft, and so on.
var Phases = [4]Quadrant{BottomLeft, TopLeft, BottomRight, TopRight}

func (q Quadrant) String() string {
	switch q {
	case BottomLeft:
		return "BL"
	case TopLeft:
		return "TL"
	case BottomRight:
		return "BR"
	case TopRight:
		return "TR"
	}
	return "?"
}

// QuadrantOf classifies a patch-local offset.
func QuadrantOf(local Position, n int64) Quadrant {
	half := n / 2
	if local.X < half {
		if local.Y < half {
			return BottomLeft
		}
		return TopLeft
	}
	if local.Y < half {
		return BottomRight
	}
	return TopRight
}

// QuadrantNeighbors lists the patches whose items can interact with cells of
// one quadrant. IDs[0] is always the center patch.
type QuadrantNeighbors struct {
	IDs   [4]PatchID
	Count uint8
}

func (q *QuadrantNeighbors) List() []PatchID { return q.IDs[:q.Count] }

type Neighborhood struct {
	Center    PatchID
	Pos       Position
	Quadrants [4]QuadrantNeighbors
}

// quadrantOffsets are the patch offsets consulted per quadrant, center first.
var quadrantOffsets = [4][4]Position{
	BottomLeft:  {{X: 0, Y: 0}, {X: -1, Y: 0}, {X: 0, Y: -1}, {X: -1, Y: -1}},
	TopLeft:     {{X: 0, Y: 0}, {X: -1, Y: 0}, {X: 0, Y: 1}, {X: -1, Y: 1}},
	BottomRight: {{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: -1}, {X: 1, Y: -1}},
	TopRight:    {{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}},
}

// NeighborhoodOf builds the quadrant lists for the patch at pos. lookup maps
// a patch coordinate to its arena id; absent patches are skipped.
func NeighborhoodOf(center PatchID, pos Position, lookup func(Position) (PatchID, bool)) Neighborhood {
	h := Neighborhood{Center: center, Pos: pos}
	for q := range quadrantOffsets {
		qn := &h.Quadrants[q]
		qn.IDs[0] = center
		qn.Count = 1
		for _, off := range quadrantOffsets[q][1:] {
			if id, ok := lookup(pos.Add(off)); ok {
				qn.IDs[qn.Count] = id
				qn.Count++
			}
		}
	}
	return h
}
