package geom

import "fmt"

// Position is an integer world coordinate. Y grows upward.
type Position struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

func Pos(x, y int64) Position { return Position{X: x, Y: y} }

func (p Position) Add(q Position) Position { return Position{X: p.X + q.X, Y: p.Y + q.Y} }

func (p Position) Sub(q Position) Position { return Position{X: p.X - q.X, Y: p.Y - q.Y} }

func (p Position) Scale(k int64) Position { return Position{X: p.X * k, Y: p.Y * k} }

func (p Position) SquaredLength() int64 { return p.X*p.X + p.Y*p.Y }

// ChebyshevLength is max(|x|, |y|).
func (p Position) ChebyshevLength() int64 {
	x, y := AbsInt64(p.X), AbsInt64(p.Y)
	if x > y {
		return x
	}
	return y
}

func (p Position) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

func AbsInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// FloorDiv divides rounding toward negative infinity. b > 0.
func FloorDiv(a, b int64) int64 {
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

// Mod returns a non-negative remainder. b > 0.
func Mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
