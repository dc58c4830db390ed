package sim

import "math"

type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Entity is what a unit can aim at: another unit or a base.
type Entity interface {
	BoundingBox() Rect
	TakeDamage(amount float64)
	IsValidTarget() bool
}

func distance(a, b Entity) float64 {
	ax, ay := a.BoundingBox().Center()
	bx, by := b.BoundingBox().Center()
	return math.Hypot(bx-ax, by-ay)
}
