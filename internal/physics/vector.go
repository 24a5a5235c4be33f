// Package physics provides the vector algebra and collision geometry shared
// by the simulation engine and the pathfinder.
//
// Everything here is a pure function over value types; nothing allocates
// beyond the returned values.
package physics

import "math"

// frictionEpsilon is the speed below which friction stops a body outright.
const frictionEpsilon = 0.01

// Vec is a 2D vector in arena pixel space.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is a straight wall segment.
type Segment struct {
	Start Vec `json:"start"`
	End   Vec `json:"end"`
}

// Rect is an axis-aligned filled block.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Add returns a+b.
func Add(a, b Vec) Vec {
	return Vec{X: a.X + b.X, Y: a.Y + b.Y}
}

// Sub returns a-b.
func Sub(a, b Vec) Vec {
	return Vec{X: a.X - b.X, Y: a.Y - b.Y}
}

// Scale returns v*s.
func Scale(v Vec, s float64) Vec {
	return Vec{X: v.X * s, Y: v.Y * s}
}

// Magnitude returns the Euclidean length of v.
func Magnitude(v Vec) float64 {
	return math.Hypot(v.X, v.Y)
}

// Normalize returns v scaled to unit length. The zero vector stays zero.
func Normalize(v Vec) Vec {
	m := Magnitude(v)
	if m == 0 {
		return Vec{}
	}
	return Vec{X: v.X / m, Y: v.Y / m}
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Vec) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// ClampMagnitude limits v to at most max length, keeping its direction.
func ClampMagnitude(v Vec, max float64) Vec {
	m := Magnitude(v)
	if m <= max || m == 0 {
		return v
	}
	return Scale(v, max/m)
}

// ApplyFriction reduces the magnitude of v by friction. Speeds under
// frictionEpsilon snap to zero so bodies come to rest.
func ApplyFriction(v Vec, friction float64) Vec {
	m := Magnitude(v)
	if m < frictionEpsilon {
		return Vec{}
	}
	next := m - math.Min(friction, m)
	return Scale(v, next/m)
}

// KeepInBounds clamps a circle of the given radius inside a w×h arena.
// A velocity component pointing through a wall is reflected at half speed.
func KeepInBounds(pos, vel Vec, radius, w, h float64) (Vec, Vec) {
	if pos.X < radius {
		pos.X = radius
		vel.X = -vel.X * 0.5
	} else if pos.X > w-radius {
		pos.X = w - radius
		vel.X = -vel.X * 0.5
	}
	if pos.Y < radius {
		pos.Y = radius
		vel.Y = -vel.Y * 0.5
	} else if pos.Y > h-radius {
		pos.Y = h - radius
		vel.Y = -vel.Y * 0.5
	}
	return pos, vel
}

// ClosestPointOnSegment returns the point of seg nearest to p.
func ClosestPointOnSegment(p Vec, seg Segment) Vec {
	d := Sub(seg.End, seg.Start)
	lenSq := d.X*d.X + d.Y*d.Y
	if lenSq == 0 {
		return seg.Start
	}
	t := ((p.X-seg.Start.X)*d.X + (p.Y-seg.Start.Y)*d.Y) / lenSq
	t = math.Max(0, math.Min(1, t))
	return Add(seg.Start, Scale(d, t))
}

// DistancePointToSegment returns the shortest distance from p to seg.
func DistancePointToSegment(p Vec, seg Segment) float64 {
	return Distance(p, ClosestPointOnSegment(p, seg))
}

// SegmentIntersection returns the crossing point of two segments.
// Parallel or disjoint segments report false.
func SegmentIntersection(a, b Segment) (Vec, bool) {
	r := Sub(a.End, a.Start)
	s := Sub(b.End, b.Start)
	denom := r.X*s.Y - r.Y*s.X
	if denom == 0 {
		return Vec{}, false
	}
	qp := Sub(b.Start, a.Start)
	t := (qp.X*s.Y - qp.Y*s.X) / denom
	u := (qp.X*r.Y - qp.Y*r.X) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return Vec{}, false
	}
	return Add(a.Start, Scale(r, t)), true
}

// CircleOverlapsRect reports whether a circle intersects r.
func CircleOverlapsRect(center Vec, radius float64, r Rect) bool {
	return center.X+radius > r.X && center.X-radius < r.X+r.Width &&
		center.Y+radius > r.Y && center.Y-radius < r.Y+r.Height
}
