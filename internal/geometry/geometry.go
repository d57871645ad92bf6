// Package geometry provides the polygon hit tests used to map touch contacts
// onto sensor zones.
//
// All coordinates live in the shared sensor canvas: x grows to the right and
// y grows downwards, matching the panel's native report orientation.
package geometry

import "math"

// Point is a 2D coordinate in canvas space.
type Point struct {
	X, Y float64
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dot returns the dot product of p and q.
func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y
}

// Dist2 returns the squared distance between p and q.
func (p Point) Dist2(q Point) float64 {
	d := p.Sub(q)
	return d.Dot(d)
}

// Polygon is an ordered list of vertices describing a simple polygon. The
// closing edge from the last vertex back to the first is implicit; a repeated
// closing vertex is tolerated and contributes a zero-length edge.
type Polygon []Point

// Offset returns a copy of the polygon translated by (dx, dy).
func (poly Polygon) Offset(dx, dy float64) Polygon {
	out := make(Polygon, len(poly))
	for i, p := range poly {
		out[i] = Point{X: p.X + dx, Y: p.Y + dy}
	}
	return out
}

// Rotate returns a copy of the polygon whose vertex list starts at index k.
// The described shape is unchanged.
func (poly Polygon) Rotate(k int) Polygon {
	n := len(poly)
	if n == 0 {
		return Polygon{}
	}
	k = ((k % n) + n) % n
	out := make(Polygon, 0, n)
	out = append(out, poly[k:]...)
	out = append(out, poly[:k]...)
	return out
}

// Bounds returns the axis-aligned bounding box of the polygon.
func (poly Polygon) Bounds() (min, max Point) {
	if len(poly) == 0 {
		return Point{}, Point{}
	}
	min, max = poly[0], poly[0]
	for _, p := range poly[1:] {
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
	}
	return min, max
}

// PointInPolygon reports whether p lies inside poly using an even-odd ray
// cast towards +X.
//
// An edge (a, b) counts as crossed when exactly one endpoint lies strictly
// below p (a.Y > p.Y differs from b.Y > p.Y) and p is strictly left of the
// edge at p.Y. Under this half-open rule a point on a left or upper boundary
// is inside and a point on a right or lower boundary (larger x or y) is
// outside, horizontal and zero-length edges never count, and the answer does
// not depend on which vertex the list starts at.
func PointInPolygon(poly Polygon, p Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if p.X < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// SegmentDistance2 returns the squared distance from p to the segment [a, b].
func SegmentDistance2(a, b, p Point) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return p.Dist2(a)
	}
	t := p.Sub(a).Dot(ab) / l2
	switch {
	case t <= 0:
		return p.Dist2(a)
	case t >= 1:
		return p.Dist2(b)
	}
	proj := Point{X: a.X + t*ab.X, Y: a.Y + t*ab.Y}
	return p.Dist2(proj)
}

// CircleIntersectsEdges reports whether a circle of radius r around c touches
// any edge of poly, including the closing edge.
func CircleIntersectsEdges(poly Polygon, c Point, r float64) bool {
	n := len(poly)
	if n < 2 || r < 0 {
		return false
	}
	r2 := r * r
	j := n - 1
	for i := 0; i < n; i++ {
		if SegmentDistance2(poly[j], poly[i], c) <= r2 {
			return true
		}
		j = i
	}
	return false
}

// WithinVertexRadius reports whether any vertex of poly lies within r of p.
func WithinVertexRadius(poly Polygon, p Point, r float64) bool {
	if r < 0 {
		return false
	}
	r2 := r * r
	for _, v := range poly {
		if v.Dist2(p) <= r2 {
			return true
		}
	}
	return false
}

// Hit reports whether a contact of radius r centred at p activates poly.
//
// With r <= 0 only the containment test runs. Otherwise the cheap vertex
// distance test runs first, then the edge test, and containment last.
func Hit(poly Polygon, p Point, r float64) bool {
	if r <= 0 {
		return PointInPolygon(poly, p)
	}
	return WithinVertexRadius(poly, p, r) ||
		CircleIntersectsEdges(poly, p, r) ||
		PointInPolygon(poly, p)
}
