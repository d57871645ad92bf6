// Package sensor maps raw panel coordinates onto the cabinet's touch sensor
// zones.
package sensor

import (
	"errors"

	"xtouchd/internal/geometry"
)

// ErrDegenerateBounds is returned when an axis of the panel range has zero width.
var ErrDegenerateBounds = errors.New("sensor: degenerate panel bounds")

// Bounds is the raw panel range that maps onto the canvas. A Min greater than
// its Max inverts that axis.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Mapper converts raw panel coordinates into zone masks. It is immutable and
// safe for concurrent use.
type Mapper struct {
	bounds Bounds
	flip   bool
	table  *Table
}

// NewMapper returns a mapper for the given panel range. flip swaps x and y
// after normalization to correct for panel mounting. A nil table selects
// DefaultTable.
func NewMapper(b Bounds, flip bool, table *Table) (*Mapper, error) {
	if b.MinX == b.MaxX || b.MinY == b.MaxY {
		return nil, ErrDegenerateBounds
	}
	if table == nil {
		table = DefaultTable()
	}
	return &Mapper{bounds: b, flip: flip, table: table}, nil
}

// Table returns the zone table used by the mapper.
func (m *Mapper) Table() *Table {
	return m.table
}

// Canvas normalizes a raw panel coordinate into canvas space, applying flip.
// ok is false when the point falls outside the canvas on either axis.
func (m *Mapper) Canvas(x, y float64) (p geometry.Point, ok bool) {
	cx := rescale(x, m.bounds.MinX, m.bounds.MaxX)
	cy := rescale(y, m.bounds.MinY, m.bounds.MaxY)
	if cx < 0 || cx > CanvasSize || cy < 0 || cy > CanvasSize {
		return geometry.Point{}, false
	}
	if m.flip {
		cx, cy = cy, cx
	}
	return geometry.Point{X: cx, Y: cy}, true
}

// Map returns the mask of zones activated by a contact at raw (x, y) with the
// given contact radius in canvas units. Radius 0 is a point test. Touches
// outside the panel range produce an empty mask.
func (m *Mapper) Map(x, y, radius float64) uint64 {
	p, ok := m.Canvas(x, y)
	if !ok {
		return 0
	}
	var mask uint64
	for _, z := range m.table.zones {
		if geometry.Hit(z.Polygon, p, radius) {
			mask |= 1 << uint(z.Index)
		}
	}
	return mask
}

func rescale(v, from, to float64) float64 {
	return (v - from) * CanvasSize / (to - from)
}
