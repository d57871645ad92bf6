package sensor

import (
	"fmt"
	"strings"

	"xtouchd/internal/geometry"
)

// CanvasSize is the edge length of the square canvas all zones are defined in.
const CanvasSize = 1440

// ZoneCount is the number of zones in the cabinet's native sensor layout.
const ZoneCount = 34

// Zone is one touch sensor region. Bit Index of a touch mask represents it.
type Zone struct {
	Index   int
	Name    string
	Polygon geometry.Polygon
}

// Table is an immutable ordered set of zones.
type Table struct {
	zones  []Zone
	byName map[string]int
}

// NewTable builds a table from the given zones. Zone indexes must be unique
// and fit in a 64-bit mask.
func NewTable(zones ...Zone) (*Table, error) {
	t := &Table{
		zones:  make([]Zone, 0, len(zones)),
		byName: make(map[string]int, len(zones)),
	}
	seen := make(map[int]bool, len(zones))
	for _, z := range zones {
		if z.Index < 0 || z.Index >= 64 {
			return nil, fmt.Errorf("zone %q: index %d out of range", z.Name, z.Index)
		}
		if seen[z.Index] {
			return nil, fmt.Errorf("zone %q: duplicate index %d", z.Name, z.Index)
		}
		if len(z.Polygon) < 3 {
			return nil, fmt.Errorf("zone %q: polygon needs at least 3 points", z.Name)
		}
		seen[z.Index] = true
		z.Polygon = append(geometry.Polygon(nil), z.Polygon...)
		t.zones = append(t.zones, z)
		if z.Name != "" {
			t.byName[strings.ToUpper(z.Name)] = z.Index
		}
	}
	return t, nil
}

// Zones returns a copy of the zones in table order.
func (t *Table) Zones() []Zone {
	out := make([]Zone, len(t.zones))
	copy(out, t.zones)
	return out
}

// Len returns the number of zones.
func (t *Table) Len() int {
	return len(t.zones)
}

// Lookup returns the mask bit index of the named zone.
func (t *Table) Lookup(name string) (int, bool) {
	i, ok := t.byName[strings.ToUpper(name)]
	return i, ok
}

// Names renders a mask as zone names in table order.
func (t *Table) Names(mask uint64) []string {
	var names []string
	for _, z := range t.zones {
		if mask&(1<<uint(z.Index)) != 0 {
			names = append(names, z.Name)
		}
	}
	return names
}

// MaskOf returns the mask with the named zones set. Unknown names are an error.
func (t *Table) MaskOf(names ...string) (uint64, error) {
	var mask uint64
	for _, n := range names {
		i, ok := t.Lookup(n)
		if !ok {
			return 0, fmt.Errorf("unknown zone %q", n)
		}
		mask |= 1 << uint(i)
	}
	return mask, nil
}

func zone(index int, name string, dx, dy float64, pts ...geometry.Point) Zone {
	return Zone{Index: index, Name: name, Polygon: geometry.Polygon(pts).Offset(dx, dy)}
}

type pt = geometry.Point

var defaultTable = mustTable(
	// Outer ring.
	zone(0, "A1", 786, 11, pt{X: 150, Y: 28}, pt{X: 245, Y: 65}, pt{X: 360, Y: 133}, pt{X: 208, Y: 338}, pt{X: 145, Y: 338}, pt{X: 49, Y: 297}, pt{X: 0, Y: 249}, pt{X: 35, Y: 0}),
	zone(1, "A2", 1091, 292, pt{X: 261, Y: 101}, pt{X: 303, Y: 195}, pt{X: 339, Y: 327}, pt{X: 91, Y: 362}, pt{X: 42, Y: 314}, pt{X: 0, Y: 219}, pt{X: 0, Y: 150}, pt{X: 202, Y: 0}),
	zone(2, "A3", 1092, 786, pt{X: 305, Y: 150}, pt{X: 269, Y: 246}, pt{X: 201, Y: 364}, pt{X: 0, Y: 213}, pt{X: 0, Y: 144}, pt{X: 41, Y: 48}, pt{X: 89, Y: 0}, pt{X: 337, Y: 34}),
	zone(3, "A4", 786, 1092, pt{X: 260, Y: 259}, pt{X: 167, Y: 301}, pt{X: 37, Y: 335}, pt{X: 0, Y: 83}, pt{X: 48, Y: 35}, pt{X: 144, Y: 0}, pt{X: 212, Y: 0}, pt{X: 364, Y: 200}),
	zone(4, "A5", 291, 1092, pt{X: 104, Y: 259}, pt{X: 197, Y: 301}, pt{X: 327, Y: 335}, pt{X: 363, Y: 83}, pt{X: 316, Y: 35}, pt{X: 220, Y: 0}, pt{X: 152, Y: 0}, pt{X: 0, Y: 201}),
	zone(5, "A6", 16, 785, pt{X: 32, Y: 150}, pt{X: 68, Y: 246}, pt{X: 133, Y: 365}, pt{X: 333, Y: 214}, pt{X: 333, Y: 144}, pt{X: 296, Y: 48}, pt{X: 248, Y: 0}, pt{X: 0, Y: 35}),
	zone(6, "A7", 16, 291, pt{X: 78, Y: 101}, pt{X: 36, Y: 195}, pt{X: 0, Y: 327}, pt{X: 248, Y: 362}, pt{X: 297, Y: 314}, pt{X: 333, Y: 219}, pt{X: 333, Y: 151}, pt{X: 132, Y: 0}),
	zone(7, "A8", 295, 11, pt{X: 210, Y: 28}, pt{X: 115, Y: 65}, pt{X: 0, Y: 138}, pt{X: 153, Y: 338}, pt{X: 215, Y: 338}, pt{X: 311, Y: 297}, pt{X: 359, Y: 249}, pt{X: 324, Y: 0}),

	// Inner ring.
	zone(8, "B1", 720, 346, pt{X: 0, Y: 78}, pt{X: 78, Y: 0}, pt{X: 209, Y: 55}, pt{X: 209, Y: 165}, pt{X: 180, Y: 195}, pt{X: 70, Y: 195}, pt{X: 0, Y: 130}),
	zone(9, "B2", 900, 511, pt{X: 117, Y: 209}, pt{X: 195, Y: 132}, pt{X: 140, Y: 0}, pt{X: 30, Y: 0}, pt{X: 0, Y: 30}, pt{X: 0, Y: 139}, pt{X: 65, Y: 209}),
	zone(10, "B3", 900, 721, pt{X: 120, Y: 0}, pt{X: 198, Y: 78}, pt{X: 140, Y: 208}, pt{X: 30, Y: 208}, pt{X: 0, Y: 180}, pt{X: 0, Y: 71}, pt{X: 65, Y: 0}),
	zone(11, "B4", 721, 901, pt{X: 0, Y: 112}, pt{X: 87, Y: 198}, pt{X: 208, Y: 140}, pt{X: 208, Y: 29}, pt{X: 177, Y: 0}, pt{X: 71, Y: 0}, pt{X: 0, Y: 65}),
	zone(12, "B5", 512, 901, pt{X: 208, Y: 112}, pt{X: 121, Y: 198}, pt{X: 0, Y: 140}, pt{X: 0, Y: 29}, pt{X: 31, Y: 0}, pt{X: 137, Y: 0}, pt{X: 208, Y: 65}),
	zone(13, "B6", 349, 721, pt{X: 78, Y: 0}, pt{X: 0, Y: 78}, pt{X: 58, Y: 208}, pt{X: 163, Y: 208}, pt{X: 193, Y: 180}, pt{X: 193, Y: 71}, pt{X: 133, Y: 0}),
	zone(14, "B7", 345, 511, pt{X: 82, Y: 209}, pt{X: 0, Y: 127}, pt{X: 55, Y: 0}, pt{X: 165, Y: 0}, pt{X: 195, Y: 30}, pt{X: 195, Y: 139}, pt{X: 137, Y: 209}),
	zone(15, "B8", 511, 346, pt{X: 209, Y: 78}, pt{X: 131, Y: 0}, pt{X: 0, Y: 55}, pt{X: 0, Y: 165}, pt{X: 29, Y: 195}, pt{X: 139, Y: 195}, pt{X: 209, Y: 130}),

	// Center.
	zone(16, "C1", 720, 583, pt{X: 0, Y: 0}, pt{X: 60, Y: 0}, pt{X: 140, Y: 80}, pt{X: 140, Y: 200}, pt{X: 60, Y: 280}, pt{X: 0, Y: 280}, pt{X: 0, Y: 0}),
	zone(17, "C2", 579, 583, pt{X: 141, Y: 280}, pt{X: 81, Y: 280}, pt{X: 0, Y: 199}, pt{X: 1, Y: 81}, pt{X: 81, Y: 0}, pt{X: 141, Y: 0}, pt{X: 141, Y: 280}),

	// Outer ring, between buttons.
	zone(18, "D1", 620, 6, pt{X: 0, Y: 5}, pt{X: 50, Y: 2}, pt{X: 100, Y: 0}, pt{X: 150, Y: 2}, pt{X: 200, Y: 5}, pt{X: 165, Y: 253}, pt{X: 100, Y: 188}, pt{X: 35, Y: 253}),
	zone(19, "D2", 995, 144, pt{X: 153, Y: 0}, pt{X: 187, Y: 32}, pt{X: 225, Y: 67}, pt{X: 259, Y: 104}, pt{X: 295, Y: 147}, pt{X: 96, Y: 297}, pt{X: 96, Y: 205}, pt{X: 0, Y: 205}),
	zone(20, "D3", 1182, 620, pt{X: 248, Y: 0}, pt{X: 251, Y: 48}, pt{X: 253, Y: 100}, pt{X: 251, Y: 150}, pt{X: 247, Y: 199}, pt{X: 0, Y: 165}, pt{X: 65, Y: 100}, pt{X: 0, Y: 35}),
	zone(21, "D4", 1000, 1000, pt{X: 292, Y: 151}, pt{X: 260, Y: 187}, pt{X: 225, Y: 225}, pt{X: 188, Y: 259}, pt{X: 151, Y: 291}, pt{X: 0, Y: 92}, pt{X: 92, Y: 92}, pt{X: 92, Y: 0}),
	zone(22, "D5", 621, 1175, pt{X: 199, Y: 252}, pt{X: 151, Y: 255}, pt{X: 99, Y: 257}, pt{X: 49, Y: 255}, pt{X: 0, Y: 252}, pt{X: 34, Y: 0}, pt{X: 99, Y: 65}, pt{X: 164, Y: 0}),
	zone(23, "D6", 150, 1000, pt{X: 140, Y: 292}, pt{X: 104, Y: 260}, pt{X: 66, Y: 225}, pt{X: 32, Y: 188}, pt{X: 0, Y: 151}, pt{X: 199, Y: 0}, pt{X: 199, Y: 92}, pt{X: 291, Y: 92}),
	zone(24, "D7", 10, 620, pt{X: 5, Y: 199}, pt{X: 2, Y: 151}, pt{X: 0, Y: 99}, pt{X: 2, Y: 49}, pt{X: 6, Y: 0}, pt{X: 253, Y: 34}, pt{X: 188, Y: 99}, pt{X: 253, Y: 164}),
	zone(25, "D8", 149, 150, pt{X: 0, Y: 140}, pt{X: 32, Y: 104}, pt{X: 67, Y: 66}, pt{X: 104, Y: 32}, pt{X: 145, Y: 0}, pt{X: 298, Y: 199}, pt{X: 200, Y: 199}, pt{X: 200, Y: 291}),

	// Middle ring, between B zones.
	zone(26, "E1", 607, 195, pt{X: 0, Y: 113}, pt{X: 113, Y: 0}, pt{X: 226, Y: 113}, pt{X: 113, Y: 226}),
	zone(27, "E2", 930, 350, pt{X: 0, Y: 0}, pt{X: 0, Y: 160}, pt{X: 160, Y: 160}, pt{X: 160, Y: 0}, pt{X: 0, Y: 0}),
	zone(28, "E3", 1020, 607, pt{X: 0, Y: 113}, pt{X: 113, Y: 0}, pt{X: 226, Y: 113}, pt{X: 113, Y: 226}),
	zone(29, "E4", 930, 930, pt{X: 0, Y: 0}, pt{X: 0, Y: 160}, pt{X: 160, Y: 160}, pt{X: 160, Y: 0}, pt{X: 0, Y: 0}),
	zone(30, "E5", 607, 1013, pt{X: 0, Y: 113}, pt{X: 113, Y: 0}, pt{X: 226, Y: 113}, pt{X: 113, Y: 226}),
	zone(31, "E6", 350, 930, pt{X: 0, Y: 0}, pt{X: 0, Y: 160}, pt{X: 160, Y: 160}, pt{X: 160, Y: 0}, pt{X: 0, Y: 0}),
	zone(32, "E7", 200, 607, pt{X: 0, Y: 113}, pt{X: 113, Y: 0}, pt{X: 226, Y: 113}, pt{X: 113, Y: 226}),
	zone(33, "E8", 350, 350, pt{X: 0, Y: 0}, pt{X: 0, Y: 160}, pt{X: 160, Y: 160}, pt{X: 160, Y: 0}, pt{X: 0, Y: 0}),
)

// DefaultTable returns the cabinet's 34-zone sensor layout.
func DefaultTable() *Table {
	return defaultTable
}

func mustTable(zones ...Zone) *Table {
	t, err := NewTable(zones...)
	if err != nil {
		panic(err)
	}
	return t
}
