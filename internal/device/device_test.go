package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchStrategy(t *testing.T) {
	assert.Equal(t, First, Match{}.Strategy())
	assert.Equal(t, First, Match{Serial: "  ", LocationPath: "\t"}.Strategy())
	assert.Equal(t, ByLocation, Match{LocationPath: "2.2"}.Strategy())
	assert.Equal(t, BySerial, Match{Serial: "A1", LocationPath: "2.2"}.Strategy(), "serial wins over location")
	assert.Equal(t, "serial", BySerial.String())
}

func TestMatchFor(t *testing.T) {
	m := MatchFor(PDX{}, "", "2.2")
	assert.Equal(t, uint16(PDXVendorID), m.VendorID)
	assert.Equal(t, uint16(PDXProductID), m.ProductID)
	assert.Equal(t, 1, m.Configuration)
	assert.Equal(t, 1, m.Interface)
	assert.Equal(t, 2, m.Endpoint)
	assert.Equal(t, 64, m.PacketSize)
	assert.Equal(t, ByLocation, m.Strategy())
}

func TestSelect(t *testing.T) {
	infos := []Info{
		{VendorID: PDXVendorID, ProductID: PDXProductID, Location: "1-3", Serial: "B"},
		{VendorID: 0x1234, ProductID: 0x0001, Location: "1-1"},
		{VendorID: PDXVendorID, ProductID: PDXProductID, Location: "1-2.2", Serial: "A"},
	}
	base := MatchFor(PDX{}, "", "")

	idx, ok := Select(infos, base)
	assert.True(t, ok)
	assert.Equal(t, 2, idx, "first in location order, other ids skipped")

	m := base
	m.Serial = "B"
	idx, ok = Select(infos, m)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	m = base
	m.LocationPath = "3"
	idx, ok = Select(infos, m)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	m = base
	m.Serial = "missing"
	m.LocationPath = "1-3"
	_, ok = Select(infos, m)
	assert.False(t, ok, "a serial is not silently replaced by the location")

	_, ok = Select(nil, base)
	assert.False(t, ok)
}

func TestInfoString(t *testing.T) {
	i := Info{VendorID: 0x3356, ProductID: 0x3003, Location: "1-2", Serial: "X"}
	assert.Equal(t, "3356:3003 at 1-2 serial X", i.String())
}
