package libusb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"xtouchd/internal/device"
)

func TestLocation(t *testing.T) {
	assert.Equal(t, "1-2.3", Location(1, []int{2, 3}))
	assert.Equal(t, "3-4", Location(3, []int{4}))
	assert.Equal(t, "2-0", Location(2, nil))
}

func TestLocationMatchesConfiguredPorts(t *testing.T) {
	loc := Location(1, []int{2, 2})
	assert.True(t, device.MatchLocation(loc, "2.2"))
	assert.True(t, device.MatchLocation(loc, "1-2.2"))
	assert.False(t, device.MatchLocation(loc, "2.3"))
}
