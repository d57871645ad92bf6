package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xtouchd/internal/config"
	"xtouchd/internal/device"
	"xtouchd/internal/journal"
	"xtouchd/internal/touch"
)

func TestReplayExpiresStaleContacts(t *testing.T) {
	cfg := config.DefaultConfig()
	mapper, err := touch.NewMapper(device.PDX{}, cfg.Touch)
	require.NoError(t, err)
	rep := newReplayer(mapper, cfg.Touch.Radius, 20*time.Millisecond)

	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := func(at time.Duration, player, id int, pressed bool) journal.Event {
		return journal.Event{
			Time:   t0.Add(at),
			Player: player,
			Finger: device.Finger{ID: uint8(id), X: 14490, Y: 16384, Pressed: pressed},
		}
	}

	// Finger 0 is pressed and its release never arrives.
	mask, held, ok := rep.feed(ev(0, 0, 0, true))
	require.True(t, ok)
	require.NotZero(t, mask)
	assert.Equal(t, mask, held)

	_, held, _ = rep.feed(ev(10*time.Millisecond, 0, 5, false))
	assert.Equal(t, mask, held, "contact is still within the timeout")

	_, held, _ = rep.feed(ev(50*time.Millisecond, 0, 5, false))
	assert.Zero(t, held, "stale contact is dropped on recorded time")

	_, held, ok = rep.feed(ev(60*time.Millisecond, 1, 3, true))
	assert.True(t, ok)
	assert.Equal(t, mask, held, "players replay independently")

	_, _, ok = rep.feed(ev(70*time.Millisecond, 7, 0, true))
	assert.False(t, ok)
}
