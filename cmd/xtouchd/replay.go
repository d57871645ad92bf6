package main

import (
	"time"

	"xtouchd/internal/bridge"
	"xtouchd/internal/journal"
	"xtouchd/internal/sensor"
	"xtouchd/internal/tracker"
)

// replayer feeds journaled events through fresh trackers. The trackers run on
// the recorded timestamps so contact timeouts expire as they did live.
type replayer struct {
	mapper   *sensor.Mapper
	radius   float64
	now      time.Time
	trackers [bridge.MaxPlayers]*tracker.Tracker
}

func newReplayer(mapper *sensor.Mapper, radius float64, timeout time.Duration) *replayer {
	r := &replayer{mapper: mapper, radius: radius}
	clock := func() time.Time { return r.now }
	for i := range r.trackers {
		r.trackers[i] = tracker.New(tracker.WithTimeout(timeout), tracker.WithClock(clock))
	}
	return r
}

// feed applies e and polls its player's tracker at the event's time. It
// returns the re-mapped press mask (0 for releases) and the polled state;
// ok is false for events from an unknown player.
func (r *replayer) feed(e journal.Event) (mask, state uint64, ok bool) {
	if e.Player < 0 || e.Player >= bridge.MaxPlayers {
		return 0, 0, false
	}
	r.now = e.Time
	tr := r.trackers[e.Player]
	if e.Finger.Pressed {
		mask = r.mapper.Map(float64(e.Finger.X), float64(e.Finger.Y), r.radius)
		tr.Press(int(e.Finger.ID), mask)
	} else {
		tr.Release(int(e.Finger.ID))
	}
	return mask, tr.Poll(), true
}
