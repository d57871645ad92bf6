package touch

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"xtouchd/internal/device"
	"xtouchd/internal/logging"
	"xtouchd/internal/metrics"
	"xtouchd/internal/sensor"
	"xtouchd/internal/tracker"
)

// Player is one player's touch context: its tracker, the shared mapper and
// whatever keeps its device connected. It implements bridge.Provider.
type Player struct {
	index   int
	match   device.Match
	mapper  *sensor.Mapper
	tracker *tracker.Tracker
	metrics *metrics.TouchMetrics
	logger  *logging.Logger

	radius atomic.Uint64 // math.Float64bits

	mu         sync.Mutex
	driver     *device.Driver
	supervisor *device.Supervisor
	openErr    error
}

// Index returns the 0-based player index.
func (p *Player) Index() int {
	return p.index
}

// Label returns the cabinet label, "1P" or "2P".
func (p *Player) Label() string {
	return logging.PlayerLabel(p.index)
}

// Match returns the device selector for this player.
func (p *Player) Match() device.Match {
	return p.match
}

// Tracker returns the player's contact tracker.
func (p *Player) Tracker() *tracker.Tracker {
	return p.tracker
}

// Metrics returns the player's metrics.
func (p *Player) Metrics() *metrics.TouchMetrics {
	return p.metrics
}

// TouchState polls the tracker. It is the provider the bridge calls once
// per game frame.
func (p *Player) TouchState() uint64 {
	start := time.Now()
	mask := p.tracker.Poll()
	p.metrics.PollsTotal.Inc()
	p.metrics.ActiveContacts.Set(int64(p.tracker.Active()))
	p.metrics.ObservePoll(start)
	return mask
}

// Connected reports whether the player's device is currently being read.
func (p *Player) Connected() bool {
	p.mu.Lock()
	d, s := p.driver, p.supervisor
	p.mu.Unlock()

	switch {
	case s != nil:
		return s.Connected()
	case d != nil:
		return d.Connected()
	default:
		return false
	}
}

// Radius returns the contact radius in canvas units.
func (p *Player) Radius() float64 {
	return math.Float64frombits(p.radius.Load())
}

// SetRadius changes the contact radius for subsequent packets.
func (p *Player) SetRadius(r float64) {
	p.radius.Store(math.Float64bits(r))

	p.mu.Lock()
	d, s := p.driver, p.supervisor
	p.mu.Unlock()
	if s != nil {
		s.SetRadius(r)
	}
	if d != nil {
		d.SetRadius(r)
	}
}

// SetTimeout changes the contact timeout.
func (p *Player) SetTimeout(d time.Duration) {
	p.tracker.SetTimeout(d)
}

// Details describes the player for health reports.
func (p *Player) Details() map[string]any {
	d := map[string]any{
		"player":   p.Label(),
		"device":   p.match.String(),
		"strategy": p.match.Strategy().String(),
		"active":   p.tracker.Active(),
		"radius":   p.Radius(),
	}
	if err := p.OpenError(); err != nil {
		d["error"] = err.Error()
	}
	return d
}

// OpenError returns the error from the last failed attempt to open the
// player's device without hot plug, or nil.
func (p *Player) OpenError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openErr
}
