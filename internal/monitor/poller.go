package monitor

import (
	"context"
	"time"

	"xtouchd/internal/bridge"
	"xtouchd/internal/logging"
	"xtouchd/internal/sensor"
)

// DefaultPollInterval is one 60Hz frame.
const DefaultPollInterval = time.Second / 60

// Poller polls every player once per interval, the way a game loop would,
// and broadcasts each player's mask when it changes.
type Poller struct {
	bridge   *bridge.Bridge
	table    *sensor.Table
	hub      *Hub
	interval time.Duration

	last [bridge.MaxPlayers]uint64
}

// NewPoller creates a poller. A nil table names no zones.
func NewPoller(b *bridge.Bridge, table *sensor.Table, hub *Hub, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{bridge: b, table: table, hub: hub, interval: interval}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			p.Tick(now)
		}
	}
}

// Tick polls each registered player once.
func (p *Poller) Tick(now time.Time) {
	for player := 0; player < bridge.MaxPlayers; player++ {
		if !p.bridge.Registered(player) {
			continue
		}
		mask := p.bridge.TouchState(player)
		if mask == p.last[player] {
			continue
		}
		p.last[player] = mask

		f := Frame{Player: logging.PlayerLabel(player), Mask: mask, Time: now}
		if p.table != nil {
			f.Zones = p.table.Names(mask)
		}
		if f.Zones == nil {
			f.Zones = []string{}
		}
		p.hub.Broadcast(f)
	}
}
