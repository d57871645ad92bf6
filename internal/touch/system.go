// Package touch assembles the per-player touch pipelines from configuration
// and registers them with the polling bridge.
package touch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"xtouchd/internal/bridge"
	"xtouchd/internal/config"
	"xtouchd/internal/device"
	"xtouchd/internal/health"
	"xtouchd/internal/logging"
	"xtouchd/internal/metrics"
	"xtouchd/internal/sensor"
	"xtouchd/internal/tracker"
)

// Options wires a System to its surroundings. Config and Opener are
// required; the rest default to fresh or no-op instances.
type Options struct {
	Config   *config.Config
	Opener   device.Opener
	Bridge   *bridge.Bridge
	Registry *metrics.Registry
	Health   *health.Checker
	Recorder device.Recorder
	Logger   *logging.Logger
	Crash    *logging.CrashHandler
}

// System owns every player context.
type System struct {
	cfg      *config.Config
	protocol device.Protocol
	mapper   *sensor.Mapper
	opener   device.Opener
	bridge   *bridge.Bridge
	registry *metrics.Registry
	health   *health.Checker
	recorder device.Recorder
	logger   *logging.Logger
	crash    *logging.CrashHandler

	readTimeout time.Duration
	nice        int

	players []*Player

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMapper builds the mapper for a protocol, applying the configured
// bounds override when present.
func NewMapper(p device.Protocol, t config.TouchConfig) (*sensor.Mapper, error) {
	d := p.Descriptor()
	bounds, flip := d.Bounds, d.Flip
	if b := t.Bounds; b != nil {
		bounds = sensor.Bounds{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}
		flip = b.Flip
	}
	m, err := sensor.NewMapper(bounds, flip, nil)
	if err != nil {
		return nil, fmt.Errorf("build mapper for %s: %w", p.Name(), err)
	}
	return m, nil
}

// NewSystem validates the configuration and builds one Player per
// configured player. Nothing touches a device until Start.
func NewSystem(opts Options) (*System, error) {
	if opts.Config == nil {
		return nil, errors.New("touch system needs a config")
	}
	if opts.Opener == nil {
		return nil, errors.New("touch system needs a device opener")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	protocol, err := device.ProtocolByName(opts.Config.Touch.Protocol)
	if err != nil {
		return nil, err
	}
	mapper, err := NewMapper(protocol, opts.Config.Touch)
	if err != nil {
		return nil, err
	}

	if opts.Bridge == nil {
		opts.Bridge = bridge.New()
	}
	if opts.Registry == nil {
		opts.Registry = metrics.Default()
	}
	if opts.Health == nil {
		opts.Health = health.NewChecker()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	s := &System{
		cfg:      opts.Config.Clone(),
		protocol: protocol,
		mapper:   mapper,
		opener:   opts.Opener,
		bridge:   opts.Bridge,
		registry: opts.Registry,
		health:   opts.Health,
		recorder: opts.Recorder,
		logger:   opts.Logger.WithComponent("touch"),
		crash:    opts.Crash,

		readTimeout: opts.Config.Touch.ReadTimeout(),
		nice:        opts.Config.Touch.IONice,
	}

	players := s.cfg.Players
	if len(players) == 0 {
		players = []config.PlayerConfig{{Player: 1}}
	}
	for _, pc := range players {
		s.players = append(s.players, s.newPlayer(pc))
	}
	return s, nil
}

func (s *System) newPlayer(pc config.PlayerConfig) *Player {
	index := pc.Player - 1
	m := metrics.NewTouchMetrics(s.registry, logging.PlayerLabel(index))

	p := &Player{
		index:   index,
		match:   device.MatchFor(s.protocol, pc.Serial, pc.LocationPath),
		mapper:  s.mapper,
		metrics: m,
		logger:  s.logger.WithPlayer(index),
	}
	p.tracker = tracker.New(
		tracker.WithTimeout(s.cfg.Touch.Timeout()),
		tracker.WithTimeoutHook(func(int) { m.ContactTimeoutsTotal.Inc() }),
	)
	p.radius.Store(math.Float64bits(s.cfg.Touch.Radius))
	return p
}

// Protocol returns the panel protocol in use.
func (s *System) Protocol() device.Protocol {
	return s.protocol
}

// Mapper returns the shared mapper.
func (s *System) Mapper() *sensor.Mapper {
	return s.mapper
}

// Bridge returns the bridge players are registered with.
func (s *System) Bridge() *bridge.Bridge {
	return s.bridge
}

// Players returns the player contexts in configuration order.
func (s *System) Players() []*Player {
	return append([]*Player(nil), s.players...)
}

// Player returns the context for a 0-based player index.
func (s *System) Player(index int) (*Player, bool) {
	for _, p := range s.players {
		if p.index == index {
			return p, true
		}
	}
	return nil, false
}

func (s *System) newDriver(p *Player) (*device.Driver, error) {
	return device.NewDriver(device.DriverConfig{
		Player:      p.index,
		Protocol:    s.protocol,
		Opener:      s.opener,
		Match:       p.match,
		Mapper:      p.mapper,
		Tracker:     p.tracker,
		Radius:      p.Radius(),
		ReadTimeout: s.readTimeout,
		Nice:        s.nice,
		Logger:      s.logger,
		Metrics:     p.metrics,
		Recorder:    s.recorder,
		Crash:       s.crash,
	})
}

// Start registers every player with the bridge and health checker and
// connects their devices. A device that cannot be opened leaves its player
// registered but silent and its health degraded; the other player is
// unaffected. With hot plug enabled the device is retried in the
// background. Start returns an error only when a player cannot be built or
// registered.
func (s *System) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("touch system already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)

	for _, p := range s.players {
		if err := s.bridge.Register(p.index, p); err != nil {
			return fmt.Errorf("register %s: %w", p.Label(), err)
		}
		s.health.Register(&health.Component{
			Name:     "device_" + p.Label(),
			Critical: false,
			Check:    health.DeviceCheck(p.Connected, p.Details),
		})

		if s.cfg.Touch.HotPlug {
			s.startSupervised(ctx, p)
			continue
		}
		if err := s.startDirect(p); err != nil {
			return err
		}
	}
	return nil
}

// startDirect opens p's device once. Open failures are logged and kept on
// the player; only a driver that cannot be built is returned.
func (s *System) startDirect(p *Player) error {
	d, err := s.newDriver(p)
	if err != nil {
		return fmt.Errorf("build driver for %s: %w", p.Label(), err)
	}
	if err := d.Start(); err != nil {
		if cerr := d.Close(); cerr != nil {
			p.logger.Debug("close unstarted driver", "error", cerr)
		}
		p.mu.Lock()
		p.openErr = err
		p.mu.Unlock()
		if errors.Is(err, device.ErrDeviceNotFound) {
			p.logger.Warn("touch device not found, player has no touch input", "device", p.match.String())
		} else {
			p.logger.Error("touch device failed to open, player has no touch input",
				"device", p.match.String(), "error", err)
		}
		return nil
	}

	p.mu.Lock()
	p.driver = d
	p.openErr = nil
	p.mu.Unlock()
	return nil
}

func (s *System) startSupervised(ctx context.Context, p *Player) {
	sup := device.NewSupervisor(func() (*device.Driver, error) {
		return s.newDriver(p)
	}, s.cfg.Touch.ReconnectInterval(), s.logger.WithPlayer(p.index), p.metrics)
	sup.SetRadius(p.Radius())

	p.mu.Lock()
	p.supervisor = sup
	p.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := sup.Run(ctx); err != nil {
			p.logger.Warn("supervisor stopped", "error", err)
		}
	}()
}

// Apply takes the live-reloadable settings from cfg: contact radius and
// contact timeout. Other changes need a restart and are logged.
func (s *System) Apply(cfg *config.Config) {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg.Clone()
	s.mu.Unlock()

	for _, p := range s.players {
		p.SetRadius(cfg.Touch.Radius)
		p.SetTimeout(cfg.Touch.Timeout())
	}
	s.logger.Info("touch settings applied", "radius", cfg.Touch.Radius, "timeout", cfg.Touch.Timeout())

	if old.Touch.Protocol != cfg.Touch.Protocol || old.Touch.Backend != cfg.Touch.Backend ||
		old.Touch.HotPlug != cfg.Touch.HotPlug || !samePlayers(old.Players, cfg.Players) {
		s.logger.Warn("device settings changed, restart to apply")
	}
}

func samePlayers(a, b []config.PlayerConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Close stops every player, releases the devices and unregisters the
// players from the bridge and health checker.
func (s *System) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	var errs []error
	for _, p := range s.players {
		p.mu.Lock()
		d := p.driver
		p.driver = nil
		p.supervisor = nil
		p.mu.Unlock()

		if d != nil {
			if err := d.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", p.Label(), err))
			}
		}
		s.bridge.Unregister(p.index)
		s.health.Unregister("device_" + p.Label())
	}
	return errors.Join(errs...)
}
