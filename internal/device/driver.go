package device

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"xtouchd/internal/logging"
	"xtouchd/internal/metrics"
	"xtouchd/internal/sensor"
	"xtouchd/internal/tracker"
)

// DefaultReadTimeout bounds each blocking read so Close is noticed promptly.
const DefaultReadTimeout = 100 * time.Millisecond

// DriverConfig wires a driver to its device and player state.
type DriverConfig struct {
	// Player is the 0-based player index.
	Player   int
	Protocol Protocol
	Opener   Opener
	Match    Match

	Mapper  *sensor.Mapper
	Tracker *tracker.Tracker
	Radius  float64

	ReadTimeout time.Duration
	// Nice is applied to the read thread on Linux. 0 leaves it unchanged.
	Nice int

	Logger   *logging.Logger
	Metrics  *metrics.TouchMetrics
	Recorder Recorder

	// Crash, when set, recovers panics in the read loop so the device is
	// still released.
	Crash *logging.CrashHandler
}

// Driver reads one device for one player. It is single use: once its read
// loop has exited, build a new Driver to reconnect.
type Driver struct {
	player   int
	protocol Protocol
	opener   Opener
	match    Match
	mapper   *sensor.Mapper
	tracker  *tracker.Tracker
	radius   atomic.Uint64 // math.Float64bits

	readTimeout time.Duration
	nice        int

	logger   *logging.Logger
	metrics  *metrics.TouchMetrics
	recorder Recorder
	crash    *logging.CrashHandler

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	transport Transport
	started   bool
	closed    bool

	done        chan struct{}
	doneOnce    sync.Once
	releaseOnce sync.Once
	releaseErr  error
}

// NewDriver validates cfg and returns an idle driver.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if cfg.Protocol == nil || cfg.Opener == nil || cfg.Mapper == nil || cfg.Tracker == nil {
		return nil, errors.New("driver needs a protocol, opener, mapper and tracker")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Match.PacketSize <= 0 {
		cfg.Match.PacketSize = cfg.Protocol.Descriptor().PacketSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewTouchMetrics(metrics.NewRegistry(""), logging.PlayerLabel(cfg.Player))
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		player:      cfg.Player,
		protocol:    cfg.Protocol,
		opener:      cfg.Opener,
		match:       cfg.Match,
		mapper:      cfg.Mapper,
		tracker:     cfg.Tracker,
		readTimeout: cfg.ReadTimeout,
		nice:        cfg.Nice,
		logger:      cfg.Logger.WithComponent("device").WithPlayer(cfg.Player),
		metrics:     cfg.Metrics,
		recorder:    cfg.Recorder,
		crash:       cfg.Crash,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	d.SetRadius(cfg.Radius)
	return d, nil
}

// Start opens the device and launches the read loop. ErrDeviceNotFound is
// returned (wrapped) when the device is absent; the player then stays
// without touch input and the caller decides whether to retry.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.started {
		return errors.New("driver already started")
	}

	t, err := d.opener.Open(d.match)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.match, err)
	}

	d.transport = t
	d.started = true
	d.metrics.SetConnected(true)
	d.logger.Info("touch device connected", "device", d.match.String(), "strategy", d.match.Strategy().String())

	go d.readLoop(t)
	return nil
}

// readLoop runs on its own OS thread until Close or an I/O error.
func (d *Driver) readLoop(t Transport) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer d.finish()
	if d.crash != nil {
		defer d.crash.Recover("read loop", map[string]any{
			"player": logging.PlayerLabel(d.player),
			"device": d.match.String(),
		})
	}

	if d.nice != 0 {
		if err := setThreadNice(d.nice); err != nil {
			d.logger.Warn("set read thread priority", "nice", d.nice, "error", err)
		}
	}

	buf := make([]byte, d.match.PacketSize)
	for d.ctx.Err() == nil {
		n, err := t.ReadPacket(d.ctx, buf, d.readTimeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			if d.ctx.Err() != nil {
				return
			}
			d.metrics.ReadErrorsTotal.Inc()
			d.logger.Error("touch device read failed", "error", err)
			return
		}
		if n > 0 {
			d.OnPacket(buf[:n])
		}
	}
}

// finish releases the device when the loop exits on its own, then signals Done.
func (d *Driver) finish() {
	if err := d.release(); err != nil {
		d.logger.Warn("release touch device", "error", err)
	}
	d.doneOnce.Do(func() { close(d.done) })
}

// OnPacket decodes one packet and applies its fingers to the tracker.
// Malformed packets are counted and dropped.
func (d *Driver) OnPacket(packet []byte) {
	d.metrics.PacketsTotal.Inc()
	if err := d.protocol.Decode(packet, d.handleFinger); err != nil {
		d.metrics.MalformedPacketsTotal.Inc()
		d.logger.Debug("dropped packet", "error", err, "len", len(packet))
	}
}

func (d *Driver) handleFinger(f Finger) {
	var mask uint64
	if f.Pressed {
		// Mapping stays outside the tracker lock; only the store is guarded.
		mask = d.mapper.Map(float64(f.X), float64(f.Y), d.Radius())
		d.tracker.Press(int(f.ID), mask)
		d.metrics.PressesTotal.Inc()
	} else {
		d.tracker.Release(int(f.ID))
		d.metrics.ReleasesTotal.Inc()
	}
	if d.recorder != nil {
		d.recorder.Record(d.player, f, mask, time.Now())
	}
}

// SetRadius changes the contact radius used for subsequent packets.
func (d *Driver) SetRadius(r float64) {
	d.radius.Store(math.Float64bits(r))
}

// Radius returns the current contact radius.
func (d *Driver) Radius() float64 {
	return math.Float64frombits(d.radius.Load())
}

// Player returns the driver's 0-based player index.
func (d *Driver) Player() int {
	return d.player
}

// Connected reports whether the device is open and the read loop running.
func (d *Driver) Connected() bool {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

// Done is closed once the read loop has exited and the device is released,
// or when Close is called on a driver that never started.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

// Close stops the read loop and releases the device. The device is released
// exactly once even when Close races with the loop exiting on an error.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	started := d.started
	d.mu.Unlock()

	d.cancel()
	if started {
		<-d.done
	} else {
		d.doneOnce.Do(func() { close(d.done) })
	}
	return d.release()
}

// release closes the transport once and clears the player's contacts.
func (d *Driver) release() error {
	d.releaseOnce.Do(func() {
		d.mu.Lock()
		t := d.transport
		d.mu.Unlock()
		if t == nil {
			return
		}

		d.releaseErr = t.Close()
		d.tracker.Reset()
		d.metrics.SetConnected(false)
		d.logger.Info("touch device released")
	})
	return d.releaseErr
}
