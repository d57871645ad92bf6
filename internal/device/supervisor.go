package device

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"xtouchd/internal/logging"
	"xtouchd/internal/metrics"
)

// DefaultReconnectInterval is the delay between reconnect attempts.
const DefaultReconnectInterval = 500 * time.Millisecond

// Supervisor keeps a player's device connected: it starts a driver, waits
// for it to exit, and starts a fresh one after the reconnect interval. A
// device that is absent at startup is retried the same way.
type Supervisor struct {
	newDriver func() (*Driver, error)
	interval  time.Duration
	logger    *logging.Logger
	metrics   *metrics.TouchMetrics

	radius    atomic.Uint64
	hasRadius atomic.Bool

	mu      sync.Mutex
	current *Driver
}

// NewSupervisor creates a supervisor that builds drivers with newDriver.
func NewSupervisor(newDriver func() (*Driver, error), interval time.Duration, logger *logging.Logger, m *metrics.TouchMetrics) *Supervisor {
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Supervisor{
		newDriver: newDriver,
		interval:  interval,
		logger:    logger.WithComponent("supervisor"),
		metrics:   m,
	}
}

// Run connects and reconnects until ctx is cancelled, then closes the
// current driver.
func (s *Supervisor) Run(ctx context.Context) error {
	missing := false
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil
		}

		d, err := s.connect(attempt > 0)
		if err != nil {
			if errors.Is(err, ErrDeviceNotFound) {
				if !missing {
					s.logger.Info("waiting for touch device")
					missing = true
				}
			} else {
				s.logger.Warn("touch device connect failed", "error", err)
			}
		} else {
			missing = false
			select {
			case <-d.Done():
				s.logger.Warn("touch device disconnected, reconnecting", "interval", s.interval)
			case <-ctx.Done():
				s.setCurrent(nil)
				return d.Close()
			}
			s.setCurrent(nil)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.interval):
		}
	}
}

// connect starts one driver. Every attempt after the first counts as a
// reconnect.
func (s *Supervisor) connect(retry bool) (*Driver, error) {
	if retry && s.metrics != nil {
		s.metrics.ReconnectsTotal.Inc()
	}
	d, err := s.newDriver()
	if err != nil {
		return nil, err
	}
	// Publish before reading the radius so a concurrent SetRadius reaches
	// this driver one way or the other.
	s.setCurrent(d)
	if s.hasRadius.Load() {
		d.SetRadius(math.Float64frombits(s.radius.Load()))
	}
	if err := d.Start(); err != nil {
		s.setCurrent(nil)
		if cerr := d.Close(); cerr != nil {
			s.logger.Debug("close unstarted driver", "error", cerr)
		}
		return nil, err
	}
	return d, nil
}

func (s *Supervisor) setCurrent(d *Driver) {
	s.mu.Lock()
	s.current = d
	s.mu.Unlock()
}

// Current returns the running driver, or nil while disconnected.
func (s *Supervisor) Current() *Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Connected reports whether a driver is currently running.
func (s *Supervisor) Connected() bool {
	d := s.Current()
	return d != nil && d.Connected()
}

// SetRadius applies r to the running driver and to every later one.
func (s *Supervisor) SetRadius(r float64) {
	s.radius.Store(math.Float64bits(r))
	s.hasRadius.Store(true)
	if d := s.Current(); d != nil {
		d.SetRadius(r)
	}
}
