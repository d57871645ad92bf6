package metrics

import (
	"time"
)

// TouchMetrics holds the metrics for one player's touch pipeline.
type TouchMetrics struct {
	registry *Registry

	// Counters
	PacketsTotal          *Counter
	MalformedPacketsTotal *Counter
	ReadErrorsTotal       *Counter
	PressesTotal          *Counter
	ReleasesTotal         *Counter
	PollsTotal            *Counter
	ContactTimeoutsTotal  *Counter
	ReconnectsTotal       *Counter

	// Gauges
	DeviceConnected *Gauge
	ActiveContacts  *Gauge

	// Histograms
	PollDuration *Histogram
}

// NewTouchMetrics creates and registers the metrics for a 1-based player label
// such as "1P". Calling it twice for the same player returns the same series.
func NewTouchMetrics(registry *Registry, player string) *TouchMetrics {
	if registry == nil {
		registry = Default()
	}
	labels := Labels{"player": player}

	return &TouchMetrics{
		registry: registry,

		PacketsTotal: registry.RegisterCounter(
			"packets_total",
			"Total number of device packets read",
			labels,
		),
		MalformedPacketsTotal: registry.RegisterCounter(
			"malformed_packets_total",
			"Total number of packets dropped as malformed",
			labels,
		),
		ReadErrorsTotal: registry.RegisterCounter(
			"read_errors_total",
			"Total number of device read errors that stopped a read loop",
			labels,
		),
		PressesTotal: registry.RegisterCounter(
			"presses_total",
			"Total number of finger press reports",
			labels,
		),
		ReleasesTotal: registry.RegisterCounter(
			"releases_total",
			"Total number of finger release reports",
			labels,
		),
		PollsTotal: registry.RegisterCounter(
			"polls_total",
			"Total number of touch state polls",
			labels,
		),
		ContactTimeoutsTotal: registry.RegisterCounter(
			"contact_timeouts_total",
			"Total number of contacts released by the stale timeout",
			labels,
		),
		ReconnectsTotal: registry.RegisterCounter(
			"reconnects_total",
			"Total number of device reconnect attempts after the first connect",
			labels,
		),

		DeviceConnected: registry.RegisterGauge(
			"device_connected",
			"Whether the player's touch device is open (1) or not (0)",
			labels,
		),
		ActiveContacts: registry.RegisterGauge(
			"active_contacts",
			"Number of contacts active at the last poll",
			labels,
		),

		PollDuration: registry.RegisterHistogram(
			"poll_duration_seconds",
			"Time spent answering a touch state poll",
			labels,
			LatencyBuckets,
		),
	}
}

// Registry returns the registry the metrics live in.
func (m *TouchMetrics) Registry() *Registry {
	return m.registry
}

// ObservePoll records one poll and its latency.
func (m *TouchMetrics) ObservePoll(start time.Time) {
	m.PollsTotal.Inc()
	m.PollDuration.ObserveDuration(time.Since(start))
}

// SetConnected updates the connection gauge.
func (m *TouchMetrics) SetConnected(connected bool) {
	if connected {
		m.DeviceConnected.Set(1)
	} else {
		m.DeviceConnected.Set(0)
	}
}
