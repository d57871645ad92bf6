// Package device owns touch panels: it finds and claims the panel for a
// player, runs a dedicated read loop, decodes packets into fingers and feeds
// them through the sensor mapper into the player's tracker.
//
// Two access layers implement Opener: USBOpener claims the raw interface
// through libusb (gousb) and HIDOpener reads through hidapi (go-hid). Tests
// substitute their own.
package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrDeviceNotFound is returned when no attached device satisfies a Match.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrTimeout is returned by Transport.ReadPacket when no packet arrived
	// within the read timeout. Read loops retry on it.
	ErrTimeout = errors.New("read timeout")
	// ErrMalformedPacket is returned by Protocol.Decode for packets that do
	// not carry the expected report.
	ErrMalformedPacket = errors.New("malformed packet")
	// ErrClosed is returned when using a driver or transport after Close.
	ErrClosed = errors.New("device closed")
)

// Finger is one contact slot decoded from a packet.
type Finger struct {
	ID      uint8
	X, Y    uint16
	Pressed bool
}

// Info describes an attached device as seen during enumeration.
type Info struct {
	VendorID  uint16 `json:"vendor_id"`
	ProductID uint16 `json:"product_id"`
	Serial    string `json:"serial,omitempty"`
	// Location is the physical port chain, e.g. "1-2.3".
	Location string `json:"location,omitempty"`
	// Path is the backend-specific handle path, when there is one.
	Path    string `json:"path,omitempty"`
	Product string `json:"product,omitempty"`
}

func (i Info) String() string {
	s := fmt.Sprintf("%04x:%04x", i.VendorID, i.ProductID)
	if i.Location != "" {
		s += " at " + i.Location
	}
	if i.Serial != "" {
		s += " serial " + i.Serial
	}
	return s
}

// Transport is an open, claimed device handle.
type Transport interface {
	// ReadPacket reads one packet into buf, waiting at most timeout. It
	// returns ErrTimeout when nothing arrived in time.
	ReadPacket(ctx context.Context, buf []byte, timeout time.Duration) (int, error)
	// Close releases the claimed interface and closes the handle.
	Close() error
}

// Opener finds and opens devices.
type Opener interface {
	// Open claims the device selected by m or returns ErrDeviceNotFound.
	Open(m Match) (Transport, error)
	// List enumerates attached devices with the given ids.
	List(vendorID, productID uint16) ([]Info, error)
}

// Recorder receives every decoded finger together with the mask it mapped to.
type Recorder interface {
	Record(player int, f Finger, mask uint64, at time.Time)
}

// Strategy is how a Match picks among devices sharing vendor and product ids.
type Strategy int

const (
	// First takes the first device in location order.
	First Strategy = iota
	// BySerial takes the device with the configured serial number.
	BySerial
	// ByLocation takes the device plugged into the configured port.
	ByLocation
)

func (s Strategy) String() string {
	switch s {
	case BySerial:
		return "serial"
	case ByLocation:
		return "location"
	default:
		return "first"
	}
}

// Match identifies the device and endpoint a driver reads from.
type Match struct {
	VendorID  uint16
	ProductID uint16

	Serial       string
	LocationPath string

	Configuration int
	Interface     int
	Endpoint      int
	PacketSize    int
}

// MatchFor builds a Match from a protocol's descriptor and the per-player
// selectors.
func MatchFor(p Protocol, serial, location string) Match {
	d := p.Descriptor()
	return Match{
		VendorID:      d.VendorID,
		ProductID:     d.ProductID,
		Serial:        serial,
		LocationPath:  location,
		Configuration: d.Configuration,
		Interface:     d.Interface,
		Endpoint:      d.Endpoint,
		PacketSize:    d.PacketSize,
	}
}

// Strategy returns the selection rule in priority order: a serial beats a
// location, which beats taking the first device.
func (m Match) Strategy() Strategy {
	switch {
	case strings.TrimSpace(m.Serial) != "":
		return BySerial
	case strings.TrimSpace(m.LocationPath) != "":
		return ByLocation
	default:
		return First
	}
}

func (m Match) String() string {
	switch m.Strategy() {
	case BySerial:
		return fmt.Sprintf("%04x:%04x serial %s", m.VendorID, m.ProductID, m.Serial)
	case ByLocation:
		return fmt.Sprintf("%04x:%04x at %s", m.VendorID, m.ProductID, m.LocationPath)
	default:
		return fmt.Sprintf("%04x:%04x (first)", m.VendorID, m.ProductID)
	}
}

// Select returns the index of the device in infos that m picks. Candidates
// with other ids are skipped; ties resolve to the lowest location.
func Select(infos []Info, m Match) (int, bool) {
	order := make([]int, 0, len(infos))
	for i, info := range infos {
		if info.VendorID == m.VendorID && info.ProductID == m.ProductID {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return infos[order[a]].Location < infos[order[b]].Location
	})

	serial := strings.TrimSpace(m.Serial)
	location := strings.TrimSpace(m.LocationPath)

	for _, i := range order {
		info := infos[i]
		switch m.Strategy() {
		case BySerial:
			if info.Serial == serial {
				return i, true
			}
		case ByLocation:
			if MatchLocation(info.Location, location) || MatchLocation(info.Path, location) {
				return i, true
			}
		default:
			return i, true
		}
	}
	return -1, false
}
