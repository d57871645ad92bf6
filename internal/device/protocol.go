package device

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"xtouchd/internal/sensor"
)

// Descriptor is the fixed wiring of a panel model.
type Descriptor struct {
	VendorID  uint16
	ProductID uint16

	Configuration int
	Interface     int
	// Endpoint is the IN endpoint number without the direction bit.
	Endpoint   int
	PacketSize int

	// Bounds is the raw coordinate range the panel reports.
	Bounds sensor.Bounds
	// Flip swaps the axes after normalization.
	Flip bool
}

// Protocol decodes one panel model's packets.
type Protocol interface {
	Name() string
	Descriptor() Descriptor
	// Decode calls emit for every occupied slot in packet, in slot order.
	// It returns ErrMalformedPacket (wrapped) for packets it cannot use, in
	// which case emit is not called.
	Decode(packet []byte, emit func(Finger)) error
}

var (
	protocolsMu sync.RWMutex
	protocols   = map[string]Protocol{}
)

// RegisterProtocol makes a protocol available to ProtocolByName.
func RegisterProtocol(p Protocol) {
	protocolsMu.Lock()
	defer protocolsMu.Unlock()
	protocols[strings.ToLower(p.Name())] = p
}

// ProtocolByName looks up a registered protocol, case-insensitively.
func ProtocolByName(name string) (Protocol, error) {
	protocolsMu.RLock()
	defer protocolsMu.RUnlock()

	p, ok := protocols[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown touch protocol %q", name)
	}
	return p, nil
}

// Protocols returns the registered protocol names, sorted.
func Protocols() []string {
	protocolsMu.RLock()
	defer protocolsMu.RUnlock()

	names := make([]string, 0, len(protocols))
	for name := range protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterProtocol(PDX{})
}
