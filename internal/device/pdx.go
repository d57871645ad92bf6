package device

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/struc"

	"xtouchd/internal/sensor"
)

// PDX panel constants.
const (
	PDXVendorID  = 0x3356
	PDXProductID = 0x3003

	pdxReportID  = 2
	pdxSlots     = 10
	pdxSlotSize  = 6
	pdxReportLen = 1 + pdxSlots*pdxSlotSize
)

// pdxSlot is one finger record inside a PDX touch report.
type pdxSlot struct {
	Flags  uint8
	Finger uint8
	X      uint16
	Y      uint16
}

var pdxOrder = &struc.Options{Order: binary.LittleEndian}

// PDX decodes the PDX panel's 64-byte touch reports: report id 2 followed by
// ten 6-byte slots. A slot with zero flags is empty; bit 0 of the flags means
// the finger is down.
type PDX struct{}

// Name implements Protocol.
func (PDX) Name() string { return "pdx" }

// Descriptor implements Protocol. The panel's x axis runs right to left and
// is mounted rotated, hence the inverted x range and the flip.
func (PDX) Descriptor() Descriptor {
	return Descriptor{
		VendorID:      PDXVendorID,
		ProductID:     PDXProductID,
		Configuration: 1,
		Interface:     1,
		Endpoint:      2,
		PacketSize:    64,
		Bounds:        sensor.Bounds{MinX: 18432, MinY: 0, MaxX: 0, MaxY: 32767},
		Flip:          true,
	}
}

// Decode implements Protocol.
func (PDX) Decode(packet []byte, emit func(Finger)) error {
	if len(packet) < pdxReportLen {
		return fmt.Errorf("%w: pdx report is %d bytes, need %d", ErrMalformedPacket, len(packet), pdxReportLen)
	}
	if packet[0] != pdxReportID {
		return fmt.Errorf("%w: pdx report id %d", ErrMalformedPacket, packet[0])
	}

	var slots [pdxSlots]pdxSlot
	for i := range slots {
		off := 1 + i*pdxSlotSize
		r := bytes.NewReader(packet[off : off+pdxSlotSize])
		if err := struc.UnpackWithOptions(r, &slots[i], pdxOrder); err != nil {
			return fmt.Errorf("%w: slot %d: %v", ErrMalformedPacket, i, err)
		}
	}

	for _, s := range slots {
		if s.Flags == 0 {
			continue
		}
		emit(Finger{
			ID:      s.Finger,
			X:       s.X,
			Y:       s.Y,
			Pressed: s.Flags&0x01 == 1,
		})
	}
	return nil
}

// EncodePDX builds a PDX report from fingers. Tests use it to feed fake
// devices. At most ten fingers fit; the rest are ignored.
func EncodePDX(fingers ...Finger) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64)
	buf.WriteByte(pdxReportID)

	for i := 0; i < pdxSlots; i++ {
		var s pdxSlot
		if i < len(fingers) {
			f := fingers[i]
			s = pdxSlot{Flags: 0x02, Finger: f.ID, X: f.X, Y: f.Y}
			if f.Pressed {
				s.Flags |= 0x01
			}
		}
		if err := struc.PackWithOptions(&buf, &s, pdxOrder); err != nil {
			return nil, fmt.Errorf("pack pdx slot %d: %w", i, err)
		}
	}

	packet := make([]byte, 64)
	copy(packet, buf.Bytes())
	return packet, nil
}
