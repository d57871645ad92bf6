package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, p Protocol, packet []byte) ([]Finger, error) {
	t.Helper()
	var got []Finger
	err := p.Decode(packet, func(f Finger) { got = append(got, f) })
	return got, err
}

func TestPDXDecodeLayout(t *testing.T) {
	packet := make([]byte, 64)
	packet[0] = 2
	// slot 0: pressed finger 5 at (0x1234, 0x0100)
	copy(packet[1:], []byte{0x01, 5, 0x34, 0x12, 0x00, 0x01})
	// slot 1 left empty
	// slot 2: released finger 9 at (1, 2)
	copy(packet[13:], []byte{0x02, 9, 0x01, 0x00, 0x02, 0x00})
	// slot 9: flags with bit 0 set among others
	copy(packet[55:], []byte{0x83, 200, 0xff, 0xff, 0xff, 0x7f})

	got, err := collect(t, PDX{}, packet)
	require.NoError(t, err)
	assert.Equal(t, []Finger{
		{ID: 5, X: 0x1234, Y: 0x0100, Pressed: true},
		{ID: 9, X: 1, Y: 2, Pressed: false},
		{ID: 200, X: 0xffff, Y: 0x7fff, Pressed: true},
	}, got)
}

func TestPDXRejectsOtherReports(t *testing.T) {
	packet := make([]byte, 64)
	packet[0] = 1
	packet[1] = 0x01

	got, err := collect(t, PDX{}, packet)
	assert.ErrorIs(t, err, ErrMalformedPacket)
	assert.Empty(t, got)
}

func TestPDXRejectsShortPackets(t *testing.T) {
	packet := make([]byte, 60)
	packet[0] = 2

	_, err := collect(t, PDX{}, packet)
	assert.ErrorIs(t, err, ErrMalformedPacket)

	_, err = collect(t, PDX{}, nil)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestPDXEmptyReport(t *testing.T) {
	packet := make([]byte, 64)
	packet[0] = 2

	got, err := collect(t, PDX{}, packet)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncodePDX(t *testing.T) {
	in := []Finger{
		{ID: 1, X: 18432, Y: 0, Pressed: true},
		{ID: 2, X: 100, Y: 32767, Pressed: false},
	}
	packet, err := EncodePDX(in...)
	require.NoError(t, err)
	assert.Len(t, packet, 64)
	assert.Equal(t, byte(2), packet[0])
	assert.Equal(t, []byte{0x00, 0x48}, packet[3:5], "x is little endian")

	got, err := collect(t, PDX{}, packet)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestProtocolRegistry(t *testing.T) {
	p, err := ProtocolByName(" PDX ")
	require.NoError(t, err)
	assert.Equal(t, "pdx", p.Name())
	assert.Contains(t, Protocols(), "pdx")

	_, err = ProtocolByName("adx")
	assert.Error(t, err)
}

func TestPDXDescriptor(t *testing.T) {
	d := PDX{}.Descriptor()
	assert.Equal(t, 18432.0, d.Bounds.MinX)
	assert.Equal(t, 0.0, d.Bounds.MaxX)
	assert.Equal(t, 32767.0, d.Bounds.MaxY)
	assert.True(t, d.Flip)
}
