// Package hidapi opens touch panels through hidapi. It needs no interface
// claim, so it works where the panel must stay bound to the HID class driver.
package hidapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sstallion/go-hid"

	"xtouchd/internal/device"
)

var (
	initOnce sync.Once
	initErr  error
)

// Opener implements device.Opener over hidapi.
type Opener struct{}

var _ device.Opener = (*Opener)(nil)

// NewOpener initializes hidapi once per process.
func NewOpener() (*Opener, error) {
	initOnce.Do(func() {
		initErr = hid.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("init hidapi: %w", initErr)
	}
	return &Opener{}, nil
}

// Close is a no-op; hidapi stays initialized for the life of the process.
func (o *Opener) Close() error {
	return nil
}

type candidate struct {
	info  device.Info
	iface int
}

func enumerate(vendorID, productID uint16) ([]candidate, error) {
	var found []candidate
	err := hid.Enumerate(vendorID, productID, func(info *hid.DeviceInfo) error {
		found = append(found, candidate{
			info: device.Info{
				VendorID:  info.VendorID,
				ProductID: info.ProductID,
				Serial:    info.SerialNbr,
				Location:  info.Path,
				Path:      info.Path,
				Product:   info.ProductStr,
			},
			iface: info.InterfaceNbr,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate hid devices: %w", err)
	}
	return found, nil
}

// List implements device.Opener.
func (o *Opener) List(vendorID, productID uint16) ([]device.Info, error) {
	found, err := enumerate(vendorID, productID)
	if err != nil {
		return nil, err
	}
	infos := make([]device.Info, len(found))
	for i, c := range found {
		infos[i] = c.info
	}
	return infos, nil
}

// Open implements device.Opener. Only HID collections on the configured
// interface are considered when hidapi reports interface numbers.
func (o *Opener) Open(m device.Match) (device.Transport, error) {
	found, err := enumerate(m.VendorID, m.ProductID)
	if err != nil {
		return nil, err
	}

	var infos []device.Info
	for _, c := range found {
		if c.iface >= 0 && c.iface != m.Interface {
			continue
		}
		infos = append(infos, c.info)
	}

	idx, ok := device.Select(infos, m)
	if !ok {
		return nil, device.ErrDeviceNotFound
	}

	dev, err := hid.OpenPath(infos[idx].Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", infos[idx].Path, err)
	}
	return &transport{dev: dev}, nil
}

type transport struct {
	dev       *hid.Device
	closeOnce sync.Once
	closeErr  error
}

// ReadPacket implements device.Transport. hidapi reads are not cancellable,
// so the context is only checked before blocking.
func (t *transport) ReadPacket(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := t.dev.ReadWithTimeout(buf, timeout)
	if errors.Is(err, hid.ErrTimeout) {
		return 0, device.ErrTimeout
	}
	return n, err
}

// Close implements device.Transport.
func (t *transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.dev.Close()
	})
	return t.closeErr
}
