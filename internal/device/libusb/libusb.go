// Package libusb opens touch panels through libusb, claiming the panel's
// interface so no other driver sees its reports.
package libusb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"

	"xtouchd/internal/device"
)

// Opener implements device.Opener on a libusb context.
type Opener struct {
	mu  sync.Mutex
	ctx *gousb.Context
}

var _ device.Opener = (*Opener)(nil)

// NewOpener creates a libusb context. Close it when done.
func NewOpener() *Opener {
	return &Opener{ctx: gousb.NewContext()}
}

// Close releases the libusb context. Transports opened from it must be
// closed first.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ctx.Close()
}

// Location renders a bus number and port chain the way Linux sysfs names
// USB devices, e.g. "1-2.3".
func Location(bus int, ports []int) string {
	if len(ports) == 0 {
		return fmt.Sprintf("%d-0", bus)
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return fmt.Sprintf("%d-%s", bus, strings.Join(parts, "."))
}

// openAll opens every device with the given ids and describes them. The
// caller closes the devices.
func (o *Opener) openAll(vendorID, productID uint16) ([]*gousb.Device, []device.Info, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	devs, err := o.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vendorID) && desc.Product == gousb.ID(productID)
	})
	if err != nil && len(devs) == 0 {
		return nil, nil, fmt.Errorf("enumerate usb devices: %w", err)
	}

	infos := make([]device.Info, len(devs))
	for i, d := range devs {
		serial, _ := d.SerialNumber()
		product, _ := d.Product()
		infos[i] = device.Info{
			VendorID:  vendorID,
			ProductID: productID,
			Serial:    serial,
			Location:  Location(d.Desc.Bus, d.Desc.Path),
			Path:      fmt.Sprintf("bus%03d-addr%03d", d.Desc.Bus, d.Desc.Address),
			Product:   product,
		}
	}
	return devs, infos, nil
}

// List implements device.Opener.
func (o *Opener) List(vendorID, productID uint16) ([]device.Info, error) {
	devs, infos, err := o.openAll(vendorID, productID)
	for _, d := range devs {
		d.Close()
	}
	return infos, err
}

// Open implements device.Opener. It selects the device, detaches any kernel
// driver, sets the configuration and claims the interface.
func (o *Opener) Open(m device.Match) (device.Transport, error) {
	devs, infos, err := o.openAll(m.VendorID, m.ProductID)
	if err != nil {
		return nil, err
	}

	idx, ok := device.Select(infos, m)
	for i, d := range devs {
		if !ok || i != idx {
			d.Close()
		}
	}
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	dev := devs[idx]

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		return nil, fmt.Errorf("set auto detach: %w", err)
	}
	cfg, err := dev.Config(m.Configuration)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("set configuration %d: %w", m.Configuration, err)
	}
	intf, err := cfg.Interface(m.Interface, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("claim interface %d: %w", m.Interface, err)
	}
	ep, err := intf.InEndpoint(m.Endpoint)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("open endpoint %d: %w", m.Endpoint, err)
	}

	return &transport{dev: dev, cfg: cfg, intf: intf, ep: ep}, nil
}

type transport struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	ep   *gousb.InEndpoint

	closeOnce sync.Once
	closeErr  error
}

// ReadPacket implements device.Transport. The per-read timeout is a context
// deadline; libusb cancels the transfer when it passes.
func (t *transport) ReadPacket(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n, err := t.ep.ReadContext(rctx, buf)
	if err == nil || n > 0 {
		return n, nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if rctx.Err() != nil || errors.Is(err, gousb.TransferTimedOut) || errors.Is(err, gousb.TransferCancelled) {
		return 0, device.ErrTimeout
	}
	return 0, err
}

// Close implements device.Transport: release the interface, then the
// configuration, then the handle.
func (t *transport) Close() error {
	t.closeOnce.Do(func() {
		t.intf.Close()
		t.closeErr = errors.Join(t.cfg.Close(), t.dev.Close())
	})
	return t.closeErr
}
