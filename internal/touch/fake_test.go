package touch

import (
	"context"
	"sync"
	"time"

	"xtouchd/internal/device"
)

type fakeTransport struct {
	packets chan []byte
	closed  chan struct{}
	once    sync.Once
}

func (t *fakeTransport) ReadPacket(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p := <-t.packets:
		return copy(buf, p), nil
	case <-t.closed:
		return 0, device.ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
		return 0, device.ErrTimeout
	}
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// fakeOpener serves the devices in infos while present is true. Each opened
// transport is keyed by the serial of the device it was opened for.
type fakeOpener struct {
	mu         sync.Mutex
	infos      []device.Info
	present    bool
	fail       map[string]error
	transports map[string]*fakeTransport
}

func newFakeOpener(serials ...string) *fakeOpener {
	o := &fakeOpener{present: true, fail: map[string]error{}, transports: map[string]*fakeTransport{}}
	for i, s := range serials {
		o.infos = append(o.infos, device.Info{
			VendorID:  device.PDXVendorID,
			ProductID: device.PDXProductID,
			Serial:    s,
			Location:  "1-" + string(rune('1'+i)),
		})
	}
	return o
}

func (o *fakeOpener) Open(m device.Match) (device.Transport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.present {
		return nil, device.ErrDeviceNotFound
	}
	i, ok := device.Select(o.infos, m)
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	if err := o.fail[o.infos[i].Serial]; err != nil {
		return nil, err
	}
	t := &fakeTransport{packets: make(chan []byte, 16), closed: make(chan struct{})}
	o.transports[o.infos[i].Serial] = t
	return t, nil
}

func (o *fakeOpener) List(vendorID, productID uint16) ([]device.Info, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]device.Info(nil), o.infos...), nil
}

func (o *fakeOpener) setPresent(p bool) {
	o.mu.Lock()
	o.present = p
	o.mu.Unlock()
}

// failOpen makes opening the device with the given serial return err.
func (o *fakeOpener) failOpen(serial string, err error) {
	o.mu.Lock()
	o.fail[serial] = err
	o.mu.Unlock()
}

func (o *fakeOpener) transport(serial string) *fakeTransport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transports[serial]
}
