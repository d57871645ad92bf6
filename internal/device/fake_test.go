package device

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// fakeTransport delivers queued packets and can be told to fail.
type fakeTransport struct {
	packets chan []byte
	fail    chan error
	closes  atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		packets: make(chan []byte, 16),
		fail:    make(chan error, 1),
	}
}

func (t *fakeTransport) ReadPacket(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p := <-t.packets:
		return copy(buf, p), nil
	case err := <-t.fail:
		return 0, err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
		return 0, ErrTimeout
	}
}

func (t *fakeTransport) Close() error {
	t.closes.Add(1)
	return nil
}

// fakeOpener hands out transports for the devices it knows about.
type fakeOpener struct {
	mu         sync.Mutex
	infos      []Info
	transports []*fakeTransport
	opens      int
	present    bool
}

func (o *fakeOpener) Open(m Match) (Transport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.opens++
	if !o.present {
		return nil, ErrDeviceNotFound
	}
	if _, ok := Select(o.infos, m); !ok {
		return nil, ErrDeviceNotFound
	}
	t := newFakeTransport()
	o.transports = append(o.transports, t)
	return t, nil
}

func (o *fakeOpener) List(vendorID, productID uint16) ([]Info, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Info(nil), o.infos...), nil
}

func (o *fakeOpener) setPresent(p bool) {
	o.mu.Lock()
	o.present = p
	o.mu.Unlock()
}

func (o *fakeOpener) last() *fakeTransport {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.transports) == 0 {
		return nil
	}
	return o.transports[len(o.transports)-1]
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.transports)
}

func pdxOpener() *fakeOpener {
	return &fakeOpener{
		present: true,
		infos:   []Info{{VendorID: PDXVendorID, ProductID: PDXProductID, Location: "1-2.2"}},
	}
}

type recorded struct {
	player int
	finger Finger
	mask   uint64
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recorded
}

func (r *fakeRecorder) Record(player int, f Finger, mask uint64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recorded{player, f, mask})
}

func (r *fakeRecorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.entries...)
}
