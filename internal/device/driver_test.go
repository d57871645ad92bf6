package device

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xtouchd/internal/logging"
	"xtouchd/internal/metrics"
	"xtouchd/internal/sensor"
	"xtouchd/internal/tracker"
)

// e1Raw is a raw PDX coordinate that lands inside zone E1.
const e1RawX, e1RawY = 14490, 16384

type driverFixture struct {
	driver   *Driver
	opener   *fakeOpener
	tracker  *tracker.Tracker
	mapper   *sensor.Mapper
	metrics  *metrics.TouchMetrics
	recorder *fakeRecorder
}

func newDriverFixture(t *testing.T, opener *fakeOpener) *driverFixture {
	t.Helper()

	d := PDX{}.Descriptor()
	mapper, err := sensor.NewMapper(d.Bounds, d.Flip, nil)
	require.NoError(t, err)

	f := &driverFixture{
		opener:   opener,
		tracker:  tracker.New(tracker.WithTimeout(time.Hour)),
		mapper:   mapper,
		metrics:  metrics.NewTouchMetrics(metrics.NewRegistry("test"), "1P"),
		recorder: &fakeRecorder{},
	}
	f.driver, err = NewDriver(DriverConfig{
		Player:      0,
		Protocol:    PDX{},
		Opener:      opener,
		Match:       MatchFor(PDX{}, "", ""),
		Mapper:      mapper,
		Tracker:     f.tracker,
		Radius:      12,
		ReadTimeout: 5 * time.Millisecond,
		Metrics:     f.metrics,
		Recorder:    f.recorder,
	})
	require.NoError(t, err)
	t.Cleanup(func() { f.driver.Close() })
	return f
}

func packet(t *testing.T, fingers ...Finger) []byte {
	t.Helper()
	p, err := EncodePDX(fingers...)
	require.NoError(t, err)
	return p
}

func TestNewDriverRequiresDependencies(t *testing.T) {
	_, err := NewDriver(DriverConfig{Protocol: PDX{}})
	assert.Error(t, err)
}

func TestOnPacketFeedsTracker(t *testing.T) {
	f := newDriverFixture(t, pdxOpener())

	want := f.mapper.Map(e1RawX, e1RawY, 12)
	e1, ok := f.mapper.Table().Lookup("E1")
	require.True(t, ok)
	require.NotZero(t, want&(1<<uint(e1)), "fixture point should hit E1")

	f.driver.OnPacket(packet(t, Finger{ID: 3, X: e1RawX, Y: e1RawY, Pressed: true}))
	assert.Equal(t, 1, f.tracker.Active())
	assert.Equal(t, want, f.tracker.Poll())

	f.driver.OnPacket(packet(t, Finger{ID: 3, X: e1RawX, Y: e1RawY, Pressed: false}))
	assert.Zero(t, f.tracker.Active())
	assert.Zero(t, f.tracker.Poll())

	assert.Equal(t, uint64(2), f.metrics.PacketsTotal.Value())
	assert.Equal(t, uint64(1), f.metrics.PressesTotal.Value())
	assert.Equal(t, uint64(1), f.metrics.ReleasesTotal.Value())

	rec := f.recorder.all()
	require.Len(t, rec, 2)
	assert.Equal(t, want, rec[0].mask)
	assert.Zero(t, rec[1].mask)
}

func TestOnPacketOutOfRangeIsEmpty(t *testing.T) {
	f := newDriverFixture(t, pdxOpener())

	// x above MinX maps to a negative canvas coordinate.
	f.driver.OnPacket(packet(t, Finger{ID: 1, X: 20000, Y: 100, Pressed: true}))
	assert.Equal(t, 1, f.tracker.Active(), "the contact is tracked")
	assert.Zero(t, f.tracker.Poll(), "but activates nothing")
}

func TestOnPacketDropsMalformed(t *testing.T) {
	f := newDriverFixture(t, pdxOpener())

	bad := packet(t, Finger{ID: 1, X: e1RawX, Y: e1RawY, Pressed: true})
	bad[0] = 7
	f.driver.OnPacket(bad)

	assert.Zero(t, f.tracker.Active())
	assert.Equal(t, uint64(1), f.metrics.MalformedPacketsTotal.Value())
}

func TestSetRadius(t *testing.T) {
	f := newDriverFixture(t, pdxOpener())
	assert.Equal(t, 12.0, f.driver.Radius())

	f.driver.SetRadius(0)
	f.driver.OnPacket(packet(t, Finger{ID: 1, X: e1RawX, Y: e1RawY, Pressed: true}))
	assert.Equal(t, f.mapper.Map(e1RawX, e1RawY, 0), f.tracker.Poll())
}

func TestReadLoop(t *testing.T) {
	f := newDriverFixture(t, pdxOpener())
	require.NoError(t, f.driver.Start())
	assert.True(t, f.driver.Connected())
	assert.Equal(t, int64(1), f.metrics.DeviceConnected.Value())

	tr := f.opener.last()
	tr.packets <- packet(t, Finger{ID: 7, X: e1RawX, Y: e1RawY, Pressed: true})
	require.Eventually(t, func() bool { return f.tracker.Active() == 1 }, time.Second, time.Millisecond)

	tr.packets <- packet(t, Finger{ID: 7, X: e1RawX, Y: e1RawY, Pressed: false})
	require.Eventually(t, func() bool { return f.tracker.Active() == 0 }, time.Second, time.Millisecond)

	require.NoError(t, f.driver.Close())
	assert.Equal(t, int32(1), tr.closes.Load())
	assert.False(t, f.driver.Connected())
	assert.Zero(t, f.metrics.DeviceConnected.Value())
}

func TestStartDeviceMissing(t *testing.T) {
	opener := pdxOpener()
	opener.setPresent(false)
	f := newDriverFixture(t, opener)

	err := f.driver.Start()
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.False(t, f.driver.Connected())

	require.NoError(t, f.driver.Close())
	select {
	case <-f.driver.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}
}

func TestStartTwiceAndAfterClose(t *testing.T) {
	f := newDriverFixture(t, pdxOpener())
	require.NoError(t, f.driver.Start())
	assert.Error(t, f.driver.Start())

	require.NoError(t, f.driver.Close())
	assert.ErrorIs(t, f.driver.Start(), ErrClosed)
}

func TestReadErrorReleasesDevice(t *testing.T) {
	f := newDriverFixture(t, pdxOpener())
	require.NoError(t, f.driver.Start())

	tr := f.opener.last()
	tr.packets <- packet(t, Finger{ID: 7, X: e1RawX, Y: e1RawY, Pressed: true})
	require.Eventually(t, func() bool { return f.tracker.Active() == 1 }, time.Second, time.Millisecond)

	tr.fail <- errors.New("LIBUSB_ERROR_NO_DEVICE")

	select {
	case <-f.driver.Done():
	case <-time.After(time.Second):
		t.Fatal("read loop did not exit")
	}
	assert.Equal(t, int32(1), tr.closes.Load())
	assert.Zero(t, f.tracker.Active(), "contacts are cleared on disconnect")
	assert.Equal(t, uint64(1), f.metrics.ReadErrorsTotal.Value())

	require.NoError(t, f.driver.Close())
	assert.Equal(t, int32(1), tr.closes.Load(), "Close after loop exit does not release again")
}

func TestCloseRacesLoopExit(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newDriverFixture(t, pdxOpener())
		require.NoError(t, f.driver.Start())
		tr := f.opener.last()

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			tr.fail <- errors.New("pipe error")
		}()
		for j := 0; j < 2; j++ {
			go func() {
				defer wg.Done()
				f.driver.Close()
			}()
		}
		wg.Wait()

		<-f.driver.Done()
		require.Equal(t, int32(1), tr.closes.Load(), "iteration %d", i)
	}
}

type panicRecorder struct{}

func (panicRecorder) Record(int, Finger, uint64, time.Time) { panic("recorder failed") }

func TestReadLoopPanicReleasesDevice(t *testing.T) {
	opener := pdxOpener()
	d := PDX{}.Descriptor()
	mapper, err := sensor.NewMapper(d.Bounds, d.Flip, nil)
	require.NoError(t, err)
	tr := tracker.New(tracker.WithTimeout(time.Hour))

	crash := logging.NewCrashHandler(t.TempDir(), nil)
	driver, err := NewDriver(DriverConfig{
		Protocol:    PDX{},
		Opener:      opener,
		Match:       MatchFor(PDX{}, "", ""),
		Mapper:      mapper,
		Tracker:     tr,
		ReadTimeout: 5 * time.Millisecond,
		Recorder:    panicRecorder{},
		Crash:       crash,
	})
	require.NoError(t, err)
	require.NoError(t, driver.Start())

	opener.last().packets <- packet(t, Finger{ID: 1, X: e1RawX, Y: e1RawY, Pressed: true})

	select {
	case <-driver.Done():
	case <-time.After(time.Second):
		t.Fatal("read loop did not exit after panic")
	}
	assert.False(t, driver.Connected())
	assert.Equal(t, int32(1), opener.last().closes.Load())
	assert.Zero(t, tr.Active(), "contacts cleared on release")

	reports, err := crash.Reports()
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "read loop", reports[0].Component)
	assert.NoError(t, driver.Close())
}
