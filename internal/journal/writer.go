package journal

import (
	"sync"
	"sync/atomic"
	"time"

	"xtouchd/internal/device"
	"xtouchd/internal/logging"
)

// Writer batches recorded fingers and inserts them off the read loop. It
// never blocks the caller: when its queue is full the event is dropped and
// counted.
type Writer struct {
	journal   *Journal
	sessionID int64
	batchSize int
	interval  time.Duration
	logger    *logging.Logger

	events  chan Event
	dropped atomic.Uint64
	written atomic.Uint64

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

var _ device.Recorder = (*Writer)(nil)

// NewWriter starts a writer for sessionID. batchSize and interval bound how
// long an event waits before it is flushed.
func NewWriter(j *Journal, sessionID int64, batchSize int, interval time.Duration, logger *logging.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = 256
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Discard()
	}

	w := &Writer{
		journal:   j,
		sessionID: sessionID,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger.WithComponent("journal"),
		events:    make(chan Event, batchSize*4),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go w.run()
	return w
}

// Record implements device.Recorder.
func (w *Writer) Record(player int, f device.Finger, mask uint64, at time.Time) {
	select {
	case <-w.stop:
		w.dropped.Add(1)
		return
	default:
	}

	select {
	case w.events <- Event{SessionID: w.sessionID, Time: at, Player: player, Finger: f, Mask: mask}:
	default:
		w.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full
// or the writer was closed.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Written returns how many events reached the database.
func (w *Writer) Written() uint64 {
	return w.written.Load()
}

func (w *Writer) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	batch := make([]Event, 0, w.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.journal.Insert(batch); err != nil {
			w.logger.Error("journal insert failed", "events", len(batch), "error", err)
			w.dropped.Add(uint64(len(batch)))
		} else {
			w.written.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-w.events:
			batch = append(batch, e)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.stop:
			for {
				select {
				case e := <-w.events:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close flushes queued events and stops the writer. The journal itself is
// left open.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		close(w.stop)
	})
	<-w.done
	return nil
}
