// Package tracker keeps per-finger touch state for one player and answers
// the game loop's polls.
//
// A single writer (the device read loop) reports presses and releases; the
// poller reads under the same mutex. Presses are also OR-ed into a frame
// accumulator so a tap that starts and ends between two polls is still seen
// by exactly one poll.
package tracker

import (
	"sync"
	"time"
)

// MaxContacts is the number of finger ids a device protocol can address.
const MaxContacts = 256

// DefaultTimeout is how long an active contact may go without an update
// before a poll treats it as released.
const DefaultTimeout = 20 * time.Millisecond

// Contact is the state of one finger id.
type Contact struct {
	ZoneMask   uint64
	LastUpdate time.Time
	Active     bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTimeout sets the stale-contact timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.timeout = d }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithTimeoutHook registers a callback invoked, under the tracker lock, for
// every contact a poll expires.
func WithTimeoutHook(fn func(id int)) Option {
	return func(t *Tracker) { t.onTimeout = fn }
}

// Tracker holds the contact table and frame accumulator for one player.
type Tracker struct {
	mu          sync.Mutex
	contacts    [MaxContacts]Contact
	accumulator uint64
	timeout     time.Duration
	now         func() time.Time
	onTimeout   func(id int)
}

// New returns a tracker with all contacts idle.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Press records finger id at a position activating mask. The contact's mask
// is replaced, not merged. Ids outside [0, MaxContacts) are ignored.
func (t *Tracker) Press(id int, mask uint64) {
	if id < 0 || id >= MaxContacts {
		return
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	c := &t.contacts[id]
	c.Active = true
	c.ZoneMask = mask
	c.LastUpdate = now
	t.accumulator |= mask
}

// Release marks finger id idle. Its last mask is kept but no longer reported.
func (t *Tracker) Release(id int) {
	if id < 0 || id >= MaxContacts {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.contacts[id].Active = false
}

// Poll returns the union of every live contact's mask and every zone pressed
// since the previous poll, then clears the accumulator. Active contacts not
// updated within the timeout are released first.
func (t *Tracker) Poll() uint64 {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	var live uint64
	for id := range t.contacts {
		c := &t.contacts[id]
		if !c.Active {
			continue
		}
		if now.Sub(c.LastUpdate) > t.timeout {
			c.Active = false
			if t.onTimeout != nil {
				t.onTimeout(id)
			}
			continue
		}
		live |= c.ZoneMask
	}

	result := live | t.accumulator
	t.accumulator = 0
	return result
}

// Reset releases every contact and clears the accumulator.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range t.contacts {
		t.contacts[id] = Contact{}
	}
	t.accumulator = 0
}

// SetTimeout changes the stale-contact timeout.
func (t *Tracker) SetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = d
}

// Timeout returns the current stale-contact timeout.
func (t *Tracker) Timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

// Contact returns a copy of the stored state for id.
func (t *Tracker) Contact(id int) (Contact, bool) {
	if id < 0 || id >= MaxContacts {
		return Contact{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contacts[id], true
}

// Active returns the number of contacts currently flagged active. Stale
// contacts are only cleared by Poll, so this may include them.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id := range t.contacts {
		if t.contacts[id].Active {
			n++
		}
	}
	return n
}
