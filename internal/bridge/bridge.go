// Package bridge answers the game loop's per-player touch polls.
//
// Providers register per player; TouchState never blocks on registration
// and never fails: an unknown or unregistered player reads as no touch.
package bridge

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// MaxPlayers is the number of player slots.
const MaxPlayers = 2

// ErrInvalidPlayer is returned when registering outside [0, MaxPlayers).
var ErrInvalidPlayer = errors.New("bridge: invalid player")

// Provider reports the current touch mask for its player.
type Provider interface {
	TouchState() uint64
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() uint64

// TouchState implements Provider.
func (f ProviderFunc) TouchState() uint64 { return f() }

type slot struct {
	p Provider
}

// Bridge maps player indexes to providers.
type Bridge struct {
	slots [MaxPlayers]atomic.Pointer[slot]
}

// New returns a bridge with no providers.
func New() *Bridge {
	return &Bridge{}
}

// Register installs p for a 0-based player, replacing any previous provider.
func (b *Bridge) Register(player int, p Provider) error {
	if player < 0 || player >= MaxPlayers {
		return fmt.Errorf("%w: %d", ErrInvalidPlayer, player)
	}
	if p == nil {
		b.slots[player].Store(nil)
		return nil
	}
	b.slots[player].Store(&slot{p: p})
	return nil
}

// Unregister removes the provider for player.
func (b *Bridge) Unregister(player int) {
	if player < 0 || player >= MaxPlayers {
		return
	}
	b.slots[player].Store(nil)
}

// Registered reports whether player has a provider.
func (b *Bridge) Registered(player int) bool {
	if player < 0 || player >= MaxPlayers {
		return false
	}
	return b.slots[player].Load() != nil
}

// TouchState returns the player's touch mask, or 0 when the player is out
// of range, has no provider, or its provider panics.
func (b *Bridge) TouchState(player int) (mask uint64) {
	if player < 0 || player >= MaxPlayers {
		return 0
	}
	s := b.slots[player].Load()
	if s == nil {
		return 0
	}
	defer func() {
		if recover() != nil {
			mask = 0
		}
	}()
	return s.p.TouchState()
}
