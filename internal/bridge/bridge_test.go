package bridge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnregisteredReadsZero(t *testing.T) {
	b := New()
	for player := -1; player <= MaxPlayers; player++ {
		assert.Zero(t, b.TouchState(player))
		assert.False(t, b.Registered(player))
	}
}

func TestRegister(t *testing.T) {
	b := New()
	require.NoError(t, b.Register(0, ProviderFunc(func() uint64 { return 0b11 })))
	require.NoError(t, b.Register(1, ProviderFunc(func() uint64 { return 1 << 33 })))

	assert.Equal(t, uint64(0b11), b.TouchState(0))
	assert.Equal(t, uint64(1<<33), b.TouchState(1))
	assert.True(t, b.Registered(1))

	require.NoError(t, b.Register(0, ProviderFunc(func() uint64 { return 4 })))
	assert.Equal(t, uint64(4), b.TouchState(0), "re-registering replaces")
}

type nilProvider struct{ mask uint64 }

func (p *nilProvider) TouchState() uint64 { return p.mask }

func TestPanickingProviderReadsZero(t *testing.T) {
	b := New()
	var p *nilProvider
	require.NoError(t, b.Register(0, p))
	require.NoError(t, b.Register(1, ProviderFunc(func() uint64 { panic("boom") })))

	assert.True(t, b.Registered(0))
	assert.NotPanics(t, func() {
		assert.Zero(t, b.TouchState(0))
		assert.Zero(t, b.TouchState(1))
	})
}

func TestRegisterInvalidPlayer(t *testing.T) {
	b := New()
	p := ProviderFunc(func() uint64 { return 1 })
	assert.ErrorIs(t, b.Register(-1, p), ErrInvalidPlayer)
	assert.ErrorIs(t, b.Register(MaxPlayers, p), ErrInvalidPlayer)
}

func TestUnregister(t *testing.T) {
	b := New()
	require.NoError(t, b.Register(1, ProviderFunc(func() uint64 { return 9 })))
	b.Unregister(1)
	b.Unregister(5)
	assert.Zero(t, b.TouchState(1))

	require.NoError(t, b.Register(0, nil))
	assert.False(t, b.Registered(0))
}

func TestConcurrentRegisterAndPoll(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			b.Register(0, ProviderFunc(func() uint64 { return 7 }))
			b.Unregister(0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if got := b.TouchState(0); got != 0 && got != 7 {
				t.Errorf("unexpected state %d", got)
				return
			}
		}
	}()
	wg.Wait()
}
