package playerregistry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_OnlineTracking(t *testing.T) {
	r := NewMemory(nil, time.Minute)

	assert.False(t, r.IsOnline("p1"))
	r.MarkOnline("p1")
	assert.True(t, r.IsOnline("p1"))
	r.MarkOffline("p1")
	assert.False(t, r.IsOnline("p1"))
}

func TestMemory_LastActivityAndLastLogin(t *testing.T) {
	r := NewMemory(nil, time.Minute)

	before := time.Now()
	r.UpdateLastActivity("p1")
	s, ok := r.states.Load("p1")
	require.True(t, ok)
	assert.False(t, s.lastActivity.Before(before))

	loginAt := time.Now().Add(-time.Hour)
	r.UpdateLastLogin("p1", loginAt)
	assert.True(t, s.lastLogin.Equal(loginAt))
}

func TestMemory_PlayerContext_SetGetRemove(t *testing.T) {
	r := NewMemory(nil, time.Minute)

	_, ok := r.PlayerContext("p1")
	assert.False(t, ok)

	r.SetPlayerContext("p1", 42)
	v, ok := r.PlayerContext("p1")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	r.RemovePlayerContext("p1")
	_, ok = r.PlayerContext("p1")
	assert.False(t, ok)
}

func TestMemory_TrackAndStopPlayerTasks(t *testing.T) {
	r := NewMemory(nil, time.Minute)

	var cancelled int32
	cancel := func() { atomic.AddInt32(&cancelled, 1) }

	r.TrackPlayerTask("p1", "t1", cancel)
	r.TrackPlayerTask("p1", "t2", cancel)

	// Stopping a player with no tracked tasks is a safe no-op.
	r.StopPlayerTasks("unknown")

	r.StopPlayerTasks("p1")
	assert.Equal(t, int32(2), atomic.LoadInt32(&cancelled))

	// Tasks are forgotten after stopping; a second stop cancels nothing more.
	r.StopPlayerTasks("p1")
	assert.Equal(t, int32(2), atomic.LoadInt32(&cancelled))
}

func TestMemory_AccountLastLogin_NoLookupConfigured(t *testing.T) {
	r := NewMemory(nil, time.Minute)
	got, err := r.AccountLastLogin(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestMemory_AccountLastLogin_CachesAndDeduplicatesConcurrentMisses(t *testing.T) {
	want := time.Now().Add(-24 * time.Hour)
	var calls int32

	lookup := func(ctx context.Context, playerID string) (time.Time, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return want, nil
	}

	r := NewMemory(lookup, time.Minute)

	const n = 20
	var wg sync.WaitGroup
	results := make([]time.Time, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := r.AccountLastLogin(context.Background(), "p1")
			require.NoError(t, err)
			results[i] = got
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.True(t, got.Equal(want))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "singleflight should collapse concurrent misses into one lookup")

	// A subsequent call hits the cache, not the lookup function again.
	_, err := r.AccountLastLogin(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMemory_AccountLastLogin_PropagatesLookupError(t *testing.T) {
	lookupErr := assert.AnError
	lookup := func(ctx context.Context, playerID string) (time.Time, error) {
		return time.Time{}, lookupErr
	}
	r := NewMemory(lookup, time.Minute)

	_, err := r.AccountLastLogin(context.Background(), "p1")
	assert.ErrorIs(t, err, lookupErr)
}
