// Package playerregistry tracks per-player runtime state that outlives any
// single connection: last activity/login timestamps, online/offline
// membership, an opaque per-player context slot, and the cancel functions
// for background tasks spawned on a player's behalf. It also fronts a
// cache-stampede-safe lookup of a player's account-level last-login record.
package playerregistry

import (
	"context"
	"time"

	"github.com/glennhenry/Stagecore/cacher"
	"github.com/glennhenry/Stagecore/safemap"
	"github.com/glennhenry/Stagecore/safeset"
)

// Registry is the external collaborator the connection server and handlers
// use to track player lifecycle state across packets and reconnects.
type Registry interface {
	// UpdateLastActivity stamps playerID's most recent activity time to now.
	UpdateLastActivity(playerID string)

	// MarkOnline adds playerID to the online set.
	MarkOnline(playerID string)

	// MarkOffline removes playerID from the online set.
	MarkOffline(playerID string)

	// IsOnline reports whether playerID is currently marked online.
	IsOnline(playerID string) bool

	// UpdateLastLogin records at as playerID's last-login timestamp.
	UpdateLastLogin(playerID string, at time.Time)

	// SetPlayerContext attaches an arbitrary opaque context to playerID,
	// replacing any existing one.
	SetPlayerContext(playerID string, ctx any)

	// PlayerContext returns playerID's attached context, if any.
	PlayerContext(playerID string) (any, bool)

	// RemovePlayerContext clears playerID's attached context.
	RemovePlayerContext(playerID string)

	// TrackPlayerTask registers cancel as belonging to playerID under taskID,
	// so it can later be cancelled en masse by StopPlayerTasks.
	TrackPlayerTask(playerID, taskID string, cancel context.CancelFunc)

	// StopPlayerTasks cancels and forgets every task tracked for playerID.
	StopPlayerTasks(playerID string)

	// AccountLastLogin returns playerID's account-level last-login record,
	// fetching and caching it via the registry's configured lookup on a
	// cache miss.
	AccountLastLogin(ctx context.Context, playerID string) (time.Time, error)
}

// AccountLookupFunc fetches a player's account-level last-login record from
// the system of record (e.g. an accounts database or service), on cache
// miss only.
type AccountLookupFunc func(ctx context.Context, playerID string) (time.Time, error)

// playerState groups the small per-player fields guarded together under one
// SafeMap entry.
type playerState struct {
	lastActivity time.Time
	lastLogin    time.Time
	ctx          any
	hasCtx       bool
	tasks        map[string]context.CancelFunc
}

// Memory is the default, single-process Registry implementation.
type Memory struct {
	online *safeset.SafeSet[string]
	states *safemap.SafeMap[string, *playerState]

	accountCache cacher.Cacher[time.Time]
	accountTTL   time.Duration
	lookup       AccountLookupFunc
}

// NewMemory returns a Memory registry. lookup is consulted only on a cache
// miss for AccountLastLogin; accountTTL controls how long a fetched record
// is trusted before the next call re-fetches it. If lookup is nil,
// AccountLastLogin always returns the zero time with no error (no account
// backing configured).
func NewMemory(lookup AccountLookupFunc, accountTTL time.Duration) *Memory {
	return &Memory{
		online:       safeset.NewSafeSet[string](),
		states:       &safemap.SafeMap[string, *playerState]{},
		accountCache: cacher.NewMemoryCacher[time.Time](accountTTL, accountTTL*2),
		accountTTL:   accountTTL,
		lookup:       lookup,
	}
}

func (m *Memory) state(playerID string) *playerState {
	if s, ok := m.states.Load(playerID); ok {
		return s
	}
	s := &playerState{tasks: make(map[string]context.CancelFunc)}
	m.states.Store(playerID, s)
	return s
}

// UpdateLastActivity implements Registry.
func (m *Memory) UpdateLastActivity(playerID string) {
	m.state(playerID).lastActivity = time.Now()
}

// MarkOnline implements Registry.
func (m *Memory) MarkOnline(playerID string) {
	m.online.Add(playerID)
}

// MarkOffline implements Registry.
func (m *Memory) MarkOffline(playerID string) {
	m.online.Remove(playerID)
}

// IsOnline implements Registry.
func (m *Memory) IsOnline(playerID string) bool {
	return m.online.Contains(playerID)
}

// UpdateLastLogin implements Registry.
func (m *Memory) UpdateLastLogin(playerID string, at time.Time) {
	m.state(playerID).lastLogin = at
}

// SetPlayerContext implements Registry.
func (m *Memory) SetPlayerContext(playerID string, ctx any) {
	s := m.state(playerID)
	s.ctx = ctx
	s.hasCtx = true
}

// PlayerContext implements Registry.
func (m *Memory) PlayerContext(playerID string) (any, bool) {
	s, ok := m.states.Load(playerID)
	if !ok || !s.hasCtx {
		return nil, false
	}
	return s.ctx, true
}

// RemovePlayerContext implements Registry.
func (m *Memory) RemovePlayerContext(playerID string) {
	s, ok := m.states.Load(playerID)
	if !ok {
		return
	}
	s.ctx = nil
	s.hasCtx = false
}

// TrackPlayerTask implements Registry.
func (m *Memory) TrackPlayerTask(playerID, taskID string, cancel context.CancelFunc) {
	s := m.state(playerID)
	s.tasks[taskID] = cancel
}

// StopPlayerTasks implements Registry.
func (m *Memory) StopPlayerTasks(playerID string) {
	s, ok := m.states.Load(playerID)
	if !ok {
		return
	}
	for id, cancel := range s.tasks {
		cancel()
		delete(s.tasks, id)
	}
}

// AccountLastLogin implements Registry. It is backed by a cache-stampede-safe
// Cacher.GetOrFetch: concurrent calls for the same playerID during a cache
// miss collapse into a single call to lookup.
func (m *Memory) AccountLastLogin(ctx context.Context, playerID string) (time.Time, error) {
	if m.lookup == nil {
		return time.Time{}, nil
	}
	return m.accountCache.GetOrFetch(ctx, playerID, m.accountTTL, func(ctx context.Context) (time.Time, error) {
		return m.lookup(ctx, playerID)
	})
}
