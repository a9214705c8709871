// Package session implements the user session manager: token-keyed sessions
// with a sliding single-session-duration window capped by an absolute
// lifetime, swept periodically by a background task.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/glennhenry/Stagecore/clock"
	"github.com/glennhenry/Stagecore/logger"
	"github.com/glennhenry/Stagecore/safemap"
	"github.com/glennhenry/Stagecore/scope"
	"github.com/google/uuid"
)

// AdminUserID is the well-known user id that receives the fixed AdminToken
// instead of a randomly generated one.
const AdminUserID = "admin"

// AdminToken is the fixed token issued for AdminUserID. It exists so an
// operator console can authenticate without depending on session storage
// surviving a restart.
const AdminToken = "admin-fixed-token"

// Config holds configuration for the session manager. NewManager fills in a
// nil Clock, a nil Logger and a non-positive CleanupInterval with defaults;
// SingleSessionDuration and Lifetime are used as given. The usual pattern is
// to start from DefaultConfig, override what you need, and pass it to
// NewManager.
type Config struct {
	// Clock is the time source used for IssuedAt/ExpiresAt and sweep
	// decisions. Override with clock.NewFake(...) in tests.
	Clock clock.Clock
	// CleanupInterval is the sweep cadence.
	CleanupInterval time.Duration
	// SingleSessionDuration is the default validity window granted by
	// Create and extended by Refresh.
	SingleSessionDuration time.Duration
	// Lifetime is the absolute cap on a session's age regardless of how
	// many times it has been refreshed.
	Lifetime time.Duration
	// Logger receives sweep diagnostics. Defaults to logger.Noop{}.
	Logger logger.Logger
}

// DefaultConfig returns a Config with production defaults: a real clock,
// a 5 minute sweep cadence, a 1 hour single-session duration, and a 6 hour
// absolute lifetime.
func DefaultConfig() Config {
	return Config{
		Clock:                 clock.Real{},
		CleanupInterval:       5 * time.Minute,
		SingleSessionDuration: time.Hour,
		Lifetime:              6 * time.Hour,
		Logger:                logger.Noop{},
	}
}

// Session is an issued, possibly-refreshed login token. ExpiresAt is stored
// separately as an atomic int64 to allow concurrent Verify/Refresh calls
// without tearing.
type Session struct {
	UserID                string
	Token                 string
	IssuedAt              int64
	expiresAt             atomic.Int64
	SingleSessionDuration time.Duration
	Lifetime              time.Duration
}

// ExpiresAt returns the session's current expiry, in milliseconds since
// epoch.
func (s *Session) ExpiresAt() int64 { return s.expiresAt.Load() }

// Manager issues, verifies, and refreshes sessions, and sweeps expired ones
// in the background.
type Manager struct {
	cfg      Config
	sessions safemap.SafeMap[string, *Session]
	scope    *scope.Scope
}

// NewManager constructs a Manager and starts its background sweeper under
// the given parent scope. Callers must call Shutdown to stop the sweeper.
func NewManager(parent *scope.Scope, cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Noop{}
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	m := &Manager{cfg: cfg, scope: parent.Child()}
	m.scope.Go(m.sweepLoop)
	return m
}

// Create issues a new session for userID. AdminUserID always receives
// AdminToken; every other user receives a freshly generated UUID token.
func (m *Manager) Create(userID string) *Session {
	now := m.cfg.Clock.Now()

	token := uuid.NewString()
	if userID == AdminUserID {
		token = AdminToken
	}

	s := &Session{
		UserID:                userID,
		Token:                 token,
		IssuedAt:              now,
		SingleSessionDuration: m.cfg.SingleSessionDuration,
		Lifetime:              m.cfg.Lifetime,
	}
	s.expiresAt.Store(now + m.cfg.SingleSessionDuration.Milliseconds())

	m.sessions.Store(token, s)
	return s
}

// Verify returns the session for token if it exists and has not expired.
func (m *Manager) Verify(token string) (*Session, bool) {
	s, ok := m.sessions.Load(token)
	if !ok {
		return nil, false
	}
	if m.cfg.Clock.Now() >= s.expiresAt.Load() {
		return nil, false
	}
	return s, true
}

// Refresh extends token's expiry by SingleSessionDuration, capped so the
// session never outlives IssuedAt+Lifetime. Unlike Verify, it does not
// require the short expiry window to still be live: a session whose short
// window has lapsed but whose age is still within Lifetime is revived. It
// fails, evicting the entry, if the token is unknown or its age already
// exceeds Lifetime.
func (m *Manager) Refresh(token string) (*Session, bool) {
	s, ok := m.sessions.Load(token)
	if !ok {
		return nil, false
	}

	now := m.cfg.Clock.Now()
	if now-s.IssuedAt > s.Lifetime.Milliseconds() {
		m.sessions.Delete(token)
		return nil, false
	}

	candidate := now + s.SingleSessionDuration.Milliseconds()
	cap := s.IssuedAt + s.Lifetime.Milliseconds()
	if candidate > cap {
		candidate = cap
	}
	s.expiresAt.Store(candidate)
	return s, true
}

// GetUserID returns the user id bound to token, if the session exists and
// has not expired.
func (m *Manager) GetUserID(token string) (string, bool) {
	s, ok := m.Verify(token)
	if !ok {
		return "", false
	}
	return s.UserID, true
}

// Shutdown cancels the sweeper and waits for it to exit, then clears the
// session table. Safe to call once; a second call is a no-op because the
// underlying scope's cancellation is idempotent.
func (m *Manager) Shutdown() {
	m.scope.Cancel()
	m.scope.Wait()
	m.sessions.Range(func(k string, v *Session) bool {
		m.sessions.Delete(k)
		return true
	})
}

func (m *Manager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	now := m.cfg.Clock.Now()
	var removed int

	m.sessions.Range(func(token string, s *Session) bool {
		if now-s.IssuedAt > s.Lifetime.Milliseconds() {
			m.sessions.Delete(token)
			removed++
		}
		return true
	})

	if removed > 0 {
		m.cfg.Logger.Debug(func() string {
			return "session sweep removed expired sessions"
		}, logger.Field{Key: "removed", Value: removed})
	}
}
