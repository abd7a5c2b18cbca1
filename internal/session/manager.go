package session

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const (
	// DefaultTimeout is how long a session may stay idle before the sweep removes it.
	DefaultTimeout = 5 * time.Minute
	// DefaultRefreshAfter is the idle gap after which the next message starts a new conversation.
	DefaultRefreshAfter = 2 * time.Minute
)

// ErrBusy is returned when an operation needs the processing gate open.
var ErrBusy = errors.New("session is processing")

// Options configures a Manager. Zero values fall back to the defaults.
type Options struct {
	Timeout      time.Duration
	RefreshAfter time.Duration
	Clock        Clock
	Logger       *slog.Logger
	// OnCreate runs after a session is created or recreated, outside the lock.
	OnCreate func(Session)
}

// Stats is a point-in-time count of live sessions.
type Stats struct {
	Total      int `json:"total"`
	Processing int `json:"processing"`
}

// Manager is the authoritative mapping from user identity to Session. It is
// safe for concurrent use by dispatcher workers and the sweeper.
type Manager struct {
	mu       sync.Mutex
	store    *store
	clock    Clock
	logger   *slog.Logger
	onCreate func(Session)
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RefreshAfter <= 0 {
		opts.RefreshAfter = DefaultRefreshAfter
	}
	if opts.RefreshAfter > opts.Timeout {
		opts.RefreshAfter = opts.Timeout
	}
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Manager{
		store:    newStore(opts.Timeout, opts.RefreshAfter),
		clock:    opts.Clock,
		logger:   opts.Logger.With(slog.String("component", "session.manager")),
		onCreate: opts.OnCreate,
	}
}

// Timeout returns the idle duration after which sessions are swept.
func (m *Manager) Timeout() time.Duration { return m.store.timeout }

// GetOrCreate returns the live session for userID, creating one if absent.
// A session idle for longer than the refresh threshold is replaced by a new
// one with a fresh ID and empty history; otherwise its activity time is bumped.
func (m *Manager) GetOrCreate(userID int64, username string) Session {
	m.mu.Lock()
	sess, result, previousID := m.store.getOrCreate(userID, username, m.clock.Now())
	snap := sess.snapshot()
	m.mu.Unlock()

	m.opened(snap, result, previousID)
	return snap
}

// Begin opens or refreshes the user's session and closes its processing gate
// in one step. It returns the session as of the moment the gate closed and
// false when a computation is already in flight.
func (m *Manager) Begin(userID int64, username string) (Session, bool) {
	m.mu.Lock()
	sess, result, previousID := m.store.getOrCreate(userID, username, m.clock.Now())
	ok := m.store.beginProcessing(sess)
	snap := sess.snapshot()
	m.mu.Unlock()

	m.opened(snap, result, previousID)
	return snap, ok
}

func (m *Manager) opened(snap Session, result outcome, previousID string) {
	switch result {
	case outcomeCreated:
		m.logger.Info("Session created",
			slog.String("event", "create"),
			slog.String("session_id", snap.ID),
			slog.String("username", snap.Username))
	case outcomeRecreated:
		m.logger.Info("Session replaced after inactivity",
			slog.String("event", "new"),
			slog.String("session_id", snap.ID),
			slog.String("previous_session_id", previousID),
			slog.String("username", snap.Username))
	default:
		m.logger.Debug("Session refreshed",
			slog.String("event", "refresh"),
			slog.String("session_id", snap.ID),
			slog.String("username", snap.Username))
	}

	if result != outcomeRefreshed && m.onCreate != nil {
		m.onCreate(snap)
	}
}

// Get returns a snapshot of the live session for userID.
func (m *Manager) Get(userID int64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.store.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return sess.snapshot(), true
}

// SweepExpired removes every session idle for longer than the timeout and
// returns the removed user identities in ascending order.
func (m *Manager) SweepExpired(now time.Time) []int64 {
	m.mu.Lock()
	removed := m.store.expired(now)
	m.mu.Unlock()

	users := make([]int64, 0, len(removed))
	for _, sess := range removed {
		users = append(users, sess.UserID)
		m.logger.Info("Session cleared due to inactivity",
			slog.String("event", "clear"),
			slog.String("session_id", sess.ID),
			slog.Duration("timeout", m.store.timeout))
	}
	slices.Sort(users)
	return users
}

// RecordTurn appends a turn to the history of session sessionID. The turn is
// dropped when that session has expired or been replaced in the meantime.
func (m *Manager) RecordTurn(userID int64, sessionID string, role Role, content string) {
	m.mu.Lock()
	ok := m.store.appendTurn(userID, sessionID, role, content)
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("Dropped turn for expired session",
			slog.Int64("user_id", userID),
			slog.String("session_id", sessionID))
	}
}

// TryBeginProcessing closes the processing gate for userID and returns the ID
// of the session that holds it. It reports false when a computation is
// already in flight or no session exists.
func (m *Manager) TryBeginProcessing(userID int64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.store.sessions[userID]
	if !ok || !m.store.beginProcessing(sess) {
		return "", false
	}
	return sess.ID, true
}

// EndProcessing reopens the gate closed by session sessionID. It is a no-op
// when that session is gone or the gate now belongs to another request.
func (m *Manager) EndProcessing(userID int64, sessionID string) {
	m.mu.Lock()
	ok := m.store.endProcessing(userID, sessionID)
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("Ignored release for stale session",
			slog.Int64("user_id", userID),
			slog.String("session_id", sessionID))
	}
}

// End destroys the user's session, discarding its history. A session with
// an answer in flight is left alone and ErrBusy is returned.
func (m *Manager) End(userID int64) error {
	m.mu.Lock()
	sess, ok := m.store.sessions[userID]
	if ok && sess.Processing {
		m.mu.Unlock()
		return ErrBusy
	}
	if ok {
		delete(m.store.sessions, userID)
	}
	m.mu.Unlock()

	if ok {
		m.logger.Info("Session reset", slog.String("event", "reset"), slog.String("session_id", sess.ID))
	}
	return nil
}

// Stats returns the number of live and busy sessions.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{Total: len(m.store.sessions)}
	for _, sess := range m.store.sessions {
		if sess.Processing {
			stats.Processing++
		}
	}
	return stats
}

// Now reads the manager's clock.
func (m *Manager) Now() time.Time { return m.clock.Now() }
