package session

import (
	"time"

	"github.com/google/uuid"
)

// store is the unsynchronized session map. Every method must be called with
// the owning Manager's mutex held.
type store struct {
	sessions     map[int64]*Session
	timeout      time.Duration
	refreshAfter time.Duration
}

type outcome int

const (
	outcomeRefreshed outcome = iota
	outcomeCreated
	outcomeRecreated
)

func newStore(timeout, refreshAfter time.Duration) *store {
	return &store{
		sessions:     make(map[int64]*Session),
		timeout:      timeout,
		refreshAfter: refreshAfter,
	}
}

func (s *store) getOrCreate(userID int64, username string, now time.Time) (*Session, outcome, string) {
	current, ok := s.sessions[userID]
	if !ok {
		sess := s.create(userID, username, now)
		return sess, outcomeCreated, ""
	}

	if now.Sub(current.LastActive) > s.refreshAfter {
		previousID := current.ID
		sess := s.create(userID, username, now)
		// An answer still in flight for this user keeps the gate closed
		// until that request releases it.
		sess.Processing = current.Processing
		sess.gateOwner = current.gateOwner
		return sess, outcomeRecreated, previousID
	}

	current.LastActive = now
	if username != "" {
		current.Username = username
	}
	return current, outcomeRefreshed, ""
}

func (s *store) create(userID int64, username string, now time.Time) *Session {
	sess := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		Username:   username,
		CreatedAt:  now,
		LastActive: now,
	}
	s.sessions[userID] = sess
	return sess
}

func (s *store) expired(now time.Time) []*Session {
	var out []*Session
	for userID, sess := range s.sessions {
		if now.Sub(sess.LastActive) > s.timeout {
			out = append(out, sess)
			delete(s.sessions, userID)
		}
	}
	return out
}

// appendTurn adds a turn to sessionID's history. It reports false when the
// user's live session is missing or is a different one.
func (s *store) appendTurn(userID int64, sessionID string, role Role, content string) bool {
	sess, ok := s.sessions[userID]
	if !ok || sess.ID != sessionID {
		return false
	}
	sess.History = append(sess.History, Turn{Role: role, Content: content})
	return true
}

func (s *store) beginProcessing(sess *Session) bool {
	if sess.Processing {
		return false
	}
	sess.Processing = true
	sess.gateOwner = sess.ID
	return true
}

// endProcessing opens the gate only when sessionID's request holds it.
func (s *store) endProcessing(userID int64, sessionID string) bool {
	sess, ok := s.sessions[userID]
	if !ok || !sess.Processing || sess.gateOwner != sessionID {
		return false
	}
	sess.Processing = false
	sess.gateOwner = ""
	return true
}
