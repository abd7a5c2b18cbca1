// Package session tracks per-user conversational state for the bot: session
// identity, activity timestamps, the processing gate and chat history.
package session

import (
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is a snapshot of one user's conversational state. Values handed out
// by the Manager are copies; mutating them has no effect on the manager.
type Session struct {
	ID         string
	UserID     int64
	Username   string
	CreatedAt  time.Time
	LastActive time.Time
	Processing bool
	History    []Turn

	// gateOwner is the ID of the session whose request closed the gate. It
	// differs from ID when a replacement inherited a gate still in flight.
	gateOwner string
}

func (s *Session) snapshot() Session {
	out := *s
	if s.History != nil {
		out.History = make([]Turn, len(s.History))
		copy(out.History, s.History)
	}
	return out
}

// Clock supplies the current time for expiry decisions.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock reads the wall clock.
var RealClock Clock = realClock{}
