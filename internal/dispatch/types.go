package dispatch

import (
	"context"

	"github.com/prukaya/finbuddy/internal/session"
)

// Message is one inbound event from the messaging transport.
type Message struct {
	UserID   int64
	Username string
	Text     string

	// Command is the slash command name without the leading slash.
	Command string
	Args    string

	// CallbackID and CallbackData are set when the user pressed an inline button.
	CallbackID   string
	CallbackData string
}

// IsCommand reports whether the message is a slash command.
func (m Message) IsCommand() bool { return m.Command != "" }

// IsCallback reports whether the message is an inline button press.
func (m Message) IsCallback() bool { return m.CallbackID != "" }

// Button is an inline keyboard button. Exactly one of Data or URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

// Reply is a message sent back to the user, optionally with button rows.
type Reply struct {
	Text    string
	Buttons [][]Button
}

// Sender is the outbound message sink.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string, buttons [][]Button) error
	Typing(ctx context.Context, chatID int64) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Answerer turns a query and the prior turns into a reply.
type Answerer interface {
	Answer(ctx context.Context, query string, history []session.Turn) (string, error)
}

// SafetyChecker flags content that must not reach the answer service.
type SafetyChecker interface {
	IsFlagged(text string) bool
}

// Handler serves a command or a callback query. Returned replies are sent in order.
type Handler func(ctx context.Context, msg Message) []Reply

// Flow is a multi-step conversation that claims free text while it is active,
// such as a questionnaire. Intercept reports false to let the message through.
type Flow interface {
	Intercept(ctx context.Context, msg Message) ([]Reply, bool)
}
