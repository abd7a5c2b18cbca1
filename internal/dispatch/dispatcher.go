// Package dispatch gates every inbound message through the session manager
// and orchestrates the answer service call.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prukaya/finbuddy/internal/session"
)

// User-facing notices.
const (
	WaitNotice        = "Please wait until your previous query is processed."
	InappropriateText = "Your message contains inappropriate content and cannot be processed."
	UnavailableText   = "PRUKaya is not available now, please try again later."
	UnknownCommand    = "Sorry, I don't know that command. Type /help to see what I can do."
	ResetText         = "Your conversation has been reset. Ask me anything about saving, investing or insurance!"

	// refusalMarker is the answer service's fixed refusal sentence.
	refusalMarker = "can't answer that"

	defaultUsername = "Unknown User"
)

// DefaultTypingInterval refreshes Telegram's typing indicator, which lapses
// after about five seconds.
const DefaultTypingInterval = 4 * time.Second

// Config wires a Dispatcher.
type Config struct {
	Sessions      *session.Manager
	Answerer      Answerer
	Safety        SafetyChecker
	Sender        Sender
	Logger        *slog.Logger
	AnswerTimeout time.Duration
	Workers       int
	// TypingInterval defaults to DefaultTypingInterval.
	TypingInterval time.Duration
}

type Dispatcher struct {
	sessions       *session.Manager
	answerer       Answerer
	safety         SafetyChecker
	sender         Sender
	logger         *slog.Logger
	answerTimeout  time.Duration
	workers        int
	typingInterval time.Duration

	commands  map[string]Handler
	callbacks map[string]Handler
	flows     []Flow
}

func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	d := &Dispatcher{
		sessions:       cfg.Sessions,
		answerer:       cfg.Answerer,
		safety:         cfg.Safety,
		sender:         cfg.Sender,
		logger:         cfg.Logger.With(slog.String("component", "dispatch")),
		answerTimeout:  cfg.AnswerTimeout,
		workers:        cfg.Workers,
		typingInterval: cfg.TypingInterval,
		commands:       make(map[string]Handler),
		callbacks:      make(map[string]Handler),
	}

	d.HandleCommand("start", d.startCommand)
	d.HandleCommand("help", d.helpCommand)
	d.HandleCommand("reset", d.resetCommand)
	return d
}

// HandleCommand registers h for /name. Registration is not safe once Run has started.
func (d *Dispatcher) HandleCommand(name string, h Handler) {
	d.commands[strings.ToLower(name)] = h
}

// HandleCallback registers h for callback data starting with prefix. The
// longest matching prefix wins.
func (d *Dispatcher) HandleCallback(prefix string, h Handler) {
	d.callbacks[prefix] = h
}

// HandleFlow registers a multi-step conversation. Flows see free text before
// the answer service does, in registration order.
func (d *Dispatcher) HandleFlow(f Flow) {
	d.flows = append(d.flows, f)
}

// Run consumes in until it is closed or ctx is done, handling up to Workers
// messages concurrently.
func (d *Dispatcher) Run(ctx context.Context, in <-chan Message) error {
	g := new(errgroup.Group)
	g.SetLimit(d.workers)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case msg, ok := <-in:
			if !ok {
				break loop
			}
			g.Go(func() error {
				d.Handle(ctx, msg)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Handle processes a single inbound message.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) {
	if msg.Username == "" {
		msg.Username = defaultUsername
	}

	switch {
	case msg.IsCallback():
		d.routeCallback(ctx, msg)
	case msg.IsCommand():
		d.routeCommand(ctx, msg)
	case strings.HasPrefix(msg.Text, "/"):
		// Malformed command text never reaches the answer service.
		d.reply(ctx, msg.UserID, Reply{Text: UnknownCommand})
	case strings.TrimSpace(msg.Text) == "":
		return
	default:
		for _, f := range d.flows {
			if replies, ok := f.Intercept(ctx, msg); ok {
				for _, r := range replies {
					d.reply(ctx, msg.UserID, r)
				}
				return
			}
		}
		d.converse(ctx, msg)
	}
}

func (d *Dispatcher) routeCommand(ctx context.Context, msg Message) {
	h, ok := d.commands[strings.ToLower(msg.Command)]
	if !ok {
		d.reply(ctx, msg.UserID, Reply{Text: UnknownCommand})
		return
	}

	d.logger.InfoContext(ctx, "Command received",
		slog.String("command", msg.Command),
		slog.String("username", msg.Username))
	for _, r := range h(ctx, msg) {
		d.reply(ctx, msg.UserID, r)
	}
}

func (d *Dispatcher) routeCallback(ctx context.Context, msg Message) {
	var (
		best    Handler
		bestLen = -1
	)
	for prefix, h := range d.callbacks {
		if strings.HasPrefix(msg.CallbackData, prefix) && len(prefix) > bestLen {
			best, bestLen = h, len(prefix)
		}
	}

	if err := d.sender.AnswerCallback(ctx, msg.CallbackID, ""); err != nil {
		d.logger.WarnContext(ctx, "Failed to acknowledge callback", slog.Any("error", err))
	}
	if best == nil {
		d.logger.WarnContext(ctx, "Unhandled callback", slog.String("data", msg.CallbackData))
		return
	}
	for _, r := range best(ctx, msg) {
		d.reply(ctx, msg.UserID, r)
	}
}

// converse runs the gated answer flow for a free-text message.
func (d *Dispatcher) converse(ctx context.Context, msg Message) {
	sess, ok := d.sessions.Begin(msg.UserID, msg.Username)
	logger := d.logger.With(
		slog.String("session_id", sess.ID),
		slog.String("username", msg.Username))

	if !ok {
		logger.InfoContext(ctx, "Rejected message while previous query is processing")
		d.reply(ctx, msg.UserID, Reply{Text: WaitNotice})
		return
	}

	reply, ok := d.process(ctx, logger, msg, sess)
	if !ok {
		return
	}
	d.sessions.RecordTurn(msg.UserID, sess.ID, session.RoleUser, msg.Text)
	d.sessions.RecordTurn(msg.UserID, sess.ID, session.RoleAssistant, reply)
}

// process runs with the processing gate held by sess and always releases it.
// It reports the reply and whether the exchange succeeded.
func (d *Dispatcher) process(ctx context.Context, logger *slog.Logger, msg Message, sess session.Session) (string, bool) {
	defer d.sessions.EndProcessing(msg.UserID, sess.ID)

	if d.safety != nil && d.safety.IsFlagged(msg.Text) {
		logger.WarnContext(ctx, "Inappropriate message", slog.String("text", msg.Text))
		d.reply(ctx, msg.UserID, Reply{Text: InappropriateText})
		return "", false
	}

	logger.InfoContext(ctx, "Query received", slog.String("text", msg.Text))
	stopTyping := KeepTyping(ctx, d.sender, msg.UserID, d.typingInterval, logger)

	answerCtx := ctx
	if d.answerTimeout > 0 {
		var cancel context.CancelFunc
		answerCtx, cancel = context.WithTimeout(ctx, d.answerTimeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := d.answerer.Answer(answerCtx, msg.Text, sess.History)
	stopTyping()
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, context.Canceled) {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "Answer service failed", slog.Any("error", err))
		d.reply(ctx, msg.UserID, Reply{Text: UnavailableText})
		return "", false
	}

	if strings.Contains(reply, refusalMarker) {
		logger.WarnContext(ctx, "Flagged query refused by answer service", slog.String("text", msg.Text))
	}
	logger.DebugContext(ctx, "Answer ready", slog.Duration("latency", time.Since(start)))

	d.reply(ctx, msg.UserID, Reply{Text: reply})
	return reply, true
}

// KeepTyping shows the typing indicator in chatID now and every interval
// until the returned stop function is called. Stop waits for the refresher
// to exit and is safe to call more than once.
func KeepTyping(ctx context.Context, sender Sender, chatID int64, interval time.Duration, logger *slog.Logger) (stop func()) {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := sender.Typing(ctx, chatID); err != nil {
				logger.DebugContext(ctx, "Failed to send typing action", slog.Any("error", err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, r Reply) {
	if err := d.sender.Send(ctx, chatID, r.Text, r.Buttons); err != nil {
		d.logger.ErrorContext(ctx, "Failed to send message",
			slog.Int64("chat_id", chatID),
			slog.Any("error", err))
	}
}
