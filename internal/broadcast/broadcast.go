// Package broadcast sends an announcement to every known user.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/prukaya/finbuddy/internal/store"
)

// DefaultRate stays under Telegram's global limit of 30 messages per second.
const DefaultRate = 25

var ErrEmptyMessage = errors.New("message cannot be empty")

// UserLister lists every user that has talked to the bot.
type UserLister interface {
	ListUsers() ([]store.User, error)
}

// TextSender delivers a plain text message to a chat.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Result summarizes a broadcast.
type Result struct {
	Sent   int
	Failed []int64
}

type Broadcaster struct {
	users   UserLister
	sender  TextSender
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Broadcaster sending at most perSecond messages per second.
func New(users UserLister, sender TextSender, perSecond int) *Broadcaster {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	return &Broadcaster{
		users:   users,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  slog.Default().With(slog.String("component", "broadcast")),
	}
}

// Send delivers text to every user. A failed delivery is logged and recorded
// in the result; it does not stop the broadcast.
func (b *Broadcaster) Send(ctx context.Context, text string) (Result, error) {
	var res Result

	text = strings.TrimSpace(text)
	if text == "" {
		return res, ErrEmptyMessage
	}

	users, err := b.users.ListUsers()
	if err != nil {
		return res, fmt.Errorf("failed to list users: %w", err)
	}
	if len(users) == 0 {
		b.logger.Warn("No users found in the database")
		return res, nil
	}

	for _, u := range users {
		if err := b.limiter.Wait(ctx); err != nil {
			return res, fmt.Errorf("broadcast interrupted after %d messages: %w", res.Sent, err)
		}
		if err := b.sender.SendText(ctx, u.ChatID, text); err != nil {
			b.logger.Error("Failed to send message", slog.Int64("chat_id", u.ChatID), slog.Any("error", err))
			res.Failed = append(res.Failed, u.ChatID)
			continue
		}
		b.logger.Debug("Message sent", slog.Int64("chat_id", u.ChatID))
		res.Sent++
	}

	b.logger.Info("Broadcast complete", slog.Int("sent", res.Sent), slog.Int("failed", len(res.Failed)))
	return res, nil
}
