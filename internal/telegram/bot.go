// Package telegram adapts the Telegram Bot API to the dispatcher's message
// and sender types.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/prukaya/finbuddy/internal/dispatch"
)

// longPollTimeout is the getUpdates timeout in seconds.
const longPollTimeout = 60

type Bot struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

func NewBot(token string, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "telegram"))
	logger.Info("Authorized on Telegram", slog.String("account", api.Self.UserName))

	return &Bot{api: api, logger: logger}, nil
}

// Updates long-polls Telegram and emits converted messages until ctx is done.
// The returned channel is closed once polling stops.
func (b *Bot) Updates(ctx context.Context) <-chan dispatch.Message {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = longPollTimeout
	updates := b.api.GetUpdatesChan(cfg)

	out := make(chan dispatch.Message)
	go func() {
		defer close(out)
		defer b.api.StopReceivingUpdates()

		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg, ok := ToMessage(update)
				if !ok {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (b *Bot) Send(_ context.Context, chatID int64, text string, buttons [][]dispatch.Button) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup, ok := Keyboard(buttons); ok {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) Typing(_ context.Context, chatID int64) error {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("typing action for chat %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) AnswerCallback(_ context.Context, callbackID, text string) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback %s: %w", callbackID, err)
	}
	return nil
}

// ToMessage converts a Telegram update. Updates other than messages and
// callback queries report false.
func ToMessage(update tgbotapi.Update) (dispatch.Message, bool) {
	switch {
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		if cq.Message == nil || cq.Message.Chat == nil {
			return dispatch.Message{}, false
		}
		return dispatch.Message{
			UserID:       cq.Message.Chat.ID,
			Username:     username(cq.From, cq.Message.Chat),
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
		}, true

	case update.Message != nil:
		m := update.Message
		if m.Chat == nil {
			return dispatch.Message{}, false
		}
		msg := dispatch.Message{
			UserID:   m.Chat.ID,
			Username: username(m.From, m.Chat),
			Text:     m.Text,
		}
		if m.IsCommand() {
			msg.Command = m.Command()
			msg.Args = m.CommandArguments()
		}
		return msg, true
	}
	return dispatch.Message{}, false
}

func username(from *tgbotapi.User, chat *tgbotapi.Chat) string {
	if from != nil && from.UserName != "" {
		return from.UserName
	}
	if chat != nil && chat.UserName != "" {
		return chat.UserName
	}
	if from != nil {
		return from.FirstName
	}
	return ""
}

// Keyboard builds an inline keyboard from button rows. It reports false when
// there are no buttons.
func Keyboard(rows [][]dispatch.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		if len(buttons) > 0 {
			keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
	}
	if len(keyboard) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...), true
}

// SendText sends a plain message without buttons.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	return b.Send(ctx, chatID, text, nil)
}
