// Package telegram connects the dialogue to the Telegram Bot API over long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tarotbot/pkg/dialogue"
	"tarotbot/pkg/logx"
)

const (
	photoName     = "spread.png"
	maxRetryAfter = 30 * time.Second
)

// Handler receives chat events. *dialogue.Bot implements it.
type Handler interface {
	HandleCommand(ctx context.Context, chatID int64, command string)
	HandleText(ctx context.Context, chatID int64, text string)
	HandleButton(ctx context.Context, chatID int64, messageID int, data string)
	// Interrupt is called from the receive loop for every command before it is
	// queued, so /start and /cancel can abort a busy chat.
	Interrupt(chatID int64, command string) bool
}

// Adapter is a dialogue.Sender over the Bot API. Outgoing text is sent as
// Markdown and retried as plain text when Telegram rejects the markup.
type Adapter struct {
	api         *tgbotapi.BotAPI
	logger      *logx.Logger
	pollTimeout int
}

var _ dialogue.Sender = (*Adapter)(nil)

// Connect authenticates with the Bot API.
func Connect(token string, pollTimeoutSeconds int) (*Adapter, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	return New(api, pollTimeoutSeconds), nil
}

// New wraps an authenticated client.
func New(api *tgbotapi.BotAPI, pollTimeoutSeconds int) *Adapter {
	a := &Adapter{api: api, logger: logx.NewLogger("telegram"), pollTimeout: pollTimeoutSeconds}
	a.logger.Info("Authorized as @%s", api.Self.UserName)
	return a
}

// Run long-polls for updates until ctx is done.
func (a *Adapter) Run(ctx context.Context, h Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = a.pollTimeout
	updates := a.api.GetUpdatesChan(u)
	defer a.api.StopReceivingUpdates()
	return a.Serve(ctx, updates, h)
}

// Serve dispatches updates until ctx is done or updates is closed, then waits
// for the handlers in flight. Updates of one chat are handled strictly in
// arrival order; different chats run concurrently.
func (a *Adapter) Serve(ctx context.Context, updates <-chan tgbotapi.Update, h Handler) error {
	queues := newChatQueues(func(upd tgbotapi.Update) {
		if ctx.Err() != nil {
			return
		}
		a.Dispatch(ctx, h, upd)
	})
	defer queues.wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			chatID := chatOf(upd)
			if msg := upd.Message; msg != nil && msg.Chat != nil && msg.IsCommand() {
				h.Interrupt(chatID, msg.Command())
			}
			queues.push(chatID, upd)
		}
	}
}

func chatOf(upd tgbotapi.Update) int64 {
	switch {
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil && upd.CallbackQuery.Message.Chat != nil:
		return upd.CallbackQuery.Message.Chat.ID
	case upd.Message != nil && upd.Message.Chat != nil:
		return upd.Message.Chat.ID
	}
	return 0
}

// Dispatch turns one update into a handler call.
func (a *Adapter) Dispatch(ctx context.Context, h Handler, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		cq := upd.CallbackQuery
		if _, err := a.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			a.logger.Warn("Failed to answer callback %s: %v", cq.ID, err)
		}
		if cq.Message == nil || cq.Message.Chat == nil {
			return
		}
		h.HandleButton(ctx, cq.Message.Chat.ID, cq.Message.MessageID, cq.Data)

	case upd.Message != nil && upd.Message.Chat != nil:
		msg := upd.Message
		if msg.IsCommand() {
			h.HandleCommand(ctx, msg.Chat.ID, msg.Command())
			return
		}
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			logx.Debug(ctx, "telegram", "ignoring non-text message in chat %d", msg.Chat.ID)
			return
		}
		h.HandleText(ctx, msg.Chat.ID, text)
	}
}

// SendText sends a message.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	return a.sendFormatted(ctx, func(mode string) tgbotapi.Chattable {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = mode
		return msg
	})
}

// SendMenu sends a message with an inline keyboard.
func (a *Adapter) SendMenu(ctx context.Context, chatID int64, text string, kb dialogue.Keyboard) (int, error) {
	return a.sendFormatted(ctx, func(mode string) tgbotapi.Chattable {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = mode
		msg.ReplyMarkup = markup(kb)
		return msg
	})
}

// SendPhoto uploads a PNG with a caption.
func (a *Adapter) SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) (int, error) {
	return a.sendFormatted(ctx, func(mode string) tgbotapi.Chattable {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: photoName, Bytes: png})
		photo.Caption = caption
		photo.ParseMode = mode
		return photo
	})
}

// EditText replaces a message's text and, when kb is not nil, its keyboard.
func (a *Adapter) EditText(ctx context.Context, chatID int64, messageID int, text string, kb dialogue.Keyboard) error {
	_, err := a.sendFormatted(ctx, func(mode string) tgbotapi.Chattable {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		edit.ParseMode = mode
		if kb != nil {
			m := markup(kb)
			edit.ReplyMarkup = &m
		}
		return edit
	})
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

// DeleteMessage deletes a message.
func (a *Adapter) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

func (a *Adapter) sendFormatted(ctx context.Context, build func(parseMode string) tgbotapi.Chattable) (int, error) {
	msg, err := a.send(ctx, build(tgbotapi.ModeMarkdown))
	if err != nil && isParseError(err) {
		logx.Debug(ctx, "telegram", "markdown rejected, resending as plain text: %v", err)
		msg, err = a.send(ctx, build(""))
	}
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// send makes one call, waiting out a single flood-control response.
func (a *Adapter) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := ctx.Err(); err != nil {
		return tgbotapi.Message{}, err
	}
	msg, err := a.api.Send(c)
	wait := retryAfter(err)
	if wait == 0 {
		return msg, err
	}

	a.logger.Warn("Flood control, retrying in %s", wait)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return tgbotapi.Message{}, ctx.Err()
	case <-timer.C:
	}
	return a.api.Send(c)
}

func retryAfter(err error) time.Duration {
	var tgErr *tgbotapi.Error
	if !errors.As(err, &tgErr) || tgErr.RetryAfter <= 0 {
		return 0
	}
	return min(time.Duration(tgErr.RetryAfter)*time.Second, maxRetryAfter)
}

func isParseError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "can't parse entities")
}

func markup(kb dialogue.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
