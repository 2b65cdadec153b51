// Package dialogue runs the chat side of the bot: the per-chat state machine that
// collects user data, draws the cards, drives the interpretation session and
// delivers the result.
package dialogue

import (
	"context"
	"errors"
	"strings"
	"time"

	"tarotbot/pkg/deck"
	"tarotbot/pkg/llm"
	"tarotbot/pkg/logx"
	"tarotbot/pkg/persistence"
	"tarotbot/pkg/prompts"
	"tarotbot/pkg/readinglog"
	"tarotbot/pkg/session"
	"tarotbot/pkg/spreads"
)

// Commands understood by HandleCommand.
const (
	CommandStart  = "start"
	CommandHelp   = "help"
	CommandCancel = "cancel"
)

// UserStore is the subset of the user store the dialogue needs.
type UserStore interface {
	GetUser(ctx context.Context, chatID int64) (persistence.User, error)
	SaveUser(ctx context.Context, u persistence.User, initialCredits int) error
	DebitCredit(ctx context.Context, chatID int64) (int, error)
	RefundCredit(ctx context.Context, chatID int64) error
	TouchLastSpread(ctx context.Context, chatID int64, spread string) error
}

// ReadingLog receives the record of every reading.
type ReadingLog interface {
	Create(r *readinglog.Record) (string, error)
	Update(id string, fn func(*readinglog.Record) error) error
}

// Renderer composes the spread image.
type Renderer interface {
	Render(spread spreads.Spread, cards []deck.Card) ([]byte, error)
}

// ReadingObserver counts finished readings by outcome.
type ReadingObserver interface {
	ObserveReading(spread, outcome string)
}

// Reading outcomes reported to the ReadingObserver.
const (
	OutcomeCompleted = "completed"
	OutcomeFallback  = "fallback"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Config wires a Bot. Renderer and Observer are optional.
type Config struct {
	Catalog  *spreads.Catalog
	Deck     *deck.Deck
	Prompts  *prompts.Provider
	Client   llm.Client
	Sender   Sender
	Users    UserStore
	Readings ReadingLog
	Renderer Renderer
	Observer ReadingObserver
	Store    *Store
	Now      func() time.Time
	// Generation carries model settings; its OnStage hook is owned by the Bot.
	Generation       session.Options
	Strategy         string
	InitialCredits   int
	MaxMessageLength int
	MaxCaptionLength int
	CreditsEnabled   bool
}

// Bot handles chat events. All methods are safe for concurrent use; events for
// one chat are handled one at a time. Arrival order is kept by the caller, which
// must deliver a chat's events sequentially (see telegram.Adapter.Serve).
type Bot struct {
	cfg      Config
	sessions *Store
	logger   *logx.Logger
}

// Default message limits.
const (
	DefaultMaxMessageLength = 4096
	DefaultMaxCaptionLength = 1024
)

// New validates cfg and returns a Bot.
func New(cfg Config) (*Bot, error) {
	switch {
	case cfg.Catalog == nil:
		return nil, errors.New("dialogue: spread catalog is required")
	case cfg.Deck == nil:
		return nil, errors.New("dialogue: deck is required")
	case cfg.Prompts == nil:
		return nil, errors.New("dialogue: prompt provider is required")
	case cfg.Client == nil:
		return nil, errors.New("dialogue: llm client is required")
	case cfg.Sender == nil:
		return nil, errors.New("dialogue: sender is required")
	case cfg.Users == nil:
		return nil, errors.New("dialogue: user store is required")
	case cfg.Readings == nil:
		return nil, errors.New("dialogue: reading log is required")
	}
	if cfg.Store == nil {
		cfg.Store = NewStore()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	if cfg.MaxCaptionLength <= 0 {
		cfg.MaxCaptionLength = DefaultMaxCaptionLength
	}
	if cfg.Strategy == "" {
		cfg.Strategy = session.StrategyStaged
	}
	if _, err := session.New(cfg.Strategy, cfg.Client, cfg.Prompts, session.Options{}); err != nil {
		return nil, err
	}
	return &Bot{cfg: cfg, sessions: cfg.Store, logger: logx.NewLogger("dialogue")}, nil
}

// Sessions returns the per-chat store.
func (b *Bot) Sessions() *Store { return b.sessions }

// HandleCommand handles a slash command without its leading slash.
func (b *Bot) HandleCommand(ctx context.Context, chatID int64, command string) {
	command = strings.ToLower(strings.TrimPrefix(command, "/"))
	ctx = logx.WithChat(ctx, chatID)

	b.Interrupt(chatID, command)

	ctx, sess, release := b.sessions.Acquire(ctx, chatID)
	defer release()

	switch command {
	case CommandStart:
		b.abandon(ctx, chatID, sess)
		b.sendMenu(ctx, chatID, textWelcome, mainMenu())
	case CommandHelp:
		b.sendMenu(ctx, chatID, textHelp, backButton(CallbackBackToMain))
	case CommandCancel:
		b.abandon(ctx, chatID, sess)
		b.sendMenu(ctx, chatID, textCancel, mainMenu())
	default:
		b.sendMenu(ctx, chatID, textIdle, mainMenu())
	}
}

// Interrupt aborts the chat's in-flight event when command is /start or /cancel.
// It never waits for the chat, so a transport that queues events per chat calls
// it before queueing the command.
func (b *Bot) Interrupt(chatID int64, command string) bool {
	command = strings.ToLower(strings.TrimPrefix(command, "/"))
	if command != CommandStart && command != CommandCancel {
		return false
	}
	if !b.sessions.Cancel(chatID) {
		return false
	}
	b.logger.Info("Cancelled in-flight event for chat %d", chatID)
	return true
}

// HandleText handles a plain text message.
func (b *Bot) HandleText(ctx context.Context, chatID int64, text string) {
	ctx = logx.WithChat(ctx, chatID)
	ctx, sess, release := b.sessions.Acquire(ctx, chatID)
	defer release()

	text = strings.TrimSpace(text)
	logx.Debug(ctx, "dialogue", "chat %d: text in state %s", chatID, sess.State)

	switch sess.State {
	case StateWaitingName:
		b.onName(ctx, chatID, sess, text)
	case StateWaitingBirthdate:
		b.onBirthdate(ctx, chatID, sess, text)
	case StateWaitingMagicNumber:
		b.onMagicNumber(ctx, chatID, sess, text)
	case StateWaitingPreliminaryAnswers:
		b.onPreliminaryAnswer(ctx, chatID, sess, text)
	case StateWaitingLLMQuestions:
		b.onLLMAnswer(ctx, chatID, sess, text)
	case StateWaitingComment:
		b.onComment(ctx, chatID, sess, text)
	default:
		b.sendMenu(ctx, chatID, textIdle, mainMenu())
	}
}

// HandleButton handles an inline button press. messageID is the message that
// carried the keyboard, or 0 when unknown.
func (b *Bot) HandleButton(ctx context.Context, chatID int64, messageID int, data string) {
	ctx = logx.WithChat(ctx, chatID)
	ctx, sess, release := b.sessions.Acquire(ctx, chatID)
	defer release()

	logx.Debug(ctx, "dialogue", "chat %d: button %q in state %s", chatID, data, sess.State)

	switch {
	case data == CallbackMainMenu || data == CallbackBackToMain:
		b.leaveFeedback(sess)
		b.showMenu(ctx, chatID, messageID, textWelcome, mainMenu())
	case data == CallbackSpreadsList:
		b.leaveFeedback(sess)
		b.showMenu(ctx, chatID, messageID, textSpreads, spreadsMenu(b.cfg.Catalog.All()))
	case data == CallbackHelp:
		b.showMenu(ctx, chatID, messageID, textHelp, backButton(CallbackBackToMain))
	case strings.HasPrefix(data, ratePrefix):
		b.onRating(ctx, chatID, messageID, sess, strings.TrimPrefix(data, ratePrefix))
	case data == CallbackFeedbackComment:
		b.onCommentRequest(ctx, chatID, messageID, sess)
	case data == CallbackFeedbackCancel:
		sess.Reset()
		b.showMenu(ctx, chatID, messageID, textFeedbackCancel, mainMenu())
	default:
		spread, ok := b.cfg.Catalog.ByCallback(data)
		if !ok {
			b.send(ctx, chatID, textUnknown)
			return
		}
		b.onSpread(ctx, chatID, sess, spread)
	}
}

// leaveFeedback drops a finished reading once the user navigates elsewhere.
func (b *Bot) leaveFeedback(sess *Session) {
	if sess.State == StateWaitingFeedback || sess.State == StateWaitingComment {
		sess.Reset()
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if _, err := b.cfg.Sender.SendText(ctx, chatID, text); err != nil {
		b.logger.Warn("Failed to send message to chat %d: %v", chatID, err)
	}
}

func (b *Bot) sendMenu(ctx context.Context, chatID int64, text string, kb Keyboard) {
	if _, err := b.cfg.Sender.SendMenu(ctx, chatID, text, kb); err != nil {
		b.logger.Warn("Failed to send menu to chat %d: %v", chatID, err)
	}
}

// showMenu edits the message that carried the pressed button, or sends a new one.
func (b *Bot) showMenu(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) {
	if messageID != 0 {
		err := b.cfg.Sender.EditText(ctx, chatID, messageID, text, kb)
		if err == nil {
			return
		}
		b.logger.Debug("Edit failed for chat %d, sending a new menu: %v", chatID, err)
	}
	b.sendMenu(ctx, chatID, text, kb)
}
