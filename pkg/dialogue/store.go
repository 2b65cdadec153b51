package dialogue

import (
	"context"
	"sync"
	"time"

	"tarotbot/pkg/deck"
	"tarotbot/pkg/session"
	"tarotbot/pkg/spreads"
)

// State is where a chat is in the dialogue.
type State int

const (
	StateIdle State = iota
	StateWaitingName
	StateWaitingBirthdate
	StateWaitingMagicNumber
	StateWaitingPreliminaryAnswers
	StateWaitingLLMQuestions
	StateProcessingInterpretation
	StateWaitingFeedback
	StateWaitingComment
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingName:
		return "waiting_name"
	case StateWaitingBirthdate:
		return "waiting_birthdate"
	case StateWaitingMagicNumber:
		return "waiting_magic_number"
	case StateWaitingPreliminaryAnswers:
		return "waiting_preliminary_answers"
	case StateWaitingLLMQuestions:
		return "waiting_llm_questions"
	case StateProcessingInterpretation:
		return "processing_interpretation"
	case StateWaitingFeedback:
		return "waiting_feedback"
	case StateWaitingComment:
		return "waiting_comment"
	default:
		return "unknown"
	}
}

// Session is the per-chat dialogue data. It is only touched while the chat is held.
type Session struct {
	Birthdate          time.Time
	StartedAt          time.Time
	Interpreter        session.Interpreter
	progress           *Progress
	reporter           *stageReporter
	Spread             spreads.Spread
	Name               string
	ReadingID          string
	Cards              []deck.Card
	Image              []byte
	PreliminaryAnswers []string
	LLMQuestions       []string
	LLMAnswers         []string
	Age                int
	MagicNumber        int
	State              State
	Debited            bool
}

// Reset drops everything and returns the chat to idle.
func (s *Session) Reset() { *s = Session{} }

type chat struct {
	session Session
	cancel  context.CancelFunc
	mu      sync.Mutex
}

// Store holds one session per chat. Events for one chat are handled one at a
// time; other chats are never blocked. Waiting Acquire calls are not served in
// call order, so callers must not race events of the same chat.
type Store struct {
	chats map[int64]*chat
	mu    sync.Mutex
}

func NewStore() *Store {
	return &Store{chats: make(map[int64]*chat)}
}

func (s *Store) chat(chatID int64) *chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		c = &chat{}
		s.chats[chatID] = c
	}
	return c
}

// Acquire waits for the chat to be free and returns its session together with a
// context that Cancel aborts. release must be called when the event is handled.
func (s *Store) Acquire(ctx context.Context, chatID int64) (context.Context, *Session, func()) {
	c := s.chat(chatID)
	c.mu.Lock()

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	c.cancel = cancel
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		c.cancel = nil
		s.mu.Unlock()
		cancel()
		c.mu.Unlock()
	}
	return ctx, &c.session, release
}

// Cancel aborts the event currently being handled for the chat, if any. It does
// not wait for the chat to be free.
func (s *Store) Cancel(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok || c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

// State reports a chat's state. It waits while an event for the chat is in flight.
func (s *Store) State(chatID int64) State {
	c := s.chat(chatID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State
}

// Drop forgets a chat.
func (s *Store) Drop(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, chatID)
}

// Len returns the number of chats seen.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}
