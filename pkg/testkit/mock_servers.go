package testkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// CompletionMessage is one chat message as it appears on the wire.
type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the decoded body of a chat/completions call.
type CompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []CompletionMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}

// Responder produces the assistant content for a request.
type Responder func(req CompletionRequest) string

// CompletionServer emulates an OpenAI-compatible chat/completions endpoint.
type CompletionServer struct {
	*httptest.Server

	respond  Responder
	mu       sync.Mutex
	requests []CompletionRequest
}

// Requests returns the decoded requests received so far.
func (s *CompletionServer) Requests() []CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CompletionRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// MockCompletionServer starts a completion endpoint answering with respond.
// A nil responder uses ReadingResponder.
func MockCompletionServer(respond Responder) *CompletionServer {
	if respond == nil {
		respond = ReadingResponder
	}
	s := &CompletionServer{respond: respond}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *CompletionServer) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, request)
	s.mu.Unlock()

	response := map[string]any{
		"id":      "chatcmpl-mock12345",
		"object":  "chat.completion",
		"created": 1699999999,
		"model":   request.Model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": s.respond(request),
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     50,
			"completion_tokens": 100,
			"total_tokens":      150,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// Canned stage replies used by ReadingResponder.
const (
	QuestionsReply = "Анализ завершён.\n[QUESTIONS_START]\nQ1: Что для вас сейчас важнее всего в работе?\nQ2: Кто поддерживает вас в этой ситуации?\n[QUESTIONS_END]"
	AnalysisReply  = "Служебный анализ карт: первая карта говорит о начале пути, вторая о выборе."
	FinalReply     = "[INTERPRETATION_START]\n🔮 Ваш расклад показывает время перемен. Первая карта открывает новую главу, вторая просит довериться себе, третья обещает поддержку близких людей.\n[INTERPRETATION_END]"
)

// ReadingResponder answers each stage of a staged reading by looking at the
// output markers requested in the last message.
func ReadingResponder(req CompletionRequest) string {
	if len(req.Messages) == 0 {
		return AnalysisReply
	}
	last := req.Messages[len(req.Messages)-1].Content
	switch {
	case strings.Contains(last, "[QUESTIONS_START]"):
		return QuestionsReply
	case strings.Contains(last, "[INTERPRETATION_START]"):
		return FinalReply
	default:
		return AnalysisReply
	}
}
