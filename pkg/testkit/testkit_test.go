package testkit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"tarotbot/pkg/llm"
)

func TestMockCompletionServer(t *testing.T) {
	server := MockCompletionServer(nil)
	defer server.Close()

	requestBody := `{
		"model": "anthropic/claude-3.5-sonnet",
		"messages": [
			{"role": "system", "content": "persona"},
			{"role": "user", "content": "Выведите вопросы: [QUESTIONS_START] ... [QUESTIONS_END]"}
		],
		"max_tokens": 500
	}`

	resp, err := http.Post(server.URL+"/chat/completions", "application/json", strings.NewReader(requestBody))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("Failed to parse JSON response: %v", err)
	}
	if len(response.Choices) != 1 || response.Choices[0].Message.Content != QuestionsReply {
		t.Errorf("Expected questions reply, got %+v", response.Choices)
	}

	reqs := server.Requests()
	if len(reqs) != 1 || reqs[0].Model != "anthropic/claude-3.5-sonnet" || len(reqs[0].Messages) != 2 {
		t.Errorf("Unexpected recorded requests: %+v", reqs)
	}
}

func TestMockCompletionServerRejects(t *testing.T) {
	server := MockCompletionServer(func(CompletionRequest) string { return "x" })
	defer server.Close()

	resp, err := http.Get(server.URL + "/chat/completions")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}

	resp, err = http.Post(server.URL+"/models", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestReadingResponder(t *testing.T) {
	ask := func(content string) string {
		return ReadingResponder(CompletionRequest{Messages: []CompletionMessage{{Role: "user", Content: content}}})
	}
	if ask("[QUESTIONS_START]") != QuestionsReply {
		t.Error("Expected questions reply")
	}
	if ask("[INTERPRETATION_START]") != FinalReply {
		t.Error("Expected final reply")
	}
	if ask("анализ") != AnalysisReply || ReadingResponder(CompletionRequest{}) != AnalysisReply {
		t.Error("Expected analysis reply")
	}
}

func TestScriptedClient(t *testing.T) {
	boom := errors.New("boom")
	c := NewScriptedClientWith(Reply{Content: "one"}, Reply{Err: boom})

	ctx := llm.WithStage(context.Background(), "synthesis")
	msgs := []llm.Message{llm.NewUserMessage("hi")}

	resp, err := c.Complete(ctx, llm.NewRequest(msgs))
	if err != nil || resp.Content != "one" {
		t.Fatalf("Unexpected first reply: %q %v", resp.Content, err)
	}
	msgs[0].Content = "mutated"

	if _, err := c.Complete(ctx, llm.NewRequest(msgs)); !errors.Is(err, boom) {
		t.Errorf("Expected scripted error, got %v", err)
	}
	if _, err := c.Complete(ctx, llm.NewRequest(msgs)); err == nil {
		t.Error("Expected error past end of script")
	}

	calls := c.Calls()
	if len(calls) != 3 {
		t.Fatalf("Expected 3 recorded calls, got %d", len(calls))
	}
	if calls[0].Messages[0].Content != "hi" {
		t.Errorf("Recorded request should be a copy, got %q", calls[0].Messages[0].Content)
	}
	if got := c.Stages(); got[0] != "synthesis" {
		t.Errorf("Expected stage label, got %v", got)
	}

	AssertRoles(t, calls[0].Messages, llm.RoleUser)
	AssertMessageContains(t, calls[1].Messages, 0, "mutated")
	AssertNoMessageContains(t, calls[0].Messages, "mutated")
}
