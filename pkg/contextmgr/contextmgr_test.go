package contextmgr

import (
	"testing"

	"tarotbot/pkg/llm"
)

func TestNewContextHasNoMessages(t *testing.T) {
	c := NewConversationContext("Вы опытный таролог.")

	if c.Len() != 0 {
		t.Errorf("Expected 0 materialized messages, got %d", c.Len())
	}
	if len(c.History()) != 0 {
		t.Errorf("Expected empty history, got %v", c.History())
	}
	if !c.Pending() {
		t.Error("Expected system prompt to be pending")
	}
}

func TestSystemPromptMaterializesOnFirstUser(t *testing.T) {
	c := NewConversationContext("persona")
	c.AddUser("spread")
	c.AddAssistant("reply")
	c.AddUser("more")

	h := c.History()
	if len(h) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(h))
	}
	want := []llm.Message{
		{Role: llm.RoleSystem, Content: "persona"},
		{Role: llm.RoleUser, Content: "spread"},
		{Role: llm.RoleAssistant, Content: "reply"},
		{Role: llm.RoleUser, Content: "more"},
	}
	for i := range want {
		if h[i] != want[i] {
			t.Errorf("message %d: expected %+v, got %+v", i, want[i], h[i])
		}
	}
	if c.Pending() {
		t.Error("Pending prompt should be consumed")
	}
}

func TestSystemPromptStaysFirst(t *testing.T) {
	c := NewConversationContext("persona")
	c.AddAssistant("early reply")
	c.AddUser("question")

	h := c.History()
	if h[0].Role != llm.RoleSystem || h[0].Content != "persona" {
		t.Errorf("Expected persona first, got %+v", h[0])
	}
	if h[1].Content != "early reply" || h[2].Content != "question" {
		t.Errorf("Unexpected order: %+v", h)
	}
}

func TestEmptyPromptIsNeverInserted(t *testing.T) {
	c := NewConversationContext("   ")
	c.AddUser("hi")

	if c.Len() != 1 || c.History()[0].Role != llm.RoleUser {
		t.Errorf("Expected a single user message, got %+v", c.History())
	}
}

func TestHistoryIsACopy(t *testing.T) {
	c := NewConversationContext("")
	c.AddUser("original")

	h := c.History()
	h[0].Content = "mutated"

	if c.History()[0].Content != "original" {
		t.Error("Mutating the returned history changed the context")
	}
}

func TestClear(t *testing.T) {
	c := NewConversationContext("persona")
	c.AddUser("a")
	c.AddAssistant("b")
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Expected empty context after Clear, got %d", c.Len())
	}

	// A cleared prompt does not come back.
	fresh := NewConversationContext("persona")
	fresh.Clear()
	fresh.AddUser("x")
	if fresh.Len() != 1 {
		t.Errorf("Expected pending prompt dropped by Clear, got %+v", fresh.History())
	}
}

func TestUpdatePrompt(t *testing.T) {
	c := NewConversationContext("old")
	c.UpdatePrompt("new")
	c.AddUser("u")
	if got := c.History()[0].Content; got != "new" {
		t.Errorf("Expected replaced pending prompt, got %q", got)
	}

	c.UpdatePrompt("later")
	h := c.History()
	if last := h[len(h)-1]; last.Role != llm.RoleSystem || last.Content != "later" {
		t.Errorf("Expected appended system message, got %+v", last)
	}
}

func TestTokenCount(t *testing.T) {
	c := NewConversationContext("persona")
	if c.TokenCount() != 0 {
		t.Errorf("Pending prompt should not count, got %d", c.TokenCount())
	}
	c.AddUser("Hello world")
	if c.TokenCount() <= 8 {
		t.Errorf("Expected framing plus content tokens, got %d", c.TokenCount())
	}
}

func TestSnapshotRestore(t *testing.T) {
	c := NewConversationContext("persona")
	c.AddUser("spread")
	c.AddAssistant("questions")

	data, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored := NewConversationContext("")
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Len() != 3 || restored.History()[2].Content != "questions" {
		t.Errorf("Unexpected restored history: %+v", restored.History())
	}

	if err := restored.Restore([]byte(`{"messages":[{"role":"tool","content":"x"}]}`)); err == nil {
		t.Error("Expected error for unknown role")
	}
	if err := restored.Restore([]byte(`not json`)); err == nil {
		t.Error("Expected error for malformed snapshot")
	}
}
