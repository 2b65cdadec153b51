package testkit

import (
	"strings"
	"testing"

	"tarotbot/pkg/llm"
)

// AssertRoles checks the role sequence of a message history.
func AssertRoles(t *testing.T, msgs []llm.Message, want ...llm.Role) {
	t.Helper()
	if len(msgs) != len(want) {
		t.Fatalf("Expected %d messages, got %d: %v", len(want), len(msgs), roles(msgs))
	}
	for i, r := range want {
		if msgs[i].Role != r {
			t.Errorf("Message %d: expected role %s, got %s", i, r, msgs[i].Role)
		}
	}
}

// AssertMessageContains checks that message i of a history contains text.
func AssertMessageContains(t *testing.T, msgs []llm.Message, i int, text string) {
	t.Helper()
	if i < 0 || i >= len(msgs) {
		t.Fatalf("Message %d out of range (history has %d)", i, len(msgs))
	}
	if !strings.Contains(msgs[i].Content, text) {
		t.Errorf("Expected message %d to contain %q, got: %s", i, text, msgs[i].Content)
	}
}

// AssertNoMessageContains checks that no message of a history contains text.
func AssertNoMessageContains(t *testing.T, msgs []llm.Message, text string) {
	t.Helper()
	for i, m := range msgs {
		if strings.Contains(m.Content, text) {
			t.Errorf("Message %d unexpectedly contains %q", i, text)
		}
	}
}

func roles(msgs []llm.Message) []llm.Role {
	out := make([]llm.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}
