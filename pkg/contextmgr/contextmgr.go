// Package contextmgr holds the ordered message log sent to the model across the stages of one reading.
package contextmgr

import (
	"encoding/json"
	"fmt"
	"strings"

	"tarotbot/pkg/llm"
	"tarotbot/pkg/utils"
)

// ConversationContext is an append-only message log owned by one interpretation session.
// It is not safe for concurrent use.
type ConversationContext struct {
	pending  string
	messages []llm.Message
}

// NewConversationContext creates a context. A non-empty systemPrompt is held back
// and becomes the first message when the first user message is added.
func NewConversationContext(systemPrompt string) *ConversationContext {
	return &ConversationContext{
		pending:  strings.TrimSpace(systemPrompt),
		messages: make([]llm.Message, 0, 8),
	}
}

// AddSystem appends a system message
func (c *ConversationContext) AddSystem(text string) {
	c.messages = append(c.messages, llm.NewSystemMessage(text))
}

// AddUser appends a user message, materializing the pending system prompt in front of the log first.
func (c *ConversationContext) AddUser(text string) {
	if c.pending != "" {
		c.messages = append([]llm.Message{llm.NewSystemMessage(c.pending)}, c.messages...)
		c.pending = ""
	}
	c.messages = append(c.messages, llm.NewUserMessage(text))
}

// AddAssistant appends a model reply
func (c *ConversationContext) AddAssistant(text string) {
	c.messages = append(c.messages, llm.NewAssistantMessage(text))
}

// UpdatePrompt replaces the system prompt. Once the log has messages the new prompt is appended
// as a system message; before that it replaces the pending one.
func (c *ConversationContext) UpdatePrompt(prompt string) {
	prompt = strings.TrimSpace(prompt)
	if len(c.messages) == 0 {
		c.pending = prompt
		return
	}
	if prompt != "" {
		c.AddSystem(prompt)
	}
}

// History returns a copy of the materialized messages.
func (c *ConversationContext) History() []llm.Message {
	result := make([]llm.Message, len(c.messages))
	copy(result, c.messages)
	return result
}

// Len returns the number of materialized messages.
func (c *ConversationContext) Len() int {
	return len(c.messages)
}

// Pending reports whether a system prompt is still waiting for the first user message.
func (c *ConversationContext) Pending() bool {
	return c.pending != ""
}

// Clear drops every message and the pending prompt.
func (c *ConversationContext) Clear() {
	c.messages = c.messages[:0]
	c.pending = ""
}

// TokenCount estimates the prompt size of the materialized history.
func (c *ConversationContext) TokenCount() int {
	total := 0
	for i := range c.messages {
		// Role and framing overhead per message, as in the chat completions format.
		total += 4 + utils.CountTokensSimple(c.messages[i].Content)
	}
	return total
}

// snapshotMessage is the JSON shape of one message in a snapshot.
type snapshotMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// snapshot is the JSON shape of a saved context.
type snapshot struct {
	PendingPrompt string            `json:"pending_prompt,omitempty"`
	Messages      []snapshotMessage `json:"messages"`
}

// Snapshot serializes the context for the reading log.
func (c *ConversationContext) Snapshot() ([]byte, error) {
	s := snapshot{
		PendingPrompt: c.pending,
		Messages:      make([]snapshotMessage, len(c.messages)),
	}
	for i := range c.messages {
		s.Messages[i] = snapshotMessage{Role: string(c.messages[i].Role), Content: c.messages[i].Content}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}
	return data, nil
}

// Restore replaces the context state with a snapshot.
func (c *ConversationContext) Restore(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to unmarshal context: %w", err)
	}

	messages := make([]llm.Message, 0, len(s.Messages))
	for i := range s.Messages {
		role := llm.Role(s.Messages[i].Role)
		switch role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return fmt.Errorf("snapshot message %d has unknown role %q", i, s.Messages[i].Role)
		}
		messages = append(messages, llm.Message{Role: role, Content: s.Messages[i].Content})
	}

	c.pending = s.PendingPrompt
	c.messages = messages
	return nil
}
