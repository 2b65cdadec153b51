// Package llm provides the request/response types and client interface for chat-completion models.
package llm

import (
	"context"
	"fmt"
)

// Role represents the role of a message in a conversation.
type Role string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem Role = "system"
	// RoleUser indicates a message from the human user.
	RoleUser Role = "user"
	// RoleAssistant indicates a message from the model.
	RoleAssistant Role = "assistant"
)

const (
	// DefaultMaxTokens bounds the length of one stage reply.
	DefaultMaxTokens = 8000

	// TemperatureDefault keeps narratives varied without drifting off the card meanings.
	TemperatureDefault = 0.3
)

// Message represents one chat message sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Request represents a request to generate a completion.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Response represents a response from a completion request.
type Response struct {
	Content          string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Client defines the interface for language model interactions.
type Client interface {
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in Request) (Response, error)

	// ModelName returns the default model identifier of this client.
	ModelName() string
}

// NewRequest creates a new completion request with default generation parameters.
func NewRequest(messages []Message) Request {
	return Request{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Config holds generation settings shared by all stages of a reading.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Validate validates the LLM configuration.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if c.Model == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}

type stageKey struct{}

// WithStage tags ctx with the pipeline stage a call belongs to. Middlewares use it as a label.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey{}, stage)
}

// StageFrom returns the stage set by WithStage, or "unknown".
func StageFrom(ctx context.Context) string {
	if s, ok := ctx.Value(stageKey{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}
