// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts tokens for completion prompts and replies.
type TokenCounter struct {
	codec tokenizer.Codec
}

//nolint:gochecknoglobals // Shared codec, building one per call is slow
var (
	defaultCounter     *TokenCounter
	defaultCounterOnce sync.Once
)

// NewTokenCounter creates a new token counter for the specified model id.
// OpenRouter ids look like provider/model. OpenAI's o-series and gpt-4o use the
// o200k encoding; everything else, Claude included, is approximated with cl100k.
func NewTokenCounter(model string) (*TokenCounter, error) {
	name := model
	if _, after, ok := strings.Cut(model, "/"); ok {
		name = after
	}

	tikModel := tokenizer.GPT4
	switch {
	case strings.HasPrefix(name, "gpt-4o"), strings.HasPrefix(name, "o1"), strings.HasPrefix(name, "o3"):
		tikModel = tokenizer.GPT4o
	case strings.HasPrefix(name, "gpt-3.5"):
		tikModel = tokenizer.GPT35Turbo
	}

	codec, err := tokenizer.ForModel(tikModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}

	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}

	return count
}

// CountTokensSimple counts with a shared cl100k counter.
func CountTokensSimple(text string) int {
	defaultCounterOnce.Do(func() {
		counter, err := NewTokenCounter("gpt-4")
		if err == nil {
			defaultCounter = counter
		}
	})
	return defaultCounter.CountTokens(text)
}

// ValidateTokenLimit checks if text exceeds the specified token limit.
// Returns true if within limit, false if exceeds limit.
func (tc *TokenCounter) ValidateTokenLimit(text string, limit int) bool {
	return tc.CountTokens(text) <= limit
}
