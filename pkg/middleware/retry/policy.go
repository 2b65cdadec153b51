// Package retry provides bounded exponential backoff for completion-endpoint calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"tarotbot/pkg/llmerrors"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           `json:"max_attempts"`   // Maximum number of attempts (including initial)
	InitialDelay  time.Duration `json:"initial_delay"`  // Lower bound of every backoff
	MaxDelay      time.Duration `json:"max_delay"`      // Upper bound of every backoff
	BackoffFactor float64       `json:"backoff_factor"` // Multiplier for exponential backoff
	Jitter        bool          `json:"jitter"`         // Draw each delay uniformly below the exponential ceiling
}

// DefaultConfig gives 5 attempts with random exponential waits between 1s and 300s.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   5,
	InitialDelay:  1 * time.Second,
	MaxDelay:      300 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry retries only classified transport failures that can heal on their own:
// rate limits, 5xx, network errors, timeouts and empty responses.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// Precondition violations never heal.
	if errors.Is(err, llmerrors.ErrInvalidArgument) {
		return false
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}

	// Unclassified errors, including the caller's own cancellation, are returned as-is.
	return false
}

// Policy encapsulates retry configuration and logic.
type Policy struct {
	Config     Config
	Classifier Classifier
	// random returns a value in [0, 1). Replaced in tests.
	random func() float64
}

// NewPolicy creates a new retry policy with the given configuration and classifier.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 1
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
		random:     rand.Float64,
	}
}

// CalculateDelay computes the wait before the given attempt number (attempt 1 never waits).
// The ceiling grows as InitialDelay*BackoffFactor^(attempt-2), capped at MaxDelay. With
// jitter the delay is drawn uniformly from [InitialDelay, ceiling].
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	ceiling := float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2))
	if ceiling > float64(p.Config.MaxDelay) {
		ceiling = float64(p.Config.MaxDelay)
	}

	if !p.Config.Jitter {
		return time.Duration(ceiling)
	}

	floor := float64(p.Config.InitialDelay)
	if ceiling <= floor {
		return time.Duration(floor)
	}
	return time.Duration(floor + p.random()*(ceiling-floor))
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return p.Classifier(err)
}
