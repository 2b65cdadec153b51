package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tarotbot/pkg/llm"
	"tarotbot/pkg/llmerrors"
)

// =============================================================================
// ShouldRetry classifier tests
// =============================================================================

func TestShouldRetry_NilError(t *testing.T) {
	if ShouldRetry(nil) {
		t.Error("Expected false for nil error")
	}
}

func TestShouldRetry_ContextCanceled(t *testing.T) {
	if ShouldRetry(fmt.Errorf("reading aborted: %w", context.Canceled)) {
		t.Error("Expected false for wrapped context.Canceled")
	}
}

func TestShouldRetry_InvalidArgument(t *testing.T) {
	if ShouldRetry(llmerrors.InvalidArgument("empty model")) {
		t.Error("Expected false for invalid argument")
	}
}

func TestShouldRetry_PlainError(t *testing.T) {
	if ShouldRetry(errors.New("something odd")) {
		t.Error("Expected false for unclassified error")
	}
}

func TestShouldRetry_RetryableTypes(t *testing.T) {
	for _, et := range []llmerrors.ErrorType{
		llmerrors.ErrorTypeRateLimit,
		llmerrors.ErrorTypeTransient,
		llmerrors.ErrorTypeTimeout,
		llmerrors.ErrorTypeEmptyResponse,
	} {
		if !ShouldRetry(llmerrors.NewError(et, "x")) {
			t.Errorf("Expected true for %s", et)
		}
	}
}

func TestShouldRetry_FinalTypes(t *testing.T) {
	for _, et := range []llmerrors.ErrorType{
		llmerrors.ErrorTypeQuota,
		llmerrors.ErrorTypeAuth,
		llmerrors.ErrorTypeBadPrompt,
		llmerrors.ErrorTypeServiceUnavailable,
	} {
		if ShouldRetry(llmerrors.NewError(et, "x")) {
			t.Errorf("Expected false for %s", et)
		}
	}
}

func TestShouldRetry_WrappedTransport(t *testing.T) {
	err := fmt.Errorf("stage cards: %w", llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, 502, ""))
	if !ShouldRetry(err) {
		t.Error("Expected true for wrapped 502")
	}
}

// =============================================================================
// Delay calculation tests
// =============================================================================

func TestCalculateDelay_FirstAttempt(t *testing.T) {
	p := NewPolicy(DefaultConfig, nil)
	if d := p.CalculateDelay(1); d != 0 {
		t.Errorf("Expected no delay before the first attempt, got %v", d)
	}
}

func TestCalculateDelay_NoJitter(t *testing.T) {
	cfg := DefaultConfig
	cfg.Jitter = false
	p := NewPolicy(cfg, nil)

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if d := p.CalculateDelay(i + 2); d != w {
			t.Errorf("attempt %d: expected %v, got %v", i+2, w, d)
		}
	}
}

func TestCalculateDelay_CappedAtMax(t *testing.T) {
	cfg := DefaultConfig
	cfg.Jitter = false
	p := NewPolicy(cfg, nil)

	if d := p.CalculateDelay(20); d != cfg.MaxDelay {
		t.Errorf("Expected delay capped at %v, got %v", cfg.MaxDelay, d)
	}
}

func TestCalculateDelay_JitterBounds(t *testing.T) {
	p := NewPolicy(DefaultConfig, nil)

	p.random = func() float64 { return 0 }
	if d := p.CalculateDelay(4); d != time.Second {
		t.Errorf("Expected floor of 1s, got %v", d)
	}

	p.random = func() float64 { return 0.999999 }
	if d := p.CalculateDelay(4); d < 3900*time.Millisecond || d > 4*time.Second {
		t.Errorf("Expected delay just under 4s, got %v", d)
	}

	// Real randomness stays within [InitialDelay, MaxDelay].
	p = NewPolicy(DefaultConfig, nil)
	for attempt := 2; attempt <= 12; attempt++ {
		d := p.CalculateDelay(attempt)
		if d < DefaultConfig.InitialDelay || d > DefaultConfig.MaxDelay {
			t.Errorf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}

func TestNewPolicy_Normalizes(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 0, BackoffFactor: 0}, nil)
	if p.Config.MaxAttempts != 1 {
		t.Errorf("Expected at least one attempt, got %d", p.Config.MaxAttempts)
	}
	if p.Classifier == nil {
		t.Error("Expected default classifier")
	}
}

// =============================================================================
// Middleware tests
// =============================================================================

type scriptedClient struct {
	errs  []error
	calls int
}

func (s *scriptedClient) Complete(_ context.Context, _ llm.Request) (llm.Response, error) {
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return llm.Response{}, s.errs[s.calls-1]
	}
	return llm.Response{Content: "ok"}, nil
}

func (s *scriptedClient) ModelName() string { return "test/model" }

func fastPolicy(attempts int) *Policy {
	return NewPolicy(Config{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
		Jitter:        true,
	}, nil)
}

func TestMiddleware_RecoversAfterTransientFailures(t *testing.T) {
	base := &scriptedClient{errs: []error{
		llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, 429, ""),
		llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, 503, ""),
	}}
	client := Middleware(fastPolicy(5))(base)

	resp, err := client.Complete(context.Background(), llm.NewRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected 'ok', got %q", resp.Content)
	}
	if base.calls != 3 {
		t.Errorf("expected 3 calls, got %d", base.calls)
	}
	if client.ModelName() != "test/model" {
		t.Errorf("model name not delegated: %q", client.ModelName())
	}
}

func TestMiddleware_StopsOnFinalError(t *testing.T) {
	authErr := llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, 401, "bad key")
	base := &scriptedClient{errs: []error{authErr, nil}}
	client := Middleware(fastPolicy(5))(base)

	_, err := client.Complete(context.Background(), llm.NewRequest(nil))
	if !errors.Is(err, authErr) {
		t.Fatalf("expected auth error unchanged, got %v", err)
	}
	if base.calls != 1 {
		t.Errorf("expected a single call, got %d", base.calls)
	}
}

func TestMiddleware_ExhaustsAttempts(t *testing.T) {
	empty := llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no content")
	base := &scriptedClient{errs: []error{empty, empty, empty, empty, empty, empty}}
	client := Middleware(fastPolicy(5))(base)

	_, err := client.Complete(context.Background(), llm.NewRequest(nil))
	if !llmerrors.Is(err, llmerrors.ErrorTypeServiceUnavailable) {
		t.Fatalf("expected service unavailable, got %v", err)
	}
	if llmerrors.TypeOf(err) != llmerrors.ErrorTypeEmptyResponse {
		t.Errorf("expected root type empty_response, got %s", llmerrors.TypeOf(err))
	}
	if base.calls != 5 {
		t.Errorf("expected 5 calls, got %d", base.calls)
	}
}

func TestMiddleware_CancelledDuringBackoff(t *testing.T) {
	policy := NewPolicy(Config{
		MaxAttempts:   3,
		InitialDelay:  time.Hour,
		MaxDelay:      time.Hour,
		BackoffFactor: 2,
	}, nil)
	base := &scriptedClient{errs: []error{llmerrors.NewError(llmerrors.ErrorTypeTransient, "reset")}}
	client := Middleware(policy)(base)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.Complete(ctx, llm.NewRequest(nil))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if base.calls != 1 {
		t.Errorf("expected a single call before cancellation, got %d", base.calls)
	}
}
