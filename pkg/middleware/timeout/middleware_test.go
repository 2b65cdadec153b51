package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"tarotbot/pkg/llm"
	"tarotbot/pkg/llmerrors"
)

func slowClient(delay time.Duration) llm.Client {
	return llm.WrapClient(
		func(ctx context.Context, _ llm.Request) (llm.Response, error) {
			select {
			case <-time.After(delay):
				return llm.Response{Content: "late"}, nil
			case <-ctx.Done():
				return llm.Response{}, ctx.Err()
			}
		},
		func() string { return "slow" },
	)
}

func TestMiddleware_Deadline(t *testing.T) {
	client := Middleware(10 * time.Millisecond)(slowClient(time.Second))

	_, err := client.Complete(context.Background(), llm.NewRequest(nil))
	if !llmerrors.Is(err, llmerrors.ErrorTypeTimeout) {
		t.Fatalf("expected timeout transport error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected cause to be DeadlineExceeded, got %v", err)
	}
}

func TestMiddleware_FastCall(t *testing.T) {
	client := Middleware(time.Second)(slowClient(0))

	resp, err := client.Complete(context.Background(), llm.NewRequest(nil))
	if err != nil || resp.Content != "late" {
		t.Fatalf("unexpected result %q, %v", resp.Content, err)
	}
}

func TestMiddleware_ParentCancelled(t *testing.T) {
	client := Middleware(time.Second)(slowClient(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, llm.NewRequest(nil))
	if !errors.Is(err, context.Canceled) || llmerrors.IsTransport(err) {
		t.Fatalf("expected raw cancellation, got %v", err)
	}
}
