package retry

import (
	"context"
	"fmt"
	"time"

	"tarotbot/pkg/llm"
	"tarotbot/pkg/llmerrors"
	"tarotbot/pkg/logx"
)

// Middleware returns a middleware function that wraps a client with retry logic.
// Failed calls are retried according to the policy; the last error propagates once
// the attempts are spent.
func Middleware(policy *Policy) llm.Middleware {
	logger := logx.NewLogger("retry")

	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.Request) (llm.Response, error) {
				var lastErr error

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					// Wait for backoff delay (except on first attempt)
					if attempt > 1 {
						delay := policy.CalculateDelay(attempt)
						logger.Warn("stage %s attempt %d/%d after %v: %v",
							llm.StageFrom(ctx), attempt, policy.Config.MaxAttempts, delay.Round(time.Millisecond), lastErr)
						if delay > 0 {
							timer := time.NewTimer(delay)
							select {
							case <-ctx.Done():
								timer.Stop()
								return llm.Response{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
							case <-timer.C:
							}
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if !policy.ShouldRetry(ctx, err) {
						return llm.Response{}, err
					}
				}

				return llm.Response{}, llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
			},
			next.ModelName,
		)
	}
}
