// Package timeout bounds each completion call with its own deadline.
package timeout

import (
	"context"
	"errors"
	"time"

	"tarotbot/pkg/llm"
	"tarotbot/pkg/llmerrors"
)

// Middleware returns a middleware function that gives every request its own deadline.
// A deadline hit while the caller's context is still alive is reported as a retryable
// timeout, so it must sit inside the retry middleware.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.Request) (llm.Response, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				resp, err := next.Complete(timeoutCtx, req)
				if err != nil && ctx.Err() == nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && !llmerrors.IsTransport(err) {
					return llm.Response{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTimeout, err, "request exceeded "+duration.String())
				}
				return resp, err
			},
			next.ModelName,
		)
	}
}
