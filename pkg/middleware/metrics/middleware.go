package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"tarotbot/pkg/llm"
	"tarotbot/pkg/llmerrors"
	"tarotbot/pkg/logx"
	"tarotbot/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.Request, resp llm.Response) (promptTokens, completionTokens int)

// DefaultUsageExtractor trusts the provider's usage block and counts with tiktoken when it is missing.
//
//nolint:gocritic // Request is passed by value to match the middleware signature
func DefaultUsageExtractor(req llm.Request, resp llm.Response) (promptTokens, completionTokens int) {
	if resp.PromptTokens > 0 || resp.CompletionTokens > 0 {
		return resp.PromptTokens, resp.CompletionTokens
	}

	var prompt strings.Builder
	for i := range req.Messages {
		prompt.WriteString(req.Messages[i].Content)
		prompt.WriteString("\n")
	}
	return utils.CountTokensSimple(prompt.String()), utils.CountTokensSimple(resp.Content)
}

// Middleware returns a middleware function that records metrics for completion calls.
// It tracks latency, token usage and success/failure per stage.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}
	if recorder == nil {
		recorder = Nop()
	}

	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.Request) (llm.Response, error) {
				start := time.Now()
				model := req.Model
				if model == "" {
					model = next.ModelName()
				}
				stage := llm.StageFrom(ctx)

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				recorder.ObserveRequest(model, stage, promptTokens, completionTokens, err == nil, errorType(err), duration)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Info("model=%s stage=%s tokens=%d+%d status=%s duration=%dms",
						model, stage, promptTokens, completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.ModelName,
		)
	}
}

// errorType labels an error for metrics.
func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, llmerrors.ErrInvalidArgument):
		return "invalid_argument"
	case llmerrors.IsTransport(err):
		return llmerrors.TypeOf(err).String()
	default:
		return "unknown"
	}
}
