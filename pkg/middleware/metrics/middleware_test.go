package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarotbot/pkg/llm"
	"tarotbot/pkg/llmerrors"
)

type fakeRecorder struct {
	model, stage, errorType string
	prompt, completion      int
	success                 bool
	calls                   int
}

func (f *fakeRecorder) ObserveRequest(model, stage string, promptTokens, completionTokens int, success bool, errorType string, _ time.Duration) {
	f.calls++
	f.model, f.stage, f.errorType = model, stage, errorType
	f.prompt, f.completion, f.success = promptTokens, completionTokens, success
}

func (f *fakeRecorder) ObserveReading(_, _ string) {}

func stubClient(resp llm.Response, err error) llm.Client {
	return llm.WrapClient(
		func(_ context.Context, _ llm.Request) (llm.Response, error) { return resp, err },
		func() string { return "anthropic/claude-3.5-sonnet" },
	)
}

func TestMiddlewareRecordsSuccess(t *testing.T) {
	rec := &fakeRecorder{}
	client := Middleware(rec, nil, nil)(stubClient(llm.Response{Content: "ok", PromptTokens: 120, CompletionTokens: 30}, nil))

	ctx := llm.WithStage(context.Background(), "synthesis")
	_, err := client.Complete(ctx, llm.NewRequest([]llm.Message{llm.NewUserMessage("hi")}))
	require.NoError(t, err)

	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", rec.model)
	assert.Equal(t, "synthesis", rec.stage)
	assert.True(t, rec.success)
	assert.Equal(t, 120, rec.prompt)
	assert.Equal(t, 30, rec.completion)
	assert.Empty(t, rec.errorType)
}

func TestMiddlewareRecordsFailure(t *testing.T) {
	rec := &fakeRecorder{}
	failure := llmerrors.NewServiceUnavailableError(llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, 429, ""), 5)
	client := Middleware(rec, nil, nil)(stubClient(llm.Response{}, failure))

	req := llm.NewRequest([]llm.Message{llm.NewUserMessage("hi")})
	req.Model = "openai/gpt-4o"
	_, err := client.Complete(context.Background(), req)
	assert.ErrorIs(t, err, failure)

	assert.False(t, rec.success)
	assert.Equal(t, "openai/gpt-4o", rec.model)
	assert.Equal(t, "unknown", rec.stage)
	assert.Equal(t, "rate_limit", rec.errorType)
	assert.Zero(t, rec.prompt)
}

func TestDefaultUsageExtractorCountsWhenProviderIsSilent(t *testing.T) {
	req := llm.NewRequest([]llm.Message{llm.NewUserMessage("Hello world")})
	prompt, completion := DefaultUsageExtractor(req, llm.Response{Content: "Hello"})
	assert.Positive(t, prompt)
	assert.Positive(t, completion)
}

func TestErrorTypeLabels(t *testing.T) {
	assert.Equal(t, "", errorType(nil))
	assert.Equal(t, "canceled", errorType(context.Canceled))
	assert.Equal(t, "invalid_argument", errorType(llmerrors.InvalidArgument("x")))
	assert.Equal(t, "quota", errorType(llmerrors.NewError(llmerrors.ErrorTypeQuota, "")))
	assert.Equal(t, "unknown", errorType(errors.New("boom")))
}

func TestPrometheusRecorder(t *testing.T) {
	rec := NewPrometheusRecorderWith(prometheus.NewRegistry())

	rec.ObserveRequest("m/x", "cards", 10, 4, true, "", time.Second)
	rec.ObserveRequest("m/x", "cards", 99, 99, false, "timeout", time.Second)
	rec.ObserveReading("three_cards", "completed")
	rec.ObserveReading("three_cards", "completed")

	assert.InDelta(t, 1, testutil.ToFloat64(rec.requestsTotal.WithLabelValues("m/x", "cards", "success", "")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(rec.requestsTotal.WithLabelValues("m/x", "cards", "error", "timeout")), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(rec.tokensTotal.WithLabelValues("m/x", "prompt")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(rec.tokensTotal.WithLabelValues("m/x", "completion")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(rec.readingsTotal.WithLabelValues("three_cards", "completed")), 0)
}
