// Package openrouter implements llm.Client over the OpenAI-compatible chat completions
// endpoint served by OpenRouter, using the official OpenAI Go package.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"tarotbot/pkg/llm"
	"tarotbot/pkg/llmerrors"
	"tarotbot/pkg/logx"
)

const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultModel is used when the configuration names none.
	DefaultModel = "anthropic/claude-3.5-sonnet"
	// DefaultTimeout bounds one HTTP round trip.
	DefaultTimeout = 300 * time.Second
)

// Options configures a Client. Zero fields take the package defaults.
type Options struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Model      string
	Referer    string // sent as HTTP-Referer, used by OpenRouter for app attribution
	Title      string // sent as X-Title
	Timeout    time.Duration
}

// Client is a raw completion client. Retries and metrics are applied by middleware.
//
//nolint:govet // Simple struct, field alignment not critical
type Client struct {
	client openai.Client
	model  string
	apiKey string
	logger *logx.Logger
}

// New creates a Client. The SDK's built-in retries are disabled.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	reqOpts := []option.RequestOption{
		option.WithBaseURL(opts.BaseURL),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(opts.Timeout),
	}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Referer != "" {
		reqOpts = append(reqOpts, option.WithHeader("HTTP-Referer", opts.Referer))
	}
	if opts.Title != "" {
		reqOpts = append(reqOpts, option.WithHeader("X-Title", opts.Title))
	}

	return &Client{
		client: openai.NewClient(reqOpts...),
		model:  opts.Model,
		apiKey: opts.APIKey,
		logger: logx.NewLogger("openrouter"),
	}
}

// ModelName returns the default model identifier.
func (c *Client) ModelName() string {
	return c.model
}

// Complete sends the request with the client's credentials. An empty Request.Model
// falls back to the client's default model.
//
//nolint:gocritic // Request is passed by value to match the llm.Client interface
func (c *Client) Complete(ctx context.Context, in llm.Request) (llm.Response, error) {
	if in.Model == "" {
		in.Model = c.model
	}
	return c.complete(ctx, in, c.apiKey)
}

// Send posts history to the completion endpoint and returns the first choice's content.
// The key given here overrides the one the client was built with.
func (c *Client) Send(ctx context.Context, history []llm.Message, model, apiKey string, maxTokens int, temperature float64) (string, error) {
	resp, err := c.complete(ctx, llm.Request{
		Model:       model,
		Messages:    history,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}, apiKey)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

//nolint:gocritic // Request is small enough to copy
func (c *Client) complete(ctx context.Context, in llm.Request, apiKey string) (llm.Response, error) {
	if err := validate(in, apiKey); err != nil {
		return llm.Response{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(in.Model),
		Messages: convertMessages(in.Messages),
	}
	if in.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(in.MaxTokens))
	}
	params.Temperature = openai.Float(in.Temperature)

	if logx.IsDebugEnabledForDomain("llm") {
		last := in.Messages[len(in.Messages)-1]
		logx.Debug(ctx, "llm", "stage %s: %d messages to %s, last %s: %s",
			llm.StageFrom(ctx), len(in.Messages), in.Model, last.Role, llmerrors.SanitizePrompt(last.Content, 400))
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params, option.WithAPIKey(apiKey))
	if err != nil {
		// The caller gave up; this is not a transport failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return llm.Response{}, fmt.Errorf("completion aborted: %w", ctxErr)
		}
		classified := classify(err)
		c.logger.Warn("stage %s failed after %v: %v", llm.StageFrom(ctx), time.Since(start).Round(time.Millisecond), classified)
		return llm.Response{}, classified
	}

	if len(resp.Choices) == 0 {
		return llm.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "response has no choices")
	}
	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Message.Content) == "" {
		return llm.Response{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse,
			fmt.Sprintf("blank content (finish reason %q)", choice.FinishReason))
	}

	return llm.Response{
		Content:          choice.Message.Content,
		Model:            resp.Model,
		FinishReason:     choice.FinishReason,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// validate rejects requests that can never succeed before any I/O happens.
//
//nolint:gocritic // Request is small enough to copy
func validate(in llm.Request, apiKey string) error {
	if len(in.Messages) == 0 {
		return llmerrors.InvalidArgument("empty message history")
	}
	if strings.TrimSpace(apiKey) == "" {
		return llmerrors.InvalidArgument("missing API key")
	}
	model := strings.TrimSpace(in.Model)
	if model == "" {
		return llmerrors.InvalidArgument("empty model id")
	}
	provider, name, ok := strings.Cut(model, "/")
	if !ok || provider == "" || name == "" {
		return llmerrors.InvalidArgument("model id %q must look like provider/model", model)
	}
	return nil
}

func convertMessages(msgs []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for i := range msgs {
		switch msgs[i].Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(msgs[i].Content))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(msgs[i].Content))
		default:
			out = append(out, openai.UserMessage(msgs[i].Content))
		}
	}
	return out
}

// classify turns an SDK failure into a *llmerrors.Error.
func classify(err error) *llmerrors.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		body := apiErr.RawJSON()
		if body == "" {
			body = apiErr.Message
		}
		if body == "" {
			body = apiErr.Error()
		}
		return llmerrors.NewErrorWithStatus(llmerrors.TypeForStatus(apiErr.StatusCode), apiErr.StatusCode, body)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTimeout, err, "request timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTimeout, err, "request timed out")
	}
	if strings.Contains(err.Error(), "json") {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "malformed response body")
	}
	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request failed")
}
