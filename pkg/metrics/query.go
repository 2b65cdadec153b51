// Package metrics provides services for querying and aggregating metrics data.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	recorder "tarotbot/pkg/middleware/metrics"
)

// Usage is the aggregated completion and reading activity over a time window.
type Usage struct {
	RequestsByStatus  map[string]int64 `json:"requests_by_status"`
	ReadingsByOutcome map[string]int64 `json:"readings_by_outcome"`
	TokensByModel     map[string]int64 `json:"tokens_by_model"`
	Window            time.Duration    `json:"window"`
	PromptTokens      int64            `json:"prompt_tokens"`
	CompletionTokens  int64            `json:"completion_tokens"`
	TotalTokens       int64            `json:"total_tokens"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
	now      func() time.Time
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
		now:      time.Now,
	}, nil
}

// Usage sums the bot's counters over the trailing window.
func (q *QueryService) Usage(ctx context.Context, window time.Duration) (*Usage, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	rng := model.Duration(window).String()

	usage := &Usage{
		Window:            window,
		RequestsByStatus:  map[string]int64{},
		ReadingsByOutcome: map[string]int64{},
		TokensByModel:     map[string]int64{},
	}

	tokens, err := q.vector(ctx, fmt.Sprintf(`sum by (direction) (increase(%s[%s]))`, recorder.TokensTotal, rng))
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	for _, sample := range tokens {
		switch sample.Metric["direction"] {
		case "prompt":
			usage.PromptTokens = int64(sample.Value)
		case "completion":
			usage.CompletionTokens = int64(sample.Value)
		}
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	byModel, err := q.vector(ctx, fmt.Sprintf(`sum by (model) (increase(%s[%s]))`, recorder.TokensTotal, rng))
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens by model: %w", err)
	}
	collect(byModel, "model", usage.TokensByModel)

	requests, err := q.vector(ctx, fmt.Sprintf(`sum by (status) (increase(%s[%s]))`, recorder.RequestsTotal, rng))
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	collect(requests, "status", usage.RequestsByStatus)

	readings, err := q.vector(ctx, fmt.Sprintf(`sum by (outcome) (increase(%s[%s]))`, recorder.ReadingsTotal, rng))
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	collect(readings, "outcome", usage.ReadingsByOutcome)

	return usage, nil
}

func (q *QueryService) vector(ctx context.Context, query string) (model.Vector, error) {
	result, _, err := q.queryAPI.Query(ctx, query, q.now())
	if err != nil {
		return nil, err //nolint:wrapcheck // Callers add the query context
	}
	if vector, ok := result.(model.Vector); ok {
		return vector, nil
	}
	return nil, nil
}

func collect(vector model.Vector, label model.LabelName, into map[string]int64) {
	for _, sample := range vector {
		if name, ok := sample.Metric[label]; ok {
			into[string(name)] = int64(sample.Value)
		}
	}
}
