package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePrometheus answers instant queries by matching the grouping label in the query text.
func fakePrometheus(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/query", r.URL.Path)
		require.NoError(t, r.ParseForm())
		query := r.Form.Get("query")

		var samples string
		switch {
		case strings.Contains(query, "by (direction)"):
			samples = sample("direction", "prompt", "1200") + "," + sample("direction", "completion", "300")
		case strings.Contains(query, "by (model)"):
			samples = sample("model", "anthropic/claude-3.5-sonnet", "1500")
		case strings.Contains(query, "by (status)"):
			samples = sample("status", "success", "16") + "," + sample("status", "error", "2")
		case strings.Contains(query, "by (outcome)"):
			samples = sample("outcome", "completed", "4")
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":[%s]}}`, samples)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sample(label, value, v string) string {
	return fmt.Sprintf(`{"metric":{%q:%q},"value":[1700000000,%q]}`, label, value, v)
}

func TestUsage(t *testing.T) {
	srv := fakePrometheus(t)

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	usage, err := q.Usage(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)

	assert.EqualValues(t, 1200, usage.PromptTokens)
	assert.EqualValues(t, 300, usage.CompletionTokens)
	assert.EqualValues(t, 1500, usage.TotalTokens)
	assert.EqualValues(t, 1500, usage.TokensByModel["anthropic/claude-3.5-sonnet"])
	assert.EqualValues(t, 16, usage.RequestsByStatus["success"])
	assert.EqualValues(t, 2, usage.RequestsByStatus["error"])
	assert.EqualValues(t, 4, usage.ReadingsByOutcome["completed"])
}

func TestUsageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"error","errorType":"bad_data","error":"parse error"}`)
	}))
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	_, err = q.Usage(context.Background(), time.Hour)
	assert.ErrorContains(t, err, "failed to query tokens")
}
