package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"tarotbot/pkg/config"
	"tarotbot/pkg/metrics"
	"tarotbot/pkg/persistence"
	"tarotbot/pkg/readinglog"
)

const (
	usageWindow  = 24 * time.Hour
	queryTimeout = 15 * time.Second
)

// printStats writes reading-log and user statistics, plus model usage from
// Prometheus when metrics.prometheus_url is set.
func printStats(ctx context.Context, cfg *config.Config, out io.Writer) error {
	readings, err := readinglog.NewStore(cfg.Storage.LogsDir)
	if err != nil {
		return err
	}
	st, err := readings.Stats()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "📊 Readings: %d\n", st.Total)
	for _, status := range sortedKeys(st.ByStatus) {
		fmt.Fprintf(out, "  %-18s %d\n", status, st.ByStatus[status])
	}
	fmt.Fprintln(out, "📚 By spread:")
	for _, spread := range sortedKeys(st.BySpread) {
		fmt.Fprintf(out, "  %-18s %d\n", spread, st.BySpread[spread])
	}
	if st.Rated > 0 {
		fmt.Fprintf(out, "⭐ Average rating: %.2f (%d rated)\n", st.AverageRating, st.Rated)
	}

	if _, err := os.Stat(cfg.Storage.Database); err == nil {
		users, err := persistence.Open(cfg.Storage.Database)
		if err != nil {
			return err
		}
		defer func() { _ = users.Close() }()
		us, err := users.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "👥 Users: %d, readings: %d, unused credits: %d\n", us.Users, us.Readings, us.Credits)
	}

	if cfg.Metrics.PrometheusURL == "" {
		return nil
	}
	q, err := metrics.NewQueryService(cfg.Metrics.PrometheusURL)
	if err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	usage, err := q.Usage(queryCtx, usageWindow)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "🤖 Last %s: %d prompt + %d completion = %d tokens\n",
		usage.Window, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	for _, status := range sortedKeys(usage.RequestsByStatus) {
		fmt.Fprintf(out, "  requests %-9s %d\n", status, usage.RequestsByStatus[status])
	}
	for _, outcome := range sortedKeys(usage.ReadingsByOutcome) {
		fmt.Fprintf(out, "  readings %-9s %d\n", outcome, usage.ReadingsByOutcome[outcome])
	}
	return nil
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
