package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tarotbot/pkg/config"
	"tarotbot/pkg/deck"
	"tarotbot/pkg/dialogue"
	"tarotbot/pkg/httpserver"
	"tarotbot/pkg/imaging"
	"tarotbot/pkg/llm"
	"tarotbot/pkg/llm/openrouter"
	"tarotbot/pkg/logx"
	"tarotbot/pkg/middleware/metrics"
	"tarotbot/pkg/middleware/retry"
	"tarotbot/pkg/middleware/timeout"
	"tarotbot/pkg/persistence"
	"tarotbot/pkg/prompts"
	"tarotbot/pkg/readinglog"
	"tarotbot/pkg/session"
	"tarotbot/pkg/spreads"
	"tarotbot/pkg/telegram"
)

const shutdownTimeout = 10 * time.Second

// app holds the wired components of a running bot.
type app struct {
	bot      *dialogue.Bot
	users    *persistence.Store
	readings *readinglog.Store
}

func (a *app) Close() error {
	return a.users.Close()
}

func defaultLogDir(cfg *config.Config) string {
	return filepath.Join(cfg.Storage.DataDir, "logs")
}

// serve connects to Telegram and polls until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := logx.NewLogger("main")

	tg, err := telegram.Connect(cfg.Telegram.Token, cfg.Telegram.PollTimeoutSeconds)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, tg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Failed to close user store: %v", err)
		}
	}()

	if cfg.HTTP.Enabled() {
		srv := httpserver.New(cfg.HTTP.Addr, a.readings, prometheus.DefaultGatherer)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP shutdown: %v", err)
			}
		}()
	}

	logger.Info("🚀 Bot is running with the %s strategy on %s", cfg.LLM.Strategy, cfg.LLM.Model)
	if err := tg.Run(ctx, a.bot); err != nil {
		return err
	}
	logger.Info("🛑 Shutdown requested, in-flight chats finished")
	return nil
}

// newApp builds every component behind the chat transport. reg receives the
// completion and reading metrics.
func newApp(cfg *config.Config, sender dialogue.Sender, reg prometheus.Registerer) (*app, error) {
	logger := logx.NewLogger("main")

	cards, catalog, err := loadAssets(cfg.Assets)
	if err != nil {
		return nil, err
	}
	provider, err := prompts.NewProvider(catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Database), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	users, err := persistence.Open(cfg.Storage.Database)
	if err != nil {
		return nil, err
	}

	readings, err := readinglog.NewStore(cfg.Storage.LogsDir)
	if err != nil {
		_ = users.Close()
		return nil, err
	}
	if removed, err := readings.Cleanup(cfg.Storage.Retention()); err != nil {
		logger.Warn("Reading log cleanup failed: %v", err)
	} else if removed > 0 {
		logger.Info("🧹 Removed %d reading logs older than %d days", removed, cfg.Storage.LogRetentionDays)
	}

	recorder := metrics.NewPrometheusRecorderWith(reg)
	bot, err := dialogue.New(dialogue.Config{
		Catalog:  catalog,
		Deck:     cards,
		Prompts:  provider,
		Client:   buildClient(cfg.LLM, recorder),
		Sender:   sender,
		Users:    users,
		Readings: readings,
		Renderer: imaging.NewRenderer(os.DirFS(cfg.Assets.BackgroundsDir), os.DirFS(cfg.Assets.CardsDir)),
		Observer: recorder,
		Generation: session.Options{
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		},
		Strategy:         cfg.LLM.Strategy,
		InitialCredits:   cfg.Credits.Initial,
		CreditsEnabled:   cfg.Credits.IsEnabled(),
		MaxMessageLength: cfg.Telegram.MaxMessageLength,
		MaxCaptionLength: cfg.Telegram.MaxCaptionLength,
	})
	if err != nil {
		_ = users.Close()
		return nil, err
	}
	return &app{bot: bot, users: users, readings: readings}, nil
}

// loadAssets returns the embedded deck and spreads unless external files are configured.
func loadAssets(a config.AssetsConfig) (*deck.Deck, *spreads.Catalog, error) {
	var (
		cards   *deck.Deck
		catalog *spreads.Catalog
		err     error
	)
	if a.Catalog != "" {
		cards, err = deck.LoadFile(a.Catalog)
	} else {
		cards, err = deck.Default()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load card catalog: %w", err)
	}

	if a.Spreads != "" {
		catalog, err = spreads.LoadFile(a.Spreads)
	} else {
		catalog, err = spreads.Default()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load spreads: %w", err)
	}
	return cards, catalog, nil
}

// buildClient assembles the completion client. Every attempt is timed out and
// recorded separately; the retry layer sits outermost.
func buildClient(c config.LLMConfig, recorder metrics.Recorder) llm.Client {
	base := openrouter.New(openrouter.Options{
		BaseURL: c.BaseURL,
		APIKey:  c.APIKey,
		Model:   c.Model,
		Referer: c.Referer,
		Title:   c.Title,
		Timeout: c.Timeout(),
	})

	policy := retry.NewPolicy(retry.Config{
		MaxAttempts:   c.MaxAttempts,
		InitialDelay:  c.MinBackoff(),
		MaxDelay:      c.MaxBackoff(),
		BackoffFactor: retry.DefaultConfig.BackoffFactor,
		Jitter:        true,
	}, nil)

	return llm.Chain(base,
		retry.Middleware(policy),
		metrics.Middleware(recorder, metrics.DefaultUsageExtractor, logx.NewLogger("llm-metrics")),
		timeout.Middleware(c.Timeout()),
	)
}
