package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"castmon/internal/api"
	"castmon/internal/config"
	"castmon/internal/farcaster"
	"castmon/internal/llm"
	"castmon/internal/monitor"
	"castmon/internal/rules"
	"castmon/internal/storage"
	"castmon/internal/webhook"
)

func main() {
	addr := flag.String("addr", ":5000", "listen address")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	completer := llm.NewOpenRouter(cfg.OpenRouterAPIKey)
	completer.SiteURL = cfg.SiteURL
	completer.SiteName = cfg.SiteName

	var notifier monitor.Notifier
	if cfg.WebhookURL != "" {
		wh := webhook.New(cfg.WebhookURL, log)
		defer wh.Close()
		notifier = wh
	}

	mon := monitor.New(
		rules.NewEngine(log),
		store,
		farcaster.New(cfg.NeynarAPIKey),
		completer,
		rules.Options{
			Model:            cfg.Model,
			Fallbacks:        cfg.FallbackModels,
			AttemptsPerModel: cfg.AttemptsPerModel,
			RetryDelays:      cfg.RetryDelays,
			Timeout:          cfg.RequestTimeout,
		},
		notifier,
		log,
	)

	srv := api.New(mon, store, cfg.MonitorDays, log)

	log.Info("starting API server", "addr", *addr)
	if err := srv.Start(*addr); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
