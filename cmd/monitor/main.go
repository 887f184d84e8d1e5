package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"castmon/internal/config"
	"castmon/internal/farcaster"
	"castmon/internal/llm"
	"castmon/internal/monitor"
	"castmon/internal/rules"
	"castmon/internal/storage"
	"castmon/internal/webhook"
)

type usersFile struct {
	Users []monitor.UserConfig `json:"users"`
}

func main() {
	usersPath := flag.String("users", "users.json", "path to user rules configuration")
	interval := flag.Duration("interval", 0, "monitoring interval (0 runs a single pass)")
	days := flag.Int("days", 0, "lookback window in days (0 uses MONITOR_DAYS)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	users, err := loadUsers(*usersPath)
	if err != nil {
		log.Error("load users file", "path", *usersPath, "error", err)
		os.Exit(1)
	}

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

	if err := mon.Configure(users.Users); err != nil {
		log.Error("configure users", "error", err)
		os.Exit(1)
	}

	lookback := *days
	if lookback <= 0 {
		lookback = cfg.MonitorDays
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *interval > 0 {
		log.Info("starting monitor loop", "interval", *interval, "days", lookback)
		mon.Run(ctx, *interval, lookback)
		log.Info("monitor stopped")
		return
	}

	results := mon.MonitorAllUsers(ctx, lookback)
	total := 0
	for userID, count := range results {
		log.Info("user summary", "user_id", userID, "violations", count)
		total += count
	}
	log.Info("monitoring pass complete", "users", len(results), "total_violations", total)
}

func loadUsers(path string) (*usersFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, err
	}
	var users usersFile
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, err
	}
	return &users, nil
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
