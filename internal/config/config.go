// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultModel            = "nvidia/nemotron-nano-9b-v2:free"
	DefaultFallbackModels   = "openai/gpt-oss-20b:free"
	DefaultRequestTimeout   = 45 * time.Second
	DefaultAttemptsPerModel = 3
	DefaultMonitorDays      = 7
	DefaultDatabasePath     = "./data/violations.db"
)

// Config holds the application configuration.
type Config struct {
	OpenRouterAPIKey string
	NeynarAPIKey     string

	Model            string
	FallbackModels   []string
	RequestTimeout   time.Duration
	AttemptsPerModel int
	RetryDelays      []time.Duration

	DatabasePath string
	WebhookURL   string
	MonitorDays  int
	LogLevel     string
	SiteURL      string
	SiteName     string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	openRouterKey := os.Getenv("OPENROUTER_API_KEY")
	if openRouterKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required")
	}

	neynarKey := os.Getenv("NEYNAR_API_KEY")
	if neynarKey == "" {
		return nil, fmt.Errorf("NEYNAR_API_KEY is required")
	}

	model := os.Getenv("DEFAULT_MODEL")
	if model == "" {
		model = DefaultModel
	}

	fallbackRaw := os.Getenv("FALLBACK_MODELS")
	if fallbackRaw == "" {
		fallbackRaw = DefaultFallbackModels
	}
	var fallbacks []string
	for _, m := range strings.Split(fallbackRaw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			fallbacks = append(fallbacks, m)
		}
	}

	timeout, err := secondsEnv("LLM_REQUEST_TIMEOUT_S", DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	attempts := DefaultAttemptsPerModel
	if raw := os.Getenv("LLM_ATTEMPTS_PER_MODEL"); raw != "" {
		attempts, err = strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || attempts < 1 {
			return nil, fmt.Errorf("invalid LLM_ATTEMPTS_PER_MODEL %q", raw)
		}
	}

	delays := []time.Duration{15 * time.Second, 20 * time.Second}
	if raw := os.Getenv("LLM_RETRY_DELAYS_S"); raw != "" {
		delays = delays[:0]
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			secs, err := strconv.ParseFloat(s, 64)
			if err != nil || secs < 0 {
				return nil, fmt.Errorf("invalid delay %q in LLM_RETRY_DELAYS_S", s)
			}
			delays = append(delays, time.Duration(secs*float64(time.Second)))
		}
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = DefaultDatabasePath
	}

	days := DefaultMonitorDays
	if raw := os.Getenv("MONITOR_DAYS"); raw != "" {
		days, err = strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || days < 1 {
			return nil, fmt.Errorf("invalid MONITOR_DAYS %q", raw)
		}
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		OpenRouterAPIKey: openRouterKey,
		NeynarAPIKey:     neynarKey,
		Model:            model,
		FallbackModels:   fallbacks,
		RequestTimeout:   timeout,
		AttemptsPerModel: attempts,
		RetryDelays:      delays,
		DatabasePath:     dbPath,
		WebhookURL:       os.Getenv("BACKEND_WEBHOOK_URL"),
		MonitorDays:      days,
		LogLevel:         logLevel,
		SiteURL:          os.Getenv("SITE_URL"),
		SiteName:         os.Getenv("SITE_NAME"),
	}, nil
}

func secondsEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
