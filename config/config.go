// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// HTTP
	HTTPAddr   string
	CORSOrigin string

	// Twitch app credentials
	TwitchClientID     string
	TwitchClientSecret string
	TwitchRedirectURI  string
	TwitchScopes       string

	// Seed credentials, written into settings at boot when present
	TwitchAccessToken  string
	TwitchRefreshToken string
	DiscordWebhookURL  string

	// Database. Empty means the in-memory store.
	DBDsn string

	// Token-at-rest encryption key (base64, 32 bytes). Empty disables.
	TokenEncKey string

	// Farming
	FarmAutoStart      bool
	StatusPollInterval time.Duration

	// Schedules
	DailySummaryCron     string
	PendingFlushInterval time.Duration
}

// Load reads environment variables and applies defaults. Missing Twitch
// credentials don't fail loading; farming simply refuses to start until
// settings carry a token.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	cfg.CORSOrigin = os.Getenv("CORS_ORIGIN")

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchRedirectURI = os.Getenv("TWITCH_REDIRECT_URI")
	cfg.TwitchScopes = os.Getenv("TWITCH_SCOPES")
	if cfg.TwitchScopes == "" {
		// Reading live status and redeeming points needs no elevated scopes.
		cfg.TwitchScopes = "user:read:email"
	}

	cfg.TwitchAccessToken = os.Getenv("TWITCH_ACCESS_TOKEN")
	cfg.TwitchRefreshToken = os.Getenv("TWITCH_REFRESH_TOKEN")
	cfg.DiscordWebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")

	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.TokenEncKey = os.Getenv("TOKEN_ENC_KEY")

	cfg.FarmAutoStart = boolEnv("FARM_AUTO_START", false)

	var err error
	cfg.StatusPollInterval, err = durationEnv("STATUS_POLL_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.PendingFlushInterval, err = durationEnv("PENDING_FLUSH_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg.DailySummaryCron = os.Getenv("DAILY_SUMMARY_CRON")
	if cfg.DailySummaryCron == "" {
		cfg.DailySummaryCron = "0 9 * * *"
	}

	return cfg, nil
}

// ValidateOAuthReady checks required fields for the browser OAuth flow.
func (c *Config) ValidateOAuthReady() error {
	if c.TwitchClientID == "" || c.TwitchClientSecret == "" || c.TwitchRedirectURI == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET, TWITCH_REDIRECT_URI")
	}
	return nil
}

func boolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (duration): %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
