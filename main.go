// Command point-farmer is the main entrypoint for the farming API and
// background workers. It:
//   - Loads configuration and initializes structured logging.
//   - Opens the store (Postgres when DB_DSN is set, in-memory otherwise)
//     and runs idempotent migrations.
//   - Seeds settings from environment credentials when present.
//   - Optionally auto-starts the farming loops (FARM_AUTO_START=1).
//   - Schedules the daily summary webhook and the pending-webhook flush.
//   - Exposes the HTTP API with /healthz, /readyz, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/onnwee/point-farmer/config"
	"github.com/onnwee/point-farmer/crypto"
	"github.com/onnwee/point-farmer/discord"
	"github.com/onnwee/point-farmer/farm"
	"github.com/onnwee/point-farmer/server"
	"github.com/onnwee/point-farmer/store"
	"github.com/onnwee/point-farmer/telemetry"
	"github.com/onnwee/point-farmer/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("point-farmer", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Store: Postgres when DB_DSN is set, in-memory otherwise.
	st, closeStore, err := openStore(cfg)
	if err != nil {
		slog.Error("failed to open store", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeStore()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seedSettings(ctx, st, cfg)

	dispatcher := &discord.Dispatcher{Store: st}
	twitchClient := &twitchapi.Client{ClientID: cfg.TwitchClientID}
	controller := farm.NewController(st, twitchClient, dispatcher, farm.Options{
		TwitchClientSecret: cfg.TwitchClientSecret,
		StatusInterval:     cfg.StatusPollInterval,
	})

	// Auto-start farming when requested. A missing token is not fatal; the
	// loops can be started later over the API once credentials exist.
	if cfg.FarmAutoStart {
		if err := controller.Start(ctx); err != nil {
			slog.Warn("farming auto-start skipped", slog.Any("err", err))
		}
	}

	// Scheduled jobs: daily summary report and pending-webhook flush.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.DailySummaryCron, func() {
		if dispatcher.SendDailySummary(ctx) {
			slog.Info("daily summary sent", slog.String("component", "cron"))
		}
	}); err != nil {
		slog.Error("invalid DAILY_SUMMARY_CRON", slog.Any("err", err))
		os.Exit(1)
	}
	if _, err := scheduler.AddFunc("@every "+cfg.PendingFlushInterval.String(), func() {
		if sent := dispatcher.SendPending(ctx); sent > 0 {
			slog.Info("pending webhooks flushed", slog.Int("sent", sent), slog.String("component", "cron"))
		}
	}); err != nil {
		slog.Error("invalid pending flush schedule", slog.Any("err", err))
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server
	handlers := server.NewHandlers(ctx, st, controller, dispatcher, cfg)
	go func() {
		if err := server.Start(ctx, handlers, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	controller.Stop()
	slog.Info("shutting down")
}

// openStore selects and initializes the store backend.
func openStore(cfg *config.Config) (store.Store, func(), error) {
	if cfg.DBDsn == "" {
		slog.Info("using in-memory store (set DB_DSN for Postgres)")
		return store.NewMemStore(), func() {}, nil
	}

	pg, err := store.Open(cfg.DBDsn)
	if err != nil {
		return nil, nil, err
	}
	if cfg.TokenEncKey != "" {
		enc, err := crypto.NewAESEncryptor(cfg.TokenEncKey)
		if err != nil {
			pg.Close()
			return nil, nil, err
		}
		pg.SetEncryptor(enc)
		slog.Info("token encryption at rest enabled")
	} else {
		slog.Warn("TOKEN_ENC_KEY not set, tokens stored in plaintext")
	}

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := pg.Migrate(migrateCtx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if err := pg.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}
	return pg, closeFn, nil
}

// seedSettings copies credentials from the environment into settings when
// they are absent there. Values already in the store win.
func seedSettings(ctx context.Context, st store.Store, cfg *config.Config) {
	settings, err := st.Settings(ctx)
	if err != nil {
		slog.Warn("failed to load settings for seeding", slog.Any("err", err))
		return
	}
	up := store.SettingsUpdate{}
	changed := false
	if settings.TwitchClientID == "" && cfg.TwitchClientID != "" {
		up.TwitchClientID = &cfg.TwitchClientID
		changed = true
	}
	if settings.TwitchAccessToken == "" && cfg.TwitchAccessToken != "" {
		up.TwitchAccessToken = &cfg.TwitchAccessToken
		changed = true
	}
	if settings.TwitchRefreshToken == "" && cfg.TwitchRefreshToken != "" {
		up.TwitchRefreshToken = &cfg.TwitchRefreshToken
		changed = true
	}
	if settings.DiscordWebhookURL == "" && cfg.DiscordWebhookURL != "" {
		up.DiscordWebhookURL = &cfg.DiscordWebhookURL
		changed = true
	}
	if !changed {
		return
	}
	if _, err := st.UpdateSettings(ctx, up); err != nil {
		slog.Warn("failed to seed settings from env", slog.Any("err", err))
		return
	}
	slog.Info("settings seeded from environment")
}
