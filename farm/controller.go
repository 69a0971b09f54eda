// Package farm runs the point farming loops: a status poller that reconciles
// live state with Twitch and a points claimer that simulates point and bonus
// acquisition for live channels. The Controller owns both loops and restarts
// or stops them idempotently.
package farm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/point-farmer/discord"
	"github.com/onnwee/point-farmer/store"
	"github.com/onnwee/point-farmer/telemetry"
	"github.com/onnwee/point-farmer/twitchapi"
)

// Reference farming constants (original simulation behavior).
const (
	claimChance         = 0.30
	claimMin            = 50
	claimMax            = 150
	bonusChance         = 0.05
	bonusMin            = 100
	bonusMax            = 500
	watchPerTickMinutes = 1

	defaultStatusInterval = 5 * time.Minute
	defaultClaimInterval  = 60 * time.Second
	minClaimInterval      = 10 * time.Second
)

// ErrNoCredentials is returned by Start when settings hold no access token.
var ErrNoCredentials = errors.New("farm: twitch access token not set")

// Options configures a Controller.
type Options struct {
	// TwitchClientSecret is needed for the refresh_token grant; it is never
	// stored in settings.
	TwitchClientSecret string
	// StatusInterval overrides the status poll cadence (default 5m).
	StatusInterval time.Duration
	// Roller overrides the random outcome source (tests).
	Roller Roller
}

// Controller starts and stops the two farming loops.
type Controller struct {
	store      store.Store
	twitch     *twitchapi.Client
	dispatcher *discord.Dispatcher
	roller     Roller

	clientSecret   string
	statusInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewController wires a controller. All dependencies are injected; nothing
// here touches globals.
func NewController(st store.Store, tc *twitchapi.Client, d *discord.Dispatcher, opts Options) *Controller {
	roller := opts.Roller
	if roller == nil {
		roller = NewRoller()
	}
	interval := opts.StatusInterval
	if interval <= 0 {
		interval = defaultStatusInterval
	}
	return &Controller{
		store:          st,
		twitch:         tc,
		dispatcher:     d,
		roller:         roller,
		clientSecret:   opts.TwitchClientSecret,
		statusInterval: interval,
	}
}

// Start launches both loops, replacing any already running (never duplicates
// timers). It refuses to start without an access token in settings. The
// loops stop when Stop is called or ctx is canceled; a tick in flight runs
// to completion either way.
func (c *Controller) Start(ctx context.Context) error {
	settings, err := c.store.Settings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if settings.TwitchAccessToken == "" {
		return ErrNoCredentials
	}

	claimInterval := defaultClaimInterval
	if settings.RefreshInterval > 0 {
		claimInterval = time.Duration(settings.RefreshInterval) * time.Second
	}
	if claimInterval < minClaimInterval {
		claimInterval = minClaimInterval
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.statusLoop(loopCtx)
	go c.claimLoop(loopCtx, claimInterval)
	telemetry.SetFarming(true)
	slog.Info("farming started",
		slog.Duration("status_interval", c.statusInterval),
		slog.Duration("claim_interval", claimInterval))
	return nil
}

// Stop cancels both loops. Safe to call when already stopped.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		telemetry.SetFarming(false)
		slog.Info("farming stopped")
	}
}

// Running reports whether the loops are active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *Controller) statusLoop(ctx context.Context) {
	// Kick an immediate run so we don't wait a full interval after start.
	c.checkChannelsOnce(ctx)
	ticker := time.NewTicker(c.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("status poll loop stopped")
			return
		case <-ticker.C:
			c.checkChannelsOnce(ctx)
		}
	}
}

func (c *Controller) claimLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("claim loop stopped")
			return
		case <-ticker.C:
			c.claimPointsOnce(ctx)
		}
	}
}

// refreshToken performs one reactive refresh_token exchange and persists the
// new pair to settings. Invoked by the poller on a 401; failure is logged as
// an error entry but never halts the loops.
func (c *Controller) refreshToken(ctx context.Context) {
	if telemetry.TokenRefreshes != nil {
		telemetry.TokenRefreshes.Inc()
	}
	settings, err := c.store.Settings(ctx)
	if err != nil {
		return
	}
	if settings.TwitchClientID == "" || settings.TwitchRefreshToken == "" || c.clientSecret == "" {
		c.logError(ctx, "Failed to refresh Twitch API token", "", errors.New("missing client credentials or refresh token"))
		return
	}
	refreshCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	res, err := twitchapi.RefreshToken(refreshCtx, settings.TwitchClientID, c.clientSecret, settings.TwitchRefreshToken)
	if err != nil {
		c.logError(ctx, "Failed to refresh Twitch API token", "", err)
		return
	}
	refresh := res.RefreshToken
	if refresh == "" {
		refresh = settings.TwitchRefreshToken
	}
	if _, err := c.store.UpdateSettings(ctx, store.SettingsUpdate{
		TwitchAccessToken:  &res.AccessToken,
		TwitchRefreshToken: &refresh,
	}); err != nil {
		slog.Warn("token persist failed", slog.Any("err", err))
		return
	}
	slog.Info("twitch token refreshed")
}

// logError records an error-kind activity entry and forwards it to the
// webhook (errors are always notified, channel flags do not apply).
func (c *Controller) logError(ctx context.Context, message, channelName string, cause error) {
	slog.Error(message, slog.Any("err", cause), slog.String("channel", channelName))
	entry, err := c.store.CreateLog(ctx, store.NewLog{
		ChannelName:  channelName,
		ActivityType: store.ActivityError,
		Message:      fmt.Sprintf("%s: %v", message, cause),
	})
	if err != nil {
		slog.Error("failed to record error log", slog.Any("err", err))
		return
	}
	c.dispatcher.Send(ctx, entry)
}
