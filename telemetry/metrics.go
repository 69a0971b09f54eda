// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles      prometheus.Counter
	PollFailures    prometheus.Counter
	ClaimCycles     prometheus.Counter
	PointsClaimed   prometheus.Counter // total points, not claim events
	BonusesClaimed  prometheus.Counter
	TokenRefreshes  prometheus.Counter
	WebhooksSent    prometheus.Counter
	WebhooksFailed  prometheus.Counter

	// Histograms (seconds)
	PollDuration prometheus.Observer

	// Gauges
	LiveChannelsGauge prometheus.Gauge
	FarmingGauge      prometheus.Gauge // 1=running, 0=stopped
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "farm_poll_cycles_total", Help: "Number of status poll cycles"})
		PollFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "farm_poll_failures_total", Help: "Number of status poll cycles that failed"})
		ClaimCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "farm_claim_cycles_total", Help: "Number of point claim cycles"})
		PointsClaimed = promauto.NewCounter(prometheus.CounterOpts{Name: "farm_points_claimed_total", Help: "Total channel points claimed (regular and bonus)"})
		BonusesClaimed = promauto.NewCounter(prometheus.CounterOpts{Name: "farm_bonuses_claimed_total", Help: "Number of bonus claims"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "farm_token_refreshes_total", Help: "Number of reactive Twitch token refresh attempts"})
		WebhooksSent = promauto.NewCounter(prometheus.CounterOpts{Name: "farm_webhooks_sent_total", Help: "Number of webhook messages delivered"})
		WebhooksFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "farm_webhooks_failed_total", Help: "Number of webhook deliveries that failed"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "farm_poll_duration_seconds", Help: "Status poll cycle duration seconds", Buckets: prometheus.DefBuckets})
		LiveChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "farm_live_channels", Help: "Tracked channels currently live"})
		FarmingGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "farm_running", Help: "Farming loops running=1 stopped=0"})
	})
}

// SetLiveChannels records the count of live channels after a poll pass.
func SetLiveChannels(n int) {
	if LiveChannelsGauge != nil {
		LiveChannelsGauge.Set(float64(n))
	}
}

// SetFarming flips the running gauge.
func SetFarming(running bool) {
	if FarmingGauge == nil {
		return
	}
	if running {
		FarmingGauge.Set(1)
	} else {
		FarmingGauge.Set(0)
	}
}

// AddPointsClaimed records claimed points if metrics are initialized.
func AddPointsClaimed(n int) {
	if PointsClaimed != nil {
		PointsClaimed.Add(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
