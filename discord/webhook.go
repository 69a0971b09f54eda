// Package discord delivers activity log entries to a Discord-compatible
// webhook as embed messages and tracks which entries have been sent.
// Delivery is single-attempt, fire-and-forget: callers that want another try
// go through SendPending later.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/point-farmer/store"
	"github.com/onnwee/point-farmer/telemetry"
)

const (
	webhookUsername = "Twitch Point Farmer"
	webhookAvatar   = "https://static.twitchcdn.net/assets/favicon-32-d6025c14e900565d6177.png"
)

// Embed colors keyed by activity kind.
var embedColors = map[string]int{
	store.ActivityPoints:     11370315, // purple
	store.ActivityBonus:      16766720, // gold
	store.ActivityLive:       5763719,  // green
	store.ActivityOffline:    9807270,  // gray
	store.ActivityError:      15548997, // red
	store.ActivityConnection: 3447003,  // blue
}

var embedIcons = map[string]string{
	store.ActivityPoints:     "💰",
	store.ActivityBonus:      "🎁",
	store.ActivityLive:       "🔴",
	store.ActivityOffline:    "⚫",
	store.ActivityError:      "⚠️",
	store.ActivityConnection: "🔌",
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type payload struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []embed `json:"embeds,omitempty"`
}

// Dispatcher sends webhook messages using the webhook URL from settings.
type Dispatcher struct {
	Store      store.Store
	HTTPClient *http.Client
}

func (d *Dispatcher) http() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Send delivers one log entry. Returns true on success, in which case the
// entry is marked sent (irreversibly). A missing webhook URL is a no-op
// failure. Marking twice is harmless.
func (d *Dispatcher) Send(ctx context.Context, entry *store.ActivityLog) bool {
	settings, err := d.Store.Settings(ctx)
	if err != nil || settings.DiscordWebhookURL == "" {
		slog.Debug("discord webhook URL not configured", slog.String("component", "discord"))
		return false
	}
	if !d.post(ctx, settings.DiscordWebhookURL, formatEntry(entry)) {
		return false
	}
	if err := d.Store.MarkLogSent(ctx, entry.ID); err != nil {
		slog.Warn("failed to mark log sent", slog.Int64("log_id", entry.ID), slog.Any("err", err))
	}
	return true
}

// SendPending attempts delivery for every unsent entry, oldest first,
// independently. Returns how many were delivered.
func (d *Dispatcher) SendPending(ctx context.Context) int {
	unsent, err := d.Store.UnsentLogs(ctx)
	if err != nil {
		slog.Warn("failed to load unsent logs", slog.Any("err", err))
		return 0
	}
	sent := 0
	for i := range unsent {
		if d.Send(ctx, &unsent[i]) {
			sent++
		}
	}
	return sent
}

// SendDailySummary posts an aggregate report. On success a `connection` log
// entry describing the summary is created, already marked sent.
func (d *Dispatcher) SendDailySummary(ctx context.Context) bool {
	stats, err := d.Store.Stats(ctx)
	if err != nil {
		return false
	}
	settings, err := d.Store.Settings(ctx)
	if err != nil || settings.DiscordWebhookURL == "" {
		return false
	}
	channels, err := d.Store.ActiveChannels(ctx)
	if err != nil {
		return false
	}

	p := payload{
		Username:  webhookUsername,
		AvatarURL: webhookAvatar,
		Embeds: []embed{{
			Title:     "📊 Daily Summary Report",
			Color:     embedColors[store.ActivityPoints],
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Fields: []embedField{
				{Name: "Active Channels", Value: fmt.Sprintf("%d", len(channels)), Inline: true},
				{Name: "Total Points", Value: fmt.Sprintf("%d", stats.TotalPointsCollected), Inline: true},
				{Name: "Points Per Hour", Value: fmt.Sprintf("%d", stats.PointsPerHour), Inline: true},
				{Name: "Total Watch Time", Value: formatMinutes(stats.TotalWatchTimeMinutes), Inline: true},
				{Name: "Bonus Claims", Value: fmt.Sprintf("%d", stats.TotalBonusClaims), Inline: true},
				{Name: "Running Since", Value: stats.StartDate.Format("2006-01-02"), Inline: true},
			},
			Footer: &embedFooter{Text: "Twitch Point Farmer - Daily Summary"},
		}},
	}
	if !d.post(ctx, settings.DiscordWebhookURL, p) {
		return false
	}
	if _, err := d.Store.CreateLog(ctx, store.NewLog{
		ActivityType:  store.ActivityConnection,
		Message:       fmt.Sprintf("Daily summary sent (%d channels, %d points)", len(channels), stats.TotalPointsCollected),
		SentToDiscord: true,
	}); err != nil {
		slog.Warn("failed to record daily summary log", slog.Any("err", err))
	}
	return true
}

// post executes the webhook HTTP call. Failures are logged and reported as
// false; nothing retries here.
func (d *Dispatcher) post(ctx context.Context, webhookURL string, p payload) bool {
	body, err := json.Marshal(p)
	if err != nil {
		slog.Error("failed to marshal webhook payload", slog.Any("err", err))
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.http().Do(req)
	if err != nil {
		slog.Warn("webhook request failed", slog.Any("err", err), slog.String("component", "discord"))
		if telemetry.WebhooksFailed != nil {
			telemetry.WebhooksFailed.Inc()
		}
		return false
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		slog.Warn("webhook rejected", slog.String("status", resp.Status), slog.String("body", string(b)), slog.String("component", "discord"))
		if telemetry.WebhooksFailed != nil {
			telemetry.WebhooksFailed.Inc()
		}
		return false
	}
	if telemetry.WebhooksSent != nil {
		telemetry.WebhooksSent.Inc()
	}
	return true
}

// formatEntry builds the embed for a single log entry.
func formatEntry(entry *store.ActivityLog) payload {
	color, ok := embedColors[entry.ActivityType]
	if !ok {
		color = embedColors[store.ActivityConnection]
	}
	icon, ok := embedIcons[entry.ActivityType]
	if !ok {
		icon = "📝"
	}
	title := entry.ChannelName
	if title == "" {
		title = "System"
	}
	e := embed{
		Title:       fmt.Sprintf("%s Twitch Point Farmer - %s", icon, title),
		Description: entry.Message,
		Color:       color,
		Timestamp:   entry.Timestamp.UTC().Format(time.RFC3339),
	}
	if entry.PointsGained > 0 {
		e.Fields = append(e.Fields, embedField{Name: "Points Gained", Value: fmt.Sprintf("%d", entry.PointsGained), Inline: true})
	}
	if entry.ChannelName != "" {
		e.Fields = append(e.Fields, embedField{Name: "Channel", Value: entry.ChannelName, Inline: true})
	}
	return payload{Username: webhookUsername, AvatarURL: webhookAvatar, Embeds: []embed{e}}
}

// formatMinutes renders watch time as "XhYm".
func formatMinutes(minutes int) string {
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
