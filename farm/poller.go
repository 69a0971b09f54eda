package farm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/point-farmer/store"
	"github.com/onnwee/point-farmer/telemetry"
	"github.com/onnwee/point-farmer/twitchapi"
)

// checkChannelsOnce reconciles stored live state against one batched Helix
// streams query. A 401 triggers a token refresh and aborts the cycle before
// any state is written; other failures are recorded as error entries and
// the next tick proceeds independently.
func (c *Controller) checkChannelsOnce(ctx context.Context) {
	if telemetry.PollCycles != nil {
		telemetry.PollCycles.Inc()
	}
	start := time.Now()
	defer func() {
		if telemetry.PollDuration != nil {
			telemetry.PollDuration.Observe(time.Since(start).Seconds())
		}
	}()

	settings, err := c.store.Settings(ctx)
	if err != nil || settings.TwitchAccessToken == "" || settings.TwitchClientID == "" {
		return
	}
	channels, err := c.store.ActiveChannels(ctx)
	if err != nil {
		c.pollFailed(ctx, err)
		return
	}
	if len(channels) == 0 {
		zero := 0
		if _, err := c.store.UpdateStats(ctx, store.StatsUpdate{ActiveChannels: &zero}); err != nil {
			slog.Warn("stats update failed", slog.Any("err", err))
		}
		telemetry.SetLiveChannels(0)
		return
	}

	logins := make([]string, 0, len(channels))
	for _, ch := range channels {
		logins = append(logins, ch.ChannelName)
	}
	c.twitch.ClientID = settings.TwitchClientID
	streams, err := c.twitch.GetStreams(ctx, settings.TwitchAccessToken, logins)
	if errors.Is(err, twitchapi.ErrUnauthorized) {
		slog.Warn("twitch token expired, refreshing", slog.String("component", "poller"))
		c.refreshToken(ctx)
		return
	}
	if err != nil {
		c.pollFailed(ctx, err)
		return
	}

	live := make(map[string]twitchapi.Stream, len(streams))
	for _, s := range streams {
		if s.UserLogin != "" {
			live[strings.ToLower(s.UserLogin)] = s
		}
		if s.UserName != "" {
			live[strings.ToLower(s.UserName)] = s
		}
	}

	liveCount := 0
	for _, ch := range channels {
		stream, isLiveNow := live[strings.ToLower(ch.ChannelName)]
		if isLiveNow {
			liveCount++
		}
		switch {
		case ch.IsLive != isLiveNow:
			c.applyTransition(ctx, ch, stream, isLiveNow)
		case isLiveNow && stream.ViewerCount != ch.ViewerCount:
			// Viewer count drift while live: persist silently, no log entry.
			vc := stream.ViewerCount
			if _, err := c.store.UpdateChannel(ctx, ch.ID, store.ChannelUpdate{ViewerCount: &vc}); err != nil {
				slog.Warn("viewer count update failed", slog.Int64("channel_id", ch.ID), slog.Any("err", err))
			}
		}
	}

	if _, err := c.store.UpdateStats(ctx, store.StatsUpdate{ActiveChannels: &liveCount}); err != nil {
		slog.Warn("stats update failed", slog.Any("err", err))
	}
	telemetry.SetLiveChannels(liveCount)
}

// applyTransition persists a live/offline flip and emits exactly one log
// entry for it, routed to the webhook iff the channel opted in.
func (c *Controller) applyTransition(ctx context.Context, ch store.Channel, stream twitchapi.Stream, isLiveNow bool) {
	viewers := 0
	if isLiveNow {
		viewers = stream.ViewerCount
	}
	if _, err := c.store.UpdateChannel(ctx, ch.ID, store.ChannelUpdate{
		IsLive:      &isLiveNow,
		ViewerCount: &viewers,
	}); err != nil {
		slog.Warn("status update failed", slog.Int64("channel_id", ch.ID), slog.Any("err", err))
		return
	}

	kind := store.ActivityOffline
	message := fmt.Sprintf("Channel %s went offline", ch.ChannelName)
	if isLiveNow {
		kind = store.ActivityLive
		message = fmt.Sprintf("Channel %s went live", ch.ChannelName)
	}
	entry, err := c.store.CreateLog(ctx, store.NewLog{
		ChannelID:    ch.ID,
		ChannelName:  ch.ChannelName,
		ActivityType: kind,
		Message:      message,
	})
	if err != nil {
		slog.Warn("failed to record status log", slog.Int64("channel_id", ch.ID), slog.Any("err", err))
		return
	}
	slog.Info(message, slog.String("component", "poller"), slog.Int("viewers", viewers))
	if ch.SendLogsToDiscord {
		c.dispatcher.Send(ctx, entry)
	}
}

func (c *Controller) pollFailed(ctx context.Context, err error) {
	if telemetry.PollFailures != nil {
		telemetry.PollFailures.Inc()
	}
	c.logError(ctx, "Failed to update channel statuses", "", err)
}
