package farm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onnwee/point-farmer/store"
	"github.com/onnwee/point-farmer/telemetry"
)

// claimPointsOnce simulates point acquisition for every live, active channel.
// Failures are isolated per channel: one channel blowing up never skips the
// rest of the tick.
func (c *Controller) claimPointsOnce(ctx context.Context) {
	if telemetry.ClaimCycles != nil {
		telemetry.ClaimCycles.Inc()
	}
	channels, err := c.store.ActiveChannels(ctx)
	if err != nil {
		c.logError(ctx, "Failed to claim channel points", "", err)
		return
	}
	for _, ch := range channels {
		if !ch.IsLive {
			continue
		}
		if err := c.claimChannel(ctx, ch); err != nil {
			c.logError(ctx, "Failed to claim channel points", ch.ChannelName, err)
		}
	}
}

// claimChannel draws the regular and bonus outcomes for one channel.
func (c *Controller) claimChannel(ctx context.Context, ch store.Channel) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("claim panic: %v", r)
		}
	}()

	if ch.AutoClaimPoints && c.roller.Chance(claimChance) {
		points := c.roller.Amount(claimMin, claimMax)
		newPoints := ch.PointsCollected + points
		newMinutes := ch.WatchTimeMinutes + watchPerTickMinutes
		updated, err := c.store.UpdateChannel(ctx, ch.ID, store.ChannelUpdate{
			PointsCollected:  &newPoints,
			WatchTimeMinutes: &newMinutes,
		})
		if err != nil {
			return fmt.Errorf("update channel: %w", err)
		}
		ch = *updated

		entry, err := c.store.CreateLog(ctx, store.NewLog{
			ChannelID:    ch.ID,
			ChannelName:  ch.ChannelName,
			ActivityType: store.ActivityPoints,
			Message:      fmt.Sprintf("Claimed %d points from %s", points, ch.ChannelName),
			PointsGained: points,
		})
		if err != nil {
			return fmt.Errorf("record points log: %w", err)
		}
		if ch.SendLogsToDiscord {
			c.dispatcher.Send(ctx, entry)
		}
		if err := c.bumpStats(ctx, points, watchPerTickMinutes, 0); err != nil {
			return err
		}
		telemetry.AddPointsClaimed(points)
	}

	if ch.ClaimBonuses && c.roller.Chance(bonusChance) {
		bonus := c.roller.Amount(bonusMin, bonusMax)
		newPoints := ch.PointsCollected + bonus
		newClaims := ch.BonusClaims + 1
		updated, err := c.store.UpdateChannel(ctx, ch.ID, store.ChannelUpdate{
			PointsCollected: &newPoints,
			BonusClaims:     &newClaims,
		})
		if err != nil {
			return fmt.Errorf("update channel: %w", err)
		}
		ch = *updated

		entry, err := c.store.CreateLog(ctx, store.NewLog{
			ChannelID:    ch.ID,
			ChannelName:  ch.ChannelName,
			ActivityType: store.ActivityBonus,
			Message:      fmt.Sprintf("Claimed %d bonus points from %s", bonus, ch.ChannelName),
			PointsGained: bonus,
		})
		if err != nil {
			return fmt.Errorf("record bonus log: %w", err)
		}
		if ch.SendLogsToDiscord {
			c.dispatcher.Send(ctx, entry)
		}
		if err := c.bumpStats(ctx, bonus, 0, 1); err != nil {
			return err
		}
		telemetry.AddPointsClaimed(bonus)
		if telemetry.BonusesClaimed != nil {
			telemetry.BonusesClaimed.Inc()
		}
	}
	return nil
}

// bumpStats applies one award's deltas to the aggregate record and rederives
// points-per-hour from the new totals.
func (c *Controller) bumpStats(ctx context.Context, points, minutes, bonuses int) error {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	up := store.StatsUpdate{}
	totalPoints := stats.TotalPointsCollected + points
	up.TotalPointsCollected = &totalPoints
	totalMinutes := stats.TotalWatchTimeMinutes
	if minutes > 0 {
		totalMinutes += minutes
		up.TotalWatchTimeMinutes = &totalMinutes
	}
	if bonuses > 0 {
		totalBonuses := stats.TotalBonusClaims + bonuses
		up.TotalBonusClaims = &totalBonuses
	}
	pph := PointsPerHour(totalPoints, totalMinutes)
	up.PointsPerHour = &pph
	if _, err := c.store.UpdateStats(ctx, up); err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	slog.Debug("stats updated",
		slog.Int("total_points", totalPoints),
		slog.Int("points_per_hour", pph),
		slog.String("component", "claimer"))
	return nil
}

// PointsPerHour computes floor(points / (minutes/60)), defined as 0 when no
// watch time has accumulated.
func PointsPerHour(totalPoints, totalMinutes int) int {
	if totalMinutes <= 0 {
		return 0
	}
	return int(float64(totalPoints) / (float64(totalMinutes) / 60.0))
}
