package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateChannelDefaults(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	ch, err := m.CreateChannel(ctx, NewChannel{ChannelName: "lirik", AutoClaimPoints: true})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	if !ch.IsActive {
		t.Errorf("expected new channel to be active")
	}
	if ch.Priority != PriorityMedium {
		t.Errorf("Priority = %q, want %q", ch.Priority, PriorityMedium)
	}
	if ch.IsLive || ch.PointsCollected != 0 || ch.WatchTimeMinutes != 0 {
		t.Errorf("expected zeroed farming state, got %+v", ch)
	}
}

func TestCreateChannelDuplicateCaseInsensitive(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	if _, err := m.CreateChannel(ctx, NewChannel{ChannelName: "LIRIK"}); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	_, err := m.CreateChannel(ctx, NewChannel{ChannelName: "lirik"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	ch, err := m.ChannelByName(ctx, "LiRiK")
	if err != nil {
		t.Fatalf("ChannelByName: %v", err)
	}
	if ch.ChannelName != "LIRIK" {
		t.Errorf("ChannelByName returned %q", ch.ChannelName)
	}
}

func TestUpdateChannelPartial(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	ch, err := m.CreateChannel(ctx, NewChannel{ChannelName: "pokimane", AutoClaimPoints: true})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	live := true
	viewers := 420
	updated, err := m.UpdateChannel(ctx, ch.ID, ChannelUpdate{IsLive: &live, ViewerCount: &viewers})
	if err != nil {
		t.Fatalf("UpdateChannel: %v", err)
	}
	if !updated.IsLive || updated.ViewerCount != 420 {
		t.Errorf("update not applied: %+v", updated)
	}
	if !updated.AutoClaimPoints {
		t.Errorf("untouched field changed")
	}

	if _, err := m.UpdateChannel(ctx, 9999, ChannelUpdate{IsLive: &live}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing channel, got %v", err)
	}
}

func TestActiveChannelsFilters(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	a, _ := m.CreateChannel(ctx, NewChannel{ChannelName: "a"})
	if _, err := m.CreateChannel(ctx, NewChannel{ChannelName: "b"}); err != nil {
		t.Fatal(err)
	}
	inactive := false
	if _, err := m.UpdateChannel(ctx, a.ID, ChannelUpdate{IsActive: &inactive}); err != nil {
		t.Fatal(err)
	}

	active, err := m.ActiveChannels(ctx)
	if err != nil {
		t.Fatalf("ActiveChannels: %v", err)
	}
	if len(active) != 1 || active[0].ChannelName != "b" {
		t.Errorf("ActiveChannels = %+v, want only b", active)
	}
}

func TestDeleteChannelOrphansLogs(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	ch, _ := m.CreateChannel(ctx, NewChannel{ChannelName: "c"})
	if _, err := m.CreateLog(ctx, NewLog{ChannelID: ch.ID, ChannelName: ch.ChannelName, ActivityType: ActivityPoints, Message: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteChannel(ctx, ch.ID); err != nil {
		t.Fatalf("DeleteChannel: %v", err)
	}
	if err := m.DeleteChannel(ctx, ch.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
	logs, err := m.Logs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Errorf("logs should survive channel deletion, got %d", len(logs))
	}
}

func TestLogsNewestFirstAndLimit(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := m.CreateLog(ctx, NewLog{ActivityType: ActivityConnection, Message: "m"}); err != nil {
			t.Fatal(err)
		}
	}
	logs, err := m.Logs(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 3 {
		t.Fatalf("limit not honored: got %d", len(logs))
	}
	if logs[0].ID < logs[1].ID || logs[1].ID < logs[2].ID {
		t.Errorf("logs not newest first: %v %v %v", logs[0].ID, logs[1].ID, logs[2].ID)
	}
}

func TestUnsentLogsAndMarkSent(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	first, _ := m.CreateLog(ctx, NewLog{ActivityType: ActivityPoints, Message: "one"})
	if _, err := m.CreateLog(ctx, NewLog{ActivityType: ActivityPoints, Message: "two"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateLog(ctx, NewLog{ActivityType: ActivityConnection, Message: "sent", SentToDiscord: true}); err != nil {
		t.Fatal(err)
	}

	unsent, err := m.UnsentLogs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unsent) != 2 {
		t.Fatalf("unsent = %d, want 2", len(unsent))
	}
	if unsent[0].ID > unsent[1].ID {
		t.Errorf("unsent logs not oldest first")
	}

	if err := m.MarkLogSent(ctx, first.ID); err != nil {
		t.Fatalf("MarkLogSent: %v", err)
	}
	// idempotent
	if err := m.MarkLogSent(ctx, first.ID); err != nil {
		t.Fatalf("second MarkLogSent: %v", err)
	}
	unsent, _ = m.UnsentLogs(ctx)
	if len(unsent) != 1 || unsent[0].Message != "two" {
		t.Errorf("unsent after mark = %+v", unsent)
	}
}

func TestLogRetentionEvictsOldest(t *testing.T) {
	m := NewMemStore()
	m.SetLogRetention(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := m.CreateLog(ctx, NewLog{ActivityType: ActivityPoints, Message: "m"}); err != nil {
			t.Fatal(err)
		}
	}
	logs, err := m.Logs(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 3 {
		t.Fatalf("retention not applied: got %d logs", len(logs))
	}
	for _, l := range logs {
		if l.ID <= 2 {
			t.Errorf("oldest entries should be evicted, found id %d", l.ID)
		}
	}
}

func TestSettingsDefaultsAndPartialUpdate(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	settings, err := m.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if settings.MaxConcurrentChannels != 5 || settings.RefreshInterval != 60 {
		t.Errorf("unexpected defaults: %+v", settings)
	}

	tok := "abc"
	updated, err := m.UpdateSettings(ctx, SettingsUpdate{TwitchAccessToken: &tok})
	if err != nil {
		t.Fatal(err)
	}
	if updated.TwitchAccessToken != "abc" {
		t.Errorf("token not updated")
	}
	if updated.RefreshInterval != 60 {
		t.Errorf("untouched field changed: %+v", updated)
	}
	if updated.LastUpdated.IsZero() {
		t.Errorf("LastUpdated not set")
	}
}

func TestStatsIncrementalUpdate(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.StartDate.IsZero() {
		t.Errorf("StartDate not initialized")
	}

	points := 150
	pph := 300
	updated, err := m.UpdateStats(ctx, StatsUpdate{TotalPointsCollected: &points, PointsPerHour: &pph})
	if err != nil {
		t.Fatal(err)
	}
	if updated.TotalPointsCollected != 150 || updated.PointsPerHour != 300 {
		t.Errorf("stats not applied: %+v", updated)
	}
}

func TestAccessKeyLifecycle(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	k, err := m.CreateAccessKey(ctx, NewAccessKey{Label: "dashboard"})
	if err != nil {
		t.Fatal(err)
	}
	if k.Key == "" {
		t.Fatalf("expected generated key")
	}
	if !k.IsActive {
		t.Errorf("new key should be active")
	}

	got, err := m.AccessKeyByKey(ctx, k.Key)
	if err != nil {
		t.Fatalf("AccessKeyByKey: %v", err)
	}
	if got.ID != k.ID {
		t.Errorf("lookup mismatch")
	}

	if _, err := m.CreateAccessKey(ctx, NewAccessKey{Key: k.Key}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for same key string, got %v", err)
	}

	off := false
	if _, err := m.UpdateAccessKey(ctx, k.ID, AccessKeyUpdate{IsActive: &off}); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteAccessKey(ctx, k.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AccessKeyByKey(ctx, k.Key); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestAccessKeyExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	k := AccessKey{ExpiresAt: &past}
	if !k.Expired(time.Now()) {
		t.Errorf("key with past expiry should be expired")
	}
	k.ExpiresAt = &future
	if k.Expired(time.Now()) {
		t.Errorf("key with future expiry should not be expired")
	}
	k.ExpiresAt = nil
	if k.Expired(time.Now()) {
		t.Errorf("key without expiry should never expire")
	}
}
