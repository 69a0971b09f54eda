package discord

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/onnwee/point-farmer/store"
	"github.com/onnwee/point-farmer/testutil"
)

func setWebhookURL(t *testing.T, st store.Store, url string) {
	t.Helper()
	if _, err := st.UpdateSettings(context.Background(), store.SettingsUpdate{DiscordWebhookURL: &url}); err != nil {
		t.Fatal(err)
	}
}

func TestSendDeliversAndMarksSent(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	mock := testutil.NewMockWebhookServer(t)
	setWebhookURL(t, st, mock.URL)

	entry, err := st.CreateLog(ctx, store.NewLog{
		ChannelName:  "lirik",
		ActivityType: store.ActivityPoints,
		Message:      "Claimed 120 points from lirik",
		PointsGained: 120,
	})
	if err != nil {
		t.Fatal(err)
	}

	d := &Dispatcher{Store: st}
	if !d.Send(ctx, entry) {
		t.Fatalf("Send returned false")
	}

	unsent, _ := st.UnsentLogs(ctx)
	if len(unsent) != 0 {
		t.Errorf("entry not marked sent")
	}

	payloads := mock.Payloads()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(payloads))
	}
	if payloads[0]["username"] != "Twitch Point Farmer" {
		t.Errorf("username = %v", payloads[0]["username"])
	}
	embeds, ok := payloads[0]["embeds"].([]interface{})
	if !ok || len(embeds) != 1 {
		t.Fatalf("expected one embed, got %v", payloads[0]["embeds"])
	}
	embed := embeds[0].(map[string]interface{})
	title, _ := embed["title"].(string)
	if !strings.Contains(title, "💰") || !strings.Contains(title, "lirik") {
		t.Errorf("unexpected title: %q", title)
	}
	if int(embed["color"].(float64)) != 11370315 {
		t.Errorf("color = %v, want 11370315", embed["color"])
	}
}

func TestSendWithoutWebhookURLFails(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()

	entry, _ := st.CreateLog(ctx, store.NewLog{ActivityType: store.ActivityError, Message: "boom"})
	d := &Dispatcher{Store: st}
	if d.Send(ctx, entry) {
		t.Fatalf("Send should fail without a webhook URL")
	}
	unsent, _ := st.UnsentLogs(ctx)
	if len(unsent) != 1 {
		t.Errorf("entry should remain unsent")
	}
}

func TestSendRejectedKeepsEntryUnsent(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	mock := testutil.NewMockWebhookServer(t)
	mock.Fail(http.StatusTooManyRequests)
	setWebhookURL(t, st, mock.URL)

	entry, _ := st.CreateLog(ctx, store.NewLog{ActivityType: store.ActivityLive, Message: "live"})
	d := &Dispatcher{Store: st}
	if d.Send(ctx, entry) {
		t.Fatalf("Send should report failure on non-2xx")
	}
	unsent, _ := st.UnsentLogs(ctx)
	if len(unsent) != 1 {
		t.Errorf("rejected entry should remain unsent")
	}
}

func TestSendPendingDeliversOldestFirst(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	mock := testutil.NewMockWebhookServer(t)
	setWebhookURL(t, st, mock.URL)

	if _, err := st.CreateLog(ctx, store.NewLog{ActivityType: store.ActivityPoints, Message: "first"}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateLog(ctx, store.NewLog{ActivityType: store.ActivityPoints, Message: "second"}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateLog(ctx, store.NewLog{ActivityType: store.ActivityConnection, Message: "done", SentToDiscord: true}); err != nil {
		t.Fatal(err)
	}

	d := &Dispatcher{Store: st}
	if sent := d.SendPending(ctx); sent != 2 {
		t.Fatalf("SendPending = %d, want 2", sent)
	}

	payloads := mock.Payloads()
	if len(payloads) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(payloads))
	}
	firstEmbed := payloads[0]["embeds"].([]interface{})[0].(map[string]interface{})
	if firstEmbed["description"] != "first" {
		t.Errorf("pending not delivered oldest first: %v", firstEmbed["description"])
	}

	unsent, _ := st.UnsentLogs(ctx)
	if len(unsent) != 0 {
		t.Errorf("all pending entries should be marked sent")
	}
}

func TestSendDailySummary(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	mock := testutil.NewMockWebhookServer(t)
	setWebhookURL(t, st, mock.URL)

	if _, err := st.CreateChannel(ctx, store.NewChannel{ChannelName: "lirik"}); err != nil {
		t.Fatal(err)
	}
	points := 5400
	minutes := 135
	pph := 2400
	bonuses := 3
	if _, err := st.UpdateStats(ctx, store.StatsUpdate{
		TotalPointsCollected:  &points,
		TotalWatchTimeMinutes: &minutes,
		PointsPerHour:         &pph,
		TotalBonusClaims:      &bonuses,
	}); err != nil {
		t.Fatal(err)
	}

	d := &Dispatcher{Store: st}
	if !d.SendDailySummary(ctx) {
		t.Fatalf("SendDailySummary returned false")
	}

	payloads := mock.Payloads()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(payloads))
	}
	embed := payloads[0]["embeds"].([]interface{})[0].(map[string]interface{})
	fields := embed["fields"].([]interface{})
	byName := map[string]string{}
	for _, f := range fields {
		fm := f.(map[string]interface{})
		byName[fm["name"].(string)] = fm["value"].(string)
	}
	if byName["Total Points"] != "5400" {
		t.Errorf("Total Points = %q", byName["Total Points"])
	}
	if byName["Total Watch Time"] != "2h 15m" {
		t.Errorf("Total Watch Time = %q", byName["Total Watch Time"])
	}
	if byName["Active Channels"] != "1" {
		t.Errorf("Active Channels = %q", byName["Active Channels"])
	}

	// Success is recorded as a connection entry already marked sent.
	logs, _ := st.Logs(ctx, 10)
	if len(logs) != 1 || logs[0].ActivityType != store.ActivityConnection || !logs[0].SentToDiscord {
		t.Errorf("summary log missing or wrong: %+v", logs)
	}
}

func TestSendDailySummaryWithoutURLFails(t *testing.T) {
	st := store.NewMemStore()
	d := &Dispatcher{Store: st}
	if d.SendDailySummary(context.Background()) {
		t.Fatalf("summary should fail without webhook URL")
	}
}

func TestFormatEntrySystemFallbacks(t *testing.T) {
	entry := &store.ActivityLog{ActivityType: "unknown-kind", Message: "hello"}
	p := formatEntry(entry)
	e := p.Embeds[0]
	if !strings.Contains(e.Title, "📝") || !strings.Contains(e.Title, "System") {
		t.Errorf("fallback title = %q", e.Title)
	}
	if e.Color != embedColors[store.ActivityConnection] {
		t.Errorf("fallback color = %d", e.Color)
	}
	if len(e.Fields) != 0 {
		t.Errorf("system entry without points should have no fields: %+v", e.Fields)
	}
}
