package farm

import (
	"context"
	"errors"
	"testing"

	"github.com/onnwee/point-farmer/discord"
	"github.com/onnwee/point-farmer/store"
	"github.com/onnwee/point-farmer/twitchapi"
)

// fakeRoller replays scripted outcomes.
type fakeRoller struct {
	chances []bool
	amounts []int
}

func (f *fakeRoller) Chance(float64) bool {
	if len(f.chances) == 0 {
		return false
	}
	v := f.chances[0]
	f.chances = f.chances[1:]
	return v
}

func (f *fakeRoller) Amount(min, _ int) int {
	if len(f.amounts) == 0 {
		return min
	}
	v := f.amounts[0]
	f.amounts = f.amounts[1:]
	return v
}

func newTestController(st store.Store, roller Roller) *Controller {
	return NewController(st, &twitchapi.Client{}, &discord.Dispatcher{Store: st}, Options{Roller: roller})
}

func TestClaimWinUpdatesChannelLogAndStats(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()

	ch, err := st.CreateChannel(ctx, store.NewChannel{ChannelName: "lirik", AutoClaimPoints: true})
	if err != nil {
		t.Fatal(err)
	}
	live := true
	if _, err := st.UpdateChannel(ctx, ch.ID, store.ChannelUpdate{IsLive: &live}); err != nil {
		t.Fatal(err)
	}

	c := newTestController(st, &fakeRoller{chances: []bool{true}, amounts: []int{120}})
	c.claimPointsOnce(ctx)

	got, err := st.Channel(ctx, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PointsCollected != 120 {
		t.Errorf("PointsCollected = %d, want 120", got.PointsCollected)
	}
	if got.WatchTimeMinutes != 1 {
		t.Errorf("WatchTimeMinutes = %d, want 1", got.WatchTimeMinutes)
	}

	logs, err := st.Logs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].ActivityType != store.ActivityPoints || logs[0].PointsGained != 120 {
		t.Errorf("unexpected log: %+v", logs[0])
	}
	if logs[0].Message != "Claimed 120 points from lirik" {
		t.Errorf("unexpected message: %q", logs[0].Message)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalPointsCollected != 120 || stats.TotalWatchTimeMinutes != 1 {
		t.Errorf("stats not updated: %+v", stats)
	}
	// 120 points in 1 minute is 7200 points/hour.
	if stats.PointsPerHour != 7200 {
		t.Errorf("PointsPerHour = %d, want 7200", stats.PointsPerHour)
	}
}

func TestClaimLossLeavesEverythingUntouched(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()

	ch, err := st.CreateChannel(ctx, store.NewChannel{ChannelName: "lirik", AutoClaimPoints: true, ClaimBonuses: true})
	if err != nil {
		t.Fatal(err)
	}
	live := true
	if _, err := st.UpdateChannel(ctx, ch.ID, store.ChannelUpdate{IsLive: &live}); err != nil {
		t.Fatal(err)
	}

	c := newTestController(st, &fakeRoller{chances: []bool{false, false}})
	c.claimPointsOnce(ctx)

	got, err := st.Channel(ctx, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PointsCollected != 0 || got.WatchTimeMinutes != 0 || got.BonusClaims != 0 {
		t.Errorf("losing tick changed channel state: %+v", got)
	}
	logs, _ := st.Logs(ctx, 10)
	if len(logs) != 0 {
		t.Errorf("losing tick wrote %d logs", len(logs))
	}
}

func TestClaimSkipsOfflineAndOptedOutChannels(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()

	offline, _ := st.CreateChannel(ctx, store.NewChannel{ChannelName: "offline", AutoClaimPoints: true})
	noClaim, _ := st.CreateChannel(ctx, store.NewChannel{ChannelName: "noclaim"})
	live := true
	if _, err := st.UpdateChannel(ctx, noClaim.ID, store.ChannelUpdate{IsLive: &live}); err != nil {
		t.Fatal(err)
	}

	c := newTestController(st, &fakeRoller{chances: []bool{true, true}, amounts: []int{100, 100}})
	c.claimPointsOnce(ctx)

	for _, id := range []int64{offline.ID, noClaim.ID} {
		got, err := st.Channel(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.PointsCollected != 0 {
			t.Errorf("channel %d should not have claimed points", id)
		}
	}
	logs, _ := st.Logs(ctx, 10)
	if len(logs) != 0 {
		t.Errorf("expected no logs, got %d", len(logs))
	}
}

func TestBonusClaimIndependentOfRegularClaim(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()

	ch, _ := st.CreateChannel(ctx, store.NewChannel{ChannelName: "x", AutoClaimPoints: true, ClaimBonuses: true})
	live := true
	if _, err := st.UpdateChannel(ctx, ch.ID, store.ChannelUpdate{IsLive: &live}); err != nil {
		t.Fatal(err)
	}

	// Regular claim misses, bonus hits.
	c := newTestController(st, &fakeRoller{chances: []bool{false, true}, amounts: []int{250}})
	c.claimPointsOnce(ctx)

	got, err := st.Channel(ctx, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PointsCollected != 250 || got.BonusClaims != 1 {
		t.Errorf("bonus not applied: %+v", got)
	}
	if got.WatchTimeMinutes != 0 {
		t.Errorf("bonus should not add watch time")
	}

	logs, _ := st.Logs(ctx, 10)
	if len(logs) != 1 || logs[0].ActivityType != store.ActivityBonus {
		t.Fatalf("expected one bonus log, got %+v", logs)
	}

	stats, _ := st.Stats(ctx)
	if stats.TotalBonusClaims != 1 || stats.TotalPointsCollected != 250 {
		t.Errorf("stats not updated for bonus: %+v", stats)
	}
}

// failingStore wraps a MemStore and fails channel updates for one ID.
type failingStore struct {
	*store.MemStore
	failID int64
}

func (f *failingStore) UpdateChannel(ctx context.Context, id int64, up store.ChannelUpdate) (*store.Channel, error) {
	if id == f.failID {
		return nil, errors.New("boom")
	}
	return f.MemStore.UpdateChannel(ctx, id, up)
}

func TestClaimFailureIsolatedPerChannel(t *testing.T) {
	mem := store.NewMemStore()
	ctx := context.Background()

	bad, _ := mem.CreateChannel(ctx, store.NewChannel{ChannelName: "bad", AutoClaimPoints: true})
	good, _ := mem.CreateChannel(ctx, store.NewChannel{ChannelName: "good", AutoClaimPoints: true})
	live := true
	for _, id := range []int64{bad.ID, good.ID} {
		if _, err := mem.UpdateChannel(ctx, id, store.ChannelUpdate{IsLive: &live}); err != nil {
			t.Fatal(err)
		}
	}

	st := &failingStore{MemStore: mem, failID: bad.ID}
	c := newTestController(st, &fakeRoller{chances: []bool{true, true}, amounts: []int{100, 100}})
	c.claimPointsOnce(ctx)

	got, err := mem.Channel(ctx, good.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PointsCollected != 100 {
		t.Errorf("failure on one channel blocked another: %+v", got)
	}

	logs, _ := mem.Logs(ctx, 10)
	var errorLogged bool
	for _, l := range logs {
		if l.ActivityType == store.ActivityError && l.ChannelName == "bad" {
			errorLogged = true
		}
	}
	if !errorLogged {
		t.Errorf("expected an error log for the failing channel, logs: %+v", logs)
	}
}

func TestPointsPerHour(t *testing.T) {
	cases := []struct {
		points, minutes, want int
	}{
		{0, 0, 0},
		{500, 0, 0},
		{120, 60, 120},
		{120, 1, 7200},
		{100, 90, 66},
	}
	for _, tc := range cases {
		if got := PointsPerHour(tc.points, tc.minutes); got != tc.want {
			t.Errorf("PointsPerHour(%d, %d) = %d, want %d", tc.points, tc.minutes, got, tc.want)
		}
	}
}
