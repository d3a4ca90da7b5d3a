package leveling

import (
	"context"
	"errors"
	"testing"
	"time"

	"realmkeeper/internal/modules/audit"
	"realmkeeper/internal/storage"

	"go.uber.org/zap"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fixedRandom always returns the upper bound minus one.
type fixedRandom struct{}

func (fixedRandom) IntN(n int) int { return n - 1 }

type fakeNotifier struct {
	sent []Notification
}

func (f *fakeNotifier) LevelUp(_ context.Context, n Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

type syncCall struct {
	start, end int
	stackable  bool
}

type fakeSyncer struct {
	calls []syncCall
}

func (f *fakeSyncer) SyncLevelRoles(_ context.Context, _, _ string, start, end int, stackable bool) error {
	f.calls = append(f.calls, syncCall{start: start, end: end, stackable: stackable})
	return nil
}

func testSettings() storage.LevelSettings {
	return storage.LevelSettings{LevelingEnabled: true, XPRate: 1, StartingXP: 100, XPPerLevel: 50}
}

func newTestEngine(t *testing.T) (*Engine, *storage.Store, *fakeClock, *fakeNotifier, *fakeSyncer) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := Config{
		MessageCooldown: 3 * time.Second,
		NotifyCooldown:  5 * time.Second,
		MinBaseXP:       5,
		MaxBaseXP:       14,
		Defaults:        testSettings(),
	}
	engine := New(store, cfg, audit.NewLogger(store, zap.NewNop()), zap.NewNop())
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &fakeNotifier{}
	syncer := &fakeSyncer{}
	engine.WithClock(clock)
	engine.WithRandom(fixedRandom{})
	engine.SetNotifier(notifier)
	engine.SetRoleSyncer(syncer)
	return engine, store, clock, notifier, syncer
}

func TestApplyXPCarriesRemainder(t *testing.T) {
	state := storage.MemberLevel{Level: 1, XP: 95}
	ups := ApplyXP(&state, 10, testSettings())
	if ups != 1 || state.Level != 2 || state.XP != 5 {
		t.Fatalf("expected level 2 with 5 xp, got level %d xp %d (%d ups)", state.Level, state.XP, ups)
	}
	if state.TotalXP != 10 {
		t.Fatalf("expected total 10, got %d", state.TotalXP)
	}
}

func TestApplyXPMultipleLevels(t *testing.T) {
	state := storage.MemberLevel{Level: 1}
	ups := ApplyXP(&state, 100+150+10, testSettings())
	if ups != 2 || state.Level != 3 || state.XP != 10 {
		t.Fatalf("expected level 3 with 10 xp, got level %d xp %d", state.Level, state.XP)
	}
}

func TestApplyXPZeroThresholdTerminates(t *testing.T) {
	state := storage.MemberLevel{Level: 1}
	ups := ApplyXP(&state, 3, storage.LevelSettings{})
	if ups != 3 || state.XP != 0 {
		t.Fatalf("expected 3 ups and no leftover xp, got %d ups xp %d", ups, state.XP)
	}
}

func TestApplyXPKeepsInvariant(t *testing.T) {
	settings := testSettings()
	state := storage.MemberLevel{Level: 1}
	for i := 0; i < 200; i++ {
		before := state.Level
		ApplyXP(&state, i%37, settings)
		if state.Level < before {
			t.Fatalf("level decreased from %d to %d", before, state.Level)
		}
		if state.XP < 0 || state.XP >= XPNeeded(state.Level, settings) {
			t.Fatalf("xp %d out of range for level %d", state.XP, state.Level)
		}
	}
}

func TestBonusMultiplierPicksHighestHeld(t *testing.T) {
	bindings := []storage.BonusRole{
		{RoleID: "booster", Multiplier: 1.5},
		{RoleID: "patron", Multiplier: 2},
		{RoleID: "vip", Multiplier: 3},
	}
	if got := BonusMultiplier(bindings, []string{"booster", "patron"}); got != 2 {
		t.Fatalf("expected 2, got %v", got)
	}
	if got := BonusMultiplier(bindings, nil); got != 1 {
		t.Fatalf("expected 1 with no roles, got %v", got)
	}
}

func TestAwardRespectsCooldown(t *testing.T) {
	engine, _, clock, _, _ := newTestEngine(t)
	ctx := context.Background()
	msg := Message{GuildID: "g1", UserID: "u1", ChannelID: "c1"}

	first, err := engine.Award(ctx, msg)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if first.Awarded != 14 {
		t.Fatalf("expected 14 xp, got %d", first.Awarded)
	}

	clock.Advance(2 * time.Second)
	second, err := engine.Award(ctx, msg)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if !second.OnCooldown || second.Awarded != 0 {
		t.Fatalf("expected cooldown rejection, got %+v", second)
	}

	clock.Advance(time.Second)
	third, err := engine.Award(ctx, msg)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if third.State.TotalXP != 28 {
		t.Fatalf("expected 28 total xp, got %d", third.State.TotalXP)
	}
}

func TestAwardAppliesBonusAndRate(t *testing.T) {
	engine, store, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	if err := engine.BindBonusRole(ctx, "g1", "booster", 2); err != nil {
		t.Fatalf("bind bonus: %v", err)
	}
	if _, err := engine.SetXPRate(ctx, "g1", 1.5); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	out, err := engine.Award(ctx, Message{GuildID: "g1", UserID: "u1", RoleIDs: []string{"booster"}})
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if out.Awarded != 42 {
		t.Fatalf("expected floor(14*1.5*2)=42, got %d", out.Awarded)
	}
	state, err := store.FindMemberLevel(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if state.XP != 42 {
		t.Fatalf("expected 42 stored xp, got %d", state.XP)
	}
}

func TestAwardDisabledDoesNothing(t *testing.T) {
	engine, store, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	if _, err := engine.ToggleLeveling(ctx, "g1", false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	out, err := engine.Award(ctx, Message{GuildID: "g1", UserID: "u1"})
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if out.Awarded != 0 {
		t.Fatalf("expected nothing awarded, got %d", out.Awarded)
	}
	if _, err := store.FindMemberLevel(ctx, "g1", "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected no state, got %v", err)
	}
}

func TestLevelUpNotifiesAndSyncs(t *testing.T) {
	engine, store, clock, notifier, syncer := newTestEngine(t)
	ctx := context.Background()
	if err := engine.BindLevelRole(ctx, "g1", 2, "r2"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := store.SaveMemberLevel(ctx, storage.MemberLevel{GuildID: "g1", UserID: "u1", Level: 1, XP: 95}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	out, err := engine.Award(ctx, Message{GuildID: "g1", UserID: "u1", ChannelID: "c1"})
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if out.LevelUps != 1 || out.Level != 2 || !out.Notified {
		t.Fatalf("expected notified level-up to 2, got %+v", out)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].ChannelID != "c1" || len(notifier.sent[0].RoleIDs) != 1 {
		t.Fatalf("unexpected notification %+v", notifier.sent)
	}
	if len(syncer.calls) != 1 || syncer.calls[0] != (syncCall{start: 2, end: 2}) {
		t.Fatalf("unexpected sync calls %+v", syncer.calls)
	}

	// Past the XP cooldown but inside the notify cooldown.
	if err := store.SaveMemberLevel(ctx, storage.MemberLevel{GuildID: "g1", UserID: "u1", Level: 2, XP: 149}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	clock.Advance(3 * time.Second)
	out, err = engine.Award(ctx, Message{GuildID: "g1", UserID: "u1", ChannelID: "c1"})
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if out.LevelUps != 1 || out.Notified {
		t.Fatalf("expected silent level-up, got %+v", out)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected notify cooldown to suppress, got %d", len(notifier.sent))
	}
	if len(syncer.calls) != 2 {
		t.Fatalf("expected roles synced on every level-up, got %d", len(syncer.calls))
	}
}

func TestLevelUpUsesConfiguredChannel(t *testing.T) {
	engine, store, _, notifier, _ := newTestEngine(t)
	ctx := context.Background()
	if _, err := engine.SetLevelUpChannel(ctx, "g1", "levels"); err != nil {
		t.Fatalf("set channel: %v", err)
	}
	if err := store.SaveMemberLevel(ctx, storage.MemberLevel{GuildID: "g1", UserID: "u1", Level: 1, XP: 99}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := engine.Award(ctx, Message{GuildID: "g1", UserID: "u1", ChannelID: "c1"}); err != nil {
		t.Fatalf("award: %v", err)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].ChannelID != "levels" {
		t.Fatalf("expected announcement in levels channel, got %+v", notifier.sent)
	}
}

func TestAdminLevelChanges(t *testing.T) {
	engine, store, _, _, syncer := newTestEngine(t)
	ctx := context.Background()

	state, err := engine.AddLevels(ctx, "g1", "u1", "admin", 3)
	if err != nil {
		t.Fatalf("add levels: %v", err)
	}
	if state.Level != 4 {
		t.Fatalf("expected level 4, got %d", state.Level)
	}
	if len(syncer.calls) != 1 || syncer.calls[0] != (syncCall{start: 2, end: 4}) {
		t.Fatalf("unexpected sync %+v", syncer.calls)
	}

	if err := store.SaveMemberLevel(ctx, storage.MemberLevel{GuildID: "g1", UserID: "u1", Level: 4, XP: 240}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	state, err = engine.SetLevel(ctx, "g1", "u1", "admin", 2)
	if err != nil {
		t.Fatalf("set level: %v", err)
	}
	if state.Level != 2 || state.XP != 149 {
		t.Fatalf("expected level 2 with clamped xp 149, got %d/%d", state.Level, state.XP)
	}

	state, err = engine.RemoveLevels(ctx, "g1", "u1", "admin", 10)
	if err != nil {
		t.Fatalf("remove levels: %v", err)
	}
	if state.Level != 1 {
		t.Fatalf("expected floor of 1, got %d", state.Level)
	}
	if _, err := engine.RemoveLevels(ctx, "g1", "u1", "admin", 1); !errors.Is(err, ErrAtMinimumLevel) {
		t.Fatalf("expected ErrAtMinimumLevel at level 1, got %v", err)
	}
	if _, err := engine.RemoveLevels(ctx, "g1", "nobody", "admin", 1); !errors.Is(err, ErrNoLevelData) {
		t.Fatalf("expected ErrNoLevelData for unknown member, got %v", err)
	}
	if _, err := engine.SetLevel(ctx, "g1", "u1", "admin", 0); !errors.Is(err, ErrInvalidLevel) {
		t.Fatalf("expected ErrInvalidLevel, got %v", err)
	}
}

func TestAdminRequiresLevelingEnabled(t *testing.T) {
	engine, _, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	if _, err := engine.ToggleLeveling(ctx, "g1", false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := engine.AddLevels(ctx, "g1", "u1", "admin", 1); !errors.Is(err, ErrLevelingDisabled) {
		t.Fatalf("expected ErrLevelingDisabled, got %v", err)
	}
	if err := engine.BindLevelRole(ctx, "g1", 5, "r5"); !errors.Is(err, ErrLevelingDisabled) {
		t.Fatalf("expected ErrLevelingDisabled, got %v", err)
	}
	settings, err := engine.ToggleStackable(ctx, "g1")
	if err != nil {
		t.Fatalf("toggle stackable while disabled: %v", err)
	}
	if !settings.Stackable {
		t.Fatal("expected stackable flipped on")
	}
}

func TestResetLevelsRequiresConfirmation(t *testing.T) {
	engine, store, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	if _, err := engine.AddLevels(ctx, "g1", "u1", "admin", 5); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, _, err := engine.ResetLevels(ctx, "g1", "admin", "confirm"); !errors.Is(err, ErrConfirmRequired) {
		t.Fatalf("expected ErrConfirmRequired, got %v", err)
	}
	count, _, err := engine.ResetLevels(ctx, "g1", "admin", ResetConfirmation)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reset, got %d", count)
	}
	state, err := store.FindMemberLevel(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if state.Level != 1 || state.XP != 0 {
		t.Fatalf("expected reset state, got %+v", state)
	}
}

func TestStandingRanksMembers(t *testing.T) {
	engine, _, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	for user, levels := range map[string]int{"a": 1, "b": 4, "c": 2} {
		if _, err := engine.AddLevels(ctx, "g1", user, "admin", levels); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	standing, err := engine.Standing(ctx, "g1", "c")
	if err != nil {
		t.Fatalf("standing: %v", err)
	}
	if standing.Rank != 2 || standing.Members != 3 {
		t.Fatalf("expected rank 2 of 3, got %+v", standing)
	}
	if _, err := engine.Standing(ctx, "g1", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNotificationText(t *testing.T) {
	got := NotificationText(Notification{UserID: "u1", Level: 3, RoleIDs: []string{"r3"}})
	want := "<@u1> has leveled up to level **3**! You earned the <@&r3> role!"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
