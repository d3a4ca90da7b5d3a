package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestMigrateIsRepeatable(t *testing.T) {
	store := newTestStore(t)
	if err := store.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRebindPostgres(t *testing.T) {
	store := &Store{driver: DriverPostgres}
	got := store.rebind(`SELECT a FROM t WHERE b = ? AND c = ?`)
	if got != `SELECT a FROM t WHERE b = $1 AND c = $2` {
		t.Fatalf("unexpected rebind: %s", got)
	}
	sqlite := &Store{driver: DriverSQLite}
	if sqlite.rebind("x = ?") != "x = ?" {
		t.Fatalf("sqlite query should be untouched")
	}
}

func TestLevelSettingsCreatedFromDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	defaults := LevelSettings{LevelingEnabled: true, XPRate: 1, StartingXP: 1000, XPPerLevel: 500}

	got, err := store.LevelSettings(ctx, "g1", defaults)
	if err != nil {
		t.Fatalf("level settings: %v", err)
	}
	if !got.LevelingEnabled || got.StartingXP != 1000 || got.XPPerLevel != 500 {
		t.Fatalf("unexpected defaults: %+v", got)
	}

	got.Stackable = true
	got.LevelUpChannelID = "c1"
	if err := store.SaveLevelSettings(ctx, got); err != nil {
		t.Fatalf("save: %v", err)
	}

	again, err := store.LevelSettings(ctx, "g1", LevelSettings{StartingXP: 1})
	if err != nil {
		t.Fatalf("level settings again: %v", err)
	}
	if !again.Stackable || again.LevelUpChannelID != "c1" || again.StartingXP != 1000 {
		t.Fatalf("defaults must not overwrite saved settings: %+v", again)
	}
}

func TestUpdateMemberLevelRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpdateMemberLevel(ctx, "g1", "u1", func(state *MemberLevel) error {
		state.Level = 3
		state.XP = 10
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	boom := errors.New("boom")
	if _, err := store.UpdateMemberLevel(ctx, "g1", "u1", func(state *MemberLevel) error {
		state.Level = 99
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := store.FindMemberLevel(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Level != 3 || got.XP != 10 {
		t.Fatalf("expected rollback to keep level 3, got %+v", got)
	}

	if _, err := store.FindMemberLevel(ctx, "g1", "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListMemberLevelsOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	states := []MemberLevel{
		{GuildID: "g1", UserID: "a", Level: 2, XP: 5},
		{GuildID: "g1", UserID: "b", Level: 3, XP: 1},
		{GuildID: "g1", UserID: "c", Level: 2, XP: 50},
		{GuildID: "g2", UserID: "d", Level: 9, XP: 0},
	}
	for _, state := range states {
		if err := store.SaveMemberLevel(ctx, state); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := store.ListMemberLevels(ctx, "g1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"b", "c", "a"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].UserID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].UserID)
		}
	}

	if _, err := store.ResetMemberLevels(ctx, "g1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	reset, _ := store.FindMemberLevel(ctx, "g1", "b")
	if reset.Level != 1 || reset.XP != 0 || reset.TotalXP != 0 {
		t.Fatalf("expected reset state, got %+v", reset)
	}
	other, _ := store.FindMemberLevel(ctx, "g2", "d")
	if other.Level != 9 {
		t.Fatalf("reset must be guild scoped, got %+v", other)
	}
}

func TestLevelAndBonusRoleBindings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetLevelRole(ctx, LevelRole{GuildID: "g1", Level: 5, RoleID: "r5"}); err != nil {
		t.Fatalf("set level role: %v", err)
	}
	if err := store.SetLevelRole(ctx, LevelRole{GuildID: "g1", Level: 5, RoleID: "r5b"}); err != nil {
		t.Fatalf("replace level role: %v", err)
	}
	roles, err := store.ListLevelRoles(ctx, "g1")
	if err != nil {
		t.Fatalf("list level roles: %v", err)
	}
	if len(roles) != 1 || roles[0].RoleID != "r5b" {
		t.Fatalf("expected one binding per level, got %+v", roles)
	}
	if err := store.RemoveLevelRole(ctx, "g1", 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound removing missing binding, got %v", err)
	}

	if err := store.SetBonusRole(ctx, BonusRole{GuildID: "g1", RoleID: "vip", Multiplier: 2}); err != nil {
		t.Fatalf("set bonus role: %v", err)
	}
	bonus, err := store.ListBonusRoles(ctx, "g1")
	if err != nil || len(bonus) != 1 || bonus[0].Multiplier != 2 {
		t.Fatalf("unexpected bonus roles %+v (%v)", bonus, err)
	}
	if err := store.RemoveBonusRole(ctx, "g1", "vip"); err != nil {
		t.Fatalf("remove bonus role: %v", err)
	}
}

func TestUpdateActivityLoadsPreviousDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	active := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.UpdateActivity(ctx, "g1", "u1", "2024-03-01", "2024-02-29", func(today, yesterday *ActivityRecord) error {
		if yesterday != nil {
			t.Fatalf("expected no previous record")
		}
		today.Messages++
		today.Streak = 4
		today.HighestStreak = 4
		today.LastActive = active
		return nil
	}); err != nil {
		t.Fatalf("update day one: %v", err)
	}

	got, err := store.UpdateActivity(ctx, "g1", "u1", "2024-03-02", "2024-03-01", func(today, yesterday *ActivityRecord) error {
		if yesterday == nil || yesterday.Streak != 4 || !yesterday.LastActive.Equal(active) {
			t.Fatalf("expected previous record, got %+v", yesterday)
		}
		today.Messages += 2
		return nil
	})
	if err != nil {
		t.Fatalf("update day two: %v", err)
	}
	if got.Messages != 2 || got.Day != "2024-03-02" {
		t.Fatalf("unexpected record %+v", got)
	}

	records, err := store.ActivityRange(ctx, "g1", "2024-03-01", "2024-03-02")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	totals, err := store.ActivityTotals(ctx, "g1")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Users != 1 || totals.Messages != 3 {
		t.Fatalf("unexpected totals %+v", totals)
	}

	if _, err := store.ResetGuildStreaks(ctx, "g1"); err != nil {
		t.Fatalf("reset streaks: %v", err)
	}
	rec, err := store.ActivityRecord(ctx, "g1", "u1", "2024-03-01")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Streak != 0 || rec.HighestStreak != 0 {
		t.Fatalf("expected streaks cleared, got %+v", rec)
	}

	dups, err := store.Duplicates(ctx)
	if err != nil {
		t.Fatalf("duplicates: %v", err)
	}
	if len(dups) != 0 {
		t.Fatalf("unique keys should prevent duplicates, got %+v", dups)
	}
}

func TestRealmWarLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	first, err := store.CreateRealmWar(ctx, RealmWar{ID: "w1", GuildID: "g1", MinParticipants: 2, MaxParticipants: 2, Status: "active", CreatedAt: now}, "active")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.WarNumber != 1 {
		t.Fatalf("expected war number 1, got %d", first.WarNumber)
	}
	if _, err := store.CreateRealmWar(ctx, RealmWar{ID: "w2", GuildID: "g1", MinParticipants: 2, MaxParticipants: 3, Status: "active", CreatedAt: now}, "active"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	second, err := store.CreateRealmWar(ctx, RealmWar{ID: "w3", GuildID: "g2", MinParticipants: 2, MaxParticipants: 3, Status: "active", CreatedAt: now}, "active")
	if err != nil {
		t.Fatalf("create other guild: %v", err)
	}
	if second.WarNumber != 2 {
		t.Fatalf("war numbers are global, expected 2, got %d", second.WarNumber)
	}

	if _, err := store.JoinRealmWar(ctx, "w1", "a", "active", now); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, err := store.JoinRealmWar(ctx, "w1", "a", "active", now); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
	count, err := store.JoinRealmWar(ctx, "w1", "b", "active", now.Add(time.Second))
	if err != nil || count != 2 {
		t.Fatalf("join b: count=%d err=%v", count, err)
	}
	if _, err := store.JoinRealmWar(ctx, "w1", "c", "active", now); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}

	if err := store.RecordElimination(ctx, "w1", RealmWarElimination{UserID: "b", KillerID: "a", Round: 1, At: now}); err != nil {
		t.Fatalf("record elimination: %v", err)
	}
	if err := store.TransitionRealmWar(ctx, "w1", "active", "completed", "a", now); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := store.TransitionRealmWar(ctx, "w1", "active", "canceled", "", now); !errors.Is(err, ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}

	war, err := store.RealmWarByNumber(ctx, 1)
	if err != nil {
		t.Fatalf("by number: %v", err)
	}
	if war.Status != "completed" || war.WinnerID != "a" || len(war.Participants) != 2 || len(war.Eliminations) != 1 {
		t.Fatalf("unexpected war %+v", war)
	}
	if _, err := store.FindRealmWar(ctx, "g1", "active"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no active war, got %v", err)
	}
}

func TestJoinRealmWarRejectsStartedMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if _, err := store.CreateRealmWar(ctx, RealmWar{ID: "w1", GuildID: "g1", MinParticipants: 2, MaxParticipants: 5, Status: "active", CreatedAt: now}, "active"); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, userID := range []string{"a", "b"} {
		if _, err := store.JoinRealmWar(ctx, "w1", userID, "active", now); err != nil {
			t.Fatalf("join %s: %v", userID, err)
		}
	}
	if err := store.MarkRealmWarStarted(ctx, "w1", now.Add(time.Minute)); err != nil {
		t.Fatalf("mark started: %v", err)
	}

	if _, err := store.JoinRealmWar(ctx, "w1", "late", "active", now.Add(2*time.Minute)); !errors.Is(err, ErrStaleState) {
		t.Fatalf("expected ErrStaleState for a started match, got %v", err)
	}
	war, err := store.RealmWar(ctx, "w1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(war.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(war.Participants))
	}
}

func TestGiveawayEntriesAndClose(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	g := Giveaway{ID: "gw1", GuildID: "g1", ChannelID: "c1", MessageID: "m1", Prize: "Nitro", HostID: "h", Winners: 1, EndsAt: now, Ongoing: true, CreatedAt: now}
	if err := store.CreateGiveaway(ctx, g); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.JoinGiveaway(ctx, "gw1", "u1", now); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := store.JoinGiveaway(ctx, "gw1", "u1", now); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}

	due, err := store.DueGiveaways(ctx, now.Add(time.Minute))
	if err != nil || len(due) != 1 {
		t.Fatalf("expected one due giveaway, got %d (%v)", len(due), err)
	}

	if err := store.CloseGiveaway(ctx, "gw1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.CloseGiveaway(ctx, "gw1"); !errors.Is(err, ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}
	draw, err := store.RecordGiveawayWinners(ctx, "gw1", []string{"u1"}, now)
	if err != nil || draw != 1 {
		t.Fatalf("record winners: draw=%d err=%v", draw, err)
	}
	draw, _ = store.RecordGiveawayWinners(ctx, "gw1", []string{"u1"}, now)
	if draw != 2 {
		t.Fatalf("expected reroll draw 2, got %d", draw)
	}

	got, err := store.GiveawayByMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("by message: %v", err)
	}
	if got.Ongoing {
		t.Fatalf("expected giveaway closed")
	}
}

func TestLogSettingsAndAudit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	settings, err := store.LogSettings(ctx, "g1")
	if err != nil || settings.LogChannelID != "" {
		t.Fatalf("expected empty log settings, got %+v (%v)", settings, err)
	}
	if err := store.SaveLogSettings(ctx, LogSettings{GuildID: "g1", LogChannelID: "c9"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	settings, _ = store.LogSettings(ctx, "g1")
	if settings.LogChannelID != "c9" {
		t.Fatalf("expected c9, got %q", settings.LogChannelID)
	}

	if err := store.AddAuditLog(ctx, AuditLog{ID: "a1", GuildID: "g1", Level: "INFO", Event: "level_up", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("add audit: %v", err)
	}
	logs, err := store.ListAuditLogs(ctx, "g1", time.Now().Add(-time.Hour))
	if err != nil || len(logs) != 1 {
		t.Fatalf("expected one audit log, got %d (%v)", len(logs), err)
	}
}
