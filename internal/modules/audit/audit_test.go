package audit

import (
	"context"
	"testing"
	"time"

	"realmkeeper/internal/storage"

	"go.uber.org/zap"
)

func TestLogPersistsAndNotifies(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	ctx := context.Background()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := NewLogger(store, zap.NewNop())
	var mirrored []storage.AuditLog
	logger.SetNotifier(func(_ context.Context, entry storage.AuditLog) {
		mirrored = append(mirrored, entry)
	})

	logger.Log(ctx, EventLevelsReset, "g1", "u1", "3 members reset")
	logger.Log(ctx, EventLevelUp, "g1", "u2", "level 1 -> 2")

	logs, err := store.ListAuditLogs(ctx, "g1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if len(mirrored) != 2 {
		t.Fatalf("expected 2 mirrored entries, got %d", len(mirrored))
	}
	if mirrored[0].ID == "" || mirrored[0].ID == mirrored[1].ID {
		t.Fatalf("expected distinct ids, got %q and %q", mirrored[0].ID, mirrored[1].ID)
	}
	if mirrored[0].Level != LevelWarn || mirrored[1].Level != LevelInfo {
		t.Fatalf("unexpected levels %q and %q", mirrored[0].Level, mirrored[1].Level)
	}
	if mirrored[1].Event != "level_up" {
		t.Fatalf("unexpected event %q", mirrored[1].Event)
	}
}

func TestEventLevelAndLabel(t *testing.T) {
	cases := []struct {
		event Event
		level string
		label string
	}{
		{EventGiveawayNoWinners, LevelInfo, "Giveaway No Winners"},
		{EventRealmWarWon, LevelInfo, "RealmWar Won"},
		{EventRealmWarCanceled, LevelWarn, "RealmWar Canceled"},
		{EventActivityReset, LevelWarn, "Activity Reset"},
		{EventVoiceSession, LevelInfo, "Voice Session"},
	}
	for _, tc := range cases {
		if got := tc.event.Level(); got != tc.level {
			t.Fatalf("%s: expected level %s, got %s", tc.event, tc.level, got)
		}
		if got := tc.event.Label(); got != tc.label {
			t.Fatalf("%s: expected label %q, got %q", tc.event, tc.label, got)
		}
	}
}

func TestLogWithoutStore(t *testing.T) {
	logger := NewLogger(nil, zap.NewNop())
	logger.Log(context.Background(), EventCommandUsed, "g1", "u1", "/level")
	if err := logger.Cleanup(context.Background(), 30); err != nil {
		t.Fatalf("cleanup without store: %v", err)
	}
}
