package analytics

import (
	"context"
	"testing"
	"time"

	"realmkeeper/internal/storage"
)

func TestSummaryCombinesActivityAndAudit(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	now := time.Now()

	for _, entry := range []storage.AuditLog{
		{ID: "1", GuildID: "g1", Level: "INFO", Event: "level_up", CreatedAt: now},
		{ID: "2", GuildID: "g1", Level: "INFO", Event: "level_up", CreatedAt: now},
		{ID: "3", GuildID: "g1", Level: "WARN", Event: "levels_reset", CreatedAt: now},
		{ID: "4", GuildID: "g2", Level: "INFO", Event: "level_up", CreatedAt: now},
	} {
		if err := store.AddAuditLog(ctx, entry); err != nil {
			t.Fatalf("add log: %v", err)
		}
	}
	_, err = store.UpdateActivity(ctx, "g1", "u1", "2024-03-01", "2024-02-29", func(today, _ *storage.ActivityRecord) error {
		today.Messages = 4
		today.VoiceMinutes = 10
		return nil
	})
	if err != nil {
		t.Fatalf("update activity: %v", err)
	}

	summary, err := New(store).Summary(ctx, "g1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Audit.Total != 3 || summary.Audit.ByEvent["level_up"] != 2 || summary.Audit.ByLevel["WARN"] != 1 {
		t.Fatalf("unexpected audit report %+v", summary.Audit)
	}
	if summary.Activity.Users != 1 || summary.Activity.Messages != 4 || summary.Activity.VoiceMinutes != 10 {
		t.Fatalf("unexpected totals %+v", summary.Activity)
	}
}
