package activity

import (
	"context"
	"errors"
	"sort"
	"time"

	"realmkeeper/internal/storage"
)

// Entry aggregates one member's records over a window.
type Entry struct {
	UserID        string
	Messages      int
	Reactions     int
	VoiceMinutes  int
	StreamMinutes int
	Commands      int
	Attachments   int
	MaxStreak     int
	Days          int
	Score         float64
}

func DisplayScore(e Entry) float64 {
	return float64(e.Messages) + float64(e.Reactions)*0.5 + float64(e.VoiceMinutes)*2 + float64(e.StreamMinutes)*1.5 + float64(e.MaxStreak)*10
}

// RankScore weighs the weekly role ranking. Streams do not count.
func RankScore(e Entry) float64 {
	return float64(e.Messages) + float64(e.Reactions)*0.5 + float64(e.VoiceMinutes)*2 + float64(e.MaxStreak)*10
}

// Aggregate folds records per user, scores them and sorts by score
// descending. Ties keep a stable user ID order.
func Aggregate(records []storage.ActivityRecord, score func(Entry) float64) []Entry {
	byUser := make(map[string]*Entry)
	var order []string
	for _, rec := range records {
		entry, ok := byUser[rec.UserID]
		if !ok {
			entry = &Entry{UserID: rec.UserID}
			byUser[rec.UserID] = entry
			order = append(order, rec.UserID)
		}
		entry.Messages += rec.Messages
		entry.Reactions += rec.ReactionsGiven + rec.ReactionsReceived
		entry.VoiceMinutes += rec.VoiceMinutes
		entry.StreamMinutes += rec.StreamMinutes
		entry.Commands += rec.CommandsUsed
		entry.Attachments += rec.AttachmentsSent
		entry.MaxStreak = max(entry.MaxStreak, rec.Streak)
		entry.Days++
	}

	entries := make([]Entry, 0, len(order))
	for _, userID := range order {
		entry := byUser[userID]
		entry.Score = score(*entry)
		entries = append(entries, *entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	return entries
}

func (t *Tracker) Leaderboard(ctx context.Context, guildID string, period Period, limit int) ([]Entry, error) {
	now := t.clock.Now()
	records, err := t.store.ActivityRange(ctx, guildID, DayKey(period.Start(now, t.loc), t.loc), DayKey(now, t.loc))
	if err != nil {
		return nil, err
	}
	entries := Aggregate(records, DisplayScore)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// RankWindow scores the last days calendar days with RankScore.
func (t *Tracker) RankWindow(ctx context.Context, guildID string, days int) ([]Entry, error) {
	if days <= 0 {
		days = 7
	}
	now := t.clock.Now()
	from := DayKey(now.AddDate(0, 0, -days), t.loc)
	records, err := t.store.ActivityRange(ctx, guildID, from, DayKey(now, t.loc))
	if err != nil {
		return nil, err
	}
	return Aggregate(records, RankScore), nil
}

// MemberSummary is what the activity command shows a member.
type MemberSummary struct {
	Today         storage.ActivityRecord
	Week          Entry
	HighestStreak int
}

func (t *Tracker) MemberSummary(ctx context.Context, guildID, userID string) (MemberSummary, error) {
	now := t.clock.Now()
	summary := MemberSummary{Week: Entry{UserID: userID}}

	today, err := t.store.ActivityRecord(ctx, guildID, userID, DayKey(now, t.loc))
	switch {
	case err == nil:
		summary.Today = today
		summary.HighestStreak = today.HighestStreak
	case !errors.Is(err, storage.ErrNotFound):
		return MemberSummary{}, err
	}

	records, err := t.store.ActivityRange(ctx, guildID, DayKey(Weekly.Start(now, t.loc), t.loc), DayKey(now, t.loc))
	if err != nil {
		return MemberSummary{}, err
	}
	var own []storage.ActivityRecord
	for _, rec := range records {
		if rec.UserID == userID {
			own = append(own, rec)
			summary.HighestStreak = max(summary.HighestStreak, rec.HighestStreak)
		}
	}
	if entries := Aggregate(own, DisplayScore); len(entries) == 1 {
		summary.Week = entries[0]
	}
	return summary, nil
}

func (t *Tracker) Stats(ctx context.Context, guildID string) (storage.ActivityTotals, error) {
	return t.store.ActivityTotals(ctx, guildID)
}

func (t *Tracker) ResetAll(ctx context.Context, guildID string) (int64, error) {
	return t.store.DeleteGuildActivity(ctx, guildID)
}

func (t *Tracker) ResetStreaks(ctx context.Context, guildID string) (int64, error) {
	return t.store.ResetGuildStreaks(ctx, guildID)
}

// Since is exposed for the stats command window.
func (t *Tracker) Since(period Period) time.Time {
	return period.Start(t.clock.Now(), t.loc)
}
