package activity

import (
	"time"

	"realmkeeper/internal/storage"
)

// DayKey is the calendar day of t in loc, formatted YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

// PreviousDayKey is the day before t in loc.
func PreviousDayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).AddDate(0, 0, -1).Format(time.DateOnly)
}

// EvaluateStreak updates today's streak from yesterday's record and stamps
// lastActive. A streak continues only when yesterday's last activity
// actually fell on yesterday.
func EvaluateStreak(today, yesterday *storage.ActivityRecord, now time.Time, loc *time.Location) {
	switch {
	case yesterday != nil && !yesterday.LastActive.IsZero() && DayKey(yesterday.LastActive, loc) == PreviousDayKey(now, loc):
		today.Streak = yesterday.Streak + 1
	case today.Streak == 0:
		today.Streak = 1
	}
	if today.Streak > today.HighestStreak {
		today.HighestStreak = today.Streak
	}
	today.LastActive = now
}
