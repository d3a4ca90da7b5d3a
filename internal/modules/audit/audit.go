package audit

import (
	"context"
	"strings"
	"time"

	"realmkeeper/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

// Event names a guild happening worth keeping in the activity log.
type Event string

const (
	EventLevelUp     Event = "level_up"
	EventLevelAdd    Event = "level_add"
	EventLevelSet    Event = "level_set"
	EventLevelRemove Event = "level_remove"
	EventLevelsReset Event = "levels_reset"

	EventCommandUsed Event = "command_used"
	EventVoiceJoin   Event = "voice_join"
	EventVoiceLeave  Event = "voice_leave"
	EventVoiceMove   Event = "voice_move"
	EventStreamStart Event = "stream_start"
	EventStreamStop  Event = "stream_stop"

	// Minutes credited to a member's activity record when a session closes.
	EventVoiceSession  Event = "voice_session"
	EventStreamSession Event = "stream_session"

	EventActivityRolesConfigured Event = "activity_roles_configured"
	EventActivityReset           Event = "activity_reset"
	EventStreaksReset            Event = "streaks_reset"

	EventRealmWarWon        Event = "realmwar_won"
	EventRealmWarCanceled   Event = "realmwar_canceled"
	EventRealmWarCompleted  Event = "realmwar_completed"
	EventRealmWarWinnerRole Event = "realmwar_winner_role"

	EventGiveawayStarted   Event = "giveaway_started"
	EventGiveawayWinners   Event = "giveaway_winners"
	EventGiveawayReroll    Event = "giveaway_reroll"
	EventGiveawayNoWinners Event = "giveaway_no_winners"
)

// Destructive admin actions are logged as warnings.
var warnEvents = map[Event]bool{
	EventLevelsReset:      true,
	EventActivityReset:    true,
	EventStreaksReset:     true,
	EventRealmWarCanceled: true,
}

func (e Event) Level() string {
	if warnEvents[e] {
		return LevelWarn
	}
	return LevelInfo
}

// Label turns "giveaway_no_winners" into "Giveaway No Winners".
func (e Event) Label() string {
	words := strings.Split(string(e), "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		if word == "realmwar" {
			words[i] = "RealmWar"
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// Logger persists activity-log entries and mirrors them to the guild's log
// channel through the notifier.
type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	now    func() time.Time
	notify func(context.Context, storage.AuditLog)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger, now: time.Now}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

// Log records event for userID in guildID. userID may be empty for
// guild-wide events.
func (l *Logger) Log(ctx context.Context, event Event, guildID, userID, details string) {
	entry := storage.AuditLog{
		ID:        uuid.NewString(),
		GuildID:   guildID,
		UserID:    userID,
		Level:     event.Level(),
		Event:     string(event),
		Details:   details,
		CreatedAt: l.now(),
	}
	if l.store != nil {
		if err := l.store.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("activity log write failed", zap.String("event", entry.Event), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Debug("activity logged",
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
		zap.String("event", entry.Event),
	)
}

// Cleanup drops entries older than the retention window.
func (l *Logger) Cleanup(ctx context.Context, retentionDays int) error {
	if l.store == nil || retentionDays <= 0 {
		return nil
	}
	return l.store.CleanupAuditLogs(ctx, retentionDays)
}
