package activity

import (
	"context"
	"fmt"
	"time"

	"realmkeeper/internal/metrics"
	"realmkeeper/internal/modules/audit"
	"realmkeeper/internal/storage"
	"realmkeeper/internal/utils"

	"go.uber.org/zap"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

var untrackedCommands = map[string]struct{}{
	"activity":       {},
	"activity-admin": {},
}

// Tracker turns platform events into day-bucketed activity counters.
type Tracker struct {
	store   *storage.Store
	loc     *time.Location
	clock   Clock
	voice   *utils.Sessions
	stream  *utils.Sessions
	audit   *audit.Logger
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewTracker(store *storage.Store, loc *time.Location, auditLogger *audit.Logger, logger *zap.Logger) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{
		store:  store,
		loc:    loc,
		clock:  realClock{},
		voice:  utils.NewSessions(),
		stream: utils.NewSessions(),
		audit:  auditLogger,
		logger: logger,
	}
}

func (t *Tracker) WithClock(clock Clock) {
	t.clock = clock
}

func (t *Tracker) WithMetrics(m *metrics.Metrics) {
	t.metrics = m
}

func (t *Tracker) Location() *time.Location {
	return t.loc
}

// update runs one transactional change on the user's record for today.
// When own is set the streak is evaluated, since the user acted.
func (t *Tracker) update(ctx context.Context, guildID, userID string, own bool, mutate func(rec *storage.ActivityRecord)) (storage.ActivityRecord, error) {
	now := t.clock.Now()
	return t.store.UpdateActivity(ctx, guildID, userID, DayKey(now, t.loc), PreviousDayKey(now, t.loc), func(today, yesterday *storage.ActivityRecord) error {
		mutate(today)
		if own {
			EvaluateStreak(today, yesterday, now, t.loc)
		}
		return nil
	})
}

func (t *Tracker) RecordMessage(ctx context.Context, guildID, userID string, attachments int, mentioned []string) (storage.ActivityRecord, error) {
	rec, err := t.update(ctx, guildID, userID, true, func(rec *storage.ActivityRecord) {
		rec.Messages++
		rec.AttachmentsSent += max(0, attachments)
		rec.MentionsGiven += len(mentioned)
	})
	if err != nil {
		return storage.ActivityRecord{}, fmt.Errorf("record message: %w", err)
	}
	t.metrics.Activity("message")

	for _, target := range mentioned {
		if target == userID {
			continue
		}
		if _, err := t.update(ctx, guildID, target, false, func(rec *storage.ActivityRecord) {
			rec.MentionsReceived++
		}); err != nil {
			t.logger.Warn("mention tracking failed", zap.String("guild_id", guildID), zap.String("user_id", target), zap.Error(err))
		}
	}
	return rec, nil
}

// RecordReaction counts a reaction added or removed. Removal decrements
// the same counters, never below zero.
func (t *Tracker) RecordReaction(ctx context.Context, guildID, reactorID, authorID string, authorIsBot, added bool) error {
	delta := 1
	if !added {
		delta = -1
	}
	if _, err := t.update(ctx, guildID, reactorID, added, func(rec *storage.ActivityRecord) {
		rec.ReactionsGiven = max(0, rec.ReactionsGiven+delta)
	}); err != nil {
		return fmt.Errorf("record reaction: %w", err)
	}
	t.metrics.Activity("reaction")

	if authorID == "" || authorIsBot || authorID == reactorID {
		return nil
	}
	if _, err := t.update(ctx, guildID, authorID, false, func(rec *storage.ActivityRecord) {
		rec.ReactionsReceived = max(0, rec.ReactionsReceived+delta)
	}); err != nil {
		return fmt.Errorf("record reaction received: %w", err)
	}
	return nil
}

func (t *Tracker) RecordCommand(ctx context.Context, guildID, userID, name string) error {
	if _, skip := untrackedCommands[name]; skip {
		return nil
	}
	if _, err := t.update(ctx, guildID, userID, true, func(rec *storage.ActivityRecord) {
		rec.CommandsUsed++
	}); err != nil {
		return fmt.Errorf("record command: %w", err)
	}
	t.metrics.Activity("command")
	return nil
}

func (t *Tracker) VoiceJoin(guildID, userID string) {
	t.voice.Start(guildID, userID, t.clock.Now())
	t.metrics.SetOpenSessions(t.openSessions())
}

func (t *Tracker) VoiceLeave(ctx context.Context, guildID, userID string) (int, error) {
	duration, ok := t.voice.Stop(guildID, userID, t.clock.Now())
	t.metrics.SetOpenSessions(t.openSessions())
	if !ok {
		return 0, nil
	}
	return t.addMinutes(ctx, guildID, userID, "voice", duration)
}

// VoiceMove ends the current session and opens a new one for the new channel.
func (t *Tracker) VoiceMove(ctx context.Context, guildID, userID string) (int, error) {
	minutes, err := t.VoiceLeave(ctx, guildID, userID)
	t.VoiceJoin(guildID, userID)
	return minutes, err
}

func (t *Tracker) StreamStart(guildID, userID string) {
	t.stream.Start(guildID, userID, t.clock.Now())
	t.metrics.SetOpenSessions(t.openSessions())
}

func (t *Tracker) StreamStop(ctx context.Context, guildID, userID string) (int, error) {
	duration, ok := t.stream.Stop(guildID, userID, t.clock.Now())
	t.metrics.SetOpenSessions(t.openSessions())
	if !ok {
		return 0, nil
	}
	return t.addMinutes(ctx, guildID, userID, "stream", duration)
}

func (t *Tracker) Streaming(guildID, userID string) bool {
	return t.stream.Active(guildID, userID)
}

func (t *Tracker) addMinutes(ctx context.Context, guildID, userID, kind string, duration time.Duration) (int, error) {
	minutes := int(duration / time.Minute)
	if minutes <= 0 {
		return 0, nil
	}
	_, err := t.update(ctx, guildID, userID, true, func(rec *storage.ActivityRecord) {
		if kind == "stream" {
			rec.StreamMinutes += minutes
		} else {
			rec.VoiceMinutes += minutes
		}
	})
	if err != nil {
		return 0, fmt.Errorf("record %s minutes: %w", kind, err)
	}
	t.metrics.Activity(kind)
	if t.audit != nil {
		event := audit.EventVoiceSession
		if kind == "stream" {
			event = audit.EventStreamSession
		}
		t.audit.Log(ctx, event, guildID, userID, fmt.Sprintf("%d minutes", minutes))
	}
	return minutes, nil
}

// Forget drops open sessions for a member who left the guild.
func (t *Tracker) Forget(guildID, userID string) {
	t.voice.Forget(guildID, userID)
	t.stream.Forget(guildID, userID)
	t.metrics.SetOpenSessions(t.openSessions())
}

// Shutdown closes every open session and persists the elapsed minutes.
func (t *Tracker) Shutdown(ctx context.Context) {
	now := t.clock.Now()
	flush := func(kind string, ended []utils.EndedSession) {
		for _, session := range ended {
			if _, err := t.addMinutes(ctx, session.GuildID, session.UserID, kind, session.Duration); err != nil {
				t.logger.Warn("session flush failed", zap.String("kind", kind), zap.String("guild_id", session.GuildID), zap.String("user_id", session.UserID), zap.Error(err))
			}
		}
	}
	flush("voice", t.voice.Drain(now))
	flush("stream", t.stream.Drain(now))
	t.metrics.SetOpenSessions(0)
}

func (t *Tracker) openSessions() int {
	return t.voice.Len() + t.stream.Len()
}
