package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type ActivityRecord struct {
	GuildID           string
	UserID            string
	Day               string
	Messages          int
	ReactionsGiven    int
	ReactionsReceived int
	VoiceMinutes      int
	StreamMinutes     int
	CommandsUsed      int
	AttachmentsSent   int
	MentionsGiven     int
	MentionsReceived  int
	Streak            int
	HighestStreak     int
	LastActive        time.Time
}

type ActivityRoleTiers struct {
	GuildID       string
	Top1To3       string
	Top4To10      string
	Top11To15     string
	Top16To20     string
	OverallActive string
	Inactive      string
}

type ActivityTotals struct {
	Users        int
	Messages     int
	VoiceMinutes int
	Reactions    int
}

type Duplicate struct {
	Table   string
	GuildID string
	UserID  string
	Day     string
	Count   int
}

const activityColumns = `guild_id, user_id, day, messages, reactions_given, reactions_received,
	voice_minutes, stream_minutes, commands_used, attachments_sent, mentions_given, mentions_received,
	streak, highest_streak, last_active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (ActivityRecord, error) {
	var rec ActivityRecord
	var lastActive int64
	err := row.Scan(
		&rec.GuildID,
		&rec.UserID,
		&rec.Day,
		&rec.Messages,
		&rec.ReactionsGiven,
		&rec.ReactionsReceived,
		&rec.VoiceMinutes,
		&rec.StreamMinutes,
		&rec.CommandsUsed,
		&rec.AttachmentsSent,
		&rec.MentionsGiven,
		&rec.MentionsReceived,
		&rec.Streak,
		&rec.HighestStreak,
		&lastActive,
	)
	if err != nil {
		return ActivityRecord{}, err
	}
	rec.LastActive = fromUnix(lastActive)
	return rec, nil
}

// UpdateActivity gets or creates the record for day, loads the record for
// previousDay when one exists, applies fn and writes today's record back.
func (s *Store) UpdateActivity(ctx context.Context, guildID, userID, day, previousDay string, fn func(today *ActivityRecord, yesterday *ActivityRecord) error) (ActivityRecord, error) {
	var result ActivityRecord
	err := s.withTx(ctx, func(tx txn) error {
		_, err := tx.exec(ctx, `
			INSERT INTO activity_records (guild_id, user_id, day) VALUES (?, ?, ?)
			ON CONFLICT(guild_id, user_id, day) DO NOTHING
		`, guildID, userID, day)
		if err != nil {
			return err
		}

		result, err = scanActivity(tx.queryRow(ctx, `SELECT `+activityColumns+` FROM activity_records WHERE guild_id = ? AND user_id = ? AND day = ?`, guildID, userID, day))
		if err != nil {
			return err
		}

		var yesterday *ActivityRecord
		prev, err := scanActivity(tx.queryRow(ctx, `SELECT `+activityColumns+` FROM activity_records WHERE guild_id = ? AND user_id = ? AND day = ?`, guildID, userID, previousDay))
		switch {
		case err == nil:
			yesterday = &prev
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		if err := fn(&result, yesterday); err != nil {
			return err
		}

		_, err = tx.exec(ctx, `
			UPDATE activity_records SET
				messages = ?, reactions_given = ?, reactions_received = ?, voice_minutes = ?,
				stream_minutes = ?, commands_used = ?, attachments_sent = ?, mentions_given = ?,
				mentions_received = ?, streak = ?, highest_streak = ?, last_active = ?
			WHERE guild_id = ? AND user_id = ? AND day = ?
		`,
			result.Messages,
			result.ReactionsGiven,
			result.ReactionsReceived,
			result.VoiceMinutes,
			result.StreamMinutes,
			result.CommandsUsed,
			result.AttachmentsSent,
			result.MentionsGiven,
			result.MentionsReceived,
			result.Streak,
			result.HighestStreak,
			toUnix(result.LastActive),
			guildID, userID, day,
		)
		return err
	})
	if err != nil {
		return ActivityRecord{}, err
	}
	return result, nil
}

func (s *Store) ActivityRecord(ctx context.Context, guildID, userID, day string) (ActivityRecord, error) {
	rec, err := scanActivity(s.queryRow(ctx, `SELECT `+activityColumns+` FROM activity_records WHERE guild_id = ? AND user_id = ? AND day = ?`, guildID, userID, day))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ActivityRecord{}, ErrNotFound
		}
		return ActivityRecord{}, err
	}
	return rec, nil
}

// ActivityRange returns every record of the guild with fromDay <= day <= toDay.
func (s *Store) ActivityRange(ctx context.Context, guildID, fromDay, toDay string) ([]ActivityRecord, error) {
	rows, err := s.query(ctx, `
		SELECT `+activityColumns+` FROM activity_records
		WHERE guild_id = ? AND day >= ? AND day <= ?
		ORDER BY day ASC, user_id ASC
	`, guildID, fromDay, toDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ActivityRecord
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) ActivityTotals(ctx context.Context, guildID string) (ActivityTotals, error) {
	var totals ActivityTotals
	row := s.queryRow(ctx, `
		SELECT COUNT(DISTINCT user_id),
			COALESCE(SUM(messages), 0),
			COALESCE(SUM(voice_minutes), 0),
			COALESCE(SUM(reactions_given + reactions_received), 0)
		FROM activity_records WHERE guild_id = ?
	`, guildID)
	if err := row.Scan(&totals.Users, &totals.Messages, &totals.VoiceMinutes, &totals.Reactions); err != nil {
		return ActivityTotals{}, err
	}
	return totals, nil
}

func (s *Store) DeleteGuildActivity(ctx context.Context, guildID string) (int64, error) {
	result, err := s.exec(ctx, `DELETE FROM activity_records WHERE guild_id = ?`, guildID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Store) ResetGuildStreaks(ctx context.Context, guildID string) (int64, error) {
	result, err := s.exec(ctx, `UPDATE activity_records SET streak = 0, highest_streak = 0 WHERE guild_id = ?`, guildID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Store) ActivityRoleTiers(ctx context.Context, guildID string) (ActivityRoleTiers, error) {
	tiers := ActivityRoleTiers{GuildID: guildID}
	row := s.queryRow(ctx, `
		SELECT top1to3, top4to10, top11to15, top16to20, overall_active, inactive
		FROM activity_role_tiers WHERE guild_id = ?
	`, guildID)
	err := row.Scan(&tiers.Top1To3, &tiers.Top4To10, &tiers.Top11To15, &tiers.Top16To20, &tiers.OverallActive, &tiers.Inactive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tiers, ErrNotFound
		}
		return ActivityRoleTiers{}, err
	}
	return tiers, nil
}

func (s *Store) SaveActivityRoleTiers(ctx context.Context, tiers ActivityRoleTiers) error {
	_, err := s.exec(ctx, `
		INSERT INTO activity_role_tiers (guild_id, top1to3, top4to10, top11to15, top16to20, overall_active, inactive)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			top1to3 = excluded.top1to3,
			top4to10 = excluded.top4to10,
			top11to15 = excluded.top11to15,
			top16to20 = excluded.top16to20,
			overall_active = excluded.overall_active,
			inactive = excluded.inactive
	`, tiers.GuildID, tiers.Top1To3, tiers.Top4To10, tiers.Top11To15, tiers.Top16To20, tiers.OverallActive, tiers.Inactive)
	return err
}

func (s *Store) ListActivityRoleGuilds(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `SELECT guild_id FROM activity_role_tiers ORDER BY guild_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guilds []string
	for rows.Next() {
		var guildID string
		if err := rows.Scan(&guildID); err != nil {
			return nil, err
		}
		guilds = append(guilds, guildID)
	}
	return guilds, rows.Err()
}

// Duplicates reports keys that appear more than once in activity_records or
// member_levels. Databases created from the bundled migrations enforce
// uniqueness, so this only finds rows imported from elsewhere.
func (s *Store) Duplicates(ctx context.Context) ([]Duplicate, error) {
	var dups []Duplicate

	rows, err := s.query(ctx, `
		SELECT guild_id, user_id, day, COUNT(*) FROM activity_records
		GROUP BY guild_id, user_id, day HAVING COUNT(*) > 1
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		dup := Duplicate{Table: "activity_records"}
		if err := rows.Scan(&dup.GuildID, &dup.UserID, &dup.Day, &dup.Count); err != nil {
			rows.Close()
			return nil, err
		}
		dups = append(dups, dup)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = s.query(ctx, `
		SELECT guild_id, user_id, COUNT(*) FROM member_levels
		GROUP BY guild_id, user_id HAVING COUNT(*) > 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		dup := Duplicate{Table: "member_levels"}
		if err := rows.Scan(&dup.GuildID, &dup.UserID, &dup.Count); err != nil {
			return nil, err
		}
		dups = append(dups, dup)
	}
	return dups, rows.Err()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}
