package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type AuditLog struct {
	ID        string
	GuildID   string
	UserID    string
	Level     string
	Event     string
	Details   string
	CreatedAt time.Time
}

type LogSettings struct {
	GuildID      string
	LogChannelID string
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.exec(ctx, `
		INSERT INTO audit_logs (id, guild_id, user_id, level, event, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, log.ID, log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix())
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	rows, err := s.query(ctx, `
		SELECT id, guild_id, user_id, level, event, details, created_at
		FROM audit_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var log AuditLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Level, &log.Event, &log.Details, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *Store) CleanupAuditLogs(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	_, err := s.exec(ctx, `DELETE FROM audit_logs WHERE created_at < ?`, cutoff.Unix())
	return err
}

func (s *Store) LogSettings(ctx context.Context, guildID string) (LogSettings, error) {
	settings := LogSettings{GuildID: guildID}
	err := s.queryRow(ctx, `SELECT log_channel_id FROM log_settings WHERE guild_id = ?`, guildID).Scan(&settings.LogChannelID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return LogSettings{}, err
	}
	return settings, nil
}

func (s *Store) SaveLogSettings(ctx context.Context, settings LogSettings) error {
	_, err := s.exec(ctx, `
		INSERT INTO log_settings (guild_id, log_channel_id) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET log_channel_id = excluded.log_channel_id
	`, settings.GuildID, settings.LogChannelID)
	return err
}
