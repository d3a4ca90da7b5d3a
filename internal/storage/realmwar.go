package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrAlreadyJoined = errors.New("already joined")
	ErrFull          = errors.New("full")
	ErrStaleState    = errors.New("state changed concurrently")
	ErrConflict      = errors.New("conflicting record exists")
)

type RealmWar struct {
	ID              string
	GuildID         string
	WarNumber       int
	MinParticipants int
	MaxParticipants int
	Status          string
	WinnerID        string
	ChannelID       string
	MessageID       string
	CreatedAt       time.Time
	StartedAt       time.Time
	EndedAt         time.Time
	Participants    []RealmWarParticipant
	Eliminations    []RealmWarElimination
}

type RealmWarParticipant struct {
	UserID   string
	JoinedAt time.Time
}

type RealmWarElimination struct {
	UserID   string
	KillerID string
	Round    int
	At       time.Time
}

type RealmWarConfig struct {
	GuildID      string
	WinnerRoleID string
}

const realmWarColumns = `id, guild_id, war_number, min_participants, max_participants, status,
	winner_id, channel_id, message_id, created_at, started_at, ended_at`

// CreateRealmWar assigns the next war number (count of all wars + 1) and
// inserts war. When exclusiveStatus is set and the guild already has a war
// in that status, ErrConflict is returned.
func (s *Store) CreateRealmWar(ctx context.Context, war RealmWar, exclusiveStatus string) (RealmWar, error) {
	err := s.withTx(ctx, func(tx txn) error {
		if exclusiveStatus != "" {
			var existing int
			if err := tx.queryRow(ctx, `SELECT COUNT(*) FROM realm_wars WHERE guild_id = ? AND status = ?`, war.GuildID, exclusiveStatus).Scan(&existing); err != nil {
				return err
			}
			if existing > 0 {
				return ErrConflict
			}
		}

		var count int
		if err := tx.queryRow(ctx, `SELECT COUNT(*) FROM realm_wars`).Scan(&count); err != nil {
			return err
		}
		war.WarNumber = count + 1

		_, err := tx.exec(ctx, `
			INSERT INTO realm_wars (`+realmWarColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			war.ID,
			war.GuildID,
			war.WarNumber,
			war.MinParticipants,
			war.MaxParticipants,
			war.Status,
			war.WinnerID,
			war.ChannelID,
			war.MessageID,
			toUnix(war.CreatedAt),
			toUnix(war.StartedAt),
			toUnix(war.EndedAt),
		)
		return err
	})
	if err != nil {
		return RealmWar{}, err
	}
	return war, nil
}

func (s *Store) RealmWar(ctx context.Context, id string) (RealmWar, error) {
	return s.loadRealmWar(ctx, `SELECT `+realmWarColumns+` FROM realm_wars WHERE id = ?`, id)
}

func (s *Store) RealmWarByNumber(ctx context.Context, warNumber int) (RealmWar, error) {
	return s.loadRealmWar(ctx, `SELECT `+realmWarColumns+` FROM realm_wars WHERE war_number = ?`, warNumber)
}

// FindRealmWar returns the guild's most recent war in the given status.
func (s *Store) FindRealmWar(ctx context.Context, guildID, status string) (RealmWar, error) {
	return s.loadRealmWar(ctx, `
		SELECT `+realmWarColumns+` FROM realm_wars
		WHERE guild_id = ? AND status = ?
		ORDER BY war_number DESC LIMIT 1
	`, guildID, status)
}

func (s *Store) ListRealmWarsByStatus(ctx context.Context, status string) ([]RealmWar, error) {
	rows, err := s.query(ctx, `SELECT `+realmWarColumns+` FROM realm_wars WHERE status = ? ORDER BY war_number ASC`, status)
	if err != nil {
		return nil, err
	}
	var wars []RealmWar
	for rows.Next() {
		war, err := scanRealmWar(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		wars = append(wars, war)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range wars {
		if err := s.loadRealmWarMembers(ctx, &wars[i]); err != nil {
			return nil, err
		}
	}
	return wars, nil
}

func (s *Store) loadRealmWar(ctx context.Context, query string, args ...any) (RealmWar, error) {
	war, err := scanRealmWar(s.queryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RealmWar{}, ErrNotFound
		}
		return RealmWar{}, err
	}
	if err := s.loadRealmWarMembers(ctx, &war); err != nil {
		return RealmWar{}, err
	}
	return war, nil
}

func (s *Store) loadRealmWarMembers(ctx context.Context, war *RealmWar) error {
	rows, err := s.query(ctx, `SELECT user_id, joined_at FROM realm_war_participants WHERE war_id = ? ORDER BY joined_at ASC, user_id ASC`, war.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var p RealmWarParticipant
		var joined int64
		if err := rows.Scan(&p.UserID, &joined); err != nil {
			rows.Close()
			return err
		}
		p.JoinedAt = fromUnix(joined)
		war.Participants = append(war.Participants, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = s.query(ctx, `SELECT user_id, killer_id, round, eliminated_at FROM realm_war_eliminations WHERE war_id = ? ORDER BY round ASC`, war.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var e RealmWarElimination
		var at int64
		if err := rows.Scan(&e.UserID, &e.KillerID, &e.Round, &at); err != nil {
			return err
		}
		e.At = fromUnix(at)
		war.Eliminations = append(war.Eliminations, e)
	}
	return rows.Err()
}

func scanRealmWar(row rowScanner) (RealmWar, error) {
	var war RealmWar
	var created, started, ended int64
	err := row.Scan(
		&war.ID,
		&war.GuildID,
		&war.WarNumber,
		&war.MinParticipants,
		&war.MaxParticipants,
		&war.Status,
		&war.WinnerID,
		&war.ChannelID,
		&war.MessageID,
		&created,
		&started,
		&ended,
	)
	if err != nil {
		return RealmWar{}, err
	}
	war.CreatedAt = fromUnix(created)
	war.StartedAt = fromUnix(started)
	war.EndedAt = fromUnix(ended)
	return war, nil
}

// JoinRealmWar adds userID while the war is still in openStatus and not yet
// started, and returns the new participant count.
func (s *Store) JoinRealmWar(ctx context.Context, warID, userID, openStatus string, at time.Time) (int, error) {
	var count int
	err := s.withTx(ctx, func(tx txn) error {
		var status string
		var max int
		var started int64
		if err := tx.queryRow(ctx, `SELECT status, max_participants, started_at FROM realm_wars WHERE id = ?`, warID).Scan(&status, &max, &started); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if status != openStatus || started != 0 {
			return ErrStaleState
		}

		var existing int
		if err := tx.queryRow(ctx, `SELECT COUNT(*) FROM realm_war_participants WHERE war_id = ? AND user_id = ?`, warID, userID).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyJoined
		}

		if err := tx.queryRow(ctx, `SELECT COUNT(*) FROM realm_war_participants WHERE war_id = ?`, warID).Scan(&count); err != nil {
			return err
		}
		if count >= max {
			return ErrFull
		}

		if _, err := tx.exec(ctx, `INSERT INTO realm_war_participants (war_id, user_id, joined_at) VALUES (?, ?, ?)`, warID, userID, toUnix(at)); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) SetRealmWarMessage(ctx context.Context, warID, channelID, messageID string) error {
	result, err := s.exec(ctx, `UPDATE realm_wars SET channel_id = ?, message_id = ? WHERE id = ?`, channelID, messageID, warID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) MarkRealmWarStarted(ctx context.Context, warID string, at time.Time) error {
	_, err := s.exec(ctx, `UPDATE realm_wars SET started_at = ? WHERE id = ? AND started_at = 0`, toUnix(at), warID)
	return err
}

func (s *Store) RecordElimination(ctx context.Context, warID string, e RealmWarElimination) error {
	_, err := s.exec(ctx, `
		INSERT INTO realm_war_eliminations (war_id, user_id, killer_id, round, eliminated_at)
		VALUES (?, ?, ?, ?, ?)
	`, warID, e.UserID, e.KillerID, e.Round, toUnix(e.At))
	return err
}

// TransitionRealmWar moves the war from one status to another only if it is
// still in from. It returns ErrStaleState when another writer got there first.
func (s *Store) TransitionRealmWar(ctx context.Context, warID, from, to, winnerID string, at time.Time) error {
	result, err := s.exec(ctx, `
		UPDATE realm_wars SET status = ?, winner_id = ?, ended_at = ?
		WHERE id = ? AND status = ?
	`, to, winnerID, toUnix(at), warID, from)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStaleState
	}
	return nil
}

func (s *Store) RealmWarConfig(ctx context.Context, guildID string) (RealmWarConfig, error) {
	cfg := RealmWarConfig{GuildID: guildID}
	err := s.queryRow(ctx, `SELECT winner_role_id FROM realm_war_config WHERE guild_id = ?`, guildID).Scan(&cfg.WinnerRoleID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return RealmWarConfig{}, err
	}
	return cfg, nil
}

func (s *Store) SaveRealmWarConfig(ctx context.Context, cfg RealmWarConfig) error {
	_, err := s.exec(ctx, `
		INSERT INTO realm_war_config (guild_id, winner_role_id) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET winner_role_id = excluded.winner_role_id
	`, cfg.GuildID, cfg.WinnerRoleID)
	return err
}
