package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Giveaway struct {
	ID             string
	GuildID        string
	ChannelID      string
	MessageID      string
	Prize          string
	HostID         string
	Winners        int
	RequiredRoleID string
	ImageURL       string
	EndsAt         time.Time
	Ongoing        bool
	CreatedAt      time.Time
}

const giveawayColumns = `id, guild_id, channel_id, message_id, prize, host_id, winners,
	required_role_id, image_url, ends_at, ongoing, created_at`

func scanGiveaway(row rowScanner) (Giveaway, error) {
	var g Giveaway
	var endsAt, createdAt int64
	var ongoing int
	err := row.Scan(
		&g.ID,
		&g.GuildID,
		&g.ChannelID,
		&g.MessageID,
		&g.Prize,
		&g.HostID,
		&g.Winners,
		&g.RequiredRoleID,
		&g.ImageURL,
		&endsAt,
		&ongoing,
		&createdAt,
	)
	if err != nil {
		return Giveaway{}, err
	}
	g.EndsAt = fromUnix(endsAt)
	g.CreatedAt = fromUnix(createdAt)
	g.Ongoing = ongoing == 1
	return g, nil
}

func (s *Store) CreateGiveaway(ctx context.Context, g Giveaway) error {
	_, err := s.exec(ctx, `
		INSERT INTO giveaways (`+giveawayColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		g.ID,
		g.GuildID,
		g.ChannelID,
		g.MessageID,
		g.Prize,
		g.HostID,
		g.Winners,
		g.RequiredRoleID,
		g.ImageURL,
		toUnix(g.EndsAt),
		boolToInt(g.Ongoing),
		toUnix(g.CreatedAt),
	)
	return err
}

func (s *Store) GiveawayByMessage(ctx context.Context, messageID string) (Giveaway, error) {
	g, err := scanGiveaway(s.queryRow(ctx, `SELECT `+giveawayColumns+` FROM giveaways WHERE message_id = ?`, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Giveaway{}, ErrNotFound
		}
		return Giveaway{}, err
	}
	return g, nil
}

// DueGiveaways lists ongoing giveaways whose end time is at or before now.
func (s *Store) DueGiveaways(ctx context.Context, now time.Time) ([]Giveaway, error) {
	rows, err := s.query(ctx, `SELECT `+giveawayColumns+` FROM giveaways WHERE ongoing = 1 AND ends_at <= ? ORDER BY ends_at ASC`, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var giveaways []Giveaway
	for rows.Next() {
		g, err := scanGiveaway(rows)
		if err != nil {
			return nil, err
		}
		giveaways = append(giveaways, g)
	}
	return giveaways, rows.Err()
}

// JoinGiveaway records an entry. Duplicate entries return ErrAlreadyJoined.
func (s *Store) JoinGiveaway(ctx context.Context, giveawayID, userID string, at time.Time) error {
	result, err := s.exec(ctx, `
		INSERT INTO giveaway_entries (giveaway_id, user_id, joined_at) VALUES (?, ?, ?)
		ON CONFLICT(giveaway_id, user_id) DO NOTHING
	`, giveawayID, userID, toUnix(at))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyJoined
	}
	return nil
}

func (s *Store) GiveawayEntries(ctx context.Context, giveawayID string) ([]string, error) {
	rows, err := s.query(ctx, `SELECT user_id FROM giveaway_entries WHERE giveaway_id = ? ORDER BY joined_at ASC, user_id ASC`, giveawayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

// CloseGiveaway flips ongoing to false. It returns ErrStaleState if the giveaway had already ended.
func (s *Store) CloseGiveaway(ctx context.Context, giveawayID string) error {
	result, err := s.exec(ctx, `UPDATE giveaways SET ongoing = 0 WHERE id = ? AND ongoing = 1`, giveawayID)
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

// RecordGiveawayWinners stores one draw. Each reroll is a new draw number.
func (s *Store) RecordGiveawayWinners(ctx context.Context, giveawayID string, winners []string, at time.Time) (int, error) {
	var draw int
	err := s.withTx(ctx, func(tx txn) error {
		if err := tx.queryRow(ctx, `SELECT COALESCE(MAX(draw), 0) FROM giveaway_winners WHERE giveaway_id = ?`, giveawayID).Scan(&draw); err != nil {
			return err
		}
		draw++
		for _, userID := range winners {
			if _, err := tx.exec(ctx, `
				INSERT INTO giveaway_winners (giveaway_id, user_id, draw, drawn_at) VALUES (?, ?, ?, ?)
			`, giveawayID, userID, draw, toUnix(at)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return draw, nil
}
