package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type LevelSettings struct {
	GuildID          string
	LevelingEnabled  bool
	XPRate           float64
	StartingXP       int
	XPPerLevel       int
	Stackable        bool
	LevelUpChannelID string
}

type MemberLevel struct {
	GuildID string
	UserID  string
	Level   int
	XP      int64
	TotalXP int64
}

type LevelRole struct {
	GuildID string
	Level   int
	RoleID  string
}

type BonusRole struct {
	GuildID    string
	RoleID     string
	Multiplier float64
}

// LevelSettings returns the guild's settings, creating them from defaults on first read.
func (s *Store) LevelSettings(ctx context.Context, guildID string, defaults LevelSettings) (LevelSettings, error) {
	var result LevelSettings
	err := s.withTx(ctx, func(tx txn) error {
		_, err := tx.exec(ctx, `
			INSERT INTO guild_level_settings (
				guild_id, leveling_enabled, xp_rate, starting_xp, xp_per_level, stackable, level_up_channel_id
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(guild_id) DO NOTHING
		`, guildID, boolToInt(defaults.LevelingEnabled), defaults.XPRate, defaults.StartingXP, defaults.XPPerLevel, boolToInt(defaults.Stackable), defaults.LevelUpChannelID)
		if err != nil {
			return err
		}
		result, err = scanLevelSettings(tx.queryRow(ctx, `
			SELECT guild_id, leveling_enabled, xp_rate, starting_xp, xp_per_level, stackable, level_up_channel_id
			FROM guild_level_settings WHERE guild_id = ?`, guildID))
		return err
	})
	return result, err
}

func (s *Store) SaveLevelSettings(ctx context.Context, settings LevelSettings) error {
	_, err := s.exec(ctx, `
		INSERT INTO guild_level_settings (
			guild_id, leveling_enabled, xp_rate, starting_xp, xp_per_level, stackable, level_up_channel_id
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			leveling_enabled = excluded.leveling_enabled,
			xp_rate = excluded.xp_rate,
			starting_xp = excluded.starting_xp,
			xp_per_level = excluded.xp_per_level,
			stackable = excluded.stackable,
			level_up_channel_id = excluded.level_up_channel_id
	`,
		settings.GuildID,
		boolToInt(settings.LevelingEnabled),
		settings.XPRate,
		settings.StartingXP,
		settings.XPPerLevel,
		boolToInt(settings.Stackable),
		settings.LevelUpChannelID,
	)
	return err
}

func scanLevelSettings(row *sql.Row) (LevelSettings, error) {
	var settings LevelSettings
	var enabled, stackable int
	err := row.Scan(&settings.GuildID, &enabled, &settings.XPRate, &settings.StartingXP, &settings.XPPerLevel, &stackable, &settings.LevelUpChannelID)
	if err != nil {
		return LevelSettings{}, err
	}
	settings.LevelingEnabled = enabled == 1
	settings.Stackable = stackable == 1
	return settings, nil
}

// UpdateMemberLevel loads (or creates) the member's state, applies fn, and saves the result in one transaction.
func (s *Store) UpdateMemberLevel(ctx context.Context, guildID, userID string, fn func(state *MemberLevel) error) (MemberLevel, error) {
	var result MemberLevel
	err := s.withTx(ctx, func(tx txn) error {
		_, err := tx.exec(ctx, `
			INSERT INTO member_levels (guild_id, user_id, level, xp, total_xp, updated_at)
			VALUES (?, ?, 1, 0, 0, ?)
			ON CONFLICT(guild_id, user_id) DO NOTHING
		`, guildID, userID, time.Now().Unix())
		if err != nil {
			return err
		}
		row := tx.queryRow(ctx, `SELECT guild_id, user_id, level, xp, total_xp FROM member_levels WHERE guild_id = ? AND user_id = ?`, guildID, userID)
		if err := row.Scan(&result.GuildID, &result.UserID, &result.Level, &result.XP, &result.TotalXP); err != nil {
			return err
		}
		if err := fn(&result); err != nil {
			return err
		}
		_, err = tx.exec(ctx, `
			UPDATE member_levels SET level = ?, xp = ?, total_xp = ?, updated_at = ?
			WHERE guild_id = ? AND user_id = ?
		`, result.Level, result.XP, result.TotalXP, time.Now().Unix(), guildID, userID)
		return err
	})
	if err != nil {
		return MemberLevel{}, err
	}
	return result, nil
}

func (s *Store) FindMemberLevel(ctx context.Context, guildID, userID string) (MemberLevel, error) {
	var result MemberLevel
	row := s.queryRow(ctx, `SELECT guild_id, user_id, level, xp, total_xp FROM member_levels WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	if err := row.Scan(&result.GuildID, &result.UserID, &result.Level, &result.XP, &result.TotalXP); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MemberLevel{}, ErrNotFound
		}
		return MemberLevel{}, err
	}
	return result, nil
}

func (s *Store) SaveMemberLevel(ctx context.Context, state MemberLevel) error {
	_, err := s.exec(ctx, `
		INSERT INTO member_levels (guild_id, user_id, level, xp, total_xp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			level = excluded.level,
			xp = excluded.xp,
			total_xp = excluded.total_xp,
			updated_at = excluded.updated_at
	`, state.GuildID, state.UserID, state.Level, state.XP, state.TotalXP, time.Now().Unix())
	return err
}

// ListMemberLevels returns the guild ranking: level descending, then xp descending.
func (s *Store) ListMemberLevels(ctx context.Context, guildID string, limit int) ([]MemberLevel, error) {
	query := `SELECT guild_id, user_id, level, xp, total_xp FROM member_levels WHERE guild_id = ? ORDER BY level DESC, xp DESC, user_id ASC`
	args := []any{guildID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []MemberLevel
	for rows.Next() {
		var state MemberLevel
		if err := rows.Scan(&state.GuildID, &state.UserID, &state.Level, &state.XP, &state.TotalXP); err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func (s *Store) ResetMemberLevels(ctx context.Context, guildID string) (int64, error) {
	result, err := s.exec(ctx, `UPDATE member_levels SET level = 1, xp = 0, total_xp = 0, updated_at = ? WHERE guild_id = ?`, time.Now().Unix(), guildID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Store) SetLevelRole(ctx context.Context, binding LevelRole) error {
	_, err := s.exec(ctx, `
		INSERT INTO level_roles (guild_id, level, role_id) VALUES (?, ?, ?)
		ON CONFLICT(guild_id, level) DO UPDATE SET role_id = excluded.role_id
	`, binding.GuildID, binding.Level, binding.RoleID)
	return err
}

func (s *Store) RemoveLevelRole(ctx context.Context, guildID string, level int) error {
	result, err := s.exec(ctx, `DELETE FROM level_roles WHERE guild_id = ? AND level = ?`, guildID, level)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) ListLevelRoles(ctx context.Context, guildID string) ([]LevelRole, error) {
	rows, err := s.query(ctx, `SELECT guild_id, level, role_id FROM level_roles WHERE guild_id = ? ORDER BY level ASC`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []LevelRole
	for rows.Next() {
		var binding LevelRole
		if err := rows.Scan(&binding.GuildID, &binding.Level, &binding.RoleID); err != nil {
			return nil, err
		}
		bindings = append(bindings, binding)
	}
	return bindings, rows.Err()
}

func (s *Store) SetBonusRole(ctx context.Context, binding BonusRole) error {
	_, err := s.exec(ctx, `
		INSERT INTO bonus_xp_roles (guild_id, role_id, multiplier) VALUES (?, ?, ?)
		ON CONFLICT(guild_id, role_id) DO UPDATE SET multiplier = excluded.multiplier
	`, binding.GuildID, binding.RoleID, binding.Multiplier)
	return err
}

func (s *Store) RemoveBonusRole(ctx context.Context, guildID, roleID string) error {
	result, err := s.exec(ctx, `DELETE FROM bonus_xp_roles WHERE guild_id = ? AND role_id = ?`, guildID, roleID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) ListBonusRoles(ctx context.Context, guildID string) ([]BonusRole, error) {
	rows, err := s.query(ctx, `SELECT guild_id, role_id, multiplier FROM bonus_xp_roles WHERE guild_id = ? ORDER BY multiplier DESC, role_id ASC`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []BonusRole
	for rows.Next() {
		var binding BonusRole
		if err := rows.Scan(&binding.GuildID, &binding.RoleID, &binding.Multiplier); err != nil {
			return nil, err
		}
		bindings = append(bindings, binding)
	}
	return bindings, rows.Err()
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
