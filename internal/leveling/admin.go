package leveling

import (
	"context"
	"errors"
	"fmt"

	"realmkeeper/internal/modules/audit"
	"realmkeeper/internal/storage"
)

const ResetConfirmation = "CONFIRM"

func (e *Engine) enabledSettings(ctx context.Context, guildID string) (storage.LevelSettings, error) {
	settings, err := e.Settings(ctx, guildID)
	if err != nil {
		return storage.LevelSettings{}, err
	}
	if !settings.LevelingEnabled {
		return storage.LevelSettings{}, ErrLevelingDisabled
	}
	return settings, nil
}

// AddLevels raises the member's level by n without touching XP math.
func (e *Engine) AddLevels(ctx context.Context, guildID, userID, actorID string, n int) (storage.MemberLevel, error) {
	if n < 1 {
		return storage.MemberLevel{}, ErrInvalidAmount
	}
	return e.adjustLevel(ctx, guildID, userID, actorID, audit.EventLevelAdd, func(state *storage.MemberLevel) error {
		state.Level += n
		return nil
	})
}

func (e *Engine) SetLevel(ctx context.Context, guildID, userID, actorID string, level int) (storage.MemberLevel, error) {
	if level < 1 {
		return storage.MemberLevel{}, ErrInvalidLevel
	}
	return e.adjustLevel(ctx, guildID, userID, actorID, audit.EventLevelSet, func(state *storage.MemberLevel) error {
		state.Level = level
		return nil
	})
}

// RemoveLevels lowers the member's level by n, never below 1.
func (e *Engine) RemoveLevels(ctx context.Context, guildID, userID, actorID string, n int) (storage.MemberLevel, error) {
	if n < 1 {
		return storage.MemberLevel{}, ErrInvalidAmount
	}
	current, err := e.store.FindMemberLevel(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.MemberLevel{}, ErrNoLevelData
		}
		return storage.MemberLevel{}, err
	}
	if current.Level <= 1 {
		return storage.MemberLevel{}, ErrAtMinimumLevel
	}
	return e.adjustLevel(ctx, guildID, userID, actorID, audit.EventLevelRemove, func(state *storage.MemberLevel) error {
		state.Level = max(1, state.Level-n)
		return nil
	})
}

// adjustLevel applies an admin level change. XP toward the next level is
// kept, clamped so it stays below the new level's threshold.
func (e *Engine) adjustLevel(ctx context.Context, guildID, userID, actorID string, event audit.Event, mutate func(state *storage.MemberLevel) error) (storage.MemberLevel, error) {
	settings, err := e.enabledSettings(ctx, guildID)
	if err != nil {
		return storage.MemberLevel{}, err
	}

	previous := 0
	state, err := e.store.UpdateMemberLevel(ctx, guildID, userID, func(state *storage.MemberLevel) error {
		previous = state.Level
		if err := mutate(state); err != nil {
			return err
		}
		if needed := XPNeeded(state.Level, settings); state.XP >= needed {
			state.XP = max(0, needed-1)
		}
		return nil
	})
	if err != nil {
		return storage.MemberLevel{}, err
	}

	if state.Level > previous {
		e.syncRoles(ctx, guildID, userID, previous+1, state.Level, settings.Stackable)
	} else if state.Level < previous && !settings.Stackable {
		e.syncRoles(ctx, guildID, userID, state.Level, state.Level, false)
	}
	if e.audit != nil {
		e.audit.Log(ctx, event, guildID, userID, fmt.Sprintf("level %d -> %d by %s", previous, state.Level, actorID))
	}
	return state, nil
}

// ResetLevels sets every member of the guild back to level 1 with no XP.
// The caller strips level roles afterwards.
func (e *Engine) ResetLevels(ctx context.Context, guildID, actorID, confirm string) (int64, []storage.LevelRole, error) {
	if confirm != ResetConfirmation {
		return 0, nil, ErrConfirmRequired
	}
	count, err := e.store.ResetMemberLevels(ctx, guildID)
	if err != nil {
		return 0, nil, err
	}
	bindings, err := e.store.ListLevelRoles(ctx, guildID)
	if err != nil {
		return count, nil, err
	}
	if e.audit != nil {
		e.audit.Log(ctx, audit.EventLevelsReset, guildID, actorID, fmt.Sprintf("%d members reset", count))
	}
	return count, bindings, nil
}

func (e *Engine) ToggleLeveling(ctx context.Context, guildID string, enabled bool) (storage.LevelSettings, error) {
	return e.updateSettings(ctx, guildID, false, func(s *storage.LevelSettings) error {
		s.LevelingEnabled = enabled
		return nil
	})
}

func (e *Engine) ToggleStackable(ctx context.Context, guildID string) (storage.LevelSettings, error) {
	return e.updateSettings(ctx, guildID, false, func(s *storage.LevelSettings) error {
		s.Stackable = !s.Stackable
		return nil
	})
}

func (e *Engine) SetXPRate(ctx context.Context, guildID string, rate float64) (storage.LevelSettings, error) {
	if rate < 0 {
		return storage.LevelSettings{}, ErrInvalidRate
	}
	return e.updateSettings(ctx, guildID, true, func(s *storage.LevelSettings) error {
		s.XPRate = rate
		return nil
	})
}

func (e *Engine) SetLevelUpChannel(ctx context.Context, guildID, channelID string) (storage.LevelSettings, error) {
	return e.updateSettings(ctx, guildID, true, func(s *storage.LevelSettings) error {
		s.LevelUpChannelID = channelID
		return nil
	})
}

func (e *Engine) updateSettings(ctx context.Context, guildID string, requireEnabled bool, mutate func(s *storage.LevelSettings) error) (storage.LevelSettings, error) {
	settings, err := e.Settings(ctx, guildID)
	if err != nil {
		return storage.LevelSettings{}, err
	}
	if requireEnabled && !settings.LevelingEnabled {
		return storage.LevelSettings{}, ErrLevelingDisabled
	}
	if err := mutate(&settings); err != nil {
		return storage.LevelSettings{}, err
	}
	if err := e.store.SaveLevelSettings(ctx, settings); err != nil {
		return storage.LevelSettings{}, err
	}
	return settings, nil
}

func (e *Engine) BindLevelRole(ctx context.Context, guildID string, level int, roleID string) error {
	if level < 1 {
		return ErrInvalidLevel
	}
	if _, err := e.enabledSettings(ctx, guildID); err != nil {
		return err
	}
	return e.store.SetLevelRole(ctx, storage.LevelRole{GuildID: guildID, Level: level, RoleID: roleID})
}

func (e *Engine) UnbindLevelRole(ctx context.Context, guildID string, level int) error {
	if _, err := e.enabledSettings(ctx, guildID); err != nil {
		return err
	}
	return e.store.RemoveLevelRole(ctx, guildID, level)
}

func (e *Engine) LevelRoles(ctx context.Context, guildID string) ([]storage.LevelRole, error) {
	if _, err := e.enabledSettings(ctx, guildID); err != nil {
		return nil, err
	}
	return e.store.ListLevelRoles(ctx, guildID)
}

func (e *Engine) BindBonusRole(ctx context.Context, guildID, roleID string, multiplier float64) error {
	if multiplier < 1 {
		return ErrInvalidBonus
	}
	if _, err := e.enabledSettings(ctx, guildID); err != nil {
		return err
	}
	return e.store.SetBonusRole(ctx, storage.BonusRole{GuildID: guildID, RoleID: roleID, Multiplier: multiplier})
}

func (e *Engine) UnbindBonusRole(ctx context.Context, guildID, roleID string) error {
	if _, err := e.enabledSettings(ctx, guildID); err != nil {
		return err
	}
	return e.store.RemoveBonusRole(ctx, guildID, roleID)
}

func (e *Engine) BonusRoles(ctx context.Context, guildID string) ([]storage.BonusRole, error) {
	if _, err := e.enabledSettings(ctx, guildID); err != nil {
		return nil, err
	}
	return e.store.ListBonusRoles(ctx, guildID)
}

// Standing is a member's level state with its 1-based rank in the guild.
type Standing struct {
	State   storage.MemberLevel
	Rank    int
	Needed  int64
	Members int
}

func (e *Engine) Standing(ctx context.Context, guildID, userID string) (Standing, error) {
	settings, err := e.Settings(ctx, guildID)
	if err != nil {
		return Standing{}, err
	}
	all, err := e.store.ListMemberLevels(ctx, guildID, 0)
	if err != nil {
		return Standing{}, err
	}
	for i, state := range all {
		if state.UserID == userID {
			return Standing{State: state, Rank: i + 1, Needed: XPNeeded(state.Level, settings), Members: len(all)}, nil
		}
	}
	return Standing{}, storage.ErrNotFound
}

func (e *Engine) Leaderboard(ctx context.Context, guildID string, limit int) ([]storage.MemberLevel, error) {
	return e.store.ListMemberLevels(ctx, guildID, limit)
}
