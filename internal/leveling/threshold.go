package leveling

import "realmkeeper/internal/storage"

// XPNeeded is the XP required to clear level under the guild's settings.
func XPNeeded(level int, settings storage.LevelSettings) int64 {
	if level <= 1 {
		return int64(settings.StartingXP)
	}
	return int64(settings.StartingXP) + int64(level-1)*int64(settings.XPPerLevel)
}

// ApplyXP adds xp to state and performs every level-up it pays for.
// It returns the number of levels gained. Thresholds below 1 count as 1.
func ApplyXP(state *storage.MemberLevel, xp int, settings storage.LevelSettings) int {
	if state.Level < 1 {
		state.Level = 1
	}
	state.XP += int64(xp)
	state.TotalXP += int64(xp)

	levelUps := 0
	for {
		needed := XPNeeded(state.Level, settings)
		if needed < 1 {
			needed = 1
		}
		if state.XP < needed {
			break
		}
		state.XP -= needed
		state.Level++
		levelUps++
	}
	return levelUps
}

// BonusMultiplier is the largest multiplier among the bonus roles the member holds, and never below 1.
func BonusMultiplier(bindings []storage.BonusRole, heldRoles []string) float64 {
	held := make(map[string]struct{}, len(heldRoles))
	for _, roleID := range heldRoles {
		held[roleID] = struct{}{}
	}
	best := 1.0
	for _, binding := range bindings {
		if _, ok := held[binding.RoleID]; ok && binding.Multiplier > best {
			best = binding.Multiplier
		}
	}
	return best
}
