package bot

import (
	"errors"
	"fmt"

	"realmkeeper/internal/activity"
	"realmkeeper/internal/giveaway"
	"realmkeeper/internal/leveling"
	"realmkeeper/internal/realmwar"
	"realmkeeper/internal/storage"
)

const genericReply = "There was an error while executing this command!"

// replyFor maps engine errors to the text shown to the invoking member.
// The second result is false for unexpected errors, which get the generic reply.
func replyFor(err error) (string, bool) {
	var notEnough *realmwar.NotEnoughChampionsError
	switch {
	case errors.As(err, &notEnough):
		return fmt.Sprintf("Not enough champions have joined the battle! At least %d are required.", notEnough.Required), true
	case errors.Is(err, realmwar.ErrMinTooLow):
		return "Minimum participants must be at least 2.", true
	case errors.Is(err, realmwar.ErrMaxNotAboveMin):
		return "Maximum participants must be greater than minimum participants.", true
	case errors.Is(err, realmwar.ErrAlreadyActive):
		return "A RealmWar is already active in this server.", true
	case errors.Is(err, realmwar.ErrNoActiveWar):
		return "No active RealmWar game found.", true
	case errors.Is(err, realmwar.ErrAlreadyJoined):
		return "You are already in the game.", true
	case errors.Is(err, realmwar.ErrFull):
		return "The game is full.", true
	case errors.Is(err, realmwar.ErrNotAccepting):
		return "This RealmWar is no longer accepting champions.", true
	case errors.Is(err, realmwar.ErrAlreadyRunning):
		return "The RealmWar has already begun.", true
	case errors.Is(err, realmwar.ErrIllegalTransition):
		return "That RealmWar has already ended.", true

	case errors.Is(err, leveling.ErrLevelingDisabled):
		return "Leveling is disabled on this server.", true
	case errors.Is(err, leveling.ErrInvalidLevel):
		return "Level must be at least 1.", true
	case errors.Is(err, leveling.ErrInvalidAmount):
		return "The number of levels must be at least 1.", true
	case errors.Is(err, leveling.ErrNoLevelData):
		return "That user has no level data yet.", true
	case errors.Is(err, leveling.ErrAtMinimumLevel):
		return "That user is already at the minimum level.", true
	case errors.Is(err, leveling.ErrInvalidRate):
		return "XP rate must be zero or greater.", true
	case errors.Is(err, leveling.ErrInvalidBonus):
		return "Bonus multiplier must be at least 1.", true
	case errors.Is(err, leveling.ErrConfirmRequired):
		return "Type CONFIRM to reset every level on this server.", true

	case errors.Is(err, giveaway.ErrInvalidDuration):
		return "Invalid duration format! Use something like `1d2h30m40s` or `1m30s`.", true
	case errors.Is(err, giveaway.ErrDurationTooShort):
		return "Giveaway duration must be at least 30 seconds!", true
	case errors.Is(err, giveaway.ErrDurationTooLong):
		return "Giveaway duration cannot be longer than 30 days!", true
	case errors.Is(err, giveaway.ErrInvalidWinners):
		return "Number of winners must be between 1 and 50!", true
	case errors.Is(err, giveaway.ErrEmptyPrize):
		return "The prize cannot be empty.", true
	case errors.Is(err, giveaway.ErrInvalidImage):
		return "The image must be a valid http or https URL.", true
	case errors.Is(err, giveaway.ErrNotFound):
		return "Giveaway not found.", true
	case errors.Is(err, giveaway.ErrEnded):
		return "This giveaway has already ended.", true
	case errors.Is(err, giveaway.ErrStillRunning):
		return "This giveaway is still ongoing.", true
	case errors.Is(err, giveaway.ErrAlreadyJoined):
		return "You have already entered this giveaway.", true
	case errors.Is(err, giveaway.ErrMissingRole):
		return "You do not have the role required to enter this giveaway.", true
	case errors.Is(err, giveaway.ErrNotEnoughParticipants):
		return "Not enough participants for the giveaway.", true

	case errors.Is(err, activity.ErrUnknownPeriod):
		return "Period must be daily, weekly or monthly.", true
	case errors.Is(err, storage.ErrNotFound):
		return "No data found.", true
	}
	return "", false
}
