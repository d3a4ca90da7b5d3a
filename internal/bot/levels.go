package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"realmkeeper/internal/activity"
	"realmkeeper/internal/render"
	"realmkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) cmdLevel(ctx context.Context, r *reply, i *discordgo.InteractionCreate, opts optionMap) error {
	userID := opts.id("user")
	if userID == "" {
		userID = interactionUser(i).ID
	}

	standing, err := b.Leveling.Standing(ctx, i.GuildID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return r.text(fmt.Sprintf("<@%s> has not earned any XP yet.", userID), true)
	}
	if err != nil {
		return err
	}
	summary, err := b.Activity.MemberSummary(ctx, i.GuildID, userID)
	if err != nil {
		return err
	}

	png, err := render.Profile(render.Card{
		Name:         b.displayName(i.GuildID, userID),
		Level:        standing.State.Level,
		XP:           standing.State.XP,
		Needed:       standing.Needed,
		Rank:         standing.Rank,
		Members:      standing.Members,
		TotalXP:      standing.State.TotalXP,
		Messages:     summary.Week.Messages,
		VoiceMinutes: summary.Week.VoiceMinutes,
		Streak:       summary.HighestStreak,
	})
	if err != nil {
		return err
	}
	return r.file(pngFile("level.png", png))
}

func (b *Bot) cmdLeaderboard(ctx context.Context, r *reply, i *discordgo.InteractionCreate, opts optionMap) error {
	states, err := b.Leveling.Leaderboard(ctx, i.GuildID, clampLimit(opts.int("limit", 10)))
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return r.text("No one has earned XP on this server yet.", true)
	}
	rows := make([]render.Row, 0, len(states))
	for n, state := range states {
		rows = append(rows, render.Row{
			Rank:  n + 1,
			Name:  b.displayName(i.GuildID, state.UserID),
			Value: fmt.Sprintf("Level %d  (%d XP)", state.Level, state.XP),
		})
	}
	png, err := render.Leaderboard("Level Leaderboard", rows)
	if err != nil {
		return err
	}
	return r.file(pngFile("leaderboard.png", png))
}

func (b *Bot) cmdLevelAdmin(ctx context.Context, r *reply, i *discordgo.InteractionCreate, raw []*discordgo.ApplicationCommandInteractionDataOption) error {
	sub, opts := split(raw)
	guildID := i.GuildID
	actorID := interactionUser(i).ID

	switch sub {
	case "addlevelrole":
		level, roleID := opts.int("level", 0), opts.id("role")
		if err := b.Leveling.BindLevelRole(ctx, guildID, level, roleID); err != nil {
			return err
		}
		return r.text(fmt.Sprintf("Role <@&%s> will be given at level %d.", roleID, level), true)

	case "removelevelrole":
		level := opts.int("level", 0)
		err := b.Leveling.UnbindLevelRole(ctx, guildID, level)
		if errors.Is(err, storage.ErrNotFound) {
			return r.text(fmt.Sprintf("No role is bound to level %d.", level), true)
		}
		if err != nil {
			return err
		}
		return r.text(fmt.Sprintf("Removed the level role for level %d.", level), true)

	case "listlevelroles":
		bindings, err := b.Leveling.LevelRoles(ctx, guildID)
		if err != nil {
			return err
		}
		if len(bindings) == 0 {
			return r.text("No level roles are configured.", true)
		}
		lines := make([]string, 0, len(bindings))
		for _, binding := range bindings {
			lines = append(lines, fmt.Sprintf("Level %d: <@&%s>", binding.Level, binding.RoleID))
		}
		return r.embed(b.listEmbed("Level Roles", lines), true)

	case "addlevel", "setlevel", "removelevel":
		userID, n := opts.id("user"), opts.int("level", 0)
		var (
			state storage.MemberLevel
			err   error
		)
		switch sub {
		case "addlevel":
			state, err = b.Leveling.AddLevels(ctx, guildID, userID, actorID, n)
		case "setlevel":
			state, err = b.Leveling.SetLevel(ctx, guildID, userID, actorID, n)
		default:
			state, err = b.Leveling.RemoveLevels(ctx, guildID, userID, actorID, n)
		}
		if err != nil {
			return err
		}
		return r.text(fmt.Sprintf("<@%s> is now level %d.", userID, state.Level), true)

	case "setlevelupchannel":
		channelID := opts.id("channel")
		if _, err := b.Leveling.SetLevelUpChannel(ctx, guildID, channelID); err != nil {
			return err
		}
		return r.text(fmt.Sprintf("Level-up messages will be sent to <#%s>.", channelID), true)

	case "setxprate":
		settings, err := b.Leveling.SetXPRate(ctx, guildID, opts.float("rate"))
		if err != nil {
			return err
		}
		return r.text(fmt.Sprintf("XP rate set to %.2fx.", settings.XPRate), true)

	case "toggle":
		enabled := opts.str("state") == "on"
		if _, err := b.Leveling.ToggleLeveling(ctx, guildID, enabled); err != nil {
			return err
		}
		if enabled {
			return r.text("Leveling has been enabled.", true)
		}
		return r.text("Leveling has been disabled.", true)

	case "togglestackable":
		settings, err := b.Leveling.ToggleStackable(ctx, guildID)
		if err != nil {
			return err
		}
		if settings.Stackable {
			return r.text("Level roles are now stackable.", true)
		}
		return r.text("Level roles are no longer stackable. Members keep only their highest level role.", true)

	case "resetlevels":
		count, bindings, err := b.Leveling.ResetLevels(ctx, guildID, actorID, opts.str("confirm"))
		if err != nil {
			return err
		}
		if err := r.wait(true); err != nil {
			return err
		}
		roleIDs := make([]string, 0, len(bindings))
		for _, binding := range bindings {
			roleIDs = append(roleIDs, binding.RoleID)
		}
		report, err := b.roles.StripRoles(ctx, guildID, roleIDs)
		if err != nil {
			b.logger.Warn("level role strip failed", zap.String("guild_id", guildID), zap.Error(err))
		}
		return r.text(fmt.Sprintf("Reset %d members to level 1. Removed %d level roles (%d failed).", count, report.Removed, report.Failed), true)

	case "addbonusxprole":
		roleID, multiplier := opts.id("role"), opts.float("multiplier")
		if err := b.Leveling.BindBonusRole(ctx, guildID, roleID, multiplier); err != nil {
			return err
		}
		return r.text(fmt.Sprintf("Members with <@&%s> now earn %.2fx XP.", roleID, multiplier), true)

	case "removebonusxprole":
		roleID := opts.id("role")
		err := b.Leveling.UnbindBonusRole(ctx, guildID, roleID)
		if errors.Is(err, storage.ErrNotFound) {
			return r.text(fmt.Sprintf("<@&%s> has no XP bonus.", roleID), true)
		}
		if err != nil {
			return err
		}
		return r.text(fmt.Sprintf("Removed the XP bonus from <@&%s>.", roleID), true)

	case "listbonusxproles":
		bonuses, err := b.Leveling.BonusRoles(ctx, guildID)
		if err != nil {
			return err
		}
		if len(bonuses) == 0 {
			return r.text("No bonus XP roles are configured.", true)
		}
		lines := make([]string, 0, len(bonuses))
		for _, bonus := range bonuses {
			lines = append(lines, fmt.Sprintf("<@&%s>: %.2fx", bonus.RoleID, bonus.Multiplier))
		}
		return r.embed(b.listEmbed("Bonus XP Roles", lines), true)
	}
	return nil
}

func (b *Bot) listEmbed(title string, lines []string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: strings.Join(lines, "\n"),
		Color:       b.cfg.Notifications.EmbedColors.Action,
	}
}

func activityLines(entries []activity.Entry) []string {
	lines := make([]string, 0, len(entries))
	for n, entry := range entries {
		lines = append(lines, fmt.Sprintf("**%d.** <@%s> %.1f pts (%d msgs, %d voice min, %d streak)",
			n+1, entry.UserID, entry.Score, entry.Messages, entry.VoiceMinutes, entry.MaxStreak))
	}
	return lines
}
