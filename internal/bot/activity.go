package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"realmkeeper/internal/activity"
	"realmkeeper/internal/leveling"
	"realmkeeper/internal/modules/audit"
	"realmkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) cmdActivity(ctx context.Context, r *reply, i *discordgo.InteractionCreate, opts optionMap) error {
	userID := opts.id("user")
	if userID == "" {
		userID = interactionUser(i).ID
	}
	summary, err := b.Activity.MemberSummary(ctx, i.GuildID, userID)
	if err != nil {
		return err
	}
	today, week := summary.Today, summary.Week
	embed := &discordgo.MessageEmbed{
		Title:       "Activity for " + b.displayName(i.GuildID, userID),
		Description: fmt.Sprintf("Current streak: **%d** days (best %d)", today.Streak, summary.HighestStreak),
		Color:       b.cfg.Notifications.EmbedColors.Action,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Today", Value: fmt.Sprintf("%d messages\n%d reactions given\n%d voice minutes", today.Messages, today.ReactionsGiven, today.VoiceMinutes), Inline: true},
			{Name: "This week", Value: fmt.Sprintf("%d messages\n%d reactions\n%d voice minutes\n%d stream minutes\n%d active days", week.Messages, week.Reactions, week.VoiceMinutes, week.StreamMinutes, week.Days), Inline: true},
			{Name: "Weekly score", Value: fmt.Sprintf("%.1f", week.Score), Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	return r.embed(embed, false)
}

func (b *Bot) cmdActivityLeaderboard(ctx context.Context, r *reply, i *discordgo.InteractionCreate, opts optionMap) error {
	return b.activityTop(ctx, r, i.GuildID, opts, false)
}

func (b *Bot) activityTop(ctx context.Context, r *reply, guildID string, opts optionMap, ephemeral bool) error {
	period, err := activity.ParsePeriod(opts.str("period"))
	if err != nil {
		return err
	}
	entries, err := b.Activity.Leaderboard(ctx, guildID, period, clampLimit(opts.int("limit", 10)))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return r.text("No activity recorded for this period yet.", ephemeral)
	}
	return r.embed(b.listEmbed(period.Title()+" Activity Leaderboard", activityLines(entries)), ephemeral)
}

func (b *Bot) cmdActivityAdmin(ctx context.Context, r *reply, i *discordgo.InteractionCreate, raw []*discordgo.ApplicationCommandInteractionDataOption) error {
	sub, opts := split(raw)
	guildID := i.GuildID
	actorID := interactionUser(i).ID

	switch sub {
	case "setup-roles":
		tiers := storage.ActivityRoleTiers{
			GuildID:       guildID,
			Top1To3:       opts.id("top1to3-role"),
			Top4To10:      opts.id("top4to10-role"),
			Top11To15:     opts.id("top11to15-role"),
			Top16To20:     opts.id("top16to20-role"),
			OverallActive: opts.id("overall-active-role"),
			Inactive:      opts.id("inactive-role"),
		}
		if err := b.Store.SaveActivityRoleTiers(ctx, tiers); err != nil {
			return err
		}
		b.Audit.Log(ctx, audit.EventActivityRolesConfigured, guildID, actorID, "")
		return r.embed(b.tiersEmbed("Activity roles configured", tiers), true)

	case "view-roles":
		tiers, err := b.Store.ActivityRoleTiers(ctx, guildID)
		if errors.Is(err, storage.ErrNotFound) {
			return r.text("Activity roles are not configured. Use `/activity-admin setup-roles`.", true)
		}
		if err != nil {
			return err
		}
		return r.embed(b.tiersEmbed("Activity roles", tiers), true)

	case "view-top":
		return b.activityTop(ctx, r, guildID, opts, true)

	case "view-stats":
		summary, err := b.Analytics.Summary(ctx, guildID, b.Activity.Since(activity.Weekly))
		if err != nil {
			return err
		}
		embed := &discordgo.MessageEmbed{
			Title: "Server Activity",
			Color: b.cfg.Notifications.EmbedColors.Action,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Tracked members", Value: fmt.Sprintf("%d", summary.Activity.Users), Inline: true},
				{Name: "Messages", Value: fmt.Sprintf("%d", summary.Activity.Messages), Inline: true},
				{Name: "Voice minutes", Value: fmt.Sprintf("%d", summary.Activity.VoiceMinutes), Inline: true},
				{Name: "Reactions", Value: fmt.Sprintf("%d", summary.Activity.Reactions), Inline: true},
				{Name: "Logged events this week", Value: fmt.Sprintf("%d", summary.Audit.Total), Inline: true},
				{Name: "Level-ups this week", Value: fmt.Sprintf("%d", summary.Audit.ByEvent[string(audit.EventLevelUp)]), Inline: true},
			},
		}
		return r.embed(embed, true)

	case "reset-all":
		if opts.str("confirm") != leveling.ResetConfirmation {
			return r.text("Type CONFIRM to delete all activity data.", true)
		}
		n, err := b.Activity.ResetAll(ctx, guildID)
		if err != nil {
			return err
		}
		b.Audit.Log(ctx, audit.EventActivityReset, guildID, actorID, fmt.Sprintf("%d records deleted", n))
		return r.text("All activity data has been reset.", true)

	case "reset-streaks":
		if opts.str("confirm") != leveling.ResetConfirmation {
			return r.text("Type CONFIRM to reset all streaks.", true)
		}
		n, err := b.Activity.ResetStreaks(ctx, guildID)
		if err != nil {
			return err
		}
		b.Audit.Log(ctx, audit.EventStreaksReset, guildID, actorID, fmt.Sprintf("%d records updated", n))
		return r.text("All streaks have been reset.", true)

	case "run-now":
		if err := r.wait(true); err != nil {
			return err
		}
		report, err := b.RankJob.Run(ctx, guildID)
		if err != nil {
			return err
		}
		return r.text(fmt.Sprintf("Activity roles updated for %d members: %d added, %d removed, %d failed.", report.Members, report.Added, report.Removed, report.Failed), true)
	}
	return nil
}

func (b *Bot) tiersEmbed(title string, tiers storage.ActivityRoleTiers) *discordgo.MessageEmbed {
	role := func(id string) string {
		if id == "" {
			return "Not set"
		}
		return "<@&" + id + ">"
	}
	return &discordgo.MessageEmbed{
		Title: title,
		Color: b.cfg.Notifications.EmbedColors.Action,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Top 1-3", Value: role(tiers.Top1To3), Inline: true},
			{Name: "Top 4-10", Value: role(tiers.Top4To10), Inline: true},
			{Name: "Top 11-15", Value: role(tiers.Top11To15), Inline: true},
			{Name: "Top 16-20", Value: role(tiers.Top16To20), Inline: true},
			{Name: "Overall active", Value: role(tiers.OverallActive), Inline: true},
			{Name: "Inactive", Value: role(tiers.Inactive), Inline: true},
		},
	}
}
