package bot

import "github.com/bwmarrin/discordgo"

var (
	adminPermission    int64 = discordgo.PermissionAdministrator
	managePermission   int64 = discordgo.PermissionManageServer
	messagesPermission int64 = discordgo.PermissionManageMessages

	minOne  = 1.0
	minTwo  = 2.0
	minZero = 0.0
)

func userOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: name, Description: description, Required: required}
}

func roleOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionRole, Name: name, Description: description, Required: required}
}

func intOption(name, description string, required bool, min *float64) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionInteger, Name: name, Description: description, Required: required, MinValue: min}
}

func subcommand(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Description: description, Options: options}
}

func periodOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "period",
		Description: "Time period",
		Choices: []*discordgo.ApplicationCommandOptionChoice{
			{Name: "Daily", Value: "daily"},
			{Name: "Weekly", Value: "weekly"},
			{Name: "Monthly", Value: "monthly"},
		},
	}
}

func onOffOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "state",
		Description: "on or off",
		Required:    true,
		Choices: []*discordgo.ApplicationCommandOptionChoice{
			{Name: "on", Value: "on"},
			{Name: "off", Value: "off"},
		},
	}
}

func textChannelOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         name,
		Description:  description,
		Required:     true,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
	}
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "level",
			Description: "Check your level and XP.",
			Options:     []*discordgo.ApplicationCommandOption{userOption("user", "The user to check.", false)},
		},
		{
			Name:        "leaderboard",
			Description: "Show the server level leaderboard.",
			Options:     []*discordgo.ApplicationCommandOption{intOption("limit", "Number of members to show (max 25).", false, &minOne)},
		},
		{
			Name:        "activity",
			Description: "Show activity statistics.",
			Options:     []*discordgo.ApplicationCommandOption{userOption("user", "The user to check.", false)},
		},
		{
			Name:        "activity-leaderboard",
			Description: "Show the most active members.",
			Options: []*discordgo.ApplicationCommandOption{
				periodOption(),
				intOption("limit", "Number of members to show (max 25).", false, &minOne),
			},
		},
		{
			Name:                     "activity-admin",
			Description:              "Manage activity tracking.",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("setup-roles", "Configure the weekly activity rank roles.",
					roleOption("top1to3-role", "Role for ranks 1-3", true),
					roleOption("top4to10-role", "Role for ranks 4-10", true),
					roleOption("top11to15-role", "Role for ranks 11-15", true),
					roleOption("top16to20-role", "Role for ranks 16-20", true),
					roleOption("overall-active-role", "Role for every active member", true),
					roleOption("inactive-role", "Role for members with no activity", true),
				),
				subcommand("view-roles", "Show the configured activity rank roles."),
				subcommand("view-top", "Show the top members for a period.", periodOption(), intOption("limit", "Number of members to show (max 25).", false, &minOne)),
				subcommand("view-stats", "Show server activity totals."),
				subcommand("reset-all", "Delete all activity data for this server.",
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "confirm", Description: "Type CONFIRM", Required: true}),
				subcommand("reset-streaks", "Reset every streak on this server.",
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "confirm", Description: "Type CONFIRM", Required: true}),
				subcommand("run-now", "Recompute the activity rank roles now."),
			},
		},
		{
			Name:                     "leveladmin",
			Description:              "Manage the leveling system.",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("addlevelrole", "Bind a role to a level.", intOption("level", "Level", true, &minOne), roleOption("role", "Role", true)),
				subcommand("removelevelrole", "Unbind the role of a level.", intOption("level", "Level", true, &minOne)),
				subcommand("listlevelroles", "List level roles."),
				subcommand("addlevel", "Add levels to a user.", userOption("user", "User", true), intOption("level", "Levels to add", true, &minOne)),
				subcommand("setlevel", "Set a user's level.", userOption("user", "User", true), intOption("level", "New level", true, &minOne)),
				subcommand("removelevel", "Remove levels from a user.", userOption("user", "User", true), intOption("level", "Levels to remove", true, &minOne)),
				subcommand("setlevelupchannel", "Set the level-up announcement channel.", textChannelOption("channel", "Channel")),
				subcommand("setxprate", "Set the XP rate multiplier.",
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionNumber, Name: "rate", Description: "XP rate", Required: true, MinValue: &minZero}),
				subcommand("toggle", "Enable or disable leveling.", onOffOption()),
				subcommand("togglestackable", "Toggle stackable level roles."),
				subcommand("resetlevels", "Reset every level on this server.",
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "confirm", Description: "Type CONFIRM", Required: true}),
				subcommand("addbonusxprole", "Give a role an XP multiplier.",
					roleOption("role", "Role", true),
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionNumber, Name: "multiplier", Description: "Multiplier", Required: true, MinValue: &minOne}),
				subcommand("removebonusxprole", "Remove a role's XP multiplier.", roleOption("role", "Role", true)),
				subcommand("listbonusxproles", "List bonus XP roles."),
			},
		},
		{
			Name:                     "realmwar",
			Description:              "Manage the RealmWar game.",
			DefaultMemberPermissions: &managePermission,
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("setup", "Gather your champions for a battle in the cursed lands.",
					intOption("min_participants", "Minimum participants", true, &minTwo),
					intOption("max_participants", "Maximum participants", true, &minTwo),
				),
				subcommand("start", "Begin the RealmWar."),
				subcommand("cancel", "Cancel the active RealmWar."),
				subcommand("stop", "End the RealmWar before the last soul falls."),
			},
		},
		{
			Name:                     "realmwar-config",
			Description:              "Configure the RealmWar game.",
			DefaultMemberPermissions: &managePermission,
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("winner-role", "Set the role granted to the last champion standing.", roleOption("role", "Winner role", true)),
			},
		},
		{
			Name:                     "giveaway",
			Description:              "Manage giveaways.",
			DefaultMemberPermissions: &messagesPermission,
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("start", "Start a giveaway.",
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "duration", Description: "Duration, e.g. 1d2h30m", Required: true},
					intOption("winners", "Number of winners", true, &minOne),
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "prize", Description: "Prize", Required: true},
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Channel to post in",
						ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews}},
					roleOption("required_role", "Role required to enter", false),
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "image", Description: "Image URL"},
				),
				subcommand("end", "End a giveaway now.",
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "message_id", Description: "Giveaway message ID", Required: true}),
				subcommand("reroll", "Pick new winners for an ended giveaway.",
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "message_id", Description: "Giveaway message ID", Required: true}),
			},
		},
		{
			Name:                     "set-log-channel",
			Description:              "Set the channel for activity logs.",
			DefaultMemberPermissions: &adminPermission,
			Options:                  []*discordgo.ApplicationCommandOption{textChannelOption("channel", "Log channel")},
		},
	}
}

// registerCommands upserts the command set and deletes global commands
// that are no longer defined.
func (b *Bot) registerCommands() error {
	commands := commandDefinitions()
	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}
	return nil
}
