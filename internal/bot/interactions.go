package bot

import (
	"context"
	"strconv"
	"strings"

	"realmkeeper/internal/modules/audit"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	realmWarButtonPrefix = "realmwar-join-"
	giveawayButtonID     = "join_giveaway"
	maxListLimit         = 25
)

type optionMap map[string]*discordgo.ApplicationCommandInteractionDataOption

func options(opts []*discordgo.ApplicationCommandInteractionDataOption) optionMap {
	m := make(optionMap, len(opts))
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}

func (o optionMap) str(name string) string {
	if opt, ok := o[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func (o optionMap) int(name string, fallback int) int {
	if opt, ok := o[name]; ok {
		return int(opt.IntValue())
	}
	return fallback
}

func (o optionMap) float(name string) float64 {
	if opt, ok := o[name]; ok {
		return opt.FloatValue()
	}
	return 0
}

// id returns the snowflake of a user, role or channel option.
func (o optionMap) id(name string) string {
	if opt, ok := o[name]; ok {
		if s, ok := opt.Value.(string); ok {
			return s
		}
	}
	return ""
}

// split returns the subcommand name and its options.
func split(opts []*discordgo.ApplicationCommandInteractionDataOption) (string, optionMap) {
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Name, options(opts[0].Options)
	}
	return "", options(opts)
}

func clampLimit(limit int) int {
	return min(max(limit, 1), maxListLimit)
}

func hasPermission(member *discordgo.Member, perm int64) bool {
	if member == nil {
		return false
	}
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return member.Permissions&perm == perm
}

func requiredPermission(command string) (int64, string) {
	switch command {
	case "leveladmin", "activity-admin", "set-log-channel":
		return discordgo.PermissionAdministrator, "Administrator"
	case "realmwar", "realmwar-config":
		return discordgo.PermissionManageServer, "Manage Server"
	case "giveaway":
		return discordgo.PermissionManageMessages, "Manage Messages"
	}
	return 0, ""
}

// reply answers one interaction, first with a response and afterwards by
// editing the original response once deferred.
type reply struct {
	b        *Bot
	i        *discordgo.Interaction
	deferred bool
	answered bool
}

func (r *reply) respond(data *discordgo.InteractionResponseData) error {
	if r.deferred {
		edit := &discordgo.WebhookEdit{Content: &data.Content}
		if len(data.Embeds) > 0 {
			edit.Embeds = &data.Embeds
		}
		if len(data.Files) > 0 {
			edit.Files = data.Files
		}
		_, err := r.b.session.InteractionResponseEdit(r.i, edit)
		r.answered = true
		return err
	}
	err := r.b.session.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	r.answered = true
	return err
}

func flags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

func (r *reply) text(content string, ephemeral bool) error {
	return r.respond(&discordgo.InteractionResponseData{Content: content, Flags: flags(ephemeral)})
}

func (r *reply) embed(embed *discordgo.MessageEmbed, ephemeral bool) error {
	return r.respond(&discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}, Flags: flags(ephemeral)})
}

func (r *reply) file(file *discordgo.File) error {
	return r.respond(&discordgo.InteractionResponseData{Files: []*discordgo.File{file}})
}

// wait acknowledges the interaction for handlers that run past the
// three second response window.
func (r *reply) wait(ephemeral bool) error {
	err := r.b.session.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags(ephemeral)},
	})
	if err == nil {
		r.deferred = true
	}
	return err
}

func (r *reply) fail(err error) {
	content, known := replyFor(err)
	if !known {
		content = genericReply
	}
	if sendErr := r.text(content, true); sendErr != nil {
		r.b.logger.Warn("interaction reply failed", zap.Error(sendErr))
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(i)
	}
}

func (b *Bot) handleCommand(i *discordgo.InteractionCreate) {
	ctx := context.Background()
	data := i.ApplicationCommandData()
	r := &reply{b: b, i: i.Interaction}
	user := interactionUser(i)

	if i.GuildID == "" || user == nil {
		_ = r.text("This command can only be used in a server.", true)
		return
	}
	if perm, label := requiredPermission(data.Name); perm != 0 && !hasPermission(i.Member, perm) {
		_ = r.text("You need the `"+label+"` permission to use this command!", true)
		return
	}

	var err error
	switch data.Name {
	case "level":
		err = b.cmdLevel(ctx, r, i, options(data.Options))
	case "leaderboard":
		err = b.cmdLeaderboard(ctx, r, i, options(data.Options))
	case "activity":
		err = b.cmdActivity(ctx, r, i, options(data.Options))
	case "activity-leaderboard":
		err = b.cmdActivityLeaderboard(ctx, r, i, options(data.Options))
	case "activity-admin":
		err = b.cmdActivityAdmin(ctx, r, i, data.Options)
	case "leveladmin":
		err = b.cmdLevelAdmin(ctx, r, i, data.Options)
	case "realmwar":
		err = b.cmdRealmWar(ctx, r, i, data.Options)
	case "realmwar-config":
		err = b.cmdRealmWarConfig(ctx, r, i, data.Options)
	case "giveaway":
		err = b.cmdGiveaway(ctx, r, i, data.Options)
	case "set-log-channel":
		err = b.cmdSetLogChannel(ctx, r, i, options(data.Options))
	default:
		return
	}

	b.Metrics.Command(data.Name, err)
	if err != nil {
		if _, known := replyFor(err); !known {
			b.logger.Error("command failed", zap.String("command", data.Name), zap.String("guild_id", i.GuildID), zap.Error(err))
		}
		r.fail(err)
		return
	}

	if recErr := b.Activity.RecordCommand(ctx, i.GuildID, user.ID, data.Name); recErr != nil {
		b.logger.Warn("command activity update failed", zap.String("guild_id", i.GuildID), zap.Error(recErr))
	}
	b.Audit.Log(ctx, audit.EventCommandUsed, i.GuildID, user.ID, "/"+data.Name)
}

func (b *Bot) handleComponent(i *discordgo.InteractionCreate) {
	ctx := context.Background()
	customID := i.MessageComponentData().CustomID
	r := &reply{b: b, i: i.Interaction}
	user := interactionUser(i)
	if i.GuildID == "" || user == nil {
		return
	}

	var err error
	switch {
	case strings.HasPrefix(customID, realmWarButtonPrefix):
		err = b.joinRealmWar(ctx, r, user.ID, strings.TrimPrefix(customID, realmWarButtonPrefix))
	case customID == giveawayButtonID:
		var roleIDs []string
		if i.Member != nil {
			roleIDs = i.Member.Roles
		}
		err = b.joinGiveaway(ctx, r, i.Message, user.ID, roleIDs)
	default:
		return
	}

	b.Metrics.Command(componentMetric(customID), err)
	if err != nil {
		if _, known := replyFor(err); !known {
			b.logger.Error("button failed", zap.String("custom_id", customID), zap.String("guild_id", i.GuildID), zap.Error(err))
		}
		r.fail(err)
	}
}

// componentMetric folds per-match button IDs into one metric label.
func componentMetric(customID string) string {
	if strings.HasPrefix(customID, realmWarButtonPrefix) {
		return strings.TrimSuffix(realmWarButtonPrefix, "-")
	}
	return customID
}

func (b *Bot) displayName(guildID, userID string) string {
	member, err := b.session.State.Member(guildID, userID)
	if err != nil || member == nil {
		member, err = b.session.GuildMember(guildID, userID)
	}
	if err != nil || member == nil || member.User == nil {
		return userID
	}
	if member.Nick != "" {
		return member.Nick
	}
	return member.User.Username
}

func parseWarNumber(raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	return n, err == nil && n > 0
}
