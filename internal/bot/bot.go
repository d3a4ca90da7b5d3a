package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"realmkeeper/internal/activity"
	"realmkeeper/internal/analytics"
	"realmkeeper/internal/config"
	"realmkeeper/internal/giveaway"
	"realmkeeper/internal/leveling"
	"realmkeeper/internal/metrics"
	"realmkeeper/internal/modules/audit"
	"realmkeeper/internal/realmwar"
	"realmkeeper/internal/roles"
	"realmkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type embedColors = config.EmbedColors

// Services are the engines the bot dispatches gateway events to.
type Services struct {
	Store     *storage.Store
	Audit     *audit.Logger
	Analytics *analytics.Service
	Leveling  *leveling.Engine
	Activity  *activity.Tracker
	RankJob   *roles.RankJob
	RealmWar  *realmwar.Engine
	Giveaways *giveaway.Service
	Metrics   *metrics.Metrics
}

type Bot struct {
	cfg     config.Config
	logger  *zap.Logger
	session *discordgo.Session
	Services

	roles *roles.Engine

	auditAgg   map[string]*auditAggregate
	auditAggMu sync.Mutex
}

type auditAggregate struct {
	channelID string
	messageID string
	count     int
	lastAt    time.Time
}

// New creates the session and wires the platform adapters into the engines.
func New(cfg config.Config, logger *zap.Logger, svc Services) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildPresences |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates

	b := &Bot{
		cfg:      cfg,
		logger:   logger,
		session:  session,
		Services: svc,
		auditAgg: make(map[string]*auditAggregate),
	}
	return b, nil
}

// Directory is the role directory backed by this bot's session.
func (b *Bot) Directory() roles.Directory {
	return directory{session: b.session}
}

// Attach hooks the session-backed collaborators into the engines.
func (b *Bot) Attach(roleEngine *roles.Engine, rankJob *roles.RankJob) {
	b.roles = roleEngine
	b.RankJob = rankJob
	colors := b.cfg.Notifications.EmbedColors
	if b.Leveling != nil {
		b.Leveling.SetNotifier(levelNotifier{session: b.session})
		b.Leveling.SetRoleSyncer(roleEngine)
	}
	if b.RealmWar != nil {
		b.RealmWar.SetAnnouncer(warAnnouncer{session: b.session, colors: colors})
		b.RealmWar.SetWinnerRoles(roleEngine)
	}
	if b.Giveaways != nil {
		b.Giveaways.SetAnnouncer(giveawayAnnouncer{session: b.session, colors: colors})
	}
	if b.Audit != nil {
		b.Audit.SetNotifier(func(ctx context.Context, entry storage.AuditLog) {
			if !b.cfg.Notifications.AuditToChannel {
				return
			}
			b.notifyAudit(ctx, entry)
		})
	}
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onReactionAdd)
	b.session.AddHandler(b.onReactionRemove)
	b.session.AddHandler(b.onVoiceStateUpdate)
	b.session.AddHandler(b.onPresenceUpdate)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}
	return b.registerCommands()
}

// Close flushes open voice and stream sessions before disconnecting.
func (b *Bot) Close(ctx context.Context) {
	if b.Activity != nil {
		b.Activity.Shutdown(ctx)
	}
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}
	ctx := context.Background()

	var mentioned []string
	for _, user := range msg.Mentions {
		if user != nil && !user.Bot {
			mentioned = append(mentioned, user.ID)
		}
	}
	if _, err := b.Activity.RecordMessage(ctx, msg.GuildID, msg.Author.ID, len(msg.Attachments), mentioned); err != nil {
		b.logger.Warn("activity update failed", zap.String("guild_id", msg.GuildID), zap.String("user_id", msg.Author.ID), zap.Error(err))
	}

	var roleIDs []string
	if msg.Member != nil {
		roleIDs = msg.Member.Roles
	}
	_, err := b.Leveling.Award(ctx, leveling.Message{
		GuildID:   msg.GuildID,
		UserID:    msg.Author.ID,
		ChannelID: msg.ChannelID,
		RoleIDs:   roleIDs,
	})
	if err != nil {
		b.logger.Warn("xp award failed", zap.String("guild_id", msg.GuildID), zap.String("user_id", msg.Author.ID), zap.Error(err))
	}
}

func (b *Bot) onReactionAdd(session *discordgo.Session, event *discordgo.MessageReactionAdd) {
	if event.MessageReaction == nil || event.GuildID == "" {
		return
	}
	if event.Member != nil && event.Member.User != nil && event.Member.User.Bot {
		return
	}
	b.recordReaction(event.MessageReaction, true)
}

func (b *Bot) onReactionRemove(session *discordgo.Session, event *discordgo.MessageReactionRemove) {
	if event.MessageReaction == nil || event.GuildID == "" {
		return
	}
	b.recordReaction(event.MessageReaction, false)
}

func (b *Bot) recordReaction(reaction *discordgo.MessageReaction, added bool) {
	if b.isBotUser(reaction.GuildID, reaction.UserID) {
		return
	}
	authorID, authorIsBot := b.messageAuthor(reaction.ChannelID, reaction.MessageID)
	ctx := context.Background()
	if err := b.Activity.RecordReaction(ctx, reaction.GuildID, reaction.UserID, authorID, authorIsBot, added); err != nil {
		b.logger.Warn("reaction update failed", zap.String("guild_id", reaction.GuildID), zap.String("user_id", reaction.UserID), zap.Error(err))
	}
}

func (b *Bot) messageAuthor(channelID, messageID string) (string, bool) {
	msg, err := b.session.State.Message(channelID, messageID)
	if err != nil || msg == nil {
		msg, err = b.session.ChannelMessage(channelID, messageID)
	}
	if err != nil || msg == nil || msg.Author == nil {
		return "", false
	}
	return msg.Author.ID, msg.Author.Bot
}

func (b *Bot) isBotUser(guildID, userID string) bool {
	member, err := b.session.State.Member(guildID, userID)
	if err != nil || member == nil || member.User == nil {
		return false
	}
	return member.User.Bot
}

func (b *Bot) onVoiceStateUpdate(session *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	if event.VoiceState == nil || event.GuildID == "" {
		return
	}
	if event.Member != nil && event.Member.User != nil && event.Member.User.Bot {
		return
	}
	before := ""
	if event.BeforeUpdate != nil {
		before = event.BeforeUpdate.ChannelID
	}
	after := event.ChannelID
	ctx := context.Background()
	guildID, userID := event.GuildID, event.UserID

	var (
		minutes int
		err     error
		kind    audit.Event
	)
	switch {
	case before == "" && after != "":
		b.Activity.VoiceJoin(guildID, userID)
		b.Audit.Log(ctx, audit.EventVoiceJoin, guildID, userID, "channel="+after)
		return
	case before != "" && after == "":
		kind = audit.EventVoiceLeave
		minutes, err = b.Activity.VoiceLeave(ctx, guildID, userID)
	case before != "" && after != "" && before != after:
		kind = audit.EventVoiceMove
		minutes, err = b.Activity.VoiceMove(ctx, guildID, userID)
	default:
		return
	}
	if err != nil {
		b.logger.Warn("voice session update failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		return
	}
	b.Audit.Log(ctx, kind, guildID, userID, fmt.Sprintf("channel=%s minutes=%d", before, minutes))
}

func (b *Bot) onPresenceUpdate(session *discordgo.Session, event *discordgo.PresenceUpdate) {
	if event.User == nil || event.GuildID == "" || event.User.Bot {
		return
	}
	guildID, userID := event.GuildID, event.User.ID
	streaming := false
	for _, act := range event.Activities {
		if act != nil && act.Type == discordgo.ActivityTypeStreaming {
			streaming = true
			break
		}
	}

	ctx := context.Background()
	wasStreaming := b.Activity.Streaming(guildID, userID)
	switch {
	case streaming && !wasStreaming:
		b.Activity.StreamStart(guildID, userID)
		b.Audit.Log(ctx, audit.EventStreamStart, guildID, userID, "")
	case !streaming && wasStreaming:
		minutes, err := b.Activity.StreamStop(ctx, guildID, userID)
		if err != nil {
			b.logger.Warn("stream session update failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
			return
		}
		b.Audit.Log(ctx, audit.EventStreamStop, guildID, userID, fmt.Sprintf("minutes=%d", minutes))
	}
}

func (b *Bot) onGuildMemberRemove(session *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.Member == nil || event.Member.User == nil {
		return
	}
	b.Activity.Forget(event.GuildID, event.Member.User.ID)
	b.Leveling.Forget(event.GuildID, event.Member.User.ID)
}

func (b *Bot) logChannel(ctx context.Context, guildID string) string {
	settings, err := b.Store.LogSettings(ctx, guildID)
	if err != nil {
		b.logger.Warn("log settings lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		return ""
	}
	return settings.LogChannelID
}

// notifyAudit mirrors an audit entry to the guild's log channel. Repeats
// of the same entry within ten minutes edit one message with a counter.
func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	if entry.GuildID == "" {
		return
	}
	channelID := b.logChannel(ctx, entry.GuildID)
	if channelID == "" {
		return
	}

	key := entry.GuildID + "|" + entry.Level + "|" + entry.Event + "|" + entry.Details + "|" + entry.UserID
	window := 10 * time.Minute

	b.auditAggMu.Lock()
	agg := b.auditAgg[key]
	if agg != nil && agg.channelID == channelID && time.Since(agg.lastAt) <= window {
		agg.count++
		agg.lastAt = time.Now()
		count := agg.count
		messageID := agg.messageID
		b.auditAggMu.Unlock()
		if _, err := b.session.ChannelMessageEditEmbed(channelID, messageID, b.auditEmbed(entry, count)); err == nil {
			return
		}
		b.auditAggMu.Lock()
		delete(b.auditAgg, key)
	}
	b.auditAggMu.Unlock()

	msg, err := b.session.ChannelMessageSendEmbed(channelID, b.auditEmbed(entry, 1))
	if err != nil || msg == nil {
		return
	}
	b.auditAggMu.Lock()
	b.auditAgg[key] = &auditAggregate{channelID: channelID, messageID: msg.ID, count: 1, lastAt: time.Now()}
	b.auditAggMu.Unlock()
}

func (b *Bot) auditEmbed(entry storage.AuditLog, count int) *discordgo.MessageEmbed {
	colors := b.cfg.Notifications.EmbedColors
	color := colors.Action
	switch entry.Level {
	case audit.LevelWarn:
		color = colors.Warning
	case audit.LevelCrit:
		color = colors.Error
	}

	title := audit.Event(entry.Event).Label()
	if count > 1 {
		title = fmt.Sprintf("%s (x%d)", title, count)
	}
	fields := []*discordgo.MessageEmbedField{}
	if entry.UserID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "User", Value: "<@" + entry.UserID + ">", Inline: true})
	}
	if entry.Details != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Details", Value: entry.Details})
	}
	return &discordgo.MessageEmbed{
		Title:     title,
		Color:     color,
		Fields:    fields,
		Timestamp: entry.CreatedAt.Format(time.RFC3339),
	}
}
