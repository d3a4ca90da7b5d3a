package bot

import (
	"context"
	"fmt"
	"time"

	"realmkeeper/internal/giveaway"
	"realmkeeper/internal/modules/audit"
	"realmkeeper/internal/realmwar"
	"realmkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) cmdRealmWar(ctx context.Context, r *reply, i *discordgo.InteractionCreate, raw []*discordgo.ApplicationCommandInteractionDataOption) error {
	sub, opts := split(raw)
	guildID := i.GuildID

	switch sub {
	case "setup":
		war, err := b.RealmWar.Setup(ctx, guildID, i.ChannelID, opts.int("min_participants", 0), opts.int("max_participants", 0))
		if err != nil {
			return err
		}
		err = r.respond(&discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{b.warEmbed(war, 0)},
			Components: []discordgo.MessageComponent{joinButton(realmWarButtonPrefix+fmt.Sprint(war.WarNumber), "Join the battle")},
		})
		if err != nil {
			return err
		}
		msg, err := b.session.InteractionResponse(i.Interaction)
		if err != nil {
			b.logger.Warn("realmwar message lookup failed", zap.String("guild_id", guildID), zap.Error(err))
			return nil
		}
		if err := b.RealmWar.AttachMessage(ctx, war.ID, msg.ChannelID, msg.ID); err != nil {
			b.logger.Warn("realmwar message save failed", zap.String("guild_id", guildID), zap.Error(err))
		}
		return nil

	case "start":
		war, err := b.RealmWar.Active(ctx, guildID)
		if err != nil {
			return err
		}
		if _, err := b.RealmWar.Start(ctx, guildID); err != nil {
			return err
		}
		return r.text(fmt.Sprintf("RealmWar #%d begins! The darkness stirs...", war.WarNumber), false)

	case "cancel":
		war, err := b.RealmWar.Cancel(ctx, guildID)
		if err != nil {
			return err
		}
		return r.text(fmt.Sprintf("RealmWar #%d has been canceled. The shadows recede.", war.WarNumber), false)

	case "stop":
		war, err := b.RealmWar.Stop(ctx, guildID)
		if err != nil {
			return err
		}
		return r.text(fmt.Sprintf("RealmWar #%d has been stopped. No champion claims the throne.", war.WarNumber), false)
	}
	return nil
}

func (b *Bot) warEmbed(war storage.RealmWar, joined int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("RealmWar #%d", war.WarNumber),
		Description: "The cursed lands call for champions. Press the button to join the battle.",
		Color:       b.cfg.Notifications.EmbedColors.Action,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Champions", Value: fmt.Sprintf("%d/%d", joined, war.MaxParticipants), Inline: true},
			{Name: "Required", Value: fmt.Sprintf("%d", war.MinParticipants), Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func (b *Bot) joinRealmWar(ctx context.Context, r *reply, userID, rawNumber string) error {
	number, ok := parseWarNumber(rawNumber)
	if !ok {
		return realmwar.ErrNoActiveWar
	}
	war, count, err := b.RealmWar.Join(ctx, number, userID)
	if err != nil {
		return err
	}
	if war.MessageID != "" {
		if _, err := b.session.ChannelMessageEditEmbed(war.ChannelID, war.MessageID, b.warEmbed(war, count)); err != nil {
			b.logger.Warn("realmwar roster update failed", zap.String("guild_id", war.GuildID), zap.Error(err))
		}
	}
	return r.text("You have successfully joined the RealmWar!", true)
}

func (b *Bot) cmdRealmWarConfig(ctx context.Context, r *reply, i *discordgo.InteractionCreate, raw []*discordgo.ApplicationCommandInteractionDataOption) error {
	sub, opts := split(raw)
	if sub != "winner-role" {
		return nil
	}
	roleID := opts.id("role")
	if err := b.RealmWar.SetWinnerRole(ctx, i.GuildID, roleID); err != nil {
		return err
	}
	b.Audit.Log(ctx, audit.EventRealmWarWinnerRole, i.GuildID, interactionUser(i).ID, "role="+roleID)
	return r.text(fmt.Sprintf("The RealmWar champion will now receive <@&%s>.", roleID), true)
}

func (b *Bot) cmdGiveaway(ctx context.Context, r *reply, i *discordgo.InteractionCreate, raw []*discordgo.ApplicationCommandInteractionDataOption) error {
	sub, opts := split(raw)

	switch sub {
	case "start":
		channelID := opts.id("channel")
		if channelID == "" {
			channelID = i.ChannelID
		}
		g, err := b.Giveaways.Start(ctx, giveaway.Request{
			GuildID:        i.GuildID,
			ChannelID:      channelID,
			HostID:         interactionUser(i).ID,
			Prize:          opts.str("prize"),
			Duration:       opts.str("duration"),
			Winners:        opts.int("winners", 1),
			RequiredRoleID: opts.id("required_role"),
			ImageURL:       opts.str("image"),
		})
		if err != nil {
			return err
		}
		return r.text(fmt.Sprintf("Giveaway started in <#%s>! It ends <t:%d:R>.", g.ChannelID, g.EndsAt.Unix()), true)

	case "end":
		draw, err := b.Giveaways.End(ctx, opts.str("message_id"))
		if err != nil {
			return err
		}
		return r.text(fmt.Sprintf("Giveaway ended successfully and %d winner(s) have been announced!", len(draw.Winners)), true)

	case "reroll":
		draw, err := b.Giveaways.Reroll(ctx, opts.str("message_id"))
		if err != nil {
			return err
		}
		return r.text(fmt.Sprintf("Rerolled! New winners: %s", mentions(draw.Winners)), true)
	}
	return nil
}

func (b *Bot) joinGiveaway(ctx context.Context, r *reply, msg *discordgo.Message, userID string, roleIDs []string) error {
	if msg == nil {
		return giveaway.ErrNotFound
	}
	g, err := b.Giveaways.Join(ctx, msg.ID, userID, roleIDs)
	if err != nil {
		return err
	}
	return r.text(fmt.Sprintf("You have entered the giveaway for **%s**. Good luck!", g.Prize), true)
}

func (b *Bot) cmdSetLogChannel(ctx context.Context, r *reply, i *discordgo.InteractionCreate, opts optionMap) error {
	channelID := opts.id("channel")
	if err := b.Store.SaveLogSettings(ctx, storage.LogSettings{GuildID: i.GuildID, LogChannelID: channelID}); err != nil {
		return err
	}
	return r.text(fmt.Sprintf("Activity logs will be sent to <#%s>.", channelID), true)
}
