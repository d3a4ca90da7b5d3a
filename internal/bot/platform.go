package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"realmkeeper/internal/giveaway"
	"realmkeeper/internal/leveling"
	"realmkeeper/internal/realmwar"
	"realmkeeper/internal/roles"
	"realmkeeper/internal/storage"

	"github.com/bwmarrin/discordgo"
)

const memberPageSize = 1000

// directory exposes guild membership to the role engine.
type directory struct {
	session *discordgo.Session
}

func (d directory) Members(ctx context.Context, guildID string) ([]roles.Member, error) {
	var out []roles.Member
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := d.session.GuildMembers(guildID, after, memberPageSize)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		for _, m := range page {
			if m == nil || m.User == nil {
				continue
			}
			out = append(out, toMember(m))
		}
		if len(page) < memberPageSize {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (d directory) Member(ctx context.Context, guildID, userID string) (roles.Member, error) {
	if m, err := d.session.State.Member(guildID, userID); err == nil && m != nil && m.User != nil {
		return toMember(m), nil
	}
	m, err := d.session.GuildMember(guildID, userID)
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
			return roles.Member{}, roles.ErrMemberNotFound
		}
		return roles.Member{}, err
	}
	return toMember(m), nil
}

func (d directory) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return d.session.GuildMemberRoleAdd(guildID, userID, roleID)
}

func (d directory) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return d.session.GuildMemberRoleRemove(guildID, userID, roleID)
}

func toMember(m *discordgo.Member) roles.Member {
	return roles.Member{UserID: m.User.ID, Bot: m.User.Bot, Roles: m.Roles}
}

// levelNotifier posts level-up announcements.
type levelNotifier struct {
	session *discordgo.Session
}

func (n levelNotifier) LevelUp(ctx context.Context, note leveling.Notification) error {
	_, err := n.session.ChannelMessageSend(note.ChannelID, leveling.NotificationText(note))
	return err
}

// warAnnouncer posts RealmWar rounds and results to the match channel.
type warAnnouncer struct {
	session *discordgo.Session
	colors  embedColors
}

func (a warAnnouncer) Elimination(ctx context.Context, e realmwar.Elimination) error {
	embed := &discordgo.MessageEmbed{
		Title:       "Ritual Report",
		Description: e.Line,
		Color:       a.colors.Warning,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Round", Value: fmt.Sprintf("%d", e.Round), Inline: true},
			{Name: "Champions remaining", Value: fmt.Sprintf("%d", e.Remaining), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("RealmWar #%d", e.WarNumber)},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	_, err := a.session.ChannelMessageSendEmbed(e.ChannelID, embed)
	return err
}

func (a warAnnouncer) Victory(ctx context.Context, v realmwar.Victory) error {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Champion of RealmWar #%d", v.WarNumber),
		Description: fmt.Sprintf("<@%s> stands alone among the fallen.", v.WinnerID),
		Color:       a.colors.Action,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Kills", Value: fmt.Sprintf("%d", v.Kills), Inline: true},
			{Name: "Survived", Value: v.Survival.Round(time.Second).String(), Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	_, err := a.session.ChannelMessageSendEmbed(v.ChannelID, embed)
	return err
}

// giveawayAnnouncer posts the giveaway entry message and its draws.
type giveawayAnnouncer struct {
	session *discordgo.Session
	colors  embedColors
}

func (a giveawayAnnouncer) Announce(ctx context.Context, g storage.Giveaway) (string, error) {
	msg, err := a.session.ChannelMessageSendComplex(g.ChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{giveawayEmbed(g, a.colors.Action)},
		Components: []discordgo.MessageComponent{joinButton(giveawayButtonID, "Enter giveaway")},
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (a giveawayAnnouncer) Retract(ctx context.Context, g storage.Giveaway) error {
	return a.session.ChannelMessageDelete(g.ChannelID, g.MessageID)
}

func (a giveawayAnnouncer) Winners(ctx context.Context, d giveaway.Draw) error {
	g := d.Giveaway
	var text string
	switch {
	case len(d.Winners) == 0:
		text = fmt.Sprintf("The giveaway for **%s** ended without enough participants.", g.Prize)
	case d.Reroll:
		text = fmt.Sprintf("New winners: %s! Congratulations!", mentions(d.Winners))
	default:
		text = fmt.Sprintf("Congratulations %s! You won **%s**!", mentions(d.Winners), g.Prize)
	}

	if !d.Reroll && g.MessageID != g.ID {
		embed := giveawayEmbed(g, a.colors.Warning)
		embed.Title = "Giveaway Ended"
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Winners", Value: orNone(mentions(d.Winners))})
		empty := []discordgo.MessageComponent{}
		_, _ = a.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
			ID:         g.MessageID,
			Channel:    g.ChannelID,
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: empty,
		})
	}
	_, err := a.session.ChannelMessageSend(g.ChannelID, text)
	return err
}

func giveawayEmbed(g storage.Giveaway, color int) *discordgo.MessageEmbed {
	lines := []string{
		fmt.Sprintf("**Prize:** %s", g.Prize),
		fmt.Sprintf("**Hosted by:** <@%s>", g.HostID),
		fmt.Sprintf("**Winners:** %d", g.Winners),
		fmt.Sprintf("**Ends:** <t:%d:R>", g.EndsAt.Unix()),
	}
	if g.RequiredRoleID != "" {
		lines = append(lines, fmt.Sprintf("**Required role:** <@&%s>", g.RequiredRoleID))
	}
	embed := &discordgo.MessageEmbed{
		Title:       "New Giveaway!",
		Description: strings.Join(lines, "\n"),
		Color:       color,
		Timestamp:   g.EndsAt.Format(time.RFC3339),
	}
	if g.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: g.ImageURL}
	}
	return embed
}

func joinButton(customID, label string) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: label, Style: discordgo.PrimaryButton, CustomID: customID},
	}}
}

func mentions(userIDs []string) string {
	parts := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		parts = append(parts, "<@"+id+">")
	}
	return strings.Join(parts, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

func pngFile(name string, data []byte) *discordgo.File {
	return &discordgo.File{Name: name, ContentType: "image/png", Reader: bytes.NewReader(data)}
}
