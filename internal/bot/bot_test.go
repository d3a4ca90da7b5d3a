package bot

import (
	"errors"
	"fmt"
	"testing"

	"realmkeeper/internal/giveaway"
	"realmkeeper/internal/leveling"
	"realmkeeper/internal/realmwar"

	"github.com/bwmarrin/discordgo"
)

func TestReplyForRealmWarErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{realmwar.ErrMinTooLow, "Minimum participants must be at least 2."},
		{realmwar.ErrMaxNotAboveMin, "Maximum participants must be greater than minimum participants."},
		{realmwar.ErrAlreadyJoined, "You are already in the game."},
		{realmwar.ErrFull, "The game is full."},
		{realmwar.ErrNotAccepting, "This RealmWar is no longer accepting champions."},
		{&realmwar.NotEnoughChampionsError{Required: 4, Joined: 1}, "Not enough champions have joined the battle! At least 4 are required."},
		{fmt.Errorf("start: %w", &realmwar.NotEnoughChampionsError{Required: 2}), "Not enough champions have joined the battle! At least 2 are required."},
	}
	for _, tc := range cases {
		got, known := replyFor(tc.err)
		if !known || got != tc.want {
			t.Fatalf("replyFor(%v) = %q, %v; want %q", tc.err, got, known, tc.want)
		}
	}
}

func TestReplyForWrappedEngineErrors(t *testing.T) {
	for _, err := range []error{
		fmt.Errorf("level: %w", leveling.ErrAtMinimumLevel),
		giveaway.ErrDurationTooShort,
		giveaway.ErrNotEnoughParticipants,
	} {
		if _, known := replyFor(err); !known {
			t.Fatalf("expected %v to map to a reply", err)
		}
	}
}

func TestReplyForUnexpectedError(t *testing.T) {
	if _, known := replyFor(errors.New("database is locked")); known {
		t.Fatalf("unexpected errors must fall through to the generic reply")
	}
}

func TestSplitSubcommand(t *testing.T) {
	raw := []*discordgo.ApplicationCommandInteractionDataOption{{
		Name: "addlevel",
		Type: discordgo.ApplicationCommandOptionSubCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "u1"},
			{Name: "level", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(3)},
		},
	}}
	sub, opts := split(raw)
	if sub != "addlevel" {
		t.Fatalf("expected addlevel, got %q", sub)
	}
	if opts.id("user") != "u1" {
		t.Fatalf("expected user u1, got %q", opts.id("user"))
	}
	if opts.int("level", 0) != 3 {
		t.Fatalf("expected level 3, got %d", opts.int("level", 0))
	}
	if opts.int("missing", 7) != 7 {
		t.Fatalf("expected fallback for missing option")
	}
}

func TestPermissions(t *testing.T) {
	admin := &discordgo.Member{Permissions: discordgo.PermissionAdministrator}
	mod := &discordgo.Member{Permissions: discordgo.PermissionManageMessages}

	if !hasPermission(admin, discordgo.PermissionManageServer) {
		t.Fatalf("administrator should satisfy every permission")
	}
	if !hasPermission(mod, discordgo.PermissionManageMessages) {
		t.Fatalf("manage messages should satisfy giveaway commands")
	}
	if hasPermission(mod, discordgo.PermissionManageServer) {
		t.Fatalf("manage messages must not satisfy manage server")
	}
	if hasPermission(nil, discordgo.PermissionManageMessages) {
		t.Fatalf("nil member has no permissions")
	}

	if perm, _ := requiredPermission("realmwar"); perm != discordgo.PermissionManageServer {
		t.Fatalf("realmwar should require manage server")
	}
	if perm, _ := requiredPermission("level"); perm != 0 {
		t.Fatalf("level should be open to everyone")
	}
}

func TestCommandDefinitions(t *testing.T) {
	want := []string{"level", "leaderboard", "activity", "activity-leaderboard", "activity-admin", "leveladmin", "realmwar", "realmwar-config", "giveaway", "set-log-channel"}
	seen := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range commandDefinitions() {
		if _, dup := seen[cmd.Name]; dup {
			t.Fatalf("duplicate command %q", cmd.Name)
		}
		seen[cmd.Name] = cmd
	}
	for _, name := range want {
		cmd, ok := seen[name]
		if !ok {
			t.Fatalf("missing command %q", name)
		}
		perm, _ := requiredPermission(name)
		if perm == 0 {
			continue
		}
		if cmd.DefaultMemberPermissions == nil || *cmd.DefaultMemberPermissions != perm {
			t.Fatalf("command %q default permissions do not match the runtime check", name)
		}
	}
}

func TestHelpers(t *testing.T) {
	if got := mentions([]string{"a", "b"}); got != "<@a>, <@b>" {
		t.Fatalf("unexpected mentions %q", got)
	}
	if n, ok := parseWarNumber("12"); !ok || n != 12 {
		t.Fatalf("expected war 12, got %d %v", n, ok)
	}
	if _, ok := parseWarNumber("0"); ok {
		t.Fatalf("war numbers start at 1")
	}
	if clampLimit(100) != maxListLimit || clampLimit(0) != 1 {
		t.Fatalf("limit clamp out of range")
	}
}

func TestComponentMetricFoldsWarNumbers(t *testing.T) {
	for _, id := range []string{"realmwar-join-1", "realmwar-join-42", "realmwar-join-9001"} {
		if got := componentMetric(id); got != "realmwar-join" {
			t.Fatalf("%s: expected realmwar-join, got %q", id, got)
		}
	}
	if got := componentMetric(giveawayButtonID); got != giveawayButtonID {
		t.Fatalf("expected %q, got %q", giveawayButtonID, got)
	}
}
