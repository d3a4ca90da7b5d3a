package giveaway

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"realmkeeper/internal/storage"

	"go.uber.org/zap"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeAnnouncer struct {
	next      int
	fixedID   string
	draws     []Draw
	retracted []string
}

func (f *fakeAnnouncer) Announce(context.Context, storage.Giveaway) (string, error) {
	if f.fixedID != "" {
		return f.fixedID, nil
	}
	f.next++
	return fmt.Sprintf("msg-%d", f.next), nil
}

func (f *fakeAnnouncer) Retract(_ context.Context, g storage.Giveaway) error {
	f.retracted = append(f.retracted, g.MessageID)
	return nil
}

func (f *fakeAnnouncer) Winners(_ context.Context, d Draw) error {
	f.draws = append(f.draws, d)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeClock, *fakeAnnouncer) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	service := New(store, Config{}, nil, zap.NewNop())
	clock := &fakeClock{now: time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)}
	announcer := &fakeAnnouncer{}
	service.WithClock(clock)
	service.WithRandom(rand.New(rand.NewPCG(1, 2)))
	service.SetAnnouncer(announcer)
	return service, clock, announcer
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		err  error
	}{
		{in: "1d2h30m40s", want: 26*time.Hour + 30*time.Minute + 40*time.Second},
		{in: "1m30s", want: 90 * time.Second},
		{in: "2H", want: 2 * time.Hour},
		{in: "45000", want: 45 * time.Second},
		{in: "2 hours", want: 2 * time.Hour},
		{in: "1.5 hours", want: 90 * time.Minute},
		{in: "10s", err: ErrDurationTooShort},
		{in: "31d", err: ErrDurationTooLong},
		{in: "soon", err: ErrInvalidDuration},
		{in: "", err: ErrInvalidDuration},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v (%s)", tt.err, err, got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %s (%v), want %s", got, err, tt.want)
			}
		})
	}
}

func TestStartValidation(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	base := Request{GuildID: "g1", ChannelID: "c1", HostID: "host", Prize: "Nitro", Duration: "1h", Winners: 1}

	for name, mutate := range map[string]func(r *Request){
		"zero winners":  func(r *Request) { r.Winners = 0 },
		"too many":      func(r *Request) { r.Winners = 51 },
		"bad image":     func(r *Request) { r.ImageURL = "ftp://example.com/a.png" },
		"bad duration":  func(r *Request) { r.Duration = "later" },
		"missing prize": func(r *Request) { r.Prize = "  " },
	} {
		req := base
		mutate(&req)
		if _, err := service.Start(ctx, req); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	req := base
	req.ImageURL = "https://Example.com/prize.png?utm_source=x"
	g, err := service.Start(ctx, req)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if g.MessageID != "msg-1" || !g.Ongoing || g.ImageURL != "https://example.com/prize.png" {
		t.Fatalf("unexpected giveaway %+v", g)
	}
}

func TestStartRetractsAnnouncementWhenSaveFails(t *testing.T) {
	service, _, announcer := newTestService(t)
	ctx := context.Background()
	req := Request{GuildID: "g1", ChannelID: "c1", HostID: "host", Prize: "Nitro", Duration: "1h", Winners: 1}

	announcer.fixedID = "msg-same"
	if _, err := service.Start(ctx, req); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Start(ctx, req); err == nil {
		t.Fatalf("expected the second save to fail on the duplicate message")
	}
	if !slices.Equal(announcer.retracted, []string{"msg-same"}) {
		t.Fatalf("expected the orphaned announcement to be retracted, got %v", announcer.retracted)
	}
}

func TestJoinRules(t *testing.T) {
	service, clock, _ := newTestService(t)
	ctx := context.Background()
	g, err := service.Start(ctx, Request{GuildID: "g1", HostID: "host", Prize: "Nitro", Duration: "1h", Winners: 1, RequiredRoleID: "member"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Join(ctx, g.MessageID, "u1", nil); !errors.Is(err, ErrMissingRole) {
		t.Fatalf("expected ErrMissingRole, got %v", err)
	}
	if _, err := service.Join(ctx, g.MessageID, "u1", []string{"member"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.Join(ctx, g.MessageID, "u1", []string{"member"}); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
	if _, err := service.Join(ctx, "missing", "u1", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	clock.now = clock.now.Add(2 * time.Hour)
	if _, err := service.Join(ctx, g.MessageID, "u2", []string{"member"}); !errors.Is(err, ErrEnded) {
		t.Fatalf("expected ErrEnded after end time, got %v", err)
	}
}

func TestEndExcludesHostAndNeverRepeats(t *testing.T) {
	service, _, announcer := newTestService(t)
	ctx := context.Background()
	g, err := service.Start(ctx, Request{GuildID: "g1", HostID: "host", Prize: "Nitro", Duration: "1h", Winners: 3})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, user := range []string{"host", "a", "b", "c", "d", "e"} {
		if _, err := service.Join(ctx, g.MessageID, user, nil); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	if _, err := service.Reroll(ctx, g.MessageID); !errors.Is(err, ErrStillRunning) {
		t.Fatalf("expected ErrStillRunning, got %v", err)
	}

	draw, err := service.End(ctx, g.MessageID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(draw.Winners) != 3 || draw.Entrants != 5 {
		t.Fatalf("unexpected draw %+v", draw)
	}
	seen := map[string]bool{}
	for _, w := range draw.Winners {
		if w == "host" || seen[w] {
			t.Fatalf("invalid winners %v", draw.Winners)
		}
		seen[w] = true
	}
	if _, err := service.End(ctx, g.MessageID); !errors.Is(err, ErrEnded) {
		t.Fatalf("expected ErrEnded, got %v", err)
	}

	reroll, err := service.Reroll(ctx, g.MessageID)
	if err != nil {
		t.Fatalf("reroll: %v", err)
	}
	if !reroll.Reroll || reroll.Number != 2 || reroll.Entrants != 6 || len(reroll.Winners) != 3 {
		t.Fatalf("unexpected reroll %+v", reroll)
	}
	if len(announcer.draws) != 2 {
		t.Fatalf("expected 2 announcements, got %d", len(announcer.draws))
	}
}

func TestEndRequiresEnoughEligible(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	g, err := service.Start(ctx, Request{GuildID: "g1", HostID: "host", Prize: "Nitro", Duration: "1h", Winners: 2})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, user := range []string{"host", "a"} {
		if _, err := service.Join(ctx, g.MessageID, user, nil); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if _, err := service.End(ctx, g.MessageID); !errors.Is(err, ErrNotEnoughParticipants) {
		t.Fatalf("expected ErrNotEnoughParticipants, got %v", err)
	}
}

func TestSweepEndsDueGiveaways(t *testing.T) {
	service, clock, announcer := newTestService(t)
	ctx := context.Background()
	full, err := service.Start(ctx, Request{GuildID: "g1", HostID: "host", Prize: "Nitro", Duration: "1m", Winners: 1})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Start(ctx, Request{GuildID: "g1", HostID: "host", Prize: "Empty", Duration: "1m", Winners: 1}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Start(ctx, Request{GuildID: "g1", HostID: "host", Prize: "Later", Duration: "1d", Winners: 1}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Join(ctx, full.MessageID, "a", nil); err != nil {
		t.Fatalf("join: %v", err)
	}

	clock.now = clock.now.Add(2 * time.Minute)
	if ended := service.Sweep(ctx); ended != 2 {
		t.Fatalf("expected 2 ended, got %d", ended)
	}
	if len(announcer.draws) != 2 {
		t.Fatalf("expected 2 draws, got %d", len(announcer.draws))
	}
	for _, draw := range announcer.draws {
		switch draw.Giveaway.Prize {
		case "Nitro":
			if !slices.Equal(draw.Winners, []string{"a"}) {
				t.Fatalf("unexpected winners %v", draw.Winners)
			}
		case "Empty":
			if len(draw.Winners) != 0 {
				t.Fatalf("expected no winners, got %v", draw.Winners)
			}
		default:
			t.Fatalf("unexpected draw for %s", draw.Giveaway.Prize)
		}
	}
	if ended := service.Sweep(ctx); ended != 0 {
		t.Fatalf("expected nothing left to end, got %d", ended)
	}
}
