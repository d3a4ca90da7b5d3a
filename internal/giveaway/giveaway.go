package giveaway

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"realmkeeper/internal/metrics"
	"realmkeeper/internal/modules/audit"
	"realmkeeper/internal/storage"
	"realmkeeper/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMaxWinners   = 50
	DefaultPollInterval = 15 * time.Second
)

var (
	ErrInvalidWinners        = errors.New("invalid number of winners")
	ErrInvalidImage          = errors.New("image must be an http or https url")
	ErrEmptyPrize            = errors.New("prize is required")
	ErrNotFound              = errors.New("giveaway not found")
	ErrEnded                 = errors.New("giveaway has already ended")
	ErrStillRunning          = errors.New("giveaway is still running")
	ErrAlreadyJoined         = errors.New("already entered")
	ErrMissingRole           = errors.New("missing required role")
	ErrNotEnoughParticipants = errors.New("not enough participants")
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Request struct {
	GuildID        string
	ChannelID      string
	HostID         string
	Prize          string
	Duration       string
	Winners        int
	RequiredRoleID string
	ImageURL       string
}

// Draw is one winner selection, announced by the bot.
type Draw struct {
	Giveaway storage.Giveaway
	Winners  []string
	Entrants int
	Number   int
	Reroll   bool
}

type Announcer interface {
	Announce(ctx context.Context, g storage.Giveaway) (string, error)
	Winners(ctx context.Context, d Draw) error
	// Retract removes an announcement whose giveaway could not be saved.
	Retract(ctx context.Context, g storage.Giveaway) error
}

type Config struct {
	MaxWinners   int
	PollInterval time.Duration
}

type Service struct {
	store     *storage.Store
	cfg       Config
	clock     Clock
	random    utils.Random
	announcer Announcer
	audit     *audit.Logger
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func New(store *storage.Store, cfg Config, auditLogger *audit.Logger, logger *zap.Logger) *Service {
	if cfg.MaxWinners <= 0 {
		cfg.MaxWinners = DefaultMaxWinners
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		clock:  realClock{},
		random: utils.DefaultRandom,
		audit:  auditLogger,
		logger: logger,
	}
}

func (s *Service) WithClock(clock Clock) {
	s.clock = clock
}

func (s *Service) WithRandom(random utils.Random) {
	s.random = random
}

func (s *Service) WithMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) SetAnnouncer(announcer Announcer) {
	s.announcer = announcer
}

func (s *Service) Start(ctx context.Context, req Request) (storage.Giveaway, error) {
	duration, err := ParseDuration(req.Duration)
	if err != nil {
		return storage.Giveaway{}, err
	}
	if req.Winners < 1 || req.Winners > s.cfg.MaxWinners {
		return storage.Giveaway{}, ErrInvalidWinners
	}
	prize := strings.TrimSpace(req.Prize)
	if prize == "" {
		return storage.Giveaway{}, ErrEmptyPrize
	}
	imageURL := ""
	if strings.TrimSpace(req.ImageURL) != "" {
		normalized, _, err := utils.NormalizeURL(req.ImageURL)
		if err != nil {
			return storage.Giveaway{}, ErrInvalidImage
		}
		imageURL = normalized
	}

	now := s.clock.Now()
	g := storage.Giveaway{
		ID:             uuid.NewString(),
		GuildID:        req.GuildID,
		ChannelID:      req.ChannelID,
		Prize:          prize,
		HostID:         req.HostID,
		Winners:        req.Winners,
		RequiredRoleID: req.RequiredRoleID,
		ImageURL:       imageURL,
		EndsAt:         now.Add(duration),
		Ongoing:        true,
		CreatedAt:      now,
	}
	if s.announcer != nil {
		messageID, err := s.announcer.Announce(ctx, g)
		if err != nil {
			return storage.Giveaway{}, fmt.Errorf("announce giveaway: %w", err)
		}
		g.MessageID = messageID
	}
	if g.MessageID == "" {
		g.MessageID = g.ID
	}
	if err := s.store.CreateGiveaway(ctx, g); err != nil {
		if s.announcer != nil && g.MessageID != g.ID {
			if rerr := s.announcer.Retract(ctx, g); rerr != nil {
				s.logger.Warn("orphaned giveaway announcement", zap.String("guild_id", g.GuildID), zap.String("message_id", g.MessageID), zap.Error(rerr))
			}
		}
		return storage.Giveaway{}, fmt.Errorf("save giveaway: %w", err)
	}
	if s.audit != nil {
		s.audit.Log(ctx, audit.EventGiveawayStarted, g.GuildID, g.HostID, fmt.Sprintf("%s (%d winners)", g.Prize, g.Winners))
	}
	return g, nil
}

func (s *Service) lookup(ctx context.Context, messageID string) (storage.Giveaway, error) {
	g, err := s.store.GiveawayByMessage(ctx, messageID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Giveaway{}, ErrNotFound
	}
	return g, err
}

// Join enters userID into the giveaway posted as messageID.
func (s *Service) Join(ctx context.Context, messageID, userID string, roleIDs []string) (storage.Giveaway, error) {
	g, err := s.lookup(ctx, messageID)
	if err != nil {
		return storage.Giveaway{}, err
	}
	if !g.Ongoing || !s.clock.Now().Before(g.EndsAt) {
		return g, ErrEnded
	}
	if g.RequiredRoleID != "" && !slices.Contains(roleIDs, g.RequiredRoleID) {
		return g, ErrMissingRole
	}
	if err := s.store.JoinGiveaway(ctx, g.ID, userID, s.clock.Now()); err != nil {
		if errors.Is(err, storage.ErrAlreadyJoined) {
			return g, ErrAlreadyJoined
		}
		return g, err
	}
	return g, nil
}

// End draws winners from every entrant except the host and closes the giveaway.
func (s *Service) End(ctx context.Context, messageID string) (Draw, error) {
	g, err := s.lookup(ctx, messageID)
	if err != nil {
		return Draw{}, err
	}
	return s.end(ctx, g)
}

func (s *Service) end(ctx context.Context, g storage.Giveaway) (Draw, error) {
	if !g.Ongoing {
		return Draw{}, ErrEnded
	}
	entries, err := s.store.GiveawayEntries(ctx, g.ID)
	if err != nil {
		return Draw{}, err
	}
	eligible := slices.DeleteFunc(entries, func(userID string) bool { return userID == g.HostID })
	if len(eligible) < g.Winners {
		return Draw{}, ErrNotEnoughParticipants
	}

	winners := utils.Sample(s.random, eligible, g.Winners)
	if err := s.store.CloseGiveaway(ctx, g.ID); err != nil {
		if errors.Is(err, storage.ErrStaleState) {
			return Draw{}, ErrEnded
		}
		return Draw{}, err
	}
	g.Ongoing = false
	return s.publish(ctx, g, winners, len(eligible), false)
}

// Reroll draws again from the full entrant pool of an ended giveaway.
func (s *Service) Reroll(ctx context.Context, messageID string) (Draw, error) {
	g, err := s.lookup(ctx, messageID)
	if err != nil {
		return Draw{}, err
	}
	if g.Ongoing {
		return Draw{}, ErrStillRunning
	}
	entries, err := s.store.GiveawayEntries(ctx, g.ID)
	if err != nil {
		return Draw{}, err
	}
	if len(entries) < g.Winners {
		return Draw{}, ErrNotEnoughParticipants
	}
	return s.publish(ctx, g, utils.Sample(s.random, entries, g.Winners), len(entries), true)
}

func (s *Service) publish(ctx context.Context, g storage.Giveaway, winners []string, entrants int, reroll bool) (Draw, error) {
	number, err := s.store.RecordGiveawayWinners(ctx, g.ID, winners, s.clock.Now())
	if err != nil {
		return Draw{}, fmt.Errorf("record winners: %w", err)
	}
	draw := Draw{Giveaway: g, Winners: winners, Entrants: entrants, Number: number, Reroll: reroll}
	if s.announcer != nil {
		if err := s.announcer.Winners(ctx, draw); err != nil {
			s.logger.Warn("giveaway announcement failed", zap.String("giveaway_id", g.ID), zap.Error(err))
		}
	}

	outcome, event := "winners", audit.EventGiveawayWinners
	if reroll {
		outcome, event = "reroll", audit.EventGiveawayReroll
	}
	if len(winners) == 0 {
		outcome, event = "no_winners", audit.EventGiveawayNoWinners
	}
	s.metrics.GiveawayEnded(outcome)
	if s.audit != nil {
		s.audit.Log(ctx, event, g.GuildID, g.HostID, fmt.Sprintf("%s: %s", g.Prize, strings.Join(winners, ",")))
	}
	return draw, nil
}

// Sweep ends every giveaway past its end time. Giveaways without enough
// eligible entrants are closed with no winners.
func (s *Service) Sweep(ctx context.Context) int {
	due, err := s.store.DueGiveaways(ctx, s.clock.Now())
	if err != nil {
		s.logger.Warn("due giveaways lookup failed", zap.Error(err))
		return 0
	}
	ended := 0
	for _, g := range due {
		_, err := s.end(ctx, g)
		if errors.Is(err, ErrNotEnoughParticipants) {
			err = s.closeEmpty(ctx, g)
		}
		if err != nil {
			s.logger.Warn("giveaway end failed", zap.String("giveaway_id", g.ID), zap.Error(err))
			continue
		}
		ended++
	}
	return ended
}

func (s *Service) closeEmpty(ctx context.Context, g storage.Giveaway) error {
	if err := s.store.CloseGiveaway(ctx, g.ID); err != nil {
		return err
	}
	g.Ongoing = false
	_, err := s.publish(ctx, g, nil, 0, false)
	return err
}

// Run sweeps due giveaways every poll interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
