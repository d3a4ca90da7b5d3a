package realmwar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"realmkeeper/internal/metrics"
	"realmkeeper/internal/modules/audit"
	"realmkeeper/internal/storage"
	"realmkeeper/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrMinTooLow      = errors.New("minimum participants must be at least 2")
	ErrMaxNotAboveMin = errors.New("maximum participants must be greater than minimum participants")
	ErrAlreadyActive  = errors.New("a realmwar is already active in this guild")
	ErrNoActiveWar    = errors.New("no active realmwar")
	ErrAlreadyJoined  = errors.New("already joined")
	ErrFull           = errors.New("realmwar is full")
	ErrNotAccepting   = errors.New("realmwar is no longer accepting champions")
	ErrAlreadyRunning = errors.New("realmwar is already running")
)

// NotEnoughChampionsError is returned by Start below the minimum.
type NotEnoughChampionsError struct {
	Required int
	Joined   int
}

func (e *NotEnoughChampionsError) Error() string {
	return fmt.Sprintf("not enough champions: %d joined, %d required", e.Joined, e.Required)
}

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type Elimination struct {
	GuildID   string
	ChannelID string
	WarNumber int
	Round     int
	KillerID  string
	VictimID  string
	Remaining int
	Line      string
}

type Victory struct {
	GuildID   string
	ChannelID string
	WarNumber int
	WinnerID  string
	Kills     int
	Survival  time.Duration
}

type Announcer interface {
	Elimination(ctx context.Context, e Elimination) error
	Victory(ctx context.Context, v Victory) error
}

type WinnerRoles interface {
	GrantExclusive(ctx context.Context, guildID, roleID, userID string) error
}

type Config struct {
	RoundDelay time.Duration
}

type Engine struct {
	store     *storage.Store
	cfg       Config
	clock     Clock
	random    utils.Random
	announcer Announcer
	roles     WinnerRoles
	audit     *audit.Logger
	metrics   *metrics.Metrics
	logger    *zap.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	runs   map[string]*Run
}

func New(store *storage.Store, cfg Config, auditLogger *audit.Logger, logger *zap.Logger) *Engine {
	base, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:  store,
		cfg:    cfg,
		clock:  realClock{},
		random: utils.DefaultRandom,
		audit:  auditLogger,
		logger: logger,
		base:   base,
		cancel: cancel,
		runs:   make(map[string]*Run),
	}
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

func (e *Engine) WithRandom(random utils.Random) {
	e.random = random
}

func (e *Engine) WithMetrics(m *metrics.Metrics) {
	e.metrics = m
}

func (e *Engine) SetAnnouncer(announcer Announcer) {
	e.announcer = announcer
}

func (e *Engine) SetWinnerRoles(roles WinnerRoles) {
	e.roles = roles
}

// Setup opens registration for a new match in the guild.
func (e *Engine) Setup(ctx context.Context, guildID, channelID string, min, max int) (storage.RealmWar, error) {
	if min < 2 {
		return storage.RealmWar{}, ErrMinTooLow
	}
	if max <= min {
		return storage.RealmWar{}, ErrMaxNotAboveMin
	}
	war, err := e.store.CreateRealmWar(ctx, storage.RealmWar{
		ID:              uuid.NewString(),
		GuildID:         guildID,
		MinParticipants: min,
		MaxParticipants: max,
		Status:          string(StatusActive),
		ChannelID:       channelID,
		CreatedAt:       e.clock.Now(),
	}, string(StatusActive))
	if errors.Is(err, storage.ErrConflict) {
		return storage.RealmWar{}, ErrAlreadyActive
	}
	if err != nil {
		return storage.RealmWar{}, fmt.Errorf("create realmwar: %w", err)
	}
	return war, nil
}

func (e *Engine) AttachMessage(ctx context.Context, warID, channelID, messageID string) error {
	return e.store.SetRealmWarMessage(ctx, warID, channelID, messageID)
}

// Join registers userID for the match with the given number and returns
// the match with its new participant count.
func (e *Engine) Join(ctx context.Context, warNumber int, userID string) (storage.RealmWar, int, error) {
	war, err := e.store.RealmWarByNumber(ctx, warNumber)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.RealmWar{}, 0, ErrNoActiveWar
	}
	if err != nil {
		return storage.RealmWar{}, 0, err
	}
	if Status(war.Status) != StatusActive || !war.StartedAt.IsZero() {
		return war, 0, ErrNotAccepting
	}

	count, err := e.store.JoinRealmWar(ctx, war.ID, userID, string(StatusActive), e.clock.Now())
	switch {
	case errors.Is(err, storage.ErrAlreadyJoined):
		return war, 0, ErrAlreadyJoined
	case errors.Is(err, storage.ErrFull):
		return war, 0, ErrFull
	case errors.Is(err, storage.ErrStaleState):
		return war, 0, ErrNotAccepting
	case err != nil:
		return war, 0, err
	}
	return war, count, nil
}

func (e *Engine) Active(ctx context.Context, guildID string) (storage.RealmWar, error) {
	war, err := e.store.FindRealmWar(ctx, guildID, string(StatusActive))
	if errors.Is(err, storage.ErrNotFound) {
		return storage.RealmWar{}, ErrNoActiveWar
	}
	return war, err
}

// Start launches the elimination worker for the guild's active match.
func (e *Engine) Start(ctx context.Context, guildID string) (*Run, error) {
	war, err := e.Active(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if len(war.Participants) < war.MinParticipants {
		return nil, &NotEnoughChampionsError{Required: war.MinParticipants, Joined: len(war.Participants)}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, running := e.runs[guildID]; running {
		return nil, ErrAlreadyRunning
	}
	if err := e.store.MarkRealmWarStarted(ctx, war.ID, e.clock.Now()); err != nil {
		return nil, fmt.Errorf("mark started: %w", err)
	}
	return e.launchLocked(war), nil
}

// Resume restarts workers for matches that were running when the process
// stopped. It returns how many were resumed.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	wars, err := e.store.ListRealmWarsByStatus(ctx, string(StatusActive))
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	resumed := 0
	for _, war := range wars {
		if war.StartedAt.IsZero() {
			continue
		}
		if _, running := e.runs[war.GuildID]; running {
			continue
		}
		e.launchLocked(war)
		resumed++
	}
	return resumed, nil
}

func (e *Engine) launchLocked(war storage.RealmWar) *Run {
	ctx, cancel := context.WithCancel(e.base)
	run := &Run{done: make(chan struct{}), cancel: cancel}
	e.runs[war.GuildID] = run
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			if e.runs[war.GuildID] == run {
				delete(e.runs, war.GuildID)
			}
			e.mu.Unlock()
			cancel()
			close(run.done)
		}()
		run.result, run.err = e.fight(ctx, war)
		if run.err != nil && !errors.Is(run.err, context.Canceled) {
			e.logger.Error("realmwar worker failed", zap.String("guild_id", war.GuildID), zap.Int("war_number", war.WarNumber), zap.Error(run.err))
		}
	}()
	return run
}

// Cancel ends the guild's active match without a winner or role changes.
func (e *Engine) Cancel(ctx context.Context, guildID string) (storage.RealmWar, error) {
	return e.end(ctx, guildID, StatusCanceled)
}

// Stop completes the guild's active match early with no winner.
func (e *Engine) Stop(ctx context.Context, guildID string) (storage.RealmWar, error) {
	return e.end(ctx, guildID, StatusCompleted)
}

func (e *Engine) end(ctx context.Context, guildID string, to Status) (storage.RealmWar, error) {
	war, err := e.Active(ctx, guildID)
	if err != nil {
		return storage.RealmWar{}, err
	}
	if _, err := Status(war.Status).Transition(to); err != nil {
		return storage.RealmWar{}, err
	}
	err = e.store.TransitionRealmWar(ctx, war.ID, war.Status, string(to), "", e.clock.Now())
	if errors.Is(err, storage.ErrStaleState) {
		return storage.RealmWar{}, ErrNoActiveWar
	}
	if err != nil {
		return storage.RealmWar{}, err
	}

	e.mu.Lock()
	if run, ok := e.runs[guildID]; ok {
		run.cancel()
	}
	e.mu.Unlock()

	war.Status = string(to)
	e.metrics.RealmWarEnded(string(to))
	if e.audit != nil {
		event := audit.EventRealmWarCompleted
		if to == StatusCanceled {
			event = audit.EventRealmWarCanceled
		}
		e.audit.Log(ctx, event, guildID, "", fmt.Sprintf("RealmWar #%d ended early", war.WarNumber))
	}
	return war, nil
}

// Close stops every worker and waits for them to exit.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}
