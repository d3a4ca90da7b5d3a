package leveling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"realmkeeper/internal/metrics"
	"realmkeeper/internal/modules/audit"
	"realmkeeper/internal/storage"
	"realmkeeper/internal/utils"

	"go.uber.org/zap"
)

var (
	ErrLevelingDisabled = errors.New("leveling is disabled for this guild")
	ErrInvalidLevel     = errors.New("level must be at least 1")
	ErrInvalidAmount    = errors.New("amount must be at least 1")
	ErrNoLevelData      = errors.New("member has no level data")
	ErrAtMinimumLevel   = errors.New("member is already at the minimum level")
	ErrInvalidRate      = errors.New("xp rate must be zero or greater")
	ErrInvalidBonus     = errors.New("bonus multiplier must be at least 1")
	ErrConfirmRequired  = errors.New("reset requires the exact confirmation text")
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Message is a qualifying chat message as seen by the accrual engine.
type Message struct {
	GuildID   string
	UserID    string
	ChannelID string
	RoleIDs   []string
}

type Notification struct {
	GuildID   string
	UserID    string
	ChannelID string
	Level     int
	RoleIDs   []string
}

type Notifier interface {
	LevelUp(ctx context.Context, n Notification) error
}

type RoleSyncer interface {
	SyncLevelRoles(ctx context.Context, guildID, userID string, startLevel, endLevel int, stackable bool) error
}

type Config struct {
	MessageCooldown time.Duration
	NotifyCooldown  time.Duration
	MinBaseXP       int
	MaxBaseXP       int
	Defaults        storage.LevelSettings
}

type Outcome struct {
	Awarded       int
	OnCooldown    bool
	PreviousLevel int
	Level         int
	LevelUps      int
	Notified      bool
	State         storage.MemberLevel
}

type Engine struct {
	store    *storage.Store
	cfg      Config
	clock    Clock
	random   utils.Random
	xpWait   *utils.Cooldowns
	notify   *utils.Cooldowns
	notifier Notifier
	roles    RoleSyncer
	audit    *audit.Logger
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func New(store *storage.Store, cfg Config, auditLogger *audit.Logger, logger *zap.Logger) *Engine {
	if cfg.MaxBaseXP < cfg.MinBaseXP {
		cfg.MaxBaseXP = cfg.MinBaseXP
	}
	return &Engine{
		store:  store,
		cfg:    cfg,
		clock:  realClock{},
		random: utils.DefaultRandom,
		xpWait: utils.NewCooldowns(cfg.MessageCooldown),
		notify: utils.NewCooldowns(cfg.NotifyCooldown),
		audit:  auditLogger,
		logger: logger,
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

func (e *Engine) SetNotifier(notifier Notifier) {
	e.notifier = notifier
}

func (e *Engine) SetRoleSyncer(roles RoleSyncer) {
	e.roles = roles
}

// Forget drops the member's cooldown entries.
func (e *Engine) Forget(guildID, userID string) {
	e.xpWait.Forget(guildID, userID)
	e.notify.Forget(guildID, userID)
}

// Prune trims expired cooldown entries.
func (e *Engine) Prune() {
	now := e.clock.Now()
	e.xpWait.Prune(now)
	e.notify.Prune(now)
}

func (e *Engine) Settings(ctx context.Context, guildID string) (storage.LevelSettings, error) {
	defaults := e.cfg.Defaults
	defaults.GuildID = guildID
	return e.store.LevelSettings(ctx, guildID, defaults)
}

// Award grants XP for a qualifying message.
func (e *Engine) Award(ctx context.Context, msg Message) (Outcome, error) {
	settings, err := e.Settings(ctx, msg.GuildID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load level settings: %w", err)
	}
	if !settings.LevelingEnabled {
		return Outcome{}, nil
	}

	now := e.clock.Now()
	if !e.xpWait.Allow(msg.GuildID, msg.UserID, now) {
		return Outcome{OnCooldown: true}, nil
	}

	bonuses, err := e.store.ListBonusRoles(ctx, msg.GuildID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load bonus roles: %w", err)
	}
	multiplier := BonusMultiplier(bonuses, msg.RoleIDs)
	base := e.cfg.MinBaseXP + e.random.IntN(e.cfg.MaxBaseXP-e.cfg.MinBaseXP+1)
	xpToAdd := int(math.Floor(float64(base) * settings.XPRate * multiplier))

	out := Outcome{Awarded: xpToAdd}
	state, err := e.store.UpdateMemberLevel(ctx, msg.GuildID, msg.UserID, func(state *storage.MemberLevel) error {
		out.PreviousLevel = state.Level
		out.LevelUps = ApplyXP(state, xpToAdd, settings)
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("save member level: %w", err)
	}
	out.State = state
	out.Level = state.Level

	e.metrics.AddXP(xpToAdd)
	if out.LevelUps == 0 {
		return out, nil
	}
	e.metrics.AddLevelUps(out.LevelUps)

	if e.notify.Allow(msg.GuildID, msg.UserID, now) {
		out.Notified = true
		e.sendLevelUp(ctx, settings, msg, out)
	}
	e.syncRoles(ctx, msg.GuildID, msg.UserID, out.PreviousLevel+1, out.Level, settings.Stackable)
	if e.audit != nil {
		e.audit.Log(ctx, audit.EventLevelUp, msg.GuildID, msg.UserID, fmt.Sprintf("level %d -> %d", out.PreviousLevel, out.Level))
	}
	return out, nil
}

func (e *Engine) sendLevelUp(ctx context.Context, settings storage.LevelSettings, msg Message, out Outcome) {
	if e.notifier == nil {
		return
	}
	channelID := settings.LevelUpChannelID
	if channelID == "" {
		channelID = msg.ChannelID
	}

	var earned []string
	bindings, err := e.store.ListLevelRoles(ctx, msg.GuildID)
	if err != nil {
		e.logger.Warn("level roles lookup failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
	}
	for _, binding := range bindings {
		if binding.Level > out.PreviousLevel && binding.Level <= out.Level {
			earned = append(earned, binding.RoleID)
		}
	}

	n := Notification{GuildID: msg.GuildID, UserID: msg.UserID, ChannelID: channelID, Level: out.Level, RoleIDs: earned}
	if err := e.notifier.LevelUp(ctx, n); err != nil {
		e.logger.Warn("level-up notification failed", zap.String("guild_id", msg.GuildID), zap.String("user_id", msg.UserID), zap.Error(err))
	}
}

func (e *Engine) syncRoles(ctx context.Context, guildID, userID string, start, end int, stackable bool) {
	if e.roles == nil {
		return
	}
	if err := e.roles.SyncLevelRoles(ctx, guildID, userID, start, end, stackable); err != nil {
		e.logger.Warn("level role sync failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
	}
}

// NotificationText renders the level-up announcement.
func NotificationText(n Notification) string {
	text := fmt.Sprintf("<@%s> has leveled up to level **%d**!", n.UserID, n.Level)
	for _, roleID := range n.RoleIDs {
		text += fmt.Sprintf(" You earned the <@&%s> role!", roleID)
	}
	return text
}
