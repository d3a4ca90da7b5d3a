package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"realmkeeper/internal/activity"
	"realmkeeper/internal/analytics"
	"realmkeeper/internal/bot"
	"realmkeeper/internal/config"
	"realmkeeper/internal/giveaway"
	"realmkeeper/internal/health"
	"realmkeeper/internal/leveling"
	"realmkeeper/internal/metrics"
	"realmkeeper/internal/modules/audit"
	"realmkeeper/internal/realmwar"
	"realmkeeper/internal/roles"
	"realmkeeper/internal/schedule"
	"realmkeeper/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot and its background jobs",
	Args:  cobra.NoArgs,
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("storage init failed", zap.Error(err))
		return err
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	auditLogger := audit.NewLogger(store, logger)

	levels := leveling.New(store, leveling.Config{
		MessageCooldown: time.Duration(cfg.Leveling.MessageCooldownMs) * time.Millisecond,
		NotifyCooldown:  time.Duration(cfg.Leveling.NotifyCooldownMs) * time.Millisecond,
		MinBaseXP:       cfg.Leveling.MinBaseXP,
		MaxBaseXP:       cfg.Leveling.MaxBaseXP,
		Defaults: storage.LevelSettings{
			LevelingEnabled: true,
			XPRate:          cfg.Leveling.XPRate,
			StartingXP:      cfg.Leveling.StartingXP,
			XPPerLevel:      cfg.Leveling.XPPerLevel,
		},
	}, auditLogger, logger)
	levels.WithMetrics(m)

	tracker := activity.NewTracker(store, loc, auditLogger, logger)
	tracker.WithMetrics(m)

	wars := realmwar.New(store, realmwar.Config{RoundDelay: time.Duration(cfg.RealmWar.RoundDelaySeconds) * time.Second}, auditLogger, logger)
	wars.WithMetrics(m)

	giveaways := giveaway.New(store, giveaway.Config{
		MaxWinners:   cfg.Giveaway.MaxWinners,
		PollInterval: time.Duration(cfg.Giveaway.PollIntervalSeconds) * time.Second,
	}, auditLogger, logger)
	giveaways.WithMetrics(m)

	botSvc, err := bot.New(cfg, logger, bot.Services{
		Store:     store,
		Audit:     auditLogger,
		Analytics: analytics.New(store),
		Leveling:  levels,
		Activity:  tracker,
		RealmWar:  wars,
		Giveaways: giveaways,
		Metrics:   m,
	})
	if err != nil {
		logger.Error("bot init failed", zap.Error(err))
		return err
	}

	roleEngine := roles.New(store, botSvc.Directory(), cfg.Activity.RoleBatchSize, logger)
	roleEngine.WithMetrics(m)
	rankJob := roles.NewRankJob(roleEngine, store, tracker, cfg.Activity.WindowDays, logger)
	rankJob.WithMetrics(m)
	botSvc.Attach(roleEngine, rankJob)

	if err := botSvc.Start(); err != nil {
		logger.Error("bot start failed", zap.Error(err))
		return err
	}
	logger.Info("bot started")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if resumed, err := wars.Resume(ctx); err != nil {
		logger.Warn("realmwar resume failed", zap.Error(err))
	} else if resumed > 0 {
		logger.Info("realmwar matches resumed", zap.Int("count", resumed))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runner := schedule.NewRunner("activity-rank-roles", schedule.Weekly{
			Weekday:  cfg.RankWeekday(),
			Hour:     cfg.Activity.RankHour,
			Location: loc,
		}, time.Duration(cfg.Activity.StartupDelaySeconds)*time.Second, rankJob.RunAll, logger)
		return runner.Run(gctx)
	})
	g.Go(func() error {
		return giveaways.Run(gctx)
	})
	g.Go(func() error {
		return maintain(gctx, cfg, levels, auditLogger, logger)
	})
	if cfg.Health.Enabled {
		g.Go(func() error {
			return health.New(cfg.Health.Addr, store, registry, logger).Run(gctx)
		})
	}

	err = g.Wait()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	wars.Close()
	botSvc.Close(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("background job failed", zap.Error(err))
		return err
	}
	return nil
}

// maintain trims expired cooldowns hourly and old audit entries daily.
func maintain(ctx context.Context, cfg config.Config, levels *leveling.Engine, auditLogger *audit.Logger, logger *zap.Logger) error {
	prune := time.NewTicker(time.Hour)
	defer prune.Stop()
	cleanup := time.NewTicker(24 * time.Hour)
	defer cleanup.Stop()

	if err := auditLogger.Cleanup(ctx, cfg.RetentionDays); err != nil {
		logger.Warn("audit cleanup failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-prune.C:
			levels.Prune()
		case <-cleanup.C:
			if err := auditLogger.Cleanup(ctx, cfg.RetentionDays); err != nil {
				logger.Warn("audit cleanup failed", zap.Error(err))
			}
		}
	}
}
