package roles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"realmkeeper/internal/activity"
	"realmkeeper/internal/metrics"
	"realmkeeper/internal/storage"

	"go.uber.org/zap"
)

type Scorer interface {
	RankWindow(ctx context.Context, guildID string, days int) ([]activity.Entry, error)
}

// RankJob is the weekly activity-rank role pass.
type RankJob struct {
	engine  *Engine
	store   *storage.Store
	scorer  Scorer
	days    int
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewRankJob(engine *Engine, store *storage.Store, scorer Scorer, days int, logger *zap.Logger) *RankJob {
	if days <= 0 {
		days = 7
	}
	return &RankJob{engine: engine, store: store, scorer: scorer, days: days, logger: logger}
}

func (j *RankJob) WithMetrics(m *metrics.Metrics) {
	j.metrics = m
}

// Run reconciles one guild. Guilds without tier roles are skipped.
func (j *RankJob) Run(ctx context.Context, guildID string) (Report, error) {
	tiers, err := j.store.ActivityRoleTiers(ctx, guildID)
	if errors.Is(err, storage.ErrNotFound) {
		return Report{}, nil
	}
	if err != nil {
		return Report{}, fmt.Errorf("load tiers: %w", err)
	}

	started := time.Now()
	entries, err := j.scorer.RankWindow(ctx, guildID, j.days)
	if err != nil {
		return Report{}, fmt.Errorf("score window: %w", err)
	}
	ranked := make([]string, 0, len(entries))
	for _, entry := range entries {
		ranked = append(ranked, entry.UserID)
	}

	report, err := j.engine.ReconcileActivityTiers(ctx, guildID, ranked, tiers)
	if err != nil {
		return Report{}, fmt.Errorf("reconcile tiers: %w", err)
	}
	j.metrics.ObserveRankJob(time.Since(started).Seconds())
	j.logger.Info("activity roles reconciled",
		zap.String("guild_id", guildID),
		zap.Int("ranked", len(ranked)),
		zap.Int("members", report.Members),
		zap.Int("added", report.Added),
		zap.Int("removed", report.Removed),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// RunAll reconciles every guild that has tier roles configured.
func (j *RankJob) RunAll(ctx context.Context) {
	guilds, err := j.store.ListActivityRoleGuilds(ctx)
	if err != nil {
		j.logger.Error("list activity role guilds failed", zap.Error(err))
		return
	}
	for _, guildID := range guilds {
		if ctx.Err() != nil {
			return
		}
		if _, err := j.Run(ctx, guildID); err != nil {
			j.logger.Warn("activity role pass failed", zap.String("guild_id", guildID), zap.Error(err))
		}
	}
}
