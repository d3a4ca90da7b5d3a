package realmwar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"realmkeeper/internal/modules/audit"
	"realmkeeper/internal/storage"

	"go.uber.org/zap"
)

// Result is the outcome of one match worker.
type Result struct {
	WarNumber  int
	Status     Status
	WinnerID   string
	Eliminated []string
	Kills      map[string]int
	Survival   time.Duration
}

// Run is a handle on a running elimination worker.
type Run struct {
	done   chan struct{}
	cancel context.CancelFunc
	result Result
	err    error
}

func (r *Run) Done() <-chan struct{} { return r.done }

// Result is valid once Done is closed.
func (r *Run) Result() (Result, error) {
	<-r.done
	return r.result, r.err
}

// fight plays elimination rounds until one champion remains. The stored
// status is re-read before every round, so a cancel or stop ends the loop.
func (e *Engine) fight(ctx context.Context, start storage.RealmWar) (Result, error) {
	result := Result{WarNumber: start.WarNumber, Status: StatusActive, Kills: make(map[string]int)}
	for _, elimination := range start.Eliminations {
		result.Kills[elimination.KillerID]++
		result.Eliminated = append(result.Eliminated, elimination.UserID)
	}

	for {
		war, err := e.store.RealmWar(ctx, start.ID)
		if err != nil {
			return result, fmt.Errorf("reload realmwar: %w", err)
		}
		if Status(war.Status) != StatusActive {
			result.Status = Status(war.Status)
			result.WinnerID = war.WinnerID
			return result, nil
		}

		alive := survivors(war)
		if len(alive) <= 1 {
			return e.finish(ctx, war, alive, result)
		}

		killer, victim := e.draw(alive)
		round := len(war.Eliminations) + 1
		if err := e.store.RecordElimination(ctx, war.ID, storage.RealmWarElimination{
			UserID:   victim,
			KillerID: killer,
			Round:    round,
			At:       e.clock.Now(),
		}); err != nil {
			return result, fmt.Errorf("record elimination: %w", err)
		}
		result.Kills[killer]++
		result.Eliminated = append(result.Eliminated, victim)
		e.metrics.Elimination()

		if e.announcer != nil {
			err := e.announcer.Elimination(ctx, Elimination{
				GuildID:   war.GuildID,
				ChannelID: war.ChannelID,
				WarNumber: war.WarNumber,
				Round:     round,
				KillerID:  killer,
				VictimID:  victim,
				Remaining: len(alive) - 1,
				Line:      eliminationLine(e.random, killer, victim),
			})
			if err != nil {
				e.logger.Warn("elimination announcement failed", zap.String("guild_id", war.GuildID), zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-e.clock.After(e.cfg.RoundDelay):
		}
	}
}

// draw picks a killer and a victim independently, re-rolling self picks.
func (e *Engine) draw(alive []storage.RealmWarParticipant) (string, string) {
	for {
		killer := alive[e.random.IntN(len(alive))].UserID
		victim := alive[e.random.IntN(len(alive))].UserID
		if killer != victim {
			return killer, victim
		}
	}
}

func survivors(war storage.RealmWar) []storage.RealmWarParticipant {
	eliminated := make(map[string]struct{}, len(war.Eliminations))
	for _, elimination := range war.Eliminations {
		eliminated[elimination.UserID] = struct{}{}
	}
	alive := make([]storage.RealmWarParticipant, 0, len(war.Participants))
	for _, p := range war.Participants {
		if _, gone := eliminated[p.UserID]; !gone {
			alive = append(alive, p)
		}
	}
	return alive
}

func (e *Engine) finish(ctx context.Context, war storage.RealmWar, alive []storage.RealmWarParticipant, result Result) (Result, error) {
	now := e.clock.Now()
	var winner storage.RealmWarParticipant
	if len(alive) == 1 {
		winner = alive[0]
	}

	if _, err := Status(war.Status).Transition(StatusCompleted); err != nil {
		return result, err
	}
	err := e.store.TransitionRealmWar(ctx, war.ID, war.Status, string(StatusCompleted), winner.UserID, now)
	if errors.Is(err, storage.ErrStaleState) {
		current, loadErr := e.store.RealmWar(ctx, war.ID)
		if loadErr != nil {
			return result, loadErr
		}
		result.Status = Status(current.Status)
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("complete realmwar: %w", err)
	}

	result.Status = StatusCompleted
	result.WinnerID = winner.UserID
	if !winner.JoinedAt.IsZero() && now.After(winner.JoinedAt) {
		result.Survival = now.Sub(winner.JoinedAt)
	}
	e.metrics.RealmWarEnded(string(StatusCompleted))
	if winner.UserID == "" {
		return result, nil
	}

	e.grantWinnerRole(ctx, war.GuildID, winner.UserID)
	if e.announcer != nil {
		err := e.announcer.Victory(ctx, Victory{
			GuildID:   war.GuildID,
			ChannelID: war.ChannelID,
			WarNumber: war.WarNumber,
			WinnerID:  winner.UserID,
			Kills:     result.Kills[winner.UserID],
			Survival:  result.Survival,
		})
		if err != nil {
			e.logger.Warn("victory announcement failed", zap.String("guild_id", war.GuildID), zap.Error(err))
		}
	}
	if e.audit != nil {
		e.audit.Log(ctx, audit.EventRealmWarWon, war.GuildID, winner.UserID, fmt.Sprintf("RealmWar #%d won with %d kills", war.WarNumber, result.Kills[winner.UserID]))
	}
	return result, nil
}

func (e *Engine) grantWinnerRole(ctx context.Context, guildID, userID string) {
	if e.roles == nil {
		return
	}
	cfg, err := e.store.RealmWarConfig(ctx, guildID)
	if err != nil {
		e.logger.Warn("realmwar config lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	if cfg.WinnerRoleID == "" {
		return
	}
	if err := e.roles.GrantExclusive(ctx, guildID, cfg.WinnerRoleID, userID); err != nil {
		e.logger.Warn("winner role grant failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) SetWinnerRole(ctx context.Context, guildID, roleID string) error {
	return e.store.SaveRealmWarConfig(ctx, storage.RealmWarConfig{GuildID: guildID, WinnerRoleID: roleID})
}
