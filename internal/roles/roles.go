package roles

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"

	"realmkeeper/internal/metrics"
	"realmkeeper/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultBatchSize = 20

var ErrMemberNotFound = errors.New("member not found")

type Member struct {
	UserID string
	Bot    bool
	Roles  []string
}

func (m Member) Has(roleID string) bool {
	return slices.Contains(m.Roles, roleID)
}

// Directory is the platform view of guild membership and role grants.
type Directory interface {
	Members(ctx context.Context, guildID string) ([]Member, error)
	Member(ctx context.Context, guildID, userID string) (Member, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}

type Mutation struct {
	UserID string
	RoleID string
	Add    bool
}

type Report struct {
	Members int
	Added   int
	Removed int
	Failed  int
}

type Engine struct {
	store     *storage.Store
	dir       Directory
	batchSize int
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func New(store *storage.Store, dir Directory, batchSize int, logger *zap.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{store: store, dir: dir, batchSize: batchSize, logger: logger}
}

func (e *Engine) WithMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Apply performs mutations in chunks of batchSize, concurrently within a
// chunk. Failures are logged and counted; they never stop the pass.
func (e *Engine) Apply(ctx context.Context, guildID string, mutations []Mutation) Report {
	var report Report
	var failed atomic.Int64
	for chunk := range slices.Chunk(mutations, e.batchSize) {
		if ctx.Err() != nil {
			failed.Add(int64(len(chunk)))
			continue
		}
		var g errgroup.Group
		for _, m := range chunk {
			g.Go(func() error {
				op := "remove"
				var err error
				if m.Add {
					op = "add"
					err = e.dir.AddRole(ctx, guildID, m.UserID, m.RoleID)
				} else {
					err = e.dir.RemoveRole(ctx, guildID, m.UserID, m.RoleID)
				}
				e.metrics.RoleMutation(op, err)
				if err != nil {
					failed.Add(1)
					e.logger.Warn("role mutation failed",
						zap.String("op", op),
						zap.String("guild_id", guildID),
						zap.String("user_id", m.UserID),
						zap.String("role_id", m.RoleID),
						zap.Error(err),
					)
				}
				return nil
			})
		}
		_ = g.Wait()
		for _, m := range chunk {
			if m.Add {
				report.Added++
			} else {
				report.Removed++
			}
		}
	}
	report.Failed = int(failed.Load())
	return report
}

// SyncLevelRoles reconciles level-bound roles for a member at endLevel.
// Stackable guilds only ever gain roles. Otherwise the member keeps just the
// highest binding at or below endLevel.
func (e *Engine) SyncLevelRoles(ctx context.Context, guildID, userID string, startLevel, endLevel int, stackable bool) error {
	bindings, err := e.store.ListLevelRoles(ctx, guildID)
	if err != nil {
		return err
	}
	if len(bindings) == 0 {
		return nil
	}
	member, err := e.dir.Member(ctx, guildID, userID)
	if err != nil {
		return err
	}

	var mutations []Mutation
	if stackable {
		for _, binding := range bindings {
			if binding.Level <= endLevel && !member.Has(binding.RoleID) {
				mutations = append(mutations, Mutation{UserID: userID, RoleID: binding.RoleID, Add: true})
			}
		}
	} else {
		target := ""
		for _, binding := range bindings {
			if binding.Level <= endLevel {
				target = binding.RoleID
			}
		}
		for _, binding := range bindings {
			if binding.RoleID != target && member.Has(binding.RoleID) {
				mutations = append(mutations, Mutation{UserID: userID, RoleID: binding.RoleID})
			}
		}
		if target != "" && !member.Has(target) {
			mutations = append(mutations, Mutation{UserID: userID, RoleID: target, Add: true})
		}
	}
	e.Apply(ctx, guildID, mutations)
	return nil
}

// ReconcileActivityTiers grants tier roles by rank position, the overall
// role to every ranked user, and the inactive role to every other non-bot
// member. Only configured tier roles are added or removed.
func (e *Engine) ReconcileActivityTiers(ctx context.Context, guildID string, ranked []string, tiers storage.ActivityRoleTiers) (Report, error) {
	members, err := e.dir.Members(ctx, guildID)
	if err != nil {
		return Report{}, err
	}

	managed := make(map[string]struct{})
	for _, roleID := range []string{tiers.Top1To3, tiers.Top4To10, tiers.Top11To15, tiers.Top16To20, tiers.OverallActive, tiers.Inactive} {
		if roleID != "" {
			managed[roleID] = struct{}{}
		}
	}
	if len(managed) == 0 {
		return Report{}, nil
	}

	active := make(map[string]struct{}, len(ranked))
	targets := make(map[string]map[string]struct{}, len(ranked))
	grant := func(userID, roleID string) {
		if roleID == "" {
			return
		}
		if targets[userID] == nil {
			targets[userID] = make(map[string]struct{})
		}
		targets[userID][roleID] = struct{}{}
	}
	for i, userID := range ranked {
		active[userID] = struct{}{}
		grant(userID, TierRole(tiers, i))
		grant(userID, tiers.OverallActive)
	}

	var mutations []Mutation
	counted := 0
	for _, member := range members {
		if member.Bot {
			continue
		}
		counted++
		want := targets[member.UserID]
		if _, ok := active[member.UserID]; !ok {
			want = map[string]struct{}{}
			if tiers.Inactive != "" {
				want[tiers.Inactive] = struct{}{}
			}
		}
		for roleID := range managed {
			_, wanted := want[roleID]
			held := member.Has(roleID)
			switch {
			case wanted && !held:
				mutations = append(mutations, Mutation{UserID: member.UserID, RoleID: roleID, Add: true})
			case !wanted && held:
				mutations = append(mutations, Mutation{UserID: member.UserID, RoleID: roleID})
			}
		}
	}
	report := e.Apply(ctx, guildID, mutations)
	report.Members = counted
	return report, nil
}

// TierRole is the rank-slot role for the zero-based position, or "" past 20.
func TierRole(tiers storage.ActivityRoleTiers, position int) string {
	switch {
	case position < 3:
		return tiers.Top1To3
	case position < 10:
		return tiers.Top4To10
	case position < 15:
		return tiers.Top11To15
	case position < 20:
		return tiers.Top16To20
	}
	return ""
}

// StripRoles removes the given roles from every member holding them.
func (e *Engine) StripRoles(ctx context.Context, guildID string, roleIDs []string) (Report, error) {
	members, err := e.dir.Members(ctx, guildID)
	if err != nil {
		return Report{}, err
	}
	var mutations []Mutation
	for _, member := range members {
		for _, roleID := range roleIDs {
			if roleID != "" && member.Has(roleID) {
				mutations = append(mutations, Mutation{UserID: member.UserID, RoleID: roleID})
			}
		}
	}
	report := e.Apply(ctx, guildID, mutations)
	report.Members = len(members)
	return report, nil
}

// GrantExclusive makes userID the only holder of roleID.
func (e *Engine) GrantExclusive(ctx context.Context, guildID, roleID, userID string) error {
	members, err := e.dir.Members(ctx, guildID)
	if err != nil {
		return err
	}
	var mutations []Mutation
	found := false
	for _, member := range members {
		if member.UserID == userID {
			found = true
			if !member.Has(roleID) {
				mutations = append(mutations, Mutation{UserID: userID, RoleID: roleID, Add: true})
			}
			continue
		}
		if member.Has(roleID) {
			mutations = append(mutations, Mutation{UserID: member.UserID, RoleID: roleID})
		}
	}
	e.Apply(ctx, guildID, mutations)
	if !found {
		return ErrMemberNotFound
	}
	return nil
}
