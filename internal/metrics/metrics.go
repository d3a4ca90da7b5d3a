package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "realmkeeper"

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	XPAwarded        prometheus.Counter
	LevelUps         prometheus.Counter
	ActivityEvents   *prometheus.CounterVec
	RoleMutations    *prometheus.CounterVec
	Eliminations     prometheus.Counter
	RealmWarsEnded   *prometheus.CounterVec
	GiveawaysEnded   *prometheus.CounterVec
	RankJobDuration  prometheus.Histogram
	CommandsHandled  *prometheus.CounterVec
	OpenVoiceSession prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		XPAwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_awarded_total",
			Help:      "Total XP granted to members.",
		}),
		LevelUps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Total level-ups across all guilds.",
		}),
		ActivityEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_events_total",
			Help:      "Activity updates by kind.",
		}, []string{"kind"}),
		RoleMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_mutations_total",
			Help:      "Role add/remove calls by result.",
		}, []string{"op", "result"}),
		Eliminations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realmwar_eliminations_total",
			Help:      "RealmWar elimination rounds played.",
		}),
		RealmWarsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realmwar_ended_total",
			Help:      "RealmWar matches reaching a terminal status.",
		}, []string{"status"}),
		GiveawaysEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "giveaways_ended_total",
			Help:      "Giveaways closed, by outcome.",
		}, []string{"outcome"}),
		RankJobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rank_job_duration_seconds",
			Help:      "Duration of the weekly activity-rank role pass per guild.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		CommandsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_handled_total",
			Help:      "Slash commands and buttons handled, by name and result.",
		}, []string{"command", "result"}),
		OpenVoiceSession: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sessions",
			Help:      "Voice and stream sessions currently tracked in memory.",
		}),
	}
}

func (m *Metrics) AddXP(amount int) {
	if m == nil || amount <= 0 {
		return
	}
	m.XPAwarded.Add(float64(amount))
}

func (m *Metrics) AddLevelUps(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.LevelUps.Add(float64(count))
}

func (m *Metrics) Activity(kind string) {
	if m == nil {
		return
	}
	m.ActivityEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) RoleMutation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RoleMutations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Elimination() {
	if m == nil {
		return
	}
	m.Eliminations.Inc()
}

func (m *Metrics) RealmWarEnded(status string) {
	if m == nil {
		return
	}
	m.RealmWarsEnded.WithLabelValues(status).Inc()
}

func (m *Metrics) GiveawayEnded(outcome string) {
	if m == nil {
		return
	}
	m.GiveawaysEnded.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRankJob(seconds float64) {
	if m == nil {
		return
	}
	m.RankJobDuration.Observe(seconds)
}

func (m *Metrics) Command(name string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CommandsHandled.WithLabelValues(name, result).Inc()
}

func (m *Metrics) SetOpenSessions(count int) {
	if m == nil {
		return
	}
	m.OpenVoiceSession.Set(float64(count))
}
