package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

// Weekly fires once a week at Hour:00 on Weekday in Location.
type Weekly struct {
	Weekday  time.Weekday
	Hour     int
	Location *time.Location
}

// Next is the first occurrence strictly after now.
func (w Weekly) Next(now time.Time) time.Time {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	days := (int(w.Weekday) - int(local.Weekday()) + 7) % 7
	next := time.Date(local.Year(), local.Month(), local.Day()+days, w.Hour, 0, 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// Runner runs a job once after a startup delay and then on every
// occurrence of its weekly schedule until the context ends.
type Runner struct {
	name     string
	schedule Weekly
	delay    time.Duration
	clock    Clock
	job      func(ctx context.Context)
	logger   *zap.Logger
}

func NewRunner(name string, schedule Weekly, startupDelay time.Duration, job func(ctx context.Context), logger *zap.Logger) *Runner {
	return &Runner{
		name:     name,
		schedule: schedule,
		delay:    startupDelay,
		clock:    realClock{},
		job:      job,
		logger:   logger,
	}
}

func (r *Runner) WithClock(clock Clock) {
	r.clock = clock
}

func (r *Runner) Run(ctx context.Context) error {
	wait := r.delay
	for {
		fired := make(chan struct{})
		timer := r.clock.AfterFunc(wait, func() { close(fired) })
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-fired:
		}

		r.logger.Info("scheduled job started", zap.String("job", r.name))
		r.job(ctx)

		now := r.clock.Now()
		next := r.schedule.Next(now)
		wait = next.Sub(now)
		r.logger.Info("scheduled job finished", zap.String("job", r.name), zap.Time("next_run", next))
	}
}
