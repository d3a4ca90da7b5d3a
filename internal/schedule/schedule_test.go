package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeTimer struct {
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type scheduled struct {
	delay time.Duration
	fire  func()
}

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	timer chan scheduled
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.timer <- scheduled{delay: d, fire: fn}
	return &fakeTimer{}
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestWeeklyNext(t *testing.T) {
	w := Weekly{Weekday: time.Sunday, Hour: 0, Location: time.UTC}
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC), time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 24, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 3, 16, 23, 59, 0, 0, time.UTC), time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := w.Next(tt.now); !got.Equal(tt.want) {
			t.Fatalf("Next(%s) = %s, want %s", tt.now, got, tt.want)
		}
	}
}

func TestRunnerStartupThenWeekly(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC), timer: make(chan scheduled)}
	ran := make(chan struct{}, 4)
	runner := NewRunner("activity-roles", Weekly{Weekday: time.Sunday, Location: time.UTC}, 5*time.Second, func(context.Context) {
		ran <- struct{}{}
	}, zap.NewNop())
	runner.WithClock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	first := <-clock.timer
	if first.delay != 5*time.Second {
		t.Fatalf("expected startup delay, got %s", first.delay)
	}
	clock.Advance(first.delay)
	first.fire()
	<-ran

	second := <-clock.timer
	want := time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC).Sub(clock.Now())
	if second.delay != want {
		t.Fatalf("expected wait until sunday %s, got %s", want, second.delay)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(ran) != 0 {
		t.Fatalf("job ran after cancel")
	}
}
