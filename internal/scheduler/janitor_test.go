package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeJobs struct {
	mu          sync.Mutex
	requeueAt   []time.Time
	purgeBefore []time.Time
	requeued    int64
	purged      int64
	err         error
}

func (f *fakeJobs) RequeueExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.requeueAt = append(f.requeueAt, now)
	return f.requeued, nil
}

func (f *fakeJobs) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeBefore = append(f.purgeBefore, before)
	return f.purged, nil
}

func (f *fakeJobs) ticks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requeueAt)
}

type fakeLeader struct {
	mu       sync.Mutex
	leader   bool
	released bool
}

func (l *fakeLeader) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leader, nil
}

func (l *fakeLeader) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJanitor_Tick(t *testing.T) {
	jobs := &fakeJobs{requeued: 2, purged: 5}
	j := New(Config{Jobs: jobs, JobRetention: 24 * time.Hour, Logger: discard()})

	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	res, err := j.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Requeued != 2 || res.Purged != 5 {
		t.Errorf("unexpected result: %+v", res)
	}
	if !jobs.requeueAt[0].Equal(now) {
		t.Errorf("expected requeue at %v, got %v", now, jobs.requeueAt[0])
	}
	if want := now.Add(-24 * time.Hour); !jobs.purgeBefore[0].Equal(want) {
		t.Errorf("expected purge before %v, got %v", want, jobs.purgeBefore[0])
	}
}

func TestJanitor_TickError(t *testing.T) {
	boom := errors.New("db down")
	jobs := &fakeJobs{err: boom}
	j := New(Config{Jobs: jobs, Logger: discard()})

	if _, err := j.Tick(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
	if len(jobs.purgeBefore) != 0 {
		t.Error("purge should not run after requeue failure")
	}
}

func TestJanitor_Defaults(t *testing.T) {
	j := New(Config{})
	if j.interval != defaultInterval || j.retention != defaultRetention {
		t.Errorf("unexpected defaults: interval=%v retention=%v", j.interval, j.retention)
	}
}

func TestJanitor_LeaderOnly(t *testing.T) {
	jobs := &fakeJobs{}
	leader := &fakeLeader{leader: false}
	j := New(Config{Jobs: jobs, Leader: leader, Interval: 5 * time.Millisecond, Logger: discard()})

	j.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	if jobs.ticks() != 0 {
		t.Errorf("follower must not tick, got %d ticks", jobs.ticks())
	}

	leader.mu.Lock()
	leader.leader = true
	leader.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for jobs.ticks() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	j.Stop()

	if jobs.ticks() == 0 {
		t.Error("leader should tick")
	}
	leader.mu.Lock()
	defer leader.mu.Unlock()
	if !leader.released {
		t.Error("leadership should be released on stop")
	}
}
