package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeEvictor struct {
	calls atomic.Int32
}

func (f *fakeEvictor) EvictStale(time.Time) int {
	f.calls.Add(1)
	return 0
}

func TestThrottleEvictWorkerTicksAndStops(t *testing.T) {
	t.Parallel()
	ev := &fakeEvictor{}
	w := &ThrottleEvictWorker{Throttle: ev, Interval: 10 * time.Millisecond, MaxAge: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	if ev.calls.Load() == 0 {
		t.Error("expected at least one eviction sweep")
	}
}
