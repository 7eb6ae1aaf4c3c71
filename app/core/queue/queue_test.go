package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func startedQueue(t *testing.T, buffer int) *Queue {
	t.Helper()
	q := New(buffer)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := q.Start(ctx, 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { _ = q.Stop(200 * time.Millisecond) })
	return q
}

func TestDispatchRetriesUntilDelivered(t *testing.T) {
	q := startedQueue(t, 16)

	var attempts atomic.Int32
	delivered := make(chan struct{}, 1)

	_, err := q.Enqueue(Job{
		ID:         "dispatch-user-message",
		MaxRetries: 2,
		Run: func(context.Context) error {
			n := attempts.Add(1)
			if n < 3 {
				return errors.New("channel temporarily unavailable")
			}
			delivered <- struct{}{}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	select {
	case <-delivered:
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected dispatch to eventually succeed")
	}

	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestAttemptTimeoutCancelsDispatch(t *testing.T) {
	q := startedQueue(t, 16)

	finished := make(chan error, 1)

	_, err := q.Enqueue(Job{
		AttemptTimeout: 20 * time.Millisecond,
		Run: func(runCtx context.Context) error {
			<-runCtx.Done()
			finished <- runCtx.Err()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	select {
	case err := <-finished:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected timeout cancellation")
	}
}

func TestMaxRetriesExhaustedCountsFailure(t *testing.T) {
	q := startedQueue(t, 16)

	var attempts atomic.Int32

	_, err := q.Enqueue(Job{
		MaxRetries: 1,
		Run: func(context.Context) error {
			attempts.Add(1)
			return errors.New("agent unavailable")
		},
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	deadline := time.Now().Add(300 * time.Millisecond)
	for {
		if attempts.Load() == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 attempts, got %d", attempts.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}

	deadline = time.Now().Add(300 * time.Millisecond)
	for {
		stats := q.Stats()
		if stats.Failed == 1 && stats.Retried == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("unexpected stats after exhaustion: %+v", stats)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEnqueueContextReturnsWhenQueueIsFull(t *testing.T) {
	q := New(1)

	if _, err := q.Enqueue(Job{Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.EnqueueContext(ctx, Job{Run: func(context.Context) error { return nil }})
	if err == nil {
		t.Fatal("expected enqueue timeout error")
	}
	if !errors.Is(err, ErrEnqueueCanceled) {
		t.Fatalf("expected ErrEnqueueCanceled, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestStopWithReportDrainsPendingDispatches(t *testing.T) {
	q := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := q.Start(ctx, 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	var completed atomic.Int32
	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(Job{
			Run: func(context.Context) error {
				completed.Add(1)
				return nil
			},
		})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	report, err := q.StopWithReport(time.Second)
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if got := completed.Load(); got != 3 {
		t.Fatalf("expected all dispatches to finish before stop, got %d", got)
	}
	if report.RemainingDepth != 0 {
		t.Fatalf("expected empty queue after drain, got %d remaining", report.RemainingDepth)
	}
	if report.DrainedJobs == 0 && report.PendingAtStart > 0 {
		t.Fatalf("expected drain to account for pending jobs: %+v", report)
	}
}
