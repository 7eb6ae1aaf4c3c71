package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"atlas/app/pkg/logger"
)

var (
	ErrQueueStarted    = errors.New("queue: already started")
	ErrQueueStopped    = errors.New("queue: stopped")
	ErrEnqueueCanceled = errors.New("queue: enqueue canceled")
)

// Job is one unit of deferred dispatch work. A failing job is retried in
// place by its worker; MaxRetries bounds the extra attempts, not the total.
type Job struct {
	ID             string
	MaxRetries     int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
	Run            func(context.Context) error
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Started   bool   `json:"started"`
	Depth     int    `json:"depth"`
	Capacity  int    `json:"capacity"`
	Enqueued  uint64 `json:"enqueued"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Retried   uint64 `json:"retried"`
}

// ShutdownReport describes what a drain-on-stop accomplished.
type ShutdownReport struct {
	PendingAtStart  int           `json:"pending_at_start"`
	InFlightAtStart int64         `json:"in_flight_at_start"`
	DrainedJobs     uint64        `json:"drained_jobs"`
	TimedOut        bool          `json:"timed_out"`
	RemainingDepth  int           `json:"remaining_depth"`
	RemainingFlight int64         `json:"remaining_in_flight"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Queue executes jobs on a fixed worker pool fed by a bounded channel.
// Retrying happens inside the worker, so queue depth reflects only jobs that
// have not yet had their first attempt.
type Queue struct {
	jobs chan Job

	mu       sync.Mutex
	started  bool
	draining bool
	cancel   context.CancelFunc
	workers  sync.WaitGroup

	seq      atomic.Uint64
	inFlight atomic.Int64
	counters struct {
		enqueued  atomic.Uint64
		completed atomic.Uint64
		failed    atomic.Uint64
		retried   atomic.Uint64
	}
}

func New(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &Queue{jobs: make(chan Job, buffer)}
}

func (q *Queue) Enqueue(job Job) (string, error) {
	return q.EnqueueContext(context.Background(), job)
}

// EnqueueContext submits a job, blocking while the buffer is full until ctx
// expires. The returned ID identifies the job in failure logs.
func (q *Queue) EnqueueContext(ctx context.Context, job Job) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateJob(job); err != nil {
		return "", err
	}
	if job.ID == "" {
		job.ID = fmt.Sprintf("q-%d", q.seq.Add(1))
	}

	q.mu.Lock()
	draining := q.draining
	q.mu.Unlock()
	if draining {
		return "", ErrQueueStopped
	}

	select {
	case q.jobs <- job:
		q.counters.enqueued.Add(1)
		return job.ID, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrEnqueueCanceled, ctx.Err())
	}
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()

	return Stats{
		Started:   started,
		Depth:     len(q.jobs),
		Capacity:  cap(q.jobs),
		Enqueued:  q.counters.enqueued.Load(),
		Completed: q.counters.completed.Load(),
		Failed:    q.counters.failed.Load(),
		Retried:   q.counters.retried.Load(),
	}
}

func (q *Queue) Start(parent context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return ErrQueueStarted
	}
	ctx, cancel := context.WithCancel(parent)
	q.cancel = cancel
	q.started = true
	q.draining = false

	for i := 0; i < workers; i++ {
		q.workers.Add(1)
		go func() {
			defer q.workers.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-q.jobs:
					q.inFlight.Add(1)
					q.execute(ctx, job)
					q.inFlight.Add(-1)
				}
			}
		}()
	}
	return nil
}

func (q *Queue) Stop(timeout time.Duration) error {
	_, err := q.StopWithReport(timeout)
	return err
}

// StopWithReport refuses new jobs, lets the workers drain what is already
// buffered, then cancels them and reports what was drained or abandoned.
func (q *Queue) StopWithReport(timeout time.Duration) (ShutdownReport, error) {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return ShutdownReport{}, nil
	}
	cancel := q.cancel
	q.cancel = nil
	q.started = false
	q.draining = true
	q.mu.Unlock()

	report := ShutdownReport{
		PendingAtStart:  len(q.jobs),
		InFlightAtStart: q.inFlight.Load(),
	}
	settledBefore := q.counters.completed.Load() + q.counters.failed.Load()
	begin := time.Now()

	timedOut := !q.awaitIdle(timeout)
	cancel()
	if !timedOut {
		remaining := timeout - time.Since(begin)
		if timeout > 0 && remaining <= 0 {
			remaining = time.Millisecond
		}
		timedOut = !q.awaitWorkers(remaining)
	}

	report.Elapsed = time.Since(begin)
	report.TimedOut = timedOut
	report.RemainingDepth = len(q.jobs)
	report.RemainingFlight = q.inFlight.Load()
	if settled := q.counters.completed.Load() + q.counters.failed.Load(); settled > settledBefore {
		report.DrainedJobs = settled - settledBefore
	}

	q.mu.Lock()
	q.draining = false
	q.mu.Unlock()

	if timedOut {
		return report, fmt.Errorf("queue: stop timeout after %s", timeout)
	}
	return report, nil
}

// awaitIdle polls until the buffer is empty and no job is executing. A zero
// or negative timeout waits indefinitely.
func (q *Queue) awaitIdle(timeout time.Duration) bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if len(q.jobs) == 0 && q.inFlight.Load() == 0 {
			return true
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (q *Queue) awaitWorkers(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.workers.Wait()
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// execute runs a job to completion, retrying in place until it succeeds,
// retries run out, or the queue shuts down.
func (q *Queue) execute(ctx context.Context, job Job) {
	for attempt := 1; ; attempt++ {
		err := q.attempt(ctx, job)
		if err == nil {
			q.counters.completed.Add(1)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if attempt > job.MaxRetries {
			q.counters.failed.Add(1)
			logger.Error("Queue job %s failed after %d attempt(s): %v", job.ID, attempt, err)
			return
		}
		q.counters.retried.Add(1)
		if job.RetryDelay > 0 && !sleepOrDone(ctx, job.RetryDelay) {
			return
		}
	}
}

func (q *Queue) attempt(parent context.Context, job Job) error {
	ctx := parent
	if job.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, job.AttemptTimeout)
		defer cancel()
	}
	return job.Run(ctx)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func validateJob(job Job) error {
	if job.Run == nil {
		return errors.New("queue: job run callback is required")
	}
	if job.MaxRetries < 0 {
		return errors.New("queue: max retries cannot be negative")
	}
	if job.AttemptTimeout < 0 {
		return errors.New("queue: attempt timeout cannot be negative")
	}
	if job.RetryDelay < 0 {
		return errors.New("queue: retry delay cannot be negative")
	}
	return nil
}
