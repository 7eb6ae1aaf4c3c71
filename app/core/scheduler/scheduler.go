package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"atlas/app/pkg/logger"
)

var (
	ErrJobExists      = errors.New("scheduler: job already exists")
	ErrJobNotFound    = errors.New("scheduler: job not found")
	ErrSchedulerStart = errors.New("scheduler: already started")
)

// JobSpec describes a recurring job. Run receives a context that is canceled
// on shutdown, unregistration, or when Timeout elapses for a single run.
type JobSpec struct {
	Name       string
	Interval   time.Duration
	Timeout    time.Duration
	RunOnStart bool
	Run        func(context.Context) error
}

type JobStatus struct {
	Name         string
	Runs         int64
	Failures     int64
	LastStartAt  time.Time
	LastEndAt    time.Time
	LastError    string
	LastDuration time.Duration
}

// HealthStatus is the liveness summary exposed over /api/status.
type HealthStatus struct {
	Started        bool      `json:"started"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	RegisteredJobs int       `json:"registered_jobs"`
	RunningJobs    int       `json:"running_jobs"`
}

// runner is the per-job unit of scheduling state. Its stop func is non-nil
// exactly while a loop goroutine is alive for the job.
type runner struct {
	spec   JobSpec
	status JobStatus
	stop   context.CancelFunc
}

// Scheduler runs named interval jobs, each on its own goroutine. Jobs may be
// registered before or after Start; late registrations begin ticking
// immediately.
type Scheduler struct {
	mu        sync.Mutex
	runners   map[string]*runner
	started   bool
	startedAt time.Time
	root      context.Context
	cancel    context.CancelFunc
	loops     sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{runners: make(map[string]*runner)}
}

func (s *Scheduler) Register(job JobSpec) error {
	if err := validateJob(job); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.runners[job.Name]; dup {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Name)
	}
	r := &runner{spec: job, status: JobStatus{Name: job.Name}}
	s.runners[job.Name] = r
	if s.started {
		s.launchLocked(r)
	}
	return nil
}

func (s *Scheduler) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runners[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if r.stop != nil {
		r.stop()
	}
	delete(s.runners, name)
	return nil
}

func (s *Scheduler) Start(parent context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrSchedulerStart
	}
	s.root, s.cancel = context.WithCancel(parent)
	s.started = true
	s.startedAt = time.Now()
	for _, r := range s.runners {
		s.launchLocked(r)
	}
	return nil
}

// Stop cancels every job loop and waits up to timeout for them to exit. A
// non-positive timeout waits indefinitely.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.root = nil
	s.cancel = nil
	s.started = false
	for _, r := range s.runners {
		r.stop = nil
	}
	s.mu.Unlock()

	cancel()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		s.loops.Wait()
	}()
	if timeout <= 0 {
		<-drained
		return nil
	}
	select {
	case <-drained:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler: stop timeout after %s", timeout)
	}
}

// Snapshot returns the status of every registered job, sorted by name.
func (s *Scheduler) Snapshot() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.runners))
	for _, r := range s.runners {
		out = append(out, r.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) Health() HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	running := 0
	for _, r := range s.runners {
		if r.stop != nil {
			running++
		}
	}
	h := HealthStatus{
		Started:        s.started,
		RegisteredJobs: len(s.runners),
		RunningJobs:    running,
	}
	if s.started {
		h.StartedAt = s.startedAt
	}
	return h
}

func (s *Scheduler) launchLocked(r *runner) {
	if !s.started || s.root == nil || r.stop != nil {
		return
	}
	ctx, stop := context.WithCancel(s.root)
	r.stop = stop
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		s.loop(ctx, r.spec)
	}()
}

func (s *Scheduler) loop(ctx context.Context, job JobSpec) {
	if job.RunOnStart {
		s.runJob(ctx, job)
	}
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJob(ctx, job)
		}
	}
}

func (s *Scheduler) runJob(parent context.Context, job JobSpec) {
	begin := time.Now()
	s.record(job.Name, func(st *JobStatus) {
		st.LastStartAt = begin
	})

	ctx := parent
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, job.Timeout)
		defer cancel()
	}
	err := job.Run(ctx)
	end := time.Now()

	s.record(job.Name, func(st *JobStatus) {
		st.Runs++
		st.LastEndAt = end
		st.LastDuration = end.Sub(begin)
		if err != nil {
			st.Failures++
			st.LastError = err.Error()
		} else {
			st.LastError = ""
		}
	})
	if err != nil {
		logger.Error("Scheduler job=%s failed: %v", job.Name, err)
	}
}

// record mutates a job's status under the lock. The job may have been
// unregistered while a run was in flight; that final update is dropped.
func (s *Scheduler) record(name string, apply func(*JobStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runners[name]; ok {
		apply(&r.status)
	}
}

func validateJob(job JobSpec) error {
	if job.Name == "" {
		return errors.New("scheduler: job name is required")
	}
	if job.Interval <= 0 {
		return errors.New("scheduler: job interval must be greater than zero")
	}
	if job.Run == nil {
		return errors.New("scheduler: job run callback is required")
	}
	return nil
}
