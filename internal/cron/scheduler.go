package cron

import (
	"sync"
	"time"

	"github.com/anvil-systems/weblet/internal/concurrency"
)

// AddResult reports the outcome of CronScheduler.Add (spec.md §4.5).
type AddResult int

const (
	Added AddResult = iota
	DuplicateID
	InvalidExpression
)

// RemoveResult reports the outcome of CronScheduler.Remove.
type RemoveResult int

const (
	Removed RemoveResult = iota
	NotFound
)

// SetEnabledResult reports the outcome of CronScheduler.SetEnabled.
type SetEnabledResult int

const (
	Updated SetEnabledResult = iota
	EnabledNotFound
)

// Logger is the minimal logging surface CronScheduler needs.
type Logger interface {
	Errorw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
}

type discardLogger struct{}

func (discardLogger) Errorw(string, ...any) {}
func (discardLogger) Infow(string, ...any)  {}

// Metrics is the minimal observability surface CronScheduler reports
// into; internal/obs.CronMetrics satisfies it with Prometheus counters.
type Metrics interface {
	IncDispatched()
	IncFailed()
}

type noopMetrics struct{}

func (noopMetrics) IncDispatched() {}
func (noopMetrics) IncFailed()     {}

// job is the scheduler's internal bookkeeping for one registered cron job.
type job struct {
	id          string
	description string
	expr        *Expression
	callback    func() error
	enabled     bool
	nextFire    time.Time
	lastFire    time.Time
}

// JobSnapshot is a read-only, race-free view of a registered job returned
// by CronScheduler.List (spec.md §3/§4.5).
type JobSnapshot struct {
	ID          string
	Description string
	Expression  string
	Enabled     bool
	NextFire    time.Time
	LastFire    time.Time
}

// CronScheduler holds a set of named cron jobs and, once started, ticks
// once a second, dispatching every due and enabled job onto its embedded
// TaskPool (spec.md §4.5).
type CronScheduler struct {
	mu   sync.Mutex
	jobs map[string]*job

	pool    *concurrency.TaskPool
	log     Logger
	metrics Metrics
	now     func() time.Time

	tickInterval time.Duration
	running      bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// SchedulerOption configures a CronScheduler at construction time.
type SchedulerOption func(*CronScheduler)

// WithSchedulerLogger injects a logger used for dispatch failures.
func WithSchedulerLogger(l Logger) SchedulerOption {
	return func(s *CronScheduler) { s.log = l }
}

// WithSchedulerMetrics injects a Prometheus-backed metrics sink.
func WithSchedulerMetrics(m Metrics) SchedulerOption {
	return func(s *CronScheduler) { s.metrics = m }
}

// WithTickInterval overrides the default 1-second tick cadence; intended
// for tests that want a faster loop.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *CronScheduler) { s.tickInterval = d }
}

// WithClock overrides the scheduler's notion of "now"; intended for
// deterministic tests.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *CronScheduler) { s.now = now }
}

// NewCronScheduler creates a scheduler with its own embedded TaskPool of
// the given size.
func NewCronScheduler(workers, queueCapacity int, opts ...SchedulerOption) *CronScheduler {
	s := &CronScheduler{
		jobs:         make(map[string]*job),
		pool:         concurrency.NewTaskPool(workers, queueCapacity),
		log:          discardLogger{},
		metrics:      noopMetrics{},
		now:          time.Now,
		tickInterval: time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add registers a new job under id, parsing expr per spec.md §4.3.
// DuplicateID is returned if id is already registered; InvalidExpression
// if expr fails to parse. The job starts enabled with next_fire computed
// from the current time.
func (s *CronScheduler) Add(id, description, expr string, callback func() error) AddResult {
	parsed, err := Parse(expr)
	if err != nil {
		return InvalidExpression
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; exists {
		return DuplicateID
	}

	now := s.now()
	next, err := parsed.NextFire(now)
	if err != nil {
		return InvalidExpression
	}
	s.jobs[id] = &job{
		id:          id,
		description: description,
		expr:        parsed,
		callback:    callback,
		enabled:     true,
		nextFire:    next,
	}
	return Added
}

// Remove deregisters a job. It has no effect on a dispatch already
// submitted to the pool.
func (s *CronScheduler) Remove(id string) RemoveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return NotFound
	}
	delete(s.jobs, id)
	return Removed
}

// SetEnabled flips a job's enabled flag without losing its next_fire.
func (s *CronScheduler) SetEnabled(id string, enabled bool) SetEnabledResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return EnabledNotFound
	}
	j.enabled = enabled
	return Updated
}

// List returns a race-free snapshot of every registered job.
func (s *CronScheduler) List() []JobSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobSnapshot, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobSnapshot{
			ID:          j.id,
			Description: j.description,
			Expression:  j.expr.String(),
			Enabled:     j.enabled,
			NextFire:    j.nextFire,
			LastFire:    j.lastFire,
		})
	}
	return out
}

// Start begins the 1-second tick loop in a background goroutine. Start is
// a no-op if the scheduler is already running.
func (s *CronScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
}

// Stop halts the tick loop and shuts down the embedded TaskPool. Stop is
// idempotent.
func (s *CronScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.pool.Stop()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.pool.Stop()
}

func (s *CronScheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick collects every enabled job whose next_fire is due, then submits
// each callback onto the pool outside the lock (spec.md §4.5: "release
// the lock and submit each callback onto the pool").
func (s *CronScheduler) tick() {
	now := s.now()

	s.mu.Lock()
	due := make([]*job, 0)
	for _, j := range s.jobs {
		if j.enabled && !j.nextFire.After(now) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		j := j
		s.metrics.IncDispatched()
		err := s.pool.Submit(func() error {
			err := j.callback()
			if err != nil {
				s.metrics.IncFailed()
			}
			s.advance(j, now)
			return err
		})
		if err != nil {
			s.log.Errorw("cron dispatch failed", "job", j.id, "error", err.Error())
			s.metrics.IncFailed()
			s.advance(j, now)
		}
	}
}

// advance recomputes a job's next_fire strictly after fireTime, logging
// and leaving the job due again on the next tick if the expression has
// become unsatisfiable (which parseable expressions never are, but a
// future clock skew could in principle exceed the search bound).
func (s *CronScheduler) advance(j *job, fireTime time.Time) {
	next, err := j.expr.NextFire(fireTime.Add(time.Second))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, stillRegistered := s.jobs[j.id]; !stillRegistered {
		return
	}
	j.lastFire = fireTime
	if err != nil {
		s.log.Errorw("cron next_fire search failed", "job", j.id, "error", err.Error())
		return
	}
	j.nextFire = next
}
