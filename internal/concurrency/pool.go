package concurrency

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
)

// PanicError is the contained form of a task's unrecoverable failure
// (spec.md §4.2/§7 "TaskPanic"). It is never propagated out of a worker
// goroutine; the pool recovers it, logs it, and moves on.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", p.Value)
}

// Task is a zero-argument unit of deferred work. It returns an error to
// report failure; a panic inside Fn is converted to a *PanicError by the
// pool rather than crashing the worker.
type Task struct {
	Fn func() error
}

// Logger is the minimal logging surface TaskPool needs; *zap.SugaredLogger
// satisfies it.
type Logger interface {
	Errorw(msg string, keysAndValues ...any)
}

// PoolMetrics is the minimal observability surface a TaskPool reports
// into; internal/obs.PoolMetrics satisfies it with Prometheus collectors.
type PoolMetrics interface {
	SetQueueLen(n int)
	SetActive(n int)
	IncSubmitted()
	IncCompleted()
	IncPanicked()
}

type noopMetrics struct{}

func (noopMetrics) SetQueueLen(int) {}
func (noopMetrics) SetActive(int)   {}
func (noopMetrics) IncSubmitted()   {}
func (noopMetrics) IncCompleted()   {}
func (noopMetrics) IncPanicked()    {}

// TaskPool is a fixed-size worker pool consuming a shared task queue,
// with a completion barrier and panic containment (spec.md §4.2).
type TaskPool struct {
	queue   *Channel[Task]
	workers int

	mu       sync.Mutex
	idleCond sync.Cond
	active   int64

	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	log     Logger
	metrics PoolMetrics
}

// Option configures a TaskPool at construction time.
type Option func(*TaskPool)

// WithLogger injects a logger used to report contained task panics.
func WithLogger(l Logger) Option { return func(p *TaskPool) { p.log = l } }

// WithMetrics injects a Prometheus-backed metrics sink.
func WithMetrics(m PoolMetrics) Option { return func(p *TaskPool) { p.metrics = m } }

// NewTaskPool creates a pool with the given worker count and pending-queue
// capacity. workers <= 0 falls back to runtime.NumCPU(), then 4 if that is
// also non-positive, per spec.md §5.
func NewTaskPool(workers, queueCapacity int, opts ...Option) *TaskPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers <= 0 {
			workers = 4
		}
	}
	if queueCapacity < 0 {
		queueCapacity = 0
	}
	p := &TaskPool{
		queue:   NewChannel[Task](queueCapacity),
		workers: workers,
		log:     discardLogger{},
		metrics: noopMetrics{},
	}
	p.idleCond.L = &p.mu
	for _, o := range opts {
		o(p)
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.runWorker()
	}
	return p
}

type discardLogger struct{}

func (discardLogger) Errorw(string, ...any) {}

// Submit enqueues task, incrementing the active counter before releasing
// the caller. Submitting against a stopped pool returns a *PanicError per
// spec.md §4.2 ("submit against a non-existent pool raises TaskPanic to
// the caller").
func (p *TaskPool) Submit(fn func() error) error {
	if p.closed.Load() {
		return &PanicError{Value: "submit on stopped TaskPool"}
	}

	p.mu.Lock()
	p.active++
	p.mu.Unlock()
	p.metrics.IncSubmitted()
	p.metrics.SetQueueLen(p.queue.Len())

	if err := p.queue.Send(Task{Fn: fn}); err != nil {
		// The pool was closed between our check above and the send; undo
		// the active-count reservation and surface a contained failure.
		p.mu.Lock()
		p.active--
		p.idleCond.Broadcast()
		p.mu.Unlock()
		return &PanicError{Value: "submit during TaskPool shutdown"}
	}
	return nil
}

func (p *TaskPool) runWorker() {
	defer p.wg.Done()
	for {
		t, ok := p.queue.Receive()
		if !ok {
			return
		}
		p.runOne(t)
	}
}

func (p *TaskPool) runOne(t Task) {
	defer func() {
		if r := recover(); r != nil {
			pe := &PanicError{Value: r, Stack: stackTrace()}
			p.log.Errorw("task panic contained", "error", pe.Error())
			p.metrics.IncPanicked()
		}
		p.mu.Lock()
		p.active--
		p.metrics.SetActive(int(math.Max(0, float64(p.active))))
		if p.active == 0 {
			p.idleCond.Broadcast()
		}
		p.mu.Unlock()
		p.metrics.IncCompleted()
	}()

	if t.Fn == nil {
		return
	}
	if err := t.Fn(); err != nil {
		p.log.Errorw("task failed", "error", err.Error())
	}
}

func stackTrace() []byte {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return buf[:n]
}

// WaitIdle blocks until the active-task counter (queued + running) is 0.
func (p *TaskPool) WaitIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.active > 0 {
		p.idleCond.Wait()
	}
}

// Stop marks the pool closed, drains the queue, and joins every worker.
// Stop is idempotent.
func (p *TaskPool) Stop() {
	p.once.Do(func() {
		p.closed.Store(true)
		p.queue.Close()
		p.wg.Wait()
	})
}

// Active reports the current in-flight (queued + running) task count.
func (p *TaskPool) Active() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Workers reports the configured worker count.
func (p *TaskPool) Workers() int { return p.workers }
