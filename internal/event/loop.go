// ABOUTME: Task queue and dispatcher for the I/O goroutine
// ABOUTME: Supports fire-and-forget Post and synchronous Call with completion
package event

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

var (
	// ErrLoopStopped is returned when a task could not be run because the loop has exited.
	ErrLoopStopped = errors.New("event loop stopped")

	// ErrCallPanicked wraps the value recovered from a panicking Call.
	ErrCallPanicked = errors.New("event loop call panicked")
)

type loopState int

const (
	loopIdle loopState = iota
	loopRunning
	loopStopped
)

// task is one unit of work. cancel, when set, releases whatever the task
// carries if the loop exits before running it.
type task struct {
	run    func()
	cancel func()
}

// Loop runs queued tasks one at a time on the goroutine that calls Run
type Loop struct {
	logger *slog.Logger

	mu    sync.Mutex
	tasks *queue.Queue
	state loopState

	wake     chan struct{}
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewLoop creates a loop. It does nothing until Run is called.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		tasks:  queue.New(),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run processes tasks until Stop is called. It returns immediately if the
// loop is already running or was stopped.
func (l *Loop) Run() {
	l.mu.Lock()
	if l.state != loopIdle {
		l.mu.Unlock()
		return
	}
	l.state = loopRunning
	l.mu.Unlock()

	l.logger.Debug("event loop started")
	defer func() {
		l.mu.Lock()
		l.state = loopStopped
		pending := l.drainLocked()
		l.mu.Unlock()

		cancelAll(pending)
		close(l.done)
		l.logger.Debug("event loop stopped", "cancelled", len(pending))
	}()

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.wake:
		}

		for {
			select {
			case <-l.stopCh:
				return
			default:
			}

			t, ok := l.next()
			if !ok {
				break
			}
			l.runTask(t)
		}
	}
}

// Stop makes Run return after the task in progress and waits for it.
// Queued tasks are cancelled. Must not be called from a task.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })

	l.mu.Lock()
	if l.state == loopIdle {
		l.state = loopStopped
		pending := l.drainLocked()
		l.mu.Unlock()
		cancelAll(pending)
		close(l.done)
		return
	}
	l.mu.Unlock()

	<-l.done
}

// Done is closed once the loop has stopped for good
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues fn without waiting. It reports false once the loop is stopped.
func (l *Loop) Post(fn func()) bool {
	return l.post(task{run: fn})
}

func (l *Loop) post(t task) bool {
	l.mu.Lock()
	if l.state == loopStopped {
		l.mu.Unlock()
		return false
	}
	l.tasks.Add(t)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

const (
	callPending int32 = iota
	callRunning
	callCancelled
)

type callTask struct {
	fn        func()
	state     atomic.Int32
	done      chan struct{}
	recovered any
}

func (c *callTask) run() {
	if !c.state.CompareAndSwap(callPending, callRunning) {
		return
	}
	defer close(c.done)
	defer func() {
		c.recovered = recover()
	}()
	c.fn()
}

// Call runs fn on the loop and blocks until it has finished. It returns
// ErrLoopStopped only when fn never ran. Must not be called from a task.
func (l *Loop) Call(fn func()) error {
	c := &callTask{fn: fn, done: make(chan struct{})}
	if !l.post(task{run: c.run}) {
		return ErrLoopStopped
	}

	select {
	case <-c.done:
	case <-l.done:
		if c.state.CompareAndSwap(callPending, callCancelled) {
			return ErrLoopStopped
		}
		<-c.done
	}

	if c.recovered != nil {
		return fmt.Errorf("%w: %v", ErrCallPanicked, c.recovered)
	}
	return nil
}

// Len returns the number of queued tasks
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length()
}

func (l *Loop) next() (task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tasks.Length() == 0 {
		return task{}, false
	}
	return l.tasks.Remove().(task), true
}

func (l *Loop) runTask(t task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", "panic", r)
		}
	}()
	t.run()
}

func (l *Loop) drainLocked() []task {
	pending := make([]task, 0, l.tasks.Length())
	for l.tasks.Length() > 0 {
		pending = append(pending, l.tasks.Remove().(task))
	}
	return pending
}

func cancelAll(tasks []task) {
	for _, t := range tasks {
		if t.cancel != nil {
			t.cancel()
		}
	}
}
