// Package task runs pipeline functions on background workers and relays their
// progress, status and outcome as events.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"remix-sync/internal/infra/logx"
)

// ProgressReporter is handed to every task function.
type ProgressReporter interface {
	Progress(percent int)
	Status(text string)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) Progress(int)  {}
func (NopReporter) Status(string) {}

// Func is a unit of work. The returned value or error becomes the task's
// terminal event.
type Func func(ctx context.Context, p ProgressReporter) (any, error)

type EventKind int

const (
	EventProgress EventKind = iota
	EventStatus
	EventResult
	EventError
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventStatus:
		return "status"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is one notification from a running task.
type Event struct {
	TaskID  string
	Task    string
	Kind    EventKind
	Percent int
	Text    string
	Value   any
	Err     error
}

// PanicError is reported when a task function panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v\n%s", e.Value, e.Stack)
}

// Scheduler bounds how many tasks run at once. It does not de-duplicate:
// two Runs of the same operation run concurrently.
type Scheduler struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewScheduler(workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{sem: semaphore.NewWeighted(int64(workers))}
}

// Run starts fn in the background and returns at once. Tasks cannot be
// cancelled once started.
func (s *Scheduler) Run(name string, fn Func) *Handle {
	h := newHandle(name)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := context.Background()
		// Acquire cannot fail on a background context.
		_ = s.sem.Acquire(ctx, 1)
		defer s.sem.Release(1)
		h.run(ctx, fn)
	}()
	return h
}

// Wait blocks until every task started so far has finished.
func (s *Scheduler) Wait() { s.wg.Wait() }

// Handle follows one task. Events can be consumed through Events, or ignored
// in favor of Wait.
type Handle struct {
	ID   string
	Name string

	mu       sync.Mutex
	queue    []Event
	finished bool
	notify   chan struct{}

	once sync.Once
	ch   chan Event

	done  chan struct{}
	value any
	err   error
}

func newHandle(name string) *Handle {
	return &Handle{
		ID:     uuid.NewString(),
		Name:   name,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (h *Handle) run(ctx context.Context, fn Func) {
	logx.Debugf("task %s (%s): started", h.Name, h.ID)
	value, err := h.call(ctx, fn)
	h.value, h.err = value, err
	if err != nil {
		logx.Errorf("task %s: %v", h.Name, err)
		h.push(Event{Kind: EventError, Err: err})
	} else {
		h.push(Event{Kind: EventResult, Value: value})
	}
	close(h.done)
	h.push(Event{Kind: EventFinished})
	logx.Debugf("task %s (%s): finished", h.Name, h.ID)
}

func (h *Handle) call(ctx context.Context, fn Func) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx, reporter{h})
}

func (h *Handle) push(e Event) {
	e.TaskID, e.Task = h.ID, h.Name
	h.mu.Lock()
	h.queue = append(h.queue, e)
	if e.Kind == EventFinished {
		h.finished = true
	}
	h.mu.Unlock()
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Events returns the task's event stream: progress and status events, then
// exactly one result or error, then finished, after which the channel is
// closed. Events emitted before the first call are replayed. The task never
// blocks on a slow reader.
func (h *Handle) Events() <-chan Event {
	h.once.Do(func() {
		h.ch = make(chan Event)
		go h.pump()
	})
	return h.ch
}

func (h *Handle) pump() {
	defer close(h.ch)
	for {
		h.mu.Lock()
		batch, finished := h.queue, h.finished
		h.queue = nil
		h.mu.Unlock()
		for _, e := range batch {
			h.ch <- e
		}
		if finished {
			return
		}
		<-h.notify
	}
}

// Done is closed once the task has produced its result or error.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task completes and returns its outcome.
func (h *Handle) Wait() (any, error) {
	<-h.done
	return h.value, h.err
}

type reporter struct{ h *Handle }

func (r reporter) Progress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	r.h.push(Event{Kind: EventProgress, Percent: percent})
}

func (r reporter) Status(text string) {
	logx.Infof("task %s: %s", r.h.Name, text)
	r.h.push(Event{Kind: EventStatus, Text: text})
}
