package task

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/mboyle85/grabdeck/internal/progress"
)

// ErrTaskActive is returned by Start when a task is already running. One
// long-running operation per server instance; the UI opens a single progress
// stream and there is a single process slot to cancel.
var ErrTaskActive = errors.New("another task is already running")

// Fn is a worker function. It runs to completion on its own goroutine,
// narrates itself through the emitter and registers any external process it
// spawns on the handle.
type Fn func(e *progress.Emitter, h *Handle)

// Runner launches workers and enforces the single-active-task invariant.
type Runner struct {
	bus    *progress.Bus
	handle *Handle

	mu         sync.Mutex
	active     bool
	activeID   string
	activeKind string
}

func NewRunner(bus *progress.Bus, handle *Handle) *Runner {
	return &Runner{bus: bus, handle: handle}
}

// Status reports whether a task is running and, if so, its ID and kind. The
// browser's task_active session flag is only a hint; this is the truth.
func (r *Runner) Status() (active bool, taskID, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.activeID, r.activeKind
}

// Start launches fn on a new goroutine and returns the generated task ID
// immediately. The caller streams events from the bus under that ID. The
// goroutine guarantees exactly one terminal event: a panic is converted to a
// failure, and a worker that returns without finishing its stream gets a
// failure appended on its behalf.
func (r *Runner) Start(kind string, fn Fn) (string, error) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return "", ErrTaskActive
	}
	id := uuid.New().String()
	r.active = true
	r.activeID = id
	r.activeKind = kind
	r.mu.Unlock()

	// The bus partitions by ID and IDs are fresh UUIDs, but drain anyway so
	// a reused ID can never inherit another run's events.
	r.bus.Reset(id)
	r.handle.Reset()

	emitter := progress.NewEmitter(r.bus, id)
	log.Printf("[%s] %s task started", shortID(id), kind)

	go func() {
		defer r.finish(id, kind, emitter)
		fn(emitter, r.handle)
	}()

	return id, nil
}

func (r *Runner) finish(id, kind string, e *progress.Emitter) {
	if rec := recover(); rec != nil {
		log.Printf("[%s] %s worker panic: %v", shortID(id), kind, rec)
		e.Fail(fmt.Errorf("internal error: %v", rec))
	} else if !e.Finished() {
		// A worker exiting without a terminal event would hang the stream
		// forever. Close it out as a failure.
		log.Printf("[%s] %s worker exited without a terminal event", shortID(id), kind)
		e.Fail(errors.New("task ended unexpectedly"))
	}

	r.handle.Clear()

	r.mu.Lock()
	if r.activeID == id {
		r.active = false
		r.activeID = ""
		r.activeKind = ""
	}
	r.mu.Unlock()
	log.Printf("[%s] %s task finished", shortID(id), kind)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
