package progress

import (
	"fmt"
	"sync"
)

// Emitter publishes events for a single task. The three terminal methods
// (Done, Fail, Cancel) share a sync.Once, so no matter how many exit paths a
// worker has, its stream ends with exactly one terminal event; later calls
// are no-ops. Non-terminal events published after the terminal are dropped.
type Emitter struct {
	bus    *Bus
	taskID string

	mu       sync.Mutex
	terminal bool
	once     sync.Once
}

func NewEmitter(bus *Bus, taskID string) *Emitter {
	return &Emitter{bus: bus, taskID: taskID}
}

func (e *Emitter) TaskID() string {
	return e.taskID
}

// Stage publishes a phase label with no percent change.
func (e *Emitter) Stage(stage string) {
	e.publish(Event{Stage: stage})
}

// StageAt publishes a phase label with a completion estimate.
func (e *Emitter) StageAt(stage string, percent float64) {
	e.publish(Event{Stage: stage, Percent: Pct(percent)})
}

// Log forwards one raw output line.
func (e *Emitter) Log(line string) {
	e.publish(Event{Log: line})
}

func (e *Emitter) Logf(format string, args ...interface{}) {
	e.Log(fmt.Sprintf(format, args...))
}

// FinalURL surfaces a result location alongside a completion stage.
func (e *Emitter) FinalURL(stage, url string) {
	e.publish(Event{Stage: stage, Percent: Pct(100), Log: "Success! Link: " + url, FinalURL: url})
}

// Done ends the stream successfully. First terminal call wins.
func (e *Emitter) Done() {
	e.finish(Event{Log: DoneSentinel})
}

// Fail ends the stream with a failure description.
func (e *Emitter) Fail(err error) {
	msg := "task failed"
	if err != nil {
		msg = err.Error()
	}
	e.finish(Event{Error: msg})
}

func (e *Emitter) Failf(format string, args ...interface{}) {
	e.finish(Event{Error: fmt.Sprintf(format, args...)})
}

// Cancel ends the stream as user-stopped, distinct from a generic failure.
func (e *Emitter) Cancel(msg string) {
	if msg == "" {
		msg = "Task stopped by user"
	}
	e.finish(Event{Error: msg, Cancelled: true})
}

// Finished reports whether a terminal event has been emitted.
func (e *Emitter) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal
}

// publish holds the mutex across the terminal check and the bus write, so a
// concurrent emitter (progress readers run on their own goroutines) can never
// slip a non-terminal event in behind the terminal one.
func (e *Emitter) publish(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return
	}
	e.bus.Publish(e.taskID, ev)
}

func (e *Emitter) finish(ev Event) {
	e.once.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.terminal = true
		e.bus.Publish(e.taskID, ev)
	})
}
