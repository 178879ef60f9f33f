package progress

import (
	"sync"
	"time"
)

// Bus routes progress events from worker goroutines to streaming readers.
// Events are partitioned by task ID, so a stale event left by an abandoned
// task can never leak into another task's stream. Publishing never blocks;
// queues grow without bound on the assumption that a single task's event
// volume is small (log lines of one subprocess run).
type Bus struct {
	mu     sync.Mutex
	queues map[string]*taskQueue
}

func NewBus() *Bus {
	return &Bus{queues: make(map[string]*taskQueue)}
}

// Publish appends an event to the task's queue, clamping Percent to [0, 100].
func (b *Bus) Publish(taskID string, ev Event) {
	if ev.Percent != nil {
		ev.Percent = Pct(clampPercent(*ev.Percent))
	}
	b.queue(taskID).push(ev)
}

// Subscribe returns a reader for the task's event stream. Each event is
// consumed exactly once; two simultaneous subscribers for the same task race
// for events.
func (b *Bus) Subscribe(taskID string) *Subscription {
	return &Subscription{q: b.queue(taskID)}
}

// Reset discards any unread events for the task. Called by the launcher
// before reusing a task ID so a prior run's leftovers are not misattributed.
func (b *Bus) Reset(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, taskID)
}

// Forget drops the task's queue once its stream has been fully consumed.
func (b *Bus) Forget(taskID string) {
	b.Reset(taskID)
}

// Tracked reports how many task queues the bus currently holds. Streams that
// end without a terminal event must Forget their queue or this grows.
func (b *Bus) Tracked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues)
}

// Pending reports the number of unread events for a task.
func (b *Bus) Pending(taskID string) int {
	b.mu.Lock()
	q, ok := b.queues[taskID]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (b *Bus) queue(taskID string) *taskQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[taskID]
	if !ok {
		q = newTaskQueue()
		b.queues[taskID] = q
	}
	return q
}

type taskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []Event
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *taskQueue) push(ev Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// next blocks until an event is available or the timeout elapses. The second
// return value is false on timeout.
func (q *taskQueue) next(timeout time.Duration) (Event, bool) {
	deadline := time.Now().Add(timeout)
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.events) == 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Event{}, false
		}
		t := time.AfterFunc(remaining, q.cond.Broadcast)
		q.cond.Wait()
		t.Stop()
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev, true
}

// Subscription reads one task's events in FIFO order.
type Subscription struct {
	q *taskQueue
}

// Next returns the next event, blocking up to timeout. ok is false when the
// timeout elapsed with no event, which callers should treat as an abandoned
// stream.
func (s *Subscription) Next(timeout time.Duration) (ev Event, ok bool) {
	return s.q.next(timeout)
}
