// Package queue implements the unbounded FIFO that feeds the single worker.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/ChuLiYu/docqueue/pkg/types"
)

// ErrStopped is returned by Enqueue after the stop sentinel was queued.
var ErrStopped = errors.New("queue is stopped")

// Entry is one queue element. Stop marks the sentinel that ends the worker loop.
type Entry struct {
	ID   types.TaskID
	Stop bool
}

// Queue is a multi-producer, single-consumer FIFO.
//
// Every task entry increments an unfinished counter that the consumer
// decrements with TaskDone; Join waits for it to reach zero. The stop
// sentinel is not counted.
type Queue struct {
	mu         sync.Mutex
	entries    []Entry
	ready      chan struct{}
	unfinished int
	idle       chan struct{}
	stopped    bool
}

// New creates an empty Queue.
func New() *Queue {
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		ready: make(chan struct{}, 1),
		idle:  idle,
	}
}

// Enqueue appends id to the tail.
func (q *Queue) Enqueue(id types.TaskID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrStopped
	}
	if q.unfinished == 0 {
		q.idle = make(chan struct{})
	}
	q.unfinished++
	q.push(Entry{ID: id})
	return nil
}

// SignalStop enqueues the sentinel. Entries queued before it are still
// delivered; later Enqueue calls fail with ErrStopped.
func (q *Queue) SignalStop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}
	q.stopped = true
	q.push(Entry{Stop: true})
}

// push must be called with mu held.
func (q *Queue) push(e Entry) {
	q.entries = append(q.entries, e)
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Dequeue blocks until an entry is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (Entry, error) {
	for {
		q.mu.Lock()
		if len(q.entries) > 0 {
			e := q.entries[0]
			q.entries[0] = Entry{}
			q.entries = q.entries[1:]
			if len(q.entries) > 0 {
				select {
				case q.ready <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return e, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
	}
}

// TaskDone marks one previously dequeued task entry as finished.
func (q *Queue) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished == 0 {
		return
	}
	q.unfinished--
	if q.unfinished == 0 {
		close(q.idle)
	}
}

// Join blocks until every enqueued task has been marked done or ctx ends.
func (q *Queue) Join(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of task entries waiting to be dequeued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, e := range q.entries {
		if !e.Stop {
			n++
		}
	}
	return n
}

// Unfinished returns the number of tasks enqueued but not yet marked done.
func (q *Queue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// Snapshot returns the waiting task ids in FIFO order.
func (q *Queue) Snapshot() []types.TaskID {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]types.TaskID, 0, len(q.entries))
	for _, e := range q.entries {
		if !e.Stop {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Position returns the 1-based position of id, or 0 if it is not waiting.
func (q *Queue) Position(id types.TaskID) int {
	for i, queued := range q.Snapshot() {
		if queued == id {
			return i + 1
		}
	}
	return 0
}
