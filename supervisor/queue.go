package supervisor

import (
	"context"
	"io"
	"sync"

	"github.com/flashjig/flashjig/model"
)

// queue is the outbound event buffer of one run. Raw output is bounded: when
// capacity raw lines are already waiting, the oldest one is dropped. Lifecycle
// events are always kept.
type queue struct {
	mu       sync.Mutex
	items    []model.Event
	raw      int
	capacity int
	dropped  int
	closed   bool
	notify   chan struct{}
}

func newQueue(capacity int) *queue {
	if capacity < 1 {
		capacity = 1
	}
	return &queue{capacity: capacity, notify: make(chan struct{}, 1)}
}

func (q *queue) push(ev model.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	if !ev.IsLifecycle() {
		if q.raw >= q.capacity {
			q.dropOldestRaw()
		}
		q.raw++
	}
	q.items = append(q.items, ev)
	q.signal()
}

func (q *queue) dropOldestRaw() {
	for i, ev := range q.items {
		if !ev.IsLifecycle() {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.raw--
			q.dropped++
			return
		}
	}
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop returns the next event in arrival order. It returns io.EOF once the
// queue is closed and drained.
func (q *queue) pop(ctx context.Context) (model.Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = model.Event{}
			q.items = q.items[1:]
			if !ev.IsLifecycle() {
				q.raw--
			}
			q.mu.Unlock()
			return ev, nil
		}
		if q.closed {
			q.mu.Unlock()
			return model.Event{}, io.EOF
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return model.Event{}, ctx.Err()
		}
	}
}

func (q *queue) droppedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
