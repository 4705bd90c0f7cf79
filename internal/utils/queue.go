package utils

import "sync"

// Queue is an unbounded FIFO queue. Push never blocks on a slow consumer:
// elements accumulate in an internal buffer and are delivered through the
// Out channel by a shuttle goroutine. This keeps the matching path from
// ever blocking on feed subscribers, at the cost of unbounded growth if a
// subscriber stops draining.
type Queue[T any] struct {
	in  chan T
	out chan T

	mu     sync.Mutex
	closed bool
}

func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go q.run()
	return q
}

// Push appends v to the queue. Returns false if the queue has been closed,
// in which case v is dropped.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	// The shuttle is always ready to receive, so this handoff is brief.
	q.in <- v
	return true
}

// Out returns the channel elements are delivered on, in push order. The
// channel is closed once the queue is closed and fully drained.
func (q *Queue[T]) Out() <-chan T {
	return q.out
}

// Close stops the queue. Buffered elements are still delivered; Push calls
// after Close are dropped. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.in)
	}
}

func (q *Queue[T]) run() {
	var buf []T
	in := q.in
	for in != nil || len(buf) > 0 {
		var out chan T
		var next T
		if len(buf) > 0 {
			out = q.out
			next = buf[0]
		}
		select {
		case v, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			buf = append(buf, v)
		case out <- next:
			buf = buf[1:]
		}
	}
	close(q.out)
}
