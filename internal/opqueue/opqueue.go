// Package opqueue serializes the asynchronous operations of one native peer
// connection.
package opqueue

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Queue runs pushed operations on a single goroutine, in push order.
type Queue struct {
	log *logrus.Entry

	mu     sync.Mutex
	ops    []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

// New starts a queue. Panicking operations are logged to log.
func New(log *logrus.Entry) *Queue {
	q := &Queue{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Push schedules op. It returns false once the queue is closed.
func (q *Queue) Push(op func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.ops = append(q.ops, op)
	q.mu.Unlock()

	q.signal()
	return true
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.ops) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			continue
		}
		op := q.ops[0]
		q.ops[0] = nil
		q.ops = q.ops[1:]
		q.mu.Unlock()

		q.invoke(op)
	}
}

func (q *Queue) invoke(op func()) {
	defer func() {
		if v := recover(); v != nil {
			q.log.WithField("panic", v).Error("peer connection operation panicked")
		}
	}()
	op()
}

// Close stops accepting operations and waits for the queued ones to run.
// It must not be called from a queued operation.
func (q *Queue) Close() {
	q.mu.Lock()
	already := q.closed
	q.closed = true
	q.mu.Unlock()

	if !already {
		q.signal()
	}
	<-q.done
}
