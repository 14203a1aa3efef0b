// Package serial provides a single-worker FIFO execution context.
package serial

import (
	"sync"
	"time"

	"courier/internal/logger"
	pkgerrors "courier/pkg/errors"
	"courier/pkg/metrics"
)

type Task func()

type queued struct {
	fn Task
	at time.Time
}

// Queue runs submitted tasks one at a time in submission order on a single
// goroutine. Submit never blocks, so tasks may submit further tasks.
type Queue struct {
	name   string
	logger logger.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []queued
	closed bool
	done   chan struct{}
}

func New(name string, log logger.Logger) *Queue {
	q := &Queue{
		name:   name,
		logger: log.Component("serial").Component(name),
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Submit enqueues fn. It reports false, dropping fn, once the queue is
// closed.
func (q *Queue) Submit(fn Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, queued{fn: fn, at: time.Now()})
	metrics.SetMessageQueueSize(q.name, len(q.tasks))
	q.cond.Signal()
	return true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Flush blocks until every task submitted before the call has run. It must
// not be called from a task on the same queue.
func (q *Queue) Flush() {
	done := make(chan struct{})
	if !q.Submit(func() { close(done) }) {
		<-q.done
		return
	}
	<-done
}

// Close stops accepting tasks, runs what is already queued and waits for
// the worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Signal()
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}

		t := q.tasks[0]
		q.tasks[0] = queued{}
		q.tasks = q.tasks[1:]
		metrics.SetMessageQueueSize(q.name, len(q.tasks))
		q.mu.Unlock()

		metrics.ObserveMessageQueueWaitDuration(q.name, time.Since(t.at))
		q.exec(t.fn)
	}
}

func (q *Queue) exec(fn Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Errorw("Serial task panicked", "error", pkgerrors.RecoverPanic(r))
		}
	}()
	fn()
}
