// Package queue runs tasks one at a time, in order, on a single goroutine.
// It is the sequence a socket's state lives on: every continuation is
// posted here instead of being called recursively.
package queue

import (
	"sync"
)

type Error uint8

var (
	ErrQueueIsFull   Error = 0
	ErrQueueIsStoped Error = 1
)

func (e Error) Error() string {
	switch e {
	case ErrQueueIsStoped:
		return "queue is stopped"
	case ErrQueueIsFull:
		return "queue is full"
	default:
		return "unknown error"
	}
}

type Queue struct {
	mu     sync.Mutex
	jumps  []func()
	tasks  []func()
	limit  int
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

// Create a new instance of Queue.
// limit bounds the number of pending tasks; zero means unbounded.
func New(limit int) *Queue {
	if limit < 0 {
		panic("limit must not be negative")
	}
	mq := &Queue{
		limit: limit,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go mq.run()
	return mq
}
func (mq *Queue) run() {
	defer close(mq.done)
	for {
		task, ok := mq.next()
		if !ok {
			return
		}
		if task == nil {
			<-mq.wake
			continue
		}
		task()
	}
}

// next pops the first pending task; jumps go before regular tasks.
// It returns a nil task when idle and ok=false once closed and drained.
func (mq *Queue) next() (func(), bool) {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if len(mq.jumps) > 0 {
		task := mq.jumps[0]
		mq.jumps[0] = nil
		mq.jumps = mq.jumps[1:]
		return task, true
	}
	if len(mq.tasks) > 0 {
		task := mq.tasks[0]
		mq.tasks[0] = nil
		mq.tasks = mq.tasks[1:]
		return task, true
	}
	if mq.closed {
		return nil, false
	}
	return nil, true
}
func (mq *Queue) signal() {
	select {
	case mq.wake <- struct{}{}:
	default:
	}
}
func (mq *Queue) Len() int {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return len(mq.tasks) + len(mq.jumps)
}
func (mq *Queue) IsIdle() bool {
	return mq.Len() == 0
}
func (mq *Queue) IsFull() bool {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return mq.limit > 0 && len(mq.tasks) >= mq.limit
}
func (mq *Queue) IsClosed() bool {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return mq.closed
}

// Close stops accepting tasks. Tasks already pushed still run; Done is
// closed after the last one returns.
func (mq *Queue) Close() {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if !mq.closed {
		mq.closed = true
		mq.signal()
	}
}

// Done is closed once the queue is closed and drained.
func (mq *Queue) Done() <-chan struct{} {
	return mq.done
}

// Push a task to the queue. If the queue is full, it will return ErrQueueIsFull.
func (mq *Queue) Push(task func()) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if mq.closed {
		return ErrQueueIsStoped
	}
	if mq.limit > 0 && len(mq.tasks) >= mq.limit {
		return ErrQueueIsFull
	}
	mq.tasks = append(mq.tasks, task)
	mq.signal()
	return nil
}

// Jump the queue to the front. If the queue is stopped, it will return ErrQueueIsStoped.
func (mq *Queue) Jump(task func()) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if mq.closed {
		return ErrQueueIsStoped
	}
	mq.jumps = append(mq.jumps, task)
	mq.signal()
	return nil
}
