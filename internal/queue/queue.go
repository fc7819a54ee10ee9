// Package queue provides the FIFO connecting the transaction-request
// generator to the worker pool.
package queue

import (
	"github.com/behrlich/go-act/internal/device"
)

// Request is one small transaction read, produced by the generator and
// consumed by exactly one worker. The queue owns it between Push and Pop.
type Request struct {
	Dev       *device.Device
	Offset    int64 // bytes, multiple of Dev.MinOpBytes
	Size      int64 // bytes, equal to Dev.ReadBytes
	EnqueueNs int64
}

// Queue is a multi-producer/multi-consumer FIFO of read requests.
type Queue struct {
	ch chan *Request
}

// New creates a queue holding up to capacity undispatched requests. The
// generator's overload threshold must not exceed capacity, so Push never
// blocks in practice.
func New(capacity int) *Queue {
	return &Queue{ch: make(chan *Request, capacity)}
}

// Push enqueues r.
func (q *Queue) Push(r *Request) {
	q.ch <- r
}

// Pop dequeues the oldest request, blocking until one is available or stop
// is closed. Returns nil once stop is closed.
func (q *Queue) Pop(stop <-chan struct{}) *Request {
	select {
	case r := <-q.ch:
		return r
	case <-stop:
		return nil
	}
}

// TryPop dequeues without blocking, returning nil if the queue is empty.
// Shutdown uses it to drain requests the workers never dispatched.
func (q *Queue) TryPop() *Request {
	select {
	case r := <-q.ch:
		return r
	default:
		return nil
	}
}

// Len returns the number of undispatched requests.
func (q *Queue) Len() int {
	return len(q.ch)
}
