// Package rpc is a typed request/response channel: callers enqueue a request
// and wait for exactly one reply, a server drains the queue.
package rpc

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send once the queue has been closed.
var ErrClosed = errors.New("rpc queue closed")

// Call is one queued request. The server must Reply exactly once; later
// replies are dropped.
type Call[Req, Resp any] struct {
	Ctx     context.Context
	Request Req

	reply chan Resp
	once  sync.Once
}

func (c *Call[Req, Resp]) Reply(resp Resp) {
	c.once.Do(func() {
		c.reply <- resp
	})
}

// Queue connects any number of senders to one consumer.
type Queue[Req, Resp any] struct {
	calls  chan *Call[Req, Resp]
	done   chan struct{}
	closer sync.Once
}

func NewQueue[Req, Resp any](size int) *Queue[Req, Resp] {
	return &Queue[Req, Resp]{
		calls: make(chan *Call[Req, Resp], size),
		done:  make(chan struct{}),
	}
}

// Calls is the consumer side of the queue. It is never closed; consumers
// should stop on their own context.
func (q *Queue[Req, Resp]) Calls() <-chan *Call[Req, Resp] {
	return q.calls
}

// Send enqueues req and blocks until it is answered, ctx is done, or the
// queue is closed. Abandoning a call does not cancel work already dispatched.
func (q *Queue[Req, Resp]) Send(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	call := &Call[Req, Resp]{
		Ctx:     context.WithoutCancel(ctx),
		Request: req,
		reply:   make(chan Resp, 1),
	}

	select {
	case <-q.done:
		return zero, ErrClosed
	default:
	}

	select {
	case q.calls <- call:
	case <-q.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case resp := <-call.reply:
		return resp, nil
	case <-q.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close rejects pending and future sends. It is safe to call more than once.
func (q *Queue[Req, Resp]) Close() {
	q.closer.Do(func() { close(q.done) })
}
