// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"code.hybscloud.com/axisdma/buffer"
	"code.hybscloud.com/iox"
)

// noCopy is the same go-vet copylocks sentinel used across this module;
// a Queue is a long-lived per-subscriber object, never meant to be
// copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Queue is a bounded FIFO of ready buffers belonging to one subscriber.
// Push is called only from device-completion (interrupt) context; Pop,
// PopBulk and PeekReady are called from subscriber context.
type Queue struct {
	_ noCopy

	ch     chan *buffer.Buffer
	cancel chan struct{}
	once   sync.Once
	notify chan struct{} // size 1, edge-coalesced empty->non-empty signal
	async  atomic.Bool
}

// New creates a Queue with the given capacity, which callers size to
// the RX pool's buffer count (the hardware free-list is the bounded
// resource; the queue itself never drops on the software side).
func New(capacity int) *Queue {
	return &Queue{
		ch:     make(chan *buffer.Buffer, capacity),
		cancel: make(chan struct{}),
		notify: make(chan struct{}, 1),
	}
}

// SetAsyncNotify enables or disables out-of-band notification on
// empty->non-empty transitions. It corresponds to a subscriber's
// fasync/SIGIO registration.
func (q *Queue) SetAsyncNotify(enabled bool) {
	q.async.Store(enabled)
}

// Notify returns the channel a registered subscriber watches for
// async (SIGIO-equivalent) wakeups. A receive from this channel is the
// notification; the channel is never closed during normal operation.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

// Push enqueues buf, waking one blocked Pop waiter, and — if async
// notify is enabled — fires the notify channel exactly once per
// empty->non-empty transition. Push is the only operation permitted
// from interrupt/completion context and must never block: capacity
// is sized so this can only happen if a caller violates the pool-size
// invariant, in which case the enqueue is dropped and reported rather
// than blocking the interrupt path.
func (q *Queue) Push(buf *buffer.Buffer) bool {
	wasEmpty := len(q.ch) == 0

	select {
	case q.ch <- buf:
	default:
		return false
	}

	if wasEmpty && q.async.Load() {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}

	return true
}

// Pop dequeues one buffer, blocking up to timeout when the queue is
// empty. timeout <= 0 means non-blocking: Pop returns iox.ErrWouldBlock
// immediately if nothing is ready. Pop unblocks early, returning
// iox.ErrWouldBlock, if the queue is closed while waiting.
func (q *Queue) Pop(timeout time.Duration) (*buffer.Buffer, error) {
	if timeout <= 0 {
		select {
		case buf := <-q.ch:
			return buf, nil
		default:
			return nil, iox.ErrWouldBlock
		}
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case buf := <-q.ch:
		return buf, nil
	case <-deadline:
		return nil, iox.ErrWouldBlock
	case <-q.cancel:
		return nil, iox.ErrWouldBlock
	}
}

// PopBulk dequeues up to maxN buffers without blocking beyond the first
// already-available item; it returns the slice of dequeued buffers
// (len <= maxN).
func (q *Queue) PopBulk(maxN int) []*buffer.Buffer {
	out := make([]*buffer.Buffer, 0, maxN)
	for len(out) < maxN {
		select {
		case buf := <-q.ch:
			out = append(out, buf)
		default:
			return out
		}
	}
	return out
}

// PeekReady returns the number of buffers currently queued, a
// non-destructive read used by poll.
func (q *Queue) PeekReady() int {
	return len(q.ch)
}

// Close marks the queue cancelled, waking any blocked Pop, and drains
// whatever remains so the caller (the owning Subscriber) can return
// every still-queued buffer to FREE. Close is idempotent.
func (q *Queue) Close() []*buffer.Buffer {
	q.once.Do(func() { close(q.cancel) })

	var drained []*buffer.Buffer
	for {
		select {
		case buf := <-q.ch:
			drained = append(drained, buf)
		default:
			return drained
		}
	}
}
