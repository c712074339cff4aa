// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatch

import (
	"fmt"
	"sync/atomic"

	"code.hybscloud.com/axisdma/buffer"
	"code.hybscloud.com/axisdma/internal"
	"code.hybscloud.com/axisdma/queue"
)

// Subscriber is one open of the character device: a claimed set of
// destinations, a bounded receive queue, and optional debug/async state.
type Subscriber struct {
	Queue *queue.Queue

	debug atomic.Bool
	mask  Mask
}

// NewSubscriber creates a Subscriber whose queue is sized to rxCapacity
// (the RX pool's buffer count).
func NewSubscriber(rxCapacity int) *Subscriber {
	return &Subscriber{Queue: queue.New(rxCapacity)}
}

// SetDebug sets the per-subscriber debug flag (ioctl 0x1003).
func (s *Subscriber) SetDebug(level bool) { s.debug.Store(level) }

// Debug reports the per-subscriber debug flag.
func (s *Subscriber) Debug() bool { return s.debug.Load() }

// Mask returns the subscriber's currently claimed destinations.
func (s *Subscriber) Mask() Mask { return s.mask }

// ConflictError reports that a SetMask call would have claimed a
// destination already owned by another subscriber.
type ConflictError struct {
	Dest uint8
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("dispatch: destination %d already claimed", e.Dest)
}

// Table owns the destination-id -> Subscriber mapping. It is read from
// interrupt/completion context and mutated from subscriber open/close/
// reconfigure, protected by a short destMaskLock spinlock.
type Table struct {
	lock   internal.SpinMutex
	owners [256]*Subscriber
	permit Mask // device's destMask: destinations this card accepts
}

// NewTable creates a Table that permits exactly the destinations set in
// permit (the card's configured destMask).
func NewTable(permit Mask) *Table {
	return &Table{permit: permit}
}

// Owner returns the subscriber currently owning dest, or nil.
func (t *Table) Owner(dest uint8) *Subscriber {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.owners[dest]
}

// SetMask replaces sub's claimed destinations with want. The change is
// all-or-nothing: if any newly claimed destination is outside the
// device's destMask or already owned by a different subscriber, no
// change is applied and a *ConflictError is returned naming the first
// conflicting destination.
func (t *Table) SetMask(sub *Subscriber, want Mask) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	for _, d := range want.Destinations() {
		if !t.permit.Has(d) {
			return &ConflictError{Dest: d}
		}
		if owner := t.owners[d]; owner != nil && owner != sub {
			return &ConflictError{Dest: d}
		}
	}

	for _, d := range sub.mask.Destinations() {
		if !want.Has(d) {
			t.owners[d] = nil
		}
	}
	for _, d := range want.Destinations() {
		t.owners[d] = sub
	}
	sub.mask = want

	return nil
}

// Release removes every destination sub claims, used on subscriber
// close.
func (t *Table) Release(sub *Subscriber) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.release(sub)
}

func (t *Table) release(sub *Subscriber) {
	for _, d := range sub.mask.Destinations() {
		if t.owners[d] == sub {
			t.owners[d] = nil
		}
	}
	sub.mask = Mask{}
}

// ReleaseAndClose unclaims every destination sub holds and closes its
// queue in the same destMaskLock critical section Dispatch uses, then
// returns whatever was left queued so the caller can return those
// buffers to FREE. Doing Release and Queue.Close under one lock is what
// closes the completion/close race Dispatch's own locking depends on:
// without it, a Dispatch that already read sub as dest's owner could
// still push into q.ch after Close has drained it, leaking the buffer.
func (t *Table) ReleaseAndClose(sub *Subscriber) []*buffer.Buffer {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.release(sub)
	return sub.Queue.Close()
}

// Dispatch looks up dest's owner and hands the buffer to its queue, or
// reports no-owner so the caller can re-arm the buffer to hardware
// immediately. The owner lookup and the queue Push happen under the
// same destMaskLock critical section as Release+Queue.Close in
// CloseSubscriber, so a completion racing an unclaim either delivers to
// a queue that is guaranteed to still be open, or observes no owner and
// takes the re-arm path — it can never push into a queue that has
// already drained and closed. Push itself never blocks, so holding the
// lock across it cannot stall completion/interrupt context. Dispatch
// does not itself transition buf's state; the caller (the hardware
// adapter) does, since only it knows whether the hand-off is a device
// completion (ARMED->READY) or a re-arm.
func (t *Table) Dispatch(dest uint8, buf *buffer.Buffer) (owner *Subscriber, delivered bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	owner = t.owners[dest]
	if owner == nil {
		return nil, false
	}
	return owner, owner.Queue.Push(buf)
}
