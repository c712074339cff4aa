// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buffer

import (
	"fmt"
	"sort"
	"sync/atomic"
	"unsafe"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
)

// noCopy is a go-vet copylocks sentinel embedded in long-lived,
// must-not-be-copied types.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// CacheSync performs the cache-maintenance operation a Streaming-mode
// buffer needs at a FREE<->device transition. toDevice is true when the
// buffer is about to become device-owned (flush before device read) and
// false when it is returning to host ownership (invalidate before host
// read). Coherent and ACP pools never call this.
type CacheSync func(buf *Buffer, toDevice bool) error

// Pool is a fixed-size pool of DMA buffers with three views over the
// same set: an indexed view (allocation order), a sorted-by-bus-address
// view for O(log n) reverse lookup from a hardware completion, and a
// lock-free free-list used by AcquireFree/Release.
//
// The free-list is a bounded MPMC ring of buffer slots, the same shape
// iobuf's BoundedPool uses (Nikolaev, "A Scalable, Portable, and
// Memory-Efficient Lock-Free FIFO Queue"): each ring slot is an
// atomic.Uint64 carrying either a buffer slot number or an "empty,
// turn N" sentinel. Unlike BoundedPool this ring is sized to exactly
// the requested buffer count rather than the next power of two — a DMA
// pool's size is a hardware-visible quantity (cfgTxCount/cfgRxCount)
// and must not silently grow — so indexing uses modulo instead of a
// bitmask.
type Pool struct {
	_ noCopy

	mode      Mode
	size      int
	buffers   []*Buffer // indexed view, allocation order
	byAddr    []*Buffer // sorted by BusAddr, built once at construction
	cacheSync CacheSync
	backing   []byte // shared mmap-able backing store

	capacity   uint64
	entries    []atomic.Uint64
	head, tail atomic.Uint64
}

const poolEntryEmpty = uint64(1) << 62

// New constructs a pool of count buffers of bufSize bytes each, with
// indices starting at base (the caller arranges for TX and RX ranges
// not to overlap, per the data model's base-offset rule). All buffers
// start FREE and populate the free-list in index order.
func New(mode Mode, inTX bool, base, count, bufSize int, cacheSync CacheSync) *Pool {
	backing, blocks := alignedBlocks(count, bufSize, PageSize)
	return newFromBlocks(mode, inTX, base, bufSize, backing, blocks, cacheSync)
}

// NewLinkedPair constructs a device's TX and RX pools from one shared,
// contiguous backing allocation sized txCount+rxCount, so that a single
// mmap over the combined range keeps one fixed stride across the TX/RX
// boundary (buffer index txCount, the first RX buffer, immediately
// follows buffer index txCount-1, the last TX buffer). The stride is
// bufSize rounded up to PageSize, which is k*bufSize when bufSize is a
// multiple of PageSize.
func NewLinkedPair(mode Mode, txCount, rxCount, bufSize int, cacheSync CacheSync) (tx *Pool, rx *Pool) {
	backing, blocks := alignedBlocks(txCount+rxCount, bufSize, PageSize)
	tx = newFromBlocks(mode, true, 0, bufSize, backing, blocks[:txCount], cacheSync)
	rx = newFromBlocks(mode, false, txCount, bufSize, backing, blocks[txCount:], cacheSync)
	return tx, rx
}

func newFromBlocks(mode Mode, inTX bool, base, bufSize int, backing []byte, blocks [][]byte, cacheSync CacheSync) *Pool {
	count := len(blocks)
	if count < 1 {
		panic("buffer: pool count must be >= 1")
	}

	p := &Pool{
		mode:      mode,
		size:      count,
		buffers:   make([]*Buffer, count),
		byAddr:    make([]*Buffer, count),
		cacheSync: cacheSync,
		backing:   backing,
		capacity:  uint64(count),
		entries:   make([]atomic.Uint64, count),
	}

	for i := 0; i < count; i++ {
		addr := uintptr(unsafe.Pointer(unsafe.SliceData(blocks[i])))
		b := &Buffer{
			Index:    base + i,
			BusAddr:  uint64(addr),
			UserAddr: addr,
			Mem:      blocks[i],
			inTX:     inTX,
		}
		p.buffers[i] = b
		p.byAddr[i] = b
		p.entries[i].Store(uint64(i))
	}

	sort.Slice(p.byAddr, func(i, j int) bool { return p.byAddr[i].BusAddr < p.byAddr[j].BusAddr })

	p.tail.Store(uint64(count))

	return p
}

// Size returns the number of buffers in the pool.
func (p *Pool) Size() int { return p.size }

// Buffers returns the indexed view in allocation order. Callers must
// not mutate the slice.
func (p *Pool) Buffers() []*Buffer { return p.buffers }

// Backing returns the pool's shared backing store, used by the chardev
// surface to provide a single contiguous mmap view over the whole pool.
func (p *Pool) Backing() []byte { return p.backing }

// FreeCount returns the number of buffers currently on the free-list.
// It is a point-in-time snapshot used by poll and observability
// counters, not a synchronization primitive.
func (p *Pool) FreeCount() int {
	t := p.tail.Load()
	h := p.head.Load()
	if t < h {
		return 0
	}
	return int(t - h)
}

// ByIndex returns the buffer with the given stable index, or nil if out
// of range for this pool.
func (p *Pool) ByIndex(index int) *Buffer {
	if p.size == 0 {
		return nil
	}
	i := index - p.buffers[0].Index
	if i < 0 || i >= p.size {
		return nil
	}
	return p.buffers[i]
}

// AcquireFree dequeues one FREE buffer, non-blocking. It returns
// iox.ErrWouldBlock if the free-list is empty.
func (p *Pool) AcquireFree() (*Buffer, error) {
	sw := spin.Wait{}
	for {
		h, t := p.head.Load(), p.tail.Load()
		if h == t {
			return nil, iox.ErrWouldBlock
		}

		idx := h % p.capacity
		e := p.entries[idx].Load()

		if h != p.head.Load() {
			sw.Once()
			continue
		}

		nextTurn := h/p.capacity + 1
		if e == p.empty(nextTurn) {
			p.head.CompareAndSwap(h, h+1)
			sw.Once()
			continue
		}
		if p.entries[idx].CompareAndSwap(e, p.empty(nextTurn)) {
			p.head.CompareAndSwap(h, h+1)
			return p.buffers[e], nil
		}
		p.head.CompareAndSwap(h, h+1)
		sw.Once()
	}
}

// Release forces buf to FREE and returns it to the free-list. It is
// idempotent against concurrent callers: two racing returns of the same
// buffer never corrupt the free-list, the second is simply dropped once
// the ring reports full.
func (p *Pool) Release(buf *Buffer) {
	buf.ForceFree()

	slot := uint64(buf.Index - p.buffers[0].Index)
	sw := spin.Wait{}
	for {
		h, t := p.head.Load(), p.tail.Load()
		if t != p.tail.Load() {
			sw.Once()
			continue
		}
		if t-h >= p.capacity {
			return
		}
		idx := t % p.capacity
		turn := t / p.capacity
		ok := p.entries[idx].CompareAndSwap(p.empty(turn), slot)
		p.tail.CompareAndSwap(t, t+1)
		if ok {
			return
		}
		sw.Once()
	}
}

// FindByHandle performs an O(log n) reverse lookup from a hardware bus
// handle to the buffer that owns it, used by interrupt-context
// completion decoders.
func (p *Pool) FindByHandle(busAddr uint64) *Buffer {
	i := sort.Search(len(p.byAddr), func(i int) bool { return p.byAddr[i].BusAddr >= busAddr })
	if i < len(p.byAddr) && p.byAddr[i].BusAddr == busAddr {
		return p.byAddr[i]
	}
	return nil
}

// Arm transitions buf FREE->ARMED, performing the Streaming-mode cache
// flush first. A CacheSync failure prevents the transition.
func (p *Pool) Arm(buf *Buffer) error {
	if p.mode == Streaming && p.cacheSync != nil {
		if err := p.cacheSync(buf, true); err != nil {
			return fmt.Errorf("buffer: cache sync before arm: %w", err)
		}
	}
	if !buf.transition(Free, Armed) {
		return fmt.Errorf("buffer: index %d not FREE (state=%s)", buf.Index, buf.State())
	}
	return nil
}

// Complete transitions buf ARMED->READY on device completion.
func (p *Pool) Complete(buf *Buffer) error {
	if p.mode == Streaming && p.cacheSync != nil {
		if err := p.cacheSync(buf, false); err != nil {
			return fmt.Errorf("buffer: cache sync on completion: %w", err)
		}
	}
	if !buf.transition(Armed, Ready) {
		return fmt.Errorf("buffer: index %d not ARMED (state=%s)", buf.Index, buf.State())
	}
	return nil
}

// Deliver transitions buf READY->HELD when a subscriber's read or mmap
// returns it.
func (p *Pool) Deliver(buf *Buffer) error {
	if !buf.transition(Ready, Held) {
		return fmt.Errorf("buffer: index %d not READY (state=%s)", buf.Index, buf.State())
	}
	return nil
}

func (p *Pool) empty(turn uint64) uint64 {
	return poolEntryEmpty | turn
}
