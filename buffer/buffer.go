// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buffer

import (
	"fmt"
	"sync/atomic"
)

// State is a buffer's position in the ownership state machine.
type State uint32

const (
	// Free means the buffer sits on a pool free-list, owned by neither
	// device nor subscriber.
	Free State = iota
	// Armed means the buffer has been handed to the device and not yet
	// completed; the device has exclusive access.
	Armed
	// Ready means the device completed the buffer and it has been
	// enqueued to a subscriber's queue, but not yet delivered.
	Ready
	// Held means the buffer was delivered to a subscriber (by read or
	// mmap); the subscriber has exclusive access until it returns it.
	Held
)

func (s State) String() string {
	switch s {
	case Free:
		return "FREE"
	case Armed:
		return "ARMED"
	case Ready:
		return "READY"
	case Held:
		return "HELD"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Mode selects the cache-coherency policy used for a pool's backing
// memory.
type Mode int

const (
	// Coherent buffers are cache-snooped: the user-visible and
	// device-visible addresses map to the same physical page and no
	// explicit cache maintenance is required.
	Coherent Mode = iota
	// Streaming buffers live in ordinary pageable host memory; cache
	// synchronization is performed explicitly at each FREE<->device
	// transition.
	Streaming
	// ACP buffers are coherent through a coherent accelerator port,
	// plus an address-rewriting policy applied on installation.
	ACP
)

// Error is a bitset of per-frame error conditions that ride a buffer to
// its subscriber. See errkind for the stable bit assignments; buffer
// only stores the value, it does not interpret it.
type Error uint32

// Flags packs AXI-Stream sideband bits: [7:0] first-user, [15:8]
// last-user, bit 16 continuation.
type Flags uint32

// FirstUser returns the first-user sideband byte.
func (f Flags) FirstUser() uint8 { return uint8(f) }

// LastUser returns the last-user sideband byte.
func (f Flags) LastUser() uint8 { return uint8(f >> 8) }

// Continuation reports whether the continuation bit is set.
func (f Flags) Continuation() bool { return f&(1<<16) != 0 }

// NewFlags packs sideband fields into a Flags value.
func NewFlags(firstUser, lastUser uint8, continuation bool) Flags {
	f := Flags(firstUser) | Flags(lastUser)<<8
	if continuation {
		f |= 1 << 16
	}
	return f
}

// Buffer is one unit of DMA memory tracked by a Pool.
//
// Index is assigned once at pool construction and never changes; it is
// the only identifier that crosses the user/device/subscriber boundary.
// BusAddr and UserAddr are fixed for the buffer's lifetime. Size, Flags,
// ErrorBits, Dest and Count are mutated by whichever party currently
// owns the buffer, per the state machine.
type Buffer struct {
	Index    int
	BusAddr  uint64
	UserAddr uintptr

	// Mem is the backing storage for this buffer, sized to the pool's
	// configured buffer size. UserAddr aliases the start of Mem.
	Mem []byte

	Size      uint32
	Flags     Flags
	ErrorBits Error
	Dest      uint8
	Count     uint64

	state atomic.Uint32

	// inTX records which pool this buffer belongs to, fixed for its
	// lifetime (buffer.Pool invariant: a buffer's pool membership never
	// changes).
	inTX bool
}

// State returns the buffer's current ownership state.
func (b *Buffer) State() State {
	return State(b.state.Load())
}

// transition performs a compare-and-swap state change, returning false
// if the buffer was not in the expected state (an illegal transition
// attempt).
func (b *Buffer) transition(from, to State) bool {
	return b.state.CompareAndSwap(uint32(from), uint32(to))
}

// ForceFree unconditionally moves the buffer to FREE, used by Pool
// shutdown and by Release.
func (b *Buffer) ForceFree() {
	b.state.Store(uint32(Free))
}

// InTX reports whether this buffer belongs to the TX pool (false means
// RX pool). Membership is fixed for the buffer's lifetime.
func (b *Buffer) InTX() bool {
	return b.inTX
}
