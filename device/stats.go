// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/axisdma/errkind"
)

// kindSlots orders the five error bits for counter indexing.
var kindSlots = [...]errkind.Kind{errkind.FIFO, errkind.LEN, errkind.MAX, errkind.BUS, errkind.EOFE}

// Stats holds a Device's running observability counters: per-
// destination frame counts, per-kind error counts, and the free-list
// low-water-mark. It is safe for concurrent use from interrupt and
// subscriber context.
type Stats struct {
	perDest     [256]atomic.Uint64
	undelivered atomic.Uint64
	perKind     [len(kindSlots)]atomic.Uint64

	freeLowMu  sync.Mutex
	freeLow    int
	freeLowSet bool
}

func (s *Stats) recordCompletion(dest uint8, ek errkind.Kind, delivered bool) {
	s.perDest[dest].Add(1)
	if !delivered {
		s.undelivered.Add(1)
	}
	for i, bit := range kindSlots {
		if ek.Has(bit) {
			s.perKind[i].Add(1)
		}
	}
}

func (s *Stats) observeFreeCount(n int) {
	s.freeLowMu.Lock()
	defer s.freeLowMu.Unlock()
	if !s.freeLowSet || n < s.freeLow {
		s.freeLow = n
		s.freeLowSet = true
	}
}

// Snapshot is a point-in-time, plain-value copy of Stats suitable for
// returning to a caller or rendering in a diagnostic dump.
type Snapshot struct {
	PerDest          [256]uint64
	PerKind          map[string]uint64
	Undelivered      uint64
	FreeListLowWater int
}

func (s *Stats) snapshot() Snapshot {
	snap := Snapshot{PerKind: make(map[string]uint64, len(kindSlots))}
	for d := range s.perDest {
		snap.PerDest[d] = s.perDest[d].Load()
	}
	for i, bit := range kindSlots {
		snap.PerKind[bit.String()] = s.perKind[i].Load()
	}
	snap.Undelivered = s.undelivered.Load()

	s.freeLowMu.Lock()
	snap.FreeListLowWater = s.freeLow
	s.freeLowMu.Unlock()

	return snap
}

func (s *Stats) seqShow(w io.Writer) {
	snap := s.snapshot()
	fmt.Fprintf(w, "undelivered completions: %d\n", snap.Undelivered)
	fmt.Fprintf(w, "free-list low water mark: %d\n", snap.FreeListLowWater)
	for _, bit := range kindSlots {
		fmt.Fprintf(w, "errors[%s]: %d\n", bit.String(), snap.PerKind[bit.String()])
	}
	for d, n := range snap.PerDest {
		if n > 0 {
			fmt.Fprintf(w, "dest[%d]: %d frames\n", d, n)
		}
	}
}
