// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"sync/atomic"

	"code.hybscloud.com/spin"
)

// SpinMutex is a short-hold mutual-exclusion lock built on spin.Wait
// adaptive backoff rather than OS-level sleep. It backs the driver
// core's destMaskLock/writeHwLock/commandLock sections, all of which
// are held only across a few register or map operations and must never
// be held across a blocking call — an interrupt-context caller spinning
// briefly is acceptable; an interrupt-context caller sleeping is not.
type SpinMutex struct {
	locked atomic.Bool
}

// Lock acquires the spinlock, spinning with adaptive backoff.
func (m *SpinMutex) Lock() {
	var sw spin.Wait
	for !m.locked.CompareAndSwap(false, true) {
		sw.Once()
	}
}

// Unlock releases the spinlock.
func (m *SpinMutex) Unlock() {
	m.locked.Store(false)
}
