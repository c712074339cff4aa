// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"sync"
)

// MaxDevices bounds the number of cards a single process may bring up
// at once. The registry is a fixed-size slot array, not a map, so a
// minor's number maps directly to a slot with no allocation on the
// lookup path.
const MaxDevices = 8

var (
	registryMu sync.RWMutex
	registry   [MaxDevices]*Device
)

// Register installs dev at minor and freezes that slot against further
// registration until Unregister. minor must be in [0, MaxDevices).
func Register(minor int, dev *Device) error {
	if minor < 0 || minor >= MaxDevices {
		return fmt.Errorf("device: minor %d out of range [0,%d)", minor, MaxDevices)
	}
	if dev == nil {
		return fmt.Errorf("device: cannot register nil device")
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if registry[minor] != nil {
		return fmt.Errorf("device: minor %d already registered", minor)
	}
	registry[minor] = dev
	return nil
}

// Lookup returns the device registered at minor, or nil if the slot is
// empty.
func Lookup(minor int) *Device {
	if minor < 0 || minor >= MaxDevices {
		return nil
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[minor]
}

// Unregister tears the device at minor down and frees its slot, making
// minor available to a future Register call. It is a no-op if minor is
// out of range or the slot is already empty.
func Unregister(minor int) {
	if minor < 0 || minor >= MaxDevices {
		return
	}

	registryMu.Lock()
	dev := registry[minor]
	if dev == nil {
		registryMu.Unlock()
		return
	}
	registry[minor] = nil
	registryMu.Unlock()

	dev.Teardown()
}
