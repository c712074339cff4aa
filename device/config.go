// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"

	"code.hybscloud.com/axisdma/buffer"
	"code.hybscloud.com/axisdma/hwadapter"
)

// Config carries the per-device bring-up options, set once and
// validated at New.
type Config struct {
	TxCount int
	RxCount int
	Size    int
	Mode    buffer.Mode

	// Regs is an optional raw register handle used only by the
	// read/write-register ioctls (0x100C/0x100D). Nil disables them.
	Regs hwadapter.Registers

	// Cont selects receive-continue (multi-descriptor frames) on G2.
	// It is stored for bring-up glue; no adapter in hwadapter reads it,
	// and G2 always reports the continuation flag clear on receive.
	Cont bool

	// IrqHold is the hardware coalescing hold-off, in implementation-
	// defined device units. It is stored for bring-up glue; nothing in
	// this module programs it into hardware.
	IrqHold uint32
	// IrqDis selects a poll thread, driven by bring-up glue calling
	// Device.IRQ, in place of interrupt delivery. Device itself does not
	// read it.
	IrqDis bool

	// BgThold carries the eight per-group back-pressure thresholds. They
	// are stored for bring-up glue; nothing in this module programs them.
	BgThold [8]uint32
}

func (c Config) validate() error {
	if c.TxCount < 1 {
		return fmt.Errorf("device: TxCount must be >= 1, got %d", c.TxCount)
	}
	if c.RxCount < 1 {
		return fmt.Errorf("device: RxCount must be >= 1, got %d", c.RxCount)
	}
	if c.Size < 1 {
		return fmt.Errorf("device: Size must be >= 1, got %d", c.Size)
	}
	return nil
}
