// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hwadapter

import (
	"fmt"
	"io"

	"code.hybscloud.com/axisdma/buffer"
	"code.hybscloud.com/axisdma/errkind"
	"code.hybscloud.com/axisdma/internal"
)

// G1 register addresses. The three TX-post registers are written
// sequentially under a single hardware-write lock to keep a descriptor
// post atomic against other subscribers.
const (
	g1RegTxHandle  = 0x10
	g1RegTxSize    = 0x14
	g1RegTxControl = 0x18
	g1RegCommand   = 0x1C
	g1RegRxHandle  = 0x20
)

// RX completion marker bytes occupying the top byte of the size and
// status words respectively. A mismatch on either marks DMA_ERR_FIFO.
const (
	g1SizeMarker   = 0xE0
	g1StatusMarker = 0xF0
)

// Status word layout below the marker byte: [23:16] dest, [15:8]
// first-user, [7:2] last-user, bit 1 overflow (free-list exhaustion),
// bit 0 bus error.
const (
	g1StatusDestShift = 16
	g1StatusFUShift   = 8
	g1StatusLUShift   = 2
	g1StatusLUMask    = 0x3f
	g1StatusOverflow  = 1 << 1
	g1StatusBusError  = 1 << 0
)

// G1 realizes the FIFO-port model: RX completions arrive as a
// three-word sequence on a single port, TX completions return bus
// handles on a parallel port, and TX posts write three sequential
// registers.
type G1 struct {
	regs   Registers
	rx     FIFOPort
	txDone FIFOPort

	// writeHwLock serializes every multi-register descriptor post
	// (TX post in SendBuffer, RX post in ReturnRXBuffer) so two
	// subscribers posting concurrently never interleave their
	// {handle,size,control} register writes into a corrupt descriptor.
	writeHwLock internal.SpinMutex
	// commandLock serializes Command against itself; it is a distinct
	// lock from writeHwLock because a command (e.g. adapter ack) is not
	// a descriptor post and must not wait behind, or block, TX/RX posts.
	commandLock internal.SpinMutex
}

// NewG1 constructs a G1 realization over the given register file and
// completion ports. rx and txDone are supplied by bring-up glue, which
// knows how to wire a card's physical FIFOs to the FIFOPort contract.
func NewG1(regs Registers, ports ...FIFOPort) *G1 {
	g := &G1{regs: regs}
	if len(ports) > 0 {
		g.rx = ports[0]
	}
	if len(ports) > 1 {
		g.txDone = ports[1]
	}
	return g
}

// SetPorts wires the RX-completion and TX-completion FIFO ports.
// Bring-up glue calls this once, before Init.
func (g *G1) SetPorts(rx, txDone FIFOPort) {
	g.rx = rx
	g.txDone = txDone
}

func (g *G1) Init(ctx DeviceContext, destMask [4]uint64) error {
	for {
		buf, err := ctx.RXPool().AcquireFree()
		if err != nil {
			break
		}
		if err := g.ReturnRXBuffer(ctx, buf); err != nil {
			ctx.RXPool().Release(buf)
			return err
		}
	}
	return nil
}

func (g *G1) Enable(ctx DeviceContext) error {
	g.regs.WriteReg(g1RegCommand, 1)
	return nil
}

func (g *G1) Clear(ctx DeviceContext) error {
	g.regs.WriteReg(g1RegCommand, 0)
	return nil
}

// IRQ drains the RX-completion port and the TX-completion port until
// each reports empty. It never blocks and always returns, acknowledging
// whatever it processed even on descriptor corruption.
func (g *G1) IRQ(ctx DeviceContext) bool {
	handled := false

	if g.rx != nil {
		for g.drainOneRX(ctx) {
			handled = true
		}
	}
	if g.txDone != nil {
		for g.drainOneTXCompletion(ctx) {
			handled = true
		}
	}
	return handled
}

func (g *G1) drainOneRX(ctx DeviceContext) bool {
	handle, ok := g.rx.Pop()
	if !ok {
		return false
	}
	sizeWord, ok := g.rx.Pop()
	if !ok {
		ctx.Logger().Printf("hwadapter/g1: truncated RX completion, handle=%#x", handle)
		return false
	}
	statusWord, ok := g.rx.Pop()
	if !ok {
		ctx.Logger().Printf("hwadapter/g1: truncated RX completion, handle=%#x", handle)
		return false
	}

	buf := ctx.RXPool().FindByHandle(handle)
	if buf == nil {
		ctx.Logger().Printf("hwadapter/g1: RX completion for unknown handle %#x dropped", handle)
		return true
	}

	var ek errkind.Kind
	size := uint32(sizeWord & 0x00ffffff)
	if (sizeWord>>24)&0xff != g1SizeMarker {
		ek |= errkind.FIFO
		size = 0
	}
	dest := uint8(0)
	if (statusWord>>24)&0xff != g1StatusMarker {
		ek |= errkind.FIFO
	} else {
		dest = uint8(statusWord >> g1StatusDestShift)
		if statusWord&g1StatusOverflow != 0 {
			ek |= errkind.MAX
		}
		if statusWord&g1StatusBusError != 0 {
			ek |= errkind.BUS
		}
	}

	firstUser := uint8(statusWord >> g1StatusFUShift)
	lastUser := uint8((statusWord >> g1StatusLUShift) & g1StatusLUMask)

	if err := ctx.RXPool().Complete(buf); err != nil {
		ctx.Logger().Printf("hwadapter/g1: completion transition failed for buffer %d: %v", buf.Index, err)
		ctx.RXPool().Release(buf)
		return true
	}

	buf.Size = size
	buf.Dest = dest
	buf.Flags = buffer.NewFlags(firstUser, lastUser, false)
	buf.ErrorBits = buffer.Error(ek)
	buf.Count++

	if delivered := ctx.Dispatch(dest, buf); !delivered {
		buf.ForceFree()
		if err := g.ReturnRXBuffer(ctx, buf); err != nil {
			ctx.Logger().Printf("hwadapter/g1: re-arm after undelivered completion failed: %v", err)
		}
	}
	return true
}

// drainOneTXCompletion handles one returned bus handle. A handle
// matching the TX pool releases that buffer to FREE. A handle matching
// the RX pool is re-armed to the RX free-list unconditionally: some
// cards return an unused RX entry through this same port, and this
// behavior is preserved without a guard because it is unclear whether
// it is load-bearing or a firmware quirk being compensated for — do not
// remove without the card vendor confirming it is safe to special-case.
func (g *G1) drainOneTXCompletion(ctx DeviceContext) bool {
	handle, ok := g.txDone.Pop()
	if !ok {
		return false
	}

	if buf := ctx.TXPool().FindByHandle(handle); buf != nil {
		ctx.TXPool().Release(buf)
		return true
	}
	if buf := ctx.RXPool().FindByHandle(handle); buf != nil {
		buf.ForceFree()
		if err := g.ReturnRXBuffer(ctx, buf); err != nil {
			ctx.Logger().Printf("hwadapter/g1: re-arm of RX handle seen on TX-completion port failed: %v", err)
		}
		return true
	}

	ctx.Logger().Printf("hwadapter/g1: TX completion for unknown handle %#x dropped", handle)
	return true
}

func (g *G1) SendBuffer(ctx DeviceContext, buf *buffer.Buffer) error {
	if err := ctx.TXPool().Arm(buf); err != nil {
		return fmt.Errorf("hwadapter/g1: arm buffer %d: %w", buf.Index, err)
	}

	control := uint64(buf.Dest) | uint64(buf.Flags.FirstUser())<<8 | uint64(buf.Flags.LastUser())<<16

	g.writeHwLock.Lock()
	g.regs.WriteReg(g1RegTxHandle, buf.BusAddr)
	g.regs.WriteReg(g1RegTxSize, uint64(buf.Size))
	g.regs.WriteReg(g1RegTxControl, control)
	g.writeHwLock.Unlock()
	return nil
}

func (g *G1) ReturnRXBuffer(ctx DeviceContext, buf *buffer.Buffer) error {
	if err := ctx.RXPool().Arm(buf); err != nil {
		buf.ForceFree()
		ctx.Logger().Printf("hwadapter/g1: re-arm mapping failed for buffer %d, returned to FREE: %v", buf.Index, err)
		return err
	}
	g.writeHwLock.Lock()
	g.regs.WriteReg(g1RegRxHandle, buf.BusAddr)
	g.writeHwLock.Unlock()
	return nil
}

func (g *G1) Command(ctx DeviceContext, code uint32, arg []byte) (int32, error) {
	g.commandLock.Lock()
	defer g.commandLock.Unlock()

	switch code {
	case 0x2001: // adapter ack
		g.regs.WriteReg(g1RegCommand, 2)
		return 0, nil
	default:
		return -1, errkind.Unsupported
	}
}

func (g *G1) SeqShow(ctx DeviceContext, w io.Writer) {
	fmt.Fprintf(w, "adapter: g1 (fifo-port)\n")
}
