// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hwadapter

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"

	"code.hybscloud.com/axisdma/buffer"
	"code.hybscloud.com/axisdma/errkind"
	"code.hybscloud.com/axisdma/internal"
)

// G2 register addresses.
const (
	g2RegPostLow  = 0x30 // {continue, buffer index, last-user, first-user}
	g2RegPostHigh = 0x34 // {size, dest}
	g2RegRxFree   = 0x38 // single-word buffer index post
	g2RegAck      = 0x3C // count of handled entries, written at end of IRQ
	g2RegCommand  = 0x40
)

const g2RingEntrySize = 8

// RX descriptor bit layout (64-bit little-endian entry):
// [3:0] low-nibble status, [15:4] buffer index, [23:16] last-user,
// [31:24] first-user, [55:32] size (24 bits), [63:56] destination.
const (
	g2RxStatusMask = 0xf
	g2RxIndexShift = 4
	g2RxIndexMask  = 0xfff
	g2RxLUShift    = 16
	g2RxFUShift    = 24
	g2RxSizeShift  = 32
	g2RxSizeMask   = 0xffffff
	g2RxDestShift  = 56
	g2RxStatusBus  = 1 << 0
	g2RxStatusOver = 1 << 1
)

// TX completion descriptor bit layout: [15:4] buffer index.
const (
	g2TxCompIndexShift = 4
	g2TxCompIndexMask  = 0xfff
)

// TX post word-low layout: {continue, buffer index, last-user,
// first-user}. Word-high layout: {size, dest}.
const (
	g2TxPostIndexShift = 4
	g2TxPostLUShift    = 16
	g2TxPostFUShift    = 24
)

// G2 realizes the descriptor-ring model: two coherently-mapped 8-byte-
// entry rings, a write ring (RX completions, filled by the device) and
// a read ring (TX completions, filled by the device), each consumed by
// advancing a tail index and zeroing consumed slots.
type G2 struct {
	regs Registers

	rxRing []byte
	txRing []byte
	rxTail int
	txTail int
	acked  atomic.Uint64

	// writeHwLock serializes the two-word TX post (SendBuffer) and the
	// single-word RX free post (ReturnRXBuffer) so two subscribers
	// posting concurrently never interleave their register writes.
	writeHwLock internal.SpinMutex
	// commandLock serializes Command against itself, distinct from
	// writeHwLock so a command never waits behind, or blocks, a post.
	commandLock internal.SpinMutex
}

// NewG2 constructs a G2 realization with ring capacities sized by the
// caller (bring-up glue owns the coherent allocation backing the
// rings); SetRings wires the actual memory.
func NewG2(regs Registers) *G2 {
	return &G2{regs: regs}
}

// SetRings wires the RX-completion ring and TX-completion ring. Each
// must be a multiple of 8 bytes. Bring-up glue calls this once, before
// Init.
func (g *G2) SetRings(rxRing, txRing []byte) {
	g.rxRing = rxRing
	g.txRing = txRing
}

func (g *G2) ringEntry(ring []byte, tail int) []byte {
	n := len(ring) / g2RingEntrySize
	off := (tail % n) * g2RingEntrySize
	return ring[off : off+g2RingEntrySize]
}

func (g *G2) Init(ctx DeviceContext, destMask [4]uint64) error {
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

func (g *G2) Enable(ctx DeviceContext) error {
	g.regs.WriteReg(g2RegCommand, 1)
	return nil
}

func (g *G2) Clear(ctx DeviceContext) error {
	g.regs.WriteReg(g2RegCommand, 0)
	return nil
}

// IRQ consumes every non-zero entry at the RX ring's tail (RX
// completions) and the TX ring's tail (TX completions), zeroing each
// slot as it advances, then acknowledges the device with the number of
// entries it handled.
func (g *G2) IRQ(ctx DeviceContext) bool {
	handled := 0

	if g.rxRing != nil {
		for {
			entry := g.ringEntry(g.rxRing, g.rxTail)
			raw := binary.LittleEndian.Uint64(entry)
			if raw == 0 {
				break
			}
			g.handleRXEntry(ctx, raw)
			for i := range entry {
				entry[i] = 0
			}
			g.rxTail++
			handled++
		}
	}
	if g.txRing != nil {
		for {
			entry := g.ringEntry(g.txRing, g.txTail)
			raw := binary.LittleEndian.Uint64(entry)
			if raw == 0 {
				break
			}
			g.handleTXEntry(ctx, raw)
			for i := range entry {
				entry[i] = 0
			}
			g.txTail++
			handled++
		}
	}

	if handled > 0 {
		g.acked.Add(uint64(handled))
		g.regs.WriteReg(g2RegAck, uint64(handled))
	}
	return handled > 0
}

func (g *G2) handleRXEntry(ctx DeviceContext, raw uint64) {
	index := int((raw >> g2RxIndexShift) & g2RxIndexMask)
	buf := ctx.RXPool().ByIndex(index)
	if buf == nil {
		ctx.Logger().Printf("hwadapter/g2: RX completion for unknown index %d dropped", index)
		return
	}

	size := uint32((raw >> g2RxSizeShift) & g2RxSizeMask)
	status := raw & g2RxStatusMask

	var ek errkind.Kind
	if size == 0 {
		ek |= errkind.FIFO
	}
	if status&g2RxStatusBus != 0 {
		ek |= errkind.BUS
	}
	if status&g2RxStatusOver != 0 {
		ek |= errkind.MAX
	}

	dest := uint8(raw >> g2RxDestShift)
	firstUser := uint8(raw >> g2RxFUShift)
	lastUser := uint8(raw >> g2RxLUShift)

	if err := ctx.RXPool().Complete(buf); err != nil {
		ctx.Logger().Printf("hwadapter/g2: completion transition failed for buffer %d: %v", buf.Index, err)
		ctx.RXPool().Release(buf)
		return
	}

	buf.Size = size
	buf.Dest = dest
	buf.Flags = buffer.NewFlags(firstUser, lastUser, false)
	buf.ErrorBits = buffer.Error(ek)
	buf.Count++

	if delivered := ctx.Dispatch(dest, buf); !delivered {
		buf.ForceFree()
		if err := g.ReturnRXBuffer(ctx, buf); err != nil {
			ctx.Logger().Printf("hwadapter/g2: re-arm after undelivered completion failed: %v", err)
		}
	}
}

func (g *G2) handleTXEntry(ctx DeviceContext, raw uint64) {
	index := int((raw >> g2TxCompIndexShift) & g2TxCompIndexMask)
	buf := ctx.TXPool().ByIndex(index)
	if buf == nil {
		ctx.Logger().Printf("hwadapter/g2: TX completion for unknown index %d dropped", index)
		return
	}
	ctx.TXPool().Release(buf)
}

func (g *G2) SendBuffer(ctx DeviceContext, buf *buffer.Buffer) error {
	if err := ctx.TXPool().Arm(buf); err != nil {
		return fmt.Errorf("hwadapter/g2: arm buffer %d: %w", buf.Index, err)
	}

	cont := uint32(0)
	if buf.Flags.Continuation() {
		cont = 1
	}
	low := uint32(buf.Index)<<g2TxPostIndexShift | uint32(buf.Flags.LastUser())<<g2TxPostLUShift | uint32(buf.Flags.FirstUser())<<g2TxPostFUShift | cont
	high := buf.Size | uint32(buf.Dest)<<24

	g.writeHwLock.Lock()
	g.regs.WriteReg(g2RegPostLow, uint64(low))
	g.regs.WriteReg(g2RegPostHigh, uint64(high))
	g.writeHwLock.Unlock()
	return nil
}

func (g *G2) ReturnRXBuffer(ctx DeviceContext, buf *buffer.Buffer) error {
	if err := ctx.RXPool().Arm(buf); err != nil {
		buf.ForceFree()
		ctx.Logger().Printf("hwadapter/g2: re-arm mapping failed for buffer %d, returned to FREE: %v", buf.Index, err)
		return err
	}
	g.writeHwLock.Lock()
	g.regs.WriteReg(g2RegRxFree, uint64(buf.Index))
	g.writeHwLock.Unlock()
	return nil
}

func (g *G2) Command(ctx DeviceContext, code uint32, arg []byte) (int32, error) {
	g.commandLock.Lock()
	defer g.commandLock.Unlock()

	switch code {
	case 0x2001: // adapter ack
		g.regs.WriteReg(g2RegCommand, 2)
		return 0, nil
	default:
		return -1, errkind.Unsupported
	}
}

func (g *G2) SeqShow(ctx DeviceContext, w io.Writer) {
	fmt.Fprintf(w, "adapter: g2 (descriptor-ring), rxTail=%d txTail=%d acked=%d\n", g.rxTail, g.txTail, g.acked.Load())
}
