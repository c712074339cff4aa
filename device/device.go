// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package device ties a buffer pool, a destination table, and a chosen
// hardware adapter realization into the Device type, plus a
// module-scoped registry of bring-up'd devices.
package device

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"

	"code.hybscloud.com/axisdma/buffer"
	"code.hybscloud.com/axisdma/dispatch"
	"code.hybscloud.com/axisdma/errkind"
	"code.hybscloud.com/axisdma/hwadapter"
)

// Device is a singleton per card instance: it owns the buffer pool, the
// destination ownership table, and the chosen adapter realization, and
// dispatches interrupts to subscribers.
type Device struct {
	cfg     Config
	txPool  *buffer.Pool
	rxPool  *buffer.Pool
	table   *dispatch.Table
	adapter hwadapter.Adapter
	regs    hwadapter.Registers
	logger  *log.Logger

	stats Stats

	closed atomic.Bool
}

// New constructs a Device over the given configuration and adapter
// realization (chosen ahead of time by hwadapter.Probe — Device does
// not probe hardware itself, that is bring-up glue's job). destMask
// declares the destinations this card accepts; subscribers may only
// claim destinations within it. cacheSync is forwarded to the buffer
// pools and is only consulted in Streaming mode. A nil logger defaults
// to one writing to stderr.
func New(cfg Config, adapter hwadapter.Adapter, destMask dispatch.Mask, cacheSync buffer.CacheSync, logger *log.Logger) (*Device, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if adapter == nil {
		return nil, fmt.Errorf("device: adapter must not be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "axisdma: ", log.LstdFlags)
	}

	txPool, rxPool := buffer.NewLinkedPair(cfg.Mode, cfg.TxCount, cfg.RxCount, cfg.Size, cacheSync)
	d := &Device{
		cfg:     cfg,
		txPool:  txPool,
		rxPool:  rxPool,
		table:   dispatch.NewTable(destMask),
		adapter: adapter,
		regs:    cfg.Regs,
		logger:  logger,
	}

	if err := adapter.Init(d, [4]uint64(destMask)); err != nil {
		return nil, fmt.Errorf("device: adapter init: %w", err)
	}
	return d, nil
}

// TXPool, RXPool, Logger and Dispatch implement hwadapter.DeviceContext.
func (d *Device) TXPool() *buffer.Pool { return d.txPool }
func (d *Device) RXPool() *buffer.Pool { return d.rxPool }
func (d *Device) Logger() *log.Logger  { return d.logger }

// Dispatch routes a completed RX buffer to dest's subscriber, if any,
// and updates observability counters. It implements
// hwadapter.DeviceContext.Dispatch.
func (d *Device) Dispatch(dest uint8, buf *buffer.Buffer) bool {
	_, delivered := d.table.Dispatch(dest, buf)
	d.stats.recordCompletion(dest, errkind.Kind(buf.ErrorBits), delivered)
	return delivered
}

// Enable transitions the device online.
func (d *Device) Enable() error { return d.adapter.Enable(d) }

// Clear transitions the device offline.
func (d *Device) Clear() error { return d.adapter.Clear(d) }

// IRQ runs the adapter's interrupt-context handler. Bring-up glue calls
// this from the actual IRQ line (or from a poll thread when
// cfg.IrqDis is set); either way it must never block.
func (d *Device) IRQ() bool {
	handled := d.adapter.IRQ(d)
	d.stats.observeFreeCount(d.rxPool.FreeCount())
	return handled
}

// SetSubscriberMask claims or releases destinations for sub, replacing
// its previous claim atomically (all-or-nothing against conflicting
// owners). This backs the set-destination-mask ioctl.
func (d *Device) SetSubscriberMask(sub *dispatch.Subscriber, want dispatch.Mask) error {
	return d.table.SetMask(sub, want)
}

// Open creates a new Subscriber with a receive queue sized to the RX
// pool.
func (d *Device) Open() (*dispatch.Subscriber, error) {
	if d.closed.Load() {
		return nil, errkind.NotAvailable
	}
	return dispatch.NewSubscriber(d.rxPool.Size()), nil
}

// CloseSubscriber releases every destination sub claims and reclaims
// every buffer it had queued, returning each to FREE. The unclaim and
// the queue close happen atomically (dispatch.Table.ReleaseAndClose),
// so a Dispatch racing this close either delivers before the queue
// closes or observes the destination already unclaimed; it can never
// push into a queue this call has already drained.
func (d *Device) CloseSubscriber(sub *dispatch.Subscriber) {
	for _, buf := range d.table.ReleaseAndClose(sub) {
		d.rxPool.Release(buf)
	}
}

// AcquireTXBuffer obtains one FREE TX buffer for a write, or
// iox.ErrWouldBlock if none are free.
func (d *Device) AcquireTXBuffer() (*buffer.Buffer, error) {
	return d.txPool.AcquireFree()
}

// TXBufferByIndex returns the TX buffer with the given index, or nil.
func (d *Device) TXBufferByIndex(index int) *buffer.Buffer {
	return d.txPool.ByIndex(index)
}

// RXBufferByIndex returns the RX buffer with the given index, or nil.
func (d *Device) RXBufferByIndex(index int) *buffer.Buffer {
	return d.rxPool.ByIndex(index)
}

// Send posts buf (already populated: Size, Flags, Dest) to the device.
func (d *Device) Send(buf *buffer.Buffer) error {
	return d.adapter.SendBuffer(d, buf)
}

// ReturnHeldBuffer transitions a HELD RX buffer back to FREE and
// re-arms it to hardware, used by the index-mode return-held-index
// ioctl.
func (d *Device) ReturnHeldBuffer(buf *buffer.Buffer) error {
	buf.ForceFree()
	return d.adapter.ReturnRXBuffer(d, buf)
}

// Command passes an out-of-scope ioctl through to the adapter.
func (d *Device) Command(code uint32, arg []byte) (int32, error) {
	return d.adapter.Command(d, code, arg)
}

// BufferSize returns the configured per-buffer size shared by both
// pools.
func (d *Device) BufferSize() int { return d.cfg.Size }

// RXCount returns the number of RX buffers.
func (d *Device) RXCount() int { return d.rxPool.Size() }

// TXFreeCount returns the number of TX buffers currently FREE.
func (d *Device) TXFreeCount() int { return d.txPool.FreeCount() }

// Backing returns the single contiguous allocation shared by the TX and
// RX pools, used to back a whole-device mmap view: buffer index i
// occupies the same bytes here as buffer i's own Mem slice.
func (d *Device) Backing() []byte { return d.txPool.Backing() }

// DeliverHeld transitions a READY RX buffer to HELD, used by the
// index-mode read path: the buffer stays HELD until the caller returns
// it through ReturnHeldBuffer.
func (d *Device) DeliverHeld(buf *buffer.Buffer) error {
	return d.rxPool.Deliver(buf)
}

// WriteRegister performs a raw register write, for bring-up/debug
// tooling. It fails with errkind.Unsupported if no register handle was
// supplied at construction.
func (d *Device) WriteRegister(addr uint32, value uint64) error {
	if d.regs == nil {
		return errkind.Unsupported
	}
	d.regs.WriteReg(addr, value)
	return nil
}

// ReadRegister performs a raw register read; see WriteRegister.
func (d *Device) ReadRegister(addr uint32) (uint64, error) {
	if d.regs == nil {
		return 0, errkind.Unsupported
	}
	return d.regs.ReadReg(addr), nil
}

// Stats returns a snapshot of the device's observability counters.
func (d *Device) Stats() Snapshot { return d.stats.snapshot() }

// SeqShow writes a diagnostic dump covering the pools, the adapter, and
// the running counters.
func (d *Device) SeqShow(w io.Writer) {
	fmt.Fprintf(w, "axisdma device: tx=%d rx=%d size=%d mode=%v\n", d.cfg.TxCount, d.cfg.RxCount, d.cfg.Size, d.cfg.Mode)
	d.adapter.SeqShow(d, w)
	d.stats.seqShow(w)
}

// Teardown forces every buffer back to FREE and marks the device
// unavailable for new opens. Subscribers must already be closed; any
// buffer they still held is leaked to the caller's responsibility, since
// no Subscriber may hold references past teardown.
func (d *Device) Teardown() {
	d.closed.Store(true)
	for _, buf := range d.txPool.Buffers() {
		buf.ForceFree()
	}
	for _, buf := range d.rxPool.Buffers() {
		buf.ForceFree()
	}
}
