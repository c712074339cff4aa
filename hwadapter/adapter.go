// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hwadapter

import (
	"io"
	"log"

	"code.hybscloud.com/axisdma/buffer"
)

// Adapter is the seam between the driver core and one card generation.
// Device holds exactly one realization for its lifetime — there is no
// dynamic dispatch once a realization is chosen at bring-up.
type Adapter interface {
	// Init arms the initial RX buffers: G1 primes the free-list FIFO by
	// writing each bus handle to its RX-handle register, G2 posts each
	// buffer index to its RX-free register. destMask is the card's
	// accepted-destination set as given to the Device; neither G1 nor G2
	// reads it or writes it to hardware.
	Init(ctx DeviceContext, destMask [4]uint64) error
	// Enable transitions the device online.
	Enable(ctx DeviceContext) error
	// Clear transitions the device offline.
	Clear(ctx DeviceContext) error
	// IRQ runs in interrupt context: it drains completion sources and
	// dispatches per the destination table, returning whether this
	// device produced the interrupt.
	IRQ(ctx DeviceContext) (handled bool)
	// SendBuffer encodes a descriptor for buf and hands it to the TX
	// ring or port.
	SendBuffer(ctx DeviceContext, buf *buffer.Buffer) error
	// ReturnRXBuffer re-arms a freed RX buffer to hardware.
	ReturnRXBuffer(ctx DeviceContext, buf *buffer.Buffer) error
	// Command runs a device-specific passthrough ioctl (loopback
	// toggle, acknowledge, etc).
	Command(ctx DeviceContext, code uint32, arg []byte) (ret int32, err error)
	// SeqShow writes a diagnostic dump of adapter-internal state.
	SeqShow(ctx DeviceContext, w io.Writer)
}

// DeviceContext is the slice of Device state an Adapter needs: the two
// buffer pools, the receive-dispatch hook, and the logger. hwadapter
// does not import the device package directly — Device depends on
// Adapter, so Adapter cannot depend back on Device.
type DeviceContext interface {
	TXPool() *buffer.Pool
	RXPool() *buffer.Pool
	// Dispatch routes a completed RX buffer to its destination's
	// subscriber, reporting whether one was found and the buffer
	// delivered. The caller (the adapter) is responsible for the
	// buffer's state transition either way.
	Dispatch(dest uint8, buf *buffer.Buffer) (delivered bool)
	// Logger returns the structural-failure logger, never nil.
	Logger() *log.Logger
}

// Registers is the minimal register-level surface bring-up glue
// provides to either generation: named register access, wide enough to
// carry a full bus address in one write. Card-specific BAR mapping and
// IRQ-line wiring live outside this package, per its bring-up boundary.
type Registers interface {
	ReadReg(addr uint32) uint64
	WriteReg(addr uint32, value uint64)
}

// FIFOPort is a single hardware gather/scatter port, as used by the G1
// realization. Pop drains the next available word, reporting false
// once the port has no more buffered data. Words are 64 bits wide so a
// bus handle never has to be truncated to fit a register word.
type FIFOPort interface {
	Pop() (word uint64, ok bool)
}
