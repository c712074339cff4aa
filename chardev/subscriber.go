// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chardev

import (
	"encoding/binary"
	"time"

	"code.hybscloud.com/axisdma/buffer"
	"code.hybscloud.com/axisdma/device"
	"code.hybscloud.com/axisdma/dispatch"
	"code.hybscloud.com/axisdma/errkind"
)

// Subscriber is one open of a device's character-device node: the
// dispatch-level Subscriber (queue, debug flag, claimed mask) plus the
// read/write/ioctl/mmap/poll surface layered on top of it.
type Subscriber struct {
	dev *device.Device
	sub *dispatch.Subscriber
}

// Open opens dev, returning a Subscriber ready for Read/Write/Ioctl.
func Open(dev *device.Device) (*Subscriber, error) {
	sub, err := dev.Open()
	if err != nil {
		return nil, err
	}
	return &Subscriber{dev: dev, sub: sub}, nil
}

// Close releases every destination this subscriber claimed and reclaims
// any buffers still queued to it.
func (s *Subscriber) Close() {
	s.dev.CloseSubscriber(s.sub)
}

// Write posts a TX frame per req. In address mode (req.Data != 0) it
// acquires a TX buffer, copies at most req.Size bytes of payload (and no
// more than the buffer holds), sets Size to the number of bytes copied,
// encodes Dest/Flags, and posts. In index mode (req.Data ==
// 0) it posts the already-populated TX buffer at req.Index verbatim.
// payload is ignored in index mode.
func (s *Subscriber) Write(req WriteRequest, payload []byte) (int32, error) {
	if req.Data != 0 {
		buf, err := s.dev.AcquireTXBuffer()
		if err != nil {
			return 0, err
		}
		n := copy(buf.Mem, payload[:min(len(payload), int(req.Size))])
		buf.Size = uint32(n)
		buf.Dest = uint8(req.Dest)
		buf.Flags = buffer.Flags(req.Flags)
		if err := s.dev.Send(buf); err != nil {
			return 0, err
		}
		return int32(n), nil
	}

	buf := s.dev.TXBufferByIndex(int(req.Index))
	if buf == nil {
		return 0, errkind.InvalidIndex
	}
	if err := s.dev.Send(buf); err != nil {
		return 0, err
	}
	return int32(buf.Size), nil
}

// Read dequeues the next READY buffer, blocking up to timeout
// (timeout<=0 is non-blocking). In address mode (req.Data != 0) it
// copies the payload out and immediately re-arms the buffer. In index
// mode (req.Data == 0) the buffer transitions to HELD and the caller
// must return it through ReturnHeld before it is re-armed.
func (s *Subscriber) Read(req ReadRequest, timeout time.Duration) (ReadRequest, []byte, error) {
	buf, err := s.sub.Queue.Pop(timeout)
	if err != nil {
		return ReadRequest{}, nil, err
	}

	out := req
	out.Dest = uint32(buf.Dest)
	out.Flags = uint32(buf.Flags)
	out.Error = uint32(buf.ErrorBits)
	out.Size = buf.Size

	if req.Data != 0 {
		n := int(buf.Size)
		if n > int(req.Size) {
			n = int(req.Size)
		}
		payload := append([]byte(nil), buf.Mem[:n]...)
		out.Size = uint32(n)
		if err := s.dev.ReturnHeldBuffer(buf); err != nil {
			return out, payload, err
		}
		return out, payload, nil
	}

	out.Index = uint32(buf.Index)
	if err := s.dev.DeliverHeld(buf); err != nil {
		return out, nil, err
	}
	return out, nil, nil
}

// ReturnHeld transitions the HELD buffer at index back to FREE and
// re-arms it, backing CmdReturnHeldIndex and the index-mode read path's
// deferred acknowledgement.
func (s *Subscriber) ReturnHeld(index int) error {
	buf := s.dev.RXBufferByIndex(index)
	if buf == nil {
		return errkind.InvalidIndex
	}
	return s.dev.ReturnHeldBuffer(buf)
}

// Mmap returns a view over the device's TX+RX backing store: buffer k
// starts at byte k times cfgSize rounded up to buffer.PageSize, so it
// occupies bytes [k*cfgSize, (k+1)*cfgSize) when cfgSize is a multiple
// of buffer.PageSize. It aliases the pool's own
// backing array; no real mmap(2) syscall is made, since there is no
// real file descriptor behind this core to map.
func (s *Subscriber) Mmap() []byte {
	return s.dev.Backing()
}

// Poll reports readable when this subscriber's queue is non-empty, and
// writable when at least one TX buffer is FREE.
func (s *Subscriber) Poll() (readable, writable bool) {
	readable = s.sub.Queue.PeekReady() > 0
	writable = s.dev.TXFreeCount() > 0
	return readable, writable
}

// Ioctl dispatches one of the stable numeric commands in §6's table.
// Codes in the 0x2xxx/0x3xxx ranges outside CmdAdapterAck pass through
// verbatim to the adapter's Command hook.
func (s *Subscriber) Ioctl(cmd uint32, arg []byte) (int32, error) {
	switch cmd {
	case CmdGetBufferCount:
		return int32(s.dev.RXCount()), nil

	case CmdGetBufferSize:
		return int32(s.dev.BufferSize()), nil

	case CmdSetDebugLevel:
		if len(arg) < 4 {
			return 0, errkind.InvalidRequest
		}
		s.sub.SetDebug(binary.LittleEndian.Uint32(arg) != 0)
		return 0, nil

	case CmdSetDestMask32:
		if len(arg) < 4 {
			return 0, errkind.InvalidRequest
		}
		mask := dispatch.MaskFromBits32(binary.LittleEndian.Uint32(arg))
		if err := s.dev.SetSubscriberMask(s.sub, mask); err != nil {
			return 0, err
		}
		return 0, nil

	case CmdSetDestMaskWide:
		mask := dispatch.MaskFromBytes(arg)
		if err := s.dev.SetSubscriberMask(s.sub, mask); err != nil {
			return 0, err
		}
		return 0, nil

	case CmdReturnHeldIndex:
		if len(arg) < 4 {
			return 0, errkind.InvalidRequest
		}
		if err := s.ReturnHeld(int(binary.LittleEndian.Uint32(arg))); err != nil {
			return 0, err
		}
		return 0, nil

	case CmdGetFreeTXIndex:
		buf, err := s.dev.AcquireTXBuffer()
		if err != nil {
			return -1, err
		}
		return int32(buf.Index), nil

	case CmdReadReady:
		return int32(s.sub.Queue.PeekReady()), nil

	case CmdBulkReadIndices:
		if len(arg) < 4 {
			return 0, errkind.InvalidRequest
		}
		maxN := int(binary.LittleEndian.Uint32(arg[0:4]))
		bufs := s.sub.Queue.PopBulk(maxN)
		if len(arg) < 4+4*len(bufs) {
			return 0, errkind.InvalidRequest
		}
		for i, buf := range bufs {
			binary.LittleEndian.PutUint32(arg[4+4*i:8+4*i], uint32(buf.Index))
			if err := s.dev.DeliverHeld(buf); err != nil {
				return int32(i), err
			}
		}
		return int32(len(bufs)), nil

	case CmdBulkReturnIndices:
		if len(arg) < 4 {
			return 0, errkind.InvalidRequest
		}
		count := int(binary.LittleEndian.Uint32(arg[0:4]))
		if len(arg) < 4+4*count {
			return 0, errkind.InvalidRequest
		}
		for i := 0; i < count; i++ {
			idx := int(binary.LittleEndian.Uint32(arg[4+4*i : 8+4*i]))
			if err := s.ReturnHeld(idx); err != nil {
				return 0, err
			}
		}
		return 0, nil

	case CmdGetAPIVersion:
		return APIVersion, nil

	case CmdWriteRegister:
		a := DecodeRegisterArg(arg)
		if err := s.dev.WriteRegister(a.Addr, a.Value); err != nil {
			return 0, err
		}
		return 0, nil

	case CmdReadRegister:
		if len(arg) < 12 {
			return 0, errkind.InvalidRequest
		}
		addr := binary.LittleEndian.Uint32(arg[0:4])
		value, err := s.dev.ReadRegister(addr)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint64(arg[4:12], value)
		return 0, nil

	case CmdAdapterAck:
		return s.dev.Command(cmd, arg)

	default:
		return s.dev.Command(cmd, arg)
	}
}
