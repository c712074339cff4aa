// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chardev

import (
	"encoding/binary"
	"fmt"
)

// RecordSize is the fixed, packed wire size of a WriteRequest or
// ReadRequest: 8-byte Data, then six 4-byte fields, laid out with
// encoding/binary so the byte layout never depends on host word size or
// compiler struct padding.
const RecordSize = 8 + 4*6

// WriteRequest is the write-side wire record. When Data is nonzero the
// caller wants address mode: copy Size bytes from the address Data
// names, encode Dest/Flags, and post a freshly-acquired TX buffer. When
// Data is zero, Index names an already-populated TX buffer to post
// as-is (index mode).
type WriteRequest struct {
	Data  uint64
	Dest  uint32
	Flags uint32
	Index uint32
	Size  uint32
	Is32  uint32
	Pad   uint32
}

// ReadRequest is the read-side wire record, same shape as WriteRequest.
// When Data is nonzero the caller wants address mode: the next READY
// payload is copied to Data up to Size, and Dest/Flags/Error/Size are
// filled in before the buffer is immediately re-armed. When Data is
// zero, Index receives the READY buffer's index and the buffer stays
// HELD until returned through the index-return ioctl.
type ReadRequest struct {
	Data  uint64
	Dest  uint32
	Flags uint32
	Index uint32
	Size  uint32
	Error uint32
	Pad   uint32
}

// Encode writes r's packed wire layout to buf, which must be at least
// RecordSize bytes.
func (r WriteRequest) Encode(buf []byte) error {
	if len(buf) < RecordSize {
		return fmt.Errorf("chardev: WriteRequest.Encode: buffer too short (%d < %d)", len(buf), RecordSize)
	}
	binary.LittleEndian.PutUint64(buf[0:8], r.Data)
	binary.LittleEndian.PutUint32(buf[8:12], r.Dest)
	binary.LittleEndian.PutUint32(buf[12:16], r.Flags)
	binary.LittleEndian.PutUint32(buf[16:20], r.Index)
	binary.LittleEndian.PutUint32(buf[20:24], r.Size)
	binary.LittleEndian.PutUint32(buf[24:28], r.Is32)
	binary.LittleEndian.PutUint32(buf[28:32], r.Pad)
	return nil
}

// DecodeWriteRequest parses a packed WriteRequest from buf.
func DecodeWriteRequest(buf []byte) (WriteRequest, error) {
	if len(buf) < RecordSize {
		return WriteRequest{}, fmt.Errorf("chardev: DecodeWriteRequest: buffer too short (%d < %d)", len(buf), RecordSize)
	}
	return WriteRequest{
		Data:  binary.LittleEndian.Uint64(buf[0:8]),
		Dest:  binary.LittleEndian.Uint32(buf[8:12]),
		Flags: binary.LittleEndian.Uint32(buf[12:16]),
		Index: binary.LittleEndian.Uint32(buf[16:20]),
		Size:  binary.LittleEndian.Uint32(buf[20:24]),
		Is32:  binary.LittleEndian.Uint32(buf[24:28]),
		Pad:   binary.LittleEndian.Uint32(buf[28:32]),
	}, nil
}

// Encode writes r's packed wire layout to buf, which must be at least
// RecordSize bytes.
func (r ReadRequest) Encode(buf []byte) error {
	if len(buf) < RecordSize {
		return fmt.Errorf("chardev: ReadRequest.Encode: buffer too short (%d < %d)", len(buf), RecordSize)
	}
	binary.LittleEndian.PutUint64(buf[0:8], r.Data)
	binary.LittleEndian.PutUint32(buf[8:12], r.Dest)
	binary.LittleEndian.PutUint32(buf[12:16], r.Flags)
	binary.LittleEndian.PutUint32(buf[16:20], r.Index)
	binary.LittleEndian.PutUint32(buf[20:24], r.Size)
	binary.LittleEndian.PutUint32(buf[24:28], r.Error)
	binary.LittleEndian.PutUint32(buf[28:32], r.Pad)
	return nil
}

// DecodeReadRequest parses a packed ReadRequest from buf.
func DecodeReadRequest(buf []byte) (ReadRequest, error) {
	if len(buf) < RecordSize {
		return ReadRequest{}, fmt.Errorf("chardev: DecodeReadRequest: buffer too short (%d < %d)", len(buf), RecordSize)
	}
	return ReadRequest{
		Data:  binary.LittleEndian.Uint64(buf[0:8]),
		Dest:  binary.LittleEndian.Uint32(buf[8:12]),
		Flags: binary.LittleEndian.Uint32(buf[12:16]),
		Index: binary.LittleEndian.Uint32(buf[16:20]),
		Size:  binary.LittleEndian.Uint32(buf[20:24]),
		Error: binary.LittleEndian.Uint32(buf[24:28]),
		Pad:   binary.LittleEndian.Uint32(buf[28:32]),
	}, nil
}
