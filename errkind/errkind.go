// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package errkind holds the stable per-frame error bitset and the
// string error codes returned across the ioctl/read/write boundary.
package errkind

// Kind is the stable, wire-visible bitset carried in Buffer.ErrorBits.
type Kind uint8

const (
	// FIFO marks descriptor framing/corruption from the device side:
	// a missing marker byte, or a zero-size frame with a status bit set.
	FIFO Kind = 1 << iota
	// LEN marks a received frame larger than the configured buffer size.
	LEN
	// MAX marks free-list exhaustion observed on the device as an
	// overflow status bit.
	MAX
	// BUS marks a host-bus write error reported by the device.
	BUS
	// EOFE marks a card-specific end-of-frame error carried in
	// descriptor status.
	EOFE
)

func (k Kind) String() string {
	if k == 0 {
		return "none"
	}
	var names []byte
	add := func(bit Kind, name string) {
		if k&bit == 0 {
			return
		}
		if len(names) > 0 {
			names = append(names, '|')
		}
		names = append(names, name...)
	}
	add(FIFO, "FIFO")
	add(LEN, "LEN")
	add(MAX, "MAX")
	add(BUS, "BUS")
	add(EOFE, "EOFE")
	return string(names)
}

// Has reports whether bit is set in k.
func (k Kind) Has(bit Kind) bool { return k&bit != 0 }

// Code is a stable, bus-facing error identifier returned from ioctl,
// read, and write on structural (not per-frame) failure. It is a
// string newtype, comparable and allocation-free, implementing error.
type Code string

func (c Code) Error() string { return string(c) }

const (
	OK                 Code = "ok"
	DestinationClaimed Code = "destination_claimed"
	DestinationDenied  Code = "destination_denied"
	InvalidIndex       Code = "invalid_index"
	InvalidRequest     Code = "invalid_request"
	NotAvailable       Code = "not_available"
	Unsupported        Code = "unsupported"
	WouldBlock         Code = "would_block"
	Error              Code = "error"
)

// Of extracts a Code from an error, defaulting to Error. A nil err maps
// to OK.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
