// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package queue implements the bounded, single-producer/multi-waiter
// FIFO that carries completed buffers from device-interrupt context to
// subscriber (read/poll) context.
//
// The transport is a buffered Go channel sized to the RX pool, a typed
// message channel per subscriber in place of a hand-rolled
// lock-and-condvar queue. A second, small channel provides the
// edge-coalesced (fires once per empty->non-empty transition)
// async-notify signal a registered subscriber observes.
package queue
