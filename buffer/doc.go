// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package buffer implements the DMA buffer pool and its ownership state
// machine: a fixed set of buffers shared between a CPU-visible free-list
// and device-visible hardware rings.
//
// A buffer moves through four states during its life: FREE (on a pool
// free-list), ARMED (handed to the device, exclusive device access),
// READY (completed by the device, queued for a subscriber) and HELD
// (delivered to a subscriber, exclusive subscriber access). Only the
// legal transitions named by the state machine are permitted; Arm,
// Complete and Deliver return an error and leave the state unchanged
// when the buffer is not in the expected source state.
package buffer
