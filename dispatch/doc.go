// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatch implements the per-destination subscription table and
// the receive-dispatch rule that routes a completed frame from a single
// hardware RX stream to at-most-one subscribing subscriber per
// destination.
package dispatch
