// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hwadapter defines the eight-operation contract between the
// driver core and a card generation, and provides the G1 (FIFO-port)
// and G2 (descriptor-ring) realizations plus generation probing.
package hwadapter
