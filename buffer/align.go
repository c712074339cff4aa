// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buffer

import (
	"unsafe"

	"code.hybscloud.com/axisdma/internal"
)

// PageSize is the page size used to align buffer backing memory for DMA
// and mmap purposes.
var PageSize uintptr = 4096

// CacheLineSize is the CPU L1 cache line size for the current
// architecture. Pool allocation does not use it: adjacent buffers are
// already separated by a whole-page stride.
const CacheLineSize = internal.CacheLineSize

// alignedBlocks returns n align-aligned byte slices of blockSize bytes
// each, carved out of one contiguous backing allocation. The returned
// backing starts at block 0, and block k starts at byte k*stride, where
// stride is blockSize rounded up to align; when blockSize is a multiple
// of align this is mmap's "buffer k occupies bytes [k*cfgSize,
// (k+1)*cfgSize)" layout over the whole pool.
func alignedBlocks(n int, blockSize int, align uintptr) (backing []byte, blocks [][]byte) {
	if n < 1 {
		panic("buffer: block count must be >= 1")
	}

	stride := (uintptr(blockSize) + align - 1) / align * align
	total := int(stride)*n + int(align) - 1

	backing = make([]byte, total)
	base := unsafe.Pointer(unsafe.SliceData(backing))
	offset := ((uintptr(base)+align-1)/align)*align - uintptr(base)

	blocks = make([][]byte, n)
	for i := 0; i < n; i++ {
		blocks[i] = unsafe.Slice((*byte)(unsafe.Add(base, offset+uintptr(i)*stride)), blockSize)
	}

	return backing[offset:], blocks
}
