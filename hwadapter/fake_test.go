// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hwadapter_test

import (
	"encoding/binary"
	"sync"
)

// fakeRegisters is an in-memory register file standing in for a mapped
// BAR during tests.
type fakeRegisters struct {
	mu   sync.Mutex
	regs map[uint32]uint64
}

func newFakeRegisters() *fakeRegisters {
	return &fakeRegisters{regs: make(map[uint32]uint64)}
}

func (f *fakeRegisters) ReadReg(addr uint32) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[addr]
}

func (f *fakeRegisters) WriteReg(addr uint32, value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[addr] = value
}

// fakePort is a FIFOPort backed by a plain slice, simulating a card's
// gather/scatter completion port in loopback tests.
type fakePort struct {
	mu    sync.Mutex
	words []uint64
}

func (p *fakePort) push(words ...uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.words = append(p.words, words...)
}

func (p *fakePort) Pop() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.words) == 0 {
		return 0, false
	}
	w := p.words[0]
	p.words = p.words[1:]
	return w, true
}

// putRXEntry writes one little-endian 8-byte G2 RX descriptor entry.
func putRXEntry(entry []byte, status uint8, index int, lastUser, firstUser uint8, size uint32, dest uint8) {
	var raw uint64
	raw |= uint64(status) & 0xf
	raw |= uint64(index&0xfff) << 4
	raw |= uint64(lastUser) << 16
	raw |= uint64(firstUser) << 24
	raw |= uint64(size&0xffffff) << 32
	raw |= uint64(dest) << 56
	binary.LittleEndian.PutUint64(entry, raw)
}
