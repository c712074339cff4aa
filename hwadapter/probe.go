// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hwadapter

import "fmt"

// Shared register addresses every generation exposes for bring-up
// probing. Per-generation operational registers live in g1.go/g2.go.
const (
	RegIdent   = 0x00 // top byte carries the generation number
	RegScratch = 0x04 // read back to confirm a G1 card is present
)

const g1ScratchMagic = 0x47314731 // ASCII "G1G1", written by G1 firmware at reset

// Probe reads the top byte of the identification register to select a
// generation: a value of 2 or above selects G2; otherwise the scratch
// register is read back to confirm a G1 card is actually present
// rather than an absent/misidentified device.
func Probe(regs Registers) (Adapter, error) {
	ident := regs.ReadReg(RegIdent)
	gen := byte(ident >> 24)

	if gen >= 2 {
		return NewG2(regs), nil
	}
	if regs.ReadReg(RegScratch) != g1ScratchMagic {
		return nil, fmt.Errorf("hwadapter: no recognized card generation (ident=%#08x)", ident)
	}
	return NewG1(regs), nil
}
