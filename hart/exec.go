package hart

import (
	"math/bits"

	"github.com/sarchlab/r5sim/insts"
)

// execute dispatches one decoded instruction to its semantic handler.
// Handlers latch traps via raise* and must not commit destination
// writes after latching.
func (h *Hart) execute(inst insts.Instruction) {
	op := inst.Op

	// With an expected landing pad armed, only LPAD may execute.
	if h.elp && op != insts.OpLPAD && h.lpEnabled() {
		h.raise(CauseSwCheck, 2)
		return
	}

	switch {
	case op == insts.OpUnknown:
		h.raiseIllegal(inst.Raw)
	case inst.IsBranch():
		h.execBranch(inst)
	case op == insts.OpJAL || op == insts.OpJALR:
		h.execJump(inst)
	case op >= insts.OpLB && op <= insts.OpSD:
		h.execLoadStore(inst)
	case op == insts.OpFENCE:
		// Memory ordering is trivially satisfied single-threaded.
	case op == insts.OpFENCEI:
		h.dcache.InvalidateAll()
	case op == insts.OpECALL:
		h.execEcall()
	case op == insts.OpEBREAK:
		h.execEbreak(inst)
	case op >= insts.OpLUI && op <= insts.OpSRAW:
		h.execAlu(inst)
	case op >= insts.OpMUL && op <= insts.OpREMUW:
		h.execMul(inst)
	case op >= insts.OpLRW && op <= insts.OpAMOCASD:
		h.execAtomic(inst)
	case op >= insts.OpCSRRW && op <= insts.OpCSRRCI:
		h.execCsrOp(inst)
	case op == insts.OpMRET:
		h.execMret(inst)
	case op == insts.OpSRET:
		h.execSret(inst)
	case op == insts.OpMNRET:
		h.execMnret(inst)
	case op == insts.OpDRET:
		h.execDret()
	case op == insts.OpWFI:
		h.execWfi(inst)
	case op >= insts.OpSFENCEVMA && op <= insts.OpHINVALGVMA:
		h.execFenceVma(inst)
	case op >= insts.OpHLVB && op <= insts.OpHSVD:
		h.execHlvHsv(inst)
	case op >= insts.OpCBOCLEAN && op <= insts.OpPREFETCHW:
		h.execCbo(inst)
	case op == insts.OpWRSNTO || op == insts.OpWRSSTO:
		h.execWrs(inst)
	case op == insts.OpCZEROEQZ || op == insts.OpCZERONEZ:
		h.execCzero(inst)
	case op >= insts.OpSH1ADD && op <= insts.OpREV8:
		h.execBitmanip(inst)
	case op == insts.OpMOPR || op == insts.OpMOPRR || op == insts.OpCMOP:
		h.execMop(inst)
	case op == insts.OpLPAD:
		h.execLpad(inst)
	case op >= insts.OpFLW && op <= insts.OpFNMADDD:
		h.execFp(inst)
	case op >= insts.OpVSETVLI && op <= insts.OpVMVVI:
		h.execVector(inst)
	default:
		h.raiseIllegal(inst.Raw)
	}
}

func sext32(v uint64) uint64 {
	return uint64(int64(int32(uint32(v))))
}

// signed returns the register value as a signed number of the hart's
// width.
func (h *Hart) signed(v uint64) int64 {
	if h.rv64() {
		return int64(v)
	}
	return int64(int32(uint32(v)))
}

func (h *Hart) shamtMask() uint64 {
	if h.rv64() {
		return 63
	}
	return 31
}

func boolTo64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (h *Hart) execAlu(inst insts.Instruction) {
	rs1 := h.IntReg(int(inst.Rs1))
	rs2 := h.IntReg(int(inst.Rs2))
	imm := uint64(inst.Imm)
	var v uint64

	switch inst.Op {
	case insts.OpLUI:
		v = imm
	case insts.OpAUIPC:
		v = h.currPc + imm
	case insts.OpADDI:
		// The snapshot hint: addi x0, x31, 0 with bit 0 of x31's low
		// 20 bits set requests a run snapshot and does not retire.
		if inst.Rd == 0 && inst.Rs1 == 31 && inst.Imm == 0 &&
			h.IntReg(31)&1 == 1 {
			h.stopEvent = &StopEvent{Kind: StopSnapshot,
				Payload: h.IntReg(31) & 0xFFFFF}
			return
		}
		v = rs1 + imm
	case insts.OpSLTI:
		v = boolTo64(h.signed(rs1) < int64(imm))
	case insts.OpSLTIU:
		v = boolTo64(rs1 < imm&h.xlenMask)
	case insts.OpXORI:
		v = rs1 ^ imm
	case insts.OpORI:
		v = rs1 | imm
	case insts.OpANDI:
		v = rs1 & imm
	case insts.OpSLLI:
		v = rs1 << (imm & h.shamtMask())
	case insts.OpSRLI:
		v = rs1 >> (imm & h.shamtMask())
	case insts.OpSRAI:
		v = uint64(h.signed(rs1) >> (imm & h.shamtMask()))
	case insts.OpADD:
		v = rs1 + rs2
	case insts.OpSUB:
		v = rs1 - rs2
	case insts.OpSLL:
		v = rs1 << (rs2 & h.shamtMask())
	case insts.OpSLT:
		v = boolTo64(h.signed(rs1) < h.signed(rs2))
	case insts.OpSLTU:
		v = boolTo64(rs1 < rs2)
	case insts.OpXOR:
		v = rs1 ^ rs2
	case insts.OpSRL:
		v = rs1 >> (rs2 & h.shamtMask())
	case insts.OpSRA:
		v = uint64(h.signed(rs1) >> (rs2 & h.shamtMask()))
	case insts.OpOR:
		v = rs1 | rs2
	case insts.OpAND:
		v = rs1 & rs2
	case insts.OpADDIW:
		v = sext32(rs1 + imm)
	case insts.OpSLLIW:
		v = sext32(rs1 << (imm & 31))
	case insts.OpSRLIW:
		v = sext32(uint64(uint32(rs1)) >> (imm & 31))
	case insts.OpSRAIW:
		v = uint64(int64(int32(uint32(rs1)) >> (imm & 31)))
	case insts.OpADDW:
		v = sext32(rs1 + rs2)
	case insts.OpSUBW:
		v = sext32(rs1 - rs2)
	case insts.OpSLLW:
		v = sext32(rs1 << (rs2 & 31))
	case insts.OpSRLW:
		v = sext32(uint64(uint32(rs1)) >> (rs2 & 31))
	case insts.OpSRAW:
		v = uint64(int64(int32(uint32(rs1)) >> (rs2 & 31)))
	default:
		h.raiseIllegal(inst.Raw)
		return
	}
	h.SetIntReg(int(inst.Rd), v)
}

func (h *Hart) execBranch(inst insts.Instruction) {
	rs1 := h.IntReg(int(inst.Rs1))
	rs2 := h.IntReg(int(inst.Rs2))
	var taken bool
	switch inst.Op {
	case insts.OpBEQ:
		taken = rs1 == rs2
	case insts.OpBNE:
		taken = rs1 != rs2
	case insts.OpBLT:
		taken = h.signed(rs1) < h.signed(rs2)
	case insts.OpBGE:
		taken = h.signed(rs1) >= h.signed(rs2)
	case insts.OpBLTU:
		taken = rs1 < rs2
	case insts.OpBGEU:
		taken = rs1 >= rs2
	}
	if !taken {
		return
	}
	target := (h.currPc + uint64(inst.Imm)) & h.xlenMask
	if target%h.instAlign() != 0 {
		h.raise(CauseInstAddrMisal, target)
		return
	}
	h.pc = target
}

func (h *Hart) execJump(inst insts.Instruction) {
	var target uint64
	if inst.Op == insts.OpJAL {
		target = (h.currPc + uint64(inst.Imm)) & h.xlenMask
	} else {
		target = (h.IntReg(int(inst.Rs1)) + uint64(inst.Imm)) &
			h.xlenMask &^ 1
	}
	if target%h.instAlign() != 0 {
		h.raise(CauseInstAddrMisal, target)
		return
	}
	link := h.pc
	h.pc = target
	h.SetIntReg(int(inst.Rd), link)
	if inst.Op == insts.OpJALR {
		h.setElpForIndirect(inst)
	}
}

func (h *Hart) execMul(inst insts.Instruction) {
	rs1 := h.IntReg(int(inst.Rs1))
	rs2 := h.IntReg(int(inst.Rs2))
	var v uint64
	switch inst.Op {
	case insts.OpMUL:
		v = rs1 * rs2
	case insts.OpMULH:
		if h.rv64() {
			v = mulhS(int64(rs1), int64(rs2))
		} else {
			v = uint64(int64(int32(rs1))*int64(int32(rs2))) >> 32
		}
	case insts.OpMULHSU:
		if h.rv64() {
			v = mulhSU(int64(rs1), rs2)
		} else {
			v = uint64(int64(int32(rs1))*int64(uint32(rs2))) >> 32
		}
	case insts.OpMULHU:
		if h.rv64() {
			v, _ = bits.Mul64(rs1, rs2)
		} else {
			v = rs1 * rs2 >> 32
		}
	case insts.OpDIV:
		v = divS(h.signed(rs1), h.signed(rs2), h.rv64())
	case insts.OpDIVU:
		v = divU(rs1, rs2)
	case insts.OpREM:
		v = remS(h.signed(rs1), h.signed(rs2))
	case insts.OpREMU:
		v = remU(rs1, rs2)
	case insts.OpMULW:
		v = sext32(rs1 * rs2)
	case insts.OpDIVW:
		v = sext32(divS(int64(int32(rs1)), int64(int32(rs2)), false))
	case insts.OpDIVUW:
		v = sext32(divU(uint64(uint32(rs1)), uint64(uint32(rs2))))
	case insts.OpREMW:
		v = sext32(remS(int64(int32(rs1)), int64(int32(rs2))))
	case insts.OpREMUW:
		v = sext32(remU(uint64(uint32(rs1)), uint64(uint32(rs2))))
	}
	h.SetIntReg(int(inst.Rd), v)
}

// mulhS is the high 64 bits of a signed 128-bit product.
func mulhS(a, b int64) uint64 {
	hi, lo := bits.Mul64(absU(a), absU(b))
	if (a < 0) != (b < 0) {
		hi = ^hi
		if lo == 0 {
			hi++
		}
	}
	return hi
}

// mulhSU is the high 64 bits of signed * unsigned.
func mulhSU(a int64, b uint64) uint64 {
	hi, lo := bits.Mul64(absU(a), b)
	if a < 0 {
		hi = ^hi
		if lo == 0 {
			hi++
		}
	}
	return hi
}

func absU(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

func divS(a, b int64, rv64 bool) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	min := int64(-1) << 63
	if !rv64 {
		min = int64(int32(-1) << 31)
	}
	if a == min && b == -1 {
		return uint64(a)
	}
	return uint64(a / b)
}

func divU(a, b uint64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	return a / b
}

func remS(a, b int64) uint64 {
	if b == 0 {
		return uint64(a)
	}
	if b == -1 {
		return 0
	}
	return uint64(a % b)
}

func remU(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return a % b
}

func (h *Hart) execCzero(inst insts.Instruction) {
	rs1 := h.IntReg(int(inst.Rs1))
	rs2 := h.IntReg(int(inst.Rs2))
	v := rs1
	if (inst.Op == insts.OpCZEROEQZ) == (rs2 == 0) {
		v = 0
	}
	h.SetIntReg(int(inst.Rd), v)
}

func (h *Hart) execBitmanip(inst insts.Instruction) {
	rs1 := h.IntReg(int(inst.Rs1))
	rs2 := h.IntReg(int(inst.Rs2))
	imm := uint64(inst.Imm)
	var v uint64
	switch inst.Op {
	case insts.OpSH1ADD:
		v = rs1<<1 + rs2
	case insts.OpSH2ADD:
		v = rs1<<2 + rs2
	case insts.OpSH3ADD:
		v = rs1<<3 + rs2
	case insts.OpADDUW:
		v = uint64(uint32(rs1)) + rs2
	case insts.OpSH1ADDUW:
		v = uint64(uint32(rs1))<<1 + rs2
	case insts.OpSH2ADDUW:
		v = uint64(uint32(rs1))<<2 + rs2
	case insts.OpSH3ADDUW:
		v = uint64(uint32(rs1))<<3 + rs2
	case insts.OpSLLIUW:
		v = uint64(uint32(rs1)) << (imm & 63)
	case insts.OpANDN:
		v = rs1 &^ rs2
	case insts.OpORN:
		v = rs1 | ^rs2
	case insts.OpXNOR:
		v = ^(rs1 ^ rs2)
	case insts.OpCLZ:
		if h.rv64() {
			v = uint64(bits.LeadingZeros64(rs1))
		} else {
			v = uint64(bits.LeadingZeros32(uint32(rs1)))
		}
	case insts.OpCTZ:
		if h.rv64() {
			v = uint64(bits.TrailingZeros64(rs1))
		} else {
			v = uint64(bits.TrailingZeros32(uint32(rs1)))
		}
	case insts.OpCPOP:
		if h.rv64() {
			v = uint64(bits.OnesCount64(rs1))
		} else {
			v = uint64(bits.OnesCount32(uint32(rs1)))
		}
	case insts.OpCLZW:
		v = uint64(bits.LeadingZeros32(uint32(rs1)))
	case insts.OpCTZW:
		v = uint64(bits.TrailingZeros32(uint32(rs1)))
	case insts.OpCPOPW:
		v = uint64(bits.OnesCount32(uint32(rs1)))
	case insts.OpMIN:
		v = rs1
		if h.signed(rs2) < h.signed(rs1) {
			v = rs2
		}
	case insts.OpMINU:
		v = rs1
		if rs2 < rs1 {
			v = rs2
		}
	case insts.OpMAX:
		v = rs1
		if h.signed(rs2) > h.signed(rs1) {
			v = rs2
		}
	case insts.OpMAXU:
		v = rs1
		if rs2 > rs1 {
			v = rs2
		}
	case insts.OpSEXTB:
		v = uint64(int64(int8(uint8(rs1))))
	case insts.OpSEXTH:
		v = uint64(int64(int16(uint16(rs1))))
	case insts.OpZEXTH:
		v = uint64(uint16(rs1))
	case insts.OpROL:
		if h.rv64() {
			v = bits.RotateLeft64(rs1, int(rs2&63))
		} else {
			v = uint64(bits.RotateLeft32(uint32(rs1), int(rs2&31)))
		}
	case insts.OpROR:
		if h.rv64() {
			v = bits.RotateLeft64(rs1, -int(rs2&63))
		} else {
			v = uint64(bits.RotateLeft32(uint32(rs1), -int(rs2&31)))
		}
	case insts.OpRORI:
		if h.rv64() {
			v = bits.RotateLeft64(rs1, -int(imm&63))
		} else {
			v = uint64(bits.RotateLeft32(uint32(rs1), -int(imm&31)))
		}
	case insts.OpROLW:
		v = sext32(uint64(bits.RotateLeft32(uint32(rs1), int(rs2&31))))
	case insts.OpRORW:
		v = sext32(uint64(bits.RotateLeft32(uint32(rs1), -int(rs2&31))))
	case insts.OpRORIW:
		v = sext32(uint64(bits.RotateLeft32(uint32(rs1), -int(imm&31))))
	case insts.OpORCB:
		for i := 0; i < 8; i++ {
			if rs1>>(8*uint(i))&0xFF != 0 {
				v |= 0xFF << (8 * uint(i))
			}
		}
	case insts.OpREV8:
		if h.rv64() {
			v = bits.ReverseBytes64(rs1)
		} else {
			v = uint64(bits.ReverseBytes32(uint32(rs1)))
		}
	}
	h.SetIntReg(int(inst.Rd), v)
}

// execMop implements the Zimop/Zcmop may-be-operations: MOP.R and
// MOP.RR write zero, C.MOP is a nop.
func (h *Hart) execMop(inst insts.Instruction) {
	switch inst.Op {
	case insts.OpMOPR, insts.OpMOPRR:
		h.SetIntReg(int(inst.Rd), 0)
	}
}
