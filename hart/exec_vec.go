package hart

import (
	"github.com/sarchlab/r5sim/insts"
)

// vtype fields.
const (
	vtypeVill = uint64(1) << 63
	vtypeSew  = 0x7 << 3
	vtypeLmul = 0x7
)

func (h *Hart) setVsDirty() {
	h.mstatus |= MstatusVs | MstatusSd
	h.csr.SetRaw(CsrMstatus, h.mstatus)
	if h.virt {
		h.vsstatus |= MstatusVs | MstatusSd
		h.csr.SetRaw(CsrVsstatus, h.vsstatus)
	}
}

// sewBytes returns the element width selected by vtype, or 0 when the
// encoding is unsupported.
func (h *Hart) sewBytes() int {
	sew := h.vtype >> 3 & 0x7
	if sew > 3 {
		return 0
	}
	return 1 << sew
}

// vlmax is the element capacity of a register group under the current
// vtype. Only integral LMUL values are supported; fractional encodings
// make the configuration invalid.
func (h *Hart) vlmax() uint64 {
	sew := h.sewBytes()
	if sew == 0 {
		return 0
	}
	lmul := h.vtype & vtypeLmul
	if lmul > 3 {
		return 0
	}
	return uint64(h.vlenb) / uint64(sew) << lmul
}

func (h *Hart) execVector(inst insts.Instruction) {
	if !h.vecEnabled() {
		h.raiseIllegal(inst.Raw)
		return
	}
	switch inst.Op {
	case insts.OpVSETVLI, insts.OpVSETIVLI, insts.OpVSETVL:
		h.execVset(inst)
	case insts.OpVLE:
		h.execVle(inst)
	case insts.OpVSE:
		h.execVse(inst)
	default:
		h.execVecAlu(inst)
	}
}

func (h *Hart) execVset(inst insts.Instruction) {
	var newType, avl uint64
	switch inst.Op {
	case insts.OpVSETVLI:
		newType = uint64(inst.Imm)
		avl = h.vsetAvl(inst)
	case insts.OpVSETIVLI:
		newType = uint64(inst.Imm)
		avl = uint64(inst.Rs1)
	default:
		newType = h.IntReg(int(inst.Rs2))
		avl = h.vsetAvl(inst)
	}

	h.vtype = newType
	max := h.vlmax()
	if max == 0 || newType&vtypeVill != 0 ||
		newType&^(vtypeVill|vtypeSew|vtypeLmul) != 0 {
		h.vtype = vtypeVill
		h.vl = 0
		h.SetIntReg(int(inst.Rd), 0)
		h.setVsDirty()
		return
	}

	if avl > max {
		avl = max
	}
	h.vl = avl
	h.SetIntReg(int(inst.Rd), avl)
	h.setVsDirty()
}

// vsetAvl applies the rd/rs1 convention: rs1 gives the AVL, rs1=x0
// with rd!=x0 asks for VLMAX, and x0/x0 keeps the current vl.
func (h *Hart) vsetAvl(inst insts.Instruction) uint64 {
	if inst.Rs1 != 0 {
		return h.IntReg(int(inst.Rs1))
	}
	if inst.Rd != 0 {
		return ^uint64(0)
	}
	return h.vl
}

func (h *Hart) vecConfigOk(inst insts.Instruction, sew int) bool {
	if h.vtype&vtypeVill != 0 || sew == 0 {
		h.raiseIllegal(inst.Raw)
		return false
	}
	return true
}

// maskBit reads element i of the v0 mask register.
func (h *Hart) maskBit(i uint64) bool {
	return h.v[i/8]>>(i%8)&1 != 0
}

func (h *Hart) vecElem(reg int, i uint64, sew int) uint64 {
	base := uint64(reg*h.vlenb) + i*uint64(sew)
	return composeBytes(h.v[base:base+uint64(sew)], false)
}

func (h *Hart) setVecElem(reg int, i uint64, sew int, v uint64) {
	base := uint64(reg*h.vlenb) + i*uint64(sew)
	copy(h.v[base:base+uint64(sew)], decomposeBytes(v, sew, false))
}

func (h *Hart) execVle(inst insts.Instruction) {
	sew := int(inst.VecWidth)
	if !h.vecConfigOk(inst, sew) {
		return
	}
	base := h.IntReg(int(inst.Rs1))
	h.lastVecSize = sew
	for i := uint64(0); i < h.vl; i++ {
		if inst.VecMask && !h.maskBit(i) {
			continue
		}
		va := base + i*uint64(sew)
		h.lastVecAddrs = append(h.lastVecAddrs, va)
		v, ok := h.loadVa(va, sew)
		if !ok {
			return
		}
		h.setVecElem(int(inst.Rd), i, sew, v)
	}
	h.setVsDirty()
}

func (h *Hart) execVse(inst insts.Instruction) {
	sew := int(inst.VecWidth)
	if !h.vecConfigOk(inst, sew) {
		return
	}
	base := h.IntReg(int(inst.Rs1))
	h.lastVecSize = sew
	for i := uint64(0); i < h.vl; i++ {
		if inst.VecMask && !h.maskBit(i) {
			continue
		}
		va := base + i*uint64(sew)
		h.lastVecAddrs = append(h.lastVecAddrs, va)
		if !h.storeVa(va, sew,
			h.vecElem(int(inst.Rs2), i, sew)) {
			return
		}
	}
}

func (h *Hart) execVecAlu(inst insts.Instruction) {
	sew := h.sewBytes()
	if !h.vecConfigOk(inst, sew) {
		return
	}

	vectorB := inst.Op == insts.OpVADDVV || inst.Op == insts.OpVSUBVV ||
		inst.Op == insts.OpVANDVV || inst.Op == insts.OpVORVV ||
		inst.Op == insts.OpVXORVV || inst.Op == insts.OpVMVVV

	var scalar uint64
	switch inst.Op {
	case insts.OpVADDVX, insts.OpVSUBVX, insts.OpVANDVX,
		insts.OpVORVX, insts.OpVXORVX, insts.OpVMVVX:
		scalar = h.IntReg(int(inst.Rs1))
	case insts.OpVMVVI:
		scalar = uint64(inst.Imm)
	}

	mask := uint64(1)<<(sew*8) - 1
	if sew == 8 {
		mask = ^uint64(0)
	}
	for i := uint64(0); i < h.vl; i++ {
		if inst.VecMask && !h.maskBit(i) {
			continue
		}
		a := h.vecElem(int(inst.Rs2), i, sew)
		b := scalar
		if vectorB {
			b = h.vecElem(int(inst.Rs1), i, sew)
		}
		var r uint64
		switch inst.Op {
		case insts.OpVADDVV, insts.OpVADDVX:
			r = a + b
		case insts.OpVSUBVV, insts.OpVSUBVX:
			r = a - b
		case insts.OpVANDVV, insts.OpVANDVX:
			r = a & b
		case insts.OpVORVV, insts.OpVORVX:
			r = a | b
		case insts.OpVXORVV, insts.OpVXORVX:
			r = a ^ b
		default: // vmv.v.*
			r = b
		}
		h.setVecElem(int(inst.Rd), i, sew, r&mask)
	}
	h.setVsDirty()
}
