package hart

import (
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/mmu"
)

func (h *Hart) execLoadStore(inst insts.Instruction) {
	addr := (h.IntReg(int(inst.Rs1)) + uint64(inst.Imm)) & h.xlenMask
	switch inst.Op {
	case insts.OpLB:
		if v, ok := h.loadVa(addr, 1); ok {
			h.SetIntReg(int(inst.Rd), uint64(int64(int8(uint8(v)))))
		}
	case insts.OpLBU:
		if v, ok := h.loadVa(addr, 1); ok {
			h.SetIntReg(int(inst.Rd), v&0xFF)
		}
	case insts.OpLH:
		if v, ok := h.loadVa(addr, 2); ok {
			h.SetIntReg(int(inst.Rd), uint64(int64(int16(uint16(v)))))
		}
	case insts.OpLHU:
		if v, ok := h.loadVa(addr, 2); ok {
			h.SetIntReg(int(inst.Rd), v&0xFFFF)
		}
	case insts.OpLW:
		if v, ok := h.loadVa(addr, 4); ok {
			h.SetIntReg(int(inst.Rd), sext32(v))
		}
	case insts.OpLWU:
		if v, ok := h.loadVa(addr, 4); ok {
			h.SetIntReg(int(inst.Rd), v&0xFFFF_FFFF)
		}
	case insts.OpLD:
		if v, ok := h.loadVa(addr, 8); ok {
			h.SetIntReg(int(inst.Rd), v)
		}
	case insts.OpSB:
		h.storeVa(addr, 1, h.IntReg(int(inst.Rs2)))
	case insts.OpSH:
		h.storeVa(addr, 2, h.IntReg(int(inst.Rs2)))
	case insts.OpSW:
		h.storeVa(addr, 4, h.IntReg(int(inst.Rs2)))
	case insts.OpSD:
		h.storeVa(addr, 8, h.IntReg(int(inst.Rs2)))
	}
}

func amoSize(op insts.Op) int {
	switch op {
	case insts.OpLRW, insts.OpSCW, insts.OpAMOCASW,
		insts.OpAMOSWAPW, insts.OpAMOADDW, insts.OpAMOXORW,
		insts.OpAMOANDW, insts.OpAMOORW, insts.OpAMOMINW,
		insts.OpAMOMAXW, insts.OpAMOMINUW, insts.OpAMOMAXUW:
		return 4
	}
	return 8
}

// execAtomic implements LR/SC, the AMOs, and Zacas under the shared
// atomic mutex so multi-hart linearizability holds.
func (h *Hart) execAtomic(inst insts.Instruction) {
	addr := h.IntReg(int(inst.Rs1))
	size := amoSize(inst.Op)
	if addr%uint64(size) != 0 {
		if inst.IsAmo() || inst.Op == insts.OpSCW || inst.Op == insts.OpSCD {
			h.raise(CauseStoreAddrMisal, addr)
		} else {
			h.raise(CauseLoadAddrMisal, addr)
		}
		return
	}

	h.atomicMu.Lock()
	defer h.atomicMu.Unlock()

	switch inst.Op {
	case insts.OpLRW, insts.OpLRD:
		v, ok := h.loadVa(addr, size)
		if !ok {
			return
		}
		if size == 4 {
			v = sext32(v)
		}
		res, _ := h.translateData(addr, uint64(size), mmu.AccessLoad)
		h.res = Reservation{Valid: true, Addr: res.Pa, Size: uint64(size)}
		h.SetIntReg(int(inst.Rd), v)

	case insts.OpSCW, insts.OpSCD:
		res, fault := h.translateData(addr, uint64(size), mmu.AccessStore)
		if fault != nil {
			h.raiseFault(fault)
			return
		}
		ok := h.res.Valid && res.Pa >= h.res.Addr &&
			res.Pa+uint64(size) <= h.res.Addr+h.res.Size
		h.res.Valid = false
		if !ok {
			h.SetIntReg(int(inst.Rd), 1)
			return
		}
		if !h.storeVa(addr, size, h.IntReg(int(inst.Rs2))) {
			return
		}
		h.SetIntReg(int(inst.Rd), 0)

	case insts.OpAMOCASW, insts.OpAMOCASD:
		// Zacas: compare with rd, swap in rs2 on match, rd gets the
		// original value either way.
		old, ok := h.loadVa(addr, size)
		if !ok {
			return
		}
		expected := h.IntReg(int(inst.Rd))
		if size == 4 {
			old = sext32(old)
			expected = sext32(expected)
		}
		if old == expected {
			if !h.storeVa(addr, size, h.IntReg(int(inst.Rs2))) {
				return
			}
		}
		h.SetIntReg(int(inst.Rd), old)

	default:
		// AMOs fault as stores on either permission failure, so
		// translate for store first.
		if _, fault := h.translateData(addr, uint64(size),
			mmu.AccessStore); fault != nil {
			h.raiseFault(fault)
			return
		}
		old, ok := h.loadVa(addr, size)
		if !ok {
			return
		}
		if size == 4 {
			old = sext32(old)
		}
		v := amoOp(inst.Op, old, h.IntReg(int(inst.Rs2)))
		if !h.storeVa(addr, size, v) {
			return
		}
		h.SetIntReg(int(inst.Rd), old)
	}
}

func amoOp(op insts.Op, old, rs2 uint64) uint64 {
	switch op {
	case insts.OpAMOSWAPW, insts.OpAMOSWAPD:
		return rs2
	case insts.OpAMOADDW, insts.OpAMOADDD:
		return old + rs2
	case insts.OpAMOXORW, insts.OpAMOXORD:
		return old ^ rs2
	case insts.OpAMOANDW, insts.OpAMOANDD:
		return old & rs2
	case insts.OpAMOORW, insts.OpAMOORD:
		return old | rs2
	case insts.OpAMOMINW:
		if int32(old) < int32(rs2) {
			return old
		}
		return rs2
	case insts.OpAMOMAXW:
		if int32(old) > int32(rs2) {
			return old
		}
		return rs2
	case insts.OpAMOMINUW:
		if uint32(old) < uint32(rs2) {
			return old
		}
		return rs2
	case insts.OpAMOMAXUW:
		if uint32(old) > uint32(rs2) {
			return old
		}
		return rs2
	case insts.OpAMOMIND:
		if int64(old) < int64(rs2) {
			return old
		}
		return rs2
	case insts.OpAMOMAXD:
		if int64(old) > int64(rs2) {
			return old
		}
		return rs2
	case insts.OpAMOMINUD:
		if old < rs2 {
			return old
		}
		return rs2
	default: // AMOMAXUD
		if old > rs2 {
			return old
		}
		return rs2
	}
}
