package hart

import (
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/mem"
	"github.com/sarchlab/r5sim/mmu"
)

// CacheLineSize is the block size the cache-block operations work on.
const CacheLineSize = 64

// cboAllowed checks the MENVCFG/SENVCFG/HENVCFG enable chain for the
// current privilege and virtualization. The second result selects a
// virtual-instruction trap over an illegal one.
func (h *Hart) cboAllowed(op insts.Op) (bool, bool) {
	check := func(env uint64) bool {
		switch op {
		case insts.OpCBOZERO:
			return env&EnvcfgCbze != 0
		case insts.OpCBOCLEAN, insts.OpCBOFLUSH:
			return env&EnvcfgCbcfe != 0
		default:
			return env&EnvcfgCbie != 0
		}
	}
	if h.priv != mem.PrivM && !check(h.csr.Raw(CsrMenvcfg)) {
		return false, false
	}
	if h.virt && !check(h.csr.Raw(CsrHenvcfg)) {
		return false, true
	}
	if h.priv == mem.PrivU && !check(h.csr.Raw(CsrSenvcfg)) {
		return false, h.virt
	}
	return true, false
}

// execCbo implements Zicbom/Zicboz/Zicbop. There is no functional
// cache, so clean/flush/inval reduce to their permission and
// translation checks; cbo.zero writes the line. PMP/PMA are walked
// per doubleword across the line.
func (h *Hart) execCbo(inst insts.Instruction) {
	switch inst.Op {
	case insts.OpPREFETCHI, insts.OpPREFETCHR, insts.OpPREFETCHW:
		// Prefetches never trap; they perform the translation and
		// drop any fault.
		va := (h.IntReg(int(inst.Rs1)) + uint64(inst.Imm)) &^ (CacheLineSize - 1)
		kind := mmu.AccessLoad
		if inst.Op == insts.OpPREFETCHW {
			kind = mmu.AccessStore
		}
		_, _ = h.translateData(va, CacheLineSize, kind)
		h.trapPending = false
		return
	}

	ok, virtual := h.cboAllowed(inst.Op)
	if !ok {
		if virtual {
			h.raiseVirtual(inst.Raw)
		} else {
			h.raiseIllegal(inst.Raw)
		}
		return
	}

	va := h.IntReg(int(inst.Rs1)) &^ (CacheLineSize - 1)
	kind := mmu.AccessLoad
	if inst.Op == insts.OpCBOZERO || inst.Op == insts.OpCBOINVAL {
		kind = mmu.AccessStore
	}

	res, fault := h.translateData(va, CacheLineSize, kind)
	if fault != nil {
		h.raiseFault(fault)
		return
	}

	pm, _ := h.effDataPriv()
	for off := uint64(0); off < CacheLineSize; off += 8 {
		pa := res.Pa + off
		var allowed bool
		if kind == mmu.AccessStore {
			allowed = h.mem.IsWritable(pa, 8, pm)
		} else {
			allowed = h.mem.IsReadable(pa, 8, pm)
		}
		if !allowed {
			if kind == mmu.AccessStore {
				h.raise(CauseStoreAccFault, va)
			} else {
				h.raise(CauseLoadAccFault, va)
			}
			return
		}
	}

	if inst.Op == insts.OpCBOZERO {
		h.atomicMu.Lock()
		defer h.atomicMu.Unlock()
		for off := uint64(0); off < CacheLineSize; off += 8 {
			if !h.mem.Write(res.Pa+off, 8, 0, h.bigEndian) {
				h.raise(CauseStoreAccFault, va)
				return
			}
		}
	}
}
