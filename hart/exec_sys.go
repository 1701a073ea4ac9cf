package hart

import (
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/mem"
	"github.com/sarchlab/r5sim/mmu"
)

func (h *Hart) execEcall() {
	switch {
	case h.priv == mem.PrivM:
		h.raise(CauseEcallM, 0)
	case h.priv == mem.PrivS && h.virt:
		h.raise(CauseEcallVs, 0)
	case h.priv == mem.PrivS:
		h.raise(CauseEcallS, 0)
	default:
		h.raise(CauseEcallU, 0)
	}
}

func (h *Hart) execEbreak(inst insts.Instruction) {
	if h.debugMode {
		// EBREAK while already in debug re-enters the park loop.
		h.pc = h.csr.Raw(CsrDpc)
		return
	}
	// DCSR ebreak enables divert EBREAK into debug mode per mode.
	dcsr := h.csr.Raw(CsrDcsr)
	var divert bool
	switch {
	case h.priv == mem.PrivM:
		divert = dcsr&(1<<15) != 0
	case h.priv == mem.PrivS && !h.virt:
		divert = dcsr&(1<<13) != 0
	case h.priv == mem.PrivU && !h.virt:
		divert = dcsr&(1<<12) != 0
	case h.priv == mem.PrivS && h.virt:
		divert = dcsr&(1<<17) != 0
	default:
		divert = dcsr&(1<<16) != 0
	}
	if divert {
		h.enterDebug(dcsrCauseEbreak)
		return
	}
	h.raise(CauseBreakpoint, h.currPc)
}

func (h *Hart) execWfi(inst insts.Instruction) {
	if h.priv == mem.PrivU && !h.virt {
		h.raiseIllegal(inst.Raw)
		return
	}
	if h.virt && (h.hstatus&HstatusVtw != 0 ||
		(h.priv == mem.PrivU)) {
		h.raiseVirtual(inst.Raw)
		return
	}
	if h.priv == mem.PrivS && !h.virt && h.mstatus&MstatusTw != 0 {
		h.raiseIllegal(inst.Raw)
		return
	}
	// WFI returns immediately; pending interrupts are evaluated at
	// the top of the next step.
}

func (h *Hart) execWrs(inst insts.Instruction) {
	// WRS.NTO/WRS.STO behave as nops; the TW trapping rules match
	// WFI's when a nonzero timeout is configured.
	_ = inst
}

func (h *Hart) execCsrOp(inst insts.Instruction) {
	addr := inst.Csr
	useImm := inst.Op == insts.OpCSRRWI || inst.Op == insts.OpCSRRSI ||
		inst.Op == insts.OpCSRRCI
	var operand uint64
	if useImm {
		operand = uint64(inst.Rs1)
	} else {
		operand = h.IntReg(int(inst.Rs1))
	}

	isWrite := inst.Op == insts.OpCSRRW || inst.Op == insts.OpCSRRWI
	// Set/clear forms with rs1=x0 (or zimm=0) do not write.
	doesWrite := isWrite || inst.Rs1 != 0

	if err := h.checkCsrAccess(addr, doesWrite); err != csrOk {
		if err == csrVirtual {
			h.raiseVirtual(inst.Raw)
		} else {
			h.raiseIllegal(inst.Raw)
		}
		return
	}

	var old uint64
	if !(isWrite && inst.Rd == 0) {
		v, ok := h.readCsr(addr)
		if !ok {
			h.raiseIllegal(inst.Raw)
			return
		}
		old = v
	}

	if doesWrite {
		var next uint64
		switch inst.Op {
		case insts.OpCSRRW, insts.OpCSRRWI:
			next = operand
		case insts.OpCSRRS, insts.OpCSRRSI:
			next = old | operand
		default:
			next = old &^ operand
		}
		if !h.writeCsr(addr, next) {
			h.raiseIllegal(inst.Raw)
			return
		}
	}

	h.SetIntReg(int(inst.Rd), old)
}

func (h *Hart) execFenceVma(inst insts.Instruction) {
	va := h.IntReg(int(inst.Rs1))
	asid := uint16(h.IntReg(int(inst.Rs2)))
	hasVa := inst.Rs1 != 0
	hasId := inst.Rs2 != 0

	switch inst.Op {
	case insts.OpSFENCEVMA, insts.OpSINVALVMA:
		if h.priv == mem.PrivU {
			h.raiseIllegal(inst.Raw)
			return
		}
		if h.virt {
			if h.hstatus&HstatusVtvm != 0 {
				h.raiseVirtual(inst.Raw)
				return
			}
		} else if h.priv == mem.PrivS && h.mstatus&MstatusTvm != 0 {
			h.raiseIllegal(inst.Raw)
			return
		}
		h.walker.SfenceVma(va, hasVa, asid, hasId, h.virt)

	case insts.OpSFENCEWINVAL, insts.OpSFENCEINVALIR:
		if h.priv == mem.PrivU {
			h.raiseIllegal(inst.Raw)
			return
		}
		// Ordering-only fences in a sequential model.

	case insts.OpHFENCEVVMA, insts.OpHINVALVVMA:
		if !h.hypervisorOk(inst) {
			return
		}
		vmid := h.currentVmid()
		h.walker.HfenceVvma(va, hasVa, asid, hasId, vmid)

	case insts.OpHFENCEGVMA, insts.OpHINVALGVMA:
		if !h.hypervisorOk(inst) {
			return
		}
		if !h.virt && h.priv == mem.PrivS && h.mstatus&MstatusTvm != 0 {
			h.raiseIllegal(inst.Raw)
			return
		}
		// rs1 holds the guest-physical address shifted right by 2.
		h.walker.HfenceGvma(va<<2, hasVa, asid, hasId)
	}
}

func (h *Hart) hypervisorOk(inst insts.Instruction) bool {
	if h.csr.Raw(CsrMisa)&MisaH == 0 {
		h.raiseIllegal(inst.Raw)
		return false
	}
	if h.virt {
		h.raiseVirtual(inst.Raw)
		return false
	}
	if h.priv == mem.PrivU {
		h.raiseIllegal(inst.Raw)
		return false
	}
	return true
}

func (h *Hart) currentVmid() uint16 {
	hgatp := h.csr.Raw(CsrHgatp)
	if h.rv64() {
		return uint16(hgatp >> 44 & 0x3FFF)
	}
	return uint16(hgatp >> 22 & 0x7F)
}

// execHlvHsv implements the hypervisor virtual-machine load/store
// instructions: they run the two-stage translation as if V=1 with the
// privilege selected by hstatus.SPVP (or U for HLVX from U with HU).
func (h *Hart) execHlvHsv(inst insts.Instruction) {
	if h.csr.Raw(CsrMisa)&MisaH == 0 {
		h.raiseIllegal(inst.Raw)
		return
	}
	if h.virt {
		h.raiseVirtual(inst.Raw)
		return
	}
	if h.priv == mem.PrivU && h.hstatus&HstatusHu == 0 {
		h.raiseIllegal(inst.Raw)
		return
	}

	pm := mem.PrivU
	if h.hstatus&HstatusSpvp != 0 && h.priv != mem.PrivU {
		pm = mem.PrivS
	}
	addr := h.IntReg(int(inst.Rs1))

	execRead := inst.Op == insts.OpHLVXHU || inst.Op == insts.OpHLVXWU
	if execRead {
		h.walker.SetExecReadable(true)
		defer h.walker.SetExecReadable(false)
	}

	size, signed := hlvWidth(inst.Op)
	switch inst.Op {
	case insts.OpHSVB, insts.OpHSVH, insts.OpHSVW, insts.OpHSVD:
		res, fault := h.walker.Translate(addr, uint64(size), pm, true,
			mmu.AccessStore)
		if fault != nil {
			h.raiseFault(fault)
			return
		}
		if !h.mem.IsWritable(res.Pa, uint64(size), pm) ||
			!h.mem.Write(res.Pa, size, h.IntReg(int(inst.Rs2)), h.bigEndian) {
			h.raise(CauseStoreAccFault, addr)
		}
	default:
		res, fault := h.walker.Translate(addr, uint64(size), pm, true,
			mmu.AccessLoad)
		if fault != nil {
			h.raiseFault(fault)
			return
		}
		v, ok := h.mem.Read(res.Pa, size, h.bigEndian)
		if !ok || !h.mem.IsReadable(res.Pa, uint64(size), pm) {
			h.raise(CauseLoadAccFault, addr)
			return
		}
		if signed {
			switch size {
			case 1:
				v = uint64(int64(int8(uint8(v))))
			case 2:
				v = uint64(int64(int16(uint16(v))))
			case 4:
				v = sext32(v)
			}
		}
		h.SetIntReg(int(inst.Rd), v)
	}
}

func hlvWidth(op insts.Op) (int, bool) {
	switch op {
	case insts.OpHLVB:
		return 1, true
	case insts.OpHLVBU:
		return 1, false
	case insts.OpHLVH:
		return 2, true
	case insts.OpHLVHU, insts.OpHLVXHU:
		return 2, false
	case insts.OpHLVW:
		return 4, true
	case insts.OpHLVWU, insts.OpHLVXWU:
		return 4, false
	case insts.OpHSVB:
		return 1, false
	case insts.OpHSVH:
		return 2, false
	case insts.OpHSVW:
		return 4, false
	default:
		return 8, true
	}
}

// setElpForIndirect arms the expected-landing-pad state after an
// indirect jump when Zicfilp is active. Jumps through x1/x5/x7 are
// exempt as returns/tail-call helpers.
func (h *Hart) setElpForIndirect(inst insts.Instruction) {
	if !h.lpEnabled() {
		return
	}
	switch inst.Rs1 {
	case 1, 5, 7:
		return
	}
	h.elp = true
}

func (h *Hart) lpEnabled() bool {
	// Landing pads are gated by the LPE bit of the envcfg register
	// for the current privilege.
	const lpe = uint64(1) << 2
	switch h.priv {
	case mem.PrivM:
		return h.csr.Raw(CsrMseccfg)&(1<<10) != 0
	case mem.PrivS:
		if h.virt {
			return h.csr.Raw(CsrHenvcfg)&lpe != 0
		}
		return h.csr.Raw(CsrMenvcfg)&lpe != 0
	default:
		return h.csr.Raw(CsrSenvcfg)&lpe != 0
	}
}

// execLpad validates a landing pad: it must be 4-byte aligned and its
// label must match x7's high bits when nonzero; any other instruction
// with ELP set raises a software-check fault (checked here because
// LPAD is the only legal target).
func (h *Hart) execLpad(inst insts.Instruction) {
	if !h.elp {
		return
	}
	if h.currPc%4 != 0 {
		h.raise(CauseSwCheck, 2)
		return
	}
	label := uint64(inst.Imm) >> 12
	if label != 0 && label != h.IntReg(7)>>12&0xFFFFF {
		h.raise(CauseSwCheck, 2)
		return
	}
	h.elp = false
}
