package hart

import (
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/mem"
	"github.com/sarchlab/r5sim/mmu"
)

const interruptBit = uint64(1) << 63

// raise latches an exception; the step loop performs the actual trap
// entry after the handler returns.
func (h *Hart) raise(cause, tval uint64) {
	if h.trapPending {
		return
	}
	h.trapPending = true
	h.trapIsInt = false
	h.trapCause = cause
	h.trapVal = tval
	h.trapVal2 = 0
	h.trapInst = 0
}

// raiseGuest latches a guest-page fault with its companion values.
func (h *Hart) raiseGuest(cause, tval, tval2, tinst uint64) {
	if h.trapPending {
		return
	}
	h.trapPending = true
	h.trapIsInt = false
	h.trapCause = cause
	h.trapVal = tval
	h.trapVal2 = tval2
	h.trapInst = tinst
}

func (h *Hart) raiseIllegal(raw uint32) {
	h.numIllegal++
	if h.illegalStop != 0 && h.numIllegal >= h.illegalStop {
		h.stopEvent = &StopEvent{Kind: StopIllegalLimit, Payload: h.numIllegal}
	}
	h.raise(CauseIllegalInst, uint64(raw))
}

func (h *Hart) raiseVirtual(raw uint32) {
	h.raise(CauseVirtualInst, uint64(raw))
}

// faultCause maps a translator fault to the architectural cause.
func faultCause(f *mmu.Fault) uint64 {
	table := [4][3]uint64{
		mmu.FaultMisaligned: {CauseInstAddrMisal, CauseLoadAddrMisal,
			CauseStoreAddrMisal},
		mmu.FaultAccess: {CauseInstAccFault, CauseLoadAccFault,
			CauseStoreAccFault},
		mmu.FaultPage: {CauseInstPageFault, CauseLoadPageFault,
			CauseStorePageFault},
		mmu.FaultGuestPage: {CauseInstGuestFault, CauseLoadGuestFault,
			CauseStoreGuestFault},
	}
	return table[f.Type][f.Kind]
}

// raiseFault latches the trap for a translator fault, including the
// guest companion values and the implicit-access tinst encoding.
func (h *Hart) raiseFault(f *mmu.Fault) {
	cause := faultCause(f)
	if f.Type == mmu.FaultGuestPage {
		var tinst uint64
		if f.S1Implicit {
			tinst = h.implicitTinst(f.ImplicitWrite)
		}
		h.raiseGuest(cause, f.Addr, f.Gpa, tinst)
		return
	}
	h.raise(cause, f.Addr)
}

// implicitTinst is the htinst pseudo-instruction for guest faults on
// VS-stage implicit PTE accesses.
func (h *Hart) implicitTinst(write bool) uint64 {
	base := uint64(0x2000)
	if h.rv64() {
		base = 0x3000
	}
	if write {
		base |= 1 << 5
	}
	return base
}

// takeTrap performs trap entry for the latched exception or for an
// interrupt (cause has the top bit set).
func (h *Hart) takeTrap() {
	cause := h.trapCause
	isInt := h.trapIsInt
	tval := h.trapVal

	if !isInt {
		if hit, action := h.triggers.CheckEtrigger(cause); hit {
			if action == triggerActionDebug && !h.debugMode {
				h.enterDebug(dcsrCauseTrigger)
				h.trapPending = false
				return
			}
		}
	}

	// Nested exception in M with NMIs masked redirects to the NMI
	// exception vector.
	if !isInt && h.priv == mem.PrivM &&
		h.csr.Raw(CsrMnstatus)&(1<<3) == 0 {
		h.pc = h.nmiExceptionPc(cause)
		h.trapPending = false
		return
	}

	target := h.trapTarget(cause, isInt)

	epc := h.currPc &^ 1
	if isInt {
		epc = h.pc
	}

	switch target {
	case trapToVs:
		vcause := cause
		if isInt {
			// VS interrupt causes present as their S twins inside
			// the guest.
			vcause--
		}
		h.csr.SetRaw(CsrVsepc, epc)
		h.csr.SetRaw(CsrVscause, h.intBit(isInt)|vcause)
		h.csr.SetRaw(CsrVstval, tval)
		vs := h.vsstatus
		vs = h.pushStatusS(vs)
		h.vsstatus = vs
		h.csr.SetRaw(CsrVsstatus, vs)
		h.priv = mem.PrivS
		h.virt = true
		h.pc = h.trapVector(h.csr.Raw(CsrVstvec), vcause, isInt)

	case trapToHs:
		h.csr.SetRaw(CsrSepc, epc)
		h.csr.SetRaw(CsrScause, h.intBit(isInt)|cause)
		h.csr.SetRaw(CsrStval, tval)
		h.csr.SetRaw(CsrHtval, h.trapVal2>>2)
		h.csr.SetRaw(CsrHtinst, h.trapInst)

		hs := h.hstatus
		hs = hs &^ (HstatusSpv | HstatusSpvp | HstatusGva)
		if h.virt {
			hs |= HstatusSpv
			if h.priv == mem.PrivS {
				hs |= HstatusSpvp
			}
		}
		if h.trapIsGva(cause) {
			hs |= HstatusGva
		}
		h.hstatus = hs
		h.csr.SetRaw(CsrHstatus, hs)

		h.mstatus = h.pushStatusS(h.mstatus)
		h.csr.SetRaw(CsrMstatus, h.mstatus)
		h.priv = mem.PrivS
		h.virt = false
		h.pc = h.trapVector(h.csr.Raw(CsrStvec), cause, isInt)

	default:
		h.csr.SetRaw(CsrMepc, epc)
		h.csr.SetRaw(CsrMcause, h.intBit(isInt)|cause)
		h.csr.SetRaw(CsrMtval, tval)
		h.csr.SetRaw(CsrMtval2, h.trapVal2>>2)
		h.csr.SetRaw(CsrMtinst, h.trapInst)

		m := h.mstatus
		m = m &^ (MstatusMpie | MstatusMpp | MstatusMpv | MstatusGva)
		if m&MstatusMie != 0 {
			m |= MstatusMpie
		}
		m |= uint64(h.priv) << 11
		if h.virt {
			m |= MstatusMpv
		}
		if h.trapIsGva(cause) {
			m |= MstatusGva
		}
		m &^= MstatusMie
		h.mstatus = m
		h.csr.SetRaw(CsrMstatus, m)
		h.priv = mem.PrivM
		h.virt = false
		h.pc = h.trapVector(h.csr.Raw(CsrMtvec), cause, isInt)
	}

	h.elp = false
	h.res.Valid = false
	h.updateTranslation()
	h.trapPending = false

	for _, l := range h.trapListeners {
		l.OnTrap(h, h.intBit(isInt)|cause, epc, h.pc)
	}
}

func (h *Hart) intBit(isInt bool) uint64 {
	if isInt {
		return interruptBit
	}
	return 0
}

func (h *Hart) trapIsGva(cause uint64) bool {
	switch cause {
	case CauseInstGuestFault, CauseLoadGuestFault, CauseStoreGuestFault:
		return true
	}
	// Ordinary memory faults taken from V=1 also carry a GVA.
	if h.virt {
		switch cause {
		case CauseInstAddrMisal, CauseInstAccFault, CauseInstPageFault,
			CauseLoadAddrMisal, CauseLoadAccFault, CauseLoadPageFault,
			CauseStoreAddrMisal, CauseStoreAccFault, CauseStorePageFault,
			CauseBreakpoint:
			return true
		}
	}
	return false
}

// pushStatusS pushes SIE to SPIE and the privilege to SPP in an
// sstatus-shaped register, then clears SIE.
func (h *Hart) pushStatusS(s uint64) uint64 {
	s &^= MstatusSpie | MstatusSpp
	if s&MstatusSie != 0 {
		s |= MstatusSpie
	}
	if h.priv == mem.PrivS {
		s |= MstatusSpp
	}
	return s &^ MstatusSie
}

type trapTarget int

const (
	trapToM trapTarget = iota
	trapToHs
	trapToVs
)

func (h *Hart) trapTarget(cause uint64, isInt bool) trapTarget {
	if h.priv == mem.PrivM {
		return trapToM
	}
	var deleg uint64
	if isInt {
		deleg = h.csr.Raw(CsrMideleg)
		if deleg>>cause&1 == 0 {
			return trapToM
		}
		if h.virt && h.csr.Raw(CsrHideleg)>>cause&1 == 1 {
			return trapToVs
		}
		return trapToHs
	}
	deleg = h.csr.Raw(CsrMedeleg)
	if deleg>>cause&1 == 0 {
		return trapToM
	}
	if h.virt && h.csr.Raw(CsrHedeleg)>>cause&1 == 1 {
		return trapToVs
	}
	return trapToHs
}

func (h *Hart) trapVector(tvec, cause uint64, isInt bool) uint64 {
	base := tvec &^ 3
	if isInt && tvec&3 == 1 {
		return base + 4*cause
	}
	return base
}

// nmiExceptionPc is the redirect target for exceptions taken while
// MNSTATUS.NMIE is clear.
func (h *Hart) nmiExceptionPc(cause uint64) uint64 {
	if h.nmiIndexed {
		return h.nmiExcVector + 4*cause
	}
	return h.nmiExcVector
}

// takeNmi enters the resumable NMI handler via the Smrnmi CSRs.
func (h *Hart) takeNmi() {
	h.csr.SetRaw(CsrMnepc, h.pc&^1)
	h.csr.SetRaw(CsrMncause, interruptBit|h.nmiCause)

	mn := h.csr.Raw(CsrMnstatus)
	mn &^= 1<<3 | MstatusMpp | MstatusMpv
	mn |= uint64(h.priv) << 11
	if h.virt {
		mn |= MstatusMpv
	}
	h.csr.SetRaw(CsrMnstatus, mn)

	h.priv = mem.PrivM
	h.virt = false
	h.nmiPending = false
	h.res.Valid = false
	h.elp = false
	h.pc = h.nmiVector
	h.updateTranslation()
}

// checkInterrupts returns the highest-priority deliverable interrupt
// cause, if any.
func (h *Hart) checkInterrupts() (uint64, bool) {
	pending := h.effMip() & h.csr.Raw(CsrMie)
	if pending == 0 {
		return 0, false
	}

	mideleg := h.csr.Raw(CsrMideleg)
	hideleg := h.csr.Raw(CsrHideleg)

	mPending := pending &^ mideleg
	hsPending := pending & mideleg &^ hideleg
	vsPending := pending & mideleg & hideleg

	// HVICTL injection presents an extra VS external interrupt.
	hvictl := h.csr.Raw(CsrHvictl)
	if hvictl&(1<<30) != 0 && hvictl&0x3FF != 0 {
		vsPending |= IpVsep
	}

	mOk := h.priv < mem.PrivM ||
		h.mstatus&MstatusMie != 0
	if mOk {
		if c, ok := pickInterrupt(mPending,
			IntMei, IntMsi, IntMti, IntSei, IntSsi, IntSti, IntSgei,
			IntVsei, IntVssi, IntVsti); ok {
			return c, true
		}
	}

	hsOk := h.virt || h.priv == mem.PrivU ||
		(h.priv == mem.PrivS && !h.virt && h.mstatus&MstatusSie != 0)
	if hsOk {
		if c, ok := pickInterrupt(hsPending,
			IntSei, IntSsi, IntSti, IntSgei, IntVsei, IntVssi,
			IntVsti); ok {
			return c, true
		}
	}

	vsOk := h.virt &&
		(h.priv == mem.PrivU || h.vsstatus&MstatusSie != 0)
	if vsOk {
		if c, ok := pickInterrupt(vsPending,
			IntVsei, IntVssi, IntVsti); ok {
			return c, true
		}
	}
	return 0, false
}

func pickInterrupt(pending uint64, order ...uint64) (uint64, bool) {
	for _, c := range order {
		if pending>>c&1 == 1 {
			return c, true
		}
	}
	return 0, false
}

// DCSR cause values.
const (
	dcsrCauseEbreak  = 1
	dcsrCauseTrigger = 2
	dcsrCauseStep    = 4
)

// enterDebug halts the hart into debug mode, recording cause and the
// previous privilege/V/ELP in DCSR.
func (h *Hart) enterDebug(cause uint64) {
	dcsr := h.csr.Raw(CsrDcsr)
	dcsr = dcsr&^(7<<6|3|1<<5|1<<24) | cause<<6 | uint64(h.priv)
	if h.virt {
		dcsr |= 1 << 5
	}
	if h.elp {
		dcsr |= 1 << 24
	}
	h.csr.SetRaw(CsrDcsr, dcsr)
	h.csr.SetRaw(CsrDpc, h.currPc&^1)
	h.debugMode = true
	h.res.Valid = false
	h.elp = false
}

// execDret leaves debug mode, restoring privilege, V, and ELP from
// DCSR and jumping to DPC.
func (h *Hart) execDret() {
	if !h.debugMode {
		h.raiseIllegal(0)
		return
	}
	dcsr := h.csr.Raw(CsrDcsr)
	h.priv = mem.Priv(dcsr & 3)
	h.virt = dcsr&(1<<5) != 0 && h.priv != mem.PrivM
	h.elp = dcsr&(1<<24) != 0
	h.debugMode = false
	h.pc = h.csr.Raw(CsrDpc)
	h.res.Valid = false
	h.updateTranslation()
}

// execMret implements MRET.
func (h *Hart) execMret(inst insts.Instruction) {
	if h.priv != mem.PrivM {
		if h.virt {
			h.raiseVirtual(inst.Raw)
		} else {
			h.raiseIllegal(inst.Raw)
		}
		return
	}
	m := h.mstatus
	newPriv := mem.Priv(m >> 11 & 3)
	newVirt := m&MstatusMpv != 0 && newPriv != mem.PrivM

	m &^= MstatusMie
	if m&MstatusMpie != 0 {
		m |= MstatusMie
	}
	m |= MstatusMpie
	m &^= MstatusMpp | MstatusMpv
	if newPriv != mem.PrivM {
		m &^= MstatusMprv
	}
	h.mstatus = m
	h.csr.SetRaw(CsrMstatus, m)

	h.priv = newPriv
	h.virt = newVirt
	h.pc = h.csr.Raw(CsrMepc)
	h.elp = false
	h.updateTranslation()
}

// execSret implements SRET from HS (restoring V from hstatus.SPV) and
// from VS (pure vsstatus round trip).
func (h *Hart) execSret(inst insts.Instruction) {
	if h.priv == mem.PrivU {
		h.raiseIllegal(inst.Raw)
		return
	}
	if h.virt {
		if h.hstatus&HstatusVtsr != 0 {
			h.raiseVirtual(inst.Raw)
			return
		}
		vs := h.vsstatus
		newPriv := mem.PrivU
		if vs&MstatusSpp != 0 {
			newPriv = mem.PrivS
		}
		vs = h.popStatusS(vs)
		h.vsstatus = vs
		h.csr.SetRaw(CsrVsstatus, vs)
		h.priv = newPriv
		h.pc = h.csr.Raw(CsrVsepc)
		h.updateTranslation()
		return
	}
	if h.priv == mem.PrivS && h.mstatus&MstatusTsr != 0 {
		h.raiseIllegal(inst.Raw)
		return
	}
	m := h.mstatus
	newPriv := mem.PrivU
	if m&MstatusSpp != 0 {
		newPriv = mem.PrivS
	}
	newVirt := h.hstatus&HstatusSpv != 0
	m = h.popStatusS(m)
	if newPriv != mem.PrivM {
		m &^= MstatusMprv
	}
	h.mstatus = m
	h.csr.SetRaw(CsrMstatus, m)
	h.hstatus &^= HstatusSpv
	h.csr.SetRaw(CsrHstatus, h.hstatus)

	h.priv = newPriv
	h.virt = newVirt
	h.pc = h.csr.Raw(CsrSepc)
	h.elp = false
	h.updateTranslation()
}

// execMnret implements the Smrnmi return.
func (h *Hart) execMnret(inst insts.Instruction) {
	if h.priv != mem.PrivM {
		h.raiseIllegal(inst.Raw)
		return
	}
	mn := h.csr.Raw(CsrMnstatus)
	h.priv = mem.Priv(mn >> 11 & 3)
	h.virt = mn&MstatusMpv != 0 && h.priv != mem.PrivM
	h.csr.SetRaw(CsrMnstatus, mn|1<<3)
	h.pc = h.csr.Raw(CsrMnepc)
	h.updateTranslation()
}

func (h *Hart) popStatusS(s uint64) uint64 {
	s &^= MstatusSie
	if s&MstatusSpie != 0 {
		s |= MstatusSie
	}
	s |= MstatusSpie
	return s &^ MstatusSpp
}
