package hart

import "github.com/sarchlab/r5sim/mem"

// csrAccessErr distinguishes the two traps a CSR access can raise.
type csrAccessErr int

const (
	csrOk csrAccessErr = iota
	csrIllegal
	csrVirtual
)

// virtAlias maps supervisor CSR numbers to their VS twins while V=1.
func virtAlias(addr uint16) uint16 {
	switch addr {
	case CsrSstatus:
		return CsrVsstatus
	case CsrSie:
		return CsrVsie
	case CsrStvec:
		return CsrVstvec
	case CsrSscratch:
		return CsrVsscratch
	case CsrSepc:
		return CsrVsepc
	case CsrScause:
		return CsrVscause
	case CsrStval:
		return CsrVstval
	case CsrSip:
		return CsrVsip
	case CsrSatp:
		return CsrVsatp
	case CsrStimecmp:
		return CsrVstimecmp
	}
	return addr
}

func csrMinPriv(addr uint16) mem.Priv {
	switch addr >> 8 & 3 {
	case 0:
		return mem.PrivU
	case 1, 2:
		return mem.PrivS
	default:
		return mem.PrivM
	}
}

func csrReadOnly(addr uint16) bool {
	return addr>>10&3 == 3
}

func isHypervisorCsr(addr uint16) bool {
	switch addr & 0xF00 {
	case 0x600, 0x200:
		return true
	}
	return addr == CsrHgeip
}

// checkCsrAccess validates privilege, virtualization, and counter
// enables for a CSR access from executing code.
func (h *Hart) checkCsrAccess(addr uint16, write bool) csrAccessErr {
	if write && csrReadOnly(addr) {
		return csrIllegal
	}
	min := csrMinPriv(addr)
	if h.priv < min {
		if h.virt && min == mem.PrivS && h.priv == mem.PrivS {
			return csrVirtual
		}
		return csrIllegal
	}
	if h.virt {
		if isHypervisorCsr(addr) {
			return csrVirtual
		}
		if addr == CsrSatp && h.hstatus&HstatusVtvm != 0 {
			return csrVirtual
		}
	} else if addr == CsrSatp && h.priv == mem.PrivS &&
		h.mstatus&MstatusTvm != 0 {
		return csrIllegal
	}

	switch addr {
	case CsrCycle, CsrTime, CsrInstret, CsrCycleH, CsrTimeH, CsrInstretH:
		return h.checkCounterAccess(addr)
	}
	return csrOk
}

func (h *Hart) checkCounterAccess(addr uint16) csrAccessErr {
	bit := uint64(1) << (addr & 0x1F)
	if h.priv < mem.PrivM && h.csr.Raw(CsrMcounteren)&bit == 0 {
		return csrIllegal
	}
	if h.virt && h.csr.Raw(CsrHcounteren)&bit == 0 {
		return csrVirtual
	}
	if h.priv == mem.PrivU && !h.virt &&
		h.csr.Raw(CsrScounteren)&bit == 0 {
		return csrIllegal
	}
	return csrOk
}

// effMip recomputes the MIP view with every alias folded in: the SEI
// pin, Sstc timer compares, hvip injection, and the MVIP override for
// bits delegated through mvien. Recomputed on every read so external
// pokes are observed at instruction boundaries.
func (h *Hart) effMip() uint64 {
	mip := h.csr.Raw(CsrMip)
	if h.seiPin {
		mip |= IpSeip
	}
	if h.csr.Raw(CsrMenvcfg)&EnvcfgStce != 0 &&
		h.csr.Implemented(CsrStimecmp) &&
		h.Time() >= h.csr.Raw(CsrStimecmp) {
		mip |= IpStip
	}
	if h.csr.Raw(CsrHenvcfg)&EnvcfgStce != 0 &&
		h.csr.Implemented(CsrVstimecmp) &&
		h.Time()+h.csr.Raw(CsrHtimedelta) >= h.csr.Raw(CsrVstimecmp) {
		mip |= IpVstp
	}
	mip |= h.csr.Raw(CsrHvip) & vsInterrupts

	// MVIP overrides SSIP for bits delegated via mvien. The override
	// is applied after all other aliasing.
	mvien := h.csr.Raw(CsrMvien)
	if mvien&IpSsip != 0 {
		mip = mip&^IpSsip | h.csr.Raw(CsrMvip)&IpSsip
	}
	if mvien&IpSeip != 0 {
		mip = mip&^IpSeip | h.csr.Raw(CsrMvip)&IpSeip
	}
	return mip
}

// readCsr returns the value of addr as seen by executing code, with
// derived registers computed on the fly. The caller has already
// passed checkCsrAccess.
func (h *Hart) readCsr(addr uint16) (uint64, bool) {
	if h.virt {
		addr = virtAlias(addr)
	}
	switch addr {
	case CsrMstatus:
		return h.mstatus, true
	case CsrSstatus:
		return h.mstatus & sstatusMask, true
	case CsrMip:
		return h.effMip(), true
	case CsrSip:
		return h.effMip() & h.csr.Raw(CsrMideleg) & sInterrupts, true
	case CsrVsip:
		return (h.effMip() & h.csr.Raw(CsrHideleg) & vsInterrupts) >> 1, true
	case CsrSie:
		return h.csr.Raw(CsrMie) & sInterrupts, true
	case CsrVsie:
		return (h.csr.Raw(CsrHie) & vsInterrupts) >> 1, true
	case CsrHip:
		return h.effMip() & hsInterrupts, true
	case CsrTime:
		return h.Time() & h.xlenMask, true
	case CsrTimeH:
		return h.Time() >> 32, true
	case CsrCycle, CsrMcycle:
		return h.cycle & h.xlenMask, true
	case CsrCycleH, CsrMcycleH:
		return h.cycle >> 32, true
	case CsrInstret, CsrMinstret:
		return h.retiredInsts & h.xlenMask, true
	case CsrInstretH, CsrMinstretH:
		return h.retiredInsts >> 32, true
	case CsrFcsr:
		return h.csr.Raw(CsrFrm)<<5 | h.csr.Raw(CsrFflags), true
	case CsrVl:
		return h.vl, true
	case CsrVtype:
		return h.vtype, true
	}
	return h.csr.Read(addr)
}

// writeCsr performs an architectural CSR write with view routing and
// post-write side effects. The caller has already passed
// checkCsrAccess.
func (h *Hart) writeCsr(addr uint16, v uint64) bool {
	if h.virt {
		addr = virtAlias(addr)
	}
	switch addr {
	case CsrSstatus:
		v = h.mstatus&^sstatusMask | v&sstatusMask
		addr = CsrMstatus
	case CsrSie:
		cur := h.csr.Raw(CsrMie)
		return h.csr.Write(CsrMie, cur&^sInterrupts|v&sInterrupts)
	case CsrVsie:
		cur := h.csr.Raw(CsrHie)
		return h.csr.Write(CsrHie, cur&^vsInterrupts|v<<1&vsInterrupts)
	case CsrSip:
		// SSIP routes to MVIP when delegated through mvien; the
		// check uses the pre-write delegation state.
		if h.csr.Raw(CsrMvien)&IpSsip != 0 {
			cur := h.csr.Raw(CsrMvip)
			return h.csr.Write(CsrMvip, cur&^IpSsip|v&IpSsip)
		}
		cur := h.csr.Raw(CsrMip)
		return h.csr.Write(CsrMip, cur&^IpSsip|v&IpSsip)
	case CsrVsip:
		cur := h.csr.Raw(CsrHvip)
		return h.csr.Write(CsrHvip, cur&^IpVsip|v<<1&IpVsip)
	case CsrFcsr:
		h.csr.Write(CsrFflags, v&0x1F)
		h.csr.Write(CsrFrm, v>>5&7)
		h.setFsDirty()
		return true
	case CsrFflags, CsrFrm:
		ok := h.csr.Write(addr, v)
		h.setFsDirty()
		return ok
	case CsrMcycle:
		h.cycle = v
		return true
	case CsrMinstret:
		h.retiredInsts = v
		return true
	}

	ok := h.csr.Write(addr, v)
	if !ok {
		return false
	}
	h.csrSideEffects(addr)
	return true
}

// csrSideEffects re-derives cached mirrors after a write.
func (h *Hart) csrSideEffects(addr uint16) {
	switch addr {
	case CsrMstatus:
		h.mstatus = h.csr.Raw(CsrMstatus)
		h.updateTranslation()
	case CsrHstatus:
		h.hstatus = h.csr.Raw(CsrHstatus)
	case CsrVsstatus:
		h.vsstatus = h.csr.Raw(CsrVsstatus)
		h.updateTranslation()
	case CsrSatp, CsrVsatp, CsrHgatp:
		h.updateTranslation()
	case CsrMenvcfg, CsrHenvcfg:
		// STCE gating can change timer pending bits; nothing cached.
	}
	if addr >= CsrPmpcfg0 && addr < CsrPmpcfg0+16 ||
		addr >= CsrPmpaddr0 && addr < CsrPmpaddr0+mem.NumPmpEntries {
		h.updatePmp()
	}
	if addr >= CsrTselect && addr <= CsrTdata3 {
		h.triggers.SyncFromCsrs(h.csr)
	}
}

// PeekCsr reads a CSR from the host side, bypassing privilege checks
// but honoring derived views.
func (h *Hart) PeekCsr(addr uint16) (uint64, bool) {
	switch addr {
	case CsrMip:
		return h.effMip(), true
	case CsrMstatus:
		return h.mstatus, true
	case CsrSstatus:
		return h.mstatus & sstatusMask, true
	case CsrVsstatus:
		return h.vsstatus, true
	case CsrSip:
		return h.effMip() & h.csr.Raw(CsrMideleg) & sInterrupts, true
	case CsrSie:
		return h.csr.Raw(CsrMie) & sInterrupts, true
	case CsrVsip:
		return (h.effMip() & h.csr.Raw(CsrHideleg) & vsInterrupts) >> 1, true
	case CsrVsie:
		return (h.csr.Raw(CsrHie) & vsInterrupts) >> 1, true
	case CsrHip:
		return h.effMip() & hsInterrupts, true
	case CsrTime:
		return h.Time(), true
	case CsrMcycle, CsrCycle:
		return h.cycle, true
	case CsrMinstret, CsrInstret:
		return h.retiredInsts, true
	case CsrFcsr:
		return h.csr.Raw(CsrFrm)<<5 | h.csr.Raw(CsrFflags), true
	case CsrVl:
		return h.vl, true
	case CsrVtype:
		return h.vtype, true
	}
	return h.csr.Read(addr)
}

// PokeCsr writes a CSR from the host side through the poke mask.
func (h *Hart) PokeCsr(addr uint16, v uint64) bool {
	switch addr {
	case CsrMcycle:
		h.cycle = v
		return true
	case CsrMinstret:
		h.retiredInsts = v
		return true
	case CsrVl:
		h.vl = v
		return true
	case CsrVtype:
		h.vtype = v
		return true
	}
	if !h.csr.Poke(addr, v) {
		return false
	}
	h.csrSideEffects(addr)
	return true
}

// LastCsrWrites returns the CSR changes recorded during the most
// recent step.
func (h *Hart) LastCsrWrites() []CsrWrite {
	return h.csr.Writes()
}
