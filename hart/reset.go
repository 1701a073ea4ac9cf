package hart

import (
	"github.com/sarchlab/r5sim/mem"
	"github.com/sarchlab/r5sim/mmu"
)

const defaultMisa = MisaA | MisaB | MisaC | MisaD | MisaF | MisaH |
	MisaI | MisaM | MisaS | MisaU | MisaV

const mstatusWriteMask = MstatusSie | MstatusMie | MstatusSpie |
	MstatusMpie | MstatusSpp | MstatusMpp | MstatusFs | MstatusVs |
	MstatusMprv | MstatusSum | MstatusMxr | MstatusTvm | MstatusTw |
	MstatusTsr | MstatusUbe | MstatusMbe | MstatusSbe | MstatusMpv |
	MstatusGva

const sstatusMask = MstatusSie | MstatusSpie | MstatusSpp |
	MstatusFs | MstatusVs | MstatusSum | MstatusMxr | MstatusUbe |
	MstatusSd

const sInterrupts = IpSsip | IpStip | IpSeip
const vsInterrupts = IpVsip | IpVstp | IpVsep
const hsInterrupts = vsInterrupts | IpSgei

// defineCsrs installs every CSR the hart implements with its reset
// value and masks. Gating by MISA happens afterwards in Reset.
func (h *Hart) defineCsrs() {
	c := h.csr
	all := ^uint64(0)

	mstatusReset := uint64(0)
	if h.rv64() {
		// SXL = UXL = 64.
		mstatusReset = 2<<34 | 2<<32
	}

	c.Define(CsrMvendorid, 0, 0, 0)
	c.Define(CsrMarchid, 0, 0, 0)
	c.Define(CsrMimpid, 0, 0, 0)
	c.Define(CsrMhartid, 0, 0, all)

	c.Define(CsrMstatus, mstatusReset, mstatusWriteMask, all)
	c.Define(CsrMisa, h.misaReset(), MisaC, all)
	c.Define(CsrMedeleg, 0, 0xF0FFFF, all)
	c.Define(CsrMideleg, 0, sInterrupts|vsInterrupts|IpSgei, all)
	c.Define(CsrMie, 0, IpMsip|IpMtip|IpMeip|sInterrupts|hsInterrupts, all)
	c.Define(CsrMtvec, 0, ^uint64(2), all)
	c.Define(CsrMcounteren, 0, 0xFFFF_FFFF, all)
	c.Define(CsrMcountinhibit, 0, 0xFFFF_FFFD, all)
	c.Define(CsrMvien, 0, IpSsip|IpSeip, all)
	c.Define(CsrMvip, 0, IpSsip|IpStip|IpSeip, all)
	c.Define(CsrMscratch, 0, all, all)
	c.Define(CsrMepc, 0, ^uint64(1), all)
	c.Define(CsrMcause, 0, all, all)
	c.Define(CsrMtval, 0, all, all)
	c.Define(CsrMip, 0, IpSsip|IpStip|IpSeip|vsInterrupts, all)
	c.Define(CsrMtinst, 0, all, all)
	c.Define(CsrMtval2, 0, all, all)
	c.Define(CsrMenvcfg, 0,
		EnvcfgFiom|EnvcfgCbie|EnvcfgCbcfe|EnvcfgCbze|EnvcfgPbmte|EnvcfgStce,
		all)
	c.Define(CsrMseccfg, 0, 0x7, all)
	c.Define(CsrMcycle, 0, all, all)
	c.Define(CsrMinstret, 0, all, all)

	for i := uint16(0); i < 16; i++ {
		c.Define(CsrPmpcfg0+i, 0, all, all)
	}
	for i := uint16(0); i < mem.NumPmpEntries; i++ {
		c.Define(CsrPmpaddr0+i, 0, all, all)
	}

	c.Define(CsrSstatus, 0, sstatusMask, all)
	c.Define(CsrSie, 0, sInterrupts, all)
	c.Define(CsrStvec, 0, ^uint64(2), all)
	c.Define(CsrScounteren, 0, 0xFFFF_FFFF, all)
	c.Define(CsrSenvcfg, 0, EnvcfgFiom|EnvcfgCbie|EnvcfgCbcfe|EnvcfgCbze, all)
	c.Define(CsrSscratch, 0, all, all)
	c.Define(CsrSepc, 0, ^uint64(1), all)
	c.Define(CsrScause, 0, all, all)
	c.Define(CsrStval, 0, all, all)
	c.Define(CsrSip, 0, IpSsip, all)
	c.Define(CsrStimecmp, ^uint64(0), all, all)
	c.Define(CsrSatp, 0, all, all)

	c.Define(CsrHstatus, 0,
		HstatusVsbe|HstatusGva|HstatusSpv|HstatusSpvp|HstatusHu|
			HstatusVtvm|HstatusVtw|HstatusVtsr, all)
	c.Define(CsrHedeleg, 0, 0xB1FF, all)
	c.Define(CsrHideleg, 0, vsInterrupts, all)
	c.Define(CsrHie, 0, hsInterrupts, all)
	c.Define(CsrHtimedelta, 0, all, all)
	c.Define(CsrHcounteren, 0, 0xFFFF_FFFF, all)
	c.Define(CsrHgeie, 0, ^uint64(1), all)
	c.Define(CsrHenvcfg, 0,
		EnvcfgFiom|EnvcfgCbie|EnvcfgCbcfe|EnvcfgCbze|EnvcfgPbmte|EnvcfgStce,
		all)
	c.Define(CsrHtval, 0, all, all)
	c.Define(CsrHip, 0, IpVsip, all)
	c.Define(CsrHvip, 0, vsInterrupts, all)
	c.Define(CsrHvictl, 0, 0xC000_03FF|1<<30, all)
	c.Define(CsrHtinst, 0, all, all)
	c.Define(CsrHgatp, 0, all, all)
	c.Define(CsrHgeip, 0, 0, all)

	c.Define(CsrVsstatus, 0, sstatusMask, all)
	c.Define(CsrVsie, 0, sInterrupts, all)
	c.Define(CsrVstvec, 0, ^uint64(2), all)
	c.Define(CsrVsscratch, 0, all, all)
	c.Define(CsrVsepc, 0, ^uint64(1), all)
	c.Define(CsrVscause, 0, all, all)
	c.Define(CsrVstval, 0, all, all)
	c.Define(CsrVsip, 0, IpSsip, all)
	c.Define(CsrVstimecmp, ^uint64(0), all, all)
	c.Define(CsrVsatp, 0, all, all)

	c.Define(CsrFflags, 0, 0x1F, all)
	c.Define(CsrFrm, 0, 0x7, all)
	c.Define(CsrFcsr, 0, 0xFF, all)

	c.Define(CsrVstart, 0, all, all)
	c.Define(CsrVxsat, 0, 1, all)
	c.Define(CsrVxrm, 0, 3, all)
	c.Define(CsrVcsr, 0, 7, all)
	c.Define(CsrVl, 0, 0, all)
	c.Define(CsrVtype, 0, 0, all)
	c.Define(CsrVlenb, uint64(h.vlenb), 0, 0)

	c.Define(CsrTselect, 0, all, all)
	c.Define(CsrTdata1, 0, all, all)
	c.Define(CsrTdata2, 0, all, all)
	c.Define(CsrTdata3, 0, 0, all)
	c.Define(CsrTinfo, 0x8005C, 0, 0)

	c.Define(CsrDcsr, 0x4000_0003, 0x0000_E7C7, all)
	c.Define(CsrDpc, 0, ^uint64(1), all)
	c.Define(CsrDscratch0, 0, all, all)
	c.Define(CsrDscratch1, 0, all, all)

	c.Define(CsrMnscratch, 0, all, all)
	c.Define(CsrMnepc, 0, ^uint64(1), all)
	c.Define(CsrMncause, 0, all, all)
	// MNSTATUS.NMIE starts set so exceptions vector normally.
	c.Define(CsrMnstatus, 1<<3, 1<<3|MstatusMpp|MstatusMpv, all)
}

func (h *Hart) misaReset() uint64 {
	misa := defaultMisa
	if h.misaExt != 0 {
		misa = h.misaExt
	}
	if h.rv64() {
		return misa | 2<<62
	}
	return misa | 1<<30
}

// Reset restores the hart to its power-on state. The sequencing
// matters: extension gating runs first, then CSR resets, then the
// cached status mirrors, translation and PMP reconfiguration, counter
// privilege, and finally the PMA defaults.
func (h *Hart) Reset() {
	h.processExtensions()
	h.csr.Reset()

	h.mstatus = h.csr.Raw(CsrMstatus)
	h.hstatus = h.csr.Raw(CsrHstatus)
	h.vsstatus = h.csr.Raw(CsrVsstatus)

	for i := range h.x {
		h.x[i] = 0
	}
	for i := range h.f {
		h.f[i] = 0
	}
	for i := range h.v {
		h.v[i] = 0
	}
	h.pc = 0
	h.currPc = 0
	h.priv = mem.PrivM
	h.virt = false
	h.elp = false
	h.bigEndian = false
	h.nmiPending = false
	h.res = Reservation{}
	h.trapPending = false
	h.stopEvent = nil
	h.debugMode = false
	h.lastIntValid = false
	h.lastFpValid = false
	h.vl = 0
	h.vtype = 0
	h.numIllegal = 0

	h.updateTranslation()
	h.updatePmp()
	h.updateCounterPrivilege()
	h.mem.Pma().Reset()
	h.walker.Reset()
	h.dcache.InvalidateAll()
	h.triggers.Reset()
}

// processExtensions gates CSR presence on the MISA reset value.
func (h *Hart) processExtensions() {
	misa := h.misaReset()
	if misa&MisaH == 0 {
		for _, a := range []uint16{
			CsrHstatus, CsrHedeleg, CsrHideleg, CsrHie, CsrHtimedelta,
			CsrHcounteren, CsrHgeie, CsrHenvcfg, CsrHtval, CsrHip,
			CsrHvip, CsrHtinst, CsrHgatp, CsrHgeip, CsrVsstatus,
			CsrVsie, CsrVstvec, CsrVsscratch, CsrVsepc, CsrVscause,
			CsrVstval, CsrVsip, CsrVsatp, CsrVstimecmp, CsrMtinst,
			CsrMtval2,
		} {
			h.csr.Undefine(a)
		}
	}
	if misa&MisaF == 0 {
		h.csr.Undefine(CsrFflags)
		h.csr.Undefine(CsrFrm)
		h.csr.Undefine(CsrFcsr)
	}
	if misa&MisaV == 0 {
		for _, a := range []uint16{
			CsrVstart, CsrVxsat, CsrVxrm, CsrVcsr, CsrVl, CsrVtype,
			CsrVlenb,
		} {
			h.csr.Undefine(a)
		}
	}
	if misa&MisaS == 0 {
		for _, a := range []uint16{
			CsrSstatus, CsrSie, CsrStvec, CsrScounteren, CsrSenvcfg,
			CsrSscratch, CsrSepc, CsrScause, CsrStval, CsrSip, CsrSatp,
			CsrStimecmp,
		} {
			h.csr.Undefine(a)
		}
	}
}

// updateTranslation pushes satp/vsatp/hgatp and the status bits into
// the walker.
func (h *Hart) updateTranslation() {
	satp := h.csr.Raw(CsrSatp)
	vsatp := h.csr.Raw(CsrVsatp)
	hgatp := h.csr.Raw(CsrHgatp)

	if h.rv64() {
		h.walker.SetSatp(mmu.Mode(satp>>60), uint16(satp>>44&0xFFFF),
			satp&(1<<44-1))
		h.walker.SetVsatp(mmu.Mode(vsatp>>60), uint16(vsatp>>44&0xFFFF),
			vsatp&(1<<44-1))
		h.walker.SetHgatp(mmu.Mode(hgatp>>60), uint16(hgatp>>44&0x3FFF),
			hgatp&(1<<44-1))
	} else {
		h.walker.SetSatp(mmu.Mode(satp>>31&1), uint16(satp>>22&0x1FF),
			satp&(1<<22-1))
		h.walker.SetVsatp(mmu.Mode(vsatp>>31&1), uint16(vsatp>>22&0x1FF),
			vsatp&(1<<22-1))
		h.walker.SetHgatp(mmu.Mode(hgatp>>31&1), uint16(hgatp>>22&0x7F),
			hgatp&(1<<22-1))
	}

	h.walker.SetStatusBits(
		h.mstatus&MstatusSum != 0,
		h.mstatus&MstatusMxr != 0,
		h.vsstatus&MstatusSum != 0,
		h.vsstatus&MstatusMxr != 0,
	)
	h.walker.SetBigEndian(h.bigEndian)
}

// updatePmp pushes the PMPCFG/PMPADDR CSR values into the PMP unit.
func (h *Hart) updatePmp() {
	p := h.mem.Pmp()
	for i := 0; i < mem.NumPmpEntries; i++ {
		// RV64 packs 8 config bytes per even-numbered pmpcfg CSR.
		var cfgReg uint16
		if h.rv64() {
			cfgReg = CsrPmpcfg0 + uint16(i/8)*2
		} else {
			cfgReg = CsrPmpcfg0 + uint16(i/4)
		}
		cfg := h.csr.Raw(cfgReg)
		var b uint8
		if h.rv64() {
			b = uint8(cfg >> (uint(i%8) * 8))
		} else {
			b = uint8(cfg >> (uint(i%4) * 8))
		}
		p.SetCfg(i, b)
		p.SetAddr(i, h.csr.Raw(CsrPmpaddr0+uint16(i)))
	}
}

// updateCounterPrivilege keeps the user counter CSRs' visibility in
// sync with mcounteren/scounteren; visibility itself is checked at
// access time, so this only normalizes the masks.
func (h *Hart) updateCounterPrivilege() {
	// Counter reads route through readSpecialCsr; nothing cached.
}
