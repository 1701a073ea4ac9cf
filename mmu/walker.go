package mmu

import (
	"github.com/sarchlab/r5sim/mem"
)

// AccessKind distinguishes translation request flavors.
type AccessKind uint8

// Access kinds.
const (
	AccessFetch AccessKind = iota
	AccessLoad
	AccessStore
)

// FaultType classifies a translation failure. The hart maps
// (FaultType, AccessKind) to the architectural cause number.
type FaultType uint8

// Fault types.
const (
	FaultMisaligned FaultType = iota
	FaultAccess
	FaultPage
	FaultGuestPage
)

// Fault describes a failed translation.
type Fault struct {
	Type FaultType
	Kind AccessKind

	// Addr is the faulting virtual address (tval).
	Addr uint64

	// Gpa is the faulting guest-physical address for guest-page
	// faults (tval2 holds Gpa >> 2).
	Gpa uint64

	// S1Implicit is set when a G-stage fault occurred during a
	// VS-stage implicit PTE access; ImplicitWrite further marks the
	// A/D writeback case. Both feed the htinst pseudo-instruction.
	S1Implicit    bool
	ImplicitWrite bool
}

// WalkStep is one recorded step of a page-table walk.
type WalkStep struct {
	// Space is the address space of Addr: "GVA", "GPA", "PA", or
	// "RE" for the resolved leaf.
	Space string
	Addr  uint64
	Pte   uint64
}

// Result is a successful translation.
type Result struct {
	Pa uint64

	// CrossPage is set when the access straddles a page boundary;
	// Pa2 is then the translation of the second page's base.
	CrossPage bool
	Pa2       uint64

	Pbmt  Pbmt
	Walks []WalkStep
}

// Physical is the memory surface the walker needs: PTE reads and A/D
// writebacks plus the PMP/PMA predicates. *mem.Memory satisfies it.
type Physical interface {
	Read(pa uint64, size int, be bool) (uint64, bool)
	Write(pa uint64, size int, value uint64, be bool) bool
	IsReadable(pa, size uint64, pm mem.Priv) bool
	IsWritable(pa, size uint64, pm mem.Priv) bool
}

// Walker performs address translation for one hart. The hart
// reprograms it on satp/vsatp/hgatp/status CSR writes and consults it
// for every fetch and data access.
type Walker struct {
	mem Physical

	satpMode  Mode
	satpAsid  uint16
	satpPpn   uint64
	vsatpMode Mode
	vsatpAsid uint16
	vsatpPpn  uint64
	hgatpMode Mode
	hgatpVmid uint16
	hgatpPpn  uint64

	sum   bool
	mxr   bool
	vsSum bool
	vsMxr bool

	bigEndian          bool
	faultOnFirstAccess bool
	misalignPriority   bool
	world              World

	// execReadable is set for HLVX: loads succeed on X-only pages.
	execReadable bool

	tlb   *Tlb // single-stage
	tlbVs *Tlb
	tlbG  *Tlb

	walks []WalkStep
}

// WalkerOption configures a Walker.
type WalkerOption func(*Walker)

// WithTlbSize sets the slot count of each of the three TLBs.
func WithTlbSize(size uint64) WalkerOption {
	return func(w *Walker) {
		w.tlb = NewTlb(size)
		w.tlbVs = NewTlb(size)
		w.tlbG = NewTlb(size)
	}
}

// WithFaultOnFirstAccess makes A=0 (or D=0 on store) pages fault
// instead of updating the PTE in place.
func WithFaultOnFirstAccess(v bool) WalkerOption {
	return func(w *Walker) {
		w.faultOnFirstAccess = v
	}
}

// WithMisalignPriority makes misaligned page-crossing accesses raise
// an address-misaligned fault before translating the second half.
func WithMisalignPriority(v bool) WalkerOption {
	return func(w *Walker) {
		w.misalignPriority = v
	}
}

// NewWalker creates a translator over the given physical memory.
func NewWalker(phys Physical, opts ...WalkerOption) *Walker {
	w := &Walker{
		mem:   phys,
		tlb:   NewTlb(256),
		tlbVs: NewTlb(256),
		tlbG:  NewTlb(256),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetSatp programs the single-stage (HS/S) translation root.
func (w *Walker) SetSatp(mode Mode, asid uint16, ppn uint64) {
	w.satpMode, w.satpAsid, w.satpPpn = mode, asid, ppn
}

// SetVsatp programs the VS-stage translation root.
func (w *Walker) SetVsatp(mode Mode, asid uint16, ppn uint64) {
	w.vsatpMode, w.vsatpAsid, w.vsatpPpn = mode, asid, ppn
}

// SetHgatp programs the G-stage translation root.
func (w *Walker) SetHgatp(mode Mode, vmid uint16, ppn uint64) {
	w.hgatpMode, w.hgatpVmid, w.hgatpPpn = mode, vmid, ppn
}

// SetStatusBits updates the cached SUM/MXR views for both the HS and
// VS status registers.
func (w *Walker) SetStatusBits(sum, mxr, vsSum, vsMxr bool) {
	w.sum, w.mxr, w.vsSum, w.vsMxr = sum, mxr, vsSum, vsMxr
}

// SetBigEndian sets the byte order used for PTE accesses.
func (w *Walker) SetBigEndian(be bool) { w.bigEndian = be }

// SetWorld sets the world tag for subsequent walks and TLB fills.
func (w *Walker) SetWorld(world World) { w.world = world }

// SetExecReadable makes loads succeed on execute-only pages (HLVX).
func (w *Walker) SetExecReadable(v bool) { w.execReadable = v }

// Tlb returns the single-stage TLB (test and fence access).
func (w *Walker) Tlb() *Tlb { return w.tlb }

// TlbVs returns the VS-stage TLB.
func (w *Walker) TlbVs() *Tlb { return w.tlbVs }

// TlbG returns the G-stage TLB.
func (w *Walker) TlbG() *Tlb { return w.tlbG }

// Reset drops all TLB state (hart reset, satp mode change).
func (w *Walker) Reset() {
	for _, t := range []*Tlb{w.tlb, w.tlbVs, w.tlbG} {
		for i := range t.entries {
			t.entries[i].Valid = false
		}
	}
}

func pageFault(kind AccessKind, va uint64) *Fault {
	return &Fault{Type: FaultPage, Kind: kind, Addr: va}
}

func accessFault(kind AccessKind, va uint64) *Fault {
	return &Fault{Type: FaultAccess, Kind: kind, Addr: va}
}

// Translate resolves va for an access of size bytes at privilege pm,
// virtualization virt, and the given kind. Crossing-page data
// accesses translate both halves; the second half's fault reports the
// second page's address.
func (w *Walker) Translate(va, size uint64, pm mem.Priv, virt bool,
	kind AccessKind) (Result, *Fault) {
	w.walks = w.walks[:0]

	crosses := size > 0 && (va%PageSize)+size > PageSize
	if crosses && w.misalignPriority {
		return Result{}, &Fault{Type: FaultMisaligned, Kind: kind, Addr: va}
	}

	res, fault := w.translateOne(va, pm, virt, kind)
	if fault != nil {
		return Result{}, fault
	}

	if crosses && kind != AccessFetch {
		va2 := (va &^ (PageSize - 1)) + PageSize
		res2, fault2 := w.translateOne(va2, pm, virt, kind)
		if fault2 != nil {
			return Result{}, fault2
		}
		res.CrossPage = true
		res.Pa2 = res2.Pa
	}

	res.Walks = append([]WalkStep(nil), w.walks...)
	return res, nil
}

// translateOne resolves a single page.
func (w *Walker) translateOne(va uint64, pm mem.Priv, virt bool,
	kind AccessKind) (Result, *Fault) {
	if pm == mem.PrivM {
		return Result{Pa: va}, nil
	}
	if !virt {
		if w.satpMode == Bare {
			return Result{Pa: va}, nil
		}
		return w.walkStage(stageSingle, va, pm, kind)
	}

	// Two-stage: VS first (if enabled), then G.
	if w.vsatpMode == Bare {
		return w.gTranslate(va, va, kind, kind == AccessStore, false)
	}
	return w.walkStage(stageVs, va, pm, kind)
}

type stageId uint8

const (
	stageSingle stageId = iota
	stageVs
	stageG
)

func (w *Walker) stageParams(s stageId) (ModeSpec, uint64, uint16, uint16, *Tlb) {
	switch s {
	case stageSingle:
		spec, _ := Spec(w.satpMode)
		return spec, w.satpPpn, w.satpAsid, 0, w.tlb
	case stageVs:
		spec, _ := Spec(w.vsatpMode)
		return spec, w.vsatpPpn, w.vsatpAsid, w.hgatpVmid, w.tlbVs
	default:
		spec, _ := Spec(w.hgatpMode)
		return spec, w.hgatpPpn, 0, w.hgatpVmid, w.tlbG
	}
}

// walkStage performs the walk for the single or VS stage; the VS stage
// routes every PTE access and the final GPA through the G stage.
func (w *Walker) walkStage(stage stageId, va uint64, pm mem.Priv,
	kind AccessKind) (Result, *Fault) {
	spec, rootPpn, asid, vmid, tlb := w.stageParams(stage)
	isStore := kind == AccessStore

	if !spec.CheckVaCanonical(va) {
		return Result{}, pageFault(kind, va)
	}

	vpn := va >> PageShift

	// TLB hit path. A hit whose A is clear (or D on a store) is
	// treated as a miss so the walk performs the update.
	if e := tlb.Lookup(vpn, asid, vmid, w.world); e != nil {
		if fault := w.checkLeafPerms(entryPte(e), spec, stage, va, pm, kind); fault == nil {
			if e.Perms.A && (!isStore || e.Perms.D) {
				levelVpnMask := uint64(1)<<(uint(e.Level)*spec.VpnBits) - 1
				ppn := e.Ppn | (vpn & levelVpnMask)
				pa := ppn<<PageShift | va&(PageSize-1)
				if stage == stageVs {
					return w.gTranslate(va, pa, kind, isStore, false)
				}
				return Result{Pa: pa, Pbmt: e.Pbmt}, nil
			}
		}
	}

	level := spec.Levels - 1
	base := rootPpn * PageSize

restart:
	for ; level >= 0; level-- {
		pteAddr := base + spec.Vpn(va, level)*uint64(spec.PteSize)

		pte, fault := w.readPte(stage, va, pteAddr, kind)
		if fault != nil {
			return Result{}, fault
		}

		if pte&PteV == 0 || (pte&PteR == 0 && pte&PteW != 0) {
			return Result{}, w.stagePageFault(stage, kind, va)
		}
		if spec.PteReserved(pte) {
			return Result{}, w.stagePageFault(stage, kind, va)
		}
		pbmt := spec.PtePbmt(pte)
		if pbmt == 3 {
			return Result{}, w.stagePageFault(stage, kind, va)
		}

		if !IsLeaf(pte) {
			// Non-leaf: A/D/U/PBMT/N must all be clear.
			if pte&(PteA|PteD|PteU) != 0 || pbmt != PbmtNone ||
				spec.PteNapot(pte) {
				return Result{}, w.stagePageFault(stage, kind, va)
			}
			base = spec.Ppn(pte) * PageSize
			continue
		}

		if spec.LeafMisaligned(pte, level) {
			return Result{}, w.stagePageFault(stage, kind, va)
		}
		if fault := w.checkLeafPerms(pte, spec, stage, va, pm, kind); fault != nil {
			return Result{}, fault
		}

		napot := spec.PteNapot(pte)
		if napot && (level != 0 || spec.Ppn(pte)&0xF != 0x8) {
			return Result{}, w.stagePageFault(stage, kind, va)
		}

		// A/D maintenance.
		needA := pte&PteA == 0
		needD := isStore && pte&PteD == 0
		if needA || needD {
			if w.faultOnFirstAccess || pbmt != PbmtNone {
				return Result{}, w.stagePageFault(stage, kind, va)
			}
			updated, fault := w.updateAD(stage, va, pteAddr, pte, isStore, spec)
			if fault != nil {
				return Result{}, fault
			}
			if !updated {
				// PTE changed underneath; restart from this level.
				goto restart
			}
			pte |= PteA
			if isStore {
				pte |= PteD
			}
		}

		ppn := spec.Ppn(pte)
		if napot {
			ppn = ppn&^0xF | spec.Vpn(va, 0)&0xF
		}
		levelVpnMask := uint64(1)<<(uint(level)*spec.VpnBits) - 1
		ppn |= va >> PageShift & levelVpnMask

		// NAPOT leaves are cached per 4K page with the low PPN bits
		// already substituted.
		insertPpn := spec.Ppn(pte)
		if napot {
			insertPpn = ppn
		}
		tlb.Insert(Entry{
			Vpn:     vpn,
			Ppn:     insertPpn,
			Asid:    asid,
			Vmid:    vmid,
			World:   w.world,
			Level:   level,
			VpnBits: spec.VpnBits,
			Pbmt:    pbmt,
			Perms:   permsOf(pte),
		})

		pa := ppn<<PageShift | va&(PageSize-1)
		w.walks = append(w.walks, WalkStep{Space: "RE", Addr: pa, Pte: pte})

		if stage == stageVs {
			return w.gTranslate(va, pa, kind, isStore, false)
		}
		return Result{Pa: pa, Pbmt: pbmt}, nil
	}

	return Result{}, w.stagePageFault(stage, kind, va)
}

func entryPte(e *Entry) uint64 {
	var pte uint64 = PteV
	p := e.Perms
	if p.R {
		pte |= PteR
	}
	if p.W {
		pte |= PteW
	}
	if p.X {
		pte |= PteX
	}
	if p.U {
		pte |= PteU
	}
	if p.G {
		pte |= PteG
	}
	if p.A {
		pte |= PteA
	}
	if p.D {
		pte |= PteD
	}
	return pte
}

func permsOf(pte uint64) Perms {
	return Perms{
		R: pte&PteR != 0,
		W: pte&PteW != 0,
		X: pte&PteX != 0,
		U: pte&PteU != 0,
		G: pte&PteG != 0,
		A: pte&PteA != 0,
		D: pte&PteD != 0,
	}
}

// stagePageFault builds the right fault flavor: G-stage walks raise
// guest-page faults carrying the GPA, other stages raise page faults.
func (w *Walker) stagePageFault(stage stageId, kind AccessKind, addr uint64) *Fault {
	if stage == stageG {
		return &Fault{Type: FaultGuestPage, Kind: kind, Addr: addr, Gpa: addr}
	}
	return pageFault(kind, addr)
}

// checkLeafPerms applies U/SUM/MXR and R/W/X checks to a leaf PTE.
func (w *Walker) checkLeafPerms(pte uint64, spec ModeSpec, stage stageId,
	va uint64, pm mem.Priv, kind AccessKind) *Fault {
	sum, mxr := w.sum, w.mxr
	if stage == stageVs {
		sum, mxr = w.vsSum, w.vsMxr
	}
	if stage == stageG {
		// All G-stage accesses behave as user mode.
		if pte&PteU == 0 {
			return w.stagePageFault(stage, kind, va)
		}
	} else {
		if pte&PteU != 0 && pm == mem.PrivS {
			if kind == AccessFetch || !sum {
				return w.stagePageFault(stage, kind, va)
			}
		}
		if pte&PteU == 0 && pm == mem.PrivU {
			return w.stagePageFault(stage, kind, va)
		}
	}

	switch kind {
	case AccessFetch:
		if pte&PteX == 0 {
			return w.stagePageFault(stage, kind, va)
		}
	case AccessLoad:
		readable := pte&PteR != 0
		if mxr && pte&PteX != 0 {
			readable = true
		}
		if w.execReadable && pte&PteX != 0 {
			readable = true
		}
		if !readable {
			return w.stagePageFault(stage, kind, va)
		}
	default:
		if pte&PteW == 0 {
			return w.stagePageFault(stage, kind, va)
		}
	}
	return nil
}

// readPte reads a PTE. In the VS stage the PTE address is itself a
// guest-physical address and goes through the G stage first; a fault
// there is an implicit-access guest-page fault for the original kind.
func (w *Walker) readPte(stage stageId, va, pteAddr uint64,
	kind AccessKind) (uint64, *Fault) {
	spec, _, _, _, _ := w.stageParams(stage)

	pa := pteAddr
	space := "PA"
	if stage == stageVs {
		space = "GPA"
		res, fault := w.gTranslate(va, pteAddr, kind, false, true)
		if fault != nil {
			return 0, fault
		}
		pa = res.Pa
	}

	if !w.mem.IsReadable(pa, uint64(spec.PteSize), mem.PrivS) {
		return 0, accessFault(kind, va)
	}
	pte, ok := w.mem.Read(pa, spec.PteSize, w.bigEndian)
	if !ok {
		return 0, accessFault(kind, va)
	}
	w.walks = append(w.walks, WalkStep{Space: space, Addr: pteAddr, Pte: pte})
	return pte, nil
}

// updateAD re-reads the PTE, verifies it is unchanged, sets A (and D
// for stores) and writes it back. Returns updated=false when the PTE
// changed underneath, in which case the caller restarts the walk.
func (w *Walker) updateAD(stage stageId, va, pteAddr, pte uint64,
	isStore bool, spec ModeSpec) (bool, *Fault) {
	pa := pteAddr
	if stage == stageVs {
		// The writeback is itself a G-stage translation with write
		// permission; a fault there is an implicit-write guest fault.
		res, fault := w.gTranslate(va, pteAddr, AccessStore, true, true)
		if fault != nil {
			fault.Kind = AccessStore
			fault.ImplicitWrite = true
			return false, fault
		}
		pa = res.Pa
	}

	cur, ok := w.mem.Read(pa, spec.PteSize, w.bigEndian)
	if !ok {
		return false, accessFault(AccessStore, va)
	}
	if cur != pte {
		return false, nil
	}
	if !w.mem.IsWritable(pa, uint64(spec.PteSize), mem.PrivS) {
		kind := AccessLoad
		if isStore {
			kind = AccessStore
		}
		return false, accessFault(kind, va)
	}
	next := pte | PteA
	if isStore {
		next |= PteD
	}
	if !w.mem.Write(pa, spec.PteSize, next, w.bigEndian) {
		return false, accessFault(AccessStore, va)
	}
	return true, nil
}

// gTranslate resolves a guest-physical address through the G stage.
// va is the original guest-virtual address (for fault reporting);
// implicit marks VS-stage PTE accesses, for which the execReadable
// override must not apply.
func (w *Walker) gTranslate(va, gpa uint64, kind AccessKind,
	isStore bool, implicit bool) (Result, *Fault) {
	if w.hgatpMode == Bare {
		return Result{Pa: gpa}, nil
	}

	savedExecReadable := w.execReadable
	if implicit {
		w.execReadable = false
	}

	gKind := kind
	if implicit && !isStore {
		gKind = AccessLoad
	}
	if implicit && isStore {
		gKind = AccessStore
	}

	res, fault := w.walkG(gpa, gKind)
	w.execReadable = savedExecReadable

	if fault != nil {
		// Report with the original access kind and addresses.
		fault.Kind = kind
		fault.Gpa = gpa
		fault.Addr = va
		fault.S1Implicit = implicit
		fault.ImplicitWrite = implicit && isStore
		return Result{}, fault
	}
	return res, nil
}

// walkG is the G-stage page-table walk. It treats every access as
// user mode and uses the widened root (hgatp tables span 4 extra VA
// bits; the extension is handled by widening the top-level index).
func (w *Walker) walkG(gpa uint64, kind AccessKind) (Result, *Fault) {
	spec, ok := Spec(w.hgatpMode)
	if !ok {
		return Result{Pa: gpa}, nil
	}
	isStore := kind == AccessStore

	gpn := gpa >> PageShift
	if e := w.tlbG.Lookup(gpn, 0, w.hgatpVmid, w.world); e != nil {
		if fault := w.checkLeafPerms(entryPte(e), spec, stageG, gpa, mem.PrivU, kind); fault == nil {
			if e.Perms.A && (!isStore || e.Perms.D) {
				levelVpnMask := uint64(1)<<(uint(e.Level)*spec.VpnBits) - 1
				ppn := e.Ppn | gpn&levelVpnMask
				return Result{
					Pa:   ppn<<PageShift | gpa&(PageSize-1),
					Pbmt: e.Pbmt,
				}, nil
			}
		}
	}

	// The G-stage VA space is 2 bits wider than the VS space; gpa
	// bits above it must be zero.
	maxGpaBits := spec.VaBits + 2
	if maxGpaBits < 64 && gpa>>maxGpaBits != 0 {
		return Result{}, w.stagePageFault(stageG, kind, gpa)
	}

	level := spec.Levels - 1
	base := w.hgatpPpn * PageSize

restart:
	for ; level >= 0; level-- {
		idx := spec.Vpn(gpa, level)
		if level == spec.Levels-1 {
			// Root level index includes the 2 widening bits.
			shift := PageShift + uint(level)*spec.VpnBits
			idx = (gpa >> shift) & ((1 << (spec.VpnBits + 2)) - 1)
		}
		pteAddr := base + idx*uint64(spec.PteSize)

		if !w.mem.IsReadable(pteAddr, uint64(spec.PteSize), mem.PrivS) {
			return Result{}, accessFault(kind, gpa)
		}
		pte, ok := w.mem.Read(pteAddr, spec.PteSize, w.bigEndian)
		if !ok {
			return Result{}, accessFault(kind, gpa)
		}
		w.walks = append(w.walks, WalkStep{Space: "PA", Addr: pteAddr, Pte: pte})

		if pte&PteV == 0 || (pte&PteR == 0 && pte&PteW != 0) ||
			spec.PteReserved(pte) {
			return Result{}, w.stagePageFault(stageG, kind, gpa)
		}
		pbmt := spec.PtePbmt(pte)
		if pbmt == 3 {
			return Result{}, w.stagePageFault(stageG, kind, gpa)
		}

		if !IsLeaf(pte) {
			if pte&(PteA|PteD|PteU) != 0 || pbmt != PbmtNone ||
				spec.PteNapot(pte) {
				return Result{}, w.stagePageFault(stageG, kind, gpa)
			}
			base = spec.Ppn(pte) * PageSize
			continue
		}

		if spec.LeafMisaligned(pte, level) {
			return Result{}, w.stagePageFault(stageG, kind, gpa)
		}
		if fault := w.checkLeafPerms(pte, spec, stageG, gpa, mem.PrivU, kind); fault != nil {
			return Result{}, fault
		}

		napot := spec.PteNapot(pte)
		if napot && (level != 0 || spec.Ppn(pte)&0xF != 0x8) {
			return Result{}, w.stagePageFault(stageG, kind, gpa)
		}

		needA := pte&PteA == 0
		needD := isStore && pte&PteD == 0
		if needA || needD {
			if w.faultOnFirstAccess || pbmt != PbmtNone {
				return Result{}, w.stagePageFault(stageG, kind, gpa)
			}
			updated, fault := w.updateAD(stageG, gpa, pteAddr, pte, isStore, spec)
			if fault != nil {
				return Result{}, fault
			}
			if !updated {
				goto restart
			}
			pte |= PteA
			if isStore {
				pte |= PteD
			}
		}

		ppn := spec.Ppn(pte)
		if napot {
			ppn = ppn&^0xF | spec.Vpn(gpa, 0)&0xF
		}
		levelVpnMask := uint64(1)<<(uint(level)*spec.VpnBits) - 1
		ppn |= gpn & levelVpnMask

		insertPpn := spec.Ppn(pte)
		if napot {
			insertPpn = ppn
		}
		w.tlbG.Insert(Entry{
			Vpn:     gpn,
			Ppn:     insertPpn,
			Vmid:    w.hgatpVmid,
			World:   w.world,
			Level:   level,
			VpnBits: spec.VpnBits,
			Pbmt:    pbmt,
			Perms:   permsOf(pte),
		})

		pa := ppn<<PageShift | gpa&(PageSize-1)
		w.walks = append(w.walks, WalkStep{Space: "RE", Addr: pa, Pte: pte})
		return Result{Pa: pa, Pbmt: pbmt}, nil
	}

	return Result{}, w.stagePageFault(stageG, kind, gpa)
}
