package mmu

// SfenceVma invalidates single-stage (or VS-stage, when virt is set)
// entries. hasVa/hasAsid correspond to rs1/rs2 being nonzero in the
// fence instruction; Svinval's SINVAL.VMA uses the same semantics.
func (w *Walker) SfenceVma(va uint64, hasVa bool, asid uint16, hasAsid bool,
	virt bool) {
	tlb := w.tlb
	vmid := uint16(0)
	if virt {
		tlb = w.tlbVs
		vmid = w.hgatpVmid
	}
	vpn := va >> PageShift
	switch {
	case hasVa && hasAsid:
		if virt {
			tlb.InvalidateVpnAsidVmid(vpn, asid, vmid, w.world)
		} else {
			tlb.InvalidateVpnAsid(vpn, asid, w.world)
		}
	case hasVa:
		if virt {
			tlb.InvalidateVpnVmid(vpn, vmid, w.world)
		} else {
			tlb.InvalidateVpn(vpn, w.world)
		}
	case hasAsid:
		tlb.InvalidateAsid(asid, w.world)
	default:
		if virt {
			tlb.InvalidateVmid(vmid, w.world)
		} else {
			tlb.InvalidateAll(w.world)
		}
	}
}

// HfenceVvma invalidates VS-stage entries for the given VMID scope
// (the current hgatp VMID at execution time).
func (w *Walker) HfenceVvma(va uint64, hasVa bool, asid uint16, hasAsid bool,
	vmid uint16) {
	vpn := va >> PageShift
	switch {
	case hasVa && hasAsid:
		w.tlbVs.InvalidateVpnAsidVmid(vpn, asid, vmid, w.world)
	case hasVa:
		w.tlbVs.InvalidateVpnVmid(vpn, vmid, w.world)
	case hasAsid:
		w.tlbVs.InvalidateAsid(asid, w.world)
	default:
		w.tlbVs.InvalidateVmid(vmid, w.world)
	}
}

// HfenceGvma invalidates G-stage entries. gpa is the guest-physical
// address held in rs1 shifted right by 2, already un-shifted by the
// caller. Because VS-stage entries embed G-stage results, they are
// dropped for the same scope.
func (w *Walker) HfenceGvma(gpa uint64, hasGpa bool, vmid uint16, hasVmid bool) {
	gpn := gpa >> PageShift
	switch {
	case hasGpa && hasVmid:
		w.tlbG.InvalidateVpnVmid(gpn, vmid, w.world)
		w.tlbVs.InvalidateVmid(vmid, w.world)
	case hasGpa:
		w.tlbG.InvalidateVpn(gpn, w.world)
		w.tlbVs.InvalidateAll(w.world)
	case hasVmid:
		w.tlbG.InvalidateVmid(vmid, w.world)
		w.tlbVs.InvalidateVmid(vmid, w.world)
	default:
		w.tlbG.InvalidateAll(w.world)
		w.tlbVs.InvalidateAll(w.world)
	}
}
