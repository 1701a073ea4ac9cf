package hart

// Interrupt pins. Platform interrupt controllers (CLINT, PLIC) drive
// these level-sensitive lines; the bits land in MIP and are evaluated
// at the top of the next step.

func (h *Hart) setMipBit(bit uint64, on bool) {
	v := h.csr.Raw(CsrMip)
	if on {
		v |= bit
	} else {
		v &^= bit
	}
	h.csr.SetRaw(CsrMip, v)
}

// SetTimerInterrupt drives the machine timer interrupt line (MTIP).
func (h *Hart) SetTimerInterrupt(on bool) { h.setMipBit(IpMtip, on) }

// SetSoftwareInterrupt drives the machine software interrupt line
// (MSIP).
func (h *Hart) SetSoftwareInterrupt(on bool) { h.setMipBit(IpMsip, on) }

// SetExternalInterrupt drives the machine external interrupt line
// (MEIP).
func (h *Hart) SetExternalInterrupt(on bool) { h.setMipBit(IpMeip, on) }
