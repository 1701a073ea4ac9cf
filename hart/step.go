package hart

import (
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/mem"
	"github.com/sarchlab/r5sim/mmu"
)

// Step executes at most one architectural instruction. Interrupts and
// NMIs are evaluated first; a delivered interrupt consumes the call.
// A non-nil StopEvent asks the outer loop to stop.
func (h *Hart) Step() *StopEvent {
	h.cycle++
	h.csr.BeginInstruction()
	h.lastIntValid = false
	h.lastFpValid = false
	h.lastMem.Valid = false
	h.lastFetchCross = false
	h.lastFetchWalks = nil
	h.lastDataWalks = nil
	h.lastVecAddrs = nil
	h.lastVecSize = 0
	h.stopEvent = nil
	h.trapPending = false

	if h.userStop != nil && h.userStop() {
		return &StopEvent{Kind: StopUserRequest}
	}

	if !h.debugMode {
		if h.nmiPending && h.csr.Raw(CsrMnstatus)&(1<<3) != 0 {
			h.takeNmi()
			return nil
		}
		if cause, ok := h.checkInterrupts(); ok {
			if hit, action := h.triggers.CheckItrigger(cause); hit &&
				action == triggerActionDebug {
				h.enterDebug(dcsrCauseTrigger)
				return nil
			}
			h.trapPending = true
			h.trapIsInt = true
			h.trapCause = cause
			h.trapVal = 0
			h.trapVal2 = 0
			h.trapInst = 0
			h.takeTrap()
			return nil
		}
	}

	pc := h.pc
	h.currPc = pc

	if hit, action := h.triggers.TickIcount(); hit {
		h.fireTrigger(action)
		return h.stopEvent
	}

	inst, ok := h.fetch(pc)
	if !ok {
		h.instCount++
		h.takeTrap()
		return h.stopEvent
	}

	if hit, action := h.triggers.CheckInstAddr(pc); hit {
		h.fireTrigger(action)
		return h.stopEvent
	}
	if hit, action := h.triggers.CheckInstOpcode(uint64(inst.Raw)); hit {
		h.fireTrigger(action)
		return h.stopEvent
	}

	h.instCount++
	h.pc = (pc + uint64(inst.Size())) & h.xlenMask

	h.execute(inst)

	if h.trapPending {
		h.takeTrap()
		return h.stopEvent
	}
	if h.stopEvent != nil {
		// The snapshot hint counts as executed but never retires.
		return h.stopEvent
	}

	h.retire(inst)
	return nil
}

// fireTrigger applies a trigger hit: debug entry or a breakpoint
// exception, after rolling back any partially committed register
// write.
func (h *Hart) fireTrigger(action int) {
	h.undoForTrigger()
	if action == triggerActionDebug && !h.debugMode {
		h.enterDebug(dcsrCauseTrigger)
		return
	}
	h.raise(CauseBreakpoint, h.pc)
	h.takeTrap()
}

// undoForTrigger replays the journaled last-written registers and
// resets the PC to the interrupted instruction.
func (h *Hart) undoForTrigger() {
	if h.lastIntValid {
		h.x[h.lastIntReg] = h.lastIntPrev
		h.lastIntValid = false
	}
	if h.lastFpValid {
		h.f[h.lastFpReg] = h.lastFpPrev
		h.lastFpValid = false
	}
	h.pc = h.currPc
}

func (h *Hart) retire(inst insts.Instruction) {
	inhibit := h.csr.Raw(CsrMcountinhibit)&4 != 0
	if h.debugMode && h.csr.Raw(CsrDcsr)&(1<<10) != 0 {
		inhibit = true
	}
	if !inhibit {
		h.retiredInsts++
	}
	for _, l := range h.listeners {
		l.OnRetire(h, inst, h.currPc, h.pc)
	}
	if !h.debugMode && h.csr.Raw(CsrDcsr)&(1<<2) != 0 {
		// Single-step: halt after one instruction.
		h.currPc = h.pc
		h.enterDebug(dcsrCauseStep)
	}
}

// instAlign is 2 with the C extension, 4 without.
func (h *Hart) instAlign() uint64 {
	if h.csr.Raw(CsrMisa)&MisaC != 0 {
		return 2
	}
	return 4
}

// fetch translates the PC, reads two half-words (translating the
// second separately when it crosses a page), and decodes through the
// decode cache. On failure the trap is latched and ok is false.
func (h *Hart) fetch(pc uint64) (insts.Instruction, bool) {
	if pc%h.instAlign() != 0 {
		h.raise(CauseInstAddrMisal, pc)
		return insts.Instruction{}, false
	}

	res, fault := h.walker.Translate(pc, 2, h.priv, h.virt, mmu.AccessFetch)
	if fault != nil {
		h.raiseFault(fault)
		return insts.Instruction{}, false
	}
	pa := res.Pa
	h.lastFetchPa = pa
	h.lastFetchWalks = res.Walks
	if !h.mem.IsExecutable(pa, 2, h.priv) {
		h.raise(CauseInstAccFault, pc)
		return insts.Instruction{}, false
	}
	low, ok := h.mem.Read(pa, 2, h.bigEndian)
	if !ok {
		h.raise(CauseInstAccFault, pc)
		return insts.Instruction{}, false
	}

	raw := uint32(low)
	if !insts.IsCompressed(uint16(low)) {
		hiPa := pa + 2
		if pc&(mem.PageSize-1) == mem.PageSize-2 {
			res2, fault := h.walker.Translate(pc+2, 2, h.priv, h.virt,
				mmu.AccessFetch)
			if fault != nil {
				h.raiseFault(fault)
				return insts.Instruction{}, false
			}
			hiPa = res2.Pa
			h.lastFetchPa2 = hiPa
			h.lastFetchCross = true
			h.lastFetchWalks = append(h.lastFetchWalks, res2.Walks...)
		}
		if !h.mem.IsExecutable(hiPa, 2, h.priv) {
			h.raise(CauseInstAccFault, pc+2)
			return insts.Instruction{}, false
		}
		hi, ok := h.mem.Read(hiPa, 2, h.bigEndian)
		if !ok {
			h.raise(CauseInstAccFault, pc+2)
			return insts.Instruction{}, false
		}
		raw |= uint32(hi) << 16
	}

	if cached := h.dcache.Lookup(pa, raw); cached != nil {
		return *cached, true
	}
	inst := h.decoder.Decode(raw)
	h.dcache.Insert(pa, raw, inst)
	return *inst, true
}

// effDataPriv is the effective privilege and virtualization for data
// accesses, honoring MPRV.
func (h *Hart) effDataPriv() (mem.Priv, bool) {
	if h.debugMode {
		return mem.PrivM, false
	}
	if h.priv == mem.PrivM && h.mstatus&MstatusMprv != 0 {
		mpp := mem.Priv(h.mstatus >> 11 & 3)
		mpv := h.mstatus&MstatusMpv != 0 && mpp != mem.PrivM
		return mpp, mpv
	}
	return h.priv, h.virt
}

// translateData resolves a data access at the effective privilege and
// records its page walk.
func (h *Hart) translateData(va, size uint64, kind mmu.AccessKind) (mmu.Result, *mmu.Fault) {
	pm, virt := h.effDataPriv()
	res, fault := h.walker.Translate(va, size, pm, virt, kind)
	if fault == nil && len(res.Walks) > 0 {
		h.lastDataWalks = append(h.lastDataWalks, res.Walks...)
	}
	return res, fault
}

// loadVa performs an architectural load, including console-input
// interception, crossing-page splitting, and trigger checks. On trap
// the latch is set and ok is false.
func (h *Hart) loadVa(va uint64, size int) (uint64, bool) {
	if hit, action := h.triggers.CheckLoadAddr(va); hit {
		h.fireTrigger(action)
		return 0, false
	}
	if h.hasConsoleIn && va == h.consoleInVa {
		b, _ := h.consoleIn()
		return uint64(b), true
	}

	res, fault := h.translateData(va, uint64(size), mmu.AccessLoad)
	if fault != nil {
		h.raiseFault(fault)
		return 0, false
	}
	pm, _ := h.effDataPriv()
	h.lastMem = MemAccess{Va: va, Pa: res.Pa, Size: size, Valid: true}
	if !res.CrossPage {
		if !h.mem.IsReadable(res.Pa, uint64(size), pm) {
			h.raise(CauseLoadAccFault, va)
			return 0, false
		}
		v, ok := h.mem.Read(res.Pa, size, h.bigEndian)
		if !ok {
			h.raise(CauseLoadAccFault, va)
			return 0, false
		}
		return v, true
	}

	firstLen := int(mem.PageSize - res.Pa%mem.PageSize)
	bytes := make([]byte, 0, size)
	part1, ok := h.mem.ReadBytes(res.Pa, uint64(firstLen))
	if !ok || !h.mem.IsReadable(res.Pa, uint64(firstLen), pm) {
		h.raise(CauseLoadAccFault, va)
		return 0, false
	}
	part2, ok := h.mem.ReadBytes(res.Pa2, uint64(size-firstLen))
	if !ok || !h.mem.IsReadable(res.Pa2, uint64(size-firstLen), pm) {
		h.raise(CauseLoadAccFault, va+uint64(firstLen))
		return 0, false
	}
	bytes = append(bytes, part1...)
	bytes = append(bytes, part2...)
	return composeBytes(bytes, h.bigEndian), true
}

// storeVa performs an architectural store with the same handling as
// loadVa plus store-data triggers.
func (h *Hart) storeVa(va uint64, size int, value uint64) bool {
	if hit, action := h.triggers.CheckStoreAddr(va); hit {
		h.fireTrigger(action)
		return false
	}
	if hit, action := h.triggers.CheckStoreData(value); hit {
		h.fireTrigger(action)
		return false
	}

	res, fault := h.translateData(va, uint64(size), mmu.AccessStore)
	if fault != nil {
		h.raiseFault(fault)
		return false
	}
	pm, _ := h.effDataPriv()
	h.lastMem = MemAccess{Va: va, Pa: res.Pa, Size: size, Store: true,
		Valid: true}
	if !res.CrossPage {
		if !h.mem.IsWritable(res.Pa, uint64(size), pm) {
			h.raise(CauseStoreAccFault, va)
			return false
		}
		if !h.mem.Write(res.Pa, size, value, h.bigEndian) {
			h.raise(CauseStoreAccFault, va)
			return false
		}
		return true
	}

	firstLen := int(mem.PageSize - res.Pa%mem.PageSize)
	bytes := decomposeBytes(value, size, h.bigEndian)
	if !h.mem.IsWritable(res.Pa, uint64(firstLen), pm) {
		h.raise(CauseStoreAccFault, va)
		return false
	}
	if !h.mem.IsWritable(res.Pa2, uint64(size-firstLen), pm) {
		h.raise(CauseStoreAccFault, va+uint64(firstLen))
		return false
	}
	if !h.mem.WriteBytes(res.Pa, bytes[:firstLen]) ||
		!h.mem.WriteBytes(res.Pa2, bytes[firstLen:]) {
		h.raise(CauseStoreAccFault, va)
		return false
	}
	return true
}

func composeBytes(b []byte, be bool) uint64 {
	var v uint64
	if be {
		for _, x := range b {
			v = v<<8 | uint64(x)
		}
		return v
	}
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func decomposeBytes(v uint64, size int, be bool) []byte {
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		if be {
			out[size-1-i] = byte(v >> (8 * uint(i)))
		} else {
			out[i] = byte(v >> (8 * uint(i)))
		}
	}
	return out
}
