package hart_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/hart"
	"github.com/sarchlab/r5sim/mem"
)

const (
	instAddi5x42  = 0x02A00293 // addi x5, x0, 42
	instAdd655    = 0x00528333 // add x6, x5, x5
	instSnapshot  = 0x000F8013 // addi x0, x31, 0
	instEcall     = 0x00000073
	instMret      = 0x30200073
	instLrW5x10   = 0x100522AF // lr.w x5, (x10)
	instScW67x10  = 0x1875232F // sc.w x6, x7, (x10)
	instBeqFwd2   = 0x00000163 // beq x0, x0, 2
	instCsrrw56   = 0x340312F3 // csrrw x5, mscratch, x6
)

func writeInst(m *mem.Memory, pa uint64, word uint32) {
	ok := m.Write(pa, 4, uint64(word), false)
	Expect(ok).To(BeTrue())
}

var _ = Describe("Hart execution", func() {
	var (
		m *mem.Memory
		h *hart.Hart
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		h = hart.NewHart(m)
		h.SetPc(0x1000)
	})

	It("runs a simple ALU program", func() {
		writeInst(m, 0x1000, instAddi5x42)
		writeInst(m, 0x1004, instAdd655)

		Expect(h.Step()).To(BeNil())
		Expect(h.Step()).To(BeNil())

		Expect(h.PeekIntReg(5)).To(Equal(uint64(42)))
		Expect(h.PeekIntReg(6)).To(Equal(uint64(84)))
		Expect(h.RetiredInsts()).To(Equal(uint64(2)))
		Expect(h.Pc()).To(Equal(uint64(0x1008)))
	})

	It("discards writes to x0", func() {
		// addi x0, x0, 42
		writeInst(m, 0x1000, 0x02A00013)
		Expect(h.Step()).To(BeNil())
		Expect(h.PeekIntReg(0)).To(Equal(uint64(0)))
	})

	It("stops on the snapshot hint without retiring", func() {
		h.PokeIntReg(31, 0x12345) // bit 0 set arms the hint
		writeInst(m, 0x1000, instSnapshot)

		ev := h.Step()
		Expect(ev).NotTo(BeNil())
		Expect(ev.Kind).To(Equal(hart.StopSnapshot))
		Expect(ev.Payload).To(Equal(uint64(0x12345)))
		Expect(h.InstCount()).To(Equal(uint64(1)))
		Expect(h.RetiredInsts()).To(Equal(uint64(0)))
	})

	It("executes the hint encoding normally when x31 bit 0 is clear", func() {
		h.PokeIntReg(31, 0x12344)
		writeInst(m, 0x1000, instSnapshot)

		Expect(h.Step()).To(BeNil())
		Expect(h.RetiredInsts()).To(Equal(uint64(1)))
	})
})

var _ = Describe("Hart reservations", func() {
	var (
		m *mem.Memory
		h *hart.Hart
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		h = hart.NewHart(m)
		h.SetPc(0x1000)
		h.PokeIntReg(10, 0x8000) // address register
		h.PokeIntReg(7, 0xAAAA)  // store value
		Expect(m.Write(0x8000, 4, 0x1111, false)).To(BeTrue())
	})

	It("completes an uncontended LR/SC pair", func() {
		writeInst(m, 0x1000, instLrW5x10)
		writeInst(m, 0x1004, instScW67x10)

		Expect(h.Step()).To(BeNil())
		Expect(h.PeekIntReg(5)).To(Equal(uint64(0x1111)))

		Expect(h.Step()).To(BeNil())
		Expect(h.PeekIntReg(6)).To(Equal(uint64(0)))
		v, ok := m.Read(0x8000, 4, false)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(0xAAAA)))
	})

	It("fails SC when an intervening store hits the reservation", func() {
		writeInst(m, 0x1000, instLrW5x10)
		writeInst(m, 0x1004, instScW67x10)

		Expect(h.Step()).To(BeNil())

		// Another agent writes the reserved word between LR and SC.
		Expect(m.Write(0x8000, 4, 0x2222, false)).To(BeTrue())

		Expect(h.Step()).To(BeNil())
		Expect(h.PeekIntReg(6)).To(Equal(uint64(1)))
		v, _ := m.Read(0x8000, 4, false)
		Expect(v).To(Equal(uint64(0x2222)))
	})

	It("fails SC with no prior reservation", func() {
		writeInst(m, 0x1000, instScW67x10)
		Expect(h.Step()).To(BeNil())
		Expect(h.PeekIntReg(6)).To(Equal(uint64(1)))
		v, _ := m.Read(0x8000, 4, false)
		Expect(v).To(Equal(uint64(0x1111)))
	})
})

var _ = Describe("Hart fetch alignment", func() {
	var (
		m *mem.Memory
		h *hart.Hart
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		h = hart.NewHart(m)
	})

	It("allows halfword PCs while the C extension is on", func() {
		// c.nop at 0x1002, then c.nop again.
		Expect(m.Write(0x1002, 2, 0x0001, false)).To(BeTrue())
		h.SetPc(0x1002)
		Expect(h.Step()).To(BeNil())
		Expect(h.Pc()).To(Equal(uint64(0x1004)))
	})

	It("faults a halfword PC once C is disabled", func() {
		misa, ok := h.PeekCsr(hart.CsrMisa)
		Expect(ok).To(BeTrue())
		Expect(h.PokeCsr(hart.CsrMisa, misa&^hart.MisaC)).To(BeTrue())

		h.SetPc(0x1002)
		Expect(h.Step()).To(BeNil())

		cause, _ := h.PeekCsr(hart.CsrMcause)
		Expect(cause).To(Equal(uint64(hart.CauseInstAddrMisal)))
		tval, _ := h.PeekCsr(hart.CsrMtval)
		Expect(tval).To(Equal(uint64(0x1002)))
		epc, _ := h.PeekCsr(hart.CsrMepc)
		Expect(epc).To(Equal(uint64(0x1002)))
	})

	It("faults a branch to a halfword target once C is disabled", func() {
		misa, _ := h.PeekCsr(hart.CsrMisa)
		Expect(h.PokeCsr(hart.CsrMisa, misa&^hart.MisaC)).To(BeTrue())

		writeInst(m, 0x1000, instBeqFwd2)
		h.SetPc(0x1000)
		Expect(h.Step()).To(BeNil())

		cause, _ := h.PeekCsr(hart.CsrMcause)
		Expect(cause).To(Equal(uint64(hart.CauseInstAddrMisal)))
		tval, _ := h.PeekCsr(hart.CsrMtval)
		Expect(tval).To(Equal(uint64(0x1002)))
	})
})

var _ = Describe("Hart CSR access", func() {
	var (
		m *mem.Memory
		h *hart.Hart
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		h = hart.NewHart(m)
		h.SetPc(0x1000)
	})

	It("round-trips mscratch through CSRRW", func() {
		h.PokeIntReg(6, 0xDEAD_BEEF)
		Expect(h.PokeCsr(hart.CsrMscratch, 0x55)).To(BeTrue())
		writeInst(m, 0x1000, instCsrrw56)

		Expect(h.Step()).To(BeNil())
		Expect(h.PeekIntReg(5)).To(Equal(uint64(0x55)))
		v, _ := h.PeekCsr(hart.CsrMscratch)
		Expect(v).To(Equal(uint64(0xDEAD_BEEF)))
	})

	It("records CSR writes for the last instruction", func() {
		h.PokeIntReg(6, 7)
		Expect(h.PokeCsr(hart.CsrMscratch, 3)).To(BeTrue())
		writeInst(m, 0x1000, instCsrrw56)
		Expect(h.Step()).To(BeNil())

		writes := h.LastCsrWrites()
		Expect(writes).NotTo(BeEmpty())
		var found bool
		for _, w := range writes {
			if w.Addr == hart.CsrMscratch {
				found = true
				Expect(w.Prev).To(Equal(uint64(3)))
				Expect(w.Next).To(Equal(uint64(7)))
			}
		}
		Expect(found).To(BeTrue())
	})

	It("shows mstatus supervisor bits through the sstatus view", func() {
		ms, _ := h.PeekCsr(hart.CsrMstatus)
		Expect(h.PokeCsr(hart.CsrMstatus, ms|hart.MstatusSie|hart.MstatusSum)).
			To(BeTrue())

		ss, ok := h.PeekCsr(hart.CsrSstatus)
		Expect(ok).To(BeTrue())
		Expect(ss & hart.MstatusSie).NotTo(BeZero())
		Expect(ss & hart.MstatusSum).NotTo(BeZero())
		Expect(ss & hart.MstatusMie).To(BeZero())
	})

	It("peek-poke is idempotent for plain CSRs", func() {
		for _, addr := range []uint16{
			hart.CsrMscratch, hart.CsrMtvec, hart.CsrMepc,
			hart.CsrMedeleg, hart.CsrMie, hart.CsrSscratch,
			hart.CsrStvec, hart.CsrSatp,
		} {
			v, ok := h.PeekCsr(addr)
			Expect(ok).To(BeTrue(), "peek %#x", addr)
			Expect(h.PokeCsr(addr, v)).To(BeTrue(), "poke %#x", addr)
			after, _ := h.PeekCsr(addr)
			Expect(after).To(Equal(v), "csr %#x", addr)
		}
	})
})

var _ = Describe("Hart traps", func() {
	var (
		m *mem.Memory
		h *hart.Hart
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		h = hart.NewHart(m)
		h.SetPc(0x1000)
	})

	It("takes an M-mode ecall to mtvec", func() {
		Expect(h.PokeCsr(hart.CsrMtvec, 0x4000)).To(BeTrue())
		writeInst(m, 0x1000, instEcall)

		Expect(h.Step()).To(BeNil())
		cause, _ := h.PeekCsr(hart.CsrMcause)
		Expect(cause).To(Equal(uint64(hart.CauseEcallM)))
		epc, _ := h.PeekCsr(hart.CsrMepc)
		Expect(epc).To(Equal(uint64(0x1000)))
		Expect(h.Pc()).To(Equal(uint64(0x4000)))
		Expect(h.RetiredInsts()).To(Equal(uint64(0)))
	})

	It("drops to U via MRET and delegates the U ecall to S", func() {
		ms, _ := h.PeekCsr(hart.CsrMstatus)
		Expect(h.PokeCsr(hart.CsrMstatus, ms&^hart.MstatusMpp)).To(BeTrue())
		Expect(h.PokeCsr(hart.CsrMepc, 0x2000)).To(BeTrue())
		Expect(h.PokeCsr(hart.CsrMedeleg, uint64(1)<<hart.CauseEcallU)).
			To(BeTrue())
		Expect(h.PokeCsr(hart.CsrStvec, 0x3000)).To(BeTrue())

		writeInst(m, 0x1000, instMret)
		writeInst(m, 0x2000, instEcall)

		Expect(h.Step()).To(BeNil())
		Expect(h.Priv()).To(Equal(mem.PrivU))
		Expect(h.Pc()).To(Equal(uint64(0x2000)))

		Expect(h.Step()).To(BeNil())
		Expect(h.Priv()).To(Equal(mem.PrivS))
		scause, _ := h.PeekCsr(hart.CsrScause)
		Expect(scause).To(Equal(uint64(hart.CauseEcallU)))
		sepc, _ := h.PeekCsr(hart.CsrSepc)
		Expect(sepc).To(Equal(uint64(0x2000)))
		Expect(h.Pc()).To(Equal(uint64(0x3000)))
	})

	It("keeps an undelegated U ecall in M", func() {
		ms, _ := h.PeekCsr(hart.CsrMstatus)
		Expect(h.PokeCsr(hart.CsrMstatus, ms&^hart.MstatusMpp)).To(BeTrue())
		Expect(h.PokeCsr(hart.CsrMepc, 0x2000)).To(BeTrue())
		Expect(h.PokeCsr(hart.CsrMtvec, 0x4000)).To(BeTrue())

		writeInst(m, 0x1000, instMret)
		writeInst(m, 0x2000, instEcall)

		Expect(h.Step()).To(BeNil())
		Expect(h.Step()).To(BeNil())

		Expect(h.Priv()).To(Equal(mem.PrivM))
		cause, _ := h.PeekCsr(hart.CsrMcause)
		Expect(cause).To(Equal(uint64(hart.CauseEcallU)))
		Expect(h.Pc()).To(Equal(uint64(0x4000)))
	})

	It("pushes and pops the interrupt stack across trap and MRET", func() {
		Expect(h.PokeCsr(hart.CsrMtvec, 0x4000)).To(BeTrue())
		ms, _ := h.PeekCsr(hart.CsrMstatus)
		Expect(h.PokeCsr(hart.CsrMstatus, ms|hart.MstatusMie)).To(BeTrue())

		writeInst(m, 0x1000, instEcall)
		writeInst(m, 0x4000, instMret)

		Expect(h.Step()).To(BeNil())
		ms, _ = h.PeekCsr(hart.CsrMstatus)
		Expect(ms & hart.MstatusMie).To(BeZero())
		Expect(ms & hart.MstatusMpie).NotTo(BeZero())

		Expect(h.Step()).To(BeNil())
		ms, _ = h.PeekCsr(hart.CsrMstatus)
		Expect(ms & hart.MstatusMie).NotTo(BeZero())
		Expect(h.Pc()).To(Equal(uint64(0x1000)))
	})
})

var _ = Describe("Hart reset", func() {
	It("returns to the architectural reset state", func() {
		m := mem.NewMemory()
		h := hart.NewHart(m)
		h.SetPc(0x1000)
		writeInst(m, 0x1000, instAddi5x42)
		Expect(h.Step()).To(BeNil())
		Expect(h.PokeCsr(hart.CsrMscratch, 99)).To(BeTrue())

		h.Reset()

		Expect(h.Pc()).To(Equal(uint64(0)))
		Expect(h.Priv()).To(Equal(mem.PrivM))
		Expect(h.PeekIntReg(5)).To(Equal(uint64(0)))
		v, _ := h.PeekCsr(hart.CsrMscratch)
		Expect(v).To(Equal(uint64(0)))
		Expect(h.Reservation().Valid).To(BeFalse())
	})
})

var _ = Describe("Hart cache-block operations", func() {
	const (
		instCboZeroX10 = 0x0045200F // cbo.zero (x10)
		lineBase       = uint64(0x8000)
	)

	var (
		m *mem.Memory
		h *hart.Hart
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		h = hart.NewHart(m)
		h.SetPc(0x1000)
		h.PokeIntReg(10, lineBase+0x10) // anywhere inside the line
		Expect(m.Write(lineBase, 4, 0x1111, false)).To(BeTrue())
		Expect(m.Write(lineBase+0x38, 4, 0x2222, false)).To(BeTrue())
	})

	It("zeroes the whole cache line", func() {
		writeInst(m, 0x1000, instCboZeroX10)
		Expect(h.Step()).To(BeNil())

		for off := uint64(0); off < 64; off += 8 {
			v, ok := m.Read(lineBase+off, 8, false)
			Expect(ok).To(BeTrue())
			Expect(v).To(BeZero())
		}
	})

	It("faults without touching memory when PMP denies part of the line", func() {
		// Locked read-only NAPOT entry over the second 32-byte half.
		m.Pmp().SetAddr(0, (lineBase+0x20)>>2|0b11)
		m.Pmp().SetCfg(0, 0x99) // L | NAPOT | R

		writeInst(m, 0x1000, instCboZeroX10)
		Expect(h.Step()).To(BeNil())

		cause, _ := h.PeekCsr(hart.CsrMcause)
		Expect(cause).To(Equal(hart.CauseStoreAccFault))
		tval, _ := h.PeekCsr(hart.CsrMtval)
		Expect(tval).To(Equal(lineBase))

		v, _ := m.Read(lineBase, 4, false)
		Expect(v).To(Equal(uint64(0x1111)))
		v, _ = m.Read(lineBase+0x38, 4, false)
		Expect(v).To(Equal(uint64(0x2222)))
	})
})

var _ = Describe("Hart access recording", func() {
	const instVse8v1x10 = 0x020500A7 // vse8.v v1, (x10)

	var (
		m *mem.Memory
		h *hart.Hart
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		h = hart.NewHart(m)
		h.SetPc(0x1000)
	})

	It("records the fetch physical address", func() {
		writeInst(m, 0x1000, instAddi5x42)
		Expect(h.Step()).To(BeNil())
		Expect(h.LastFetchPa()).To(Equal(uint64(0x1000)))
		_, crossed := h.LastFetchPa2()
		Expect(crossed).To(BeFalse())
		Expect(h.LastFetchWalks()).To(BeEmpty())
	})

	It("records per-element addresses for a vector store", func() {
		ms, _ := h.PeekCsr(hart.CsrMstatus)
		Expect(h.PokeCsr(hart.CsrMstatus, ms|hart.MstatusVs)).To(BeTrue())
		Expect(h.PokeCsr(hart.CsrVtype, 0)).To(BeTrue()) // e8, m1
		Expect(h.PokeCsr(hart.CsrVl, 4)).To(BeTrue())
		h.PokeIntReg(10, 0x9000)
		writeInst(m, 0x1000, instVse8v1x10)

		Expect(h.Step()).To(BeNil())

		addrs, size := h.LastVecAccesses()
		Expect(size).To(Equal(1))
		Expect(addrs).To(Equal([]uint64{0x9000, 0x9001, 0x9002, 0x9003}))
	})
})
