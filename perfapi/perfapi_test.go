package perfapi_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/hart"
	"github.com/sarchlab/r5sim/mem"
	"github.com/sarchlab/r5sim/perfapi"
)

const (
	instAddi3x1  = 0x00100193 // addi x3, x0, 1
	instAddi5x7  = 0x00700293 // addi x5, x0, 7
	instAddi5x42 = 0x02A00293 // addi x5, x0, 42
	instAddi6x51 = 0x00128313 // addi x6, x5, 1
	instAdd655   = 0x00528333 // add x6, x5, x5
	instSw5x10   = 0x00552023 // sw x5, 0(x10)
	instLw7x10   = 0x00052383 // lw x7, 0(x10)
	instEcall    = 0x00000073
	instBeqFwd2  = 0x00000463 // beq x0, x0, +8
)

func newEngineAt(pc uint64, words ...uint32) (*hart.Hart, *perfapi.PerfApi) {
	m := mem.NewMemory()
	for i, w := range words {
		ok := m.Write(pc+uint64(i)*4, 4, uint64(w), false)
		Expect(ok).To(BeTrue())
	}
	h := hart.NewHart(m)
	h.SetPc(pc)
	return h, perfapi.New(h)
}

var _ = Describe("PerfApi packet lifecycle", func() {
	It("rejects tag zero and non-increasing tags", func() {
		_, p := newEngineAt(0x1000, instAddi5x42)
		Expect(func() { p.Fetch(0, 0x1000) }).To(Panic())
		p.Fetch(5, 0x1000)
		Expect(func() { p.Fetch(5, 0x1004) }).To(Panic())
		Expect(func() { p.Fetch(3, 0x1004) }).To(Panic())
	})

	It("rejects execute before decode and retire before execute", func() {
		_, p := newEngineAt(0x1000, instAddi5x42)
		p.Fetch(1, 0x1000)
		Expect(func() { p.Execute(1) }).To(Panic())
		p.Decode(1, instAddi5x42)
		Expect(func() { p.Retire(1) }).To(Panic())
	})

	It("rejects operations on unknown tags", func() {
		_, p := newEngineAt(0x1000, instAddi5x42)
		Expect(func() { p.Decode(9, instAddi5x42) }).To(Panic())
		Expect(func() { p.Execute(9) }).To(Panic())
		Expect(func() { p.Retire(9) }).To(Panic())
	})
})

var _ = Describe("PerfApi speculative execute", func() {
	It("records the outcome and leaves the hart unchanged", func() {
		h, p := newEngineAt(0x1000, instAddi5x42)
		p.Fetch(1, 0x1000)
		p.Decode(1, instAddi5x42)
		p.Execute(1)

		pkt := p.Packet(1)
		Expect(pkt.Executed()).To(BeTrue())
		Expect(pkt.NextIva).To(Equal(uint64(0x1004)))
		reg, val, ok := pkt.IntResult()
		Expect(ok).To(BeTrue())
		Expect(reg).To(Equal(5))
		Expect(val).To(Equal(uint64(42)))

		Expect(h.Pc()).To(Equal(uint64(0x1000)))
		Expect(h.PeekIntReg(5)).To(BeZero())
		Expect(h.InstCount()).To(BeZero())
	})

	It("forwards operand values from older executed producers", func() {
		h, p := newEngineAt(0x1000, instAddi5x42, instAddi6x51)
		p.Fetch(1, 0x1000)
		p.Decode(1, instAddi5x42)
		p.Fetch(2, 0x1004)
		p.Decode(2, instAddi6x51)

		p.Execute(1)
		p.Execute(2)

		_, val, _ := p.Packet(2).IntResult()
		Expect(val).To(Equal(uint64(43)))
		Expect(h.PeekIntReg(5)).To(BeZero())
		Expect(h.PeekIntReg(6)).To(BeZero())

		p.Retire(1)
		Expect(h.PeekIntReg(5)).To(Equal(uint64(42)))
		p.Retire(2)
		Expect(h.PeekIntReg(6)).To(Equal(uint64(43)))
		Expect(p.InFlight()).To(BeZero())
	})

	It("records a trap target without perturbing the hart", func() {
		h, p := newEngineAt(0x1000, instEcall)
		Expect(h.PokeCsr(hart.CsrMtvec, 0x4000)).To(BeTrue())

		p.Fetch(1, 0x1000)
		p.Decode(1, instEcall)
		p.Execute(1)

		pkt := p.Packet(1)
		Expect(pkt.Trap).To(BeTrue())
		Expect(pkt.TrapIsInt).To(BeFalse())
		Expect(pkt.TrapCause).To(Equal(uint64(hart.CauseEcallM)))
		Expect(pkt.NextIva).To(Equal(uint64(0x4000)))

		Expect(h.Pc()).To(Equal(uint64(0x1000)))
		mepc, _ := h.PeekCsr(hart.CsrMepc)
		Expect(mepc).To(BeZero())
		mcause, _ := h.PeekCsr(hart.CsrMcause)
		Expect(mcause).To(BeZero())
	})

	It("marks taken branches and backfilled mispredictions", func() {
		_, p := newEngineAt(0x1000, instBeqFwd2)
		p.Fetch(1, 0x1000)
		p.Decode(1, instBeqFwd2)
		p.Fetch(2, 0x1004) // fetch fell through, but the branch is taken
		p.Execute(1)

		pkt := p.Packet(1)
		Expect(pkt.Taken).To(BeTrue())
		Expect(pkt.NextIva).To(Equal(uint64(0x1008)))
		Expect(pkt.Mispredicted).To(BeTrue())
	})
})

var _ = Describe("PerfApi store handling", func() {
	It("rolls stores back, forwards them to loads and drains them", func() {
		h, p := newEngineAt(0x1000, instSw5x10)
		h.PokeIntReg(5, 0xAABBCCDD)
		h.PokeIntReg(10, 0x2000)

		p.Fetch(1, 0x1000)
		p.Decode(1, instSw5x10)
		p.Execute(1)

		// The speculative store never lands in memory.
		v, _ := h.Mem().Read(0x2000, 4, false)
		Expect(v).To(BeZero())

		// A younger load sees the pending bytes.
		Expect(p.GetLoadData(0x2000, 4, 2)).To(Equal(uint64(0xAABBCCDD)))

		p.Retire(1)
		Expect(p.InFlight()).To(Equal(1)) // retained until drain
		p.DrainStore(1)
		Expect(p.InFlight()).To(BeZero())
		v, _ = h.Mem().Read(0x2000, 4, false)
		Expect(v).To(Equal(uint64(0xAABBCCDD)))
	})

	It("mixes forwarded bytes with memory bytes", func() {
		h, p := newEngineAt(0x1000, instSw5x10)
		Expect(h.Mem().Write(0x2004, 4, 0x11223344, false)).To(BeTrue())
		h.PokeIntReg(5, 0xAABBCCDD)
		h.PokeIntReg(10, 0x2000)

		p.Fetch(1, 0x1000)
		p.Decode(1, instSw5x10)
		p.Execute(1)

		// Low half forwarded from the store, high half from memory.
		Expect(p.GetLoadData(0x2002, 4, 2)).To(Equal(uint64(0x3344AABB)))
	})
})

var _ = Describe("PerfApi flush", func() {
	It("deletes the tag and everything younger, restoring producers", func() {
		_, p := newEngineAt(0x1000, instAddi3x1, instAddi5x7, instAdd655)
		p.Fetch(10, 0x1000)
		p.Decode(10, instAddi3x1)
		p.Fetch(11, 0x1004)
		p.Decode(11, instAddi5x7) // writes x5
		p.Fetch(12, 0x1008)
		p.Decode(12, instAdd655) // reads x5

		Expect(p.IntProducer(5)).To(Equal(uint64(11)))
		Expect(p.IntProducer(6)).To(Equal(uint64(12)))

		p.Flush(11)

		Expect(p.InFlight()).To(Equal(1))
		Expect(p.Packet(10)).NotTo(BeNil())
		Expect(p.Packet(11)).To(BeNil())
		Expect(p.Packet(12)).To(BeNil())
		Expect(p.IntProducer(5)).To(BeZero())
		Expect(p.IntProducer(6)).To(BeZero())
		Expect(p.IntProducer(3)).To(Equal(uint64(10)))
	})

	It("restores a chained producer to the older writer", func() {
		_, p := newEngineAt(0x1000, instAddi5x42, instAddi5x7)
		p.Fetch(1, 0x1000)
		p.Decode(1, instAddi5x42) // writes x5
		p.Fetch(2, 0x1004)
		p.Decode(2, instAddi5x7) // replaces the x5 producer

		Expect(p.IntProducer(5)).To(Equal(uint64(2)))
		p.Flush(2)
		Expect(p.IntProducer(5)).To(Equal(uint64(1)))
	})

	It("allows flushed tags to be reissued", func() {
		_, p := newEngineAt(0x1000, instAddi5x42, instAddi5x7)
		p.Fetch(1, 0x1000)
		p.Fetch(2, 0x1004)
		p.Flush(2)
		p.Fetch(2, 0x1008)
		Expect(p.Packet(2).Iva).To(Equal(uint64(0x1008)))
	})
})

var _ = Describe("PerfApi access recording", func() {
	const instVse8v1x10 = 0x020500A7 // vse8.v v1, (x10)

	It("records the fetch physical address into the packet", func() {
		h, p := newEngineAt(0x1000, instSw5x10)
		h.PokeIntReg(10, 0x2000)

		p.Fetch(1, 0x1000)
		p.Decode(1, instSw5x10)
		p.Execute(1)

		pkt := p.Packet(1)
		Expect(pkt.InstPa).To(Equal(uint64(0x1000)))
		Expect(pkt.InstCrossed).To(BeFalse())
		Expect(pkt.FetchWalks).To(BeEmpty())
		Expect(pkt.DataWalks).To(BeEmpty())
	})

	It("records vector element addresses into the packet", func() {
		h, p := newEngineAt(0x1000, instVse8v1x10)
		ms, _ := h.PeekCsr(hart.CsrMstatus)
		Expect(h.PokeCsr(hart.CsrMstatus, ms|hart.MstatusVs)).To(BeTrue())
		Expect(h.PokeCsr(hart.CsrVtype, 0)).To(BeTrue()) // e8, m1
		Expect(h.PokeCsr(hart.CsrVl, 2)).To(BeTrue())
		h.PokeIntReg(10, 0x3000)

		p.Fetch(1, 0x1000)
		p.Decode(1, instVse8v1x10)
		p.Execute(1)

		pkt := p.Packet(1)
		Expect(pkt.VecElemSize).To(Equal(1))
		Expect(pkt.VecAddrs).To(Equal([]uint64{0x3000, 0x3001}))
	})
})
