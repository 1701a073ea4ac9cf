package trace_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/hart"
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/mem"
	"github.com/sarchlab/r5sim/trace"
)

func newHartAt(pc uint64, words ...uint32) (*mem.Memory, *hart.Hart) {
	m := mem.NewMemory()
	for i, w := range words {
		ok := m.Write(pc+uint64(i)*4, 4, uint64(w), false)
		Expect(ok).To(BeTrue())
	}
	h := hart.NewHart(m)
	h.SetPc(pc)
	return m, h
}

var _ = Describe("CsvTracer", func() {
	It("records pc, changed register, privilege and mnemonic", func() {
		var out bytes.Buffer
		_, h := newHartAt(0x1000, 0x02A00293) // addi x5, x0, 42
		h.AddRetireListener(trace.NewCsvTracer(&out))

		Expect(h.Step()).To(BeNil())

		line := strings.TrimSuffix(out.String(), "\n")
		fields := strings.Split(line, ",")
		Expect(fields).To(HaveLen(6))
		Expect(fields[0]).To(Equal("0000000000001000"))
		Expect(fields[1]).To(Equal("02a00293"))
		Expect(fields[2]).To(Equal("x5=000000000000002a"))
		Expect(fields[4]).To(Equal("M"))
		Expect(fields[5]).To(Equal("addi"))
	})
})

var _ = Describe("BranchTracer", func() {
	It("classifies calls, taken branches and returns", func() {
		var out bytes.Buffer
		_, h := newHartAt(0x1000,
			0x008000EF, // jal x1, +8
			0x00000013, // nop (skipped)
			0x00000463, // beq x0, x0, +8
			0x00000013, // nop (skipped)
			0x00008067, // jalr x0, x1, 0
		)
		h.AddRetireListener(trace.NewBranchTracer(&out))

		for i := 0; i < 3; i++ {
			Expect(h.Step()).To(BeNil())
		}

		Expect(out.String()).To(Equal(
			"c 1000 1008 4\n" +
				"t 1008 1010 4\n" +
				"r 1010 1004 4\n"))
	})

	It("does not record a line for non-branch instructions", func() {
		var out bytes.Buffer
		_, h := newHartAt(0x1000, 0x02A00293)
		h.AddRetireListener(trace.NewBranchTracer(&out))
		Expect(h.Step()).To(BeNil())
		Expect(out.Len()).To(BeZero())
	})

	It("records trap entries and returns", func() {
		var out bytes.Buffer
		_, h := newHartAt(0x1000, 0x00000073) // ecall
		Expect(h.PokeCsr(hart.CsrMtvec, 0x4000)).To(BeTrue())
		bt := trace.NewBranchTracer(&out)
		h.AddRetireListener(bt)
		h.AddTrapListener(bt)

		Expect(h.Step()).To(BeNil())
		Expect(out.String()).To(Equal("e 1000 4000 0\n"))
	})
})

var _ = Describe("Histogram", func() {
	It("counts per opcode", func() {
		_, h := newHartAt(0x1000,
			0x02A00293, // addi
			0x02A00313, // addi
			0x00528333, // add
		)
		hist := trace.NewHistogram()
		h.AddRetireListener(hist)
		for i := 0; i < 3; i++ {
			Expect(h.Step()).To(BeNil())
		}

		Expect(hist.Count(insts.OpADDI)).To(Equal(uint64(2)))
		Expect(hist.Count(insts.OpADD)).To(Equal(uint64(1)))
		Expect(hist.Total()).To(Equal(uint64(3)))

		var out bytes.Buffer
		hist.Dump(&out)
		Expect(out.String()).To(ContainSubstring("addi"))
		Expect(out.String()).To(ContainSubstring("total"))
	})
})

var _ = Describe("TrapStats", func() {
	It("counts traps by cause", func() {
		_, h := newHartAt(0x1000, 0x00000073) // ecall
		stats := trace.NewTrapStats()
		h.AddTrapListener(stats)

		Expect(h.Step()).To(BeNil())
		Expect(stats.Count(hart.CauseEcallM)).To(Equal(uint64(1)))
	})
})

var _ = Describe("LineTracer", func() {
	It("records fetch and data lines", func() {
		var out bytes.Buffer
		_, h := newHartAt(0x1000,
			0x00052283, // lw x5, 0(x10)
			0x00100313, // addi x6, x0, 1
		)
		h.PokeIntReg(10, 0x8000)
		lt := trace.NewLineTracer(&out, 64, 4)
		h.AddRetireListener(lt)

		Expect(h.Step()).To(BeNil())
		Expect(h.Step()).To(BeNil())
		lt.Flush()

		Expect(out.String()).To(Equal(
			"x 1000 1000 1\n" +
				"r 8000 8000 1\n" +
				"x 1000 1000 1\n"))
	})

	It("records evictions with dirtiness", func() {
		var out bytes.Buffer
		_, h := newHartAt(0x1000,
			0x00752023, // sw x7, 0(x10)
			0x00100313, // addi x6, x0, 1
		)
		h.PokeIntReg(10, 0x8000)
		lt := trace.NewLineTracer(&out, 1, 1)
		h.AddRetireListener(lt)

		Expect(h.Step()).To(BeNil())
		Expect(h.Step()).To(BeNil())
		lt.Flush()

		Expect(out.String()).To(Equal(
			"x 1000 1000 1\n" +
				"v 1000 1000 1\n" +
				"w 8000 8000 1\n" +
				"e 8000 8000 1\n" +
				"x 1000 1000 1\n"))
	})
})
