package mmu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/mem"
	"github.com/sarchlab/r5sim/mmu"
)

// tableBuilder lays out page tables in physical memory, allocating
// intermediate tables on demand.
type tableBuilder struct {
	m    *mem.Memory
	spec mmu.ModeSpec
	root uint64
	next uint64
}

func newTableBuilder(m *mem.Memory, mode mmu.Mode, root uint64) *tableBuilder {
	spec, ok := mmu.Spec(mode)
	Expect(ok).To(BeTrue())
	return &tableBuilder{m: m, spec: spec, root: root, next: root + 0x1000}
}

func (b *tableBuilder) readPte(addr uint64) uint64 {
	v, ok := b.m.Read(addr, b.spec.PteSize, false)
	Expect(ok).To(BeTrue())
	return v
}

func (b *tableBuilder) writePte(addr, pte uint64) {
	Expect(b.m.Write(addr, b.spec.PteSize, pte, false)).To(BeTrue())
}

// mapLeaf installs a leaf PTE for va at the given level and returns
// the leaf's physical address.
func (b *tableBuilder) mapLeaf(va, pte uint64, level int) uint64 {
	base := b.root
	for l := b.spec.Levels - 1; l > level; l-- {
		addr := base + b.spec.Vpn(va, l)*uint64(b.spec.PteSize)
		cur := b.readPte(addr)
		if cur&mmu.PteV == 0 {
			table := b.next
			b.next += 0x1000
			b.writePte(addr, table>>12<<10|mmu.PteV)
			base = table
		} else {
			base = cur >> 10 << 12
		}
	}
	addr := base + b.spec.Vpn(va, level)*uint64(b.spec.PteSize)
	b.writePte(addr, pte)
	return addr
}

// mapPage installs a 4K mapping va -> pa with the given flag bits and
// returns the leaf PTE address.
func (b *tableBuilder) mapPage(va, pa, flags uint64) uint64 {
	return b.mapLeaf(va, pa>>12<<10|flags|mmu.PteV, 0)
}

const leafRwxad = mmu.PteR | mmu.PteW | mmu.PteX | mmu.PteA | mmu.PteD

var _ = Describe("Walker single stage", func() {
	var (
		m *mem.Memory
		w *mmu.Walker
		b *tableBuilder
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		w = mmu.NewWalker(m)
		b = newTableBuilder(m, mmu.Sv39, 0x10000)
		w.SetSatp(mmu.Sv39, 1, 0x10000>>12)
	})

	It("should pass addresses through for M mode", func() {
		res, fault := w.Translate(0xdead_b000, 8, mem.PrivM, false, mmu.AccessLoad)
		Expect(fault).To(BeNil())
		Expect(res.Pa).To(Equal(uint64(0xdead_b000)))
	})

	It("should translate a mapped 4K page and record the walk", func() {
		b.mapPage(0x4000, 0x9000, leafRwxad)
		res, fault := w.Translate(0x4123, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).To(BeNil())
		Expect(res.Pa).To(Equal(uint64(0x9123)))
		Expect(res.Walks).ToNot(BeEmpty())
		Expect(res.Walks[len(res.Walks)-1].Space).To(Equal("RE"))
	})

	It("should translate the same address identically twice", func() {
		b.mapPage(0x4000, 0x9000, leafRwxad)
		res1, fault := w.Translate(0x4123, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).To(BeNil())
		res2, fault := w.Translate(0x4123, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).To(BeNil())
		Expect(res2.Pa).To(Equal(res1.Pa))
	})

	It("should fault on an unmapped page", func() {
		_, fault := w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessStore)
		Expect(fault).ToNot(BeNil())
		Expect(fault.Type).To(Equal(mmu.FaultPage))
		Expect(fault.Kind).To(Equal(mmu.AccessStore))
		Expect(fault.Addr).To(Equal(uint64(0x4000)))
	})

	It("should fault on non-canonical addresses", func() {
		_, fault := w.Translate(0x0100_0000_0000_0000, 4, mem.PrivS, false,
			mmu.AccessLoad)
		Expect(fault).ToNot(BeNil())
		Expect(fault.Type).To(Equal(mmu.FaultPage))
	})

	It("should set A in memory on first access", func() {
		leaf := b.mapPage(0x4000, 0x9000, mmu.PteR|mmu.PteW)
		_, fault := w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).To(BeNil())
		Expect(b.readPte(leaf) & mmu.PteA).ToNot(BeZero())
		Expect(b.readPte(leaf) & mmu.PteD).To(BeZero())

		_, fault = w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessStore)
		Expect(fault).To(BeNil())
		Expect(b.readPte(leaf) & mmu.PteD).ToNot(BeZero())
	})

	It("should fault instead of updating A/D when configured", func() {
		wf := mmu.NewWalker(m, mmu.WithFaultOnFirstAccess(true))
		wf.SetSatp(mmu.Sv39, 1, 0x10000>>12)
		leaf := b.mapPage(0x4000, 0x9000, mmu.PteR|mmu.PteW)
		_, fault := wf.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).ToNot(BeNil())
		Expect(fault.Type).To(Equal(mmu.FaultPage))
		Expect(b.readPte(leaf) & mmu.PteA).To(BeZero())
	})

	It("should translate a 2M superpage", func() {
		b.mapLeaf(0x0060_0000, 0x8000_0000>>12<<10|leafRwxad|mmu.PteV, 1)
		res, fault := w.Translate(0x0060_1234, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).To(BeNil())
		Expect(res.Pa).To(Equal(uint64(0x8000_1234)))
	})

	It("should fault on a misaligned superpage leaf", func() {
		b.mapLeaf(0x0060_0000, 0x8000_1000>>12<<10|leafRwxad|mmu.PteV, 1)
		_, fault := w.Translate(0x0060_0000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).ToNot(BeNil())
		Expect(fault.Type).To(Equal(mmu.FaultPage))
	})

	It("should fault when reserved PTE bits are set", func() {
		b.mapPage(0x4000, 0x9000, leafRwxad|1<<54)
		_, fault := w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).ToNot(BeNil())
		Expect(fault.Type).To(Equal(mmu.FaultPage))
	})

	It("should resolve a NAPOT 64K group", func() {
		// PPN low bits 0b1000 select the 64K NAPOT encoding.
		pte := uint64(0x9_8000>>12)<<10 | leafRwxad | mmu.PteV | 1<<63
		b.mapLeaf(0x4_3000, pte, 0)
		res, fault := w.Translate(0x4_3078, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).To(BeNil())
		Expect(res.Pa).To(Equal(uint64(0x9_3078)))
	})

	It("should fault on a NAPOT PTE with a bad PPN pattern", func() {
		pte := uint64(0x9_7000>>12)<<10 | leafRwxad | mmu.PteV | 1<<63
		b.mapLeaf(0x4_3000, pte, 0)
		_, fault := w.Translate(0x4_3000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).ToNot(BeNil())
	})

	It("should report PBMT and fault on the reserved encoding", func() {
		b.mapPage(0x4000, 0x9000, leafRwxad|2<<61)
		res, fault := w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).To(BeNil())
		Expect(res.Pbmt).To(Equal(mmu.PbmtIo))

		b.mapPage(0x5000, 0x9000, leafRwxad|3<<61)
		_, fault = w.Translate(0x5000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).ToNot(BeNil())
	})
})

var _ = Describe("Walker permissions", func() {
	var (
		m *mem.Memory
		w *mmu.Walker
		b *tableBuilder
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		w = mmu.NewWalker(m)
		b = newTableBuilder(m, mmu.Sv39, 0x10000)
		w.SetSatp(mmu.Sv39, 1, 0x10000>>12)
	})

	It("should deny S access to user pages without SUM", func() {
		b.mapPage(0x4000, 0x9000, leafRwxad|mmu.PteU)
		_, fault := w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).ToNot(BeNil())

		w.SetStatusBits(true, false, false, false)
		_, fault = w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).To(BeNil())
	})

	It("should never execute user pages from S mode", func() {
		b.mapPage(0x4000, 0x9000, leafRwxad|mmu.PteU)
		w.SetStatusBits(true, false, false, false)
		_, fault := w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessFetch)
		Expect(fault).ToNot(BeNil())
	})

	It("should deny U access to supervisor pages", func() {
		b.mapPage(0x4000, 0x9000, leafRwxad)
		_, fault := w.Translate(0x4000, 4, mem.PrivU, false, mmu.AccessLoad)
		Expect(fault).ToNot(BeNil())
	})

	It("should let MXR read execute-only pages", func() {
		b.mapPage(0x4000, 0x9000, mmu.PteX|mmu.PteA)
		_, fault := w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).ToNot(BeNil())

		w.SetStatusBits(false, true, false, false)
		_, fault = w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).To(BeNil())
	})

	It("should fault writes through read-only pages", func() {
		b.mapPage(0x4000, 0x9000, mmu.PteR|mmu.PteA|mmu.PteD)
		_, fault := w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessStore)
		Expect(fault).ToNot(BeNil())
		Expect(fault.Kind).To(Equal(mmu.AccessStore))
	})
})

var _ = Describe("Walker page crossing", func() {
	var (
		m *mem.Memory
		w *mmu.Walker
		b *tableBuilder
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		w = mmu.NewWalker(m)
		b = newTableBuilder(m, mmu.Sv39, 0x10000)
		w.SetSatp(mmu.Sv39, 1, 0x10000>>12)
	})

	It("should translate both halves of a crossing access", func() {
		b.mapPage(0x1000, 0x9000, leafRwxad)
		b.mapPage(0x2000, 0xC000, leafRwxad)
		res, fault := w.Translate(0x1FFE, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).To(BeNil())
		Expect(res.Pa).To(Equal(uint64(0x9FFE)))
		Expect(res.CrossPage).To(BeTrue())
		Expect(res.Pa2).To(Equal(uint64(0xC000)))
	})

	It("should report the second page's address when it faults", func() {
		b.mapPage(0x1000, 0x9000, leafRwxad)
		_, fault := w.Translate(0x1FFE, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).ToNot(BeNil())
		Expect(fault.Type).To(Equal(mmu.FaultPage))
		Expect(fault.Addr).To(Equal(uint64(0x2000)))
	})

	It("should raise a misaligned fault first when configured", func() {
		wm := mmu.NewWalker(m, mmu.WithMisalignPriority(true))
		wm.SetSatp(mmu.Sv39, 1, 0x10000>>12)
		b.mapPage(0x1000, 0x9000, leafRwxad)
		_, fault := wm.Translate(0x1FFE, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).ToNot(BeNil())
		Expect(fault.Type).To(Equal(mmu.FaultMisaligned))
		Expect(fault.Addr).To(Equal(uint64(0x1FFE)))
	})
})

var _ = Describe("Walker fences", func() {
	var (
		m *mem.Memory
		w *mmu.Walker
		b *tableBuilder
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		w = mmu.NewWalker(m)
		b = newTableBuilder(m, mmu.Sv39, 0x10000)
		w.SetSatp(mmu.Sv39, 1, 0x10000>>12)
	})

	It("should keep serving stale entries until fenced", func() {
		leaf := b.mapPage(0x4000, 0x9000, leafRwxad)
		res, _ := w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(res.Pa).To(Equal(uint64(0x9000)))

		b.writePte(leaf, uint64(0xC000>>12)<<10|leafRwxad|mmu.PteV)
		res, _ = w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(res.Pa).To(Equal(uint64(0x9000)))

		w.SfenceVma(0x4000, true, 0, false, false)
		res, _ = w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(res.Pa).To(Equal(uint64(0xC000)))
	})

	It("should scope ASID fences to non-global entries", func() {
		leaf := b.mapPage(0x4000, 0x9000, leafRwxad|mmu.PteG)
		_, _ = w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		b.writePte(leaf, uint64(0xC000>>12)<<10|leafRwxad|mmu.PteG|mmu.PteV)

		w.SfenceVma(0, false, 1, true, false)
		res, _ := w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(res.Pa).To(Equal(uint64(0x9000)))

		w.SfenceVma(0, false, 0, false, false)
		res, _ = w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(res.Pa).To(Equal(uint64(0xC000)))
	})

	It("should treat a cached entry with stale A as a miss", func() {
		leaf := b.mapPage(0x4000, 0x9000, mmu.PteR|mmu.PteW|mmu.PteA)
		_, fault := w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessLoad)
		Expect(fault).To(BeNil())

		// The cached entry has D clear; a store must walk again and
		// set D in memory without any fence.
		_, fault = w.Translate(0x4000, 4, mem.PrivS, false, mmu.AccessStore)
		Expect(fault).To(BeNil())
		Expect(b.readPte(leaf) & mmu.PteD).ToNot(BeZero())
	})
})

var _ = Describe("Walker two stage", func() {
	var (
		m  *mem.Memory
		w  *mmu.Walker
		vs *tableBuilder
		g  *tableBuilder
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		w = mmu.NewWalker(m)
		vs = newTableBuilder(m, mmu.Sv39, 0x40000)
		g = newTableBuilder(m, mmu.Sv39, 0x80000)
		w.SetVsatp(mmu.Sv39, 1, 0x40000>>12)
		w.SetHgatp(mmu.Sv39, 3, 0x80000>>12)
	})

	// The G stage sees all accesses as user mode, so its leaves
	// need U set.
	gLeaf := func(gpa, pa uint64) {
		g.mapPage(gpa, pa, leafRwxad|mmu.PteU)
	}

	It("should compose VS and G translations", func() {
		// VS tables live in guest-physical space; identity-map them
		// through G so PTE fetches resolve.
		for off := uint64(0); off < 0x10000; off += 0x1000 {
			gLeaf(0x40000+off, 0x40000+off)
		}
		vs.mapPage(0x7000, 0x2_0000, leafRwxad|mmu.PteU)
		gLeaf(0x2_0000, 0x9_0000)

		res, fault := w.Translate(0x7123, 4, mem.PrivU, true, mmu.AccessLoad)
		Expect(fault).To(BeNil())
		Expect(res.Pa).To(Equal(uint64(0x9_0123)))
	})

	It("should raise a guest-page fault when the final GPA is unmapped", func() {
		for off := uint64(0); off < 0x10000; off += 0x1000 {
			gLeaf(0x40000+off, 0x40000+off)
		}
		vs.mapPage(0x7000, 0x2_0000, leafRwxad|mmu.PteU)

		_, fault := w.Translate(0x7123, 4, mem.PrivU, true, mmu.AccessStore)
		Expect(fault).ToNot(BeNil())
		Expect(fault.Type).To(Equal(mmu.FaultGuestPage))
		Expect(fault.Kind).To(Equal(mmu.AccessStore))
		Expect(fault.Addr).To(Equal(uint64(0x7123)))
		Expect(fault.Gpa).To(Equal(uint64(0x2_0123)))
		Expect(fault.S1Implicit).To(BeFalse())
	})

	It("should mark guest faults on VS PTE fetches as implicit", func() {
		// No G mapping for the VS root, so the very first PTE fetch
		// faults at the G stage.
		vs.mapPage(0x7000, 0x2_0000, leafRwxad|mmu.PteU)

		_, fault := w.Translate(0x7000, 4, mem.PrivU, true, mmu.AccessLoad)
		Expect(fault).ToNot(BeNil())
		Expect(fault.Type).To(Equal(mmu.FaultGuestPage))
		Expect(fault.S1Implicit).To(BeTrue())
	})

	It("should update A/D in the G-stage PTE for guest stores", func() {
		for off := uint64(0); off < 0x10000; off += 0x1000 {
			gLeaf(0x40000+off, 0x40000+off)
		}
		vs.mapPage(0x7000, 0x2_0000, leafRwxad|mmu.PteU)
		leaf := g.mapPage(0x2_0000, 0x9_0000,
			mmu.PteR|mmu.PteW|mmu.PteX|mmu.PteU)

		_, fault := w.Translate(0x7000, 4, mem.PrivU, true, mmu.AccessStore)
		Expect(fault).To(BeNil())
		Expect(g.readPte(leaf) & mmu.PteA).ToNot(BeZero())
		Expect(g.readPte(leaf) & mmu.PteD).ToNot(BeZero())
	})

	It("should apply VS-stage permissions with vsstatus bits", func() {
		for off := uint64(0); off < 0x10000; off += 0x1000 {
			gLeaf(0x40000+off, 0x40000+off)
		}
		vs.mapPage(0x7000, 0x2_0000, leafRwxad|mmu.PteU)
		gLeaf(0x2_0000, 0x9_0000)

		// VS supervisor touching a user page needs vsstatus.SUM.
		_, fault := w.Translate(0x7000, 4, mem.PrivS, true, mmu.AccessLoad)
		Expect(fault).ToNot(BeNil())
		w.SetStatusBits(false, false, true, false)
		_, fault = w.Translate(0x7000, 4, mem.PrivS, true, mmu.AccessLoad)
		Expect(fault).To(BeNil())
	})

	It("should drop VS entries on HFENCE.GVMA", func() {
		for off := uint64(0); off < 0x10000; off += 0x1000 {
			gLeaf(0x40000+off, 0x40000+off)
		}
		vs.mapPage(0x7000, 0x2_0000, leafRwxad|mmu.PteU)
		leaf := g.mapPage(0x2_0000, 0x9_0000, leafRwxad|mmu.PteU)

		res, _ := w.Translate(0x7000, 4, mem.PrivU, true, mmu.AccessLoad)
		Expect(res.Pa).To(Equal(uint64(0x9_0000)))

		g.writePte(leaf, uint64(0xA_0000>>12)<<10|leafRwxad|mmu.PteU|mmu.PteV)
		w.HfenceGvma(0, false, 0, false)
		res, _ = w.Translate(0x7000, 4, mem.PrivU, true, mmu.AccessLoad)
		Expect(res.Pa).To(Equal(uint64(0xA_0000)))
	})
})
