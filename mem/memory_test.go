package mem_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/mem"
)

type recordingWatcher struct {
	stores []uint64
}

func (w *recordingWatcher) OnStore(pa, size uint64) {
	w.stores = append(w.stores, pa)
}

type stubDevice struct {
	lastWrite uint64
	value     uint64
}

func (d *stubDevice) MmioRead(pa uint64, size int) (uint64, bool) {
	return d.value, true
}

func (d *stubDevice) MmioWrite(pa uint64, size int, value uint64) bool {
	d.lastWrite = value
	return true
}

var _ = Describe("Memory", func() {
	var m *mem.Memory

	BeforeEach(func() {
		m = mem.NewMemory()
	})

	It("should read zero from untouched pages", func() {
		v, ok := m.Read(0x1000, 8, false)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(0)))
	})

	It("should round-trip little-endian values", func() {
		Expect(m.Write(0x1000, 8, 0x1122334455667788, false)).To(BeTrue())
		v, ok := m.Read(0x1000, 8, false)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(0x1122334455667788)))

		lo, _ := m.Read(0x1000, 4, false)
		Expect(lo).To(Equal(uint64(0x55667788)))
	})

	It("should honor big-endian ordering", func() {
		Expect(m.Write(0x1000, 4, 0xAABBCCDD, true)).To(BeTrue())
		b0, _ := m.Read(0x1000, 1, false)
		Expect(b0).To(Equal(uint64(0xAA)))
		v, _ := m.Read(0x1000, 4, true)
		Expect(v).To(Equal(uint64(0xAABBCCDD)))
	})

	It("should handle accesses that straddle a page boundary", func() {
		Expect(m.Write(0xFFE, 4, 0xDEADBEEF, false)).To(BeTrue())
		v, ok := m.Read(0xFFE, 4, false)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(0xDEADBEEF)))
	})

	It("should fail beyond the physical limit", func() {
		small := mem.NewMemory(mem.WithLimit(0x2000))
		_, ok := small.Read(0x2000, 4, false)
		Expect(ok).To(BeFalse())
		Expect(small.Write(0x1FFE, 4, 1, false)).To(BeFalse())
	})

	It("should notify store watchers", func() {
		w := &recordingWatcher{}
		m.WatchStores(w)
		m.Write(0x3000, 4, 7, false)
		Expect(w.stores).To(Equal([]uint64{0x3000}))
	})

	It("should route MMIO ranges to the device handler", func() {
		d := &stubDevice{value: 42}
		m.MapMmio(0x200_0000, 0x1000, d)

		v, ok := m.Read(0x200_0008, 4, false)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(42)))

		Expect(m.Write(0x200_0008, 4, 99, false)).To(BeTrue())
		Expect(d.lastWrite).To(Equal(uint64(99)))
		Expect(m.IsMmio(0x200_0000)).To(BeTrue())
		Expect(m.IsMmio(0x100_0000)).To(BeFalse())
	})
})

var _ = Describe("Pmp", func() {
	var (
		m *mem.Memory
		p *mem.Pmp
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		p = m.Pmp()
	})

	It("should allow everything when no entry is active", func() {
		Expect(m.IsReadable(0x1000, 8, mem.PrivU)).To(BeTrue())
		Expect(m.IsWritable(0x1000, 8, mem.PrivS)).To(BeTrue())
		Expect(m.IsExecutable(0x1000, 4, mem.PrivM)).To(BeTrue())
	})

	It("should deny unmatched accesses to non-M modes once active", func() {
		// NAPOT entry covering [0x1000, 0x2000) read-only.
		p.SetAddr(0, (0x1000>>2)|(0x1000>>3-1))
		p.SetCfg(0, 1|(mem.PmpNapot<<3)) // R, NAPOT
		Expect(m.IsReadable(0x1000, 8, mem.PrivU)).To(BeTrue())
		Expect(m.IsWritable(0x1000, 8, mem.PrivU)).To(BeFalse())
		// Outside any entry: U denied, M allowed.
		Expect(m.IsReadable(0x8000, 8, mem.PrivU)).To(BeFalse())
		Expect(m.IsReadable(0x8000, 8, mem.PrivM)).To(BeTrue())
	})

	It("should let M-mode bypass unlocked entries", func() {
		p.SetAddr(0, (0x1000>>2)|(0x1000>>3-1))
		p.SetCfg(0, mem.PmpNapot<<3) // no permissions, unlocked
		Expect(m.IsWritable(0x1000, 8, mem.PrivM)).To(BeTrue())
		Expect(m.IsWritable(0x1000, 8, mem.PrivS)).To(BeFalse())
	})

	It("should enforce TOR ranges", func() {
		p.SetAddr(0, 0x1000>>2)
		p.SetAddr(1, 0x2000>>2)
		p.SetCfg(1, 1|2|(mem.PmpTor<<3)) // RW TOR [0x1000, 0x2000)
		Expect(m.IsWritable(0x1800, 8, mem.PrivU)).To(BeTrue())
		Expect(m.IsWritable(0x2000, 8, mem.PrivU)).To(BeFalse())
	})

	It("should fail accesses that only partially overlap an entry", func() {
		p.SetAddr(0, 0x1000>>2)
		p.SetCfg(0, 1|2|4|(mem.PmpNa4<<3)) // RWX NA4 at 0x1000
		Expect(m.IsReadable(0xFFE, 4, mem.PrivM)).To(BeFalse())
	})

	It("should ignore writes to locked entries", func() {
		p.SetCfg(0, 1|(mem.PmpNa4<<3)|0x80)
		p.SetCfg(0, 0)
		Expect(p.Cfg(0) & 1).To(Equal(uint8(1)))
	})
})

var _ = Describe("Pma", func() {
	It("should default to RAM attributes", func() {
		p := mem.NewPma()
		a := p.Attr(0x1234)
		Expect(a.Read && a.Write && a.Exec).To(BeTrue())
	})

	It("should shadow with later definitions", func() {
		p := mem.NewPma()
		p.Define(0x1000, 0x2000, mem.PmaAttr{Read: true})
		Expect(p.Writable(0x1000, 8)).To(BeFalse())
		Expect(p.Readable(0x1000, 8)).To(BeTrue())
		p.Define(0x1000, 0x2000, mem.PmaAttr{Read: true, Write: true})
		Expect(p.Writable(0x1000, 8)).To(BeTrue())
	})

	It("should restore the default on reset", func() {
		p := mem.NewPma()
		p.Define(0, 1<<32, mem.PmaAttr{})
		Expect(p.Readable(0x1000, 4)).To(BeFalse())
		p.Reset()
		Expect(p.Readable(0x1000, 4)).To(BeTrue())
	})
})
