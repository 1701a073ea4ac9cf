package devices_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/devices"
)

type fakeSink struct {
	timer    bool
	software bool
}

func (s *fakeSink) SetTimerInterrupt(on bool)    { s.timer = on }
func (s *fakeSink) SetSoftwareInterrupt(on bool) { s.software = on }

var _ = Describe("Clint", func() {
	var (
		c    *devices.Clint
		sink *fakeSink
	)

	BeforeEach(func() {
		c = devices.NewClint(1)
		sink = &fakeSink{}
		c.AttachHart(0, sink)
	})

	It("holds MTIP low until mtimecmp is reached", func() {
		Expect(c.MmioWrite(0x4000, 8, 100)).To(BeTrue())
		Expect(sink.timer).To(BeFalse())

		c.Tick(99)
		Expect(sink.timer).To(BeFalse())

		c.Tick(1)
		Expect(sink.timer).To(BeTrue())
	})

	It("raises MTIP immediately on a stale mtimecmp write", func() {
		c.Tick(500)
		Expect(c.MmioWrite(0x4000, 8, 200)).To(BeTrue())
		Expect(sink.timer).To(BeTrue())

		Expect(c.MmioWrite(0x4000, 8, 1000)).To(BeTrue())
		Expect(sink.timer).To(BeFalse())
	})

	It("drives MSIP from the msip register", func() {
		Expect(c.MmioWrite(0x0, 4, 1)).To(BeTrue())
		Expect(sink.software).To(BeTrue())
		Expect(c.MmioWrite(0x0, 4, 0)).To(BeTrue())
		Expect(sink.software).To(BeFalse())
	})

	It("reads mtime in halves", func() {
		c.Tick(0x1_0000_0002)
		lo, ok := c.MmioRead(0xBFF8, 4)
		Expect(ok).To(BeTrue())
		Expect(lo).To(Equal(uint64(2)))
		hi, ok := c.MmioRead(0xBFFC, 4)
		Expect(ok).To(BeTrue())
		Expect(hi).To(Equal(uint64(1)))
	})
})

var _ = Describe("Htif", func() {
	var (
		out bytes.Buffer
		h   *devices.Htif
	)

	BeforeEach(func() {
		out.Reset()
		h = devices.NewHtif(&out)
	})

	It("prints a character for device 1 command 1", func() {
		word := uint64(1)<<56 | uint64(1)<<48 | uint64('A')
		Expect(h.MmioWrite(0, 8, word)).To(BeTrue())
		Expect(out.String()).To(Equal("A"))

		// tohost clears and fromhost acks.
		v, ok := h.MmioRead(0, 8)
		Expect(ok).To(BeTrue())
		Expect(v).To(BeZero())
		ack, _ := h.MmioRead(8, 8)
		Expect(ack).NotTo(BeZero())
	})

	It("terminates on device 0 with payload bit 0 set", func() {
		Expect(h.MmioWrite(0, 8, 42<<1|1)).To(BeTrue())
		exited, code := h.Exited()
		Expect(exited).To(BeTrue())
		Expect(code).To(Equal(uint64(42)))
	})

	It("fires only after the high half of a split write", func() {
		Expect(h.MmioWrite(0, 4, 'B')).To(BeTrue())
		Expect(out.Len()).To(BeZero())

		Expect(h.MmioWrite(4, 4, 1<<24|1<<16)).To(BeTrue())
		Expect(out.String()).To(Equal("B"))
	})
})

var _ = Describe("Console", func() {
	It("emits stored bytes and serves buffered input", func() {
		var out bytes.Buffer
		c := devices.NewConsole(&out)

		Expect(c.MmioWrite(0, 1, 'h')).To(BeTrue())
		Expect(c.MmioWrite(0, 1, 'i')).To(BeTrue())
		Expect(out.String()).To(Equal("hi"))

		st, _ := c.MmioRead(4, 4)
		Expect(st).To(BeZero())

		c.PushInput([]byte{'x'})
		st, _ = c.MmioRead(4, 4)
		Expect(st).To(Equal(uint64(1)))

		b, _ := c.MmioRead(0, 1)
		Expect(b).To(Equal(uint64('x')))
		b, _ = c.MmioRead(0, 1)
		Expect(b).To(Equal(uint64(0xFF)))
	})
})

var _ = Describe("Framebuffer", func() {
	It("round-trips pixels through a snapshot file", func() {
		f := devices.NewFramebuffer(4, 4)
		Expect(f.MmioWrite(0, 4, 0xFF00FF00)).To(BeTrue())
		Expect(f.MmioWrite(60, 4, 0x11223344)).To(BeTrue())

		path := filepath.Join(os.TempDir(), "fb_test.rgba")
		defer os.Remove(path)
		Expect(f.Save(path)).To(Succeed())

		g := devices.NewFramebuffer(4, 4)
		Expect(g.Load(path)).To(Succeed())
		v, ok := g.MmioRead(0, 4)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(0xFF00FF00)))
		v, _ = g.MmioRead(60, 4)
		Expect(v).To(Equal(uint64(0x11223344)))
	})

	It("rejects a snapshot with mismatched dimensions", func() {
		f := devices.NewFramebuffer(4, 4)
		path := filepath.Join(os.TempDir(), "fb_dim.rgba")
		defer os.Remove(path)
		Expect(f.Save(path)).To(Succeed())

		g := devices.NewFramebuffer(8, 8)
		Expect(g.Load(path)).NotTo(Succeed())
	})
})
