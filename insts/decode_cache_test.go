package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/insts"
)

var _ = Describe("DecodeCache", func() {
	var (
		c *insts.DecodeCache
		d *insts.Decoder
	)

	BeforeEach(func() {
		c = insts.NewDecodeCache(64)
		d = insts.NewDecoder(true)
	})

	It("should miss on an empty cache", func() {
		Expect(c.Lookup(0x1000, 0x02A10093)).To(BeNil())
	})

	It("should hit after an insert with matching pc and opcode", func() {
		inst := d.Decode(0x02A10093)
		c.Insert(0x1000, 0x02A10093, inst)
		Expect(c.Lookup(0x1000, 0x02A10093)).To(Equal(inst))
	})

	It("should miss when the opcode bytes changed underneath", func() {
		inst := d.Decode(0x02A10093)
		c.Insert(0x1000, 0x02A10093, inst)
		Expect(c.Lookup(0x1000, 0xFFF00093)).To(BeNil())
	})

	It("should replace the direct-mapped slot on a conflicting insert", func() {
		a := d.Decode(0x02A10093)
		b := d.Decode(0xFFF00093)
		c.Insert(0x1000, 0x02A10093, a)
		// Same slot: (pc>>1) mod 64 collides at pc+128.
		c.Insert(0x1080, 0xFFF00093, b)
		Expect(c.Lookup(0x1000, 0x02A10093)).To(BeNil())
		Expect(c.Lookup(0x1080, 0xFFF00093)).To(Equal(b))
	})

	Describe("InvalidateOverlap", func() {
		It("should invalidate an entry hit squarely by a store", func() {
			inst := d.Decode(0x02A10093)
			c.Insert(0x1000, 0x02A10093, inst)
			c.InvalidateOverlap(0x1000, 4)
			Expect(c.Lookup(0x1000, 0x02A10093)).To(BeNil())
		})

		It("should invalidate an entry whose tail overlaps the store", func() {
			inst := d.Decode(0x02A10093)
			c.Insert(0x1000, 0x02A10093, inst)
			// Store to the last byte of the 4-byte instruction.
			c.InvalidateOverlap(0x1003, 1)
			Expect(c.Lookup(0x1000, 0x02A10093)).To(BeNil())
		})

		It("should keep an entry the store does not touch", func() {
			inst := d.Decode(0x02A10093)
			c.Insert(0x1000, 0x02A10093, inst)
			c.InvalidateOverlap(0x1004, 4)
			Expect(c.Lookup(0x1000, 0x02A10093)).To(Equal(inst))
		})

		It("should keep a compressed entry when only byte 2 is hit", func() {
			inst := d.Decode(0x0405) // c.addi, 2 bytes
			c.Insert(0x1000, 0x0405, inst)
			c.InvalidateOverlap(0x1002, 1)
			Expect(c.Lookup(0x1000, 0x0405)).To(Equal(inst))
		})
	})

	It("should drop everything on InvalidateAll", func() {
		inst := d.Decode(0x02A10093)
		c.Insert(0x1000, 0x02A10093, inst)
		c.InvalidateAll()
		Expect(c.Lookup(0x1000, 0x02A10093)).To(BeNil())
	})

	It("should reject non-power-of-two sizes", func() {
		Expect(func() { insts.NewDecodeCache(48) }).To(Panic())
	})
})
