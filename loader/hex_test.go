package loader_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/loader"
	"github.com/sarchlab/r5sim/mem"
)

func writeHex(dir, name, content string) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
	return path
}

var _ = Describe("HEX Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "hex-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	It("parses byte runs at increasing addresses", func() {
		path := writeHex(tempDir, "a.hex", "@1000\n93 02 A0 02\n73 00 00 00\n")
		prog, err := loader.LoadHex(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.EntryPoint).To(Equal(uint64(0x1000)))
		Expect(prog.Segments).To(HaveLen(1))
		Expect(prog.Segments[0].Addr).To(Equal(uint64(0x1000)))
		Expect(prog.Segments[0].Data).To(Equal([]byte{
			0x93, 0x02, 0xA0, 0x02, 0x73, 0x00, 0x00, 0x00,
		}))
	})

	It("treats multi-byte runs as consecutive bytes", func() {
		path := writeHex(tempDir, "b.hex", "@0\nDEADBEEF\n")
		prog, err := loader.LoadHex(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Segments[0].Data).To(Equal(
			[]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	})

	It("starts a new segment at each address marker", func() {
		path := writeHex(tempDir, "c.hex", "@1000\nAA BB\n@2000\nCC\n")
		prog, err := loader.LoadHex(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Segments).To(HaveLen(2))
		Expect(prog.Segments[0].Addr).To(Equal(uint64(0x1000)))
		Expect(prog.Segments[0].Data).To(Equal([]byte{0xAA, 0xBB}))
		Expect(prog.Segments[1].Addr).To(Equal(uint64(0x2000)))
		Expect(prog.Segments[1].Data).To(Equal([]byte{0xCC}))
	})

	It("skips comments", func() {
		path := writeHex(tempDir, "d.hex",
			"// boot image\n@1000\nAA // trailing\nBB\n")
		prog, err := loader.LoadHex(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Segments[0].Data).To(Equal([]byte{0xAA, 0xBB}))
	})

	It("installs into memory", func() {
		path := writeHex(tempDir, "e.hex", "@1000\n93 02 A0 02\n")
		prog, err := loader.LoadHex(path)
		Expect(err).NotTo(HaveOccurred())

		m := mem.NewMemory()
		Expect(prog.Install(m)).To(Succeed())
		v, ok := m.Read(0x1000, 4, false)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint64(0x02A00293)))
	})

	It("rejects an odd digit count", func() {
		path := writeHex(tempDir, "f.hex", "@0\nABC\n")
		_, err := loader.LoadHex(path)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("odd number"))
	})

	It("rejects stray characters", func() {
		path := writeHex(tempDir, "g.hex", "@0\nzz\n")
		_, err := loader.LoadHex(path)
		Expect(err).To(HaveOccurred())
	})
})
