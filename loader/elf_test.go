package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/loader"
	"github.com/sarchlab/r5sim/mem"
)

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "elf-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	Describe("LoadElf", func() {
		Context("with a valid RV64 ELF binary", func() {
			var elfPath string

			code := []byte{
				0x93, 0x02, 0xa0, 0x02, // addi x5, x0, 42
				0x73, 0x00, 0x00, 0x00, // ecall
			}

			BeforeEach(func() {
				elfPath = filepath.Join(tempDir, "test.elf")
				createMinimalRiscvELF(elfPath, 0x8000_0000, 0x8000_0000, code)
			})

			It("loads and reports the entry point", func() {
				prog, err := loader.LoadElf(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.EntryPoint).To(Equal(uint64(0x8000_0000)))
				Expect(prog.Xlen).To(Equal(64))
			})

			It("extracts the code segment", func() {
				prog, err := loader.LoadElf(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Segments).To(HaveLen(1))
				Expect(prog.Segments[0].Addr).To(Equal(uint64(0x8000_0000)))
				Expect(prog.Segments[0].Data).To(Equal(code))
				Expect(prog.Segments[0].Flags & loader.SegmentFlagExecute).
					NotTo(BeZero())
			})

			It("installs segments into memory", func() {
				prog, err := loader.LoadElf(elfPath)
				Expect(err).NotTo(HaveOccurred())

				m := mem.NewMemory()
				Expect(prog.Install(m)).To(Succeed())
				v, ok := m.Read(0x8000_0000, 4, false)
				Expect(ok).To(BeTrue())
				Expect(v).To(Equal(uint64(0x02a00293)))
			})
		})

		Context("with BSS", func() {
			It("zero-fills the tail beyond the file data", func() {
				elfPath := filepath.Join(tempDir, "bss.elf")
				createBssRiscvELF(elfPath, 0x8000_0000,
					[]byte{0x01, 0x02, 0x03, 0x04}, 64)

				prog, err := loader.LoadElf(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Segments[0].MemSize).To(Equal(uint64(64)))

				m := mem.NewMemory()
				// Dirty the BSS range first so the zero-fill is observable.
				Expect(m.Write(0x8000_0010, 8, ^uint64(0), false)).To(BeTrue())
				Expect(prog.Install(m)).To(Succeed())
				v, _ := m.Read(0x8000_0010, 8, false)
				Expect(v).To(BeZero())
			})
		})

		Context("with invalid input", func() {
			It("rejects a missing file", func() {
				_, err := loader.LoadElf(filepath.Join(tempDir, "missing.elf"))
				Expect(err).To(HaveOccurred())
			})

			It("rejects a non-ELF file", func() {
				path := filepath.Join(tempDir, "not-elf.bin")
				Expect(os.WriteFile(path, []byte("not an elf"), 0o644)).
					To(Succeed())
				_, err := loader.LoadElf(path)
				Expect(err).To(HaveOccurred())
			})

			It("rejects a non-RISC-V machine type", func() {
				path := filepath.Join(tempDir, "x86.elf")
				createMinimalELF(path, 62, 2, 0, nil) // EM_X86_64
				_, err := loader.LoadElf(path)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a RISC-V"))
			})
		})

		Context("with an RV32 image", func() {
			It("reports Xlen 32", func() {
				path := filepath.Join(tempDir, "rv32.elf")
				createMinimalELF32(path, 0x8000_0000)
				prog, err := loader.LoadElf(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Xlen).To(Equal(32))
			})
		})
	})
})

// createMinimalELF writes a 64-bit little-endian ELF with the given
// machine type and phnum PT_LOAD headers worth of code.
func createMinimalELF(path string, machine uint16, elfType uint16,
	entry uint64, code []byte) {
	header := make([]byte, 64)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2 // ELFCLASS64
	header[5] = 1 // little endian
	header[6] = 1 // version
	binary.LittleEndian.PutUint16(header[16:18], elfType)
	binary.LittleEndian.PutUint16(header[18:20], machine)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint64(header[24:32], entry)
	binary.LittleEndian.PutUint64(header[32:40], 64) // phoff
	binary.LittleEndian.PutUint16(header[52:54], 64) // ehsize
	binary.LittleEndian.PutUint16(header[54:56], 56) // phentsize
	phnum := uint16(0)
	if code != nil {
		phnum = 1
	}
	binary.LittleEndian.PutUint16(header[56:58], phnum)

	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = f.Close() }()
	_, _ = f.Write(header)
}

// createMinimalRiscvELF writes an RV64 ELF with one RX PT_LOAD segment.
func createMinimalRiscvELF(path string, loadAddr, entry uint64, code []byte) {
	writeRiscvELF(path, loadAddr, entry, code, uint64(len(code)))
}

// createBssRiscvELF writes an RV64 ELF whose single segment has
// memSize larger than the file data.
func createBssRiscvELF(path string, loadAddr uint64, data []byte,
	memSize uint64) {
	writeRiscvELF(path, loadAddr, loadAddr, data, memSize)
}

func writeRiscvELF(path string, loadAddr, entry uint64, code []byte,
	memSize uint64) {
	const emRiscv = 243

	header := make([]byte, 64)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2
	header[5] = 1
	header[6] = 1
	binary.LittleEndian.PutUint16(header[16:18], 2) // ET_EXEC
	binary.LittleEndian.PutUint16(header[18:20], emRiscv)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint64(header[24:32], entry)
	binary.LittleEndian.PutUint64(header[32:40], 64)
	binary.LittleEndian.PutUint16(header[52:54], 64)
	binary.LittleEndian.PutUint16(header[54:56], 56)
	binary.LittleEndian.PutUint16(header[56:58], 1)

	phdr := make([]byte, 56)
	binary.LittleEndian.PutUint32(phdr[0:4], 1)   // PT_LOAD
	binary.LittleEndian.PutUint32(phdr[4:8], 0x5) // PF_R | PF_X
	binary.LittleEndian.PutUint64(phdr[8:16], 120)
	binary.LittleEndian.PutUint64(phdr[16:24], loadAddr)
	binary.LittleEndian.PutUint64(phdr[24:32], loadAddr)
	binary.LittleEndian.PutUint64(phdr[32:40], uint64(len(code)))
	binary.LittleEndian.PutUint64(phdr[40:48], memSize)
	binary.LittleEndian.PutUint64(phdr[48:56], 0x1000)

	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = f.Close() }()
	_, _ = f.Write(header)
	_, _ = f.Write(phdr)
	_, _ = f.Write(code)
}

// createMinimalELF32 writes an RV32 ELF with no segments.
func createMinimalELF32(path string, entry uint64) {
	const emRiscv = 243

	header := make([]byte, 52)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 1 // ELFCLASS32
	header[5] = 1
	header[6] = 1
	binary.LittleEndian.PutUint16(header[16:18], 2)
	binary.LittleEndian.PutUint16(header[18:20], emRiscv)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], uint32(entry))
	binary.LittleEndian.PutUint32(header[28:32], 0)  // phoff
	binary.LittleEndian.PutUint32(header[32:36], 0)  // shoff
	binary.LittleEndian.PutUint16(header[40:42], 52) // ehsize
	binary.LittleEndian.PutUint16(header[42:44], 32) // phentsize
	binary.LittleEndian.PutUint16(header[44:46], 0)  // phnum

	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = f.Close() }()
	_, _ = f.Write(header)
}
