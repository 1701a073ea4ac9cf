// Package loader loads guest program images: RISC-V ELF executables
// and Verilog-style HEX memory images.
package loader

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/sarchlab/r5sim/mem"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment is one loadable segment of a program image.
type Segment struct {
	// Addr is the physical load address.
	Addr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (larger than len(Data) for BSS,
	// which is zero-filled).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program is a parsed program image ready to install into memory.
type Program struct {
	// EntryPoint is the address where execution should begin.
	EntryPoint uint64
	// Segments contains all loadable segments.
	Segments []Segment
	// Xlen is 32 or 64 per the image's ELF class; HEX images report 0.
	Xlen int
}

// LoadElf parses a RISC-V ELF binary. Both RV32 and RV64 images are
// accepted; the class is reported through Program.Xlen so the caller
// can configure the hart to match.
func LoadElf(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ELF: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("not a RISC-V ELF file (machine type: %v)",
			f.Machine)
	}

	prog := &Program{EntryPoint: f.Entry, Xlen: 64}
	if f.Class == elf.ELFCLASS32 {
		prog.Xlen = 32
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("read segment at 0x%x: %w",
					phdr.Paddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf(
					"short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Paddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		// Bare-metal images load at the physical address.
		prog.Segments = append(prog.Segments, Segment{
			Addr:    phdr.Paddr,
			Data:    data,
			MemSize: phdr.Memsz,
			Flags:   flags,
		})
	}

	return prog, nil
}

// Install copies every segment into physical memory, zero-filling the
// BSS tail of each.
func (p *Program) Install(m *mem.Memory) error {
	for _, seg := range p.Segments {
		if !m.LoadImage(seg.Addr, seg.Data) {
			return fmt.Errorf("segment at 0x%x does not fit in memory",
				seg.Addr)
		}
		if bss := seg.MemSize - uint64(len(seg.Data)); bss > 0 {
			if !m.LoadImage(seg.Addr+uint64(len(seg.Data)),
				make([]byte, bss)) {
				return fmt.Errorf("BSS at 0x%x does not fit in memory",
					seg.Addr+uint64(len(seg.Data)))
			}
		}
	}
	return nil
}
