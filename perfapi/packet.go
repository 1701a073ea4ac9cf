package perfapi

import (
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/mem"
	"github.com/sarchlab/r5sim/mmu"
)

// Packet is one in-flight instruction in the speculative engine, keyed
// by a monotonically increasing tag. Tag 0 is reserved.
type Packet struct {
	Tag uint64
	// Iva is the virtual PC the packet was fetched from.
	Iva  uint64
	Inst *insts.Instruction

	decoded  bool
	executed bool
	retired  bool

	// Recorded at execute.
	NextIva      uint64
	Trap         bool
	TrapCause    uint64
	TrapIsInt    bool
	Priv         mem.Priv
	Virt         bool
	Taken        bool
	PredNextIva  uint64
	Mispredicted bool
	DeviceSpace  bool
	DataVa       uint64
	DataPa       uint64
	DataSize     int

	// InstPa is the fetch physical address; InstPa2 the second half's
	// address when the fetch crossed a page.
	InstPa      uint64
	InstPa2     uint64
	InstCrossed bool

	// FetchWalks and DataWalks record the page-table walks the fetch
	// and the data accesses took; empty under bare translation.
	FetchWalks []mmu.WalkStep
	DataWalks  []mmu.WalkStep

	// VecAddrs lists the per-element virtual addresses of a vector
	// load or store; VecElemSize is the element size in bytes.
	VecAddrs    []uint64
	VecElemSize int

	intDest  int // -1 when none
	intVal   uint64
	fpDest   int
	fpVal    uint64
	vecDest  int
	vecGroup int
	vecVal   []byte
	csrDest  int // -1 when none
	csrVal   uint64

	// stData maps physical byte addresses to the store's data. It is
	// captured at execute and written back to memory at drain.
	stData map[uint64]byte

	// Producer tags captured at decode, one per destination slot this
	// packet claimed. Flush walks these to unwind renaming.
	prevInt map[int]uint64
	prevFp  map[int]uint64
	prevVec map[int]uint64
	prevCsr map[uint16]uint64
}

func newPacket(tag, iva uint64) *Packet {
	return &Packet{
		Tag:     tag,
		Iva:     iva,
		intDest: -1,
		fpDest:  -1,
		vecDest: -1,
		csrDest: -1,
		stData:  map[uint64]byte{},
		prevInt: map[int]uint64{},
		prevFp:  map[int]uint64{},
		prevVec: map[int]uint64{},
		prevCsr: map[uint16]uint64{},
	}
}

// IsStore reports whether the packet must be retained after retire
// until the controller drains its store data.
func (p *Packet) IsStore() bool {
	return p.Inst != nil && p.Inst.IsStore()
}

// Decoded reports whether the packet has been decoded.
func (p *Packet) Decoded() bool { return p.decoded }

// Executed reports whether the packet has executed speculatively.
func (p *Packet) Executed() bool { return p.executed }

// Retired reports whether the packet has retired.
func (p *Packet) Retired() bool { return p.retired }

// IntResult returns the integer destination register and the value
// recorded for it at execute.
func (p *Packet) IntResult() (reg int, val uint64, ok bool) {
	return p.intDest, p.intVal, p.intDest >= 0
}

// FpResult returns the FP destination register and the value recorded
// for it at execute.
func (p *Packet) FpResult() (reg int, val uint64, ok bool) {
	return p.fpDest, p.fpVal, p.fpDest >= 0
}

// VecResult returns the vector destination group base, its recorded
// bytes and the group size in registers.
func (p *Packet) VecResult() (reg int, val []byte, group int) {
	return p.vecDest, p.vecVal, p.vecGroup
}

// CsrResult returns the CSR destination and the value recorded for it
// at execute.
func (p *Packet) CsrResult() (addr uint16, val uint64, ok bool) {
	if p.csrDest < 0 {
		return 0, 0, false
	}
	return uint16(p.csrDest), p.csrVal, true
}

// StoreData returns the pending store byte for a physical address.
func (p *Packet) StoreData(pa uint64) (byte, bool) {
	b, ok := p.stData[pa]
	return b, ok
}

// operands lists the architectural sources of an instruction, split by
// register file. csr is -1 when the instruction has no CSR operand.
type operands struct {
	ints []int
	fps  []int
	vecs []int
	csr  int
}

func fpIntSource(op insts.Op) bool {
	switch op {
	case insts.OpFCVTSW, insts.OpFCVTSWU, insts.OpFCVTSL, insts.OpFCVTSLU,
		insts.OpFMVWX,
		insts.OpFCVTDW, insts.OpFCVTDWU, insts.OpFCVTDL, insts.OpFCVTDLU,
		insts.OpFMVDX:
		return true
	}
	return false
}

func fpSingleSource(op insts.Op) bool {
	switch op {
	case insts.OpFSQRTS, insts.OpFSQRTD,
		insts.OpFCVTWS, insts.OpFCVTWUS, insts.OpFCVTLS, insts.OpFCVTLUS,
		insts.OpFCVTWD, insts.OpFCVTWUD, insts.OpFCVTLD, insts.OpFCVTLUD,
		insts.OpFCVTSD, insts.OpFCVTDS,
		insts.OpFMVXW, insts.OpFMVXD,
		insts.OpFCLASSS, insts.OpFCLASSD:
		return true
	}
	return false
}

func fpFma(op insts.Op) bool {
	switch op {
	case insts.OpFMADDS, insts.OpFMSUBS, insts.OpFNMSUBS, insts.OpFNMADDS,
		insts.OpFMADDD, insts.OpFMSUBD, insts.OpFNMSUBD, insts.OpFNMADDD:
		return true
	}
	return false
}

// classifyOperands maps a decoded instruction onto the register files
// its sources live in. The engine snapshots and pokes exactly these
// registers around the speculative step.
func classifyOperands(inst *insts.Instruction, vecGroup int) operands {
	ops := operands{csr: -1}
	rs1 := int(inst.Rs1)
	rs2 := int(inst.Rs2)
	rs3 := int(inst.Rs3)

	addInt := func(r int) {
		if r == 0 {
			return
		}
		for _, have := range ops.ints {
			if have == r {
				return
			}
		}
		ops.ints = append(ops.ints, r)
	}
	addVecGroup := func(r int) {
		for g := 0; g < vecGroup; g++ {
			ops.vecs = append(ops.vecs, r+g)
		}
	}

	switch inst.Class() {
	case insts.ClassFp:
		switch {
		case inst.Op == insts.OpFLW || inst.Op == insts.OpFLD:
			addInt(rs1)
		case inst.Op == insts.OpFSW || inst.Op == insts.OpFSD:
			addInt(rs1)
			ops.fps = append(ops.fps, rs2)
		case fpIntSource(inst.Op):
			addInt(rs1)
		case fpFma(inst.Op):
			ops.fps = append(ops.fps, rs1, rs2, rs3)
		case fpSingleSource(inst.Op):
			ops.fps = append(ops.fps, rs1)
		default:
			ops.fps = append(ops.fps, rs1, rs2)
		}

	case insts.ClassVector:
		switch inst.Op {
		case insts.OpVSETVLI:
			addInt(rs1)
		case insts.OpVSETVL:
			addInt(rs1)
			addInt(rs2)
		case insts.OpVSETIVLI:
		case insts.OpVLE:
			addInt(rs1)
		case insts.OpVSE:
			addInt(rs1)
			addVecGroup(int(inst.Rs2))
		case insts.OpVMVVI:
		case insts.OpVMVVX, insts.OpVADDVX, insts.OpVSUBVX,
			insts.OpVANDVX, insts.OpVORVX, insts.OpVXORVX:
			addInt(rs1)
			addVecGroup(int(inst.Rs2))
		default:
			addVecGroup(rs1)
			addVecGroup(int(inst.Rs2))
		}
		if inst.VecMask {
			ops.vecs = append(ops.vecs, 0)
		}

	case insts.ClassCsr:
		switch inst.Op {
		case insts.OpCSRRW, insts.OpCSRRS, insts.OpCSRRC:
			addInt(rs1)
		}
		ops.csr = int(inst.Csr)

	default:
		addInt(rs1)
		addInt(rs2)
	}

	return ops
}

// csrWrites reports whether a Zicsr instruction architecturally writes
// its CSR. The set forms with a zero source read without writing.
func csrWrites(inst *insts.Instruction) bool {
	switch inst.Op {
	case insts.OpCSRRW, insts.OpCSRRWI:
		return true
	case insts.OpCSRRS, insts.OpCSRRC:
		return inst.Rs1 != 0
	case insts.OpCSRRSI, insts.OpCSRRCI:
		return inst.Imm != 0
	}
	return false
}
