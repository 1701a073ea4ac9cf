// Package insts provides RISC-V instruction definitions and decoding.
//
// This package implements decoding of RV32/RV64 machine code, including
// the compressed (C) encodings, into structured instruction
// representations, plus the direct-mapped decode cache consulted by the
// hart on every fetch.
package insts

// Op identifies a decoded RISC-V operation.
type Op uint16

// Opcodes.
const (
	OpUnknown Op = iota

	// Base integer (I).
	OpLUI
	OpAUIPC
	OpJAL
	OpJALR
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpLB
	OpLH
	OpLW
	OpLBU
	OpLHU
	OpLWU
	OpLD
	OpSB
	OpSH
	OpSW
	OpSD
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND
	OpADDIW
	OpSLLIW
	OpSRLIW
	OpSRAIW
	OpADDW
	OpSUBW
	OpSLLW
	OpSRLW
	OpSRAW
	OpFENCE
	OpFENCEI
	OpECALL
	OpEBREAK

	// M extension.
	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU
	OpMULW
	OpDIVW
	OpDIVUW
	OpREMW
	OpREMUW

	// A extension, LR/SC first, then AMOs (incl. Zacas).
	OpLRW
	OpSCW
	OpLRD
	OpSCD
	OpAMOSWAPW
	OpAMOADDW
	OpAMOXORW
	OpAMOANDW
	OpAMOORW
	OpAMOMINW
	OpAMOMAXW
	OpAMOMINUW
	OpAMOMAXUW
	OpAMOSWAPD
	OpAMOADDD
	OpAMOXORD
	OpAMOANDD
	OpAMOORD
	OpAMOMIND
	OpAMOMAXD
	OpAMOMINUD
	OpAMOMAXUD
	OpAMOCASW
	OpAMOCASD

	// Zicsr.
	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpCSRRWI
	OpCSRRSI
	OpCSRRCI

	// Privileged.
	OpMRET
	OpSRET
	OpMNRET
	OpDRET
	OpWFI
	OpSFENCEVMA
	OpSINVALVMA
	OpSFENCEWINVAL
	OpSFENCEINVALIR
	OpHFENCEVVMA
	OpHFENCEGVMA
	OpHINVALVVMA
	OpHINVALGVMA

	// Hypervisor virtual-machine load/store.
	OpHLVB
	OpHLVBU
	OpHLVH
	OpHLVHU
	OpHLVW
	OpHLVWU
	OpHLVD
	OpHLVXHU
	OpHLVXWU
	OpHSVB
	OpHSVH
	OpHSVW
	OpHSVD

	// Cache-block operations (Zicbom/Zicboz/Zicbop).
	OpCBOCLEAN
	OpCBOFLUSH
	OpCBOINVAL
	OpCBOZERO
	OpPREFETCHI
	OpPREFETCHR
	OpPREFETCHW

	// Zawrs.
	OpWRSNTO
	OpWRSSTO

	// Zicond.
	OpCZEROEQZ
	OpCZERONEZ

	// Zba/Zbb subset.
	OpSH1ADD
	OpSH2ADD
	OpSH3ADD
	OpADDUW
	OpSH1ADDUW
	OpSH2ADDUW
	OpSH3ADDUW
	OpSLLIUW
	OpANDN
	OpORN
	OpXNOR
	OpCLZ
	OpCTZ
	OpCPOP
	OpCLZW
	OpCTZW
	OpCPOPW
	OpMIN
	OpMINU
	OpMAX
	OpMAXU
	OpSEXTB
	OpSEXTH
	OpZEXTH
	OpROL
	OpROR
	OpRORI
	OpROLW
	OpRORW
	OpRORIW
	OpORCB
	OpREV8

	// Zimop/Zcmop may-be-operations.
	OpMOPR
	OpMOPRR
	OpCMOP

	// Zicfilp landing pad.
	OpLPAD

	// F extension.
	OpFLW
	OpFSW
	OpFADDS
	OpFSUBS
	OpFMULS
	OpFDIVS
	OpFSQRTS
	OpFSGNJS
	OpFSGNJNS
	OpFSGNJXS
	OpFMINS
	OpFMAXS
	OpFCVTWS
	OpFCVTWUS
	OpFCVTLS
	OpFCVTLUS
	OpFCVTSW
	OpFCVTSWU
	OpFCVTSL
	OpFCVTSLU
	OpFMVXW
	OpFMVWX
	OpFEQS
	OpFLTS
	OpFLES
	OpFCLASSS
	OpFMADDS
	OpFMSUBS
	OpFNMSUBS
	OpFNMADDS

	// D extension.
	OpFLD
	OpFSD
	OpFADDD
	OpFSUBD
	OpFMULD
	OpFDIVD
	OpFSQRTD
	OpFSGNJD
	OpFSGNJND
	OpFSGNJXD
	OpFMIND
	OpFMAXD
	OpFCVTWD
	OpFCVTWUD
	OpFCVTLD
	OpFCVTLUD
	OpFCVTDW
	OpFCVTDWU
	OpFCVTDL
	OpFCVTDLU
	OpFCVTSD
	OpFCVTDS
	OpFMVXD
	OpFMVDX
	OpFEQD
	OpFLTD
	OpFLED
	OpFCLASSD
	OpFMADDD
	OpFMSUBD
	OpFNMSUBD
	OpFNMADDD

	// Vector subset: configuration, unit-stride memory, simple ALU.
	OpVSETVLI
	OpVSETIVLI
	OpVSETVL
	OpVLE
	OpVSE
	OpVADDVV
	OpVADDVX
	OpVSUBVV
	OpVSUBVX
	OpVANDVV
	OpVANDVX
	OpVORVV
	OpVORVX
	OpVXORVV
	OpVXORVX
	OpVMVVV
	OpVMVVX
	OpVMVVI

	NumOps
)

// Class is the semantic category of an instruction, used by the
// performance counters and the trace streams.
type Class uint8

// Instruction classes.
const (
	ClassAlu Class = iota
	ClassBranch
	ClassJump
	ClassLoad
	ClassStore
	ClassAtomic
	ClassSystem
	ClassCsr
	ClassFp
	ClassVector
	ClassCbo
	ClassFence
)

// Instruction is a decoded RISC-V instruction.
//
// Compressed instructions are expanded at decode time: Raw holds the
// 32-bit equivalent encoding while Compressed records the 2-byte size
// so the hart advances the PC correctly.
type Instruction struct {
	Op         Op
	Raw        uint32
	Compressed bool

	Rd  uint8
	Rs1 uint8
	Rs2 uint8
	Rs3 uint8

	// Imm is the sign-extended immediate. CSR instructions keep the
	// CSR number in Csr; the immediate forms put the zimm in Imm.
	Imm int64
	Csr uint16

	// Funct3 is kept for memory-width dispatch and tinst encoding.
	Funct3 uint8

	// Rm is the FP rounding-mode field.
	Rm uint8

	// AqRl carries the aq/rl bits of atomic encodings.
	AqRl uint8

	// VecWidth is the element width in bytes for VLE/VSE.
	VecWidth uint8
	// VecMask is true when the vector op is executed under v0.t.
	VecMask bool
}

// Size returns the encoded size in bytes.
func (i *Instruction) Size() uint64 {
	if i.Compressed {
		return 2
	}
	return 4
}

// Class returns the semantic class of the instruction.
func (i *Instruction) Class() Class {
	switch {
	case i.Op >= OpBEQ && i.Op <= OpBGEU:
		return ClassBranch
	case i.Op == OpJAL || i.Op == OpJALR:
		return ClassJump
	case i.Op >= OpLB && i.Op <= OpLD:
		return ClassLoad
	case i.Op >= OpSB && i.Op <= OpSD:
		return ClassStore
	case i.Op >= OpLRW && i.Op <= OpAMOCASD:
		return ClassAtomic
	case i.Op >= OpCSRRW && i.Op <= OpCSRRCI:
		return ClassCsr
	case i.Op >= OpMRET && i.Op <= OpHSVD:
		return ClassSystem
	case i.Op >= OpCBOCLEAN && i.Op <= OpPREFETCHW:
		return ClassCbo
	case i.Op == OpFENCE || i.Op == OpFENCEI:
		return ClassFence
	case i.Op >= OpFLW && i.Op <= OpFNMADDD:
		return ClassFp
	case i.Op >= OpVSETVLI && i.Op <= OpVMVVI:
		return ClassVector
	default:
		return ClassAlu
	}
}

// IsLoad reports whether the instruction architecturally reads data
// memory (including LR and hypervisor virtual-machine loads).
func (i *Instruction) IsLoad() bool {
	switch i.Op {
	case OpLB, OpLH, OpLW, OpLBU, OpLHU, OpLWU, OpLD,
		OpLRW, OpLRD, OpFLW, OpFLD, OpVLE,
		OpHLVB, OpHLVBU, OpHLVH, OpHLVHU, OpHLVW, OpHLVWU, OpHLVD,
		OpHLVXHU, OpHLVXWU:
		return true
	}
	return false
}

// IsStore reports whether the instruction architecturally writes data
// memory (including SC, AMOs, cbo.zero and vector stores).
func (i *Instruction) IsStore() bool {
	switch i.Op {
	case OpSB, OpSH, OpSW, OpSD, OpSCW, OpSCD,
		OpFSW, OpFSD, OpVSE, OpCBOZERO,
		OpHSVB, OpHSVH, OpHSVW, OpHSVD:
		return true
	}
	return i.IsAmo()
}

// IsAmo reports whether the instruction is a read-modify-write atomic.
func (i *Instruction) IsAmo() bool {
	return i.Op >= OpAMOSWAPW && i.Op <= OpAMOCASD
}

// IsBranch reports whether the instruction is a conditional branch.
func (i *Instruction) IsBranch() bool {
	return i.Op >= OpBEQ && i.Op <= OpBGEU
}

// IsFpDest reports whether the destination register is an FP register.
func (i *Instruction) IsFpDest() bool {
	switch i.Op {
	case OpFLW, OpFLD, OpFADDS, OpFSUBS, OpFMULS, OpFDIVS, OpFSQRTS,
		OpFSGNJS, OpFSGNJNS, OpFSGNJXS, OpFMINS, OpFMAXS,
		OpFCVTSW, OpFCVTSWU, OpFCVTSL, OpFCVTSLU, OpFMVWX,
		OpFMADDS, OpFMSUBS, OpFNMSUBS, OpFNMADDS,
		OpFADDD, OpFSUBD, OpFMULD, OpFDIVD, OpFSQRTD,
		OpFSGNJD, OpFSGNJND, OpFSGNJXD, OpFMIND, OpFMAXD,
		OpFCVTDW, OpFCVTDWU, OpFCVTDL, OpFCVTDLU, OpFMVDX,
		OpFCVTSD, OpFCVTDS,
		OpFMADDD, OpFMSUBD, OpFNMSUBD, OpFNMADDD:
		return true
	}
	return false
}

// IsVecDest reports whether the destination register is a vector
// register.
func (i *Instruction) IsVecDest() bool {
	switch i.Op {
	case OpVLE, OpVADDVV, OpVADDVX, OpVSUBVV, OpVSUBVX,
		OpVANDVV, OpVANDVX, OpVORVV, OpVORVX, OpVXORVV, OpVXORVX,
		OpVMVVV, OpVMVVX, OpVMVVI:
		return true
	}
	return false
}

// HasIntDest reports whether the instruction writes an integer
// destination register (x-register Rd). Branches, stores, fences and
// FP/vector-destination ops do not.
func (i *Instruction) HasIntDest() bool {
	if i.IsFpDest() || i.IsVecDest() {
		return false
	}
	switch i.Class() {
	case ClassBranch, ClassStore, ClassFence, ClassCbo:
		return false
	}
	switch i.Op {
	case OpECALL, OpEBREAK, OpMRET, OpSRET, OpMNRET, OpDRET, OpWFI,
		OpSFENCEVMA, OpSINVALVMA, OpSFENCEWINVAL, OpSFENCEINVALIR,
		OpHFENCEVVMA, OpHFENCEGVMA, OpHINVALVVMA, OpHINVALGVMA,
		OpHSVB, OpHSVH, OpHSVW, OpHSVD,
		OpFSW, OpFSD, OpVSE, OpVSETVLI, OpVSETIVLI, OpVSETVL,
		OpWRSNTO, OpWRSSTO, OpCMOP, OpLPAD:
		// vset* does write Rd; carve it back in below.
		switch i.Op {
		case OpVSETVLI, OpVSETIVLI, OpVSETVL:
			return true
		}
		return false
	}
	return true
}
