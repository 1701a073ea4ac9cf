package insts

// Major opcode values (bits [6:0] of a 32-bit encoding).
const (
	opcLoad     = 0x03
	opcLoadFp   = 0x07
	opcMiscMem  = 0x0F
	opcOpImm    = 0x13
	opcAuipc    = 0x17
	opcOpImm32  = 0x1B
	opcStore    = 0x23
	opcStoreFp  = 0x27
	opcAmo      = 0x2F
	opcOp       = 0x33
	opcLui      = 0x37
	opcOp32     = 0x3B
	opcFmadd    = 0x43
	opcFmsub    = 0x47
	opcFnmsub   = 0x4B
	opcFnmadd   = 0x4F
	opcOpFp     = 0x53
	opcVector   = 0x57
	opcBranch   = 0x63
	opcJalr     = 0x67
	opcJal      = 0x6F
	opcSystem   = 0x73
)

// Decoder decodes RISC-V machine code into instructions.
type Decoder struct {
	// rv64 enables the RV64-only encodings (LD/SD, *W ops, LR.D...).
	rv64 bool
}

// NewDecoder creates a decoder for the given XLEN.
func NewDecoder(rv64 bool) *Decoder {
	return &Decoder{rv64: rv64}
}

// IsCompressed reports whether the low half-word begins a 16-bit
// encoding. Bits [1:0] == 11 marks a 32-bit instruction.
func IsCompressed(low uint16) bool {
	return low&0x3 != 0x3
}

// Decode decodes either a 16-bit or a 32-bit encoding. For compressed
// encodings only the low 16 bits of word are consulted.
func (d *Decoder) Decode(word uint32) *Instruction {
	if IsCompressed(uint16(word)) {
		return d.DecodeCompressed(uint16(word))
	}
	return d.Decode32(word)
}

func rd(w uint32) uint8  { return uint8((w >> 7) & 0x1F) }
func rs1(w uint32) uint8 { return uint8((w >> 15) & 0x1F) }
func rs2(w uint32) uint8 { return uint8((w >> 20) & 0x1F) }
func rs3(w uint32) uint8 { return uint8((w >> 27) & 0x1F) }
func f3(w uint32) uint8  { return uint8((w >> 12) & 0x7) }
func f7(w uint32) uint8  { return uint8(w >> 25) }

func immI(w uint32) int64 { return int64(int32(w)) >> 20 }

func immS(w uint32) int64 {
	return int64(int32(w))>>25<<5 | int64((w>>7)&0x1F)
}

func immB(w uint32) int64 {
	imm := int64(int32(w)>>31) << 12
	imm |= int64((w>>7)&0x1) << 11
	imm |= int64((w>>25)&0x3F) << 5
	imm |= int64((w>>8)&0xF) << 1
	return imm
}

func immU(w uint32) int64 { return int64(int32(w & 0xFFFFF000)) }

func immJ(w uint32) int64 {
	imm := int64(int32(w)>>31) << 20
	imm |= int64((w>>12)&0xFF) << 12
	imm |= int64((w>>20)&0x1) << 11
	imm |= int64((w>>21)&0x3FF) << 1
	return imm
}

// Decode32 decodes a full 32-bit encoding.
func (d *Decoder) Decode32(w uint32) *Instruction {
	inst := &Instruction{
		Op:     OpUnknown,
		Raw:    w,
		Rd:     rd(w),
		Rs1:    rs1(w),
		Rs2:    rs2(w),
		Funct3: f3(w),
	}

	switch w & 0x7F {
	case opcLui:
		inst.Op, inst.Imm = OpLUI, immU(w)
	case opcAuipc:
		inst.Op, inst.Imm = OpAUIPC, immU(w)
		// lpad: Zicfilp reuses AUIPC with rd=x0.
		if inst.Rd == 0 {
			inst.Op = OpLPAD
		}
	case opcJal:
		inst.Op, inst.Imm = OpJAL, immJ(w)
	case opcJalr:
		inst.Op, inst.Imm = OpJALR, immI(w)
	case opcBranch:
		d.decodeBranch(w, inst)
	case opcLoad:
		d.decodeLoad(w, inst)
	case opcStore:
		d.decodeStore(w, inst)
	case opcOpImm:
		d.decodeOpImm(w, inst)
	case opcOpImm32:
		d.decodeOpImm32(w, inst)
	case opcOp:
		d.decodeOp(w, inst)
	case opcOp32:
		d.decodeOp32(w, inst)
	case opcMiscMem:
		d.decodeMiscMem(w, inst)
	case opcSystem:
		d.decodeSystem(w, inst)
	case opcAmo:
		d.decodeAmo(w, inst)
	case opcLoadFp:
		d.decodeLoadFp(w, inst)
	case opcStoreFp:
		d.decodeStoreFp(w, inst)
	case opcOpFp:
		d.decodeOpFp(w, inst)
	case opcFmadd, opcFmsub, opcFnmsub, opcFnmadd:
		d.decodeFma(w, inst)
	case opcVector:
		d.decodeVector(w, inst)
	}

	return inst
}

func (d *Decoder) decodeBranch(w uint32, inst *Instruction) {
	inst.Imm = immB(w)
	switch f3(w) {
	case 0:
		inst.Op = OpBEQ
	case 1:
		inst.Op = OpBNE
	case 4:
		inst.Op = OpBLT
	case 5:
		inst.Op = OpBGE
	case 6:
		inst.Op = OpBLTU
	case 7:
		inst.Op = OpBGEU
	}
}

func (d *Decoder) decodeLoad(w uint32, inst *Instruction) {
	inst.Imm = immI(w)
	switch f3(w) {
	case 0:
		inst.Op = OpLB
	case 1:
		inst.Op = OpLH
	case 2:
		inst.Op = OpLW
	case 3:
		if d.rv64 {
			inst.Op = OpLD
		}
	case 4:
		inst.Op = OpLBU
	case 5:
		inst.Op = OpLHU
	case 6:
		if d.rv64 {
			inst.Op = OpLWU
		}
	}
}

func (d *Decoder) decodeStore(w uint32, inst *Instruction) {
	inst.Imm = immS(w)
	switch f3(w) {
	case 0:
		inst.Op = OpSB
	case 1:
		inst.Op = OpSH
	case 2:
		inst.Op = OpSW
	case 3:
		if d.rv64 {
			inst.Op = OpSD
		}
	}
}

func (d *Decoder) decodeOpImm(w uint32, inst *Instruction) {
	inst.Imm = immI(w)
	shamtMask := uint32(0x1F)
	if d.rv64 {
		shamtMask = 0x3F
	}
	switch f3(w) {
	case 0:
		inst.Op = OpADDI
	case 1:
		top := w >> 20 &^ shamtMask
		switch {
		case top == 0:
			inst.Op, inst.Imm = OpSLLI, int64((w>>20)&shamtMask)
		case w>>20 == 0x600:
			inst.Op = OpCLZ
		case w>>20 == 0x601:
			inst.Op = OpCTZ
		case w>>20 == 0x602:
			inst.Op = OpCPOP
		case w>>20 == 0x604:
			inst.Op = OpSEXTB
		case w>>20 == 0x605:
			inst.Op = OpSEXTH
		case d.rv64 && w>>26 == 0x02:
			inst.Op, inst.Imm = OpSLLIUW, int64((w>>20)&0x3F)
		}
	case 2:
		inst.Op = OpSLTI
	case 3:
		inst.Op = OpSLTIU
	case 4:
		inst.Op = OpXORI
	case 5:
		top := w >> 20 &^ shamtMask
		switch {
		case top == 0:
			inst.Op, inst.Imm = OpSRLI, int64((w>>20)&shamtMask)
		case top == 0x400:
			inst.Op, inst.Imm = OpSRAI, int64((w>>20)&shamtMask)
		case top == 0x600:
			inst.Op, inst.Imm = OpRORI, int64((w>>20)&shamtMask)
		case w>>20 == 0x287:
			inst.Op = OpORCB
		case !d.rv64 && w>>20 == 0x698:
			inst.Op = OpREV8
		case d.rv64 && w>>20 == 0x6B8:
			inst.Op = OpREV8
		}
	case 6:
		inst.Op = OpORI
	case 7:
		inst.Op = OpANDI
	}
}

func (d *Decoder) decodeOpImm32(w uint32, inst *Instruction) {
	if !d.rv64 {
		return
	}
	inst.Imm = immI(w)
	switch f3(w) {
	case 0:
		inst.Op = OpADDIW
	case 1:
		switch {
		case w>>25 == 0:
			inst.Op, inst.Imm = OpSLLIW, int64((w>>20)&0x1F)
		case w>>20 == 0x600:
			inst.Op = OpCLZW
		case w>>20 == 0x601:
			inst.Op = OpCTZW
		case w>>20 == 0x602:
			inst.Op = OpCPOPW
		}
	case 5:
		switch w >> 25 {
		case 0:
			inst.Op, inst.Imm = OpSRLIW, int64((w>>20)&0x1F)
		case 0x20:
			inst.Op, inst.Imm = OpSRAIW, int64((w>>20)&0x1F)
		case 0x30:
			inst.Op, inst.Imm = OpRORIW, int64((w>>20)&0x1F)
		}
	}
}

func (d *Decoder) decodeOp(w uint32, inst *Instruction) {
	switch f7(w) {
	case 0x00:
		switch f3(w) {
		case 0:
			inst.Op = OpADD
		case 1:
			inst.Op = OpSLL
		case 2:
			inst.Op = OpSLT
		case 3:
			inst.Op = OpSLTU
		case 4:
			inst.Op = OpXOR
		case 5:
			inst.Op = OpSRL
		case 6:
			inst.Op = OpOR
		case 7:
			inst.Op = OpAND
		}
	case 0x20:
		switch f3(w) {
		case 0:
			inst.Op = OpSUB
		case 4:
			inst.Op = OpXNOR
		case 5:
			inst.Op = OpSRA
		case 6:
			inst.Op = OpORN
		case 7:
			inst.Op = OpANDN
		}
	case 0x01:
		switch f3(w) {
		case 0:
			inst.Op = OpMUL
		case 1:
			inst.Op = OpMULH
		case 2:
			inst.Op = OpMULHSU
		case 3:
			inst.Op = OpMULHU
		case 4:
			inst.Op = OpDIV
		case 5:
			inst.Op = OpDIVU
		case 6:
			inst.Op = OpREM
		case 7:
			inst.Op = OpREMU
		}
	case 0x10:
		switch f3(w) {
		case 2:
			inst.Op = OpSH1ADD
		case 4:
			inst.Op = OpSH2ADD
		case 6:
			inst.Op = OpSH3ADD
		}
	case 0x30:
		switch f3(w) {
		case 1:
			inst.Op = OpROL
		case 5:
			inst.Op = OpROR
		}
	case 0x05:
		switch f3(w) {
		case 4:
			inst.Op = OpMIN
		case 5:
			inst.Op = OpMINU
		case 6:
			inst.Op = OpMAX
		case 7:
			inst.Op = OpMAXU
		}
	case 0x04:
		if f3(w) == 4 && rs2(w) == 0 && !d.rv64 {
			inst.Op = OpZEXTH
		}
	case 0x07:
		switch f3(w) {
		case 5:
			inst.Op = OpCZEROEQZ
		case 7:
			inst.Op = OpCZERONEZ
		}
	}
}

func (d *Decoder) decodeOp32(w uint32, inst *Instruction) {
	if !d.rv64 {
		return
	}
	switch {
	case f7(w) == 0x00 && f3(w) == 0:
		inst.Op = OpADDW
	case f7(w) == 0x20 && f3(w) == 0:
		inst.Op = OpSUBW
	case f7(w) == 0x00 && f3(w) == 1:
		inst.Op = OpSLLW
	case f7(w) == 0x00 && f3(w) == 5:
		inst.Op = OpSRLW
	case f7(w) == 0x20 && f3(w) == 5:
		inst.Op = OpSRAW
	case f7(w) == 0x01 && f3(w) == 0:
		inst.Op = OpMULW
	case f7(w) == 0x01 && f3(w) == 4:
		inst.Op = OpDIVW
	case f7(w) == 0x01 && f3(w) == 5:
		inst.Op = OpDIVUW
	case f7(w) == 0x01 && f3(w) == 6:
		inst.Op = OpREMW
	case f7(w) == 0x01 && f3(w) == 7:
		inst.Op = OpREMUW
	case f7(w) == 0x04 && f3(w) == 0:
		inst.Op = OpADDUW
	case f7(w) == 0x04 && f3(w) == 4 && rs2(w) == 0:
		// zext.h lives in OP-32 on RV64.
		inst.Op = OpZEXTH
	case f7(w) == 0x10 && f3(w) == 2:
		inst.Op = OpSH1ADDUW
	case f7(w) == 0x10 && f3(w) == 4:
		inst.Op = OpSH2ADDUW
	case f7(w) == 0x10 && f3(w) == 6:
		inst.Op = OpSH3ADDUW
	case f7(w) == 0x30 && f3(w) == 1:
		inst.Op = OpROLW
	case f7(w) == 0x30 && f3(w) == 5:
		inst.Op = OpRORW
	}
}

func (d *Decoder) decodeMiscMem(w uint32, inst *Instruction) {
	switch f3(w) {
	case 0:
		inst.Op, inst.Imm = OpFENCE, immI(w)
	case 1:
		inst.Op = OpFENCEI
	case 2:
		// CBO: the cbop selector rides in the rs2/imm field.
		switch w >> 20 {
		case 0:
			inst.Op = OpCBOINVAL
		case 1:
			inst.Op = OpCBOCLEAN
		case 2:
			inst.Op = OpCBOFLUSH
		case 4:
			inst.Op = OpCBOZERO
		}
	case 6:
		// ORI-based prefetch hints (prefetch.i/r/w) use MISC-MEM f3=6
		// with rd=x0 and imm[4:0] selecting the flavor.
		switch (w >> 20) & 0x1F {
		case 0:
			inst.Op = OpPREFETCHI
		case 1:
			inst.Op = OpPREFETCHR
		case 3:
			inst.Op = OpPREFETCHW
		}
		inst.Imm = immS(w) &^ 0x1F
	}
}

func (d *Decoder) decodeSystem(w uint32, inst *Instruction) {
	switch f3(w) {
	case 0:
		d.decodePriv(w, inst)
	case 1:
		inst.Op, inst.Csr = OpCSRRW, uint16(w>>20)
	case 2:
		inst.Op, inst.Csr = OpCSRRS, uint16(w>>20)
	case 3:
		inst.Op, inst.Csr = OpCSRRC, uint16(w>>20)
	case 4:
		d.decodeHlvHsv(w, inst)
	case 5:
		inst.Op, inst.Csr, inst.Imm = OpCSRRWI, uint16(w>>20), int64(rs1(w))
	case 6:
		inst.Op, inst.Csr, inst.Imm = OpCSRRSI, uint16(w>>20), int64(rs1(w))
	case 7:
		inst.Op, inst.Csr, inst.Imm = OpCSRRCI, uint16(w>>20), int64(rs1(w))
	}
}

func (d *Decoder) decodePriv(w uint32, inst *Instruction) {
	switch w >> 25 {
	case 0x09:
		inst.Op = OpSFENCEVMA
		return
	case 0x0B:
		inst.Op = OpSINVALVMA
		return
	case 0x11:
		inst.Op = OpHFENCEVVMA
		return
	case 0x31:
		inst.Op = OpHFENCEGVMA
		return
	case 0x13:
		inst.Op = OpHINVALVVMA
		return
	case 0x33:
		inst.Op = OpHINVALGVMA
		return
	}
	switch w >> 20 {
	case 0x000:
		if rs1(w) == 0 && rd(w) == 0 {
			inst.Op = OpECALL
		}
	case 0x001:
		if rs1(w) == 0 && rd(w) == 0 {
			inst.Op = OpEBREAK
		}
	case 0x002:
		inst.Op = OpSRET // uret slot reused; uret unimplemented
	case 0x102:
		inst.Op = OpSRET
	case 0x302:
		inst.Op = OpMRET
	case 0x702:
		inst.Op = OpMNRET
	case 0x7B2:
		inst.Op = OpDRET
	case 0x105:
		inst.Op = OpWFI
	case 0x00D:
		inst.Op = OpWRSNTO
	case 0x01D:
		inst.Op = OpWRSSTO
	case 0x180:
		if rs1(w) == 0 && rd(w) == 0 {
			inst.Op = OpSFENCEWINVAL
		}
	case 0x181:
		if rs1(w) == 0 && rd(w) == 0 {
			inst.Op = OpSFENCEINVALIR
		}
	}
}

func (d *Decoder) decodeHlvHsv(w uint32, inst *Instruction) {
	// Zimop may-be-operations share SYSTEM funct3=100 with the
	// hypervisor loads/stores; bit 31 distinguishes them.
	if w>>31 == 1 {
		if (w>>25)&1 == 1 {
			inst.Op = OpMOPRR
		} else {
			inst.Op = OpMOPR
		}
		return
	}
	switch w >> 25 {
	case 0x30:
		switch rs2(w) {
		case 0:
			inst.Op = OpHLVB
		case 1:
			inst.Op = OpHLVBU
		}
	case 0x32:
		switch rs2(w) {
		case 0:
			inst.Op = OpHLVH
		case 1:
			inst.Op = OpHLVHU
		case 3:
			inst.Op = OpHLVXHU
		}
	case 0x34:
		switch rs2(w) {
		case 0:
			inst.Op = OpHLVW
		case 1:
			inst.Op = OpHLVWU
		case 3:
			inst.Op = OpHLVXWU
		}
	case 0x36:
		if rs2(w) == 0 {
			inst.Op = OpHLVD
		}
	case 0x31:
		inst.Op = OpHSVB
	case 0x33:
		inst.Op = OpHSVH
	case 0x35:
		inst.Op = OpHSVW
	case 0x37:
		inst.Op = OpHSVD
	}
}

func (d *Decoder) decodeAmo(w uint32, inst *Instruction) {
	inst.AqRl = uint8((w >> 25) & 0x3)
	funct5 := w >> 27
	width := f3(w)
	if width != 2 && width != 3 {
		return
	}
	if width == 3 && !d.rv64 {
		return
	}
	wide := width == 3

	pick := func(w32, w64 Op) {
		if wide {
			inst.Op = w64
		} else {
			inst.Op = w32
		}
	}

	switch funct5 {
	case 0x02:
		if rs2(w) == 0 {
			pick(OpLRW, OpLRD)
		}
	case 0x03:
		pick(OpSCW, OpSCD)
	case 0x01:
		pick(OpAMOSWAPW, OpAMOSWAPD)
	case 0x00:
		pick(OpAMOADDW, OpAMOADDD)
	case 0x04:
		pick(OpAMOXORW, OpAMOXORD)
	case 0x0C:
		pick(OpAMOANDW, OpAMOANDD)
	case 0x08:
		pick(OpAMOORW, OpAMOORD)
	case 0x10:
		pick(OpAMOMINW, OpAMOMIND)
	case 0x14:
		pick(OpAMOMAXW, OpAMOMAXD)
	case 0x18:
		pick(OpAMOMINUW, OpAMOMINUD)
	case 0x1C:
		pick(OpAMOMAXUW, OpAMOMAXUD)
	case 0x05:
		pick(OpAMOCASW, OpAMOCASD)
	}
}

func (d *Decoder) decodeLoadFp(w uint32, inst *Instruction) {
	inst.Imm = immI(w)
	switch f3(w) {
	case 2:
		inst.Op = OpFLW
	case 3:
		inst.Op = OpFLD
	case 0, 5, 6, 7:
		// Vector unit-stride load: width encodes SEW.
		if (w>>26)&0x7 == 0 && rs2(w) == 0 {
			inst.Op = OpVLE
			inst.VecWidth = vecWidthBytes(f3(w))
			inst.VecMask = (w>>25)&1 == 0
		}
	}
}

func (d *Decoder) decodeStoreFp(w uint32, inst *Instruction) {
	inst.Imm = immS(w)
	switch f3(w) {
	case 2:
		inst.Op = OpFSW
	case 3:
		inst.Op = OpFSD
	case 0, 5, 6, 7:
		if (w>>26)&0x7 == 0 && rs2(w) == 0 {
			inst.Op = OpVSE
			inst.Imm = 0
			inst.VecWidth = vecWidthBytes(f3(w))
			inst.VecMask = (w>>25)&1 == 0
			inst.Rs2 = rd(w) // vs3 rides in the rd field
		}
	}
}

func vecWidthBytes(width uint8) uint8 {
	switch width {
	case 0:
		return 1
	case 5:
		return 2
	case 6:
		return 4
	default:
		return 8
	}
}

func (d *Decoder) decodeFma(w uint32, inst *Instruction) {
	inst.Rs3 = rs3(w)
	inst.Rm = f3(w)
	double := (w>>25)&0x3 == 1
	switch w & 0x7F {
	case opcFmadd:
		if double {
			inst.Op = OpFMADDD
		} else {
			inst.Op = OpFMADDS
		}
	case opcFmsub:
		if double {
			inst.Op = OpFMSUBD
		} else {
			inst.Op = OpFMSUBS
		}
	case opcFnmsub:
		if double {
			inst.Op = OpFNMSUBD
		} else {
			inst.Op = OpFNMSUBS
		}
	case opcFnmadd:
		if double {
			inst.Op = OpFNMADDD
		} else {
			inst.Op = OpFNMADDS
		}
	}
}

func (d *Decoder) decodeOpFp(w uint32, inst *Instruction) {
	inst.Rm = f3(w)
	switch f7(w) {
	case 0x00:
		inst.Op = OpFADDS
	case 0x01:
		inst.Op = OpFADDD
	case 0x04:
		inst.Op = OpFSUBS
	case 0x05:
		inst.Op = OpFSUBD
	case 0x08:
		inst.Op = OpFMULS
	case 0x09:
		inst.Op = OpFMULD
	case 0x0C:
		inst.Op = OpFDIVS
	case 0x0D:
		inst.Op = OpFDIVD
	case 0x2C:
		inst.Op = OpFSQRTS
	case 0x2D:
		inst.Op = OpFSQRTD
	case 0x10:
		switch f3(w) {
		case 0:
			inst.Op = OpFSGNJS
		case 1:
			inst.Op = OpFSGNJNS
		case 2:
			inst.Op = OpFSGNJXS
		}
	case 0x11:
		switch f3(w) {
		case 0:
			inst.Op = OpFSGNJD
		case 1:
			inst.Op = OpFSGNJND
		case 2:
			inst.Op = OpFSGNJXD
		}
	case 0x14:
		switch f3(w) {
		case 0:
			inst.Op = OpFMINS
		case 1:
			inst.Op = OpFMAXS
		}
	case 0x15:
		switch f3(w) {
		case 0:
			inst.Op = OpFMIND
		case 1:
			inst.Op = OpFMAXD
		}
	case 0x50:
		switch f3(w) {
		case 0:
			inst.Op = OpFLES
		case 1:
			inst.Op = OpFLTS
		case 2:
			inst.Op = OpFEQS
		}
	case 0x51:
		switch f3(w) {
		case 0:
			inst.Op = OpFLED
		case 1:
			inst.Op = OpFLTD
		case 2:
			inst.Op = OpFEQD
		}
	case 0x60:
		switch rs2(w) {
		case 0:
			inst.Op = OpFCVTWS
		case 1:
			inst.Op = OpFCVTWUS
		case 2:
			inst.Op = OpFCVTLS
		case 3:
			inst.Op = OpFCVTLUS
		}
	case 0x61:
		switch rs2(w) {
		case 0:
			inst.Op = OpFCVTWD
		case 1:
			inst.Op = OpFCVTWUD
		case 2:
			inst.Op = OpFCVTLD
		case 3:
			inst.Op = OpFCVTLUD
		}
	case 0x68:
		switch rs2(w) {
		case 0:
			inst.Op = OpFCVTSW
		case 1:
			inst.Op = OpFCVTSWU
		case 2:
			inst.Op = OpFCVTSL
		case 3:
			inst.Op = OpFCVTSLU
		}
	case 0x69:
		switch rs2(w) {
		case 0:
			inst.Op = OpFCVTDW
		case 1:
			inst.Op = OpFCVTDWU
		case 2:
			inst.Op = OpFCVTDL
		case 3:
			inst.Op = OpFCVTDLU
		}
	case 0x20:
		if rs2(w) == 1 {
			inst.Op = OpFCVTSD
		}
	case 0x21:
		if rs2(w) == 0 {
			inst.Op = OpFCVTDS
		}
	case 0x70:
		switch f3(w) {
		case 0:
			inst.Op = OpFMVXW
		case 1:
			inst.Op = OpFCLASSS
		}
	case 0x71:
		switch f3(w) {
		case 0:
			inst.Op = OpFMVXD
		case 1:
			inst.Op = OpFCLASSD
		}
	case 0x78:
		inst.Op = OpFMVWX
	case 0x79:
		inst.Op = OpFMVDX
	}
}

func (d *Decoder) decodeVector(w uint32, inst *Instruction) {
	switch f3(w) {
	case 7:
		switch {
		case w>>31 == 0:
			inst.Op, inst.Imm = OpVSETVLI, int64((w>>20)&0x7FF)
		case w>>30 == 0x3:
			inst.Op = OpVSETIVLI
			inst.Imm = int64((w >> 20) & 0x3FF)
			// zimm5 AVL rides in rs1.
		case w>>25 == 0x40:
			inst.Op = OpVSETVL
		}
	case 0:
		// OPIVV
		inst.VecMask = (w>>25)&1 == 0
		switch w >> 26 {
		case 0x00:
			inst.Op = OpVADDVV
		case 0x02:
			inst.Op = OpVSUBVV
		case 0x09:
			inst.Op = OpVANDVV
		case 0x0A:
			inst.Op = OpVORVV
		case 0x0B:
			inst.Op = OpVXORVV
		case 0x17:
			inst.Op = OpVMVVV
		}
	case 4:
		// OPIVX
		inst.VecMask = (w>>25)&1 == 0
		switch w >> 26 {
		case 0x00:
			inst.Op = OpVADDVX
		case 0x02:
			inst.Op = OpVSUBVX
		case 0x09:
			inst.Op = OpVANDVX
		case 0x0A:
			inst.Op = OpVORVX
		case 0x0B:
			inst.Op = OpVXORVX
		case 0x17:
			inst.Op = OpVMVVX
		}
	case 3:
		// OPIVI
		inst.VecMask = (w>>25)&1 == 0
		if w>>26 == 0x17 {
			inst.Op = OpVMVVI
			inst.Imm = int64(int32(w<<12) >> 27)
		}
	}
}
