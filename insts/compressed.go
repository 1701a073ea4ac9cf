package insts

// DecodeCompressed expands a 16-bit encoding into a decoded
// instruction. The expansion targets the same Instruction shape the
// 32-bit decoder produces, with Compressed set so the hart advances
// the PC by two bytes.
func (d *Decoder) DecodeCompressed(hw uint16) *Instruction {
	inst := &Instruction{Op: OpUnknown, Raw: uint32(hw), Compressed: true}

	if hw == 0 {
		// The all-zero encoding is defined illegal.
		return inst
	}

	switch hw & 0x3 {
	case 0:
		d.decodeC0(hw, inst)
	case 1:
		d.decodeC1(hw, inst)
	case 2:
		d.decodeC2(hw, inst)
	}
	return inst
}

// cReg maps a 3-bit compressed register field to x8-x15.
func cReg(v uint16) uint8 { return uint8(v&0x7) + 8 }

func (d *Decoder) decodeC0(hw uint16, inst *Instruction) {
	f := hw >> 13
	switch f {
	case 0:
		// c.addi4spn
		imm := int64((hw>>7)&0x30) | int64((hw>>1)&0x3C0) |
			int64((hw>>4)&0x4) | int64((hw>>2)&0x8)
		if imm != 0 {
			inst.Op = OpADDI
			inst.Rd = cReg(hw >> 2)
			inst.Rs1 = 2
			inst.Imm = imm
		}
	case 1:
		// c.fld
		inst.Op = OpFLD
		inst.Rd = cReg(hw >> 2)
		inst.Rs1 = cReg(hw >> 7)
		inst.Imm = cImmD(hw)
		inst.Funct3 = 3
	case 2:
		// c.lw
		inst.Op = OpLW
		inst.Rd = cReg(hw >> 2)
		inst.Rs1 = cReg(hw >> 7)
		inst.Imm = cImmW(hw)
		inst.Funct3 = 2
	case 3:
		if d.rv64 {
			// c.ld
			inst.Op = OpLD
			inst.Rd = cReg(hw >> 2)
			inst.Rs1 = cReg(hw >> 7)
			inst.Imm = cImmD(hw)
			inst.Funct3 = 3
		} else {
			// c.flw
			inst.Op = OpFLW
			inst.Rd = cReg(hw >> 2)
			inst.Rs1 = cReg(hw >> 7)
			inst.Imm = cImmW(hw)
			inst.Funct3 = 2
		}
	case 5:
		// c.fsd
		inst.Op = OpFSD
		inst.Rs2 = cReg(hw >> 2)
		inst.Rs1 = cReg(hw >> 7)
		inst.Imm = cImmD(hw)
		inst.Funct3 = 3
	case 6:
		// c.sw
		inst.Op = OpSW
		inst.Rs2 = cReg(hw >> 2)
		inst.Rs1 = cReg(hw >> 7)
		inst.Imm = cImmW(hw)
		inst.Funct3 = 2
	case 7:
		if d.rv64 {
			// c.sd
			inst.Op = OpSD
			inst.Rs2 = cReg(hw >> 2)
			inst.Rs1 = cReg(hw >> 7)
			inst.Imm = cImmD(hw)
			inst.Funct3 = 3
		} else {
			// c.fsw
			inst.Op = OpFSW
			inst.Rs2 = cReg(hw >> 2)
			inst.Rs1 = cReg(hw >> 7)
			inst.Imm = cImmW(hw)
			inst.Funct3 = 2
		}
	}
}

// cImmW extracts the scaled word offset of c.lw/c.sw.
func cImmW(hw uint16) int64 {
	return int64((hw>>7)&0x38) | int64((hw>>4)&0x4) | int64((hw<<1)&0x40)
}

// cImmD extracts the scaled doubleword offset of c.ld/c.sd.
func cImmD(hw uint16) int64 {
	return int64((hw>>7)&0x38) | int64((hw<<1)&0xC0)
}

func cImm6(hw uint16) int64 {
	imm := int64((hw>>2)&0x1F) | int64((hw>>7)&0x20)
	return imm<<58 >> 58
}

func (d *Decoder) decodeC1(hw uint16, inst *Instruction) {
	f := hw >> 13
	switch f {
	case 0:
		// c.addi (c.nop when rd=0)
		inst.Op = OpADDI
		inst.Rd = uint8((hw >> 7) & 0x1F)
		inst.Rs1 = inst.Rd
		inst.Imm = cImm6(hw)
	case 1:
		if d.rv64 {
			// c.addiw
			r := uint8((hw >> 7) & 0x1F)
			if r != 0 {
				inst.Op = OpADDIW
				inst.Rd, inst.Rs1 = r, r
				inst.Imm = cImm6(hw)
			}
		} else {
			// c.jal
			inst.Op = OpJAL
			inst.Rd = 1
			inst.Imm = cImmJ(hw)
		}
	case 2:
		// c.li
		inst.Op = OpADDI
		inst.Rd = uint8((hw >> 7) & 0x1F)
		inst.Rs1 = 0
		inst.Imm = cImm6(hw)
	case 3:
		r := uint8((hw >> 7) & 0x1F)
		if r == 2 {
			// c.addi16sp
			imm := int64((hw>>3)&0x200) | int64((hw>>2)&0x10) |
				int64((hw<<1)&0x40) | int64((hw<<4)&0x180) |
				int64((hw<<3)&0x20)
			imm = imm << 54 >> 54
			if imm != 0 {
				inst.Op = OpADDI
				inst.Rd, inst.Rs1 = 2, 2
				inst.Imm = imm
			}
		} else {
			imm := cImm6(hw) << 12
			if imm != 0 {
				// c.lui
				inst.Op = OpLUI
				inst.Rd = r
				inst.Imm = imm
			} else if r&1 == 1 {
				// c.mop.n (Zcmop) reuses the reserved c.lui
				// encoding with an odd rd and zero immediate.
				inst.Op = OpCMOP
				inst.Rd = 0
			}
		}
	case 4:
		d.decodeC1Alu(hw, inst)
	case 5:
		// c.j
		inst.Op = OpJAL
		inst.Rd = 0
		inst.Imm = cImmJ(hw)
	case 6:
		// c.beqz
		inst.Op = OpBEQ
		inst.Rs1 = cReg(hw >> 7)
		inst.Rs2 = 0
		inst.Imm = cImmB(hw)
	case 7:
		// c.bnez
		inst.Op = OpBNE
		inst.Rs1 = cReg(hw >> 7)
		inst.Rs2 = 0
		inst.Imm = cImmB(hw)
	}
}

func cImmJ(hw uint16) int64 {
	imm := int64((hw>>1)&0x800) | int64((hw>>7)&0x10) |
		int64((hw>>1)&0x300) | int64((hw<<2)&0x400) |
		int64((hw>>1)&0x40) | int64((hw<<1)&0x80) |
		int64((hw>>2)&0xE) | int64((hw<<3)&0x20)
	return imm << 52 >> 52
}

func cImmB(hw uint16) int64 {
	imm := int64((hw>>4)&0x100) | int64((hw>>7)&0x18) |
		int64((hw<<1)&0xC0) | int64((hw>>2)&0x6) |
		int64((hw<<3)&0x20)
	return imm << 55 >> 55
}

func (d *Decoder) decodeC1Alu(hw uint16, inst *Instruction) {
	r := cReg(hw >> 7)
	switch (hw >> 10) & 0x3 {
	case 0:
		// c.srli
		inst.Op = OpSRLI
		inst.Rd, inst.Rs1 = r, r
		inst.Imm = cShamt(hw, d.rv64)
	case 1:
		// c.srai
		inst.Op = OpSRAI
		inst.Rd, inst.Rs1 = r, r
		inst.Imm = cShamt(hw, d.rv64)
	case 2:
		// c.andi
		inst.Op = OpANDI
		inst.Rd, inst.Rs1 = r, r
		inst.Imm = cImm6(hw)
	case 3:
		r2 := cReg(hw >> 2)
		inst.Rd, inst.Rs1, inst.Rs2 = r, r, r2
		if (hw>>12)&1 == 0 {
			switch (hw >> 5) & 0x3 {
			case 0:
				inst.Op = OpSUB
			case 1:
				inst.Op = OpXOR
			case 2:
				inst.Op = OpOR
			case 3:
				inst.Op = OpAND
			}
		} else if d.rv64 {
			switch (hw >> 5) & 0x3 {
			case 0:
				inst.Op = OpSUBW
			case 1:
				inst.Op = OpADDW
			}
		}
	}
}

func cShamt(hw uint16, rv64 bool) int64 {
	sh := int64((hw>>2)&0x1F) | int64((hw>>7)&0x20)
	if !rv64 {
		sh &= 0x1F
	}
	return sh
}

func (d *Decoder) decodeC2(hw uint16, inst *Instruction) {
	f := hw >> 13
	r := uint8((hw >> 7) & 0x1F)
	switch f {
	case 0:
		// c.slli
		inst.Op = OpSLLI
		inst.Rd, inst.Rs1 = r, r
		inst.Imm = cShamt(hw, d.rv64)
	case 1:
		// c.fldsp
		inst.Op = OpFLD
		inst.Rd = r
		inst.Rs1 = 2
		inst.Imm = int64((hw>>7)&0x20) | int64((hw>>2)&0x18) |
			int64((hw<<4)&0x1C0)
		inst.Funct3 = 3
	case 2:
		// c.lwsp
		if r != 0 {
			inst.Op = OpLW
			inst.Rd = r
			inst.Rs1 = 2
			inst.Imm = int64((hw>>7)&0x20) | int64((hw>>2)&0x1C) |
				int64((hw<<4)&0xC0)
			inst.Funct3 = 2
		}
	case 3:
		if d.rv64 {
			// c.ldsp
			if r != 0 {
				inst.Op = OpLD
				inst.Rd = r
				inst.Rs1 = 2
				inst.Imm = int64((hw>>7)&0x20) | int64((hw>>2)&0x18) |
					int64((hw<<4)&0x1C0)
				inst.Funct3 = 3
			}
		} else {
			// c.flwsp
			inst.Op = OpFLW
			inst.Rd = r
			inst.Rs1 = 2
			inst.Imm = int64((hw>>7)&0x20) | int64((hw>>2)&0x1C) |
				int64((hw<<4)&0xC0)
			inst.Funct3 = 2
		}
	case 4:
		r2 := uint8((hw >> 2) & 0x1F)
		if (hw>>12)&1 == 0 {
			if r2 == 0 {
				// c.jr
				if r != 0 {
					inst.Op = OpJALR
					inst.Rd = 0
					inst.Rs1 = r
				}
			} else {
				// c.mv
				inst.Op = OpADD
				inst.Rd = r
				inst.Rs1 = 0
				inst.Rs2 = r2
			}
		} else {
			switch {
			case r == 0 && r2 == 0:
				inst.Op = OpEBREAK
			case r2 == 0:
				// c.jalr
				inst.Op = OpJALR
				inst.Rd = 1
				inst.Rs1 = r
			default:
				// c.add
				inst.Op = OpADD
				inst.Rd = r
				inst.Rs1 = r
				inst.Rs2 = r2
			}
		}
	case 5:
		// c.fsdsp
		inst.Op = OpFSD
		inst.Rs2 = uint8((hw >> 2) & 0x1F)
		inst.Rs1 = 2
		inst.Imm = int64((hw>>7)&0x38) | int64((hw>>1)&0x1C0)
		inst.Funct3 = 3
	case 6:
		// c.swsp
		inst.Op = OpSW
		inst.Rs2 = uint8((hw >> 2) & 0x1F)
		inst.Rs1 = 2
		inst.Imm = int64((hw>>7)&0x3C) | int64((hw>>1)&0xC0)
		inst.Funct3 = 2
	case 7:
		if d.rv64 {
			// c.sdsp
			inst.Op = OpSD
			inst.Rs2 = uint8((hw >> 2) & 0x1F)
			inst.Rs1 = 2
			inst.Imm = int64((hw>>7)&0x38) | int64((hw>>1)&0x1C0)
			inst.Funct3 = 3
		} else {
			// c.fswsp
			inst.Op = OpFSW
			inst.Rs2 = uint8((hw >> 2) & 0x1F)
			inst.Rs1 = 2
			inst.Imm = int64((hw>>7)&0x3C) | int64((hw>>1)&0xC0)
			inst.Funct3 = 2
		}
	}
}
