package insts

var opNames = [NumOps]string{
	OpUnknown: "unknown",

	OpLUI: "lui", OpAUIPC: "auipc", OpJAL: "jal", OpJALR: "jalr",
	OpBEQ: "beq", OpBNE: "bne", OpBLT: "blt", OpBGE: "bge",
	OpBLTU: "bltu", OpBGEU: "bgeu",
	OpLB: "lb", OpLH: "lh", OpLW: "lw", OpLBU: "lbu", OpLHU: "lhu",
	OpLWU: "lwu", OpLD: "ld",
	OpSB: "sb", OpSH: "sh", OpSW: "sw", OpSD: "sd",
	OpADDI: "addi", OpSLTI: "slti", OpSLTIU: "sltiu", OpXORI: "xori",
	OpORI: "ori", OpANDI: "andi", OpSLLI: "slli", OpSRLI: "srli",
	OpSRAI: "srai",
	OpADD: "add", OpSUB: "sub", OpSLL: "sll", OpSLT: "slt",
	OpSLTU: "sltu", OpXOR: "xor", OpSRL: "srl", OpSRA: "sra",
	OpOR: "or", OpAND: "and",
	OpADDIW: "addiw", OpSLLIW: "slliw", OpSRLIW: "srliw",
	OpSRAIW: "sraiw", OpADDW: "addw", OpSUBW: "subw", OpSLLW: "sllw",
	OpSRLW: "srlw", OpSRAW: "sraw",
	OpFENCE: "fence", OpFENCEI: "fence.i",
	OpECALL: "ecall", OpEBREAK: "ebreak",

	OpMUL: "mul", OpMULH: "mulh", OpMULHSU: "mulhsu", OpMULHU: "mulhu",
	OpDIV: "div", OpDIVU: "divu", OpREM: "rem", OpREMU: "remu",
	OpMULW: "mulw", OpDIVW: "divw", OpDIVUW: "divuw", OpREMW: "remw",
	OpREMUW: "remuw",

	OpLRW: "lr.w", OpSCW: "sc.w", OpLRD: "lr.d", OpSCD: "sc.d",
	OpAMOSWAPW: "amoswap.w", OpAMOADDW: "amoadd.w", OpAMOXORW: "amoxor.w",
	OpAMOANDW: "amoand.w", OpAMOORW: "amoor.w", OpAMOMINW: "amomin.w",
	OpAMOMAXW: "amomax.w", OpAMOMINUW: "amominu.w", OpAMOMAXUW: "amomaxu.w",
	OpAMOSWAPD: "amoswap.d", OpAMOADDD: "amoadd.d", OpAMOXORD: "amoxor.d",
	OpAMOANDD: "amoand.d", OpAMOORD: "amoor.d", OpAMOMIND: "amomin.d",
	OpAMOMAXD: "amomax.d", OpAMOMINUD: "amominu.d", OpAMOMAXUD: "amomaxu.d",
	OpAMOCASW: "amocas.w", OpAMOCASD: "amocas.d",

	OpCSRRW: "csrrw", OpCSRRS: "csrrs", OpCSRRC: "csrrc",
	OpCSRRWI: "csrrwi", OpCSRRSI: "csrrsi", OpCSRRCI: "csrrci",

	OpMRET: "mret", OpSRET: "sret", OpMNRET: "mnret", OpDRET: "dret",
	OpWFI: "wfi",
	OpSFENCEVMA: "sfence.vma", OpSINVALVMA: "sinval.vma",
	OpSFENCEWINVAL: "sfence.w.inval", OpSFENCEINVALIR: "sfence.inval.ir",
	OpHFENCEVVMA: "hfence.vvma", OpHFENCEGVMA: "hfence.gvma",
	OpHINVALVVMA: "hinval.vvma", OpHINVALGVMA: "hinval.gvma",

	OpHLVB: "hlv.b", OpHLVBU: "hlv.bu", OpHLVH: "hlv.h", OpHLVHU: "hlv.hu",
	OpHLVW: "hlv.w", OpHLVWU: "hlv.wu", OpHLVD: "hlv.d",
	OpHLVXHU: "hlvx.hu", OpHLVXWU: "hlvx.wu",
	OpHSVB: "hsv.b", OpHSVH: "hsv.h", OpHSVW: "hsv.w", OpHSVD: "hsv.d",

	OpCBOCLEAN: "cbo.clean", OpCBOFLUSH: "cbo.flush",
	OpCBOINVAL: "cbo.inval", OpCBOZERO: "cbo.zero",
	OpPREFETCHI: "prefetch.i", OpPREFETCHR: "prefetch.r",
	OpPREFETCHW: "prefetch.w",

	OpWRSNTO: "wrs.nto", OpWRSSTO: "wrs.sto",
	OpCZEROEQZ: "czero.eqz", OpCZERONEZ: "czero.nez",

	OpSH1ADD: "sh1add", OpSH2ADD: "sh2add", OpSH3ADD: "sh3add",
	OpADDUW: "add.uw", OpSH1ADDUW: "sh1add.uw", OpSH2ADDUW: "sh2add.uw",
	OpSH3ADDUW: "sh3add.uw", OpSLLIUW: "slli.uw",
	OpANDN: "andn", OpORN: "orn", OpXNOR: "xnor",
	OpCLZ: "clz", OpCTZ: "ctz", OpCPOP: "cpop",
	OpCLZW: "clzw", OpCTZW: "ctzw", OpCPOPW: "cpopw",
	OpMIN: "min", OpMINU: "minu", OpMAX: "max", OpMAXU: "maxu",
	OpSEXTB: "sext.b", OpSEXTH: "sext.h", OpZEXTH: "zext.h",
	OpROL: "rol", OpROR: "ror", OpRORI: "rori",
	OpROLW: "rolw", OpRORW: "rorw", OpRORIW: "roriw",
	OpORCB: "orc.b", OpREV8: "rev8",

	OpMOPR: "mop.r", OpMOPRR: "mop.rr", OpCMOP: "c.mop",
	OpLPAD: "lpad",

	OpFLW: "flw", OpFSW: "fsw",
	OpFADDS: "fadd.s", OpFSUBS: "fsub.s", OpFMULS: "fmul.s",
	OpFDIVS: "fdiv.s", OpFSQRTS: "fsqrt.s",
	OpFSGNJS: "fsgnj.s", OpFSGNJNS: "fsgnjn.s", OpFSGNJXS: "fsgnjx.s",
	OpFMINS: "fmin.s", OpFMAXS: "fmax.s",
	OpFCVTWS: "fcvt.w.s", OpFCVTWUS: "fcvt.wu.s",
	OpFCVTLS: "fcvt.l.s", OpFCVTLUS: "fcvt.lu.s",
	OpFCVTSW: "fcvt.s.w", OpFCVTSWU: "fcvt.s.wu",
	OpFCVTSL: "fcvt.s.l", OpFCVTSLU: "fcvt.s.lu",
	OpFMVXW: "fmv.x.w", OpFMVWX: "fmv.w.x",
	OpFEQS: "feq.s", OpFLTS: "flt.s", OpFLES: "fle.s",
	OpFCLASSS: "fclass.s",
	OpFMADDS: "fmadd.s", OpFMSUBS: "fmsub.s",
	OpFNMSUBS: "fnmsub.s", OpFNMADDS: "fnmadd.s",

	OpFLD: "fld", OpFSD: "fsd",
	OpFADDD: "fadd.d", OpFSUBD: "fsub.d", OpFMULD: "fmul.d",
	OpFDIVD: "fdiv.d", OpFSQRTD: "fsqrt.d",
	OpFSGNJD: "fsgnj.d", OpFSGNJND: "fsgnjn.d", OpFSGNJXD: "fsgnjx.d",
	OpFMIND: "fmin.d", OpFMAXD: "fmax.d",
	OpFCVTWD: "fcvt.w.d", OpFCVTWUD: "fcvt.wu.d",
	OpFCVTLD: "fcvt.l.d", OpFCVTLUD: "fcvt.lu.d",
	OpFCVTDW: "fcvt.d.w", OpFCVTDWU: "fcvt.d.wu",
	OpFCVTDL: "fcvt.d.l", OpFCVTDLU: "fcvt.d.lu",
	OpFCVTSD: "fcvt.s.d", OpFCVTDS: "fcvt.d.s",
	OpFMVXD: "fmv.x.d", OpFMVDX: "fmv.d.x",
	OpFEQD: "feq.d", OpFLTD: "flt.d", OpFLED: "fle.d",
	OpFCLASSD: "fclass.d",
	OpFMADDD: "fmadd.d", OpFMSUBD: "fmsub.d",
	OpFNMSUBD: "fnmsub.d", OpFNMADDD: "fnmadd.d",

	OpVSETVLI: "vsetvli", OpVSETIVLI: "vsetivli", OpVSETVL: "vsetvl",
	OpVLE: "vle", OpVSE: "vse",
	OpVADDVV: "vadd.vv", OpVADDVX: "vadd.vx",
	OpVSUBVV: "vsub.vv", OpVSUBVX: "vsub.vx",
	OpVANDVV: "vand.vv", OpVANDVX: "vand.vx",
	OpVORVV: "vor.vv", OpVORVX: "vor.vx",
	OpVXORVV: "vxor.vv", OpVXORVX: "vxor.vx",
	OpVMVVV: "vmv.v.v", OpVMVVX: "vmv.v.x", OpVMVVI: "vmv.v.i",
}

// String returns the assembler mnemonic.
func (o Op) String() string {
	if o >= NumOps {
		return "invalid"
	}
	return opNames[o]
}
