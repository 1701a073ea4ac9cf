package hart

import (
	"math"

	"github.com/sarchlab/r5sim/insts"
)

// FFLAGS bits.
const (
	fflagNX = 1 << 0
	fflagUF = 1 << 1
	fflagOF = 1 << 2
	fflagDZ = 1 << 3
	fflagNV = 1 << 4
)

const (
	canonicalNan32 = uint32(0x7FC0_0000)
	canonicalNan64 = uint64(0x7FF8_0000_0000_0000)
	nanBoxMask     = uint64(0xFFFF_FFFF) << 32
)

func boxF32(bits uint32) uint64 {
	return nanBoxMask | uint64(bits)
}

// unboxF32 returns the single-precision payload; improperly boxed
// values read as the canonical NaN.
func unboxF32(v uint64) uint32 {
	if v&nanBoxMask != nanBoxMask {
		return canonicalNan32
	}
	return uint32(v)
}

func (h *Hart) setFflags(flags uint64) {
	if flags == 0 {
		return
	}
	h.csr.SetRaw(CsrFflags, h.csr.Raw(CsrFflags)|flags)
	h.setFsDirty()
}

func f32(v uint64) float32  { return math.Float32frombits(unboxF32(v)) }
func f64(v uint64) float64  { return math.Float64frombits(v) }
func fromF32(f float32) uint64 {
	b := math.Float32bits(f)
	if f != f {
		b = canonicalNan32
	}
	return boxF32(b)
}
func fromF64(f float64) uint64 {
	b := math.Float64bits(f)
	if f != f {
		b = canonicalNan64
	}
	return b
}

func (h *Hart) execFp(inst insts.Instruction) {
	if !h.fpEnabled() {
		h.raiseIllegal(inst.Raw)
		return
	}
	switch inst.Op {
	case insts.OpFLW:
		addr := h.IntReg(int(inst.Rs1)) + uint64(inst.Imm)
		if v, ok := h.loadVa(addr, 4); ok {
			h.SetFpReg(int(inst.Rd), boxF32(uint32(v)))
		}
	case insts.OpFLD:
		addr := h.IntReg(int(inst.Rs1)) + uint64(inst.Imm)
		if v, ok := h.loadVa(addr, 8); ok {
			h.SetFpReg(int(inst.Rd), v)
		}
	case insts.OpFSW:
		addr := h.IntReg(int(inst.Rs1)) + uint64(inst.Imm)
		h.storeVa(addr, 4, h.FpReg(int(inst.Rs2))&0xFFFF_FFFF)
	case insts.OpFSD:
		addr := h.IntReg(int(inst.Rs1)) + uint64(inst.Imm)
		h.storeVa(addr, 8, h.FpReg(int(inst.Rs2)))
	default:
		h.execFpArith(inst)
	}
}

func (h *Hart) execFpArith(inst insts.Instruction) {
	rs1 := h.FpReg(int(inst.Rs1))
	rs2 := h.FpReg(int(inst.Rs2))

	switch inst.Op {
	case insts.OpFADDS:
		h.SetFpReg(int(inst.Rd), fromF32(f32(rs1)+f32(rs2)))
	case insts.OpFSUBS:
		h.SetFpReg(int(inst.Rd), fromF32(f32(rs1)-f32(rs2)))
	case insts.OpFMULS:
		h.SetFpReg(int(inst.Rd), fromF32(f32(rs1)*f32(rs2)))
	case insts.OpFDIVS:
		if f32(rs2) == 0 && f32(rs1) == f32(rs1) && f32(rs1) != 0 {
			h.setFflags(fflagDZ)
		}
		h.SetFpReg(int(inst.Rd), fromF32(f32(rs1)/f32(rs2)))
	case insts.OpFSQRTS:
		a := f32(rs1)
		if a < 0 {
			h.setFflags(fflagNV)
		}
		h.SetFpReg(int(inst.Rd), fromF32(float32(math.Sqrt(float64(a)))))
	case insts.OpFSGNJS:
		h.SetFpReg(int(inst.Rd),
			boxF32(unboxF32(rs1)&^(1<<31)|unboxF32(rs2)&(1<<31)))
	case insts.OpFSGNJNS:
		h.SetFpReg(int(inst.Rd),
			boxF32(unboxF32(rs1)&^(1<<31)|^unboxF32(rs2)&(1<<31)))
	case insts.OpFSGNJXS:
		h.SetFpReg(int(inst.Rd),
			boxF32(unboxF32(rs1)^unboxF32(rs2)&(1<<31)))
	case insts.OpFMINS:
		h.SetFpReg(int(inst.Rd), fromF32(fminS(f32(rs1), f32(rs2))))
	case insts.OpFMAXS:
		h.SetFpReg(int(inst.Rd), fromF32(fmaxS(f32(rs1), f32(rs2))))
	case insts.OpFCVTWS:
		h.SetIntReg(int(inst.Rd), sext32(uint64(uint32(h.cvtToInt32(
			float64(f32(rs1)))))))
	case insts.OpFCVTWUS:
		h.SetIntReg(int(inst.Rd), sext32(uint64(h.cvtToUint32(
			float64(f32(rs1))))))
	case insts.OpFCVTLS:
		h.SetIntReg(int(inst.Rd), uint64(h.cvtToInt64(float64(f32(rs1)))))
	case insts.OpFCVTLUS:
		h.SetIntReg(int(inst.Rd), h.cvtToUint64(float64(f32(rs1))))
	case insts.OpFCVTSW:
		h.SetFpReg(int(inst.Rd),
			fromF32(float32(int32(h.IntReg(int(inst.Rs1))))))
	case insts.OpFCVTSWU:
		h.SetFpReg(int(inst.Rd),
			fromF32(float32(uint32(h.IntReg(int(inst.Rs1))))))
	case insts.OpFCVTSL:
		h.SetFpReg(int(inst.Rd),
			fromF32(float32(int64(h.IntReg(int(inst.Rs1))))))
	case insts.OpFCVTSLU:
		h.SetFpReg(int(inst.Rd),
			fromF32(float32(h.IntReg(int(inst.Rs1)))))
	case insts.OpFMVXW:
		h.SetIntReg(int(inst.Rd), sext32(uint64(uint32(h.FpReg(int(inst.Rs1))))))
	case insts.OpFMVWX:
		h.SetFpReg(int(inst.Rd), boxF32(uint32(h.IntReg(int(inst.Rs1)))))
	case insts.OpFEQS:
		h.SetIntReg(int(inst.Rd), boolTo64(f32(rs1) == f32(rs2)))
	case insts.OpFLTS:
		h.cmpNanCheck(float64(f32(rs1)), float64(f32(rs2)))
		h.SetIntReg(int(inst.Rd), boolTo64(f32(rs1) < f32(rs2)))
	case insts.OpFLES:
		h.cmpNanCheck(float64(f32(rs1)), float64(f32(rs2)))
		h.SetIntReg(int(inst.Rd), boolTo64(f32(rs1) <= f32(rs2)))
	case insts.OpFCLASSS:
		h.SetIntReg(int(inst.Rd), fclass(float64(f32(rs1)),
			unboxF32(rs1)&(1<<31) != 0, isSnan32(unboxF32(rs1))))
	case insts.OpFMADDS, insts.OpFMSUBS, insts.OpFNMSUBS, insts.OpFNMADDS:
		h.execFmaS(inst)

	case insts.OpFADDD:
		h.SetFpReg(int(inst.Rd), fromF64(f64(rs1)+f64(rs2)))
	case insts.OpFSUBD:
		h.SetFpReg(int(inst.Rd), fromF64(f64(rs1)-f64(rs2)))
	case insts.OpFMULD:
		h.SetFpReg(int(inst.Rd), fromF64(f64(rs1)*f64(rs2)))
	case insts.OpFDIVD:
		if f64(rs2) == 0 && f64(rs1) == f64(rs1) && f64(rs1) != 0 {
			h.setFflags(fflagDZ)
		}
		h.SetFpReg(int(inst.Rd), fromF64(f64(rs1)/f64(rs2)))
	case insts.OpFSQRTD:
		a := f64(rs1)
		if a < 0 {
			h.setFflags(fflagNV)
		}
		h.SetFpReg(int(inst.Rd), fromF64(math.Sqrt(a)))
	case insts.OpFSGNJD:
		h.SetFpReg(int(inst.Rd), rs1&^(1<<63)|rs2&(1<<63))
	case insts.OpFSGNJND:
		h.SetFpReg(int(inst.Rd), rs1&^(1<<63)|^rs2&(1<<63))
	case insts.OpFSGNJXD:
		h.SetFpReg(int(inst.Rd), rs1^rs2&(1<<63))
	case insts.OpFMIND:
		h.SetFpReg(int(inst.Rd), fromF64(fminD(f64(rs1), f64(rs2))))
	case insts.OpFMAXD:
		h.SetFpReg(int(inst.Rd), fromF64(fmaxD(f64(rs1), f64(rs2))))
	case insts.OpFCVTWD:
		h.SetIntReg(int(inst.Rd), sext32(uint64(uint32(h.cvtToInt32(f64(rs1))))))
	case insts.OpFCVTWUD:
		h.SetIntReg(int(inst.Rd), sext32(uint64(h.cvtToUint32(f64(rs1)))))
	case insts.OpFCVTLD:
		h.SetIntReg(int(inst.Rd), uint64(h.cvtToInt64(f64(rs1))))
	case insts.OpFCVTLUD:
		h.SetIntReg(int(inst.Rd), h.cvtToUint64(f64(rs1)))
	case insts.OpFCVTDW:
		h.SetFpReg(int(inst.Rd),
			fromF64(float64(int32(h.IntReg(int(inst.Rs1))))))
	case insts.OpFCVTDWU:
		h.SetFpReg(int(inst.Rd),
			fromF64(float64(uint32(h.IntReg(int(inst.Rs1))))))
	case insts.OpFCVTDL:
		h.SetFpReg(int(inst.Rd),
			fromF64(float64(int64(h.IntReg(int(inst.Rs1))))))
	case insts.OpFCVTDLU:
		h.SetFpReg(int(inst.Rd),
			fromF64(float64(h.IntReg(int(inst.Rs1)))))
	case insts.OpFCVTSD:
		h.SetFpReg(int(inst.Rd), fromF32(float32(f64(rs1))))
	case insts.OpFCVTDS:
		h.SetFpReg(int(inst.Rd), fromF64(float64(f32(rs1))))
	case insts.OpFMVXD:
		h.SetIntReg(int(inst.Rd), h.FpReg(int(inst.Rs1)))
	case insts.OpFMVDX:
		h.SetFpReg(int(inst.Rd), h.IntReg(int(inst.Rs1)))
	case insts.OpFEQD:
		h.SetIntReg(int(inst.Rd), boolTo64(f64(rs1) == f64(rs2)))
	case insts.OpFLTD:
		h.cmpNanCheck(f64(rs1), f64(rs2))
		h.SetIntReg(int(inst.Rd), boolTo64(f64(rs1) < f64(rs2)))
	case insts.OpFLED:
		h.cmpNanCheck(f64(rs1), f64(rs2))
		h.SetIntReg(int(inst.Rd), boolTo64(f64(rs1) <= f64(rs2)))
	case insts.OpFCLASSD:
		h.SetIntReg(int(inst.Rd), fclass(f64(rs1), rs1&(1<<63) != 0,
			isSnan64(rs1)))
	case insts.OpFMADDD, insts.OpFMSUBD, insts.OpFNMSUBD, insts.OpFNMADDD:
		h.execFmaD(inst)
	default:
		h.raiseIllegal(inst.Raw)
	}
}

func (h *Hart) execFmaS(inst insts.Instruction) {
	a := float64(f32(h.FpReg(int(inst.Rs1))))
	b := float64(f32(h.FpReg(int(inst.Rs2))))
	c := float64(f32(h.FpReg(int(inst.Rs3))))
	h.SetFpReg(int(inst.Rd), fromF32(float32(fmaCombine(inst.Op, a, b, c))))
}

func (h *Hart) execFmaD(inst insts.Instruction) {
	a := f64(h.FpReg(int(inst.Rs1)))
	b := f64(h.FpReg(int(inst.Rs2)))
	c := f64(h.FpReg(int(inst.Rs3)))
	h.SetFpReg(int(inst.Rd), fromF64(fmaCombine(inst.Op, a, b, c)))
}

func fmaCombine(op insts.Op, a, b, c float64) float64 {
	switch op {
	case insts.OpFMADDS, insts.OpFMADDD:
		return math.FMA(a, b, c)
	case insts.OpFMSUBS, insts.OpFMSUBD:
		return math.FMA(a, b, -c)
	case insts.OpFNMSUBS, insts.OpFNMSUBD:
		return math.FMA(-a, b, c)
	default:
		return -math.FMA(a, b, c)
	}
}

func (h *Hart) cmpNanCheck(a, b float64) {
	if a != a || b != b {
		h.setFflags(fflagNV)
	}
}

// Conversions saturate and raise NV on NaN or out of range.
func (h *Hart) cvtToInt32(f float64) int32 {
	if f != f {
		h.setFflags(fflagNV)
		return math.MaxInt32
	}
	if f >= math.MaxInt32 {
		h.setFflags(fflagNV)
		return math.MaxInt32
	}
	if f <= math.MinInt32 {
		if f < math.MinInt32 {
			h.setFflags(fflagNV)
		}
		return math.MinInt32
	}
	return int32(f)
}

func (h *Hart) cvtToUint32(f float64) uint32 {
	if f != f || f >= math.MaxUint32+1 {
		h.setFflags(fflagNV)
		return math.MaxUint32
	}
	if f <= -1 {
		h.setFflags(fflagNV)
		return 0
	}
	if f < 0 {
		return 0
	}
	return uint32(f)
}

func (h *Hart) cvtToInt64(f float64) int64 {
	if f != f || f >= math.MaxInt64 {
		h.setFflags(fflagNV)
		return math.MaxInt64
	}
	if f < math.MinInt64 {
		h.setFflags(fflagNV)
		return math.MinInt64
	}
	return int64(f)
}

func (h *Hart) cvtToUint64(f float64) uint64 {
	if f != f || f >= math.MaxUint64 {
		h.setFflags(fflagNV)
		return math.MaxUint64
	}
	if f <= -1 {
		h.setFflags(fflagNV)
		return 0
	}
	if f < 0 {
		return 0
	}
	return uint64(f)
}

func fminS(a, b float32) float32 {
	if a != a {
		return b
	}
	if b != b {
		return a
	}
	// -0 orders below +0.
	if a == 0 && b == 0 {
		if math.Signbit(float64(a)) {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

func fmaxS(a, b float32) float32 {
	if a != a {
		return b
	}
	if b != b {
		return a
	}
	if a == 0 && b == 0 {
		if math.Signbit(float64(a)) {
			return b
		}
		return a
	}
	if a > b {
		return a
	}
	return b
}

func fminD(a, b float64) float64 {
	if a != a {
		return b
	}
	if b != b {
		return a
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return a
		}
		return b
	}
	return math.Min(a, b)
}

func fmaxD(a, b float64) float64 {
	if a != a {
		return b
	}
	if b != b {
		return a
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return b
		}
		return a
	}
	return math.Max(a, b)
}

func isSnan32(b uint32) bool {
	exp := b >> 23 & 0xFF
	frac := b & 0x7F_FFFF
	return exp == 0xFF && frac != 0 && frac>>22&1 == 0
}

func isSnan64(b uint64) bool {
	exp := b >> 52 & 0x7FF
	frac := b & (1<<52 - 1)
	return exp == 0x7FF && frac != 0 && frac>>51&1 == 0
}

// fclass returns the FCLASS result bit.
func fclass(f float64, negSign, snan bool) uint64 {
	switch {
	case f != f:
		if snan {
			return 1 << 8
		}
		return 1 << 9
	case math.IsInf(f, -1):
		return 1 << 0
	case math.IsInf(f, 1):
		return 1 << 7
	case f == 0:
		if negSign {
			return 1 << 3
		}
		return 1 << 4
	case negSign:
		if isSubnormal(f) {
			return 1 << 2
		}
		return 1 << 1
	default:
		if isSubnormal(f) {
			return 1 << 5
		}
		return 1 << 6
	}
}

func isSubnormal(f float64) bool {
	a := math.Abs(f)
	return a > 0 && a < math.SmallestNonzeroFloat64*math.Pow(2, 52)
}
