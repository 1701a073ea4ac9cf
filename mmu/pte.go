// Package mmu implements RISC-V virtual memory translation: the
// Sv32/Sv39/Sv48/Sv57 page-table walks, single-stage and two-stage
// (hypervisor) translation, the architectural TLBs, and A/D
// maintenance including Svnapot and Svpbmt.
package mmu

// Mode is a translation mode as encoded in satp/vsatp/hgatp.MODE.
type Mode uint8

// Translation modes.
const (
	Bare Mode = 0
	Sv32 Mode = 1
	Sv39 Mode = 8
	Sv48 Mode = 9
	Sv57 Mode = 10
)

// Pbmt is a page-based memory type (Svpbmt).
type Pbmt uint8

// PBMT encodings. The value 3 is reserved and faults.
const (
	PbmtNone Pbmt = 0
	PbmtNc   Pbmt = 1
	PbmtIo   Pbmt = 2
)

// PTE permission and status bits.
const (
	PteV uint64 = 1 << 0
	PteR uint64 = 1 << 1
	PteW uint64 = 1 << 2
	PteX uint64 = 1 << 3
	PteU uint64 = 1 << 4
	PteG uint64 = 1 << 5
	PteA uint64 = 1 << 6
	PteD uint64 = 1 << 7
)

// 64-bit PTE high fields.
const (
	pteN         uint64 = 1 << 63
	ptePbmtShift        = 61
	ptePbmtMask  uint64 = 3 << ptePbmtShift
	// Bits 60:54 are reserved and must read zero.
	pteRsvdMask uint64 = 0x7F << 54
)

// PageShift is log2 of the base page size.
const PageShift = 12

// PageSize is the base page size.
const PageSize = 1 << PageShift

// ModeSpec parameterizes the walk over the translation mode: number of
// levels, VPN field width, PTE size, and whether the 64-bit PTE high
// bits (PBMT, N, reserved) exist.
type ModeSpec struct {
	Levels  int
	VpnBits uint
	PteSize int
	VaBits  uint
	Wide    bool // 8-byte PTEs with PBMT/N/reserved fields
}

// Spec returns the ModeSpec for a translation mode, or ok=false for
// Bare or an unsupported encoding.
func Spec(m Mode) (ModeSpec, bool) {
	switch m {
	case Sv32:
		return ModeSpec{Levels: 2, VpnBits: 10, PteSize: 4, VaBits: 32}, true
	case Sv39:
		return ModeSpec{Levels: 3, VpnBits: 9, PteSize: 8, VaBits: 39, Wide: true}, true
	case Sv48:
		return ModeSpec{Levels: 4, VpnBits: 9, PteSize: 8, VaBits: 48, Wide: true}, true
	case Sv57:
		return ModeSpec{Levels: 5, VpnBits: 9, PteSize: 8, VaBits: 57, Wide: true}, true
	}
	return ModeSpec{}, false
}

// Vpn extracts VPN[level] of va.
func (s ModeSpec) Vpn(va uint64, level int) uint64 {
	shift := PageShift + uint(level)*s.VpnBits
	return (va >> shift) & ((1 << s.VpnBits) - 1)
}

// Ppn extracts the full PPN of a PTE.
func (s ModeSpec) Ppn(pte uint64) uint64 {
	if s.Wide {
		return (pte >> 10) & ((1 << 44) - 1)
	}
	return (pte >> 10) & ((1 << 22) - 1)
}

// CheckVaCanonical reports whether the bits above VaBits-1 are a
// sign-extension of bit VaBits-1. Sv32 addresses are always canonical.
func (s ModeSpec) CheckVaCanonical(va uint64) bool {
	if s.VaBits >= 64 {
		return true
	}
	if !s.Wide {
		return true
	}
	top := int64(va) >> (s.VaBits - 1)
	return top == 0 || top == -1
}

// LeafMisaligned reports whether a leaf at the given level has nonzero
// low PPN fields (superpage alignment violation).
func (s ModeSpec) LeafMisaligned(pte uint64, level int) bool {
	if level == 0 {
		return false
	}
	mask := uint64(1)<<(uint(level)*s.VpnBits) - 1
	return s.Ppn(pte)&mask != 0
}

// IsLeaf reports whether a valid PTE is a leaf.
func IsLeaf(pte uint64) bool {
	return pte&(PteR|PteX) != 0
}

// PtePbmt extracts the PBMT field of a wide PTE.
func (s ModeSpec) PtePbmt(pte uint64) Pbmt {
	if !s.Wide {
		return PbmtNone
	}
	return Pbmt((pte & ptePbmtMask) >> ptePbmtShift)
}

// PteNapot reports the Svnapot N bit of a wide PTE.
func (s ModeSpec) PteNapot(pte uint64) bool {
	return s.Wide && pte&pteN != 0
}

// PteReserved reports whether reserved PTE bits are set.
func (s ModeSpec) PteReserved(pte uint64) bool {
	return s.Wide && pte&pteRsvdMask != 0
}
