package mem

// PmpAccess selects the permission bit checked by Pmp.Check.
type PmpAccess uint8

// PMP access kinds.
const (
	PmpRead PmpAccess = iota
	PmpWrite
	PmpExec
)

// PMP configuration bits, one byte per entry.
const (
	pmpR = 1 << 0
	pmpW = 1 << 1
	pmpX = 1 << 2
	pmpL = 1 << 7

	pmpAShift = 3
	pmpAMask  = 3 << pmpAShift
)

// PMP address-matching modes.
const (
	PmpOff uint8 = iota
	PmpTor
	PmpNa4
	PmpNapot
)

// NumPmpEntries is the number of PMP entries.
const NumPmpEntries = 64

// Pmp models the physical memory protection unit. The hart reprograms
// it on every PMPCFG/PMPADDR CSR write; the translator and the CBO
// handlers consult it per doubleword.
type Pmp struct {
	cfg  [NumPmpEntries]uint8
	addr [NumPmpEntries]uint64 // pmpaddrN values (pa >> 2)
}

// NewPmp creates a PMP with every entry off, which grants full access
// to M-mode and (with no entries active) to all modes.
func NewPmp() *Pmp {
	return &Pmp{}
}

// SetCfg programs one entry's configuration byte. Locked entries
// ignore further writes.
func (p *Pmp) SetCfg(i int, cfg uint8) {
	if p.cfg[i]&pmpL != 0 {
		return
	}
	p.cfg[i] = cfg
}

// Cfg returns one entry's configuration byte.
func (p *Pmp) Cfg(i int) uint8 { return p.cfg[i] }

// SetAddr programs one entry's pmpaddr register (pa >> 2 encoding).
func (p *Pmp) SetAddr(i int, addr uint64) {
	if p.cfg[i]&pmpL != 0 {
		return
	}
	// A locked TOR entry also locks the address below it.
	if i+1 < NumPmpEntries &&
		p.cfg[i+1]&pmpL != 0 &&
		(p.cfg[i+1]&pmpAMask)>>pmpAShift == uint8(PmpTor) {
		return
	}
	p.addr[i] = addr
}

// Addr returns one entry's pmpaddr register.
func (p *Pmp) Addr(i int) uint64 { return p.addr[i] }

// Reset clears every entry including locked ones (hart reset).
func (p *Pmp) Reset() {
	*p = Pmp{}
}

// entryRange returns the [lo, hi) byte range entry i matches.
func (p *Pmp) entryRange(i int) (lo, hi uint64, active bool) {
	mode := (p.cfg[i] & pmpAMask) >> pmpAShift
	switch mode {
	case PmpOff:
		return 0, 0, false
	case PmpTor:
		if i > 0 {
			lo = p.addr[i-1] << 2
		}
		return lo, p.addr[i] << 2, true
	case PmpNa4:
		lo = p.addr[i] << 2
		return lo, lo + 4, true
	default: // NAPOT
		// The number of trailing one bits selects the region size:
		// yyyy...y011..1 encodes a 2^(3+ones) byte region.
		a := p.addr[i]
		size := uint64(8)
		for a&1 == 1 {
			a >>= 1
			size <<= 1
		}
		lo = (p.addr[i] &^ (size>>3 - 1)) << 2
		return lo, lo + size, true
	}
}

// Check reports whether an access of size bytes at pa is permitted for
// the given privilege. Every byte must land in entries that grant the
// permission; with no matching entry, M-mode is allowed and lower
// privileges are denied only when any entry is active (standard PMP
// default-allow when no PMP entry is implemented/active).
func (p *Pmp) Check(pa, size uint64, pm Priv, access PmpAccess) bool {
	anyActive := false
	for i := 0; i < NumPmpEntries; i++ {
		lo, hi, active := p.entryRange(i)
		if !active {
			continue
		}
		anyActive = true
		if pa >= hi || pa+size <= lo {
			continue
		}
		// Partial overlap without full containment fails.
		if pa < lo || pa+size > hi {
			return false
		}
		cfg := p.cfg[i]
		if pm == PrivM && cfg&pmpL == 0 {
			return true
		}
		switch access {
		case PmpRead:
			return cfg&pmpR != 0
		case PmpWrite:
			return cfg&pmpW != 0
		default:
			return cfg&pmpX != 0
		}
	}
	if pm == PrivM {
		return true
	}
	return !anyActive
}
