package mem

// PmaAttr describes the attributes of a physical memory region.
type PmaAttr struct {
	Read    bool
	Write   bool
	Exec    bool
	Idempot bool // idempotent (RAM-like); false for IO
	Amo     bool // supports AMOs
	Rsrv    bool // supports LR/SC reservations
}

// DefaultRamAttr is the attribute set applied to unmapped space when
// the PMA defaults are in force (RAM everywhere).
var DefaultRamAttr = PmaAttr{
	Read: true, Write: true, Exec: true,
	Idempot: true, Amo: true, Rsrv: true,
}

type pmaRegion struct {
	lo, hi uint64 // [lo, hi)
	attr   PmaAttr
}

// Pma models physical memory attributes as an ordered region list with
// a RAM default. Regions are matched first-hit; the hart re-applies
// defaults on reset when PMACFG CSRs are implemented.
type Pma struct {
	regions []pmaRegion
}

// NewPma creates a PMA unit with the RAM default and no regions.
func NewPma() *Pma {
	return &Pma{}
}

// Define adds a region. Later definitions shadow earlier ones.
func (p *Pma) Define(lo, hi uint64, attr PmaAttr) {
	p.regions = append([]pmaRegion{{lo: lo, hi: hi, attr: attr}}, p.regions...)
}

// Reset drops all defined regions, restoring the RAM default.
func (p *Pma) Reset() {
	p.regions = nil
}

// Attr returns the attributes in force at pa.
func (p *Pma) Attr(pa uint64) PmaAttr {
	for _, r := range p.regions {
		if pa >= r.lo && pa < r.hi {
			return r.attr
		}
	}
	return DefaultRamAttr
}

func (p *Pma) check(pa, size uint64, ok func(PmaAttr) bool) bool {
	// Attributes must hold for every byte; regions are page-grained in
	// practice, so probing each boundary-crossing chunk suffices.
	for a := pa &^ (PageSize - 1); a < pa+size; a += PageSize {
		probe := a
		if probe < pa {
			probe = pa
		}
		if !ok(p.Attr(probe)) {
			return false
		}
	}
	return true
}

// Readable reports whether [pa, pa+size) is readable.
func (p *Pma) Readable(pa, size uint64) bool {
	return p.check(pa, size, func(a PmaAttr) bool { return a.Read })
}

// Writable reports whether [pa, pa+size) is writable.
func (p *Pma) Writable(pa, size uint64) bool {
	return p.check(pa, size, func(a PmaAttr) bool { return a.Write })
}

// Executable reports whether [pa, pa+size) is executable.
func (p *Pma) Executable(pa, size uint64) bool {
	return p.check(pa, size, func(a PmaAttr) bool { return a.Exec })
}
