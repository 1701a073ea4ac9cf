package mmu

// World is the trusted-world identifier tagged into TLB entries.
type World uint8

// Perms is the permission set cached with a TLB entry.
type Perms struct {
	R, W, X, U, G, A, D bool
}

// Entry is one TLB entry. Entries cache the result of a successful
// walk: the virtual page, the physical page, the tags that scoped the
// walk, the level (0 = 4K leaf, >0 = superpage), PBMT and permissions.
type Entry struct {
	Vpn     uint64
	Ppn     uint64
	Asid    uint16
	Vmid    uint16
	World   World
	Level   int
	VpnBits uint
	Pbmt    Pbmt
	Perms   Perms
	Counter uint64
	Valid   bool
}

// Covers reports whether the entry's page (possibly a superpage)
// contains vpn.
func (e *Entry) Covers(vpn uint64) bool {
	if !e.Valid {
		return false
	}
	mask := ^uint64(0) << (uint(e.Level) * e.VpnBits)
	return e.Vpn&mask == vpn&mask
}

// Tlb is a fixed-size direct-mapped translation cache. The slot index
// is vpn mod size. Superpage entries occupy the slot of their own vpn
// but may cover vpns hashing to other slots; invalidation therefore
// sweeps all slots when it must catch over-cached superpages.
type Tlb struct {
	entries []Entry
	size    uint64
	inserts uint64
}

// NewTlb creates a TLB with the given number of slots.
func NewTlb(size uint64) *Tlb {
	if size == 0 {
		panic("mmu: tlb size must be nonzero")
	}
	return &Tlb{entries: make([]Entry, size), size: size}
}

// Lookup returns the entry matching (vpn, asid, vmid, world), or nil.
// Global entries match any ASID.
func (t *Tlb) Lookup(vpn uint64, asid, vmid uint16, world World) *Entry {
	e := &t.entries[vpn%t.size]
	if !e.Valid || !e.Covers(vpn) {
		return nil
	}
	if e.World != world || e.Vmid != vmid {
		return nil
	}
	if !e.Perms.G && e.Asid != asid {
		return nil
	}
	return e
}

// Insert places an entry in its direct-mapped slot, replacing any
// stale occupant.
func (t *Tlb) Insert(e Entry) {
	t.inserts++
	e.Counter = t.inserts
	e.Valid = true
	t.entries[e.Vpn%t.size] = e
}

// InvalidateAll drops every entry in the given world.
func (t *Tlb) InvalidateAll(world World) {
	for i := range t.entries {
		if t.entries[i].World == world {
			t.entries[i].Valid = false
		}
	}
}

// InvalidateAsid drops non-global entries with the given ASID.
func (t *Tlb) InvalidateAsid(asid uint16, world World) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.World == world && !e.Perms.G && e.Asid == asid {
			e.Valid = false
		}
	}
}

// InvalidateVmid drops entries with the given VMID.
func (t *Tlb) InvalidateVmid(vmid uint16, world World) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.World == world && e.Vmid == vmid {
			e.Valid = false
		}
	}
}

// InvalidateVpn drops any entry covering vpn. Superpage entries may
// live in a different slot than vpn's own, so every slot is examined.
func (t *Tlb) InvalidateVpn(vpn uint64, world World) {
	t.invalidateVpnWhere(vpn, world, func(*Entry) bool { return true })
}

// InvalidateVpnAsid drops non-global entries covering vpn with the
// given ASID.
func (t *Tlb) InvalidateVpnAsid(vpn uint64, asid uint16, world World) {
	t.invalidateVpnWhere(vpn, world, func(e *Entry) bool {
		return !e.Perms.G && e.Asid == asid
	})
}

// InvalidateVpnVmid drops entries covering vpn with the given VMID.
func (t *Tlb) InvalidateVpnVmid(vpn uint64, vmid uint16, world World) {
	t.invalidateVpnWhere(vpn, world, func(e *Entry) bool {
		return e.Vmid == vmid
	})
}

// InvalidateVpnAsidVmid drops non-global entries covering vpn that
// match both tags.
func (t *Tlb) InvalidateVpnAsidVmid(vpn uint64, asid, vmid uint16, world World) {
	t.invalidateVpnWhere(vpn, world, func(e *Entry) bool {
		return !e.Perms.G && e.Asid == asid && e.Vmid == vmid
	})
}

func (t *Tlb) invalidateVpnWhere(vpn uint64, world World, match func(*Entry) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid && e.World == world && e.Covers(vpn) && match(e) {
			e.Valid = false
		}
	}
}
