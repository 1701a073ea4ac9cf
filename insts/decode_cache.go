package insts

// DecodeCache is a direct-mapped cache of decoded instructions keyed
// by physical PC. An entry is valid only while both its physical PC
// and its raw opcode still match, so stale entries self-invalidate on
// lookup and stores to instruction bytes can sweep overlapping slots.
type DecodeCache struct {
	entries []decodeEntry
	mask    uint64
}

type decodeEntry struct {
	physPc uint64
	opcode uint32
	inst   *Instruction
	valid  bool
}

// NewDecodeCache creates a decode cache with the given size, which
// must be a power of two.
func NewDecodeCache(size uint64) *DecodeCache {
	if size == 0 || size&(size-1) != 0 {
		panic("insts: decode cache size must be a power of two")
	}
	return &DecodeCache{
		entries: make([]decodeEntry, size),
		mask:    size - 1,
	}
}

// Size returns the number of slots.
func (c *DecodeCache) Size() uint64 {
	return uint64(len(c.entries))
}

func (c *DecodeCache) index(physPc uint64) uint64 {
	return (physPc >> 1) & c.mask
}

// Lookup returns the cached decode for physPc if the entry matches
// both the address and the raw opcode.
func (c *DecodeCache) Lookup(physPc uint64, opcode uint32) *Instruction {
	e := &c.entries[c.index(physPc)]
	if e.valid && e.physPc == physPc && e.opcode == opcode {
		return e.inst
	}
	return nil
}

// Insert stores a decode result in the direct-mapped slot, replacing
// whatever occupied it.
func (c *DecodeCache) Insert(physPc uint64, opcode uint32, inst *Instruction) {
	c.entries[c.index(physPc)] = decodeEntry{
		physPc: physPc,
		opcode: opcode,
		inst:   inst,
		valid:  true,
	}
}

// InvalidateOverlap invalidates every entry whose instruction bytes
// may overlap a store of size bytes at physical address pa. A cached
// 32-bit instruction beginning up to 3 bytes below pa still overlaps,
// hence the [pa-3, pa+size) window.
func (c *DecodeCache) InvalidateOverlap(pa, size uint64) {
	lo := pa - 3
	if lo > pa { // wrapped below zero
		lo = 0
	}
	for addr := lo; addr < pa+size; addr++ {
		e := &c.entries[c.index(addr)]
		if !e.valid {
			continue
		}
		end := e.physPc + 4
		if e.inst != nil && e.inst.Compressed {
			end = e.physPc + 2
		}
		if e.physPc < pa+size && end > pa {
			e.valid = false
		}
	}
}

// InvalidateAll drops every entry (fence.i, satp change).
func (c *DecodeCache) InvalidateAll() {
	for i := range c.entries {
		c.entries[i].valid = false
	}
}
