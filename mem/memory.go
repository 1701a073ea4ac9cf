// Package mem provides the physical memory subsystem: sparse backing
// storage, PMP/PMA access gating, and MMIO range routing. The hart and
// the translator reach physical memory only through this package.
package mem

import (
	"encoding/binary"
	"sync"
)

// Priv is a RISC-V privilege mode.
type Priv uint8

// Privilege modes.
const (
	PrivU Priv = 0
	PrivS Priv = 1
	PrivM Priv = 3
)

// PageSize is the backing-store allocation granule.
const PageSize = 4096

// MmioHandler services loads and stores to a device address range.
// Size is 1, 2, 4 or 8 bytes.
type MmioHandler interface {
	MmioRead(pa uint64, size int) (uint64, bool)
	MmioWrite(pa uint64, size int, value uint64) bool
}

type mmioRange struct {
	base    uint64
	size    uint64
	handler MmioHandler
}

// StoreWatcher observes every store to physical memory. Watchers run
// before the bytes land so they may still read the old contents of
// the range. Harts register one to invalidate LR reservations and
// decode-cache entries that overlap stores from any hart.
type StoreWatcher interface {
	OnStore(pa uint64, size uint64)
}

// Memory is the shared physical memory. It is sparse: pages are
// allocated on first touch. Out-of-range is modeled by a configurable
// limit; accesses beyond it fail.
type Memory struct {
	pages map[uint64]*[PageSize]byte
	limit uint64

	mmio     []mmioRange
	watchers []StoreWatcher

	pmp *Pmp
	pma *Pma

	// AtomicMu serializes LR/SC/AMO/CBO windows across harts.
	AtomicMu sync.Mutex
}

// MemoryOption configures a Memory.
type MemoryOption func(*Memory)

// WithLimit caps the physical address space at limit bytes.
func WithLimit(limit uint64) MemoryOption {
	return func(m *Memory) {
		m.limit = limit
	}
}

// NewMemory creates an empty sparse memory with a 4 GiB default limit.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		pages: make(map[uint64]*[PageSize]byte),
		limit: 1 << 32,
		pmp:   NewPmp(),
		pma:   NewPma(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Pmp returns the PMP unit so the hart can reprogram it from CSRs.
func (m *Memory) Pmp() *Pmp { return m.pmp }

// Pma returns the PMA unit.
func (m *Memory) Pma() *Pma { return m.pma }

// Limit returns the physical address space size.
func (m *Memory) Limit() uint64 { return m.limit }

// MapMmio routes [base, base+size) to the given device handler.
func (m *Memory) MapMmio(base, size uint64, h MmioHandler) {
	m.mmio = append(m.mmio, mmioRange{base: base, size: size, handler: h})
}

// IsMmio reports whether pa falls in a mapped device range.
func (m *Memory) IsMmio(pa uint64) bool {
	return m.findMmio(pa) != nil
}

func (m *Memory) findMmio(pa uint64) MmioHandler {
	for _, r := range m.mmio {
		if pa >= r.base && pa < r.base+r.size {
			return r.handler
		}
	}
	return nil
}

// WatchStores registers a store watcher.
func (m *Memory) WatchStores(w StoreWatcher) {
	m.watchers = append(m.watchers, w)
}

func (m *Memory) notifyStore(pa, size uint64) {
	for _, w := range m.watchers {
		w.OnStore(pa, size)
	}
}

func (m *Memory) page(pa uint64, alloc bool) *[PageSize]byte {
	idx := pa / PageSize
	p := m.pages[idx]
	if p == nil && alloc {
		p = new([PageSize]byte)
		m.pages[idx] = p
	}
	return p
}

// ReadBytes copies size bytes at pa into a fresh slice. It fails when
// any byte is out of range. MMIO ranges are not consulted.
func (m *Memory) ReadBytes(pa, size uint64) ([]byte, bool) {
	if pa+size < pa || pa+size > m.limit {
		return nil, false
	}
	out := make([]byte, size)
	for i := uint64(0); i < size; {
		p := m.page(pa+i, false)
		off := (pa + i) % PageSize
		n := PageSize - off
		if n > size-i {
			n = size - i
		}
		if p != nil {
			copy(out[i:i+n], p[off:off+n])
		}
		i += n
	}
	return out, true
}

// WriteBytes stores the slice at pa. Store watchers are notified
// before the bytes land, so a watcher can still observe the old
// contents of the range.
func (m *Memory) WriteBytes(pa uint64, data []byte) bool {
	size := uint64(len(data))
	if pa+size < pa || pa+size > m.limit {
		return false
	}
	m.notifyStore(pa, size)
	for i := uint64(0); i < size; {
		p := m.page(pa+i, true)
		off := (pa + i) % PageSize
		n := PageSize - off
		if n > size-i {
			n = size - i
		}
		copy(p[off:off+n], data[i:i+n])
		i += n
	}
	return true
}

// Read reads a size-byte value (1/2/4/8) at pa. MMIO ranges route to
// their device handler; be selects big-endian byte order for RAM.
func (m *Memory) Read(pa uint64, size int, be bool) (uint64, bool) {
	if h := m.findMmio(pa); h != nil {
		return h.MmioRead(pa, size)
	}
	buf, ok := m.ReadBytes(pa, uint64(size))
	if !ok {
		return 0, false
	}
	return decode(buf, be), true
}

// Write stores a size-byte value (1/2/4/8) at pa.
func (m *Memory) Write(pa uint64, size int, value uint64, be bool) bool {
	if h := m.findMmio(pa); h != nil {
		ok := h.MmioWrite(pa, size, value)
		if ok {
			m.notifyStore(pa, uint64(size))
		}
		return ok
	}
	buf := make([]byte, size)
	encode(buf, value, be)
	return m.WriteBytes(pa, buf)
}

func decode(buf []byte, be bool) uint64 {
	var v uint64
	if be {
		for _, b := range buf {
			v = v<<8 | uint64(b)
		}
		return v
	}
	switch len(buf) {
	case 1:
		v = uint64(buf[0])
	case 2:
		v = uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		v = uint64(binary.LittleEndian.Uint32(buf))
	default:
		v = binary.LittleEndian.Uint64(buf)
	}
	return v
}

func encode(buf []byte, v uint64, be bool) {
	if be {
		for i := len(buf) - 1; i >= 0; i-- {
			buf[i] = byte(v)
			v >>= 8
		}
		return
	}
	switch len(buf) {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	default:
		binary.LittleEndian.PutUint64(buf, v)
	}
}

// IsReadable reports whether a load of size bytes at pa is allowed by
// PMP and PMA for the given privilege.
func (m *Memory) IsReadable(pa, size uint64, pm Priv) bool {
	if pa+size < pa || pa+size > m.limit {
		return false
	}
	return m.pma.Readable(pa, size) && m.pmp.Check(pa, size, pm, PmpRead)
}

// IsWritable reports whether a store of size bytes at pa is allowed.
func (m *Memory) IsWritable(pa, size uint64, pm Priv) bool {
	if pa+size < pa || pa+size > m.limit {
		return false
	}
	return m.pma.Writable(pa, size) && m.pmp.Check(pa, size, pm, PmpWrite)
}

// IsExecutable reports whether a fetch of size bytes at pa is allowed.
func (m *Memory) IsExecutable(pa, size uint64, pm Priv) bool {
	if pa+size < pa || pa+size > m.limit {
		return false
	}
	return m.pma.Executable(pa, size) && m.pmp.Check(pa, size, pm, PmpExec)
}

// LoadImage copies a program image into memory without store
// notifications (used by loaders before any hart runs).
func (m *Memory) LoadImage(pa uint64, data []byte) bool {
	size := uint64(len(data))
	if pa+size < pa || pa+size > m.limit {
		return false
	}
	for i := uint64(0); i < size; {
		p := m.page(pa+i, true)
		off := (pa + i) % PageSize
		n := PageSize - off
		if n > size-i {
			n = size - i
		}
		copy(p[off:off+n], data[i:i+n])
		i += n
	}
	return true
}
