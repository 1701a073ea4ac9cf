// Package devices holds the platform devices the simulator maps into
// the physical address space: the CLINT timer block, a byte console,
// the HTIF tohost port, and a raw framebuffer.
package devices

import (
	"sync/atomic"
)

// CLINT register layout (SiFive convention, offsets from the base).
const (
	clintMsipBase     = 0x0000
	clintMtimecmpBase = 0x4000
	clintMtimeOffset  = 0xBFF8

	// ClintSize is the address window one CLINT occupies. The mapping
	// base must be 64 KiB aligned; offsets are recovered by masking.
	ClintSize = 0xC000

	clintWindowMask = 0xFFFF
)

// IntSink receives the interrupt lines the CLINT drives for one hart.
type IntSink interface {
	SetTimerInterrupt(on bool)
	SetSoftwareInterrupt(on bool)
}

// Clint is the core-local interruptor: one shared mtime counter plus a
// per-hart mtimecmp and msip register. mtime is advanced with a
// compare-and-swap loop so device goroutines and the run loop can tick
// it concurrently.
type Clint struct {
	mtime    atomic.Uint64
	mtimecmp []atomic.Uint64
	msip     []atomic.Uint32
	sinks    []IntSink
}

// NewClint creates a CLINT serving the given number of harts. All
// mtimecmp registers reset to the all-ones pattern so no timer
// interrupt fires before software programs one.
func NewClint(numHarts int) *Clint {
	c := &Clint{
		mtimecmp: make([]atomic.Uint64, numHarts),
		msip:     make([]atomic.Uint32, numHarts),
		sinks:    make([]IntSink, numHarts),
	}
	for i := range c.mtimecmp {
		c.mtimecmp[i].Store(^uint64(0))
	}
	return c
}

// AttachHart wires hart i's interrupt lines.
func (c *Clint) AttachHart(i int, sink IntSink) {
	c.sinks[i] = sink
}

// Mtime returns the current timer value, suitable as a hart TimeSource.
func (c *Clint) Mtime() uint64 { return c.mtime.Load() }

// Tick advances mtime by delta and re-evaluates the interrupt lines.
func (c *Clint) Tick(delta uint64) {
	for {
		old := c.mtime.Load()
		if c.mtime.CompareAndSwap(old, old+delta) {
			break
		}
	}
	c.sync()
}

// sync drives the MTIP and MSIP lines from the current register state.
func (c *Clint) sync() {
	now := c.mtime.Load()
	for i, sink := range c.sinks {
		if sink == nil {
			continue
		}
		sink.SetTimerInterrupt(now >= c.mtimecmp[i].Load())
		sink.SetSoftwareInterrupt(c.msip[i].Load()&1 != 0)
	}
}

// MmioRead services loads in the CLINT window. The offset is relative
// to the mapping base.
func (c *Clint) MmioRead(pa uint64, size int) (uint64, bool) {
	off := pa & clintWindowMask
	switch {
	case off >= clintMtimeOffset && off < clintMtimeOffset+8:
		return sliceReg(c.mtime.Load(), off-clintMtimeOffset, size)
	case off >= clintMtimecmpBase &&
		off < clintMtimecmpBase+uint64(len(c.mtimecmp))*8:
		i := (off - clintMtimecmpBase) / 8
		return sliceReg(c.mtimecmp[i].Load(), off%8, size)
	case off < uint64(len(c.msip))*4:
		i := off / 4
		return sliceReg(uint64(c.msip[i].Load()), off%4, size)
	}
	return 0, false
}

// MmioWrite services stores in the CLINT window.
func (c *Clint) MmioWrite(pa uint64, size int, value uint64) bool {
	off := pa & clintWindowMask
	switch {
	case off >= clintMtimeOffset && off < clintMtimeOffset+8:
		for {
			old := c.mtime.Load()
			next, ok := mergeReg(old, off-clintMtimeOffset, size, value)
			if !ok {
				return false
			}
			if c.mtime.CompareAndSwap(old, next) {
				break
			}
		}
	case off >= clintMtimecmpBase &&
		off < clintMtimecmpBase+uint64(len(c.mtimecmp))*8:
		i := (off - clintMtimecmpBase) / 8
		next, ok := mergeReg(c.mtimecmp[i].Load(), off%8, size, value)
		if !ok {
			return false
		}
		c.mtimecmp[i].Store(next)
	case off < uint64(len(c.msip))*4:
		i := off / 4
		if off%4 != 0 || size > 4 {
			return false
		}
		c.msip[i].Store(uint32(value & 1))
	default:
		return false
	}
	c.sync()
	return true
}

// sliceReg extracts a size-byte little-endian window of a 64-bit
// register at the given byte offset.
func sliceReg(reg, off uint64, size int) (uint64, bool) {
	if off%uint64(size) != 0 || off+uint64(size) > 8 {
		return 0, false
	}
	v := reg >> (off * 8)
	if size < 8 {
		v &= uint64(1)<<(size*8) - 1
	}
	return v, true
}

// mergeReg writes a size-byte window back into a 64-bit register.
func mergeReg(reg, off uint64, size int, value uint64) (uint64, bool) {
	if off%uint64(size) != 0 || off+uint64(size) > 8 {
		return 0, false
	}
	mask := ^uint64(0)
	if size < 8 {
		mask = uint64(1)<<(size*8) - 1
	}
	shift := off * 8
	return reg&^(mask<<shift) | (value&mask)<<shift, true
}
