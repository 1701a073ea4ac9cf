// Package hart implements the architectural single-hart engine: the
// register files, the CSR bank, the step loop with trap and interrupt
// delivery, and the instruction semantics.
package hart

import (
	"io"
	"sync"

	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/mem"
	"github.com/sarchlab/r5sim/mmu"
)

// Xlen selects the base ISA width.
type Xlen int

// Supported widths.
const (
	Xlen32 Xlen = 32
	Xlen64 Xlen = 64
)

// Reservation is the LR/SC reservation.
type Reservation struct {
	Valid bool
	Addr  uint64
	Size  uint64
}

// RetireListener is notified after every retired instruction.
type RetireListener interface {
	OnRetire(h *Hart, inst insts.Instruction, pc, nextPc uint64)
}

// TimeSource supplies the monotone time value backing the TIME CSR.
type TimeSource func() uint64

// TrapListener is notified after every taken trap. cause carries the
// interrupt bit in its MSB the way xcause does; epc is the trapping
// PC and target the vector the hart redirected to.
type TrapListener interface {
	OnTrap(h *Hart, cause, epc, target uint64)
}

// Hart is one architectural RISC-V hart.
type Hart struct {
	mem     *mem.Memory
	walker  *mmu.Walker
	decoder *insts.Decoder
	dcache  *insts.DecodeCache
	csr     *CsrFile

	xlen     Xlen
	xlenMask uint64
	vlenb    int

	x [32]uint64
	f [32]uint64
	v []byte

	pc     uint64
	currPc uint64
	priv   mem.Priv
	virt   bool

	// Cached status mirrors, re-derived on CSR writes and reset.
	mstatus  uint64
	hstatus  uint64
	vsstatus uint64

	elp        bool
	bigEndian  bool
	nmiPending bool
	nmiCause   uint64

	nmiVector    uint64
	nmiExcVector uint64
	nmiIndexed   bool

	res        Reservation
	timeSource TimeSource
	timeDelta  int64

	instCount    uint64
	retiredInsts uint64
	cycle        uint64

	// Vector configuration state.
	vl    uint64
	vtype uint64

	// Trigger rollback journal: the source-preserving one int and one
	// FP slot.
	lastIntReg   int
	lastIntPrev  uint64
	lastIntValid bool
	lastFpReg    int
	lastFpPrev   uint64
	lastFpValid  bool

	lastMem        MemAccess
	lastFetchPa    uint64
	lastFetchPa2   uint64
	lastFetchCross bool
	lastFetchWalks []mmu.WalkStep
	lastDataWalks  []mmu.WalkStep
	lastVecAddrs   []uint64
	lastVecSize    int

	triggers  *TriggerFile
	debugMode bool

	// Per-step trap latch set by semantic handlers.
	trapPending bool
	trapCause   uint64
	trapIsInt   bool
	trapVal     uint64
	trapVal2    uint64
	trapInst    uint64

	stopEvent *StopEvent

	userStop      func() bool
	listeners     []RetireListener
	trapListeners []TrapListener
	logw          io.Writer

	seiPin bool

	// AtomicMu serializes LR/SC/AMO/CBO regions across harts sharing
	// the memory.
	atomicMu *sync.Mutex

	consoleInVa  uint64
	hasConsoleIn bool
	consoleIn    func() (byte, bool)

	numIllegal  uint64
	illegalStop uint64

	misaExt uint64
}

// Option configures a Hart.
type Option func(*Hart)

// WithXlen selects RV32 or RV64.
func WithXlen(x Xlen) Option {
	return func(h *Hart) { h.xlen = x }
}

// WithVlenBytes sets the vector register width in bytes.
func WithVlenBytes(n int) Option {
	return func(h *Hart) { h.vlenb = n }
}

// WithMisa overrides the reset extension set (the low 26 MISA bits).
// Extension gating on CSR presence is re-run from this value.
func WithMisa(ext uint64) Option {
	return func(h *Hart) { h.misaExt = ext }
}

// WithTimeSource installs the TIME CSR backing.
func WithTimeSource(ts TimeSource) Option {
	return func(h *Hart) { h.timeSource = ts }
}

// WithUserStop installs the flag polled between instructions.
func WithUserStop(f func() bool) Option {
	return func(h *Hart) { h.userStop = f }
}

// WithLog directs diagnostic output.
func WithLog(w io.Writer) Option {
	return func(h *Hart) { h.logw = w }
}

// WithConsoleIn maps a virtual address to a non-blocking input byte
// source.
func WithConsoleIn(va uint64, read func() (byte, bool)) Option {
	return func(h *Hart) {
		h.consoleInVa = va
		h.hasConsoleIn = true
		h.consoleIn = read
	}
}

// WithNmiVectors sets the NMI entry point and the masked-exception
// redirect target; indexed adds 4*cause to the latter.
func WithNmiVectors(nmiPc, excPc uint64, indexed bool) Option {
	return func(h *Hart) {
		h.nmiVector = nmiPc
		h.nmiExcVector = excPc
		h.nmiIndexed = indexed
	}
}

// WithIllegalLimit stops the run after n illegal instructions.
func WithIllegalLimit(n uint64) Option {
	return func(h *Hart) { h.illegalStop = n }
}

// WithDecodeCacheSize sets the decode cache slot count (power of two).
func WithDecodeCacheSize(n uint64) Option {
	return func(h *Hart) { h.dcache = insts.NewDecodeCache(n) }
}

// NewHart creates a hart over the given physical memory.
func NewHart(m *mem.Memory, opts ...Option) *Hart {
	h := &Hart{
		mem:      m,
		xlen:     Xlen64,
		vlenb:    16,
		csr:      NewCsrFile(),
		atomicMu: &m.AtomicMu,
		logw:     io.Discard,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.xlenMask = ^uint64(0)
	if h.xlen == Xlen32 {
		h.xlenMask = 0xFFFF_FFFF
	}
	h.walker = mmu.NewWalker(m)
	h.decoder = insts.NewDecoder(h.xlen == Xlen64)
	if h.dcache == nil {
		h.dcache = insts.NewDecodeCache(4096)
	}
	h.v = make([]byte, 32*h.vlenb)
	h.triggers = NewTriggerFile()
	h.defineCsrs()
	h.Reset()
	m.WatchStores(h)
	return h
}

// Mem returns the physical memory behind this hart.
func (h *Hart) Mem() *mem.Memory { return h.mem }

// Xlen returns the register width the hart was built with.
func (h *Hart) Xlen() Xlen { return h.xlen }

// Walker returns the hart's translator.
func (h *Hart) Walker() *mmu.Walker { return h.walker }

// Csrs returns the CSR bank.
func (h *Hart) Csrs() *CsrFile { return h.csr }

// Pc returns the next-fetch program counter.
func (h *Hart) Pc() uint64 { return h.pc }

// SetPc sets the next-fetch program counter.
func (h *Hart) SetPc(pc uint64) { h.pc = pc & h.xlenMask &^ 1 }

// CurrPc returns the PC of the most recently executed instruction.
func (h *Hart) CurrPc() uint64 { return h.currPc }

// Priv returns the current privilege mode.
func (h *Hart) Priv() mem.Priv { return h.priv }

// Virt reports whether the hart runs in virtual (guest) mode.
func (h *Hart) Virt() bool { return h.virt }

// InstCount returns the number of step attempts (including trapped
// ones).
func (h *Hart) InstCount() uint64 { return h.instCount }

// RetiredInsts returns the number of successfully retired
// instructions.
func (h *Hart) RetiredInsts() uint64 { return h.retiredInsts }

// AddRetireListener registers a trace sink.
func (h *Hart) AddRetireListener(l RetireListener) {
	h.listeners = append(h.listeners, l)
}

// AddTrapListener registers a trap-entry sink.
func (h *Hart) AddTrapListener(l TrapListener) {
	h.trapListeners = append(h.trapListeners, l)
}

// IntReg reads integer register i.
func (h *Hart) IntReg(i int) uint64 {
	return h.x[i] & h.xlenMask
}

// SetIntReg writes integer register i, journaling the prior value for
// trigger rollback. Writes to x0 are discarded.
func (h *Hart) SetIntReg(i int, v uint64) {
	if i == 0 {
		return
	}
	h.lastIntReg = i
	h.lastIntPrev = h.x[i]
	h.lastIntValid = true
	h.x[i] = v & h.xlenMask
}

// FpReg reads the raw bits of FP register i.
func (h *Hart) FpReg(i int) uint64 { return h.f[i] }

// SetFpReg writes FP register i and journals the prior value.
func (h *Hart) SetFpReg(i int, v uint64) {
	h.lastFpReg = i
	h.lastFpPrev = h.f[i]
	h.lastFpValid = true
	h.f[i] = v
	h.setFsDirty()
}

// VecReg returns a copy of vector register i.
func (h *Hart) VecReg(i int) []byte {
	out := make([]byte, h.vlenb)
	copy(out, h.v[i*h.vlenb:(i+1)*h.vlenb])
	return out
}

// SetVecReg overwrites vector register i.
func (h *Hart) SetVecReg(i int, data []byte) {
	copy(h.v[i*h.vlenb:(i+1)*h.vlenb], data)
}

// Vlenb returns the vector register width in bytes.
func (h *Hart) Vlenb() int { return h.vlenb }

// Reservation returns the current LR/SC reservation.
func (h *Hart) Reservation() Reservation { return h.res }

// ClearReservation drops the reservation.
func (h *Hart) ClearReservation() { h.res.Valid = false }

// OnStore implements mem.StoreWatcher: stores from any hart sharing
// the memory kill overlapping reservations and stale decode-cache
// entries.
func (h *Hart) OnStore(pa, size uint64) {
	if h.res.Valid && pa < h.res.Addr+h.res.Size && h.res.Addr < pa+size {
		h.res.Valid = false
	}
	h.dcache.InvalidateOverlap(pa, size)
}

// SetSeiPin drives the external supervisor interrupt pin.
func (h *Hart) SetSeiPin(v bool) { h.seiPin = v }

// LastIntWrite reports the integer register written by the current
// instruction, if any. Trace sinks consult it during OnRetire.
func (h *Hart) LastIntWrite() (reg int, ok bool) {
	return h.lastIntReg, h.lastIntValid
}

// LastFpWrite reports the FP register written by the current
// instruction, if any.
func (h *Hart) LastFpWrite() (reg int, ok bool) {
	return h.lastFpReg, h.lastFpValid
}

// MemAccess describes the data access performed by the most recent
// instruction, with both its virtual and translated address.
type MemAccess struct {
	Va    uint64
	Pa    uint64
	Size  int
	Store bool
	Valid bool
}

// LastMemAccess reports the data access of the current instruction, if
// any. Trace sinks consult it during OnRetire.
func (h *Hart) LastMemAccess() MemAccess { return h.lastMem }

// LastFetchPa returns the translated physical address of the most
// recent instruction fetch.
func (h *Hart) LastFetchPa() uint64 { return h.lastFetchPa }

// LastFetchPa2 returns the physical address of the second half of the
// current fetch when it crossed a page boundary.
func (h *Hart) LastFetchPa2() (uint64, bool) {
	return h.lastFetchPa2, h.lastFetchCross
}

// LastFetchWalks returns the page-walk steps taken to translate the
// current fetch, empty under bare translation.
func (h *Hart) LastFetchWalks() []mmu.WalkStep { return h.lastFetchWalks }

// LastDataWalks returns the page-walk steps taken by the current
// instruction's data accesses.
func (h *Hart) LastDataWalks() []mmu.WalkStep { return h.lastDataWalks }

// LastVecAccesses returns the per-element virtual addresses and the
// element size of the current vector load or store.
func (h *Hart) LastVecAccesses() ([]uint64, int) {
	return h.lastVecAddrs, h.lastVecSize
}

// PostNmi latches a non-maskable interrupt with the given cause.
func (h *Hart) PostNmi(cause uint64) {
	h.nmiPending = true
	h.nmiCause = cause
}

func (h *Hart) rv64() bool { return h.xlen == Xlen64 }

func (h *Hart) setFsDirty() {
	h.mstatus |= MstatusFs | MstatusSd
	h.csr.SetRaw(CsrMstatus, h.mstatus)
	if h.virt {
		h.vsstatus |= MstatusFs | MstatusSd
		h.csr.SetRaw(CsrVsstatus, h.vsstatus)
	}
}

func (h *Hart) fpEnabled() bool {
	if h.csr.Raw(CsrMisa)&(MisaF) == 0 {
		return false
	}
	if h.mstatus&MstatusFs == 0 {
		return false
	}
	if h.virt && h.vsstatus&MstatusFs == 0 {
		return false
	}
	return true
}

func (h *Hart) vecEnabled() bool {
	if h.csr.Raw(CsrMisa)&MisaV == 0 {
		return false
	}
	return h.mstatus&MstatusVs != 0
}

// Time returns the TIME CSR view (shared source plus htimedelta when
// virtualized).
func (h *Hart) Time() uint64 {
	var t uint64
	if h.timeSource != nil {
		t = h.timeSource()
	} else {
		t = h.cycle
	}
	t = uint64(int64(t) + h.timeDelta)
	if h.virt {
		t += h.csr.Raw(CsrHtimedelta)
	}
	return t
}

// AdjustTime shifts the hart's local time view (Perf-API skew).
func (h *Hart) AdjustTime(delta int64) { h.timeDelta += delta }
