package hart

// CSR addresses used by the engine. Names follow the privileged spec.
const (
	CsrFflags   = 0x001
	CsrFrm      = 0x002
	CsrFcsr     = 0x003
	CsrVstart   = 0x008
	CsrVxsat    = 0x009
	CsrVxrm     = 0x00A
	CsrVcsr     = 0x00F
	CsrSeed     = 0x015
	CsrCycle    = 0xC00
	CsrTime     = 0xC01
	CsrInstret  = 0xC02
	CsrCycleH   = 0xC80
	CsrTimeH    = 0xC81
	CsrInstretH = 0xC82
	CsrVl       = 0xC20
	CsrVtype    = 0xC21
	CsrVlenb    = 0xC22

	CsrSstatus    = 0x100
	CsrSie        = 0x104
	CsrStvec      = 0x105
	CsrScounteren = 0x106
	CsrSenvcfg    = 0x10A
	CsrSscratch   = 0x140
	CsrSepc       = 0x141
	CsrScause     = 0x142
	CsrStval      = 0x143
	CsrSip        = 0x144
	CsrStimecmp   = 0x14D
	CsrSatp       = 0x180

	CsrHstatus    = 0x600
	CsrHedeleg    = 0x602
	CsrHideleg    = 0x603
	CsrHie        = 0x604
	CsrHtimedelta = 0x605
	CsrHcounteren = 0x606
	CsrHgeie      = 0x607
	CsrHenvcfg    = 0x60A
	CsrHtval      = 0x643
	CsrHip        = 0x644
	CsrHvip       = 0x645
	CsrHtinst     = 0x64A
	CsrHgatp      = 0x680
	CsrHgeip      = 0xE12

	CsrHvictl = 0x609

	CsrVsstatus  = 0x200
	CsrVsie      = 0x204
	CsrVstvec    = 0x205
	CsrVsscratch = 0x240
	CsrVsepc     = 0x241
	CsrVscause   = 0x242
	CsrVstval    = 0x243
	CsrVsip      = 0x244
	CsrVstimecmp = 0x24D
	CsrVsatp     = 0x280

	CsrMvendorid = 0xF11
	CsrMarchid   = 0xF12
	CsrMimpid    = 0xF13
	CsrMhartid   = 0xF14

	CsrMstatus       = 0x300
	CsrMisa          = 0x301
	CsrMedeleg       = 0x302
	CsrMideleg       = 0x303
	CsrMie           = 0x304
	CsrMtvec         = 0x305
	CsrMcounteren    = 0x306
	CsrMstatusH      = 0x310
	CsrMvien         = 0x308
	CsrMvip          = 0x309
	CsrMcountinhibit = 0x320
	CsrMscratch      = 0x340
	CsrMepc          = 0x341
	CsrMcause        = 0x342
	CsrMtval         = 0x343
	CsrMip           = 0x344
	CsrMtinst        = 0x34A
	CsrMtval2        = 0x34B
	CsrMenvcfg       = 0x30A
	CsrMenvcfgH      = 0x31A
	CsrMseccfg       = 0x747

	CsrPmpcfg0  = 0x3A0
	CsrPmpaddr0 = 0x3B0

	CsrMcycle    = 0xB00
	CsrMinstret  = 0xB02
	CsrMcycleH   = 0xB80
	CsrMinstretH = 0xB82

	CsrTselect = 0x7A0
	CsrTdata1  = 0x7A1
	CsrTdata2  = 0x7A2
	CsrTdata3  = 0x7A3
	CsrTinfo   = 0x7A4

	CsrDcsr      = 0x7B0
	CsrDpc       = 0x7B1
	CsrDscratch0 = 0x7B2
	CsrDscratch1 = 0x7B3

	CsrMnscratch = 0x740
	CsrMnepc     = 0x741
	CsrMncause   = 0x742
	CsrMnstatus  = 0x744
)

// MSTATUS field bits shared by mstatus/sstatus/vsstatus views.
const (
	MstatusSie  uint64 = 1 << 1
	MstatusMie  uint64 = 1 << 3
	MstatusSpie uint64 = 1 << 5
	MstatusUbe  uint64 = 1 << 6
	MstatusMpie uint64 = 1 << 7
	MstatusSpp  uint64 = 1 << 8
	MstatusMpp  uint64 = 3 << 11
	MstatusFs   uint64 = 3 << 13
	MstatusXs   uint64 = 3 << 15
	MstatusMprv uint64 = 1 << 17
	MstatusSum  uint64 = 1 << 18
	MstatusMxr  uint64 = 1 << 19
	MstatusTvm  uint64 = 1 << 20
	MstatusTw   uint64 = 1 << 21
	MstatusTsr  uint64 = 1 << 22
	MstatusVs   uint64 = 3 << 9
	MstatusSd   uint64 = 1 << 63

	MstatusGva uint64 = 1 << 38
	MstatusMpv uint64 = 1 << 39
	MstatusMbe uint64 = 1 << 37
	MstatusSbe uint64 = 1 << 36
)

// HSTATUS fields.
const (
	HstatusVsbe uint64 = 1 << 5
	HstatusGva  uint64 = 1 << 6
	HstatusSpv  uint64 = 1 << 7
	HstatusSpvp uint64 = 1 << 8
	HstatusHu   uint64 = 1 << 9
	HstatusVtvm uint64 = 1 << 20
	HstatusVtw  uint64 = 1 << 21
	HstatusVtsr uint64 = 1 << 22
)

// MIP interrupt bits.
const (
	IpSsip uint64 = 1 << 1
	IpVsip uint64 = 1 << 2
	IpMsip uint64 = 1 << 3
	IpStip uint64 = 1 << 5
	IpVstp uint64 = 1 << 6
	IpMtip uint64 = 1 << 7
	IpSeip uint64 = 1 << 9
	IpVsep uint64 = 1 << 10
	IpMeip uint64 = 1 << 11
	IpSgei uint64 = 1 << 12
)

// MENVCFG / SENVCFG enable bits.
const (
	EnvcfgFiom  uint64 = 1 << 0
	EnvcfgCbie  uint64 = 3 << 4
	EnvcfgCbcfe uint64 = 1 << 6
	EnvcfgCbze  uint64 = 1 << 7
	EnvcfgPbmte uint64 = 1 << 62
	EnvcfgStce  uint64 = 1 << 63
)

// MISA extension bits.
const (
	MisaA uint64 = 1 << 0
	MisaB uint64 = 1 << 1
	MisaC uint64 = 1 << 2
	MisaD uint64 = 1 << 3
	MisaE uint64 = 1 << 4
	MisaF uint64 = 1 << 5
	MisaH uint64 = 1 << 7
	MisaI uint64 = 1 << 8
	MisaM uint64 = 1 << 12
	MisaS uint64 = 1 << 18
	MisaU uint64 = 1 << 20
	MisaV uint64 = 1 << 21
)

// Csr is one CSR's backing storage and its access masks. Writes from
// executing code are filtered by WriteMask; host-side pokes by
// PokeMask; reads by ReadMask.
type Csr struct {
	Value       uint64
	Reset       uint64
	WriteMask   uint64
	PokeMask    uint64
	ReadMask    uint64
	Implemented bool
}

// CsrWrite records one CSR modification made during an instruction.
type CsrWrite struct {
	Addr uint16
	Prev uint64
	Next uint64
}

// CsrFile is the hart's CSR bank. Special registers whose value is
// derived (TIME, MIP aliases, counters, FCSR halves) are routed
// through the owning Hart's read/write hooks rather than stored here.
type CsrFile struct {
	regs [4096]Csr

	// writes is the per-instruction changed-CSR list, cleared at the
	// start of each step.
	writes []CsrWrite
}

// NewCsrFile returns an empty bank; the Hart defines and resets the
// registers it implements.
func NewCsrFile() *CsrFile {
	return &CsrFile{}
}

// Define installs a CSR with its reset value and masks.
func (c *CsrFile) Define(addr uint16, reset, writeMask, pokeMask uint64) {
	c.regs[addr] = Csr{
		Value:       reset,
		Reset:       reset,
		WriteMask:   writeMask,
		PokeMask:    pokeMask,
		ReadMask:    ^uint64(0),
		Implemented: true,
	}
}

// Undefine removes a CSR (extension gating on reset).
func (c *CsrFile) Undefine(addr uint16) {
	c.regs[addr] = Csr{}
}

// Implemented reports whether addr exists in this bank.
func (c *CsrFile) Implemented(addr uint16) bool {
	return c.regs[addr].Implemented
}

// Reset restores every implemented CSR to its reset value.
func (c *CsrFile) Reset() {
	for i := range c.regs {
		if c.regs[i].Implemented {
			c.regs[i].Value = c.regs[i].Reset
		}
	}
	c.writes = c.writes[:0]
}

// Raw returns the backing value without mask filtering.
func (c *CsrFile) Raw(addr uint16) uint64 {
	return c.regs[addr].Value
}

// SetRaw stores a value bypassing all masks. Changes still land in
// the per-instruction changed-CSR list so trap-entry and return
// sequences can be undone by a host.
func (c *CsrFile) SetRaw(addr uint16, v uint64) {
	prev := c.regs[addr].Value
	if prev != v {
		c.writes = append(c.writes, CsrWrite{Addr: addr, Prev: prev, Next: v})
	}
	c.regs[addr].Value = v
}

// Read returns the masked value of an implemented CSR.
func (c *CsrFile) Read(addr uint16) (uint64, bool) {
	r := &c.regs[addr]
	if !r.Implemented {
		return 0, false
	}
	return r.Value & r.ReadMask, true
}

// Write applies the write mask and records the change.
func (c *CsrFile) Write(addr uint16, v uint64) bool {
	r := &c.regs[addr]
	if !r.Implemented {
		return false
	}
	prev := r.Value
	r.Value = r.Value&^r.WriteMask | v&r.WriteMask
	c.writes = append(c.writes, CsrWrite{Addr: addr, Prev: prev, Next: r.Value})
	return true
}

// Poke applies the poke mask without privilege checks or recording.
func (c *CsrFile) Poke(addr uint16, v uint64) bool {
	r := &c.regs[addr]
	if !r.Implemented {
		return false
	}
	r.Value = r.Value&^r.PokeMask | v&r.PokeMask
	return true
}

// SetWriteMask changes a CSR's write mask (extension gating).
func (c *CsrFile) SetWriteMask(addr uint16, mask uint64) {
	c.regs[addr].WriteMask = mask
}

// WriteMask returns a CSR's write mask.
func (c *CsrFile) WriteMask(addr uint16) uint64 {
	return c.regs[addr].WriteMask
}

// BeginInstruction clears the changed-CSR list.
func (c *CsrFile) BeginInstruction() {
	c.writes = c.writes[:0]
}

// Writes returns the CSR changes made since BeginInstruction.
func (c *CsrFile) Writes() []CsrWrite {
	return c.writes
}

// UndoWrites reverts the recorded changes in reverse order.
func (c *CsrFile) UndoWrites() {
	for i := len(c.writes) - 1; i >= 0; i-- {
		c.regs[c.writes[i].Addr].Value = c.writes[i].Prev
	}
	c.writes = c.writes[:0]
}
