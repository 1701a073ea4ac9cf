package hart

// Trigger actions.
const (
	triggerActionEbreak = 0
	triggerActionDebug  = 1
)

// trigger types encoded in TDATA1's top nibble.
const (
	triggerMcontrol  = 2
	triggerIcount    = 3
	triggerItrigger  = 4
	triggerEtrigger  = 5
	triggerMcontrol6 = 6
)

// numTriggers is the TSELECT range.
const numTriggers = 4

// Trigger is one hardware trigger's TDATA registers.
type Trigger struct {
	Data1 uint64
	Data2 uint64
	Data3 uint64
}

func (t *Trigger) kind() int {
	return int(t.Data1 >> 60)
}

func (t *Trigger) action() int {
	if t.Data1>>12&0xF == 1 {
		return triggerActionDebug
	}
	return triggerActionEbreak
}

// TriggerFile holds the hart's triggers and the TSELECT cursor.
type TriggerFile struct {
	triggers [numTriggers]Trigger
	sel      int
}

// NewTriggerFile returns an empty trigger file.
func NewTriggerFile() *TriggerFile {
	return &TriggerFile{}
}

// Reset clears all triggers.
func (t *TriggerFile) Reset() {
	*t = TriggerFile{}
}

// SyncFromCsrs pulls the TSELECT/TDATA values written to the CSR bank
// into the selected trigger, and pushes the selected trigger's values
// back so reads observe per-trigger state.
func (t *TriggerFile) SyncFromCsrs(c *CsrFile) {
	sel := c.Raw(CsrTselect)
	if sel >= numTriggers {
		sel = numTriggers - 1
		c.SetRaw(CsrTselect, sel)
	}
	if int(sel) != t.sel {
		t.sel = int(sel)
		c.SetRaw(CsrTdata1, t.triggers[t.sel].Data1)
		c.SetRaw(CsrTdata2, t.triggers[t.sel].Data2)
		c.SetRaw(CsrTdata3, t.triggers[t.sel].Data3)
		return
	}
	t.triggers[t.sel].Data1 = c.Raw(CsrTdata1)
	t.triggers[t.sel].Data2 = c.Raw(CsrTdata2)
	t.triggers[t.sel].Data3 = c.Raw(CsrTdata3)
}

// mcontrolHit checks one address/data trigger. sel chooses the
// compare source bit (0 = address, 1 = data/opcode), opBit the
// execute/store/load enable bit.
func (tr *Trigger) mcontrolHit(value uint64, selBit bool, opBit uint64) bool {
	k := tr.kind()
	if k != triggerMcontrol && k != triggerMcontrol6 {
		return false
	}
	if tr.Data1&opBit == 0 {
		return false
	}
	wantSel := tr.Data1>>21&1 == 1
	if wantSel != selBit {
		return false
	}
	// Equality match only (match field 0).
	if tr.Data1>>7&0xF != 0 {
		return false
	}
	return value == tr.Data2
}

func (t *TriggerFile) scan(f func(*Trigger) bool) (bool, int) {
	for i := range t.triggers {
		if f(&t.triggers[i]) {
			return true, t.triggers[i].action()
		}
	}
	return false, 0
}

// CheckInstAddr fires Before-timing instruction-address triggers.
func (t *TriggerFile) CheckInstAddr(pc uint64) (bool, int) {
	return t.scan(func(tr *Trigger) bool {
		return tr.mcontrolHit(pc, false, 1<<2)
	})
}

// CheckInstOpcode fires instruction-opcode triggers.
func (t *TriggerFile) CheckInstOpcode(op uint64) (bool, int) {
	return t.scan(func(tr *Trigger) bool {
		return tr.mcontrolHit(op, true, 1<<2)
	})
}

// CheckLoadAddr fires load-address triggers.
func (t *TriggerFile) CheckLoadAddr(addr uint64) (bool, int) {
	return t.scan(func(tr *Trigger) bool {
		return tr.mcontrolHit(addr, false, 1<<0)
	})
}

// CheckStoreAddr fires store-address triggers.
func (t *TriggerFile) CheckStoreAddr(addr uint64) (bool, int) {
	return t.scan(func(tr *Trigger) bool {
		return tr.mcontrolHit(addr, false, 1<<1)
	})
}

// CheckStoreData fires store-data triggers.
func (t *TriggerFile) CheckStoreData(data uint64) (bool, int) {
	return t.scan(func(tr *Trigger) bool {
		return tr.mcontrolHit(data, true, 1<<1)
	})
}

// TickIcount decrements armed icount triggers and reports a fire when
// one reaches zero. The count lives in TDATA1 bits 10..23.
func (t *TriggerFile) TickIcount() (bool, int) {
	for i := range t.triggers {
		tr := &t.triggers[i]
		if tr.kind() != triggerIcount {
			continue
		}
		count := tr.Data1 >> 10 & 0x3FFF
		if count == 0 {
			continue
		}
		count--
		tr.Data1 = tr.Data1&^(uint64(0x3FFF)<<10) | count<<10
		if count == 0 {
			return true, tr.action()
		}
	}
	return false, 0
}

// CheckEtrigger fires exception triggers whose TDATA2 bit for the
// cause is set.
func (t *TriggerFile) CheckEtrigger(cause uint64) (bool, int) {
	return t.scan(func(tr *Trigger) bool {
		return tr.kind() == triggerEtrigger && cause < 64 &&
			tr.Data2>>cause&1 == 1
	})
}

// CheckItrigger fires interrupt triggers the same way.
func (t *TriggerFile) CheckItrigger(cause uint64) (bool, int) {
	return t.scan(func(tr *Trigger) bool {
		return tr.kind() == triggerItrigger && cause < 64 &&
			tr.Data2>>cause&1 == 1
	})
}
