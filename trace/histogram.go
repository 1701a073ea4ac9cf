package trace

import (
	"fmt"
	"io"
	"sort"

	"github.com/sarchlab/r5sim/hart"
	"github.com/sarchlab/r5sim/insts"
)

// Histogram counts retired instructions per opcode.
type Histogram struct {
	counts [insts.NumOps]uint64
	total  uint64
}

// NewHistogram creates an empty histogram.
func NewHistogram() *Histogram {
	return &Histogram{}
}

func (t *Histogram) OnRetire(h *hart.Hart, inst insts.Instruction,
	pc, nextPc uint64) {
	t.counts[inst.Op]++
	t.total++
}

// Count returns the number of retirements of op.
func (t *Histogram) Count(op insts.Op) uint64 { return t.counts[op] }

// Total returns the number of retirements observed.
func (t *Histogram) Total() uint64 { return t.total }

// Dump writes the nonzero entries in descending count order.
func (t *Histogram) Dump(w io.Writer) {
	type entry struct {
		op    insts.Op
		count uint64
	}
	var entries []entry
	for op, c := range t.counts {
		if c > 0 {
			entries = append(entries, entry{insts.Op(op), c})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].op < entries[j].op
	})
	for _, e := range entries {
		fmt.Fprintf(w, "%-16s %d\n", e.op, e.count)
	}
	fmt.Fprintf(w, "%-16s %d\n", "total", t.total)
}

// TrapStats counts taken traps per cause.
type TrapStats struct {
	counts map[uint64]uint64
}

// NewTrapStats creates an empty trap-stat sink.
func NewTrapStats() *TrapStats {
	return &TrapStats{counts: map[uint64]uint64{}}
}

func (t *TrapStats) OnTrap(h *hart.Hart, cause, epc, target uint64) {
	t.counts[cause]++
}

// Count returns the number of traps with the given xcause value.
func (t *TrapStats) Count(cause uint64) uint64 { return t.counts[cause] }

// Dump writes the per-cause counts, exceptions first.
func (t *TrapStats) Dump(w io.Writer) {
	var causes []uint64
	for c := range t.counts {
		causes = append(causes, c)
	}
	sort.Slice(causes, func(i, j int) bool { return causes[i] < causes[j] })
	for _, c := range causes {
		name := "exception"
		if c>>63 != 0 {
			name = "interrupt"
		}
		fmt.Fprintf(w, "%s %d: %d\n", name, c&^(uint64(1)<<63), t.counts[c])
	}
}
