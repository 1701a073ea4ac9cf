package trace

import (
	"fmt"
	"io"

	"github.com/sarchlab/r5sim/hart"
	"github.com/sarchlab/r5sim/insts"
)

// BranchTracer emits one record per control-flow event:
//
//	{kind} {pc} {nextPc} {size}
//
// with kind one of t (taken branch), n (not-taken branch), j (direct
// jump), c (call), r (return), k (coroutine swap), i (other indirect
// jump), x (trap return) and e (trap entry). Calls, returns and swaps
// follow the JALR link-register convention: rd and rs1 in {x1, x5}
// select the role.
type BranchTracer struct {
	w io.Writer
}

// NewBranchTracer creates a branch tracer writing to w.
func NewBranchTracer(w io.Writer) *BranchTracer {
	return &BranchTracer{w: w}
}

func isLink(reg uint8) bool { return reg == 1 || reg == 5 }

func (t *BranchTracer) OnRetire(h *hart.Hart, inst insts.Instruction,
	pc, nextPc uint64) {
	var kind byte
	switch {
	case inst.Op >= insts.OpBEQ && inst.Op <= insts.OpBGEU:
		kind = 'n'
		if nextPc != pc+uint64(inst.Size()) {
			kind = 't'
		}
	case inst.Op == insts.OpJAL:
		kind = 'j'
		if isLink(inst.Rd) {
			kind = 'c'
		}
	case inst.Op == insts.OpJALR:
		switch {
		case isLink(inst.Rd) && isLink(inst.Rs1) && inst.Rd != inst.Rs1:
			kind = 'k'
		case isLink(inst.Rd):
			kind = 'c'
		case isLink(inst.Rs1):
			kind = 'r'
		default:
			kind = 'i'
		}
	case inst.Op == insts.OpMRET || inst.Op == insts.OpSRET ||
		inst.Op == insts.OpMNRET || inst.Op == insts.OpDRET:
		kind = 'x'
	default:
		return
	}
	fmt.Fprintf(t.w, "%c %x %x %d\n", kind, pc, nextPc, inst.Size())
}

// OnTrap records trap entries as 'e' events.
func (t *BranchTracer) OnTrap(h *hart.Hart, cause, epc, target uint64) {
	fmt.Fprintf(t.w, "e %x %x 0\n", epc, target)
}
