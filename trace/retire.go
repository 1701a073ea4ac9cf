// Package trace provides the line-oriented trace streams: a per-retire
// CSV record, a branch trace, a cache-line trace, an instruction
// histogram, and a trap-stat summary. Each stream is a hart listener
// that formats into an io.Writer.
package trace

import (
	"fmt"
	"io"

	"github.com/sarchlab/r5sim/hart"
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/mem"
)

// CsvTracer emits one CSV record per retired instruction:
// pc,opcode,changedRegs,changedCsrs,privilege,disasm.
type CsvTracer struct {
	w io.Writer
}

// NewCsvTracer creates a CSV tracer writing to w.
func NewCsvTracer(w io.Writer) *CsvTracer {
	return &CsvTracer{w: w}
}

func (t *CsvTracer) OnRetire(h *hart.Hart, inst insts.Instruction,
	pc, nextPc uint64) {
	regs := ""
	if r, ok := h.LastIntWrite(); ok {
		regs = fmt.Sprintf("x%d=%016x", r, h.PeekIntReg(r))
	}
	if r, ok := h.LastFpWrite(); ok {
		if regs != "" {
			regs += ";"
		}
		regs += fmt.Sprintf("f%d=%016x", r, h.PeekFpReg(r))
	}

	csrs := ""
	for _, w := range h.LastCsrWrites() {
		if csrs != "" {
			csrs += ";"
		}
		csrs += fmt.Sprintf("%03x=%016x", w.Addr, w.Next)
	}

	fmt.Fprintf(t.w, "%016x,%08x,%s,%s,%s,%s\n",
		pc, inst.Raw, regs, csrs, privName(h), inst.Op)
}

func privName(h *hart.Hart) string {
	var base string
	switch h.Priv() {
	case mem.PrivM:
		return "M"
	case mem.PrivS:
		base = "S"
	default:
		base = "U"
	}
	if h.Virt() {
		return "V" + base
	}
	return base
}
