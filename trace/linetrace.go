package trace

import (
	"fmt"
	"io"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/r5sim/hart"
	"github.com/sarchlab/r5sim/insts"
)

// LineSize is the cache-line granule of the line trace.
const LineSize = 64

// LineTracer emits one record per cache-line event:
//
//	{kind} {vline} {pline} {count}
//
// with kind r (data read), w (data write), x (instruction fetch),
// e (dirty-line eviction) or v (clean-line eviction). Consecutive
// identical events coalesce into one record with a repeat count.
// Residency is modeled with an akita cache directory so evictions
// follow real set-associative LRU behavior.
type LineTracer struct {
	w         io.Writer
	directory *akitacache.DirectoryImpl

	// Virtual line of each resident physical line, for eviction
	// records.
	vlineOf map[uint64]uint64

	pending     bool
	pendingKind byte
	pendingV    uint64
	pendingP    uint64
	pendingN    uint64
}

// NewLineTracer creates a line tracer writing to w, modeling a cache
// with the given geometry.
func NewLineTracer(w io.Writer, numSets, associativity int) *LineTracer {
	return &LineTracer{
		w: w,
		directory: akitacache.NewDirectory(
			numSets,
			associativity,
			LineSize,
			akitacache.NewLRUVictimFinder(),
		),
		vlineOf: map[uint64]uint64{},
	}
}

func (t *LineTracer) OnRetire(h *hart.Hart, inst insts.Instruction,
	pc, nextPc uint64) {
	t.access('x', pc&^uint64(LineSize-1), h.LastFetchPa()&^uint64(LineSize-1),
		false)

	if acc := h.LastMemAccess(); acc.Valid {
		kind := byte('r')
		if acc.Store {
			kind = 'w'
		}
		t.access(kind, acc.Va&^uint64(LineSize-1), acc.Pa&^uint64(LineSize-1),
			acc.Store)
	}
}

// access records a touch of one line, handling miss fill and eviction.
func (t *LineTracer) access(kind byte, vline, pline uint64, dirty bool) {
	block := t.directory.Lookup(0, pline)
	if block != nil && block.IsValid {
		t.directory.Visit(block)
		block.IsDirty = block.IsDirty || dirty
		t.emit(kind, vline, pline)
		return
	}

	victim := t.directory.FindVictim(pline)
	if victim.IsValid {
		evKind := byte('v')
		if victim.IsDirty {
			evKind = 'e'
		}
		t.emit(evKind, t.vlineOf[victim.Tag], victim.Tag)
		delete(t.vlineOf, victim.Tag)
	}
	victim.Tag = pline
	victim.IsValid = true
	victim.IsDirty = dirty
	t.directory.Visit(victim)
	t.vlineOf[pline] = vline

	t.emit(kind, vline, pline)
}

// emit coalesces repeats of the same event into a count.
func (t *LineTracer) emit(kind byte, vline, pline uint64) {
	if t.pending && t.pendingKind == kind &&
		t.pendingV == vline && t.pendingP == pline {
		t.pendingN++
		return
	}
	t.Flush()
	t.pending = true
	t.pendingKind = kind
	t.pendingV = vline
	t.pendingP = pline
	t.pendingN = 1
}

// Flush writes the buffered event, if any. Call once after the run.
func (t *LineTracer) Flush() {
	if !t.pending {
		return
	}
	fmt.Fprintf(t.w, "%c %x %x %d\n",
		t.pendingKind, t.pendingV, t.pendingP, t.pendingN)
	t.pending = false
}
