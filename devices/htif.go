package devices

import (
	"io"
)

// HtifSize is the address window the HTIF port occupies: tohost at
// offset 0, fromhost at offset 8.
const HtifSize = 16

// Htif implements the Berkeley host-target interface as used by
// riscv-tests and pk images. A tohost write carries
// {dev:8, cmd:8, payload:48}; device 0 command 0 with payload bit 0
// set terminates the simulation with code payload>>1, and device 1
// command 1 prints the payload's low byte.
type Htif struct {
	out      io.Writer
	tohost   uint64
	fromhost uint64

	exited   bool
	exitCode uint64
}

// NewHtif creates an HTIF port writing console output to w.
func NewHtif(w io.Writer) *Htif {
	return &Htif{out: w}
}

// Exited reports whether the guest requested termination, and with
// which code.
func (h *Htif) Exited() (bool, uint64) { return h.exited, h.exitCode }

func (h *Htif) MmioRead(pa uint64, size int) (uint64, bool) {
	off := pa % HtifSize
	if off < 8 {
		return sliceReg(h.tohost, off, size)
	}
	return sliceReg(h.fromhost, off-8, size)
}

func (h *Htif) MmioWrite(pa uint64, size int, value uint64) bool {
	off := pa % HtifSize
	if off >= 8 {
		next, ok := mergeReg(h.fromhost, off-8, size, value)
		if !ok {
			return false
		}
		h.fromhost = next
		return true
	}

	next, ok := mergeReg(h.tohost, off, size, value)
	if !ok {
		return false
	}
	h.tohost = next
	// Sub-doubleword stores accumulate; the command fires once the
	// high half (carrying dev and cmd) has been written.
	if size < 8 && off+uint64(size) < 8 {
		return true
	}
	h.dispatch()
	return true
}

func (h *Htif) dispatch() {
	v := h.tohost
	dev := v >> 56
	cmd := v >> 48 & 0xFF
	payload := v & (uint64(1)<<48 - 1)

	switch {
	case dev == 0 && cmd == 0:
		if payload&1 != 0 {
			h.exited = true
			h.exitCode = payload >> 1
		}
	case dev == 1 && cmd == 1:
		if h.out != nil {
			// A failed console write must not stall the guest.
			_, _ = h.out.Write([]byte{byte(payload)})
		}
		// Ack so busy-waiting guests make progress.
		h.fromhost = dev<<56 | cmd<<48
		h.tohost = 0
	}
}
