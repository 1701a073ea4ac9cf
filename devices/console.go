package devices

import (
	"io"
	"sync"
)

// Console register offsets from the mapping base.
const (
	consoleDataOffset   = 0
	consoleStatusOffset = 4

	// ConsoleSize is the address window the console occupies.
	ConsoleSize = 8
)

// Console is a minimal byte-oriented MMIO console. A store to the data
// register emits the low byte; a load returns the next buffered input
// byte, or all ones when none is pending. The status register reads 1
// while input is available.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	in  []byte
}

// NewConsole creates a console writing output bytes to w.
func NewConsole(w io.Writer) *Console {
	return &Console{out: w}
}

// PushInput appends host input bytes for the guest to read.
func (c *Console) PushInput(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in = append(c.in, data...)
}

// ReadByte pops one buffered input byte. It backs both the MMIO data
// register and the hart's console-in fast path.
func (c *Console) ReadByte() (byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.in) == 0 {
		return 0, false
	}
	b := c.in[0]
	c.in = c.in[1:]
	return b, true
}

func (c *Console) MmioRead(pa uint64, size int) (uint64, bool) {
	switch pa % ConsoleSize {
	case consoleDataOffset:
		b, ok := c.ReadByte()
		if !ok {
			return ^uint64(0) & (uint64(1)<<(size*8) - 1), true
		}
		return uint64(b), true
	case consoleStatusOffset:
		c.mu.Lock()
		defer c.mu.Unlock()
		if len(c.in) > 0 {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (c *Console) MmioWrite(pa uint64, size int, value uint64) bool {
	if pa%ConsoleSize != consoleDataOffset {
		return false
	}
	if c.out == nil {
		return true
	}
	_, err := c.out.Write([]byte{byte(value)})
	return err == nil
}
