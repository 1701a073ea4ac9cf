package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/sarchlab/r5sim/devices"
)

// startConsoleHost pumps stdin into the MMIO console device. When
// stdin is a terminal it is switched to raw mode so the guest sees
// individual key presses; the returned function restores it.
func startConsoleHost(c *devices.Console) (restore func(), err error) {
	fd := int(os.Stdin.Fd())
	restore = func() {}

	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, fmt.Errorf("raw mode: %w", err)
		}
		restore = func() { _ = term.Restore(fd, state) }
	}

	go func() {
		buf := make([]byte, 64)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				c.PushInput(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	return restore, nil
}
