package sim

import (
	"fmt"
	"strings"

	"github.com/sarchlab/r5sim/hart"
)

var misaLetters = map[rune]uint64{
	'a': hart.MisaA,
	'b': hart.MisaB,
	'c': hart.MisaC,
	'd': hart.MisaD,
	'e': hart.MisaE,
	'f': hart.MisaF,
	'h': hart.MisaH,
	'i': hart.MisaI,
	'm': hart.MisaM,
	's': hart.MisaS,
	'u': hart.MisaU,
	'v': hart.MisaV,
}

// ParseIsa splits an ISA string like "rv64imafdcvhsu" into the
// register width and the MISA extension mask. The letter g expands to
// imafd.
func ParseIsa(isa string) (hart.Xlen, uint64, error) {
	s := strings.ToLower(isa)

	var xlen hart.Xlen
	switch {
	case strings.HasPrefix(s, "rv32"):
		xlen = hart.Xlen32
	case strings.HasPrefix(s, "rv64"):
		xlen = hart.Xlen64
	default:
		return 0, 0, fmt.Errorf("ISA string %q must start with rv32 or rv64",
			isa)
	}

	var misa uint64
	for _, r := range s[4:] {
		if r == 'g' {
			misa |= hart.MisaI | hart.MisaM | hart.MisaA |
				hart.MisaF | hart.MisaD
			continue
		}
		bit, ok := misaLetters[r]
		if !ok {
			return 0, 0, fmt.Errorf("ISA string %q: unknown extension %q",
				isa, r)
		}
		misa |= bit
	}
	if misa&hart.MisaI == 0 {
		return 0, 0, fmt.Errorf("ISA string %q does not include i", isa)
	}
	if misa&hart.MisaD != 0 {
		misa |= hart.MisaF
	}
	return xlen, misa, nil
}
