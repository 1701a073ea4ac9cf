package loader

import (
	"fmt"
	"io"
	"os"

	"github.com/db47h/lex"
)

// Token types produced by the HEX lexer.
const (
	tokEOF lex.Token = iota
	tokAddr
	tokBytes
)

// LoadHex parses a Verilog $readmemh style memory image: optional
// `@hexaddr` section markers set the load address, and runs of hex
// digit pairs supply bytes at increasing addresses. `//` comments and
// whitespace are ignored. Each section becomes one segment; the entry
// point is the address of the first section.
func LoadHex(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open HEX: %w", err)
	}
	defer func() { _ = f.Close() }()
	return parseHex(path, f)
}

func parseHex(name string, r io.Reader) (*Program, error) {
	l := lex.NewLexer(lex.NewFile(name, r), lexHex)

	prog := &Program{}
	var cur *Segment
	addr := uint64(0)
	haveEntry := false

	for {
		tok, pos, v := l.Lex()
		switch tok {
		case tokEOF:
			return prog, nil
		case lex.Error:
			// Errorf emits an error value as the token payload.
			p := l.File().Position(pos)
			return nil, fmt.Errorf("%s:%d:%d: %v",
				name, p.Line, p.Column, v)
		case tokAddr:
			addr = v.(uint64)
			cur = nil
		case tokBytes:
			if !haveEntry {
				prog.EntryPoint = addr
				haveEntry = true
			}
			data := v.([]byte)
			if cur == nil {
				prog.Segments = append(prog.Segments, Segment{
					Addr:  addr,
					Flags: SegmentFlagRead | SegmentFlagWrite | SegmentFlagExecute,
				})
				cur = &prog.Segments[len(prog.Segments)-1]
			}
			cur.Data = append(cur.Data, data...)
			cur.MemSize += uint64(len(data))
			addr += uint64(len(data))
		}
	}
}

func hexDigit(r rune) (byte, bool) {
	switch {
	case r >= '0' && r <= '9':
		return byte(r - '0'), true
	case r >= 'a' && r <= 'f':
		return byte(r-'a') + 10, true
	case r >= 'A' && r <= 'F':
		return byte(r-'A') + 10, true
	}
	return 0, false
}

// lexHex is the initial state function. It dispatches on the next
// rune: whitespace loops, '/' starts a comment, '@' an address marker,
// and hex digits a byte run.
func lexHex(s *lex.State) lex.StateFn {
	r := s.Next()
	pos := s.Pos()
	switch {
	case r == lex.EOF:
		s.Emit(pos, tokEOF, nil)
		return nil
	case r == ' ' || r == '\t' || r == '\r' || r == '\n' || r == ',':
		return nil
	case r == '/':
		return lexComment
	case r == '@':
		return lexAddr
	default:
		if _, ok := hexDigit(r); ok {
			s.Backup()
			return lexBytes
		}
		s.Errorf(pos, "unexpected character %q", r)
		return nil
	}
}

func lexComment(s *lex.State) lex.StateFn {
	if r := s.Next(); r != '/' {
		s.Errorf(s.Pos(), "unexpected character %q after '/'", r)
		return nil
	}
	for {
		r := s.Next()
		if r == '\n' || r == lex.EOF {
			s.Backup()
			return nil
		}
	}
}

func lexAddr(s *lex.State) lex.StateFn {
	pos := s.Pos()
	var addr uint64
	n := 0
	for {
		r := s.Next()
		d, ok := hexDigit(r)
		if !ok {
			s.Backup()
			break
		}
		addr = addr<<4 | uint64(d)
		n++
	}
	if n == 0 {
		s.Errorf(pos, "address marker with no hex digits")
		return nil
	}
	if n > 16 {
		s.Errorf(pos, "address marker too wide")
		return nil
	}
	s.Emit(pos, tokAddr, addr)
	return nil
}

func lexBytes(s *lex.State) lex.StateFn {
	pos := s.Pos()
	var digits []byte
	for {
		r := s.Next()
		d, ok := hexDigit(r)
		if !ok {
			s.Backup()
			break
		}
		digits = append(digits, d)
	}
	if len(digits)%2 != 0 {
		s.Errorf(pos, "odd number of hex digits in byte run")
		return nil
	}
	data := make([]byte, len(digits)/2)
	for i := range data {
		data[i] = digits[2*i]<<4 | digits[2*i+1]
	}
	s.Emit(pos, tokBytes, data)
	return nil
}
