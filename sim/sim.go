// Package sim wires the hart, memory, devices and loaders into a
// runnable machine and owns the outer instruction loop.
package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/sarchlab/r5sim/devices"
	"github.com/sarchlab/r5sim/hart"
	"github.com/sarchlab/r5sim/loader"
	"github.com/sarchlab/r5sim/mem"
)

// StopReason tags why a run ended.
type StopReason int

// Stop reasons.
const (
	StopToHost StopReason = iota
	StopSnapshot
	StopMaxInstructions
	StopUserStop
	StopIllegalLimit
	StopError
)

// String returns the reason name used in run summaries.
func (r StopReason) String() string {
	switch r {
	case StopToHost:
		return "tohost"
	case StopSnapshot:
		return "snapshot"
	case StopMaxInstructions:
		return "max-instructions"
	case StopUserStop:
		return "user-stop"
	case StopIllegalLimit:
		return "illegal-limit"
	}
	return "error"
}

// Result summarizes a finished run.
type Result struct {
	Reason   StopReason
	ExitCode uint64
	Payload  uint64
	Executed uint64
	Retired  uint64
}

// Simulator is one hart plus its platform devices.
type Simulator struct {
	cfg *Config

	mem     *mem.Memory
	hart    *hart.Hart
	clint   *devices.Clint
	htif    *devices.Htif
	console *devices.Console

	stopFlag atomic.Bool
	out      io.Writer
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithOutput directs console and HTIF output.
func WithOutput(w io.Writer) Option {
	return func(s *Simulator) { s.out = w }
}

// New builds a machine from the configuration.
func New(cfg *Config, opts ...Option) (*Simulator, error) {
	s := &Simulator{cfg: cfg, out: os.Stdout}
	for _, opt := range opts {
		opt(s)
	}

	xlen, misa, err := ParseIsa(cfg.Isa)
	if err != nil {
		return nil, err
	}

	s.mem = mem.NewMemory(mem.WithLimit(cfg.MemoryLimit))

	s.clint = devices.NewClint(1)
	s.mem.MapMmio(cfg.ClintBase, devices.ClintSize, s.clint)
	s.htif = devices.NewHtif(s.out)
	s.mem.MapMmio(cfg.TohostAddr, devices.HtifSize, s.htif)
	s.console = devices.NewConsole(s.out)
	s.mem.MapMmio(cfg.ConsoleBase, devices.ConsoleSize, s.console)

	s.hart = hart.NewHart(s.mem,
		hart.WithXlen(xlen),
		hart.WithMisa(misa),
		hart.WithVlenBytes(cfg.VlenBytes),
		hart.WithTimeSource(s.clint.Mtime),
		hart.WithUserStop(s.stopFlag.Load),
		hart.WithIllegalLimit(cfg.IllegalLimit),
		hart.WithDecodeCacheSize(cfg.DecodeCacheSize),
	)
	s.clint.AttachHart(0, s.hart)

	return s, nil
}

// Hart returns the simulated hart, e.g. to attach trace streams.
func (s *Simulator) Hart() *hart.Hart { return s.hart }

// Mem returns the physical memory.
func (s *Simulator) Mem() *mem.Memory { return s.mem }

// Console returns the MMIO console device.
func (s *Simulator) Console() *devices.Console { return s.console }

// RequestStop raises the user-stop flag polled between instructions.
func (s *Simulator) RequestStop() { s.stopFlag.Store(true) }

// InstallSignalHandler converts the first interrupt signal into a
// user stop; a second interrupt kills the process.
func (s *Simulator) InstallSignalHandler() {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt)
	go func() {
		<-ch
		s.RequestStop()
		<-ch
		os.Exit(1)
	}()
}

// Load installs a program image and points the hart at its entry.
// ELF and HEX images are told apart by the ELF magic.
func (s *Simulator) Load(path string) error {
	prog, err := loadImage(path)
	if err != nil {
		return err
	}
	if err := prog.Install(s.mem); err != nil {
		return err
	}
	s.hart.SetPc(prog.EntryPoint)
	return nil
}

func loadImage(path string) (*loader.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	var magic [4]byte
	_, err = io.ReadFull(f, magic[:])
	_ = f.Close()
	if err == nil && magic == [4]byte{0x7F, 'E', 'L', 'F'} {
		return loader.LoadElf(path)
	}
	return loader.LoadHex(path)
}

// Run executes instructions until a stop condition fires. Every step
// advances the timer by one tick.
func (s *Simulator) Run() Result {
	for {
		if s.cfg.MaxInstructions > 0 &&
			s.hart.InstCount() >= s.cfg.MaxInstructions {
			return s.result(StopMaxInstructions, 0, 0)
		}

		ev := s.hart.Step()
		s.clint.Tick(1)

		if exited, code := s.htif.Exited(); exited {
			return s.result(StopToHost, code, 0)
		}
		if ev == nil {
			continue
		}
		switch ev.Kind {
		case hart.StopSnapshot:
			return s.result(StopSnapshot, 0, ev.Payload)
		case hart.StopToHost:
			return s.result(StopToHost, ev.Payload, 0)
		case hart.StopIllegalLimit:
			return s.result(StopIllegalLimit, 0, ev.Payload)
		case hart.StopUserRequest:
			return s.result(StopUserStop, 0, 0)
		default:
			return s.result(StopError, 0, ev.Payload)
		}
	}
}

func (s *Simulator) result(reason StopReason, code, payload uint64) Result {
	return Result{
		Reason:   reason,
		ExitCode: code,
		Payload:  payload,
		Executed: s.hart.InstCount(),
		Retired:  s.hart.RetiredInsts(),
	}
}

// snapshotDescriptor is the state record written when a snapshot hint
// stops the run.
type snapshotDescriptor struct {
	Pc       uint64 `json:"pc"`
	Payload  uint64 `json:"payload"`
	Executed uint64 `json:"executed"`
	Retired  uint64 `json:"retired"`
}

// WriteSnapshot records the snapshot descriptor for a StopSnapshot
// result as JSON.
func (s *Simulator) WriteSnapshot(path string, payload uint64) error {
	desc := snapshotDescriptor{
		Pc:       s.hart.Pc(),
		Payload:  payload,
		Executed: s.hart.InstCount(),
		Retired:  s.hart.RetiredInsts(),
	}
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
