// Package main provides the r5sim command line entry point.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/sarchlab/r5sim/sim"
	"github.com/sarchlab/r5sim/trace"
)

var (
	configPath  = flag.String("config", "", "Path to simulator configuration JSON file")
	isa         = flag.String("isa", "", "ISA string override, e.g. rv64imafdc")
	memLimit    = flag.String("mem", "", "Physical memory limit override, e.g. 0x100000000")
	maxInsts    = flag.Uint64("max-insts", 0, "Stop after this many instructions (0 = unlimited)")
	tohostAddr  = flag.String("tohost", "", "HTIF tohost address override")
	consoleBase = flag.String("console", "", "MMIO console base address override")
	interactive = flag.Bool("interactive", false, "Feed the terminal into the console device (raw mode)")
	snapshotOut = flag.String("snapshot", "r5sim-snapshot.json", "Snapshot descriptor output path")

	traceCsv    = flag.String("trace-csv", "", "Write a per-retire CSV trace to this file")
	traceBranch = flag.String("trace-branch", "", "Write a branch trace to this file")
	traceLines  = flag.String("trace-lines", "", "Write a cache-line trace to this file")
	histogram   = flag.Bool("histogram", false, "Print an instruction histogram at exit")
	trapStats   = flag.Bool("trap-stats", false, "Print a trap summary at exit")
	verbose     = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: r5sim [options] <program.elf|program.hex>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// run owns all defers; exiting after it returns lets trace files
	// flush and the terminal restore.
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		return fatal(err)
	}

	s, err := sim.New(cfg)
	if err != nil {
		return fatal(err)
	}

	cleanups, hist, traps, err := attachTracers(s, cfg)
	if err != nil {
		return fatal(err)
	}
	defer func() {
		for _, f := range cleanups {
			f()
		}
	}()

	programPath := flag.Arg(0)
	if err := s.Load(programPath); err != nil {
		return fatal(fmt.Errorf("load %s: %w", programPath, err))
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "Loaded: %s\n", programPath)
		fmt.Fprintf(os.Stderr, "Entry point: 0x%X\n", s.Hart().Pc())
	}

	s.InstallSignalHandler()
	if *interactive {
		restore, err := startConsoleHost(s.Console())
		if err != nil {
			return fatal(err)
		}
		defer restore()
	}

	res := s.Run()

	if res.Reason == sim.StopSnapshot && *snapshotOut != "" {
		if err := s.WriteSnapshot(*snapshotOut, res.Payload); err != nil {
			return fatal(err)
		}
	}
	if hist != nil {
		hist.Dump(os.Stderr)
	}
	if traps != nil {
		traps.Dump(os.Stderr)
	}
	if *verbose || res.Reason != sim.StopToHost {
		fmt.Fprintf(os.Stderr, "Stop reason: %s\n", res.Reason)
		fmt.Fprintf(os.Stderr, "Instructions executed: %d\n", res.Executed)
		fmt.Fprintf(os.Stderr, "Instructions retired: %d\n", res.Retired)
	}

	if res.Reason == sim.StopToHost {
		return int(res.ExitCode)
	}
	return 0
}

func loadConfig() (*sim.Config, error) {
	cfg := sim.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = sim.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
	}
	if *isa != "" {
		cfg.Isa = *isa
	}
	if *maxInsts != 0 {
		cfg.MaxInstructions = *maxInsts
	}
	if err := overrideAddr(&cfg.MemoryLimit, *memLimit); err != nil {
		return nil, err
	}
	if err := overrideAddr(&cfg.TohostAddr, *tohostAddr); err != nil {
		return nil, err
	}
	if err := overrideAddr(&cfg.ConsoleBase, *consoleBase); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overrideAddr parses a decimal, 0x-hex or octal address flag.
func overrideAddr(dst *uint64, s string) error {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return fmt.Errorf("bad address %q: %w", s, err)
	}
	*dst = v
	return nil
}

func attachTracers(s *sim.Simulator, cfg *sim.Config) (
	cleanups []func(), hist *trace.Histogram, traps *trace.TrapStats,
	err error) {
	openOut := func(path string) (*os.File, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create trace file: %w", err)
		}
		cleanups = append(cleanups, func() { _ = f.Close() })
		return f, nil
	}

	if *traceCsv != "" {
		f, err := openOut(*traceCsv)
		if err != nil {
			return nil, nil, nil, err
		}
		s.Hart().AddRetireListener(trace.NewCsvTracer(f))
	}
	if *traceBranch != "" {
		f, err := openOut(*traceBranch)
		if err != nil {
			return nil, nil, nil, err
		}
		bt := trace.NewBranchTracer(f)
		s.Hart().AddRetireListener(bt)
		s.Hart().AddTrapListener(bt)
	}
	if *traceLines != "" {
		f, err := openOut(*traceLines)
		if err != nil {
			return nil, nil, nil, err
		}
		lt := trace.NewLineTracer(f, cfg.CacheSets, cfg.CacheWays)
		s.Hart().AddRetireListener(lt)
		cleanups = append(cleanups, lt.Flush)
	}
	if *histogram {
		hist = trace.NewHistogram()
		s.Hart().AddRetireListener(hist)
	}
	if *trapStats {
		traps = trace.NewTrapStats()
		s.Hart().AddTrapListener(traps)
	}
	return cleanups, hist, traps, nil
}

func fatal(err error) int {
	fmt.Fprintf(os.Stderr, "r5sim: %v\n", err)
	return 1
}
