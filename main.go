// Command chip8vm assembles and runs CHIP-8 programs on the console. It
// covers the headless workflows: assembling source into a ROM image,
// running a ROM for a fixed number of cycles or until it halts, tracing
// execution, and dumping the final display as a PNG. The windowed
// frontend lives in cmd/desktop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"
	"golang.org/x/image/colornames"

	"chip8vm/pkg/asm"
	"chip8vm/pkg/chip8"
	"chip8vm/pkg/trace"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

type options struct {
	in  string
	out string
	run bool

	ips        uint
	cycles     uint
	traceLog   bool
	screenshot string

	debug bool
	quiet bool

	shiftY bool
	incI   bool
	clip   bool
}

func main() {
	opts, romPath := readArguments()
	logger := createLogger(opts.debug, opts.quiet)

	if !opts.quiet {
		logger.Info("chip8vm", log.String("version", buildinfo.Version(version, commit, date)))
	}

	if opts.in != "" {
		assembled, err := assembleFile(logger, opts)
		if err != nil {
			logger.Fatal("Assembly failed", log.Err(err))
		}
		if !opts.run {
			return
		}
		romPath = assembled
	}

	if romPath == "" {
		logger.Fatal("no rom to run: pass a rom file, or -in with -run")
	}
	if err := runROM(app.Context(), logger, opts, romPath); err != nil {
		logger.Error("Emulation failed", log.Err(err))
		os.Exit(1)
	}
}

func readArguments() (options, string) {
	opts := options{}
	flag.StringVar(&opts.in, "in", "", "assembly source file to assemble")
	flag.StringVar(&opts.out, "out", "", "output rom file (default: source with .ch8 extension)")
	flag.BoolVar(&opts.run, "run", false, "run the assembled rom")
	flag.UintVar(&opts.ips, "ips", chip8.DefaultIPS, "instructions per second")
	flag.UintVar(&opts.cycles, "cycles", 0, "stop after this many instructions (0 = run until halt)")
	flag.BoolVar(&opts.traceLog, "trace", false, "log every executed instruction")
	flag.StringVar(&opts.screenshot, "screenshot", "", "write the final display to this PNG file")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flag.BoolVar(&opts.quiet, "q", false, "perform operations quietly")
	flag.BoolVar(&opts.shiftY, "quirk-shift-y", false, "8XY6/8XYE shift Vy instead of Vx")
	flag.BoolVar(&opts.incI, "quirk-inc-i", false, "FX55/FX65 increment I afterwards")
	flag.BoolVar(&opts.clip, "quirk-clip", false, "clip sprites at display edges instead of wrapping")
	flag.Parse()

	romPath := ""
	if flag.NArg() > 0 {
		romPath = flag.Arg(0)
	}
	return opts, romPath
}

func createLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}

// assembleFile translates assembly source into a ROM image on disk and
// returns the output path.
func assembleFile(logger *log.Logger, opts options) (string, error) {
	source, err := os.ReadFile(opts.in)
	if err != nil {
		return "", fmt.Errorf("reading source file %q: %w", opts.in, err)
	}

	rom, err := asm.Assemble(string(source))
	if err != nil {
		return "", err
	}

	output := opts.out
	if output == "" {
		output = defaultOutputPath(opts.in)
	}
	if err := os.WriteFile(output, rom, 0o644); err != nil {
		return "", fmt.Errorf("writing rom file %q: %w", output, err)
	}

	logger.Info("Assembled",
		log.String("source", opts.in),
		log.String("rom", output),
		log.String("size", fmt.Sprintf("%d bytes", len(rom))))
	return output, nil
}

func defaultOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".ch8"
	}
	return strings.TrimSuffix(inPath, ext) + ".ch8"
}

// runROM executes a ROM headless until it halts, the cycle budget runs
// out, or the context is cancelled.
func runROM(ctx context.Context, logger *log.Logger, opts options, romPath string) error {
	rom, err := chip8.LoadROMFile(romPath)
	if err != nil {
		return err
	}
	if opts.ips == 0 {
		opts.ips = chip8.DefaultIPS
	}

	machineOpts := []chip8.Option{
		chip8.WithQuirks(chip8.Quirks{
			ShiftSourceY:        opts.shiftY,
			LoadStoreIncrementI: opts.incI,
			ClipSprites:         opts.clip,
		}),
	}
	if opts.traceLog {
		machineOpts = append(machineOpts, chip8.WithObserver(trace.New(logger)))
	}

	vm, err := chip8.New(rom, machineOpts...)
	if err != nil {
		return err
	}
	sched := chip8.NewScheduler(vm, chip8.WithIPS(uint32(opts.ips)))

	logger.Info("Running",
		log.String("rom", romPath),
		log.String("ips", fmt.Sprintf("%d", opts.ips)))

	runErr := drive(ctx, sched, opts)
	reportDiagnostics(logger, vm)
	logFinalState(logger, vm)

	if opts.screenshot != "" {
		if err := vm.SaveScreenshot(opts.screenshot, colornames.White, colornames.Black); err != nil {
			logger.Error("Saving screenshot failed", log.Err(err))
		} else {
			logger.Info("Screenshot saved", log.String("file", opts.screenshot))
		}
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, chip8.ErrHalted), errors.Is(runErr, context.Canceled):
		logger.Info("Stopped", log.String("reason", runErr.Error()))
		return nil
	default:
		return runErr
	}
}

// drive paces the machine: in real time until halt when no cycle budget
// is given, otherwise one synthetic instruction period per cycle.
func drive(ctx context.Context, sched *chip8.Scheduler, opts options) error {
	if opts.cycles == 0 {
		return sched.Run(ctx)
	}

	period := time.Second / time.Duration(opts.ips)
	for i := uint(0); i < opts.cycles; i++ {
		select {
		case <-ctx.Done():
			sched.Quit()
			return ctx.Err()
		default:
		}
		if err := sched.Advance(period); err != nil {
			return err
		}
	}
	return nil
}

func reportDiagnostics(logger *log.Logger, vm *chip8.Machine) {
	for _, d := range vm.TakeDiagnostics() {
		logger.Warn("Execution diagnostic", log.String("detail", d.String()))
	}
}

func logFinalState(logger *log.Logger, vm *chip8.Machine) {
	logger.Info("Final state",
		log.String("mode", vm.Mode().String()),
		log.String("pc", fmt.Sprintf("0x%03X", vm.PC)),
		log.String("i", fmt.Sprintf("0x%03X", vm.I)),
		log.Uint8("sp", vm.SP),
		log.Uint8("delay", vm.DelayTimer),
		log.Uint8("sound", vm.SoundTimer))
}
