// Command desktop runs CHIP-8 ROMs in a window. It renders the 64×32
// frame buffer through ebiten, maps the left side of a QWERTY keyboard
// onto the hexadecimal keypad, and plays the sound timer as a square wave.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/retroenv/retrogolib/log"
	"golang.org/x/image/colornames"

	"chip8vm/pkg/chip8"
	"chip8vm/pkg/trace"
)

// keymap lays the COSMAC VIP keypad onto the 1234/QWER/ASDF/ZXCV block.
var keymap = map[ebiten.Key]int{
	ebiten.KeyDigit1: 0x1, ebiten.KeyDigit2: 0x2, ebiten.KeyDigit3: 0x3, ebiten.KeyDigit4: 0xC,
	ebiten.KeyQ: 0x4, ebiten.KeyW: 0x5, ebiten.KeyE: 0x6, ebiten.KeyR: 0xD,
	ebiten.KeyA: 0x7, ebiten.KeyS: 0x8, ebiten.KeyD: 0x9, ebiten.KeyF: 0xE,
	ebiten.KeyZ: 0xA, ebiten.KeyX: 0x0, ebiten.KeyC: 0xB, ebiten.KeyV: 0xF,
}

type Game struct {
	vm     *chip8.Machine
	sched  *chip8.Scheduler
	logger *log.Logger

	frame  *ebiten.Image // reused 64×32 canvas
	scale  int
	fg, bg color.RGBA
}

func (g *Game) Update() error {
	for key, pad := range keymap {
		g.vm.SetKey(pad, ebiten.IsKeyPressed(key))
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		g.sched.Quit()
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		if g.vm.Mode() == chip8.ModePaused {
			g.sched.Resume()
		} else {
			g.sched.Pause()
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		g.saveScreenshot()
	}

	if err := g.sched.Advance(time.Second / 60); err != nil {
		if errors.Is(err, chip8.ErrHalted) {
			return ebiten.Termination
		}
		return err
	}

	for _, d := range g.vm.TakeDiagnostics() {
		g.logger.Warn("Execution diagnostic", log.String("detail", d.String()))
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.frame == nil {
		g.frame = ebiten.NewImage(chip8.DisplayWidth, chip8.DisplayHeight)
	}
	g.frame.WritePixels(g.vm.FramebufferRGBA(g.fg, g.bg))

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(g.scale), float64(g.scale))
	screen.DrawImage(g.frame, op)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return chip8.DisplayWidth * g.scale, chip8.DisplayHeight * g.scale
}

func (g *Game) saveScreenshot() {
	name := fmt.Sprintf("chip8-%s.png", time.Now().Format("20060102-150405"))
	if err := g.vm.SaveScreenshot(name, g.fg, g.bg); err != nil {
		g.logger.Error("Saving screenshot failed", log.Err(err))
		return
	}
	g.logger.Info("Screenshot saved", log.String("file", name))
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

func main() {
	ips := flag.Uint("ips", chip8.DefaultIPS, "instructions per second")
	scale := flag.Int("scale", 10, "window scale factor")
	traceFlag := flag.Bool("trace", false, "log every executed instruction")
	debug := flag.Bool("debug", false, "enable debug logging")
	quiet := flag.Bool("quiet", false, "errors only")
	shiftY := flag.Bool("quirk-shift-y", false, "8XY6/8XYE shift Vy instead of Vx")
	incI := flag.Bool("quirk-inc-i", false, "FX55/FX65 increment I afterwards")
	clip := flag.Bool("quirk-clip", false, "clip sprites at display edges instead of wrapping")
	flag.Parse()

	logger := createLogger(*debug, *quiet)
	if flag.NArg() != 1 {
		logger.Fatal("usage: desktop [flags] <rom file>")
	}
	romPath := flag.Arg(0)

	rom, err := chip8.LoadROMFile(romPath)
	if err != nil {
		logger.Fatal("Loading ROM failed", log.Err(err))
	}

	opts := []chip8.Option{
		chip8.WithQuirks(chip8.Quirks{
			ShiftSourceY:        *shiftY,
			LoadStoreIncrementI: *incI,
			ClipSprites:         *clip,
		}),
	}
	if beep, err := newBeeper(); err != nil {
		logger.Warn("Audio unavailable", log.Err(err))
	} else {
		opts = append(opts, chip8.WithTone(beep))
	}
	if *traceFlag {
		opts = append(opts, chip8.WithObserver(trace.New(logger)))
	}

	vm, err := chip8.New(rom, opts...)
	if err != nil {
		logger.Fatal("Loading ROM failed", log.Err(err))
	}
	sched := chip8.NewScheduler(vm, chip8.WithIPS(uint32(*ips)))

	logger.Info("Starting emulation",
		log.String("rom", romPath),
		log.String("ips", fmt.Sprintf("%d", *ips)))

	ebiten.SetWindowSize(chip8.DisplayWidth*(*scale), chip8.DisplayHeight*(*scale))
	ebiten.SetWindowTitle(fmt.Sprintf("CHIP-8 - %s", filepath.Base(romPath)))

	game := &Game{
		vm:     vm,
		sched:  sched,
		logger: logger,
		scale:  *scale,
		fg:     colornames.White,
		bg:     colornames.Black,
	}
	if err := ebiten.RunGame(game); err != nil {
		logger.Fatal("Emulation failed", log.Err(err))
	}
}
