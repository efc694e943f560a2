// Package chip8 implements the base 35-opcode CHIP-8 virtual machine:
// memory, registers, the fetch/decode/execute cycle, the two countdown
// timers, the XOR sprite renderer, and a scheduler that paces execution
// against a configurable instruction rate.
//
// The package performs no I/O of its own. Presentation, audio, and keyboard
// mapping are collaborators: they read display snapshots, receive tone
// edges through the Tone interface, and write keypad state through SetKey.
package chip8

import (
	"fmt"
	"math/rand/v2"
	"os"
)

const (
	// MemorySize is the full CHIP-8 address space in bytes.
	MemorySize = 4096

	// ProgramStart is the address where ROM bytes are loaded and where
	// the program counter starts.
	ProgramStart = 0x200

	// MaxROMSize is the largest ROM that fits below the end of memory.
	MaxROMSize = MemorySize - ProgramStart

	// FontAddress is where the built-in glyph table lives.
	FontAddress = 0x000

	// GlyphSize is the height in bytes of one font glyph.
	GlyphSize = 5

	// DisplayWidth and DisplayHeight fix the monochrome frame buffer
	// dimensions required by the base instruction set.
	DisplayWidth  = 64
	DisplayHeight = 32

	// StackDepth is the call stack capacity in return addresses.
	StackDepth = 16

	// NumKeys is the number of hexadecimal keypad keys.
	NumKeys = 16
)

// fontset holds the 16 built-in glyphs 0-F, five bytes per glyph.
var fontset = [16 * GlyphSize]byte{
	0xF0, 0x90, 0x90, 0x90, 0xF0, // 0
	0x20, 0x60, 0x20, 0x20, 0x70, // 1
	0xF0, 0x10, 0xF0, 0x80, 0xF0, // 2
	0xF0, 0x10, 0xF0, 0x10, 0xF0, // 3
	0x90, 0x90, 0xF0, 0x10, 0x10, // 4
	0xF0, 0x80, 0xF0, 0x10, 0xF0, // 5
	0xF0, 0x80, 0xF0, 0x90, 0xF0, // 6
	0xF0, 0x10, 0x20, 0x40, 0x40, // 7
	0xF0, 0x90, 0xF0, 0x90, 0xF0, // 8
	0xF0, 0x90, 0xF0, 0x10, 0xF0, // 9
	0xF0, 0x90, 0xF0, 0x90, 0x90, // A
	0xE0, 0x90, 0xE0, 0x90, 0xE0, // B
	0xF0, 0x80, 0x80, 0x80, 0xF0, // C
	0xE0, 0x90, 0x90, 0x90, 0xE0, // D
	0xF0, 0x80, 0xF0, 0x80, 0xF0, // E
	0xF0, 0x80, 0xF0, 0x80, 0x80, // F
}

// Mode is the machine execution mode. Halted is terminal.
type Mode int

const (
	ModeRunning Mode = iota
	ModePaused
	ModeHalted
)

func (m Mode) String() string {
	switch m {
	case ModeRunning:
		return "running"
	case ModePaused:
		return "paused"
	case ModeHalted:
		return "halted"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Quirks selects between historically ambiguous instruction behaviors.
// The zero value is the canonical behavior of this implementation.
type Quirks struct {
	// ShiftSourceY makes 8XY6/8XYE shift Vy into Vx instead of shifting
	// Vx in place.
	ShiftSourceY bool

	// LoadStoreIncrementI makes FX55/FX65 advance I by X+1 afterwards.
	LoadStoreIncrementI bool

	// ClipSprites clips sprites at the display edges instead of wrapping.
	ClipSprites bool
}

// Tone is the audio collaborator. Start is invoked when the sound timer
// becomes nonzero, Stop when it counts down to zero. Both are one-shot
// edges, not levels.
type Tone interface {
	Start()
	Stop()
}

// Machine is the complete mutable CHIP-8 state. It is exclusively owned:
// only Step and TickTimers mutate it, except for Keys, which the input
// collaborator writes through SetKey between scheduling quanta.
type Machine struct {
	V          [16]byte
	I          uint16
	PC         uint16
	Stack      [StackDepth]uint16
	SP         byte
	Memory     [MemorySize]byte
	Display    [DisplayWidth * DisplayHeight]bool
	Keys       [NumKeys]bool
	DelayTimer byte
	SoundTimer byte

	mode      Mode
	haltCause error

	quirks   Quirks
	randByte func() byte
	observer Observer
	tone     Tone

	diagnostics []Diagnostic
}

// Option configures a Machine at construction time.
type Option func(*Machine)

// WithQuirks selects the quirk behaviors for ambiguous instructions.
func WithQuirks(q Quirks) Option {
	return func(m *Machine) { m.quirks = q }
}

// WithRandSource replaces the random byte source used by CXNN.
// Tests inject a deterministic source here.
func WithRandSource(src func() byte) Option {
	return func(m *Machine) { m.randByte = src }
}

// WithObserver attaches an execution observer invoked once per executed
// instruction.
func WithObserver(o Observer) Option {
	return func(m *Machine) { m.observer = o }
}

// WithTone attaches the audio collaborator.
func WithTone(t Tone) Option {
	return func(m *Machine) { m.tone = t }
}

// New creates a machine with the font table installed, the ROM copied to
// ProgramStart, and the program counter set to ProgramStart. It fails
// without producing a machine when the ROM is empty or does not fit.
func New(rom []byte, opts ...Option) (*Machine, error) {
	if len(rom) == 0 {
		return nil, fmt.Errorf("loading rom: %w", ErrRomEmpty)
	}
	if len(rom) > MaxROMSize {
		return nil, fmt.Errorf("loading rom: %d bytes exceed %d byte program space: %w",
			len(rom), MaxROMSize, ErrRomTooLarge)
	}

	m := &Machine{
		PC:       ProgramStart,
		randByte: func() byte { return byte(rand.UintN(256)) },
	}
	copy(m.Memory[FontAddress:], fontset[:])
	copy(m.Memory[ProgramStart:], rom)

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// LoadROMFile reads a ROM image from disk. Read failures wrap
// ErrRomUnreadable so callers can distinguish them from size errors.
func LoadROMFile(path string) ([]byte, error) {
	rom, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrRomUnreadable, path, err)
	}
	return rom, nil
}

// Mode returns the current execution mode.
func (m *Machine) Mode() Mode {
	return m.mode
}

// Pause suspends execution. A paused machine keeps its state readable so
// the presentation layer still reflects it.
func (m *Machine) Pause() {
	if m.mode == ModeRunning {
		m.mode = ModePaused
	}
}

// Resume continues a paused machine.
func (m *Machine) Resume() {
	if m.mode == ModePaused {
		m.mode = ModeRunning
	}
}

// Halt terminates the machine from the outside (quit signal). Halted is
// terminal: subsequent Step calls return ErrHalted.
func (m *Machine) Halt() {
	if m.mode != ModeHalted {
		m.mode = ModeHalted
		m.haltCause = ErrHalted
	}
}

// halt records a fatal execution error and makes it the terminal cause.
func (m *Machine) halt(err error) error {
	m.mode = ModeHalted
	m.haltCause = err
	return err
}

// SetKey marks a keypad key pressed or released. Out-of-range indices are
// ignored; the input collaborator owns physical key mapping.
func (m *Machine) SetKey(key int, down bool) {
	if key >= 0 && key < NumKeys {
		m.Keys[key] = down
	}
}

// setSoundTimer updates the sound timer and fires the start edge when the
// timer goes from zero to nonzero.
func (m *Machine) setSoundTimer(val byte) {
	prev := m.SoundTimer
	m.SoundTimer = val
	if m.tone != nil && prev == 0 && val > 0 {
		m.tone.Start()
	}
}

// report records a soft diagnostic. Diagnostics never halt the machine.
func (m *Machine) report(d Diagnostic) {
	m.diagnostics = append(m.diagnostics, d)
}

// TakeDiagnostics returns the soft diagnostics accumulated since the last
// call and clears the buffer.
func (m *Machine) TakeDiagnostics() []Diagnostic {
	d := m.diagnostics
	m.diagnostics = nil
	return d
}
