package chip8

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

// program assembles opcode words into ROM bytes, big-endian.
func program(words ...uint16) []byte {
	rom := make([]byte, 0, len(words)*2)
	for _, w := range words {
		rom = append(rom, byte(w>>8), byte(w))
	}
	return rom
}

func TestLoadAndAddImmediate(t *testing.T) {
	m := newMachine(t, program(0x6105, 0x7105))
	step(t, m, 2)

	assert.Equal(t, byte(0x0A), m.V[1])
	assert.Equal(t, uint16(0x204), m.PC)
}

func TestAddImmediateWrapsWithoutFlag(t *testing.T) {
	m := newMachine(t, program(0x61FF, 0x7102))
	m.V[0xF] = 0x7E
	step(t, m, 2)

	assert.Equal(t, byte(0x01), m.V[1])
	// 7XNN never touches the flag register
	assert.Equal(t, byte(0x7E), m.V[0xF])
}

func TestJump(t *testing.T) {
	m := newMachine(t, program(0x1234))
	step(t, m, 1)
	assert.Equal(t, uint16(0x234), m.PC)
}

func TestJumpOffset(t *testing.T) {
	m := newMachine(t, program(0x6005, 0xB300))
	step(t, m, 2)
	assert.Equal(t, uint16(0x305), m.PC)
}

func TestCallRet(t *testing.T) {
	m := newMachine(t, program(
		0x2206, // 0x200: call 0x206
		0x0000,
		0x0000,
		0x00EE, // 0x206: ret
	))

	step(t, m, 1)
	assert.Equal(t, uint16(0x206), m.PC)
	assert.Equal(t, byte(1), m.SP)
	assert.Equal(t, uint16(0x202), m.Stack[0])

	step(t, m, 1)
	assert.Equal(t, uint16(0x202), m.PC)
	assert.Equal(t, byte(0), m.SP)
}

func TestStackOverflow(t *testing.T) {
	m := newMachine(t, program(0x2200)) // call self

	step(t, m, StackDepth)
	assert.Equal(t, byte(StackDepth), m.SP)

	err := m.Step()
	var fatal *FatalError
	assert.True(t, errors.As(err, &fatal))
	assert.Equal(t, StackOverflow, fatal.Kind)
	assert.Equal(t, uint16(0x200), fatal.PC)
	assert.Equal(t, ModeHalted, m.Mode())

	// the terminal cause repeats on every later step
	assert.Equal(t, err, m.Step())
}

func TestStackUnderflow(t *testing.T) {
	m := newMachine(t, program(0x00EE))

	err := m.Step()
	var fatal *FatalError
	assert.True(t, errors.As(err, &fatal))
	assert.Equal(t, StackUnderflow, fatal.Kind)
	assert.Equal(t, ModeHalted, m.Mode())
}

func TestFetchOutOfBounds(t *testing.T) {
	m := newMachine(t, program(0x1FFF)) // jp 0xFFF

	step(t, m, 1)
	err := m.Step()
	var fatal *FatalError
	assert.True(t, errors.As(err, &fatal))
	assert.Equal(t, FetchOutOfBounds, fatal.Kind)
	assert.Equal(t, uint16(0xFFF), fatal.PC)
	assert.Equal(t, ModeHalted, m.Mode())
}

func TestSkipImmediate(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		v1     byte
		wantPC uint16
	}{
		{"se taken", 0x3142, 0x42, 0x204},
		{"se not taken", 0x3142, 0x41, 0x202},
		{"sne taken", 0x4142, 0x41, 0x204},
		{"sne not taken", 0x4142, 0x42, 0x202},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newMachine(t, program(tc.opcode))
			m.V[1] = tc.v1
			step(t, m, 1)
			assert.Equal(t, tc.wantPC, m.PC)
		})
	}
}

func TestSkipRegister(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		v1, v2 byte
		wantPC uint16
	}{
		{"se taken", 0x5120, 7, 7, 0x204},
		{"se not taken", 0x5120, 7, 8, 0x202},
		{"sne taken", 0x9120, 7, 8, 0x204},
		{"sne not taken", 0x9120, 7, 7, 0x202},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newMachine(t, program(tc.opcode))
			m.V[1], m.V[2] = tc.v1, tc.v2
			step(t, m, 1)
			assert.Equal(t, tc.wantPC, m.PC)
		})
	}
}

func TestSkipRegisterBadNibble(t *testing.T) {
	for _, opcode := range []uint16{0x5121, 0x9127} {
		m := newMachine(t, program(opcode))
		m.V[1], m.V[2] = 7, 7
		step(t, m, 1)

		// degraded to a no-op: no skip, one diagnostic
		assert.Equal(t, uint16(0x202), m.PC)
		diags := m.TakeDiagnostics()
		assert.Len(t, diags, 1)
		assert.Equal(t, UnknownOpcode, diags[0].Kind)
	}
}

func TestALU(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		v1, v2 byte
		want   byte
		wantVF byte
		noVF   bool // bitwise ops leave the flag alone
	}{
		{"ld", 0x8120, 0x00, 0xAB, 0xAB, 0, true},
		{"or", 0x8121, 0xF0, 0x0F, 0xFF, 0, true},
		{"and", 0x8122, 0xF0, 0x9F, 0x90, 0, true},
		{"xor", 0x8123, 0xFF, 0x0F, 0xF0, 0, true},
		{"add no carry", 0x8124, 0x01, 0x02, 0x03, 0, false},
		{"add carry", 0x8124, 0xFF, 0x02, 0x01, 1, false},
		{"sub no borrow", 0x8125, 0x05, 0x03, 0x02, 1, false},
		{"sub borrow", 0x8125, 0x03, 0x05, 0xFE, 0, false},
		{"sub equal", 0x8125, 0x05, 0x05, 0x00, 1, false},
		{"subn no borrow", 0x8127, 0x03, 0x05, 0x02, 1, false},
		{"subn borrow", 0x8127, 0x05, 0x03, 0xFE, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newMachine(t, program(tc.opcode))
			m.V[1], m.V[2] = tc.v1, tc.v2
			m.V[0xF] = 0x77
			step(t, m, 1)

			assert.Equal(t, tc.want, m.V[1])
			if tc.noVF {
				assert.Equal(t, byte(0x77), m.V[0xF])
			} else {
				assert.Equal(t, tc.wantVF, m.V[0xF])
			}
		})
	}
}

func TestALUFlagWinsOnVF(t *testing.T) {
	// 8F24: Vx is the flag register itself, so the carry flag must
	// overwrite the arithmetic result.
	m := newMachine(t, program(0x8F24))
	m.V[0xF] = 0xC8
	m.V[2] = 0x64
	step(t, m, 1)
	assert.Equal(t, byte(1), m.V[0xF])
}

func TestShift(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		v1     byte
		want   byte
		wantVF byte
	}{
		{"shr lsb set", 0x8126, 0x05, 0x02, 1},
		{"shr lsb clear", 0x8126, 0x04, 0x02, 0},
		{"shl msb set", 0x812E, 0x81, 0x02, 1},
		{"shl msb clear", 0x812E, 0x41, 0x82, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newMachine(t, program(tc.opcode))
			m.V[1] = tc.v1
			step(t, m, 1)
			assert.Equal(t, tc.want, m.V[1])
			assert.Equal(t, tc.wantVF, m.V[0xF])
		})
	}
}

func TestShiftSourceYQuirk(t *testing.T) {
	m := newMachine(t, program(0x8126), WithQuirks(Quirks{ShiftSourceY: true}))
	m.V[1] = 0xFF
	m.V[2] = 0x05
	step(t, m, 1)

	assert.Equal(t, byte(0x02), m.V[1])
	assert.Equal(t, byte(1), m.V[0xF])
	assert.Equal(t, byte(0x05), m.V[2])
}

func TestUnknownALUSelector(t *testing.T) {
	m := newMachine(t, program(0x8128))
	step(t, m, 1)

	diags := m.TakeDiagnostics()
	assert.Len(t, diags, 1)
	assert.Equal(t, UnknownOpcode, diags[0].Kind)
	assert.Equal(t, uint16(0x8128), diags[0].Opcode)
}

func TestLoadI(t *testing.T) {
	m := newMachine(t, program(0xA456))
	step(t, m, 1)
	assert.Equal(t, uint16(0x456), m.I)
}

func TestRandomMasksResult(t *testing.T) {
	m := newMachine(t, program(0xC17F, 0xC100),
		WithRandSource(func() byte { return 0xFF }))

	step(t, m, 1)
	assert.Equal(t, byte(0x7F), m.V[1])

	// mask 0x00 forces zero no matter the source
	step(t, m, 1)
	assert.Equal(t, byte(0x00), m.V[1])
}

func TestKeySkips(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		down   bool
		wantPC uint16
	}{
		{"skp pressed", 0xE19E, true, 0x204},
		{"skp released", 0xE19E, false, 0x202},
		{"sknp pressed", 0xE1A1, true, 0x202},
		{"sknp released", 0xE1A1, false, 0x204},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newMachine(t, program(tc.opcode))
			m.V[1] = 0x5
			m.SetKey(0x5, tc.down)
			step(t, m, 1)
			assert.Equal(t, tc.wantPC, m.PC)
		})
	}
}

func TestKeySkipMasksRegister(t *testing.T) {
	// key index is the low nibble of Vx
	m := newMachine(t, program(0xE19E))
	m.V[1] = 0x15
	m.SetKey(0x5, true)
	step(t, m, 1)
	assert.Equal(t, uint16(0x204), m.PC)
}

func TestWaitKey(t *testing.T) {
	m := newMachine(t, program(0xF10A))

	// without a pressed key the instruction re-issues itself
	step(t, m, 3)
	assert.Equal(t, uint16(0x200), m.PC)
	assert.Equal(t, byte(0), m.V[1])

	m.SetKey(0xA, true)
	step(t, m, 1)
	assert.Equal(t, uint16(0x202), m.PC)
	assert.Equal(t, byte(0xA), m.V[1])
}

func TestWaitKeyLowestWins(t *testing.T) {
	m := newMachine(t, program(0xF10A))
	m.SetKey(0xC, true)
	m.SetKey(0x3, true)
	step(t, m, 1)
	assert.Equal(t, byte(0x3), m.V[1])
}

func TestDelayTimerLoadStore(t *testing.T) {
	m := newMachine(t, program(0x613C, 0xF115, 0xF207))
	step(t, m, 2)
	assert.Equal(t, byte(0x3C), m.DelayTimer)

	step(t, m, 1)
	assert.Equal(t, byte(0x3C), m.V[2])
}

func TestAddI(t *testing.T) {
	m := newMachine(t, program(0xF11E))
	m.I = 0x100
	m.V[1] = 0x20
	step(t, m, 1)
	assert.Equal(t, uint16(0x120), m.I)
}

func TestFontAddress(t *testing.T) {
	m := newMachine(t, program(0xF129, 0xF229))
	m.V[1] = 0xA
	m.V[2] = 0x1A // only the low nibble selects the glyph
	step(t, m, 1)
	assert.Equal(t, uint16(FontAddress+0xA*GlyphSize), m.I)

	step(t, m, 1)
	assert.Equal(t, uint16(FontAddress+0xA*GlyphSize), m.I)
}

func TestBCD(t *testing.T) {
	m := newMachine(t, program(0xF133))
	m.V[1] = 254
	m.I = 0x300
	step(t, m, 1)

	assert.Equal(t, byte(2), m.Memory[0x300])
	assert.Equal(t, byte(5), m.Memory[0x301])
	assert.Equal(t, byte(4), m.Memory[0x302])
}

func TestBCDOutOfRange(t *testing.T) {
	m := newMachine(t, program(0xF133))
	m.V[1] = 123
	m.I = MemorySize - 2
	step(t, m, 1)

	// the in-range digits land, the rest is skipped with a diagnostic
	assert.Equal(t, byte(1), m.Memory[MemorySize-2])
	assert.Equal(t, byte(2), m.Memory[MemorySize-1])
	diags := m.TakeDiagnostics()
	assert.Len(t, diags, 1)
	assert.Equal(t, MemoryOutOfRange, diags[0].Kind)
	assert.Equal(t, uint16(MemorySize), diags[0].Addr)
	assert.Equal(t, ModeRunning, m.Mode())
}

func TestStoreLoadRegisters(t *testing.T) {
	m := newMachine(t, program(0xF255, 0xF465))
	m.V[0], m.V[1], m.V[2], m.V[3] = 0x11, 0x22, 0x33, 0x44
	m.I = 0x300

	step(t, m, 1)
	assert.Equal(t, byte(0x11), m.Memory[0x300])
	assert.Equal(t, byte(0x22), m.Memory[0x301])
	assert.Equal(t, byte(0x33), m.Memory[0x302])
	// V3 is past X, untouched
	assert.Equal(t, byte(0x00), m.Memory[0x303])
	assert.Equal(t, uint16(0x300), m.I)

	m.V[0], m.V[1], m.V[2], m.V[3], m.V[4] = 0, 0, 0, 0x99, 0x99
	step(t, m, 1)
	assert.Equal(t, byte(0x11), m.V[0])
	assert.Equal(t, byte(0x22), m.V[1])
	assert.Equal(t, byte(0x33), m.V[2])
	assert.Equal(t, byte(0x00), m.V[3])
	assert.Equal(t, byte(0x00), m.V[4])
	assert.Equal(t, uint16(0x300), m.I)
}

func TestStoreRegistersTruncates(t *testing.T) {
	m := newMachine(t, program(0xF355))
	m.V[0], m.V[1], m.V[2], m.V[3] = 1, 2, 3, 4
	m.I = MemorySize - 2
	step(t, m, 1)

	assert.Equal(t, byte(1), m.Memory[MemorySize-2])
	assert.Equal(t, byte(2), m.Memory[MemorySize-1])
	diags := m.TakeDiagnostics()
	assert.Len(t, diags, 1)
	assert.Equal(t, MemoryOutOfRange, diags[0].Kind)
	assert.Equal(t, ModeRunning, m.Mode())
}

func TestLoadStoreIncrementIQuirk(t *testing.T) {
	m := newMachine(t, program(0xF255), WithQuirks(Quirks{LoadStoreIncrementI: true}))
	m.I = 0x300
	step(t, m, 1)
	assert.Equal(t, uint16(0x303), m.I)
}

func TestUnknownMiscSelector(t *testing.T) {
	m := newMachine(t, program(0xF1FF))
	step(t, m, 1)

	assert.Equal(t, uint16(0x202), m.PC)
	diags := m.TakeDiagnostics()
	assert.Len(t, diags, 1)
	assert.Equal(t, UnknownOpcode, diags[0].Kind)
}

func TestObserverSeesDecodedFields(t *testing.T) {
	var got []StepInfo
	obs := observerFunc(func(info StepInfo) { got = append(got, info) })

	m := newMachine(t, program(0x6105, 0xD125), WithObserver(obs))
	step(t, m, 2)

	assert.Len(t, got, 2)
	assert.Equal(t, uint16(0x200), got[0].PC)
	assert.Equal(t, uint16(0x6105), got[0].Opcode)
	assert.Equal(t, byte(1), got[0].X)
	assert.Equal(t, byte(0x05), got[0].NN)
	assert.Equal(t, byte(0x00), got[0].Before.V[1])
	assert.Equal(t, byte(0x05), got[0].After.V[1])

	assert.Equal(t, uint16(0xD125), got[1].Opcode)
	assert.Equal(t, byte(1), got[1].X)
	assert.Equal(t, byte(2), got[1].Y)
	assert.Equal(t, byte(5), got[1].N)
}

// observerFunc adapts a function to the Observer interface.
type observerFunc func(StepInfo)

func (f observerFunc) Instruction(info StepInfo) { f(info) }
