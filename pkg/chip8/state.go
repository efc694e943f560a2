package chip8

// State is a value copy of the whole machine, used for save-state hotkeys
// and tests. It lives in memory only; persisting emulator state across
// runs is out of scope.
type State struct {
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
	Mode       Mode
}

// Snapshot captures the current machine state.
func (m *Machine) Snapshot() State {
	return State{
		V:          m.V,
		I:          m.I,
		PC:         m.PC,
		Stack:      m.Stack,
		SP:         m.SP,
		Memory:     m.Memory,
		Display:    m.Display,
		Keys:       m.Keys,
		DelayTimer: m.DelayTimer,
		SoundTimer: m.SoundTimer,
		Mode:       m.mode,
	}
}

// Restore replaces the machine state with a previously taken snapshot.
// Restoring a non-halted snapshot clears a terminal condition.
func (m *Machine) Restore(s State) {
	m.V = s.V
	m.I = s.I
	m.PC = s.PC
	m.Stack = s.Stack
	m.SP = s.SP
	m.Memory = s.Memory
	m.Display = s.Display
	m.Keys = s.Keys
	m.DelayTimer = s.DelayTimer
	m.SoundTimer = s.SoundTimer
	m.mode = s.Mode
	if s.Mode != ModeHalted {
		m.haltCause = nil
	}
}
