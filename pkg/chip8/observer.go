package chip8

// Registers is a point-in-time copy of the register file, taken before and
// after each observed instruction.
type Registers struct {
	V          [16]byte
	I          uint16
	PC         uint16
	SP         byte
	DelayTimer byte
	SoundTimer byte
}

// StepInfo describes one executed instruction: where it was fetched, its
// decoded fields, and the register file before and after execution.
type StepInfo struct {
	PC     uint16 // fetch address
	Opcode uint16
	NNN    uint16
	NN     byte
	N      byte
	X      byte
	Y      byte

	Before Registers
	After  Registers
}

// Observer is invoked once per executed instruction. The executor never
// formats strings or performs I/O itself; tracing lives behind this seam.
type Observer interface {
	Instruction(StepInfo)
}

func (m *Machine) registers() Registers {
	return Registers{
		V:          m.V,
		I:          m.I,
		PC:         m.PC,
		SP:         m.SP,
		DelayTimer: m.DelayTimer,
		SoundTimer: m.SoundTimer,
	}
}
