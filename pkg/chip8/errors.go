package chip8

import (
	"errors"
	"fmt"
)

// Load errors. Construction aborts without producing a partial machine.
var (
	ErrRomEmpty      = errors.New("rom is empty")
	ErrRomTooLarge   = errors.New("rom too large")
	ErrRomUnreadable = errors.New("rom unreadable")
)

// ErrHalted is returned by Step and Scheduler.Advance after the machine
// was halted by an external quit signal.
var ErrHalted = errors.New("machine halted")

// FatalKind identifies the fatal execution conditions.
type FatalKind int

const (
	StackOverflow FatalKind = iota
	StackUnderflow
	FetchOutOfBounds
)

func (k FatalKind) String() string {
	switch k {
	case StackOverflow:
		return "stack overflow"
	case StackUnderflow:
		return "stack underflow"
	case FetchOutOfBounds:
		return "fetch out of bounds"
	}
	return fmt.Sprintf("fatal(%d)", int(k))
}

// FatalError is a terminal execution condition. The machine transitions to
// ModeHalted and every later Step returns the same error.
type FatalError struct {
	Kind   FatalKind
	PC     uint16 // address of the faulting instruction
	Opcode uint16 // zero for fetch faults
}

func (e *FatalError) Error() string {
	if e.Opcode == 0 {
		return fmt.Sprintf("%s at 0x%03X", e.Kind, e.PC)
	}
	return fmt.Sprintf("%s at 0x%03X (opcode 0x%04X)", e.Kind, e.PC, e.Opcode)
}

// DiagnosticKind identifies the soft, non-fatal conditions.
type DiagnosticKind int

const (
	// UnknownOpcode marks an unrecognized opcode group or sub-selector,
	// executed as a no-op.
	UnknownOpcode DiagnosticKind = iota

	// MemoryOutOfRange marks a BCD/register-dump/register-load/draw access
	// whose out-of-range portion was skipped.
	MemoryOutOfRange
)

func (k DiagnosticKind) String() string {
	switch k {
	case UnknownOpcode:
		return "unknown opcode"
	case MemoryOutOfRange:
		return "memory access out of range"
	}
	return fmt.Sprintf("diagnostic(%d)", int(k))
}

// Diagnostic is a soft condition: the operation degraded to a no-op or a
// truncated effect and execution continued.
type Diagnostic struct {
	Kind   DiagnosticKind
	PC     uint16 // address the instruction was fetched from
	Opcode uint16
	Addr   uint16 // first out-of-range address, when Kind is MemoryOutOfRange
}

func (d Diagnostic) String() string {
	if d.Kind == MemoryOutOfRange {
		return fmt.Sprintf("%s: opcode 0x%04X at 0x%03X touched 0x%04X",
			d.Kind, d.Opcode, d.PC, d.Addr)
	}
	return fmt.Sprintf("%s: 0x%04X at 0x%03X", d.Kind, d.Opcode, d.PC)
}
