// Package trace logs executed instructions in disassembled form. It hooks
// into the interpreter as an observer and emits one log line per step,
// including the register changes the instruction caused.
package trace

import (
	"fmt"
	"strings"

	chip8def "github.com/retroenv/retrogolib/arch/cpu/chip8"
	"github.com/retroenv/retrogolib/log"

	"chip8vm/pkg/chip8"
)

// Tracer implements chip8.Observer and writes one debug log line per
// executed instruction.
type Tracer struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Tracer {
	return &Tracer{
		logger: logger,
	}
}

// Instruction logs a single executed instruction with its disassembly
// and the register deltas it caused.
func (t *Tracer) Instruction(info chip8.StepInfo) {
	fields := []log.Field{
		log.String("pc", fmt.Sprintf("0x%03X", info.PC)),
		log.String("op", fmt.Sprintf("0x%04X", info.Opcode)),
		log.String("asm", Disassemble(info.Opcode)),
	}
	if delta := registerDelta(info.Before, info.After); delta != "" {
		fields = append(fields, log.String("delta", delta))
	}
	t.logger.Debug("step", fields...)
}

// Disassemble renders a 16-bit opcode as assembly text. Opcodes that do
// not match any known instruction are rendered as raw data.
func Disassemble(opcode uint16) string {
	ins := lookup(opcode)
	if ins == nil {
		return fmt.Sprintf(".byte $%02X, $%02X", opcode>>8, opcode&0xFF)
	}
	if params := formatParams(ins.Name, opcode); params != "" {
		return fmt.Sprintf("%s %s", ins.Name, params)
	}
	return ins.Name
}

// lookup finds the instruction matching an opcode word, using the
// first-nibble index and mask matching of the opcode table.
func lookup(w uint16) *chip8def.Instruction {
	firstNibble := (w & 0xF000) >> 12
	for _, op := range chip8def.Opcodes[int(firstNibble)] {
		if op.Info.Mask&w == op.Info.Value {
			return op.Instruction
		}
	}
	return nil
}

// formatParams returns the operand string for an instruction, or ""
// when the instruction takes no operands.
func formatParams(name string, opcode uint16) string {
	x := (opcode & 0x0F00) >> 8
	y := (opcode & 0x00F0) >> 4
	nnn := opcode & 0x0FFF
	nn := opcode & 0x00FF
	n := opcode & 0x000F

	switch name {
	case chip8def.ClsInst.Name, chip8def.RetInst.Name:
		return ""
	case chip8def.JpInst.Name:
		if opcode&0xF000 == 0xB000 {
			return fmt.Sprintf("V0, $%03X", nnn)
		}
		return fmt.Sprintf("$%03X", nnn)
	case chip8def.CallInst.Name:
		return fmt.Sprintf("$%03X", nnn)
	case chip8def.SeInst.Name, chip8def.SneInst.Name:
		if opcode&0xF000 == 0x5000 || opcode&0xF000 == 0x9000 {
			return fmt.Sprintf("V%X, V%X", x, y)
		}
		return fmt.Sprintf("V%X, $%02X", x, nn)
	case chip8def.LdInst.Name:
		return formatLoadParams(opcode, x, y, nnn, nn)
	case chip8def.AddInst.Name:
		switch opcode & 0xF000 {
		case 0x7000:
			return fmt.Sprintf("V%X, $%02X", x, nn)
		case 0x8000:
			return fmt.Sprintf("V%X, V%X", x, y)
		default:
			return fmt.Sprintf("I, V%X", x)
		}
	case chip8def.OrInst.Name, chip8def.AndInst.Name, chip8def.XorInst.Name,
		chip8def.SubInst.Name, chip8def.SubnInst.Name:
		return fmt.Sprintf("V%X, V%X", x, y)
	case chip8def.ShrInst.Name, chip8def.ShlInst.Name:
		return fmt.Sprintf("V%X", x)
	case chip8def.RndInst.Name:
		return fmt.Sprintf("V%X, $%02X", x, nn)
	case chip8def.DrwInst.Name:
		return fmt.Sprintf("V%X, V%X, $%X", x, y, n)
	case chip8def.SkpInst.Name, chip8def.SknpInst.Name:
		return fmt.Sprintf("V%X", x)
	}
	return ""
}

// formatLoadParams handles the many LD variants.
func formatLoadParams(opcode, x, y, nnn, nn uint16) string {
	switch opcode & 0xF000 {
	case 0x6000:
		return fmt.Sprintf("V%X, $%02X", x, nn)
	case 0x8000:
		return fmt.Sprintf("V%X, V%X", x, y)
	case 0xA000:
		return fmt.Sprintf("I, $%03X", nnn)
	}

	switch opcode & 0x00FF {
	case 0x07:
		return fmt.Sprintf("V%X, DT", x)
	case 0x0A:
		return fmt.Sprintf("V%X, K", x)
	case 0x15:
		return fmt.Sprintf("DT, V%X", x)
	case 0x18:
		return fmt.Sprintf("ST, V%X", x)
	case 0x29:
		return fmt.Sprintf("F, V%X", x)
	case 0x33:
		return fmt.Sprintf("B, V%X", x)
	case 0x55:
		return fmt.Sprintf("[I], V%X", x)
	case 0x65:
		return fmt.Sprintf("V%X, [I]", x)
	}
	return ""
}

// registerDelta describes the register changes between two snapshots.
func registerDelta(before, after chip8.Registers) string {
	var parts []string
	for i := range after.V {
		if before.V[i] != after.V[i] {
			parts = append(parts, fmt.Sprintf("V%X=0x%02X", i, after.V[i]))
		}
	}
	if before.I != after.I {
		parts = append(parts, fmt.Sprintf("I=0x%03X", after.I))
	}
	if before.SP != after.SP {
		parts = append(parts, fmt.Sprintf("SP=%d", after.SP))
	}
	if before.DelayTimer != after.DelayTimer {
		parts = append(parts, fmt.Sprintf("DT=%d", after.DelayTimer))
	}
	if before.SoundTimer != after.SoundTimer {
		parts = append(parts, fmt.Sprintf("ST=%d", after.SoundTimer))
	}
	return strings.Join(parts, " ")
}
