// Package asm implements a two-pass assembler for the base CHIP-8
// instruction set using the conventional Cowgod mnemonics. The output is
// a ROM image whose first byte loads at address 0x200.
package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"chip8vm/pkg/chip8"
)

const instructionSize = 2

// Assembler resolves labels in pass 1 and emits opcodes in pass 2.
type Assembler struct {
	labels map[string]uint16
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]uint16),
	}
}

// Assemble translates source into a ROM image.
func Assemble(code string) ([]byte, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) ([]byte, error) {
	lines := strings.Split(code, "\n")

	if err := a.pass1(lines); err != nil {
		return nil, err
	}
	return a.pass2(lines)
}

// pass1 assigns addresses to labels. Addresses are absolute machine
// addresses, so the first instruction sits at 0x200.
func (a *Assembler) pass1(lines []string) error {
	address := uint32(chip8.ProgramStart)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}

		for _, lbl := range p.labels {
			key := normalizeLabel(lbl)
			if _, exists := a.labels[key]; exists {
				return fmt.Errorf("duplicate label %q on line %d", lbl, lineNo)
			}
			if address >= chip8.MemorySize {
				return fmt.Errorf("label %q on line %d points past addressable memory", lbl, lineNo)
			}
			a.labels[key] = uint16(address)
		}

		size, err := a.sizeOf(p)
		if err != nil {
			return err
		}
		if p.mnemonic == ".ORG" {
			target, err := a.resolveValue(p.operands[0], lineNo)
			if err != nil {
				return err
			}
			if uint32(target) < address {
				return fmt.Errorf(".org on line %d moves backwards (0x%03X < 0x%03X)", lineNo, target, address)
			}
			address = uint32(target)
			continue
		}
		address += size
		if address > chip8.MemorySize {
			return fmt.Errorf("program too large near line %d", lineNo)
		}
	}
	return nil
}

// sizeOf returns the emitted size in bytes of a parsed line.
func (a *Assembler) sizeOf(p parsedLine) (uint32, error) {
	switch p.mnemonic {
	case "":
		return 0, nil
	case ".ORG":
		if len(p.operands) != 1 {
			return 0, fmt.Errorf(".org expects exactly one operand on line %d", p.lineNo)
		}
		return 0, nil
	case ".BYTE":
		if len(p.operands) == 0 {
			return 0, fmt.Errorf(".byte expects at least one operand on line %d", p.lineNo)
		}
		return uint32(len(p.operands)), nil
	default:
		return instructionSize, nil
	}
}

func (a *Assembler) pass2(lines []string) ([]byte, error) {
	rom := make([]byte, 0, chip8.MaxROMSize)
	address := uint32(chip8.ProgramStart)

	emit := func(b ...byte) {
		offset := int(address) - chip8.ProgramStart
		for len(rom) < offset+len(b) {
			rom = append(rom, 0)
		}
		copy(rom[offset:], b)
		address += uint32(len(b))
	}

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, err
		}

		switch p.mnemonic {
		case "":
		case ".ORG":
			target, err := a.resolveValue(p.operands[0], lineNo)
			if err != nil {
				return nil, err
			}
			address = uint32(target)
		case ".BYTE":
			for _, op := range p.operands {
				v, err := a.resolveValue(op, lineNo)
				if err != nil {
					return nil, err
				}
				if v > 0xFF {
					return nil, fmt.Errorf(".byte value 0x%X does not fit in a byte on line %d", v, lineNo)
				}
				emit(byte(v))
			}
		default:
			opcode, err := a.encode(p)
			if err != nil {
				return nil, err
			}
			emit(byte(opcode>>8), byte(opcode))
		}
	}

	if len(rom) == 0 {
		return nil, fmt.Errorf("source assembles to an empty rom")
	}
	return rom, nil
}

// encode translates one instruction line into its 16-bit opcode.
func (a *Assembler) encode(p parsedLine) (uint16, error) {
	ops := p.operands

	operands := func(n int) error {
		if len(ops) != n {
			return fmt.Errorf("%s expects %d operand(s), got %d on line %d", p.mnemonic, n, len(ops), p.lineNo)
		}
		return nil
	}

	switch p.mnemonic {
	case "CLS":
		if err := operands(0); err != nil {
			return 0, err
		}
		return 0x00E0, nil

	case "RET":
		if err := operands(0); err != nil {
			return 0, err
		}
		return 0x00EE, nil

	case "JP":
		switch len(ops) {
		case 1:
			nnn, err := a.address(ops[0], p.lineNo)
			return 0x1000 | nnn, err
		case 2:
			if !strings.EqualFold(ops[0], "V0") {
				return 0, fmt.Errorf("jp with two operands requires V0 on line %d", p.lineNo)
			}
			nnn, err := a.address(ops[1], p.lineNo)
			return 0xB000 | nnn, err
		}
		return 0, fmt.Errorf("jp expects 1 or 2 operands on line %d", p.lineNo)

	case "CALL":
		if err := operands(1); err != nil {
			return 0, err
		}
		nnn, err := a.address(ops[0], p.lineNo)
		return 0x2000 | nnn, err

	case "SE", "SNE":
		if err := operands(2); err != nil {
			return 0, err
		}
		x, err := parseRegister(ops[0], p.lineNo)
		if err != nil {
			return 0, err
		}
		if y, err := parseRegister(ops[1], p.lineNo); err == nil {
			base := uint16(0x5000)
			if p.mnemonic == "SNE" {
				base = 0x9000
			}
			return base | x<<8 | y<<4, nil
		}
		nn, err := a.immediate(ops[1], p.lineNo)
		if err != nil {
			return 0, err
		}
		base := uint16(0x3000)
		if p.mnemonic == "SNE" {
			base = 0x4000
		}
		return base | x<<8 | nn, nil

	case "LD":
		return a.encodeLoad(p)

	case "ADD":
		if err := operands(2); err != nil {
			return 0, err
		}
		if strings.EqualFold(ops[0], "I") {
			x, err := parseRegister(ops[1], p.lineNo)
			return 0xF01E | x<<8, err
		}
		x, err := parseRegister(ops[0], p.lineNo)
		if err != nil {
			return 0, err
		}
		if y, err := parseRegister(ops[1], p.lineNo); err == nil {
			return 0x8004 | x<<8 | y<<4, nil
		}
		nn, err := a.immediate(ops[1], p.lineNo)
		return 0x7000 | x<<8 | nn, err

	case "OR", "AND", "XOR", "SUB", "SUBN":
		if err := operands(2); err != nil {
			return 0, err
		}
		x, err := parseRegister(ops[0], p.lineNo)
		if err != nil {
			return 0, err
		}
		y, err := parseRegister(ops[1], p.lineNo)
		if err != nil {
			return 0, err
		}
		n := map[string]uint16{"OR": 0x1, "AND": 0x2, "XOR": 0x3, "SUB": 0x5, "SUBN": 0x7}[p.mnemonic]
		return 0x8000 | x<<8 | y<<4 | n, nil

	case "SHR", "SHL":
		if len(ops) != 1 && len(ops) != 2 {
			return 0, fmt.Errorf("%s expects 1 or 2 operands on line %d", p.mnemonic, p.lineNo)
		}
		x, err := parseRegister(ops[0], p.lineNo)
		if err != nil {
			return 0, err
		}
		var y uint16
		if len(ops) == 2 {
			if y, err = parseRegister(ops[1], p.lineNo); err != nil {
				return 0, err
			}
		}
		n := uint16(0x6)
		if p.mnemonic == "SHL" {
			n = 0xE
		}
		return 0x8000 | x<<8 | y<<4 | n, nil

	case "RND":
		if err := operands(2); err != nil {
			return 0, err
		}
		x, err := parseRegister(ops[0], p.lineNo)
		if err != nil {
			return 0, err
		}
		nn, err := a.immediate(ops[1], p.lineNo)
		return 0xC000 | x<<8 | nn, err

	case "DRW":
		if err := operands(3); err != nil {
			return 0, err
		}
		x, err := parseRegister(ops[0], p.lineNo)
		if err != nil {
			return 0, err
		}
		y, err := parseRegister(ops[1], p.lineNo)
		if err != nil {
			return 0, err
		}
		n, err := a.resolveValue(ops[2], p.lineNo)
		if err != nil {
			return 0, err
		}
		if n > 0xF {
			return 0, fmt.Errorf("drw height %d exceeds 15 on line %d", n, p.lineNo)
		}
		return 0xD000 | x<<8 | y<<4 | n, nil

	case "SKP", "SKNP":
		if err := operands(1); err != nil {
			return 0, err
		}
		x, err := parseRegister(ops[0], p.lineNo)
		if err != nil {
			return 0, err
		}
		nn := uint16(0x9E)
		if p.mnemonic == "SKNP" {
			nn = 0xA1
		}
		return 0xE000 | x<<8 | nn, nil
	}

	return 0, fmt.Errorf("unknown mnemonic %q on line %d", p.mnemonic, p.lineNo)
}

// encodeLoad handles every LD form.
func (a *Assembler) encodeLoad(p parsedLine) (uint16, error) {
	if len(p.operands) != 2 {
		return 0, fmt.Errorf("ld expects 2 operands on line %d", p.lineNo)
	}
	dst, src := p.operands[0], p.operands[1]

	switch {
	case strings.EqualFold(dst, "I"):
		nnn, err := a.address(src, p.lineNo)
		return 0xA000 | nnn, err
	case strings.EqualFold(dst, "DT"):
		x, err := parseRegister(src, p.lineNo)
		return 0xF015 | x<<8, err
	case strings.EqualFold(dst, "ST"):
		x, err := parseRegister(src, p.lineNo)
		return 0xF018 | x<<8, err
	case strings.EqualFold(dst, "F"):
		x, err := parseRegister(src, p.lineNo)
		return 0xF029 | x<<8, err
	case strings.EqualFold(dst, "B"):
		x, err := parseRegister(src, p.lineNo)
		return 0xF033 | x<<8, err
	case strings.EqualFold(dst, "[I]"):
		x, err := parseRegister(src, p.lineNo)
		return 0xF055 | x<<8, err
	}

	x, err := parseRegister(dst, p.lineNo)
	if err != nil {
		return 0, err
	}
	switch {
	case strings.EqualFold(src, "DT"):
		return 0xF007 | x<<8, nil
	case strings.EqualFold(src, "K"):
		return 0xF00A | x<<8, nil
	case strings.EqualFold(src, "[I]"):
		return 0xF065 | x<<8, nil
	}
	if y, err := parseRegister(src, p.lineNo); err == nil {
		return 0x8000 | x<<8 | y<<4, nil
	}
	nn, err := a.immediate(src, p.lineNo)
	return 0x6000 | x<<8 | nn, err
}

// address resolves a 12-bit address operand (number or label).
func (a *Assembler) address(op string, lineNo int) (uint16, error) {
	v, err := a.resolveValue(op, lineNo)
	if err != nil {
		return 0, err
	}
	if v > 0x0FFF {
		return 0, fmt.Errorf("address 0x%X exceeds 12 bits on line %d", v, lineNo)
	}
	return v, nil
}

// immediate resolves an 8-bit immediate operand.
func (a *Assembler) immediate(op string, lineNo int) (uint16, error) {
	v, err := a.resolveValue(op, lineNo)
	if err != nil {
		return 0, err
	}
	if v > 0xFF {
		return 0, fmt.Errorf("immediate 0x%X exceeds 8 bits on line %d", v, lineNo)
	}
	return v, nil
}

// resolveValue parses a numeric literal or resolves a label reference.
func (a *Assembler) resolveValue(op string, lineNo int) (uint16, error) {
	if v, ok := parseNumber(op); ok {
		return v, nil
	}
	if isIdentifier(op) {
		if v, ok := a.labels[normalizeLabel(op)]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("undefined label %q on line %d", op, lineNo)
	}
	return 0, fmt.Errorf("cannot parse operand %q on line %d", op, lineNo)
}

// parseLine splits a raw source line into labels, mnemonic, and operands.
// Comments start with ';'.
func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := raw
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)

	for {
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			break
		}
		lbl := strings.TrimSpace(line[:idx])
		if !isIdentifier(lbl) {
			return p, fmt.Errorf("invalid label %q on line %d", lbl, lineNo)
		}
		p.labels = append(p.labels, lbl)
		line = strings.TrimSpace(line[idx+1:])
	}

	if line == "" {
		return p, nil
	}

	fields := strings.SplitN(line, " ", 2)
	p.mnemonic = strings.ToUpper(fields[0])
	if len(fields) == 2 {
		for _, op := range strings.Split(fields[1], ",") {
			op = strings.TrimSpace(op)
			if op == "" {
				return p, fmt.Errorf("empty operand on line %d", lineNo)
			}
			p.operands = append(p.operands, op)
		}
	}
	return p, nil
}

// parseRegister parses V0..VF into a register index.
func parseRegister(op string, lineNo int) (uint16, error) {
	if len(op) != 2 || (op[0] != 'V' && op[0] != 'v') {
		return 0, fmt.Errorf("expected register, got %q on line %d", op, lineNo)
	}
	v, err := strconv.ParseUint(op[1:], 16, 4)
	if err != nil {
		return 0, fmt.Errorf("expected register, got %q on line %d", op, lineNo)
	}
	return uint16(v), nil
}

// parseNumber parses decimal, 0x-prefixed hex, and $-prefixed hex.
func parseNumber(op string) (uint16, bool) {
	s := op
	base := 10
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s, base = s[2:], 16
	case strings.HasPrefix(s, "$"):
		s, base = s[1:], 16
	}
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

func normalizeLabel(s string) string {
	return strings.ToUpper(s)
}
