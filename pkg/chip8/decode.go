package chip8

// instruction holds the decoded fields of one 16-bit opcode. It is
// recomputed on every fetch and never persisted.
type instruction struct {
	opcode uint16 // full big-endian opcode
	nnn    uint16 // lowest 12 bits, address
	nn     byte   // lowest 8 bits, immediate
	n      byte   // lowest 4 bits, nibble
	x      byte   // bits 8-11, register selector
	y      byte   // bits 4-7, register selector
}

// decode extracts all opcode fields from the two fetched bytes. Every
// 16-bit value decodes to well-formed fields; unrecognized opcode groups
// are the executor's concern.
func decode(hi, lo byte) instruction {
	opcode := uint16(hi)<<8 | uint16(lo)
	return instruction{
		opcode: opcode,
		nnn:    opcode & 0x0FFF,
		nn:     byte(opcode & 0x00FF),
		n:      byte(opcode & 0x000F),
		x:      byte(opcode >> 8 & 0x0F),
		y:      byte(opcode >> 4 & 0x0F),
	}
}
