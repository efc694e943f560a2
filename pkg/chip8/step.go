package chip8

// Step runs one fetch/decode/execute cycle. It returns nil on normal
// continuation, a *FatalError when the machine hit a terminal condition
// (the mode transitions to ModeHalted), or ErrHalted when the machine was
// already halted by an external quit. Paused machines do not execute.
func (m *Machine) Step() error {
	switch m.mode {
	case ModeHalted:
		return m.haltCause
	case ModePaused:
		return nil
	}

	fetchPC := m.PC
	if int(fetchPC)+1 >= MemorySize {
		return m.halt(&FatalError{Kind: FetchOutOfBounds, PC: fetchPC})
	}
	in := decode(m.Memory[fetchPC], m.Memory[fetchPC+1])
	m.PC += 2

	var before Registers
	if m.observer != nil {
		before = m.registers()
	}

	if err := m.exec(fetchPC, in); err != nil {
		return err
	}

	if m.observer != nil {
		m.observer.Instruction(StepInfo{
			PC:     fetchPC,
			Opcode: in.opcode,
			NNN:    in.nnn,
			NN:     in.nn,
			N:      in.n,
			X:      in.x,
			Y:      in.y,
			Before: before,
			After:  m.registers(),
		})
	}
	return nil
}

// exec dispatches on the high nibble of the opcode. Unknown groups and
// sub-selectors degrade to no-ops reported as soft diagnostics.
func (m *Machine) exec(fetchPC uint16, in instruction) error {
	switch in.opcode >> 12 {
	case 0x0:
		switch in.nn {
		case 0xE0: // CLS
			m.Display = [DisplayWidth * DisplayHeight]bool{}
		case 0xEE: // RET
			if m.SP == 0 {
				return m.halt(&FatalError{Kind: StackUnderflow, PC: fetchPC, Opcode: in.opcode})
			}
			m.SP--
			m.PC = m.Stack[m.SP]
		default: // 0NNN machine code routines are not supported
			m.report(Diagnostic{Kind: UnknownOpcode, PC: fetchPC, Opcode: in.opcode})
		}

	case 0x1: // JP addr
		m.PC = in.nnn

	case 0x2: // CALL addr
		if int(m.SP) == StackDepth {
			return m.halt(&FatalError{Kind: StackOverflow, PC: fetchPC, Opcode: in.opcode})
		}
		m.Stack[m.SP] = m.PC
		m.SP++
		m.PC = in.nnn

	case 0x3: // SE Vx, byte
		if m.V[in.x] == in.nn {
			m.PC += 2
		}

	case 0x4: // SNE Vx, byte
		if m.V[in.x] != in.nn {
			m.PC += 2
		}

	case 0x5: // SE Vx, Vy
		if in.n != 0 {
			m.report(Diagnostic{Kind: UnknownOpcode, PC: fetchPC, Opcode: in.opcode})
			break
		}
		if m.V[in.x] == m.V[in.y] {
			m.PC += 2
		}

	case 0x6: // LD Vx, byte
		m.V[in.x] = in.nn

	case 0x7: // ADD Vx, byte (no flag change)
		m.V[in.x] += in.nn

	case 0x8:
		m.execALU(fetchPC, in)

	case 0x9: // SNE Vx, Vy
		if in.n != 0 {
			m.report(Diagnostic{Kind: UnknownOpcode, PC: fetchPC, Opcode: in.opcode})
			break
		}
		if m.V[in.x] != m.V[in.y] {
			m.PC += 2
		}

	case 0xA: // LD I, addr
		m.I = in.nnn

	case 0xB: // JP V0, addr
		m.PC = in.nnn + uint16(m.V[0])

	case 0xC: // RND Vx, byte
		m.V[in.x] = m.randByte() & in.nn

	case 0xD: // DRW Vx, Vy, nibble
		m.drawSprite(fetchPC, in)

	case 0xE:
		key := m.V[in.x] & 0xF
		switch in.nn {
		case 0x9E: // SKP Vx
			if m.Keys[key] {
				m.PC += 2
			}
		case 0xA1: // SKNP Vx
			if !m.Keys[key] {
				m.PC += 2
			}
		default:
			m.report(Diagnostic{Kind: UnknownOpcode, PC: fetchPC, Opcode: in.opcode})
		}

	case 0xF:
		m.execMisc(fetchPC, in)
	}
	return nil
}

// execALU handles the 8XYN register-register group. Flags are computed
// from pre-operation values, so a flag write wins when X is 0xF.
func (m *Machine) execALU(fetchPC uint16, in instruction) {
	switch in.n {
	case 0x0: // LD Vx, Vy
		m.V[in.x] = m.V[in.y]
	case 0x1: // OR Vx, Vy
		m.V[in.x] |= m.V[in.y]
	case 0x2: // AND Vx, Vy
		m.V[in.x] &= m.V[in.y]
	case 0x3: // XOR Vx, Vy
		m.V[in.x] ^= m.V[in.y]
	case 0x4: // ADD Vx, Vy with carry flag
		sum := uint16(m.V[in.x]) + uint16(m.V[in.y])
		m.V[in.x] = byte(sum)
		m.V[0xF] = flag(sum > 0xFF)
	case 0x5: // SUB Vx, Vy with no-borrow flag
		noBorrow := m.V[in.x] >= m.V[in.y]
		m.V[in.x] -= m.V[in.y]
		m.V[0xF] = flag(noBorrow)
	case 0x6: // SHR
		src := m.V[in.x]
		if m.quirks.ShiftSourceY {
			src = m.V[in.y]
		}
		m.V[in.x] = src >> 1
		m.V[0xF] = src & 0x1
	case 0x7: // SUBN Vx, Vy with no-borrow flag
		noBorrow := m.V[in.y] >= m.V[in.x]
		m.V[in.x] = m.V[in.y] - m.V[in.x]
		m.V[0xF] = flag(noBorrow)
	case 0xE: // SHL
		src := m.V[in.x]
		if m.quirks.ShiftSourceY {
			src = m.V[in.y]
		}
		m.V[in.x] = src << 1
		m.V[0xF] = src >> 7
	default:
		m.report(Diagnostic{Kind: UnknownOpcode, PC: fetchPC, Opcode: in.opcode})
	}
}

// execMisc handles the FXNN group.
func (m *Machine) execMisc(fetchPC uint16, in instruction) {
	switch in.nn {
	case 0x07: // LD Vx, DT
		m.V[in.x] = m.DelayTimer

	case 0x0A: // LD Vx, K: re-issue this instruction until a key is seen
		for key := 0; key < NumKeys; key++ {
			if m.Keys[key] {
				m.V[in.x] = byte(key)
				return
			}
		}
		m.PC -= 2

	case 0x15: // LD DT, Vx
		m.DelayTimer = m.V[in.x]

	case 0x18: // LD ST, Vx
		m.setSoundTimer(m.V[in.x])

	case 0x1E: // ADD I, Vx (16-bit wrap, no flag)
		m.I += uint16(m.V[in.x])

	case 0x29: // LD F, Vx
		m.I = FontAddress + uint16(m.V[in.x]&0xF)*GlyphSize

	case 0x33: // LD B, Vx
		v := m.V[in.x]
		digits := [3]byte{v / 100, v / 10 % 10, v % 10}
		for i, d := range digits {
			addr := int(m.I) + i
			if addr >= MemorySize {
				m.report(Diagnostic{Kind: MemoryOutOfRange, PC: fetchPC, Opcode: in.opcode, Addr: uint16(addr)})
				return
			}
			m.Memory[addr] = d
		}

	case 0x55: // LD [I], Vx
		for i := 0; i <= int(in.x); i++ {
			addr := int(m.I) + i
			if addr >= MemorySize {
				m.report(Diagnostic{Kind: MemoryOutOfRange, PC: fetchPC, Opcode: in.opcode, Addr: uint16(addr)})
				break
			}
			m.Memory[addr] = m.V[i]
		}
		if m.quirks.LoadStoreIncrementI {
			m.I += uint16(in.x) + 1
		}

	case 0x65: // LD Vx, [I]
		for i := 0; i <= int(in.x); i++ {
			addr := int(m.I) + i
			if addr >= MemorySize {
				m.report(Diagnostic{Kind: MemoryOutOfRange, PC: fetchPC, Opcode: in.opcode, Addr: uint16(addr)})
				break
			}
			m.V[i] = m.Memory[addr]
		}
		if m.quirks.LoadStoreIncrementI {
			m.I += uint16(in.x) + 1
		}

	default:
		m.report(Diagnostic{Kind: UnknownOpcode, PC: fetchPC, Opcode: in.opcode})
	}
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}
