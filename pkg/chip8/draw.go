package chip8

import "chip8vm/pkg/grid"

// drawSprite implements DXYN: XOR-blit an N-row sprite from memory at I
// onto the display, MSB first, setting VF when a lit sprite bit lands on a
// lit pixel. Start coordinates wrap; per-pixel behavior wraps too unless
// the ClipSprites quirk is set. Sprite reads past the end of memory abort
// the remaining rows with a soft diagnostic.
func (m *Machine) drawSprite(fetchPC uint16, in instruction) {
	startX := int(m.V[in.x]) % DisplayWidth
	startY := int(m.V[in.y]) % DisplayHeight

	m.V[0xF] = 0
	for row := 0; row < int(in.n); row++ {
		addr := int(m.I) + row
		if addr >= MemorySize {
			m.report(Diagnostic{Kind: MemoryOutOfRange, PC: fetchPC, Opcode: in.opcode, Addr: uint16(addr)})
			return
		}
		sprite := m.Memory[addr]

		py := startY + row
		if m.quirks.ClipSprites {
			if py >= DisplayHeight {
				return
			}
		} else {
			py %= DisplayHeight
		}

		for bit := 0; bit < 8; bit++ {
			if sprite&(0x80>>bit) == 0 {
				continue
			}
			px := startX + bit
			if m.quirks.ClipSprites {
				if px >= DisplayWidth {
					continue
				}
			} else {
				px %= DisplayWidth
			}

			cell := grid.Index(px, py, DisplayWidth)
			if m.Display[cell] {
				m.V[0xF] = 1
			}
			m.Display[cell] = !m.Display[cell]
		}
	}
}
