package chip8

// TickTimers decrements both countdown timers by one, saturating at zero.
// It is invoked at a fixed logical 60 Hz by the scheduler, decoupled from
// instruction throughput. When the sound timer counts down to zero the
// Tone collaborator receives its stop edge.
func (m *Machine) TickTimers() {
	if m.DelayTimer > 0 {
		m.DelayTimer--
	}
	if m.SoundTimer > 0 {
		m.SoundTimer--
		if m.SoundTimer == 0 && m.tone != nil {
			m.tone.Stop()
		}
	}
}
