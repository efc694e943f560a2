package main

import (
	"github.com/hajimehoshi/ebiten/v2/audio"

	"chip8vm/pkg/chip8"
)

const (
	sampleRate    = 48000
	toneFrequency = 440
	toneAmplitude = 6000
)

// beeper plays a fixed square wave while the sound timer runs. It
// implements chip8.Tone: the machine delivers start and stop edges, the
// player holds the level in between.
type beeper struct {
	player *audio.Player
}

var _ chip8.Tone = (*beeper)(nil)

func newBeeper() (*beeper, error) {
	ctx := audio.NewContext(sampleRate)
	player, err := ctx.NewPlayer(&squareWave{})
	if err != nil {
		return nil, err
	}
	return &beeper{player: player}, nil
}

func (b *beeper) Start() {
	b.player.Play()
}

func (b *beeper) Stop() {
	b.player.Pause()
}

// squareWave generates an endless square wave as 16-bit little-endian
// stereo samples.
type squareWave struct {
	pos int64
}

func (s *squareWave) Read(buf []byte) (int, error) {
	const halfPeriod = sampleRate / toneFrequency / 2

	n := len(buf) / 4 * 4
	for i := 0; i < n; i += 4 {
		sample := int16(toneAmplitude)
		if (s.pos/halfPeriod)%2 == 1 {
			sample = -toneAmplitude
		}
		s.pos++

		// same sample on the left and right channel
		lo, hi := byte(sample), byte(sample>>8)
		buf[i], buf[i+1] = lo, hi
		buf[i+2], buf[i+3] = lo, hi
	}
	return n, nil
}
