package chip8

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"chip8vm/pkg/grid"
)

// DisplaySnapshot returns a point-in-time copy of the frame buffer. The
// presentation layer renders from the copy and must not mutate machine
// state.
func (m *Machine) DisplaySnapshot() [DisplayWidth * DisplayHeight]bool {
	return m.Display
}

// FramebufferRGBA renders the frame buffer into a 64×32 RGBA8888 byte
// slice (length 64*32*4), lit cells in fg and unlit cells in bg.
func (m *Machine) FramebufferRGBA(fg, bg color.RGBA) []byte {
	pixels := make([]byte, DisplayWidth*DisplayHeight*4)
	for i, lit := range m.Display {
		c := bg
		if lit {
			c = fg
		}
		pixels[i*4+0] = c.R
		pixels[i*4+1] = c.G
		pixels[i*4+2] = c.B
		pixels[i*4+3] = c.A
	}
	return pixels
}

// FramebufferImage returns the frame buffer as an *image.RGBA.
func (m *Machine) FramebufferImage(fg, bg color.RGBA) *image.RGBA {
	return &image.RGBA{
		Pix:    m.FramebufferRGBA(fg, bg),
		Stride: DisplayWidth * 4,
		Rect:   image.Rect(0, 0, DisplayWidth, DisplayHeight),
	}
}

// SaveScreenshot encodes the frame buffer as a PNG and writes it to
// filename.
func (m *Machine) SaveScreenshot(filename string, fg, bg color.RGBA) error {
	img := m.FramebufferImage(fg, bg)
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// Pixel reports whether the display cell at (x, y) is lit.
func (m *Machine) Pixel(x, y int) bool {
	return m.Display[grid.Index(x, y, DisplayWidth)]
}
