package source

import (
	"fmt"
	"image"
	"image/color"
)

// MemorySource synthesizes frames on the fly. Every frame is a horizontal
// gradient whose blue channel encodes the frame index, so tests can tell
// frames apart after scaling.
type MemorySource struct {
	Frames        int
	Width, Height int
}

func NewMemorySource(frames, width, height int) *MemorySource {
	return &MemorySource{Frames: frames, Width: width, Height: height}
}

func (m *MemorySource) FrameCount() int {
	return m.Frames
}

func (m *MemorySource) FrameDimensions(index int) (float64, float64, error) {
	if index < 0 || index >= m.Frames {
		return 0, 0, fmt.Errorf("frame %d out of range [0,%d)", index, m.Frames)
	}
	return float64(m.Width), float64(m.Height), nil
}

func (m *MemorySource) RenderFrame(index int) (image.Image, error) {
	if index < 0 || index >= m.Frames {
		return nil, fmt.Errorf("frame %d out of range [0,%d)", index, m.Frames)
	}
	img := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	blue := uint8(index % 256)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / max(m.Width, 1)), G: uint8(y * 255 / max(m.Height, 1)), B: blue, A: 255})
		}
	}
	return img, nil
}

func (m *MemorySource) Close() error {
	return nil
}

// FrameIndexOf recovers the index encoded by RenderFrame, modulo 256.
func FrameIndexOf(img image.Image) int {
	b := img.Bounds()
	_, _, blue, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	return int(blue >> 8)
}
