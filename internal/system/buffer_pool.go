package system

import (
	"image"
	"sync"
)

// ImagePool recycles RGBA buffers by exact bounds. The screenshot pipeline
// scales every captured frame into a pooled buffer before encoding.
type ImagePool struct {
	mu    sync.Mutex
	free  map[image.Rectangle][]*image.RGBA
	limit int
}

// NewImagePool keeps at most four idle buffers per size.
func NewImagePool() *ImagePool {
	return &ImagePool{free: make(map[image.Rectangle][]*image.RGBA), limit: 4}
}

// Get returns a buffer with the given bounds. A recycled buffer keeps its old
// pixels.
func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	if bufs := p.free[rect]; len(bufs) > 0 {
		img := bufs[len(bufs)-1]
		p.free[rect] = bufs[:len(bufs)-1]
		return img
	}
	return image.NewRGBA(rect)
}

// Put hands img back. Buffers beyond the per-size limit are dropped.
func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if bufs := p.free[img.Rect]; len(bufs) < p.limit {
		p.free[img.Rect] = append(bufs, img)
	}
}

// Idle reports how many buffers of the given bounds are waiting for reuse.
func (p *ImagePool) Idle(rect image.Rectangle) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free[rect])
}
