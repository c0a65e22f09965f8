package decoder

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/ivlev/sphereplay/internal/source"
)

// stills plays a frame source at a fixed rate.
type stills struct {
	src source.Source
}

func openStills(fps float64, openSource func(url string) (source.Source, error)) opener {
	return func(ctx context.Context, url string) (backend, Info, error) {
		if err := ctx.Err(); err != nil {
			return nil, Info{}, err
		}
		src, err := openSource(url)
		if err != nil {
			return nil, Info{}, fmt.Errorf("open %s: %w", url, err)
		}
		count := src.FrameCount()
		if count == 0 {
			src.Close()
			return nil, Info{}, fmt.Errorf("open %s: no frames", url)
		}
		w, h, err := src.FrameDimensions(0)
		if err != nil {
			src.Close()
			return nil, Info{}, fmt.Errorf("open %s: %w", url, err)
		}
		info := Info{
			Duration:   float64(count) / fps,
			FrameCount: int64(count),
			FPS:        fps,
			Width:      int(math.Round(w)),
			Height:     int(math.Round(h)),
		}
		return &stills{src: src}, info, nil
	}
}

func (s *stills) frame(ctx context.Context, index int64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.src.RenderFrame(int(index))
}

func (s *stills) close() error {
	return s.src.Close()
}
