package decoder

import (
	"context"
	"fmt"
	"image"

	"github.com/ivlev/sphereplay/internal/system"
)

// ffmpegStream extracts frames by seeking ffmpeg to the frame time and reading
// one raw RGBA frame from its stdout.
type ffmpegStream struct {
	url  string
	info Info
}

func openFFmpeg(ctx context.Context, url string) (backend, Info, error) {
	probe, err := system.ProbeVideo(ctx, url)
	if err != nil {
		return nil, Info{}, err
	}
	if probe.FPS <= 0 || probe.FrameCount <= 0 {
		return nil, Info{}, fmt.Errorf("probe %s: no frame rate", url)
	}
	info := Info{
		Duration:   probe.Duration,
		FrameCount: probe.FrameCount,
		FPS:        probe.FPS,
		Width:      probe.Width,
		Height:     probe.Height,
	}
	return &ffmpegStream{url: url, info: info}, info, nil
}

func (s *ffmpegStream) frame(ctx context.Context, index int64) (image.Image, error) {
	args := frameArgs(s.url, float64(index)/s.info.FPS)
	out, err := execOutput(ctx, "ffmpeg", args...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame %d: %w", index, err)
	}
	return rawRGBA(out, s.info.Width, s.info.Height)
}

func (s *ffmpegStream) close() error { return nil }

func frameArgs(url string, seconds float64) []string {
	return []string{
		"-v", "error",
		"-ss", fmt.Sprintf("%f", seconds),
		"-i", url,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	}
}

func rawRGBA(data []byte, width, height int) (*image.RGBA, error) {
	want := width * height * 4
	if len(data) < want {
		return nil, fmt.Errorf("short frame: got %d bytes, want %d", len(data), want)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, data[:want])
	return img, nil
}
