package source

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

var ErrNoFrames = errors.New("source: no frames")

var frameExtensions = []string{".jpg", ".jpeg", ".png"}

// ImageSource is an image sequence: a single still, or the images of a
// directory ordered by the frame number at the end of their names
// (frame_2.png before frame_10.png). All frames share the first frame's size.
type ImageSource struct {
	fs     afero.Fs
	frames []string

	sizeOnce sync.Once
	w, h     float64
	sizeErr  error
}

func NewImageSource(path string) (*ImageSource, error) {
	return NewImageSourceFs(afero.NewOsFs(), path)
}

func NewImageSourceFs(fs afero.Fs, path string) (*ImageSource, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return &ImageSource{fs: fs, frames: []string{path}}, nil
	}

	entries, err := afero.ReadDir(fs, path)
	if err != nil {
		return nil, err
	}
	var frames []string
	for _, e := range entries {
		if !e.IsDir() && slices.Contains(frameExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			frames = append(frames, e.Name())
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFrames, path)
	}
	slices.SortStableFunc(frames, compareFrameNames)
	for i, name := range frames {
		frames[i] = filepath.Join(path, name)
	}
	return &ImageSource{fs: fs, frames: frames}, nil
}

// compareFrameNames orders by trailing frame number, then by name.
func compareFrameNames(a, b string) int {
	na, oka := frameNumber(a)
	nb, okb := frameNumber(b)
	if oka && okb && na != nb {
		if na < nb {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func frameNumber(name string) (int, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	i := len(stem)
	for i > 0 && stem[i-1] >= '0' && stem[i-1] <= '9' {
		i--
	}
	n, err := strconv.Atoi(stem[i:])
	return n, err == nil
}

func (s *ImageSource) FrameCount() int {
	return len(s.frames)
}

func (s *ImageSource) FrameDimensions(index int) (float64, float64, error) {
	if err := s.check(index); err != nil {
		return 0, 0, err
	}
	s.sizeOnce.Do(func() {
		f, err := s.fs.Open(s.frames[0])
		if err != nil {
			s.sizeErr = err
			return
		}
		defer f.Close()
		cfg, _, err := image.DecodeConfig(f)
		if err != nil {
			s.sizeErr = fmt.Errorf("frame 0: %w", err)
			return
		}
		s.w, s.h = float64(cfg.Width), float64(cfg.Height)
	})
	return s.w, s.h, s.sizeErr
}

func (s *ImageSource) RenderFrame(index int) (image.Image, error) {
	if err := s.check(index); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(s.frames[index])
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", index, err)
	}
	return img, nil
}

func (s *ImageSource) check(index int) error {
	if index < 0 || index >= len(s.frames) {
		return fmt.Errorf("frame %d of %d: out of range", index, len(s.frames))
	}
	return nil
}

func (s *ImageSource) Close() error {
	return nil
}
