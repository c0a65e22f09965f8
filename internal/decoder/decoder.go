// Package decoder adapts media backends to the tick-driven clock the playback
// engine expects. Backends may work on their own goroutines, but every
// completion is delivered from Update so that callers observe prepare, frame
// and error results only on a tick boundary.
package decoder

import (
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"github.com/ivlev/sphereplay/internal/async"
	"github.com/ivlev/sphereplay/internal/source"
)

var (
	ErrNotPrepared        = errors.New("decoder: not prepared")
	ErrSpeedRange         = errors.New("decoder: playback speed out of range")
	ErrFrameRange         = errors.New("decoder: frame out of range")
	ErrClosed             = errors.New("decoder: closed")
	ErrNotEquirectangular = errors.New("decoder: video is not equirectangular")
	ErrUnknownBackend     = errors.New("decoder: unknown backend")
)

// MaxPlaybackSpeed is the highest multiplier a backend accepts.
const MaxPlaybackSpeed = 10.0

// Info describes a prepared media stream.
type Info struct {
	URL        string
	Duration   float64
	FrameCount int64
	FPS        float64
	Width      int
	Height     int
}

// Equirectangular reports whether the frame has the 2:1 layout of a full
// sphere.
func (i Info) Equirectangular() bool {
	return i.Height > 0 && i.Width == 2*i.Height
}

// Decoder is the transport surface of one media stream.
type Decoder interface {
	Prepare(url string) *async.Future[Info]
	Play() error
	Pause() error
	SetTime(seconds float64) error
	SetFrame(index int64) error
	SetPlaybackSpeed(multiplier float64) error

	Frame() int64
	FrameCount() int64
	Duration() float64
	Dimensions() (width, height int)
	Playing() bool

	// RequestFrame decodes a single frame. The returned future settles on a
	// later Update.
	RequestFrame(index int64) *async.Future[image.Image]

	// Update advances the clock by dt seconds and delivers pending
	// completions.
	Update(dt float64)

	// Err returns the sticky stream error, if any.
	Err() error
	Close() error
}

// Factory builds a fresh, unshared decoder.
type Factory func() (Decoder, error)

// Options selects and tunes a backend.
type Options struct {
	Backend string // ffmpeg, stills or synthetic
	FPS     float64
	DPI     int

	// Synthetic backend geometry.
	SyntheticFrames int
	SyntheticWidth  int
	SyntheticHeight int
}

func (o Options) withDefaults() Options {
	if o.FPS <= 0 {
		o.FPS = 30
	}
	if o.SyntheticFrames <= 0 {
		o.SyntheticFrames = 1800
	}
	if o.SyntheticWidth <= 0 || o.SyntheticHeight <= 0 {
		o.SyntheticWidth, o.SyntheticHeight = 2048, 1024
	}
	return o
}

// New returns a Player for the configured backend.
func New(opts Options, log zerolog.Logger) (*Player, error) {
	opts = opts.withDefaults()
	switch opts.Backend {
	case "", "ffmpeg":
		return NewPlayer(openFFmpeg, log), nil
	case "stills":
		return NewPlayer(openStills(opts.FPS, func(url string) (source.Source, error) {
			return source.Open(url, opts.DPI)
		}), log), nil
	case "synthetic":
		return NewSynthetic(opts.SyntheticFrames, opts.SyntheticWidth, opts.SyntheticHeight, opts.FPS, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// NewFactory binds opts and log into a Factory.
func NewFactory(opts Options, log zerolog.Logger) Factory {
	return func() (Decoder, error) {
		p, err := New(opts, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// NewSynthetic returns a Player over generated frames. The URL passed to
// Prepare is only recorded.
func NewSynthetic(frames, width, height int, fps float64, log zerolog.Logger) *Player {
	return NewPlayer(openStills(fps, func(string) (source.Source, error) {
		return source.NewMemorySource(frames, width, height), nil
	}), log)
}

var _ Decoder = (*Player)(nil)
