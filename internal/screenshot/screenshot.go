// Package screenshot captures single frames from a video on a decoder of its
// own and writes them as JPEG thumbnails.
package screenshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/image/draw"

	"github.com/ivlev/sphereplay/internal/async"
	"github.com/ivlev/sphereplay/internal/decoder"
	"github.com/ivlev/sphereplay/internal/system"
	"github.com/ivlev/sphereplay/internal/telemetry"
)

var (
	ErrBusy           = errors.New("screenshot: capture already in progress")
	ErrInvalidRequest = errors.New("screenshot: invalid request")
	ErrClosed         = errors.New("screenshot: pipeline closed")
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 50

type State int

const (
	Idle State = iota
	Preparing
	SeekingToFrame
	FrameReady
	Encoding
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case SeekingToFrame:
		return "seeking"
	case FrameReady:
		return "frame-ready"
	case Encoding:
		return "encoding"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Request describes one capture. With KeepAspect the output keeps the source
// aspect ratio and fits inside Width x Height.
type Request struct {
	Frame       int64
	Width       float64
	Height      float64
	KeepAspect  bool
	Destination string
}

func (r Request) validate() error {
	if r.Width < 1 || r.Height < 1 {
		return fmt.Errorf("%w: size %vx%v", ErrInvalidRequest, r.Width, r.Height)
	}
	if r.Destination == "" {
		return fmt.Errorf("%w: empty destination", ErrInvalidRequest)
	}
	if r.Frame < 0 {
		return fmt.Errorf("%w: frame %d", ErrInvalidRequest, r.Frame)
	}
	return nil
}

// Pipeline runs at most one capture at a time. Like the playback controller
// it is driven by Update from the tick goroutine.
type Pipeline struct {
	url     string
	factory decoder.Factory
	fs      afero.Fs
	quality int
	log     zerolog.Logger
	metrics *telemetry.Metrics
	pool    *system.ImagePool

	dec    decoder.Decoder
	state  State
	req    Request
	out    *async.Future[string]
	closed bool
}

// New returns a pipeline capturing from url. The decoder is created on the
// first request and never shared.
func New(url string, factory decoder.Factory, fs afero.Fs, quality int, log zerolog.Logger) *Pipeline {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Pipeline{
		url:     url,
		factory: factory,
		fs:      fs,
		quality: quality,
		log:     log.With().Str("component", "screenshot").Logger(),
		metrics: telemetry.Nop(),
		pool:    system.NewImagePool(),
	}
}

func (p *Pipeline) SetMetrics(m *telemetry.Metrics) { p.metrics = m }

func (p *Pipeline) State() State { return p.state }

// Request starts a capture. The returned future resolves with the written
// path. A request made while another is in flight fails with ErrBusy and
// leaves the running capture untouched.
func (p *Pipeline) Request(req Request) (*async.Future[string], error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.state != Idle {
		return nil, ErrBusy
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if p.dec == nil {
		dec, err := p.factory()
		if err != nil {
			return nil, fmt.Errorf("create screenshot decoder: %w", err)
		}
		p.dec = dec
	}

	p.req = req
	p.out = async.NewFuture[string]()
	p.state = Preparing
	p.log.Debug().Int64("frame", req.Frame).Str("dest", req.Destination).Msg("capture requested")

	out := p.out
	p.dec.Prepare(p.url).Then(p.onPrepared)
	return out, nil
}

func (p *Pipeline) onPrepared(_ decoder.Info, err error) {
	if err != nil {
		p.fail(fmt.Errorf("prepare: %w", err))
		return
	}
	p.state = SeekingToFrame
	if err := p.dec.SetFrame(p.req.Frame); err != nil {
		p.fail(fmt.Errorf("seek to frame %d: %w", p.req.Frame, err))
		return
	}
	p.dec.RequestFrame(p.req.Frame).Then(p.onFrame)
}

func (p *Pipeline) onFrame(img image.Image, err error) {
	if err != nil {
		p.fail(fmt.Errorf("frame %d: %w", p.req.Frame, err))
		return
	}
	p.state = FrameReady
	b := img.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), p.req.Width, p.req.Height, p.req.KeepAspect)

	p.state = Encoding
	if err := p.encode(img, w, h); err != nil {
		p.fail(err)
		return
	}
	if err := p.dec.Pause(); err != nil {
		p.log.Debug().Err(err).Msg("pause after capture")
	}

	out := p.out
	p.out = nil
	p.state = Idle
	p.metrics.Screenshot(true)
	p.log.Info().Int64("frame", p.req.Frame).Int("width", w).Int("height", h).Str("dest", p.req.Destination).Msg("screenshot written")
	out.Resolve(p.req.Destination)
}

func (p *Pipeline) encode(img image.Image, w, h int) error {
	dst := p.pool.Get(image.Rect(0, 0, w, h))
	defer p.pool.Put(dst)
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: p.quality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if dir := filepath.Dir(p.req.Destination); dir != "." {
		if err := p.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(p.fs, p.req.Destination, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", p.req.Destination, err)
	}
	return nil
}

func (p *Pipeline) fail(err error) {
	p.log.Error().Err(err).Str("dest", p.req.Destination).Msg("screenshot failed")
	out := p.out
	p.out = nil
	p.state = Idle
	p.metrics.Screenshot(false)
	if out != nil {
		out.Reject(err)
	}
}

// Update ticks the capture decoder.
func (p *Pipeline) Update(dt float64) {
	if p.dec != nil && !p.closed {
		p.dec.Update(dt)
	}
}

// Close cancels an in-flight capture and releases the decoder.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.out != nil {
		p.out.Cancel()
		p.out = nil
	}
	p.state = Idle
	if p.dec != nil {
		return p.dec.Close()
	}
	return nil
}

// FitSize returns the output size for a srcW x srcH frame. With keepAspect
// the dimension with the larger scale factor is reduced so the result fits
// inside width x height.
func FitSize(srcW, srcH int, width, height float64, keepAspect bool) (int, int) {
	if keepAspect && srcW > 0 && srcH > 0 {
		widthFactor := width / float64(srcW)
		heightFactor := height / float64(srcH)
		if widthFactor > heightFactor {
			width = float64(srcW) * heightFactor
		} else {
			height = float64(srcH) * widthFactor
		}
	}
	return max(int(width), 1), max(int(height), 1)
}
