// Package decodertest provides a scriptable in-memory decoder.
package decodertest

import (
	"image"
	"image/color"
	"math"

	"github.com/ivlev/sphereplay/internal/async"
	"github.com/ivlev/sphereplay/internal/decoder"
)

// Fake is a synchronous decoder.Decoder. Prepare and frame requests settle on
// the next Update unless held, which lets tests observe the in-between states.
type Fake struct {
	Info       decoder.Info
	PrepareErr error
	FrameErr   error

	// HoldPrepare and HoldFrames keep completions pending until
	// ReleasePrepare / ReleaseFrames.
	HoldPrepare bool
	HoldFrames  bool

	SetTimeCalls []float64
	Plays        int
	Pauses       int
	Speed        float64
	Closed       bool

	prepared bool
	playing  bool
	pos      float64
	err      error

	prepare *async.Future[decoder.Info]
	frames  []pendingFrame
	ready   []func()
}

type pendingFrame struct {
	index int64
	f     *async.Future[image.Image]
}

// New returns a Fake describing a 2:1 stream of duration seconds at fps.
func New(duration, fps float64) *Fake {
	return &Fake{
		Info: decoder.Info{
			Duration:   duration,
			FrameCount: int64(math.Round(duration * fps)),
			FPS:        fps,
			Width:      64,
			Height:     32,
		},
		Speed: 1,
	}
}

// Factory returns a decoder.Factory that always hands out f.
func (f *Fake) Factory() decoder.Factory {
	return func() (decoder.Decoder, error) { return f, nil }
}

func (f *Fake) Prepare(url string) *async.Future[decoder.Info] {
	if f.Closed {
		return async.Failed[decoder.Info](decoder.ErrClosed)
	}
	if f.prepare != nil {
		f.prepare.Cancel()
	}
	f.prepared = false
	f.playing = false
	f.pos = 0
	f.Info.URL = url
	f.prepare = async.NewFuture[decoder.Info]()
	if !f.HoldPrepare {
		f.ready = append(f.ready, f.ReleasePrepare)
	}
	return f.prepare
}

// ReleasePrepare settles the pending prepare.
func (f *Fake) ReleasePrepare() {
	p := f.prepare
	if p == nil {
		return
	}
	f.prepare = nil
	if f.PrepareErr != nil {
		f.err = f.PrepareErr
		p.Reject(f.PrepareErr)
		return
	}
	f.prepared = true
	p.Resolve(f.Info)
}

func (f *Fake) Play() error {
	if !f.prepared {
		return decoder.ErrNotPrepared
	}
	f.Plays++
	f.playing = true
	return nil
}

func (f *Fake) Pause() error {
	if !f.prepared {
		return decoder.ErrNotPrepared
	}
	f.Pauses++
	f.playing = false
	return nil
}

func (f *Fake) SetTime(seconds float64) error {
	if !f.prepared {
		return decoder.ErrNotPrepared
	}
	f.SetTimeCalls = append(f.SetTimeCalls, seconds)
	f.pos = math.Max(0, math.Min(seconds, f.Info.Duration))
	return nil
}

func (f *Fake) SetFrame(index int64) error {
	if !f.prepared {
		return decoder.ErrNotPrepared
	}
	if index < 0 || index >= f.Info.FrameCount {
		return decoder.ErrFrameRange
	}
	f.pos = float64(index) / f.Info.FPS
	return nil
}

func (f *Fake) SetPlaybackSpeed(multiplier float64) error {
	if multiplier <= 0 || multiplier > decoder.MaxPlaybackSpeed {
		return decoder.ErrSpeedRange
	}
	f.Speed = multiplier
	return nil
}

func (f *Fake) Frame() int64 {
	if !f.prepared || f.Info.FrameCount == 0 {
		return 0
	}
	frame := int64(math.Floor(f.pos*f.Info.FPS + 1e-9))
	return min(frame, f.Info.FrameCount-1)
}

func (f *Fake) FrameCount() int64 {
	if !f.prepared {
		return 0
	}
	return f.Info.FrameCount
}

func (f *Fake) Duration() float64 {
	if !f.prepared {
		return 0
	}
	return f.Info.Duration
}

func (f *Fake) Dimensions() (int, int) { return f.Info.Width, f.Info.Height }

func (f *Fake) Playing() bool { return f.playing }

func (f *Fake) RequestFrame(index int64) *async.Future[image.Image] {
	if !f.prepared {
		return async.Failed[image.Image](decoder.ErrNotPrepared)
	}
	if index < 0 || index >= f.Info.FrameCount {
		return async.Failed[image.Image](decoder.ErrFrameRange)
	}
	fut := async.NewFuture[image.Image]()
	f.frames = append(f.frames, pendingFrame{index: index, f: fut})
	if !f.HoldFrames {
		f.ready = append(f.ready, f.ReleaseFrames)
	}
	return fut
}

// ReleaseFrames settles every pending frame request.
func (f *Fake) ReleaseFrames() {
	pending := f.frames
	f.frames = nil
	for _, p := range pending {
		if f.FrameErr != nil {
			p.f.Reject(f.FrameErr)
			continue
		}
		p.f.Resolve(Frame(f.Info.Width, f.Info.Height, p.index))
	}
}

// PendingFrames returns the number of unsettled frame requests.
func (f *Fake) PendingFrames() int { return len(f.frames) }

func (f *Fake) Update(dt float64) {
	ready := f.ready
	f.ready = nil
	for _, fn := range ready {
		fn()
	}
	if f.playing {
		f.pos = math.Min(f.pos+dt*f.Speed, f.Info.Duration)
		if f.pos >= f.Info.Duration {
			f.playing = false
		}
	}
}

// Fail sets a sticky stream error, as a backend would on a broken stream.
func (f *Fake) Fail(err error) {
	f.err = err
	f.playing = false
}

func (f *Fake) Err() error { return f.err }

func (f *Fake) Close() error {
	f.Closed = true
	if f.prepare != nil {
		f.prepare.Cancel()
		f.prepare = nil
	}
	for _, p := range f.frames {
		p.f.Cancel()
	}
	f.frames = nil
	return nil
}

// Frame returns a solid image whose red channel carries index modulo 256.
func Frame(width, height int, index int64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	c := color.RGBA{R: uint8(index % 256), G: 128, B: 64, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

var _ decoder.Decoder = (*Fake)(nil)
