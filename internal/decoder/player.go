package decoder

import (
	"context"
	"image"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ivlev/sphereplay/internal/async"
)

// backend is one opened stream.
type backend interface {
	frame(ctx context.Context, index int64) (image.Image, error)
	close() error
}

// opener probes url and returns the opened stream.
type opener func(ctx context.Context, url string) (backend, Info, error)

// frameEpsilon absorbs float error when converting a seek time to a frame.
const frameEpsilon = 1e-9

// Player implements Decoder as a clock over an opened backend. Position is
// advanced by Update while playing; the frame index is derived from it.
type Player struct {
	open opener
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mailbox carries completions from backend goroutines; ready carries
	// completions produced on the tick side.
	mailbox chan func()
	ready   []func()

	// postMu guards shut; once shut, goroutines stop posting and release
	// what they opened themselves.
	postMu sync.Mutex
	shut   bool

	gen       uint64
	src       backend
	info      Info
	prepared  bool
	preparing *async.Future[Info]
	frames    []*async.Future[image.Image]

	playing bool
	speed   float64
	pos     float64
	err     error
	closed  bool
}

func NewPlayer(open opener, log zerolog.Logger) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	return &Player{
		open:    open,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		mailbox: make(chan func(), 16),
		speed:   1,
	}
}

// Prepare opens url. Preparing the URL that is already loaded resolves from
// the cached info on the next Update. A pending prepare for another URL is
// canceled.
func (p *Player) Prepare(url string) *async.Future[Info] {
	if p.closed {
		return async.Failed[Info](ErrClosed)
	}
	f := async.NewFuture[Info]()
	if p.prepared && p.info.URL == url {
		info := p.info
		p.ready = append(p.ready, func() { f.Resolve(info) })
		return f
	}

	if p.preparing != nil {
		p.preparing.Cancel()
	}
	p.gen++
	gen := p.gen
	p.preparing = f
	p.prepared = false
	p.playing = false
	p.pos = 0
	p.err = nil

	p.log.Debug().Str("url", url).Msg("prepare")
	go func() {
		src, info, err := p.open(p.ctx, url)
		posted := p.post(func() {
			if gen != p.gen || f.Done() {
				if src != nil {
					src.close()
				}
				return
			}
			p.preparing = nil
			if err != nil {
				p.err = err
				p.log.Warn().Err(err).Str("url", url).Msg("prepare failed")
				f.Reject(err)
				return
			}
			if p.src != nil {
				p.src.close()
			}
			info.URL = url
			p.src = src
			p.info = info
			p.prepared = true
			p.log.Debug().
				Str("url", url).
				Float64("duration", info.Duration).
				Int64("frames", info.FrameCount).
				Int("width", info.Width).
				Int("height", info.Height).
				Msg("prepared")
			f.Resolve(info)
		})
		if !posted && src != nil {
			src.close()
		}
	}()
	return f
}

// post hands fn to the tick side. It reports false once the player is closed.
func (p *Player) post(fn func()) bool {
	p.postMu.Lock()
	defer p.postMu.Unlock()
	if p.shut {
		return false
	}
	select {
	case p.mailbox <- fn:
		return true
	case <-p.ctx.Done():
		return false
	}
}

func (p *Player) Play() error {
	if !p.prepared {
		return ErrNotPrepared
	}
	p.playing = true
	return nil
}

func (p *Player) Pause() error {
	if !p.prepared {
		return ErrNotPrepared
	}
	p.playing = false
	return nil
}

// SetTime moves the clock. Times outside the stream are clamped to it.
func (p *Player) SetTime(seconds float64) error {
	if !p.prepared {
		return ErrNotPrepared
	}
	p.pos = math.Max(0, math.Min(seconds, p.info.Duration))
	return nil
}

func (p *Player) SetFrame(index int64) error {
	if !p.prepared {
		return ErrNotPrepared
	}
	if index < 0 || index >= p.info.FrameCount {
		return ErrFrameRange
	}
	p.pos = float64(index) / p.info.FPS
	return nil
}

// SetPlaybackSpeed accepts multipliers in (0, MaxPlaybackSpeed].
func (p *Player) SetPlaybackSpeed(multiplier float64) error {
	if multiplier <= 0 || multiplier > MaxPlaybackSpeed || math.IsNaN(multiplier) {
		return ErrSpeedRange
	}
	p.speed = multiplier
	return nil
}

func (p *Player) Frame() int64 {
	if !p.prepared || p.info.FrameCount == 0 {
		return 0
	}
	frame := int64(math.Floor(p.pos*p.info.FPS + frameEpsilon))
	if frame >= p.info.FrameCount {
		frame = p.info.FrameCount - 1
	}
	return frame
}

func (p *Player) FrameCount() int64 {
	if !p.prepared {
		return 0
	}
	return p.info.FrameCount
}

func (p *Player) Duration() float64 {
	if !p.prepared {
		return 0
	}
	return p.info.Duration
}

func (p *Player) Dimensions() (int, int) {
	return p.info.Width, p.info.Height
}

func (p *Player) Playing() bool { return p.playing }

func (p *Player) RequestFrame(index int64) *async.Future[image.Image] {
	if p.closed {
		return async.Failed[image.Image](ErrClosed)
	}
	if !p.prepared {
		return async.Failed[image.Image](ErrNotPrepared)
	}
	if index < 0 || index >= p.info.FrameCount {
		return async.Failed[image.Image](ErrFrameRange)
	}

	f := async.NewFuture[image.Image]()
	p.frames = append(p.frames, f)
	src := p.src
	go func() {
		img, err := src.frame(p.ctx, index)
		p.post(func() {
			p.dropFrame(f)
			if err != nil {
				p.log.Warn().Err(err).Int64("frame", index).Msg("frame decode failed")
				f.Reject(err)
				return
			}
			f.Resolve(img)
		})
	}()
	return f
}

func (p *Player) dropFrame(f *async.Future[image.Image]) {
	for i, pending := range p.frames {
		if pending == f {
			p.frames = append(p.frames[:i], p.frames[i+1:]...)
			return
		}
	}
}

// Update delivers completions, then advances the clock. Playback stops at the
// end of the stream.
func (p *Player) Update(dt float64) {
	if p.closed {
		return
	}

	ready := p.ready
	p.ready = nil
	for _, fn := range ready {
		fn()
	}
drain:
	for {
		select {
		case fn := <-p.mailbox:
			fn()
		default:
			break drain
		}
	}

	if p.playing && p.prepared {
		p.pos += dt * p.speed
		if p.pos >= p.info.Duration {
			p.pos = p.info.Duration
			p.playing = false
		}
	}
}

func (p *Player) Err() error { return p.err }

// Close cancels pending work and releases the backend. Pending futures are
// canceled, so their handlers never run.
func (p *Player) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.cancel()
	p.postMu.Lock()
	p.shut = true
	p.postMu.Unlock()

	if p.preparing != nil {
		p.preparing.Cancel()
		p.preparing = nil
	}
	for _, f := range p.frames {
		f.Cancel()
	}
	p.frames = nil
	p.ready = nil

	// Completions already posted may own opened streams; with the generation
	// bumped they release them instead of installing.
	p.gen++
drain:
	for {
		select {
		case fn := <-p.mailbox:
			fn()
		default:
			break drain
		}
	}
	p.prepared = false
	p.playing = false
	if p.src != nil {
		return p.src.close()
	}
	return nil
}
