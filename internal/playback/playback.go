// Package playback owns the main clock: transport commands, seeking, volume
// and the frame-index derived current time.
package playback

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/ivlev/sphereplay/internal/async"
	"github.com/ivlev/sphereplay/internal/decoder"
	"github.com/ivlev/sphereplay/internal/telemetry"
)

// UnknownTime is reported by CurrentTime until the duration is known.
const UnknownTime = -1.0

var (
	ErrNotLoaded  = errors.New("playback: video not loaded")
	ErrSuperseded = errors.New("playback: load superseded")
	ErrClosed     = errors.New("playback: closed")
)

type State int

const (
	Idle State = iota
	Preparing
	Error
	Loaded
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Error:
		return "error"
	case Loaded:
		return "loaded"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// AudioSink is the audio stream kept in lockstep with the video.
type AudioSink interface {
	Play()
	Pause()
	SetLevel(db float64)
}

// ViewTracker records the boundary of a continuous viewing period whenever
// the viewer jumps.
type ViewTracker interface {
	StartNewPeriod(from, to float64)
}

// SeekHook may correct a seek target, e.g. to snap into a valid range.
type SeekHook func(t float64) float64

type Options struct {
	Volume       float64 // initial linear volume
	VolumeRate   float64 // units per second while a volume button is held
	VolumeStep   float64 // immediate step on button press
	PrerollFrame int64   // frame shown once the video is loaded
	AllowFlat    bool    // accept videos that are not 2:1
}

func DefaultOptions() Options {
	return Options{
		Volume:       1,
		VolumeRate:   0.5,
		VolumeStep:   0.05,
		PrerollFrame: 2,
	}
}

// Controller is the single writer of the playback clock. It is driven from
// one goroutine through Update.
type Controller struct {
	dec     decoder.Decoder
	log     zerolog.Logger
	opts    Options
	metrics *telemetry.Metrics

	deferred async.Deferred

	state   State
	err     error
	info    decoder.Info
	failure *async.Future[error]

	// loadGen identifies the current Load; pending is its unsettled future.
	loadGen uint64
	pending *async.Future[decoder.Info]

	durationKnown bool
	fraction      float64
	currentTime   float64

	lastSeek     float64
	haveLastSeek bool

	hook    SeekHook
	tracker ViewTracker
	audio   AudioSink

	volume    float64
	volumeDir float64
}

func New(dec decoder.Decoder, opts Options, log zerolog.Logger) *Controller {
	return &Controller{
		dec:         dec,
		log:         log,
		opts:        opts,
		metrics:     telemetry.Nop(),
		failure:     async.NewFuture[error](),
		currentTime: UnknownTime,
		volume:      math.Max(0, math.Min(opts.Volume, 1)),
	}
}

func (c *Controller) SetMetrics(m *telemetry.Metrics) { c.metrics = m }
func (c *Controller) SetSeekHook(h SeekHook)          { c.hook = h }
func (c *Controller) SetTracker(t ViewTracker)        { c.tracker = t }

// SetAudio attaches a sink and brings it to the current volume and
// play state.
func (c *Controller) SetAudio(a AudioSink) {
	c.audio = a
	if a == nil {
		return
	}
	a.SetLevel(LinearToDB(c.volume))
	if c.state == Playing {
		a.Play()
	} else {
		a.Pause()
	}
}

// Deferred is the next-tick queue drained at the start of Update.
func (c *Controller) Deferred() *async.Deferred { return &c.deferred }

// Load prepares url on the decoder. Once the duration is known the clock is
// moved to the preroll frame and paused, then the returned future resolves.
func (c *Controller) Load(url string) *async.Future[decoder.Info] {
	out := async.NewFuture[decoder.Info]()
	c.settlePending(ErrSuperseded)
	c.loadGen++
	gen := c.loadGen
	c.pending = out

	c.state = Preparing
	c.err = nil
	c.info = decoder.Info{}
	c.durationKnown = false
	c.fraction = 0
	c.currentTime = UnknownTime
	c.haveLastSeek = false
	if !c.failure.Done() {
		c.failure.Cancel()
	}
	c.failure = async.NewFuture[error]()

	c.log.Info().Str("url", url).Msg("loading video")
	c.dec.Prepare(url).Then(func(info decoder.Info, err error) {
		if gen != c.loadGen {
			return
		}
		if err == nil && !info.Equirectangular() && !c.opts.AllowFlat {
			err = fmt.Errorf("%w: %dx%d", decoder.ErrNotEquirectangular, info.Width, info.Height)
		}
		if err != nil {
			c.state = Error
			c.err = err
			c.metrics.Load(false)
			c.log.Error().Err(err).Str("url", url).Msg("video load failed")
			c.pending = nil
			out.Reject(err)
			return
		}
		c.state = Loaded
		c.info = info
		c.awaitDuration(out, gen)
	})
	return out
}

// awaitDuration re-checks the decoder every tick until it reports a duration.
func (c *Controller) awaitDuration(out *async.Future[decoder.Info], gen uint64) {
	if gen != c.loadGen || c.state != Loaded {
		return
	}
	if c.dec.Duration() <= 0 {
		c.deferred.Defer(func() { c.awaitDuration(out, gen) })
		return
	}
	c.durationKnown = true
	if c.opts.PrerollFrame >= 0 && c.opts.PrerollFrame < c.dec.FrameCount() {
		if err := c.dec.SetFrame(c.opts.PrerollFrame); err != nil {
			c.log.Warn().Err(err).Int64("frame", c.opts.PrerollFrame).Msg("preroll seek")
		}
	}
	if err := c.dec.Pause(); err != nil {
		c.log.Warn().Err(err).Msg("preroll pause")
	}
	c.state = Paused
	if c.audio != nil {
		c.audio.Pause()
		c.audio.SetLevel(LinearToDB(c.volume))
	}
	c.refreshTime()
	c.metrics.Load(true)
	c.log.Info().
		Float64("duration", c.dec.Duration()).
		Int64("frames", c.dec.FrameCount()).
		Msg("video loaded")
	c.pending = nil
	out.Resolve(c.info)
}

// settlePending rejects the load still in flight, if any.
func (c *Controller) settlePending(err error) {
	if c.pending == nil {
		return
	}
	p := c.pending
	c.pending = nil
	if p.Reject(err) {
		c.log.Debug().Err(err).Msg("pending load dropped")
	}
}

// Update runs one tick: deferred work, decoder completions, volume hold and
// the time derivation.
func (c *Controller) Update(dt float64) {
	c.deferred.Drain()
	c.dec.Update(dt)

	if c.volumeDir != 0 {
		c.applyVolume(c.volume + c.volumeDir*c.opts.VolumeRate*dt)
	}

	if err := c.dec.Err(); err != nil && c.Loaded() {
		c.state = Error
		c.err = err
		c.log.Error().Err(err).Msg("decoder failed")
		c.failure.Resolve(err)
		return
	}

	if c.state == Playing && !c.dec.Playing() {
		c.state = Paused
		if c.audio != nil {
			c.audio.Pause()
		}
	}

	c.refreshTime()
	if c.state == Playing {
		c.haveLastSeek = false
	}
}

// refreshTime derives the clock from the frame index. The decoder's own
// notion of wall time is never consulted.
func (c *Controller) refreshTime() {
	if !c.durationKnown {
		c.currentTime = UnknownTime
		return
	}
	count := c.dec.FrameCount()
	if count <= 0 {
		return
	}
	c.fraction = float64(c.dec.Frame()) / float64(count)
	c.currentTime = c.dec.Duration() * c.fraction
}

func (c *Controller) Play() error {
	if !c.Loaded() {
		return ErrNotLoaded
	}
	if err := c.dec.Play(); err != nil {
		return err
	}
	c.state = Playing
	if c.audio != nil {
		c.audio.Play()
	}
	return nil
}

func (c *Controller) Pause() error {
	if !c.Loaded() {
		return ErrNotLoaded
	}
	if err := c.dec.Pause(); err != nil {
		return err
	}
	c.state = Paused
	if c.audio != nil {
		c.audio.Pause()
	}
	return nil
}

func (c *Controller) TogglePlay() error {
	if c.state == Playing {
		return c.Pause()
	}
	return c.Play()
}

// Seek moves the clock to t after passing it through the seek hook. A
// repeated seek to the same corrected time only re-issues the decoder call.
func (c *Controller) Seek(t float64) error {
	if c.hook != nil {
		t = c.hook(t)
	}
	return c.seek(t)
}

// SeekNoTriggers seeks without consulting the seek hook.
func (c *Controller) SeekNoTriggers(t float64) error {
	return c.seek(t)
}

func (c *Controller) seek(t float64) error {
	if !c.Loaded() || !c.durationKnown {
		return ErrNotLoaded
	}
	if !c.haveLastSeek || c.lastSeek != t {
		if c.tracker != nil {
			c.tracker.StartNewPeriod(c.currentTime, t)
		}
		c.metrics.Seek()
		c.log.Debug().Float64("from", c.currentTime).Float64("to", t).Msg("seek")
		c.lastSeek = t
		c.haveLastSeek = true
	}
	if err := c.dec.SetTime(t); err != nil {
		return err
	}
	c.refreshTime()
	return nil
}

func (c *Controller) SeekRelative(delta float64) error {
	if !c.durationKnown {
		return ErrNotLoaded
	}
	return c.Seek(clamp(c.currentTime+delta, 0, c.dec.Duration()))
}

func (c *Controller) SeekFractional(fraction float64) error {
	if !c.durationKnown {
		return ErrNotLoaded
	}
	return c.Seek(c.TimeForFraction(fraction))
}

// TimeForFraction maps a seekbar position in [0,1] to seconds.
func (c *Controller) TimeForFraction(fraction float64) float64 {
	return c.dec.Duration() * clamp(fraction, 0, 1)
}

// SetPlaybackSpeed forwards the multiplier. Range errors come from the
// decoder unchanged.
func (c *Controller) SetPlaybackSpeed(multiplier float64) error {
	if err := c.dec.SetPlaybackSpeed(multiplier); err != nil {
		return fmt.Errorf("set playback speed %v: %w", multiplier, err)
	}
	return nil
}

// SetVolume is the slider path.
func (c *Controller) SetVolume(v float64) {
	c.applyVolume(v)
}

// StartVolumeChange begins a button hold: one immediate step, then
// VolumeRate units per second until StopVolumeChange.
func (c *Controller) StartVolumeChange(up bool) {
	dir := -1.0
	if up {
		dir = 1
	}
	c.volumeDir = dir
	c.applyVolume(c.volume + dir*c.opts.VolumeStep)
}

func (c *Controller) StopVolumeChange() { c.volumeDir = 0 }

func (c *Controller) applyVolume(v float64) {
	c.volume = clamp(v, 0, 1)
	if c.audio != nil {
		c.audio.SetLevel(LinearToDB(c.volume))
	}
}

// MinLevelDB is the mixer level used for silence.
const MinLevelDB = -80.0

// LinearToDB converts a linear volume to a mixer level.
func LinearToDB(v float64) float64 {
	if v <= 0 {
		return MinLevelDB
	}
	return math.Max(20*math.Log10(v), MinLevelDB)
}

func (c *Controller) State() State { return c.state }

// Loaded reports whether the video prepared successfully and is usable.
func (c *Controller) Loaded() bool {
	return c.state == Loaded || c.state == Playing || c.state == Paused
}

func (c *Controller) Playing() bool { return c.state == Playing }

// Err returns the load or decoder error that put the controller in Error.
func (c *Controller) Err() error { return c.err }

// Failure settles with the decoder error if the stream breaks after load.
func (c *Controller) Failure() *async.Future[error] { return c.failure }

func (c *Controller) CurrentTime() float64 { return c.currentTime }
func (c *Controller) Fraction() float64    { return c.fraction }
func (c *Controller) Volume() float64      { return c.volume }
func (c *Controller) Info() decoder.Info   { return c.info }

func (c *Controller) Duration() float64 {
	if !c.durationKnown {
		return 0
	}
	return c.dec.Duration()
}

// Close pauses the audio and releases the decoder.
func (c *Controller) Close() error {
	if c.audio != nil {
		c.audio.Pause()
	}
	c.deferred.Reset()
	c.loadGen++
	c.settlePending(ErrClosed)
	if !c.failure.Done() {
		c.failure.Cancel()
	}
	c.state = Idle
	c.durationKnown = false
	c.currentTime = UnknownTime
	return c.dec.Close()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
