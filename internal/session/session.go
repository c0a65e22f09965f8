// Package session is the top-level mode switch. While Opening only content
// loading runs; once a session file and its video have loaded the session is
// Watching and the full engine processes input every tick.
package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/ivlev/sphereplay/internal/async"
	"github.com/ivlev/sphereplay/internal/content"
	"github.com/ivlev/sphereplay/internal/decoder"
	"github.com/ivlev/sphereplay/internal/geom"
	"github.com/ivlev/sphereplay/internal/interaction"
	"github.com/ivlev/sphereplay/internal/playback"
	"github.com/ivlev/sphereplay/internal/screenshot"
	"github.com/ivlev/sphereplay/internal/selection"
	"github.com/ivlev/sphereplay/internal/telemetry"
)

var (
	ErrNotWatching = errors.New("session: not watching")
	ErrNoScreens   = errors.New("session: screenshots not configured")
)

type State int

const (
	Opening State = iota
	Watching
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Watching:
		return "watching"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Tracker records view periods for one viewing session at a time.
type Tracker interface {
	playback.ViewTracker
	Begin(video string, at float64) string
	Flush(at float64)
}

// Deps are the collaborators a session is built from. Decoder is the main
// playback decoder. Screenshots, Tracker and Metrics are optional.
type Deps struct {
	Fs          afero.Fs
	Loader      *content.Loader
	Decoder     decoder.Decoder
	Screenshots decoder.Factory
	Tracker     Tracker
	Metrics     *telemetry.Metrics
	Audio       playback.AudioSink
}

type Options struct {
	Playback          playback.Options
	Selection         selection.Options
	SphereRadius      float64
	ScreenshotQuality int
}

type Session struct {
	log     zerolog.Logger
	deps    Deps
	opts    Options
	metrics *telemetry.Metrics

	ctrl   *playback.Controller
	reg    *interaction.Registry
	engine *selection.Engine
	shots  *screenshot.Pipeline

	state   State
	id      string
	content *content.Session
}

func New(deps Deps, opts Options, log zerolog.Logger) *Session {
	if deps.Metrics == nil {
		deps.Metrics = telemetry.Nop()
	}
	if opts.SphereRadius <= 0 {
		opts.SphereRadius = 10
	}
	log = log.With().Str("component", "session").Logger()

	ctrl := playback.New(deps.Decoder, opts.Playback, log)
	ctrl.SetMetrics(deps.Metrics)
	if deps.Audio != nil {
		ctrl.SetAudio(deps.Audio)
	}
	if deps.Tracker != nil {
		ctrl.SetTracker(deps.Tracker)
	}
	reg := interaction.NewRegistry(log)
	engine := selection.New(reg, ctrl, opts.Selection, log)
	engine.SetMetrics(deps.Metrics)

	return &Session{
		log:     log,
		deps:    deps,
		opts:    opts,
		metrics: deps.Metrics,
		ctrl:    ctrl,
		reg:     reg,
		engine:  engine,
	}
}

// Open loads a session file and its video. The session switches to Watching
// when the returned future resolves. On failure it stays Opening and nothing
// is retried. Opening again before a pending open settles rejects the pending
// one with playback.ErrSuperseded.
func (s *Session) Open(path string) *async.Future[*content.Session] {
	if s.state == Watching {
		s.Close()
	}

	loaded, err := s.deps.Loader.Load(path)
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("could not open session file")
		return async.Failed[*content.Session](err)
	}

	out := async.NewFuture[*content.Session]()
	s.ctrl.Load(loaded.VideoURL).Then(func(_ decoder.Info, err error) {
		if err != nil {
			s.log.Error().Err(err).Str("video", loaded.VideoURL).Msg("could not open video")
			out.Reject(err)
			return
		}
		s.watch(loaded)
		out.Resolve(loaded)
	})
	return out
}

func (s *Session) watch(loaded *content.Session) {
	s.content = loaded
	s.reg.Load(loaded.Points)
	s.engine.Reset()
	if s.deps.Tracker != nil {
		s.id = s.deps.Tracker.Begin(loaded.VideoURL, s.ctrl.CurrentTime())
	} else {
		s.id = uuid.NewString()
	}
	if s.deps.Screenshots != nil {
		s.shots = screenshot.New(loaded.VideoURL, s.deps.Screenshots, s.deps.Fs, s.opts.ScreenshotQuality, s.log)
		s.shots.SetMetrics(s.metrics)
	}
	// Anchors are re-projected one tick after load.
	s.ctrl.Deferred().Defer(s.reproject)
	s.state = Watching
	s.log.Info().
		Str("session", s.id).
		Str("title", loaded.File.Meta.Title).
		Int("points", s.reg.Len()).
		Msg("watching")
}

// reproject moves every point with a return ray onto the reference sphere.
func (s *Session) reproject() {
	sphere := geom.Sphere{Radius: s.opts.SphereRadius}
	for _, p := range s.reg.Points() {
		ray := p.Anchor.ReturnRay
		if !ray.Valid() {
			continue
		}
		ray.Dir = ray.Dir.Normalize()
		if t, ok := sphere.Intersect(ray); ok {
			p.MoveTo(ray.At(t))
		}
	}
}

// Tick runs one frame: playback, visibility, then selection.
func (s *Session) Tick(dt float64, in selection.Input) selection.Result {
	s.ctrl.Update(dt)
	if s.shots != nil {
		s.shots.Update(dt)
	}
	if s.state != Watching {
		return selection.Result{}
	}

	if s.ctrl.State() == playback.Error {
		s.log.Error().Err(s.ctrl.Err()).Msg("playback failed, back to opening")
		s.toOpening()
		return selection.Result{}
	}

	if closed := s.reg.UpdateVisibility(s.ctrl.CurrentTime()); closed != nil {
		s.log.Debug().Int("point", closed.Number).Msg("open point left its window")
	}
	return s.engine.Tick(dt, in)
}

// ScrubTo seeks from the seekbar. An open point is closed and playback
// resumes.
func (s *Session) ScrubTo(t float64) error {
	if s.state != Watching {
		return ErrNotWatching
	}
	if err := s.ctrl.Seek(t); err != nil {
		return err
	}
	if s.reg.Active() != nil {
		s.engine.CloseActive()
	}
	return nil
}

func (s *Session) TogglePlay() error {
	if s.state != Watching {
		return ErrNotWatching
	}
	return s.ctrl.TogglePlay()
}

func (s *Session) Play() error {
	if s.state != Watching {
		return ErrNotWatching
	}
	return s.ctrl.Play()
}

func (s *Session) Pause() error {
	if s.state != Watching {
		return ErrNotWatching
	}
	return s.ctrl.Pause()
}

// CloseActive closes the open point and resumes playback.
func (s *Session) CloseActive() *interaction.Point {
	return s.engine.CloseActive()
}

// Screenshot captures a frame of the current video.
func (s *Session) Screenshot(req screenshot.Request) (*async.Future[string], error) {
	if s.state != Watching {
		return nil, ErrNotWatching
	}
	if s.shots == nil {
		return nil, ErrNoScreens
	}
	return s.shots.Request(req)
}

// Close goes back to the browser: playback pauses, every point is removed
// and the session returns to Opening.
func (s *Session) Close() {
	if s.state != Watching {
		return
	}
	if err := s.ctrl.Pause(); err != nil {
		s.log.Debug().Err(err).Msg("pause on close")
	}
	s.toOpening()
}

func (s *Session) toOpening() {
	if s.deps.Tracker != nil {
		s.deps.Tracker.Flush(s.ctrl.CurrentTime())
	}
	s.engine.Reset()
	s.reg.Clear()
	if s.shots != nil {
		s.shots.Close()
		s.shots = nil
	}
	s.content = nil
	s.state = Opening
	s.log.Info().Str("session", s.id).Msg("back to opening")
}

// Shutdown closes the session and releases the decoders.
func (s *Session) Shutdown() error {
	s.Close()
	s.engine.Close()
	return s.ctrl.Close()
}

func (s *Session) State() State                    { return s.state }
func (s *Session) ID() string                      { return s.id }
func (s *Session) Content() *content.Session       { return s.content }
func (s *Session) Playback() *playback.Controller  { return s.ctrl }
func (s *Session) Registry() *interaction.Registry { return s.reg }
func (s *Session) Selection() *selection.Engine    { return s.engine }
