// Package selection turns a per-tick ray into at most one candidate and
// applies the activation policy of the current input modality: a trigger edge
// for controllers, continuous hover (dwell) for gaze.
package selection

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/ivlev/sphereplay/internal/geom"
	"github.com/ivlev/sphereplay/internal/interaction"
	"github.com/ivlev/sphereplay/internal/telemetry"
)

type Modality int

const (
	Gaze Modality = iota
	Controller
)

func (m Modality) String() string {
	switch m {
	case Gaze:
		return "gaze"
	case Controller:
		return "controller"
	default:
		return fmt.Sprintf("modality(%d)", int(m))
	}
}

// Input is what the device layer hands over every tick.
type Input struct {
	Modality Modality
	// Ray is the gaze or controller ray. A zero ray means nothing is pointed
	// at.
	Ray geom.Ray
	// Trigger is true on the tick the controller trigger goes down.
	Trigger bool
	// Hovered lists hittables a controller reports hovering, independent of
	// the ray hit.
	Hovered []Handle
}

// Playback is the part of the playback controller the engine drives.
type Playback interface {
	Play() error
	Pause() error
	Playing() bool
}

type Options struct {
	Dwell       float64 // seconds of hover before a gaze activation
	PointRadius float64 // collider radius of an interaction point
	RayLength   float64 // hits beyond this distance are ignored
}

func DefaultOptions() Options {
	return Options{Dwell: 0.75, PointRadius: 0.5, RayLength: 100}
}

// Indicator is the dwell progress shown to the user. Fill grows from 0 to 1
// while Crosshair shrinks from 1 to 0.
type Indicator struct {
	Fill      float64
	Crosshair float64
}

// Result reports what happened during one tick.
type Result struct {
	Point     *interaction.Point // candidate point, if any
	Hittable  Handle             // candidate hittable, if any
	Activated *interaction.Point
	Hit       Handle
	Closed    *interaction.Point
}

// target identifies a candidate. Exactly one field is set.
type target struct {
	point  *interaction.Point
	handle Handle
}

func (t target) empty() bool { return t.point == nil && t.handle == 0 }

// Engine is driven from the tick goroutine and is not safe for concurrent
// use.
type Engine struct {
	reg      *interaction.Registry
	playback Playback
	opts     Options
	log      zerolog.Logger
	metrics  *telemetry.Metrics

	hittables hittableSet

	candidate   target
	modality    Modality
	hasModality bool
	timer       float64
	consumed    bool
}

func New(reg *interaction.Registry, playback Playback, opts Options, log zerolog.Logger) *Engine {
	if opts.Dwell <= 0 {
		opts.Dwell = DefaultOptions().Dwell
	}
	if opts.RayLength <= 0 {
		opts.RayLength = DefaultOptions().RayLength
	}
	return &Engine{
		reg:       reg,
		playback:  playback,
		opts:      opts,
		log:       log.With().Str("component", "selection").Logger(),
		metrics:   telemetry.Nop(),
		hittables: newHittableSet(),
	}
}

func (e *Engine) SetMetrics(m *telemetry.Metrics) { e.metrics = m }

// Tick runs hit-testing, the activation policy and the dwell update, in that
// order. Visibility must already be up to date for this tick.
func (e *Engine) Tick(dt float64, in Input) Result {
	var res Result

	// Playback resumed from outside (seekbar) while a point is open.
	if e.reg.Active() != nil && e.playback.Playing() {
		res.Closed = e.reg.Deactivate()
	}

	changed := false
	if !e.hasModality || in.Modality != e.modality {
		e.modality = in.Modality
		e.hasModality = true
		e.resetTimer()
		changed = true
	}

	cand := e.hitTest(in.Ray)
	if cand != e.candidate {
		e.candidate = cand
		e.resetTimer()
		changed = true
	}
	res.Point = cand.point
	res.Hittable = cand.handle

	if !cand.empty() {
		switch in.Modality {
		case Controller:
			if in.Trigger {
				e.activate(cand, &res)
			}
		case Gaze:
			if !e.consumed && e.timer >= e.opts.Dwell {
				e.consumed = true
				e.timer = 0
				e.activate(cand, &res)
			}
		}
	}

	// Hover counts from the tick after the candidate or modality changed.
	if in.Modality == Gaze && !cand.empty() && !e.consumed {
		if !changed {
			e.timer += dt
		}
	} else {
		e.timer = 0
	}

	e.updateHover(cand.handle, in.Hovered)
	return res
}

func (e *Engine) resetTimer() {
	e.timer = 0
	e.consumed = false
}

// hitTest returns the nearest candidate along ray. Points are only candidates
// while no point is open; hittables always are.
func (e *Engine) hitTest(ray geom.Ray) target {
	if !ray.Valid() {
		return target{}
	}
	ray.Dir = ray.Dir.Normalize()

	best := target{}
	bestDist := math.Inf(1)

	if e.reg.Active() == nil {
		for _, p := range e.reg.Visible() {
			collider := geom.Sphere{Center: p.Position(), Radius: e.opts.PointRadius}
			if d, ok := collider.Intersect(ray); ok && d <= e.opts.RayLength && d < bestDist {
				best, bestDist = target{point: p}, d
			}
		}
	}
	for _, h := range e.hittables.order {
		hs, ok := e.hittables.byHandle[h]
		if !ok {
			continue
		}
		if d, ok := hs.Collider.Intersect(ray); ok && d <= e.opts.RayLength && d < bestDist {
			best, bestDist = target{handle: h}, d
		}
	}
	return best
}

func (e *Engine) activate(cand target, res *Result) {
	if cand.handle != 0 {
		res.Hit = cand.handle
		if hs, ok := e.hittables.byHandle[cand.handle]; ok && hs.OnHit != nil {
			hs.OnHit()
		}
		return
	}

	p := cand.point
	if err := e.reg.Activate(p); err != nil {
		e.log.Debug().Err(err).Int("point", p.Number).Msg("activation refused")
		return
	}
	if err := e.playback.Pause(); err != nil {
		e.log.Warn().Err(err).Msg("pause on activation")
	}
	res.Activated = p
	e.metrics.Activation(e.modality.String())
	e.log.Info().Int("point", p.Number).Stringer("modality", e.modality).Msg("point opened")
}

// CloseActive closes the open point and resumes playback from where it was
// paused.
func (e *Engine) CloseActive() *interaction.Point {
	p := e.reg.Deactivate()
	if p == nil {
		return nil
	}
	if err := e.playback.Play(); err != nil {
		e.log.Warn().Err(err).Msg("resume after close")
	}
	return p
}

// Reset drops the candidate and dwell state, e.g. when the session content
// changes.
func (e *Engine) Reset() {
	e.candidate = target{}
	e.resetTimer()
}

func (e *Engine) Candidate() *interaction.Point { return e.candidate.point }

// Timer is the accumulated dwell time on the current candidate.
func (e *Engine) Timer() float64 { return e.timer }

func (e *Engine) Indicator() Indicator {
	fill := math.Min(e.timer/e.opts.Dwell, 1)
	return Indicator{Fill: fill, Crosshair: 1 - fill}
}
