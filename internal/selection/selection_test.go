package selection

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/sphereplay/internal/decoder/decodertest"
	"github.com/ivlev/sphereplay/internal/geom"
	"github.com/ivlev/sphereplay/internal/interaction"
	"github.com/ivlev/sphereplay/internal/playback"
)

type fakePlayback struct {
	playing bool
	plays   int
	pauses  int
}

func (f *fakePlayback) Play() error   { f.playing = true; f.plays++; return nil }
func (f *fakePlayback) Pause() error  { f.playing = false; f.pauses++; return nil }
func (f *fakePlayback) Playing() bool { return f.playing }

const radius = 10.0

func at(yaw float64) geom.Vec3 { return geom.Direction(yaw, 0).Scale(radius) }

func look(yaw float64) geom.Ray { return geom.NewRay(geom.Vec3{}, geom.Direction(yaw, 0)) }

func newPoint(yaw float64) *interaction.Point {
	return &interaction.Point{
		Start:   0,
		End:     100,
		Payload: interaction.Text{Body: "x"},
		Anchor:  interaction.Anchor{Position: at(yaw)},
	}
}

type fixture struct {
	reg    *interaction.Registry
	pb     *fakePlayback
	engine *Engine
	a, b   *interaction.Point
}

func setup(t *testing.T) *fixture {
	t.Helper()
	reg := interaction.NewRegistry(zerolog.Nop())
	a, b := newPoint(0), newPoint(90)
	reg.Load([]*interaction.Point{a, b})
	reg.UpdateVisibility(10)

	pb := &fakePlayback{playing: true}
	return &fixture{
		reg:    reg,
		pb:     pb,
		engine: New(reg, pb, DefaultOptions(), zerolog.Nop()),
		a:      a,
		b:      b,
	}
}

func gaze(yaw float64) Input { return Input{Modality: Gaze, Ray: look(yaw)} }

func TestEngine_GazeDwellActivatesOnce(t *testing.T) {
	f := setup(t)
	const dt = 0.25

	for i := 1; i <= 4; i++ {
		res := f.engine.Tick(dt, gaze(0))
		require.Nil(t, res.Activated, "tick %d", i)
		assert.Same(t, f.a, res.Point)
	}
	res := f.engine.Tick(dt, gaze(0))
	require.Same(t, f.a, res.Activated)
	assert.True(t, f.a.Active())
	assert.True(t, f.a.Seen)
	assert.False(t, f.pb.playing)
	assert.Equal(t, 1, f.pb.pauses)

	for i := 0; i < 10; i++ {
		res := f.engine.Tick(dt, gaze(0))
		assert.Nil(t, res.Activated)
	}
	assert.Equal(t, 1, f.pb.pauses)
}

func TestEngine_ShortHoverNeverActivates(t *testing.T) {
	f := setup(t)
	for round := 0; round < 5; round++ {
		for i := 0; i < 3; i++ {
			res := f.engine.Tick(0.25, gaze(0))
			require.Nil(t, res.Activated)
		}
		res := f.engine.Tick(0.25, Input{Modality: Gaze})
		require.Nil(t, res.Point)
		assert.Zero(t, f.engine.Timer())
	}
	assert.Nil(t, f.reg.Active())
}

func TestEngine_CandidateSwitchResetsTimer(t *testing.T) {
	f := setup(t)
	for i := 0; i < 3; i++ {
		f.engine.Tick(0.25, gaze(0))
	}
	require.InDelta(t, 0.5, f.engine.Timer(), 1e-9)
	ind := f.engine.Indicator()
	assert.InDelta(t, 0.5/0.75, ind.Fill, 1e-9)
	assert.InDelta(t, 1-0.5/0.75, ind.Crosshair, 1e-9)

	res := f.engine.Tick(0.25, gaze(90))
	assert.Same(t, f.b, res.Point)
	assert.Zero(t, f.engine.Timer())
	assert.Equal(t, Indicator{Fill: 0, Crosshair: 1}, f.engine.Indicator())

	f.engine.Tick(0.25, gaze(90))
	assert.InDelta(t, 0.25, f.engine.Timer(), 1e-9)
}

func TestEngine_ModalityChangeResetsTimer(t *testing.T) {
	f := setup(t)
	for i := 0; i < 3; i++ {
		f.engine.Tick(0.25, gaze(0))
	}
	f.engine.Tick(0.25, Input{Modality: Controller, Ray: look(0)})
	assert.Zero(t, f.engine.Timer())
	f.engine.Tick(0.25, gaze(0))
	assert.Zero(t, f.engine.Timer())
}

func TestEngine_TriggerEdgeActivatesSameTick(t *testing.T) {
	f := setup(t)
	for i := 0; i < 3; i++ {
		f.engine.Tick(0.25, gaze(0))
	}

	for i := 0; i < 10; i++ {
		res := f.engine.Tick(0.25, Input{Modality: Controller, Ray: look(0)})
		require.Nil(t, res.Activated, "controllers never dwell")
	}

	res := f.engine.Tick(0.25, Input{Modality: Controller, Ray: look(0), Trigger: true})
	assert.Same(t, f.a, res.Activated)
	assert.Same(t, f.a, f.reg.Active())
}

func TestEngine_TriggerWithoutCandidate(t *testing.T) {
	f := setup(t)
	res := f.engine.Tick(0.1, Input{Modality: Controller, Ray: look(180), Trigger: true})
	assert.Nil(t, res.Point)
	assert.Nil(t, res.Activated)
}

func TestEngine_Exclusivity(t *testing.T) {
	f := setup(t)
	res := f.engine.Tick(0.1, Input{Modality: Controller, Ray: look(0), Trigger: true})
	require.Same(t, f.a, res.Activated)

	res = f.engine.Tick(0.1, Input{Modality: Controller, Ray: look(90), Trigger: true})
	assert.Nil(t, res.Point, "points are not hit-tested while one is open")
	assert.Nil(t, res.Activated)
	assert.Same(t, f.a, f.reg.Active())

	require.Same(t, f.a, f.engine.CloseActive())
	assert.True(t, f.pb.playing)
	f.pb.Pause()

	res = f.engine.Tick(0.1, Input{Modality: Controller, Ray: look(90), Trigger: true})
	assert.Same(t, f.b, res.Activated)
}

func TestEngine_ExternalResumeClosesPoint(t *testing.T) {
	f := setup(t)
	f.engine.Tick(0.1, Input{Modality: Controller, Ray: look(0), Trigger: true})
	require.NotNil(t, f.reg.Active())

	f.pb.Play()
	res := f.engine.Tick(0.1, Input{Modality: Controller})
	assert.Same(t, f.a, res.Closed)
	assert.Nil(t, f.reg.Active())
	assert.True(t, f.pb.playing)
}

func TestEngine_RayLengthAndInvisible(t *testing.T) {
	f := setup(t)
	f.reg.UpdateVisibility(500)
	res := f.engine.Tick(0.1, gaze(0))
	assert.Nil(t, res.Point, "hidden points are not hit")

	f.reg.UpdateVisibility(10)
	short := New(f.reg, f.pb, Options{Dwell: 0.75, PointRadius: 0.5, RayLength: 5}, zerolog.Nop())
	res = short.Tick(0.1, gaze(0))
	assert.Nil(t, res.Point)
}

func TestEngine_Hittables(t *testing.T) {
	f := setup(t)
	var hits, starts, stays, ends int
	button := f.engine.Register(Hittable{
		Name:         "close",
		Collider:     geom.Sphere{Center: at(0).Scale(0.5), Radius: 1},
		OnHit:        func() { hits++ },
		OnHoverStart: func() { starts++ },
		OnHoverStay:  func() { stays++ },
		OnHoverEnd:   func() { ends++ },
	})
	require.NotZero(t, button)

	res := f.engine.Tick(0.1, Input{Modality: Controller, Ray: look(0)})
	assert.Nil(t, res.Point, "the nearer hittable wins")
	assert.Equal(t, button, res.Hittable)
	assert.Equal(t, 1, starts)

	res = f.engine.Tick(0.1, Input{Modality: Controller, Ray: look(0), Trigger: true})
	assert.Equal(t, button, res.Hit)
	assert.Equal(t, 1, hits)
	assert.Nil(t, f.reg.Active())
	assert.Equal(t, 1, stays)

	f.engine.Tick(0.1, Input{Modality: Controller, Ray: look(90)})
	assert.Equal(t, 1, ends)

	f.engine.Tick(0.1, Input{Modality: Controller, Ray: look(90), Hovered: []Handle{button}})
	assert.Equal(t, 2, starts, "controller hover counts without a ray hit")
	assert.True(t, f.engine.Hovering(button))

	assert.True(t, f.engine.Unregister(button))
	assert.Equal(t, 2, ends)
	assert.False(t, f.engine.Unregister(button))
}

func TestEngine_CallbacksMayUnregister(t *testing.T) {
	f := setup(t)
	var tip Handle
	tipEnds := 0
	button := f.engine.Register(Hittable{
		Name:         "menu",
		Collider:     geom.Sphere{Center: at(180).Scale(0.5), Radius: 1},
		OnHoverStart: func() { f.engine.Unregister(tip) },
	})
	tip = f.engine.Register(Hittable{
		Name:       "tooltip",
		Collider:   geom.Sphere{Center: at(90).Scale(0.5), Radius: 1},
		OnHoverEnd: func() { tipEnds++ },
	})

	f.engine.Tick(0.016, Input{Modality: Controller, Ray: look(90)})
	require.True(t, f.engine.Hovering(tip))

	require.NotPanics(t, func() {
		f.engine.Tick(0.016, Input{Modality: Controller, Ray: look(180)})
	})
	assert.True(t, f.engine.Hovering(button))
	assert.False(t, f.engine.Hovering(tip))
	assert.Equal(t, 1, tipEnds, "hover end fires once, from Unregister")

	var self Handle
	self = f.engine.Register(Hittable{
		Collider: geom.Sphere{Center: at(270).Scale(0.5), Radius: 1},
		OnHit:    func() { f.engine.Unregister(self) },
	})
	require.NotPanics(t, func() {
		f.engine.Tick(0.016, Input{Modality: Controller, Ray: look(270), Trigger: true})
		f.engine.Tick(0.016, Input{Modality: Controller, Ray: look(270), Trigger: true})
	})
	assert.False(t, f.engine.Unregister(self))
	assert.False(t, f.engine.Hovering(button))
}

func TestEngine_GazeOnHittable(t *testing.T) {
	f := setup(t)
	hits := 0
	f.engine.Register(Hittable{
		Collider: geom.Sphere{Center: at(0).Scale(0.5), Radius: 1},
		OnHit:    func() { hits++ },
	})
	for i := 0; i < 20; i++ {
		f.engine.Tick(0.25, gaze(0))
	}
	assert.Equal(t, 1, hits)

	f.engine.Close()
	res := f.engine.Tick(0.25, gaze(0))
	assert.Same(t, f.a, res.Point)
}

func TestEngine_CloseResumesWithoutSeek(t *testing.T) {
	fake := decodertest.New(60, 30)
	ctrl := playback.New(fake, playback.DefaultOptions(), zerolog.Nop())
	ctrl.Load("v.mp4")
	ctrl.Update(0)
	require.True(t, ctrl.Loaded())
	require.NoError(t, ctrl.Play())

	reg := interaction.NewRegistry(zerolog.Nop())
	p := newPoint(0)
	reg.Load([]*interaction.Point{p})
	engine := New(reg, ctrl, DefaultOptions(), zerolog.Nop())

	ctrl.Update(5)
	reg.UpdateVisibility(ctrl.CurrentTime())
	engine.Tick(0.1, Input{Modality: Controller, Ray: look(0), Trigger: true})
	require.Same(t, p, reg.Active())
	assert.False(t, ctrl.Playing())

	paused := ctrl.CurrentTime()
	for i := 0; i < 5; i++ {
		ctrl.Update(0.5)
		reg.UpdateVisibility(ctrl.CurrentTime())
		engine.Tick(0.5, Input{Modality: Controller, Ray: look(0)})
	}
	assert.Equal(t, paused, ctrl.CurrentTime())

	engine.CloseActive()
	assert.True(t, ctrl.Playing())
	assert.Empty(t, fake.SetTimeCalls, "closing must not seek")
	ctrl.Update(0)
	assert.Equal(t, paused, ctrl.CurrentTime())
}
