package session

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/sphereplay/internal/content"
	"github.com/ivlev/sphereplay/internal/decoder/decodertest"
	"github.com/ivlev/sphereplay/internal/geom"
	"github.com/ivlev/sphereplay/internal/playback"
	"github.com/ivlev/sphereplay/internal/screenshot"
	"github.com/ivlev/sphereplay/internal/selection"
	"github.com/ivlev/sphereplay/internal/tracking"
)

const tourYAML = `
meta:
  title: Harbour tour
video: tour.mp4
points:
  - startTime: 20
    endTime: 30
    type: text
    title: Second
    body: later
    position: [0, 0, 5]
  - startTime: 10
    endTime: 20
    type: text
    title: First
    body: earlier
    position: [0, 0, 5]
    returnRayOrigin: [0, 0, 0]
    returnRayDirection: [1, 0, 0]
`

type fixture struct {
	s    *Session
	fake *decodertest.Fake
	fs   afero.Fs
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tours/harbour/session.yaml", []byte(tourYAML), 0644))

	fake := decodertest.New(60, 30)
	deps := Deps{
		Fs:      fs,
		Loader:  content.NewLoader(fs, zerolog.Nop()),
		Decoder: fake,
	}
	if mutate != nil {
		mutate(&deps)
	}
	opts := Options{
		Playback:          playback.DefaultOptions(),
		Selection:         selection.DefaultOptions(),
		SphereRadius:      10,
		ScreenshotQuality: screenshot.DefaultQuality,
	}
	s := New(deps, opts, zerolog.Nop())
	t.Cleanup(func() { _ = s.Shutdown() })
	return &fixture{s: s, fake: fake, fs: fs}
}

func (f *fixture) open(t *testing.T) {
	t.Helper()
	fut := f.s.Open("/tours/harbour/session.yaml")
	f.s.Tick(0, selection.Input{})
	require.True(t, fut.Done())
	require.NoError(t, fut.Err())
	require.Equal(t, Watching, f.s.State())
}

func forward() geom.Ray { return geom.NewRay(geom.Vec3{}, geom.V(0, 0, 1)) }

// starboard points at the first point once its return ray has been applied.
func starboard() geom.Ray { return geom.NewRay(geom.Vec3{}, geom.V(1, 0, 0)) }

func TestSession_OpenWatches(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, Opening, f.s.State())

	f.open(t)
	assert.NotEmpty(t, f.s.ID())
	assert.Equal(t, "Harbour tour", f.s.Content().File.Meta.Title)
	assert.Equal(t, 2, f.s.Registry().Len())
	first, ok := f.s.Registry().Get(1)
	require.True(t, ok)
	assert.Equal(t, "First", first.Title)
	assert.False(t, f.s.Playback().Playing())
}

func TestSession_SecondOpenSupersedesFirst(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, afero.WriteFile(f.fs, "/tours/canal/session.yaml",
		[]byte("meta:\n  title: Canal\nvideo: canal.mp4\npoints: []\n"), 0644))

	first := f.s.Open("/tours/harbour/session.yaml")
	second := f.s.Open("/tours/canal/session.yaml")
	require.True(t, first.Done())
	assert.ErrorIs(t, first.Err(), playback.ErrSuperseded)

	for range 5 {
		f.s.Tick(0.02, selection.Input{})
	}
	require.True(t, second.Done())
	require.NoError(t, second.Err())
	assert.Equal(t, Watching, f.s.State())
	assert.Equal(t, "Canal", f.s.Content().File.Meta.Title)
	assert.Zero(t, f.s.Registry().Len())
}

func TestSession_ShutdownRejectsPendingOpen(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.HoldPrepare = true

	fut := f.s.Open("/tours/harbour/session.yaml")
	require.NoError(t, f.s.Shutdown())
	require.True(t, fut.Done())
	assert.ErrorIs(t, fut.Err(), playback.ErrClosed)
	assert.Equal(t, Opening, f.s.State())
}

func TestSession_MissingFileStaysOpening(t *testing.T) {
	f := newFixture(t, nil)

	fut := f.s.Open("/tours/nowhere/session.yaml")
	require.True(t, fut.Done())
	assert.Error(t, fut.Err())
	assert.Equal(t, Opening, f.s.State())
}

func TestSession_VideoFailureStaysOpening(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.PrepareErr = errors.New("corrupt stream")

	fut := f.s.Open("/tours/harbour/session.yaml")
	f.s.Tick(0, selection.Input{})
	require.True(t, fut.Done())
	assert.EqualError(t, fut.Err(), "corrupt stream")
	assert.Equal(t, Opening, f.s.State())
	assert.Zero(t, f.s.Registry().Len())

	for range 5 {
		f.s.Tick(0.1, selection.Input{})
	}
	assert.Equal(t, Opening, f.s.State(), "no automatic retry")
}

func TestSession_InputIgnoredWhileOpening(t *testing.T) {
	f := newFixture(t, nil)

	res := f.s.Tick(0.1, selection.Input{Modality: selection.Controller, Ray: forward(), Trigger: true})
	assert.Equal(t, selection.Result{}, res)
	assert.ErrorIs(t, f.s.Play(), ErrNotWatching)
	assert.ErrorIs(t, f.s.ScrubTo(5), ErrNotWatching)
	assert.ErrorIs(t, f.s.TogglePlay(), ErrNotWatching)
}

func TestSession_ScrubShowsMatchingPoint(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)

	require.NoError(t, f.s.ScrubTo(25))
	f.s.Tick(0, selection.Input{})

	first, _ := f.s.Registry().Get(1)
	second, _ := f.s.Registry().Get(2)
	assert.False(t, first.Visible())
	assert.True(t, second.Visible())
}

func TestSession_ScrubClosesActivePoint(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)
	require.NoError(t, f.s.ScrubTo(15))
	require.NoError(t, f.s.Play())

	res := f.s.Tick(0, selection.Input{Modality: selection.Controller, Ray: starboard(), Trigger: true})
	require.NotNil(t, res.Activated)
	require.NotNil(t, f.s.Registry().Active())
	assert.False(t, f.s.Playback().Playing())

	require.NoError(t, f.s.ScrubTo(16))
	assert.Nil(t, f.s.Registry().Active())
	assert.True(t, f.s.Playback().Playing())
}

func TestSession_DecoderErrorFallsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)
	require.NoError(t, f.s.Play())

	f.fake.Fail(errors.New("device lost"))
	f.s.Tick(0.1, selection.Input{})

	assert.Equal(t, Opening, f.s.State())
	assert.Zero(t, f.s.Registry().Len())
	assert.Nil(t, f.s.Content())
}

func TestSession_ReprojectsReturnRays(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)

	first, _ := f.s.Registry().Get(1)
	second, _ := f.s.Registry().Get(2)
	assert.Equal(t, geom.V(0, 0, 5), first.Position(), "not before the next tick")

	f.s.Tick(0, selection.Input{})
	assert.InDelta(t, 10, first.Position().X, 1e-9)
	assert.InDelta(t, 0, first.Position().Z, 1e-9)
	assert.Equal(t, geom.V(0, 0, 5), second.Position(), "no return ray")
}

func TestSession_CloseReturnsToOpening(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)
	require.NoError(t, f.s.Play())

	f.s.Close()
	assert.Equal(t, Opening, f.s.State())
	assert.False(t, f.fake.Playing())
	assert.Zero(t, f.s.Registry().Len())
	assert.ErrorIs(t, f.s.Pause(), ErrNotWatching)

	f.open(t)
	first, ok := f.s.Registry().Get(1)
	require.True(t, ok, "numbering restarts")
	assert.Equal(t, "First", first.Title)
}

func TestSession_TracksViewPeriods(t *testing.T) {
	db, err := tracking.OpenDB("")
	require.NoError(t, err)
	tracker := tracking.New(db, zerolog.Nop())

	f := newFixture(t, func(d *Deps) { d.Tracker = tracker })
	f.open(t)
	assert.Equal(t, tracker.SessionID(), f.s.ID())

	require.NoError(t, f.s.ScrubTo(25))
	f.s.Close()

	periods, err := tracker.Periods(f.s.ID())
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.InDelta(t, 25, periods[1].From, 1e-9)
	assert.False(t, periods[1].Open)
}

func TestSession_Screenshot(t *testing.T) {
	shots := decodertest.New(60, 30)
	f := newFixture(t, func(d *Deps) { d.Screenshots = shots.Factory() })

	_, err := f.s.Screenshot(screenshot.Request{Frame: 1, Width: 8, Height: 8, Destination: "/x.jpg"})
	assert.ErrorIs(t, err, ErrNotWatching)

	f.open(t)
	fut, err := f.s.Screenshot(screenshot.Request{Frame: 30, Width: 32, Height: 32, KeepAspect: true, Destination: "/shots/a.jpg"})
	require.NoError(t, err)
	for i := 0; i < 4 && !fut.Done(); i++ {
		f.s.Tick(0, selection.Input{})
	}
	require.True(t, fut.Done())
	require.NoError(t, fut.Err())

	ok, err := afero.Exists(f.fs, "/shots/a.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSession_ScreenshotsNotConfigured(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t)

	_, err := f.s.Screenshot(screenshot.Request{Frame: 1, Width: 8, Height: 8, Destination: "/x.jpg"})
	assert.ErrorIs(t, err, ErrNoScreens)
}
