package playback

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/sphereplay/internal/decoder"
	"github.com/ivlev/sphereplay/internal/decoder/decodertest"
)

type recordingAudio struct {
	playing bool
	levels  []float64
}

func (a *recordingAudio) Play()               { a.playing = true }
func (a *recordingAudio) Pause()              { a.playing = false }
func (a *recordingAudio) SetLevel(db float64) { a.levels = append(a.levels, db) }

type period struct{ from, to float64 }

type recordingTracker struct{ periods []period }

func (r *recordingTracker) StartNewPeriod(from, to float64) {
	r.periods = append(r.periods, period{from, to})
}

func loaded(t *testing.T, fake *decodertest.Fake) *Controller {
	t.Helper()
	c := New(fake, DefaultOptions(), zerolog.Nop())
	f := c.Load("video.mp4")
	c.Update(0)
	require.True(t, f.Done())
	require.NoError(t, f.Err())
	return c
}

func TestController_LoadPrerollsAndPauses(t *testing.T) {
	fake := decodertest.New(60, 30)
	c := New(fake, DefaultOptions(), zerolog.Nop())

	assert.Equal(t, UnknownTime, c.CurrentTime())
	f := c.Load("video.mp4")
	assert.Equal(t, Preparing, c.State())
	assert.Equal(t, UnknownTime, c.CurrentTime())

	c.Update(0)
	require.True(t, f.Done())
	assert.Equal(t, Paused, c.State())
	assert.True(t, c.Loaded())
	assert.Equal(t, int64(2), fake.Frame())
	assert.InDelta(t, 2.0/30, c.CurrentTime(), 1e-9)
}

func TestController_WaitsForDuration(t *testing.T) {
	fake := decodertest.New(60, 30)
	fake.Info.Duration = 0
	c := New(fake, DefaultOptions(), zerolog.Nop())

	f := c.Load("video.mp4")
	c.Update(0)
	c.Update(0)
	assert.False(t, f.Done())
	assert.Equal(t, Loaded, c.State())
	assert.Equal(t, UnknownTime, c.CurrentTime())

	fake.Info.Duration = 60
	c.Update(0)
	assert.True(t, f.Done())
	assert.Equal(t, Paused, c.State())
}

func TestController_SecondLoadSupersedesFirst(t *testing.T) {
	fake := decodertest.New(60, 30)
	fake.Info.Duration = 0
	c := New(fake, DefaultOptions(), zerolog.Nop())

	first := c.Load("a.mp4")
	c.Update(0)
	require.Equal(t, Loaded, c.State(), "first load is waiting for its duration")

	var firstErr error
	first.Then(func(_ decoder.Info, err error) { firstErr = err })

	second := c.Load("b.mp4")
	require.True(t, first.Done())
	assert.ErrorIs(t, firstErr, ErrSuperseded)
	assert.False(t, first.Canceled())

	fake.Info.Duration = 60
	c.Update(0)
	require.True(t, second.Done())
	info, err, _ := second.Result()
	require.NoError(t, err)
	assert.Equal(t, "b.mp4", info.URL)
	assert.Equal(t, Paused, c.State())

	c.Update(0)
	assert.ErrorIs(t, first.Err(), ErrSuperseded, "stale continuation settles nothing")
}

func TestController_CloseRejectsPendingLoad(t *testing.T) {
	fake := decodertest.New(60, 30)
	fake.HoldPrepare = true
	c := New(fake, DefaultOptions(), zerolog.Nop())

	f := c.Load("video.mp4")
	require.NoError(t, c.Close())
	require.True(t, f.Done())
	assert.ErrorIs(t, f.Err(), ErrClosed)
}

func TestController_LoadFailure(t *testing.T) {
	boom := errors.New("codec missing")
	fake := decodertest.New(60, 30)
	fake.PrepareErr = boom
	c := New(fake, DefaultOptions(), zerolog.Nop())

	f := c.Load("video.mp4")
	c.Update(0)

	assert.ErrorIs(t, f.Err(), boom)
	assert.Equal(t, Error, c.State())
	assert.False(t, c.Loaded())
	assert.ErrorIs(t, c.Play(), ErrNotLoaded)
	assert.ErrorIs(t, c.Seek(3), ErrNotLoaded)

	c.Update(0)
	assert.Equal(t, Error, c.State(), "no retry")
}

func TestController_RejectsFlatVideo(t *testing.T) {
	fake := decodertest.New(60, 30)
	fake.Info.Width, fake.Info.Height = 1920, 1080

	c := New(fake, DefaultOptions(), zerolog.Nop())
	f := c.Load("flat.mp4")
	c.Update(0)
	assert.ErrorIs(t, f.Err(), decoder.ErrNotEquirectangular)

	opts := DefaultOptions()
	opts.AllowFlat = true
	c = New(fake, opts, zerolog.Nop())
	f = c.Load("flat.mp4")
	c.Update(0)
	assert.NoError(t, f.Err())
}

func TestController_PlayPauseMirrorsAudio(t *testing.T) {
	fake := decodertest.New(60, 30)
	c := loaded(t, fake)
	audio := &recordingAudio{}
	c.SetAudio(audio)

	require.NoError(t, c.Play())
	assert.True(t, c.Playing())
	assert.True(t, fake.Playing())
	assert.True(t, audio.playing)

	require.NoError(t, c.TogglePlay())
	assert.Equal(t, Paused, c.State())
	assert.False(t, fake.Playing())
	assert.False(t, audio.playing)
}

func TestController_SeekThenRead(t *testing.T) {
	const fps = 30.0
	for _, playing := range []bool{false, true} {
		fake := decodertest.New(60, fps)
		c := loaded(t, fake)
		if playing {
			require.NoError(t, c.Play())
		}
		for _, target := range []float64{0, 12.34, 25, 59.9} {
			require.NoError(t, c.Seek(target))
			c.Update(0)
			assert.InDelta(t, target, c.CurrentTime(), 1/fps, "playing=%v target=%v", playing, target)
			assert.Equal(t, playing, c.Playing(), "seek never changes the play flag")
		}
	}
}

func TestController_SeekIdempotent(t *testing.T) {
	fake := decodertest.New(60, 30)
	c := loaded(t, fake)
	tracker := &recordingTracker{}
	c.SetTracker(tracker)

	require.NoError(t, c.Seek(10))
	require.NoError(t, c.Seek(10))
	assert.Len(t, tracker.periods, 1)
	assert.Equal(t, []float64{10, 10}, fake.SetTimeCalls)

	require.NoError(t, c.Seek(20))
	assert.Len(t, tracker.periods, 2)
	assert.InDelta(t, 10, tracker.periods[1].from, 1.0/30)
	assert.Equal(t, 20.0, tracker.periods[1].to)
}

func TestController_SeekHook(t *testing.T) {
	fake := decodertest.New(60, 30)
	c := loaded(t, fake)
	c.SetSeekHook(func(t float64) float64 { return min(t, 30) })

	require.NoError(t, c.Seek(45))
	assert.Equal(t, 30.0, fake.SetTimeCalls[len(fake.SetTimeCalls)-1])

	require.NoError(t, c.SeekNoTriggers(45))
	assert.Equal(t, 45.0, fake.SetTimeCalls[len(fake.SetTimeCalls)-1])
}

func TestController_RelativeAndFractional(t *testing.T) {
	fake := decodertest.New(60, 30)
	c := loaded(t, fake)

	require.NoError(t, c.SeekFractional(0.5))
	assert.InDelta(t, 30, c.CurrentTime(), 1.0/30)
	assert.InDelta(t, 0.5, c.Fraction(), 1e-3)

	require.NoError(t, c.SeekRelative(-10))
	assert.InDelta(t, 20, c.CurrentTime(), 1.0/30)

	require.NoError(t, c.SeekRelative(-100))
	assert.Equal(t, 0.0, c.CurrentTime())

	assert.Equal(t, 60.0, c.TimeForFraction(2))
}

func TestController_PlaybackSpeed(t *testing.T) {
	fake := decodertest.New(60, 30)
	c := loaded(t, fake)

	assert.ErrorIs(t, c.SetPlaybackSpeed(20), decoder.ErrSpeedRange)
	require.NoError(t, c.SetPlaybackSpeed(2))
	require.NoError(t, c.Play())
	c.Update(1)
	assert.InDelta(t, 2+2.0/30, c.CurrentTime(), 2.0/30)
}

func TestController_Volume(t *testing.T) {
	fake := decodertest.New(60, 30)
	c := loaded(t, fake)
	audio := &recordingAudio{}
	c.SetAudio(audio)

	c.SetVolume(0.5)
	assert.Equal(t, 0.5, c.Volume())
	assert.InDelta(t, -6.0206, audio.levels[len(audio.levels)-1], 1e-3)

	c.StartVolumeChange(false)
	assert.InDelta(t, 0.45, c.Volume(), 1e-9)
	c.Update(0.5)
	assert.InDelta(t, 0.2, c.Volume(), 1e-9)
	c.Update(1)
	assert.Equal(t, 0.0, c.Volume())
	assert.Equal(t, MinLevelDB, audio.levels[len(audio.levels)-1])

	c.StopVolumeChange()
	c.StartVolumeChange(true)
	c.Update(10)
	c.StopVolumeChange()
	assert.Equal(t, 1.0, c.Volume())

	c.SetVolume(3)
	assert.Equal(t, 1.0, c.Volume())
}

func TestController_DecoderFailureAfterLoad(t *testing.T) {
	fake := decodertest.New(60, 30)
	c := loaded(t, fake)
	require.NoError(t, c.Play())

	boom := errors.New("stream broke")
	fake.Fail(boom)
	c.Update(0.1)

	assert.Equal(t, Error, c.State())
	assert.ErrorIs(t, c.Err(), boom)
	failure, _, ok := c.Failure().Result()
	require.True(t, ok)
	assert.ErrorIs(t, failure, boom)
}

func TestController_PausesAtEnd(t *testing.T) {
	fake := decodertest.New(5, 30)
	c := loaded(t, fake)
	require.NoError(t, c.Play())

	c.Update(10)
	assert.Equal(t, Paused, c.State())
}

func TestLinearToDB(t *testing.T) {
	assert.Equal(t, 0.0, LinearToDB(1))
	assert.Equal(t, MinLevelDB, LinearToDB(0))
	assert.Equal(t, MinLevelDB, LinearToDB(1e-9))
}
