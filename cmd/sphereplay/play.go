package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ivlev/sphereplay/internal/content"
	"github.com/ivlev/sphereplay/internal/decoder"
	"github.com/ivlev/sphereplay/internal/screenshot"
	"github.com/ivlev/sphereplay/internal/script"
	"github.com/ivlev/sphereplay/internal/selection"
	"github.com/ivlev/sphereplay/internal/session"
	"github.com/ivlev/sphereplay/internal/system"
	"github.com/ivlev/sphereplay/internal/telemetry"
	"github.com/ivlev/sphereplay/internal/tracking"
)

var (
	playScript      string
	playSessionsDir string
	playOpenTimeout time.Duration
)

func init() {
	playCmd.Flags().StringVarP(&playScript, "script", "s", "", "Gaze script driving the session")
	playCmd.Flags().StringVar(&playSessionsDir, "sessions", "sessions", "Directory searched for the latest session file")
	playCmd.Flags().DurationVar(&playOpenTimeout, "open-timeout", 30*time.Second, "Give up opening the session after this long")
}

var playCmd = &cobra.Command{
	Use:   "play [session.yaml]",
	Short: "Watch a session headless, driven by a gaze script",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		fs := afero.NewOsFs()

		sc := &script.Script{Events: []script.Event{{Action: script.ActionPlay}}}
		if playScript != "" {
			var err error
			if sc, err = script.Read(fs, playScript); err != nil {
				return err
			}
		}
		modality, err := sc.InputModality()
		if err != nil {
			return err
		}

		path, err := sessionPath(fs, args, sc)
		if err != nil {
			return err
		}

		metrics, err := telemetry.New()
		if err != nil {
			return err
		}
		dec, err := decoder.New(cfg.DecoderOptions(), log)
		if err != nil {
			return err
		}

		deps := session.Deps{
			Fs:          fs,
			Loader:      content.NewLoader(fs, log),
			Decoder:     dec,
			Screenshots: decoder.NewFactory(cfg.DecoderOptions(), log),
			Metrics:     metrics,
		}
		var tracker *tracking.Tracker
		if cfg.Tracking.DB != "" {
			db, err := tracking.OpenDB(cfg.Tracking.DB)
			if err != nil {
				return err
			}
			tracker = tracking.New(db, log)
			deps.Tracker = tracker
		}

		s := session.New(deps, session.Options{
			Playback:          cfg.PlaybackOptions(),
			Selection:         cfg.SelectionOptions(),
			SphereRadius:      cfg.Scene.SphereRadius,
			ScreenshotQuality: cfg.Screenshot.Quality,
		}, log)
		defer func() {
			if err := s.Shutdown(); err != nil {
				log.Warn().Err(err).Msg("shutdown")
			}
		}()

		ctx, cancel := context.WithTimeout(cmd.Context(), playOpenTimeout)
		_, err = await(ctx, s.Open(path), func(dt float64) { s.Tick(dt, selection.Input{}) })
		cancel()
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}

		duration := sc.Duration
		if playScript == "" {
			duration = s.Playback().Duration()
		}
		err = run(cmd.Context(), s, sc, modality, duration)

		if tracker != nil {
			if watched, werr := tracker.Watched(s.ID()); werr == nil {
				log.Info().Str("session", s.ID()).Float64("watched", watched).Msg("view periods stored")
			}
		}
		if cfg.Stats {
			system.CollectStats(started).Log(log)
			metrics.Snapshot().Log(log)
		}
		return err
	},
}

// sessionPath picks the session file: the argument, the script's session or
// the newest file in the sessions directory.
func sessionPath(fs afero.Fs, args []string, sc *script.Script) (string, error) {
	switch {
	case len(args) > 0:
		return args[0], nil
	case sc.Session != "":
		return sc.Session, nil
	}
	path, err := content.FindLatest(fs, playSessionsDir)
	if err != nil {
		return "", fmt.Errorf("no session given and none found in %s: %w", playSessionsDir, err)
	}
	log.Info().Str("path", path).Msg("using latest session")
	return path, nil
}

// run ticks the session in real time until the script ends, the session
// leaves Watching or ctx is cancelled.
func run(ctx context.Context, s *session.Session, sc *script.Script, modality selection.Modality, duration float64) error {
	dt := 1 / cfg.Tick.Rate
	ticker := time.NewTicker(tickInterval())
	defer ticker.Stop()

	cursor := sc.Cursor()
	for t := 0.0; t <= duration || !cursor.Done(); t += dt {
		in := selection.Input{Modality: modality, Ray: sc.Gaze(t)}
		for _, ev := range cursor.Until(t) {
			if err := apply(s, ev, &in); err != nil {
				log.Warn().Err(err).Str("action", string(ev.Action)).Float64("at", ev.Time).Msg("script event")
			}
		}
		if s.State() != session.Watching {
			return nil
		}

		res := s.Tick(dt, in)
		report(s, res)
		if s.State() != session.Watching {
			return errors.New("playback failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func apply(s *session.Session, ev script.Event, in *selection.Input) error {
	switch ev.Action {
	case script.ActionTrigger:
		in.Trigger = true
	case script.ActionClose:
		s.CloseActive()
	case script.ActionScrub:
		return s.ScrubTo(ev.Value)
	case script.ActionPlay:
		return s.Play()
	case script.ActionPause:
		return s.Pause()
	case script.ActionBack:
		s.Close()
	case script.ActionScreenshot:
		f, err := s.Screenshot(screenshot.Request{
			Frame:       int64(ev.Value),
			Width:       1024,
			Height:      512,
			KeepAspect:  true,
			Destination: ev.Path,
		})
		if err != nil {
			return err
		}
		f.Then(func(path string, err error) {
			if err != nil {
				return
			}
			log.Info().Str("path", path).Msg("screenshot saved")
		})
	}
	return nil
}

func report(s *session.Session, res selection.Result) {
	if res.Closed != nil {
		log.Info().Int("point", res.Closed.Number).Msg("point closed by playback")
	}
	if p := res.Activated; p != nil {
		log.Info().
			Int("point", p.Number).
			Str("title", p.Title).
			Stringer("kind", p.Kind()).
			Float64("at", s.Playback().CurrentTime()).
			Int("remaining", s.Registry().Remaining()).
			Msg("point activated")
	}
}
