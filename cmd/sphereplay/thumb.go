package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/sphereplay/internal/decoder"
	"github.com/ivlev/sphereplay/internal/screenshot"
	"github.com/ivlev/sphereplay/internal/telemetry"
)

var (
	thumbFrames  []int64
	thumbCount   int
	thumbWidth   float64
	thumbHeight  float64
	thumbStretch bool
	thumbOut     string
	thumbTimeout time.Duration
)

func init() {
	thumbCmd.Flags().Int64SliceVarP(&thumbFrames, "frames", "f", nil, "Frame indices to capture")
	thumbCmd.Flags().IntVarP(&thumbCount, "count", "n", 8, "Evenly spaced frames to capture when --frames is empty")
	thumbCmd.Flags().Float64Var(&thumbWidth, "width", 512, "Thumbnail width")
	thumbCmd.Flags().Float64Var(&thumbHeight, "height", 256, "Thumbnail height")
	thumbCmd.Flags().BoolVar(&thumbStretch, "stretch", false, "Fill the box instead of keeping the aspect ratio")
	thumbCmd.Flags().StringVarP(&thumbOut, "out", "o", "thumbs", "Output directory")
	thumbCmd.Flags().DurationVar(&thumbTimeout, "timeout", 2*time.Minute, "Give up after this long")
}

var thumbCmd = &cobra.Command{
	Use:   "thumb <video>",
	Short: "Capture JPEG thumbnails of video frames",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		url := args[0]
		factory := decoder.NewFactory(cfg.DecoderOptions(), log)
		fs := afero.NewOsFs()

		ctx, cancel := context.WithTimeout(cmd.Context(), thumbTimeout)
		defer cancel()

		frames := thumbFrames
		if len(frames) == 0 {
			info, err := probe(ctx, factory, url)
			if err != nil {
				return err
			}
			frames = spread(info.FrameCount, thumbCount)
		}
		frames = lo.Uniq(frames)

		metrics, err := telemetry.New()
		if err != nil {
			return err
		}

		workers := max(cfg.Screenshot.Workers, 1)
		jobs := make(chan int64)
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			defer close(jobs)
			for _, f := range frames {
				select {
				case jobs <- f:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
		base := strings.TrimSuffix(filepath.Base(url), filepath.Ext(url))
		for range workers {
			g.Go(func() error {
				p := screenshot.New(url, factory, fs, cfg.Screenshot.Quality, log)
				p.SetMetrics(metrics)
				defer p.Close()
				for frame := range jobs {
					req := screenshot.Request{
						Frame:       frame,
						Width:       thumbWidth,
						Height:      thumbHeight,
						KeepAspect:  !thumbStretch,
						Destination: filepath.Join(thumbOut, fmt.Sprintf("%s_%06d.jpg", base, frame)),
					}
					f, err := p.Request(req)
					if err != nil {
						return err
					}
					path, err := await(ctx, f, p.Update)
					if err != nil {
						return fmt.Errorf("frame %d: %w", frame, err)
					}
					log.Info().Int64("frame", frame).Str("path", path).Msg("thumbnail written")
				}
				return nil
			})
		}
		err = g.Wait()

		log.Info().
			Int("frames", len(frames)).
			Int("workers", workers).
			Dur("took", time.Since(started)).
			Msg("thumbnails done")
		if cfg.Stats {
			metrics.Snapshot().Log(log)
		}
		return err
	},
}

func probe(ctx context.Context, factory decoder.Factory, url string) (decoder.Info, error) {
	dec, err := factory()
	if err != nil {
		return decoder.Info{}, err
	}
	defer dec.Close()
	info, err := await(ctx, dec.Prepare(url), dec.Update)
	if err != nil {
		return decoder.Info{}, fmt.Errorf("prepare %s: %w", url, err)
	}
	return info, nil
}

// spread returns n frame indices evenly spaced over [0, total).
func spread(total int64, n int) []int64 {
	if total <= 0 || n <= 0 {
		return nil
	}
	n = min(n, int(total))
	return lo.Times(n, func(i int) int64 {
		return int64(i) * total / int64(n)
	})
}
