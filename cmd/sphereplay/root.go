package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ivlev/sphereplay/internal/async"
	"github.com/ivlev/sphereplay/internal/config"
	"github.com/ivlev/sphereplay/internal/logging"
	"github.com/ivlev/sphereplay/internal/system"
)

var (
	cfgFile   string
	cfg       config.Config
	log       = zerolog.Nop()
	logCloser io.Closer
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a config file (default ./sphereplay.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level: trace, debug, info, warn, error")
	lo.Must0(viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")))

	rootCmd.PersistentFlags().String("log-dir", "", "Directory for the rotated log file (empty disables it)")
	lo.Must0(viper.BindPFlag("log.dir", rootCmd.PersistentFlags().Lookup("log-dir")))

	rootCmd.PersistentFlags().StringP("backend", "b", "ffmpeg", "Decoder backend: ffmpeg, stills, synthetic")
	lo.Must0(viper.BindPFlag("decoder.backend", rootCmd.PersistentFlags().Lookup("backend")))
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("backend", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"ffmpeg", "stills", "synthetic"}, cobra.ShellCompDirectiveDefault
	}))

	rootCmd.PersistentFlags().Bool("stats", false, "Log a resource and engine report on exit")
	lo.Must0(viper.BindPFlag("stats", rootCmd.PersistentFlags().Lookup("stats")))

	rootCmd.AddCommand(playCmd, thumbCmd, probeCmd, versionCmd)
}

var rootCmd = &cobra.Command{
	Use:           "sphereplay",
	Short:         "Interactive 360° video playback engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(viper.GetViper(), cfgFile)
		if err != nil {
			return err
		}
		log, logCloser, err = logging.Setup(logging.Options{
			Level: cfg.Log.Level,
			Dir:   cfg.Log.Dir,
		})
		if err != nil {
			return err
		}
		system.InitResourceLimits(log)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("command failed")
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// await ticks update at the configured rate until f settles.
func await[T any](ctx context.Context, f *async.Future[T], update func(dt float64)) (T, error) {
	dt := 1 / cfg.Tick.Rate
	ticker := time.NewTicker(tickInterval())
	defer ticker.Stop()
	for {
		update(dt)
		if v, err, ok := f.Result(); ok {
			return v, err
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-ticker.C:
		}
	}
}

func tickInterval() time.Duration {
	return time.Duration(float64(time.Second) / cfg.Tick.Rate)
}
