package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/sphereplay/internal/decoder"
)

var probeTimeout time.Duration

func init() {
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 30*time.Second, "Give up preparing after this long")
}

var probeCmd = &cobra.Command{
	Use:   "probe <video>",
	Short: "Prepare a video and print what the decoder reports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dec, err := decoder.New(cfg.DecoderOptions(), log)
		if err != nil {
			return err
		}
		defer dec.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
		defer cancel()
		info, err := await(ctx, dec.Prepare(args[0]), dec.Update)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", args[0], err)
		}

		out := struct {
			decoder.Info    `yaml:",inline"`
			Equirectangular bool `yaml:"equirectangular"`
		}{info, info.Equirectangular()}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close()
		return enc.Encode(out)
	},
}
