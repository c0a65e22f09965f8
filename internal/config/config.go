// Package config loads sphereplay settings from defaults, an optional
// sphereplay.yaml and SPHEREPLAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ivlev/sphereplay/internal/decoder"
	"github.com/ivlev/sphereplay/internal/playback"
	"github.com/ivlev/sphereplay/internal/selection"
)

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Playback   PlaybackConfig   `mapstructure:"playback"`
	Selection  SelectionConfig  `mapstructure:"selection"`
	Scene      SceneConfig      `mapstructure:"scene"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot"`
	Decoder    DecoderConfig    `mapstructure:"decoder"`
	Tracking   TrackingConfig   `mapstructure:"tracking"`
	Tick       TickConfig       `mapstructure:"tick"`
	Stats      bool             `mapstructure:"stats"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

type PlaybackConfig struct {
	Volume       float64 `mapstructure:"volume"`
	VolumeRate   float64 `mapstructure:"volumeRate"`
	VolumeStep   float64 `mapstructure:"volumeStep"`
	PrerollFrame int64   `mapstructure:"prerollFrame"`
	AllowFlat    bool    `mapstructure:"allowFlat"`
}

type SelectionConfig struct {
	Dwell       float64 `mapstructure:"dwell"`
	PointRadius float64 `mapstructure:"pointRadius"`
	RayLength   float64 `mapstructure:"rayLength"`
}

type SceneConfig struct {
	SphereRadius float64 `mapstructure:"sphereRadius"`
}

type ScreenshotConfig struct {
	Quality int `mapstructure:"quality"`
	Workers int `mapstructure:"workers"`
}

type DecoderConfig struct {
	Backend string  `mapstructure:"backend"`
	FPS     float64 `mapstructure:"fps"`
	DPI     int     `mapstructure:"dpi"`
}

type TrackingConfig struct {
	DB string `mapstructure:"db"`
}

type TickConfig struct {
	Rate float64 `mapstructure:"rate"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "")

	v.SetDefault("playback.volume", 1.0)
	v.SetDefault("playback.volumeRate", 0.5)
	v.SetDefault("playback.volumeStep", 0.05)
	v.SetDefault("playback.prerollFrame", 2)
	v.SetDefault("playback.allowFlat", false)

	v.SetDefault("selection.dwell", 0.75)
	v.SetDefault("selection.pointRadius", 0.5)
	v.SetDefault("selection.rayLength", 100.0)

	v.SetDefault("scene.sphereRadius", 10.0)

	v.SetDefault("screenshot.quality", 50)
	v.SetDefault("screenshot.workers", 4)

	v.SetDefault("decoder.backend", "ffmpeg")
	v.SetDefault("decoder.fps", 30.0)
	v.SetDefault("decoder.dpi", 72)

	v.SetDefault("tracking.db", "")
	v.SetDefault("tick.rate", 60.0)
	v.SetDefault("stats", false)
}

// Load reads the configuration. file may name a config file explicitly;
// otherwise sphereplay.yaml is looked up in the working directory and is
// optional.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("SPHEREPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("sphereplay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Selection.Dwell <= 0:
		return fmt.Errorf("selection.dwell must be positive, got %v", c.Selection.Dwell)
	case c.Scene.SphereRadius <= 0:
		return fmt.Errorf("scene.sphereRadius must be positive, got %v", c.Scene.SphereRadius)
	case c.Tick.Rate <= 0:
		return fmt.Errorf("tick.rate must be positive, got %v", c.Tick.Rate)
	case c.Screenshot.Quality < 1 || c.Screenshot.Quality > 100:
		return fmt.Errorf("screenshot.quality must be in [1,100], got %d", c.Screenshot.Quality)
	case c.Decoder.FPS <= 0:
		return fmt.Errorf("decoder.fps must be positive, got %v", c.Decoder.FPS)
	}
	return nil
}

func (c Config) DecoderOptions() decoder.Options {
	return decoder.Options{
		Backend: c.Decoder.Backend,
		FPS:     c.Decoder.FPS,
		DPI:     c.Decoder.DPI,
	}
}

func (c Config) PlaybackOptions() playback.Options {
	return playback.Options{
		Volume:       c.Playback.Volume,
		VolumeRate:   c.Playback.VolumeRate,
		VolumeStep:   c.Playback.VolumeStep,
		PrerollFrame: c.Playback.PrerollFrame,
		AllowFlat:    c.Playback.AllowFlat,
	}
}

func (c Config) SelectionOptions() selection.Options {
	return selection.Options{
		Dwell:       c.Selection.Dwell,
		PointRadius: c.Selection.PointRadius,
		RayLength:   c.Selection.RayLength,
	}
}
