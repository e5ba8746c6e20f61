// Package config handles mmdtool configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all tool settings.
type Config struct {
	Assets   AssetsConfig   `yaml:"assets"`
	Playback PlaybackConfig `yaml:"playback"`
	IK       IKConfig       `yaml:"ik"`
	Export   ExportConfig   `yaml:"export"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AssetsConfig holds asset source settings.
type AssetsConfig struct {
	Paths       []string      `yaml:"paths"`        // directories and zip archives, later entries win
	CacheSize   int64         `yaml:"cache_size"`   // bytes, 0 for unbounded
	LoadTimeout time.Duration `yaml:"load_timeout"` // per command, 0 for none
}

// PlaybackConfig holds motion sampling settings.
type PlaybackConfig struct {
	FPS     float64 `yaml:"fps"`     // frames sampled per second of motion
	Workers int     `yaml:"workers"` // parallel pose evaluations, 0 for one per CPU
}

// IKConfig holds inverse kinematics settings.
type IKConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Tolerance float32 `yaml:"tolerance"`
}

// ExportConfig holds texture and mesh export settings.
type ExportConfig struct {
	TextureSize int  `yaml:"texture_size"` // longest side after downscaling, 0 keeps the original
	WebP        bool `yaml:"webp"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Assets: AssetsConfig{
			Paths:       []string{"."},
			CacheSize:   256 << 20,
			LoadTimeout: 30 * time.Second,
		},
		Playback: PlaybackConfig{
			FPS:     30,
			Workers: 0,
		},
		IK: IKConfig{
			Enabled:   true,
			Tolerance: 1e-4,
		},
		Export: ExportConfig{
			TextureSize: 1024,
			WebP:        false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	var errs []error
	if c.Assets.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("assets.cache_size must not be negative, got %d", c.Assets.CacheSize))
	}
	if c.Playback.FPS <= 0 {
		errs = append(errs, fmt.Errorf("playback.fps must be positive, got %g", c.Playback.FPS))
	}
	if c.Playback.Workers < 0 {
		errs = append(errs, fmt.Errorf("playback.workers must not be negative, got %d", c.Playback.Workers))
	}
	if c.IK.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("ik.tolerance must be positive, got %g", c.IK.Tolerance))
	}
	if c.Export.TextureSize < 0 {
		errs = append(errs, fmt.Errorf("export.texture_size must not be negative, got %d", c.Export.TextureSize))
	}
	return errors.Join(errs...)
}
