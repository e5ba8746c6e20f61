package config

import (
	"flag"
	"strings"
)

// Flags holds command-line overrides. Zero values leave the config as is.
type Flags struct {
	Config  string
	Debug   bool
	Data    pathList
	FPS     float64
	Workers int
	NoIK    bool
	WebP    bool
	MaxSize int
}

// RegisterFlags defines the shared flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.Var(&f.Data, "data", "Asset directory or zip archive (repeatable, replaces configured paths)")
	fs.Float64Var(&f.FPS, "fps", 0, "Sampling rate in frames per second")
	fs.IntVar(&f.Workers, "workers", 0, "Parallel pose evaluations")
	fs.BoolVar(&f.NoIK, "no-ik", false, "Disable the IK solver")
	fs.BoolVar(&f.WebP, "webp", false, "Convert textures to WebP")
	fs.IntVar(&f.MaxSize, "max-size", 0, "Longest texture side when converting")
	return f
}

// applyFlags applies CLI flag overrides to the config.
func (f *Flags) applyFlags(cfg *Config) {
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if len(f.Data) > 0 {
		cfg.Assets.Paths = append([]string(nil), f.Data...)
	}
	if f.FPS > 0 {
		cfg.Playback.FPS = f.FPS
	}
	if f.Workers > 0 {
		cfg.Playback.Workers = f.Workers
	}
	if f.NoIK {
		cfg.IK.Enabled = false
	}
	if f.WebP {
		cfg.Export.WebP = true
	}
	if f.MaxSize > 0 {
		cfg.Export.TextureSize = f.MaxSize
	}
}

type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ",") }

func (p *pathList) Set(v string) error {
	*p = append(*p, v)
	return nil
}
