// mmdtool is a CLI utility for inspecting, sampling and converting
// MikuMikuDance models and motions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Faultbox/midgard-mmd/internal/assets"
	"github.com/Faultbox/midgard-mmd/internal/config"
	"github.com/Faultbox/midgard-mmd/internal/logger"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "list", "ls":
		err = cmdList(args)
	case "info":
		err = cmdInfo(args)
	case "motion":
		err = cmdMotion(args)
	case "pose":
		err = cmdPose(args)
	case "bake":
		err = cmdBake(args)
	case "textures", "tex":
		err = cmdTextures(args)
	case "export":
		err = cmdExport(args)
	case "config":
		err = cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		logger.Sync()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Sync()
}

func printUsage() {
	fmt.Println(`mmdtool - MikuMikuDance model and motion utility

Usage:
  mmdtool <command> [options]

Commands:
  list [pattern]                      List files in the asset sources
  info <model.pmx>                    Show model information
  motion <motion.vmd>                 Show motion information
  pose <model.pmx> <motion.vmd>       Evaluate one frame and print bone positions
  bake <model.pmx> <motion.vmd>       Sample a motion range into YAML
  textures <model.pmx>                Check (and convert) the textures of a model
  export <model.pmx> [motion.vmd]     Write the model, optionally posed, as binary glTF
  config                              Print the effective configuration

Common options:
  -data <dir|file.zip>   Asset source, repeatable (default: current directory)
  -config <file>         Config file
  -debug                 Debug logging

Examples:
  mmdtool info -data models.zip miku/miku.pmx
  mmdtool pose -frame 120 -bones センター,左足ＩＫ miku.pmx dance.vmd
  mmdtool bake -fps 60 -o dance.yaml miku.pmx dance.vmd
  mmdtool textures -webp -max-size 512 -o out miku.pmx
  mmdtool export -frame 30 -o miku.glb miku.pmx dance.vmd`)
}

// env is the state shared by every command.
type env struct {
	cfg    *config.Config
	assets *assets.Manager
	ctx    context.Context
	cancel context.CancelFunc
}

// setup parses args with fs, loads the configuration, initializes logging
// and opens the asset sources.
func setup(fs *flag.FlagSet, args []string) (*env, error) {
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	m := assets.NewManager(cfg.Assets.CacheSize)
	for _, p := range cfg.Assets.Paths {
		if err := m.AddPath(p); err != nil {
			m.Close()
			return nil, err
		}
	}

	e := &env{cfg: cfg, assets: m}
	if cfg.Assets.LoadTimeout > 0 {
		e.ctx, e.cancel = context.WithTimeout(context.Background(), cfg.Assets.LoadTimeout)
	} else {
		e.ctx, e.cancel = context.WithCancel(context.Background())
	}
	return e, nil
}

func (e *env) Close() {
	e.cancel()
	if err := e.assets.Close(); err != nil {
		logger.Warn("closing asset sources", zap.Error(err))
	}
}

// requireArgs checks that fs received at least n positional arguments.
func requireArgs(fs *flag.FlagSet, n int, usage string) error {
	if fs.NArg() < n {
		return fmt.Errorf("usage: mmdtool %s", usage)
	}
	return nil
}
