package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Faultbox/midgard-mmd/internal/logger"
	"github.com/Faultbox/midgard-mmd/pkg/mesh"
	"github.com/Faultbox/midgard-mmd/pkg/pose"
	"go.uber.org/zap"
)

func cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	frame := fs.Float64("frame", 0, "Motion frame to pose the model at")
	output := fs.String("o", "model.glb", "Output file")
	noTextures := fs.Bool("no-textures", false, "Do not embed textures")
	e, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := requireArgs(fs, 1, "export <model.pmx> [motion.vmd]"); err != nil {
		return err
	}

	c, err := e.assets.LoadCharacter(e.ctx, fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	m := mesh.Build(c.Model)
	if m == nil {
		return fmt.Errorf("%s has no geometry", fs.Arg(0))
	}

	var opts mesh.ExportOptions
	if c.Motion != nil {
		ev := pose.NewEvaluatorWithOptions(c.Model, c.Motion, pose.Options{
			DisableIK:   !e.cfg.IK.Enabled,
			IKTolerance: e.cfg.IK.Tolerance,
		})
		p := pose.NewPose(c.Model)
		ev.Evaluate(*frame, p)
		opts.Positions, _ = mesh.Skin(nil, c.Model, p)
	}
	if !*noTextures {
		opts.Textures = pngTextures(c.Textures, e.cfg.Export.TextureSize)
	}

	f, err := os.Create(*output)
	if err != nil {
		return err
	}
	if err := mesh.ExportGLTF(f, c.Model, m, opts); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("model exported",
		zap.String("model", c.Model.Name),
		zap.String("output", *output),
		zap.Bool("posed", c.Motion != nil),
		zap.Int("missing_textures", len(c.Missing)))
	fmt.Printf("Wrote %s\n", *output)
	return nil
}
