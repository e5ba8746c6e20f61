package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/Faultbox/midgard-mmd/internal/logger"
	"github.com/Faultbox/midgard-mmd/pkg/formats"
	"github.com/Faultbox/midgard-mmd/pkg/pose"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// motionFPS is the keyframe rate of VMD motions.
const motionFPS = 30

type bakedBone struct {
	Name     string     `yaml:"name"`
	Position [3]float32 `yaml:"position,flow"`
	Rotation [4]float32 `yaml:"rotation,flow"`
}

type bakedCamera struct {
	Position [3]float32 `yaml:"position,flow"`
	Target   [3]float32 `yaml:"target,flow"`
	FOV      float32    `yaml:"fov"`
}

type bakedFrame struct {
	Frame   float64            `yaml:"frame"`
	Visible bool               `yaml:"visible"`
	Bones   []bakedBone        `yaml:"bones"`
	Morphs  map[string]float32 `yaml:"morphs,omitempty"`
	Camera  *bakedCamera       `yaml:"camera,omitempty"`
}

type bakeOutput struct {
	Model  string       `yaml:"model"`
	Motion string       `yaml:"motion"`
	FPS    float64      `yaml:"fps"`
	Frames []bakedFrame `yaml:"frames"`
}

// loadPair loads a model and motion and binds them.
func (e *env) loadPair(modelPath, motionPath string) (*formats.PMX, *formats.VMD, *pose.Evaluator, error) {
	c, err := e.assets.LoadCharacter(e.ctx, modelPath, motionPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if c.Motion != nil && c.Motion.ModelName != "" && c.Motion.ModelName != c.Model.Name {
		logger.Warn("motion was recorded for a different model",
			zap.String("model", c.Model.Name),
			zap.String("motion_model", c.Motion.ModelName))
	}
	ev := pose.NewEvaluatorWithOptions(c.Model, c.Motion, pose.Options{
		DisableIK:   !e.cfg.IK.Enabled,
		IKTolerance: e.cfg.IK.Tolerance,
	})
	return c.Model, c.Motion, ev, nil
}

// boneFilter resolves a comma-separated list of bone names. An empty list
// selects every bone.
func boneFilter(m *formats.PMX, list string) ([]int, error) {
	if list == "" {
		out := make([]int, len(m.Bones))
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	var out []int
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		i := m.BoneIndex(name)
		if i < 0 {
			return nil, fmt.Errorf("bone %q not found in %s", name, m.Name)
		}
		out = append(out, i)
	}
	return out, nil
}

func snapshot(m *formats.PMX, v *formats.VMD, p *pose.Pose, bones []int) bakedFrame {
	f := bakedFrame{
		Frame:   p.Frame,
		Visible: p.Visible,
		Bones:   make([]bakedBone, len(bones)),
	}
	for k, i := range bones {
		f.Bones[k] = bakedBone{
			Name:     m.Bones[i].Name,
			Position: p.BonePosition(i).Array(),
			Rotation: p.Rotations[i].Mul(p.IKRotations[i]).Array(),
		}
	}
	for i, w := range p.MorphWeights {
		if w == 0 {
			continue
		}
		if f.Morphs == nil {
			f.Morphs = make(map[string]float32)
		}
		f.Morphs[m.Morphs[i].Name] = w
	}
	if c, ok := pose.EvaluateCamera(v, p.Frame); ok {
		f.Camera = &bakedCamera{
			Position: c.Position().Array(),
			Target:   c.Target.Array(),
			FOV:      c.FOV,
		}
	}
	return f
}

func cmdPose(args []string) error {
	fs := flag.NewFlagSet("pose", flag.ExitOnError)
	frame := fs.Float64("frame", 0, "Motion frame to evaluate (30 per second)")
	bones := fs.String("bones", "", "Comma-separated bone names (default: all)")
	e, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := requireArgs(fs, 2, "pose <model.pmx> <motion.vmd>"); err != nil {
		return err
	}

	m, v, ev, err := e.loadPair(fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	sel, err := boneFilter(m, *bones)
	if err != nil {
		return err
	}

	p := pose.NewPose(m)
	ev.Evaluate(*frame, p)
	printPose(os.Stdout, snapshot(m, v, p, sel))
	return nil
}

func printPose(w io.Writer, f bakedFrame) {
	fmt.Fprintf(w, "Frame %g (visible: %v)\n\n", f.Frame, f.Visible)
	for _, b := range f.Bones {
		fmt.Fprintf(w, "  %-20s %9.4f %9.4f %9.4f\n", b.Name, b.Position[0], b.Position[1], b.Position[2])
	}
	if len(f.Morphs) > 0 {
		fmt.Fprintln(w)
		for _, name := range slices.Sorted(maps.Keys(f.Morphs)) {
			fmt.Fprintf(w, "  %-20s %.3f\n", name, f.Morphs[name])
		}
	}
	if c := f.Camera; c != nil {
		fmt.Fprintf(w, "\nCamera at %.3f %.3f %.3f looking at %.3f %.3f %.3f, fov %.1f\n",
			c.Position[0], c.Position[1], c.Position[2], c.Target[0], c.Target[1], c.Target[2], c.FOV)
	}
}

// sampleFrames returns the motion frames from start to end inclusive at
// the given sampling rate.
func sampleFrames(start, end, fps float64) []float64 {
	if fps <= 0 || end < start {
		return nil
	}
	step := motionFPS / fps
	n := int((end-start)/step+1e-9) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// bake evaluates every frame on up to workers goroutines. Each goroutine
// evaluates into its own pose taken from a pool.
func bake(ctx context.Context, ev *pose.Evaluator, v *formats.VMD, frames []float64, bones []int, workers int) ([]bakedFrame, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	m := ev.Model()
	pool := sync.Pool{New: func() any { return pose.NewPose(m) }}
	out := make([]bakedFrame, len(frames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, frame := range frames {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := pool.Get().(*pose.Pose)
			defer pool.Put(p)
			ev.Evaluate(frame, p)
			out[i] = snapshot(m, v, p, bones)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func cmdBake(args []string) error {
	fs := flag.NewFlagSet("bake", flag.ExitOnError)
	start := fs.Float64("start", 0, "First frame")
	end := fs.Float64("end", -1, "Last frame (default: last keyframe)")
	bones := fs.String("bones", "", "Comma-separated bone names (default: all)")
	output := fs.String("o", "", "Output file (default: stdout)")
	e, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := requireArgs(fs, 2, "bake <model.pmx> <motion.vmd>"); err != nil {
		return err
	}

	m, v, ev, err := e.loadPair(fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	sel, err := boneFilter(m, *bones)
	if err != nil {
		return err
	}
	last := *end
	if last < 0 {
		last = float64(v.MaxFrame())
	}

	frames := sampleFrames(*start, last, e.cfg.Playback.FPS)
	logger.Info("baking motion",
		zap.String("model", m.Name),
		zap.Int("frames", len(frames)),
		zap.Int("bones", len(sel)),
		zap.Int("workers", e.cfg.Playback.Workers))

	baked, err := bake(e.ctx, ev, v, frames, sel, e.cfg.Playback.Workers)
	if err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(bakeOutput{
		Model:  fs.Arg(0),
		Motion: fs.Arg(1),
		FPS:    e.cfg.Playback.FPS,
		Frames: baked,
	}); err != nil {
		return fmt.Errorf("writing bake output: %w", err)
	}
	return enc.Close()
}
