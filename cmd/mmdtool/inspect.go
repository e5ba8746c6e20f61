package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/Faultbox/midgard-mmd/pkg/formats"
	"github.com/davecgh/go-spew/spew"
)

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisableCapacities:       true,
	DisablePointerAddresses: true,
	SortKeys:                true,
	MaxDepth:                4,
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("n", 0, "Limit output to N files (0 = all)")
	e, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer e.Close()

	pattern := strings.ToLower(fs.Arg(0))
	count := 0
	for _, f := range e.assets.List() {
		if pattern != "" {
			matched, _ := path.Match(pattern, path.Base(f))
			if !matched && !strings.Contains(f, pattern) {
				continue
			}
		}
		fmt.Println(f)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}
	return nil
}

func cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	dump := fs.Bool("dump", false, "Dump the decoded model structure")
	e, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := requireArgs(fs, 1, "info <model.pmx>"); err != nil {
		return err
	}

	m, err := e.assets.LoadModel(e.ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if *dump {
		dumper.Fdump(os.Stdout, m)
		return nil
	}
	printModel(os.Stdout, fs.Arg(0), m)
	return nil
}

func printModel(w io.Writer, name string, m *formats.PMX) {
	fmt.Fprintf(w, "Model:     %s\n", name)
	fmt.Fprintf(w, "Name:      %s", m.Name)
	if m.NameEN != "" {
		fmt.Fprintf(w, " (%s)", m.NameEN)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Version:   PMX %.1f, %s, %d extra UV\n", m.Header.Version, m.Header.Encoding, m.Header.ExtraUVCount)
	fmt.Fprintf(w, "Vertices:  %d\n", m.VertexCount())
	fmt.Fprintf(w, "Triangles: %d\n", m.TriangleCount())
	fmt.Fprintf(w, "Textures:  %d\n", len(m.Textures))
	fmt.Fprintf(w, "Materials: %d\n", len(m.Materials))
	fmt.Fprintf(w, "Bones:     %d (%d IK)\n", len(m.Bones), len(m.IKBones()))
	fmt.Fprintf(w, "Morphs:    %d\n", len(m.Morphs))
	fmt.Fprintf(w, "Frames:    %d\n", len(m.DisplayFrames))
	fmt.Fprintf(w, "Bodies:    %d rigid, %d constraints\n", len(m.RigidBodies), len(m.Constraints))

	deform := make(map[formats.DeformKind]int)
	for _, k := range m.DeformKinds {
		deform[k]++
	}
	if len(deform) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Vertices by deform:")
		kinds := make([]formats.DeformKind, 0, len(deform))
		for k := range deform {
			kinds = append(kinds, k)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-6s %d\n", k, deform[k])
		}
	}

	morphs := make(map[formats.MorphKind]int)
	for i := range m.Morphs {
		morphs[m.Morphs[i].Kind]++
	}
	if len(morphs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Morphs by kind:")
		kinds := make([]formats.MorphKind, 0, len(morphs))
		for k := range morphs {
			kinds = append(kinds, k)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-10s %d\n", k, morphs[k])
		}
	}
}

func cmdMotion(args []string) error {
	fs := flag.NewFlagSet("motion", flag.ExitOnError)
	verbose := fs.Bool("v", false, "List every track")
	e, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := requireArgs(fs, 1, "motion <motion.vmd>"); err != nil {
		return err
	}

	v, err := e.assets.LoadMotion(e.ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	printMotion(os.Stdout, fs.Arg(0), v, *verbose)
	return nil
}

func printMotion(w io.Writer, name string, v *formats.VMD, verbose bool) {
	last := v.MaxFrame()
	fmt.Fprintf(w, "Motion:    %s\n", name)
	fmt.Fprintf(w, "Model:     %s\n", v.ModelName)
	fmt.Fprintf(w, "Frames:    0-%d (%.2fs)\n", last, float64(last)/motionFPS)
	fmt.Fprintf(w, "Bones:     %d tracks\n", len(v.Bones))
	fmt.Fprintf(w, "Morphs:    %d tracks\n", len(v.Morphs))
	fmt.Fprintf(w, "Keyframes: %d\n", v.KeyframeCount())
	fmt.Fprintf(w, "Camera:    %d keyframes\n", len(v.Cameras))
	fmt.Fprintf(w, "Light:     %d keyframes\n", len(v.Lights))
	fmt.Fprintf(w, "IK:        %d tracks, %d visibility keyframes\n", len(v.IKStates), len(v.Visibility))

	if !verbose {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Bone tracks:")
	for _, n := range v.BoneNames() {
		t := v.Bones[n]
		fmt.Fprintf(w, "  %-20s %5d keys  %d-%d\n", n, len(t), t[0].Frame, t[len(t)-1].Frame)
	}
	fmt.Fprintln(w, "Morph tracks:")
	for _, n := range v.MorphNames() {
		t := v.Morphs[n]
		fmt.Fprintf(w, "  %-20s %5d keys  %d-%d\n", n, len(t), t[0].Frame, t[len(t)-1].Frame)
	}
}

func cmdConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	save := fs.String("save", "", "Write the effective configuration to this file")
	e, err := setup(fs, args)
	if err != nil {
		return err
	}
	defer e.Close()

	if *save != "" {
		return e.cfg.SaveTo(*save)
	}
	data, err := e.cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
