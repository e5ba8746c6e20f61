package formats

import (
	"errors"
	"math"
	"testing"
)

func TestParseVMD_Full(t *testing.T) {
	w := newVMDWriter("初音ミク")
	w.boneSection(
		testBoneKey{
			name: "センター", frame: 0,
			t: [3]float32{1, 2, 3}, r: [4]float32{0.1, 0.2, 0.3, 0.9},
			curves: [4][4]byte{{20, 20, 107, 107}, {0, 127, 127, 0}, {64, 0, 64, 127}, {10, 20, 30, 40}},
		},
	)
	w.morphSection(VMDMorphKeyframe{Frame: 5, Weight: 1})
	w.cameraSection(VMDCameraKeyframe{
		Frame: 3, Distance: -45, Target: [3]float32{0, 10, 0}, Rotation: [3]float32{0.1, 0.2, 0.3},
		Curves: [6]Bezier{{X1: 20.0 / 127, Y1: 20.0 / 127, X2: 107.0 / 127, Y2: 107.0 / 127}},
		FOV:    30, Orthographic: true,
	})
	w.lightSection(VMDLightKeyframe{Frame: 0, Color: [3]float32{0.6, 0.6, 0.6}, Direction: [3]float32{-0.5, -1, 0.5}})
	w.shadowSection(2)
	w.ikSection(testIKFrame{
		frame: 12, visible: true,
		states: map[string]bool{"左足ＩＫ": false, "右足ＩＫ": true},
		order:  []string{"左足ＩＫ", "右足ＩＫ"},
	})

	v, err := ParseVMD(w.bytes())
	if err != nil {
		t.Fatalf("ParseVMD: %v", err)
	}

	if v.Signature != "Vocaloid Motion Data 0002" {
		t.Errorf("Signature = %q", v.Signature)
	}
	if v.ModelName != "初音ミク" {
		t.Errorf("ModelName = %q", v.ModelName)
	}

	track := v.Bones["センター"]
	if len(track) != 1 {
		t.Fatalf("center track = %v", track)
	}
	k := track[0]
	if k.Translation != [3]float32{-1, 2, 3} {
		t.Errorf("Translation = %v, want X negated", k.Translation)
	}
	if k.Rotation != [4]float32{0.1, -0.2, -0.3, 0.9} {
		t.Errorf("Rotation = %v, want Y and Z negated", k.Rotation)
	}
	wantRot := Bezier{X1: 10.0 / 127, Y1: 20.0 / 127, X2: 30.0 / 127, Y2: 40.0 / 127}
	if k.Curves[CurveRotation] != wantRot {
		t.Errorf("rotation curve = %+v, want %+v", k.Curves[CurveRotation], wantRot)
	}
	if k.Curves[CurveY] != (Bezier{X1: 0, Y1: 1, X2: 1, Y2: 0}) {
		t.Errorf("Y curve = %+v", k.Curves[CurveY])
	}

	if m := v.Morphs["あ"]; len(m) != 1 || m[0].Weight != 1 || m[0].Frame != 5 {
		t.Errorf("morph track = %v", m)
	}

	if len(v.Cameras) != 1 {
		t.Fatalf("cameras = %d", len(v.Cameras))
	}
	cam := v.Cameras[0]
	if cam.Rotation != [3]float32{0.1, -0.2, -0.3} {
		t.Errorf("camera rotation = %v", cam.Rotation)
	}
	if cam.Target != [3]float32{0, 10, 0} || cam.Distance != -45 || cam.FOV != 30 || !cam.Orthographic {
		t.Errorf("camera = %+v", cam)
	}
	if cam.Curves[CameraCurveX] != LinearBezier {
		t.Errorf("camera X curve = %+v", cam.Curves[CameraCurveX])
	}

	if len(v.Lights) != 1 || v.Lights[0].Direction != [3]float32{-0.5, -1, 0.5} {
		t.Errorf("lights = %+v", v.Lights)
	}

	if s := v.IKStates["左足ＩＫ"]; len(s) != 1 || s[0].Enabled || s[0].Frame != 12 {
		t.Errorf("left IK states = %+v", s)
	}
	if s := v.IKStates["右足ＩＫ"]; len(s) != 1 || !s[0].Enabled {
		t.Errorf("right IK states = %+v", s)
	}
	if len(v.Visibility) != 1 || !v.Visibility[0].Visible {
		t.Errorf("visibility = %+v", v.Visibility)
	}
	if v.MaxFrame() != 5 {
		t.Errorf("MaxFrame() = %d, want 5", v.MaxFrame())
	}
}

func TestBoneCurves_SignedBytes(t *testing.T) {
	table := curveBytes([4][4]byte{{0xff, 0x80, 0x7f, 0x00}})
	got := boneCurves(table)[CurveX]

	want := Bezier{X1: -1.0 / 127, Y1: -128.0 / 127, X2: 1, Y2: 0}
	if got != want {
		t.Errorf("boneCurves = %+v, want %+v", got, want)
	}

	// The upper bytes of each word are ignored.
	table[1], table[2], table[3] = 0xaa, 0xbb, 0xcc
	if again := boneCurves(table)[CurveX]; again != want {
		t.Errorf("upper bytes changed the curve: %+v", again)
	}
}

func TestParseVMD_StableSort(t *testing.T) {
	w := newVMDWriter("model")
	w.boneSection(
		testBoneKey{name: "腕", frame: 10, t: [3]float32{0, 1, 0}, r: [4]float32{0, 0, 0, 1}},
		testBoneKey{name: "腕", frame: 0, t: [3]float32{0, 2, 0}, r: [4]float32{0, 0, 0, 1}},
		testBoneKey{name: "腕", frame: 10, t: [3]float32{0, 3, 0}, r: [4]float32{0, 0, 0, 1}},
		testBoneKey{name: "腕", frame: 5, t: [3]float32{0, 4, 0}, r: [4]float32{0, 0, 0, 1}},
	)

	v, err := ParseVMD(w.bytes())
	if err != nil {
		t.Fatalf("ParseVMD: %v", err)
	}

	track := v.Bones["腕"]
	wantFrames := []int32{0, 5, 10, 10}
	wantY := []float32{2, 4, 1, 3}
	for i, k := range track {
		if k.Frame != wantFrames[i] || k.Translation[1] != wantY[i] {
			t.Errorf("track[%d] = frame %d y %v, want frame %d y %v", i, k.Frame, k.Translation[1], wantFrames[i], wantY[i])
		}
	}
}

func TestParseVMD_NegativeFrame(t *testing.T) {
	w := newVMDWriter("model")
	w.boneSection(
		testBoneKey{name: "腕", frame: 3, t: [3]float32{0, 1, 0}, r: [4]float32{0, 0, 0, 1}},
		testBoneKey{name: "腕", frame: -2, t: [3]float32{0, 2, 0}, r: [4]float32{0, 0, 0, 1}},
	)

	v, err := ParseVMD(w.bytes())
	if err != nil {
		t.Fatalf("ParseVMD: %v", err)
	}
	track := v.Bones["腕"]
	if len(track) != 2 || track[0].Frame != -2 || track[1].Frame != 3 {
		t.Fatalf("track frames = %+v, want -2 then 3", track)
	}
	if v.MaxFrame() != 3 {
		t.Errorf("MaxFrame() = %d, want 3", v.MaxFrame())
	}
}

func TestParseVMD_MissingTrailingSections(t *testing.T) {
	tests := []struct {
		name  string
		build func(w *vmdWriter)
		bones int
	}{
		{"header only", func(w *vmdWriter) {}, 0},
		{"bones only", func(w *vmdWriter) {
			w.boneSection(testBoneKey{name: "頭", r: [4]float32{0, 0, 0, 1}})
		}, 1},
		{"no ik", func(w *vmdWriter) {
			w.boneSection(testBoneKey{name: "頭", r: [4]float32{0, 0, 0, 1}})
			w.morphSection()
			w.cameraSection()
			w.lightSection()
			w.shadowSection(1)
		}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newVMDWriter("model")
			tt.build(w)
			v, err := ParseVMD(w.bytes())
			if err != nil {
				t.Fatalf("ParseVMD: %v", err)
			}
			if len(v.Bones) != tt.bones {
				t.Errorf("bone tracks = %d, want %d", len(v.Bones), tt.bones)
			}
			if len(v.Morphs) != 0 || len(v.Cameras) != 0 || len(v.IKStates) != 0 {
				t.Errorf("unexpected tracks: %+v", v)
			}
		})
	}
}

func TestParseVMD_Truncated(t *testing.T) {
	w := newVMDWriter("model")
	w.boneSection(
		testBoneKey{name: "頭", frame: 1, r: [4]float32{0, 0, 0, 1}},
		testBoneKey{name: "首", frame: 2, r: [4]float32{0, 0, 0, 1}},
	)
	w.morphSection(VMDMorphKeyframe{Frame: 1, Weight: 0.5})
	data := w.bytes()

	tests := []struct {
		name    string
		n       int
		section string
	}{
		{"inside signature", 10, "header"},
		{"inside model name", 40, "header"},
		{"inside bone count", 52, "bones"},
		{"inside bone record", 50 + 4 + 111 + 20, "bones"},
		{"inside morph record", len(data) - 3, "morphs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVMD(data[:tt.n])
			if v != nil {
				t.Error("expected no motion on error")
			}
			if !errors.Is(err, ErrTruncated) || !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("error = %v, want ErrTruncated", err)
			}
			var fe *FormatError
			if !errors.As(err, &fe) || fe.Format != "vmd" || fe.Section != tt.section {
				t.Errorf("FormatError = %+v, want section %q", fe, tt.section)
			}
		})
	}
}

func TestParseVMD_CountExceedsData(t *testing.T) {
	w := newVMDWriter("model")
	w.u32(math.MaxInt32)
	_, err := ParseVMD(w.bytes())
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("error = %v, want ErrTruncated", err)
	}
}

func TestParseVMD_Names(t *testing.T) {
	w := newVMDWriter("model")
	w.boneSection(
		testBoneKey{name: "b", r: [4]float32{0, 0, 0, 1}},
		testBoneKey{name: "a", frame: 3, r: [4]float32{0, 0, 0, 1}},
	)
	w.morphSection(VMDMorphKeyframe{Frame: 1}, VMDMorphKeyframe{Frame: 9})

	v, err := ParseVMD(w.bytes())
	if err != nil {
		t.Fatalf("ParseVMD: %v", err)
	}
	if got := v.BoneNames(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("BoneNames() = %v", got)
	}
	if got := v.MorphNames(); len(got) != 2 {
		t.Errorf("MorphNames() = %v", got)
	}
	if v.KeyframeCount() != 4 {
		t.Errorf("KeyframeCount() = %d", v.KeyframeCount())
	}
	if v.MaxFrame() != 9 {
		t.Errorf("MaxFrame() = %d", v.MaxFrame())
	}
}
