// VMD (Vocaloid Motion Data) format parser for keyframe animation.
package formats

import (
	"cmp"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/Faultbox/midgard-mmd/pkg/encoding"
)

// VMD layout constants.
const (
	vmdSignatureSize = 30
	vmdModelNameSize = 20
	vmdBoneNameSize  = 15
	vmdIKNameSize    = 20

	vmdBoneRecordSize   = 111
	vmdMorphRecordSize  = 23
	vmdCameraRecordSize = 61
	vmdLightRecordSize  = 28
	vmdShadowRecordSize = 9
)

// Bezier holds the two inner control points of a cubic easing curve whose
// end points are (0,0) and (1,1).
type Bezier struct {
	X1, Y1, X2, Y2 float32
}

// LinearBezier is the curve that leaves u unchanged.
var LinearBezier = Bezier{X1: 20.0 / 127, Y1: 20.0 / 127, X2: 107.0 / 127, Y2: 107.0 / 127}

// Bone keyframe curve slots.
const (
	CurveX = iota
	CurveY
	CurveZ
	CurveRotation
)

// Camera keyframe curve slots.
const (
	CameraCurveX = iota
	CameraCurveY
	CameraCurveZ
	CameraCurveRotation
	CameraCurveDistance
	CameraCurveFOV
)

// VMDBoneKeyframe is a bone pose sample.
type VMDBoneKeyframe struct {
	Frame       int32
	Translation [3]float32
	Rotation    [4]float32 // quaternion X, Y, Z, W
	Curves      [4]Bezier  // indexed by CurveX..CurveRotation
}

// VMDMorphKeyframe is a morph weight sample. Morph tracks interpolate linearly.
type VMDMorphKeyframe struct {
	Frame  int32
	Weight float32
}

// VMDCameraKeyframe is a camera sample. The camera orbits Target at Distance.
type VMDCameraKeyframe struct {
	Frame        int32
	Distance     float32
	Target       [3]float32
	Rotation     [3]float32 // Euler radians
	Curves       [6]Bezier  // indexed by CameraCurveX..CameraCurveFOV
	FOV          uint32     // degrees
	Orthographic bool
}

// VMDLightKeyframe is a directional light sample.
type VMDLightKeyframe struct {
	Frame     int32
	Color     [3]float32
	Direction [3]float32
}

// VMDIKKeyframe switches one IK chain on or off from Frame onward.
type VMDIKKeyframe struct {
	Frame   int32
	Enabled bool
}

// VMDVisibilityKeyframe toggles model visibility from Frame onward.
type VMDVisibilityKeyframe struct {
	Frame   int32
	Visible bool
}

// VMD is a decoded motion in right-handed coordinates. Every track is sorted
// by frame; entries sharing a frame keep their file order.
type VMD struct {
	Signature  string
	ModelName  string
	Bones      map[string][]VMDBoneKeyframe
	Morphs     map[string][]VMDMorphKeyframe
	Cameras    []VMDCameraKeyframe
	Lights     []VMDLightKeyframe
	IKStates   map[string][]VMDIKKeyframe
	Visibility []VMDVisibilityKeyframe
}

type vmdDecoder struct {
	r       *Reader
	v       *VMD
	section string
}

// ParseVMD decodes a VMD motion. Sections after the bone section may be
// absent; decoding stops cleanly at the end of the data. On error no motion
// is returned.
func ParseVMD(data []byte) (*VMD, error) {
	d := &vmdDecoder{
		r: NewReader(data),
		v: &VMD{
			Bones:    make(map[string][]VMDBoneKeyframe),
			Morphs:   make(map[string][]VMDMorphKeyframe),
			IKStates: make(map[string][]VMDIKKeyframe),
		},
	}

	d.section = "header"
	d.v.Signature = d.r.FixedString(vmdSignatureSize, encoding.ShiftJIS)
	d.v.ModelName = d.r.FixedString(vmdModelNameSize, encoding.ShiftJIS)
	if err := d.check(); err != nil {
		return nil, err
	}

	sections := []struct {
		name string
		fn   func()
	}{
		{"bones", d.bones},
		{"morphs", d.morphs},
		{"cameras", d.cameras},
		{"lights", d.lights},
		{"shadows", d.shadows},
		{"ik", d.ik},
	}
	for _, s := range sections {
		if d.r.Len() == 0 {
			break
		}
		d.section = s.name
		s.fn()
		if err := d.check(); err != nil {
			return nil, err
		}
	}

	d.v.sortTracks()
	d.v.toRightHanded()
	return d.v, nil
}

// ParseVMDFile parses a VMD file from disk.
func ParseVMDFile(path string) (*VMD, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading VMD file: %w", err)
	}
	return ParseVMD(data)
}

func (d *vmdDecoder) check() error {
	if err := d.r.Err(); err != nil {
		return &FormatError{Format: "vmd", Section: d.section, Offset: d.r.Offset(), Err: ErrTruncated, Cause: err}
	}
	return nil
}

func (d *vmdDecoder) name(n int) string {
	return d.r.FixedString(n, encoding.ShiftJIS)
}

// boneCurves unpacks the 64-byte interpolation table. Curve c is stored in
// words 4c..4c+3; only the low byte of each word is used.
func boneCurves(b []byte) [4]Bezier {
	var out [4]Bezier
	if len(b) < 64 {
		return out
	}
	v := func(word int) float32 {
		return float32(int(b[word*4]^0x80)-0x80) / 127
	}
	for c := 0; c < 4; c++ {
		w := c * 4
		out[c] = Bezier{X1: v(w), Y1: v(w + 1), X2: v(w + 2), Y2: v(w + 3)}
	}
	return out
}

// cameraCurves unpacks the 24-byte camera table: x1, x2, y1, y2 per curve.
func cameraCurves(b []byte) [6]Bezier {
	var out [6]Bezier
	if len(b) < 24 {
		return out
	}
	for c := 0; c < 6; c++ {
		p := b[c*4 : c*4+4]
		out[c] = Bezier{
			X1: float32(p[0]) / 127,
			X2: float32(p[1]) / 127,
			Y1: float32(p[2]) / 127,
			Y2: float32(p[3]) / 127,
		}
	}
	return out
}

func (d *vmdDecoder) bones() {
	r := d.r
	n := r.Count(vmdBoneRecordSize)
	for i := 0; i < n; i++ {
		name := d.name(vmdBoneNameSize)
		k := VMDBoneKeyframe{
			Frame:       r.Int32(),
			Translation: r.Vec3(),
			Rotation:    r.Vec4(),
			Curves:      boneCurves(r.Bytes(64)),
		}
		if r.Err() != nil {
			return
		}
		d.v.Bones[name] = append(d.v.Bones[name], k)
	}
}

func (d *vmdDecoder) morphs() {
	r := d.r
	n := r.Count(vmdMorphRecordSize)
	for i := 0; i < n; i++ {
		name := d.name(vmdBoneNameSize)
		k := VMDMorphKeyframe{Frame: r.Int32(), Weight: r.Float32()}
		if r.Err() != nil {
			return
		}
		d.v.Morphs[name] = append(d.v.Morphs[name], k)
	}
}

func (d *vmdDecoder) cameras() {
	r := d.r
	n := r.Count(vmdCameraRecordSize)
	if r.Err() != nil {
		return
	}
	d.v.Cameras = make([]VMDCameraKeyframe, n)
	for i := range d.v.Cameras {
		c := &d.v.Cameras[i]
		c.Frame = r.Int32()
		c.Distance = r.Float32()
		c.Target = r.Vec3()
		c.Rotation = r.Vec3()
		c.Curves = cameraCurves(r.Bytes(24))
		c.FOV = r.Uint32()
		c.Orthographic = r.Uint8() != 0
	}
}

func (d *vmdDecoder) lights() {
	r := d.r
	n := r.Count(vmdLightRecordSize)
	if r.Err() != nil {
		return
	}
	d.v.Lights = make([]VMDLightKeyframe, n)
	for i := range d.v.Lights {
		l := &d.v.Lights[i]
		l.Frame = r.Int32()
		l.Color = r.Vec3()
		l.Direction = r.Vec3()
	}
}

// shadows skips self-shadow keyframes.
func (d *vmdDecoder) shadows() {
	n := d.r.Count(vmdShadowRecordSize)
	d.r.Skip(n * vmdShadowRecordSize)
}

func (d *vmdDecoder) ik() {
	r := d.r
	n := r.Count(4 + 1 + 4)
	for i := 0; i < n; i++ {
		frame := r.Int32()
		visible := r.Uint8() != 0
		cnt := r.Count(vmdIKNameSize + 1)
		if r.Err() != nil {
			return
		}
		d.v.Visibility = append(d.v.Visibility, VMDVisibilityKeyframe{Frame: frame, Visible: visible})
		for j := 0; j < cnt; j++ {
			name := d.name(vmdIKNameSize)
			on := r.Uint8() != 0
			if r.Err() != nil {
				return
			}
			d.v.IKStates[name] = append(d.v.IKStates[name], VMDIKKeyframe{Frame: frame, Enabled: on})
		}
	}
}

func (v *VMD) sortTracks() {
	for _, t := range v.Bones {
		slices.SortStableFunc(t, func(a, b VMDBoneKeyframe) int { return cmp.Compare(a.Frame, b.Frame) })
	}
	for _, t := range v.Morphs {
		slices.SortStableFunc(t, func(a, b VMDMorphKeyframe) int { return cmp.Compare(a.Frame, b.Frame) })
	}
	for _, t := range v.IKStates {
		slices.SortStableFunc(t, func(a, b VMDIKKeyframe) int { return cmp.Compare(a.Frame, b.Frame) })
	}
	slices.SortStableFunc(v.Cameras, func(a, b VMDCameraKeyframe) int { return cmp.Compare(a.Frame, b.Frame) })
	slices.SortStableFunc(v.Lights, func(a, b VMDLightKeyframe) int { return cmp.Compare(a.Frame, b.Frame) })
	slices.SortStableFunc(v.Visibility, func(a, b VMDVisibilityKeyframe) int { return cmp.Compare(a.Frame, b.Frame) })
}

func (v *VMD) toRightHanded() {
	for _, t := range v.Bones {
		for i := range t {
			t[i].Translation[0] = -t[i].Translation[0]
			t[i].Rotation[1] = -t[i].Rotation[1]
			t[i].Rotation[2] = -t[i].Rotation[2]
		}
	}
	for i := range v.Cameras {
		v.Cameras[i].Rotation[1] = -v.Cameras[i].Rotation[1]
		v.Cameras[i].Rotation[2] = -v.Cameras[i].Rotation[2]
	}
}

// BoneNames returns the animated bone names in sorted order.
func (v *VMD) BoneNames() []string {
	return slices.Sorted(maps.Keys(v.Bones))
}

// MorphNames returns the animated morph names in sorted order.
func (v *VMD) MorphNames() []string {
	return slices.Sorted(maps.Keys(v.Morphs))
}

// MaxFrame returns the last keyframe frame across all tracks.
func (v *VMD) MaxFrame() int32 {
	var last int32
	for _, t := range v.Bones {
		if n := len(t); n > 0 {
			last = max(last, t[n-1].Frame)
		}
	}
	for _, t := range v.Morphs {
		if n := len(t); n > 0 {
			last = max(last, t[n-1].Frame)
		}
	}
	if n := len(v.Cameras); n > 0 {
		last = max(last, v.Cameras[n-1].Frame)
	}
	return last
}

// KeyframeCount returns the total number of bone and morph keyframes.
func (v *VMD) KeyframeCount() int {
	total := 0
	for _, t := range v.Bones {
		total += len(t)
	}
	for _, t := range v.Morphs {
		total += len(t)
	}
	return total
}
