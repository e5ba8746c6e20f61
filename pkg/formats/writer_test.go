package formats

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/Faultbox/midgard-mmd/pkg/encoding"
)

// binWriter builds little-endian test fixtures.
type binWriter struct {
	buf bytes.Buffer
}

func (w *binWriter) bytes() []byte { return w.buf.Bytes() }

func (w *binWriter) u8(v uint8)   { w.buf.WriteByte(v) }
func (w *binWriter) u16(v uint16) { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *binWriter) i32(v int32)  { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *binWriter) u32(v uint32) { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *binWriter) f32(v float32) {
	binary.Write(&w.buf, binary.LittleEndian, math.Float32bits(v))
}

func (w *binWriter) vec(v ...float32) {
	for _, f := range v {
		w.f32(f)
	}
}

func (w *binWriter) raw(b []byte) { w.buf.Write(b) }

func (w *binWriter) fixed(s string, size int) {
	w.raw(encoding.UTF8ToFixedString(encoding.ShiftJIS, s, size))
}

func (w *binWriter) index(width uint8, v int32) {
	switch width {
	case 1:
		w.u8(uint8(int8(v)))
	case 2:
		w.u16(uint16(int16(v)))
	default:
		w.i32(v)
	}
}

func (w *binWriter) uindex(width uint8, v uint32) {
	switch width {
	case 1:
		w.u8(uint8(v))
	case 2:
		w.u16(uint16(v))
	default:
		w.u32(v)
	}
}

// pmxWriter re-encodes a model in file coordinates. It is the inverse of
// ParsePMX for everything the decoder keeps.
type pmxWriter struct {
	binWriter
	h PMXHeader
}

func (w *pmxWriter) str(s string) {
	b := encoding.Encode(w.h.Encoding, s)
	w.i32(int32(len(b)))
	w.raw(b)
}

func (w *pmxWriter) vertexBone(b uint16) {
	if b == NoBone {
		w.index(w.h.BoneIndexSize, -1)
		return
	}
	w.index(w.h.BoneIndexSize, int32(b))
}

func encodePMX(m *PMX) []byte {
	w := &pmxWriter{h: m.Header}
	h := m.Header

	w.raw([]byte(pmxMagic))
	w.f32(h.Version)
	w.u8(8)
	w.u8(uint8(h.Encoding))
	w.u8(h.ExtraUVCount)
	w.u8(h.VertexIndexSize)
	w.u8(h.TextureIndexSize)
	w.u8(h.MaterialIndexSize)
	w.u8(h.BoneIndexSize)
	w.u8(h.MorphIndexSize)
	w.u8(h.RigidBodyIndexSize)

	w.str(m.Name)
	w.str(m.NameEN)
	w.str(m.Comment)
	w.str(m.CommentEN)

	extra := int(h.ExtraUVCount)
	w.i32(int32(len(m.Positions)))
	for i := range m.Positions {
		w.vec(m.Positions[i][:]...)
		w.vec(m.Normals[i][:]...)
		w.vec(m.UVs[i][:]...)
		for j := 0; j < extra; j++ {
			w.vec(m.ExtraUVs[i*extra+j][:]...)
		}
		kind := m.DeformKinds[i]
		w.u8(uint8(kind))
		bi, bw := m.BoneIndices[i], m.BoneWeights[i]
		switch kind {
		case DeformBDEF1:
			w.vertexBone(bi[0])
		case DeformBDEF2, DeformSDEF:
			w.vertexBone(bi[0])
			w.vertexBone(bi[1])
			w.f32(bw[0])
			if kind == DeformSDEF {
				w.vec(make([]float32, 9)...)
			}
		case DeformBDEF4:
			for _, b := range bi {
				w.vertexBone(b)
			}
			w.vec(bw[:]...)
		}
		w.f32(m.EdgeScales[i])
	}

	w.i32(int32(len(m.Indices)))
	for _, idx := range m.Indices {
		w.uindex(h.VertexIndexSize, idx)
	}

	w.i32(int32(len(m.Textures)))
	for _, t := range m.Textures {
		w.str(t)
	}

	w.i32(int32(len(m.Materials)))
	for _, mat := range m.Materials {
		w.str(mat.Name)
		w.str(mat.NameEN)
		w.vec(mat.Diffuse[:]...)
		w.vec(mat.Specular[:]...)
		w.vec(mat.Ambient[:]...)
		w.u8(mat.DrawFlags)
		w.vec(mat.EdgeColor[:]...)
		w.f32(mat.EdgeSize)
		w.index(h.TextureIndexSize, mat.Texture)
		w.index(h.TextureIndexSize, mat.SphereTexture)
		w.u8(mat.SphereMode)
		if mat.SharedToon {
			w.u8(1)
			w.u8(uint8(int8(mat.Toon)))
		} else {
			w.u8(0)
			w.index(h.TextureIndexSize, mat.Toon)
		}
		w.str(mat.Memo)
		w.i32(int32(mat.IndexCount))
	}

	w.i32(int32(len(m.Bones)))
	for _, b := range m.Bones {
		w.str(b.Name)
		w.str(b.NameEN)
		w.vec(b.Position[:]...)
		w.index(h.BoneIndexSize, b.Parent)
		w.i32(b.Level)
		w.u16(uint16(b.Flags))
		if b.Has(BoneFlagTailIsBone) {
			w.index(h.BoneIndexSize, b.TailBone)
		} else {
			w.vec(b.TailOffset[:]...)
		}
		if b.Has(BoneFlagFixedAxis) {
			w.vec(b.FixedAxis[:]...)
		}
		if b.Has(BoneFlagAppendRotate) || b.Has(BoneFlagAppendTranslate) {
			w.index(h.BoneIndexSize, b.AppendParent)
			w.f32(b.AppendRatio)
		}
		if b.Has(BoneFlagLocalAxis) {
			w.vec(b.LocalAxisX[:]...)
			w.vec(b.LocalAxisZ[:]...)
		}
		if b.Has(BoneFlagExternalParent) {
			w.i32(b.ExternalKey)
		}
		if b.Has(BoneFlagIK) {
			w.index(h.BoneIndexSize, b.IK.Target)
			w.i32(b.IK.Loop)
			w.f32(b.IK.LimitAngle)
			w.i32(int32(len(b.IK.Links)))
			for _, l := range b.IK.Links {
				w.index(h.BoneIndexSize, l.Bone)
				if l.HasLimit {
					w.u8(1)
					w.vec(l.Min[:]...)
					w.vec(l.Max[:]...)
				} else {
					w.u8(0)
				}
			}
		}
	}

	w.i32(int32(len(m.Morphs)))
	for _, mo := range m.Morphs {
		w.str(mo.Name)
		w.str(mo.NameEN)
		w.u8(mo.Panel)
		w.u8(uint8(mo.Kind))
		switch {
		case mo.Kind == MorphGroup:
			w.i32(int32(len(mo.GroupIndices)))
			for j := range mo.GroupIndices {
				w.index(h.MorphIndexSize, mo.GroupIndices[j])
				w.f32(mo.GroupRates[j])
			}
		case mo.Kind == MorphVertex:
			w.i32(int32(len(mo.VertexIndices)))
			for j := range mo.VertexIndices {
				w.uindex(h.VertexIndexSize, mo.VertexIndices[j])
				w.vec(mo.VertexOffsets[j][:]...)
			}
		case mo.Kind == MorphBone:
			w.i32(int32(len(mo.BoneIndices)))
			for j := range mo.BoneIndices {
				w.index(h.BoneIndexSize, mo.BoneIndices[j])
				w.vec(mo.BoneTranslations[j][:]...)
				w.vec(mo.BoneRotations[j][:]...)
			}
		case mo.Kind.UVChannel() >= 0:
			w.i32(int32(len(mo.UVIndices)))
			for j := range mo.UVIndices {
				w.uindex(h.VertexIndexSize, mo.UVIndices[j])
				w.vec(mo.UVOffsets[j][0], mo.UVOffsets[j][1], 0, 0)
			}
		case mo.Kind == MorphMaterial:
			w.i32(int32(len(mo.Materials)))
			for _, mm := range mo.Materials {
				w.index(h.MaterialIndexSize, mm.Index)
				w.u8(mm.Method)
				w.vec(mm.Diffuse[:]...)
				w.vec(mm.Specular[:]...)
				w.vec(mm.Ambient[:]...)
				w.vec(mm.EdgeColor[:]...)
				w.f32(mm.EdgeSize)
				w.vec(mm.TextureTint[:]...)
				w.vec(mm.SphereTint[:]...)
				w.vec(mm.ToonTint[:]...)
			}
		default:
			w.i32(0)
		}
	}

	w.i32(int32(len(m.DisplayFrames)))
	for _, f := range m.DisplayFrames {
		w.str(f.Name)
		w.str(f.NameEN)
		if f.Special {
			w.u8(1)
		} else {
			w.u8(0)
		}
		w.i32(int32(len(f.Elements)))
		for _, e := range f.Elements {
			w.u8(e.Kind)
			if e.Kind == DisplayMorph {
				w.index(h.MorphIndexSize, e.Index)
			} else {
				w.index(h.BoneIndexSize, e.Index)
			}
		}
	}

	w.i32(int32(len(m.RigidBodies)))
	for _, rb := range m.RigidBodies {
		w.str(rb.Name)
		w.str(rb.NameEN)
		w.index(h.BoneIndexSize, rb.Bone)
		w.u8(rb.Group)
		w.u16(rb.Mask)
		w.u8(rb.Shape)
		w.vec(rb.Size[:]...)
		w.vec(rb.Position[:]...)
		w.vec(rb.Rotation[:]...)
		w.vec(rb.Mass, rb.LinearDamping, rb.AngularDamping, rb.Restitution, rb.Friction)
		w.u8(rb.Mode)
	}

	w.i32(int32(len(m.Constraints)))
	for _, c := range m.Constraints {
		w.str(c.Name)
		w.str(c.NameEN)
		w.u8(c.Kind)
		w.index(h.RigidBodyIndexSize, c.BodyA)
		w.index(h.RigidBodyIndexSize, c.BodyB)
		for _, v := range [][3]float32{
			c.Position, c.Rotation, c.TranslationMin, c.TranslationMax,
			c.RotationMin, c.RotationMax, c.SpringTranslation, c.SpringRotation,
		} {
			w.vec(v[:]...)
		}
	}

	return w.bytes()
}

// samplePMX returns a model in file coordinates that exercises every
// optional bone field and every morph kind.
func samplePMX() *PMX {
	return &PMX{
		Header: PMXHeader{
			Version:            2.0,
			Encoding:           encoding.UTF16LE,
			ExtraUVCount:       1,
			VertexIndexSize:    2,
			TextureIndexSize:   1,
			MaterialIndexSize:  1,
			BoneIndexSize:      2,
			MorphIndexSize:     1,
			RigidBodyIndexSize: 1,
		},
		Name:      "テストモデル",
		NameEN:    "Test Model",
		Comment:   "コメント",
		CommentEN: "comment",
		Positions: [][3]float32{{1, 2, 3}, {-1, 0, 0.5}, {0, 1, 0}, {2, 2, 2}},
		Normals:   [][3]float32{{0, 1, 0}, {1, 0, 0}, {0, 0, 1}, {0, 1, 0}},
		UVs:       [][2]float32{{0, 0}, {1, 0}, {0, 1}, {1, 1}},
		ExtraUVs:  [][4]float32{{1, 2, 3, 4}, {0, 0, 0, 0}, {5, 6, 7, 8}, {0, 0, 0, 1}},
		DeformKinds: []DeformKind{
			DeformBDEF1, DeformBDEF2, DeformSDEF, DeformBDEF4,
		},
		BoneIndices: [][4]uint16{
			{0, NoBone, NoBone, NoBone},
			{0, 1, NoBone, NoBone},
			{1, 2, NoBone, NoBone},
			{0, 1, 2, 3},
		},
		BoneWeights: [][4]float32{
			{1, 0, 0, 0},
			{0.75, 0.25, 0, 0},
			{0.5, 0.5, 0, 0},
			{0.25, 0.25, 0.25, 0.25},
		},
		EdgeScales: []float32{1, 1, 0.5, 0},
		Indices:    []uint32{0, 1, 2, 1, 2, 3},
		Textures:   []string{`tex\body.png`, "toon01.bmp"},
		Materials: []PMXMaterial{
			{
				Name: "体", NameEN: "body",
				Diffuse: [4]float32{1, 1, 1, 1}, Specular: [4]float32{0, 0, 0, 5},
				Ambient: [3]float32{0.5, 0.5, 0.5}, DrawFlags: 0x1f,
				EdgeColor: [4]float32{0, 0, 0, 1}, EdgeSize: 1,
				Texture: 0, SphereTexture: -1, SphereMode: 0,
				SharedToon: true, Toon: 3, Memo: "memo",
				IndexStart: 0, IndexCount: 3,
			},
			{
				Name: "髪", NameEN: "hair",
				Diffuse: [4]float32{0.5, 0.2, 0.1, 1}, Texture: -1, SphereTexture: -1,
				SharedToon: false, Toon: 1,
				IndexStart: 3, IndexCount: 3,
			},
		},
		Bones: []PMXBone{
			{
				Name: "センター", NameEN: "center",
				Position: [3]float32{0, 8, 0}, Parent: -1,
				Flags:      BoneFlagRotatable | BoneFlagMovable | BoneFlagVisible | BoneFlagControllable,
				TailBone:   -1,
				TailOffset: [3]float32{0, -1, 0}, AppendParent: -1,
			},
			{
				Name: "左足", NameEN: "leg_L",
				Position: [3]float32{1, 6, 0.5}, Parent: 0,
				Flags:    BoneFlagTailIsBone | BoneFlagRotatable | BoneFlagFixedAxis | BoneFlagLocalAxis,
				TailBone: 2, AppendParent: -1,
				FixedAxis:  [3]float32{0.6, 0.8, 0},
				LocalAxisX: [3]float32{1, 0, 0}, LocalAxisZ: [3]float32{0, 0, 1},
			},
			{
				Name: "左足首", NameEN: "ankle_L",
				Position: [3]float32{1, 1, 0.2}, Parent: 1, Level: 1,
				Flags:        BoneFlagRotatable | BoneFlagAppendRotate | BoneFlagExternalParent,
				TailBone:     -1,
				AppendParent: 0, AppendRatio: 0.5, ExternalKey: 7,
			},
			{
				Name: "左足ＩＫ", NameEN: "leg IK_L",
				Position: [3]float32{1, 1, 0.2}, Parent: 0, Level: 2,
				Flags:    BoneFlagRotatable | BoneFlagMovable | BoneFlagIK,
				TailBone: -1, AppendParent: -1,
				IK: &PMXIK{
					Target: 2, Loop: 40, LimitAngle: 2,
					Links: []PMXIKLink{
						{Bone: 1, HasLimit: true, Min: [3]float32{-3, -0.5, 0.1}, Max: [3]float32{-0.01, 0.2, 0.3}},
						{Bone: 0},
					},
				},
			},
		},
		Morphs: []PMXMorph{
			{Name: "グループ", Panel: 4, Kind: MorphGroup, GroupIndices: []int32{1, 2}, GroupRates: []float32{1, 0.5}},
			{
				Name: "あ", Panel: 3, Kind: MorphVertex,
				VertexIndices: []uint32{0, 3}, VertexOffsets: [][3]float32{{0.1, 0, 0}, {0, 0.2, -0.1}},
			},
			{
				Name: "ボーン", Panel: 4, Kind: MorphBone,
				BoneIndices:      []int32{1},
				BoneTranslations: [][3]float32{{0.5, 0, 0}},
				BoneRotations:    [][4]float32{{0.1, 0.2, 0.3, 0.927}},
			},
			{
				Name: "UV", Panel: 4, Kind: MorphUV1,
				UVIndices: []uint32{2}, UVOffsets: [][2]float32{{0.25, -0.25}},
			},
			{
				Name: "材質", Panel: 4, Kind: MorphMaterial,
				Materials: []PMXMaterialMorph{{
					Index: -1, Method: MorphMethodAdd,
					Diffuse: [4]float32{0, 0, 0, -1}, EdgeSize: 0.5,
					TextureTint: [4]float32{1, 1, 1, 1},
				}},
			},
		},
		DisplayFrames: []PMXDisplayFrame{
			{Name: "Root", NameEN: "Root", Special: true, Elements: []PMXDisplayElement{{Kind: DisplayBone, Index: 0}}},
			{Name: "表情", NameEN: "Exp", Elements: []PMXDisplayElement{{Kind: DisplayMorph, Index: 1}, {Kind: DisplayMorph, Index: 0}}},
		},
		RigidBodies: []PMXRigidBody{{
			Name: "頭", NameEN: "head", Bone: 0, Group: 1, Mask: 0xfffe, Shape: 2,
			Size: [3]float32{1, 2, 0}, Position: [3]float32{0.5, 15, -0.2}, Rotation: [3]float32{0.1, 0.2, 0.3},
			Mass: 1, LinearDamping: 0.5, AngularDamping: 0.5, Restitution: 0, Friction: 0.5, Mode: 1,
		}},
		Constraints: []PMXConstraint{{
			Name: "首", NameEN: "neck", Kind: 0, BodyA: 0, BodyB: -1,
			Position: [3]float32{0.5, 14, 0}, Rotation: [3]float32{0.1, 0.2, 0.3},
			RotationMin: [3]float32{-0.5, -0.5, -0.5}, RotationMax: [3]float32{0.5, 0.5, 0.5},
		}},
	}
}

// vmdWriter builds VMD fixtures section by section.
type vmdWriter struct {
	binWriter
}

func newVMDWriter(model string) *vmdWriter {
	w := &vmdWriter{}
	w.fixed("Vocaloid Motion Data 0002", vmdSignatureSize)
	w.fixed(model, vmdModelNameSize)
	return w
}

// curveBytes packs per-curve x1, y1, x2, y2 control bytes into the 64-byte table.
func curveBytes(curves [4][4]byte) []byte {
	out := make([]byte, 64)
	for c := 0; c < 4; c++ {
		for k := 0; k < 4; k++ {
			out[(c*4+k)*4] = curves[c][k]
		}
	}
	return out
}

type testBoneKey struct {
	name   string
	frame  int32
	t      [3]float32
	r      [4]float32
	curves [4][4]byte
}

func (w *vmdWriter) boneSection(keys ...testBoneKey) {
	w.u32(uint32(len(keys)))
	for _, k := range keys {
		w.fixed(k.name, vmdBoneNameSize)
		w.u32(uint32(k.frame))
		w.vec(k.t[:]...)
		w.vec(k.r[:]...)
		w.raw(curveBytes(k.curves))
	}
}

func (w *vmdWriter) morphSection(keys ...VMDMorphKeyframe) {
	w.u32(uint32(len(keys)))
	for i, k := range keys {
		name := "あ"
		if i%2 == 1 {
			name = "い"
		}
		w.fixed(name, vmdBoneNameSize)
		w.u32(uint32(k.Frame))
		w.f32(k.Weight)
	}
}

func (w *vmdWriter) cameraSection(keys ...VMDCameraKeyframe) {
	w.u32(uint32(len(keys)))
	for _, k := range keys {
		w.u32(uint32(k.Frame))
		w.f32(k.Distance)
		w.vec(k.Target[:]...)
		w.vec(k.Rotation[:]...)
		for _, c := range k.Curves {
			for _, v := range []float32{c.X1, c.X2, c.Y1, c.Y2} {
				w.u8(uint8(math.Round(float64(v) * 127)))
			}
		}
		w.u32(k.FOV)
		if k.Orthographic {
			w.u8(1)
		} else {
			w.u8(0)
		}
	}
}

func (w *vmdWriter) lightSection(keys ...VMDLightKeyframe) {
	w.u32(uint32(len(keys)))
	for _, k := range keys {
		w.u32(uint32(k.Frame))
		w.vec(k.Color[:]...)
		w.vec(k.Direction[:]...)
	}
}

func (w *vmdWriter) shadowSection(n int) {
	w.u32(uint32(n))
	for i := 0; i < n; i++ {
		w.u32(uint32(i))
		w.u8(1)
		w.f32(0.01)
	}
}

type testIKFrame struct {
	frame   int32
	visible bool
	states  map[string]bool
	order   []string
}

func (w *vmdWriter) ikSection(frames ...testIKFrame) {
	w.u32(uint32(len(frames)))
	for _, f := range frames {
		w.u32(uint32(f.frame))
		if f.visible {
			w.u8(1)
		} else {
			w.u8(0)
		}
		w.u32(uint32(len(f.order)))
		for _, name := range f.order {
			w.fixed(name, vmdIKNameSize)
			if f.states[name] {
				w.u8(1)
			} else {
				w.u8(0)
			}
		}
	}
}
