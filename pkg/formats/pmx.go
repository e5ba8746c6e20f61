// Package formats provides decoders for the PMX character model and VMD
// motion formats.
// PMX (Polygon Model eXtended) format parser for skinned character models.
package formats

import (
	"fmt"
	"os"

	"github.com/Faultbox/midgard-mmd/pkg/encoding"
)

// pmxMagic is "PMX " read as raw bytes.
const pmxMagic = "PMX "

// NoBone marks an unused vertex bone slot. Its weight is always 0.
const NoBone uint16 = 0xFFFF

// PMXHeader holds the global settings that drive the rest of the layout.
type PMXHeader struct {
	Version      float32
	Encoding     encoding.Text // UTF16LE or UTF8
	ExtraUVCount uint8         // 0..4 additional vec4 per vertex

	// Index widths in bytes (1, 2 or 4).
	VertexIndexSize    uint8
	TextureIndexSize   uint8
	MaterialIndexSize  uint8
	BoneIndexSize      uint8
	MorphIndexSize     uint8
	RigidBodyIndexSize uint8
}

// DeformKind selects the per-vertex skinning scheme.
type DeformKind uint8

const (
	DeformBDEF1 DeformKind = 0 // single bone
	DeformBDEF2 DeformKind = 1 // linear two bone
	DeformBDEF4 DeformKind = 2 // four bone
	DeformSDEF  DeformKind = 3 // two bone with spherical correction (blended as BDEF2)
)

// String returns a human-readable deform name.
func (k DeformKind) String() string {
	switch k {
	case DeformBDEF1:
		return "BDEF1"
	case DeformBDEF2:
		return "BDEF2"
	case DeformBDEF4:
		return "BDEF4"
	case DeformSDEF:
		return "SDEF"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// PMXMaterial is a render group covering a contiguous run of the index buffer.
type PMXMaterial struct {
	Name, NameEN  string
	Diffuse       [4]float32 // RGBA
	Specular      [4]float32 // RGB + power
	Ambient       [3]float32
	DrawFlags     uint8
	EdgeColor     [4]float32
	EdgeSize      float32
	Texture       int32 // texture index, -1 for none
	SphereTexture int32
	SphereMode    uint8
	SharedToon    bool  // Toon is a shared toon number (0..9) instead of a texture index
	Toon          int32 // toon index
	Memo          string
	IndexStart    int // first index of this material in PMX.Indices
	IndexCount    int // number of indices (3 per triangle)
}

// BoneFlag is the bit set that selects optional bone fields.
type BoneFlag uint16

const (
	BoneFlagTailIsBone      BoneFlag = 0x0001
	BoneFlagRotatable       BoneFlag = 0x0002
	BoneFlagMovable         BoneFlag = 0x0004
	BoneFlagVisible         BoneFlag = 0x0008
	BoneFlagControllable    BoneFlag = 0x0010
	BoneFlagIK              BoneFlag = 0x0020
	BoneFlagLocalAppend     BoneFlag = 0x0080
	BoneFlagAppendRotate    BoneFlag = 0x0100
	BoneFlagAppendTranslate BoneFlag = 0x0200
	BoneFlagFixedAxis       BoneFlag = 0x0400
	BoneFlagLocalAxis       BoneFlag = 0x0800
	BoneFlagAfterPhysics    BoneFlag = 0x1000
	BoneFlagExternalParent  BoneFlag = 0x2000
)

// LockedAxis classifies IK links whose limits leave only one free axis.
type LockedAxis uint8

const (
	AxisNone LockedAxis = iota
	AxisXOnly
	AxisYOnly
	AxisZOnly
)

// PMXIKLink is one joint of an IK chain.
type PMXIKLink struct {
	Bone       int32
	HasLimit   bool
	Min, Max   [3]float32 // Euler limits in radians
	LockedAxis LockedAxis
}

// PMXIK is the IK block of a bone. The owning bone is the goal; Target is
// the effector moved toward it.
type PMXIK struct {
	Target     int32
	Loop       int32
	LimitAngle float32 // max rotation per link step, radians
	Links      []PMXIKLink
}

// PMXBone is a skeleton node. Optional fields are only meaningful when the
// matching flag is set.
type PMXBone struct {
	Name, NameEN string
	Position     [3]float32
	Parent       int32 // -1 for root
	Level        int32 // deform order
	Flags        BoneFlag

	TailBone     int32
	TailOffset   [3]float32
	FixedAxis    [3]float32
	AppendParent int32
	AppendRatio  float32
	LocalAxisX   [3]float32
	LocalAxisZ   [3]float32
	ExternalKey  int32
	IK           *PMXIK
}

// Has reports whether all bits of f are set.
func (b *PMXBone) Has(f BoneFlag) bool {
	return b.Flags&f == f
}

// MorphKind is the morph record shape.
type MorphKind uint8

const (
	MorphGroup    MorphKind = 0
	MorphVertex   MorphKind = 1
	MorphBone     MorphKind = 2
	MorphUV       MorphKind = 3
	MorphUV1      MorphKind = 4
	MorphUV2      MorphKind = 5
	MorphUV3      MorphKind = 6
	MorphUV4      MorphKind = 7
	MorphMaterial MorphKind = 8
)

// String returns a human-readable morph kind name.
func (k MorphKind) String() string {
	switch {
	case k == MorphGroup:
		return "Group"
	case k == MorphVertex:
		return "Vertex"
	case k == MorphBone:
		return "Bone"
	case k == MorphUV:
		return "UV"
	case k >= MorphUV1 && k <= MorphUV4:
		return fmt.Sprintf("UV%d", k-MorphUV)
	case k == MorphMaterial:
		return "Material"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// UVChannel returns 0 for the base UV, 1..4 for extra UV channels and -1
// for non-UV kinds.
func (k MorphKind) UVChannel() int {
	if k >= MorphUV && k <= MorphUV4 {
		return int(k - MorphUV)
	}
	return -1
}

// Material morph blend methods.
const (
	MorphMethodMultiply uint8 = 0
	MorphMethodAdd      uint8 = 1
)

// PMXMaterialMorph is one material override of a material morph.
// Index -1 targets every material.
type PMXMaterialMorph struct {
	Index       int32
	Method      uint8
	Diffuse     [4]float32
	Specular    [4]float32
	Ambient     [3]float32
	EdgeColor   [4]float32
	EdgeSize    float32
	TextureTint [4]float32
	SphereTint  [4]float32
	ToonTint    [4]float32
}

// PMXMorph is a named blend target. Only the slices matching Kind are set;
// each is a parallel, file-ordered sequence.
type PMXMorph struct {
	Name, NameEN string
	Panel        uint8
	Kind         MorphKind

	GroupIndices []int32
	GroupRates   []float32

	VertexIndices []uint32
	VertexOffsets [][3]float32

	BoneIndices      []int32
	BoneTranslations [][3]float32
	BoneRotations    [][4]float32 // X, Y, Z, W

	UVIndices []uint32
	UVOffsets [][2]float32

	Materials []PMXMaterialMorph
}

// Display frame element kinds.
const (
	DisplayBone  uint8 = 0
	DisplayMorph uint8 = 1
)

// PMXDisplayElement references a bone or morph shown in an editor panel.
type PMXDisplayElement struct {
	Kind  uint8
	Index int32
}

// PMXDisplayFrame is a named group of display elements.
type PMXDisplayFrame struct {
	Name, NameEN string
	Special      bool
	Elements     []PMXDisplayElement
}

// PMXRigidBody is a physics body definition. It is decoded but never
// simulated here.
type PMXRigidBody struct {
	Name, NameEN   string
	Bone           int32
	Group          uint8
	Mask           uint16
	Shape          uint8 // 0 sphere, 1 box, 2 capsule
	Size           [3]float32
	Position       [3]float32
	Rotation       [3]float32 // Euler radians
	Mass           float32
	LinearDamping  float32
	AngularDamping float32
	Restitution    float32
	Friction       float32
	Mode           uint8 // 0 bone-driven, 1 physics, 2 physics with bone position
}

// PMXConstraint is a spring joint between two rigid bodies.
type PMXConstraint struct {
	Name, NameEN      string
	Kind              uint8
	BodyA, BodyB      int32
	Position          [3]float32
	Rotation          [3]float32
	TranslationMin    [3]float32
	TranslationMax    [3]float32
	RotationMin       [3]float32
	RotationMax       [3]float32
	SpringTranslation [3]float32
	SpringRotation    [3]float32
}

// PMX is a decoded character model in right-handed coordinates.
//
// Vertex attributes are stored column-oriented; all per-vertex slices have
// the same length. ExtraUVs holds ExtraUVCount entries per vertex.
type PMX struct {
	Header             PMXHeader
	Name, NameEN       string
	Comment, CommentEN string
	Positions          [][3]float32
	Normals            [][3]float32
	UVs                [][2]float32
	ExtraUVs           [][4]float32
	DeformKinds        []DeformKind
	BoneIndices        [][4]uint16
	BoneWeights        [][4]float32
	EdgeScales         []float32
	Indices            []uint32
	Textures           []string
	Materials          []PMXMaterial
	Bones              []PMXBone
	Morphs             []PMXMorph
	DisplayFrames      []PMXDisplayFrame
	RigidBodies        []PMXRigidBody
	Constraints        []PMXConstraint
}

// Minimum record sizes used to bound element counts before allocating.
const (
	minStringSize = 4
	minVertexSize = 12 + 12 + 8 + 1 + 1 + 4
	minMorphSize  = 2*minStringSize + 1 + 1 + 4
)

type pmxDecoder struct {
	r       *Reader
	m       *PMX
	section string
}

// ParsePMX decodes a PMX 2.0/2.1 model. On error no model is returned.
func ParsePMX(data []byte) (*PMX, error) {
	d := &pmxDecoder{r: NewReader(data), m: &PMX{}}

	sections := []struct {
		name string
		fn   func() error
	}{
		{"header", d.header},
		{"info", d.info},
		{"vertices", d.vertices},
		{"indices", d.indices},
		{"textures", d.textures},
		{"materials", d.materials},
		{"bones", d.bones},
		{"morphs", d.morphs},
		{"display frames", d.displayFrames},
		{"rigid bodies", d.rigidBodies},
		{"constraints", d.constraints},
	}
	for _, s := range sections {
		d.section = s.name
		if err := s.fn(); err != nil {
			return nil, err
		}
		if err := d.check(); err != nil {
			return nil, err
		}
	}

	d.m.toRightHanded()
	return d.m, nil
}

// ParsePMXFile parses a PMX file from disk.
func ParsePMXFile(path string) (*PMX, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading PMX file: %w", err)
	}
	return ParsePMX(data)
}

func (d *pmxDecoder) fail(kind, cause error) error {
	return &FormatError{Format: "pmx", Section: d.section, Offset: d.r.Offset(), Err: kind, Cause: cause}
}

// check converts a pending reader underrun into a truncation error.
func (d *pmxDecoder) check() error {
	if err := d.r.Err(); err != nil {
		return d.fail(ErrTruncated, err)
	}
	return nil
}

func (d *pmxDecoder) str() string {
	return d.r.String(d.m.Header.Encoding)
}

func (d *pmxDecoder) header() error {
	r := d.r
	magic := r.Bytes(4)
	if err := d.check(); err != nil {
		return err
	}
	if string(magic) != pmxMagic {
		return d.fail(ErrBadMagic, fmt.Errorf("got %q", magic))
	}

	h := &d.m.Header
	h.Version = r.Float32()
	if err := d.check(); err != nil {
		return err
	}
	if h.Version != 2.0 && h.Version != 2.1 {
		return d.fail(ErrUnsupportedVersion, fmt.Errorf("version %g", h.Version))
	}

	size := int(r.Uint8())
	if err := d.check(); err != nil {
		return err
	}
	if size < 8 {
		return d.fail(ErrUnknownVariant, fmt.Errorf("header size %d", size))
	}
	enc := r.Uint8()
	h.ExtraUVCount = r.Uint8()
	h.VertexIndexSize = r.Uint8()
	h.TextureIndexSize = r.Uint8()
	h.MaterialIndexSize = r.Uint8()
	h.BoneIndexSize = r.Uint8()
	h.MorphIndexSize = r.Uint8()
	h.RigidBodyIndexSize = r.Uint8()
	r.Skip(size - 8)
	if err := d.check(); err != nil {
		return err
	}

	switch enc {
	case 0:
		h.Encoding = encoding.UTF16LE
	case 1:
		h.Encoding = encoding.UTF8
	default:
		return d.fail(ErrUnknownVariant, fmt.Errorf("text encoding %d", enc))
	}
	if h.ExtraUVCount > 4 {
		return d.fail(ErrUnknownVariant, fmt.Errorf("extra UV count %d", h.ExtraUVCount))
	}
	widths := []uint8{
		h.VertexIndexSize, h.TextureIndexSize, h.MaterialIndexSize,
		h.BoneIndexSize, h.MorphIndexSize, h.RigidBodyIndexSize,
	}
	for _, w := range widths {
		if !validIndexWidth(w) {
			return d.fail(ErrUnknownVariant, fmt.Errorf("index width %d", w))
		}
	}
	return nil
}

func (d *pmxDecoder) info() error {
	d.m.Name = d.str()
	d.m.NameEN = d.str()
	d.m.Comment = d.str()
	d.m.CommentEN = d.str()
	return nil
}

// vertexBone reads a signed bone index; negative values become NoBone.
func (d *pmxDecoder) vertexBone() uint16 {
	i := d.r.Index(d.m.Header.BoneIndexSize)
	if i < 0 {
		return NoBone
	}
	return uint16(i)
}

func (d *pmxDecoder) vertices() error {
	r, m := d.r, d.m
	extra := int(m.Header.ExtraUVCount)
	n := r.Count(minVertexSize + extra*16)
	if err := d.check(); err != nil {
		return err
	}

	m.Positions = make([][3]float32, n)
	m.Normals = make([][3]float32, n)
	m.UVs = make([][2]float32, n)
	m.ExtraUVs = make([][4]float32, n*extra)
	m.DeformKinds = make([]DeformKind, n)
	m.BoneIndices = make([][4]uint16, n)
	m.BoneWeights = make([][4]float32, n)
	m.EdgeScales = make([]float32, n)

	for i := 0; i < n; i++ {
		m.Positions[i] = r.Vec3()
		m.Normals[i] = r.Vec3()
		m.UVs[i] = r.Vec2()
		for j := 0; j < extra; j++ {
			m.ExtraUVs[i*extra+j] = r.Vec4()
		}

		kind := DeformKind(r.Uint8())
		m.DeformKinds[i] = kind
		switch kind {
		case DeformBDEF1:
			m.BoneIndices[i] = [4]uint16{d.vertexBone(), NoBone, NoBone, NoBone}
			m.BoneWeights[i] = [4]float32{1, 0, 0, 0}
		case DeformBDEF2, DeformSDEF:
			b0, b1 := d.vertexBone(), d.vertexBone()
			w := r.Float32()
			m.BoneIndices[i] = [4]uint16{b0, b1, NoBone, NoBone}
			m.BoneWeights[i] = [4]float32{w, 1 - w, 0, 0}
			if kind == DeformSDEF {
				// C, R0, R1 are not used by linear blending.
				r.Skip(3 * 12)
			}
		case DeformBDEF4:
			m.BoneIndices[i] = [4]uint16{d.vertexBone(), d.vertexBone(), d.vertexBone(), d.vertexBone()}
			m.BoneWeights[i] = r.Vec4()
		default:
			if err := d.check(); err != nil {
				return err
			}
			return d.fail(ErrUnknownVariant, fmt.Errorf("deform kind %d at vertex %d", kind, i))
		}
		m.EdgeScales[i] = r.Float32()

		if err := d.check(); err != nil {
			return err
		}
	}
	return nil
}

func (d *pmxDecoder) indices() error {
	r, m := d.r, d.m
	w := m.Header.VertexIndexSize
	n := r.Count(int(w))
	if err := d.check(); err != nil {
		return err
	}
	m.Indices = make([]uint32, n)
	for i := range m.Indices {
		m.Indices[i] = r.UIndex(w)
	}
	return nil
}

func (d *pmxDecoder) textures() error {
	n := d.r.Count(minStringSize)
	if err := d.check(); err != nil {
		return err
	}
	d.m.Textures = make([]string, n)
	for i := range d.m.Textures {
		d.m.Textures[i] = d.str()
		if err := d.check(); err != nil {
			return err
		}
	}
	return nil
}

func (d *pmxDecoder) materials() error {
	r, m := d.r, d.m
	tw := m.Header.TextureIndexSize
	n := r.Count(3*minStringSize + 16 + 16 + 12 + 1 + 16 + 4 + 2*int(tw) + 3 + 4)
	if err := d.check(); err != nil {
		return err
	}

	m.Materials = make([]PMXMaterial, n)
	start := 0
	for i := range m.Materials {
		mat := &m.Materials[i]
		mat.Name = d.str()
		mat.NameEN = d.str()
		mat.Diffuse = r.Vec4()
		mat.Specular = r.Vec4()
		mat.Ambient = r.Vec3()
		mat.DrawFlags = r.Uint8()
		mat.EdgeColor = r.Vec4()
		mat.EdgeSize = r.Float32()
		mat.Texture = r.Index(tw)
		mat.SphereTexture = r.Index(tw)
		mat.SphereMode = r.Uint8()
		mat.SharedToon = r.Uint8() != 0
		if mat.SharedToon {
			mat.Toon = int32(r.Int8())
		} else {
			mat.Toon = r.Index(tw)
		}
		mat.Memo = d.str()
		mat.IndexCount = int(r.Int32())
		mat.IndexStart = start
		start += mat.IndexCount

		if err := d.check(); err != nil {
			return err
		}
		if mat.IndexCount < 0 || start > len(m.Indices) {
			return d.fail(ErrUnknownVariant, fmt.Errorf("material %d covers indices [%d, %d) of %d",
				i, mat.IndexStart, start, len(m.Indices)))
		}
	}
	return nil
}

// lockedAxis derives the single free axis of a limited link, if any.
func lockedAxis(lo, hi [3]float32) LockedAxis {
	var bits uint8
	for i := 0; i < 3; i++ {
		if abs32(lo[i]) < 1e-6 && abs32(hi[i]) < 1e-6 {
			bits |= 1 << i
		}
	}
	switch bits {
	case 0b110:
		return AxisXOnly
	case 0b101:
		return AxisYOnly
	case 0b011:
		return AxisZOnly
	default:
		return AxisNone
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func (d *pmxDecoder) bones() error {
	r, m := d.r, d.m
	bw := m.Header.BoneIndexSize
	n := r.Count(2*minStringSize + 12 + int(bw) + 4 + 2 + int(bw))
	if err := d.check(); err != nil {
		return err
	}

	m.Bones = make([]PMXBone, n)
	for i := range m.Bones {
		b := &m.Bones[i]
		b.Name = d.str()
		b.NameEN = d.str()
		b.Position = r.Vec3()
		b.Parent = r.Index(bw)
		b.Level = r.Int32()
		b.Flags = BoneFlag(r.Uint16())

		b.TailBone = -1
		b.AppendParent = -1

		// Field order is fixed by the format.
		if b.Has(BoneFlagTailIsBone) {
			b.TailBone = r.Index(bw)
		} else {
			b.TailOffset = r.Vec3()
		}
		if b.Has(BoneFlagFixedAxis) {
			b.FixedAxis = r.Vec3()
		}
		if b.Has(BoneFlagAppendRotate) || b.Has(BoneFlagAppendTranslate) {
			b.AppendParent = r.Index(bw)
			b.AppendRatio = r.Float32()
		}
		if b.Has(BoneFlagLocalAxis) {
			b.LocalAxisX = r.Vec3()
			b.LocalAxisZ = r.Vec3()
		}
		if b.Has(BoneFlagExternalParent) {
			b.ExternalKey = r.Int32()
		}
		if b.Has(BoneFlagIK) {
			ik := &PMXIK{
				Target:     r.Index(bw),
				Loop:       r.Int32(),
				LimitAngle: r.Float32(),
			}
			links := r.Count(int(bw) + 1)
			if err := d.check(); err != nil {
				return err
			}
			ik.Links = make([]PMXIKLink, links)
			for j := range ik.Links {
				l := &ik.Links[j]
				l.Bone = r.Index(bw)
				l.HasLimit = r.Uint8() != 0
				if l.HasLimit {
					l.Min = r.Vec3()
					l.Max = r.Vec3()
					l.LockedAxis = lockedAxis(l.Min, l.Max)
				}
			}
			b.IK = ik
		}

		if err := d.check(); err != nil {
			return err
		}
	}
	return nil
}

func (d *pmxDecoder) morphs() error {
	r, m := d.r, d.m
	h := &m.Header
	n := r.Count(minMorphSize)
	if err := d.check(); err != nil {
		return err
	}

	m.Morphs = make([]PMXMorph, n)
	for i := range m.Morphs {
		mo := &m.Morphs[i]
		mo.Name = d.str()
		mo.NameEN = d.str()
		mo.Panel = r.Uint8()
		mo.Kind = MorphKind(r.Uint8())
		if err := d.check(); err != nil {
			return err
		}

		switch {
		case mo.Kind == MorphGroup:
			cnt := r.Count(int(h.MorphIndexSize) + 4)
			mo.GroupIndices = make([]int32, cnt)
			mo.GroupRates = make([]float32, cnt)
			for j := 0; j < cnt; j++ {
				mo.GroupIndices[j] = r.Index(h.MorphIndexSize)
				mo.GroupRates[j] = r.Float32()
			}
		case mo.Kind == MorphVertex:
			cnt := r.Count(int(h.VertexIndexSize) + 12)
			mo.VertexIndices = make([]uint32, cnt)
			mo.VertexOffsets = make([][3]float32, cnt)
			for j := 0; j < cnt; j++ {
				mo.VertexIndices[j] = r.UIndex(h.VertexIndexSize)
				mo.VertexOffsets[j] = r.Vec3()
			}
		case mo.Kind == MorphBone:
			cnt := r.Count(int(h.BoneIndexSize) + 28)
			mo.BoneIndices = make([]int32, cnt)
			mo.BoneTranslations = make([][3]float32, cnt)
			mo.BoneRotations = make([][4]float32, cnt)
			for j := 0; j < cnt; j++ {
				mo.BoneIndices[j] = r.Index(h.BoneIndexSize)
				mo.BoneTranslations[j] = r.Vec3()
				mo.BoneRotations[j] = r.Vec4()
			}
		case mo.Kind.UVChannel() >= 0:
			cnt := r.Count(int(h.VertexIndexSize) + 16)
			mo.UVIndices = make([]uint32, cnt)
			mo.UVOffsets = make([][2]float32, cnt)
			for j := 0; j < cnt; j++ {
				mo.UVIndices[j] = r.UIndex(h.VertexIndexSize)
				// Only U and V are kept.
				v := r.Vec4()
				mo.UVOffsets[j] = [2]float32{v[0], v[1]}
			}
		case mo.Kind == MorphMaterial:
			cnt := r.Count(int(h.MaterialIndexSize) + 1 + 28*4)
			mo.Materials = make([]PMXMaterialMorph, cnt)
			for j := range mo.Materials {
				mm := &mo.Materials[j]
				mm.Index = r.Index(h.MaterialIndexSize)
				mm.Method = r.Uint8()
				mm.Diffuse = r.Vec4()
				mm.Specular = r.Vec4()
				mm.Ambient = r.Vec3()
				mm.EdgeColor = r.Vec4()
				mm.EdgeSize = r.Float32()
				mm.TextureTint = r.Vec4()
				mm.SphereTint = r.Vec4()
				mm.ToonTint = r.Vec4()
			}
		default:
			return d.fail(ErrUnknownVariant, fmt.Errorf("morph kind %d at morph %d", mo.Kind, i))
		}

		if err := d.check(); err != nil {
			return err
		}
	}
	return nil
}

func (d *pmxDecoder) displayFrames() error {
	r, m := d.r, d.m
	h := &m.Header
	n := r.Count(2*minStringSize + 1 + 4)
	if err := d.check(); err != nil {
		return err
	}

	m.DisplayFrames = make([]PMXDisplayFrame, n)
	for i := range m.DisplayFrames {
		f := &m.DisplayFrames[i]
		f.Name = d.str()
		f.NameEN = d.str()
		f.Special = r.Uint8() != 0
		cnt := r.Count(2)
		if err := d.check(); err != nil {
			return err
		}
		f.Elements = make([]PMXDisplayElement, cnt)
		for j := range f.Elements {
			e := &f.Elements[j]
			e.Kind = r.Uint8()
			if e.Kind == DisplayMorph {
				e.Index = r.Index(h.MorphIndexSize)
			} else {
				e.Index = r.Index(h.BoneIndexSize)
			}
		}
		if err := d.check(); err != nil {
			return err
		}
	}
	return nil
}

func (d *pmxDecoder) rigidBodies() error {
	r, m := d.r, d.m
	bw := m.Header.BoneIndexSize
	n := r.Count(2*minStringSize + int(bw) + 1 + 2 + 1 + 36 + 20 + 1)
	if err := d.check(); err != nil {
		return err
	}

	m.RigidBodies = make([]PMXRigidBody, n)
	for i := range m.RigidBodies {
		rb := &m.RigidBodies[i]
		rb.Name = d.str()
		rb.NameEN = d.str()
		rb.Bone = r.Index(bw)
		rb.Group = r.Uint8()
		rb.Mask = r.Uint16()
		rb.Shape = r.Uint8()
		rb.Size = r.Vec3()
		rb.Position = r.Vec3()
		rb.Rotation = r.Vec3()
		rb.Mass = r.Float32()
		rb.LinearDamping = r.Float32()
		rb.AngularDamping = r.Float32()
		rb.Restitution = r.Float32()
		rb.Friction = r.Float32()
		rb.Mode = r.Uint8()
		if err := d.check(); err != nil {
			return err
		}
	}
	return nil
}

func (d *pmxDecoder) constraints() error {
	r, m := d.r, d.m
	rw := m.Header.RigidBodyIndexSize
	n := r.Count(2*minStringSize + 1 + 2*int(rw) + 8*12)
	if err := d.check(); err != nil {
		return err
	}

	m.Constraints = make([]PMXConstraint, n)
	for i := range m.Constraints {
		c := &m.Constraints[i]
		c.Name = d.str()
		c.NameEN = d.str()
		c.Kind = r.Uint8()
		c.BodyA = r.Index(rw)
		c.BodyB = r.Index(rw)
		c.Position = r.Vec3()
		c.Rotation = r.Vec3()
		c.TranslationMin = r.Vec3()
		c.TranslationMax = r.Vec3()
		c.RotationMin = r.Vec3()
		c.RotationMax = r.Vec3()
		c.SpringTranslation = r.Vec3()
		c.SpringRotation = r.Vec3()
		if err := d.check(); err != nil {
			return err
		}
	}
	// PMX 2.1 soft bodies may follow; they are not decoded.
	return nil
}

// toRightHanded mirrors the model across the YZ plane: positions and
// offsets negate X, rotations negate Y and Z. Applying it twice is a no-op.
func (m *PMX) toRightHanded() {
	for i := range m.Positions {
		m.Positions[i][0] = -m.Positions[i][0]
	}
	for i := range m.Normals {
		m.Normals[i][0] = -m.Normals[i][0]
	}

	for i := range m.Bones {
		b := &m.Bones[i]
		b.Position[0] = -b.Position[0]
		b.TailOffset[0] = -b.TailOffset[0]
		b.FixedAxis[1] = -b.FixedAxis[1]
		b.FixedAxis[2] = -b.FixedAxis[2]
		b.LocalAxisX[0] = -b.LocalAxisX[0]
		b.LocalAxisZ[0] = -b.LocalAxisZ[0]
		if b.IK == nil {
			continue
		}
		for j := range b.IK.Links {
			l := &b.IK.Links[j]
			if !l.HasLimit {
				continue
			}
			// Negated limits swap ends to keep Min <= Max.
			for _, a := range []int{1, 2} {
				l.Min[a], l.Max[a] = -l.Max[a], -l.Min[a]
			}
		}
	}

	for i := range m.Morphs {
		mo := &m.Morphs[i]
		for j := range mo.VertexOffsets {
			mo.VertexOffsets[j][0] = -mo.VertexOffsets[j][0]
		}
		for j := range mo.BoneTranslations {
			mo.BoneTranslations[j][0] = -mo.BoneTranslations[j][0]
		}
		for j := range mo.BoneRotations {
			mo.BoneRotations[j][1] = -mo.BoneRotations[j][1]
			mo.BoneRotations[j][2] = -mo.BoneRotations[j][2]
		}
	}

	for i := range m.RigidBodies {
		rb := &m.RigidBodies[i]
		rb.Position[0] = -rb.Position[0]
		rb.Rotation[1] = -rb.Rotation[1]
		rb.Rotation[2] = -rb.Rotation[2]
	}
	for i := range m.Constraints {
		c := &m.Constraints[i]
		c.Position[0] = -c.Position[0]
		c.Rotation[1] = -c.Rotation[1]
		c.Rotation[2] = -c.Rotation[2]
	}
}

// VertexCount returns the number of vertices.
func (m *PMX) VertexCount() int {
	return len(m.Positions)
}

// TriangleCount returns the number of triangles in the index buffer.
func (m *PMX) TriangleCount() int {
	return len(m.Indices) / 3
}

// BoneIndex returns the index of the named bone, or -1.
func (m *PMX) BoneIndex(name string) int {
	for i := range m.Bones {
		if m.Bones[i].Name == name {
			return i
		}
	}
	return -1
}

// MorphIndex returns the index of the named morph, or -1.
func (m *PMX) MorphIndex(name string) int {
	for i := range m.Morphs {
		if m.Morphs[i].Name == name {
			return i
		}
	}
	return -1
}

// IKBones returns the indices of bones carrying an IK block.
func (m *PMX) IKBones() []int {
	var out []int
	for i := range m.Bones {
		if m.Bones[i].IK != nil {
			out = append(out, i)
		}
	}
	return out
}
