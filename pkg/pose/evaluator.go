// Package pose evaluates a decoded motion against a decoded model: keyframe
// interpolation with bezier easing, inherited (append) bones, CCD inverse
// kinematics and group morph resolution.
package pose

import (
	"slices"

	"github.com/Faultbox/midgard-mmd/pkg/formats"
	"github.com/Faultbox/midgard-mmd/pkg/math"
)

// DefaultIKTolerance is the effector-to-goal distance at which CCD stops.
const DefaultIKTolerance = 1e-4

// Options tunes evaluation.
type Options struct {
	DisableIK   bool    // skip the IK solver entirely
	IKTolerance float32 // 0 selects DefaultIKTolerance
}

// Evaluator binds motion tracks to model bones and morphs once. It never
// changes after construction and may be shared between goroutines; each
// goroutine evaluates into its own Pose.
type Evaluator struct {
	model  *formats.PMX
	motion *formats.VMD
	opts   Options

	rest        []math.Vec3
	parents     []int   // sanitized parent indices, -1 for roots
	children    [][]int // inverse of parents
	hierarchy   []int   // parents before children
	deformOrder []int   // (after-physics, level, index)
	ikBones     []int   // IK bones in deform order
	groups      []int   // group morph indices

	boneTracks  [][]formats.VMDBoneKeyframe
	morphTracks [][]formats.VMDMorphKeyframe
	ikTracks    [][]formats.VMDIKKeyframe
}

// NewEvaluator returns an Evaluator with default options. motion may be nil,
// in which case every frame evaluates to the rest pose.
func NewEvaluator(model *formats.PMX, motion *formats.VMD) *Evaluator {
	return NewEvaluatorWithOptions(model, motion, Options{})
}

// NewEvaluatorWithOptions returns an Evaluator using opts.
func NewEvaluatorWithOptions(model *formats.PMX, motion *formats.VMD, opts Options) *Evaluator {
	if opts.IKTolerance <= 0 {
		opts.IKTolerance = DefaultIKTolerance
	}
	n := len(model.Bones)
	e := &Evaluator{
		model:       model,
		motion:      motion,
		opts:        opts,
		rest:        make([]math.Vec3, n),
		parents:     make([]int, n),
		children:    make([][]int, n),
		boneTracks:  make([][]formats.VMDBoneKeyframe, n),
		morphTracks: make([][]formats.VMDMorphKeyframe, len(model.Morphs)),
		ikTracks:    make([][]formats.VMDIKKeyframe, n),
	}

	for i := range model.Bones {
		e.rest[i] = math.Vec3FromArray(model.Bones[i].Position)
	}
	e.buildHierarchy()

	e.deformOrder = make([]int, n)
	for i := range e.deformOrder {
		e.deformOrder[i] = i
	}
	slices.SortStableFunc(e.deformOrder, func(a, b int) int {
		ba, bb := &model.Bones[a], &model.Bones[b]
		pa, pb := ba.Has(formats.BoneFlagAfterPhysics), bb.Has(formats.BoneFlagAfterPhysics)
		if pa != pb {
			if pb {
				return -1
			}
			return 1
		}
		return int(ba.Level) - int(bb.Level)
	})
	for _, i := range e.deformOrder {
		if e.validIK(i) {
			e.ikBones = append(e.ikBones, i)
		}
	}

	for i := range model.Morphs {
		if model.Morphs[i].Kind == formats.MorphGroup {
			e.groups = append(e.groups, i)
		}
	}

	if motion != nil {
		for i := range model.Bones {
			name := model.Bones[i].Name
			e.boneTracks[i] = motion.Bones[name]
			e.ikTracks[i] = motion.IKStates[name]
		}
		for i := range model.Morphs {
			e.morphTracks[i] = motion.Morphs[model.Morphs[i].Name]
		}
	}
	return e
}

// buildHierarchy drops out-of-range parents and breaks parent cycles, then
// orders bones so that every parent precedes its children.
func (e *Evaluator) buildHierarchy() {
	n := len(e.parents)
	for i := range e.parents {
		p := int(e.model.Bones[i].Parent)
		if p < 0 || p >= n {
			p = -1
		}
		e.parents[i] = p
	}
	for i := range e.parents {
		steps := 0
		for p := e.parents[i]; p >= 0; p = e.parents[p] {
			if steps++; steps > n {
				e.parents[i] = -1
				break
			}
		}
	}

	for i, p := range e.parents {
		if p >= 0 {
			e.children[p] = append(e.children[p], i)
		}
	}
	e.hierarchy = make([]int, 0, n)
	var visit func(i int)
	visit = func(i int) {
		e.hierarchy = append(e.hierarchy, i)
		for _, c := range e.children[i] {
			visit(c)
		}
	}
	for i, p := range e.parents {
		if p < 0 {
			visit(i)
		}
	}
}

func (e *Evaluator) validIK(i int) bool {
	ik := e.model.Bones[i].IK
	n := int32(len(e.model.Bones))
	if ik == nil || ik.Target < 0 || ik.Target >= n {
		return false
	}
	for _, l := range ik.Links {
		if l.Bone < 0 || l.Bone >= n {
			return false
		}
	}
	return true
}

// Model returns the bound model.
func (e *Evaluator) Model() *formats.PMX { return e.model }

// Pose is the caller-owned output of one evaluation. It must not be
// evaluated into from two goroutines at once.
type Pose struct {
	Frame        float64
	Translations []math.Vec3 // animated local translation (with append)
	Rotations    []math.Quat // animated local rotation (with append)
	IKRotations  []math.Quat // IK correction applied after Rotations
	World        []math.Mat4 // bone to model space
	Skin         []math.Mat4 // World * inverse bind
	MorphWeights []float32   // resolved, group morphs distributed
	Visible      bool

	groupStack []bool
}

// NewPose allocates output buffers sized for model.
func NewPose(model *formats.PMX) *Pose {
	n := len(model.Bones)
	return &Pose{
		Translations: make([]math.Vec3, n),
		Rotations:    make([]math.Quat, n),
		IKRotations:  make([]math.Quat, n),
		World:        make([]math.Mat4, n),
		Skin:         make([]math.Mat4, n),
		MorphWeights: make([]float32, len(model.Morphs)),
		groupStack:   make([]bool, len(model.Morphs)),
		Visible:      true,
	}
}

// Evaluate overwrites p with the pose at frame. Frames outside the motion
// hold the first or last keyframe.
func (e *Evaluator) Evaluate(frame float64, p *Pose) {
	p.Frame = frame
	for i := range e.model.Bones {
		p.Translations[i], p.Rotations[i] = SampleBone(e.boneTracks[i], frame)
		p.IKRotations[i] = math.QuatIdentity()
	}

	e.applyAppend(p)
	for _, i := range e.hierarchy {
		e.updateWorld(i, p)
	}
	if !e.opts.DisableIK {
		for _, i := range e.ikBones {
			if IKEnabled(e.ikTracks[i], frame) {
				e.solveIK(i, p)
			}
		}
	}
	for i := range p.Skin {
		r := e.rest[i]
		p.Skin[i] = p.World[i].Mul(math.Translate(-r.X, -r.Y, -r.Z))
	}

	e.evaluateMorphs(frame, p)
	p.Visible = true
	if e.motion != nil {
		p.Visible = Visible(e.motion.Visibility, frame)
	}
}

// applyAppend blends inherited rotation and translation in deform order so
// that a source bone is final before bones inheriting from it.
func (e *Evaluator) applyAppend(p *Pose) {
	n := len(e.model.Bones)
	for _, i := range e.deformOrder {
		b := &e.model.Bones[i]
		src := int(b.AppendParent)
		if src < 0 || src >= n || src == i {
			continue
		}
		ratio := b.AppendRatio
		if b.Has(formats.BoneFlagAppendRotate) {
			inherited := math.QuatIdentity().Slerp(p.Rotations[src], ratio)
			p.Rotations[i] = inherited.Mul(p.Rotations[i])
		}
		if b.Has(formats.BoneFlagAppendTranslate) {
			p.Translations[i] = p.Translations[i].Add(p.Translations[src].Scale(ratio))
		}
	}
}

// local returns the bone's transform relative to its parent.
func (e *Evaluator) local(i int, p *Pose) math.Mat4 {
	offset := e.rest[i]
	if parent := e.parents[i]; parent >= 0 {
		offset = offset.Sub(e.rest[parent])
	}
	rot := p.Rotations[i].Mul(p.IKRotations[i])
	return math.FromRotationTranslation(rot, offset.Add(p.Translations[i]))
}

func (e *Evaluator) updateWorld(i int, p *Pose) {
	m := e.local(i, p)
	if parent := e.parents[i]; parent >= 0 {
		m = p.World[parent].Mul(m)
	}
	p.World[i] = m
}

// updateSubtree recomputes World for i and all of its descendants.
func (e *Evaluator) updateSubtree(i int, p *Pose) {
	e.updateWorld(i, p)
	for _, c := range e.children[i] {
		e.updateSubtree(c, p)
	}
}

// MatrixBuffer appends the skinning matrices of p to dst as a flat
// column-major float32 array, 16 values per bone.
func (p *Pose) MatrixBuffer(dst []float32) []float32 {
	dst = slices.Grow(dst[:0], len(p.Skin)*16)
	for i := range p.Skin {
		dst = append(dst, p.Skin[i][:]...)
	}
	return dst
}

// BonePosition returns the model-space position of bone i.
func (p *Pose) BonePosition(i int) math.Vec3 {
	return p.World[i].Translation()
}
