package pose

import (
	stdmath "math"

	"github.com/Faultbox/midgard-mmd/pkg/formats"
	"github.com/Faultbox/midgard-mmd/pkg/math"
)

// maxIKLoop caps the iteration count read from the model.
const maxIKLoop = 256

// LimitAngle folds v back into [lo, hi] by reflecting it off the bound it
// crossed. When the reflection overshoots the other bound, v is clamped to
// the bound it crossed instead.
func LimitAngle(v, lo, hi float32) float32 {
	switch {
	case v < lo:
		if r := 2*lo - v; r <= hi {
			return r
		}
		return lo
	case v > hi:
		if r := 2*hi - v; r >= lo {
			return r
		}
		return hi
	}
	return v
}

// invRotate expresses a model-space direction in the rotation frame of m.
func invRotate(m math.Mat4, v math.Vec3) math.Vec3 {
	return math.Vec3{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[4]*v.X + m[5]*v.Y + m[6]*v.Z,
		Z: m[8]*v.X + m[9]*v.Y + m[10]*v.Z,
	}
}

// solveIK runs cyclic coordinate descent for the IK bone ikBone. Each link
// in turn is rotated so that the effector points at the goal, and the link's
// subtree is updated before the next link is visited.
func (e *Evaluator) solveIK(ikBone int, p *Pose) {
	ik := e.model.Bones[ikBone].IK
	effector := int(ik.Target)
	goal := p.World[ikBone].Translation()
	tol := e.opts.IKTolerance
	loop := min(int(ik.Loop), maxIKLoop)

	for iter := 0; iter < loop; iter++ {
		if p.World[effector].Translation().Distance(goal) < tol {
			return
		}
		for li := range ik.Links {
			e.rotateLink(&ik.Links[li], ik.LimitAngle, effector, goal, p)
		}
	}
}

func (e *Evaluator) rotateLink(link *formats.PMXIKLink, limit float32, effector int, goal math.Vec3, p *Pose) {
	bone := int(link.Bone)
	world := p.World[bone]
	origin := world.Translation()

	toEff := invRotate(world, p.World[effector].Translation().Sub(origin))
	toGoal := invRotate(world, goal.Sub(origin))
	if toEff.Length() < 1e-8 || toGoal.Length() < 1e-8 {
		return
	}
	toEff, toGoal = toEff.Normalize(), toGoal.Normalize()

	dot := toEff.Dot(toGoal)
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	angle := float32(stdmath.Acos(float64(dot)))
	if angle < 1e-6 {
		return
	}
	if limit > 0 && angle > limit {
		angle = limit
	}

	axis := toEff.Cross(toGoal)
	if axis.Length() < 1e-8 {
		return
	}
	axis = axis.Normalize()

	if link.HasLimit {
		switch link.LockedAxis {
		case formats.AxisXOnly:
			axis = math.Vec3{X: sign(axis.X)}
		case formats.AxisYOnly:
			axis = math.Vec3{Y: sign(axis.Y)}
		case formats.AxisZOnly:
			axis = math.Vec3{Z: sign(axis.Z)}
		}
	}

	anim := p.Rotations[bone]
	c := anim.Mul(p.IKRotations[bone]).Mul(math.QuatFromAxisAngle(axis, angle))
	if link.HasLimit {
		ang := c.EulerZXY()
		c = math.QuatFromEulerZXY(math.Vec3{
			X: LimitAngle(ang.X, link.Min[0], link.Max[0]),
			Y: LimitAngle(ang.Y, link.Min[1], link.Max[1]),
			Z: LimitAngle(ang.Z, link.Min[2], link.Max[2]),
		})
	}
	p.IKRotations[bone] = anim.Conjugate().Mul(c).Normalize()
	e.updateSubtree(bone, p)
}

func sign(v float32) float32 {
	if v < 0 {
		return -1
	}
	return 1
}
