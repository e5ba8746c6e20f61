package pose

import (
	stdmath "math"

	"github.com/Faultbox/midgard-mmd/pkg/formats"
	"github.com/Faultbox/midgard-mmd/pkg/math"
)

// CameraPose is an interpolated camera state.
type CameraPose struct {
	Frame        float64
	Target       math.Vec3
	Rotation     math.Vec3 // ZXY Euler angles, radians
	Distance     float32   // signed; negative places the eye in front of the target
	FOV          float32   // vertical, degrees
	Orthographic bool
}

// EvaluateCamera samples the camera track of m at frame. It reports false
// when the motion has no camera keyframes.
func EvaluateCamera(m *formats.VMD, frame float64) (CameraPose, bool) {
	if m == nil || len(m.Cameras) == 0 {
		return CameraPose{}, false
	}
	track := m.Cameras
	left, right, u := Bracket(len(track), func(i int) float64 { return float64(track[i].Frame) }, frame)

	l := &track[left]
	c := CameraPose{
		Frame:        frame,
		Target:       math.Vec3FromArray(l.Target),
		Rotation:     math.Vec3FromArray(l.Rotation),
		Distance:     l.Distance,
		FOV:          float32(l.FOV),
		Orthographic: l.Orthographic,
	}
	if right < 0 || u == 0 {
		return c, true
	}

	r := &track[right]
	ease := func(curve int) float32 { return float32(Ease(r.Curves[curve], u)) }
	lerp := func(a, b, w float32) float32 { return a + (b-a)*w }

	c.Target = math.Vec3{
		X: lerp(l.Target[0], r.Target[0], ease(formats.CameraCurveX)),
		Y: lerp(l.Target[1], r.Target[1], ease(formats.CameraCurveY)),
		Z: lerp(l.Target[2], r.Target[2], ease(formats.CameraCurveZ)),
	}
	c.Rotation = math.Vec3FromArray(l.Rotation).Lerp(math.Vec3FromArray(r.Rotation), ease(formats.CameraCurveRotation))
	c.Distance = lerp(l.Distance, r.Distance, ease(formats.CameraCurveDistance))
	c.FOV = lerp(float32(l.FOV), float32(r.FOV), ease(formats.CameraCurveFOV))
	return c, true
}

func (c CameraPose) orientation() math.Quat {
	return math.QuatFromEulerZXY(c.Rotation)
}

// View returns the world-to-eye matrix.
func (c CameraPose) View() math.Mat4 {
	return math.Translate(0, 0, c.Distance).
		Mul(c.orientation().Conjugate().ToMat4()).
		Mul(math.Translate(-c.Target.X, -c.Target.Y, -c.Target.Z))
}

// Position returns the eye position in world space.
func (c CameraPose) Position() math.Vec3 {
	return c.Target.Add(c.orientation().Rotate(math.Vec3{Z: -c.Distance}))
}

// Projection returns the projection matrix for the given aspect ratio and
// depth range.
func (c CameraPose) Projection(aspect, near, far float32) math.Mat4 {
	fov := c.FOV * stdmath.Pi / 180
	if !c.Orthographic {
		return math.Perspective(fov, aspect, near, far)
	}
	d := c.Distance
	if d < 0 {
		d = -d
	}
	h := d * float32(stdmath.Tan(float64(fov)/2))
	w := h * aspect
	return math.Ortho(-w, w, -h, h, near, far)
}
