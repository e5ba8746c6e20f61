package pose

import (
	"sort"

	"github.com/Faultbox/midgard-mmd/pkg/formats"
	"github.com/Faultbox/midgard-mmd/pkg/math"
)

// Bracket finds the keyframes around frame in a track of n keyframes sorted
// by frameAt.
//
// right is -1 when the track holds a single pose at frame: before the first
// keyframe, at or after the last one, or when n == 1. Otherwise
// frameAt(left) <= frame < frameAt(right) and u is the normalized position
// between them. When several keyframes share a frame the last one wins.
// left is -1 only for an empty track.
func Bracket(n int, frameAt func(i int) float64, frame float64) (left, right int, u float64) {
	if n == 0 {
		return -1, -1, 0
	}

	// First keyframe strictly after frame.
	i := sort.Search(n, func(i int) bool { return frameAt(i) > frame })
	switch {
	case i == 0:
		first := frameAt(0)
		last := sort.Search(n, func(i int) bool { return frameAt(i) > first }) - 1
		return last, -1, 0
	case i == n:
		return n - 1, -1, 0
	}

	left, right = i-1, i
	f0, f1 := frameAt(left), frameAt(right)
	return left, right, (frame - f0) / (f1 - f0)
}

// SampleBone returns the interpolated local translation and rotation of a
// bone track. An empty track yields the rest pose.
func SampleBone(track []formats.VMDBoneKeyframe, frame float64) (math.Vec3, math.Quat) {
	left, right, u := Bracket(len(track), func(i int) float64 { return float64(track[i].Frame) }, frame)
	if left < 0 {
		return math.Vec3{}, math.QuatIdentity()
	}

	l := &track[left]
	if right < 0 || u == 0 {
		return math.Vec3FromArray(l.Translation), math.QuatFromArray(l.Rotation)
	}

	// Curves belong to the segment's closing keyframe.
	r := &track[right]
	var t math.Vec3
	for axis := 0; axis < 3; axis++ {
		w := float32(Ease(r.Curves[axis], u))
		v := l.Translation[axis] + (r.Translation[axis]-l.Translation[axis])*w
		switch axis {
		case 0:
			t.X = v
		case 1:
			t.Y = v
		case 2:
			t.Z = v
		}
	}

	w := float32(Ease(r.Curves[formats.CurveRotation], u))
	q := math.QuatFromArray(l.Rotation).Slerp(math.QuatFromArray(r.Rotation), w)
	return t, q
}

// SampleMorph returns the linearly interpolated weight of a morph track.
func SampleMorph(track []formats.VMDMorphKeyframe, frame float64) float32 {
	left, right, u := Bracket(len(track), func(i int) float64 { return float64(track[i].Frame) }, frame)
	if left < 0 {
		return 0
	}
	l := track[left].Weight
	if right < 0 {
		return l
	}
	r := track[right].Weight
	return l + (r-l)*float32(u)
}

// IKEnabled reports the state of an IK switch track at frame. The track is
// a step function; a chain without a track is enabled.
func IKEnabled(track []formats.VMDIKKeyframe, frame float64) bool {
	left, _, _ := Bracket(len(track), func(i int) float64 { return float64(track[i].Frame) }, frame)
	if left < 0 {
		return true
	}
	return track[left].Enabled
}

// Visible reports the model visibility at frame. Models are visible by default.
func Visible(track []formats.VMDVisibilityKeyframe, frame float64) bool {
	left, _, _ := Bracket(len(track), func(i int) float64 { return float64(track[i].Frame) }, frame)
	if left < 0 {
		return true
	}
	return track[left].Visible
}
