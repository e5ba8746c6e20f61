package mesh

import (
	"github.com/Faultbox/midgard-mmd/pkg/formats"
	"github.com/Faultbox/midgard-mmd/pkg/math"
	"github.com/Faultbox/midgard-mmd/pkg/pose"
)

// Skin writes posed vertex positions into dst (3 floats per vertex) and
// returns it along with their bounds. Vertex morphs are applied in bind
// space before linear blend skinning; SDEF vertices blend linearly.
func Skin(dst []float32, model *formats.PMX, p *pose.Pose) ([]float32, Bounds) {
	n := model.VertexCount()
	if cap(dst) < n*3 {
		dst = make([]float32, n*3)
	}
	dst = dst[:n*3]
	for i := 0; i < n; i++ {
		copy(dst[i*3:i*3+3], model.Positions[i][:])
	}

	for mi := range model.Morphs {
		mo := &model.Morphs[mi]
		w := p.MorphWeights[mi]
		if mo.Kind != formats.MorphVertex || w == 0 {
			continue
		}
		for k, vi := range mo.VertexIndices {
			if int(vi) >= n {
				continue
			}
			off := mo.VertexOffsets[k]
			dst[vi*3] += off[0] * w
			dst[vi*3+1] += off[1] * w
			dst[vi*3+2] += off[2] * w
		}
	}

	bounds := emptyBounds
	bones := len(p.Skin)
	for i := 0; i < n; i++ {
		v := math.Vec3{X: dst[i*3], Y: dst[i*3+1], Z: dst[i*3+2]}
		var out math.Vec3
		var total float32
		for s := 0; s < 4; s++ {
			b, w := model.BoneIndices[i][s], model.BoneWeights[i][s]
			if b == formats.NoBone || int(b) >= bones || w == 0 {
				continue
			}
			out = out.Add(p.Skin[b].TransformVec3(v).Scale(w))
			total += w
		}
		if total > 0 {
			// BDEF4 weights are stored verbatim and need not sum to one.
			v = out.Scale(1 / total)
		}
		dst[i*3], dst[i*3+1], dst[i*3+2] = v.X, v.Y, v.Z
		updateBounds(&bounds, v.Array())
	}
	return dst, bounds
}
