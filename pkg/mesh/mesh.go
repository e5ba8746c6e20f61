package mesh

import (
	"github.com/Faultbox/midgard-mmd/pkg/formats"
)

// maxNarrowVertices is the largest vertex count addressable with uint16 indices.
const maxNarrowVertices = 1 << 16

// emptyBounds is inverted so the first point sets both corners.
var emptyBounds = Bounds{
	Min: [3]float32{1e10, 1e10, 1e10},
	Max: [3]float32{-1e10, -1e10, -1e10},
}

// Build creates a mesh from decoded PMX data. Returns nil for a model
// without vertices.
func Build(model *formats.PMX) *Mesh {
	n := model.VertexCount()
	if n == 0 {
		return nil
	}

	m := &Mesh{
		Positions:   make([]float32, 0, n*3),
		Normals:     make([]float32, 0, n*3),
		UVs:         make([]float32, 0, n*2),
		BoneIndices: make([]uint16, 0, n*4),
		BoneWeights: make([]float32, 0, n*4),
		EdgeScales:  make([]float32, n),
		Bounds:      emptyBounds,
	}
	copy(m.EdgeScales, model.EdgeScales)

	for i := 0; i < n; i++ {
		p := model.Positions[i]
		m.Positions = append(m.Positions, p[:]...)
		m.Normals = append(m.Normals, model.Normals[i][:]...)
		m.UVs = append(m.UVs, model.UVs[i][:]...)
		m.BoneIndices = append(m.BoneIndices, model.BoneIndices[i][:]...)
		m.BoneWeights = append(m.BoneWeights, model.BoneWeights[i][:]...)
		updateBounds(&m.Bounds, p)
	}

	m.Indices = buildIndices(model.Indices, n)
	m.Groups = buildGroups(model)
	return m
}

func buildIndices(src []uint32, vertexCount int) IndexBuffer {
	b := IndexBuffer{Count: len(src)}
	if vertexCount > maxNarrowVertices {
		b.Uint32 = make([]uint32, len(src))
		copy(b.Uint32, src)
		return b
	}

	size := len(src)
	if size%2 != 0 {
		size++
	}
	b.Uint16 = make([]uint16, size)
	for i, v := range src {
		b.Uint16[i] = uint16(v)
	}
	return b
}

// buildGroups maps materials onto index ranges. Ranges past the end of the
// index buffer are cut short; empty or negative ones are dropped.
func buildGroups(model *formats.PMX) []Group {
	total := len(model.Indices)
	groups := make([]Group, 0, len(model.Materials))
	for i := range model.Materials {
		mat := &model.Materials[i]
		start, count := mat.IndexStart, mat.IndexCount
		if start < 0 || start >= total || count <= 0 {
			continue
		}
		if start+count > total {
			count = total - start
		}
		tex := mat.Texture
		if tex < 0 || int(tex) >= len(model.Textures) {
			tex = -1
		}
		groups = append(groups, Group{Material: i, Texture: tex, Start: start, Count: count})
	}
	return groups
}

func updateBounds(b *Bounds, p [3]float32) {
	for k := 0; k < 3; k++ {
		if p[k] < b.Min[k] {
			b.Min[k] = p[k]
		}
		if p[k] > b.Max[k] {
			b.Max[k] = p[k]
		}
	}
}
