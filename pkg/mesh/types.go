// Package mesh flattens a decoded PMX model into renderer-ready buffers and
// provides CPU skinning for tools that need posed geometry.
package mesh

// IndexBuffer holds a triangle list in the narrowest index width that can
// address every vertex. Exactly one of Uint16 and Uint32 is set.
type IndexBuffer struct {
	Uint16 []uint16 // padded to an even length for 4-byte aligned uploads
	Uint32 []uint32
	Count  int // real index count, excluding padding
}

// Wide reports whether 32-bit indices are required.
func (b IndexBuffer) Wide() bool { return b.Uint32 != nil }

// Group is a contiguous index range drawn with one material.
type Group struct {
	Material int
	Texture  int32 // -1 when the material has no texture
	Start    int
	Count    int
}

// Mesh is the structure-of-arrays form of a model. Slices are indexed by
// vertex and flattened (3 floats per position, 4 bone slots per vertex).
type Mesh struct {
	Positions   []float32
	Normals     []float32
	UVs         []float32
	BoneIndices []uint16
	BoneWeights []float32
	EdgeScales  []float32
	Indices     IndexBuffer
	Groups      []Group
	Bounds      Bounds
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Positions) / 3 }

// Bounds holds the axis-aligned bounding box of the mesh.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Center returns the midpoint of the box.
func (b Bounds) Center() [3]float32 {
	return [3]float32{
		(b.Min[0] + b.Max[0]) / 2,
		(b.Min[1] + b.Max[1]) / 2,
		(b.Min[2] + b.Max[2]) / 2,
	}
}

// Size returns the extent of the box on each axis.
func (b Bounds) Size() [3]float32 {
	return [3]float32{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}
