package mesh

import (
	"bytes"
	"fmt"
	"io"

	"github.com/Faultbox/midgard-mmd/pkg/formats"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// ExportOptions controls ExportGLTF.
type ExportOptions struct {
	// Positions replaces the mesh positions, e.g. with the output of Skin.
	Positions []float32
	// Textures holds PNG data per model texture index. Nil entries leave
	// the material untextured.
	Textures [][]byte
}

// ExportGLTF writes m as a binary glTF with one primitive per material
// group. model supplies material names and colours.
func ExportGLTF(w io.Writer, model *formats.PMX, m *Mesh, opts ExportOptions) error {
	doc, err := buildDocument(model, m, opts)
	if err != nil {
		return err
	}
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding glTF: %w", err)
	}
	return nil
}

func buildDocument(model *formats.PMX, m *Mesh, opts ExportOptions) (*gltf.Document, error) {
	positions := m.Positions
	if opts.Positions != nil {
		if len(opts.Positions) != len(m.Positions) {
			return nil, fmt.Errorf("posed positions: got %d floats, want %d", len(opts.Positions), len(m.Positions))
		}
		positions = opts.Positions
	}

	doc := gltf.NewDocument()
	n := m.VertexCount()
	pos := make([][3]float32, n)
	nrm := make([][3]float32, n)
	uv := make([][2]float32, n)
	for i := 0; i < n; i++ {
		pos[i] = [3]float32{positions[i*3], positions[i*3+1], positions[i*3+2]}
		nrm[i] = [3]float32{m.Normals[i*3], m.Normals[i*3+1], m.Normals[i*3+2]}
		uv[i] = [2]float32{m.UVs[i*2], m.UVs[i*2+1]}
	}
	attributes := map[string]uint32{
		"POSITION":   modeler.WritePosition(doc, pos),
		"NORMAL":     modeler.WriteNormal(doc, nrm),
		"TEXCOORD_0": modeler.WriteTextureCoord(doc, uv),
	}

	textures := make(map[int32]uint32)
	for i, data := range opts.Textures {
		if data == nil {
			continue
		}
		name := fmt.Sprintf("texture%d", i)
		if i < len(model.Textures) {
			name = model.Textures[i]
		}
		img, err := modeler.WriteImage(doc, name, "image/png", bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("writing image %s: %w", name, err)
		}
		textures[int32(i)] = uint32(len(doc.Textures))
		doc.Textures = append(doc.Textures, &gltf.Texture{Name: name, Source: gltf.Index(img)})
	}

	for i := range model.Materials {
		mat := &model.Materials[i]
		color := new([4]float32)
		*color = mat.Diffuse
		gm := &gltf.Material{
			Name:        mat.Name,
			DoubleSided: mat.DrawFlags&0x01 != 0,
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorFactor: color,
			},
		}
		if tex, ok := textures[mat.Texture]; ok {
			gm.PBRMetallicRoughness.BaseColorTexture = &gltf.TextureInfo{Index: tex}
		}
		if mat.Diffuse[3] < 1 {
			gm.AlphaMode = gltf.AlphaBlend
		}
		doc.Materials = append(doc.Materials, gm)
	}

	groups := m.Groups
	if len(groups) == 0 && m.Indices.Count > 0 {
		groups = []Group{{Material: -1, Texture: -1, Count: m.Indices.Count}}
	}
	gm := &gltf.Mesh{Name: model.Name}
	for _, g := range groups {
		var indices uint32
		if m.Indices.Wide() {
			indices = modeler.WriteIndices(doc, m.Indices.Uint32[g.Start:g.Start+g.Count])
		} else {
			indices = modeler.WriteIndices(doc, m.Indices.Uint16[g.Start:g.Start+g.Count])
		}
		prim := &gltf.Primitive{
			Indices:    gltf.Index(indices),
			Attributes: attributes,
		}
		if g.Material >= 0 && g.Material < len(doc.Materials) {
			prim.Material = gltf.Index(uint32(g.Material))
		}
		gm.Primitives = append(gm.Primitives, prim)
	}
	doc.Meshes = append(doc.Meshes, gm)

	doc.Nodes = append(doc.Nodes, &gltf.Node{Name: model.Name, Mesh: gltf.Index(0)})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)
	return doc, nil
}
