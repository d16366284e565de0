package clod

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	tin "github.com/flywave/go-tin"
	vec3d "github.com/flywave/go3d/float64/vec3"
)

// QuadMesh is an input mesh of quads indexing a shared vertex array.
// Degenerate quads repeat their last vertex.
type QuadMesh struct {
	BBox     BBox
	Vertices []vec3d.T
	Quads    [][4]int
}

func NewQuadMesh() *QuadMesh {
	return &QuadMesh{BBox: EmptyBBox()}
}

// AppendQuads adds vertices and quads indexing them, offsetting the indices
// behind the vertices already present.
func (m *QuadMesh) AppendQuads(vertices []vec3d.T, quads [][4]int) {
	count := len(m.Vertices)
	for _, v := range vertices {
		m.BBox.Extend(v)
	}
	m.Vertices = append(m.Vertices, vertices...)
	for _, q := range quads {
		m.Quads = append(m.Quads, [4]int{count + q[0], count + q[1], count + q[2], count + q[3]})
	}
}

func (m *QuadMesh) Validate() error {
	if len(m.Quads) == 0 {
		return errors.New("mesh has no quads").WithType(ErrTypeInvalidInput)
	}
	for i, q := range m.Quads {
		for _, v := range q {
			if v < 0 || v >= len(m.Vertices) {
				return errors.New("quad index out of range").
					WithType(ErrTypeInvalidInput).
					WithTag("quad", i).
					WithTag("index", v).
					WithTag("vertices", len(m.Vertices))
			}
		}
	}
	return nil
}

// QuadMeshFromTriangles pairs edge adjacent triangles into quads. Triangles
// left without a partner become degenerate quads; collapsed triangles are
// dropped.
func QuadMeshFromTriangles(vertices []vec3d.T, faces [][3]int) (*QuadMesh, error) {
	tris := make([]triangle, 0, len(faces))
	for i, f := range faces {
		for _, v := range f {
			if v < 0 || v >= len(vertices) {
				return nil, errors.New("triangle index out of range").
					WithType(ErrTypeInvalidInput).
					WithTag("triangle", i).
					WithTag("index", v)
			}
		}
		if t := triangle(f); t.valid() {
			tris = append(tris, t)
		}
	}

	m := NewQuadMesh()
	m.AppendQuads(vertices, extractQuads(pairTriangles(tris)))
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func QuadMeshFromTin(mesh *tin.Mesh) (*QuadMesh, error) {
	vertices := make([]vec3d.T, 0, len(mesh.Vertices))
	for _, v := range mesh.Vertices {
		vertices = append(vertices, vec3d.T(v))
	}
	faces := make([][3]int, 0, len(mesh.Faces))
	for _, f := range mesh.Faces {
		faces = append(faces, [3]int{int(f[0]), int(f[1]), int(f[2])})
	}
	return QuadMeshFromTriangles(vertices, faces)
}
