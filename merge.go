package clod

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	vec3d "github.com/flywave/go3d/float64/vec3"
)

// triangleSoup is an indexed triangle list whose vertices are deduplicated by
// exact position.
type triangleSoup struct {
	vertices []vec3d.T
	lookup   map[vec3d.T]int
	indices  []uint32
}

func newTriangleSoup() *triangleSoup {
	return &triangleSoup{lookup: make(map[vec3d.T]int)}
}

func (s *triangleSoup) findVertex(p vec3d.T) int {
	if i, ok := s.lookup[p]; ok {
		return i
	}
	i := len(s.vertices)
	s.lookup[p] = i
	s.vertices = append(s.vertices, p)
	return i
}

func (s *triangleSoup) addCluster(c *QuadMeshCluster) {
	for _, q := range c.Quads {
		g := [4]int{
			s.findVertex(c.Vertices[q[0]]),
			s.findVertex(c.Vertices[q[1]]),
			s.findVertex(c.Vertices[q[2]]),
			s.findVertex(c.Vertices[q[3]]),
		}
		quadTriangles(g, func(t triangle) {
			s.indices = append(s.indices, uint32(t[0]), uint32(t[1]), uint32(t[2]))
		})
	}
}

func (s *triangleSoup) triangleCount() int {
	return len(s.indices) / 3
}

// mergeTargetTriangles is the triangle count handed to the decimator for a
// merged cluster. Pairing those triangles back into quads keeps the result
// inside the quad budget.
func mergeTargetTriangles(maxQuads int) int {
	return maxQuads * 3 / 2
}

// mergeSimplifyClusters merges two clusters into one coarser cluster by
// decimating their joint triangle soup and pairing the result back into quads.
// The returned float is the error reported by the decimator.
func mergeSimplifyClusters(c0, c1 *QuadMeshCluster, conf Config) (QuadMeshCluster, float64, error) {
	soup := newTriangleSoup()
	soup.addCluster(c0)
	soup.addCluster(c1)

	opts := SimplifyOptions{
		TargetIndexCount: mergeTargetTriangles(conf.MaxQuadsPerCluster) * 3,
		TargetError:      conf.SimplifyTargetError,
		LockBorder:       conf.LockBorder,
	}
	simplified, resultError := conf.decimator().Simplify(soup.indices, soup.vertices, opts)
	if len(simplified) > len(soup.indices) || len(simplified)%3 != 0 {
		return QuadMeshCluster{}, 0, errors.New("decimator returned an invalid index buffer").
			WithType(ErrTypeAllocationOverflow).
			WithTag("indices", len(soup.indices)).
			WithTag("simplified", len(simplified))
	}

	distinct := make(map[uint32]struct{}, MAX_VERTICES_PER_CLUSTER)
	for _, i := range simplified {
		if int(i) >= len(soup.vertices) {
			return QuadMeshCluster{}, 0, errors.New("decimator returned an index out of range").
				WithType(ErrTypeAllocationOverflow).
				WithTag("index", i).
				WithTag("vertices", len(soup.vertices))
		}
		distinct[i] = struct{}{}
	}
	if len(distinct) > MAX_VERTICES_PER_CLUSTER {
		return QuadMeshCluster{}, 0, errors.New("simplified cluster exceeds vertex budget").
			WithType(ErrTypeCapacityViolation).
			WithTag("vertices", len(distinct))
	}

	merged := QuadMeshCluster{Left: -1, Right: -1}
	local := newTriangleSoup()
	tris := make([]triangle, 0, len(simplified)/3)
	for i := 0; i+2 < len(simplified); i += 3 {
		t := triangle{
			local.findVertex(soup.vertices[simplified[i]]),
			local.findVertex(soup.vertices[simplified[i+1]]),
			local.findVertex(soup.vertices[simplified[i+2]]),
		}
		if t.valid() {
			tris = append(tris, t)
		}
	}
	merged.Vertices = local.vertices
	merged.Quads = quadsFromTriangles(tris, conf.MaxQuadsPerCluster)

	if len(merged.Quads) > conf.MaxQuadsPerCluster {
		return QuadMeshCluster{}, 0, errors.New("merged cluster exceeds quad budget").
			WithType(ErrTypeCapacityViolation).
			WithTag("quads", len(merged.Quads)).
			WithTag("max_quads", conf.MaxQuadsPerCluster).
			WithTag("triangles", len(tris))
	}
	if len(merged.Vertices) > MAX_VERTICES_PER_CLUSTER {
		return QuadMeshCluster{}, 0, errors.New("merged cluster exceeds vertex budget").
			WithType(ErrTypeCapacityViolation).
			WithTag("vertices", len(merged.Vertices))
	}
	return merged, resultError, nil
}
