package clod

import (
	"testing"

	vec3d "github.com/flywave/go3d/float64/vec3"
	"github.com/stretchr/testify/require"
)

// quadGridMesh is a flat nx by ny quad mesh in the z=0 plane.
func quadGridMesh(nx, ny int) *QuadMesh {
	vertices := make([]vec3d.T, 0, (nx+1)*(ny+1))
	for y := 0; y <= ny; y++ {
		for x := 0; x <= nx; x++ {
			vertices = append(vertices, vec3d.T{float64(x), float64(y), 0})
		}
	}
	quads := make([][4]int, 0, nx*ny)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			v0 := y*(nx+1) + x
			quads = append(quads, [4]int{v0, v0 + 1, v0 + nx + 2, v0 + nx + 1})
		}
	}
	m := NewQuadMesh()
	m.AppendQuads(vertices, quads)
	return m
}

// planeGrid is a res by res vertex grid with unit spacing.
func planeGrid(res int) *Grid {
	g := &Grid{ResX: res, ResY: res}
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			g.Positions = append(g.Positions, vec3d.T{float64(x), float64(y), 0})
		}
	}
	return g
}

// truncatingDecimator keeps the leading triangles up to the target.
type truncatingDecimator struct{}

func (truncatingDecimator) Simplify(indices []uint32, positions []vec3d.T, opts SimplifyOptions) ([]uint32, float64) {
	n := len(indices)
	if opts.TargetIndexCount < n {
		n = opts.TargetIndexCount - opts.TargetIndexCount%3
	}
	return append([]uint32(nil), indices[:n]...), 0
}

// identityDecimator never simplifies.
type identityDecimator struct{}

func (identityDecimator) Simplify(indices []uint32, positions []vec3d.T, opts SimplifyOptions) ([]uint32, float64) {
	return append([]uint32(nil), indices...), 0
}

// corruptDecimator returns an index past the vertex array.
type corruptDecimator struct{}

func (corruptDecimator) Simplify(indices []uint32, positions []vec3d.T, opts SimplifyOptions) ([]uint32, float64) {
	return []uint32{0, 1, uint32(len(positions))}, 0
}

func testConfig(maxQuads int) Config {
	conf := DefaultConfig()
	conf.MaxQuadsPerCluster = maxQuads
	conf.Workers = 4
	return conf
}

func requireClusterBudgets(t *testing.T, h *ClusterHierarchy, maxQuads int) {
	for i, c := range h.Clusters {
		require.LessOrEqualf(t, len(c.Vertices), MAX_VERTICES_PER_CLUSTER, "cluster %d", i)
		require.LessOrEqualf(t, len(c.Quads), maxQuads, "cluster %d", i)
		for _, q := range c.Quads {
			for _, v := range q {
				require.Less(t, v, len(c.Vertices))
			}
		}
	}
}
