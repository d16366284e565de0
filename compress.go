package clod

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	vec3d "github.com/flywave/go3d/float64/vec3"
)

const (
	COMPRESSED_VERTEX_SIZE       = 3 * 2
	COMPRESSED_QUAD_INDICES_SIZE = 4
	UNCOMPRESSED_QUAD_SIZE       = 4 * 3 * 4
)

// CompressedMesh owns the vertex and index buffers shared by every cluster
// built from one source mesh. Clusters reference disjoint ranges of both.
// Vertices are quantized against Bounds.
type CompressedMesh struct {
	ID          int32
	Bounds      BBox
	NumQuads    uint32
	NumVertices uint32
	Vertices    []CompressedVertex
	Indices     []CompressedQuadIndices
}

// ClusterDescriptor is the runtime form of a cluster. ID and the LOD links
// are scene wide descriptor indices; -1 means no child.
type ClusterDescriptor struct {
	ID             int32
	MeshID         int32
	OffsetIndices  uint32
	OffsetVertices uint32
	NumQuads       uint32
	NumVertices    uint32
	NumBlocks      uint32
	LODLeft        int32
	LODRight       int32
	LODRoot        bool
	Bounds         BBox
}

func (d *ClusterDescriptor) IsLeaf() bool {
	return d.LODLeft == -1 || d.LODRight == -1
}

// MeshStats summarizes the compression of one mesh.
type MeshStats struct {
	NumClusters        int     `json:"clusters"`
	NumRoots           int     `json:"roots"`
	NumQuads           int     `json:"quads"`
	NumVertices        int     `json:"vertices"`
	UncompressedBytes  int     `json:"uncompressed_bytes"`
	CompressedBytes    int     `json:"compressed_bytes"`
	DescriptorBytes    int     `json:"descriptor_bytes"`
	DecompressedBlocks int     `json:"decompressed_blocks"`
	MaxSimplifyError   float64 `json:"max_simplify_error"`
}

// decompressedBlocks is the number of 64 byte blocks a cluster of numQuads
// quads occupies once decompressed for traversal.
func decompressedBlocks(numQuads int) uint32 {
	size := DECOMPRESSED_CLUSTER_HEADER_SIZE + numQuads*DECOMPRESSED_QUAD_SIZE
	return uint32((size + DECOMPRESSED_BLOCK_SIZE - 1) / DECOMPRESSED_BLOCK_SIZE)
}

func clusterBounds(c *QuadMeshCluster) BBox {
	b := EmptyBBox()
	for _, q := range c.Quads {
		for _, v := range q {
			b.Extend(c.Vertices[v])
		}
	}
	return b
}

// compressHierarchy quantizes every cluster of h into one CompressedMesh.
// Descriptor ids start at firstID so that several meshes share one scene wide
// descriptor table. The returned roots are descriptor ids.
func compressHierarchy(meshID int32, firstID int32, h *ClusterHierarchy) (*CompressedMesh, []ClusterDescriptor, []int32, MeshStats, error) {
	numQuads, numVertices := 0, 0
	for i := range h.Clusters {
		numQuads += len(h.Clusters[i].Quads)
		numVertices += len(h.Clusters[i].Vertices)
	}

	mesh := &CompressedMesh{
		ID:          meshID,
		Bounds:      h.GeometryBounds,
		NumQuads:    uint32(numQuads),
		NumVertices: uint32(numVertices),
		Vertices:    make([]CompressedVertex, 0, numVertices),
		Indices:     make([]CompressedQuadIndices, 0, numQuads),
	}
	lower := mesh.Bounds.Lower
	invExtent := mesh.Bounds.InvExtent()

	link := func(child int32) int32 {
		if child == -1 {
			return -1
		}
		return firstID + child
	}

	descriptors := make([]ClusterDescriptor, 0, len(h.Clusters))
	stats := MeshStats{
		NumClusters:      len(h.Clusters),
		NumRoots:         len(h.RootIDs),
		NumQuads:         numQuads,
		NumVertices:      numVertices,
		MaxSimplifyError: h.MaxSimplifyError,
	}
	for i := range h.Clusters {
		c := &h.Clusters[i]
		if len(c.Vertices) > MAX_VERTICES_PER_CLUSTER {
			return nil, nil, nil, MeshStats{}, errors.New("cluster exceeds vertex budget").
				WithType(ErrTypeCapacityViolation).
				WithTag("cluster", i).
				WithTag("vertices", len(c.Vertices))
		}

		d := ClusterDescriptor{
			ID:             firstID + int32(i),
			MeshID:         meshID,
			OffsetIndices:  uint32(len(mesh.Indices)),
			OffsetVertices: uint32(len(mesh.Vertices)),
			NumQuads:       uint32(len(c.Quads)),
			NumVertices:    uint32(len(c.Vertices)),
			NumBlocks:      decompressedBlocks(len(c.Quads)),
			LODLeft:        link(c.Left),
			LODRight:       link(c.Right),
			LODRoot:        c.LODRoot,
			Bounds:         clusterBounds(c),
		}
		for _, v := range c.Vertices {
			mesh.Vertices = append(mesh.Vertices, NewCompressedVertex(v, lower, invExtent))
		}
		for _, q := range c.Quads {
			mesh.Indices = append(mesh.Indices, NewCompressedQuadIndices(q))
		}
		descriptors = append(descriptors, d)
		stats.DecompressedBlocks += int(d.NumBlocks)
	}

	roots := make([]int32, 0, len(h.RootIDs))
	for _, id := range h.RootIDs {
		roots = append(roots, firstID+id)
	}

	stats.UncompressedBytes = numQuads * UNCOMPRESSED_QUAD_SIZE
	stats.CompressedBytes = numVertices*COMPRESSED_VERTEX_SIZE + numQuads*COMPRESSED_QUAD_INDICES_SIZE
	stats.DescriptorBytes = len(descriptors) * CLUSTER_DESCRIPTOR_SIZE
	return mesh, descriptors, roots, stats, nil
}

// DecodeCluster reconstructs the quads of the cluster described by d as
// positions. mesh must be the mesh d.MeshID refers to.
func (m *CompressedMesh) DecodeCluster(d ClusterDescriptor) ([][4]vec3d.T, error) {
	if d.MeshID != m.ID {
		return nil, errors.New("cluster belongs to another mesh").
			WithType(ErrTypeInvalidInput).
			WithTag("cluster", d.ID).
			WithTag("cluster_mesh", d.MeshID).
			WithTag("mesh", m.ID)
	}
	if uint64(d.OffsetIndices)+uint64(d.NumQuads) > uint64(len(m.Indices)) ||
		uint64(d.OffsetVertices)+uint64(d.NumVertices) > uint64(len(m.Vertices)) {
		return nil, errors.New("cluster range exceeds mesh buffers").
			WithType(ErrTypeMalformedData).
			WithTag("cluster", d.ID)
	}

	lower := m.Bounds.Lower
	extent := m.Bounds.Size()
	vertices := m.Vertices[d.OffsetVertices : d.OffsetVertices+d.NumVertices]
	quads := make([][4]vec3d.T, 0, d.NumQuads)
	for _, ci := range m.Indices[d.OffsetIndices : d.OffsetIndices+d.NumQuads] {
		var q [4]vec3d.T
		for k, v := range ci.Indices() {
			if v >= len(vertices) {
				return nil, errors.New("quad index exceeds cluster vertex table").
					WithType(ErrTypeMalformedData).
					WithTag("cluster", d.ID).
					WithTag("index", v)
			}
			q[k] = vertices[v].Decode(lower, extent)
		}
		quads = append(quads, q)
	}
	return quads, nil
}
