package clod

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	vec3d "github.com/flywave/go3d/float64/vec3"
)

// Range is a half open interval of positions in the sorted Morton codes.
type Range struct {
	Start int
	End   int
}

func (r Range) Size() int {
	return r.End - r.Start
}

// splitRange cuts a range at its median position.
func splitRange(r Range) (Range, Range) {
	mid := r.Start + r.Size()/2
	return Range{Start: r.Start, End: mid}, Range{Start: mid, End: r.End}
}

// HierarchyRange is a node of the range hierarchy. Nodes live in one arena and
// reference each other by index, -1 meaning none.
type HierarchyRange struct {
	Range     Range
	Parent    int32
	Left      int32
	Right     int32
	Counter   int
	ClusterID int32
}

func newHierarchyRange(r Range, parent int32) HierarchyRange {
	return HierarchyRange{Range: r, Parent: parent, Left: -1, Right: -1, ClusterID: -1}
}

func (r *HierarchyRange) IsLeaf() bool {
	return r.Left == -1 || r.Right == -1
}

// QuadMeshCluster is the build time form of a cluster: quads indexing a
// private vertex table of at most 256 entries.
type QuadMeshCluster struct {
	LODRoot  bool
	Left     int32
	Right    int32
	Depth    int
	Quads    [][4]int
	Vertices []vec3d.T
}

func (c *QuadMeshCluster) IsLeaf() bool {
	return c.Left == -1 || c.Right == -1
}

// ClusterHierarchy is the transient result of clustering one quad mesh.
type ClusterHierarchy struct {
	Codes            []MortonCode
	Ranges           []HierarchyRange
	LeafIDs          []int32
	Clusters         []QuadMeshCluster
	RootIDs          []int32
	GeometryBounds   BBox
	NumLeafVertices  int
	MaxSimplifyError float64
}

// BuildClusterHierarchy sorts the quads of mesh along a Morton curve, splits
// the order into ranges fitting one cluster each and merges sibling clusters
// bottom up into coarser ones.
func BuildClusterHierarchy(mesh *QuadMesh, conf Config) (*ClusterHierarchy, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if err := mesh.Validate(); err != nil {
		return nil, err
	}

	h := &ClusterHierarchy{GeometryBounds: EmptyBBox()}
	for _, q := range mesh.Quads {
		for _, v := range q {
			h.GeometryBounds.Extend(mesh.Vertices[v])
		}
	}

	h.Codes = MortonCodes(quadCentroids(mesh))
	SortMortonCodes(h.Codes)

	h.Ranges = append(h.Ranges, newHierarchyRange(Range{Start: 0, End: len(h.Codes)}, -1))
	h.extractRanges(0, mesh, conf.MaxQuadsPerCluster)
	logs.WithTag("ranges", len(h.Ranges)).
		WithTag("leaves", len(h.LeafIDs)).
		Debug("extracted cluster ranges")

	if err := h.createLeafClusters(mesh, conf); err != nil {
		return nil, err
	}
	if err := h.mergeBottomUp(conf); err != nil {
		return nil, err
	}

	h.extractClusterRoots(0)
	for _, id := range h.RootIDs {
		h.Clusters[id].LODRoot = true
	}
	logs.WithTag("clusters", len(h.Clusters)).
		WithTag("roots", len(h.RootIDs)).
		WithTag("max_simplify_error", h.MaxSimplifyError).
		Debug("built cluster hierarchy")
	return h, nil
}

// rangeFits reports whether the quads of r reference at most
// MAX_VERTICES_PER_CLUSTER distinct vertices.
func (h *ClusterHierarchy) rangeFits(r Range, mesh *QuadMesh) (int, bool) {
	seen := make(map[int]struct{}, MAX_VERTICES_PER_CLUSTER+4)
	for j := r.Start; j < r.End; j++ {
		for _, v := range mesh.Quads[h.Codes[j].Index] {
			seen[v] = struct{}{}
		}
		if len(seen) > MAX_VERTICES_PER_CLUSTER {
			return len(seen), false
		}
	}
	return len(seen), true
}

func (h *ClusterHierarchy) extractRanges(id int32, mesh *QuadMesh, threshold int) {
	r := h.Ranges[id].Range
	// A range of exactly threshold quads may still become one leaf.
	if r.Size() <= threshold {
		if n, fits := h.rangeFits(r, mesh); fits {
			h.LeafIDs = append(h.LeafIDs, id)
			h.NumLeafVertices += n
			return
		}
	}

	left, right := splitRange(r)
	leftID := int32(len(h.Ranges))
	h.Ranges = append(h.Ranges, newHierarchyRange(left, id))
	rightID := int32(len(h.Ranges))
	h.Ranges = append(h.Ranges, newHierarchyRange(right, id))

	h.Ranges[id].Left = leftID
	h.Ranges[id].Right = rightID

	h.extractRanges(leftID, mesh, threshold)
	h.extractRanges(rightID, mesh, threshold)
}

func (h *ClusterHierarchy) createLeafClusters(mesh *QuadMesh, conf Config) error {
	for _, id := range h.LeafIDs {
		r := h.Ranges[id].Range
		cluster := QuadMeshCluster{Left: -1, Right: -1}

		local := make(map[int]int, MAX_VERTICES_PER_CLUSTER)
		remap := func(v int) int {
			if l, ok := local[v]; ok {
				return l
			}
			l := len(cluster.Vertices)
			local[v] = l
			cluster.Vertices = append(cluster.Vertices, mesh.Vertices[v])
			return l
		}

		for j := r.Start; j < r.End; j++ {
			q := mesh.Quads[h.Codes[j].Index]
			cluster.Quads = append(cluster.Quads, [4]int{remap(q[0]), remap(q[1]), remap(q[2]), remap(q[3])})
		}

		if len(cluster.Quads) > conf.MaxQuadsPerCluster {
			return errors.New("leaf cluster exceeds quad budget").
				WithType(ErrTypeCapacityViolation).
				WithTag("range", id).
				WithTag("quads", len(cluster.Quads)).
				WithTag("max_quads", conf.MaxQuadsPerCluster)
		}
		if len(cluster.Vertices) > MAX_VERTICES_PER_CLUSTER {
			return errors.New("leaf cluster exceeds vertex budget").
				WithType(ErrTypeCapacityViolation).
				WithTag("range", id).
				WithTag("vertices", len(cluster.Vertices))
		}

		h.Ranges[id].ClusterID = int32(len(h.Clusters))
		h.Clusters = append(h.Clusters, cluster)
	}
	return nil
}

// mergeBottomUp merges the clusters of two siblings as soon as both exist.
// A merged node feeds its own parent in turn, up to conf.MaxMergeDepth levels.
func (h *ClusterHierarchy) mergeBottomUp(conf Config) error {
	queue := append([]int32(nil), h.LeafIDs...)
	for i := 0; i < len(queue); i++ {
		parentID := h.Ranges[queue[i]].Parent
		if parentID == -1 {
			continue
		}
		parent := &h.Ranges[parentID]
		parent.Counter++
		if parent.Counter != 2 {
			continue
		}

		leftClusterID := h.Ranges[parent.Left].ClusterID
		rightClusterID := h.Ranges[parent.Right].ClusterID
		left := &h.Clusters[leftClusterID]
		right := &h.Clusters[rightClusterID]

		depth := left.Depth
		if right.Depth > depth {
			depth = right.Depth
		}
		depth++
		if conf.MaxMergeDepth > 0 && depth > conf.MaxMergeDepth {
			continue
		}

		merged, resultError, err := mergeSimplifyClusters(left, right, conf)
		if err != nil {
			return errors.New("merging clusters failed").
				WithType(errors.Type(err)).
				WithTag("range", parentID).
				WithTag("left_cluster", leftClusterID).
				WithTag("right_cluster", rightClusterID).
				Wrap(err)
		}
		if resultError > h.MaxSimplifyError {
			h.MaxSimplifyError = resultError
		}

		merged.Left = leftClusterID
		merged.Right = rightClusterID
		merged.Depth = depth
		parent.ClusterID = int32(len(h.Clusters))
		h.Clusters = append(h.Clusters, merged)
		queue = append(queue, parentID)
	}
	return nil
}

// extractClusterRoots collects the topmost cluster of every path from the
// hierarchy root. Those clusters are not reduced any further.
func (h *ClusterHierarchy) extractClusterRoots(id int32) {
	r := &h.Ranges[id]
	if r.ClusterID != -1 {
		h.RootIDs = append(h.RootIDs, r.ClusterID)
		return
	}
	if r.Left != -1 {
		h.extractClusterRoots(r.Left)
	}
	if r.Right != -1 {
		h.extractClusterRoots(r.Right)
	}
}
