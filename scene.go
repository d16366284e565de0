package clod

import (
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	vec3d "github.com/flywave/go3d/float64/vec3"
	"github.com/google/uuid"
)

// Scene owns every buffer handed to the tracer: the grid patches with their
// per frame states and the compressed meshes with their cluster descriptors.
//
// Building (AddGrid, AddQuadMesh) and Update must not run concurrently with
// each other. The compressed buffers are read only once built.
type Scene struct {
	ID             uuid.UUID
	Bounds         BBox
	MinLODDistance float64

	Patches   []Patch
	GridStats []GridStats

	// States has room for every patch at the finest subdivision. Only the
	// first ActiveStates entries belong to the current frame.
	States []PatchState

	Meshes       []*CompressedMesh
	MeshStats    []MeshStats
	Clusters     []ClusterDescriptor
	ClusterRoots []int32

	conf      Config
	numStates atomic.Uint32
	pool      pond.Pool
	closed    atomic.Bool
}

func NewScene(conf Config) (*Scene, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &Scene{
		ID:             uuid.New(),
		Bounds:         EmptyBBox(),
		MinLODDistance: 1,
		conf:           conf,
		pool:           pond.NewPool(conf.Workers),
	}, nil
}

func (s *Scene) Config() Config {
	return s.conf
}

// Close stops the selection workers. Update fails once the scene is closed.
func (s *Scene) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.pool.StopAndWait()
	}
}

func (s *Scene) extendBounds(b BBox) {
	s.Bounds.Join(b)
	size := s.Bounds.Size()
	if l := size.Length(); l > 0 {
		s.MinLODDistance = l / s.conf.RelativeMinLODDistanceFactor
	}
}

// AddGrid cuts g into patches and grows the state array to their worst case.
func (s *Scene) AddGrid(g *Grid) (GridStats, error) {
	if err := g.Validate(s.conf.PatchQuads); err != nil {
		instrumentBuildError(buildKindGrid, err)
		return GridStats{}, err
	}

	gridID := int32(len(s.GridStats))
	patches, bounds, stats := buildPatches(g, gridID, int32(len(s.Patches)), s.conf.PatchQuads)
	s.Patches = append(s.Patches, patches...)
	s.GridStats = append(s.GridStats, stats)
	s.States = make([]PatchState, MAX_STATES_PER_PATCH*len(s.Patches))
	s.numStates.Store(0)
	s.extendBounds(bounds)

	if stats.NumOverThreshold > 0 {
		logs.WithTag("scene", s.ID).
			WithTag("grid", gridID).
			WithTag("vertices", stats.NumOverThreshold).
			WithTag("max_error", stats.MaxError).
			Warn("grid vertices exceed the encoding error threshold")
	}
	logs.WithTag("scene", s.ID).
		WithTag("grid", gridID).
		WithTag("res_x", g.ResX).
		WithTag("res_y", g.ResY).
		WithTag("patches", stats.NumPatches).
		WithTag("avg_error", stats.AvgError).
		WithTag("max_error", stats.MaxError).
		WithTag("min_lod_distance", s.MinLODDistance).
		Info("grid added")
	instrumentBuild(buildKindGrid)
	return stats, nil
}

// AddQuadMesh clusters and compresses mesh. Nothing is added to the scene
// when any step fails.
func (s *Scene) AddQuadMesh(mesh *QuadMesh) (MeshStats, error) {
	h, err := BuildClusterHierarchy(mesh, s.conf)
	if err != nil {
		instrumentBuildError(buildKindMesh, err)
		return MeshStats{}, err
	}

	meshID := int32(len(s.Meshes))
	cm, descriptors, roots, stats, err := compressHierarchy(meshID, int32(len(s.Clusters)), h)
	if err != nil {
		instrumentBuildError(buildKindMesh, err)
		return MeshStats{}, err
	}

	s.Meshes = append(s.Meshes, cm)
	s.MeshStats = append(s.MeshStats, stats)
	s.Clusters = append(s.Clusters, descriptors...)
	s.ClusterRoots = append(s.ClusterRoots, roots...)
	s.extendBounds(cm.Bounds)

	logs.WithTag("scene", s.ID).
		WithTag("mesh", meshID).
		WithTag("quads", len(mesh.Quads)).
		WithTag("clusters", stats.NumClusters).
		WithTag("roots", stats.NumRoots).
		WithTag("compressed_bytes", stats.CompressedBytes).
		WithTag("uncompressed_bytes", stats.UncompressedBytes).
		WithTag("blocks", stats.DecompressedBlocks).
		Info("quad mesh added")
	instrumentBuild(buildKindMesh)
	instrumentClusters(len(s.Clusters), len(s.ClusterRoots))
	return stats, nil
}

// FrameStats summarizes one Update.
type FrameStats struct {
	ActiveStates int           `json:"active_states"`
	Capacity     int           `json:"capacity"`
	Triangles    int           `json:"triangles"`
	CracksFixed  int           `json:"cracks_fixed"`
	Duration     time.Duration `json:"duration"`
}

// Update rebuilds the patch states for camera. Every patch is selected on the
// worker pool and Update returns once all of them are written.
func (s *Scene) Update(camera Camera) (FrameStats, error) {
	if s.closed.Load() {
		return FrameStats{}, errors.New("scene is closed").
			WithType(ErrTypeSceneClosed).
			WithTag("scene", s.ID)
	}

	start := time.Now()
	s.numStates.Store(0)

	sel := &frameSelection{
		patches:     s.Patches,
		camera:      camera,
		minDistance: s.MinLODDistance,
		patchQuads:  s.conf.PatchQuads,
		screenSpace: s.conf.ScreenSpaceEdges,
		states:      s.States,
		count:       &s.numStates,
	}

	if len(s.Patches) > 0 {
		group := s.pool.NewGroup()
		for i := range s.Patches {
			group.Submit(func() {
				sel.selectPatch(i)
			})
		}
		if err := group.Wait(); err != nil {
			s.numStates.Store(0)
			return FrameStats{}, errors.New("selecting patches failed").
				WithType(ErrTypeSceneClosed).
				WithTag("scene", s.ID).
				Wrap(err)
		}
	}

	if sel.overflow.Load() {
		written := s.numStates.Load()
		s.numStates.Store(0)
		return FrameStats{}, errors.New("patch states exceed the state array").
			WithType(ErrTypeAllocationOverflow).
			WithTag("states", written).
			WithTag("capacity", len(s.States))
	}

	n := int(s.numStates.Load())
	sub := sel.subPatchQuads()
	stats := FrameStats{
		ActiveStates: n,
		Capacity:     len(s.States),
		Triangles:    n * sub * sub * 2,
		CracksFixed:  int(sel.cracks.Load()),
		Duration:     time.Since(start),
	}
	instrumentFrame(stats.ActiveStates, stats.CracksFixed, start)
	logs.WithTag("scene", s.ID).
		WithTag("states", stats.ActiveStates).
		WithTag("capacity", stats.Capacity).
		WithTag("cracks_fixed", stats.CracksFixed).
		Debug("frame selected")
	return stats, nil
}

// ActiveStates returns the states of the last frame.
func (s *Scene) ActiveStates() []PatchState {
	return s.States[:s.numStates.Load()]
}

// Roots returns the descriptors of the LOD root clusters.
func (s *Scene) Roots() []ClusterDescriptor {
	roots := make([]ClusterDescriptor, 0, len(s.ClusterRoots))
	for _, id := range s.ClusterRoots {
		roots = append(roots, s.Clusters[id])
	}
	return roots
}

// DebugInfo is the per state metadata exposed for diagnostic rendering.
type DebugInfo struct {
	PatchID     int32
	GridID      int32
	SubPatchID  uint8
	Step        uint8
	Level       uint8
	Blend       float64
	CracksFixed bool
}

func (s *Scene) DebugInfo(i int) (DebugInfo, error) {
	if i < 0 || i >= int(s.numStates.Load()) {
		return DebugInfo{}, errors.New("state index out of range").
			WithType(ErrTypeInvalidInput).
			WithTag("index", i).
			WithTag("states", s.numStates.Load())
	}
	st := &s.States[i]
	return DebugInfo{
		PatchID:     st.PatchID,
		GridID:      s.Patches[st.PatchID].GridID,
		SubPatchID:  st.LocalID,
		Step:        st.Step,
		Level:       st.Level,
		Blend:       float64(st.Blend) / 255,
		CracksFixed: st.CracksFixed(),
	}, nil
}

// DecodeCluster reconstructs the quads of cluster id.
func (s *Scene) DecodeCluster(id int32) ([][4]vec3d.T, error) {
	if id < 0 || int(id) >= len(s.Clusters) {
		return nil, errors.New("cluster id out of range").
			WithType(ErrTypeInvalidInput).
			WithTag("cluster", id).
			WithTag("clusters", len(s.Clusters))
	}
	d := s.Clusters[id]
	return s.Meshes[d.MeshID].DecodeCluster(d)
}
