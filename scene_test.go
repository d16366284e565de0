package clod

import (
	"math"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	vec3d "github.com/flywave/go3d/float64/vec3"
	"github.com/stretchr/testify/require"
)

func newTestScene(t *testing.T, conf Config) *Scene {
	s, err := NewScene(conf)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func sceneConfig() Config {
	conf := testConfig(64)
	conf.PatchQuads = 4
	return conf
}

func lookAt(from, to vec3d.T) Camera {
	return NewCamera(from, to, vec3d.T{0, 0, 1}, math.Pi/3, 640, 480)
}

func TestNewSceneRejectsConfig(t *testing.T) {
	conf := sceneConfig()
	conf.PatchQuads = 6
	_, err := NewScene(conf)
	require.Error(t, err)
	require.Equal(t, ErrTypeInvalidInput, errors.Type(err))
}

func TestSceneAddGrid(t *testing.T) {
	s := newTestScene(t, sceneConfig())

	stats, err := s.AddGrid(planeGrid(17))
	require.NoError(t, err)
	require.Equal(t, 16, stats.NumPatches)
	require.Len(t, s.Patches, 16)
	require.Len(t, s.States, 16*MAX_STATES_PER_PATCH)
	require.InDelta(t, 16*math.Sqrt2/DEFAULT_RELATIVE_MIN_LOD_DISTANCE_FACTOR, s.MinLODDistance, 1e-9)

	_, err = s.AddGrid(planeGrid(3))
	require.Error(t, err)
	require.Equal(t, ErrTypeInvalidInput, errors.Type(err))
	require.Len(t, s.Patches, 16)
}

func TestSceneUpdateFarCamera(t *testing.T) {
	s := newTestScene(t, sceneConfig())
	_, err := s.AddGrid(planeGrid(17))
	require.NoError(t, err)

	stats, err := s.Update(lookAt(vec3d.T{8, 8, 1000}, vec3d.T{8, 8, 0}))
	require.NoError(t, err)
	require.Equal(t, 16, stats.ActiveStates)
	require.Equal(t, 16*MAX_STATES_PER_PATCH, stats.Capacity)
	require.Equal(t, 32, stats.Triangles)
	require.Zero(t, stats.CracksFixed)

	seen := make(map[int32]bool)
	for _, st := range s.ActiveStates() {
		require.Equal(t, uint8(0), st.Level)
		require.Equal(t, uint8(MAX_SUBDIVISION), st.Step)
		require.False(t, seen[st.PatchID])
		seen[st.PatchID] = true
	}
	require.Len(t, seen, 16)
}

func TestSceneUpdateNearCamera(t *testing.T) {
	s := newTestScene(t, sceneConfig())
	_, err := s.AddGrid(planeGrid(17))
	require.NoError(t, err)
	for i := range s.States {
		s.States[i].PatchID = -1
	}

	camera := lookAt(vec3d.T{0, 0, 0.1}, vec3d.T{8, 8, 0})
	stats, err := s.Update(camera)
	require.NoError(t, err)

	expected := 0
	levels := make(map[int32]uint8)
	for i := range s.Patches {
		p := &s.Patches[i]
		l := patchLevel(p.Center(), camera.Position, s.MinLODDistance).Level
		levels[p.ID] = l
		expected += Subdivision(l) * Subdivision(l)
	}
	require.Equal(t, expected, stats.ActiveStates)
	require.Greater(t, stats.CracksFixed, 0)
	for i := stats.ActiveStates; i < len(s.States); i++ {
		require.Equal(t, int32(-1), s.States[i].PatchID)
	}

	// Each patch owns one contiguous run covering all of its sub-patches.
	active := s.ActiveStates()
	runs := make(map[int32]int)
	for i := 0; i < len(active); {
		id := active[i].PatchID
		require.NotEqual(t, int32(-1), id)
		_, dup := runs[id]
		require.False(t, dup)

		l := levels[id]
		n := Subdivision(l) * Subdivision(l)
		covered := make(map[[2]uint16]bool)
		for j := 0; j < n; j++ {
			st := active[i+j]
			require.Equal(t, id, st.PatchID)
			require.Equal(t, l, st.Level)
			require.Equal(t, uint8(j), st.LocalID)
			covered[[2]uint16{st.StartX, st.StartY}] = true
		}
		require.Len(t, covered, n)
		runs[id] = i
		i += n
	}
	require.Len(t, runs, len(s.Patches))

	// Edges shared by two patches agree on their level.
	opposite := [4]int{NEIGHBOR_BOTTOM, NEIGHBOR_LEFT, NEIGHBOR_TOP, NEIGHBOR_RIGHT}
	for _, st := range active {
		p := &s.Patches[st.PatchID]
		for side, n := range p.Neighbors {
			if n == -1 {
				continue
			}
			other := active[runs[n]]
			require.Equal(t, min(levels[p.ID], levels[n]), st.EdgeLevels.At(side))
			require.Equal(t, st.EdgeLevels.At(side), other.EdgeLevels.At(opposite[side]))
		}
	}
}

func TestSceneUpdateScreenSpaceEdges(t *testing.T) {
	conf := sceneConfig()
	conf.ScreenSpaceEdges = true
	s := newTestScene(t, conf)
	_, err := s.AddGrid(planeGrid(17))
	require.NoError(t, err)

	_, err = s.Update(lookAt(vec3d.T{1, 1, 0.5}, vec3d.T{8, 8, 0}))
	require.NoError(t, err)

	active := s.ActiveStates()
	first := make(map[int32]PatchState)
	for _, st := range active {
		if _, ok := first[st.PatchID]; !ok {
			first[st.PatchID] = st
		}
	}
	opposite := [4]int{NEIGHBOR_BOTTOM, NEIGHBOR_LEFT, NEIGHBOR_TOP, NEIGHBOR_RIGHT}
	for id, st := range first {
		for side, n := range s.Patches[id].Neighbors {
			if n == -1 {
				continue
			}
			require.LessOrEqual(t, st.EdgeLevels.At(side), st.Level)
			require.Equal(t, st.EdgeLevels.At(side), first[n].EdgeLevels.At(opposite[side]))
		}
	}
}

func TestSceneUpdateResetsStates(t *testing.T) {
	s := newTestScene(t, sceneConfig())
	_, err := s.AddGrid(planeGrid(17))
	require.NoError(t, err)

	near, err := s.Update(lookAt(vec3d.T{0, 0, 0.1}, vec3d.T{8, 8, 0}))
	require.NoError(t, err)
	far, err := s.Update(lookAt(vec3d.T{8, 8, 1000}, vec3d.T{8, 8, 0}))
	require.NoError(t, err)
	require.Greater(t, near.ActiveStates, far.ActiveStates)
	require.Len(t, s.ActiveStates(), 16)

	again, err := s.Update(lookAt(vec3d.T{8, 8, 1000}, vec3d.T{8, 8, 0}))
	require.NoError(t, err)
	require.Equal(t, far.ActiveStates, again.ActiveStates)
}

func TestSceneUpdateOverflow(t *testing.T) {
	s := newTestScene(t, sceneConfig())
	_, err := s.AddGrid(planeGrid(17))
	require.NoError(t, err)
	s.States = s.States[:8]

	_, err = s.Update(lookAt(vec3d.T{0, 0, 0.1}, vec3d.T{8, 8, 0}))
	require.Error(t, err)
	require.Equal(t, ErrTypeAllocationOverflow, errors.Type(err))
	require.Empty(t, s.ActiveStates())
}

func TestSceneDebugInfo(t *testing.T) {
	s := newTestScene(t, sceneConfig())
	_, err := s.AddGrid(planeGrid(17))
	require.NoError(t, err)

	_, err = s.DebugInfo(0)
	require.Error(t, err)

	stats, err := s.Update(lookAt(vec3d.T{0, 0, 0.1}, vec3d.T{8, 8, 0}))
	require.NoError(t, err)

	info, err := s.DebugInfo(0)
	require.NoError(t, err)
	st := s.ActiveStates()[0]
	require.Equal(t, st.PatchID, info.PatchID)
	require.Equal(t, int32(0), info.GridID)
	require.Equal(t, st.Level, info.Level)
	require.Equal(t, st.LocalID, info.SubPatchID)
	require.Equal(t, st.CracksFixed(), info.CracksFixed)
	require.GreaterOrEqual(t, info.Blend, 0.0)
	require.LessOrEqual(t, info.Blend, 1.0)

	_, err = s.DebugInfo(stats.ActiveStates)
	require.Error(t, err)
	require.Equal(t, ErrTypeInvalidInput, errors.Type(err))
	_, err = s.DebugInfo(-1)
	require.Error(t, err)
}

func TestSceneAddQuadMesh(t *testing.T) {
	s := newTestScene(t, sceneConfig())

	stats, err := s.AddQuadMesh(quadGridMesh(10, 8))
	require.NoError(t, err)
	require.Equal(t, 3, stats.NumClusters)
	require.Equal(t, 1, stats.NumRoots)
	require.Len(t, s.Clusters, 3)
	require.Len(t, s.Meshes, 1)
	require.Equal(t, stats.NumVertices*COMPRESSED_VERTEX_SIZE+stats.NumQuads*COMPRESSED_QUAD_INDICES_SIZE, stats.CompressedBytes)
	require.Equal(t, stats.NumQuads*UNCOMPRESSED_QUAD_SIZE, stats.UncompressedBytes)

	roots := s.Roots()
	require.Len(t, roots, 1)
	require.True(t, roots[0].LODRoot)
	require.False(t, roots[0].IsLeaf())

	for i, d := range s.Clusters {
		require.Equal(t, int32(i), d.ID)
		require.LessOrEqual(t, d.NumVertices, uint32(MAX_VERTICES_PER_CLUSTER))
		require.LessOrEqual(t, d.NumQuads, uint32(64))
		require.Equal(t, decompressedBlocks(int(d.NumQuads)), d.NumBlocks)
	}
	leaf := s.Clusters[roots[0].LODLeft]
	require.True(t, leaf.IsLeaf())
	require.Equal(t, uint32(40), leaf.NumQuads)
	require.Equal(t, uint32(31), leaf.NumBlocks)

	quads, err := s.DecodeCluster(leaf.ID)
	require.NoError(t, err)
	require.Len(t, quads, 40)
	for _, q := range quads {
		for _, v := range q {
			require.InDelta(t, math.Round(v[0]), v[0], 1e-3)
			require.InDelta(t, math.Round(v[1]), v[1], 1e-3)
			require.Equal(t, 0.0, v[2])
			require.True(t, leaf.Bounds.Lower[0] <= v[0]+1e-3 && v[0] <= leaf.Bounds.Upper[0]+1e-3)
		}
	}

	_, err = s.DecodeCluster(3)
	require.Error(t, err)
	require.Equal(t, ErrTypeInvalidInput, errors.Type(err))
}

func TestSceneAddSecondMeshOffsetsIDs(t *testing.T) {
	s := newTestScene(t, sceneConfig())
	_, err := s.AddQuadMesh(quadGridMesh(10, 8))
	require.NoError(t, err)
	_, err = s.AddQuadMesh(quadGridMesh(2, 2))
	require.NoError(t, err)

	require.Len(t, s.Clusters, 4)
	require.Equal(t, []int32{2, 3}, s.ClusterRoots)
	last := s.Clusters[3]
	require.Equal(t, int32(1), last.MeshID)
	require.Equal(t, uint32(0), last.OffsetIndices)
	require.True(t, last.LODRoot)

	_, err = s.Meshes[0].DecodeCluster(last)
	require.Error(t, err)
}

func TestSceneAddQuadMeshFailureKeepsScene(t *testing.T) {
	conf := sceneConfig()
	conf.Decimator = identityDecimator{}
	s := newTestScene(t, conf)

	_, err := s.AddQuadMesh(quadGridMesh(10, 8))
	require.Error(t, err)
	require.Equal(t, ErrTypeCapacityViolation, errors.Type(err))
	require.Empty(t, s.Clusters)
	require.Empty(t, s.Meshes)
	require.True(t, s.Bounds.Empty())
}

func TestSceneUpdateAfterClose(t *testing.T) {
	s := newTestScene(t, sceneConfig())
	_, err := s.AddGrid(planeGrid(17))
	require.NoError(t, err)
	s.Close()

	done := make(chan error, 1)
	go func() {
		_, err := s.Update(lookAt(vec3d.T{8, 8, 1000}, vec3d.T{8, 8, 0}))
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		require.Equal(t, ErrTypeSceneClosed, errors.Type(err))
	case <-time.After(2 * time.Second):
		t.Fatal("update did not return after close")
	}
	require.Empty(t, s.ActiveStates())
}

func TestSceneUpdateWithoutPatches(t *testing.T) {
	s := newTestScene(t, sceneConfig())

	stats, err := s.Update(lookAt(vec3d.T{0, 0, 10}, vec3d.T{0, 0, 0}))
	require.NoError(t, err)
	require.Zero(t, stats.ActiveStates)
	require.Zero(t, stats.Capacity)
}
