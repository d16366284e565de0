package clod

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	vec3d "github.com/flywave/go3d/float64/vec3"
	"github.com/stretchr/testify/require"
)

func TestGridValidate(t *testing.T) {
	tests := []struct {
		name string
		grid *Grid
		ok   bool
	}{
		{
			name: "exact patch",
			grid: planeGrid(5),
			ok:   true,
		},
		{
			name: "smaller than a patch",
			grid: planeGrid(4),
		},
		{
			name: "missing positions",
			grid: &Grid{ResX: 5, ResY: 5, Positions: make([]vec3d.T, 24)},
		},
		{
			name: "single row",
			grid: &Grid{ResX: 5, ResY: 1, Positions: make([]vec3d.T, 5)},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.grid.Validate(4)
			if test.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Equal(t, ErrTypeInvalidInput, errors.Type(err))
		})
	}
}

func TestBuildPatchesLayout(t *testing.T) {
	g := planeGrid(17)
	patches, bounds, stats := buildPatches(g, 3, 10, 4)
	require.Len(t, patches, 16)
	require.Equal(t, 16, stats.NumPatches)
	require.Equal(t, 16*25, stats.NumVertices)

	for i, p := range patches {
		px, py := i%4, i/4
		require.Equal(t, int32(10+i), p.ID)
		require.Equal(t, int32(3), p.GridID)

		border := 0
		if px == 0 || px == 3 {
			border++
		}
		if py == 0 || py == 3 {
			border++
		}
		require.Equalf(t, 4-border, p.NeighborCount(), "patch %d", i)
	}

	p := patches[5]
	require.Equal(t, [4]int32{11, 16, 19, 14}, p.Neighbors)
	require.Equal(t, [2]float64{0.25, 0.5}, p.URange)
	require.Equal(t, [2]float64{0.25, 0.5}, p.VRange)
	require.Equal(t, vec3d.T{4, 4, 0}, p.V0)
	require.Equal(t, vec3d.T{8, 4, 0}, p.V1)
	require.Equal(t, vec3d.T{8, 8, 0}, p.V2)
	require.Equal(t, vec3d.T{4, 8, 0}, p.V3)
	require.Equal(t, vec3d.T{6, 6, 0}, p.Center())

	require.Equal(t, [4]int32{-1, 11, 14, -1}, patches[0].Neighbors)
	require.Equal(t, [4]int32{21, -1, -1, 24}, patches[15].Neighbors)

	require.Equal(t, vec3d.T{0, 0, 0}, bounds.Lower)
	require.InDelta(t, 16, bounds.Upper[0], 1e-9)
	require.InDelta(t, 16, bounds.Upper[1], 1e-9)
}

func TestBuildPatchesEncoding(t *testing.T) {
	g := planeGrid(9)
	for i := range g.Positions {
		g.Positions[i][2] = float64(i%7) * 0.3
	}

	patches, _, stats := buildPatches(g, 0, 0, 4)
	require.Len(t, patches, 4)
	require.Zero(t, stats.NumOverThreshold)
	require.Less(t, stats.MaxError, 1e-3)
	require.LessOrEqual(t, stats.AvgError, stats.MaxError)

	p := patches[3]
	for y := 0; y <= p.Res; y++ {
		for x := 0; x <= p.Res; x++ {
			src := g.vertex(4+x, 4+y)
			got := p.Decode(x, y)
			for axis := 0; axis < 3; axis++ {
				require.InDelta(t, src[axis], got[axis], 1e-3)
			}
		}
	}
}

func TestBuildPatchesSkipsPartialPatches(t *testing.T) {
	g := planeGrid(11)
	patches, _, _ := buildPatches(g, 0, 0, 4)
	require.Len(t, patches, 4)
	require.Equal(t, [2]float64{0.4, 0.8}, patches[1].URange)
}
