package clod

import (
	"testing"

	vec3d "github.com/flywave/go3d/float64/vec3"
	"github.com/stretchr/testify/require"
)

func TestBitInterleave(t *testing.T) {
	tests := []struct {
		x, y, z uint32
		code    uint64
	}{
		{x: 0, y: 0, z: 0, code: 0},
		{x: 1, y: 0, z: 0, code: 1},
		{x: 0, y: 1, z: 0, code: 2},
		{x: 0, y: 0, z: 1, code: 4},
		{x: 2, y: 0, z: 0, code: 8},
		{x: 3, y: 3, z: 3, code: 63},
		{x: MORTON_GRID_SIZE - 1, y: MORTON_GRID_SIZE - 1, z: MORTON_GRID_SIZE - 1, code: 1<<63 - 1},
	}

	for _, test := range tests {
		require.Equal(t, test.code, bitInterleave64(test.x, test.y, test.z))
	}
}

func TestMortonCodesFollowSpace(t *testing.T) {
	centroids := []vec3d.T{
		{1, 1, 1},
		{0, 0, 0},
		{0.1, 0.1, 0.1},
		{0.9, 0.9, 0.9},
	}
	codes := MortonCodes(centroids)
	require.Len(t, codes, 4)
	for i, c := range codes {
		require.Equal(t, uint32(i), c.Index)
	}

	SortMortonCodes(codes)
	order := []uint32{codes[0].Index, codes[1].Index, codes[2].Index, codes[3].Index}
	require.Equal(t, []uint32{1, 2, 3, 0}, order)
}

func TestSortMortonCodesIsStableAndIdempotent(t *testing.T) {
	centroids := []vec3d.T{
		{5, 5, 5},
		{0, 0, 0},
		{5, 5, 5},
		{2, 7, 1},
		{0, 0, 0},
		{5, 5, 5},
	}
	codes := MortonCodes(centroids)
	SortMortonCodes(codes)

	for i := 1; i < len(codes); i++ {
		require.LessOrEqual(t, codes[i-1].Code, codes[i].Code)
		if codes[i-1].Code == codes[i].Code {
			require.Less(t, codes[i-1].Index, codes[i].Index)
		}
	}

	again := append([]MortonCode(nil), codes...)
	SortMortonCodes(again)
	require.Equal(t, codes, again)
}

func TestMortonCodesDegenerateBounds(t *testing.T) {
	codes := MortonCodes([]vec3d.T{{3, 3, 3}, {3, 3, 3}})
	require.Equal(t, uint64(0), codes[0].Code)
	require.Equal(t, uint64(0), codes[1].Code)
}
