package clod

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	vec3d "github.com/flywave/go3d/float64/vec3"
	"github.com/stretchr/testify/require"
)

func TestGridFromLonLat(t *testing.T) {
	samples := make([]vec3d.T, 4)
	g, err := GridFromLonLat(2, 2, samples)
	require.NoError(t, err)
	require.Len(t, g.Positions, 4)

	for _, p := range g.Positions {
		require.InDelta(t, 6378137, p[0], 1)
		require.InDelta(t, 0, p[1], 1e-6)
		require.InDelta(t, 0, p[2], 1e-6)
	}
}

func TestGridFromLonLatRejectsSize(t *testing.T) {
	_, err := GridFromLonLat(3, 2, make([]vec3d.T, 4))
	require.Error(t, err)
	require.Equal(t, ErrTypeInvalidInput, errors.Type(err))
}
