package clod

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/flywave/go-proj"
	vec3d "github.com/flywave/go3d/float64/vec3"
)

// GridFromLonLat converts a grid of longitude, latitude (degrees) and height
// samples into an earth centered grid.
func GridFromLonLat(resX, resY int, lonLatHeight []vec3d.T) (*Grid, error) {
	if resX < 2 || resY < 2 || len(lonLatHeight) != resX*resY {
		return nil, errors.New("geodetic grid size does not match its samples").
			WithType(ErrTypeInvalidInput).
			WithTag("res_x", resX).
			WithTag("res_y", resY).
			WithTag("samples", len(lonLatHeight))
	}

	g := &Grid{ResX: resX, ResY: resY, Positions: make([]vec3d.T, len(lonLatHeight))}
	for i, llh := range lonLatHeight {
		x, y, z, err := proj.Lonlat2Ecef(llh[0], llh[1], llh[2])
		if err != nil {
			return nil, errors.New("converting sample to ecef failed").
				WithType(ErrTypeInvalidInput).
				WithTag("sample", i).
				Wrap(err)
		}
		g.Positions[i] = vec3d.T{x, y, z}
	}
	return g, nil
}
