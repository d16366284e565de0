package clod

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	vec3d "github.com/flywave/go3d/float64/vec3"
)

const (
	NEIGHBOR_TOP = iota
	NEIGHBOR_RIGHT
	NEIGHBOR_BOTTOM
	NEIGHBOR_LEFT
)

// Grid is a regular ResX by ResY vertex array stored row by row.
type Grid struct {
	ResX      int
	ResY      int
	Positions []vec3d.T
}

func (g *Grid) Validate(patchQuads int) error {
	if g.ResX < 2 || g.ResY < 2 || len(g.Positions) != g.ResX*g.ResY {
		return errors.New("grid size does not match its positions").
			WithType(ErrTypeInvalidInput).
			WithTag("res_x", g.ResX).
			WithTag("res_y", g.ResY).
			WithTag("positions", len(g.Positions))
	}
	if g.ResX-1 < patchQuads || g.ResY-1 < patchQuads {
		return errors.New("grid is smaller than one patch").
			WithType(ErrTypeInvalidInput).
			WithTag("res_x", g.ResX).
			WithTag("res_y", g.ResY).
			WithTag("patch_quads", patchQuads)
	}
	return nil
}

// vertex returns the grid vertex at x, y clamped to the grid.
func (g *Grid) vertex(x, y int) vec3d.T {
	if x > g.ResX-1 {
		x = g.ResX - 1
	}
	if y > g.ResY-1 {
		y = g.ResY - 1
	}
	return g.Positions[y*g.ResX+x]
}

// PatchCount is the number of whole patches of patchQuads quads per side
// fitting into the grid. Remaining rows and columns are not covered.
func (g *Grid) PatchCount(patchQuads int) (int, int) {
	return (g.ResX - 1) / patchQuads, (g.ResY - 1) / patchQuads
}

// Patch is a square sub-grid of a Grid with its interior vertices quantized
// against its own bounds. Corners run v0 (start) v1 (+x) v2 (+x+y) v3 (+y).
type Patch struct {
	ID        int32
	GridID    int32
	Res       int
	V0        vec3d.T
	V1        vec3d.T
	V2        vec3d.T
	V3        vec3d.T
	URange    [2]float64
	VRange    [2]float64
	Neighbors [4]int32
	Bounds    BBox
	Vertices  []CompressedVertex
}

// Center is the bilinear center of the patch corners.
func (p *Patch) Center() vec3d.T {
	return lerp(lerp(p.V0, p.V1, 0.5), lerp(p.V2, p.V3, 0.5), 0.5)
}

func (p *Patch) NeighborCount() int {
	n := 0
	for _, id := range p.Neighbors {
		if id != -1 {
			n++
		}
	}
	return n
}

func (p *Patch) encode(g *Grid, startX, startY int) {
	p.Bounds = EmptyBBox()
	for y := 0; y <= p.Res; y++ {
		for x := 0; x <= p.Res; x++ {
			p.Bounds.Extend(g.vertex(startX+x, startY+y))
		}
	}
	lower := p.Bounds.Lower
	invExtent := p.Bounds.InvExtent()
	p.Vertices = make([]CompressedVertex, 0, (p.Res+1)*(p.Res+1))
	for y := 0; y <= p.Res; y++ {
		for x := 0; x <= p.Res; x++ {
			p.Vertices = append(p.Vertices, NewCompressedVertex(g.vertex(startX+x, startY+y), lower, invExtent))
		}
	}
}

// Decode returns the position of the patch vertex x, y, both in [0, Res].
func (p *Patch) Decode(x, y int) vec3d.T {
	return p.Vertices[y*(p.Res+1)+x].Decode(p.Bounds.Lower, p.Bounds.Size())
}

// GridStats reports the reconstruction error of an encoded grid.
type GridStats struct {
	NumPatches  int     `json:"patches"`
	NumVertices int     `json:"vertices"`
	AvgError    float64 `json:"avg_error"`
	MaxError    float64 `json:"max_error"`

	// NumOverThreshold counts vertices decoding further than
	// PATCH_ENCODING_ERROR_THRESHOLD from their source.
	NumOverThreshold int `json:"over_threshold"`
}

// buildPatches cuts g into patches of patchQuads quads per side, linking
// neighbours by scene wide patch id starting at firstID.
func buildPatches(g *Grid, gridID int32, firstID int32, patchQuads int) ([]Patch, BBox, GridStats) {
	patchesX, patchesY := g.PatchCount(patchQuads)
	patches := make([]Patch, 0, patchesX*patchesY)
	bounds := EmptyBBox()
	stats := GridStats{NumPatches: patchesX * patchesY}

	var sumError float64
	for py := 0; py < patchesY; py++ {
		for px := 0; px < patchesX; px++ {
			id := firstID + int32(len(patches))
			sx, sy := px*patchQuads, py*patchQuads
			p := Patch{
				ID:        id,
				GridID:    gridID,
				Res:       patchQuads,
				V0:        g.vertex(sx, sy),
				V1:        g.vertex(sx+patchQuads, sy),
				V2:        g.vertex(sx+patchQuads, sy+patchQuads),
				V3:        g.vertex(sx, sy+patchQuads),
				URange:    [2]float64{float64(sx) / float64(g.ResX-1), float64(sx+patchQuads) / float64(g.ResX-1)},
				VRange:    [2]float64{float64(sy) / float64(g.ResY-1), float64(sy+patchQuads) / float64(g.ResY-1)},
				Neighbors: [4]int32{-1, -1, -1, -1},
			}
			if py > 0 {
				p.Neighbors[NEIGHBOR_TOP] = id - int32(patchesX)
			}
			if px < patchesX-1 {
				p.Neighbors[NEIGHBOR_RIGHT] = id + 1
			}
			if py < patchesY-1 {
				p.Neighbors[NEIGHBOR_BOTTOM] = id + int32(patchesX)
			}
			if px > 0 {
				p.Neighbors[NEIGHBOR_LEFT] = id - 1
			}
			p.encode(g, sx, sy)

			for y := 0; y <= patchQuads; y++ {
				for x := 0; x <= patchQuads; x++ {
					decoded := p.Decode(x, y)
					bounds.Extend(decoded)
					src := g.vertex(sx+x, sy+y)
					diff := vec3d.Sub(&decoded, &src)
					e := diff.Length()
					if e > PATCH_ENCODING_ERROR_THRESHOLD {
						stats.NumOverThreshold++
					}
					sumError += e
					stats.MaxError = math.Max(stats.MaxError, e)
					stats.NumVertices++
				}
			}
			patches = append(patches, p)
		}
	}
	if stats.NumVertices > 0 {
		stats.AvgError = sumError / float64(stats.NumVertices)
	}
	return patches, bounds, stats
}
