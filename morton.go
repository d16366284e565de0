package clod

import (
	"sort"

	vec3d "github.com/flywave/go3d/float64/vec3"
)

const (
	MORTON_BITS_PER_AXIS = 21
	MORTON_GRID_SIZE     = 1 << MORTON_BITS_PER_AXIS
	MORTON_GRID_FILL     = 0.99
)

// MortonCode pairs a 63 bit Morton key with the index of the primitive it was
// computed for.
type MortonCode struct {
	Code  uint64
	Index uint32
}

func part1By2(x uint64) uint64 {
	x &= 0x1fffff
	x = (x | (x << 32)) & 0x1f00000000ffff
	x = (x | (x << 16)) & 0x1f0000ff0000ff
	x = (x | (x << 8)) & 0x100f00f00f00f00f
	x = (x | (x << 4)) & 0x10c30c30c30c30c3
	x = (x | (x << 2)) & 0x1249249249249249
	return x
}

func bitInterleave64(x, y, z uint32) uint64 {
	return part1By2(uint64(x)) | (part1By2(uint64(y)) << 1) | (part1By2(uint64(z)) << 2)
}

// MortonCodes computes the keys of the given centroids normalized into their
// own bounding box. The result is in input order; see SortMortonCodes.
func MortonCodes(centroids []vec3d.T) []MortonCode {
	bounds := EmptyBBox()
	for _, c := range centroids {
		bounds.Extend(c)
	}
	inv := bounds.InvExtent()
	scale := vec3d.T{
		MORTON_GRID_SIZE * MORTON_GRID_FILL * inv[0],
		MORTON_GRID_SIZE * MORTON_GRID_FILL * inv[1],
		MORTON_GRID_SIZE * MORTON_GRID_FILL * inv[2],
	}

	codes := make([]MortonCode, len(centroids))
	for i, c := range centroids {
		gx := uint32((c[0] - bounds.Lower[0]) * scale[0])
		gy := uint32((c[1] - bounds.Lower[1]) * scale[1])
		gz := uint32((c[2] - bounds.Lower[2]) * scale[2])
		codes[i] = MortonCode{Code: bitInterleave64(gx, gy, gz), Index: uint32(i)}
	}
	return codes
}

// SortMortonCodes orders by key, equal keys by primitive index, so sorting is
// reproducible and idempotent.
func SortMortonCodes(codes []MortonCode) {
	sort.Slice(codes, func(i, j int) bool {
		if codes[i].Code != codes[j].Code {
			return codes[i].Code < codes[j].Code
		}
		return codes[i].Index < codes[j].Index
	})
}

func quadCentroids(mesh *QuadMesh) []vec3d.T {
	centroids := make([]vec3d.T, len(mesh.Quads))
	for i, q := range mesh.Quads {
		b := EmptyBBox()
		for _, v := range q {
			b.Extend(mesh.Vertices[v])
		}
		centroids[i] = b.Center()
	}
	return centroids
}
