package clod

import (
	"math"

	vec3d "github.com/flywave/go3d/float64/vec3"
)

const (
	COMPRESSED_VERTEX_BITS = 16
	COMPRESSED_VERTEX_RES  = (1 << COMPRESSED_VERTEX_BITS) - 1
)

// BBox is an axis aligned box. The zero value is a degenerate box at the
// origin; EmptyBBox is the neutral element of Extend.
type BBox struct {
	Lower vec3d.T
	Upper vec3d.T
}

func EmptyBBox() BBox {
	return BBox{Lower: vec3d.MaxVal, Upper: vec3d.MinVal}
}

func (b BBox) Empty() bool {
	return b.Lower[0] > b.Upper[0] || b.Lower[1] > b.Upper[1] || b.Lower[2] > b.Upper[2]
}

func (b *BBox) Extend(p vec3d.T) {
	b.Lower = vec3d.Min(&b.Lower, &p)
	b.Upper = vec3d.Max(&b.Upper, &p)
}

func (b *BBox) Join(o BBox) {
	if o.Empty() {
		return
	}
	b.Extend(o.Lower)
	b.Extend(o.Upper)
}

func (b BBox) Size() vec3d.T {
	if b.Empty() {
		return vec3d.T{}
	}
	return vec3d.Sub(&b.Upper, &b.Lower)
}

func (b BBox) Center() vec3d.T {
	return vec3d.T{
		(b.Lower[0] + b.Upper[0]) * 0.5,
		(b.Lower[1] + b.Upper[1]) * 0.5,
		(b.Lower[2] + b.Upper[2]) * 0.5,
	}
}

// InvExtent returns the per-axis reciprocal of the box size, 0 on flat axes.
func (b BBox) InvExtent() vec3d.T {
	size := b.Size()
	var inv vec3d.T
	for i := 0; i < 3; i++ {
		if size[i] != 0 {
			inv[i] = 1 / size[i]
		}
	}
	return inv
}

// QuantizationStep is the reconstruction granularity of Encode per axis.
func (b BBox) QuantizationStep() vec3d.T {
	size := b.Size()
	return vec3d.T{size[0] / COMPRESSED_VERTEX_RES, size[1] / COMPRESSED_VERTEX_RES, size[2] / COMPRESSED_VERTEX_RES}
}

func (b BBox) Encode(p vec3d.T) CompressedVertex {
	return NewCompressedVertex(p, b.Lower, b.InvExtent())
}

func (b BBox) Decode(cv CompressedVertex) vec3d.T {
	return cv.Decode(b.Lower, b.Size())
}

func clamp(val float64, minVal float64, maxVal float64) float64 {
	return math.Max(math.Min(val, maxVal), minVal)
}

func lerp(a, b vec3d.T, t float64) vec3d.T {
	return vec3d.T{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
	}
}

func quantizeCoordinate(v float64, lower float64, invExtent float64) uint16 {
	scaled := (v - lower) * invExtent
	if math.IsNaN(scaled) {
		return 0
	}
	return uint16(math.Round(clamp(scaled, 0, 1) * COMPRESSED_VERTEX_RES))
}

func dequantizeCoordinate(v uint16, lower float64, extent float64) float64 {
	return lower + (float64(v)/COMPRESSED_VERTEX_RES)*extent
}

// CompressedVertex is a position in 16 bit fixed point relative to a box.
// Positions outside the box clamp to its faces.
type CompressedVertex struct {
	X uint16
	Y uint16
	Z uint16
}

func NewCompressedVertex(p vec3d.T, lower vec3d.T, invExtent vec3d.T) CompressedVertex {
	return CompressedVertex{
		X: quantizeCoordinate(p[0], lower[0], invExtent[0]),
		Y: quantizeCoordinate(p[1], lower[1], invExtent[1]),
		Z: quantizeCoordinate(p[2], lower[2], invExtent[2]),
	}
}

func (cv CompressedVertex) Decode(lower vec3d.T, extent vec3d.T) vec3d.T {
	return vec3d.T{
		dequantizeCoordinate(cv.X, lower[0], extent[0]),
		dequantizeCoordinate(cv.Y, lower[1], extent[1]),
		dequantizeCoordinate(cv.Z, lower[2], extent[2]),
	}
}

// CompressedQuadIndices addresses four vertices of a cluster's local table.
type CompressedQuadIndices struct {
	V0 uint8
	V1 uint8
	V2 uint8
	V3 uint8
}

func NewCompressedQuadIndices(q [4]int) CompressedQuadIndices {
	return CompressedQuadIndices{V0: uint8(q[0]), V1: uint8(q[1]), V2: uint8(q[2]), V3: uint8(q[3])}
}

func (q CompressedQuadIndices) Indices() [4]int {
	return [4]int{int(q.V0), int(q.V1), int(q.V2), int(q.V3)}
}
