package clod

import (
	"math"
	"sync/atomic"

	vec3d "github.com/flywave/go3d/float64/vec3"
)

// Distance bands in units of the minimum LOD distance. Band i spans
// [LOD_BAND_START[i], LOD_BAND_END[i]).
var (
	LOD_BAND_START = [LOD_LEVELS + 1]int{0, 1, 3, 7}
	LOD_BAND_END   = [LOD_LEVELS + 1]int{1, 3, 7, 15}
)

// Camera is a pinhole camera in pixel units. VX and VY are unit vectors
// stepping one pixel right and down across the image plane, VZ points from
// Position to the image plane origin (the top left pixel).
type Camera struct {
	Position vec3d.T
	VX       vec3d.T
	VY       vec3d.T
	VZ       vec3d.T
	Width    int
	Height   int
}

// NewCamera builds a camera at from looking at to with a vertical field of
// view of fov radians.
func NewCamera(from, to, up vec3d.T, fov float64, width, height int) Camera {
	dir := vec3d.Sub(&to, &from)
	dir = dir.Normalized()
	vx := vec3d.Cross(&dir, &up)
	if vx.LengthSqr() == 0 {
		alt := vec3d.T{0, 0, 1}
		if math.Abs(dir[2]) > 0.9 {
			alt = vec3d.T{0, 1, 0}
		}
		vx = vec3d.Cross(&dir, &alt)
	}
	vx = vx.Normalized()
	vy := vec3d.Cross(&dir, &vx)
	vy = vy.Normalized()

	w, h := float64(width), float64(height)
	focal := 0.5 * h / math.Tan(0.5*fov)
	var vz vec3d.T
	for i := 0; i < 3; i++ {
		vz[i] = -0.5*w*vx[i] - 0.5*h*vy[i] + focal*dir[i]
	}
	return Camera{Position: from, VX: vx, VY: vy, VZ: vz, Width: width, Height: height}
}

// project maps p, relative to the camera position, to pixel coordinates on
// the image plane clamped to the viewport. Points behind the camera map to the
// image plane origin.
func (c *Camera) project(p vec3d.T) [2]float64 {
	vn := vec3d.Cross(&c.VX, &c.VY)
	pip := c.VZ
	if denom := vec3d.Dot(&vn, &p); denom != 0 {
		if distance := vec3d.Dot(&vn, &c.VZ) / denom; distance >= 0 {
			pip = p
			pip.Scale(distance)
		}
	}
	d := vec3d.Sub(&pip, &c.VZ)
	return [2]float64{
		clamp(vec3d.Dot(&d, &c.VX), 0, float64(c.Width)),
		clamp(vec3d.Dot(&d, &c.VY), 0, float64(c.Height)),
	}
}

type LODPatchLevel struct {
	// Level is the patch level, LOD_LEVELS-1 being the finest.
	Level uint8

	// Band is the distance band the patch falls into, LOD_LEVELS when it lies
	// beyond the last one.
	Band int

	// Blend is the position inside the band in [0, 1].
	Blend float64
}

// patchLevel maps the distance from eye to center onto a patch level.
func patchLevel(center, eye vec3d.T, minDistance float64) LODPatchLevel {
	d := vec3d.Sub(&center, &eye)
	dist := d.Length() / minDistance
	distLevel := int(math.Floor(dist))

	segment := -1
	for i := 0; i < LOD_LEVELS; i++ {
		if LOD_BAND_START[i] <= distLevel && distLevel < LOD_BAND_END[i] {
			segment = i
			break
		}
	}
	res := LODPatchLevel{Band: segment}
	if segment == -1 {
		res.Band = LOD_LEVELS
		segment = LOD_LEVELS - 1
	} else if segment != 0 {
		start, end := float64(LOD_BAND_START[segment]), float64(LOD_BAND_END[segment])
		res.Blend = math.Min((dist-start)/(end-start), 1)
		segment--
	}
	res.Level = uint8(LOD_LEVELS - 1 - segment)
	return res
}

// LODEdgeLevel holds one level per patch edge: top v0v1, right v1v2, bottom
// v2v3 and left v3v0.
type LODEdgeLevel struct {
	Top    uint8
	Right  uint8
	Bottom uint8
	Left   uint8
}

func uniformEdgeLevel(level uint8) LODEdgeLevel {
	return LODEdgeLevel{Top: level, Right: level, Bottom: level, Left: level}
}

func (e LODEdgeLevel) At(side int) uint8 {
	switch side {
	case NEIGHBOR_TOP:
		return e.Top
	case NEIGHBOR_RIGHT:
		return e.Right
	case NEIGHBOR_BOTTOM:
		return e.Bottom
	default:
		return e.Left
	}
}

func (e *LODEdgeLevel) clampSide(side int, level uint8) {
	switch side {
	case NEIGHBOR_TOP:
		e.Top = min(e.Top, level)
	case NEIGHBOR_RIGHT:
		e.Right = min(e.Right, level)
	case NEIGHBOR_BOTTOM:
		e.Bottom = min(e.Bottom, level)
	default:
		e.Left = min(e.Left, level)
	}
}

func projectedEdgeLevel(a, b [2]float64, subRes int) uint8 {
	d := math.Hypot(b[0]-a[0], b[1]-a[1]) * SCREEN_SPACE_EDGE_SCALE
	i := math.Floor(d / float64(subRes))
	return uint8(clamp(i, 0, LOD_LEVELS-1))
}

// screenEdgeLevels measures the projected patch edges in sub-patch quads.
// A shared edge projects to the same length from both of its patches.
func screenEdgeLevels(p *Patch, c *Camera, subRes int) LODEdgeLevel {
	var pts [4][2]float64
	for i, v := range [4]vec3d.T{p.V0, p.V1, p.V2, p.V3} {
		rel := vec3d.Sub(&v, &c.Position)
		pts[i] = c.project(rel)
	}
	return LODEdgeLevel{
		Top:    projectedEdgeLevel(pts[0], pts[1], subRes),
		Right:  projectedEdgeLevel(pts[1], pts[2], subRes),
		Bottom: projectedEdgeLevel(pts[2], pts[3], subRes),
		Left:   projectedEdgeLevel(pts[3], pts[0], subRes),
	}
}

// PatchState is one selected sub-patch of a frame. StartX and StartY are the
// sub-patch origin in patch quads, Step the vertex stride at the finest grid.
type PatchState struct {
	PatchID    int32
	StartX     uint16
	StartY     uint16
	Step       uint8
	LocalID    uint8
	Level      uint8
	EdgeLevels LODEdgeLevel
	Blend      uint8
}

// CracksFixed reports whether any edge was lowered below the patch level.
func (s *PatchState) CracksFixed() bool {
	e := s.EdgeLevels
	return e.Top != s.Level || e.Right != s.Level || e.Bottom != s.Level || e.Left != s.Level
}

// Subdivision is the number of sub-patches per axis of level.
func Subdivision(level uint8) int {
	return 1 << level
}

// frameSelection runs the per patch selection of one frame. Every patch
// reserves its output range with one atomic add on count, so concurrent
// selectPatch calls never write the same slot.
type frameSelection struct {
	patches     []Patch
	camera      Camera
	minDistance float64
	patchQuads  int
	screenSpace bool

	states   []PatchState
	count    *atomic.Uint32
	cracks   atomic.Uint32
	overflow atomic.Bool
}

func (f *frameSelection) subPatchQuads() int {
	return f.patchQuads / MAX_SUBDIVISION
}

// edgeLevels clamps every edge of patch i to the level of the neighbour
// across it, and to the projected edge level when screen space edges are on.
func (f *frameSelection) edgeLevels(i int, own LODPatchLevel) LODEdgeLevel {
	p := &f.patches[i]
	edges := uniformEdgeLevel(own.Level)
	for side, n := range p.Neighbors {
		if n == -1 {
			continue
		}
		np := &f.patches[n]
		edges.clampSide(side, patchLevel(np.Center(), f.camera.Position, f.minDistance).Level)
	}
	if f.screenSpace {
		screen := screenEdgeLevels(p, &f.camera, f.subPatchQuads())
		for side := NEIGHBOR_TOP; side <= NEIGHBOR_LEFT; side++ {
			edges.clampSide(side, screen.At(side))
		}
	}
	return edges
}

func (f *frameSelection) selectPatch(i int) {
	p := &f.patches[i]
	level := patchLevel(p.Center(), f.camera.Position, f.minDistance)
	edges := f.edgeLevels(i, level)
	blend := uint8(math.Floor(255 * level.Blend))

	subdiv := Subdivision(level.Level)
	n := uint32(subdiv * subdiv)
	offset := f.count.Add(n) - n
	if uint64(offset)+uint64(n) > uint64(len(f.states)) {
		f.overflow.Store(true)
		return
	}

	extent := f.patchQuads / subdiv
	step := uint8(MAX_SUBDIVISION / subdiv)
	index := uint32(0)
	for y := 0; y < subdiv; y++ {
		for x := 0; x < subdiv; x++ {
			f.states[offset+index] = PatchState{
				PatchID:    p.ID,
				StartX:     uint16(x * extent),
				StartY:     uint16(y * extent),
				Step:       step,
				LocalID:    uint8(index),
				Level:      level.Level,
				EdgeLevels: edges,
				Blend:      blend,
			}
			index++
		}
	}
	if f.states[offset].CracksFixed() {
		f.cracks.Add(1)
	}
}
