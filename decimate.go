package clod

import (
	"math"
	"sort"

	vec3d "github.com/flywave/go3d/float64/vec3"
)

type SimplifyOptions struct {
	// TargetIndexCount is the index count the decimator reduces towards.
	TargetIndexCount int

	// TargetError bounds the geometric error relative to the mesh extent.
	TargetError float64

	// LockBorder keeps vertices on open edges in place.
	LockBorder bool
}

// Decimator simplifies indexed triangle lists. Simplify returns at most
// len(indices) indices into positions and the achieved error relative to the
// mesh extent.
type Decimator interface {
	Simplify(indices []uint32, positions []vec3d.T, opts SimplifyOptions) ([]uint32, float64)
}

// EdgeCollapseDecimator is a greedy quadric error half-edge collapse
// decimator. Collapses that flip a triangle or pinch the surface are skipped.
type EdgeCollapseDecimator struct{}

// quadric holds the symmetric 4x4 plane quadric a2 ab ac ad b2 bc bd c2 cd d2.
type quadric [10]float64

func planeQuadric(p0, p1, p2 vec3d.T) quadric {
	e0 := vec3d.Sub(&p1, &p0)
	e1 := vec3d.Sub(&p2, &p0)
	n := vec3d.Cross(&e0, &e1)
	l := n.Length()
	if l == 0 {
		return quadric{}
	}
	n.Scale(1 / l)
	a, b, c := n[0], n[1], n[2]
	d := -vec3d.Dot(&n, &p0)
	return quadric{a * a, a * b, a * c, a * d, b * b, b * c, b * d, c * c, c * d, d * d}
}

func (q *quadric) add(o *quadric) {
	for i := range q {
		q[i] += o[i]
	}
}

func (q *quadric) eval(p vec3d.T) float64 {
	x, y, z := p[0], p[1], p[2]
	e := q[0]*x*x + 2*q[1]*x*y + 2*q[2]*x*z + 2*q[3]*x +
		q[4]*y*y + 2*q[5]*y*z + 2*q[6]*y +
		q[7]*z*z + 2*q[8]*z +
		q[9]
	if e < 0 {
		return 0
	}
	return e
}

type collapse struct {
	from   int
	to     int
	cost   float64
	length float64
}

type decimation struct {
	positions []vec3d.T
	tris      [][3]int
	alive     []bool
	quadrics  []quadric
	locked    []bool
	incident  [][]int
}

func triangleNormal(p0, p1, p2 vec3d.T) vec3d.T {
	e0 := vec3d.Sub(&p1, &p0)
	e1 := vec3d.Sub(&p2, &p0)
	return vec3d.Cross(&e0, &e1)
}

func (d *EdgeCollapseDecimator) Simplify(indices []uint32, positions []vec3d.T, opts SimplifyOptions) ([]uint32, float64) {
	if len(indices) <= opts.TargetIndexCount || len(indices) < 3 {
		return append([]uint32(nil), indices...), 0
	}

	bounds := EmptyBBox()
	for _, i := range indices {
		bounds.Extend(positions[i])
	}
	size := bounds.Size()
	extent := math.Max(size[0], math.Max(size[1], size[2]))
	if extent == 0 {
		extent = 1
	}
	limit := opts.TargetError * extent
	limitSq := limit * limit

	dc := &decimation{
		positions: positions,
		tris:      make([][3]int, len(indices)/3),
		alive:     make([]bool, len(indices)/3),
		quadrics:  make([]quadric, len(positions)),
		locked:    make([]bool, len(positions)),
	}
	edgeUse := make(map[uint64]int, len(indices))
	for t := range dc.tris {
		dc.tris[t] = [3]int{int(indices[t*3]), int(indices[t*3+1]), int(indices[t*3+2])}
		dc.alive[t] = true
		tri := dc.tris[t]
		q := planeQuadric(positions[tri[0]], positions[tri[1]], positions[tri[2]])
		for _, v := range tri {
			dc.quadrics[v].add(&q)
		}
		for r := 0; r < 3; r++ {
			edgeUse[edgeKey(tri[r], tri[(r+1)%3])]++
		}
	}
	if opts.LockBorder {
		for t := range dc.tris {
			tri := dc.tris[t]
			for r := 0; r < 3; r++ {
				if edgeUse[edgeKey(tri[r], tri[(r+1)%3])] == 1 {
					dc.locked[tri[r]] = true
					dc.locked[tri[(r+1)%3]] = true
				}
			}
		}
	}

	live := len(dc.tris)
	maxCost := 0.0
	for live*3 > opts.TargetIndexCount {
		dc.buildIncidence()
		candidates := dc.candidates()
		done := false
		for _, c := range candidates {
			if c.cost > limitSq {
				break
			}
			if !dc.canCollapse(c.from, c.to) {
				continue
			}
			live -= dc.collapse(c.from, c.to)
			if c.cost > maxCost {
				maxCost = c.cost
			}
			done = true
			break
		}
		if !done {
			break
		}
	}

	res := make([]uint32, 0, live*3)
	for t, tri := range dc.tris {
		if dc.alive[t] {
			res = append(res, uint32(tri[0]), uint32(tri[1]), uint32(tri[2]))
		}
	}
	return res, math.Sqrt(maxCost) / extent
}

func (dc *decimation) buildIncidence() {
	if dc.incident == nil {
		dc.incident = make([][]int, len(dc.positions))
	}
	for v := range dc.incident {
		dc.incident[v] = dc.incident[v][:0]
	}
	for t, tri := range dc.tris {
		if !dc.alive[t] {
			continue
		}
		for _, v := range tri {
			dc.incident[v] = append(dc.incident[v], t)
		}
	}
}

// candidates lists every half-edge collapse with a movable source, cheapest
// first. Ties go to the shorter edge, then to the lower vertex indices.
func (dc *decimation) candidates() []collapse {
	seen := make(map[uint64]struct{})
	var res []collapse
	for t, tri := range dc.tris {
		if !dc.alive[t] {
			continue
		}
		for r := 0; r < 3; r++ {
			a, b := tri[r], tri[(r+1)%3]
			k := edgeKey(a, b)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			d := vec3d.Sub(&dc.positions[a], &dc.positions[b])
			length := d.LengthSqr()
			q := dc.quadrics[a]
			q.add(&dc.quadrics[b])
			if !dc.locked[a] {
				res = append(res, collapse{from: a, to: b, cost: q.eval(dc.positions[b]), length: length})
			}
			if !dc.locked[b] {
				res = append(res, collapse{from: b, to: a, cost: q.eval(dc.positions[a]), length: length})
			}
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].cost != res[j].cost {
			return res[i].cost < res[j].cost
		}
		if res[i].length != res[j].length {
			return res[i].length < res[j].length
		}
		if res[i].from != res[j].from {
			return res[i].from < res[j].from
		}
		return res[i].to < res[j].to
	})
	return res
}

func contains(tri [3]int, v int) bool {
	return tri[0] == v || tri[1] == v || tri[2] == v
}

func (dc *decimation) neighbours(v int) map[int]struct{} {
	res := make(map[int]struct{})
	for _, t := range dc.incident[v] {
		for _, w := range dc.tris[t] {
			if w != v {
				res[w] = struct{}{}
			}
		}
	}
	return res
}

// canCollapse checks the link condition and that no triangle moved by the
// collapse turns over or degenerates.
func (dc *decimation) canCollapse(from, to int) bool {
	shared := 0
	for _, t := range dc.incident[from] {
		if contains(dc.tris[t], to) {
			shared++
		}
	}
	if shared == 0 {
		return false
	}
	nf := dc.neighbours(from)
	common := 0
	for w := range dc.neighbours(to) {
		if _, ok := nf[w]; ok {
			common++
		}
	}
	if common != shared {
		return false
	}

	for _, t := range dc.incident[from] {
		tri := dc.tris[t]
		if contains(tri, to) {
			continue
		}
		p := [3]vec3d.T{dc.positions[tri[0]], dc.positions[tri[1]], dc.positions[tri[2]]}
		n0 := triangleNormal(p[0], p[1], p[2])
		if n0.LengthSqr() == 0 {
			continue
		}
		for i := range tri {
			if tri[i] == from {
				p[i] = dc.positions[to]
			}
		}
		n1 := triangleNormal(p[0], p[1], p[2])
		if vec3d.Dot(&n0, &n1) <= 0 {
			return false
		}
	}
	return true
}

// collapse moves from onto to and returns the number of triangles removed.
func (dc *decimation) collapse(from, to int) int {
	removed := 0
	for _, t := range dc.incident[from] {
		if contains(dc.tris[t], to) {
			dc.alive[t] = false
			removed++
			continue
		}
		for i := range dc.tris[t] {
			if dc.tris[t][i] == from {
				dc.tris[t][i] = to
			}
		}
	}
	dc.quadrics[to].add(&dc.quadrics[from])
	return removed
}
