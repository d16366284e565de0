package clod

type triangle [3]int

func (t triangle) valid() bool {
	return t[0] != t[1] && t[1] != t[2] && t[2] != t[0]
}

func degenerateQuad(t triangle) [4]int {
	return [4]int{t[0], t[1], t[2], t[2]}
}

// quadTriangles splits a quad along its v1-v3 diagonal and drops collapsed
// halves.
func quadTriangles(q [4]int, emit func(triangle)) {
	t0 := triangle{q[0], q[1], q[3]}
	t1 := triangle{q[1], q[2], q[3]}
	if t0.valid() {
		emit(t0)
	}
	if t1.valid() {
		emit(t1)
	}
}

// mergeTriangles joins two triangles sharing an edge into a quad that keeps
// the winding of a. The edges of a are tried in rotation order a0a1, a1a2,
// a2a0 and the first one also present in b wins.
func mergeTriangles(a, b triangle) ([4]int, bool) {
	for r := 0; r < 3; r++ {
		e0, e1, opposite := a[r], a[(r+1)%3], a[(r+2)%3]
		other := -1
		matched := 0
		for _, v := range b {
			switch v {
			case e0, e1:
				matched++
			default:
				other = v
			}
		}
		if matched == 2 && other != -1 && other != opposite {
			return [4]int{e0, other, e1, opposite}, true
		}
	}
	return [4]int{}, false
}

func edgeKey(a, b int) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(uint32(b))<<32 | uint64(uint32(a))
}

// pairTriangles reorders tris so that edge neighbours end up next to each
// other. Each triangle, in input order, takes the lowest indexed unpaired
// triangle across one of its edges.
func pairTriangles(tris []triangle) []triangle {
	edges := make(map[uint64][]int, len(tris)*3)
	for i, t := range tris {
		for r := 0; r < 3; r++ {
			k := edgeKey(t[r], t[(r+1)%3])
			edges[k] = append(edges[k], i)
		}
	}

	paired := make([]bool, len(tris))
	res := make([]triangle, 0, len(tris))
	for i, t := range tris {
		if paired[i] {
			continue
		}
		paired[i] = true
		res = append(res, t)

		best := -1
		for r := 0; r < 3; r++ {
			for _, j := range edges[edgeKey(t[r], t[(r+1)%3])] {
				if paired[j] || (best != -1 && j >= best) {
					continue
				}
				if _, ok := mergeTriangles(t, tris[j]); ok {
					best = j
				}
			}
		}
		if best != -1 {
			paired[best] = true
			res = append(res, tris[best])
		}
	}
	return res
}

// extractQuads merges consecutive triangle pairs into quads. A triangle that
// cannot be merged with its successor becomes a degenerate quad.
func extractQuads(tris []triangle) [][4]int {
	quads := make([][4]int, 0, (len(tris)+1)/2)
	for i := 0; i < len(tris); i++ {
		if i+1 == len(tris) {
			quads = append(quads, degenerateQuad(tris[i]))
			continue
		}
		q, ok := mergeTriangles(tris[i], tris[i+1])
		if !ok {
			quads = append(quads, degenerateQuad(tris[i]))
			continue
		}
		quads = append(quads, q)
		i++
	}
	return quads
}

// quadsFromTriangles pairs consecutive triangles in the given order. Only when
// that leaves more than maxQuads quads are the triangles regrouped by edge
// adjacency first.
func quadsFromTriangles(tris []triangle, maxQuads int) [][4]int {
	quads := extractQuads(tris)
	if len(quads) <= maxQuads {
		return quads
	}
	return extractQuads(pairTriangles(tris))
}
