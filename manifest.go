package clod

import (
	"github.com/segmentio/encoding/json"
)

const (
	MANIFEST_VERSION = "1.0.0"
	MANIFEST_FORMAT  = "clod-1.0"
)

type ManifestBounds struct {
	Lower [3]float64 `json:"lower"`
	Upper [3]float64 `json:"upper"`
}

type ManifestMesh struct {
	ID     int32          `json:"id"`
	Bounds ManifestBounds `json:"bounds"`
	MeshStats
}

type Manifest struct {
	Manifest       string         `json:"manifest"`
	Name           *string        `json:"name,omitempty"`
	ID             string         `json:"id"`
	Format         string         `json:"format"`
	Version        uint32         `json:"version"`
	Bounds         ManifestBounds `json:"bounds"`
	MinLODDistance float64        `json:"min_lod_distance"`
	Patches        int            `json:"patches"`
	StateCapacity  int            `json:"state_capacity"`
	Grids          []GridStats    `json:"grids,omitempty"`
	Meshes         []ManifestMesh `json:"meshes,omitempty"`
	Clusters       int            `json:"clusters"`
	Roots          int            `json:"roots"`
}

func manifestBounds(b BBox) ManifestBounds {
	if b.Empty() {
		return ManifestBounds{}
	}
	return ManifestBounds{Lower: b.Lower, Upper: b.Upper}
}

// Manifest describes the scene contents. An empty name is omitted.
func (s *Scene) Manifest(name string) *Manifest {
	m := &Manifest{
		Manifest:       MANIFEST_VERSION,
		ID:             s.ID.String(),
		Format:         MANIFEST_FORMAT,
		Version:        CLOD_VERSION,
		Bounds:         manifestBounds(s.Bounds),
		MinLODDistance: s.MinLODDistance,
		Patches:        len(s.Patches),
		StateCapacity:  len(s.States),
		Grids:          s.GridStats,
		Clusters:       len(s.Clusters),
		Roots:          len(s.ClusterRoots),
	}
	if name != "" {
		m.Name = &name
	}
	for i, mesh := range s.Meshes {
		m.Meshes = append(m.Meshes, ManifestMesh{
			ID:        mesh.ID,
			Bounds:    manifestBounds(mesh.Bounds),
			MeshStats: s.MeshStats[i],
		})
	}
	return m
}

func (m *Manifest) Marshal(indent bool) ([]byte, error) {
	if indent {
		return json.MarshalIndent(m, "", "  ")
	}
	return json.Marshal(m)
}

func UnmarshalManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}
