package clod

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	buildKindLabel = "kind"
	errTypeLabel   = "error_type"

	buildKindGrid = "grid"
	buildKindMesh = "mesh"
)

var (
	geometryBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clod_geometry_builds",
		Help: "The number of grids and meshes added to a scene.",
	}, []string{
		buildKindLabel,
	})

	geometryBuildErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clod_geometry_build_errors",
		Help: "The errors that occurred while adding geometry to a scene.",
	}, []string{
		buildKindLabel,
		errTypeLabel,
	})

	clusterCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clod_clusters",
		Help: "The number of cluster descriptors of the last built scene.",
	})

	clusterRootCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clod_cluster_roots",
		Help: "The number of LOD root clusters of the last built scene.",
	})

	activeStates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clod_active_patch_states",
		Help: "The number of patch states selected in the last frame.",
	})

	crackFixedPatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clod_crack_fixed_patches",
		Help: "The number of patches whose edge levels were lowered to fix cracks.",
	})

	selectionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clod_selection_latency",
		Help:    "The time to run the per frame patch selection.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
)

func instrumentBuild(kind string) {
	geometryBuilds.With(prometheus.Labels{
		buildKindLabel: kind,
	}).Inc()
}

func instrumentBuildError(kind string, err error) {
	geometryBuildErrors.
		With(prometheus.Labels{
			buildKindLabel: kind,
			errTypeLabel:   errors.Type(err),
		}).
		Inc()
}

func instrumentClusters(clusters, roots int) {
	clusterCount.Set(float64(clusters))
	clusterRootCount.Set(float64(roots))
}

func instrumentFrame(states int, cracks int, start time.Time) {
	activeStates.Set(float64(states))
	crackFixedPatches.Add(float64(cracks))
	selectionLatency.Observe(time.Since(start).Seconds())
}
