package clod

import (
	"runtime"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	DEFAULT_MAX_QUADS_PER_CLUSTER            = 64
	DEFAULT_MAX_MERGE_DEPTH                  = 1
	DEFAULT_SIMPLIFY_TARGET_ERROR            = 0.05
	DEFAULT_PATCH_QUADS                      = 32
	DEFAULT_RELATIVE_MIN_LOD_DISTANCE_FACTOR = 32.0
	MAX_VERTICES_PER_CLUSTER                 = 256
	LOD_LEVELS                               = 3
	MAX_SUBDIVISION                          = 1 << (LOD_LEVELS - 1)
	MAX_STATES_PER_PATCH                     = MAX_SUBDIVISION * MAX_SUBDIVISION
	PATCH_ENCODING_ERROR_THRESHOLD           = 0.1
	DECOMPRESSED_BLOCK_SIZE                  = 64
	DECOMPRESSED_CLUSTER_HEADER_SIZE         = 64
	DECOMPRESSED_QUAD_SIZE                   = 4 * 3 * 4
	SCREEN_SPACE_EDGE_SCALE                  = 1.0 / 8.0
)

// Config holds the build budgets and the per-frame selection settings of a
// Scene.
type Config struct {
	// MaxQuadsPerCluster is the hard quad ceiling of every cluster.
	MaxQuadsPerCluster int `yaml:"max_quads_per_cluster"`

	// MaxMergeDepth bounds how many merge levels are built above the leaf
	// clusters. 0 means no bound.
	MaxMergeDepth int `yaml:"max_merge_depth"`

	SimplifyTargetError float64 `yaml:"simplify_target_error"`
	LockBorder          bool    `yaml:"lock_border"`

	// PatchQuads is the number of quads along one side of a grid patch.
	PatchQuads int `yaml:"patch_quads"`

	RelativeMinLODDistanceFactor float64 `yaml:"relative_min_lod_distance_factor"`

	// ScreenSpaceEdges folds the projected edge levels into crack fixing.
	ScreenSpaceEdges bool `yaml:"screen_space_edges"`

	Workers int `yaml:"workers"`

	Decimator Decimator `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		MaxQuadsPerCluster:           DEFAULT_MAX_QUADS_PER_CLUSTER,
		MaxMergeDepth:                DEFAULT_MAX_MERGE_DEPTH,
		SimplifyTargetError:          DEFAULT_SIMPLIFY_TARGET_ERROR,
		LockBorder:                   true,
		PatchQuads:                   DEFAULT_PATCH_QUADS,
		RelativeMinLODDistanceFactor: DEFAULT_RELATIVE_MIN_LOD_DISTANCE_FACTOR,
		Workers:                      runtime.NumCPU(),
		Decimator:                    &EdgeCollapseDecimator{},
	}
}

func (c Config) Validate() error {
	if c.MaxQuadsPerCluster <= 0 {
		return errors.New("max quads per cluster must be positive").
			WithType(ErrTypeInvalidInput).
			WithTag("max_quads_per_cluster", c.MaxQuadsPerCluster)
	}
	if c.MaxMergeDepth < 0 {
		return errors.New("max merge depth must not be negative").
			WithType(ErrTypeInvalidInput).
			WithTag("max_merge_depth", c.MaxMergeDepth)
	}
	if c.PatchQuads <= 0 || c.PatchQuads%MAX_SUBDIVISION != 0 {
		return errors.New("patch quads must be a positive multiple of the subdivision factor").
			WithType(ErrTypeInvalidInput).
			WithTag("patch_quads", c.PatchQuads).
			WithTag("subdivision", MAX_SUBDIVISION)
	}
	if c.RelativeMinLODDistanceFactor <= 0 {
		return errors.New("relative min lod distance factor must be positive").
			WithType(ErrTypeInvalidInput).
			WithTag("factor", c.RelativeMinLODDistanceFactor)
	}
	if c.SimplifyTargetError < 0 {
		return errors.New("simplify target error must not be negative").
			WithType(ErrTypeInvalidInput).
			WithTag("target_error", c.SimplifyTargetError)
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive").
			WithType(ErrTypeInvalidInput).
			WithTag("workers", c.Workers)
	}
	return nil
}

func (c Config) decimator() Decimator {
	if c.Decimator == nil {
		return &EdgeCollapseDecimator{}
	}
	return c.Decimator
}
