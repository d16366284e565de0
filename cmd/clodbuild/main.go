package main

import (
	"bytes"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	clod "github.com/flywave/go-clod"
	vec3d "github.com/flywave/go3d/float64/vec3"
	"github.com/segmentio/encoding/json"
	"gopkg.in/yaml.v3"
)

type config struct {
	Config           string `cli:""        env:"CLOD_CONFIG"             help:"YAML file overlaying the scene configuration."`
	GridRes          int    `cli:""        env:"CLOD_GRID_RES"           help:"Vertices per side of the procedural height grid, 0 to skip it."`
	MeshRes          int    `cli:""        env:"CLOD_MESH_RES"           help:"Quads per side of the procedural quad mesh, 0 to skip it."`
	Camera           string `cli:""        env:"CLOD_CAMERA"             help:"Camera position as x,y,z."`
	Target           string `cli:""        env:"CLOD_TARGET"             help:"Camera target as x,y,z."`
	Width            int    `cli:",hidden" env:"CLOD_WIDTH"              help:"Viewport width in pixels."`
	Height           int    `cli:",hidden" env:"CLOD_HEIGHT"             help:"Viewport height in pixels."`
	Fov              string `cli:",hidden" env:"CLOD_FOV"                help:"Vertical field of view in degrees."`
	PatchQuads       int    `cli:",hidden" env:"CLOD_PATCH_QUADS"        help:"Quads per grid patch side, a multiple of 4."`
	MaxQuads         int    `cli:",hidden" env:"CLOD_MAX_QUADS"          help:"Maximum quads per cluster."`
	MaxMergeDepth    int    `cli:",hidden" env:"CLOD_MAX_MERGE_DEPTH"    help:"Merge levels above the leaf clusters, 0 for no limit."`
	ScreenSpaceEdges bool   `cli:""        env:"CLOD_SCREEN_SPACE_EDGES" help:"Combine projected edge levels into crack fixing."`
	Workers          int    `cli:",hidden" env:"CLOD_WORKERS"            help:"Selection workers."`
	Out              string `cli:""        env:"CLOD_OUT"                help:"Output file of the compressed mesh container."`
	Manifest         string `cli:""        env:"CLOD_MANIFEST"           help:"Output file of the JSON manifest."`
	LogLevel         string `cli:""        env:"CLOD_LOG_LEVEL"          help:"Log level (debug|info|warning|error)."`
	LogIndent        bool   `cli:""        env:"CLOD_LOG_INDENT"         help:"Indent logs."`
	Help             bool   `cli:""        env:"-"                       help:"Show help."`
}

func main() {
	defaults := clod.DefaultConfig()
	conf := config{
		GridRes:       129,
		MeshRes:       32,
		Camera:        "0,0,200",
		Target:        "0,0,0",
		Width:         1024,
		Height:        768,
		Fov:           "60",
		PatchQuads:    defaults.PatchQuads,
		MaxQuads:      defaults.MaxQuadsPerCluster,
		MaxMergeDepth: defaults.MaxMergeDepth,
		Workers:       runtime.NumCPU(),
		Out:           "scene.clod",
		Manifest:      "scene.json",
		LogLevel:      logs.InfoLevel.String(),
	}

	cli.Register().
		Help("Builds a continuous LOD scene from procedural geometry.").
		Options(&conf)
	cli.Load()

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}
	errors.Encoder = json.Marshal

	sceneConf, err := loadSceneConfig(conf)
	if err != nil {
		logs.Fatal(err)
	}

	scene, err := clod.NewScene(sceneConf)
	if err != nil {
		logs.Fatal(err)
	}
	defer scene.Close()

	if conf.GridRes > 0 {
		if _, err := scene.AddGrid(heightGrid(conf.GridRes)); err != nil {
			logs.Fatal(errors.New("adding height grid failed").Wrap(err))
		}
	}
	if conf.MeshRes > 0 {
		if _, err := scene.AddQuadMesh(waveMesh(conf.MeshRes)); err != nil {
			logs.Fatal(errors.New("adding quad mesh failed").Wrap(err))
		}
	}

	camera, err := parseCamera(conf)
	if err != nil {
		logs.Fatal(err)
	}
	frame, err := scene.Update(camera)
	if err != nil {
		logs.Fatal(errors.New("selecting patches failed").Wrap(err))
	}

	if conf.Out != "" && len(scene.Meshes) > 0 {
		if err := writeContainer(scene, conf.Out); err != nil {
			logs.Fatal(err)
		}
	}
	if conf.Manifest != "" {
		data, err := scene.Manifest(conf.Out).Marshal(true)
		if err != nil {
			logs.Fatal(errors.New("encoding manifest failed").Wrap(err))
		}
		if err := os.WriteFile(conf.Manifest, data, 0o644); err != nil {
			logs.Fatal(errors.New("writing manifest failed").
				WithTag("path", conf.Manifest).
				Wrap(err))
		}
	}

	logs.WithTag("scene", scene.ID).
		WithTag("patches", len(scene.Patches)).
		WithTag("clusters", len(scene.Clusters)).
		WithTag("roots", len(scene.ClusterRoots)).
		WithTag("states", frame.ActiveStates).
		WithTag("capacity", frame.Capacity).
		WithTag("triangles", frame.Triangles).
		WithTag("cracks_fixed", frame.CracksFixed).
		WithTag("duration", frame.Duration).
		Info("scene built")
}

func loadSceneConfig(conf config) (clod.Config, error) {
	c := clod.DefaultConfig()
	c.PatchQuads = conf.PatchQuads
	c.MaxQuadsPerCluster = conf.MaxQuads
	c.MaxMergeDepth = conf.MaxMergeDepth
	c.ScreenSpaceEdges = conf.ScreenSpaceEdges
	c.Workers = conf.Workers

	if conf.Config != "" {
		data, err := os.ReadFile(conf.Config)
		if err != nil {
			return clod.Config{}, errors.New("reading config file failed").
				WithTag("path", conf.Config).
				Wrap(err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return clod.Config{}, errors.New("parsing config file failed").
				WithType(clod.ErrTypeInvalidInput).
				WithTag("path", conf.Config).
				Wrap(err)
		}
	}
	return c, c.Validate()
}

func parseVector(s string) (vec3d.T, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return vec3d.T{}, errors.New("vector needs three components").
			WithType(clod.ErrTypeInvalidInput).
			WithTag("value", s)
	}
	var v vec3d.T
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return vec3d.T{}, errors.New("invalid vector component").
				WithType(clod.ErrTypeInvalidInput).
				WithTag("value", s).
				Wrap(err)
		}
		v[i] = f
	}
	return v, nil
}

func parseCamera(conf config) (clod.Camera, error) {
	from, err := parseVector(conf.Camera)
	if err != nil {
		return clod.Camera{}, err
	}
	to, err := parseVector(conf.Target)
	if err != nil {
		return clod.Camera{}, err
	}
	fov, err := strconv.ParseFloat(conf.Fov, 64)
	if err != nil {
		return clod.Camera{}, errors.New("invalid field of view").
			WithType(clod.ErrTypeInvalidInput).
			WithTag("fov", conf.Fov).
			Wrap(err)
	}
	return clod.NewCamera(from, to, vec3d.T{0, 1, 0}, fov*math.Pi/180, conf.Width, conf.Height), nil
}

// heightGrid is a res by res grid centered on the origin with rolling hills.
func heightGrid(res int) *clod.Grid {
	g := &clod.Grid{ResX: res, ResY: res, Positions: make([]vec3d.T, 0, res*res)}
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			fx, fy := float64(x-res/2), float64(y-res/2)
			h := 8 * math.Sin(fx*0.07) * math.Cos(fy*0.05)
			g.Positions = append(g.Positions, vec3d.T{fx, fy, h})
		}
	}
	return g
}

// waveMesh is a res by res quad mesh with a shallow wave, placed beside the
// height grid.
func waveMesh(res int) *clod.QuadMesh {
	vertices := make([]vec3d.T, 0, (res+1)*(res+1))
	for y := 0; y <= res; y++ {
		for x := 0; x <= res; x++ {
			fx, fy := float64(x), float64(y)
			vertices = append(vertices, vec3d.T{fx + 100, fy, 0.2 * math.Sin(fx*0.2)})
		}
	}
	quads := make([][4]int, 0, res*res)
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			v0 := y*(res+1) + x
			quads = append(quads, [4]int{v0, v0 + 1, v0 + res + 2, v0 + res + 1})
		}
	}
	m := clod.NewQuadMesh()
	m.AppendQuads(vertices, quads)
	return m
}

func writeContainer(scene *clod.Scene, path string) error {
	var buf bytes.Buffer
	for i := range scene.Meshes {
		c, err := scene.MeshContainer(int32(i))
		if err != nil {
			return err
		}
		if err := c.Write(&buf); err != nil {
			return errors.New("encoding mesh container failed").
				WithTag("mesh", i).
				Wrap(err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.New("writing mesh container failed").
			WithTag("path", path).
			Wrap(err)
	}
	return nil
}
