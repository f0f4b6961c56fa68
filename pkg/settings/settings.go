// Package settings resolves the dashboard configuration: an embedded base
// file selected by environment, overlaid with an optional user file.
package settings

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/1F47E/porto-climate-map/pkg/models"
)

//go:embed settings.dev.yaml settings.int.yaml settings.prod.yaml
var baseFiles embed.FS

// EnvVar is the only environment variable consulted for configuration.
const EnvVar = "APP_ENV"

// Env selects the base configuration file.
type Env string

const (
	EnvDev  Env = "DEV"
	EnvInt  Env = "INT"
	EnvProd Env = "PROD"
)

// ParseEnv maps s to a known Env. The match is exact: anything other than
// "INT" or "PROD" is DEV.
func ParseEnv(s string) Env {
	switch Env(s) {
	case EnvInt:
		return EnvInt
	case EnvProd:
		return EnvProd
	default:
		return EnvDev
	}
}

// EnvFromEnvironment reads APP_ENV, loading .env first when present.
func EnvFromEnvironment() Env {
	_ = godotenv.Load(".env")
	return ParseEnv(os.Getenv(EnvVar))
}

func (e Env) file() string {
	return "settings." + strings.ToLower(string(e)) + ".yaml"
}

// MapSettings describes the initial view and tile source.
type MapSettings struct {
	DefaultCenter   models.LatLng `yaml:"defaultCenter" json:"defaultCenter"`
	DefaultZoom     int           `yaml:"defaultZoom" json:"defaultZoom"`
	TileURL         string        `yaml:"tileURL" json:"tileURL"`
	Attribution     string        `yaml:"attribution" json:"attribution"`
	TimestampLayout string        `yaml:"timestampLayout" json:"timestampLayout"`
	Timezone        string        `yaml:"timezone" json:"timezone"`
}

// Features are the global per-layer switches.
type Features struct {
	EnableHeatmap    bool `yaml:"enableHeatmap" json:"enableHeatmap"`
	EnableGreenZones bool `yaml:"enableGreenZones" json:"enableGreenZones"`
	EnableSensors    bool `yaml:"enableSensors" json:"enableSensors"`
}

// Enabled reports the feature flag guarding a layer.
func (f Features) Enabled(key models.LayerKey) bool {
	switch key {
	case models.LayerHeatmap:
		return f.EnableHeatmap
	case models.LayerGreenZones:
		return f.EnableGreenZones
	case models.LayerSensors:
		return f.EnableSensors
	}
	return false
}

// DataSources are the endpoints the fetchers read from.
type DataSources struct {
	Sensors        string `yaml:"sensors" json:"sensors"`
	GreenZones     string `yaml:"greenzones" json:"greenzones"`
	TimeoutSeconds int    `yaml:"timeoutSeconds" json:"timeoutSeconds"`
}

// Timeout is the per-request deadline for the fetchers.
func (d DataSources) Timeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// HeatmapSettings tunes the heat layer.
type HeatmapSettings struct {
	Radius  float64 `yaml:"radius" json:"radius"`
	Blur    float64 `yaml:"blur" json:"blur"`
	MaxZoom int     `yaml:"maxZoom" json:"maxZoom"`
}

// ControlDescriptor is one entry of mapControls.controls as written in the
// configuration file. Config carries type specific options.
type ControlDescriptor struct {
	Type     string         `yaml:"type" json:"type"`
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	Title    string         `yaml:"title,omitempty" json:"title,omitempty"`
	Position string         `yaml:"position,omitempty" json:"position,omitempty"`
	Config   map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// MapControls configures the zoom control and the control panel.
type MapControls struct {
	EnableZoomControls bool                `yaml:"enableZoomControls" json:"enableZoomControls"`
	Position           string              `yaml:"position" json:"position"`
	Controls           []ControlDescriptor `yaml:"controls" json:"controls"`
}

// Settings is the resolved configuration. It is built once at startup and
// shared read-only by every component.
type Settings struct {
	Env         Env             `yaml:"-" json:"env"`
	Map         MapSettings     `yaml:"map" json:"map"`
	Features    Features        `yaml:"features" json:"features"`
	Data        DataSources     `yaml:"data" json:"data"`
	Heatmap     HeatmapSettings `yaml:"heatmap" json:"heatmap"`
	MapControls MapControls     `yaml:"mapControls" json:"mapControls"`
}

// Location resolves Map.Timezone, falling back to UTC.
func (s *Settings) Location() *time.Location {
	if s.Map.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Map.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func defaults() Settings {
	return Settings{
		Map: MapSettings{
			DefaultCenter:   models.LatLng{41.1579, -8.6291},
			DefaultZoom:     13,
			TileURL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			TimestampLayout: "02/01/2006, 15:04:05",
		},
		Features: Features{
			EnableHeatmap:    true,
			EnableGreenZones: true,
			EnableSensors:    true,
		},
		Data:    DataSources{TimeoutSeconds: 10},
		Heatmap: HeatmapSettings{Radius: 25, Blur: 15, MaxZoom: 17},
		MapControls: MapControls{
			EnableZoomControls: true,
			Position:           "topright",
		},
	}
}

// Base returns the raw configuration tree embedded for env.
func Base(env Env) (map[string]any, error) {
	data, err := baseFiles.ReadFile(env.file())
	if err != nil {
		return nil, fmt.Errorf("read base settings %s: %w", env.file(), err)
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse base settings %s: %w", env.file(), err)
	}
	return tree, nil
}

// Merge overlays override onto base. Top-level keys are replaced wholesale,
// except "features" which is merged key by key with override winning.
// Neither input is modified.
func Merge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}

	features := map[string]any{}
	if bf, ok := base["features"].(map[string]any); ok {
		for k, v := range bf {
			features[k] = v
		}
	}
	if of, ok := override["features"].(map[string]any); ok {
		for k, v := range of {
			features[k] = v
		}
	}
	out["features"] = features
	return out
}

// Resolve builds the settings for env with override applied on top.
func Resolve(env Env, override map[string]any) (*Settings, error) {
	base, err := Base(env)
	if err != nil {
		return nil, err
	}
	merged := Merge(base, override)

	// Round-trip through YAML so the tree lands on typed fields. A section
	// present in the merged tree is taken as is, so its defaults are
	// cleared first; only absent sections keep them. features merges key
	// by key and keeps its defaults underneath.
	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode merged settings: %w", err)
	}
	s := defaults()
	for key := range merged {
		switch key {
		case "map":
			s.Map = MapSettings{}
		case "data":
			s.Data = DataSources{}
		case "heatmap":
			s.Heatmap = HeatmapSettings{}
		case "mapControls":
			s.MapControls = MapControls{}
		}
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode merged settings: %w", err)
	}
	s.Env = env
	return &s, nil
}

// ReadOverride parses a user override file. A missing file is an empty
// override.
func ReadOverride(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user settings: %w", err)
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse user settings %s: %w", path, err)
	}
	return tree, nil
}

// Load resolves env against the user override file at userPath.
func Load(env Env, userPath string) (*Settings, error) {
	override, err := ReadOverride(userPath)
	if err != nil {
		return nil, err
	}
	return Resolve(env, override)
}
