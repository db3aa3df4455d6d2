package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/urbanform/hexpipe/internal/aoi"
	"github.com/urbanform/hexpipe/internal/models"
)

// GeocoderConfig controls the boundary resolution source.
type GeocoderConfig struct {
	// Base URL of a Nominatim-compatible search endpoint
	URL string `yaml:"url"`

	// Identifies the pipeline to the geocoding service
	UserAgent string `yaml:"user_agent"`

	TimeoutStr string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`

	// Number of attempts before giving up; backoff doubles between attempts
	Retries int `yaml:"retries"`
}

// Config is the explicit configuration object passed to every stage. No
// stage reads paths from hardcoded constants.
type Config struct {
	// H3 resolution for grid generation; fixed per run
	Resolution int `yaml:"h3_resolution"`

	// Worker pool size for per-AOI jobs
	Workers int `yaml:"workers"`

	// Country appended to AOI names when missing
	Country string `yaml:"country"`

	// Root for raw and processed data
	DataDir string `yaml:"data_dir"`

	// Country-wide .osm.pbf snapshot the per-AOI extracts are clipped from
	SourcePBF string `yaml:"source_pbf"`

	// Path to the osmium binary used for clipping
	OsmiumBin string `yaml:"osmium_bin"`

	// Deduplicate cells shared by adjacent AOIs in the merged grid. Off by
	// default: the same cell may legitimately belong to two AOIs for
	// independent aggregation.
	DedupeMergedGrid bool `yaml:"dedupe_merged_grid"`

	Geocoder GeocoderConfig `yaml:"geocoder"`

	// Group name -> ordered city display names
	Groups map[string][]string `yaml:"groups"`
}

// Load reads the YAML configuration file, applies environment overrides and
// validates the result. A .env file next to the working directory is loaded
// first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ConfigurationError{Reason: fmt.Sprintf("cannot read config %s: %v", path, err)}
	}

	cfg := &Config{
		Resolution: 9,
		Workers:    4,
		Country:    "Australia",
		DataDir:    "data",
		OsmiumBin:  "osmium",
		Geocoder: GeocoderConfig{
			URL:        "https://nominatim.openstreetmap.org",
			UserAgent:  "hexpipe/1.0",
			TimeoutStr: "30s",
			Retries:    3,
		},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &models.ConfigurationError{Reason: fmt.Sprintf("malformed config %s: %v", path, err)}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HEXPIPE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("HEXPIPE_SOURCE_PBF"); v != "" {
		cfg.SourcePBF = v
	}
	if v := os.Getenv("HEXPIPE_GEOCODER_URL"); v != "" {
		cfg.Geocoder.URL = v
	}
	if v := os.Getenv("HEXPIPE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
}

func (c *Config) validate() error {
	if c.Resolution < 0 || c.Resolution > 15 {
		return &models.ConfigurationError{Reason: fmt.Sprintf("h3_resolution %d out of range 0-15", c.Resolution)}
	}
	if c.Workers < 1 {
		return &models.ConfigurationError{Reason: "workers must be at least 1"}
	}
	if c.DataDir == "" {
		return &models.ConfigurationError{Reason: "data_dir must not be empty"}
	}
	if c.Country != "" && !aoi.ValidCountry(c.Country) {
		return &models.ConfigurationError{Reason: fmt.Sprintf("unknown country %q", c.Country)}
	}

	d, err := time.ParseDuration(c.Geocoder.TimeoutStr)
	if err != nil {
		return &models.ConfigurationError{Reason: fmt.Sprintf("invalid geocoder timeout %q: %v", c.Geocoder.TimeoutStr, err)}
	}
	c.Geocoder.Timeout = d

	if c.Geocoder.Retries < 1 {
		return &models.ConfigurationError{Reason: "geocoder retries must be at least 1"}
	}
	return nil
}

// PolygonDir is where resolved boundary polygons are cached.
func (c *Config) PolygonDir() string { return filepath.Join(c.DataDir, "external", "polygons") }

// PBFDir is where per-AOI .osm.pbf extracts live.
func (c *Config) PBFDir() string { return filepath.Join(c.DataDir, "external", "pbf") }

// GridDir is where per-AOI and merged hex grids are written.
func (c *Config) GridDir() string { return filepath.Join(c.DataDir, "processed", "grid") }

// OutputDir is where aggregated hex feature tables are written.
func (c *Config) OutputDir() string { return filepath.Join(c.DataDir, "processed", "osm") }

// GridPath names one AOI's grid file.
func (c *Config) GridPath(slug string) string {
	return filepath.Join(c.GridDir(), fmt.Sprintf("%s_res%d.gpkg", slug, c.Resolution))
}

// MergedGridPath names the combined grid covering every processed AOI.
func (c *Config) MergedGridPath() string {
	return filepath.Join(c.GridDir(), fmt.Sprintf("merged_res%d.gpkg", c.Resolution))
}

// ExtractPath names one AOI's OSM extract.
func (c *Config) ExtractPath(slug string) string {
	return filepath.Join(c.PBFDir(), slug+".osm.pbf")
}

// OutputPath names one AOI's aggregated feature table.
func (c *Config) OutputPath(slug string) string {
	return filepath.Join(c.OutputDir(), slug+"_osm_hex_features.gpkg")
}
