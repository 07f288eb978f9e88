// Package config provides configuration loading and management for nanorods.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"nanorods/internal/models"
	"nanorods/pkg/analysis"
	"nanorods/pkg/filters"
	"nanorods/pkg/geometry"
	"nanorods/pkg/segmentation"
	"nanorods/pkg/visualization"
	"nanorods/pkg/watershed"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers is the number of micrographs analyzed concurrently
		NumWorkers int `yaml:"numWorkers"`

		// ImageTimeout bounds the analysis of one micrograph
		ImageTimeout time.Duration `yaml:"imageTimeout"`

		// GridMode reads an EPU session (Images-Disc1/<GridSquare>/Data)
		GridMode bool `yaml:"gridMode"`

		// PixelSize in nm for images without calibration
		PixelSize float64 `yaml:"pixelSize"`

		// PixelSizeOverride in nm replaces the calibration of every image when positive
		PixelSizeOverride float64 `yaml:"pixelSizeOverride"`
	} `yaml:"processing"`

	// Segmentation parameters
	Segmentation segmentation.Params `yaml:"segmentation"`

	// Watershed parameters
	Watershed struct {
		// SeedFraction of the largest distance above which pixels become seeds
		SeedFraction float64 `yaml:"seedFraction"`
	} `yaml:"watershed"`

	// Filters are applied in the listed order
	Filters []filters.Rule `yaml:"filters"`

	// Geometry parameters
	Geometry struct {
		// OffsetNm is the tip-to-tip offset removed from the caliper diameter
		OffsetNm float64 `yaml:"offsetNm"`
	} `yaml:"geometry"`

	// Output parameters
	Output struct {
		// Dir receives the analysis folder, empty means next to the input folder
		Dir string `yaml:"dir"`

		// SaveOverlays writes one PNG per micrograph with detected nanorods
		SaveOverlays bool `yaml:"saveOverlays"`

		Overlay visualization.Options `yaml:"overlay"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is one of trace, debug, info, warn, error
		Level string `yaml:"level"`

		// JSON switches from console output to JSON lines
		JSON bool `yaml:"json"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.ImageTimeout = analysis.DefaultImageTimeout
	cfg.Processing.GridMode = false
	cfg.Processing.PixelSize = 0

	cfg.Segmentation = segmentation.DefaultParams()
	cfg.Watershed.SeedFraction = watershed.DefaultSeedFraction
	cfg.Filters = filters.DefaultRules()
	cfg.Geometry.OffsetNm = geometry.DefaultOffsetNm

	cfg.Output.SaveOverlays = true
	cfg.Output.Overlay = visualization.DefaultOptions()

	cfg.Logging.Level = "info"

	return cfg
}

// ErrConfigExists is returned when a default configuration would overwrite a file
var ErrConfigExists = errors.New("configuration file already exists")

// LoadConfig reads a YAML file over the defaults and validates the result. Keys that do not
// belong to any section are rejected. A missing file gives the defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	file, err := os.Open(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	defer file.Close()

	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig writes a valid configuration to a YAML file, creating its directory
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data = append([]byte(configHeader), data...)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

const configHeader = "# nanorods configuration. Durations use Go syntax (90s, 10m), lengths are in nm.\n"

// CreateDefaultConfigFile writes the defaults to configPath. An existing file is left untouched.
func CreateDefaultConfigFile(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, configPath)
	}
	return SaveConfig(DefaultConfig(), configPath)
}

// Options converts the pipeline sections into validated analysis options
func (c *Config) Options() (analysis.Options, error) {
	chain, err := filters.FromRules(c.Filters, c.Geometry.OffsetNm)
	if err != nil {
		return analysis.Options{}, fmt.Errorf("filters: %w", err)
	}
	opts := analysis.Options{
		Segmentation: c.Segmentation,
		SeedFraction: c.Watershed.SeedFraction,
		Filters:      chain,
		OffsetNm:     c.Geometry.OffsetNm,
		PixelSize:    c.Processing.PixelSizeOverride,
	}
	if err := opts.Validate(); err != nil {
		return analysis.Options{}, err
	}
	return opts, nil
}

// Validate checks the whole configuration
func (c *Config) Validate() error {
	if c.Processing.NumWorkers < 0 {
		return fmt.Errorf("%w: numWorkers must be non-negative, got %d", models.ErrInvalidParameter, c.Processing.NumWorkers)
	}
	if c.Processing.ImageTimeout < 0 {
		return fmt.Errorf("%w: imageTimeout must be non-negative, got %v", models.ErrInvalidParameter, c.Processing.ImageTimeout)
	}
	if !(c.Processing.PixelSize >= 0) {
		return fmt.Errorf("%w: pixelSize must be non-negative, got %v", models.ErrInvalidParameter, c.Processing.PixelSize)
	}
	if _, err := c.Options(); err != nil {
		return err
	}
	if _, err := visualization.NewRenderer(c.Output.Overlay); err != nil {
		return fmt.Errorf("overlay: %w", err)
	}
	return nil
}

// AnalyzerParams builds the batch parameters for inputDir
func (c *Config) AnalyzerParams(inputDir string) (*analysis.Params, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	return &analysis.Params{
		InputDir:     inputDir,
		OutputDir:    c.Output.Dir,
		GridMode:     c.Processing.GridMode,
		NumWorkers:   c.Processing.NumWorkers,
		ImageTimeout: c.Processing.ImageTimeout,
		PixelSize:    c.Processing.PixelSize,
		SaveOverlays: c.Output.SaveOverlays,
		Overlay:      c.Output.Overlay,
		Options:      opts,
	}, nil
}
