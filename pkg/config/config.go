// Package config provides configuration loading and management for phantomqa.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"phantomqa/pkg/qaerr"
)

// Phantom sizes
const (
	PhantomLarge  = "large"
	PhantomMedium = "medium"
)

// RampShape is the starting trapezoid for one nominal slice thickness
type RampShape struct {
	Ramp    int `yaml:"ramp"`
	Plateau int `yaml:"plateau"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores bounds how many slices are analysed concurrently
		NumCores int `yaml:"numCores"`

		// SliceIndex selects the slice of a position-sorted stack the single-slice tasks run on
		SliceIndex int `yaml:"sliceIndex"`
	} `yaml:"processing"`

	// Phantom geometry
	Phantom struct {
		// Size is "large" or "medium"; it sets the large uniformity ROI
		Size string `yaml:"size"`

		// RodCount and RodRows describe the slice width rod grid
		RodCount int `yaml:"rodCount"`
		RodRows  int `yaml:"rodRows"`

		// RodSeparationMM is the nominal distance between outer rods
		RodSeparationMM float64 `yaml:"rodSeparationMM"`
	} `yaml:"phantom"`

	// Landmark detection parameters
	Detection struct {
		// MaxLevels caps the number of thresholds in the rod sweep
		MaxLevels int `yaml:"maxLevels"`

		// BodyThresholdFraction is the fraction of the image maximum that separates body from background
		BodyThresholdFraction float64 `yaml:"bodyThresholdFraction"`

		// BodyMinArea removes bright specks smaller than this many pixels
		BodyMinArea int `yaml:"bodyMinArea"`

		// SnapDistancePx is the largest distance a mapped landmark may move to a detected one
		SnapDistancePx float64 `yaml:"snapDistancePx"`
	} `yaml:"detection"`

	// Uniformity ROI parameters
	Uniformity struct {
		// LargeRadiusMM overrides the radius derived from the phantom size when positive
		LargeRadiusMM float64 `yaml:"largeRadiusMM"`
		SmallAreaMM2  float64 `yaml:"smallAreaMM2"`
		VoidOffsetMM  float64 `yaml:"voidOffsetMM"`
	} `yaml:"uniformity"`

	// Ghosting ROI parameters
	Ghosting struct {
		LargeRadiusMM  float64 `yaml:"largeRadiusMM"`
		VoidOffsetMM   float64 `yaml:"voidOffsetMM"`
		EllipseAreaMM2 float64 `yaml:"ellipseAreaMM2"`
		TolerancePx    float64 `yaml:"tolerancePx"`
	} `yaml:"ghosting"`

	// Slice width parameters
	SliceWidth struct {
		BandHalfWidth   int     `yaml:"bandHalfWidth"`
		SampleSpacing   float64 `yaml:"sampleSpacing"`
		BaselinePadding int     `yaml:"baselinePadding"`
		RampAngleDeg    float64 `yaml:"rampAngleDeg"`

		// MaxPasses caps the trapezoid search
		MaxPasses int `yaml:"maxPasses"`

		// Ramps maps nominal thickness in mm to the starting trapezoid
		Ramps map[float64]RampShape `yaml:"ramps"`
	} `yaml:"sliceWidth"`

	// Registration parameters
	Registration struct {
		// Motion is "translation", "euclidean" or "affine"
		Motion        string  `yaml:"motion"`
		MaxIterations int     `yaml:"maxIterations"`
		Epsilon       float64 `yaml:"epsilon"`
		GaussianSize  int     `yaml:"gaussianSize"`

		// SampleSize is the side of the square averaged around each mapped landmark
		SampleSize int `yaml:"sampleSize"`
	} `yaml:"registration"`

	// Output parameters
	Output struct {
		// Dir receives reports and overlays
		Dir string `yaml:"dir"`

		// SaveOverlays writes a diagnostic image per task
		SaveOverlays bool `yaml:"saveOverlays"`

		// OverlayFormat is "png" or "jpeg"
		OverlayFormat string `yaml:"overlayFormat"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is a zerolog level name
		Level string `yaml:"level"`

		// Format is "console" or "json"
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.SliceIndex = 6 // slice 7 of the ACR series

	cfg.Phantom.Size = PhantomLarge
	cfg.Phantom.RodCount = 9
	cfg.Phantom.RodRows = 3
	cfg.Phantom.RodSeparationMM = 120

	cfg.Detection.MaxLevels = 4096
	cfg.Detection.BodyThresholdFraction = 0.25
	cfg.Detection.BodyMinArea = 500
	cfg.Detection.SnapDistancePx = 5

	cfg.Uniformity.SmallAreaMM2 = 100
	cfg.Uniformity.VoidOffsetMM = 5

	cfg.Ghosting.LargeRadiusMM = 80
	cfg.Ghosting.VoidOffsetMM = 5
	cfg.Ghosting.EllipseAreaMM2 = 1000
	cfg.Ghosting.TolerancePx = 5

	cfg.SliceWidth.BandHalfWidth = 10
	cfg.SliceWidth.SampleSpacing = 0.25
	cfg.SliceWidth.BaselinePadding = 30
	cfg.SliceWidth.RampAngleDeg = 11.3
	cfg.SliceWidth.MaxPasses = 10000
	cfg.SliceWidth.Ramps = map[float64]RampShape{
		3: {Ramp: 7, Plateau: 32},
		5: {Ramp: 47, Plateau: 55},
	}

	cfg.Registration.Motion = "euclidean"
	cfg.Registration.MaxIterations = 500
	cfg.Registration.Epsilon = 1e-10
	cfg.Registration.GaussianSize = 5
	cfg.Registration.SampleSize = 3

	cfg.Output.Dir = "qa_results"
	cfg.Output.SaveOverlays = false
	cfg.Output.OverlayFormat = "png"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate rejects values the measurement packages cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.Processing.NumCores <= 0:
		return qaerr.InvalidInput("processing.numCores must be positive")
	case c.Processing.SliceIndex < 0:
		return qaerr.InvalidInput("processing.sliceIndex must not be negative")
	case c.Phantom.Size != PhantomLarge && c.Phantom.Size != PhantomMedium:
		return qaerr.InvalidInput("phantom.size %q is neither %q nor %q", c.Phantom.Size, PhantomLarge, PhantomMedium)
	case c.Phantom.RodRows <= 0 || c.Phantom.RodCount <= 0 || c.Phantom.RodCount%c.Phantom.RodRows != 0:
		return qaerr.InvalidInput("phantom rod grid %d rods in %d rows", c.Phantom.RodCount, c.Phantom.RodRows)
	case c.Phantom.RodSeparationMM <= 0:
		return qaerr.InvalidInput("phantom.rodSeparationMM must be positive")
	case c.Detection.BodyThresholdFraction <= 0 || c.Detection.BodyThresholdFraction >= 1:
		return qaerr.InvalidInput("detection.bodyThresholdFraction must be in (0, 1)")
	case c.SliceWidth.SampleSpacing <= 0 || c.SliceWidth.SampleSpacing > 1:
		return qaerr.InvalidInput("sliceWidth.sampleSpacing must be in (0, 1]")
	case c.SliceWidth.BandHalfWidth <= 0:
		return qaerr.InvalidInput("sliceWidth.bandHalfWidth must be positive")
	case c.Registration.MaxIterations <= 0:
		return qaerr.InvalidInput("registration.maxIterations must be positive")
	case c.Registration.SampleSize <= 0:
		return qaerr.InvalidInput("registration.sampleSize must be positive")
	case c.Output.OverlayFormat != "png" && c.Output.OverlayFormat != "jpeg":
		return qaerr.InvalidInput("output.overlayFormat %q is neither png nor jpeg", c.Output.OverlayFormat)
	case c.Logging.Format != "console" && c.Logging.Format != "json":
		return qaerr.InvalidInput("logging.format %q is neither console nor json", c.Logging.Format)
	}
	return nil
}
