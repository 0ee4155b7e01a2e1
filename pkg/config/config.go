// Package config provides configuration loading and management for wedgecal.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"wedgecal/pkg/calibration"
	"wedgecal/pkg/histogram"
	"wedgecal/pkg/peaks"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Smoothing parameters applied to the wedge histogram before the peak search
	Smoothing histogram.SmoothParams `yaml:"smoothing"`

	// Peaks holds the peak search parameters
	Peaks peaks.Config `yaml:"peaks"`

	// Wedge describes the physical step wedge
	Wedge struct {
		// ODValues are the datasheet values of the wedge steps, ascending
		ODValues []float64 `yaml:"odValues"`

		// Units is the name of the calibrated unit
		Units string `yaml:"units"`

		// UnitsAbbrev is the short unit label
		UnitsAbbrev string `yaml:"unitsAbbrev"`

		// ManufacturerPartNbr identifies the wedge
		ManufacturerPartNbr string `yaml:"manufacturerPartNbr"`

		// MaxGrayValue is the largest gray value of the scans
		MaxGrayValue int `yaml:"maxGrayValue"`

		// ExpectedSteps is the number of steps visible on a scan; 0 disables the check
		ExpectedSteps int `yaml:"expectedSteps"`
	} `yaml:"wedge"`

	// Output parameters
	Output struct {
		// CalibrationDir is where calibration files are written
		CalibrationDir string `yaml:"calibrationDir"`

		// SaveCalibratedImage writes the calibrated image next to the calibration file
		SaveCalibratedImage bool `yaml:"saveCalibratedImage"`

		// DisplayMaxOD is the value rendered as full white in the calibrated image
		DisplayMaxOD float64 `yaml:"displayMaxOD"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Smoothing = histogram.DefaultSmoothParams()
	cfg.Peaks = peaks.DefaultConfig()

	// 20-step tablet, 0.05 to 2.90 OD in 0.15 increments
	cfg.Wedge.ODValues = make([]float64, calibration.MaxNDSteps)
	for i := range cfg.Wedge.ODValues {
		cfg.Wedge.ODValues[i] = float64(5+15*i) / 100
	}
	cfg.Wedge.Units = "optical density"
	cfg.Wedge.UnitsAbbrev = "od"
	cfg.Wedge.MaxGrayValue = histogram.DefaultMaxGray
	cfg.Wedge.ExpectedSteps = 0

	cfg.Output.CalibrationDir = "calibrations"
	cfg.Output.SaveCalibratedImage = false
	cfg.Output.DisplayMaxOD = 3.0
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks the values a calibration run cannot work without
func (c *Config) Validate() error {
	if len(c.Wedge.ODValues) > calibration.MaxNDSteps {
		return fmt.Errorf("wedge has %d OD values, at most %d are supported", len(c.Wedge.ODValues), calibration.MaxNDSteps)
	}
	if c.Wedge.MaxGrayValue < 1 {
		return fmt.Errorf("maxGrayValue must be positive, got %d", c.Wedge.MaxGrayValue)
	}
	if c.Smoothing.Enabled && c.Smoothing.Iterations < 1 {
		return fmt.Errorf("smoothing iterations must be at least 1, got %d", c.Smoothing.Iterations)
	}
	if c.Output.DisplayMaxOD <= 0 {
		return fmt.Errorf("displayMaxOD must be positive, got %g", c.Output.DisplayMaxOD)
	}
	return nil
}

// CalibrationParams returns the parameters for a calibration run
func (c *Config) CalibrationParams() calibration.Params {
	return calibration.Params{
		Smoothing:     c.Smoothing,
		Peaks:         c.Peaks,
		ODValues:      append([]float64(nil), c.Wedge.ODValues...),
		ExpectedSteps: c.Wedge.ExpectedSteps,
		Verbose:       c.Output.Verbose,
	}
}

// NewTable creates an empty calibration table labelled with the wedge units
func (c *Config) NewTable() *calibration.Table {
	table := calibration.NewTable(c.Wedge.MaxGrayValue)
	table.Units = c.Wedge.Units
	table.UnitsAbbrev = c.Wedge.UnitsAbbrev
	table.ManufacturerPartNbr = c.Wedge.ManufacturerPartNbr
	return table
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
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
