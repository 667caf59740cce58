// Package config provides configuration loading and management for sdfvol.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/soypat/sdfvol/distvol"
	"github.com/soypat/sdfvol/signdist"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Distance volume parameters
	Distance struct {
		// FillValue is written to voxels farther than ApproxLimit
		FillValue float32 `yaml:"fillValue"`

		// ExactLimit is the distance in mm within which voxels are evaluated exactly
		ExactLimit float64 `yaml:"exactLimit"`

		// ApproxLimit is the largest distance in mm written to the volume
		ApproxLimit float64 `yaml:"approxLimit"`

		// ApproxNeighborhood is the voxel radius of distance propagation
		ApproxNeighborhood int `yaml:"approxNeighborhood"`

		// Winding is one of EVEN_ODD, WINDING, NEGATIVE or NORMALS
		Winding string `yaml:"winding"`

		// ROIComputed marks every computed voxel in the ROI instead of inside voxels only
		ROIComputed bool `yaml:"roiComputed"`
	} `yaml:"distance"`

	// Grid parameters used when no template volume is given
	Grid struct {
		// Spacing is the isotropic voxel size in mm
		Spacing float64 `yaml:"spacing"`

		// Padding is the margin in mm added around the surface bounds
		Padding float64 `yaml:"padding"`
	} `yaml:"grid"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`

		// BatchSize is the number of voxels per work unit
		BatchSize int `yaml:"batchSize"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	p := distvol.DefaultParams()

	cfg.Distance.FillValue = p.FillValue
	cfg.Distance.ExactLimit = p.ExactLimit
	cfg.Distance.ApproxLimit = p.ApproxLimit
	cfg.Distance.ApproxNeighborhood = p.ApproxNeighborhood
	cfg.Distance.Winding = p.Winding.String()
	cfg.Distance.ROIComputed = false

	cfg.Grid.Spacing = 1.0
	cfg.Grid.Padding = p.ApproxLimit

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.BatchSize = 256

	cfg.Output.Verbose = false
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

// Params converts the configuration to distance volume parameters and validates them.
func (cfg *Config) Params() (distvol.Params, error) {
	w, err := signdist.ParseWinding(cfg.Distance.Winding)
	if err != nil {
		return distvol.Params{}, err
	}
	p := distvol.DefaultParams()
	p.FillValue = cfg.Distance.FillValue
	p.ExactLimit = cfg.Distance.ExactLimit
	p.ApproxLimit = cfg.Distance.ApproxLimit
	p.ApproxNeighborhood = cfg.Distance.ApproxNeighborhood
	p.Winding = w
	if cfg.Distance.ROIComputed {
		p.ROI = distvol.ROIComputed
	}
	p.Workers = max(0, cfg.Processing.NumCores)
	p.BatchSize = max(0, cfg.Processing.BatchSize)
	if err := p.Validate(); err != nil {
		return distvol.Params{}, err
	}
	return p, nil
}
