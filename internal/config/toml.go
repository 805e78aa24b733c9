// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Analysis AnalysisConfig `toml:"analysis"`
	Layers   LayersConfig   `toml:"layers"`
	Store    StoreConfig    `toml:"store"`
	Log      LogConfig      `toml:"log"`
}

// AnalysisConfig maps pipeline settings.
type AnalysisConfig struct {
	BufferRadius         *float64  `toml:"buffer-radius"`
	RationalMaxArea      *float64  `toml:"rational-max-area"`
	StandardPeriods      []float64 `toml:"standard-periods"`
	ExtrapolationPeriods []float64 `toml:"extrapolation-periods"`
	TcFormula            *string   `toml:"tc-formula"`
	NativeCRS            *string   `toml:"native-crs"`
	DisplayCRS           *string   `toml:"display-crs"`
}

// LayersConfig maps raster file locations. Aux keys are layer names such as
// p0, i1id, rain_100 or flow_100.
type LayersConfig struct {
	Elevation     *string           `toml:"elevation"`
	FlowDirection *string           `toml:"flow-direction"`
	Aux           map[string]string `toml:"aux"`
}

// StoreConfig maps the region catalogue location.
type StoreConfig struct {
	Path *string `toml:"path"`
}

// LogConfig maps logger settings.
type LogConfig struct {
	Level  *string `toml:"level"`
	Format *string `toml:"format"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
