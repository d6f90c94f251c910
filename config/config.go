// Package config reads the YAML settings file of the vaxprogress CLI.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the CLI reads from its YAML file.
// Flags given on the command line override these values.
type Config struct {
	DataPath   string   `yaml:"data_path"`
	OutputDir  string   `yaml:"output_dir"`
	Format     string   `yaml:"format"`       // output format of single queries: json, pretty, text, csv
	ImageType  string   `yaml:"image_format"` // png or svg
	Countries  []string `yaml:"countries"`
	TopN       int      `yaml:"top_n"`
	LogLevel   string   `yaml:"log_level"`
	ListenAddr string   `yaml:"listen_addr"`
	SQLitePath string   `yaml:"sqlite_path"`
	RecipePath string   `yaml:"recipe_path"`
}

// Default returns the settings of the original analysis: the US, UK and
// Canada daily rates and the nine lowest/highest countries.
func Default() *Config {
	return &Config{
		DataPath:   "country_vaccinations.csv",
		OutputDir:  "report",
		Format:     "json",
		ImageType:  "png",
		Countries:  []string{"United States", "United Kingdom", "Canada"},
		TopN:       9,
		LogLevel:   "info",
		ListenAddr: ":8080",
		SQLitePath: "vaccinations.db",
	}
}

// LoadConfig reads path over the defaults. Keys missing from the file keep
// their default value.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects values the CLI cannot act on.
func (c *Config) Validate() error {
	switch c.Format {
	case "json", "pretty", "text", "csv":
	default:
		return fmt.Errorf("config: unknown format %q", c.Format)
	}
	switch c.ImageType {
	case "png", "svg":
	default:
		return fmt.Errorf("config: unknown image_format %q", c.ImageType)
	}
	if c.TopN < 0 {
		return fmt.Errorf("config: top_n must not be negative, got %d", c.TopN)
	}
	return nil
}
