// Package config loads tool configuration.
//
// Configuration comes from a YAML file, found in this order:
//  1. an explicit path (the --config flag)
//  2. $TRAWL_CONFIG
//  3. ~/.trawl/config.yaml
//
// A missing file is not an error; every field has a default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath is the environment variable that overrides the default
// config file location.
const EnvConfigPath = "TRAWL_CONFIG"

// Duration wraps time.Duration so YAML values like "90s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all tunable settings.
type Config struct {
	// DataDir is where executions, fetched inputs, and published
	// results live. Default ~/.trawl.
	DataDir string `yaml:"data_dir"`

	// Database is the SQLite database path. Default <DataDir>/trawl.db.
	Database string `yaml:"database"`

	// IPFSGateway is the HTTP gateway used to fetch input CIDs.
	IPFSGateway string `yaml:"ipfs_gateway"`

	// DockerBinary is the container runtime binary. Default "docker".
	DockerBinary string `yaml:"docker_binary"`

	// FetchTimeout bounds a single input volume fetch.
	FetchTimeout Duration `yaml:"fetch_timeout"`

	// PollInterval is how often the serve loop scans the store for
	// jobs submitted by other processes.
	PollInterval Duration `yaml:"poll_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return applyDefaults(Config{})
}

// applyDefaults fills the fields a config file left unset. Database
// derives from DataDir, so it must be defaulted after DataDir and
// never before the file is read.
func applyDefaults(cfg Config) Config {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		cfg.DataDir = filepath.Join(home, ".trawl")
	}
	if cfg.Database == "" {
		cfg.Database = filepath.Join(cfg.DataDir, "trawl.db")
	}
	if cfg.DockerBinary == "" {
		cfg.DockerBinary = "docker"
	}
	// Gateway and timeouts default inside the storage package; zero
	// values here mean "use the package default".
	return cfg
}

// Load resolves and reads the configuration. explicitPath comes from
// the --config flag; empty means fall back to $TRAWL_CONFIG and then
// the default location. An absent file yields the defaults; a present
// but unreadable or malformed file is an error.
func Load(explicitPath string) (Config, error) {
	path, required := resolvePath(explicitPath)

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return applyDefaults(cfg), nil
		}
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return applyDefaults(cfg), nil
}

// resolvePath picks the config file path. required reports whether the
// file was explicitly named and must therefore exist.
func resolvePath(explicitPath string) (path string, required bool) {
	if explicitPath != "" {
		return explicitPath, true
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".trawl", "config.yaml"), false
}
