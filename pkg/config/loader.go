package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ThoriumYAMLConfig represents the complete thorium.yaml file structure.
type ThoriumYAMLConfig struct {
	Database     *DatabaseConfig     `yaml:"database"`
	Coordination *CoordinationConfig `yaml:"coordination"`
	ObjectStore  *ObjectStoreConfig  `yaml:"object_store"`
	Scalers      []ScalerConfig      `yaml:"scalers"`
	Backends     []BackendConfig     `yaml:"backends"`
	Retention    *RetentionConfig    `yaml:"retention"`

	HostPathWhitelist    []string `yaml:"host_path_whitelist"`
	UnrestrictedHostPath bool     `yaml:"unrestricted_host_path"`
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point used by cmd/thorium-api and cmd/thorium-scaler.
//
// Steps performed:
//  1. Load thorium.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user-defined values over package defaults
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized successfully",
		"scalers", stats.Scalers,
		"backends", stats.Backends)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadThoriumYAML()
	if err != nil {
		return nil, NewLoadError("thorium.yaml", err)
	}

	database, err := mergeDatabase(yamlCfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to merge database config: %w", err)
	}
	coordination, err := mergeCoordination(yamlCfg.Coordination)
	if err != nil {
		return nil, fmt.Errorf("failed to merge coordination config: %w", err)
	}
	objectStore, err := mergeObjectStore(yamlCfg.ObjectStore)
	if err != nil {
		return nil, fmt.Errorf("failed to merge object store config: %w", err)
	}
	scalers, err := mergeScalers(yamlCfg.Scalers)
	if err != nil {
		return nil, fmt.Errorf("failed to merge scaler config: %w", err)
	}
	retention, err := mergeRetention(yamlCfg.Retention)
	if err != nil {
		return nil, fmt.Errorf("failed to merge retention config: %w", err)
	}

	return &Config{
		configDir:            configDir,
		Database:             database,
		Coordination:         coordination,
		ObjectStore:          objectStore,
		Scalers:              scalers,
		Backends:             yamlCfg.Backends,
		Retention:            retention,
		HostPathWhitelist:    yamlCfg.HostPathWhitelist,
		UnrestrictedHostPath: yamlCfg.UnrestrictedHostPath,
	}, nil
}

func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand $VAR / ${VAR} references before parsing so secrets can be
	// supplied out-of-band.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadThoriumYAML() (*ThoriumYAMLConfig, error) {
	var cfg ThoriumYAMLConfig
	if err := l.loadYAML("thorium.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
