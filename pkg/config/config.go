package config

// Config is the umbrella configuration object returned by Initialize and
// threaded through every component constructor.
type Config struct {
	configDir string

	Database     DatabaseConfig     `yaml:"database"`
	Coordination CoordinationConfig `yaml:"coordination"`
	ObjectStore  ObjectStoreConfig  `yaml:"object_store"`
	Scalers      []ScalerConfig     `yaml:"scalers"`
	Backends     []BackendConfig    `yaml:"backends"`
	Retention    RetentionConfig    `yaml:"retention"`

	HostPathWhitelist    []string `yaml:"host_path_whitelist"`
	UnrestrictedHostPath bool     `yaml:"unrestricted_host_path"`
}

// Initialize is defined in loader.go

// ConfigStats summarizes a loaded configuration for startup logging.
type ConfigStats struct {
	Scalers  int
	Backends int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	return ConfigStats{
		Scalers:  len(c.Scalers),
		Backends: len(c.Backends),
	}
}

// ConfigDir returns the configuration directory path used to load this Config.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ScalerByKind returns the configured knobs for a scaler kind, falling back
// to the package defaults if the kind has no explicit entry.
func (c *Config) ScalerByKind(kind ScalerKind) ScalerConfig {
	for _, s := range c.Scalers {
		if s.Kind == kind {
			return s
		}
	}
	d := DefaultScalerConfig()
	d.Kind = kind
	return d
}

// BackendByKind returns the configured backend driver settings for a scaler
// kind, or ok=false when nothing is configured for it.
func (c *Config) BackendByKind(kind ScalerKind) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.Kind == kind {
			return b, true
		}
	}
	return BackendConfig{}, false
}
