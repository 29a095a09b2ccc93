package config

import "fmt"

// Validator validates configuration comprehensively with clear error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at the
// first error).
func (v *Validator) ValidateAll() error {
	if err := v.validateDatabase(); err != nil {
		return fmt.Errorf("database validation failed: %w", err)
	}
	if err := v.validateCoordination(); err != nil {
		return fmt.Errorf("coordination validation failed: %w", err)
	}
	if err := v.validateObjectStore(); err != nil {
		return fmt.Errorf("object store validation failed: %w", err)
	}
	if err := v.validateScalers(); err != nil {
		return fmt.Errorf("scaler validation failed: %w", err)
	}
	if err := v.validateBackends(); err != nil {
		return fmt.Errorf("backend validation failed: %w", err)
	}
	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	d := v.cfg.Database
	if d.Host == "" {
		return fmt.Errorf("host is required")
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", d.Port)
	}
	if d.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if d.MaxOpenConns < 1 {
		return fmt.Errorf("max_open_conns must be at least 1, got %d", d.MaxOpenConns)
	}
	if d.MaxIdleConns < 0 || d.MaxIdleConns > d.MaxOpenConns {
		return fmt.Errorf("max_idle_conns must be between 0 and max_open_conns, got %d", d.MaxIdleConns)
	}
	return nil
}

func (v *Validator) validateCoordination() error {
	c := v.cfg.Coordination
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	return nil
}

func (v *Validator) validateObjectStore() error {
	o := v.cfg.ObjectStore
	if o.SamplesBucket == "" || o.ResultsBucket == "" || o.ReposBucket == "" ||
		o.EphemeralBucket == "" || o.CommentsBucket == "" {
		return fmt.Errorf("all bucket names must be set")
	}
	if o.PartSize < 5*1024*1024 {
		return fmt.Errorf("part_size must be at least 5 MiB, got %d", o.PartSize)
	}
	return nil
}

func (v *Validator) validateScalers() error {
	seen := make(map[ScalerKind]bool)
	for _, s := range v.cfg.Scalers {
		if s.Kind == "" {
			return fmt.Errorf("scaler kind must not be empty")
		}
		if seen[s.Kind] {
			return fmt.Errorf("duplicate scaler kind %q", s.Kind)
		}
		seen[s.Kind] = true

		if s.TickInterval <= 0 {
			return fmt.Errorf("scaler %q: tick_interval must be positive, got %v", s.Kind, s.TickInterval)
		}
		if s.ZombieHorizon <= 0 {
			return fmt.Errorf("scaler %q: zombie_horizon must be positive, got %v", s.Kind, s.ZombieHorizon)
		}
		if s.ZombieSweepInterval <= 0 {
			return fmt.Errorf("scaler %q: zombie_sweep_interval must be positive, got %v", s.Kind, s.ZombieSweepInterval)
		}
		if s.BanTTL <= 0 {
			return fmt.Errorf("scaler %q: ban_ttl must be positive, got %v", s.Kind, s.BanTTL)
		}
		if s.SpawnBatchSize < 1 {
			return fmt.Errorf("scaler %q: spawn_batch_size must be at least 1, got %d", s.Kind, s.SpawnBatchSize)
		}
	}
	return nil
}

func (v *Validator) validateBackends() error {
	seen := make(map[ScalerKind]bool)
	for _, b := range v.cfg.Backends {
		if b.Kind == "" {
			return fmt.Errorf("backend kind must not be empty")
		}
		if seen[b.Kind] {
			return fmt.Errorf("duplicate backend kind %q", b.Kind)
		}
		seen[b.Kind] = true

		switch b.Kind {
		case "cluster":
			if b.NamespacePrefix == "" {
				return fmt.Errorf("backend %q: namespace_prefix is required", b.Kind)
			}
		case "external":
			if b.ExternalEndpoint == "" {
				return fmt.Errorf("backend %q: external_endpoint is required", b.Kind)
			}
		}
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r.ResultRetention <= 0 {
		return fmt.Errorf("result_retention must be positive, got %v", r.ResultRetention)
	}
	if r.StatusLogRetention <= 0 {
		return fmt.Errorf("status_log_retention must be positive, got %v", r.StatusLogRetention)
	}
	if r.EphemeralRetention <= 0 {
		return fmt.Errorf("ephemeral_retention must be positive, got %v", r.EphemeralRetention)
	}
	return nil
}
