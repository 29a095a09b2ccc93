package config

import "time"

// DatabaseConfig configures the metadata store adapter's postgres pool.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// CoordinationConfig configures the coordination store adapter's redis client.
type CoordinationConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

// ObjectStoreConfig configures the object store gateway.
type ObjectStoreConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`

	SamplesBucket   string `yaml:"samples_bucket"`
	ResultsBucket   string `yaml:"results_bucket"`
	ReposBucket     string `yaml:"repos_bucket"`
	EphemeralBucket string `yaml:"ephemeral_bucket"`
	CommentsBucket  string `yaml:"comments_bucket"`

	// EncryptionPassword derives the key used by the streaming encryptor (§4.1).
	EncryptionPassword string `yaml:"encryption_password"`

	PartSize int64 `yaml:"part_size"` // bytes, must be >= 5 MiB
}

// ScalerKind mirrors models.ScalerKind as a plain string, avoiding a
// config<->models import cycle in YAML-bound structs.
type ScalerKind = string

// ScalerConfig configures a single scaler kind's control loop.
type ScalerConfig struct {
	Kind ScalerKind `yaml:"kind"`

	TickInterval    time.Duration `yaml:"tick_interval"`
	ScheduleHorizon time.Duration `yaml:"schedule_horizon"`

	ZombieHorizon       time.Duration `yaml:"zombie_horizon"`
	ZombieSweepInterval time.Duration `yaml:"zombie_sweep_interval"`

	BanTTL time.Duration `yaml:"ban_ttl"`

	FairShareDecayHalfLife time.Duration `yaml:"fair_share_decay_half_life"`

	SpawnBatchSize int `yaml:"spawn_batch_size"`

	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// BackendConfig configures a C9 backend driver for one scaler kind.
type BackendConfig struct {
	Kind ScalerKind `yaml:"kind"`

	// Cluster driver.
	Kubeconfig      string   `yaml:"kubeconfig,omitempty"`
	NamespacePrefix string   `yaml:"namespace_prefix,omitempty"`
	HostAliases     []string `yaml:"host_aliases,omitempty"`

	// External driver.
	ExternalEndpoint string        `yaml:"external_endpoint,omitempty"`
	ExternalTimeout  time.Duration `yaml:"external_timeout,omitempty"`
}

// RetentionConfig bounds how long result and status-log data survives
// before the cleanup sweep trims it.
type RetentionConfig struct {
	ResultRetention    time.Duration `yaml:"result_retention"`
	StatusLogRetention time.Duration `yaml:"status_log_retention"`
	EphemeralRetention time.Duration `yaml:"ephemeral_retention"`
}
