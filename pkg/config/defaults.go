package config

import "time"

// DefaultDatabaseConfig returns the connection-pool defaults applied when a
// field is left unset in the YAML document.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// DefaultCoordinationConfig returns the coordination store connection defaults.
func DefaultCoordinationConfig() CoordinationConfig {
	return CoordinationConfig{
		Addr:      "localhost:6379",
		DB:        0,
		Namespace: "thorium",
	}
}

// DefaultObjectStoreConfig returns the object store gateway defaults.
func DefaultObjectStoreConfig() ObjectStoreConfig {
	return ObjectStoreConfig{
		Region:          "us-east-1",
		UsePathStyle:    true,
		SamplesBucket:   "thorium-samples",
		ResultsBucket:   "thorium-results",
		ReposBucket:     "thorium-repos",
		EphemeralBucket: "thorium-ephemeral",
		CommentsBucket:  "thorium-comments",
		PartSize:        8 * 1024 * 1024,
	}
}

// DefaultScalerConfig returns the control-loop timing defaults shared by
// every scaler kind absent an explicit override.
func DefaultScalerConfig() ScalerConfig {
	return ScalerConfig{
		TickInterval:           5 * time.Second,
		ScheduleHorizon:        24 * time.Hour,
		ZombieHorizon:          2 * time.Minute,
		ZombieSweepInterval:    30 * time.Second,
		BanTTL:                 10 * time.Minute,
		FairShareDecayHalfLife: 1 * time.Hour,
		SpawnBatchSize:         50,
		CacheTTL:               3 * time.Second,
	}
}

// DefaultRetentionConfig returns the cleanup sweep's retention windows.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		ResultRetention:    30 * 24 * time.Hour,
		StatusLogRetention: 7 * 24 * time.Hour,
		EphemeralRetention: 24 * time.Hour,
	}
}
