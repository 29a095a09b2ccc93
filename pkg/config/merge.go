package config

import "dario.cat/mergo"

// mergeScalers overlays user-provided scaler entries onto the package
// defaults for each kind that appears in userScalers, preserving any field
// the user left zero-valued.
func mergeScalers(userScalers []ScalerConfig) ([]ScalerConfig, error) {
	merged := make([]ScalerConfig, 0, len(userScalers))
	for _, u := range userScalers {
		base := DefaultScalerConfig()
		base.Kind = u.Kind
		if err := mergo.Merge(&base, u, mergo.WithOverride); err != nil {
			return nil, err
		}
		merged = append(merged, base)
	}
	return merged, nil
}

// mergeRetention overlays a user-provided retention document onto the
// package defaults, preserving any field the user left zero-valued.
func mergeRetention(user *RetentionConfig) (RetentionConfig, error) {
	base := DefaultRetentionConfig()
	if user == nil {
		return base, nil
	}
	if err := mergo.Merge(&base, *user, mergo.WithOverride); err != nil {
		return RetentionConfig{}, err
	}
	return base, nil
}

// mergeDatabase overlays a user-provided database document onto the package
// defaults.
func mergeDatabase(user *DatabaseConfig) (DatabaseConfig, error) {
	base := DefaultDatabaseConfig()
	if user == nil {
		return base, nil
	}
	if err := mergo.Merge(&base, *user, mergo.WithOverride); err != nil {
		return DatabaseConfig{}, err
	}
	return base, nil
}

// mergeCoordination overlays a user-provided coordination document onto the
// package defaults.
func mergeCoordination(user *CoordinationConfig) (CoordinationConfig, error) {
	base := DefaultCoordinationConfig()
	if user == nil {
		return base, nil
	}
	if err := mergo.Merge(&base, *user, mergo.WithOverride); err != nil {
		return CoordinationConfig{}, err
	}
	return base, nil
}

// mergeObjectStore overlays a user-provided object store document onto the
// package defaults.
func mergeObjectStore(user *ObjectStoreConfig) (ObjectStoreConfig, error) {
	base := DefaultObjectStoreConfig()
	if user == nil {
		return base, nil
	}
	if err := mergo.Merge(&base, *user, mergo.WithOverride); err != nil {
		return ObjectStoreConfig{}, err
	}
	return base, nil
}
