package coordination

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// GetSystemSettings reads the system settings hash, defaulting missing
// fields to zero values for a fresh deployment.
func (c *Client) GetSystemSettings(ctx context.Context) (models.SystemSettings, error) {
	vals, err := c.rdb.HGetAll(ctx, c.systemSettingsKey()).Result()
	if err != nil {
		return models.SystemSettings{}, wrapRedisErr(err, "get system settings")
	}
	var s models.SystemSettings
	s.ReservedCPUMillis = parseInt64(vals["reserved_cpu_millis"])
	s.ReservedMemoryBytes = parseInt64(vals["reserved_memory_bytes"])
	s.ReservedStorageBytes = parseInt64(vals["reserved_storage_bytes"])
	s.FairShareCPUMillis = parseInt64(vals["fair_share_cpu_millis"])
	s.FairShareMemoryBytes = parseInt64(vals["fair_share_memory_bytes"])
	s.FairShareStorageBytes = parseInt64(vals["fair_share_storage_bytes"])
	s.UnrestrictedHostPath = vals["unrestricted_host_path"] == "1"
	if raw, ok := vals["host_path_whitelist"]; ok && raw != "" {
		s.HostPathWhitelist = splitCSV(raw)
	}
	return s, nil
}

// SetSystemSettings overwrites the system settings hash wholesale.
func (c *Client) SetSystemSettings(ctx context.Context, s models.SystemSettings) error {
	unrestricted := "0"
	if s.UnrestrictedHostPath {
		unrestricted = "1"
	}
	err := c.rdb.HSet(ctx, c.systemSettingsKey(),
		"reserved_cpu_millis", strconv.FormatInt(s.ReservedCPUMillis, 10),
		"reserved_memory_bytes", strconv.FormatInt(s.ReservedMemoryBytes, 10),
		"reserved_storage_bytes", strconv.FormatInt(s.ReservedStorageBytes, 10),
		"fair_share_cpu_millis", strconv.FormatInt(s.FairShareCPUMillis, 10),
		"fair_share_memory_bytes", strconv.FormatInt(s.FairShareMemoryBytes, 10),
		"fair_share_storage_bytes", strconv.FormatInt(s.FairShareStorageBytes, 10),
		"unrestricted_host_path", unrestricted,
		"host_path_whitelist", joinCSV(s.HostPathWhitelist),
	).Err()
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "set system settings")
	}
	return nil
}

// InvalidateScalerCache flips the per-scaler cache-invalidation flag on the
// system info hash, signaling the named scaler to refresh its metadata
// cache before its next placement tick (spec §4.5 Update/Delete/Create).
func (c *Client) InvalidateScalerCache(ctx context.Context, scaler models.ScalerKind) error {
	if err := c.rdb.HSet(ctx, c.systemInfoKey(), "invalidate:"+string(scaler), "1").Err(); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "invalidate scaler cache")
	}
	return nil
}

// ConsumeCacheInvalidation reports and clears whether scaler's cache flag
// was set, atomically, so exactly one refresh tick observes it.
func (c *Client) ConsumeCacheInvalidation(ctx context.Context, scaler models.ScalerKind) (bool, error) {
	field := "invalidate:" + string(scaler)
	pipe := c.rdb.TxPipeline()
	getCmd := pipe.HGet(ctx, c.systemInfoKey(), field)
	pipe.HDel(ctx, c.systemInfoKey(), field)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, wrapRedisErr(err, "consume cache invalidation flag")
	}
	val, err := getCmd.Result()
	if err != nil {
		return false, nil
	}
	return val == "1", nil
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func joinCSV(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}
