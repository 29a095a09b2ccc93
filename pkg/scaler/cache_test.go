package scaler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/internal/testpg"
	"github.com/thoriumlabs/thorium/pkg/coordination"
	"github.com/thoriumlabs/thorium/pkg/models"
)

func newTestCoordClient(t *testing.T) *coordination.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return coordination.NewClientFromRedis(rdb, "thorium-test")
}

func TestCacheLearnLoadsGroupImages(t *testing.T) {
	meta := testpg.NewTestClient(t)
	coord := newTestCoordClient(t)
	ctx := context.Background()

	img := models.Image{Group: "g1", Name: "scanner", ScalerKind: models.ScalerCluster, Pool: models.PoolDeadline}
	require.NoError(t, meta.UpsertImage(ctx, &img))
	other := models.Image{Group: "g1", Name: "vm-only", ScalerKind: models.ScalerVM, Pool: models.PoolDeadline}
	require.NoError(t, meta.UpsertImage(ctx, &other))

	c := NewCache(meta, coord, models.ScalerCluster, time.Hour)
	assert.False(t, c.KnownGroup("g1"))

	require.NoError(t, c.Learn(ctx, "g1", "alice"))
	assert.True(t, c.KnownGroup("g1"))
	assert.True(t, c.KnownUser("alice"))

	resolved, ok, err := c.Image(ctx, "g1", "scanner")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "scanner", resolved.Name)

	_, ok, err = c.Image(ctx, "g1", "vm-only")
	require.NoError(t, err)
	assert.False(t, ok, "images for a different scaler kind are filtered out")
}

func TestCacheMaybeRefreshHonorsInvalidationFlag(t *testing.T) {
	meta := testpg.NewTestClient(t)
	coord := newTestCoordClient(t)
	ctx := context.Background()

	c := NewCache(meta, coord, models.ScalerCluster, time.Hour)
	require.NoError(t, c.MaybeRefresh(ctx, time.Now()))
	refreshedAt := c.refreshedAt
	assert.False(t, refreshedAt.IsZero())

	// Not stale and not invalidated: no refresh.
	require.NoError(t, c.MaybeRefresh(ctx, time.Now().Add(time.Minute)))
	assert.Equal(t, refreshedAt, c.refreshedAt)

	require.NoError(t, coord.InvalidateScalerCache(ctx, models.ScalerCluster))
	require.NoError(t, c.MaybeRefresh(ctx, time.Now().Add(time.Minute)))
	assert.True(t, c.refreshedAt.After(refreshedAt))
}
