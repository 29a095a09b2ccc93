package deadline_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/pkg/coordination"
	"github.com/thoriumlabs/thorium/pkg/deadline"
	"github.com/thoriumlabs/thorium/pkg/models"
)

func newTestStream(t *testing.T) *deadline.Stream {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	coord := coordination.NewClientFromRedis(rdb, "thorium-test")
	return deadline.New(coord)
}

func TestConsumeDueRespectsHorizon(t *testing.T) {
	s := newTestStream(t)
	ctx := context.Background()
	now := time.Now()

	overdue := models.DeadlineEntry{Scaler: models.ScalerCluster, JobID: "job-overdue", SLA: now.Add(-time.Minute)}
	soon := models.DeadlineEntry{Scaler: models.ScalerCluster, JobID: "job-soon", SLA: now.Add(30 * time.Second)}
	distant := models.DeadlineEntry{Scaler: models.ScalerCluster, JobID: "job-distant", SLA: now.Add(time.Hour)}

	require.NoError(t, s.Push(ctx, overdue))
	require.NoError(t, s.Push(ctx, soon))
	require.NoError(t, s.Push(ctx, distant))

	length, err := s.Length(ctx, models.ScalerCluster)
	require.NoError(t, err)
	assert.EqualValues(t, 3, length)

	due, err := s.ConsumeDue(ctx, models.ScalerCluster, now, time.Minute, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	ids := []string{due[0].JobID, due[1].JobID}
	assert.ElementsMatch(t, []string{"job-overdue", "job-soon"}, ids)

	remaining, err := s.Length(ctx, models.ScalerCluster)
	require.NoError(t, err)
	assert.EqualValues(t, 1, remaining)
}

func TestDeferRequeuesWithLaterSLA(t *testing.T) {
	s := newTestStream(t)
	ctx := context.Background()
	now := time.Now()

	e := models.DeadlineEntry{Scaler: models.ScalerCluster, JobID: "job-1", SLA: now}
	require.NoError(t, s.Push(ctx, e))

	due, err := s.ConsumeDue(ctx, models.ScalerCluster, now, 0, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, s.Defer(ctx, due[0], now.Add(time.Hour)))

	immediatelyDue, err := s.ConsumeDue(ctx, models.ScalerCluster, now, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, immediatelyDue)

	laterDue, err := s.ConsumeDue(ctx, models.ScalerCluster, now.Add(time.Hour), 0, 0)
	require.NoError(t, err)
	require.Len(t, laterDue, 1)
	assert.Equal(t, "job-1", laterDue[0].JobID)
}
