package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/pkg/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewClientFromRedis(rdb, "test")
}

func TestSystemSettingsRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	in := models.SystemSettings{
		ReservedCPUMillis:    1000,
		FairShareMemoryBytes: 2048,
		HostPathWhitelist:    []string{"/data", "/scratch"},
		UnrestrictedHostPath: true,
	}
	require.NoError(t, c.SetSystemSettings(ctx, in))

	out, err := c.GetSystemSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, in.ReservedCPUMillis, out.ReservedCPUMillis)
	assert.Equal(t, in.FairShareMemoryBytes, out.FairShareMemoryBytes)
	assert.Equal(t, in.HostPathWhitelist, out.HostPathWhitelist)
	assert.True(t, out.UnrestrictedHostPath)
}

func TestConsumeCacheInvalidationIsOneShot(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.InvalidateScalerCache(ctx, "k8s"))

	flagged, err := c.ConsumeCacheInvalidation(ctx, "k8s")
	require.NoError(t, err)
	assert.True(t, flagged)

	flagged, err = c.ConsumeCacheInvalidation(ctx, "k8s")
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestWorkerRegisterAndDeregister(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	w := models.Worker{
		Name: "worker-1", Scaler: "k8s", Cluster: "prod", Node: "node-a",
		Group: "teamA", Pipeline: "triage", Stage: 0,
		Status:    models.WorkerRunning,
		SpawnedAt: time.Now(),
	}
	require.NoError(t, c.RegisterWorker(ctx, w))

	members, err := c.ListWorkers(ctx, "prod", "node-a", "k8s")
	require.NoError(t, err)
	assert.Contains(t, members, "worker-1")

	got, err := c.GetWorker(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, w.Group, got.Group)
	assert.Equal(t, models.WorkerRunning, got.Status)

	require.NoError(t, c.DeregisterWorker(ctx, w))
	_, err = c.GetWorker(ctx, "worker-1")
	assert.Error(t, err)

	members, err = c.ListWorkers(ctx, "prod", "node-a", "k8s")
	require.NoError(t, err)
	assert.NotContains(t, members, "worker-1")
}

func TestDeadlineQueueOrdersBySLA(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	now := time.Now()
	late := models.DeadlineEntry{Scaler: "k8s", SLA: now.Add(time.Hour), JobID: "late"}
	early := models.DeadlineEntry{Scaler: "k8s", SLA: now, JobID: "early"}
	require.NoError(t, c.PushDeadline(ctx, late))
	require.NoError(t, c.PushDeadline(ctx, early))

	n, err := c.DeadlineQueueLength(ctx, "k8s")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entries, err := c.ConsumeDeadlines(ctx, "k8s", float64(now.Unix()), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "early", entries[0].JobID)

	n, err = c.DeadlineQueueLength(ctx, "k8s")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNetworkPolicyGroupSets(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.AddPolicyToGroup(ctx, "teamA", "allow-dns"))
	require.NoError(t, c.AddPolicyToGroup(ctx, "teamB", "allow-dns"))

	groups, err := c.ListGroupsWithPolicy(ctx, []string{"teamA", "teamB", "teamC"}, "allow-dns")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"teamA", "teamB"}, groups)

	require.NoError(t, c.SetUsedBy(ctx, "teamA", []string{"allow-dns"}, nil, "scanner"))
	images, err := c.UsedBy(ctx, "teamA", "allow-dns")
	require.NoError(t, err)
	assert.Contains(t, images, "scanner")

	require.NoError(t, c.RenamePolicyInGroups(ctx, groups, "allow-dns", "allow-dns-v2"))
	ok, err := c.GroupHasPolicy(ctx, "teamA", "allow-dns-v2")
	require.NoError(t, err)
	assert.True(t, ok)

	images, err = c.UsedBy(ctx, "teamA", "allow-dns-v2")
	require.NoError(t, err)
	assert.Contains(t, images, "scanner")
}

func TestBanAndFairShare(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	req := models.Requisition{User: "alice", Group: "teamA", Pipeline: "triage", Stage: 0}

	banned, err := c.IsBanned(ctx, "k8s", req)
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, c.BanRequisition(ctx, "k8s", req, time.Minute))
	banned, err = c.IsBanned(ctx, "k8s", req)
	require.NoError(t, err)
	assert.True(t, banned)

	require.NoError(t, c.Unban(ctx, "k8s", req))
	banned, err = c.IsBanned(ctx, "k8s", req)
	require.NoError(t, err)
	assert.False(t, banned)

	usage, err := c.IncrFairShareUsage(ctx, "k8s", req, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, usage)

	require.NoError(t, c.DecayFairShareUsage(ctx, "k8s", 0.5))
	usage, err = c.GetFairShareUsage(ctx, "k8s", req)
	require.NoError(t, err)
	assert.Equal(t, 0.75, usage)
}
