package scaler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/internal/testpg"
	"github.com/thoriumlabs/thorium/pkg/backend"
	"github.com/thoriumlabs/thorium/pkg/config"
	"github.com/thoriumlabs/thorium/pkg/models"
	"github.com/thoriumlabs/thorium/pkg/objectstore"
	"github.com/thoriumlabs/thorium/pkg/reaction"
)

// fakeDriver is an in-memory backend.Driver double that always has one node
// with ample capacity, records every Spawn it receives, and reports
// terminal workers set up by the test via markTerminal.
type fakeDriver struct {
	node     models.Resources
	spawned  []backend.Spawn
	failName map[string]error
	terminal []backend.TerminalWorker
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		node:     models.Resources{CPUMillis: 8000, MemoryBytes: 16 << 30},
		failName: map[string]error{},
	}
}

func (d *fakeDriver) Setup(ctx context.Context, cluster string) error { return nil }

func (d *fakeDriver) ResourcesAvailable(ctx context.Context, cluster string, settings models.SystemSettings) (map[string]models.Resources, error) {
	return map[string]models.Resources{"node-1": d.node}, nil
}

func (d *fakeDriver) Spawn(ctx context.Context, cluster string, spawns []backend.Spawn) map[string]error {
	errs := make(map[string]error)
	for _, sp := range spawns {
		if err, bad := d.failName[sp.Name]; bad {
			errs[sp.Name] = err
			continue
		}
		d.spawned = append(d.spawned, sp)
	}
	return errs
}

func (d *fakeDriver) Delete(ctx context.Context, cluster string, deletes []backend.Delete) []backend.DeleteResult {
	return nil
}

func (d *fakeDriver) ClearTerminal(ctx context.Context, cluster string, active map[string]bool) ([]backend.TerminalWorker, error) {
	out := d.terminal
	d.terminal = nil
	return out, nil
}

func testScalerConfig() config.ScalerConfig {
	return config.ScalerConfig{
		Kind:                   "cluster",
		TickInterval:           time.Minute,
		ScheduleHorizon:        time.Hour,
		ZombieHorizon:          time.Hour,
		ZombieSweepInterval:    time.Minute,
		BanTTL:                 time.Minute,
		FairShareDecayHalfLife: time.Hour,
		SpawnBatchSize:         100,
		CacheTTL:               time.Hour,
	}
}

func newTestScaler(t *testing.T, driver backend.Driver) (*Scaler, *fakeDriver) {
	t.Helper()
	meta := testpg.NewTestClient(t)
	coord := newTestCoordClient(t)
	engine := reaction.New(meta, coord, objectstore.NewInMemory("test-password"))

	fd, _ := driver.(*fakeDriver)
	s := New(models.ScalerCluster, meta, coord, engine, Clusters{"c1": driver}, testScalerConfig())
	return s, fd
}

func insertJobAndReaction(t *testing.T, s *Scaler, group, creator, image string) (jobID, reactionID string) {
	t.Helper()
	ctx := context.Background()
	r := &models.Reaction{
		ID:       "reaction-" + image,
		Group:    group,
		Pipeline: "pipe-1",
		Creator:  creator,
		Status:   models.ReactionStarted,
	}
	require.NoError(t, s.meta.InsertReaction(ctx, r))

	j := &models.Job{ID: "job-" + image, ReactionID: r.ID, Stage: 0, Image: image, Status: models.JobPending}
	require.NoError(t, s.meta.InsertJob(ctx, j))
	return j.ID, r.ID
}

func TestTickPlacesAndRegistersWorker(t *testing.T) {
	driver := newFakeDriver()
	s, fd := newTestScaler(t, driver)
	ctx := context.Background()

	img := models.Image{
		Group: "g1", Name: "scanner", ScalerKind: models.ScalerCluster, Pool: models.PoolDeadline,
		Resources: models.Resources{CPUMillis: 500, MemoryBytes: 256 << 20},
	}
	require.NoError(t, s.meta.UpsertImage(ctx, &img))

	jobID, reactionID := insertJobAndReaction(t, s, "g1", "alice", "scanner")
	entry := models.DeadlineEntry{
		Scaler:     models.ScalerCluster,
		Req:        models.Requisition{User: "alice", Group: "g1"},
		Creator:    "alice",
		SLA:        time.Now().Add(-time.Second),
		ReactionID: reactionID,
		JobID:      jobID,
	}
	require.NoError(t, s.deadlines.Push(ctx, entry))

	require.NoError(t, s.Tick(ctx))

	require.Len(t, fd.spawned, 1)
	assert.Equal(t, jobID, fd.spawned[0].JobID)

	w, err := s.coord.GetWorker(ctx, fd.spawned[0].Name)
	require.NoError(t, err)
	assert.Equal(t, "scanner", w.Image)
	assert.Equal(t, reactionID, w.Reaction)

	snap := s.HealthSnapshot()
	assert.Equal(t, 1, snap.Placed)
	assert.Equal(t, 0, snap.Deferred)
}

func TestTickClearTerminalFailsJobOnErrorOut(t *testing.T) {
	driver := newFakeDriver()
	s, fd := newTestScaler(t, driver)
	ctx := context.Background()

	img := models.Image{
		Group: "g1", Name: "scanner", ScalerKind: models.ScalerCluster, Pool: models.PoolDeadline,
		Resources: models.Resources{CPUMillis: 500, MemoryBytes: 256 << 20},
	}
	require.NoError(t, s.meta.UpsertImage(ctx, &img))
	jobID, reactionID := insertJobAndReaction(t, s, "g1", "alice", "scanner")

	w := models.Worker{
		Name: "thorium-" + jobID, Scaler: models.ScalerCluster, Cluster: "c1", Node: "node-1",
		User: "alice", Group: "g1", Reaction: reactionID, Job: jobID, Image: "scanner",
		Status: models.WorkerRunning, SpawnedAt: time.Now(), LastHeartbeat: time.Now(),
	}
	require.NoError(t, s.coord.RegisterWorker(ctx, w))
	s.spawnCounts[imageKey("g1", "scanner")] = 1

	fd.terminal = []backend.TerminalWorker{{Name: w.Name, Outcome: backend.TerminalErrorOut, Reason: "OOMKilled"}}

	require.NoError(t, s.Tick(ctx))

	_, err := s.coord.GetWorker(ctx, w.Name)
	assert.Error(t, err, "terminal worker should be deregistered")

	r, err := s.meta.GetReaction(ctx, reactionID)
	require.NoError(t, err)
	assert.Equal(t, models.ReactionFailed, r.Status)

	assert.Equal(t, 0, s.spawnCounts[imageKey("g1", "scanner")])
}

func TestSweepZombiesResetsJobAndRequeues(t *testing.T) {
	driver := newFakeDriver()
	s, _ := newTestScaler(t, driver)
	ctx := context.Background()

	jobID, reactionID := insertJobAndReaction(t, s, "g1", "alice", "scanner")
	job, err := s.meta.GetJob(ctx, jobID)
	require.NoError(t, err)
	job.Status = models.JobRunning
	job.Worker = "thorium-zombie"
	require.NoError(t, s.meta.UpdateJobState(ctx, job))

	w := models.Worker{
		Name: "thorium-zombie", Scaler: models.ScalerCluster, Cluster: "c1", Node: "node-1",
		User: "alice", Group: "g1", Reaction: reactionID, Job: jobID, Image: "scanner",
		Status: models.WorkerRunning, SpawnedAt: time.Now().Add(-time.Hour), LastHeartbeat: time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, s.meta.UpsertNode(ctx, models.Node{Cluster: "c1", Name: "node-1", Health: models.NodeHealthy, Scalers: []models.ScalerKind{models.ScalerCluster}}))
	require.NoError(t, s.coord.RegisterWorker(ctx, w))

	require.NoError(t, s.sweepZombies(ctx))

	_, err = s.coord.GetWorker(ctx, w.Name)
	assert.Error(t, err, "zombie worker should be deregistered")

	job, err = s.meta.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Empty(t, job.Worker)

	due, err := s.deadlines.ConsumeDue(ctx, models.ScalerCluster, time.Now().Add(time.Second), time.Hour, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, jobID, due[0].JobID)
}
