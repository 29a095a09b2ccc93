package scaler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/pkg/models"
)

func fitsNode(cluster, name string, cpuMillis int64) models.Node {
	return models.Node{
		Cluster:   cluster,
		Name:      name,
		Total:     models.Resources{CPUMillis: cpuMillis, MemoryBytes: 1 << 30},
		Available: models.Resources{CPUMillis: cpuMillis, MemoryBytes: 1 << 30},
		Health:    models.NodeHealthy,
		Scalers:   []models.ScalerKind{models.ScalerCluster},
	}
}

func smallImage(group, name string) models.Image {
	return models.Image{
		Group:      group,
		Name:       name,
		ScalerKind: models.ScalerCluster,
		Pool:       models.PoolDeadline,
		Resources:  models.Resources{CPUMillis: 500, MemoryBytes: 256 << 20},
	}
}

func TestAllocatablePlanPlacesWithinCapacity(t *testing.T) {
	a := NewAllocatable()
	a.SetNodes([]models.Node{fitsNode("c1", "n1", 750)})

	img := smallImage("g1", "scanner")
	candidates := []Candidate{
		{Entry: models.DeadlineEntry{JobID: "job-1", Req: models.Requisition{Group: "g1"}, SLA: time.Now()}, Image: img},
		{Entry: models.DeadlineEntry{JobID: "job-2", Req: models.Requisition{Group: "g1"}, SLA: time.Now()}, Image: img},
	}

	spawns, deferred := a.Plan(candidates, nil, map[string]int{})
	require.Len(t, spawns["c1"], 1, "only one 500m candidate fits on a 750m node")
	require.Len(t, deferred, 1)
	assert.Equal(t, "job-1", spawns["c1"][0].JobID)
	assert.Equal(t, "job-2", deferred[0].Entry.JobID)
}

func TestAllocatablePlanEnforcesSpawnLimit(t *testing.T) {
	a := NewAllocatable()
	a.SetNodes([]models.Node{fitsNode("c1", "n1", 10000)})

	img := smallImage("g1", "scanner")
	img.SpawnLimit = 1
	candidates := []Candidate{
		{Entry: models.DeadlineEntry{JobID: "job-1", Req: models.Requisition{Group: "g1"}, SLA: time.Now()}, Image: img},
		{Entry: models.DeadlineEntry{JobID: "job-2", Req: models.Requisition{Group: "g1"}, SLA: time.Now()}, Image: img},
	}

	spawnCounts := map[string]int{}
	spawns, deferred := a.Plan(candidates, nil, spawnCounts)
	assert.Len(t, spawns["c1"], 1)
	assert.Len(t, deferred, 1)
	assert.Equal(t, 1, spawnCounts[imageKey("g1", "scanner")])
}

func TestAllocatablePlanOrdersFairShareByRank(t *testing.T) {
	a := NewAllocatable()
	a.SetNodes([]models.Node{fitsNode("c1", "n1", 500)}) // only room for one

	img := smallImage("g1", "scanner")
	img.Pool = models.PoolFairShare
	candidates := []Candidate{
		{Entry: models.DeadlineEntry{JobID: "job-high-usage", Req: models.Requisition{Group: "g1"}, Creator: "heavy", SLA: time.Now()}, Image: img},
		{Entry: models.DeadlineEntry{JobID: "job-low-usage", Req: models.Requisition{Group: "g1"}, Creator: "light", SLA: time.Now()}, Image: img},
	}
	ranks := map[string]float64{"heavy": 100, "light": 1}

	spawns, deferred := a.Plan(candidates, ranks, map[string]int{})
	require.Len(t, spawns["c1"], 1)
	assert.Equal(t, "job-low-usage", spawns["c1"][0].JobID, "lower fair-share usage schedules first")
	require.Len(t, deferred, 1)
	assert.Equal(t, "job-high-usage", deferred[0].Entry.JobID)
}

func TestAllocatablePlanSkipsNodesForOtherScalerKind(t *testing.T) {
	a := NewAllocatable()
	n := fitsNode("c1", "n1", 1000)
	n.Scalers = []models.ScalerKind{models.ScalerExternal}
	a.SetNodes([]models.Node{n})

	img := smallImage("g1", "scanner")
	candidates := []Candidate{
		{Entry: models.DeadlineEntry{JobID: "job-1", Req: models.Requisition{Group: "g1"}, SLA: time.Now()}, Image: img},
	}

	spawns, deferred := a.Plan(candidates, nil, map[string]int{})
	assert.Empty(t, spawns)
	assert.Len(t, deferred, 1)
}
