package scaler

import (
	"sort"
	"sync"

	"github.com/thoriumlabs/thorium/pkg/backend"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// Candidate pairs one due deadline entry with its resolved image, built by
// the Scaler after ConsumeDue since a DeadlineEntry only carries a job id —
// the image it needs is looked up from the job row (spec §3 Job.Image).
type Candidate struct {
	Entry models.DeadlineEntry
	Image models.Image
}

func imageKey(group, name string) string { return group + "/" + name }

// Allocatable tracks live per-node resource availability and places
// candidates against it, mirroring scaler.rs's Allocatable minus its
// cross-tick ReqMap bookkeeping (the Scaler keeps that in spawnCounts,
// reset from the worker registry each tick rather than carried turn to
// turn, since SPEC_FULL.md's worker registry is already the durable
// source of truth for "how many are running").
type Allocatable struct {
	mu    sync.Mutex
	nodes map[string]*models.Node // cluster/name -> node, Available mutated as placements are made
}

// NewAllocatable builds an empty Allocatable.
func NewAllocatable() *Allocatable {
	return &Allocatable{nodes: make(map[string]*models.Node)}
}

func nodeKey(cluster, name string) string { return cluster + "/" + name }

// SetNodes replaces the tracked node set with a fresh resource snapshot
// (spec §4.8 step 2's per-tick resource refresh).
func (a *Allocatable) SetNodes(nodes []models.Node) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes = make(map[string]*models.Node, len(nodes))
	for i := range nodes {
		n := nodes[i]
		a.nodes[nodeKey(n.Cluster, n.Name)] = &n
	}
}

// Nodes returns a snapshot of every tracked node.
func (a *Allocatable) Nodes() []models.Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Node, 0, len(a.nodes))
	for _, n := range a.nodes {
		out = append(out, *n)
	}
	return out
}

// Plan orders candidates by placement priority and greedily assigns each to
// the first node with capacity, mutating this Allocatable's tracked
// availability as it goes so later candidates in the same call see earlier
// placements' effect. spawnCounts is mutated in place, keyed by
// imageKey(group, image name), to enforce Image.SpawnLimit across the
// batch. ranks supplies each candidate's fair-share rank (lower schedules
// first within the fair-share pool); callers resolve it from
// pkg/coordination's decaying usage counters keyed by user (spec's
// IncrFairShareUsage/GetFairShareUsage, see DESIGN.md for the per-user
// bucket decision).
//
// Returns the spawns to issue, grouped by cluster (a backend.Driver is
// registered per cluster name), and the candidates that couldn't be placed
// this tick (no node fit, or the image's spawn limit was reached) — callers
// re-push these with a later SLA via deadline.Stream.Defer.
func (a *Allocatable) Plan(candidates []Candidate, ranks map[string]float64, spawnCounts map[string]int) (spawns map[string][]backend.Spawn, deferred []Candidate) {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		ci, cj := ordered[i], ordered[j]
		if ci.Image.Pool == models.PoolFairShare && cj.Image.Pool == models.PoolFairShare {
			ri, rj := ranks[ci.Entry.Creator], ranks[cj.Entry.Creator]
			if ri != rj {
				return ri < rj
			}
		}
		if !ci.Entry.SLA.Equal(cj.Entry.SLA) {
			return ci.Entry.SLA.Before(cj.Entry.SLA)
		}
		return ci.Entry.ReactionID < cj.Entry.ReactionID
	})

	a.mu.Lock()
	defer a.mu.Unlock()

	spawns = make(map[string][]backend.Spawn)
	for _, c := range ordered {
		key := imageKey(c.Image.Group, c.Image.Name)
		if c.Image.SpawnLimit > 0 && spawnCounts[key] >= c.Image.SpawnLimit {
			deferred = append(deferred, c)
			continue
		}

		node := a.fit(c)
		if node == nil {
			deferred = append(deferred, c)
			continue
		}

		node.Available.CPUMillis -= c.Image.Resources.CPUMillis
		node.Available.MemoryBytes -= c.Image.Resources.MemoryBytes
		node.Available.EphemeralBytes -= c.Image.Resources.EphemeralBytes
		node.Available.GPU -= c.Image.Resources.GPU
		spawnCounts[key]++

		spawns[node.Cluster] = append(spawns[node.Cluster], backend.Spawn{
			Name:       "thorium-" + c.Entry.JobID,
			Node:       node.Name,
			Req:        c.Entry.Req,
			Resources:  c.Image.Resources,
			Pool:       c.Image.Pool,
			Image:      c.Image,
			ReactionID: c.Entry.ReactionID,
			JobID:      c.Entry.JobID,
		})
	}
	return spawns, deferred
}

// fit returns the first node (by cluster/name order, for determinism) that
// both serves the image's scaler kind and currently fits its resources.
func (a *Allocatable) fit(c Candidate) *models.Node {
	keys := make([]string, 0, len(a.nodes))
	for k := range a.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n := a.nodes[k]
		if !supportsScaler(n, c.Image.ScalerKind) {
			continue
		}
		if n.Fits(c.Image.Resources) {
			return n
		}
	}
	return nil
}

func supportsScaler(n *models.Node, kind models.ScalerKind) bool {
	for _, s := range n.Scalers {
		if s == kind {
			return true
		}
	}
	return false
}
