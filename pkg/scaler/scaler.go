package scaler

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/backend"
	"github.com/thoriumlabs/thorium/pkg/config"
	"github.com/thoriumlabs/thorium/pkg/coordination"
	"github.com/thoriumlabs/thorium/pkg/deadline"
	"github.com/thoriumlabs/thorium/pkg/metadata"
	"github.com/thoriumlabs/thorium/pkg/models"
	"github.com/thoriumlabs/thorium/pkg/reaction"
)

// Clusters maps a cluster name to the driver that schedules workers onto
// it, the Scaler's driver registry (spec §4.9: "one Driver instance is
// registered per cluster name").
type Clusters map[string]backend.Driver

// Scaler runs the full scheduling tick (spec §4.8) for one scaler kind:
// refresh cache and resources, drain due deadlines, allocate placements,
// register and spawn workers, reconcile deletes, clear terminal workers,
// and sweep zombies. One Scaler instance exists per models.ScalerKind
// (cluster, bare_metal, windows, vm, external), matching scaler.rs's
// per-ImageScaler process model.
type Scaler struct {
	kind      models.ScalerKind
	meta      *metadata.Client
	coord     *coordination.Client
	deadlines *deadline.Stream
	reactions *reaction.Engine
	clusters  Clusters
	cache     *Cache
	bans      *BanSets
	alloc     *Allocatable
	cfg       config.ScalerConfig

	mu          sync.Mutex
	spawnCounts map[string]int // imageKey -> in-flight spawns this process has placed

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	health  Health
	metrics *metrics
}

// Health reports the scaler's last-completed-tick snapshot.
type Health struct {
	LastTick      time.Time
	LastError     error
	Placed        int
	Deferred      int
	TerminalFreed int
}

// New builds a Scaler for one kind. clusters must contain a Driver for
// every cluster this kind's images may target. reactions is the engine
// used to permanently fail a job whose worker errored out unrecoverably
// (e.g. OOM), so the cascade/parent-notification logic in
// reaction.Engine.Fail runs instead of a bare job-row update.
func New(kind models.ScalerKind, meta *metadata.Client, coord *coordination.Client, reactions *reaction.Engine, clusters Clusters, cfg config.ScalerConfig) *Scaler {
	return &Scaler{
		kind:        kind,
		meta:        meta,
		coord:       coord,
		deadlines:   deadline.New(coord),
		reactions:   reactions,
		clusters:    clusters,
		cache:       NewCache(meta, coord, kind, cfg.CacheTTL),
		bans:        NewBanSets(cfg.BanTTL),
		alloc:       NewAllocatable(),
		cfg:         cfg,
		spawnCounts: make(map[string]int),
		stopCh:      make(chan struct{}),
		metrics:     defaultMetrics,
	}
}

// Setup prepares every registered cluster to accept spawns (spec §4.8 step
// 0, scaler.rs's Scaler::setup).
func (s *Scaler) Setup(ctx context.Context) error {
	for name, driver := range s.clusters {
		if err := driver.Setup(ctx, name); err != nil {
			return apierrors.Wrap(apierrors.KindUnavailable, err, "setup cluster %s", name)
		}
	}
	return nil
}

// Start launches the tick loop and the zombie-sweep loop as background
// goroutines, in pkg/queue/pool.go's ticker+stopCh idiom.
func (s *Scaler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.tickLoop(ctx)
	go s.zombieLoop(ctx)
}

// Stop signals both loops to exit and waits for them to finish.
func (s *Scaler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scaler) tickLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				slog.Error("scaler tick failed", "scaler", s.kind, "error", err)
			}
		}
	}
}

func (s *Scaler) zombieLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ZombieSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.sweepZombies(ctx); err != nil {
				slog.Error("zombie sweep failed", "scaler", s.kind, "error", err)
			}
		}
	}
}

// Tick runs one full scheduling cycle (spec §4.8 steps 1-8, minus the
// independent zombie sweep which runs on its own ticker per scaler.rs's
// ZombieChecker being a separate task from the main schedule loop).
func (s *Scaler) Tick(ctx context.Context) error {
	now := time.Now()
	h := Health{LastTick: now}
	s.metrics.ticks.WithLabelValues(string(s.kind)).Inc()

	fail := func(err error) error {
		h.LastError = err
		s.setHealth(h)
		s.metrics.tickFail.WithLabelValues(string(s.kind)).Inc()
		return err
	}

	s.bans.ExpireIfDue(now)

	if err := s.cache.MaybeRefresh(ctx, now); err != nil {
		return fail(err)
	}

	nodes, err := s.refreshResources(ctx)
	if err != nil {
		return fail(err)
	}
	s.alloc.SetNodes(nodes)

	candidates, err := s.consumeDeadlines(ctx, now)
	if err != nil {
		return fail(err)
	}

	ranks, err := s.fairShareRanks(ctx, candidates)
	if err != nil {
		return fail(err)
	}

	s.mu.Lock()
	spawns, deferred := s.alloc.Plan(candidates, ranks, s.spawnCounts)
	s.mu.Unlock()
	h.Placed = countSpawns(spawns)
	h.Deferred = len(deferred)
	s.metrics.placed.WithLabelValues(string(s.kind)).Add(float64(h.Placed))
	s.metrics.deferred.WithLabelValues(string(s.kind)).Add(float64(h.Deferred))

	if err := s.deferCandidates(ctx, now, deferred); err != nil {
		slog.Error("failed to defer unplaceable deadlines", "scaler", s.kind, "error", err)
	}

	if err := s.registerWorkers(ctx, spawns); err != nil {
		slog.Error("failed to register spawned workers", "scaler", s.kind, "error", err)
	}

	s.invokeSpawns(ctx, spawns)

	if err := s.reconcileDeletes(ctx); err != nil {
		slog.Error("failed to reconcile worker deletes", "scaler", s.kind, "error", err)
	}

	freed, err := s.clearTerminal(ctx)
	if err != nil {
		slog.Error("failed to clear terminal workers", "scaler", s.kind, "error", err)
	}
	h.TerminalFreed = freed
	s.metrics.freed.WithLabelValues(string(s.kind)).Add(float64(freed))

	s.setHealth(h)
	return nil
}

// refreshResources pulls each cluster's allocatable capacity and flattens
// it into models.Node rows the Allocatable can place against (spec §4.8
// step 2, scaler.rs's update_resources! macro).
func (s *Scaler) refreshResources(ctx context.Context) ([]models.Node, error) {
	settings := s.cache.Settings()
	var nodes []models.Node
	for clusterName, driver := range s.clusters {
		resources, err := driver.ResourcesAvailable(ctx, clusterName, settings)
		if err != nil {
			slog.Error("failed to refresh cluster resources", "cluster", clusterName, "error", err)
			continue
		}
		for nodeName, avail := range resources {
			nodes = append(nodes, models.Node{
				Cluster:   clusterName,
				Name:      nodeName,
				Total:     avail,
				Available: avail,
				Health:    models.NodeHealthy,
				Scalers:   []models.ScalerKind{s.kind},
			})
			if err := s.meta.UpsertNode(ctx, nodes[len(nodes)-1]); err != nil {
				slog.Error("failed to persist node snapshot", "cluster", clusterName, "node", nodeName, "error", err)
			}
		}
	}
	return nodes, nil
}

// consumeDeadlines drains due entries for this scaler kind, filters them
// through cache knowledge and active bans, and resolves each survivor's
// job into a placement Candidate (spec §4.8 step 3).
func (s *Scaler) consumeDeadlines(ctx context.Context, now time.Time) ([]Candidate, error) {
	due, err := s.deadlines.ConsumeDue(ctx, s.kind, now, s.cfg.ScheduleHorizon, int64(s.cfg.SpawnBatchSize))
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(due))
	for _, e := range due {
		if err := s.cache.Learn(ctx, e.Req.Group, e.Creator); err != nil {
			slog.Error("failed to learn requisition group/user", "group", e.Req.Group, "creator", e.Creator, "error", err)
			continue
		}
		if !s.bans.Allows(s.cache, e) {
			continue
		}

		job, err := s.meta.GetJob(ctx, e.JobID)
		if err != nil {
			slog.Error("failed to resolve job for deadline entry", "job_id", e.JobID, "error", err)
			continue
		}
		img, ok, err := s.cache.Image(ctx, e.Req.Group, job.Image)
		if err != nil {
			slog.Error("failed to resolve image for deadline entry", "group", e.Req.Group, "image", job.Image, "error", err)
			continue
		}
		if !ok || img.Banned() {
			continue
		}

		candidates = append(candidates, Candidate{Entry: e, Image: img})
	}
	return candidates, nil
}

// fairShareRanks resolves one decaying-usage rank per distinct creator
// among candidates, by reusing IncrFairShareUsage/GetFairShareUsage with a
// Requisition holding only User (Group/Pipeline/Stage left zero) — a stable
// per-user bucket distinct from the per-stage-requisition tuple the rest of
// pkg/coordination keys on (see DESIGN.md Open Question decisions).
func (s *Scaler) fairShareRanks(ctx context.Context, candidates []Candidate) (map[string]float64, error) {
	ranks := make(map[string]float64)
	for _, c := range candidates {
		if c.Image.Pool != models.PoolFairShare {
			continue
		}
		if _, ok := ranks[c.Entry.Creator]; ok {
			continue
		}
		usage, err := s.coord.GetFairShareUsage(ctx, s.kind, models.Requisition{User: c.Entry.Creator})
		if err != nil {
			return nil, err
		}
		ranks[c.Entry.Creator] = usage
	}
	return ranks, nil
}

// deferCandidates re-pushes every unplaced candidate with a later SLA so it
// is retried on a subsequent tick rather than starving silently (spec §4.8
// step 4's "may requeue with a later SLA" escape hatch).
func (s *Scaler) deferCandidates(ctx context.Context, now time.Time, deferred []Candidate) error {
	for _, c := range deferred {
		if err := s.deadlines.Defer(ctx, c.Entry, now.Add(s.cfg.TickInterval)); err != nil {
			return err
		}
	}
	return nil
}

// registerWorkers records every about-to-be-spawned worker in the
// coordination store before invoking the backend driver, avoiding the race
// where a worker starts running before it is trackable (spec §4.8 step 5,
// scaler.rs's Scaler::register_workers comment on the same ordering).
func (s *Scaler) registerWorkers(ctx context.Context, spawns map[string][]backend.Spawn) error {
	now := time.Now()
	for cluster, group := range spawns {
		for _, sp := range group {
			w := models.Worker{
				Name:          sp.Name,
				Scaler:        s.kind,
				Cluster:       cluster,
				Node:          sp.Node,
				User:          sp.Req.User,
				Group:         sp.Req.Group,
				Pipeline:      sp.Req.Pipeline,
				Stage:         sp.Req.Stage,
				Reaction:      sp.ReactionID,
				Job:           sp.JobID,
				Image:         sp.Image.Name,
				Resources:     sp.Resources,
				Pool:          sp.Pool,
				Status:        models.WorkerSpawning,
				SpawnedAt:     now,
				LastHeartbeat: now,
			}
			if err := s.coord.RegisterWorker(ctx, w); err != nil {
				return err
			}
		}
	}
	return nil
}

// invokeSpawns hands each cluster's batch to its driver, incrementing the
// fair-share usage counter for each successful placement and deregistering
// (and uncounting) any that the driver rejected (spec §4.8 step 6).
func (s *Scaler) invokeSpawns(ctx context.Context, spawns map[string][]backend.Spawn) {
	for cluster, group := range spawns {
		driver, ok := s.clusters[cluster]
		if !ok {
			slog.Error("no driver registered for cluster", "cluster", cluster)
			continue
		}
		errs := driver.Spawn(ctx, cluster, group)
		for _, sp := range group {
			if err, failed := errs[sp.Name]; failed {
				slog.Error("failed to spawn worker", "cluster", cluster, "worker", sp.Name, "error", err)
				if derr := s.coord.DeregisterWorker(ctx, models.Worker{Name: sp.Name, Scaler: s.kind, Cluster: cluster, Node: sp.Node}); derr != nil {
					slog.Error("failed to deregister failed spawn", "worker", sp.Name, "error", derr)
				}
				s.mu.Lock()
				s.spawnCounts[imageKey(sp.Image.Group, sp.Image.Name)]--
				s.mu.Unlock()
				continue
			}
			if sp.Pool == models.PoolFairShare {
				if _, err := s.coord.IncrFairShareUsage(ctx, s.kind, models.Requisition{User: sp.Req.User}, fairShareCost(sp.Resources)); err != nil {
					slog.Error("failed to record fair share usage", "user", sp.Req.User, "error", err)
				}
			}
		}
	}
}

// fairShareCost converts a placement's resource request into the unit the
// decaying usage counter accumulates, weighting CPU and memory evenly so
// neither dimension alone determines a user's rank.
func fairShareCost(r models.Resources) float64 {
	return float64(r.CPUMillis)/1000 + float64(r.MemoryBytes)/(1<<30)
}

// reconcileDeletes is the tick's delete-reconciliation step (spec §4.8
// step 7) and does nothing: it queries no driver and deregisters no worker.
// This scaler issues deletes synchronously inside clearTerminal rather than
// queuing a separate delete-changeset the way scaler.rs's
// Allocatable.changes.scale_down does, so there is nothing further to
// reconcile here beyond what clearTerminal already resolved.
func (s *Scaler) reconcileDeletes(ctx context.Context) error {
	return nil
}

// clearTerminal asks every driver which of its known-active workers have
// reached a terminal state, frees their resources, fails their jobs on an
// error-out outcome, and deregisters them (spec §4.8 step 8, scaler.rs's
// Scaler::clear_terminal).
func (s *Scaler) clearTerminal(ctx context.Context) (int, error) {
	freed := 0
	for cluster, driver := range s.clusters {
		active, err := s.activeWorkerSet(ctx, cluster)
		if err != nil {
			slog.Error("failed to list active workers", "cluster", cluster, "error", err)
			continue
		}
		terminal, err := driver.ClearTerminal(ctx, cluster, active)
		if err != nil {
			slog.Error("failed to clear terminal workers", "cluster", cluster, "error", err)
			continue
		}
		for _, t := range terminal {
			w, err := s.coord.GetWorker(ctx, t.Name)
			if err != nil {
				slog.Error("failed to load terminal worker info", "worker", t.Name, "error", err)
				continue
			}
			switch t.Outcome {
			case backend.TerminalErrorOut:
				if err := s.failJob(ctx, w, t.Reason); err != nil {
					slog.Error("failed to fail errored-out job", "worker", t.Name, "error", err)
				}
			case backend.TerminalSucceeded:
				if err := s.completeJob(ctx, w, true); err != nil {
					slog.Error("failed to complete succeeded job", "worker", t.Name, "error", err)
				}
			case backend.TerminalFailed:
				if err := s.completeJob(ctx, w, false); err != nil {
					slog.Error("failed to requeue failed job", "worker", t.Name, "error", err)
				}
			}
			if err := s.coord.DeregisterWorker(ctx, *w); err != nil {
				slog.Error("failed to deregister terminal worker", "worker", t.Name, "error", err)
				continue
			}
			s.mu.Lock()
			key := imageKey(w.Group, w.Image)
			if s.spawnCounts[key] > 0 {
				s.spawnCounts[key]--
			}
			s.mu.Unlock()
			freed++
		}
	}
	return freed, nil
}

func (s *Scaler) activeWorkerSet(ctx context.Context, cluster string) (map[string]bool, error) {
	active := make(map[string]bool)
	nodes, err := s.meta.ListNodesByCluster(ctx, cluster)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		names, err := s.coord.ListWorkers(ctx, cluster, n.Name, s.kind)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			active[name] = true
		}
	}
	return active, nil
}

// failJob marks a worker's reaction permanently failed, the "its active job
// is permanently failed" half of TerminalErrorOut (spec §4.8 step 8),
// running through reaction.Engine.Fail so cascade/parent-notification
// behaves the same as a user-initiated failure.
func (s *Scaler) failJob(ctx context.Context, w *models.Worker, reason string) error {
	if w.Reaction == "" {
		return nil
	}
	_, err := s.reactions.Fail(ctx, w.Reaction, "scaler", true, "worker "+w.Name+" errored out: "+reason)
	return err
}

// completeJob reports a non-error-out terminal outcome for a worker's job to
// the reaction engine, driving current_stage_progress/Advance off the real
// terminal event (succeeded) or requeuing it for retry (failed), the other
// half of spec §4.8 step 8.
func (s *Scaler) completeJob(ctx context.Context, w *models.Worker, succeeded bool) error {
	if w.Job == "" {
		return nil
	}
	_, err := s.reactions.CompleteJob(ctx, w.Job, succeeded)
	return err
}

// sweepZombies resets jobs whose worker stopped heartbeating without
// reaching a terminal state, the independent task scaler.rs's
// ZombieChecker runs outside the main schedule loop (spec §4.8's
// zombie-horizon knob).
func (s *Scaler) sweepZombies(ctx context.Context) error {
	threshold := time.Now().Add(-s.cfg.ZombieHorizon)
	for cluster := range s.clusters {
		nodes, err := s.meta.ListNodesByCluster(ctx, cluster)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			names, err := s.coord.ListWorkers(ctx, cluster, n.Name, s.kind)
			if err != nil {
				return err
			}
			for _, name := range names {
				w, err := s.coord.GetWorker(ctx, name)
				if err != nil {
					continue
				}
				if w.LastHeartbeat.After(threshold) {
					continue
				}
				slog.Warn("resetting zombie worker", "worker", name, "last_heartbeat", w.LastHeartbeat)
				if err := s.resetZombie(ctx, w); err != nil {
					slog.Error("failed to reset zombie worker", "worker", name, "error", err)
					continue
				}
				s.metrics.zombies.WithLabelValues(string(s.kind)).Inc()
			}
		}
	}
	return nil
}

func (s *Scaler) resetZombie(ctx context.Context, w *models.Worker) error {
	if w.Job != "" {
		job, err := s.meta.GetJob(ctx, w.Job)
		if err == nil {
			job.Status = models.JobPending
			job.Worker = ""
			if err := s.meta.UpdateJobState(ctx, job); err != nil {
				return err
			}
			entry := models.DeadlineEntry{
				Scaler:     s.kind,
				Req:        models.Requisition{User: w.User, Group: w.Group, Pipeline: w.Pipeline, Stage: w.Stage},
				Creator:    w.User,
				SLA:        time.Now(),
				ReactionID: w.Reaction,
				JobID:      w.Job,
			}
			if err := s.deadlines.Push(ctx, entry); err != nil {
				return err
			}
		}
	}
	return s.coord.DeregisterWorker(ctx, *w)
}

func (s *Scaler) setHealth(h Health) {
	s.mu.Lock()
	s.health = h
	s.mu.Unlock()
}

// HealthSnapshot returns the last completed tick's outcome.
func (s *Scaler) HealthSnapshot() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

func countSpawns(spawns map[string][]backend.Spawn) int {
	n := 0
	for _, group := range spawns {
		n += len(group)
	}
	return n
}

// DecayFairShare applies one TickInterval's worth of decay to every tracked
// user's usage counter, so calling it once per TickInterval halves the
// counters once per FairShareDecayHalfLife, the fair-share "rank reduces
// over time" behavior (scaler.rs's Tasks::DecreaseFairShare). Nothing in
// this repository calls it; the tick loop does not.
func (s *Scaler) DecayFairShare(ctx context.Context) error {
	factor := math.Exp(-math.Ln2 * s.cfg.TickInterval.Seconds() / s.cfg.FairShareDecayHalfLife.Seconds())
	return s.coord.DecayFairShareUsage(ctx, s.kind, factor)
}
