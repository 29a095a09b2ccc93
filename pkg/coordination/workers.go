package coordination

import (
	"context"
	"strconv"
	"time"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// RegisterWorker adds a worker to its (cluster, node, scaler) membership
// set and writes its info hash, in one atomic pipeline.
func (c *Client) RegisterWorker(ctx context.Context, w models.Worker) error {
	cluster, node, scaler := w.MemberKey()
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, c.workerSetKey(cluster, node, scaler), w.Name)
	pipe.HSet(ctx, c.workerInfoKey(w.Name), workerInfoFields(w))
	if _, err := pipe.Exec(ctx); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "register worker %s", w.Name)
	}
	return nil
}

// HeartbeatWorker updates a worker's last-heartbeat field and status.
func (c *Client) HeartbeatWorker(ctx context.Context, name string, status models.WorkerStatus, at time.Time) error {
	err := c.rdb.HSet(ctx, c.workerInfoKey(name),
		"status", string(status),
		"last_heartbeat", strconv.FormatInt(at.Unix(), 10),
	).Err()
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "heartbeat worker %s", name)
	}
	return nil
}

// GetWorker reads a single worker's info hash.
func (c *Client) GetWorker(ctx context.Context, name string) (*models.Worker, error) {
	vals, err := c.rdb.HGetAll(ctx, c.workerInfoKey(name)).Result()
	if err != nil {
		return nil, wrapRedisErr(err, "get worker %s", name)
	}
	if len(vals) == 0 {
		return nil, apierrors.NewNotFound("worker %s not found", name)
	}
	w := workerFromFields(name, vals)
	return &w, nil
}

// ListWorkers returns every worker name currently registered under a
// (cluster, node, scaler) membership set.
func (c *Client) ListWorkers(ctx context.Context, cluster, node string, scaler models.ScalerKind) ([]string, error) {
	names, err := c.rdb.SMembers(ctx, c.workerSetKey(cluster, node, scaler)).Result()
	if err != nil {
		return nil, wrapRedisErr(err, "list workers")
	}
	return names, nil
}

// DeregisterWorker removes a worker from its membership set and deletes its
// info hash, used during reconcile-deletes and terminal-resource cleanup.
func (c *Client) DeregisterWorker(ctx context.Context, w models.Worker) error {
	cluster, node, scaler := w.MemberKey()
	pipe := c.rdb.TxPipeline()
	pipe.SRem(ctx, c.workerSetKey(cluster, node, scaler), w.Name)
	pipe.Del(ctx, c.workerInfoKey(w.Name))
	if _, err := pipe.Exec(ctx); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "deregister worker %s", w.Name)
	}
	return nil
}

func workerInfoFields(w models.Worker) map[string]any {
	return map[string]any{
		"scaler":              string(w.Scaler),
		"cluster":             w.Cluster,
		"node":                w.Node,
		"user":                w.User,
		"group":               w.Group,
		"pipeline":            w.Pipeline,
		"stage":               strconv.Itoa(w.Stage),
		"reaction_id":         w.Reaction,
		"job_id":              w.Job,
		"image":               w.Image,
		"cpu_millis":          strconv.FormatInt(w.Resources.CPUMillis, 10),
		"memory_bytes":        strconv.FormatInt(w.Resources.MemoryBytes, 10),
		"ephemeral_bytes":     strconv.FormatInt(w.Resources.EphemeralBytes, 10),
		"gpu":                 strconv.FormatInt(w.Resources.GPU, 10),
		"pool":                string(w.Pool),
		"status":              string(w.Status),
		"spawned_at":          strconv.FormatInt(w.SpawnedAt.Unix(), 10),
		"last_heartbeat":      strconv.FormatInt(w.LastHeartbeat.Unix(), 10),
	}
}

func workerFromFields(name string, vals map[string]string) models.Worker {
	return models.Worker{
		Name:     name,
		Scaler:   models.ScalerKind(vals["scaler"]),
		Cluster:  vals["cluster"],
		Node:     vals["node"],
		User:     vals["user"],
		Group:    vals["group"],
		Pipeline: vals["pipeline"],
		Stage:    int(parseInt64(vals["stage"])),
		Reaction: vals["reaction_id"],
		Job:      vals["job_id"],
		Image:    vals["image"],
		Resources: models.Resources{
			CPUMillis:      parseInt64(vals["cpu_millis"]),
			MemoryBytes:    parseInt64(vals["memory_bytes"]),
			EphemeralBytes: parseInt64(vals["ephemeral_bytes"]),
			GPU:            parseInt64(vals["gpu"]),
		},
		Pool:          models.Pool(vals["pool"]),
		Status:        models.WorkerStatus(vals["status"]),
		SpawnedAt:     time.Unix(parseInt64(vals["spawned_at"]), 0).UTC(),
		LastHeartbeat: time.Unix(parseInt64(vals["last_heartbeat"]), 0).UTC(),
	}
}
