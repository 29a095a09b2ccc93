package metadata

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// UpsertNode records a scheduling target's total/available resources and
// health.
func (c *Client) UpsertNode(ctx context.Context, n models.Node) error {
	_, err := c.Pool.Exec(ctx, `
		INSERT INTO nodes (
			cluster, name,
			total_cpu_millis, total_memory_bytes, total_ephemeral_bytes, total_gpu,
			available_cpu_millis, available_memory_bytes, available_ephemeral_bytes, available_gpu,
			health, last_heartbeat, scalers
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (cluster, name) DO UPDATE SET
			total_cpu_millis = EXCLUDED.total_cpu_millis,
			total_memory_bytes = EXCLUDED.total_memory_bytes,
			total_ephemeral_bytes = EXCLUDED.total_ephemeral_bytes,
			total_gpu = EXCLUDED.total_gpu,
			available_cpu_millis = EXCLUDED.available_cpu_millis,
			available_memory_bytes = EXCLUDED.available_memory_bytes,
			available_ephemeral_bytes = EXCLUDED.available_ephemeral_bytes,
			available_gpu = EXCLUDED.available_gpu,
			health = EXCLUDED.health,
			last_heartbeat = EXCLUDED.last_heartbeat,
			scalers = EXCLUDED.scalers
	`, n.Cluster, n.Name,
		n.Total.CPUMillis, n.Total.MemoryBytes, n.Total.EphemeralBytes, n.Total.GPU,
		n.Available.CPUMillis, n.Available.MemoryBytes, n.Available.EphemeralBytes, n.Available.GPU,
		string(n.Health), nullableTime(n.LastHeartbeat), n.Scalers)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "upsert node")
	}
	return nil
}

// GetNode loads a single node by (cluster, name).
func (c *Client) GetNode(ctx context.Context, cluster, name string) (*models.Node, error) {
	n := models.Node{Cluster: cluster, Name: name}
	var health string
	row := c.Pool.QueryRow(ctx, `
		SELECT total_cpu_millis, total_memory_bytes, total_ephemeral_bytes, total_gpu,
		       available_cpu_millis, available_memory_bytes, available_ephemeral_bytes, available_gpu,
		       health, last_heartbeat, scalers
		FROM nodes WHERE cluster = $1 AND name = $2
	`, cluster, name)
	var lastHeartbeat *time.Time
	if err := row.Scan(
		&n.Total.CPUMillis, &n.Total.MemoryBytes, &n.Total.EphemeralBytes, &n.Total.GPU,
		&n.Available.CPUMillis, &n.Available.MemoryBytes, &n.Available.EphemeralBytes, &n.Available.GPU,
		&health, &lastHeartbeat, &n.Scalers,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apierrors.NewNotFound("node %s/%s not found", cluster, name)
		}
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "get node")
	}
	n.Health = models.NodeHealth(health)
	if lastHeartbeat != nil {
		n.LastHeartbeat = *lastHeartbeat
	}
	return &n, nil
}

// ListNodesByCluster returns every node registered under a cluster.
func (c *Client) ListNodesByCluster(ctx context.Context, cluster string) ([]models.Node, error) {
	rows, err := c.Pool.Query(ctx, `
		SELECT name, total_cpu_millis, total_memory_bytes, total_ephemeral_bytes, total_gpu,
		       available_cpu_millis, available_memory_bytes, available_ephemeral_bytes, available_gpu,
		       health, last_heartbeat, scalers
		FROM nodes WHERE cluster = $1
	`, cluster)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "list nodes")
	}
	defer rows.Close()

	var out []models.Node
	for rows.Next() {
		n := models.Node{Cluster: cluster}
		var health string
		var lastHeartbeat *time.Time
		if err := rows.Scan(
			&n.Name, &n.Total.CPUMillis, &n.Total.MemoryBytes, &n.Total.EphemeralBytes, &n.Total.GPU,
			&n.Available.CPUMillis, &n.Available.MemoryBytes, &n.Available.EphemeralBytes, &n.Available.GPU,
			&health, &lastHeartbeat, &n.Scalers,
		); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "scan node")
		}
		n.Health = models.NodeHealth(health)
		if lastHeartbeat != nil {
			n.LastHeartbeat = *lastHeartbeat
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteNode removes a node's row, used when a backend reports it gone.
func (c *Client) DeleteNode(ctx context.Context, cluster, name string) error {
	_, err := c.Pool.Exec(ctx, `DELETE FROM nodes WHERE cluster = $1 AND name = $2`, cluster, name)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "delete node")
	}
	return nil
}
