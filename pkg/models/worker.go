package models

import "time"

// WorkerStatus is the lifecycle of a spawned worker.
type WorkerStatus string

const (
	WorkerSpawning WorkerStatus = "Spawning"
	WorkerRunning  WorkerStatus = "Running"
	WorkerShutdown WorkerStatus = "Shutdown"
)

// Worker is one spawned execution unit backing a Job.
type Worker struct {
	Name     string     `json:"name"`
	Scaler   ScalerKind `json:"scaler"`
	Cluster  string     `json:"cluster"`
	Node     string     `json:"node"`
	User     string     `json:"user"`
	Group    string     `json:"group"`
	Pipeline string     `json:"pipeline"`
	Stage    int        `json:"stage"`
	Reaction string     `json:"reaction_id"`
	Job      string     `json:"job_id"`
	Image    string     `json:"image"`

	Resources Resources    `json:"resources"`
	Pool      Pool         `json:"pool"`
	Status    WorkerStatus `json:"status"`

	SpawnedAt     time.Time `json:"spawned_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// MemberKey is the (cluster, node, scaler) set key the worker belongs to.
func (w *Worker) MemberKey() (cluster, node string, scaler ScalerKind) {
	return w.Cluster, w.Node, w.Scaler
}

// NodeHealth enumerates node health states.
type NodeHealth string

const (
	NodeRegistered NodeHealth = "Registered"
	NodeHealthy    NodeHealth = "Healthy"
	NodeUnhealthy  NodeHealth = "Unhealthy"
	NodeDisabled   NodeHealth = "Disabled"
)

// Node is one scheduling target within a cluster.
type Node struct {
	Cluster   string     `json:"cluster"`
	Name      string     `json:"name"`
	Total     Resources  `json:"total"`
	Available Resources  `json:"available"`
	Health    NodeHealth `json:"health"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Scalers   []ScalerKind `json:"scalers"`
}

// Fits reports whether the node currently has enough available resources.
func (n *Node) Fits(req Resources) bool {
	return n.Available.CPUMillis >= req.CPUMillis &&
		n.Available.MemoryBytes >= req.MemoryBytes &&
		n.Available.EphemeralBytes >= req.EphemeralBytes &&
		n.Available.GPU >= req.GPU
}
