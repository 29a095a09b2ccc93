// Package backend defines the scaler-agnostic placement driver contract
// (spec §4.9 C9): setup a cluster, report allocatable resources, spawn and
// delete workers, and classify terminal workers. Grounded on
// original_source/scaler/src/libs/schedulers (the abstract Scheduler trait)
// translated to a Go interface.
package backend

import (
	"context"

	"github.com/thoriumlabs/thorium/pkg/models"
)

// Spawn is one concrete worker placement the scaler has decided to make.
type Spawn struct {
	Name       string
	Node       string
	Req        models.Requisition
	Resources  models.Resources
	Pool       models.Pool
	Image      models.Image
	ReactionID string
	JobID      string
}

// Delete identifies a worker to remove from a cluster.
type Delete struct {
	Name string
	Req  models.Requisition
}

// DeleteResult reports the outcome of one Delete, asynchronous deletes (spec
// §4.8 step 7 "reconcile deletes") resolve to Deleted on a later tick rather
// than the tick that issued them.
type DeleteResult struct {
	Name    string
	Deleted bool
	Err     error
}

// TerminalOutcome classifies a worker a driver finds in a terminal pod/VM/
// process state (spec §4.8 step 8).
type TerminalOutcome int

const (
	// TerminalSucceeded means the worker exited cleanly; free its resources.
	TerminalSucceeded TerminalOutcome = iota
	// TerminalFailed means the worker failed in an ordinary way; free its
	// resources and the job may be requeued.
	TerminalFailed
	// TerminalErrorOut means the worker failed in a way that cannot be
	// retried (e.g. OOM kill); its active job is permanently failed.
	TerminalErrorOut
)

// TerminalWorker is one worker a driver observed in a terminal state.
type TerminalWorker struct {
	Name    string
	Outcome TerminalOutcome
	Reason  string
}

// Driver abstracts one scheduling backend (container cluster, bare metal,
// VM, external provisioner). One Driver instance is registered per cluster
// name in the scaler's driver map.
type Driver interface {
	// Setup prepares a cluster to accept spawns (e.g. ensure its
	// per-group namespaces exist). Called once during scaler init.
	Setup(ctx context.Context, cluster string) error

	// ResourcesAvailable reports allocatable resources per node.
	ResourcesAvailable(ctx context.Context, cluster string, settings models.SystemSettings) (map[string]models.Resources, error)

	// Spawn places workers, returning a per-name error for any that failed.
	// Omitted names succeeded.
	Spawn(ctx context.Context, cluster string, spawns []Spawn) map[string]error

	// Delete removes workers, returning one result per requested delete
	// (some drivers resolve asynchronously across ticks — see DeleteResult.Deleted).
	Delete(ctx context.Context, cluster string, deletes []Delete) []DeleteResult

	// ClearTerminal scans a cluster for workers that have reached a terminal
	// state and are not in the active set, classifying each.
	ClearTerminal(ctx context.Context, cluster string, active map[string]bool) ([]TerminalWorker, error)
}
