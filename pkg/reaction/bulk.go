package reaction

import (
	"context"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// pipelineKey identifies a distinct (group, pipeline) pair within a batch.
type pipelineKey struct {
	group, pipeline string
}

// BulkResult carries one request's outcome within a batch: exactly one of
// Reaction or Error is set. Index i of a BulkResult slice always corresponds
// to index i of the request slice that produced it (spec §4.6.2/§7's
// "per-index error map alongside the successes").
type BulkResult struct {
	Reaction *models.Reaction
	Error    error
}

// BulkCreate builds one reaction per request, caching the pipeline fetch and
// ban/editable checks per distinct (group, pipeline) so a large batch pays
// for them once. The whole batch is rejected up front if any distinct
// pipeline is banned or its group is not editable by the caller; past that
// point, each request is created independently and a per-request failure
// (bad sample, bad SHA, authorization) does not block its siblings (spec
// §4.6.2, §7).
func (e *Engine) BulkCreate(ctx context.Context, reqs []CreateRequest) ([]BulkResult, error) {
	checked := make(map[pipelineKey]bool, len(reqs))
	for _, req := range reqs {
		key := pipelineKey{req.Group, req.Pipeline}
		if checked[key] {
			continue
		}
		if !req.Auth.GroupEditable {
			return nil, apierrors.NewUnauthorized("group %s is not editable by caller", req.Group)
		}
		p, err := e.meta.GetPipeline(ctx, req.Group, req.Pipeline)
		if err != nil {
			return nil, err
		}
		if p.Banned() {
			return nil, apierrors.NewConflict("pipeline %s/%s is banned: %v", req.Group, req.Pipeline, p.Bans)
		}
		checked[key] = true
	}

	out := make([]BulkResult, len(reqs))
	for i, req := range reqs {
		r, err := e.Create(ctx, req)
		if err != nil {
			out[i] = BulkResult{Error: err}
			continue
		}
		out[i] = BulkResult{Reaction: r}
	}
	return out, nil
}

// BulkCreateByUser partitions a batch by target username and runs
// BulkCreate under each effective identity, the admin-only per-user variant
// (spec §4.6.2). Each request's Creator selects its partition; results are
// returned in the original request order so index alignment is preserved
// across partitions. A partition-level rejection (banned pipeline, non-
// editable group) is recorded against every request in that partition
// rather than aborting the whole batch.
func (e *Engine) BulkCreateByUser(ctx context.Context, reqs []CreateRequest, isAdmin bool) ([]BulkResult, error) {
	if !isAdmin {
		return nil, apierrors.NewUnauthorized("per-user bulk create requires admin rights")
	}

	byUser := make(map[string][]int)
	order := make([]string, 0)
	for i, req := range reqs {
		if _, ok := byUser[req.Creator]; !ok {
			order = append(order, req.Creator)
		}
		byUser[req.Creator] = append(byUser[req.Creator], i)
	}

	out := make([]BulkResult, len(reqs))
	for _, user := range order {
		indices := byUser[user]
		partition := make([]CreateRequest, len(indices))
		for j, i := range indices {
			partition[j] = reqs[i]
		}

		results, err := e.BulkCreate(ctx, partition)
		if err != nil {
			for _, i := range indices {
				out[i] = BulkResult{Error: err}
			}
			continue
		}
		for j, i := range indices {
			out[i] = results[j]
		}
	}
	return out, nil
}
