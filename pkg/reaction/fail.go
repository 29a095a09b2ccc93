package reaction

import (
	"context"

	"github.com/thoriumlabs/thorium/pkg/models"
)

// Fail marks a reaction Failed, leaving its sub-reactions and generators
// running so partial results are retained, and signals the parent if one
// exists (spec §4.6.4).
func (e *Engine) Fail(ctx context.Context, reactionID, caller string, callerIsGroupAdmin bool, reason string) (*models.Reaction, error) {
	r, err := e.meta.GetReaction(ctx, reactionID)
	if err != nil {
		return nil, err
	}
	if err := requireModify(r, caller, callerIsGroupAdmin); err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return r, nil
	}

	r.Status = models.ReactionFailed
	if err := e.meta.UpdateReactionState(ctx, r); err != nil {
		return nil, err
	}
	if err := e.appendStatus(ctx, r.ID, "Failed", reason); err != nil {
		return nil, err
	}

	if err := e.removeActiveDeadlines(ctx, r); err != nil {
		return nil, err
	}

	if r.Parent != nil {
		if err := e.signalParentFailure(ctx, *r.Parent, r.ID); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// signalParentFailure records a status-log note on the parent; the parent
// itself is never force-failed by a sub-reaction's failure.
func (e *Engine) signalParentFailure(ctx context.Context, parentID, childID string) error {
	return e.appendStatus(ctx, parentID, "SubReactionFailed", childID)
}

// removeActiveDeadlines drops the failed reaction's current-stage jobs from
// their scaler's deadline set, so a deferred placement never resurfaces for
// a reaction that has already failed.
func (e *Engine) removeActiveDeadlines(ctx context.Context, r *models.Reaction) error {
	jobs, err := e.meta.ListJobsByReactionStage(ctx, r.ID, r.CurrentStage)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.Status == models.JobCompleted || j.Status == models.JobFailed {
			continue
		}
		img, err := e.meta.GetImage(ctx, r.Group, j.Image)
		if err != nil {
			return err
		}
		if err := e.deadlines.Remove(ctx, img.ScalerKind, j.ID); err != nil {
			return err
		}
	}
	return nil
}
