package reaction

import (
	"context"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// Delete removes a reaction, canceling its pending jobs by withdrawing their
// deadline entries; already-running jobs finish and report as usual but
// their results are discarded by the caller (spec §5 "Cancellation and
// timeouts").
func (e *Engine) Delete(ctx context.Context, reactionID, caller string, callerIsGroupAdmin bool) error {
	r, err := e.meta.GetReaction(ctx, reactionID)
	if err != nil {
		return err
	}
	if err := requireModify(r, caller, callerIsGroupAdmin); err != nil {
		return err
	}
	return e.deleteReaction(ctx, r)
}

// DeleteAllInPipeline removes every reaction for a (group, pipeline) pair,
// requiring group-owner rights unless skipCheck is set by a caller that has
// already verified them.
func (e *Engine) DeleteAllInPipeline(ctx context.Context, group, pipeline string, skipCheck, callerIsGroupAdmin bool) error {
	if !skipCheck && !callerIsGroupAdmin {
		return apierrors.NewUnauthorized("caller is not an owner of group %s", group)
	}
	for _, status := range []models.ReactionStatus{models.ReactionCreated, models.ReactionStarted, models.ReactionCompleted, models.ReactionFailed} {
		ids, err := e.meta.ListReactionsByPipelineStatus(ctx, group, pipeline, status)
		if err != nil {
			return err
		}
		for _, id := range ids {
			r, err := e.meta.GetReaction(ctx, id)
			if err != nil {
				return err
			}
			if err := e.deleteReaction(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) deleteReaction(ctx context.Context, r *models.Reaction) error {
	if err := e.removeActiveDeadlines(ctx, r); err != nil {
		return err
	}
	return e.meta.DeleteReaction(ctx, r.ID)
}
