package reaction

import (
	"context"

	"github.com/google/uuid"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// Advance implements "proceed" (spec §4.6.3): if the current stage still has
// pending jobs, it is a no-op; otherwise it either completes the reaction
// (cascading into its parent) or spawns the next stage's jobs.
func (e *Engine) Advance(ctx context.Context, reactionID, caller string, callerIsGroupAdmin bool) (*models.Reaction, error) {
	r, err := e.meta.GetReaction(ctx, reactionID)
	if err != nil {
		return nil, err
	}
	if err := requireModify(r, caller, callerIsGroupAdmin); err != nil {
		return nil, err
	}
	return e.advance(ctx, r)
}

func requireModify(r *models.Reaction, caller string, callerIsGroupAdmin bool) error {
	if r.Creator != caller && !callerIsGroupAdmin {
		return apierrors.NewUnauthorized("caller %s may not modify reaction %s", caller, r.ID)
	}
	return nil
}

// advance runs the stage-transition logic against an already-authorized
// reaction, recursing into the parent on cascade (spec §4.6.3).
func (e *Engine) advance(ctx context.Context, r *models.Reaction) (*models.Reaction, error) {
	if r.Status.Terminal() {
		return r, nil
	}
	if r.CurrentStageProgress < r.CurrentStageLength {
		// current stage still has pending jobs; no-op.
		return r, nil
	}

	p, err := e.meta.GetPipeline(ctx, r.Group, r.Pipeline)
	if err != nil {
		return nil, err
	}

	// Create already enters stage 0 directly (inserting its jobs and setting
	// current_stage_length/progress itself), so advance only ever moves past
	// whatever stage the reaction is currently sitting in.
	nextStage := r.CurrentStage + 1

	if nextStage >= len(p.Order) {
		r.Status = models.ReactionCompleted
		r.CurrentStage = nextStage
		if err := e.meta.UpdateReactionState(ctx, r); err != nil {
			return nil, err
		}
		if err := e.appendStatus(ctx, r.ID, "Completed", ""); err != nil {
			return nil, err
		}
		if r.Parent != nil {
			if err := e.completeSubReaction(ctx, *r.Parent); err != nil {
				return nil, err
			}
		}
		return r, nil
	}

	stage := p.Order[nextStage]
	r.CurrentStage = nextStage
	r.CurrentStageLength = len(stage.Images)
	r.CurrentStageProgress = 0
	if r.Status == models.ReactionCreated {
		r.Status = models.ReactionStarted
	}
	if err := e.meta.UpdateReactionState(ctx, r); err != nil {
		return nil, err
	}
	if err := e.appendStatus(ctx, r.ID, "StageAdvanced", ""); err != nil {
		return nil, err
	}

	for _, image := range stage.Images {
		img, err := e.meta.GetImage(ctx, r.Group, image)
		if err != nil {
			return nil, err
		}
		job := &models.Job{
			ID:         uuid.New().String(),
			ReactionID: r.ID,
			Stage:      nextStage,
			Image:      image,
			Status:     models.JobPending,
		}
		if err := e.meta.InsertJob(ctx, job); err != nil {
			return nil, err
		}
		entry := models.DeadlineEntry{
			Scaler:     img.ScalerKind,
			Req:        models.Requisition{User: r.Creator, Group: r.Group, Pipeline: r.Pipeline, Stage: nextStage},
			Creator:    r.Creator,
			SLA:        r.SLA,
			ReactionID: r.ID,
			JobID:      job.ID,
		}
		if err := e.deadlines.Push(ctx, entry); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// CompleteJob records one stage job's terminal outcome (spec §4.8 step 8):
// a succeeded job marks Completed, bumps current_stage_progress, and
// re-evaluates Advance; a failed (non-error-out) job is reset to Pending
// and requeued onto its scaler's deadline stream for retry. Called by the
// scaler when a driver classifies a worker's job as succeeded or failed.
func (e *Engine) CompleteJob(ctx context.Context, jobID string, succeeded bool) (*models.Reaction, error) {
	job, err := e.meta.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == models.JobCompleted || job.Status == models.JobFailed {
		// already resolved by a prior, possibly racing, terminal report.
		return e.meta.GetReaction(ctx, job.ReactionID)
	}

	r, err := e.meta.GetReaction(ctx, job.ReactionID)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return r, nil
	}

	if !succeeded {
		return r, e.requeueJob(ctx, r, job)
	}

	job.Status = models.JobCompleted
	job.Worker = ""
	if err := e.meta.UpdateJobState(ctx, job); err != nil {
		return nil, err
	}

	if job.Stage == r.CurrentStage {
		r.CurrentStageProgress++
		if err := e.meta.UpdateReactionState(ctx, r); err != nil {
			return nil, err
		}
	}

	return e.advance(ctx, r)
}

// requeueJob resets an ordinarily-failed job to Pending and pushes a fresh
// deadline entry for it, the "may requeue the job" half of spec §4.8 step 8.
func (e *Engine) requeueJob(ctx context.Context, r *models.Reaction, job *models.Job) error {
	job.Status = models.JobPending
	job.Worker = ""
	if err := e.meta.UpdateJobState(ctx, job); err != nil {
		return err
	}

	img, err := e.meta.GetImage(ctx, r.Group, job.Image)
	if err != nil {
		return err
	}
	entry := models.DeadlineEntry{
		Scaler:     img.ScalerKind,
		Req:        models.Requisition{User: r.Creator, Group: r.Group, Pipeline: r.Pipeline, Stage: job.Stage},
		Creator:    r.Creator,
		SLA:        r.SLA,
		ReactionID: r.ID,
		JobID:      job.ID,
	}
	return e.deadlines.Push(ctx, entry)
}

// completeSubReaction bumps the parent's completed-sub-reaction counter and
// re-evaluates its own advance condition, which may cascade further up the
// reaction tree (spec §4.6.3's parent-completion bullet).
func (e *Engine) completeSubReaction(ctx context.Context, parentID string) error {
	parent, err := e.meta.GetReaction(ctx, parentID)
	if err != nil {
		return err
	}
	parent.CompletedSubReactions++
	if err := e.meta.UpdateReactionState(ctx, parent); err != nil {
		return err
	}
	_, err = e.advance(ctx, parent)
	return err
}
