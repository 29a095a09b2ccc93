// Package reaction implements the C6 reaction engine: creation, advancement,
// failure, argument updates, and ephemeral-file handling for one running
// instance of a pipeline (spec §4.6), grounded on
// original_source/api/src/models/backends/reactions.rs's Reaction/
// ReactionRequest methods and tarsy's pkg/services/{session_service,
// stage_service}.go transaction/status-aggregation idiom.
//
// Group and role membership live outside this package (the routing layer
// the spec frames as external); Engine methods take an Authorizer carrying
// the caller-specific checks already resolved upstream rather than
// maintaining their own RBAC lookup.
package reaction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/coordination"
	"github.com/thoriumlabs/thorium/pkg/deadline"
	"github.com/thoriumlabs/thorium/pkg/metadata"
	"github.com/thoriumlabs/thorium/pkg/models"
	"github.com/thoriumlabs/thorium/pkg/objectstore"
)

// Engine wires the metadata store, coordination store, object store, and
// deadline stream into the reaction lifecycle.
type Engine struct {
	meta      *metadata.Client
	coord     *coordination.Client
	objects   *objectstore.Client
	deadlines *deadline.Stream
}

// New builds an Engine over the platform's core stores.
func New(meta *metadata.Client, coord *coordination.Client, objects *objectstore.Client) *Engine {
	return &Engine{meta: meta, coord: coord, objects: objects, deadlines: deadline.New(coord)}
}

// Authorizer carries the caller-specific permission checks Create/BulkCreate
// need but cannot answer on their own, since group/role membership is
// resolved by the external routing layer (spec §4.6.1 steps 1-2).
type Authorizer struct {
	// GroupAllowsReactions reports whether the target group currently
	// accepts new reactions.
	GroupAllowsReactions bool
	// GroupEditable reports whether the caller may edit/delete the
	// group's pipelines and reactions (group-admin rights rather than just
	// ownership); BulkCreate is the only path that checks it.
	GroupEditable bool
	// SampleVisible reports whether the caller can see a given sample's
	// submissions (its group membership already resolved upstream). A nil
	// func skips the check (used by system/admin callers).
	SampleVisible func(sha256 string) bool
	// CanOverrideArgs reports whether the caller holds developer rights
	// over the given image's scaler, required to override its arguments.
	// A nil func skips the check.
	CanOverrideArgs func(image string) bool
}

// CreateRequest is the typed input to Create (spec §4.6.1).
type CreateRequest struct {
	Group    string
	Pipeline string
	Creator  string

	Samples []string
	Repos   []models.RepoRef
	Args    map[string]models.ImageArgsOverlay
	Tags    map[string]string
	Parent  *string

	// SLA, in seconds, overrides the pipeline default when non-nil.
	SLA *int64

	TriggerDepth int

	// Ephemeral maps file name to its base64-encoded content.
	Ephemeral map[string]string

	Auth Authorizer
}

// Create builds and persists a new reaction (spec §4.6.1).
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*models.Reaction, error) {
	if err := models.ValidateName("reaction.group", req.Group); err != nil {
		return nil, err
	}
	if err := models.ValidateName("reaction.pipeline", req.Pipeline); err != nil {
		return nil, err
	}
	if req.Creator == "" {
		return nil, apierrors.NewInvalid("reaction: creator must not be empty")
	}
	if !req.Auth.GroupAllowsReactions {
		return nil, apierrors.NewUnauthorized("group %s does not accept reactions", req.Group)
	}

	p, err := e.meta.GetPipeline(ctx, req.Group, req.Pipeline)
	if err != nil {
		return nil, err
	}
	if p.Banned() {
		return nil, apierrors.NewConflict("pipeline %s/%s is banned: %v", req.Group, req.Pipeline, p.Bans)
	}

	for _, sha := range req.Samples {
		if req.Auth.SampleVisible != nil && !req.Auth.SampleVisible(sha) {
			return nil, apierrors.NewUnauthorized("caller cannot see sample %s", sha)
		}
	}

	for image := range req.Args {
		if !p.ImageInOrder(image) {
			return nil, apierrors.NewInvalid("image %q is not part of pipeline %s", image, req.Pipeline)
		}
		if req.Auth.CanOverrideArgs != nil && !req.Auth.CanOverrideArgs(image) {
			return nil, apierrors.NewUnauthorized("caller lacks developer rights to override image %q", image)
		}
	}

	repos := make([]models.RepoRef, 0, len(req.Repos))
	for _, ref := range req.Repos {
		repo, err := e.meta.GetRepository(ctx, ref.URL)
		if err != nil {
			return nil, err
		}
		repos = append(repos, models.RepoRef{URL: ref.URL, Commitish: repo.ResolveCommitish(ref.Commitish)})
	}

	slaSeconds := p.SLADefault
	if req.SLA != nil {
		slaSeconds = *req.SLA
	}
	if err := models.ValidateSLA(slaSeconds); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	ephemeralNames, err := e.uploadEphemeral(ctx, id, req.Ephemeral)
	if err != nil {
		return nil, err
	}

	tags := make(map[string]string, len(req.Tags)+len(req.Samples)+1)
	for k, v := range req.Tags {
		tags[k] = v
	}
	tags["submitter"] = req.Creator
	for _, sha := range req.Samples {
		tags["sample:"+sha] = sha
	}

	var stage0Length int
	if len(p.Order) > 0 {
		stage0Length = len(p.Order[0].Images)
	}

	r := &models.Reaction{
		ID:                   id,
		Group:                req.Group,
		Pipeline:             req.Pipeline,
		Creator:              req.Creator,
		Status:               models.ReactionCreated,
		CurrentStage:         0,
		CurrentStageLength:   stage0Length,
		CurrentStageProgress: 0,
		Args:                 req.Args,
		SLA:                  now.Add(time.Duration(slaSeconds) * time.Second),
		Samples:              req.Samples,
		Repos:                repos,
		Parent:               req.Parent,
		EphemeralFiles:       ephemeralNames,
		Tags:                 tags,
		TriggerDepth:         req.TriggerDepth,
		CreatedAt:            now,
	}

	if err := e.meta.InsertReaction(ctx, r); err != nil {
		return nil, err
	}
	if err := e.appendStatus(ctx, r.ID, "Created", ""); err != nil {
		return nil, err
	}
	if req.Parent != nil {
		if err := e.linkSubReaction(ctx, *req.Parent, r.ID); err != nil {
			return nil, err
		}
	}

	if len(p.Order) > 0 {
		for _, image := range p.Order[0].Images {
			img, err := e.meta.GetImage(ctx, req.Group, image)
			if err != nil {
				return nil, err
			}
			job := &models.Job{
				ID:         uuid.New().String(),
				ReactionID: r.ID,
				Stage:      0,
				Image:      image,
				Status:     models.JobPending,
			}
			if err := e.meta.InsertJob(ctx, job); err != nil {
				return nil, err
			}
			entry := models.DeadlineEntry{
				Scaler:     img.ScalerKind,
				Req:        models.Requisition{User: req.Creator, Group: req.Group, Pipeline: req.Pipeline, Stage: 0},
				Creator:    req.Creator,
				SLA:        r.SLA,
				ReactionID: r.ID,
				JobID:      job.ID,
			}
			if err := e.deadlines.Push(ctx, entry); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

// Get loads a single reaction by id.
func (e *Engine) Get(ctx context.Context, id string) (*models.Reaction, error) {
	return e.meta.GetReaction(ctx, id)
}

// GetStatuses bulk-resolves the status of many reactions at once, a
// supplement to the single-reaction Get for dashboards/poll loops (mirrors
// the original's list_status bulk query).
func (e *Engine) GetStatuses(ctx context.Context, ids []string) (map[string]models.ReactionStatus, error) {
	reactions, err := e.meta.GetReactions(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.ReactionStatus, len(reactions))
	for _, r := range reactions {
		out[r.ID] = r.Status
	}
	return out, nil
}

func (e *Engine) appendStatus(ctx context.Context, reactionID, action, message string) error {
	return e.meta.AppendStatusLog(ctx, reactionID, models.StatusLogEntry{
		Action:    action,
		Timestamp: time.Now().UTC(),
		Message:   message,
	})
}

func (e *Engine) linkSubReaction(ctx context.Context, parentID, childID string) error {
	parent, err := e.meta.GetReaction(ctx, parentID)
	if err != nil {
		return err
	}
	parent.SubReactions = append(parent.SubReactions, childID)
	return e.meta.UpdateReactionState(ctx, parent)
}
