package reaction_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/internal/testpg"
	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/coordination"
	"github.com/thoriumlabs/thorium/pkg/metadata"
	"github.com/thoriumlabs/thorium/pkg/models"
	"github.com/thoriumlabs/thorium/pkg/objectstore"
	"github.com/thoriumlabs/thorium/pkg/reaction"
)

func newTestEngine(t *testing.T) (*reaction.Engine, *metadata.Client) {
	meta := testpg.NewTestClient(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	coord := coordination.NewClientFromRedis(rdb, "thorium-test")

	objects := objectstore.NewInMemory("test-password")

	return reaction.New(meta, coord, objects), meta
}

func seedPipeline(t *testing.T, meta *metadata.Client, group, name string, stages [][]string) {
	ctx := context.Background()
	order := make([]models.Stage, len(stages))
	for i, images := range stages {
		order[i] = models.Stage{Images: images}
		for _, img := range images {
			require.NoError(t, meta.UpsertImage(ctx, &models.Image{Name: img, Group: group, Image: "repo/" + img, ScalerKind: models.ScalerCluster}))
		}
	}
	require.NoError(t, meta.UpsertPipeline(ctx, &models.Pipeline{Name: name, Group: group, Order: order, SLADefault: 3600}))
}

func allowAuth() reaction.Authorizer {
	return reaction.Authorizer{GroupAllowsReactions: true, GroupEditable: true}
}

func TestCreateReaction(t *testing.T) {
	e, meta := newTestEngine(t)
	ctx := context.Background()
	seedPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}, {"soy-harvest"}})

	r, err := e.Create(ctx, reaction.CreateRequest{
		Group:    "corn",
		Pipeline: "harvest",
		Creator:  "alice",
		Samples:  []string{"a" + fixedHex(63)},
		Auth:     allowAuth(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, models.ReactionCreated, r.Status)
	assert.Contains(t, r.Tags, "submitter")

	got, err := e.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
}

func TestCreateRejectsBannedPipeline(t *testing.T) {
	e, meta := newTestEngine(t)
	ctx := context.Background()
	seedPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})
	require.NoError(t, meta.SetPipelineBans(ctx, "corn", "harvest", []string{"abuse"}))

	_, err := e.Create(ctx, reaction.CreateRequest{Group: "corn", Pipeline: "harvest", Creator: "alice", Auth: allowAuth()})
	require.Error(t, err)
	assert.Equal(t, apierrors.KindConflict, apierrors.KindOf(err))
}

func TestCreateRejectsDisallowedGroup(t *testing.T) {
	e, meta := newTestEngine(t)
	ctx := context.Background()
	seedPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})

	_, err := e.Create(ctx, reaction.CreateRequest{Group: "corn", Pipeline: "harvest", Creator: "alice"})
	require.Error(t, err)
	assert.Equal(t, apierrors.KindUnauthorized, apierrors.KindOf(err))
}

func TestAdvanceThroughPipelineToCompletion(t *testing.T) {
	e, meta := newTestEngine(t)
	ctx := context.Background()
	seedPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}, {"soy-harvest"}})

	r, err := e.Create(ctx, reaction.CreateRequest{Group: "corn", Pipeline: "harvest", Creator: "alice", Auth: allowAuth()})
	require.NoError(t, err)
	// Create enters stage 0 directly: a real job row exists and the
	// reaction stays Created while that job runs.
	assert.Equal(t, models.ReactionCreated, r.Status)
	assert.Equal(t, 0, r.CurrentStage)
	assert.Equal(t, 1, r.CurrentStageLength)

	stage0Jobs, err := meta.ListJobsByReactionStage(ctx, r.ID, 0)
	require.NoError(t, err)
	require.Len(t, stage0Jobs, 1)

	// stage 0's job is still pending: advance is a no-op.
	r, err = e.Advance(ctx, r.ID, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, models.ReactionCreated, r.Status)
	assert.Equal(t, 0, r.CurrentStage)

	// the job completes: current_stage_progress advances and the
	// reaction transitions into stage 1 as Started.
	r, err = e.CompleteJob(ctx, stage0Jobs[0].ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.ReactionStarted, r.Status)
	assert.Equal(t, 1, r.CurrentStage)
	assert.Equal(t, 1, r.CurrentStageLength)

	stage1Jobs, err := meta.ListJobsByReactionStage(ctx, r.ID, 1)
	require.NoError(t, err)
	require.Len(t, stage1Jobs, 1)

	r, err = e.CompleteJob(ctx, stage1Jobs[0].ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.ReactionCompleted, r.Status)
}

func TestCompleteJobRequeuesOnFailure(t *testing.T) {
	e, meta := newTestEngine(t)
	ctx := context.Background()
	seedPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})

	r, err := e.Create(ctx, reaction.CreateRequest{Group: "corn", Pipeline: "harvest", Creator: "alice", Auth: allowAuth()})
	require.NoError(t, err)

	jobs, err := meta.ListJobsByReactionStage(ctx, r.ID, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	r, err = e.CompleteJob(ctx, jobs[0].ID, false)
	require.NoError(t, err)
	// an ordinary failure requeues the job; the stage has not progressed.
	assert.Equal(t, models.ReactionCreated, r.Status)
	assert.Equal(t, 0, r.CurrentStageProgress)

	job, err := meta.GetJob(ctx, jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
}

func TestAdvanceRequiresModifyRights(t *testing.T) {
	e, meta := newTestEngine(t)
	ctx := context.Background()
	seedPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})

	r, err := e.Create(ctx, reaction.CreateRequest{Group: "corn", Pipeline: "harvest", Creator: "alice", Auth: allowAuth()})
	require.NoError(t, err)

	_, err = e.Advance(ctx, r.ID, "mallory", false)
	require.Error(t, err)
	assert.Equal(t, apierrors.KindUnauthorized, apierrors.KindOf(err))
}

func TestFailMarksFailedAndIsIdempotent(t *testing.T) {
	e, meta := newTestEngine(t)
	ctx := context.Background()
	seedPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})

	r, err := e.Create(ctx, reaction.CreateRequest{Group: "corn", Pipeline: "harvest", Creator: "alice", Auth: allowAuth()})
	require.NoError(t, err)
	r, err = e.Advance(ctx, r.ID, "alice", false)
	require.NoError(t, err)

	r, err = e.Fail(ctx, r.ID, "alice", false, "tool crashed")
	require.NoError(t, err)
	assert.Equal(t, models.ReactionFailed, r.Status)

	// a second Fail is a no-op, not an error.
	r2, err := e.Fail(ctx, r.ID, "alice", false, "again")
	require.NoError(t, err)
	assert.Equal(t, models.ReactionFailed, r2.Status)
	_ = meta
}

func TestUpdateArgsOverlayIsDeterministic(t *testing.T) {
	e, meta := newTestEngine(t)
	ctx := context.Background()
	seedPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})

	r, err := e.Create(ctx, reaction.CreateRequest{
		Group: "corn", Pipeline: "harvest", Creator: "alice",
		Args: map[string]models.ImageArgsOverlay{
			"corn-harvest": {KwargAdd: map[string]string{"keep": "1", "drop": "2"}, SwitchAdd: []string{"keep-switch", "drop-switch"}},
		},
		Auth: allowAuth(),
	})
	require.NoError(t, err)

	updated, err := e.Update(ctx, r.ID, "alice", false, reaction.UpdateRequest{
		Args: map[string]reaction.ArgsUpdate{
			"corn-harvest": {
				KwargRemove:  []string{"drop"},
				KwargAdd:     map[string]string{"added": "3"},
				SwitchRemove: []string{"drop-switch"},
				SwitchAdd:    []string{"added-switch"},
			},
		},
		AddTags: map[string]string{"priority": "high"},
	})
	require.NoError(t, err)

	overlay := updated.Args["corn-harvest"]
	assert.Equal(t, map[string]string{"keep": "1", "added": "3"}, overlay.KwargAdd)
	assert.ElementsMatch(t, []string{"keep-switch", "added-switch"}, overlay.SwitchAdd)
	assert.Equal(t, "high", updated.Tags["priority"])
}

func TestEphemeralUploadAndDownload(t *testing.T) {
	e, meta := newTestEngine(t)
	ctx := context.Background()
	seedPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})

	r, err := e.Create(ctx, reaction.CreateRequest{
		Group: "corn", Pipeline: "harvest", Creator: "alice",
		Ephemeral: map[string]string{"notes.txt": "aGVsbG8="}, // "hello"
		Auth:      allowAuth(),
	})
	require.NoError(t, err)
	require.Contains(t, r.EphemeralFiles, "notes.txt")

	data, err := e.DownloadEphemeral(ctx, r, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = e.DownloadEphemeral(ctx, r, "nope.txt")
	require.Error(t, err)
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err))
}

func TestDeleteReaction(t *testing.T) {
	e, meta := newTestEngine(t)
	ctx := context.Background()
	seedPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})

	r, err := e.Create(ctx, reaction.CreateRequest{Group: "corn", Pipeline: "harvest", Creator: "alice", Auth: allowAuth()})
	require.NoError(t, err)

	require.NoError(t, e.Delete(ctx, r.ID, "alice", false))

	_, err = e.Get(ctx, r.ID)
	require.Error(t, err)
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err))
}

func fixedHex(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = 'a'
	}
	return string(out)
}
