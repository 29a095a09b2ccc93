package reaction_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/pkg/models"
	"github.com/thoriumlabs/thorium/pkg/reaction"
)

func TestBulkCreatePartialSuccessDoesNotAbortBatch(t *testing.T) {
	e, meta := newTestEngine(t)
	ctx := context.Background()
	seedPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})

	reqs := []reaction.CreateRequest{
		{Group: "corn", Pipeline: "harvest", Creator: "alice", Auth: allowAuth()},
		{
			Group: "corn", Pipeline: "harvest", Creator: "alice",
			Repos: []models.RepoRef{{URL: "https://example.com/missing.git"}},
			Auth:  allowAuth(),
		},
		{Group: "corn", Pipeline: "harvest", Creator: "alice", Auth: allowAuth()},
	}

	out, err := e.BulkCreate(ctx, reqs)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.NoError(t, out[0].Error)
	assert.NotNil(t, out[0].Reaction)

	assert.Error(t, out[1].Error)
	assert.Nil(t, out[1].Reaction)

	assert.NoError(t, out[2].Error)
	assert.NotNil(t, out[2].Reaction)
}

func TestBulkCreateRejectsWholeBatchForBannedPipeline(t *testing.T) {
	e, meta := newTestEngine(t)
	ctx := context.Background()
	seedPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})
	require.NoError(t, meta.SetPipelineBans(ctx, "corn", "harvest", []string{"abuse"}))

	reqs := []reaction.CreateRequest{
		{Group: "corn", Pipeline: "harvest", Creator: "alice", Auth: allowAuth()},
		{Group: "corn", Pipeline: "harvest", Creator: "alice", Auth: allowAuth()},
	}

	out, err := e.BulkCreate(ctx, reqs)
	require.Error(t, err)
	assert.Nil(t, out)
}

func TestBulkCreateByUserPartitionsByCreator(t *testing.T) {
	e, meta := newTestEngine(t)
	ctx := context.Background()
	seedPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})

	reqs := []reaction.CreateRequest{
		{Group: "corn", Pipeline: "harvest", Creator: "alice", Auth: allowAuth()},
		{Group: "corn", Pipeline: "harvest", Creator: "bob", Auth: allowAuth()},
	}

	out, err := e.BulkCreateByUser(ctx, reqs, true)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NoError(t, out[0].Error)
	assert.Equal(t, "alice", out[0].Reaction.Creator)
	assert.NoError(t, out[1].Error)
	assert.Equal(t, "bob", out[1].Reaction.Creator)
}

func TestBulkCreateByUserRequiresAdmin(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.BulkCreateByUser(ctx, []reaction.CreateRequest{{Group: "corn", Pipeline: "harvest", Creator: "alice"}}, false)
	require.Error(t, err)
}
