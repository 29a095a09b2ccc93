package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/internal/testpg"
	"github.com/thoriumlabs/thorium/pkg/config"
	"github.com/thoriumlabs/thorium/pkg/metadata"
	"github.com/thoriumlabs/thorium/pkg/models"
)

func insertTestReaction(t *testing.T, ctx context.Context, meta *metadata.Client, status models.ReactionStatus, createdAt time.Time) string {
	t.Helper()
	id := uuid.New().String()
	require.NoError(t, meta.InsertReaction(ctx, &models.Reaction{
		ID:        id,
		Group:     "corn",
		Pipeline:  "harvest",
		Creator:   "alice",
		Status:    status,
		CreatedAt: createdAt,
	}))
	return id
}

func TestSweepPurgesOldResults(t *testing.T) {
	meta := testpg.NewTestClient(t)
	ctx := context.Background()

	old := models.Result{ID: uuid.New().String(), SHA256: "deadbeef", Image: "corn-harvest", Groups: []string{"corn"}, CreatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, meta.InsertResult(ctx, old))
	recent := models.Result{ID: uuid.New().String(), SHA256: "cafebabe", Image: "corn-harvest", Groups: []string{"corn"}, CreatedAt: time.Now()}
	require.NoError(t, meta.InsertResult(ctx, recent))

	cfg := &config.RetentionConfig{
		ResultRetention:    24 * time.Hour,
		StatusLogRetention: 24 * time.Hour,
		EphemeralRetention: 24 * time.Hour,
	}
	svc := NewService(cfg, meta, time.Hour)
	svc.sweep(ctx)

	remaining, err := meta.GetResultsBySample(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	remaining, err = meta.GetResultsBySample(ctx, "cafebabe")
	require.NoError(t, err)
	assert.NotEmpty(t, remaining)
}

func TestSweepPurgesStatusLogForTerminalReactionsOnly(t *testing.T) {
	meta := testpg.NewTestClient(t)
	ctx := context.Background()

	oldTerminal := insertTestReaction(t, ctx, meta, models.ReactionCompleted, time.Now().Add(-48*time.Hour))
	require.NoError(t, meta.AppendStatusLog(ctx, oldTerminal, models.StatusLogEntry{Action: "completed", Timestamp: time.Now()}))

	oldActive := insertTestReaction(t, ctx, meta, models.ReactionStarted, time.Now().Add(-48*time.Hour))
	require.NoError(t, meta.AppendStatusLog(ctx, oldActive, models.StatusLogEntry{Action: "started", Timestamp: time.Now()}))

	cfg := &config.RetentionConfig{
		ResultRetention:    24 * time.Hour,
		StatusLogRetention: 24 * time.Hour,
		EphemeralRetention: 24 * time.Hour,
	}
	svc := NewService(cfg, meta, time.Hour)
	svc.sweep(ctx)

	entries, _, err := meta.ListStatusLog(ctx, oldTerminal, "", 10)
	require.NoError(t, err)
	assert.Empty(t, entries, "terminal reaction's old status log should be purged")

	entries, _, err = meta.ListStatusLog(ctx, oldActive, "", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "active reaction's status log must survive the sweep")
}
