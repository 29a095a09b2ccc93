package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

func TestStubDriverReportsUnavailableEverywhere(t *testing.T) {
	d := &StubDriver{Kind: "bare_metal"}
	ctx := context.Background()

	require.ErrorIs(t, d.Setup(ctx, "c1"), apierrors.Unavailable)

	_, err := d.ResourcesAvailable(ctx, "c1", models.SystemSettings{})
	require.ErrorIs(t, err, apierrors.Unavailable)

	errs := d.Spawn(ctx, "c1", []Spawn{{Name: "w1"}, {Name: "w2"}})
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs["w1"], apierrors.Unavailable)

	results := d.Delete(ctx, "c1", []Delete{{Name: "w1"}})
	require.Len(t, results, 1)
	assert.False(t, results[0].Deleted)
	assert.ErrorIs(t, results[0].Err, apierrors.Unavailable)

	_, err = d.ClearTerminal(ctx, "c1", nil)
	require.ErrorIs(t, err, apierrors.Unavailable)
}
