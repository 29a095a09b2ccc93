package metadata_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/internal/testpg"
	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

func TestNetworkPolicyRowLifecycle(t *testing.T) {
	c := testpg.NewTestClient(t)
	ctx := context.Background()

	np := &models.NetworkPolicy{
		ID:      uuid.New().String(),
		Name:    "default-deny",
		K8sName: "np-default-deny",
		Ingress: []models.Rule{{ID: "r1", AllowedGroups: []string{"team-a"}}},
		Egress:  []models.Rule{{ID: "r2", AllowedCIDRs: []string{"10.0.0.0/8"}}},
	}

	require.NoError(t, c.InsertNetworkPolicyRow(ctx, "team-a", np))
	require.NoError(t, c.InsertNetworkPolicyRow(ctx, "team-b", np))

	rows, err := c.GetNetworkPolicyRows(ctx, []string{"team-a", "team-b", "team-c"}, "default-deny")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, np.ID, r.ID)
		assert.Len(t, r.Ingress, 1)
		assert.Len(t, r.Egress, 1)
	}

	byID, err := c.GetNetworkPolicyByID(ctx, np.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"team-a", "team-b"}, byID.Groups)

	require.NoError(t, c.RenameNetworkPolicyRows(ctx, []string{"team-a", "team-b"}, "default-deny", "strict-deny"))
	rows, err = c.GetNetworkPolicyRows(ctx, []string{"team-a", "team-b"}, "strict-deny")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	require.NoError(t, c.DeleteNetworkPolicyRows(ctx, []string{"team-a", "team-b"}, "strict-deny"))
	rows, err = c.GetNetworkPolicyRows(ctx, []string{"team-a", "team-b"}, "strict-deny")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGetNetworkPolicyByIDNotFound(t *testing.T) {
	c := testpg.NewTestClient(t)
	ctx := context.Background()

	_, err := c.GetNetworkPolicyByID(ctx, uuid.New().String())
	require.Error(t, err)
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err))
}
