package networkpolicy_test

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
	"github.com/thoriumlabs/thorium/pkg/models"
	"github.com/thoriumlabs/thorium/pkg/networkpolicy"
)

func newTestEngine(t *testing.T) *networkpolicy.Engine {
	meta := testpg.NewTestClient(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	coord := coordination.NewClientFromRedis(rdb, "thorium-test")

	return networkpolicy.New(meta, coord)
}

func TestCreateAndGet(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	np, err := e.Create(ctx, networkpolicy.CreateRequest{
		Name:   "deny-egress",
		Groups: []string{"team-a", "team-b"},
		Egress: []models.Rule{{ID: "r1", AllowedCIDRs: []string{"10.0.0.0/8"}}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, np.ID)

	got, err := e.Get(ctx, []string{"team-a", "team-b"}, "deny-egress", "")
	require.NoError(t, err)
	assert.Equal(t, np.ID, got.ID)
	assert.ElementsMatch(t, []string{"team-a", "team-b"}, got.Groups)
}

func TestCreateRequiresGroups(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Create(context.Background(), networkpolicy.CreateRequest{Name: "x"})
	require.Error(t, err)
	assert.Equal(t, apierrors.KindInvalid, apierrors.KindOf(err))
}

func TestUpdateRenameAndGroups(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	np, err := e.Create(ctx, networkpolicy.CreateRequest{
		Name:   "rename-me",
		Groups: []string{"team-a"},
	})
	require.NoError(t, err)

	newName := "renamed"
	updated, err := e.Update(ctx, []string{"team-a", "team-b"}, "rename-me", "", networkpolicy.UpdateRequest{
		AddGroups: []string{"team-b"},
		Rename:    &newName,
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.ElementsMatch(t, []string{"team-a", "team-b"}, updated.Groups)

	// old name should no longer resolve.
	_, err = e.Get(ctx, []string{"team-a"}, "rename-me", "")
	require.Error(t, err)
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err))

	_, err = e.Get(ctx, []string{"team-a"}, "renamed", np.ID)
	require.NoError(t, err)
}

func TestUpdateForbidsRemovingAllGroups(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, networkpolicy.CreateRequest{Name: "solo", Groups: []string{"team-a"}})
	require.NoError(t, err)

	_, err = e.Update(ctx, []string{"team-a"}, "solo", "", networkpolicy.UpdateRequest{
		RemoveGroups: []string{"team-a"},
	})
	require.Error(t, err)
	assert.Equal(t, apierrors.KindInvalid, apierrors.KindOf(err))
}

func TestUpdateForbidsClearIngressWithDenyAll(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, networkpolicy.CreateRequest{
		Name:    "ingress-policy",
		Groups:  []string{"team-a"},
		Ingress: []models.Rule{{ID: "r1", AllowedGroups: []string{"team-a"}}},
	})
	require.NoError(t, err)

	deny := true
	_, err = e.Update(ctx, []string{"team-a"}, "ingress-policy", "", networkpolicy.UpdateRequest{
		Ingress:        networkpolicy.RuleOps{Clear: true},
		DenyAllIngress: &deny,
	})
	require.Error(t, err)
	assert.Equal(t, apierrors.KindInvalid, apierrors.KindOf(err))
}

func TestDeleteRemovesFromAllGroups(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, networkpolicy.CreateRequest{Name: "gone", Groups: []string{"team-a", "team-b"}})
	require.NoError(t, err)

	require.NoError(t, e.Delete(ctx, []string{"team-a", "team-b"}, "gone"))

	_, err = e.Get(ctx, []string{"team-a", "team-b"}, "gone", "")
	require.Error(t, err)
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err))
}

func TestSetImageUsedByReflectsInGet(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, networkpolicy.CreateRequest{Name: "used", Groups: []string{"team-a"}})
	require.NoError(t, err)

	require.NoError(t, e.SetImageUsedBy(ctx, "team-a", []string{"used"}, nil, "scan-image"))

	got, err := e.Get(ctx, []string{"team-a"}, "used", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"scan-image"}, got.UsedBy["team-a"])
}
