package api_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/internal/testpg"
	"github.com/thoriumlabs/thorium/pkg/api"
	"github.com/thoriumlabs/thorium/pkg/config"
	"github.com/thoriumlabs/thorium/pkg/coordination"
	"github.com/thoriumlabs/thorium/pkg/metadata"
	"github.com/thoriumlabs/thorium/pkg/networkpolicy"
	"github.com/thoriumlabs/thorium/pkg/objectstore"
	"github.com/thoriumlabs/thorium/pkg/reaction"
)

// newTestServer wires a Server over fresh in-memory/disposable-container
// backends, the same composition newTestEngine uses in pkg/reaction and
// pkg/networkpolicy's own tests.
func newTestServer(t *testing.T) (*api.Server, *metadata.Client) {
	t.Helper()
	meta := testpg.NewTestClient(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	coord := coordination.NewClientFromRedis(rdb, "thorium-test")

	objects := objectstore.NewInMemory("test-password")

	reactions := reaction.New(meta, coord, objects)
	policies := networkpolicy.New(meta, coord)

	s := api.NewServer(&config.Config{}, meta, coord, objects, reactions, policies)
	return s, meta
}
