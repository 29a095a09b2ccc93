package scaler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/pkg/models"
)

func newKnownCache() *Cache {
	c := NewCache(nil, nil, models.ScalerCluster, time.Hour)
	c.groups["g1"] = true
	c.users["alice"] = true
	return c
}

func TestBanSetsRejectsUnknownGroupOrUser(t *testing.T) {
	b := NewBanSets(time.Minute)
	c := newKnownCache()

	known := models.DeadlineEntry{Req: models.Requisition{Group: "g1"}, Creator: "alice"}
	assert.True(t, b.Allows(c, known))

	unknownGroup := models.DeadlineEntry{Req: models.Requisition{Group: "g2"}, Creator: "alice"}
	assert.False(t, b.Allows(c, unknownGroup))

	unknownUser := models.DeadlineEntry{Req: models.Requisition{Group: "g1"}, Creator: "bob"}
	assert.False(t, b.Allows(c, unknownUser))
}

func TestBanSetsExplicitBans(t *testing.T) {
	b := NewBanSets(time.Minute)
	c := newKnownCache()
	e := models.DeadlineEntry{Req: models.Requisition{Group: "g1", Stage: 2}, Creator: "alice"}
	require.True(t, b.Allows(c, e))

	b.BanUser("alice")
	assert.False(t, b.Allows(c, e))
	b.Clear()
	assert.True(t, b.Allows(c, e))

	b.BanGroup("g1")
	assert.False(t, b.Allows(c, e))
	b.Clear()

	b.BanStage("g1", 2)
	assert.False(t, b.Allows(c, e))
	other := models.DeadlineEntry{Req: models.Requisition{Group: "g1", Stage: 3}, Creator: "alice"}
	assert.True(t, b.Allows(c, other))
}

func TestBanSetsExpireIfDue(t *testing.T) {
	b := NewBanSets(time.Minute)
	c := newKnownCache()
	e := models.DeadlineEntry{Req: models.Requisition{Group: "g1"}, Creator: "alice"}
	b.BanUser("alice")
	require.False(t, b.Allows(c, e))

	b.ExpireIfDue(time.Now())
	assert.False(t, b.Allows(c, e), "ban should survive before ttl elapses")

	b.ExpireIfDue(time.Now().Add(2 * time.Minute))
	assert.True(t, b.Allows(c, e), "ban should clear once ttl elapses")
}
