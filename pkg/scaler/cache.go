// Package scaler implements the C8 scaler: the control loop that drains a
// deadline stream (C7), decides placements against cached metadata and
// live cluster resources, and invokes a backend driver (C9) to spawn,
// delete, and reap workers. Grounded on
// original_source/scaler/src/libs/scaler.rs's Scaler/Cache/BanSets/
// Allocatable shapes, adapted from its task-queue-of-futures design to a
// single ticker goroutine in the style of pkg/queue/{pool,worker,orphan}.go.
package scaler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thoriumlabs/thorium/pkg/coordination"
	"github.com/thoriumlabs/thorium/pkg/metadata"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// Cache is the scaler's read-through view of metadata and coordination
// state, refreshed on a timer (or early, on a cache-invalidation flag) so
// every tick doesn't hit postgres per placement decision. Mirrors
// scaler.rs's Cache (cache.groups/cache.users/cache.docker), adapted: since
// SPEC_FULL.md's metadata schema has no Group/User entity to list, groups
// and users are learned organically from the requisitions the scaler
// actually processes (see DESIGN.md Open Question) rather than crawled from
// an LDAP-style directory the way scaler.rs's Cache::refresh does.
type Cache struct {
	meta  *metadata.Client
	coord *coordination.Client
	kind  models.ScalerKind
	ttl   time.Duration

	mu          sync.RWMutex
	settings    models.SystemSettings
	images      map[string]map[string]models.Image // group -> image name -> image
	groups      map[string]bool
	users       map[string]bool
	refreshedAt time.Time
}

// NewCache builds a Cache for one scaler kind.
func NewCache(meta *metadata.Client, coord *coordination.Client, kind models.ScalerKind, ttl time.Duration) *Cache {
	return &Cache{
		meta:   meta,
		coord:  coord,
		kind:   kind,
		ttl:    ttl,
		images: make(map[string]map[string]models.Image),
		groups: make(map[string]bool),
		users:  make(map[string]bool),
	}
}

// Settings returns the last-refreshed system settings.
func (c *Cache) Settings() models.SystemSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Image looks up a cached image definition, refreshing that group's image
// set first if it has never been loaded.
func (c *Cache) Image(ctx context.Context, group, name string) (models.Image, bool, error) {
	c.mu.RLock()
	byName, loaded := c.images[group]
	c.mu.RUnlock()
	if !loaded {
		if err := c.loadGroup(ctx, group); err != nil {
			return models.Image{}, false, err
		}
		c.mu.RLock()
		byName = c.images[group]
		c.mu.RUnlock()
	}
	img, ok := byName[name]
	return img, ok, nil
}

// Learn records that a requisition's group and user are active, loading the
// group's images on first sight. This is how the cache discovers the set of
// groups/users it needs to track (spec §9 Open Question: no Group/User
// metadata entity exists to enumerate up front).
func (c *Cache) Learn(ctx context.Context, group, user string) error {
	c.mu.RLock()
	known := c.groups[group]
	c.mu.RUnlock()
	if known {
		c.mu.Lock()
		c.users[user] = true
		c.mu.Unlock()
		return nil
	}
	if err := c.loadGroup(ctx, group); err != nil {
		return err
	}
	c.mu.Lock()
	c.groups[group] = true
	c.users[user] = true
	c.mu.Unlock()
	return nil
}

// KnownGroup reports whether group has been learned, the filter
// BanSets.filter_deadlines applies via cache.groups.contains(&deadline.group).
func (c *Cache) KnownGroup(group string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.groups[group]
}

// KnownUser reports whether user has been learned.
func (c *Cache) KnownUser(user string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.users[user]
}

func (c *Cache) loadGroup(ctx context.Context, group string) error {
	images, err := c.meta.ListImages(ctx, group)
	if err != nil {
		return err
	}
	byName := make(map[string]models.Image, len(images))
	for _, img := range images {
		if img.ScalerKind == c.kind {
			byName[img.Name] = img
		}
	}
	c.mu.Lock()
	c.images[group] = byName
	c.mu.Unlock()
	return nil
}

// Stale reports whether ttl has elapsed since the last full refresh.
func (c *Cache) Stale(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return now.Sub(c.refreshedAt) >= c.ttl
}

// Refresh reloads system settings and every already-known group's images
// (spec §4.8 step 1 / scaler.rs's Cache::refresh), called on a timer or
// early when ConsumeCacheInvalidation reports a pending flag.
func (c *Cache) Refresh(ctx context.Context) error {
	settings, err := c.coord.GetSystemSettings(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.settings = settings
	groups := make([]string, 0, len(c.groups))
	for g := range c.groups {
		groups = append(groups, g)
	}
	c.mu.Unlock()

	for _, g := range groups {
		if err := c.loadGroup(ctx, g); err != nil {
			slog.Error("failed to refresh cached group", "group", g, "error", err)
		}
	}

	c.mu.Lock()
	c.refreshedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// MaybeRefresh refreshes the cache if it's stale or another component has
// flagged this scaler kind's cache as invalidated (consumed via
// ConsumeCacheInvalidation). The network-policy engine's
// "invalidate:networkpolicy" flag is a different key and does not trigger
// a refresh here.
func (c *Cache) MaybeRefresh(ctx context.Context, now time.Time) error {
	invalidated, err := c.coord.ConsumeCacheInvalidation(ctx, c.kind)
	if err != nil {
		return err
	}
	if invalidated || c.Stale(now) {
		return c.Refresh(ctx)
	}
	return nil
}
