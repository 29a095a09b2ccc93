package scaler

import (
	"sync"
	"time"

	"github.com/thoriumlabs/thorium/pkg/models"
)

// BanSets tracks groups, users, and per-group requisition stages banned
// from spawning since the last expiry, mirroring scaler.rs's BanSets. These
// are in-process and ephemeral (reset every ttl) — distinct from
// coordination.BanRequisition's persistent, cross-scaler ban set, which
// models a deliberate operator/engine ban rather than a transient setup
// failure noticed mid-tick.
type BanSets struct {
	ttl    time.Duration
	mu     sync.Mutex
	expire time.Time
	groups map[string]bool
	users  map[string]bool
	reqs   map[string]map[int]bool // group -> stage -> banned
}

// NewBanSets builds an empty, freshly-expiring BanSets.
func NewBanSets(ttl time.Duration) *BanSets {
	return &BanSets{
		ttl:    ttl,
		expire: time.Now().Add(ttl),
		groups: make(map[string]bool),
		users:  make(map[string]bool),
		reqs:   make(map[string]map[int]bool),
	}
}

// BanGroup bans an entire group from spawning until the next clear.
func (b *BanSets) BanGroup(group string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groups[group] = true
}

// BanUser bans a user from spawning until the next clear.
func (b *BanSets) BanUser(user string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[user] = true
}

// BanStage bans one (group, stage) requisition shape until the next clear.
func (b *BanSets) BanStage(group string, stage int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reqs[group] == nil {
		b.reqs[group] = make(map[int]bool)
	}
	b.reqs[group][stage] = true
}

// Allows filters a deadline entry against cache knowledge and the current
// ban sets, mirroring BanSets::filter_deadlines: unknown groups/users are
// filtered (not yet safe to schedule), then explicit bans are applied.
func (b *BanSets) Allows(cache *Cache, e models.DeadlineEntry) bool {
	if !cache.KnownGroup(e.Req.Group) {
		return false
	}
	if !cache.KnownUser(e.Creator) {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.groups[e.Req.Group] {
		return false
	}
	if b.users[e.Creator] {
		return false
	}
	if stages, ok := b.reqs[e.Req.Group]; ok && stages[e.Req.Stage] {
		return false
	}
	return true
}

// ExpireIfDue clears every ban once ttl has elapsed since the last clear,
// matching BanSets::is_expired + clear (a fixed-window reset rather than
// per-entry expiry, since the scaler re-derives ban reasons every tick).
func (b *BanSets) ExpireIfDue(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Before(b.expire) {
		return
	}
	b.clearLocked(now)
}

// Clear drops every ban immediately, used when a fresh cache has been
// loaded and prior setup failures may no longer apply.
func (b *BanSets) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked(time.Now())
}

func (b *BanSets) clearLocked(now time.Time) {
	b.expire = now.Add(b.ttl)
	b.groups = make(map[string]bool)
	b.users = make(map[string]bool)
	b.reqs = make(map[string]map[int]bool)
}
