package metadata

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor pages through a result set of T, returning the next page and an
// opaque continuation token (empty when exhausted).
type Cursor[T any] interface {
	Next(limit int) (items []T, next string, err error)
}

// simpleCursorState is the continuation token shape for a single logical
// partition: the last-seen ordering key.
type simpleCursorState struct {
	After string `json:"after"`
}

// SimpleCursor pages a single logical partition by native ordering state —
// the family's own "after" key (a timestamp or id, opaque to callers).
type SimpleCursor[T any] struct {
	fetch func(after string, limit int) (items []T, last string, hasMore bool, err error)
	after string
}

// NewSimpleCursor resumes from an opaque token previously returned by Next,
// or starts from the beginning when token is empty.
func NewSimpleCursor[T any](token string, fetch func(after string, limit int) ([]T, string, bool, error)) (*SimpleCursor[T], error) {
	after := ""
	if token != "" {
		var st simpleCursorState
		if err := decodeCursorToken(token, &st); err != nil {
			return nil, err
		}
		after = st.After
	}
	return &SimpleCursor[T]{fetch: fetch, after: after}, nil
}

// Next returns up to limit items and the token to resume from.
func (c *SimpleCursor[T]) Next(limit int) ([]T, string, error) {
	items, last, hasMore, err := c.fetch(c.after, limit)
	if err != nil {
		return nil, "", err
	}
	if !hasMore {
		return items, "", nil
	}
	token, err := encodeCursorToken(simpleCursorState{After: last})
	if err != nil {
		return nil, "", err
	}
	c.after = last
	return items, token, nil
}

// groupedCursorState tracks a per-group continuation token plus the
// round-robin position, keyed by a stable id so paused HTTP clients can
// resume without re-deriving the group ordering.
type groupedCursorState struct {
	ID      string            `json:"id"`
	Afters  map[string]string `json:"afters"`
	GroupAt int               `json:"group_at"`
}

// GroupedCursor partitions by group, maintaining a per-group continuation
// token and a stable external id.
type GroupedCursor[T any] struct {
	groups  []string
	afters  map[string]string
	groupAt int
	id      string
	fetch   func(group, after string, limit int) (items []T, last string, hasMore bool, err error)
}

// NewGroupedCursor resumes from an opaque token, or starts a fresh cursor
// with a newly allocated id when token is empty.
func NewGroupedCursor[T any](token string, groups []string, newID func() string, fetch func(group, after string, limit int) ([]T, string, bool, error)) (*GroupedCursor[T], error) {
	gc := &GroupedCursor[T]{groups: groups, afters: make(map[string]string), fetch: fetch}
	if token == "" {
		gc.id = newID()
		return gc, nil
	}
	var st groupedCursorState
	if err := decodeCursorToken(token, &st); err != nil {
		return nil, err
	}
	gc.id = st.ID
	gc.afters = st.Afters
	gc.groupAt = st.GroupAt
	return gc, nil
}

// ID returns the stable external identifier HTTP clients use to resume.
func (c *GroupedCursor[T]) ID() string { return c.id }

// Next round-robins across groups, returning up to limit items merged from
// whichever groups still have data, and the token to resume from.
func (c *GroupedCursor[T]) Next(limit int) ([]T, string, error) {
	items := make([]T, 0, limit)
	exhausted := make(map[string]bool)

	for len(items) < limit && len(exhausted) < len(c.groups) {
		group := c.groups[c.groupAt%len(c.groups)]
		c.groupAt++

		if exhausted[group] {
			continue
		}

		want := limit - len(items)
		page, last, hasMore, err := c.fetch(group, c.afters[group], want)
		if err != nil {
			return nil, "", err
		}
		items = append(items, page...)
		if hasMore {
			c.afters[group] = last
		} else {
			exhausted[group] = true
			delete(c.afters, group)
		}
	}

	if len(exhausted) == len(c.groups) {
		return items, "", nil
	}

	token, err := encodeCursorToken(groupedCursorState{ID: c.id, Afters: c.afters, GroupAt: c.groupAt})
	if err != nil {
		return nil, "", err
	}
	return items, token, nil
}

func encodeCursorToken(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeCursorToken(token string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("invalid cursor token: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid cursor token: %w", err)
	}
	return nil
}
