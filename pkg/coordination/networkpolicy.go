package coordination

import (
	"context"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
)

// AddPolicyToGroup adds a policy name to a group's network-policy name set.
func (c *Client) AddPolicyToGroup(ctx context.Context, group, name string) error {
	if err := c.rdb.SAdd(ctx, c.networkPolicyGroupSetKey(group), name).Err(); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "add policy %s to group %s", name, group)
	}
	return nil
}

// RemovePolicyFromGroup removes a policy name from a group's set.
func (c *Client) RemovePolicyFromGroup(ctx context.Context, group, name string) error {
	if err := c.rdb.SRem(ctx, c.networkPolicyGroupSetKey(group), name).Err(); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "remove policy %s from group %s", name, group)
	}
	return nil
}

// GroupHasPolicy reports whether a policy name exists in a group's set —
// the ismember probe §4.5 Update uses to find a policy's current groups.
func (c *Client) GroupHasPolicy(ctx context.Context, group, name string) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, c.networkPolicyGroupSetKey(group), name).Result()
	if err != nil {
		return false, wrapRedisErr(err, "check policy %s membership in group %s", name, group)
	}
	return ok, nil
}

// ListGroupsWithPolicy scans candidate groups and returns those that
// currently contain the named policy, the probe step in §4.5 Update.
func (c *Client) ListGroupsWithPolicy(ctx context.Context, candidates []string, name string) ([]string, error) {
	var groups []string
	for _, g := range candidates {
		ok, err := c.GroupHasPolicy(ctx, g, name)
		if err != nil {
			return nil, err
		}
		if ok {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

// RenamePolicyInGroups atomically swaps a policy's name across every group
// it currently belongs to, renaming the used-by key alongside it if present.
func (c *Client) RenamePolicyInGroups(ctx context.Context, groups []string, oldName, newName string) error {
	pipe := c.rdb.TxPipeline()
	for _, g := range groups {
		pipe.SRem(ctx, c.networkPolicyGroupSetKey(g), oldName)
		pipe.SAdd(ctx, c.networkPolicyGroupSetKey(g), newName)
		pipe.RenameNX(ctx, c.networkPolicyUsedByKey(g, oldName), c.networkPolicyUsedByKey(g, newName))
	}
	pipe.HSet(ctx, c.systemInfoKey(), "invalidate:networkpolicy", "1")
	if _, err := pipe.Exec(ctx); err != nil && !isRenameNoSuchKeyErr(err) {
		return apierrors.Wrap(apierrors.KindInternal, err, "rename policy %s to %s", oldName, newName)
	}
	return nil
}

// DeletePolicyFromGroups removes a policy's name and used-by key from every
// listed group, part of §4.5 Delete's atomic pipeline.
func (c *Client) DeletePolicyFromGroups(ctx context.Context, groups []string, name string) error {
	pipe := c.rdb.TxPipeline()
	for _, g := range groups {
		pipe.SRem(ctx, c.networkPolicyGroupSetKey(g), name)
		pipe.Del(ctx, c.networkPolicyUsedByKey(g, name))
	}
	pipe.HSet(ctx, c.systemInfoKey(), "invalidate:networkpolicy", "1")
	if _, err := pipe.Exec(ctx); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "delete policy %s", name)
	}
	return nil
}

// SetUsedBy atomically adds image to each added policy's used-by set and
// removes it from each removed policy's, per §4.5's image reference
// maintenance rule.
func (c *Client) SetUsedBy(ctx context.Context, group string, added, removed []string, image string) error {
	pipe := c.rdb.TxPipeline()
	for _, name := range added {
		pipe.SAdd(ctx, c.networkPolicyUsedByKey(group, name), image)
	}
	for _, name := range removed {
		pipe.SRem(ctx, c.networkPolicyUsedByKey(group, name), image)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "set used-by for image %s", image)
	}
	return nil
}

// UsedBy returns the image names currently referencing a (group, policy).
func (c *Client) UsedBy(ctx context.Context, group, name string) ([]string, error) {
	images, err := c.rdb.SMembers(ctx, c.networkPolicyUsedByKey(group, name)).Result()
	if err != nil {
		return nil, wrapRedisErr(err, "get used-by for policy %s", name)
	}
	return images, nil
}

// isRenameNoSuchKeyErr reports whether err is redis's "no such key" error,
// which RenameNX surfaces when a used-by key never existed — benign here
// since not every policy has accumulated image references yet.
func isRenameNoSuchKeyErr(err error) bool {
	return err != nil && (err.Error() == "ERR no such key" || containsNoSuchKey(err.Error()))
}

func containsNoSuchKey(s string) bool {
	const needle = "no such key"
	for i := 0; i+len(needle) <= len(s); i++ {
		if s[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
