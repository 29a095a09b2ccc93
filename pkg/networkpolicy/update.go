package networkpolicy

import (
	"context"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// RuleOps describes the mutations to apply to one rule direction
// (ingress or egress) within an Update. Clear takes precedence over
// RemoveIDs (there is nothing left to remove from), then Add appends.
type RuleOps struct {
	Add       []models.Rule
	RemoveIDs []string
	Clear     bool
}

// UpdateRequest carries the add-group / remove-group / add-rule /
// remove-rule-by-id / rename / set-deny-all / clear-all-rules operations
// spec §4.5 Update supports. Rename is a pointer so "no rename requested"
// (nil) is distinguishable from "rename to empty string" (rejected).
type UpdateRequest struct {
	AddGroups      []string
	RemoveGroups   []string
	Ingress        RuleOps
	Egress         RuleOps
	Rename         *string
	DenyAllIngress *bool
	DenyAllEgress  *bool
}

// Update applies req to the policy identified by (candidateGroups, name,
// id): it renames the policy in its groups' name sets, adds and removes
// group membership, sets the network-policy cache flag, then rewrites the
// metadata rows. Each step is a separate store call rather than one atomic
// pipeline, so an error partway leaves the earlier steps applied.
func (e *Engine) Update(ctx context.Context, candidateGroups []string, name, id string, req UpdateRequest) (*models.NetworkPolicy, error) {
	np, err := e.Get(ctx, candidateGroups, name, id)
	if err != nil {
		return nil, err
	}

	probeGroups := uniq(append(append([]string(nil), np.Groups...), append(req.AddGroups, req.RemoveGroups...)...))
	existingGroups, err := e.coord.ListGroupsWithPolicy(ctx, probeGroups, np.Name)
	if err != nil {
		return nil, err
	}

	if err := validateUpdate(existingGroups, req); err != nil {
		return nil, err
	}
	if !req.Ingress.Clear {
		if err := validateRuleRemoval(np.Ingress, req.Ingress.RemoveIDs); err != nil {
			return nil, err
		}
	}
	if !req.Egress.Clear {
		if err := validateRuleRemoval(np.Egress, req.Egress.RemoveIDs); err != nil {
			return nil, err
		}
	}

	remaining := subtract(existingGroups, req.RemoveGroups)
	finalGroups := uniq(append(remaining, req.AddGroups...))

	newName := np.Name
	if req.Rename != nil {
		newName = *req.Rename
	}

	updated := *np
	updated.Name = newName
	updated.K8sName = k8sName(newName)
	updated.Groups = finalGroups
	updated.Ingress = applyRuleOps(np.Ingress, req.Ingress)
	updated.Egress = applyRuleOps(np.Egress, req.Egress)
	if req.DenyAllIngress != nil {
		updated.DenyAllIngress = *req.DenyAllIngress
	}
	if req.DenyAllEgress != nil {
		updated.DenyAllEgress = *req.DenyAllEgress
	}

	if newName != np.Name {
		if err := e.coord.RenamePolicyInGroups(ctx, existingGroups, np.Name, newName); err != nil {
			return nil, err
		}
	}
	for _, g := range req.AddGroups {
		if err := e.coord.AddPolicyToGroup(ctx, g, newName); err != nil {
			return nil, err
		}
	}
	if len(req.RemoveGroups) > 0 {
		if err := e.coord.DeletePolicyFromGroups(ctx, req.RemoveGroups, newName); err != nil {
			return nil, err
		}
	}
	if err := e.coord.InvalidateScalerCache(ctx, cacheKind); err != nil {
		return nil, err
	}

	if err := e.meta.DeleteNetworkPolicyRows(ctx, existingGroups, np.Name); err != nil {
		return nil, err
	}
	for _, g := range finalGroups {
		if err := e.meta.InsertNetworkPolicyRow(ctx, g, &updated); err != nil {
			return nil, err
		}
	}

	return e.Get(ctx, finalGroups, newName, updated.ID)
}

// validateUpdate checks the forbidden combinations spec §4.5 Update names
// up front, before any store mutation.
func validateUpdate(existingGroups []string, req UpdateRequest) error {
	if req.Rename != nil && *req.Rename == "" {
		return apierrors.NewInvalid("cannot rename network policy to an empty name")
	}
	for _, g := range req.AddGroups {
		if contains(existingGroups, g) {
			return apierrors.NewInvalid("network policy already applies to group %s", g)
		}
	}
	for _, g := range req.RemoveGroups {
		if !contains(existingGroups, g) {
			return apierrors.NewInvalid("network policy does not apply to group %s", g)
		}
	}
	remaining := subtract(existingGroups, req.RemoveGroups)
	if len(uniq(append(remaining, req.AddGroups...))) == 0 {
		return apierrors.NewInvalid("cannot remove all groups from a network policy")
	}
	if req.Ingress.Clear && req.DenyAllIngress != nil && *req.DenyAllIngress {
		return apierrors.NewInvalid("cannot combine clear-ingress with deny-all-ingress")
	}
	if req.Egress.Clear && req.DenyAllEgress != nil && *req.DenyAllEgress {
		return apierrors.NewInvalid("cannot combine clear-egress with deny-all-egress")
	}
	return nil
}

// validateRuleRemoval confirms every id req asks to remove exists in rules,
// called per-direction from the engine's Update before applyRuleOps mutates
// anything irreversibly in the caller's view.
func validateRuleRemoval(rules []models.Rule, removeIDs []string) error {
	have := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		have[r.ID] = struct{}{}
	}
	for _, id := range removeIDs {
		if _, ok := have[id]; !ok {
			return apierrors.NewInvalid("no rule with id %s", id)
		}
	}
	return nil
}

func applyRuleOps(current []models.Rule, ops RuleOps) []models.Rule {
	if ops.Clear {
		current = nil
	} else if len(ops.RemoveIDs) > 0 {
		var kept []models.Rule
		for _, r := range current {
			if !contains(ops.RemoveIDs, r.ID) {
				kept = append(kept, r)
			}
		}
		current = kept
	}
	return append(current, ops.Add...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func subtract(list, remove []string) []string {
	var out []string
	for _, v := range list {
		if !contains(remove, v) {
			out = append(out, v)
		}
	}
	return out
}

func uniq(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	var out []string
	for _, v := range list {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
