package models

// Rule is one ingress or egress rule within a NetworkPolicy.
type Rule struct {
	ID             string            `json:"id"`
	AllowedGroups  []string          `json:"allowed_groups,omitempty"`
	AllowedCIDRs   []string          `json:"allowed_cidrs,omitempty"`
	CIDRExceptions []string          `json:"cidr_exceptions,omitempty"`
	LabelSelector  map[string]string `json:"label_selector,omitempty"`
}

// NetworkPolicy governs the traffic a group of images may send/receive.
type NetworkPolicy struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	K8sName        string   `json:"k8s_name"`
	Ingress        []Rule   `json:"ingress,omitempty"`
	Egress         []Rule   `json:"egress,omitempty"`
	Groups         []string `json:"groups"`
	ForcedPolicy   bool     `json:"forced_policy"`
	DefaultPolicy  bool     `json:"default_policy"`
	DenyAllIngress bool     `json:"deny_all_ingress"`
	DenyAllEgress  bool     `json:"deny_all_egress"`

	// UsedBy is populated on read: per-group image names that reference
	// this policy. Not persisted directly — derived from the coordination
	// store's used-by sets.
	UsedBy map[string][]string `json:"used_by,omitempty"`
}

// VisibleProjection returns a copy of np restricted to the groups the
// caller may see (the Open Question resolution: hidden groups are absent
// from the projection but remain in storage for cache maintenance).
func (np *NetworkPolicy) VisibleProjection(visibleGroups map[string]struct{}) *NetworkPolicy {
	out := *np
	out.Groups = nil
	for _, g := range np.Groups {
		if _, ok := visibleGroups[g]; ok {
			out.Groups = append(out.Groups, g)
		}
	}
	if np.UsedBy != nil {
		out.UsedBy = make(map[string][]string, len(np.UsedBy))
		for g, images := range np.UsedBy {
			if _, ok := visibleGroups[g]; ok {
				out.UsedBy[g] = images
			}
		}
	}
	return &out
}
