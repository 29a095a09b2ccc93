// Package networkpolicy implements the C5 network-policy engine: CRUD over
// per-group policy rows in the metadata store, kept consistent with the
// coordination store's per-group name sets and used-by indexes. Every
// mutation also sets the "invalidate:networkpolicy" flag; no scaler in this
// repository reads that flag.
package networkpolicy

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/coordination"
	"github.com/thoriumlabs/thorium/pkg/metadata"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// cacheKind is the scaler-cache key this engine flips on every mutation;
// it is not a real scaler, but InvalidateScalerCache's key naming
// ("invalidate:<kind>") already matches the literal "invalidate:networkpolicy"
// flag spec §4.5 describes, so it is reused as-is.
const cacheKind models.ScalerKind = "networkpolicy"

// Engine wires the metadata store's policy rows to the coordination store's
// group membership sets and used-by indexes.
type Engine struct {
	meta  *metadata.Client
	coord *coordination.Client
}

// New builds an Engine over the given metadata and coordination clients.
func New(meta *metadata.Client, coord *coordination.Client) *Engine {
	return &Engine{meta: meta, coord: coord}
}

// CreateRequest carries the fields needed to create a policy, spec §4.5
// Create.
type CreateRequest struct {
	Name           string
	Groups         []string
	Ingress        []models.Rule
	Egress         []models.Rule
	ForcedPolicy   bool
	DefaultPolicy  bool
	DenyAllIngress bool
	DenyAllEgress  bool
}

// Create validates the request, allocates an id, writes one row per group,
// and flips the scaler cache-invalidation flag.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*models.NetworkPolicy, error) {
	if err := validateName(req.Name); err != nil {
		return nil, err
	}
	if len(req.Groups) == 0 {
		return nil, apierrors.NewInvalid("network policy requires at least one group")
	}
	if err := validateRules(req.Ingress); err != nil {
		return nil, err
	}
	if err := validateRules(req.Egress); err != nil {
		return nil, err
	}

	np := &models.NetworkPolicy{
		ID:             uuid.New().String(),
		Name:           req.Name,
		K8sName:        k8sName(req.Name),
		Ingress:        req.Ingress,
		Egress:         req.Egress,
		Groups:         append([]string(nil), req.Groups...),
		ForcedPolicy:   req.ForcedPolicy,
		DefaultPolicy:  req.DefaultPolicy,
		DenyAllIngress: req.DenyAllIngress,
		DenyAllEgress:  req.DenyAllEgress,
	}

	for _, g := range req.Groups {
		if err := e.meta.InsertNetworkPolicyRow(ctx, g, np); err != nil {
			return nil, err
		}
		if err := e.coord.AddPolicyToGroup(ctx, g, np.Name); err != nil {
			return nil, err
		}
	}
	if err := e.coord.InvalidateScalerCache(ctx, cacheKind); err != nil {
		return nil, err
	}
	return np, nil
}

// Get reads a policy across the caller's candidate groups. If more than one
// distinct policy id shares the name across those groups it fails with
// Conflict unless id disambiguates (spec §4.5 Get's AmbiguousName case).
func (e *Engine) Get(ctx context.Context, candidateGroups []string, name, id string) (*models.NetworkPolicy, error) {
	var np *models.NetworkPolicy
	if id != "" {
		found, err := e.meta.GetNetworkPolicyByID(ctx, id)
		if err != nil {
			return nil, err
		}
		np = found
	} else {
		rows, err := e.meta.GetNetworkPolicyRows(ctx, candidateGroups, name)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, apierrors.NewNotFound("network policy %s not found", name)
		}
		merged, err := mergeRows(rows)
		if err != nil {
			return nil, err
		}
		np = merged
	}

	np.UsedBy = make(map[string][]string, len(np.Groups))
	for _, g := range np.Groups {
		images, err := e.coord.UsedBy(ctx, g, np.Name)
		if err != nil {
			return nil, err
		}
		if len(images) > 0 {
			np.UsedBy[g] = images
		}
	}
	return np, nil
}

// Delete removes a policy from every group it currently belongs to, under
// one atomic coordination pipeline joined with the metadata row deletion
// (spec §4.5 Delete).
func (e *Engine) Delete(ctx context.Context, candidateGroups []string, name string) error {
	existing, err := e.coord.ListGroupsWithPolicy(ctx, candidateGroups, name)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return apierrors.NewNotFound("network policy %s not found", name)
	}
	if err := e.coord.DeletePolicyFromGroups(ctx, existing, name); err != nil {
		return err
	}
	return e.meta.DeleteNetworkPolicyRows(ctx, existing, name)
}

// SetImageUsedBy atomically records that image now references added
// policies and no longer references removed ones, the image-reference
// maintenance rule spec §4.5 names. Called by the image engine whenever an
// image's policy list changes.
func (e *Engine) SetImageUsedBy(ctx context.Context, group string, added, removed []string, image string) error {
	return e.coord.SetUsedBy(ctx, group, added, removed, image)
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apierrors.NewInvalid("network policy name must not be empty")
	}
	return nil
}

func validateRules(rules []models.Rule) error {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return apierrors.NewInvalid("network policy rule requires an id")
		}
		if _, dup := seen[r.ID]; dup {
			return apierrors.NewInvalid("duplicate rule id %s", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

// mergeRows collapses the per-group rows GetNetworkPolicyRows returns into
// one NetworkPolicy, failing if they disagree on id (an ambiguous name
// across the caller's candidate groups).
func mergeRows(rows []models.NetworkPolicy) (*models.NetworkPolicy, error) {
	merged := rows[0]
	merged.Groups = append([]string(nil), rows[0].Groups...)
	for _, r := range rows[1:] {
		if r.ID != merged.ID {
			return nil, apierrors.NewConflict("ambiguous network policy name %s: matches multiple ids across candidate groups", merged.Name)
		}
		merged.Groups = append(merged.Groups, r.Groups...)
	}
	return &merged, nil
}

// k8sName derives the label-safe Kubernetes object name for a policy. The
// backend driver (C9) composes this into pod network-policy labels.
func k8sName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return "np-" + b.String()
}
