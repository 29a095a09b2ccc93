package metadata

import (
	"context"
	"encoding/json"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// InsertNetworkPolicyRow writes one group's row for a network policy. The
// engine calls this once per group per §4.5 Create.
func (c *Client) InsertNetworkPolicyRow(ctx context.Context, group string, np *models.NetworkPolicy) error {
	ingress, err := json.Marshal(np.Ingress)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInvalid, err, "marshal ingress rules")
	}
	egress, err := json.Marshal(np.Egress)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInvalid, err, "marshal egress rules")
	}
	_, err = c.Pool.Exec(ctx, `
		INSERT INTO network_policies (id, "group", name, k8s_name, ingress, egress, forced_policy, default_policy, deny_all_ingress, deny_all_egress)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT ("group", name) DO UPDATE SET
			id = EXCLUDED.id, k8s_name = EXCLUDED.k8s_name, ingress = EXCLUDED.ingress, egress = EXCLUDED.egress,
			forced_policy = EXCLUDED.forced_policy, default_policy = EXCLUDED.default_policy,
			deny_all_ingress = EXCLUDED.deny_all_ingress, deny_all_egress = EXCLUDED.deny_all_egress
	`, np.ID, group, np.Name, np.K8sName, ingress, egress, np.ForcedPolicy, np.DefaultPolicy, np.DenyAllIngress, np.DenyAllEgress)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "insert network policy row")
	}
	return nil
}

// GetNetworkPolicyRows reads a policy's row across every candidate group —
// §4.5 Get scans the groups the caller supplied, so this returns all rows
// sharing a name across those groups for the ambiguous-name check.
func (c *Client) GetNetworkPolicyRows(ctx context.Context, groups []string, name string) ([]models.NetworkPolicy, error) {
	rows, err := c.Pool.Query(ctx, `
		SELECT id, "group", k8s_name, ingress, egress, forced_policy, default_policy, deny_all_ingress, deny_all_egress
		FROM network_policies WHERE "group" = ANY($1) AND name = $2
	`, groups, name)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "get network policy rows")
	}
	defer rows.Close()

	var out []models.NetworkPolicy
	for rows.Next() {
		np := models.NetworkPolicy{Name: name}
		var group string
		var ingress, egress []byte
		if err := rows.Scan(&np.ID, &group, &np.K8sName, &ingress, &egress, &np.ForcedPolicy, &np.DefaultPolicy, &np.DenyAllIngress, &np.DenyAllEgress); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "scan network policy row")
		}
		if err := json.Unmarshal(ingress, &np.Ingress); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal ingress rules")
		}
		if err := json.Unmarshal(egress, &np.Egress); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal egress rules")
		}
		np.Groups = append(np.Groups, group)
		out = append(out, np)
	}
	return out, rows.Err()
}

// GetNetworkPolicyByID reads every group-row for a known policy id,
// collapsing them into one NetworkPolicy with the full group list.
func (c *Client) GetNetworkPolicyByID(ctx context.Context, id string) (*models.NetworkPolicy, error) {
	rows, err := c.Pool.Query(ctx, `
		SELECT "group", name, k8s_name, ingress, egress, forced_policy, default_policy, deny_all_ingress, deny_all_egress
		FROM network_policies WHERE id = $1
	`, id)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "get network policy by id")
	}
	defer rows.Close()

	var np *models.NetworkPolicy
	for rows.Next() {
		var group string
		var ingress, egress []byte
		cur := models.NetworkPolicy{ID: id}
		if err := rows.Scan(&group, &cur.Name, &cur.K8sName, &ingress, &egress, &cur.ForcedPolicy, &cur.DefaultPolicy, &cur.DenyAllIngress, &cur.DenyAllEgress); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "scan network policy row")
		}
		if np == nil {
			if err := json.Unmarshal(ingress, &cur.Ingress); err != nil {
				return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal ingress rules")
			}
			if err := json.Unmarshal(egress, &cur.Egress); err != nil {
				return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal egress rules")
			}
			np = &cur
		}
		np.Groups = append(np.Groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "iterate network policy rows")
	}
	if np == nil {
		return nil, apierrors.NewNotFound("network policy %s not found", id)
	}
	return np, nil
}

// DeleteNetworkPolicyRows removes a policy's rows from every listed group.
func (c *Client) DeleteNetworkPolicyRows(ctx context.Context, groups []string, name string) error {
	_, err := c.Pool.Exec(ctx, `DELETE FROM network_policies WHERE "group" = ANY($1) AND name = $2`, groups, name)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "delete network policy rows")
	}
	return nil
}

// RenameNetworkPolicyRows moves a policy's rows from oldName to newName for
// the given groups, part of §4.5 Update's atomic rename.
func (c *Client) RenameNetworkPolicyRows(ctx context.Context, groups []string, oldName, newName string) error {
	_, err := c.Pool.Exec(ctx, `UPDATE network_policies SET name = $1 WHERE "group" = ANY($2) AND name = $3`, newName, groups, oldName)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "rename network policy rows")
	}
	return nil
}
