package coordination

import "github.com/thoriumlabs/thorium/pkg/models"

// Key naming is a pure function of entity kind + identifiers + the
// deployment namespace (spec §4.3) — no ambient mutable state beyond the
// connection pool.

func (c *Client) systemSettingsKey() string { return c.key("system", "settings") }
func (c *Client) systemInfoKey() string      { return c.key("system", "info") }

func (c *Client) workerSetKey(cluster, node string, scaler models.ScalerKind) string {
	return c.key("workers", cluster, node, string(scaler))
}

func (c *Client) workerInfoKey(worker string) string {
	return c.key("worker", worker)
}

func (c *Client) networkPolicyGroupSetKey(group string) string {
	return c.key("netpol", "group", group)
}

func (c *Client) networkPolicyUsedByKey(group, policy string) string {
	return c.key("netpol", "usedby", group, policy)
}

func (c *Client) deadlineSetKey(scaler models.ScalerKind) string {
	return c.key("deadlines", string(scaler))
}

func (c *Client) banSetKey(scaler models.ScalerKind) string {
	return c.key("bans", string(scaler))
}

func (c *Client) fairShareHashKey(scaler models.ScalerKind) string {
	return c.key("fairshare", string(scaler))
}
