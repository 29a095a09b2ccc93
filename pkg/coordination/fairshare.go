package coordination

import (
	"context"
	"strconv"
	"time"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// BanRequisition bans a (user, group, pipeline, stage) tuple from a scaler
// for ttl, used after repeated placement failures (spec's ban-TTL knob).
func (c *Client) BanRequisition(ctx context.Context, scaler models.ScalerKind, req models.Requisition, ttl time.Duration) error {
	if err := c.rdb.SAdd(ctx, c.banSetKey(scaler), requisitionKey(req)).Err(); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "ban requisition")
	}
	if err := c.rdb.Expire(ctx, c.banSetKey(scaler), ttl).Err(); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "set ban ttl")
	}
	return nil
}

// IsBanned reports whether a requisition is currently banned on a scaler.
func (c *Client) IsBanned(ctx context.Context, scaler models.ScalerKind, req models.Requisition) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, c.banSetKey(scaler), requisitionKey(req)).Result()
	if err != nil {
		return false, wrapRedisErr(err, "check ban")
	}
	return ok, nil
}

// Unban clears a requisition's ban before its TTL, used when an operator
// intervenes directly.
func (c *Client) Unban(ctx context.Context, scaler models.ScalerKind, req models.Requisition) error {
	if err := c.rdb.SRem(ctx, c.banSetKey(scaler), requisitionKey(req)).Err(); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "unban requisition")
	}
	return nil
}

// IncrFairShareUsage adds delta to a requisition's decaying usage counter,
// the input to the scaler's fair-share ordering.
func (c *Client) IncrFairShareUsage(ctx context.Context, scaler models.ScalerKind, req models.Requisition, delta float64) (float64, error) {
	v, err := c.rdb.HIncrByFloat(ctx, c.fairShareHashKey(scaler), requisitionKey(req), delta).Result()
	if err != nil {
		return 0, wrapRedisErr(err, "increment fair share usage")
	}
	return v, nil
}

// GetFairShareUsage reads a requisition's current decaying usage counter.
func (c *Client) GetFairShareUsage(ctx context.Context, scaler models.ScalerKind, req models.Requisition) (float64, error) {
	v, err := c.rdb.HGet(ctx, c.fairShareHashKey(scaler), requisitionKey(req)).Float64()
	if err != nil {
		return 0, nil
	}
	return v, nil
}

// DecayFairShareUsage multiplies every tracked requisition's usage counter
// by factor (derived from the configured half-life), applied once per
// scaler tick.
func (c *Client) DecayFairShareUsage(ctx context.Context, scaler models.ScalerKind, factor float64) error {
	vals, err := c.rdb.HGetAll(ctx, c.fairShareHashKey(scaler)).Result()
	if err != nil {
		return wrapRedisErr(err, "read fair share usage for decay")
	}
	if len(vals) == 0 {
		return nil
	}
	pipe := c.rdb.TxPipeline()
	for k, v := range vals {
		cur, _ := strconv.ParseFloat(v, 64)
		pipe.HSet(ctx, c.fairShareHashKey(scaler), k, cur*factor)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "decay fair share usage")
	}
	return nil
}

func requisitionKey(r models.Requisition) string {
	return r.User + "/" + r.Group + "/" + r.Pipeline + "/" + strconv.Itoa(r.Stage)
}
