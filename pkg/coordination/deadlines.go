package coordination

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// PushDeadline adds one pending-placement entry to its scaler's sorted set,
// scored by SLA so ConsumeDeadlines drains oldest-SLA-first.
func (c *Client) PushDeadline(ctx context.Context, e models.DeadlineEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInvalid, err, "marshal deadline entry")
	}
	err = c.rdb.ZAdd(ctx, c.deadlineSetKey(e.Scaler), redis.Z{
		Score:  float64(e.SLA.Unix()),
		Member: raw,
	}).Err()
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "push deadline for scaler %s", e.Scaler)
	}
	return nil
}

// ConsumeDeadlines pops up to limit entries with score <= maxScore from a
// scaler's deadline set, oldest SLA first. The read (ZRANGEBYSCORE) and the
// removal (ZREM) are two separate commands, not one atomic pipeline.
func (c *Client) ConsumeDeadlines(ctx context.Context, scaler models.ScalerKind, maxScore float64, limit int64) ([]models.DeadlineEntry, error) {
	key := c.deadlineSetKey(scaler)

	raw, err := c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(maxScore, 'f', -1, 64),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, wrapRedisErr(err, "range deadlines for scaler %s", scaler)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	members := make([]any, len(raw))
	for i, r := range raw {
		members[i] = r
	}
	if err := c.rdb.ZRem(ctx, key, members...).Err(); err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "remove consumed deadlines for scaler %s", scaler)
	}

	entries := make([]models.DeadlineEntry, 0, len(raw))
	for _, r := range raw {
		var e models.DeadlineEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal deadline entry")
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// RemoveDeadline removes a single pending entry by job id from a scaler's
// deadline set, used when a reaction fails before its job was placed
// (spec §4.6.4: "removes it from active deadline sets").
func (c *Client) RemoveDeadline(ctx context.Context, scaler models.ScalerKind, jobID string) error {
	key := c.deadlineSetKey(scaler)
	raw, err := c.rdb.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return wrapRedisErr(err, "scan deadlines for scaler %s", scaler)
	}
	for _, r := range raw {
		var e models.DeadlineEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		if e.JobID == jobID {
			if err := c.rdb.ZRem(ctx, key, r).Err(); err != nil {
				return apierrors.Wrap(apierrors.KindInternal, err, "remove deadline %s for scaler %s", jobID, scaler)
			}
			return nil
		}
	}
	return nil
}

// DeadlineQueueLength reports the number of entries pending for a scaler.
func (c *Client) DeadlineQueueLength(ctx context.Context, scaler models.ScalerKind) (int64, error) {
	n, err := c.rdb.ZCard(ctx, c.deadlineSetKey(scaler)).Result()
	if err != nil {
		return 0, wrapRedisErr(err, "count deadlines for scaler %s", scaler)
	}
	return n, nil
}
