package metadata

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// AppendReactionLog appends one append-only execution-log chunk for a
// reaction's stage, the storage behind §6's POST /api/reactions/logs
// endpoint (worker stdout/stderr, distinct from the status log).
func (c *Client) AppendReactionLog(ctx context.Context, reactionID string, stage int, chunk string) error {
	_, err := c.Pool.Exec(ctx, `
		INSERT INTO reaction_logs (reaction_id, stage, chunk)
		VALUES ($1, $2, $3)
	`, reactionID, stage, chunk)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "append reaction log")
	}
	return nil
}

// ListReactionLogs pages a reaction's execution-log chunks oldest-first via
// a SimpleCursor over the log's monotonic sequence number, optionally
// restricted to one stage (stage < 0 means every stage).
func (c *Client) ListReactionLogs(ctx context.Context, reactionID string, stage int, token string, limit int) ([]models.LogChunk, string, error) {
	cur, err := NewSimpleCursor[models.LogChunk](token, func(after string, limit int) ([]models.LogChunk, string, bool, error) {
		afterSeq := int64(0)
		if after != "" {
			parsed, err := strconv.ParseInt(after, 10, 64)
			if err != nil {
				return nil, "", false, apierrors.NewInvalid("invalid cursor: %v", err)
			}
			afterSeq = parsed
		}

		var rows pgx.Rows
		var queryErr error
		if stage < 0 {
			rows, queryErr = c.Pool.Query(ctx, `
				SELECT seq, stage, chunk, ts FROM reaction_logs
				WHERE reaction_id = $1 AND seq > $2 ORDER BY seq LIMIT $3
			`, reactionID, afterSeq, limit+1)
		} else {
			rows, queryErr = c.Pool.Query(ctx, `
				SELECT seq, stage, chunk, ts FROM reaction_logs
				WHERE reaction_id = $1 AND stage = $2 AND seq > $3 ORDER BY seq LIMIT $4
			`, reactionID, stage, afterSeq, limit+1)
		}
		if queryErr != nil {
			return nil, "", false, apierrors.Wrap(apierrors.KindInternal, queryErr, "list reaction logs")
		}
		defer rows.Close()

		var entries []models.LogChunk
		var lastSeq int64
		for rows.Next() {
			var e models.LogChunk
			if err := rows.Scan(&lastSeq, &e.Stage, &e.Chunk, &e.Timestamp); err != nil {
				return nil, "", false, apierrors.Wrap(apierrors.KindInternal, err, "scan reaction log chunk")
			}
			entries = append(entries, e)
		}
		hasMore := len(entries) > limit
		if hasMore {
			entries = entries[:limit]
		}
		return entries, strconv.FormatInt(lastSeq, 10), hasMore, nil
	})
	if err != nil {
		return nil, "", err
	}
	return cur.Next(limit)
}
