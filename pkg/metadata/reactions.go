package metadata

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// InsertReaction persists a newly created reaction.
func (c *Client) InsertReaction(ctx context.Context, r *models.Reaction) error {
	args, err := json.Marshal(r.Args)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInvalid, err, "marshal reaction args")
	}
	repos, err := json.Marshal(r.Repos)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInvalid, err, "marshal reaction repos")
	}
	parentEphemeral, err := json.Marshal(r.ParentEphemeral)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInvalid, err, "marshal parent ephemeral map")
	}
	tags, err := json.Marshal(r.Tags)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInvalid, err, "marshal reaction tags")
	}

	_, err = c.Pool.Exec(ctx, `
		INSERT INTO reactions (
			id, "group", pipeline, creator, status,
			current_stage, current_stage_length, current_stage_progress,
			args, sla, samples, repos, sub_reactions, completed_sub_reactions,
			generators, parent, ephemeral_files, parent_ephemeral, tags, trigger_depth, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, r.ID, r.Group, r.Pipeline, r.Creator, string(r.Status),
		r.CurrentStage, r.CurrentStageLength, r.CurrentStageProgress,
		args, r.SLA.Unix(), r.Samples, repos, r.SubReactions, r.CompletedSubReactions,
		r.Generators, r.Parent, r.EphemeralFiles, parentEphemeral, tags, r.TriggerDepth, r.CreatedAt)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "insert reaction")
	}
	return nil
}

// GetReaction loads a single reaction by id.
func (c *Client) GetReaction(ctx context.Context, id string) (*models.Reaction, error) {
	r := models.Reaction{ID: id}
	var status string
	var args, repos, parentEphemeral, tags []byte
	var slaUnix int64

	row := c.Pool.QueryRow(ctx, `
		SELECT "group", pipeline, creator, status, current_stage, current_stage_length, current_stage_progress,
		       args, sla, samples, repos, sub_reactions, completed_sub_reactions,
		       generators, parent, ephemeral_files, parent_ephemeral, tags, trigger_depth, created_at
		FROM reactions WHERE id = $1
	`, id)
	if err := row.Scan(
		&r.Group, &r.Pipeline, &r.Creator, &status, &r.CurrentStage, &r.CurrentStageLength, &r.CurrentStageProgress,
		&args, &slaUnix, &r.Samples, &repos, &r.SubReactions, &r.CompletedSubReactions,
		&r.Generators, &r.Parent, &r.EphemeralFiles, &parentEphemeral, &tags, &r.TriggerDepth, &r.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apierrors.NewNotFound("reaction %s not found", id)
		}
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "get reaction")
	}

	r.Status = models.ReactionStatus(status)
	r.SLA = time.Unix(slaUnix, 0).UTC()
	if err := json.Unmarshal(args, &r.Args); err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal reaction args")
	}
	if err := json.Unmarshal(repos, &r.Repos); err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal reaction repos")
	}
	if len(parentEphemeral) > 0 {
		if err := json.Unmarshal(parentEphemeral, &r.ParentEphemeral); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal parent ephemeral map")
		}
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &r.Tags); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal reaction tags")
		}
	}
	return &r, nil
}

// GetReactions bulk-loads reactions by id for the status-query supplement.
func (c *Client) GetReactions(ctx context.Context, ids []string) ([]models.Reaction, error) {
	out := make([]models.Reaction, 0, len(ids))
	for _, id := range ids {
		r, err := c.GetReaction(ctx, id)
		if err != nil {
			if apierrors.Is(err, apierrors.KindNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// UpdateReactionState updates the mutable fields touched by Advance/Fail/Update.
func (c *Client) UpdateReactionState(ctx context.Context, r *models.Reaction) error {
	args, err := json.Marshal(r.Args)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInvalid, err, "marshal reaction args")
	}
	tags, err := json.Marshal(r.Tags)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInvalid, err, "marshal reaction tags")
	}

	tag, err := c.Pool.Exec(ctx, `
		UPDATE reactions SET
			status = $1, current_stage = $2, current_stage_length = $3, current_stage_progress = $4,
			args = $5, sub_reactions = $6, completed_sub_reactions = $7, generators = $8,
			ephemeral_files = $9, tags = $10
		WHERE id = $11
	`, string(r.Status), r.CurrentStage, r.CurrentStageLength, r.CurrentStageProgress,
		args, r.SubReactions, r.CompletedSubReactions, r.Generators,
		r.EphemeralFiles, tags, r.ID)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "update reaction")
	}
	if tag.RowsAffected() == 0 {
		return apierrors.NewNotFound("reaction %s not found", r.ID)
	}
	return nil
}

// AppendStatusLog appends an immutable status-log entry for a reaction.
func (c *Client) AppendStatusLog(ctx context.Context, reactionID string, entry models.StatusLogEntry) error {
	_, err := c.Pool.Exec(ctx, `
		INSERT INTO reaction_status_log (reaction_id, action, ts, message)
		VALUES ($1, $2, $3, $4)
	`, reactionID, entry.Action, entry.Timestamp, entry.Message)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "append status log")
	}
	return nil
}

// ListStatusLog pages a reaction's status log oldest-first via a
// SimpleCursor over the log's monotonic sequence number.
func (c *Client) ListStatusLog(ctx context.Context, reactionID, token string, limit int) ([]models.StatusLogEntry, string, error) {
	cur, err := NewSimpleCursor[models.StatusLogEntry](token, func(after string, limit int) ([]models.StatusLogEntry, string, bool, error) {
		afterSeq := int64(0)
		if after != "" {
			parsed, err := strconv.ParseInt(after, 10, 64)
			if err != nil {
				return nil, "", false, apierrors.NewInvalid("invalid cursor: %v", err)
			}
			afterSeq = parsed
		}

		rows, err := c.Pool.Query(ctx, `
			SELECT seq, action, ts, message FROM reaction_status_log
			WHERE reaction_id = $1 AND seq > $2 ORDER BY seq LIMIT $3
		`, reactionID, afterSeq, limit+1)
		if err != nil {
			return nil, "", false, apierrors.Wrap(apierrors.KindInternal, err, "list status log")
		}
		defer rows.Close()

		var entries []models.StatusLogEntry
		var lastSeq int64
		for rows.Next() {
			var e models.StatusLogEntry
			if err := rows.Scan(&lastSeq, &e.Action, &e.Timestamp, &e.Message); err != nil {
				return nil, "", false, apierrors.Wrap(apierrors.KindInternal, err, "scan status log entry")
			}
			entries = append(entries, e)
		}
		hasMore := len(entries) > limit
		if hasMore {
			entries = entries[:limit]
		}
		return entries, strconv.FormatInt(lastSeq, 10), hasMore, rows.Err()
	})
	if err != nil {
		return nil, "", err
	}
	return cur.Next(limit)
}

// DeleteReaction removes a reaction record; its status log and job rows
// cascade via the schema's ON DELETE CASCADE foreign keys.
func (c *Client) DeleteReaction(ctx context.Context, id string) error {
	tag, err := c.Pool.Exec(ctx, `DELETE FROM reactions WHERE id = $1`, id)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "delete reaction")
	}
	if tag.RowsAffected() == 0 {
		return apierrors.NewNotFound("reaction %s not found", id)
	}
	return nil
}

// PurgeStatusLogOlderThan deletes status-log rows belonging to terminal
// reactions created before cutoff, returning the number of rows removed.
// Used by the retention sweep (spec Retention config: status_log_retention).
func (c *Client) PurgeStatusLogOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := c.Pool.Exec(ctx, `
		DELETE FROM reaction_status_log
		WHERE reaction_id IN (
			SELECT id FROM reactions
			WHERE created_at < $1 AND status IN ('Completed', 'Failed')
		)
	`, cutoff)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.KindInternal, err, "purge old status log rows")
	}
	return tag.RowsAffected(), nil
}

// PurgeReactionLogsOlderThan deletes stdout/stderr log chunks belonging to
// terminal reactions created before cutoff, returning the number of rows
// removed. Uses the same retention window as the status log.
func (c *Client) PurgeReactionLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := c.Pool.Exec(ctx, `
		DELETE FROM reaction_logs
		WHERE reaction_id IN (
			SELECT id FROM reactions
			WHERE created_at < $1 AND status IN ('Completed', 'Failed')
		)
	`, cutoff)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.KindInternal, err, "purge old reaction log rows")
	}
	return tag.RowsAffected(), nil
}

// ListReactionsByPipelineStatus pages reaction ids for a (group, pipeline,
// status) index, the storage backing §4.6.1 step 7's "group membership in
// pipeline indexes".
func (c *Client) ListReactionsByPipelineStatus(ctx context.Context, group, pipeline string, status models.ReactionStatus) ([]string, error) {
	rows, err := c.Pool.Query(ctx, `SELECT id FROM reactions WHERE "group" = $1 AND pipeline = $2 AND status = $3`, group, pipeline, string(status))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "list reactions by pipeline status")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "scan reaction id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
