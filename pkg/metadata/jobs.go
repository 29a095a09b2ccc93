package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// InsertJob records a spawned job. The (reaction_id, stage, image) unique
// index enforces the at-most-one-active-job constraint from models.Job.Key.
func (c *Client) InsertJob(ctx context.Context, j *models.Job) error {
	_, err := c.Pool.Exec(ctx, `
		INSERT INTO jobs (id, reaction_id, stage, image, status, worker, heartbeat, result_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, j.ID, j.ReactionID, j.Stage, j.Image, string(j.Status), j.Worker, nullableTime(j.Heartbeat), j.ResultIDs)
	if err != nil {
		if isUniqueViolation(err) {
			return apierrors.NewConflict("job already active for reaction %s stage %d image %s", j.ReactionID, j.Stage, j.Image)
		}
		return apierrors.Wrap(apierrors.KindInternal, err, "insert job")
	}
	return nil
}

// GetJob loads a single job by id.
func (c *Client) GetJob(ctx context.Context, id string) (*models.Job, error) {
	j := models.Job{ID: id}
	var status string
	var heartbeat *time.Time
	row := c.Pool.QueryRow(ctx, `
		SELECT reaction_id, stage, image, status, worker, heartbeat, result_ids FROM jobs WHERE id = $1
	`, id)
	if err := row.Scan(&j.ReactionID, &j.Stage, &j.Image, &status, &j.Worker, &heartbeat, &j.ResultIDs); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apierrors.NewNotFound("job %s not found", id)
		}
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "get job")
	}
	j.Status = models.JobStatus(status)
	if heartbeat != nil {
		j.Heartbeat = *heartbeat
	}
	return &j, nil
}

// UpdateJobState updates a job's status, worker, heartbeat, and accumulated
// result ids — the fields a worker mutates as it executes.
func (c *Client) UpdateJobState(ctx context.Context, j *models.Job) error {
	tag, err := c.Pool.Exec(ctx, `
		UPDATE jobs SET status = $1, worker = $2, heartbeat = $3, result_ids = $4 WHERE id = $5
	`, string(j.Status), j.Worker, nullableTime(j.Heartbeat), j.ResultIDs, j.ID)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "update job")
	}
	if tag.RowsAffected() == 0 {
		return apierrors.NewNotFound("job %s not found", j.ID)
	}
	return nil
}

// ListJobsByReaction returns every job spawned for a reaction, used by
// Advance to check whether the current stage's job count has completed.
func (c *Client) ListJobsByReaction(ctx context.Context, reactionID string) ([]models.Job, error) {
	rows, err := c.Pool.Query(ctx, `
		SELECT id, stage, image, status, worker, heartbeat, result_ids FROM jobs WHERE reaction_id = $1
	`, reactionID)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "list jobs by reaction")
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		j := models.Job{ReactionID: reactionID}
		var status string
		var heartbeat *time.Time
		if err := rows.Scan(&j.ID, &j.Stage, &j.Image, &status, &j.Worker, &heartbeat, &j.ResultIDs); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "scan job")
		}
		j.Status = models.JobStatus(status)
		if heartbeat != nil {
			j.Heartbeat = *heartbeat
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListJobsByReactionStage narrows ListJobsByReaction to one stage, the
// "completed < length" check Advance runs before moving to the next stage.
func (c *Client) ListJobsByReactionStage(ctx context.Context, reactionID string, stage int) ([]models.Job, error) {
	all, err := c.ListJobsByReaction(ctx, reactionID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, j := range all {
		if j.Stage == stage {
			out = append(out, j)
		}
	}
	return out, nil
}

// DeleteJob removes a job row once its result has been folded into the
// reaction and it no longer needs tracking.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	_, err := c.Pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "delete job")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
