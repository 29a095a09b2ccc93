package metadata

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// UpsertSample inserts the sample row if absent, then appends a submission
// record. Samples are write-once by hash; repeated submissions of the same
// content accumulate submission history rather than overwriting it.
func (c *Client) UpsertSample(ctx context.Context, sha256, sha1, md5 string, size int64, mime string, sub models.Submission) error {
	tx, err := c.Pool.Begin(ctx)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "begin upsert sample")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO samples (sha256, sha1, md5, size_bytes, mime_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sha256) DO NOTHING
	`, sha256, sha1, md5, size, mime)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "insert sample")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sample_submissions (sha256, submission_id, submitter, groups, origin, name, submitted_at, object_keys)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sha256, sub.ID, sub.Submitter, sub.Groups, sub.Origin, sub.Name, sub.SubmittedAt, sub.ObjectKeys)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "insert submission")
	}

	if err := tx.Commit(ctx); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "commit upsert sample")
	}
	return nil
}

// GetSample loads a sample's core row plus its submissions, tags, and
// comments.
func (c *Client) GetSample(ctx context.Context, sha256 string) (*models.Sample, error) {
	var s models.Sample
	s.SHA256 = sha256

	row := c.Pool.QueryRow(ctx, `SELECT sha1, md5, size_bytes, mime_type FROM samples WHERE sha256 = $1`, sha256)
	if err := row.Scan(&s.SHA1, &s.MD5, &s.Size, &s.MIME); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apierrors.NewNotFound("sample %s not found", sha256)
		}
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "get sample")
	}

	subs, err := c.listSampleSubmissions(ctx, sha256)
	if err != nil {
		return nil, err
	}
	s.Submissions = subs

	tags, err := c.listSampleTags(ctx, sha256)
	if err != nil {
		return nil, err
	}
	s.Tags = tags

	comments, err := c.listSampleComments(ctx, sha256)
	if err != nil {
		return nil, err
	}
	s.Comments = comments

	return &s, nil
}

func (c *Client) listSampleSubmissions(ctx context.Context, sha256 string) ([]models.Submission, error) {
	rows, err := c.Pool.Query(ctx, `
		SELECT submission_id, submitter, groups, origin, name, submitted_at, object_keys
		FROM sample_submissions WHERE sha256 = $1 ORDER BY submitted_at
	`, sha256)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "list submissions")
	}
	defer rows.Close()

	var out []models.Submission
	for rows.Next() {
		var sub models.Submission
		if err := rows.Scan(&sub.ID, &sub.Submitter, &sub.Groups, &sub.Origin, &sub.Name, &sub.SubmittedAt, &sub.ObjectKeys); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "scan submission")
		}
		sub.SHA256 = sha256
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (c *Client) listSampleTags(ctx context.Context, sha256 string) ([]models.Tag, error) {
	rows, err := c.Pool.Query(ctx, `SELECT "group", key, value FROM sample_tags WHERE sha256 = $1`, sha256)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "list tags")
	}
	defer rows.Close()

	var out []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.Group, &t.Key, &t.Value); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "scan tag")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *Client) listSampleComments(ctx context.Context, sha256 string) ([]models.Comment, error) {
	rows, err := c.Pool.Query(ctx, `
		SELECT id, author, body, created_at, attachment_key
		FROM sample_comments WHERE sha256 = $1 ORDER BY created_at
	`, sha256)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "list comments")
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var cm models.Comment
		if err := rows.Scan(&cm.ID, &cm.Author, &cm.Body, &cm.CreatedAt, &cm.AttachmentKey); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "scan comment")
		}
		out = append(out, cm)
	}
	return out, rows.Err()
}

// UpdateSubmission edits the name/origin of one of a sample's existing
// submissions, the storage behind PATCH /api/files/sample/:sha256 (spec §6).
func (c *Client) UpdateSubmission(ctx context.Context, sha256, submissionID, name, origin string) error {
	tag, err := c.Pool.Exec(ctx, `
		UPDATE sample_submissions SET name = $3, origin = $4
		WHERE sha256 = $1 AND submission_id = $2
	`, sha256, submissionID, name, origin)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "update submission")
	}
	if tag.RowsAffected() == 0 {
		return apierrors.NewNotFound("submission %s not found on sample %s", submissionID, sha256)
	}
	return nil
}

// AddTag upserts a per-group tag on a sample.
func (c *Client) AddTag(ctx context.Context, sha256 string, t models.Tag) error {
	_, err := c.Pool.Exec(ctx, `
		INSERT INTO sample_tags (sha256, "group", key, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sha256, "group", key) DO UPDATE SET value = EXCLUDED.value
	`, sha256, t.Group, t.Key, t.Value)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "add tag")
	}
	return nil
}

// RemoveTag deletes a per-group tag from a sample.
func (c *Client) RemoveTag(ctx context.Context, sha256, group, key string) error {
	_, err := c.Pool.Exec(ctx, `DELETE FROM sample_tags WHERE sha256 = $1 AND "group" = $2 AND key = $3`, sha256, group, key)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "remove tag")
	}
	return nil
}

// AddComment appends an immutable comment to a sample.
func (c *Client) AddComment(ctx context.Context, sha256 string, cm models.Comment) error {
	if cm.CreatedAt.IsZero() {
		cm.CreatedAt = time.Now()
	}
	_, err := c.Pool.Exec(ctx, `
		INSERT INTO sample_comments (id, sha256, author, body, created_at, attachment_key)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, cm.ID, sha256, cm.Author, cm.Body, cm.CreatedAt, cm.AttachmentKey)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "add comment")
	}
	return nil
}

// ListSamplesByGroup pages samples visible to a group via a SimpleCursor
// over distinct submission timestamps.
func (c *Client) ListSamplesByGroup(ctx context.Context, group, token string, limit int) ([]string, string, error) {
	cur, err := NewSimpleCursor[string](token, func(after string, limit int) ([]string, string, bool, error) {
		var afterTS time.Time
		if after != "" {
			ts, err := time.Parse(time.RFC3339Nano, after)
			if err != nil {
				return nil, "", false, apierrors.NewInvalid("invalid cursor: %v", err)
			}
			afterTS = ts
		}

		rows, err := c.Pool.Query(ctx, `
			SELECT DISTINCT ON (sha256) sha256, submitted_at
			FROM sample_submissions
			WHERE $1 = ANY(groups) AND ($2::timestamptz IS NULL OR submitted_at > $2)
			ORDER BY sha256, submitted_at
			LIMIT $3
		`, group, nullableTime(afterTS), limit+1)
		if err != nil {
			return nil, "", false, apierrors.Wrap(apierrors.KindInternal, err, "list samples by group")
		}
		defer rows.Close()

		var shas []string
		var lastTS time.Time
		for rows.Next() {
			var sha string
			var ts time.Time
			if err := rows.Scan(&sha, &ts); err != nil {
				return nil, "", false, apierrors.Wrap(apierrors.KindInternal, err, "scan sample")
			}
			shas = append(shas, sha)
			lastTS = ts
		}

		hasMore := len(shas) > limit
		if hasMore {
			shas = shas[:limit]
		}
		return shas, lastTS.Format(time.RFC3339Nano), hasMore, rows.Err()
	})
	if err != nil {
		return nil, "", err
	}
	return cur.Next(limit)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
