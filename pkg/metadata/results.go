package metadata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// InsertResult records one tool's output for one stage of one reaction.
func (c *Client) InsertResult(ctx context.Context, r models.Result) error {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInvalid, err, "marshal result data")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err = c.Pool.Exec(ctx, `
		INSERT INTO results (id, sha256, repo_url, reaction_id, image, groups, data, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.SHA256, r.RepoURL, r.ReactionID, r.Image, r.Groups, data, r.Attachments, r.CreatedAt)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "insert result")
	}
	return nil
}

// GetResultsBySample returns every result attached to a sample, grouped by
// the image that produced it.
func (c *Client) GetResultsBySample(ctx context.Context, sha256 string) (models.OutputMap, error) {
	return c.queryOutputMap(ctx, `
		SELECT id, sha256, repo_url, reaction_id, image, groups, data, attachments, created_at
		FROM results WHERE sha256 = $1 ORDER BY created_at
	`, sha256)
}

// GetResultsByRepo returns every result attached to a repository, grouped
// by the image that produced it.
func (c *Client) GetResultsByRepo(ctx context.Context, repoURL string) (models.OutputMap, error) {
	return c.queryOutputMap(ctx, `
		SELECT id, sha256, repo_url, reaction_id, image, groups, data, attachments, created_at
		FROM results WHERE repo_url = $1 ORDER BY created_at
	`, repoURL)
}

// GetResultsByReaction returns every result produced by a single reaction.
func (c *Client) GetResultsByReaction(ctx context.Context, reactionID string) ([]models.Result, error) {
	return c.queryResults(ctx, `
		SELECT id, sha256, repo_url, reaction_id, image, groups, data, attachments, created_at
		FROM results WHERE reaction_id = $1 ORDER BY image
	`, reactionID)
}

// StreamResults pages the timestamped result stream (all results across the
// store), newest-first, using a SimpleCursor over created_at.
func (c *Client) StreamResults(ctx context.Context, token string, limit int) ([]models.Result, string, error) {
	cur, err := NewSimpleCursor[models.Result](token, func(after string, limit int) ([]models.Result, string, bool, error) {
		var afterTS time.Time
		if after != "" {
			ts, err := time.Parse(time.RFC3339Nano, after)
			if err != nil {
				return nil, "", false, apierrors.NewInvalid("invalid cursor: %v", err)
			}
			afterTS = ts
		} else {
			afterTS = time.Now()
		}

		results, err := c.queryResults(ctx, `
			SELECT id, sha256, repo_url, reaction_id, image, groups, data, attachments, created_at
			FROM results WHERE created_at < $1 ORDER BY created_at DESC LIMIT $2
		`, afterTS, limit+1)
		if err != nil {
			return nil, "", false, err
		}

		hasMore := len(results) > limit
		if hasMore {
			results = results[:limit]
		}
		last := afterTS
		if len(results) > 0 {
			last = results[len(results)-1].CreatedAt
		}
		return results, last.Format(time.RFC3339Nano), hasMore, nil
	})
	if err != nil {
		return nil, "", err
	}
	return cur.Next(limit)
}

// PurgeResultsOlderThan deletes every result recorded before cutoff,
// returning the number of rows removed. Used by the retention sweep (spec
// Retention config: result_retention) to bound result-table growth.
func (c *Client) PurgeResultsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := c.Pool.Exec(ctx, `DELETE FROM results WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.KindInternal, err, "purge old results")
	}
	return tag.RowsAffected(), nil
}

func (c *Client) queryResults(ctx context.Context, query string, args ...any) ([]models.Result, error) {
	rows, err := c.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "query results")
	}
	defer rows.Close()

	var out []models.Result
	for rows.Next() {
		var r models.Result
		var data []byte
		if err := rows.Scan(&r.ID, &r.SHA256, &r.RepoURL, &r.ReactionID, &r.Image, &r.Groups, &data, &r.Attachments, &r.CreatedAt); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "scan result")
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &r.Data); err != nil {
				return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal result data")
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *Client) queryOutputMap(ctx context.Context, query string, args ...any) (models.OutputMap, error) {
	results, err := c.queryResults(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make(models.OutputMap)
	for _, r := range results {
		out[r.Image] = append(out[r.Image], r)
	}
	return out, nil
}
