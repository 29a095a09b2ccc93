package metadata

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// UpsertRepository creates or updates a repository row.
func (c *Client) UpsertRepository(ctx context.Context, r *models.Repository) error {
	_, err := c.Pool.Exec(ctx, `
		INSERT INTO repositories (url, groups, default_checkout, earliest_commit_at, tarball_keys)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url) DO UPDATE SET
			groups = EXCLUDED.groups,
			default_checkout = EXCLUDED.default_checkout,
			earliest_commit_at = EXCLUDED.earliest_commit_at,
			tarball_keys = EXCLUDED.tarball_keys
	`, r.URL, r.Groups, r.DefaultCheckout, nullableTime(r.EarliestCommitAt), r.TarballKeys)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "upsert repository")
	}
	return nil
}

// GetRepository loads a repository, its tags, and its commitishes.
func (c *Client) GetRepository(ctx context.Context, url string) (*models.Repository, error) {
	var r models.Repository
	r.URL = url

	var earliest *time.Time
	row := c.Pool.QueryRow(ctx, `SELECT groups, default_checkout, earliest_commit_at, tarball_keys FROM repositories WHERE url = $1`, url)
	if err := row.Scan(&r.Groups, &r.DefaultCheckout, &earliest, &r.TarballKeys); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apierrors.NewNotFound("repository %s not found", url)
		}
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "get repository")
	}
	if earliest != nil {
		r.EarliestCommitAt = *earliest
	}

	tagRows, err := c.Pool.Query(ctx, `SELECT "group", key, value FROM repository_tags WHERE url = $1`, url)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "list repository tags")
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var t models.Tag
		if err := tagRows.Scan(&t.Group, &t.Key, &t.Value); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "scan repository tag")
		}
		r.Tags = append(r.Tags, t)
	}
	if err := tagRows.Err(); err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "iterate repository tags")
	}

	commitishes, err := c.ListCommitishes(ctx, url, 0)
	if err != nil {
		return nil, err
	}
	r.Commitishes = commitishes

	return &r, nil
}

// AddCommitish records an observed commitish (commit/branch/tag) for a repo.
func (c *Client) AddCommitish(ctx context.Context, url string, ci models.Commitish) error {
	_, err := c.Pool.Exec(ctx, `
		INSERT INTO commitishes (url, kind, key, observed_at, tarball_keys)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url, kind, key) DO UPDATE SET
			observed_at = EXCLUDED.observed_at,
			tarball_keys = EXCLUDED.tarball_keys
	`, url, string(ci.Kind), ci.Key, ci.Timestamp, ci.TarballKeys)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "add commitish")
	}
	return nil
}

// ListCommitishes returns the most recently observed commitishes for a
// repo, newest first. A zero limit returns all of them.
func (c *Client) ListCommitishes(ctx context.Context, url string, limit int) ([]models.Commitish, error) {
	query := `SELECT kind, key, observed_at, tarball_keys FROM commitishes WHERE url = $1 ORDER BY observed_at DESC`
	args := []any{url}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := c.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "list commitishes")
	}
	defer rows.Close()

	var out []models.Commitish
	for rows.Next() {
		var ci models.Commitish
		var kind string
		if err := rows.Scan(&kind, &ci.Key, &ci.Timestamp, &ci.TarballKeys); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "scan commitish")
		}
		ci.Kind = models.CommitishKind(kind)
		out = append(out, ci)
	}
	return out, rows.Err()
}
