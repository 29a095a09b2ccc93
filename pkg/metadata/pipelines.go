package metadata

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// UpsertPipeline creates or replaces a pipeline definition.
func (c *Client) UpsertPipeline(ctx context.Context, p *models.Pipeline) error {
	stages, err := json.Marshal(p.Order)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInvalid, err, "marshal pipeline stages")
	}
	_, err = c.Pool.Exec(ctx, `
		INSERT INTO pipelines ("group", name, sla_default, triggers, bans, stages)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ("group", name) DO UPDATE SET
			sla_default = EXCLUDED.sla_default,
			triggers = EXCLUDED.triggers,
			bans = EXCLUDED.bans,
			stages = EXCLUDED.stages
	`, p.Group, p.Name, p.SLADefault, p.Triggers, p.Bans, stages)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "upsert pipeline")
	}
	return nil
}

// GetPipeline loads a single pipeline by (group, name).
func (c *Client) GetPipeline(ctx context.Context, group, name string) (*models.Pipeline, error) {
	p := models.Pipeline{Group: group, Name: name}
	var stages []byte
	row := c.Pool.QueryRow(ctx, `SELECT sla_default, triggers, bans, stages FROM pipelines WHERE "group" = $1 AND name = $2`, group, name)
	if err := row.Scan(&p.SLADefault, &p.Triggers, &p.Bans, &stages); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apierrors.NewNotFound("pipeline %s/%s not found", group, name)
		}
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "get pipeline")
	}
	if err := json.Unmarshal(stages, &p.Order); err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal pipeline stages")
	}
	return &p, nil
}

// ListPipelines returns every pipeline defined for a group.
func (c *Client) ListPipelines(ctx context.Context, group string) ([]models.Pipeline, error) {
	rows, err := c.Pool.Query(ctx, `SELECT name, sla_default, triggers, bans, stages FROM pipelines WHERE "group" = $1`, group)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "list pipelines")
	}
	defer rows.Close()

	var out []models.Pipeline
	for rows.Next() {
		p := models.Pipeline{Group: group}
		var stages []byte
		if err := rows.Scan(&p.Name, &p.SLADefault, &p.Triggers, &p.Bans, &stages); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "scan pipeline")
		}
		if err := json.Unmarshal(stages, &p.Order); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal pipeline stages")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePipeline removes a pipeline definition.
func (c *Client) DeletePipeline(ctx context.Context, group, name string) error {
	_, err := c.Pool.Exec(ctx, `DELETE FROM pipelines WHERE "group" = $1 AND name = $2`, group, name)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "delete pipeline")
	}
	return nil
}

// SetPipelineBans replaces a pipeline's ban list (empty clears it).
func (c *Client) SetPipelineBans(ctx context.Context, group, name string, bans []string) error {
	tag, err := c.Pool.Exec(ctx, `UPDATE pipelines SET bans = $1 WHERE "group" = $2 AND name = $3`, bans, group, name)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "set pipeline bans")
	}
	if tag.RowsAffected() == 0 {
		return apierrors.NewNotFound("pipeline %s/%s not found", group, name)
	}
	return nil
}
