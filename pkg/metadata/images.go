package metadata

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// imageSpec is the JSON-serialized portion of models.Image beyond its
// (group, name, bans) key columns.
type imageSpec struct {
	Image           string                `json:"image"`
	Resources       models.Resources      `json:"resources"`
	ScalerKind      models.ScalerKind     `json:"scaler_kind"`
	Pool            models.Pool           `json:"pool"`
	SecurityContext models.SecurityContext `json:"security_context"`
	Volumes         []models.Volume       `json:"volumes"`
	HostPathMounts  []models.Volume       `json:"host_path_mounts"`
	ArgStrategy     models.ArgStrategy    `json:"arg_strategy"`
	OutputHandler   models.OutputHandler  `json:"output_handler"`
	NetworkPolicies []string              `json:"network_policies"`
	SpawnLimit      int                   `json:"spawn_limit"`
}

func toImageSpec(img *models.Image) imageSpec {
	return imageSpec{
		Image:           img.Image,
		Resources:       img.Resources,
		ScalerKind:      img.ScalerKind,
		Pool:            img.Pool,
		SecurityContext: img.SecurityContext,
		Volumes:         img.Volumes,
		HostPathMounts:  img.HostPathMounts,
		ArgStrategy:     img.ArgStrategy,
		OutputHandler:   img.OutputHandler,
		NetworkPolicies: img.NetworkPolicies,
		SpawnLimit:      img.SpawnLimit,
	}
}

func (s imageSpec) apply(img *models.Image) {
	img.Image = s.Image
	img.Resources = s.Resources
	img.ScalerKind = s.ScalerKind
	img.Pool = s.Pool
	img.SecurityContext = s.SecurityContext
	img.Volumes = s.Volumes
	img.HostPathMounts = s.HostPathMounts
	img.ArgStrategy = s.ArgStrategy
	img.OutputHandler = s.OutputHandler
	img.NetworkPolicies = s.NetworkPolicies
	img.SpawnLimit = s.SpawnLimit
}

// UpsertImage creates or replaces an image definition.
func (c *Client) UpsertImage(ctx context.Context, img *models.Image) error {
	spec, err := json.Marshal(toImageSpec(img))
	if err != nil {
		return apierrors.Wrap(apierrors.KindInvalid, err, "marshal image spec")
	}
	_, err = c.Pool.Exec(ctx, `
		INSERT INTO images ("group", name, spec, bans)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ("group", name) DO UPDATE SET spec = EXCLUDED.spec, bans = EXCLUDED.bans
	`, img.Group, img.Name, spec, img.Bans)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "upsert image")
	}
	return nil
}

// GetImage loads a single image by (group, name).
func (c *Client) GetImage(ctx context.Context, group, name string) (*models.Image, error) {
	img := models.Image{Group: group, Name: name}
	var spec []byte
	row := c.Pool.QueryRow(ctx, `SELECT spec, bans FROM images WHERE "group" = $1 AND name = $2`, group, name)
	if err := row.Scan(&spec, &img.Bans); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apierrors.NewNotFound("image %s/%s not found", group, name)
		}
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "get image")
	}
	var s imageSpec
	if err := json.Unmarshal(spec, &s); err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal image spec")
	}
	s.apply(&img)
	return &img, nil
}

// ListImages returns every image defined for a group.
func (c *Client) ListImages(ctx context.Context, group string) ([]models.Image, error) {
	rows, err := c.Pool.Query(ctx, `SELECT name, spec, bans FROM images WHERE "group" = $1`, group)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "list images")
	}
	defer rows.Close()

	var out []models.Image
	for rows.Next() {
		img := models.Image{Group: group}
		var spec []byte
		if err := rows.Scan(&img.Name, &spec, &img.Bans); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "scan image")
		}
		var s imageSpec
		if err := json.Unmarshal(spec, &s); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "unmarshal image spec")
		}
		s.apply(&img)
		out = append(out, img)
	}
	return out, rows.Err()
}

// DeleteImage removes an image definition.
func (c *Client) DeleteImage(ctx context.Context, group, name string) error {
	_, err := c.Pool.Exec(ctx, `DELETE FROM images WHERE "group" = $1 AND name = $2`, group, name)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "delete image")
	}
	return nil
}

// SetImageBans replaces an image's ban list.
func (c *Client) SetImageBans(ctx context.Context, group, name string, bans []string) error {
	tag, err := c.Pool.Exec(ctx, `UPDATE images SET bans = $1 WHERE "group" = $2 AND name = $3`, bans, group, name)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "set image bans")
	}
	if tag.RowsAffected() == 0 {
		return apierrors.NewNotFound("image %s/%s not found", group, name)
	}
	return nil
}
