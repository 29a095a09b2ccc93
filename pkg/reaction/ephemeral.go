package reaction

import (
	"context"
	"encoding/base64"
	"io"
	"sort"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
	"github.com/thoriumlabs/thorium/pkg/objectstore"
)

// uploadEphemeral validates and uploads every named buffer under
// "<reactionID>/<name>" in the ephemeral bucket, returning the names
// recorded on the reaction (spec §4.6.1 step 5).
func (e *Engine) uploadEphemeral(ctx context.Context, reactionID string, buffers map[string]string) ([]string, error) {
	if len(buffers) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(buffers))
	for name, encoded := range buffers {
		if err := models.ValidateFileName(name); err != nil {
			return nil, err
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, apierrors.NewInvalid("ephemeral file %q: invalid base64", name)
		}
		path := reactionID + "/" + name
		if err := e.objects.UploadBase64(ctx, objectstore.BucketEphemeral, path, decoded); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DownloadEphemeral downloads an ephemeral file belonging to reaction r: its
// own uploads, or files an ancestor declared under parent_ephemeral at this
// reaction's creation. Anything else is NotFound (spec §4.6.6).
func (e *Engine) DownloadEphemeral(ctx context.Context, r *models.Reaction, name string) ([]byte, error) {
	if containsStr(r.EphemeralFiles, name) {
		return e.readEphemeral(ctx, r.EphemeralPath(name))
	}
	if owner, ok := r.ParentEphemeral[name]; ok {
		return e.readEphemeral(ctx, owner+"/"+name)
	}
	return nil, apierrors.NewNotFound("ephemeral file %q not found on reaction %s", name, r.ID)
}

func (e *Engine) readEphemeral(ctx context.Context, path string) ([]byte, error) {
	body, err := e.objects.Download(ctx, objectstore.BucketEphemeral, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "read ephemeral %s", path)
	}
	return raw, nil
}

func containsStr(items []string, target string) bool {
	for _, v := range items {
		if v == target {
			return true
		}
	}
	return false
}
