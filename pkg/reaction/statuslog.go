package reaction

import (
	"context"

	"github.com/thoriumlabs/thorium/pkg/models"
)

// StatusLog pages a reaction's immutable status-transition log, oldest
// first, by (cursor, limit) (spec §4.6.7).
func (e *Engine) StatusLog(ctx context.Context, reactionID, cursor string, limit int) ([]models.StatusLogEntry, string, error) {
	return e.meta.ListStatusLog(ctx, reactionID, cursor, limit)
}
