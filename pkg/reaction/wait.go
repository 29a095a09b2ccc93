package reaction

import (
	"context"
	"time"

	"github.com/thoriumlabs/thorium/pkg/models"
)

// WaitForTerminal polls a reaction until it reaches a terminal status or ctx
// is canceled, the synchronous create-and-wait convenience
// original_source/api/src/client/reactions.rs's CLI poll loop shows
// (SPEC_FULL.md §4.6 supplement).
func (e *Engine) WaitForTerminal(ctx context.Context, reactionID string, pollInterval time.Duration) (*models.Reaction, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		r, err := e.meta.GetReaction(ctx, reactionID)
		if err != nil {
			return nil, err
		}
		if r.Status.Terminal() {
			return r, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
