package reaction

import (
	"context"

	"github.com/thoriumlabs/thorium/pkg/models"
)

// CreateGenerator creates a reaction tagged as a generator of req's pipeline:
// a reaction whose dynamically-spawned children are not known at creation
// time, unlike a plain sub-reaction (SPEC_FULL.md §3 supplement, grounded on
// original_source's generator concept).
func (e *Engine) CreateGenerator(ctx context.Context, req CreateRequest) (*models.Reaction, error) {
	r, err := e.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if r.Tags == nil {
		r.Tags = map[string]string{}
	}
	r.Tags["generator"] = "true"
	if err := e.meta.UpdateReactionState(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// AttachGeneratedReaction records that generatorID dynamically spawned
// childID, appending to the generator's list rather than its fixed
// sub-reaction count.
func (e *Engine) AttachGeneratedReaction(ctx context.Context, generatorID, childID string) error {
	generator, err := e.meta.GetReaction(ctx, generatorID)
	if err != nil {
		return err
	}
	generator.Generators = append(generator.Generators, childID)
	return e.meta.UpdateReactionState(ctx, generator)
}
