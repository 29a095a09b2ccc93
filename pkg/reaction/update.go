package reaction

import (
	"context"

	"github.com/thoriumlabs/thorium/pkg/models"
)

// ArgsUpdate is one stage-image's argument overlay edit (spec §4.6.5).
type ArgsUpdate struct {
	// Positional replaces the positional list wholesale when non-empty.
	Positional []string
	// KwargRemove applies before KwargAdd, so remove-then-add is
	// deterministic under repeated updates.
	KwargRemove  []string
	KwargAdd     map[string]string
	SwitchRemove []string
	SwitchAdd    []string
	// Options, when non-nil, replaces the image's whole options block.
	Options map[string]any
}

// UpdateRequest carries an Update call's edits.
type UpdateRequest struct {
	Args       map[string]ArgsUpdate
	AddTags    map[string]string
	RemoveTags []string
	Ephemeral  map[string]string
}

// Update overlays new arguments, tags, and ephemeral files onto a reaction.
// Completed stages' args may be rewritten for audit purposes with no
// retroactive effect on already-dispatched jobs (spec §4.6.5).
func (e *Engine) Update(ctx context.Context, reactionID, caller string, callerIsGroupAdmin bool, req UpdateRequest) (*models.Reaction, error) {
	r, err := e.meta.GetReaction(ctx, reactionID)
	if err != nil {
		return nil, err
	}
	if err := requireModify(r, caller, callerIsGroupAdmin); err != nil {
		return nil, err
	}

	if r.Args == nil {
		r.Args = map[string]models.ImageArgsOverlay{}
	}
	for image, upd := range req.Args {
		entry := r.Args[image]
		applyArgsUpdate(&entry, upd)
		r.Args[image] = entry
	}

	if r.Tags == nil {
		r.Tags = map[string]string{}
	}
	for _, tag := range req.RemoveTags {
		delete(r.Tags, tag)
	}
	for k, v := range req.AddTags {
		r.Tags[k] = v
	}

	newNames, err := e.uploadEphemeral(ctx, r.ID, req.Ephemeral)
	if err != nil {
		return nil, err
	}
	r.EphemeralFiles = append(r.EphemeralFiles, newNames...)

	if err := e.meta.UpdateReactionState(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// applyArgsUpdate mutates entry in place following §4.6.5's fixed order:
// positional replace, kwarg remove then add, switch remove then add,
// optional full options replace.
func applyArgsUpdate(entry *models.ImageArgsOverlay, upd ArgsUpdate) {
	if len(upd.Positional) > 0 {
		entry.Positional = upd.Positional
	}

	if len(upd.KwargRemove) > 0 && entry.KwargAdd != nil {
		for _, key := range upd.KwargRemove {
			delete(entry.KwargAdd, key)
		}
	}
	if len(upd.KwargAdd) > 0 {
		if entry.KwargAdd == nil {
			entry.KwargAdd = map[string]string{}
		}
		for k, v := range upd.KwargAdd {
			entry.KwargAdd[k] = v
		}
	}

	if len(upd.SwitchRemove) > 0 {
		entry.SwitchAdd = subtractStr(entry.SwitchAdd, upd.SwitchRemove)
	}
	entry.SwitchAdd = append(entry.SwitchAdd, upd.SwitchAdd...)

	if upd.Options != nil {
		entry.Options = upd.Options
	}
}

func subtractStr(items, remove []string) []string {
	skip := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		skip[r] = struct{}{}
	}
	out := items[:0:0]
	for _, v := range items {
		if _, ok := skip[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
