package models

import (
	"time"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
)

// ReactionStatus is the reaction's position in the state machine.
type ReactionStatus string

const (
	ReactionCreated   ReactionStatus = "Created"
	ReactionStarted   ReactionStatus = "Started"
	ReactionCompleted ReactionStatus = "Completed"
	ReactionFailed    ReactionStatus = "Failed"
)

func (s ReactionStatus) Terminal() bool {
	return s == ReactionCompleted || s == ReactionFailed
}

// ImageArgsOverlay is the per-image overlay applied on top of an image's
// default argument assembly for one reaction: the already-resolved state
// after an Update's remove-then-add edits have been folded in (§4.6.5).
type ImageArgsOverlay struct {
	// Positional replaces the positional argument list wholesale when non-empty.
	Positional []string `json:"positional,omitempty"`
	// KwargAdd is the resolved overlay of kwargs on top of the image's
	// defaults.
	KwargAdd map[string]string `json:"kwarg_add,omitempty"`
	// SwitchAdd is the resolved overlay of switches on top of the image's
	// defaults.
	SwitchAdd []string `json:"switch_add,omitempty"`
	// Options, when non-nil, replaces the image's whole options block.
	Options map[string]any `json:"options,omitempty"`
}

// RepoRef references a repository and, optionally, a specific commitish.
type RepoRef struct {
	URL       string `json:"url"`
	Commitish string `json:"commitish,omitempty"`
}

// StatusLogEntry is one immutable record in a reaction's status log.
type StatusLogEntry struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// Reaction is one running instance of a Pipeline.
type Reaction struct {
	ID       string `json:"id"`
	Group    string `json:"group"`
	Pipeline string `json:"pipeline"`
	Creator  string `json:"creator"`
	Status   ReactionStatus `json:"status"`

	CurrentStage         int `json:"current_stage"`
	CurrentStageLength   int `json:"current_stage_length"`
	CurrentStageProgress int `json:"current_stage_progress"`

	Args map[string]ImageArgsOverlay `json:"args,omitempty"`

	SLA time.Time `json:"sla"`

	Samples []string  `json:"samples,omitempty"`
	Repos   []RepoRef `json:"repos,omitempty"`

	ActiveJobs []string `json:"active_jobs,omitempty"`

	SubReactions          []string `json:"sub_reactions,omitempty"`
	CompletedSubReactions int      `json:"completed_sub_reactions"`
	Generators            []string `json:"generators,omitempty"`

	Parent *string `json:"parent,omitempty"`

	EphemeralFiles  []string          `json:"ephemeral_files,omitempty"`
	ParentEphemeral map[string]string `json:"parent_ephemeral,omitempty"` // name -> owning reaction id

	Tags map[string]string `json:"tags,omitempty"`

	TriggerDepth int `json:"trigger_depth"`

	StatusLog []StatusLogEntry `json:"status_log,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ValidateInvariants checks the §8 reaction invariants that hold for any
// snapshot of the struct (structural checks only — sequencing invariants
// like "advance is a no-op while jobs are pending" live in pkg/reaction).
func (r *Reaction) ValidateInvariants(pipelineStages int) error {
	if r.Status == ReactionStarted {
		if r.CurrentStage < 0 || r.CurrentStage >= pipelineStages {
			return apierrors.NewInternal("reaction %s: current_stage %d out of [0,%d)", r.ID, r.CurrentStage, pipelineStages)
		}
		if r.CurrentStageProgress > r.CurrentStageLength {
			return apierrors.NewInternal("reaction %s: stage progress %d exceeds length %d", r.ID, r.CurrentStageProgress, r.CurrentStageLength)
		}
	}
	if r.CompletedSubReactions > len(r.SubReactions) {
		return apierrors.NewInternal("reaction %s: completed_sub_reactions %d exceeds sub_reactions %d", r.ID, r.CompletedSubReactions, len(r.SubReactions))
	}
	return nil
}

// EphemeralPath returns the object-store key under which a named ephemeral
// file for this reaction is stored.
func (r *Reaction) EphemeralPath(name string) string {
	return r.ID + "/" + name
}
