package models

import "time"

// Result is one tool's output for one stage of one reaction, attached to a
// sample or repository.
type Result struct {
	ID         string         `json:"id"`
	SHA256     string         `json:"sha256,omitempty"`
	RepoURL    string         `json:"repo_url,omitempty"`
	ReactionID string         `json:"reaction_id"`
	Image      string         `json:"image"`
	Groups     []string       `json:"groups"`
	Data       map[string]any `json:"data"`
	Attachments []string      `json:"attachments,omitempty"` // object-store keys
	CreatedAt  time.Time      `json:"created_at"`
}

// OutputMap groups results by image name, the shape returned by
// GET /api/files/results/:sha256.
type OutputMap map[string][]Result
