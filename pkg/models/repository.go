package models

import (
	"strings"
	"time"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
)

// CommitishKind distinguishes a commit hash from a named branch or tag.
type CommitishKind string

const (
	CommitishCommit CommitishKind = "commit"
	CommitishBranch CommitishKind = "branch"
	CommitishTag    CommitishKind = "tag"
)

// Commitish is a single commit, branch, or tag within a Repository.
// Commits are keyed by hash; branches and tags are keyed by name.
type Commitish struct {
	Kind      CommitishKind `json:"kind"`
	Key       string        `json:"key"`
	Timestamp time.Time     `json:"timestamp"`
	// TarballKeys are the object-store ids of tarballs that back this
	// commitish (a single tarball may back several commits).
	TarballKeys []string `json:"tarball_keys,omitempty"`
}

// Repository is the logical root for a normalized remote URL.
type Repository struct {
	URL              string      `json:"url"`
	Groups           []string    `json:"groups"`
	Tags             []Tag       `json:"tags"`
	DefaultCheckout  string      `json:"default_checkout,omitempty"`
	EarliestCommitAt time.Time   `json:"earliest_commit_at"`
	TarballKeys      []string    `json:"tarball_keys,omitempty"`
	Commitishes      []Commitish `json:"commitishes,omitempty"`
}

// ResolveCommitish picks the commitish to check out for a reaction: the
// caller's explicit choice, else the repo's default checkout, else none
// (§4.6.1 step 3).
func (r *Repository) ResolveCommitish(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return r.DefaultCheckout
}

// NormalizeRepoURL applies the repository key normalization: strip scheme,
// strip a trailing ".git" or "/", and rewrite an SSH shorthand
// ("git@host:owner/name") to "host/owner/name".
func NormalizeRepoURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", apierrors.NewInvalid("repo url: must not be empty")
	}

	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	} else if strings.HasPrefix(s, "git@") {
		rest := s[len("git@"):]
		if i := strings.Index(rest, ":"); i >= 0 {
			s = rest[:i] + "/" + rest[i+1:]
		} else {
			s = rest
		}
	}

	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")
	s = strings.TrimSuffix(s, "/")

	if s == "" {
		return "", apierrors.NewInvalid("repo url %q: normalizes to empty", raw)
	}
	return s, nil
}
