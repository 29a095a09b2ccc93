// Package models defines the typed entities of the platform's data model
// (§3 of the specification) and the validation rules every untrusted
// request is cast through before it reaches a store.
package models

import (
	"net"
	"regexp"
	"strings"
	"unicode"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
)

const (
	MinSLASeconds = 1
	MaxSLASeconds = 1_000_000_000

	MinFileNameLen = 1
	MaxFileNameLen = 32
)

var identifierRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ValidateName checks a non-empty, identifier-safe name (group, pipeline,
// image, label, etc.).
func ValidateName(field, value string) error {
	if value == "" {
		return apierrors.NewInvalid("%s: must not be empty", field)
	}
	if !identifierRe.MatchString(value) {
		return apierrors.NewInvalid("%s: %q contains invalid characters", field, value)
	}
	return nil
}

// ValidateGroups checks a non-empty group list, each a valid identifier.
func ValidateGroups(field string, groups []string) error {
	if len(groups) == 0 {
		return apierrors.NewInvalid("%s: must not be empty", field)
	}
	for _, g := range groups {
		if err := ValidateName(field, g); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSLA bounds an SLA duration, in seconds, to [1, 1e9].
func ValidateSLA(seconds int64) error {
	if seconds < MinSLASeconds || seconds > MaxSLASeconds {
		return apierrors.NewInvalid("sla: %d out of bounds [%d, %d]", seconds, MinSLASeconds, MaxSLASeconds)
	}
	return nil
}

// ValidateFileName bounds an ephemeral/attachment file name's length and
// rejects path traversal.
func ValidateFileName(name string) error {
	if len(name) < MinFileNameLen || len(name) > MaxFileNameLen {
		return apierrors.NewInvalid("file name %q: length out of bounds [%d, %d]", name, MinFileNameLen, MaxFileNameLen)
	}
	return ValidatePathSafe(name)
}

// ValidatePathSafe rejects any path segment containing "..", the
// traversal guard required of every object-store key and user-chosen path
// (§4.4, invariant 5 of the testable properties).
func ValidatePathSafe(path string) error {
	if strings.Contains(path, "..") {
		return apierrors.NewInvalid("path %q: must not contain '..'", path)
	}
	return nil
}

// ValidateCIDR parses a CIDR block, used by network-policy egress/ingress rules.
func ValidateCIDR(cidr string) error {
	if _, _, err := net.ParseCIDR(cidr); err != nil {
		return apierrors.NewInvalid("cidr %q: %v", cidr, err)
	}
	return nil
}

// ValidateLabelKey checks a Kubernetes-style label key: optional
// "prefix/" DNS subdomain, then a name segment of alnum, '-', '_', '.'.
func ValidateLabelKey(key string) error {
	if key == "" {
		return apierrors.NewInvalid("label key: must not be empty")
	}
	name := key
	if i := strings.IndexByte(key, '/'); i >= 0 {
		prefix := key[:i]
		name = key[i+1:]
		if prefix == "" {
			return apierrors.NewInvalid("label key %q: empty prefix", key)
		}
	}
	if name == "" || len(name) > 63 {
		return apierrors.NewInvalid("label key %q: name segment length out of bounds", key)
	}
	for i, r := range name {
		ok := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.'
		if !ok {
			return apierrors.NewInvalid("label key %q: invalid character %q", key, r)
		}
		if (i == 0 || i == len(name)-1) && !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return apierrors.NewInvalid("label key %q: must start/end alphanumeric", key)
		}
	}
	return nil
}

// ValidateSHA256 checks a lowercase 64-hex sample digest.
func ValidateSHA256(sha string) error {
	if len(sha) != 64 {
		return apierrors.NewInvalid("sha256 %q: must be 64 hex characters", sha)
	}
	for _, r := range sha {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return apierrors.NewInvalid("sha256 %q: must be lowercase hex", sha)
		}
	}
	return nil
}
