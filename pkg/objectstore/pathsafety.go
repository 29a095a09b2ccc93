package objectstore

import (
	"crypto/sha256"
	"strings"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
)

// validatePath rejects any path containing ".." before any backend call
// (spec §4.1 path safety).
func validatePath(path string) error {
	if strings.Contains(path, "..") {
		return apierrors.NewInvalid("object path %q must not contain '..'", path)
	}
	return nil
}

// deriveKey turns an operator-configured password into a fixed-size key
// for the streaming cipher, matching the original's fixed 16-byte-key
// derivation shape but sized for AES-256.
func deriveKey(password string) [32]byte {
	return sha256.Sum256([]byte(password))
}
