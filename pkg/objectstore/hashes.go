package objectstore

import (
	"crypto/md5"  //nolint:gosec // required for compatibility hashing, not security
	"crypto/sha1" //nolint:gosec // same
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Hashes is the (sha256, sha1, md5) triple computed over an upload's
// plaintext, matching the original's StandardHashes.
type Hashes struct {
	SHA256 string
	SHA1   string
	MD5    string
}

// multiHasher fans a single write out to sha256, sha1, and md5 digests.
type multiHasher struct {
	sha256 hash.Hash
	sha1   hash.Hash
	md5    hash.Hash
}

func newMultiHasher() *multiHasher {
	return &multiHasher{sha256: sha256.New(), sha1: sha1.New(), md5: md5.New()}
}

func (m *multiHasher) Write(p []byte) (int, error) {
	m.sha256.Write(p)
	m.sha1.Write(p)
	m.md5.Write(p)
	return len(p), nil
}

func (m *multiHasher) finish() Hashes {
	return Hashes{
		SHA256: hex.EncodeToString(m.sha256.Sum(nil)),
		SHA1:   hex.EncodeToString(m.sha1.Sum(nil)),
		MD5:    hex.EncodeToString(m.md5.Sum(nil)),
	}
}
