package objectstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"hash"
	"io"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
)

// ivSize is the AES block size used as the CTR initialization vector.
const ivSize = aes.BlockSize

// macSize is the trailing authentication tag length.
const macSize = sha256.Size

// flushThreshold is the output-buffer size at which a streamEncryptor
// yields bytes ready for the next multipart part (spec §4.1: "flushed
// whenever >= 5 MiB is ready").
const flushThreshold = 5 * 1024 * 1024

// streamEncryptor wraps plaintext in a length-preserving AES-CTR stream,
// authenticated by a trailing HMAC-SHA256 tag over the ciphertext, framed
// as [iv][ciphertext][tag] so a streamDecryptor can verify end-to-end.
type streamEncryptor struct {
	stream cipher.Stream
	mac    hash.Hash
	buf    []byte
}

// newStreamEncryptor returns an encryptor whose internal buffer is
// pre-seeded with the random iv, so the iv rides along with the first
// flushed part instead of becoming an undersized part of its own.
func newStreamEncryptor(key [32]byte) (enc *streamEncryptor, err error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "init cipher")
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "generate iv")
	}
	stream := cipher.NewCTR(block, iv)
	mac := hmac.New(sha256.New, key[:])
	buf := make([]byte, ivSize)
	copy(buf, iv)
	return &streamEncryptor{stream: stream, mac: mac, buf: buf}, nil
}

// Update encrypts plaintext and returns ciphertext ready to flush whenever
// the accumulated buffer reaches flushThreshold; otherwise it returns nil
// and holds the bytes for the next call.
func (e *streamEncryptor) Update(plaintext []byte) []byte {
	out := make([]byte, len(plaintext))
	e.stream.XORKeyStream(out, plaintext)
	e.mac.Write(out)
	e.buf = append(e.buf, out...)
	if len(e.buf) >= flushThreshold {
		flushed := e.buf
		e.buf = nil
		return flushed
	}
	return nil
}

// Finish returns any buffered ciphertext plus the trailing authentication
// tag, finalizing the stream.
func (e *streamEncryptor) Finish() (ciphertext, tag []byte) {
	return e.buf, e.mac.Sum(nil)
}

// streamDecryptor reverses streamEncryptor given the iv captured from the
// ciphertext's framing header.
type streamDecryptor struct {
	stream cipher.Stream
	mac    hash.Hash
}

func newStreamDecryptor(key [32]byte, iv []byte) (*streamDecryptor, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "init cipher")
	}
	stream := cipher.NewCTR(block, iv)
	mac := hmac.New(sha256.New, key[:])
	return &streamDecryptor{stream: stream, mac: mac}, nil
}

func (d *streamDecryptor) Update(ciphertext []byte) []byte {
	d.mac.Write(ciphertext)
	out := make([]byte, len(ciphertext))
	d.stream.XORKeyStream(out, ciphertext)
	return out
}

// VerifyTag reports whether tag authenticates everything written so far.
func (d *streamDecryptor) VerifyTag(tag []byte) bool {
	return hmac.Equal(d.mac.Sum(nil), tag)
}
