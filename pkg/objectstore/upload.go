package objectstore

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
)

// multipartSession tracks the part manifest for one in-flight multipart
// upload, so any failure can abort cleanly (spec §4.1 failure semantics).
type multipartSession struct {
	c        *Client
	bucket   Bucket
	key      string
	uploadID string
	parts    []types.CompletedPart
	partNum  int32
}

func (c *Client) startMultipart(ctx context.Context, bucket Bucket, key string) (*multipartSession, error) {
	if err := validatePath(key); err != nil {
		return nil, err
	}
	out, err := c.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(c.bucketName(bucket)),
		Key:         aws.String(key),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindUnavailable, err, "initiate multipart upload for %s", key)
	}
	if out.UploadId == nil {
		return nil, apierrors.NewUnavailable("multipart upload for %s returned no upload id", key)
	}
	return &multipartSession{c: c, bucket: bucket, key: key, uploadID: *out.UploadId, partNum: 1}, nil
}

func (m *multipartSession) uploadPart(ctx context.Context, data []byte) error {
	out, err := m.c.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(m.c.bucketName(m.bucket)),
		Key:        aws.String(m.key),
		UploadId:   aws.String(m.uploadID),
		PartNumber: aws.Int32(m.partNum),
		Body:       bytesReader(data),
	})
	if err != nil {
		return apierrors.Wrap(apierrors.KindUnavailable, err, "upload part %d for %s", m.partNum, m.key)
	}
	etag := ""
	if out.ETag != nil {
		etag = *out.ETag
	}
	m.parts = append(m.parts, types.CompletedPart{ETag: aws.String(etag), PartNumber: aws.Int32(m.partNum)})
	m.partNum++
	return nil
}

func (m *multipartSession) complete(ctx context.Context) error {
	_, err := m.c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(m.c.bucketName(m.bucket)),
		Key:      aws.String(m.key),
		UploadId: aws.String(m.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: m.parts,
		},
	})
	if err != nil {
		return apierrors.Wrap(apierrors.KindUnavailable, err, "complete multipart upload for %s", m.key)
	}
	return nil
}

func (m *multipartSession) abort(ctx context.Context) {
	_, _ = m.c.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(m.c.bucketName(m.bucket)),
		Key:      aws.String(m.key),
		UploadId: aws.String(m.uploadID),
	})
}

// run drives a multipart session to completion, aborting on any failure —
// the "initiate / upload parts / complete, abort on any failure" flow
// shared by every upload variant.
func (m *multipartSession) run(ctx context.Context, produce func(write func([]byte) error) error) error {
	err := produce(func(chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		return m.uploadPart(ctx, chunk)
	})
	if err != nil {
		m.abort(ctx)
		return err
	}
	if err := m.complete(ctx); err != nil {
		m.abort(ctx)
		return err
	}
	return nil
}

// UploadHashAndEncrypt streams src into bucket/key, encrypting it and
// computing sha256/sha1/md5 over the plaintext, returning the hashes on
// success (spec §4.1's "hash-and-encrypt" variant).
func (c *Client) UploadHashAndEncrypt(ctx context.Context, bucket Bucket, key string, src io.Reader) (Hashes, error) {
	sess, err := c.startMultipart(ctx, bucket, key)
	if err != nil {
		return Hashes{}, err
	}
	hasher := newMultiHasher()
	enc, err := newStreamEncryptor(c.key)
	if err != nil {
		return Hashes{}, err
	}

	err = sess.run(ctx, func(write func([]byte) error) error {
		if err := streamChunks(src, func(chunk []byte) error {
			hasher.Write(chunk)
			return write(enc.Update(chunk))
		}); err != nil {
			return err
		}
		tail, tag := enc.Finish()
		if err := write(tail); err != nil {
			return err
		}
		return write(tag)
	})
	if err != nil {
		return Hashes{}, err
	}
	return hasher.finish(), nil
}

// UploadSha256AndEncrypt is UploadHashAndEncrypt's cheaper sibling,
// computing only the sha256 digest.
func (c *Client) UploadSha256AndEncrypt(ctx context.Context, bucket Bucket, key string, src io.Reader) (string, error) {
	sess, err := c.startMultipart(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	hasher := newMultiHasher()
	enc, err := newStreamEncryptor(c.key)
	if err != nil {
		return "", err
	}

	err = sess.run(ctx, func(write func([]byte) error) error {
		if err := streamChunks(src, func(chunk []byte) error {
			hasher.sha256.Write(chunk)
			return write(enc.Update(chunk))
		}); err != nil {
			return err
		}
		tail, tag := enc.Finish()
		if err := write(tail); err != nil {
			return err
		}
		return write(tag)
	})
	if err != nil {
		return "", err
	}
	return hasher.finish().SHA256, nil
}

// UploadEncryptOnly streams src into bucket/key with encryption but no
// hashing, used for stage outputs and other non-sample artifacts.
func (c *Client) UploadEncryptOnly(ctx context.Context, bucket Bucket, key string, src io.Reader) error {
	sess, err := c.startMultipart(ctx, bucket, key)
	if err != nil {
		return err
	}
	enc, err := newStreamEncryptor(c.key)
	if err != nil {
		return err
	}
	return sess.run(ctx, func(write func([]byte) error) error {
		if err := streamChunks(src, func(chunk []byte) error {
			return write(enc.Update(chunk))
		}); err != nil {
			return err
		}
		tail, tag := enc.Finish()
		if err := write(tail); err != nil {
			return err
		}
		return write(tag)
	})
}

// PlainStream streams src into bucket/key without encryption or hashing,
// used for artifacts the platform never needs to decrypt on its own (spec
// §4.1's plain_stream).
func (c *Client) PlainStream(ctx context.Context, bucket Bucket, key string, src io.Reader) error {
	sess, err := c.startMultipart(ctx, bucket, key)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, flushThreshold)
	return sess.run(ctx, func(write func([]byte) error) error {
		err := streamChunks(src, func(chunk []byte) error {
			buf = append(buf, chunk...)
			if len(buf) >= flushThreshold {
				flushed := buf
				buf = nil
				return write(flushed)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return write(buf)
	})
}

// UploadBase64 uploads an already-decoded small inline buffer directly with
// PutObject, skipping the multipart protocol (spec §4.1's upload_base64,
// used for small inline buffers like ephemeral files). It does nothing when
// key already exists, and the buffer is stored without encryption.
func (c *Client) UploadBase64(ctx context.Context, bucket Bucket, key string, decoded []byte) error {
	if err := validatePath(key); err != nil {
		return err
	}
	exists, err := c.Exists(ctx, bucket, key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucketName(bucket)),
		Key:    aws.String(key),
		Body:   bytesReader(decoded),
	})
	if err != nil {
		return apierrors.Wrap(apierrors.KindUnavailable, err, "put object %s", key)
	}
	return nil
}

// streamChunks reads src in flushThreshold-sized chunks, calling fn for
// each one read (including a final short chunk at EOF).
func streamChunks(src io.Reader, fn func(chunk []byte) error) error {
	buf := make([]byte, flushThreshold)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if ferr := fn(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return apierrors.Wrap(apierrors.KindInternal, err, "read upload stream")
		}
	}
}
