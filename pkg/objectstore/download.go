package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/yeka/zip"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
)

// bytesReader adapts a []byte to the io.ReadSeeker S3 PutObject-family
// calls expect as a request body.
func bytesReader(b []byte) io.ReadSeeker {
	return bytes.NewReader(b)
}

// Exists reports whether an object is present at path.
func (c *Client) Exists(ctx context.Context, bucket Bucket, path string) (bool, error) {
	if err := validatePath(path); err != nil {
		return false, err
	}
	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucketName(bucket)),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFoundErr(err) {
			return false, nil
		}
		return false, apierrors.Wrap(apierrors.KindUnavailable, err, "head object %s", path)
	}
	return true, nil
}

// Download returns a reader over an object's stored bytes as they are in
// the bucket; it does not decrypt them (DownloadDecrypted does).
func (c *Client) Download(ctx context.Context, bucket Bucket, path string) (io.ReadCloser, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName(bucket)),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFoundErr(err) {
			return nil, apierrors.NewNotFound("object %s not found", path)
		}
		return nil, apierrors.Wrap(apierrors.KindUnavailable, err, "get object %s", path)
	}
	return out.Body, nil
}

// DownloadDecrypted reads the full object, verifies its trailing
// authentication tag, and returns the decrypted plaintext. Buffers the
// whole object in memory — acceptable only for the interactive zip-download
// path (spec §4.1: "not as efficient ... should not be used for large
// files").
func (c *Client) DownloadDecrypted(ctx context.Context, bucket Bucket, path string) ([]byte, error) {
	body, err := c.Download(ctx, bucket, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "read object %s", path)
	}
	if len(raw) < ivSize+macSize {
		return nil, apierrors.NewInternal("object %s too short to contain cipher framing", path)
	}
	iv := raw[:ivSize]
	tag := raw[len(raw)-macSize:]
	ciphertext := raw[ivSize : len(raw)-macSize]

	dec, err := newStreamDecryptor(c.key, iv)
	if err != nil {
		return nil, err
	}
	plaintext := dec.Update(ciphertext)
	if !dec.VerifyTag(tag) {
		return nil, apierrors.NewInternal("object %s failed authentication", path)
	}
	return plaintext, nil
}

// DownloadAsZip decrypts an object and re-emits it as a single-entry
// password-protected zip named by sha256, used only for interactive
// downloads (spec §4.1 zip transcoding).
func (c *Client) DownloadAsZip(ctx context.Context, bucket Bucket, path, sha256Name, password string) ([]byte, error) {
	plaintext, err := c.DownloadDecrypted(ctx, bucket, path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Encrypt(sha256Name, password, zip.StandardEncryption)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "start zip entry for %s", path)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "write zip entry for %s", path)
	}
	if err := zw.Close(); err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "finish zip for %s", path)
	}
	return buf.Bytes(), nil
}

// Delete removes an object.
func (c *Client) Delete(ctx context.Context, bucket Bucket, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucketName(bucket)),
		Key:    aws.String(path),
	})
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, err, "delete object %s", path)
	}
	return nil
}

type apiErrorCoder interface{ ErrorCode() string }

func isNotFoundErr(err error) bool {
	var coded apiErrorCoder
	if errors.As(err, &coded) {
		code := coded.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}
