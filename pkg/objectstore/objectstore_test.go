package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
)

// fakeS3 is an in-memory stand-in for s3API, tracking objects by
// bucket/key and multipart sessions by upload id.
type fakeS3 struct {
	objects   map[string][]byte
	multipart map[string][][]byte
	nextID    int
	abortedID string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), multipart: make(map[string][][]byte)}
}

func objKey(bucket, key *string) string { return aws.ToString(bucket) + "/" + aws.ToString(key) }

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[objKey(in.Bucket, in.Key)]; !ok {
		return nil, &notFoundErr{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.objects[objKey(in.Bucket, in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[objKey(in.Bucket, in.Key)]
	if !ok {
		return nil, &notFoundErr{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, objKey(in.Bucket, in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.nextID++
	id := objKey(in.Bucket, in.Key)
	f.multipart[id] = nil
	uploadID := aws.String(id)
	return &s3.CreateMultipartUploadOutput{UploadId: uploadID}, nil
}

func (f *fakeS3) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, _ := io.ReadAll(in.Body.(io.Reader))
	f.multipart[*in.UploadId] = append(f.multipart[*in.UploadId], data)
	return &s3.UploadPartOutput{ETag: aws.String("etag")}, nil
}

func (f *fakeS3) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	parts := f.multipart[*in.UploadId]
	var full []byte
	for _, p := range parts {
		full = append(full, p...)
	}
	f.objects[objKey(in.Bucket, in.Key)] = full
	delete(f.multipart, *in.UploadId)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.abortedID = *in.UploadId
	delete(f.multipart, *in.UploadId)
	return &s3.AbortMultipartUploadOutput{}, nil
}

type notFoundErr struct{}

func (e *notFoundErr) Error() string     { return "not found" }
func (e *notFoundErr) ErrorCode() string { return "NoSuchKey" }

func TestUploadHashAndEncryptRoundTrip(t *testing.T) {
	fake := newFakeS3()
	c := newTestClient(fake, "super-secret-password")
	ctx := context.Background()

	plaintext := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 1000)
	hashes, err := c.UploadHashAndEncrypt(ctx, BucketSamples, "abc123", bytes.NewReader(plaintext))
	require.NoError(t, err)
	assert.NotEmpty(t, hashes.SHA256)
	assert.NotEmpty(t, hashes.SHA1)
	assert.NotEmpty(t, hashes.MD5)

	got, err := c.DownloadDecrypted(ctx, BucketSamples, "abc123")
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestUploadRejectsPathTraversal(t *testing.T) {
	fake := newFakeS3()
	c := newTestClient(fake, "pw")
	ctx := context.Background()

	_, err := c.UploadHashAndEncrypt(ctx, BucketSamples, "../etc/passwd", bytes.NewReader([]byte("x")))
	assert.Error(t, err)

	err = c.PlainStream(ctx, BucketSamples, "a/../b", bytes.NewReader([]byte("x")))
	assert.Error(t, err)
}

func TestExistsAndDelete(t *testing.T) {
	fake := newFakeS3()
	c := newTestClient(fake, "pw")
	ctx := context.Background()

	ok, err := c.Exists(ctx, BucketSamples, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.UploadBase64(ctx, BucketEphemeral, "file1", []byte("hello")))
	ok, err = c.Exists(ctx, BucketEphemeral, "file1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, BucketEphemeral, "file1"))
	ok, err = c.Exists(ctx, BucketEphemeral, "file1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDownloadMissingIsNotFound(t *testing.T) {
	fake := newFakeS3()
	c := newTestClient(fake, "pw")
	ctx := context.Background()

	_, err := c.Download(ctx, BucketResults, "missing")
	require.Error(t, err)
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err))
}

func TestMultipartAbortsOnFailure(t *testing.T) {
	fake := newFakeS3()
	c := newTestClient(fake, "pw")
	ctx := context.Background()

	_, err := c.UploadHashAndEncrypt(ctx, BucketSamples, "bad", failingReader{})
	require.Error(t, err)
	assert.NotEmpty(t, fake.abortedID)
	_, exists := fake.objects[objKey(aws.String("samples"), aws.String("bad"))]
	assert.False(t, exists)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }
