package objectstore

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// memoryBackend is an in-process s3API implementation backed by a map,
// letting other packages' tests exercise real upload/download paths without
// a network dependency (mirrors the fakeS3 this package's own tests use).
type memoryBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
	parts   map[string][][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{objects: map[string][]byte{}, parts: map[string][][]byte{}}
}

// NewInMemory builds a Client over an in-process fake S3 backend, for use by
// other packages' tests that need a real objectstore.Client without a
// network dependency.
func NewInMemory(password string) *Client {
	return newTestClient(newMemoryBackend(), password)
}

func memKey(bucket, key string) string { return bucket + "/" + key }

type memNotFoundErr struct{}

func (memNotFoundErr) ErrorCode() string { return "NoSuchKey" }
func (memNotFoundErr) Error() string     { return "not found" }

func (m *memoryBackend) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[memKey(*in.Bucket, *in.Key)]; !ok {
		return nil, memNotFoundErr{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *memoryBackend) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(*in.Bucket, *in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *memoryBackend) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	data, ok := m.objects[memKey(*in.Bucket, *in.Key)]
	m.mu.Unlock()
	if !ok {
		return nil, memNotFoundErr{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *memoryBackend) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, memKey(*in.Bucket, *in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (m *memoryBackend) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	uploadID := memKey(*in.Bucket, *in.Key)
	m.mu.Lock()
	m.parts[uploadID] = nil
	m.mu.Unlock()
	return &s3.CreateMultipartUploadOutput{UploadId: &uploadID}, nil
}

func (m *memoryBackend) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.parts[*in.UploadId] = append(m.parts[*in.UploadId], data)
	m.mu.Unlock()
	etag := "etag"
	return &s3.UploadPartOutput{ETag: &etag}, nil
}

func (m *memoryBackend) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var whole []byte
	for _, p := range m.parts[*in.UploadId] {
		whole = append(whole, p...)
	}
	delete(m.parts, *in.UploadId)
	m.objects[memKey(*in.Bucket, *in.Key)] = whole
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (m *memoryBackend) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.parts, *in.UploadId)
	return &s3.AbortMultipartUploadOutput{}, nil
}
