// Package objectstore adapts the platform's C1 object store gateway: a
// multipart upload protocol over S3-compatible storage with an
// authenticated streaming cipher, multi-digest hashing, path safety
// checks, and zip transcoding for interactive downloads.
package objectstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/config"
)

// minPartSize is the minimum multipart upload part size S3 accepts for any
// part but the last (spec §4.1: "upload parts ≥ 5 MiB each").
const minPartSize = 5 * 1024 * 1024

// s3API is the subset of *s3.Client this package drives. Defined as an
// interface so tests can substitute a fake without a network dependency.
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, opts ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, opts ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Bucket is one of the platform's named object-store buckets.
type Bucket string

const (
	BucketSamples   Bucket = "samples"
	BucketResults   Bucket = "results"
	BucketRepos     Bucket = "repos"
	BucketEphemeral Bucket = "ephemeral"
	BucketComments  Bucket = "comments"
)

// Client fans out to the platform's named buckets, each sharing one
// underlying S3 connection but addressed by bucket name.
type Client struct {
	api      s3API
	buckets  map[Bucket]string
	key      [32]byte
	partSize int64
}

// NewClient builds a Client from the object store configuration, deriving
// the streaming cipher key from EncryptionPassword.
func NewClient(ctx context.Context, cfg config.ObjectStoreConfig) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "load aws config")
	}

	cli := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	partSize := cfg.PartSize
	if partSize < minPartSize {
		partSize = minPartSize
	}

	return &Client{
		api: cli,
		buckets: map[Bucket]string{
			BucketSamples:   cfg.SamplesBucket,
			BucketResults:   cfg.ResultsBucket,
			BucketRepos:     cfg.ReposBucket,
			BucketEphemeral: cfg.EphemeralBucket,
			BucketComments:  cfg.CommentsBucket,
		},
		key:      deriveKey(cfg.EncryptionPassword),
		partSize: partSize,
	}, nil
}

// newTestClient builds a Client over an injected fake, for unit tests.
func newTestClient(api s3API, password string) *Client {
	return &Client{
		api: api,
		buckets: map[Bucket]string{
			BucketSamples:   "samples",
			BucketResults:   "results",
			BucketRepos:     "repos",
			BucketEphemeral: "ephemeral",
			BucketComments:  "comments",
		},
		key:      deriveKey(password),
		partSize: minPartSize,
	}
}

func (c *Client) bucketName(b Bucket) string {
	return c.buckets[b]
}
