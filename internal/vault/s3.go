package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"dvsmart-go/internal/config"
	"dvsmart-go/internal/dvs"
)

// S3API is the subset of the S3 client used by S3Destination.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Destination writes reorganized files as objects in one bucket. The key
// of each object is prefix + destination path.
type S3Destination struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Destination creates a destination from an existing client.
func NewS3Destination(client S3API, bucket, prefix string) *S3Destination {
	return &S3Destination{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

// NewS3DestinationFromConfig loads AWS configuration and builds the client.
// S3Endpoint and S3PathStyle support S3-compatible stores such as MinIO.
func NewS3DestinationFromConfig(ctx context.Context, cfg config.DestinationConfig) (*S3Destination, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
	})
	return NewS3Destination(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

func (d *S3Destination) key(p string) string {
	if d.prefix == "" {
		return p
	}
	return path.Join(d.prefix, p)
}

// Write uploads the content from r. The uploader streams in parts, so the
// size need not be known; when it is, the number of bytes read is verified.
func (d *S3Destination) Write(ctx context.Context, p string, r io.Reader, size int64) error {
	cr := &countingReader{r: r}
	_, err := d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(p)),
		Body:   cr,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", p, err)
	}
	if size >= 0 && cr.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, cr.n)
	}
	return nil
}

func (d *S3Destination) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(p)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("opening %s: %w", p, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("opening %s: %w", p, err)
	}
	return out.Body, nil
}

// ValidateSetup verifies the bucket exists and is reachable.
func (d *S3Destination) ValidateSetup(ctx context.Context) error {
	_, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.bucket)})
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", d.bucket, err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ dvs.Destination = (*S3Destination)(nil)
