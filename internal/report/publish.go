package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrPublishFailed is wrapped by publish errors.
var ErrPublishFailed = errors.New("publish failed")

// Publisher copies finished report artifacts somewhere outside the output directory.
type Publisher interface {
	Publish(ctx context.Context, localPath string) error
}

// PutObjectAPI is the subset of the S3 client used by S3Publisher.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures an S3Publisher.
type S3Options struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string // for MinIO, LocalStack and other S3-compatible stores
	UsePathStyle bool
}

// S3Publisher uploads report artifacts to an S3 bucket under a key prefix.
type S3Publisher struct {
	client     PutObjectAPI
	bucket     string
	prefix     string
	maxRetries int
	backoff    time.Duration
}

// NewS3Publisher loads the default AWS credential chain and returns a publisher.
func NewS3Publisher(ctx context.Context, opts S3Options) (*S3Publisher, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrPublishFailed)
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		})
	}
	if opts.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3PublisherWithClient(s3.NewFromConfig(awsCfg, s3Opts...), opts.Bucket, opts.Prefix), nil
}

// NewS3PublisherWithClient returns a publisher using a pre-configured client.
func NewS3PublisherWithClient(client PutObjectAPI, bucket, prefix string) *S3Publisher {
	return &S3Publisher{
		client:     client,
		bucket:     bucket,
		prefix:     strings.Trim(prefix, "/"),
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
	}
}

// Key returns the object key for localPath.
func (p *S3Publisher) Key(localPath string) string {
	return path.Join(p.prefix, filepath.Base(localPath))
}

// Publish uploads localPath, retrying with exponential backoff.
func (p *S3Publisher) Publish(ctx context.Context, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	defer file.Close()

	key := p.Key(localPath)
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := file.Seek(0, 0); err != nil {
			return fmt.Errorf("%w: %v", ErrPublishFailed, err)
		}

		_, lastErr = p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.bucket),
			Key:         aws.String(key),
			Body:        file,
			ContentType: aws.String(contentType(localPath)),
		})
		if lastErr == nil {
			slog.Info("report published", "bucket", p.bucket, "key", key)
			return nil
		}

		if attempt < p.maxRetries {
			wait := time.Duration(math.Pow(2, float64(attempt))) * p.backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("%w: s3://%s/%s: %v", ErrPublishFailed, p.bucket, key, lastErr)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
