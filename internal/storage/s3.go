package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Options configures the S3 client. Empty fields fall back to the default AWS chain.
type S3Options struct {
	Region          string
	Endpoint        string // S3-compatible endpoint, e.g. MinIO; enables path-style addressing
	AccessKeyID     string
	SecretAccessKey string
}

// S3Client moves input and output documents to and from S3.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Client creates a new S3 client
func NewS3Client(ctx context.Context, opts S3Options) (*S3Client, error) {
	var loaders []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loaders = append(loaders, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		downloader: manager.NewDownloader(cli),
	}, nil
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(u string) (bucket, key string, err error) {
	path := strings.TrimPrefix(u, "s3://")
	if path == u {
		return "", "", fmt.Errorf("not an s3 url: %s", u)
	}
	slash := strings.Index(path, "/")
	if slash <= 0 {
		return path, "", nil
	}
	return path[:slash], path[slash+1:], nil
}

// Download reads a whole object into memory.
func (s *S3Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(nil)
	n, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}
	log.Info().Str("bucket", bucket).Str("key", key).Int64("size", n).Msg("downloaded object from S3")
	return buf.Bytes(), nil
}

// Upload writes data to bucket/key.
func (s *S3Client) Upload(ctx context.Context, bucket, key string, data []byte, contentType string, metadata map[string]string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("S3 upload failed")
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("bucket", bucket).Str("key", key).Int("size", len(data)).Msg("uploaded file to S3")
	return nil
}

// HeadBucket checks that the bucket is reachable.
func (s *S3Client) HeadBucket(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	return err
}
